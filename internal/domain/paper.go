package domain

import "time"

// PaperSummary is the persisted, LLM-enriched view of a single paper.
type PaperSummary struct {
	ID               string               `json:"id"`
	Title            string               `json:"title"`
	Authors          []string             `json:"authors"`
	ArxivURL         string               `json:"arxivUrl"`
	PDFURL           string               `json:"pdfUrl"`
	Summary          string               `json:"summary"`
	TechnicalDetails string               `json:"technicalDetails"`
	KeyFindings      []string             `json:"keyFindings"`
	Diagrams         []DiagramDescription `json:"diagrams"`
	MermaidDiagrams  []MermaidDiagram     `json:"mermaidDiagrams,omitempty"`
	TLDR             string               `json:"tldr"`
	Upvotes          int                  `json:"upvotes"`
	PublishedAt      time.Time            `json:"publishedAt"`
	FetchedAt        time.Time            `json:"fetchedAt"`
	MediaURLs        []string             `json:"mediaUrls"`
	Thumbnail        string               `json:"thumbnail,omitempty"`
}

// DiagramDescription points at a figure inside the source PDF. PageNumber is 1-indexed.
type DiagramDescription struct {
	FigureNumber string `json:"figureNumber"`
	Description  string `json:"description"`
	PageNumber   int    `json:"pageNumber"`
}

// MermaidDiagram is a generated diagram rendered client-side.
type MermaidDiagram struct {
	Title string `json:"title"`
	Code  string `json:"code"`
}

// DayMeta lists the papers imported under one date partition.
type DayMeta struct {
	Date      string    `json:"date"`
	PaperIDs  []string  `json:"paperIds"`
	FetchedAt time.Time `json:"fetchedAt"`
}

// Contains reports whether id is already listed for the day.
func (m DayMeta) Contains(id string) bool {
	for _, existing := range m.PaperIDs {
		if existing == id {
			return true
		}
	}
	return false
}

// FetchedPaper is catalog metadata resolved before summarization.
type FetchedPaper struct {
	ID          string
	Title       string
	Authors     []string
	ArxivURL    string
	PDFURL      string
	Upvotes     int
	PublishedAt time.Time
	MediaURLs   []string
	Thumbnail   string
}

// LocatedPaper pairs a paper with the date partition it was found in.
type LocatedPaper struct {
	Paper PaperSummary `json:"paper"`
	Date  string       `json:"date"`
}

// BatchResult classifies every id of a batch import into exactly one bucket.
type BatchResult struct {
	Warmed  []string        `json:"warmed"`
	Failed  []ImportFailure `json:"failed"`
	Skipped []string        `json:"skipped"`
}

// ImportFailure records why a single id could not be imported.
type ImportFailure struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Total returns the number of ids accounted for.
func (r BatchResult) Total() int {
	return len(r.Warmed) + len(r.Failed) + len(r.Skipped)
}

// FailedIDs returns the ids of the failed bucket in order.
func (r BatchResult) FailedIDs() []string {
	ids := make([]string, 0, len(r.Failed))
	for _, f := range r.Failed {
		ids = append(ids, f.ID)
	}
	return ids
}

// ListedPaper is an entry from a catalog listing or the daily index.
type ListedPaper struct {
	ID          string
	Title       string
	Authors     []string
	Abstract    string
	URL         string
	PDFURL      string
	Source      string
	MediaURLs   []string
	Thumbnail   string
	PublishedAt time.Time
}
