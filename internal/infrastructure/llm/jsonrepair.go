package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"PaperDigest/internal/domain"
)

// ErrMalformedResponse is returned when no repair tier can decode the model output.
var ErrMalformedResponse = errors.New("malformed model response")

// SummaryFields is the JSON object the summarization prompt asks for.
type SummaryFields struct {
	Summary          string                      `json:"summary"`
	TechnicalDetails string                      `json:"technicalDetails"`
	KeyFindings      []string                    `json:"keyFindings"`
	Diagrams         []domain.DiagramDescription `json:"diagrams"`
	MermaidDiagrams  []domain.MermaidDiagram     `json:"mermaidDiagrams"`
	TLDR             string                      `json:"tldr"`
}

type repairTier struct {
	name  string
	parse func(raw string) (SummaryFields, error)
}

// Tiers run in order; each one is more lenient than the last.
var repairChain = []repairTier{
	{name: "strict", parse: strictParse},
	{name: "extract braces", parse: extractBraces},
	{name: "repair escapes", parse: repairEscapes},
}

// ParseSummary decodes raw model output, falling back through the repair chain.
func ParseSummary(raw string) (SummaryFields, error) {
	var errs []error
	for _, tier := range repairChain {
		fields, err := tier.parse(raw)
		if err == nil {
			return fields, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", tier.name, err))
	}
	return SummaryFields{}, fmt.Errorf("%w: %w", ErrMalformedResponse, errors.Join(errs...))
}

func strictParse(raw string) (SummaryFields, error) {
	var fields SummaryFields
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &fields); err != nil {
		return SummaryFields{}, err
	}
	return fields, nil
}

// extractBraces parses the span from the first '{' to the last '}'.
func extractBraces(raw string) (SummaryFields, error) {
	span, err := braceSpan(raw)
	if err != nil {
		return SummaryFields{}, err
	}
	return strictParse(span)
}

// repairEscapes doubles stray backslashes and escapes raw control characters inside strings.
func repairEscapes(raw string) (SummaryFields, error) {
	span, err := braceSpan(raw)
	if err != nil {
		return SummaryFields{}, err
	}
	return strictParse(escapeStrings(span))
}

// ParseTags decodes a JSON array of tag objects. Like ParseSummary it falls back to the
// bracketed span and then to repaired escapes.
func ParseTags(raw string) ([]domain.PaperTags, error) {
	tiers := []struct {
		name    string
		prepare func(string) (string, error)
	}{
		{name: "strict", prepare: func(s string) (string, error) { return strings.TrimSpace(s), nil }},
		{name: "extract brackets", prepare: bracketSpan},
		{name: "repair escapes", prepare: func(s string) (string, error) {
			span, err := bracketSpan(s)
			return escapeStrings(span), err
		}},
	}

	var errs []error
	for _, tier := range tiers {
		text, err := tier.prepare(raw)
		if err == nil {
			var tags []domain.PaperTags
			if err = json.Unmarshal([]byte(text), &tags); err == nil {
				return tags, nil
			}
		}
		errs = append(errs, fmt.Errorf("%s: %w", tier.name, err))
	}
	return nil, fmt.Errorf("%w: %w", ErrMalformedResponse, errors.Join(errs...))
}

func bracketSpan(raw string) (string, error) {
	start := strings.IndexByte(raw, '[')
	end := strings.LastIndexByte(raw, ']')
	if start < 0 || end <= start {
		return "", errors.New("no JSON array found")
	}
	return raw[start : end+1], nil
}

func braceSpan(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	end := strings.LastIndexByte(raw, '}')
	if start < 0 || end <= start {
		return "", errors.New("no JSON object found")
	}
	return raw[start : end+1], nil
}

func escapeStrings(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/8)

	inString := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			b.WriteByte(c)
			continue
		}

		switch {
		case c == '"':
			inString = false
			b.WriteByte(c)
		case c == '\\':
			if i+1 < len(s) && strings.IndexByte(`"\/bfnrtu`, s[i+1]) >= 0 {
				b.WriteByte(c)
				b.WriteByte(s[i+1])
				i++
				continue
			}
			b.WriteString(`\\`)
		case c < 0x20:
			fmt.Fprintf(&b, `\u%04x`, c)
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

func buildSummary(paper domain.FetchedPaper, fields SummaryFields, fetchedAt time.Time) domain.PaperSummary {
	diagrams := fields.Diagrams
	if diagrams == nil {
		diagrams = []domain.DiagramDescription{}
	}
	mermaid := fields.MermaidDiagrams
	if mermaid == nil {
		mermaid = []domain.MermaidDiagram{}
	}
	findings := fields.KeyFindings
	if findings == nil {
		findings = []string{}
	}
	authors := paper.Authors
	if authors == nil {
		authors = []string{}
	}
	media := paper.MediaURLs
	if media == nil {
		media = []string{}
	}

	return domain.PaperSummary{
		ID:               paper.ID,
		Title:            paper.Title,
		Authors:          authors,
		ArxivURL:         paper.ArxivURL,
		PDFURL:           paper.PDFURL,
		Summary:          fields.Summary,
		TechnicalDetails: fields.TechnicalDetails,
		KeyFindings:      findings,
		Diagrams:         diagrams,
		MermaidDiagrams:  mermaid,
		TLDR:             fields.TLDR,
		Upvotes:          paper.Upvotes,
		PublishedAt:      paper.PublishedAt,
		FetchedAt:        fetchedAt,
		MediaURLs:        media,
		Thumbnail:        paper.Thumbnail,
	}
}
