package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

const (
	dateLayout = "2006-01-02"
	// maxDaysBack bounds how far FetchDaily walks back looking for a non-empty day.
	maxDaysBack = 7
)

type hfEntry struct {
	Paper struct {
		ID      string `json:"id"`
		Title   string `json:"title"`
		Authors []struct {
			Name string `json:"name"`
		} `json:"authors"`
		Summary     string   `json:"summary"`
		PublishedAt string   `json:"publishedAt"`
		MediaURLs   []string `json:"mediaUrls"`
	} `json:"paper"`
	Title      string   `json:"title"`
	NumUpvotes int      `json:"numUpvotes"`
	MediaURLs  []string `json:"mediaUrls"`
	Thumbnail  string   `json:"thumbnail"`
}

// HuggingFace reads the daily papers index.
type HuggingFace struct {
	client     *http.Client
	endpoint   string
	links      Links
	dailyLimit int
	now        func() time.Time
	logger     *slog.Logger
}

var (
	_ Source                = (*HuggingFace)(nil)
	_ ports.CandidateSource = (*HuggingFace)(nil)
	_ ports.PaperLister     = (*HuggingFace)(nil)
)

// NewHuggingFace builds the daily index client; dailyLimit caps Candidates.
func NewHuggingFace(client *http.Client, endpoint string, links Links, dailyLimit int, logger *slog.Logger) *HuggingFace {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	if dailyLimit <= 0 {
		dailyLimit = 10
	}
	return &HuggingFace{
		client:     client,
		endpoint:   endpoint,
		links:      links,
		dailyLimit: dailyLimit,
		now:        time.Now,
		logger:     logging.OrDiscard(logger),
	}
}

// Name identifies the source in logs.
func (h *HuggingFace) Name() string {
	return "huggingface"
}

// Lookup scans the current index for id.
func (h *HuggingFace) Lookup(ctx context.Context, id string) (domain.FetchedPaper, error) {
	entries, err := h.fetch(ctx, "")
	if err != nil {
		return domain.FetchedPaper{}, err
	}
	for _, entry := range entries {
		if entry.Paper.ID == id {
			return h.toFetched(entry), nil
		}
	}
	return domain.FetchedPaper{}, fmt.Errorf("%w: %s not in daily index", ErrNotFound, id)
}

// FetchDaily returns the top papers by upvotes for the most recent non-empty day at or before day.
func (h *HuggingFace) FetchDaily(ctx context.Context, day time.Time, limit int) ([]domain.FetchedPaper, error) {
	var entries []hfEntry
	for back := 0; back < maxDaysBack; back++ {
		date := day.UTC().AddDate(0, 0, -back).Format(dateLayout)
		batch, err := h.fetch(ctx, date)
		if err != nil {
			return nil, err
		}
		h.logger.Debug("daily index fetched", "date", date, "count", len(batch))
		if len(batch) > 0 {
			entries = batch
			break
		}
	}

	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].NumUpvotes > entries[j].NumUpvotes
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}

	papers := make([]domain.FetchedPaper, 0, len(entries))
	for _, entry := range entries {
		papers = append(papers, h.toFetched(entry))
	}
	return papers, nil
}

// Candidates lists the top daily papers for day.
func (h *HuggingFace) Candidates(ctx context.Context, day time.Time) ([]string, error) {
	papers, err := h.FetchDaily(ctx, day, h.dailyLimit)
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(papers))
	for _, p := range papers {
		ids = append(ids, p.ID)
	}
	return ids, nil
}

// RecentPapers collects unique papers from the days covered by window, newest day first and
// by upvotes within a day. Topic and subtopic are ignored because the index is not split by topic.
func (h *HuggingFace) RecentPapers(ctx context.Context, _, _ string, window domain.Range, limit int) ([]domain.ListedPaper, error) {
	today := h.now().UTC()
	batches := make([][]hfEntry, window.Days())

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxDaysBack)
	for i := range batches {
		date := today.AddDate(0, 0, -i).Format(dateLayout)
		g.Go(func() error {
			batch, err := h.fetch(gctx, date)
			if err != nil {
				h.logger.Warn("daily index unavailable", "date", date, "error", err)
				return nil
			}
			sort.SliceStable(batch, func(a, b int) bool {
				return batch[a].NumUpvotes > batch[b].NumUpvotes
			})
			batches[i] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	seen := map[string]struct{}{}
	papers := []domain.ListedPaper{}
	for _, batch := range batches {
		for _, entry := range batch {
			if _, ok := seen[entry.Paper.ID]; ok {
				continue
			}
			seen[entry.Paper.ID] = struct{}{}
			papers = append(papers, h.toListed(entry))
			if limit > 0 && len(papers) >= limit {
				return papers, nil
			}
		}
	}
	return papers, nil
}

func (h *HuggingFace) fetch(ctx context.Context, date string) ([]hfEntry, error) {
	endpoint := h.endpoint
	if date != "" {
		u, err := url.Parse(endpoint)
		if err != nil {
			return nil, fmt.Errorf("invalid daily papers url %s: %w", endpoint, err)
		}
		q := u.Query()
		q.Set("date", date)
		u.RawQuery = q.Encode()
		endpoint = u.String()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request daily papers: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("daily papers returned %s", resp.Status)
	}

	var entries []hfEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode daily papers: %w", err)
	}
	return entries, nil
}

func (h *HuggingFace) toFetched(entry hfEntry) domain.FetchedPaper {
	id := entry.Paper.ID
	authors := make([]string, 0, len(entry.Paper.Authors))
	for _, a := range entry.Paper.Authors {
		authors = append(authors, a.Name)
	}

	media := entry.MediaURLs
	if len(media) == 0 {
		media = entry.Paper.MediaURLs
	}
	if media == nil {
		media = []string{}
	}

	published, err := time.Parse(time.RFC3339, entry.Paper.PublishedAt)
	if err != nil {
		published = h.now().UTC()
	}

	return domain.FetchedPaper{
		ID:          id,
		Title:       entryTitle(entry),
		Authors:     authors,
		ArxivURL:    h.links.Abs(id),
		PDFURL:      h.links.PDF(id),
		Upvotes:     entry.NumUpvotes,
		PublishedAt: published,
		MediaURLs:   media,
		Thumbnail:   entry.Thumbnail,
	}
}

func (h *HuggingFace) toListed(entry hfEntry) domain.ListedPaper {
	p := h.toFetched(entry)
	return domain.ListedPaper{
		ID:          p.ID,
		Title:       p.Title,
		Authors:     p.Authors,
		Abstract:    strings.TrimSpace(entry.Paper.Summary),
		URL:         p.ArxivURL,
		PDFURL:      p.PDFURL,
		Source:      h.Name(),
		MediaURLs:   p.MediaURLs,
		Thumbnail:   p.Thumbnail,
		PublishedAt: p.PublishedAt,
	}
}

func entryTitle(entry hfEntry) string {
	if entry.Title != "" {
		return entry.Title
	}
	return entry.Paper.Title
}
