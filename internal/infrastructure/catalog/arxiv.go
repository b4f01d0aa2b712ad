package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
)

// Arxiv looks papers up one at a time through the export API Atom feed.
type Arxiv struct {
	client   *http.Client
	endpoint string
	links    Links
	parser   *gofeed.Parser
	now      func() time.Time
	logger   *slog.Logger
}

var _ Source = (*Arxiv)(nil)

// NewArxiv builds the per-id lookup client.
func NewArxiv(client *http.Client, endpoint string, links Links, logger *slog.Logger) *Arxiv {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &Arxiv{
		client:   client,
		endpoint: endpoint,
		links:    links,
		parser:   gofeed.NewParser(),
		now:      time.Now,
		logger:   logging.OrDiscard(logger),
	}
}

// Name identifies the source in logs.
func (a *Arxiv) Name() string {
	return "arxiv"
}

// Lookup fetches the Atom entry for id and reads its title and authors.
func (a *Arxiv) Lookup(ctx context.Context, id string) (domain.FetchedPaper, error) {
	u, err := url.Parse(a.endpoint)
	if err != nil {
		return domain.FetchedPaper{}, fmt.Errorf("invalid arxiv api url %s: %w", a.endpoint, err)
	}
	q := u.Query()
	q.Set("id_list", id)
	q.Set("max_results", "1")
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return domain.FetchedPaper{}, fmt.Errorf("build request: %w", err)
	}

	resp, err := a.client.Do(req)
	if err != nil {
		return domain.FetchedPaper{}, fmt.Errorf("request arxiv entry: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return domain.FetchedPaper{}, fmt.Errorf("arxiv api returned %s", resp.Status)
	}

	feed, err := a.parser.Parse(resp.Body)
	if err != nil {
		return domain.FetchedPaper{}, fmt.Errorf("parse arxiv feed: %w", err)
	}
	if len(feed.Items) == 0 {
		return domain.FetchedPaper{}, fmt.Errorf("%w: %s has no arxiv entry", ErrNotFound, id)
	}

	item := feed.Items[0]
	title := strings.Join(strings.Fields(item.Title), " ")
	if title == "" || strings.EqualFold(title, "Error") {
		return domain.FetchedPaper{}, fmt.Errorf("%w: %s has no arxiv title", ErrNotFound, id)
	}

	authors := make([]string, 0, len(item.Authors))
	for _, person := range item.Authors {
		if person == nil {
			continue
		}
		if name := strings.TrimSpace(person.Name); name != "" {
			authors = append(authors, name)
		}
	}

	return domain.FetchedPaper{
		ID:          id,
		Title:       title,
		Authors:     authors,
		ArxivURL:    a.links.Abs(id),
		PDFURL:      a.links.PDF(id),
		Upvotes:     0,
		PublishedAt: a.now().UTC(),
		MediaURLs:   []string{},
	}, nil
}
