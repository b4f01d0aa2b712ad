package feeds

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"
	"golang.org/x/sync/errgroup"

	"PaperDigest/internal/config"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

const (
	defaultLimit = 15
	snippetLen   = 200
)

// Reader pulls recent posts from the configured RSS and Atom feeds.
type Reader struct {
	feeds  []config.FeedConfig
	client *http.Client
	logger *slog.Logger
}

var _ ports.FeedReader = (*Reader)(nil)

// NewReader returns a reader over feeds.
func NewReader(feeds []config.FeedConfig, client *http.Client, logger *slog.Logger) *Reader {
	if client == nil {
		client = &http.Client{Timeout: 15 * time.Second}
	}
	return &Reader{
		feeds:  feeds,
		client: client,
		logger: logging.OrDiscard(logger),
	}
}

// Read fetches every feed in parallel. A feed that cannot be fetched is logged and skipped.
func (r *Reader) Read(ctx context.Context) ([]domain.FeedItem, error) {
	results := make([][]domain.FeedItem, len(r.feeds))

	g, gctx := errgroup.WithContext(ctx)
	for i, feed := range r.feeds {
		g.Go(func() error {
			items, err := r.readFeed(gctx, feed)
			if err != nil {
				r.logger.Warn("feed unavailable", "feed", feed.Name, "error", err)
				return nil
			}
			results[i] = items
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var items []domain.FeedItem
	for _, batch := range results {
		items = append(items, batch...)
	}
	r.logger.Debug("feeds read", "feeds", len(r.feeds), "items", len(items))
	return items, nil
}

func (r *Reader) readFeed(ctx context.Context, feed config.FeedConfig) ([]domain.FeedItem, error) {
	// gofeed parsers keep per-parse state, so each feed gets its own.
	parser := gofeed.NewParser()
	parser.Client = r.client

	parsed, err := parser.ParseURLWithContext(feed.URL, ctx)
	if err != nil {
		return nil, fmt.Errorf("parse feed %s: %w", feed.Name, err)
	}

	limit := feed.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	items := make([]domain.FeedItem, 0, min(limit, len(parsed.Items)))
	for _, item := range parsed.Items {
		if len(items) == limit {
			break
		}
		if item == nil || strings.TrimSpace(item.Title) == "" {
			continue
		}
		items = append(items, domain.FeedItem{
			Feed:        feed.Name,
			Title:       strings.TrimSpace(item.Title),
			Link:        item.Link,
			Snippet:     snippet(item),
			PublishedAt: published(item),
		})
	}
	return items, nil
}

// snippet is the item's description as plain text, capped at snippetLen runes.
func snippet(item *gofeed.Item) string {
	raw := item.Description
	if strings.TrimSpace(raw) == "" {
		raw = item.Content
	}
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return ""
	}
	text := strings.Join(strings.Fields(doc.Text()), " ")
	if runes := []rune(text); len(runes) > snippetLen {
		text = strings.TrimSpace(string(runes[:snippetLen]))
	}
	return text
}

func published(item *gofeed.Item) string {
	if item.PublishedParsed != nil {
		return item.PublishedParsed.UTC().Format(time.RFC3339)
	}
	if item.UpdatedParsed != nil {
		return item.UpdatedParsed.UTC().Format(time.RFC3339)
	}
	return item.Published
}
