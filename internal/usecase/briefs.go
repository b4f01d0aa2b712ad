package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"PaperDigest/internal/cache"
	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

const (
	// DefaultTopic and DefaultSubtopic select the daily papers index.
	DefaultTopic    = "ai"
	DefaultSubtopic = "everything"

	devPulseKey       = "dev-pulse"
	marketTrendsKey   = "market-trends"
	defaultTrendLimit = 50
	feedLimit         = 10
	feedWindow        = domain.RangeWeek
	descriptionLen    = 200
	noPapersMessage   = "No papers found for this period."

	fallbackMLTag  = "Other"
	fallbackAppTag = "General"
)

// BriefsDeps wires the cached brief generators.
type BriefsDeps struct {
	Cache  *cache.Cache
	Writer ports.BriefWriter
	Tagger ports.PaperTagger
	// Papers maps "topic-subtopic" to a dedicated lister; everything else goes to Fallback.
	Papers     map[string]ports.PaperLister
	Fallback   ports.PaperLister
	Feeds      ports.FeedReader
	Market     ports.FeedReader
	TrendLimit int
	Logger     *slog.Logger
}

// Briefs produces trend, feed, dev pulse and market briefs, at most once per logical day unless refreshed.
type Briefs struct {
	cache      *cache.Cache
	writer     ports.BriefWriter
	tagger     ports.PaperTagger
	papers     map[string]ports.PaperLister
	fallback   ports.PaperLister
	feeds      ports.FeedReader
	market     ports.FeedReader
	trendLimit int
	logger     *slog.Logger
}

// NewBriefs constructs the brief use case.
func NewBriefs(deps BriefsDeps) *Briefs {
	limit := deps.TrendLimit
	if limit <= 0 {
		limit = defaultTrendLimit
	}
	return &Briefs{
		cache:      deps.Cache,
		writer:     deps.Writer,
		tagger:     deps.Tagger,
		papers:     deps.Papers,
		fallback:   deps.Fallback,
		feeds:      deps.Feeds,
		market:     deps.Market,
		trendLimit: limit,
		logger:     logging.OrDiscard(deps.Logger),
	}
}

// TrendQuery selects the papers behind a trend brief. Zero fields take the defaults.
type TrendQuery struct {
	Topic    string
	Subtopic string
	Range    domain.Range
}

func (q TrendQuery) normalized() TrendQuery {
	q.Topic = strings.TrimSpace(q.Topic)
	if q.Topic == "" {
		q.Topic = DefaultTopic
	}
	q.Subtopic = strings.TrimSpace(q.Subtopic)
	if q.Subtopic == "" {
		q.Subtopic = DefaultSubtopic
	}
	if q.Range == "" {
		q.Range = domain.RangeMonth
	}
	return q
}

func (q TrendQuery) key() string {
	return fmt.Sprintf("trends/%s-%s-%s", q.Topic, q.Subtopic, q.Range)
}

// Trends returns the gaps and opportunities brief for q. refresh skips the cache read.
// Topics without a source give empty content.
func (b *Briefs) Trends(ctx context.Context, q TrendQuery, refresh bool) (string, error) {
	q = q.normalized()
	key := q.key()

	if content, ok := lookup(ctx, b, key, refresh, func(s string) bool { return s != "" }); ok {
		return content, nil
	}

	papers, err := b.list(ctx, q.Topic, q.Subtopic, q.Range, b.trendLimit)
	if errors.Is(err, domain.ErrUnknownTopic) {
		b.logger.Info("no paper source for topic", "topic", q.Topic, "subtopic", q.Subtopic)
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(papers) == 0 {
		return noPapersMessage, nil
	}

	content, err := b.writer.TrendBrief(ctx, q.Topic+"/"+q.Subtopic, q.Range, papers)
	if err != nil {
		return "", err
	}
	save(ctx, b, key, content)
	return content, nil
}

// Feed returns up to ten recent tagged papers for topic and subtopic. Tagging failures fall back
// to generic tags so the feed is never blocked on the model.
func (b *Briefs) Feed(ctx context.Context, topic, subtopic string, refresh bool) ([]domain.FeedPaper, error) {
	q := TrendQuery{Topic: topic, Subtopic: subtopic, Range: feedWindow}.normalized()
	key := fmt.Sprintf("feed/%s-%s", q.Topic, q.Subtopic)

	if papers, ok := lookup(ctx, b, key, refresh, func(p []domain.FeedPaper) bool { return len(p) > 0 }); ok {
		return papers, nil
	}

	listed, err := b.list(ctx, q.Topic, q.Subtopic, q.Range, feedLimit)
	if errors.Is(err, domain.ErrUnknownTopic) {
		return []domain.FeedPaper{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(listed) == 0 {
		return []domain.FeedPaper{}, nil
	}

	papers := tagPapers(listed, b.tags(ctx, listed))
	save(ctx, b, key, papers)
	return papers, nil
}

// DevPulse returns the developer brief built from the configured feeds.
func (b *Briefs) DevPulse(ctx context.Context, refresh bool) (string, error) {
	return b.feedBrief(ctx, devPulseKey, b.feeds, refresh, b.writer.DevPulseBrief)
}

// MarketTrends returns the industry brief built from the news feeds.
func (b *Briefs) MarketTrends(ctx context.Context, refresh bool) (string, error) {
	return b.feedBrief(ctx, marketTrendsKey, b.market, refresh, b.writer.MarketBrief)
}

func (b *Briefs) feedBrief(
	ctx context.Context,
	key string,
	reader ports.FeedReader,
	refresh bool,
	write func(context.Context, []domain.FeedItem) (string, error),
) (string, error) {
	if content, ok := lookup(ctx, b, key, refresh, func(s string) bool { return s != "" }); ok {
		return content, nil
	}
	if reader == nil {
		return "", nil
	}

	items, err := reader.Read(ctx)
	if err != nil {
		return "", fmt.Errorf("read feeds: %w", err)
	}
	if len(items) == 0 {
		return "", nil
	}

	content, err := write(ctx, items)
	if err != nil {
		return "", err
	}
	save(ctx, b, key, content)
	return content, nil
}

func (b *Briefs) list(ctx context.Context, topic, subtopic string, window domain.Range, limit int) ([]domain.ListedPaper, error) {
	lister := b.papers[topic+"-"+subtopic]
	if lister == nil {
		lister = b.fallback
	}
	if lister == nil {
		return nil, fmt.Errorf("%w: %s/%s", domain.ErrUnknownTopic, topic, subtopic)
	}
	papers, err := lister.RecentPapers(ctx, topic, subtopic, window, limit)
	if err != nil {
		return nil, fmt.Errorf("recent papers %s/%s: %w", topic, subtopic, err)
	}
	return papers, nil
}

func (b *Briefs) tags(ctx context.Context, papers []domain.ListedPaper) []domain.PaperTags {
	if b.tagger == nil {
		return nil
	}
	tags, err := b.tagger.TagPapers(ctx, papers)
	if err != nil {
		b.logger.Warn("tagging failed, using default tags", "papers", len(papers), "error", err)
		return nil
	}
	return tags
}

func tagPapers(listed []domain.ListedPaper, tags []domain.PaperTags) []domain.FeedPaper {
	papers := make([]domain.FeedPaper, 0, len(listed))
	for i, p := range listed {
		var tag domain.PaperTags
		if i < len(tags) {
			tag = tags[i]
		}
		if tag.MLTag == "" {
			tag.MLTag = fallbackMLTag
		}
		if tag.AppTag == "" {
			tag.AppTag = fallbackAppTag
		}
		if tag.Description == "" {
			tag.Description = clip(p.Abstract, descriptionLen)
		}

		published := ""
		if !p.PublishedAt.IsZero() {
			published = p.PublishedAt.UTC().Format(time.RFC3339)
		}
		papers = append(papers, domain.FeedPaper{
			ID:          p.ID,
			Title:       p.Title,
			Authors:     orEmpty(p.Authors),
			Abstract:    p.Abstract,
			Description: tag.Description,
			MLTag:       tag.MLTag,
			AppTag:      tag.AppTag,
			ArxivURL:    p.URL,
			PDFURL:      p.PDFURL,
			PublishedAt: published,
			MediaURLs:   orEmpty(p.MediaURLs),
			Thumbnail:   p.Thumbnail,
			Source:      p.Source,
		})
	}
	return papers
}

// lookup reports a usable cache hit. Read failures count as misses.
func lookup[T any](ctx context.Context, b *Briefs, key string, refresh bool, usable func(T) bool) (T, bool) {
	var zero T
	if refresh || b.cache == nil {
		return zero, false
	}
	v, ok, err := cache.Get[T](ctx, b.cache, key)
	if err != nil {
		b.logger.Warn("cache read failed", "key", key, "error", err)
		return zero, false
	}
	if !ok || !usable(v) {
		return zero, false
	}
	b.logger.Debug("cache hit", "key", key)
	return v, true
}

func save[T any](ctx context.Context, b *Briefs, key string, v T) {
	if b.cache == nil {
		return
	}
	if err := cache.Set(ctx, b.cache, key, v); err != nil {
		b.logger.Warn("cache write failed", "key", key, "error", err)
	}
}

func clip(s string, n int) string {
	s = strings.TrimSpace(s)
	if runes := []rune(s); len(runes) > n {
		return strings.TrimSpace(string(runes[:n]))
	}
	return s
}

func orEmpty(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
