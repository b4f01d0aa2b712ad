package ports

import (
	"context"
	"time"

	"PaperDigest/internal/domain"
)

// PaperStore persists date-partitioned paper summaries and their day metadata.
// Reads of missing resources return nil or empty results; write errors are returned as is.
type PaperStore interface {
	DayExists(ctx context.Context, date string) (bool, error)
	SavePaper(ctx context.Context, date string, paper domain.PaperSummary) error
	SaveDayMeta(ctx context.Context, meta domain.DayMeta) error
	// AddPaperToDay merges id into the day's paper list without dropping ids written concurrently.
	AddPaperToDay(ctx context.Context, date, id string, fetchedAt time.Time) error
	GetDayMeta(ctx context.Context, date string) (*domain.DayMeta, error)
	GetPaper(ctx context.Context, date, id string) (*domain.PaperSummary, error)
	GetPapersForDate(ctx context.Context, date string) ([]domain.PaperSummary, error)
	// GetAvailableDates returns every date with a DayMeta record, newest first.
	GetAvailableDates(ctx context.Context) ([]string, error)
	// FindPaperByID returns the copy under the newest date holding id.
	FindPaperByID(ctx context.Context, id string) (*domain.LocatedPaper, error)
}

// CacheStore keeps raw cache entries keyed by namespaced strings.
type CacheStore interface {
	GetCacheEntry(ctx context.Context, key string) (*domain.CacheEntry, error)
	SetCacheEntry(ctx context.Context, entry domain.CacheEntry) error
}

// Store is what a persistence backend provides.
type Store interface {
	PaperStore
	CacheStore
	Close(ctx context.Context) error
}

// MetadataResolver maps a paper id to catalog metadata.
type MetadataResolver interface {
	Resolve(ctx context.Context, id string) (domain.FetchedPaper, error)
	// Synthetic builds the placeholder record used when no catalog knows id.
	Synthetic(id string) domain.FetchedPaper
}

// PDFDownloader fetches a PDF into a scoped temporary file.
type PDFDownloader interface {
	Download(ctx context.Context, pdfURL, id string) (string, error)
	Remove(path string) error
}

// Summarizer turns PDF bytes plus metadata into a structured summary.
type Summarizer interface {
	Summarize(ctx context.Context, pdf []byte, paper domain.FetchedPaper) (domain.PaperSummary, error)
}

// TextGenerator produces short markdown briefs from a prompt.
type TextGenerator interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// BriefWriter turns recent papers and feed posts into short markdown briefs.
type BriefWriter interface {
	TrendBrief(ctx context.Context, topic string, window domain.Range, papers []domain.ListedPaper) (string, error)
	DevPulseBrief(ctx context.Context, items []domain.FeedItem) (string, error)
	MarketBrief(ctx context.Context, items []domain.FeedItem) (string, error)
}

// PaperTagger labels papers for the browse feed, results in input order.
type PaperTagger interface {
	TagPapers(ctx context.Context, papers []domain.ListedPaper) ([]domain.PaperTags, error)
}

// CandidateSource lists paper ids worth importing for a day.
type CandidateSource interface {
	Candidates(ctx context.Context, day time.Time) ([]string, error)
}

// PaperLister lists recent papers for a topic and subtopic, newest first.
// It returns domain.ErrUnknownTopic when it has nothing configured for them.
type PaperLister interface {
	RecentPapers(ctx context.Context, topic, subtopic string, window domain.Range, limit int) ([]domain.ListedPaper, error)
}

// FeedReader reads blog and newsletter feeds.
type FeedReader interface {
	Read(ctx context.Context) ([]domain.FeedItem, error)
}

// Notifier streams selected digests to Telegram or other channels.
type Notifier interface {
	PublishDigest(ctx context.Context, digest string) error
}

// Scheduler controls when the daily job executes.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
