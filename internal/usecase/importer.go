package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

const (
	dateLayout         = "2006-01-02"
	defaultConcurrency = 3
)

// ImporterDeps wires the driven adapters used by the import orchestrator.
type ImporterDeps struct {
	Store       ports.PaperStore
	Resolver    ports.MetadataResolver
	Downloader  ports.PDFDownloader
	Summarizer  ports.Summarizer
	Concurrency int
	Logger      *slog.Logger
	Now         func() time.Time
}

// Importer turns paper ids into persisted summaries, at most once per id.
type Importer struct {
	store       ports.PaperStore
	resolver    ports.MetadataResolver
	downloader  ports.PDFDownloader
	summarizer  ports.Summarizer
	concurrency int
	logger      *slog.Logger
	now         func() time.Time

	inflight singleflight.Group
}

// NewImporter constructs the orchestrator.
func NewImporter(deps ImporterDeps) *Importer {
	concurrency := deps.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	return &Importer{
		store:       deps.Store,
		resolver:    deps.Resolver,
		downloader:  deps.Downloader,
		summarizer:  deps.Summarizer,
		concurrency: concurrency,
		logger:      logging.OrDiscard(deps.Logger),
		now:         now,
	}
}

// Today is the date partition new imports are written under.
func (i *Importer) Today() string {
	return i.now().UTC().Format(dateLayout)
}

// ImportPaper returns the stored summary for id, importing it first when absent.
// Concurrent calls for the same id share one import. The shared import keeps the
// caller's context values but not its cancellation; adapters enforce their own timeouts.
func (i *Importer) ImportPaper(ctx context.Context, id string) (domain.PaperSummary, error) {
	work := context.WithoutCancel(ctx)
	v, err, _ := i.inflight.Do(id, func() (any, error) {
		return i.importPaper(work, id)
	})
	if err != nil {
		return domain.PaperSummary{}, err
	}
	return v.(domain.PaperSummary), nil
}

func (i *Importer) importPaper(ctx context.Context, id string) (domain.PaperSummary, error) {
	existing, err := i.store.FindPaperByID(ctx, id)
	if err != nil {
		return domain.PaperSummary{}, fmt.Errorf("lookup paper %s: %w", id, err)
	}
	if existing != nil {
		i.logger.Info("paper already imported", "id", id, "date", existing.Date)
		return existing.Paper, nil
	}

	date := i.Today()

	paper, err := i.resolver.Resolve(ctx, id)
	if err != nil {
		i.logger.Warn("metadata unavailable, using synthetic record", "id", id, "error", err)
		paper = i.resolver.Synthetic(id)
	}

	i.logger.Info("downloading pdf", "id", id, "url", paper.PDFURL)
	path, err := i.downloader.Download(ctx, paper.PDFURL, paper.ID)
	if err != nil {
		return domain.PaperSummary{}, fmt.Errorf("download pdf %s: %w", id, err)
	}
	defer func() {
		if err := i.downloader.Remove(path); err != nil {
			i.logger.Warn("remove pdf", "id", id, "path", path, "error", err)
		}
	}()

	pdf, err := os.ReadFile(path)
	if err != nil {
		return domain.PaperSummary{}, fmt.Errorf("read pdf %s: %w", id, err)
	}

	i.logger.Info("summarizing paper", "id", id, "bytes", len(pdf))
	summary, err := i.summarizer.Summarize(ctx, pdf, paper)
	if err != nil {
		return domain.PaperSummary{}, fmt.Errorf("summarize %s: %w", id, err)
	}

	if err := i.store.SavePaper(ctx, date, summary); err != nil {
		return domain.PaperSummary{}, fmt.Errorf("save paper %s: %w", id, err)
	}
	if err := i.store.AddPaperToDay(ctx, date, summary.ID, i.now().UTC()); err != nil {
		return domain.PaperSummary{}, fmt.Errorf("update day %s: %w", date, err)
	}

	i.logger.Info("imported paper", "id", id, "date", date)
	return summary, nil
}

// BatchImport imports ids in windows of concurrency, waiting for each window to settle
// before starting the next. Every id ends in exactly one bucket of the result.
// A started batch runs to completion even if ctx is cancelled.
func (i *Importer) BatchImport(ctx context.Context, ids []string, concurrency int) domain.BatchResult {
	ctx = context.WithoutCancel(ctx)
	if concurrency <= 0 {
		concurrency = i.concurrency
	}
	result := domain.BatchResult{
		Warmed:  []string{},
		Failed:  []domain.ImportFailure{},
		Skipped: []string{},
	}

	pending := make([]string, 0, len(ids))
	for _, id := range ids {
		existing, err := i.store.FindPaperByID(ctx, id)
		switch {
		case err != nil:
			i.logger.Error("batch pre-check failed", "id", id, "error", err)
			result.Failed = append(result.Failed, domain.ImportFailure{ID: id, Error: err.Error()})
		case existing != nil:
			result.Skipped = append(result.Skipped, id)
		default:
			pending = append(pending, id)
		}
	}

	if len(pending) == 0 {
		i.logger.Info("all papers already imported", "skipped", len(result.Skipped), "failed", len(result.Failed))
		return result
	}

	i.logger.Info("batch importing papers", "total", len(pending), "concurrency", concurrency)

	for start := 0; start < len(pending); start += concurrency {
		chunk := pending[start:min(start+concurrency, len(pending))]
		errs := make([]error, len(chunk))

		var wg sync.WaitGroup
		for j, id := range chunk {
			wg.Go(func() {
				errs[j] = i.importSafely(ctx, id)
			})
		}
		wg.Wait()

		for j, id := range chunk {
			if errs[j] != nil {
				i.logger.Error("batch import failed for paper", "id", id, "error", errs[j])
				result.Failed = append(result.Failed, domain.ImportFailure{ID: id, Error: errs[j].Error()})
				continue
			}
			result.Warmed = append(result.Warmed, id)
		}
	}

	i.logger.Info("batch import complete",
		"warmed", len(result.Warmed),
		"failed", len(result.Failed),
		"skipped", len(result.Skipped))
	return result
}

func (i *Importer) importSafely(ctx context.Context, id string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("import %s panicked: %v", id, r)
		}
	}()
	_, err = i.ImportPaper(ctx, id)
	return err
}
