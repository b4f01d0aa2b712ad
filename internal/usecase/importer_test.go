package usecase

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/infrastructure/storage"
	"PaperDigest/internal/ports"
)

var fixedNow = time.Date(2025, time.March, 4, 12, 0, 0, 0, time.UTC)

const today = "2025-03-04"

type fakeResolver struct {
	papers map[string]domain.FetchedPaper
	delay  time.Duration

	calls    atomic.Int32
	inflight atomic.Int32
	peak     atomic.Int32
}

func (f *fakeResolver) Resolve(_ context.Context, id string) (domain.FetchedPaper, error) {
	f.calls.Add(1)
	n := f.inflight.Add(1)
	defer f.inflight.Add(-1)
	for {
		peak := f.peak.Load()
		if n <= peak || f.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	paper, ok := f.papers[id]
	if !ok {
		return domain.FetchedPaper{}, fmt.Errorf("%s: not found", id)
	}
	return paper, nil
}

func (f *fakeResolver) Synthetic(id string) domain.FetchedPaper {
	return domain.FetchedPaper{
		ID:       id,
		Title:    id,
		Authors:  []string{},
		ArxivURL: "https://arxiv.org/abs/" + id,
		PDFURL:   "https://arxiv.org/pdf/" + id,
	}
}

type fakeDownloader struct {
	dir  string
	fail map[string]bool

	mu    sync.Mutex
	paths []string
}

func (f *fakeDownloader) Download(_ context.Context, pdfURL, id string) (string, error) {
	if f.fail[id] {
		return "", fmt.Errorf("download %s: 503 Service Unavailable", pdfURL)
	}
	file, err := os.CreateTemp(f.dir, "paper_*.pdf")
	if err != nil {
		return "", err
	}
	defer file.Close()
	if _, err := file.WriteString("%PDF-" + id); err != nil {
		return "", err
	}

	f.mu.Lock()
	f.paths = append(f.paths, file.Name())
	f.mu.Unlock()
	return file.Name(), nil
}

func (f *fakeDownloader) Remove(path string) error {
	return os.Remove(path)
}

type fakeSummarizer struct {
	fail  map[string]bool
	calls atomic.Int32

	mu   sync.Mutex
	pdfs map[string]string
}

func (f *fakeSummarizer) Summarize(_ context.Context, pdf []byte, paper domain.FetchedPaper) (domain.PaperSummary, error) {
	f.calls.Add(1)
	f.mu.Lock()
	if f.pdfs == nil {
		f.pdfs = map[string]string{}
	}
	f.pdfs[paper.ID] = string(pdf)
	f.mu.Unlock()

	if f.fail[paper.ID] {
		return domain.PaperSummary{}, errors.New("malformed model response")
	}
	return domain.PaperSummary{
		ID:          paper.ID,
		Title:       paper.Title,
		Authors:     paper.Authors,
		ArxivURL:    paper.ArxivURL,
		PDFURL:      paper.PDFURL,
		Summary:     "summary of " + paper.Title,
		KeyFindings: []string{},
		Diagrams:    []domain.DiagramDescription{},
		TLDR:        "tldr " + paper.ID,
		PublishedAt: paper.PublishedAt,
		FetchedAt:   fixedNow,
		MediaURLs:   []string{},
	}, nil
}

type importerFixture struct {
	store      *storage.FileStore
	resolver   *fakeResolver
	downloader *fakeDownloader
	summarizer *fakeSummarizer
	importer   *Importer
}

func newImporterFixture(t *testing.T, ids ...string) *importerFixture {
	t.Helper()

	store, err := storage.NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}

	papers := map[string]domain.FetchedPaper{}
	for _, id := range ids {
		papers[id] = domain.FetchedPaper{
			ID:       id,
			Title:    "Title " + id,
			Authors:  []string{"A"},
			ArxivURL: "https://arxiv.org/abs/" + id,
			PDFURL:   "https://arxiv.org/pdf/" + id,
		}
	}

	f := &importerFixture{
		store:      store,
		resolver:   &fakeResolver{papers: papers},
		downloader: &fakeDownloader{dir: t.TempDir(), fail: map[string]bool{}},
		summarizer: &fakeSummarizer{fail: map[string]bool{}},
	}
	f.importer = NewImporter(ImporterDeps{
		Store:      store,
		Resolver:   f.resolver,
		Downloader: f.downloader,
		Summarizer: f.summarizer,
		Now:        func() time.Time { return fixedNow },
	})
	return f
}

func (f *importerFixture) assertNoTempFiles(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.downloader.dir)
	if err != nil {
		t.Fatalf("read temp dir: %v", err)
	}
	if len(entries) != 0 {
		t.Fatalf("temporary pdfs left behind: %v", entries)
	}
}

func TestImportPaperExampleScenario(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t)
	f.resolver.papers["2501.0001"] = domain.FetchedPaper{
		ID:      "2501.0001",
		Title:   "X",
		Authors: []string{"A"},
		PDFURL:  "https://arxiv.org/pdf/2501.0001",
	}
	ctx := context.Background()

	summary, err := f.importer.ImportPaper(ctx, "2501.0001")
	if err != nil {
		t.Fatalf("ImportPaper: %v", err)
	}
	if summary.ID != "2501.0001" || summary.Title != "X" {
		t.Fatalf("unexpected summary: %+v", summary)
	}

	meta, err := f.store.GetDayMeta(ctx, today)
	if err != nil || meta == nil {
		t.Fatalf("GetDayMeta: %v, %v", meta, err)
	}
	if !meta.Contains("2501.0001") {
		t.Fatalf("day meta should list the paper: %+v", meta)
	}

	stored, err := f.store.GetPaper(ctx, today, "2501.0001")
	if err != nil || stored == nil || stored.Title != "X" {
		t.Fatalf("paper not persisted: %v, %v", stored, err)
	}
	if got := f.summarizer.pdfs["2501.0001"]; got != "%PDF-2501.0001" {
		t.Fatalf("summarizer received %q", got)
	}
	f.assertNoTempFiles(t)
}

func TestImportPaperIsIdempotent(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t, "2501.0002")
	ctx := context.Background()

	first, err := f.importer.ImportPaper(ctx, "2501.0002")
	if err != nil {
		t.Fatalf("first import: %v", err)
	}
	second, err := f.importer.ImportPaper(ctx, "2501.0002")
	if err != nil {
		t.Fatalf("second import: %v", err)
	}

	if f.summarizer.calls.Load() != 1 || f.resolver.calls.Load() != 1 {
		t.Fatalf("expected one summarize and one resolve, got %d and %d", f.summarizer.calls.Load(), f.resolver.calls.Load())
	}
	if first.ID != second.ID || first.Title != second.Title || first.TLDR != second.TLDR || !first.FetchedAt.Equal(second.FetchedAt) {
		t.Fatalf("second import differs:\n%+v\n%+v", first, second)
	}
}

func TestImportPaperConcurrentCallsShareWork(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t, "2501.0003")
	f.resolver.delay = 20 * time.Millisecond

	var wg sync.WaitGroup
	for range 5 {
		wg.Go(func() {
			if _, err := f.importer.ImportPaper(context.Background(), "2501.0003"); err != nil {
				t.Errorf("ImportPaper: %v", err)
			}
		})
	}
	wg.Wait()

	if n := f.summarizer.calls.Load(); n != 1 {
		t.Fatalf("expected a single summarize call, got %d", n)
	}
}

func TestImportPaperFallsBackToSyntheticMetadata(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t)

	summary, err := f.importer.ImportPaper(context.Background(), "2501.0404")
	if err != nil {
		t.Fatalf("ImportPaper: %v", err)
	}
	if summary.Title != "2501.0404" || len(summary.Authors) != 0 {
		t.Fatalf("expected synthetic metadata, got %+v", summary)
	}
}

func TestImportPaperCleansUpOnSummarizeFailure(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t, "2501.0005")
	f.summarizer.fail["2501.0005"] = true
	ctx := context.Background()

	if _, err := f.importer.ImportPaper(ctx, "2501.0005"); err == nil {
		t.Fatal("expected summarize error")
	}
	if len(f.downloader.paths) != 1 {
		t.Fatalf("expected one download, got %v", f.downloader.paths)
	}
	f.assertNoTempFiles(t)

	exists, err := f.store.DayExists(ctx, today)
	if err != nil || exists {
		t.Fatalf("failed import must not create the day: %v, %v", exists, err)
	}
}

func TestImportPaperMergesDayMeta(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t, "A", "B")
	ctx := context.Background()

	for _, id := range []string{"A", "B"} {
		if _, err := f.importer.ImportPaper(ctx, id); err != nil {
			t.Fatalf("ImportPaper %s: %v", id, err)
		}
	}

	meta, err := f.store.GetDayMeta(ctx, today)
	if err != nil || meta == nil {
		t.Fatalf("GetDayMeta: %v, %v", meta, err)
	}
	if !meta.Contains("A") || !meta.Contains("B") {
		t.Fatalf("both ids should be present: %v", meta.PaperIDs)
	}
}

func TestBatchImportPartialFailure(t *testing.T) {
	t.Parallel()

	ids := []string{"p1", "p2", "p3", "p4", "p5"}
	f := newImporterFixture(t, ids...)
	f.downloader.fail["p3"] = true

	result := f.importer.BatchImport(context.Background(), ids, 2)

	if result.Total() != len(ids) {
		t.Fatalf("every id must be accounted for: %+v", result)
	}
	if got := result.FailedIDs(); !slices.Equal(got, []string{"p3"}) {
		t.Fatalf("unexpected failed ids: %v", got)
	}
	if result.Failed[0].Error == "" {
		t.Fatal("failure should carry a message")
	}
	if !slices.Equal(result.Warmed, []string{"p1", "p2", "p4", "p5"}) {
		t.Fatalf("unexpected warmed ids: %v", result.Warmed)
	}
	if len(result.Skipped) != 0 {
		t.Fatalf("nothing should be skipped: %v", result.Skipped)
	}
	f.assertNoTempFiles(t)
}

func TestBatchImportRespectsConcurrency(t *testing.T) {
	t.Parallel()

	ids := []string{"c1", "c2", "c3", "c4", "c5", "c6", "c7"}
	f := newImporterFixture(t, ids...)
	f.resolver.delay = 15 * time.Millisecond

	result := f.importer.BatchImport(context.Background(), ids, 3)

	if len(result.Warmed) != len(ids) {
		t.Fatalf("expected all warmed: %+v", result)
	}
	if peak := f.resolver.peak.Load(); peak > 3 {
		t.Fatalf("at most 3 imports may run at once, saw %d", peak)
	}
	if calls := f.resolver.calls.Load(); calls != int32(len(ids)) {
		t.Fatalf("expected %d resolver calls, got %d", len(ids), calls)
	}
}

func TestBatchImportSkipsStoredPapers(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t, "old", "new")
	ctx := context.Background()

	if err := f.store.SavePaper(ctx, "2025-01-01", domain.PaperSummary{ID: "old", Title: "Old"}); err != nil {
		t.Fatalf("SavePaper: %v", err)
	}
	if err := f.store.AddPaperToDay(ctx, "2025-01-01", "old", fixedNow); err != nil {
		t.Fatalf("AddPaperToDay: %v", err)
	}

	result := f.importer.BatchImport(ctx, []string{"old"}, 3)
	if !slices.Equal(result.Skipped, []string{"old"}) || len(result.Warmed) != 0 || len(result.Failed) != 0 {
		t.Fatalf("unexpected result: %+v", result)
	}
	if f.resolver.calls.Load() != 0 || f.summarizer.calls.Load() != 0 {
		t.Fatal("skipped ids must not reach the resolver or summarizer")
	}

	result = f.importer.BatchImport(ctx, []string{"old", "new"}, 0)
	if !slices.Equal(result.Skipped, []string{"old"}) || !slices.Equal(result.Warmed, []string{"new"}) {
		t.Fatalf("unexpected result: %+v", result)
	}
}

type failingLookupStore struct {
	*storage.FileStore
	failID string
}

func (s failingLookupStore) FindPaperByID(ctx context.Context, id string) (*domain.LocatedPaper, error) {
	if id == s.failID {
		return nil, errors.New("storage offline")
	}
	return s.FileStore.FindPaperByID(ctx, id)
}

func TestBatchImportPreCheckErrorIsFailure(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t, "ok", "bad")
	importer := NewImporter(ImporterDeps{
		Store:      failingLookupStore{FileStore: f.store, failID: "bad"},
		Resolver:   f.resolver,
		Downloader: f.downloader,
		Summarizer: f.summarizer,
		Now:        func() time.Time { return fixedNow },
	})

	result := importer.BatchImport(context.Background(), []string{"ok", "bad"}, 2)
	if !slices.Equal(result.FailedIDs(), []string{"bad"}) || !slices.Equal(result.Warmed, []string{"ok"}) {
		t.Fatalf("unexpected result: %+v", result)
	}
}

type panickingSummarizer struct{}

func (panickingSummarizer) Summarize(context.Context, []byte, domain.FetchedPaper) (domain.PaperSummary, error) {
	panic("boom")
}

func TestBatchImportRecoversPanics(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t, "x")
	importer := NewImporter(ImporterDeps{
		Store:      f.store,
		Resolver:   f.resolver,
		Downloader: f.downloader,
		Summarizer: panickingSummarizer{},
		Now:        func() time.Time { return fixedNow },
	})

	result := importer.BatchImport(context.Background(), []string{"x"}, 1)
	if !slices.Equal(result.FailedIDs(), []string{"x"}) {
		t.Fatalf("panic should become a failure: %+v", result)
	}
	f.assertNoTempFiles(t)
}

func TestTodayUsesUTC(t *testing.T) {
	t.Parallel()

	loc := time.FixedZone("ahead", 10*60*60)
	importer := NewImporter(ImporterDeps{Now: func() time.Time {
		return time.Date(2025, time.March, 5, 8, 0, 0, 0, loc)
	}})
	if got := importer.Today(); got != "2025-03-04" {
		t.Fatalf("Today() = %s", got)
	}
}

type slowSummarizer struct {
	*fakeSummarizer
	delay time.Duration
}

func (s slowSummarizer) Summarize(ctx context.Context, pdf []byte, paper domain.FetchedPaper) (domain.PaperSummary, error) {
	select {
	case <-time.After(s.delay):
	case <-ctx.Done():
		return domain.PaperSummary{}, ctx.Err()
	}
	return s.fakeSummarizer.Summarize(ctx, pdf, paper)
}

func (f *importerFixture) withSummarizer(s ports.Summarizer) *Importer {
	return NewImporter(ImporterDeps{
		Store:      f.store,
		Resolver:   f.resolver,
		Downloader: f.downloader,
		Summarizer: s,
		Now:        func() time.Time { return fixedNow },
	})
}

func TestImportPaperCancelledCallerDoesNotFailSharedImport(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t, "p1")
	importer := f.withSummarizer(slowSummarizer{fakeSummarizer: f.summarizer, delay: 50 * time.Millisecond})

	leaderCtx, cancel := context.WithCancel(context.Background())
	leaderErr := make(chan error, 1)
	go func() {
		_, err := importer.ImportPaper(leaderCtx, "p1")
		leaderErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	followerErr := make(chan error, 1)
	go func() {
		_, err := importer.ImportPaper(context.Background(), "p1")
		followerErr <- err
	}()

	time.Sleep(10 * time.Millisecond)
	cancel()

	if err := <-followerErr; err != nil {
		t.Fatalf("follower failed: %v", err)
	}
	if err := <-leaderErr; err != nil {
		t.Fatalf("leader failed: %v", err)
	}
	if n := f.summarizer.calls.Load(); n != 1 {
		t.Fatalf("expected one summarize call, got %d", n)
	}
	stored, err := f.store.GetPaper(context.Background(), today, "p1")
	if err != nil || stored == nil {
		t.Fatalf("paper not persisted: %v, %v", stored, err)
	}
}

func TestBatchImportFinishesAfterCancel(t *testing.T) {
	t.Parallel()

	ids := []string{"a", "b", "c", "d"}
	f := newImporterFixture(t, ids...)
	importer := f.withSummarizer(slowSummarizer{fakeSummarizer: f.summarizer, delay: 30 * time.Millisecond})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(20*time.Millisecond, cancel)
	defer cancel()

	result := importer.BatchImport(ctx, ids, 2)
	if !slices.Equal(result.Warmed, ids) || len(result.Failed) != 0 {
		t.Fatalf("cancelled batch should still import every id: %+v", result)
	}
}

type timingResolver struct {
	*fakeResolver
	slow map[string]time.Duration

	mu       sync.Mutex
	started  map[string]time.Time
	finished map[string]time.Time
}

func (r *timingResolver) Resolve(ctx context.Context, id string) (domain.FetchedPaper, error) {
	r.mu.Lock()
	r.started[id] = time.Now()
	r.mu.Unlock()

	time.Sleep(r.slow[id])
	paper, err := r.fakeResolver.Resolve(ctx, id)

	r.mu.Lock()
	r.finished[id] = time.Now()
	r.mu.Unlock()
	return paper, err
}

func TestBatchImportWindowsSettleInOrder(t *testing.T) {
	t.Parallel()

	ids := []string{"w1a", "w1b", "w2a", "w2b"}
	f := newImporterFixture(t, ids...)
	resolver := &timingResolver{
		fakeResolver: f.resolver,
		slow:         map[string]time.Duration{"w1b": 60 * time.Millisecond},
		started:      map[string]time.Time{},
		finished:     map[string]time.Time{},
	}
	importer := NewImporter(ImporterDeps{
		Store:      f.store,
		Resolver:   resolver,
		Downloader: f.downloader,
		Summarizer: f.summarizer,
		Now:        func() time.Time { return fixedNow },
	})

	result := importer.BatchImport(context.Background(), ids, 2)
	if len(result.Warmed) != len(ids) {
		t.Fatalf("expected all warmed: %+v", result)
	}

	slowDone := resolver.finished["w1b"]
	for _, id := range []string{"w2a", "w2b"} {
		if resolver.started[id].Before(slowDone) {
			t.Fatalf("%s started at %v before window 1 settled at %v", id, resolver.started[id], slowDone)
		}
	}
}
