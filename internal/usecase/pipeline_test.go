package usecase

import (
	"context"
	"errors"
	"slices"
	"strings"
	"testing"
	"time"

	"PaperDigest/internal/ports"
)

type staticSource struct {
	ids []string
	err error
}

func (s staticSource) Candidates(context.Context, time.Time) ([]string, error) {
	return s.ids, s.err
}

type recordingNotifier struct {
	digests []string
}

func (n *recordingNotifier) PublishDigest(_ context.Context, digest string) error {
	n.digests = append(n.digests, digest)
	return nil
}

func TestPipelineProcessDay(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t, "h1", "h2", "a1", "a2")
	notifier := &recordingNotifier{}
	pipeline := NewPipeline(PipelineDeps{
		Store: f.store,
		Sources: []ports.CandidateSource{
			staticSource{ids: []string{"h1", "h2"}},
			staticSource{err: errors.New("listing down")},
			staticSource{ids: []string{"h2", "a1", "a2"}},
		},
		Importer:  f.importer,
		Notifier:  notifier,
		WarmLimit: 3,
	})
	ctx := context.Background()

	report, err := pipeline.ProcessDay(ctx, fixedNow, false)
	if err != nil {
		t.Fatalf("ProcessDay: %v", err)
	}
	if report.Date != today || report.AlreadyExists {
		t.Fatalf("unexpected report: %+v", report)
	}
	if !slices.Equal(report.Candidates, []string{"h1", "h2", "a1"}) {
		t.Fatalf("candidates should be deduped and capped: %v", report.Candidates)
	}
	if !slices.Equal(report.Result.Warmed, []string{"h1", "h2", "a1"}) {
		t.Fatalf("unexpected warmed: %+v", report.Result)
	}
	if len(notifier.digests) != 1 || !strings.Contains(notifier.digests[0], "- Title h1\ntldr h1") {
		t.Fatalf("unexpected digests: %q", notifier.digests)
	}

	again, err := pipeline.ProcessDay(ctx, fixedNow, false)
	if err != nil {
		t.Fatalf("second ProcessDay: %v", err)
	}
	if !again.AlreadyExists || again.Result.Total() != 0 {
		t.Fatalf("existing day should be left alone: %+v", again)
	}

	forced, err := pipeline.ProcessDay(ctx, fixedNow, true)
	if err != nil {
		t.Fatalf("forced ProcessDay: %v", err)
	}
	if !slices.Equal(forced.Result.Skipped, []string{"h1", "h2", "a1"}) {
		t.Fatalf("forced run should skip imported papers: %+v", forced.Result)
	}
	if f.summarizer.calls.Load() != 3 {
		t.Fatalf("expected 3 summaries, got %d", f.summarizer.calls.Load())
	}
	if len(notifier.digests) != 1 {
		t.Fatal("nothing new was warmed, no digest expected")
	}
}

func TestPipelineAllSourcesFail(t *testing.T) {
	t.Parallel()

	f := newImporterFixture(t)
	pipeline := NewPipeline(PipelineDeps{
		Store:    f.store,
		Sources:  []ports.CandidateSource{staticSource{err: errors.New("hf down")}},
		Importer: f.importer,
	})

	if _, err := pipeline.ProcessDay(context.Background(), fixedNow, false); err == nil || !strings.Contains(err.Error(), "hf down") {
		t.Fatalf("expected source error, got %v", err)
	}
}

func TestBuildDigestMessage(t *testing.T) {
	t.Parallel()

	if buildDigestMessage(nil) != "" {
		t.Fatal("empty digest expected")
	}
}
