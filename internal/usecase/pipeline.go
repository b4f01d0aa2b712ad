package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"PaperDigest/internal/domain"
	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

// PipelineDeps wires candidate discovery, the importer and the notifier into the daily job.
type PipelineDeps struct {
	Store     ports.PaperStore
	Sources   []ports.CandidateSource
	Importer  *Importer
	Notifier  ports.Notifier
	WarmLimit int
	Logger    *slog.Logger
}

// Pipeline implements the daily paper-warming workflow.
type Pipeline struct {
	store     ports.PaperStore
	sources   []ports.CandidateSource
	importer  *Importer
	notifier  ports.Notifier
	warmLimit int
	logger    *slog.Logger
}

// DayReport describes one run of the daily job.
type DayReport struct {
	Date          string             `json:"date"`
	AlreadyExists bool               `json:"alreadyExists"`
	Candidates    []string           `json:"candidates"`
	Result        domain.BatchResult `json:"result"`
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		store:     deps.Store,
		sources:   deps.Sources,
		importer:  deps.Importer,
		notifier:  deps.Notifier,
		warmLimit: deps.WarmLimit,
		logger:    logging.OrDiscard(deps.Logger),
	}
}

// ProcessDay discovers candidate papers for day and imports them. Unless force is set,
// a date partition that already exists is left alone.
func (p *Pipeline) ProcessDay(ctx context.Context, day time.Time, force bool) (DayReport, error) {
	report := DayReport{Date: p.importer.Today(), Candidates: []string{}}

	if !force {
		exists, err := p.store.DayExists(ctx, report.Date)
		if err != nil {
			return report, fmt.Errorf("check day %s: %w", report.Date, err)
		}
		if exists {
			p.logger.Info("papers already fetched", "date", report.Date)
			report.AlreadyExists = true
			return report, nil
		}
	}

	candidates, err := p.collect(ctx, day)
	if err != nil {
		return report, err
	}
	report.Candidates = candidates
	if len(candidates) == 0 {
		p.logger.Info("no candidate papers", "date", report.Date)
		return report, nil
	}

	report.Result = p.importer.BatchImport(ctx, candidates, 0)

	if p.notifier == nil || len(report.Result.Warmed) == 0 {
		return report, nil
	}

	papers := make([]domain.PaperSummary, 0, len(report.Result.Warmed))
	for _, id := range report.Result.Warmed {
		located, err := p.store.FindPaperByID(ctx, id)
		if err != nil {
			return report, fmt.Errorf("load paper %s: %w", id, err)
		}
		if located != nil {
			papers = append(papers, located.Paper)
		}
	}

	if err := p.notifier.PublishDigest(ctx, buildDigestMessage(papers)); err != nil {
		return report, fmt.Errorf("publish digest: %w", err)
	}
	return report, nil
}

// collect merges the candidate lists of every source in order, dropping duplicates.
// A failing source is skipped unless every source fails.
func (p *Pipeline) collect(ctx context.Context, day time.Time) ([]string, error) {
	seen := make(map[string]struct{})
	ids := make([]string, 0)
	var errs []error

	for _, source := range p.sources {
		found, err := source.Candidates(ctx, day)
		if err != nil {
			p.logger.Warn("candidate source failed", "error", err)
			errs = append(errs, err)
			continue
		}
		for _, id := range found {
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			ids = append(ids, id)
		}
	}

	if len(ids) == 0 && len(errs) > 0 && len(errs) == len(p.sources) {
		return nil, fmt.Errorf("collect candidates: %w", errors.Join(errs...))
	}
	if p.warmLimit > 0 && len(ids) > p.warmLimit {
		ids = ids[:p.warmLimit]
	}
	return ids, nil
}

func buildDigestMessage(papers []domain.PaperSummary) string {
	if len(papers) == 0 {
		return ""
	}

	var b strings.Builder
	for _, paper := range papers {
		fmt.Fprintf(&b, "- %s\n%s\n%s\n\n", paper.Title, paper.TLDR, paper.ArxivURL)
	}
	return strings.TrimRight(b.String(), "\n")
}
