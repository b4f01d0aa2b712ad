package usecase

import (
	"context"
	"log/slog"
	"time"

	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

// Scheduler wires the timing driver with the daily pipeline.
type Scheduler struct {
	driver   ports.Scheduler
	pipeline *Pipeline
	logger   *slog.Logger
}

// NewScheduler returns a helper to start/stop the daily job.
func NewScheduler(driver ports.Scheduler, pipeline *Pipeline, logger *slog.Logger) *Scheduler {
	return &Scheduler{driver: driver, pipeline: pipeline, logger: logging.OrDiscard(logger)}
}

// Start registers the pipeline with the driver.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.driver == nil || s.pipeline == nil {
		return nil
	}

	job := func(trigger time.Time) {
		report, err := s.pipeline.ProcessDay(ctx, trigger, false)
		if err != nil {
			s.logger.Error("daily job failed", "trigger", trigger, "error", err)
			return
		}
		s.logger.Info("daily job finished",
			"date", report.Date,
			"already_exists", report.AlreadyExists,
			"warmed", len(report.Result.Warmed),
			"failed", len(report.Result.Failed))
	}

	return s.driver.Start(ctx, job)
}

// Stop gracefully tears down the underlying driver.
func (s *Scheduler) Stop(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}

	return s.driver.Stop(ctx)
}
