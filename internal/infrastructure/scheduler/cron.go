package scheduler

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"PaperDigest/internal/logging"
	"PaperDigest/internal/ports"
)

// RolloverScheduler runs a job once at start and then at every instant returned by next.
type RolloverScheduler struct {
	next   func(time.Time) time.Time
	now    func() time.Time
	logger *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

var _ ports.Scheduler = (*RolloverScheduler)(nil)

// NewRolloverScheduler builds a scheduler firing at the boundaries computed by next,
// typically the cache rollover.
func NewRolloverScheduler(next func(time.Time) time.Time, logger *slog.Logger) *RolloverScheduler {
	return &RolloverScheduler{
		next:   next,
		now:    time.Now,
		logger: logging.OrDiscard(logger),
	}
}

// Start launches the timer loop; calling it twice is a no-op.
func (s *RolloverScheduler) Start(ctx context.Context, job func(time.Time)) error {
	if job == nil {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stop != nil {
		return nil
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	s.stop, s.done = stop, done

	go func() {
		defer close(done)
		job(s.now())
		for {
			at := s.next(s.now())
			s.logger.Info("next run scheduled", "at", at)
			timer := time.NewTimer(time.Until(at))
			select {
			case t := <-timer.C:
				job(t)
			case <-ctx.Done():
				timer.Stop()
				return
			case <-stop:
				timer.Stop()
				return
			}
		}
	}()

	return nil
}

// Stop halts the loop and waits for a running job to return or ctx to expire.
func (s *RolloverScheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	stop, done := s.stop, s.done
	s.stop, s.done = nil, nil
	s.mu.Unlock()

	if stop == nil {
		return nil
	}
	close(stop)

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
