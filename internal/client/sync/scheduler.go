package sync

import (
	"context"
	"errors"
	"time"

	"github.com/avaluotech/fieldsync/internal/logging"
)

// Runner is the unit the scheduler drives; *Orchestrator satisfies it.
type Runner interface {
	RunCycle(ctx context.Context) (*Summary, error)
}

// Scheduler fires sync cycles on a fixed interval and on demand. Capture
// flows call TriggerNow after enqueueing so fresh items do not wait a full
// period; a trigger arriving mid-cycle is coalesced into one pending run.
type Scheduler struct {
	runner   Runner
	interval time.Duration
	logger   logging.Logger
	trigger  chan struct{}
}

// NewScheduler builds a Scheduler. interval must be positive.
func NewScheduler(runner Runner, interval time.Duration, logger logging.Logger) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Scheduler{
		runner:   runner,
		interval: interval,
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
}

// TriggerNow requests an immediate cycle. Non-blocking; if a trigger is
// already pending it is absorbed.
func (s *Scheduler) TriggerNow() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Run loops until ctx is cancelled. Cycle failures are logged and the loop
// keeps going; an ErrCycleInProgress result means an on-demand run overlapped
// the ticker and is ignored.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info(ctx, "scheduler stopped")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		case <-s.trigger:
			s.runOnce(ctx)
		}
	}
}

func (s *Scheduler) runOnce(ctx context.Context) {
	summary, err := s.runner.RunCycle(ctx)
	switch {
	case errors.Is(err, ErrCycleInProgress):
		s.logger.Debug(ctx, "cycle already running, skipping")
	case errors.Is(err, context.Canceled):
	case err != nil:
		s.logger.Error(ctx, "sync cycle error", "error", err)
	default:
		if summary.Synced > 0 || summary.Failed > 0 {
			s.logger.Info(ctx, "scheduled sync done",
				"synced", summary.Synced, "failed", summary.Failed, "remaining", summary.Remaining)
		}
	}
}
