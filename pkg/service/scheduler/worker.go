package scheduler

import (
	"context"
	"time"

	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

// RecheckFunc runs the full recheck pipeline for one due user
type RecheckFunc func(ctx context.Context, userID types.UserID) error

// Worker polls for due users and drives their rechecks in the background
//
// Architecture assumptions:
// - Single server instance (no distributed locking)
// - For future horizontal scaling, implement distributed locking or leader election
type Worker struct {
	scheduler *Scheduler
	recheck   RecheckFunc
	interval  time.Duration
	batch     int
	stopCh    chan struct{}
	doneCh    chan struct{}
}

// NewWorker creates a background recheck worker polling every interval for
// up to batch due users
func NewWorker(scheduler *Scheduler, recheck RecheckFunc, interval time.Duration, batch int) *Worker {
	return &Worker{
		scheduler: scheduler,
		recheck:   recheck,
		interval:  interval,
		batch:     batch,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}
}

// Start begins the background recheck loop. Does not block server startup.
func (w *Worker) Start(ctx context.Context) error {
	logging.From(ctx).Info("recheck worker starting",
		"interval", w.interval.String(),
		"batch", w.batch)

	go w.run(ctx)

	return nil
}

// Stop signals the worker to stop and waits for completion
func (w *Worker) Stop() {
	logging.Default().Info("recheck worker stopping")
	close(w.stopCh)
	<-w.doneCh
	logging.Default().Info("recheck worker stopped")
}

// run is the main worker loop (runs in goroutine)
func (w *Worker) run(ctx context.Context) {
	defer close(w.doneCh)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := w.cycle(ctx); err != nil {
				// Log error but continue worker
				logging.From(ctx).Error("recheck cycle failed (will retry next interval)",
					"error", err.Error())
			}

		case <-w.stopCh:
			logging.From(ctx).Info("recheck worker received stop signal")
			return

		case <-ctx.Done():
			logging.From(ctx).Info("recheck worker context cancelled")
			return
		}
	}
}

// cycle runs one poll: fetch due users, recheck each in turn. A per-user
// failure is logged and does not abort the cycle.
func (w *Worker) cycle(ctx context.Context) error {
	startTime := time.Now()

	due, err := w.scheduler.GetDue(ctx, w.batch)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	logging.From(ctx).Info("recheck cycle starting", "due", len(due))

	var failed int
	for _, userID := range due {
		select {
		case <-w.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		if err := w.recheck(ctx, userID); err != nil {
			failed++
			logging.From(ctx).Error("recheck failed",
				"user_id", userID, "error", err.Error())
		}
	}

	logging.From(ctx).Info("recheck cycle completed",
		"due", len(due),
		"failed", failed,
		"duration", time.Since(startTime).String())

	return nil
}
