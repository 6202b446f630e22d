package scheduler_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/repository/memory"
	"github.com/guildops/tierkeeper/pkg/service/scheduler"
)

func TestWorkerRechecksDueUser(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := scheduler.New(repo, scheduler.DefaultCadence())

	gt.NoError(t, repo.Verification().Put(ctx, verifiedState("U1", "acme")))

	var calls atomic.Int32
	recheck := func(ctx context.Context, userID types.UserID) error {
		calls.Add(1)
		gt.Value(t, userID).Equal(types.UserID("U1"))
		// Reschedule so the next cycle does not pick the user up again
		return s.ScheduleSuccess(ctx, userID, verifiedState(userID, "acme"))
	}

	w := scheduler.NewWorker(s, recheck, 10*time.Millisecond, 10)
	gt.NoError(t, w.Start(ctx))

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()

	gt.Value(t, calls.Load()).Equal(int32(1))
}

func TestWorkerStopBeforeTick(t *testing.T) {
	ctx := context.Background()
	s := scheduler.New(memory.New(), scheduler.DefaultCadence())

	w := scheduler.NewWorker(s, func(ctx context.Context, userID types.UserID) error {
		t.Error("recheck should not run")
		return nil
	}, time.Hour, 10)

	gt.NoError(t, w.Start(ctx))
	w.Stop()
}

func TestWorkerSurvivesRecheckError(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s := scheduler.New(repo, scheduler.DefaultCadence())

	gt.NoError(t, repo.Verification().Put(ctx, verifiedState("U1", "acme")))

	var calls atomic.Int32
	recheck := func(ctx context.Context, userID types.UserID) error {
		if calls.Add(1) == 1 {
			return context.DeadlineExceeded
		}
		return s.ScheduleSuccess(ctx, userID, verifiedState(userID, "acme"))
	}

	w := scheduler.NewWorker(s, recheck, 10*time.Millisecond, 10)
	gt.NoError(t, w.Start(ctx))

	deadline := time.Now().Add(2 * time.Second)
	for calls.Load() < 2 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	w.Stop()

	gt.Number(t, calls.Load()).GreaterOrEqual(2)
}
