package scheduler_test

import (
	"context"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/repository/memory"
	"github.com/guildops/tierkeeper/pkg/service/scheduler"
)

func newTestScheduler(t *testing.T, repo interfaces.Repository, randVal float64) (*scheduler.Scheduler, *time.Time) {
	t.Helper()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	s := scheduler.New(repo, scheduler.DefaultCadence(),
		scheduler.WithClock(func() time.Time { return now }),
		scheduler.WithRand(func() float64 { return randVal }),
	)
	return s, &now
}

func verifiedState(userID types.UserID, mainOrgs ...string) *model.VerificationState {
	return &model.VerificationState{
		UserID:   userID,
		Handle:   "alice",
		Moniker:  "Alice",
		MainOrgs: mainOrgs,
	}
}

func TestComputeNextRetryMainCadence(t *testing.T) {
	// randVal 0.5 makes the symmetric jitter collapse to zero
	s, now := newTestScheduler(t, memory.New(), 0.5)

	next := s.ComputeNextRetry(verifiedState("U1", "acme"), 0)
	gt.Value(t, next).Equal(now.Add(14 * 24 * time.Hour))
}

func TestComputeNextRetryJitterBounds(t *testing.T) {
	sLow, now := newTestScheduler(t, memory.New(), 0)
	next := sLow.ComputeNextRetry(verifiedState("U1", "acme"), 0)
	gt.Value(t, next).Equal(now.Add(14*24*time.Hour - 6*time.Hour))

	sHigh, now2 := newTestScheduler(t, memory.New(), 1)
	next = sHigh.ComputeNextRetry(verifiedState("U1", "acme"), 0)
	gt.Value(t, next).Equal(now2.Add(14*24*time.Hour + 6*time.Hour))
}

func TestComputeNextRetryTierCadences(t *testing.T) {
	s, now := newTestScheduler(t, memory.New(), 0.5)

	affiliate := &model.VerificationState{UserID: "U1", AffiliateOrgs: []string{"acme"}}
	gt.Value(t, s.ComputeNextRetry(affiliate, 0)).Equal(now.Add(7 * 24 * time.Hour))

	nonMember := &model.VerificationState{UserID: "U1"}
	gt.Value(t, s.ComputeNextRetry(nonMember, 0)).Equal(now.Add(3 * 24 * time.Hour))
}

func TestComputeNextRetryFailureBackoff(t *testing.T) {
	// randVal 0 removes the additive failure jitter
	s, now := newTestScheduler(t, memory.New(), 0)

	gt.Value(t, s.ComputeNextRetry(nil, 1)).Equal(now.Add(30 * time.Minute))
	gt.Value(t, s.ComputeNextRetry(nil, 2)).Equal(now.Add(60 * time.Minute))
	gt.Value(t, s.ComputeNextRetry(nil, 3)).Equal(now.Add(120 * time.Minute))

	// Deep failure counts plateau at the cap
	gt.Value(t, s.ComputeNextRetry(nil, 10)).Equal(now.Add(24 * time.Hour))
}

func TestComputeNextRetryFailedStateUsesBackoff(t *testing.T) {
	s, now := newTestScheduler(t, memory.New(), 0)

	failed := verifiedState("U1", "acme")
	failed.Err = "fetch failed"
	gt.Value(t, s.ComputeNextRetry(failed, 0)).Equal(now.Add(30 * time.Minute))
}

func TestScheduleSuccessResetsFailures(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s, now := newTestScheduler(t, repo, 0.5)

	gt.NoError(t, s.ScheduleFailure(ctx, "U1", nil, goerr.New("boom")))
	gt.NoError(t, s.ScheduleFailure(ctx, "U1", nil, goerr.New("boom")))

	schedule := gt.R1(repo.Recheck().Get(ctx, "U1")).NoError(t)
	gt.Value(t, schedule.FailCount).Equal(2)
	gt.Value(t, schedule.LastError).Equal("boom")

	gt.NoError(t, s.ScheduleSuccess(ctx, "U1", verifiedState("U1", "acme")))

	schedule = gt.R1(repo.Recheck().Get(ctx, "U1")).NoError(t)
	gt.Value(t, schedule.FailCount).Equal(0)
	gt.Value(t, schedule.NextRetryAt).Equal(now.Add(14 * 24 * time.Hour))
	gt.Value(t, schedule.LastCheckedAt).Equal(*now)
}

func TestScheduleFailureIncrementsCount(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s, now := newTestScheduler(t, repo, 0)

	gt.NoError(t, s.ScheduleFailure(ctx, "U1", nil, goerr.New("first")))
	schedule := gt.R1(repo.Recheck().Get(ctx, "U1")).NoError(t)
	gt.Value(t, schedule.FailCount).Equal(1)
	gt.Value(t, schedule.NextRetryAt).Equal(now.Add(30 * time.Minute))

	gt.NoError(t, s.ScheduleFailure(ctx, "U1", nil, goerr.New("second")))
	schedule = gt.R1(repo.Recheck().Get(ctx, "U1")).NoError(t)
	gt.Value(t, schedule.FailCount).Equal(2)
	gt.Value(t, schedule.NextRetryAt).Equal(now.Add(60 * time.Minute))
}

func TestGetDueBootstrapsUnscheduledUsers(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s, _ := newTestScheduler(t, repo, 0.5)

	// Two verified users, neither scheduled yet
	gt.NoError(t, repo.Verification().Put(ctx, verifiedState("U2", "acme")))
	gt.NoError(t, repo.Verification().Put(ctx, verifiedState("U1", "acme")))

	due := gt.R1(s.GetDue(ctx, 10)).NoError(t)
	gt.Value(t, due).Equal([]types.UserID{"U1", "U2"})
}

func TestGetDueOrdersByLeastRecentlyChecked(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s, now := newTestScheduler(t, repo, 0.5)

	for _, id := range []types.UserID{"U1", "U2", "U3"} {
		gt.NoError(t, repo.Verification().Put(ctx, verifiedState(id, "acme")))
	}
	base := now.Add(-48 * time.Hour)
	for i, id := range []types.UserID{"U3", "U1", "U2"} {
		gt.NoError(t, repo.Recheck().Upsert(ctx, &model.ScheduledRecheck{
			UserID:        id,
			NextRetryAt:   now.Add(-time.Hour),
			LastCheckedAt: base.Add(time.Duration(i) * time.Hour),
			UpdatedAt:     *now,
		}))
	}

	due := gt.R1(s.GetDue(ctx, 10)).NoError(t)
	gt.Value(t, due).Equal([]types.UserID{"U3", "U1", "U2"})
}

func TestGetDueSkipsFutureSchedules(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s, now := newTestScheduler(t, repo, 0.5)

	gt.NoError(t, repo.Verification().Put(ctx, verifiedState("U1", "acme")))
	gt.NoError(t, repo.Recheck().Upsert(ctx, &model.ScheduledRecheck{
		UserID:        "U1",
		NextRetryAt:   now.Add(time.Hour),
		LastCheckedAt: *now,
		UpdatedAt:     *now,
	}))

	due := gt.R1(s.GetDue(ctx, 10)).NoError(t)
	gt.Array(t, due).Length(0)
}

func TestGetDueHonorsLimit(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	s, _ := newTestScheduler(t, repo, 0.5)

	for _, id := range []types.UserID{"U1", "U2", "U3", "U4"} {
		gt.NoError(t, repo.Verification().Put(ctx, verifiedState(id, "acme")))
	}

	due := gt.R1(s.GetDue(ctx, 2)).NoError(t)
	gt.Array(t, due).Length(2)
}
