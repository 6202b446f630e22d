package memory_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/repository/memory"
)

func TestVerificationRoundTrip(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()

	gt.Value(t, gt.R1(repo.Verification().Get(ctx, "U1")).NoError(t)).Nil()

	state := &model.VerificationState{
		UserID:   "U1",
		Handle:   "alice",
		Moniker:  "Alice",
		MainOrgs: []string{"acme"},
	}
	gt.NoError(t, repo.Verification().Put(ctx, state))

	got := gt.R1(repo.Verification().Get(ctx, "U1")).NoError(t)
	gt.Value(t, got.Moniker).Equal("Alice")

	// Returned state is a copy
	got.MainOrgs[0] = "mutated"
	again := gt.R1(repo.Verification().Get(ctx, "U1")).NoError(t)
	gt.Value(t, again.MainOrgs).Equal([]string{"acme"})

	ids := gt.R1(repo.Verification().ListUserIDs(ctx)).NoError(t)
	gt.Value(t, ids).Equal([]types.UserID{"U1"})
}

func TestRateLimitIncrementIsAtomic(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	for range 50 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = repo.RateLimit().Increment(ctx, "U1", types.ActionVerification, now, time.Hour)
		}()
	}
	wg.Wait()

	rec := gt.R1(repo.RateLimit().Get(ctx, "U1", types.ActionVerification)).NoError(t)
	gt.Value(t, rec.AttemptCount).Equal(50)
}

func TestRateLimitStaleWindowResets(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for range 3 {
		_, err := repo.RateLimit().Increment(ctx, "U1", types.ActionVerification, now, time.Hour)
		gt.NoError(t, err)
	}

	later := now.Add(2 * time.Hour)
	rec, err := repo.RateLimit().Increment(ctx, "U1", types.ActionVerification, later, time.Hour)
	gt.NoError(t, err)
	gt.Value(t, rec.AttemptCount).Equal(1)
	gt.Value(t, rec.WindowStart).Equal(later)
}

func TestRecheckListDueOrdering(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	for i, id := range []types.UserID{"U2", "U3", "U1"} {
		gt.NoError(t, repo.Recheck().Upsert(ctx, &model.ScheduledRecheck{
			UserID:        id,
			NextRetryAt:   now.Add(-time.Minute),
			LastCheckedAt: now.Add(time.Duration(i-10) * time.Hour),
			UpdatedAt:     now,
		}))
	}
	// One not yet due
	gt.NoError(t, repo.Recheck().Upsert(ctx, &model.ScheduledRecheck{
		UserID:      "U4",
		NextRetryAt: now.Add(time.Minute),
		UpdatedAt:   now,
	}))

	rows := gt.R1(repo.Recheck().ListDue(ctx, now, 10)).NoError(t)
	gt.Array(t, rows).Length(3)
	gt.Value(t, rows[0].UserID).Equal(types.UserID("U2"))
	gt.Value(t, rows[1].UserID).Equal(types.UserID("U3"))
	gt.Value(t, rows[2].UserID).Equal(types.UserID("U1"))

	limited := gt.R1(repo.Recheck().ListDue(ctx, now, 2)).NoError(t)
	gt.Array(t, limited).Length(2)
}

func TestRecheckGetByUsers(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)

	gt.NoError(t, repo.Recheck().Upsert(ctx, &model.ScheduledRecheck{
		UserID:      "U1",
		NextRetryAt: now,
		UpdatedAt:   now,
	}))

	got := gt.R1(repo.Recheck().GetByUsers(ctx, []types.UserID{"U1", "U2"})).NoError(t)
	gt.Map(t, got).HasKey(types.UserID("U1"))
	gt.Value(t, len(got)).Equal(1)
}

func TestFingerprintClaim(t *testing.T) {
	ctx := context.Background()
	repo := memory.New()
	now := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	ttl := 20 * time.Second

	claimed := gt.R1(repo.Fingerprint().Claim(ctx, "fp1", now, ttl)).NoError(t)
	gt.Bool(t, claimed).True()

	claimed = gt.R1(repo.Fingerprint().Claim(ctx, "fp1", now.Add(10*time.Second), ttl)).NoError(t)
	gt.Bool(t, claimed).False()

	claimed = gt.R1(repo.Fingerprint().Claim(ctx, "fp1", now.Add(21*time.Second), ttl)).NoError(t)
	gt.Bool(t, claimed).True()

	// Distinct fingerprints never collide
	claimed = gt.R1(repo.Fingerprint().Claim(ctx, "fp2", now.Add(22*time.Second), ttl)).NoError(t)
	gt.Bool(t, claimed).True()
}
