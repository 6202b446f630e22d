package scheduler

import (
	"context"
	"math/rand/v2"
	"sort"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// failureJitterMax is the additive jitter on the failure backoff path
const failureJitterMax = 600 * time.Second

// CadenceConfig drives when the next recheck happens: tier-based cadence
// with symmetric jitter on success, exponential backoff on failure
type CadenceConfig struct {
	// DaysByTier is the steady-state recheck interval per tier
	DaysByTier map[types.Tier]int
	// JitterHours spreads successful rechecks to avoid synchronized storms
	JitterHours float64
	// BackoffBase is the first failure backoff, doubled per failure
	BackoffBase time.Duration
	// BackoffMax caps the failure backoff
	BackoffMax time.Duration
}

// DefaultCadence returns the default recheck cadence
func DefaultCadence() CadenceConfig {
	return CadenceConfig{
		DaysByTier: map[types.Tier]int{
			types.TierMain:      14,
			types.TierAffiliate: 7,
			types.TierNonMember: 3,
			types.TierUnknown:   3,
		},
		JitterHours: 6,
		BackoffBase: 30 * time.Minute,
		BackoffMax:  24 * time.Hour,
	}
}

// Scheduler computes and persists per-user recheck schedules
type Scheduler struct {
	repo    interfaces.Repository
	cadence CadenceConfig
	now     func() time.Time
	randFn  func() float64
}

// Option is a functional option for scheduler construction
type Option func(*Scheduler)

// WithClock overrides the time source, used in tests
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		s.now = now
	}
}

// WithRand overrides the jitter source, used in tests
func WithRand(fn func() float64) Option {
	return func(s *Scheduler) {
		s.randFn = fn
	}
}

// New creates a scheduler with the given cadence
func New(repo interfaces.Repository, cadence CadenceConfig, opts ...Option) *Scheduler {
	s := &Scheduler{
		repo:    repo,
		cadence: cadence,
		now:     time.Now,
		randFn:  rand.Float64,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ComputeNextRetry returns when the user should be rechecked. A failed
// state or any accumulated failures selects the backoff path; otherwise
// the tier cadence applies with symmetric jitter.
func (s *Scheduler) ComputeNextRetry(state *model.VerificationState, failCount int) time.Time {
	now := s.now()

	if failCount > 0 || state == nil || state.Failed() {
		if failCount < 1 {
			failCount = 1
		}
		backoff := s.cadence.BackoffBase << (failCount - 1)
		backoff += time.Duration(s.randFn() * float64(failureJitterMax))
		if backoff > s.cadence.BackoffMax {
			backoff = s.cadence.BackoffMax
		}
		return now.Add(backoff)
	}

	days := s.cadence.DaysByTier[state.GlobalTier()]
	interval := time.Duration(days) * 24 * time.Hour
	jitter := time.Duration((s.randFn()*2 - 1) * s.cadence.JitterHours * float64(time.Hour))
	return now.Add(interval + jitter)
}

// ScheduleSuccess upserts the schedule after a successful recheck,
// resetting the failure counter. The next retry follows the tier cadence.
func (s *Scheduler) ScheduleSuccess(ctx context.Context, userID types.UserID, state *model.VerificationState) error {
	now := s.now()
	schedule := &model.ScheduledRecheck{
		UserID:        userID,
		NextRetryAt:   s.ComputeNextRetry(state, 0),
		FailCount:     0,
		LastCheckedAt: now,
		UpdatedAt:     now,
	}
	if err := s.repo.Recheck().Upsert(ctx, schedule); err != nil {
		return goerr.Wrap(err, "failed to schedule recheck success", goerr.V("userID", userID))
	}
	return nil
}

// ScheduleFailure upserts the schedule after a failed recheck, incrementing
// the failure counter and recording the truncated error. The next retry
// follows the failure backoff. A nil state is allowed when the fetch
// produced nothing.
func (s *Scheduler) ScheduleFailure(ctx context.Context, userID types.UserID, state *model.VerificationState, cause error) error {
	now := s.now()

	failCount := 1
	if existing, err := s.repo.Recheck().Get(ctx, userID); err != nil {
		return goerr.Wrap(err, "failed to read recheck schedule", goerr.V("userID", userID))
	} else if existing != nil {
		failCount = existing.FailCount + 1
	}

	schedule := &model.ScheduledRecheck{
		UserID:        userID,
		NextRetryAt:   s.ComputeNextRetry(state, failCount),
		FailCount:     failCount,
		LastCheckedAt: now,
		UpdatedAt:     now,
	}
	if cause != nil {
		schedule.SetLastError(cause.Error())
	}

	if err := s.repo.Recheck().Upsert(ctx, schedule); err != nil {
		return goerr.Wrap(err, "failed to schedule recheck failure", goerr.V("userID", userID))
	}
	return nil
}

// GetDue returns up to limit users ready for a recheck. Users with a
// persisted verification but no schedule row are immediately due
// (bootstrap) and come first; scheduled users follow least-recently-checked
// first.
func (s *Scheduler) GetDue(ctx context.Context, limit int) ([]types.UserID, error) {
	known, err := s.repo.Verification().ListUserIDs(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list verified users")
	}

	scheduled, err := s.repo.Recheck().GetByUsers(ctx, known)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to batch read recheck schedules")
	}

	var due []types.UserID
	var unscheduled []types.UserID
	for _, id := range known {
		if _, ok := scheduled[id]; !ok {
			unscheduled = append(unscheduled, id)
		}
	}
	sort.Slice(unscheduled, func(i, j int) bool { return unscheduled[i] < unscheduled[j] })
	due = append(due, unscheduled...)

	// limit <= 0 means no limit, matching the repository convention
	if limit <= 0 || len(due) < limit {
		remaining := 0
		if limit > 0 {
			remaining = limit - len(due)
		}
		rows, err := s.repo.Recheck().ListDue(ctx, s.now(), remaining)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to list due recheck schedules")
		}
		for _, row := range rows {
			due = append(due, row.UserID)
		}
	}

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

// Stats is an observability snapshot of the recheck schedule
type Stats struct {
	TrackedUsers int `json:"tracked_users"`
	DueNow       int `json:"due_now"`
}

// Stats reports how many users are tracked and how many are due right now
func (s *Scheduler) Stats(ctx context.Context) (*Stats, error) {
	known, err := s.repo.Verification().ListUserIDs(ctx)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to list verified users")
	}

	due, err := s.GetDue(ctx, 0)
	if err != nil {
		return nil, err
	}

	return &Stats{
		TrackedUsers: len(known),
		DueNow:       len(due),
	}, nil
}
