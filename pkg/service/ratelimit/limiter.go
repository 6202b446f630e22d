package ratelimit

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// Policy caps how often a (user, action) pair may proceed
type Policy struct {
	MaxAttempts int
	Window      time.Duration
}

// DefaultPolicies returns the built-in per-action limits, overridable per
// deployment via WithPolicy
func DefaultPolicies() map[types.RateAction]Policy {
	return map[types.RateAction]Policy{
		types.ActionVerification: {MaxAttempts: 5, Window: 1800 * time.Second},
		types.ActionRecheck:      {MaxAttempts: 1, Window: 300 * time.Second},
	}
}

// Decision is the structured outcome of a limit check. Being limited is not
// an error; RetryAfter tells the caller when the window reopens.
type Decision struct {
	Limited    bool
	RetryAfter time.Time
}

// Limiter enforces per-(user, action) attempt caps over sliding windows.
// Window expiry is lazy: a stale record simply stops counting at check time
// and is reset in place on the next attempt, so no timer subsystem is
// needed.
type Limiter struct {
	repo     interfaces.Repository
	policies map[types.RateAction]Policy
	now      func() time.Time
}

// Option is a functional option for limiter construction
type Option func(*Limiter)

// WithPolicy overrides the policy for one action
func WithPolicy(action types.RateAction, policy Policy) Option {
	return func(l *Limiter) {
		l.policies[action] = policy
	}
}

// WithClock overrides the time source, used in tests
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// New creates a limiter with the default policies
func New(repo interfaces.Repository, opts ...Option) *Limiter {
	l := &Limiter{
		repo:     repo,
		policies: DefaultPolicies(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *Limiter) policy(action types.RateAction) (Policy, error) {
	policy, ok := l.policies[action]
	if !ok {
		return Policy{}, goerr.New("no rate limit policy for action", goerr.V("action", action))
	}
	return policy, nil
}

// Check reports whether the next attempt for the key would exceed the
// policy. It does not consume an attempt.
func (l *Limiter) Check(ctx context.Context, userID types.UserID, action types.RateAction) (*Decision, error) {
	policy, err := l.policy(action)
	if err != nil {
		return nil, err
	}

	rec, err := l.repo.RateLimit().Get(ctx, userID, action)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read rate limit record",
			goerr.V("userID", userID), goerr.V("action", action))
	}

	now := l.now()
	if rec == nil || rec.Stale(now, policy.Window) {
		return &Decision{Limited: false}, nil
	}

	if rec.AttemptCount >= policy.MaxAttempts {
		return &Decision{
			Limited:    true,
			RetryAfter: rec.WindowStart.Add(policy.Window),
		}, nil
	}

	return &Decision{Limited: false}, nil
}

// LogAttempt consumes one attempt for the key, opening a fresh window when
// the previous one has elapsed
func (l *Limiter) LogAttempt(ctx context.Context, userID types.UserID, action types.RateAction) error {
	policy, err := l.policy(action)
	if err != nil {
		return err
	}

	if _, err := l.repo.RateLimit().Increment(ctx, userID, action, l.now(), policy.Window); err != nil {
		return goerr.Wrap(err, "failed to log rate limit attempt",
			goerr.V("userID", userID), goerr.V("action", action))
	}
	return nil
}

// Reset deletes the record for one (user, action) key
func (l *Limiter) Reset(ctx context.Context, userID types.UserID, action types.RateAction) error {
	return l.repo.RateLimit().Delete(ctx, userID, action)
}

// ResetUser deletes all records for the user
func (l *Limiter) ResetUser(ctx context.Context, userID types.UserID) error {
	return l.repo.RateLimit().DeleteUser(ctx, userID)
}

// ResetAll clears every record. Administrative escape hatch.
func (l *Limiter) ResetAll(ctx context.Context) error {
	return l.repo.RateLimit().DeleteAll(ctx)
}
