package interfaces

import (
	"context"
	"time"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// Repository defines the interface for data persistence
type Repository interface {
	Verification() VerificationRepository
	RateLimit() RateLimitRepository
	Recheck() RecheckRepository
	Fingerprint() FingerprintRepository

	Close() error
}

// VerificationRepository stores the latest VerificationState per user
type VerificationRepository interface {
	// Put persists the state, replacing any previous one for the user
	Put(ctx context.Context, state *model.VerificationState) error

	// Get retrieves the latest state for the user. Returns (nil, nil) when
	// no state has been persisted yet.
	Get(ctx context.Context, userID types.UserID) (*model.VerificationState, error)

	// ListUserIDs returns the IDs of all users with a persisted state
	ListUserIDs(ctx context.Context) ([]types.UserID, error)
}

// RateLimitRepository stores attempt records keyed by (user, action)
type RateLimitRepository interface {
	// Get retrieves the record for the key. Returns (nil, nil) when no
	// attempt has been recorded; a missing record is not an error.
	Get(ctx context.Context, userID types.UserID, action types.RateAction) (*model.RateLimitRecord, error)

	// Increment atomically inserts {count: 1, start: now} for a missing or
	// stale record, otherwise increments the attempt count. Must be
	// race-safe against concurrent first attempts for the same key.
	Increment(ctx context.Context, userID types.UserID, action types.RateAction, now time.Time, window time.Duration) (*model.RateLimitRecord, error)

	// Delete removes the record for one (user, action) key
	Delete(ctx context.Context, userID types.UserID, action types.RateAction) error

	// DeleteUser removes all records for the user
	DeleteUser(ctx context.Context, userID types.UserID) error

	// DeleteAll clears every record (administrative escape hatch)
	DeleteAll(ctx context.Context) error
}

// RecheckRepository stores per-user recheck schedules
type RecheckRepository interface {
	// Get retrieves the schedule for the user. Returns (nil, nil) when the
	// user has no schedule row yet.
	Get(ctx context.Context, userID types.UserID) (*model.ScheduledRecheck, error)

	// GetByUsers retrieves schedules for multiple users. Missing users are
	// not included in the result map.
	GetByUsers(ctx context.Context, userIDs []types.UserID) (map[types.UserID]*model.ScheduledRecheck, error)

	// Upsert creates or replaces the schedule row
	Upsert(ctx context.Context, schedule *model.ScheduledRecheck) error

	// ListDue returns up to limit schedules with NextRetryAt <= now,
	// least-recently-checked first
	ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledRecheck, error)
}

// FingerprintRepository stores short-lived change-log dedup fingerprints
type FingerprintRepository interface {
	// Claim atomically records the fingerprint if it has not been seen
	// within ttl. Returns true if claimed, false if it is a duplicate.
	Claim(ctx context.Context, fingerprint string, now time.Time, ttl time.Duration) (bool, error)
}
