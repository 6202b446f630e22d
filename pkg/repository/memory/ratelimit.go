package memory

import (
	"context"
	"sync"
	"time"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

type rateLimitKey struct {
	userID types.UserID
	action types.RateAction
}

type rateLimitRepository struct {
	mu      sync.Mutex
	records map[rateLimitKey]*model.RateLimitRecord
}

func newRateLimitRepository() *rateLimitRepository {
	return &rateLimitRepository{
		records: make(map[rateLimitKey]*model.RateLimitRecord),
	}
}

func (r *rateLimitRepository) Get(ctx context.Context, userID types.UserID, action types.RateAction) (*model.RateLimitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[rateLimitKey{userID: userID, action: action}]
	if !ok {
		return nil, nil
	}
	copied := *rec
	return &copied, nil
}

func (r *rateLimitRepository) Increment(ctx context.Context, userID types.UserID, action types.RateAction, now time.Time, window time.Duration) (*model.RateLimitRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := rateLimitKey{userID: userID, action: action}
	rec, ok := r.records[key]
	if !ok || rec.Stale(now, window) {
		// Stale records are reset in place rather than swept by a timer
		rec = &model.RateLimitRecord{
			UserID:       userID,
			Action:       action,
			AttemptCount: 1,
			WindowStart:  now,
		}
		r.records[key] = rec
	} else {
		rec.AttemptCount++
	}

	copied := *rec
	return &copied, nil
}

func (r *rateLimitRepository) Delete(ctx context.Context, userID types.UserID, action types.RateAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.records, rateLimitKey{userID: userID, action: action})
	return nil
}

func (r *rateLimitRepository) DeleteUser(ctx context.Context, userID types.UserID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key := range r.records {
		if key.userID == userID {
			delete(r.records, key)
		}
	}
	return nil
}

func (r *rateLimitRepository) DeleteAll(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = make(map[rateLimitKey]*model.RateLimitRecord)
	return nil
}
