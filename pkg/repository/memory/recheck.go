package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

type recheckRepository struct {
	mu        sync.RWMutex
	schedules map[types.UserID]*model.ScheduledRecheck
}

func newRecheckRepository() *recheckRepository {
	return &recheckRepository{
		schedules: make(map[types.UserID]*model.ScheduledRecheck),
	}
}

func copySchedule(s *model.ScheduledRecheck) *model.ScheduledRecheck {
	copied := *s
	return &copied
}

func (r *recheckRepository) Get(ctx context.Context, userID types.UserID) (*model.ScheduledRecheck, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	s, ok := r.schedules[userID]
	if !ok {
		return nil, nil
	}
	return copySchedule(s), nil
}

func (r *recheckRepository) GetByUsers(ctx context.Context, userIDs []types.UserID) (map[types.UserID]*model.ScheduledRecheck, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make(map[types.UserID]*model.ScheduledRecheck, len(userIDs))
	for _, id := range userIDs {
		if s, ok := r.schedules[id]; ok {
			result[id] = copySchedule(s)
		}
	}
	return result, nil
}

func (r *recheckRepository) Upsert(ctx context.Context, schedule *model.ScheduledRecheck) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.schedules[schedule.UserID] = copySchedule(schedule)
	return nil
}

func (r *recheckRepository) ListDue(ctx context.Context, now time.Time, limit int) ([]*model.ScheduledRecheck, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var due []*model.ScheduledRecheck
	for _, s := range r.schedules {
		if !s.NextRetryAt.After(now) {
			due = append(due, copySchedule(s))
		}
	}

	// Least-recently-checked first for fairness
	sort.Slice(due, func(i, j int) bool {
		return due[i].LastCheckedAt.Before(due[j].LastCheckedAt)
	})

	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}
