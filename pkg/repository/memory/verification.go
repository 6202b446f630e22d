package memory

import (
	"context"
	"sync"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

type verificationRepository struct {
	mu     sync.RWMutex
	states map[types.UserID]*model.VerificationState
}

func newVerificationRepository() *verificationRepository {
	return &verificationRepository{
		states: make(map[types.UserID]*model.VerificationState),
	}
}

func copyState(s *model.VerificationState) *model.VerificationState {
	copied := *s
	copied.MainOrgs = append([]string(nil), s.MainOrgs...)
	copied.AffiliateOrgs = append([]string(nil), s.AffiliateOrgs...)
	return &copied
}

func (r *verificationRepository) Put(ctx context.Context, state *model.VerificationState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.states[state.UserID] = copyState(state)
	return nil
}

func (r *verificationRepository) Get(ctx context.Context, userID types.UserID) (*model.VerificationState, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	state, ok := r.states[userID]
	if !ok {
		return nil, nil
	}
	return copyState(state), nil
}

func (r *verificationRepository) ListUserIDs(ctx context.Context) ([]types.UserID, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]types.UserID, 0, len(r.states))
	for id := range r.states {
		ids = append(ids, id)
	}
	return ids, nil
}
