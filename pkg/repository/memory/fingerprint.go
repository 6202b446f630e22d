package memory

import (
	"context"
	"sync"
	"time"
)

type fingerprintRepository struct {
	mu   sync.Mutex
	seen map[string]time.Time
}

func newFingerprintRepository() *fingerprintRepository {
	return &fingerprintRepository{
		seen: make(map[string]time.Time),
	}
}

func (r *fingerprintRepository) Claim(ctx context.Context, fingerprint string, now time.Time, ttl time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if seenAt, ok := r.seen[fingerprint]; ok && now.Sub(seenAt) < ttl {
		return false, nil
	}

	// Expired entries are purged lazily on each claim
	for fp, seenAt := range r.seen {
		if now.Sub(seenAt) >= ttl {
			delete(r.seen, fp)
		}
	}

	r.seen[fingerprint] = now
	return true, nil
}
