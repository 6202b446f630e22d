package model

import (
	"time"

	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// RateLimitRecord tracks attempts for one (user, action) key within the
// current window. A record logically expires when now minus WindowStart
// reaches the window size; expiry is detected lazily at check/increment
// time, there is no background sweep.
type RateLimitRecord struct {
	UserID       types.UserID
	Action       types.RateAction
	AttemptCount int
	WindowStart  time.Time
}

// Stale reports whether the record's window has elapsed
func (r *RateLimitRecord) Stale(now time.Time, window time.Duration) bool {
	return now.Sub(r.WindowStart) >= window
}
