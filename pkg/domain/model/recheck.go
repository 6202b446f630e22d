package model

import (
	"time"

	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// maxStoredErrorLen bounds the persisted last-error text
const maxStoredErrorLen = 500

// ScheduledRecheck is the per-user recheck schedule row. Upserted after
// every attempt: success resets FailCount to 0, failure increments it and
// records the error.
type ScheduledRecheck struct {
	UserID        types.UserID
	NextRetryAt   time.Time
	FailCount     int
	LastError     string
	LastCheckedAt time.Time
	UpdatedAt     time.Time
}

// SetLastError stores a truncated error message
func (r *ScheduledRecheck) SetLastError(msg string) {
	if len(msg) > maxStoredErrorLen {
		msg = msg[:maxStoredErrorLen]
	}
	r.LastError = msg
}
