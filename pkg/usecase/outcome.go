package usecase

import (
	"time"

	"github.com/guildops/tierkeeper/pkg/domain/model"
)

// OutcomeKind classifies the result of one verification attempt
type OutcomeKind int

const (
	// OutcomeOk means the fetch succeeded and State is populated
	OutcomeOk OutcomeKind = iota
	// OutcomeRateLimited means the per-user attempt cap was hit; RetryAt
	// tells when the window reopens
	OutcomeRateLimited
	// OutcomeNotFound means the upstream answered that no such member exists
	OutcomeNotFound
	// OutcomeUnavailable means the circuit breaker is open and no fetch was
	// attempted; RetryAfter tells when a probe becomes possible
	OutcomeUnavailable
	// OutcomeError is any other fetch failure, carried in Err
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeOk:
		return "ok"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeUnavailable:
		return "unavailable"
	case OutcomeError:
		return "error"
	default:
		return "unknown"
	}
}

// VerifyOutcome is the structured result of one verification attempt. Only
// the fields matching Kind are set.
type VerifyOutcome struct {
	Kind       OutcomeKind
	State      *model.VerificationState
	RetryAt    time.Time
	RetryAfter time.Duration
	Err        error
}

// Ok reports whether the attempt produced a usable state
func (o *VerifyOutcome) Ok() bool {
	return o.Kind == OutcomeOk
}

// Cause returns the failure description for schedule bookkeeping
func (o *VerifyOutcome) Cause() error {
	return o.Err
}
