package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

// ComputeGlobalState runs one verification attempt for the user: rate
// limit check, breaker gate, external fetch. force skips the rate limit
// (admin override); the breaker gate always applies.
//
// Upstream answers, including "no such member", close the breaker. Only
// transient failures count against it.
func (uc *UseCases) ComputeGlobalState(ctx context.Context, userID types.UserID, handle types.Handle, force bool) (*VerifyOutcome, error) {
	if handle == "" {
		return nil, goerr.New("handle is required", goerr.V("userID", userID))
	}

	if !force {
		decision, err := uc.limiter.Check(ctx, userID, types.ActionVerification)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to check rate limit", goerr.V("userID", userID))
		}
		if decision.Limited {
			return &VerifyOutcome{Kind: OutcomeRateLimited, RetryAt: decision.RetryAfter}, nil
		}
	}

	if uc.breaker.IsOpen() {
		return &VerifyOutcome{Kind: OutcomeUnavailable, RetryAfter: uc.breaker.TimeUntilRetry()}, nil
	}

	if !force {
		if err := uc.limiter.LogAttempt(ctx, userID, types.ActionVerification); err != nil {
			return nil, goerr.Wrap(err, "failed to log rate limit attempt", goerr.V("userID", userID))
		}
	}

	profile, err := uc.verifier.Fetch(ctx, handle)
	switch {
	case err == nil:
		uc.breaker.RecordSuccess()
		state := model.NewVerificationState(userID, profile, uc.now())
		return &VerifyOutcome{Kind: OutcomeOk, State: state}, nil

	case types.IsNotFound(err):
		// The upstream answered; this is not a breaker failure
		uc.breaker.RecordSuccess()
		return &VerifyOutcome{Kind: OutcomeNotFound, Err: err}, nil

	case types.IsForbidden(err):
		uc.breaker.RecordSuccess()
		return &VerifyOutcome{Kind: OutcomeError, Err: err}, nil

	case types.IsTransient(err):
		uc.breaker.RecordFailure()
		logging.From(ctx).Warn("verification fetch failed",
			"user_id", userID, "handle", handle, "error", err.Error())
		return &VerifyOutcome{Kind: OutcomeError, Err: err}, nil

	default:
		uc.breaker.RecordFailure()
		return &VerifyOutcome{Kind: OutcomeError, Err: err}, nil
	}
}
