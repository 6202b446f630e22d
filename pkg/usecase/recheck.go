package usecase

import (
	"context"

	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/utils/errutil"
	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

// RecheckUser runs the full re-validation pipeline for one user: fetch the
// current membership, propagate it to every guild, record change log
// entries, persist the new state and reschedule the next recheck.
//
// handle may be empty when a previous state exists; the persisted handle is
// reused. Admin-initiated events bypass the rate limiter; scheduler-driven
// events are gated by the recheck allowance instead of the verification one.
//
// The state is persisted only after guild diffs are captured, so the
// change log always compares against what was actually live.
func (uc *UseCases) RecheckUser(ctx context.Context, userID types.UserID, handle types.Handle, event types.EventType, initiator string) (*VerifyOutcome, error) {
	prev, err := uc.repo.Verification().Get(ctx, userID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to load verification state", goerr.V("userID", userID))
	}
	if handle == "" {
		if prev == nil {
			return nil, goerr.New("no persisted handle for user", goerr.V("userID", userID))
		}
		handle = prev.Handle
	}

	force := event == types.EventAdminCheck
	if !event.Interactive() {
		// Scheduler-driven rechecks draw on their own allowance so they
		// never consume the user's interactive verification budget
		decision, err := uc.limiter.Check(ctx, userID, types.ActionRecheck)
		if err != nil {
			return nil, goerr.Wrap(err, "failed to check recheck rate limit", goerr.V("userID", userID))
		}
		if decision.Limited {
			return &VerifyOutcome{Kind: OutcomeRateLimited, RetryAt: decision.RetryAfter}, nil
		}
		if err := uc.limiter.LogAttempt(ctx, userID, types.ActionRecheck); err != nil {
			return nil, goerr.Wrap(err, "failed to log recheck attempt", goerr.V("userID", userID))
		}
		force = true
	}

	out, err := uc.ComputeGlobalState(ctx, userID, handle, force)
	if err != nil {
		return nil, err
	}

	switch out.Kind {
	case OutcomeOk:
		state := preserveCasing(prev, out.State)
		out.State = state

		results := uc.SyncUserToAllGuilds(ctx, state)
		for _, res := range results {
			if res == nil {
				continue
			}
			// Logged inside; a failed record never aborts the pipeline
			_ = uc.LogGuildSync(ctx, res, prev, state, event, initiator)
		}

		if err := uc.repo.Verification().Put(ctx, state); err != nil {
			return out, goerr.Wrap(err, "failed to persist verification state", goerr.V("userID", userID))
		}
		if err := uc.scheduler.ScheduleSuccess(ctx, userID, state); err != nil {
			return out, err
		}

	case OutcomeNotFound, OutcomeError:
		if err := uc.scheduler.ScheduleFailure(ctx, userID, nil, out.Cause()); err != nil {
			return out, err
		}
		_ = errutil.Handle(ctx, out.Cause(), "recheck failed")

	case OutcomeRateLimited:
		logging.From(ctx).Info("recheck rate limited",
			"user_id", userID, "retry_at", out.RetryAt)

	case OutcomeUnavailable:
		logging.From(ctx).Warn("recheck skipped, verification source unavailable",
			"user_id", userID, "retry_in", out.RetryAfter)
	}

	return out, nil
}
