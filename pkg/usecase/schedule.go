package usecase

import (
	"context"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// ScheduleUserRecheck pins the user's next recheck to an explicit time,
// keeping the accumulated failure counter intact
func (uc *UseCases) ScheduleUserRecheck(ctx context.Context, userID types.UserID, next time.Time) error {
	now := uc.now()

	schedule, err := uc.repo.Recheck().Get(ctx, userID)
	if err != nil {
		return goerr.Wrap(err, "failed to read recheck schedule", goerr.V("userID", userID))
	}
	if schedule == nil {
		schedule = &model.ScheduledRecheck{UserID: userID}
	}
	schedule.NextRetryAt = next
	schedule.UpdatedAt = now

	if err := uc.repo.Recheck().Upsert(ctx, schedule); err != nil {
		return goerr.Wrap(err, "failed to upsert recheck schedule", goerr.V("userID", userID))
	}
	return nil
}

// ResetUserLimits clears every rate limit window for the user
func (uc *UseCases) ResetUserLimits(ctx context.Context, userID types.UserID) error {
	return uc.limiter.ResetUser(ctx, userID)
}
