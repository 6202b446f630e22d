package usecase

import (
	"context"
	"strings"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/service/guildsync"
	"github.com/guildops/tierkeeper/pkg/utils/errutil"
)

// ApplyStateToGuild applies one verification state to a single guild
func (uc *UseCases) ApplyStateToGuild(ctx context.Context, state *model.VerificationState, guildID types.GuildID) (*guildsync.Result, error) {
	return uc.sync.ApplyToGuild(ctx, state, guildID)
}

// SyncUserToAllGuilds applies one verification state to every guild the
// user belongs to. Per-guild failures are logged inside the sync service.
func (uc *UseCases) SyncUserToAllGuilds(ctx context.Context, state *model.VerificationState) []*guildsync.Result {
	return uc.sync.SyncAll(ctx, state)
}

// LogGuildSync records one guild's sync outcome in the change log. The
// previous persisted state supplies the before-organization list the
// backfill suppression needs.
func (uc *UseCases) LogGuildSync(ctx context.Context, res *guildsync.Result, prev, state *model.VerificationState, event types.EventType, initiator string) error {
	if uc.changelog == nil {
		return nil
	}

	cs := &model.ChangeSet{
		UserID:    res.UserID,
		GuildID:   res.GuildID,
		Event:     event,
		Initiator: initiator,
		Before:    res.Before,
		After:     res.After,
		AfterOrgs: state.Orgs(),
	}
	if prev != nil {
		cs.BeforeOrgs = prev.Orgs()
	}
	if state.Failed() {
		cs.Error = state.Err
	}

	var channel types.ChannelID
	if cfg := uc.sync.GuildConfigs()[res.GuildID]; cfg != nil {
		channel = cfg.LogChannel
	}

	if _, err := uc.changelog.Log(ctx, cs, channel); err != nil {
		return errutil.Handle(ctx, err, "failed to log guild sync")
	}
	return nil
}

// preserveCasing keeps the previously persisted casing of names that only
// changed case, so repeated diffs do not re-trigger on cosmetic upstream
// drift
func preserveCasing(prev, next *model.VerificationState) *model.VerificationState {
	if prev == nil {
		return next
	}

	adjusted := *next
	if strings.EqualFold(prev.Moniker, adjusted.Moniker) {
		adjusted.Moniker = prev.Moniker
	}
	if strings.EqualFold(prev.Handle.String(), adjusted.Handle.String()) {
		adjusted.Handle = prev.Handle
	}
	return &adjusted
}
