package guildsync

import (
	"context"
	"fmt"

	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/service/queue"
	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

// ApplyToGuild applies the verification state to one guild following the
// two-phase apply/observe protocol: before-snapshot, enqueue role and
// nickname tasks, flush the queue, after-snapshot. Returns (nil, nil) with
// no side effects when the user is not a member of the guild or the guild
// is not configured.
func (s *Service) ApplyToGuild(ctx context.Context, state *model.VerificationState, guildID types.GuildID) (*Result, error) {
	cfg, ok := s.guilds[guildID]
	if !ok {
		return nil, nil
	}

	member, err := s.guild.GetMember(ctx, guildID, state.UserID)
	if err != nil {
		if types.IsNotFound(err) {
			return nil, nil
		}
		return nil, goerr.Wrap(err, "failed to resolve guild member",
			goerr.V("guildID", guildID), goerr.V("userID", state.UserID))
	}

	before := s.snapshot(cfg, member, state)

	handles := s.applyMember(ctx, cfg, member, state)

	// Flush before the after-snapshot so "before" means something
	flushCtx, cancel := context.WithTimeout(ctx, s.flushTimeout)
	defer cancel()
	if err := s.queue.Flush(flushCtx); err != nil {
		logging.From(ctx).Warn("queue flush incomplete before after-snapshot",
			"guild_id", guildID, "user_id", state.UserID, "error", err.Error())
	}
	for _, h := range handles {
		if h.Err() != nil {
			logging.From(ctx).Warn("guild sync task failed",
				"task", h.Name, "guild_id", guildID, "error", h.Err().Error())
		}
	}

	refreshed, err := s.guild.GetMember(ctx, guildID, state.UserID)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to re-resolve guild member after apply",
			goerr.V("guildID", guildID), goerr.V("userID", state.UserID))
	}
	after := s.snapshot(cfg, refreshed, state)

	return &Result{
		GuildID: guildID,
		UserID:  state.UserID,
		Before:  before,
		After:   after,
	}, nil
}

// snapshot derives the member's tier from the state and captures only the
// locally managed slice of their roles
func (s *Service) snapshot(cfg *model.GuildConfig, member *model.GuildMember, state *model.VerificationState) *model.MemberSnapshot {
	display := member.Nickname
	if display == "" {
		display = member.DisplayName
	}

	return &model.MemberSnapshot{
		GuildID:     cfg.ID,
		UserID:      member.UserID,
		Tier:        state.TierFor(cfg.ReferenceOrg),
		Moniker:     state.Moniker,
		Handle:      state.Handle,
		DisplayName: display,
		Roles:       cfg.FilterManagedRoles(member.Roles),
	}
}

// applyMember enqueues idempotent grant/revoke/nickname tasks that bring
// the member's managed roles and display name in line with their tier
func (s *Service) applyMember(ctx context.Context, cfg *model.GuildConfig, member *model.GuildMember, state *model.VerificationState) []*queue.Handle {
	tier := state.TierFor(cfg.ReferenceOrg)

	desired := make(map[string]bool)
	for _, role := range cfg.RolesFor(tier) {
		desired[role] = true
	}
	current := make(map[string]bool)
	for _, role := range cfg.FilterManagedRoles(member.Roles) {
		current[role] = true
	}

	guildID := cfg.ID
	userID := member.UserID
	var handles []*queue.Handle

	for role := range desired {
		if !current[role] {
			handles = append(handles, s.queue.Enqueue(
				fmt.Sprintf("grant_role:%s:%s", guildID, role),
				func(ctx context.Context) error {
					return s.guild.GrantRole(ctx, guildID, userID, role)
				}))
		}
	}
	for role := range current {
		if !desired[role] {
			handles = append(handles, s.queue.Enqueue(
				fmt.Sprintf("revoke_role:%s:%s", guildID, role),
				func(ctx context.Context) error {
					return s.guild.RevokeRole(ctx, guildID, userID, role)
				}))
		}
	}

	if nick := cfg.Nickname(state.Moniker, state.Handle, tier); nick != "" && nick != member.Nickname {
		handles = append(handles, s.queue.Enqueue(
			fmt.Sprintf("set_nickname:%s:%s", guildID, userID),
			func(ctx context.Context) error {
				return s.guild.SetNickname(ctx, guildID, userID, nick)
			}))
	}

	return handles
}
