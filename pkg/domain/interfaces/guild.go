package interfaces

import (
	"context"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// GuildClient is the community platform surface this pipeline mutates.
// Write operations must be idempotent: granting a role the member already
// holds or setting an identical nickname is a no-op upstream. Transient
// platform failures are tagged types.TagTransient so the task queue can
// retry them; permission failures are tagged types.TagForbidden and are
// never retried.
type GuildClient interface {
	// MemberGuildIDs resolves the user's active guilds from the platform's
	// membership index. Callers fall back to scanning all configured guilds
	// when this fails.
	MemberGuildIDs(ctx context.Context, userID types.UserID) ([]types.GuildID, error)

	// GetMember retrieves the member entry, or a types.TagNotFound error
	// when the user is not a member of the guild
	GetMember(ctx context.Context, guildID types.GuildID, userID types.UserID) (*model.GuildMember, error)

	GrantRole(ctx context.Context, guildID types.GuildID, userID types.UserID, role string) error
	RevokeRole(ctx context.Context, guildID types.GuildID, userID types.UserID, role string) error
	SetNickname(ctx context.Context, guildID types.GuildID, userID types.UserID, nickname string) error
}

// NotificationSink delivers rendered change records. Posting is
// fire-and-forget: failures are logged by the caller, never raised.
type NotificationSink interface {
	Post(ctx context.Context, channel types.ChannelID, message string) error
}
