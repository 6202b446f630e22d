package model_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

func testTime(t *testing.T) time.Time {
	t.Helper()
	return time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
}

func guildConfig() *model.GuildConfig {
	return &model.GuildConfig{
		ID:           "G1",
		Name:         "Main guild",
		ReferenceOrg: "acme",
		ManagedRoles: map[types.Tier][]string{
			types.TierMain:      {"Member", "Verified"},
			types.TierAffiliate: {"Affiliate", "Verified"},
		},
		NicknameTemplate: "{moniker} [{tier}]",
		LogChannel:       "C1",
	}
}

func TestGuildConfigValidate(t *testing.T) {
	cfg := guildConfig()
	gt.NoError(t, cfg.Validate())

	cfg.ID = ""
	gt.Error(t, cfg.Validate())

	cfg = guildConfig()
	cfg.ReferenceOrg = ""
	gt.Error(t, cfg.Validate())

	cfg = guildConfig()
	cfg.ManagedRoles[types.Tier("bogus")] = []string{"X"}
	gt.Error(t, cfg.Validate())
}

func TestGuildConfigFilterManagedRoles(t *testing.T) {
	cfg := guildConfig()

	filtered := cfg.FilterManagedRoles([]string{"Verified", "Booster", "Member", "Moderator"})
	gt.Value(t, filtered).Equal([]string{"Member", "Verified"})
}

func TestGuildConfigNickname(t *testing.T) {
	cfg := guildConfig()
	gt.Value(t, cfg.Nickname("Alice", "alice", types.TierMain)).Equal("Alice [main]")

	cfg.NicknameTemplate = ""
	gt.Value(t, cfg.Nickname("Alice", "alice", types.TierMain)).Equal("")
}

func TestVerificationStateTiers(t *testing.T) {
	state := model.NewVerificationState("U1", &model.OrgProfile{
		Handle:        "alice",
		Moniker:       "Alice",
		MainOrgs:      []string{"acme"},
		AffiliateOrgs: []string{"umbrella"},
	}, testTime(t))

	gt.Value(t, state.TierFor("acme")).Equal(types.TierMain)
	gt.Value(t, state.TierFor("umbrella")).Equal(types.TierAffiliate)
	gt.Value(t, state.TierFor("wayne")).Equal(types.TierNonMember)
	gt.Value(t, state.GlobalTier()).Equal(types.TierMain)
	gt.Value(t, state.Orgs()).Equal([]string{"acme", "umbrella"})

	state.Err = "fetch failed"
	gt.Value(t, state.TierFor("acme")).Equal(types.TierUnknown)
	gt.Value(t, state.GlobalTier()).Equal(types.TierUnknown)
}
