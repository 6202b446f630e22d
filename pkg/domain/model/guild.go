package model

import (
	"sort"
	"strings"

	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// GuildMember is the platform's view of a user inside one guild. Roles
// contains every role the member carries, managed or not; snapshot capture
// filters it down to managed roles.
type GuildMember struct {
	GuildID     types.GuildID
	UserID      types.UserID
	DisplayName string
	Nickname    string
	Roles       []string
}

// GuildConfig is the typed per-guild configuration, resolved once from the
// policy file and passed down so components never do string-keyed lookups.
type GuildConfig struct {
	ID               types.GuildID
	Name             string
	ReferenceOrg     string
	ManagedRoles     map[types.Tier][]string
	NicknameTemplate string
	LogChannel       types.ChannelID
}

// Validate checks the guild configuration
func (g *GuildConfig) Validate() error {
	if g.ID == "" {
		return goerr.New("guild id is required")
	}
	if g.ReferenceOrg == "" {
		return goerr.New("guild reference organization is required", goerr.V("guild", g.ID))
	}
	for tier := range g.ManagedRoles {
		if !tier.IsValid() {
			return goerr.New("invalid tier in managed roles", goerr.V("guild", g.ID), goerr.V("tier", tier))
		}
	}
	return nil
}

// RolesFor returns the managed roles a member of the given tier should hold
func (g *GuildConfig) RolesFor(tier types.Tier) []string {
	return g.ManagedRoles[tier]
}

// AllManagedRoles returns the union of managed role names across all tiers
func (g *GuildConfig) AllManagedRoles() map[string]bool {
	all := make(map[string]bool)
	for _, roles := range g.ManagedRoles {
		for _, r := range roles {
			all[r] = true
		}
	}
	return all
}

// FilterManagedRoles keeps only locally managed role names, sorted
func (g *GuildConfig) FilterManagedRoles(roles []string) []string {
	managed := g.AllManagedRoles()
	var result []string
	for _, r := range roles {
		if managed[r] {
			result = append(result, r)
		}
	}
	sort.Strings(result)
	return result
}

// Nickname renders the display name for a member from the guild's template.
// Supported placeholders: {moniker}, {handle}, {tier}. An empty template
// means the guild does not manage nicknames.
func (g *GuildConfig) Nickname(moniker string, handle types.Handle, tier types.Tier) string {
	if g.NicknameTemplate == "" {
		return ""
	}
	r := strings.NewReplacer(
		"{moniker}", moniker,
		"{handle}", handle.String(),
		"{tier}", tier.String(),
	)
	return r.Replace(g.NicknameTemplate)
}
