package model

import (
	"sort"

	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// MemberSnapshot is a point-in-time capture of everything this system can
// observe about a member in one guild. Roles contain only locally managed
// role names; platform and integration-owned roles are excluded as noise
// this system cannot affect. Snapshots are created on demand and never
// stored.
type MemberSnapshot struct {
	GuildID     types.GuildID
	UserID      types.UserID
	Tier        types.Tier
	Moniker     string
	Handle      types.Handle
	DisplayName string
	Roles       []string
}

// FieldChange is one before/after pair in a snapshot diff
type FieldChange struct {
	Field  string
	Before string
	After  string
}

// SnapshotDiff is the derived comparison of two snapshots. RolesAdded and
// RolesRemoved are set differences, sorted for deterministic rendering.
type SnapshotDiff struct {
	Before       *MemberSnapshot
	After        *MemberSnapshot
	Fields       []FieldChange
	RolesAdded   []string
	RolesRemoved []string
}

// Empty reports whether the diff contains no changes at all
func (d *SnapshotDiff) Empty() bool {
	return len(d.Fields) == 0 && len(d.RolesAdded) == 0 && len(d.RolesRemoved) == 0
}

// Diff compares two snapshots field by field. It is a pure function and
// performs no I/O.
func Diff(before, after *MemberSnapshot) *SnapshotDiff {
	d := &SnapshotDiff{
		Before: before,
		After:  after,
	}

	pairs := []struct {
		field  string
		before string
		after  string
	}{
		{"tier", before.Tier.String(), after.Tier.String()},
		{"moniker", before.Moniker, after.Moniker},
		{"handle", before.Handle.String(), after.Handle.String()},
		{"display_name", before.DisplayName, after.DisplayName},
	}
	for _, p := range pairs {
		if p.before != p.after {
			d.Fields = append(d.Fields, FieldChange{
				Field:  p.field,
				Before: p.before,
				After:  p.after,
			})
		}
	}

	d.RolesAdded = subtractRoles(after.Roles, before.Roles)
	d.RolesRemoved = subtractRoles(before.Roles, after.Roles)

	return d
}

// subtractRoles returns the sorted set difference a minus b
func subtractRoles(a, b []string) []string {
	exclude := make(map[string]bool, len(b))
	for _, r := range b {
		exclude[r] = true
	}

	var result []string
	seen := make(map[string]bool, len(a))
	for _, r := range a {
		if !exclude[r] && !seen[r] {
			result = append(result, r)
			seen[r] = true
		}
	}

	sort.Strings(result)
	return result
}
