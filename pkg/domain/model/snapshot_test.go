package model_test

import (
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
)

func snapshot(tier types.Tier, moniker string, roles ...string) *model.MemberSnapshot {
	return &model.MemberSnapshot{
		GuildID:     "G1",
		UserID:      "U1",
		Tier:        tier,
		Moniker:     moniker,
		Handle:      "alice",
		DisplayName: "Alice",
		Roles:       roles,
	}
}

func TestDiffIdenticalSnapshots(t *testing.T) {
	a := snapshot(types.TierMain, "Alice", "Member")
	b := snapshot(types.TierMain, "Alice", "Member")

	d := model.Diff(a, b)
	gt.Bool(t, d.Empty()).True()
}

func TestDiffFieldChanges(t *testing.T) {
	before := snapshot(types.TierAffiliate, "Alice")
	after := snapshot(types.TierMain, "Alicia")

	d := model.Diff(before, after)
	gt.Array(t, d.Fields).Length(2)
	gt.Value(t, d.Fields[0]).Equal(model.FieldChange{Field: "tier", Before: "affiliate", After: "main"})
	gt.Value(t, d.Fields[1]).Equal(model.FieldChange{Field: "moniker", Before: "Alice", After: "Alicia"})
}

func TestDiffRoleSets(t *testing.T) {
	before := snapshot(types.TierMain, "Alice", "Member", "Veteran")
	after := snapshot(types.TierMain, "Alice", "Member", "Council", "Archivist")

	d := model.Diff(before, after)
	gt.Array(t, d.Fields).Length(0)
	gt.Value(t, d.RolesAdded).Equal([]string{"Archivist", "Council"})
	gt.Value(t, d.RolesRemoved).Equal([]string{"Veteran"})
}

func TestDiffDuplicateRolesCountOnce(t *testing.T) {
	before := snapshot(types.TierMain, "Alice", "Member")
	after := snapshot(types.TierMain, "Alice", "Member", "Council", "Council")

	d := model.Diff(before, after)
	gt.Value(t, d.RolesAdded).Equal([]string{"Council"})
}

func TestDiffRoleOrderIrrelevant(t *testing.T) {
	before := snapshot(types.TierMain, "Alice", "A", "B", "C")
	after := snapshot(types.TierMain, "Alice", "C", "B", "A")

	d := model.Diff(before, after)
	gt.Bool(t, d.Empty()).True()
}
