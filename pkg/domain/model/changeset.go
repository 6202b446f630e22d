package model

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"

	"github.com/guildops/tierkeeper/pkg/domain/types"
)

// ChangeSet aggregates everything about one verification event that the
// change log might render: before/after snapshots, the before/after
// organization lists, initiator metadata and free-text notes. It is consumed
// immediately to render at most one record, then discarded except for its
// short-lived dedup fingerprint.
type ChangeSet struct {
	UserID     types.UserID
	GuildID    types.GuildID
	Event      types.EventType
	Initiator  string
	Error      string
	Notes      []string
	Before     *MemberSnapshot
	After      *MemberSnapshot
	BeforeOrgs []string
	AfterOrgs  []string
}

// Signature is the normalized fingerprint input of all compared fields.
// Identical signatures for the same user within the dedup window are
// suppressed as duplicate triggers.
func (c *ChangeSet) Signature() string {
	var parts []string
	parts = append(parts, c.UserID.String(), c.GuildID.String())
	for _, s := range []*MemberSnapshot{c.Before, c.After} {
		if s == nil {
			parts = append(parts, "-")
			continue
		}
		roles := append([]string(nil), s.Roles...)
		sort.Strings(roles)
		parts = append(parts,
			strings.ToLower(s.Tier.String()),
			strings.ToLower(s.Moniker),
			strings.ToLower(s.Handle.String()),
			strings.ToLower(s.DisplayName),
			strings.Join(roles, ","),
		)
	}
	parts = append(parts, c.Error)
	parts = append(parts, c.Notes...)

	sum := sha256.Sum256([]byte(strings.Join(parts, "\x1f")))
	return hex.EncodeToString(sum[:])
}

// ChangeRecord is one rendered, audit-worthy change message
type ChangeRecord struct {
	Header string
	Lines  []string
}

// Render formats the record as a single message: one header line followed by
// one "Field: old → new" line per changed field
func (r *ChangeRecord) Render() string {
	if len(r.Lines) == 0 {
		return r.Header
	}
	var b strings.Builder
	b.WriteString(r.Header)
	for _, line := range r.Lines {
		b.WriteString("\n")
		b.WriteString(line)
	}
	return b.String()
}

// AddLine appends one field change line
func (r *ChangeRecord) AddLine(field, before, after string) {
	r.Lines = append(r.Lines, fmt.Sprintf("%s: %s → %s", field, printable(before), printable(after)))
}

func printable(s string) string {
	if s == "" {
		return "(none)"
	}
	return s
}
