package changelog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/utils/async"
	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

// DefaultDedupWindow suppresses identical change sets from overlapping call
// paths within this window
const DefaultDedupWindow = 20 * time.Second

// Service turns a ChangeSet into at most one rendered audit record and
// posts it to the notification sink
type Service struct {
	repo        interfaces.Repository
	sink        interfaces.NotificationSink
	dedupWindow time.Duration
	now         func() time.Time
}

// Option is a functional option for service construction
type Option func(*Service)

// WithDedupWindow overrides the dedup window
func WithDedupWindow(d time.Duration) Option {
	return func(s *Service) {
		s.dedupWindow = d
	}
}

// WithClock overrides the time source, used in tests
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// New creates a change log service. A nil sink disables posting; records
// are still built and deduplicated for the caller.
func New(repo interfaces.Repository, sink interfaces.NotificationSink, opts ...Option) *Service {
	s := &Service{
		repo:        repo,
		sink:        sink,
		dedupWindow: DefaultDedupWindow,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Log builds, deduplicates and posts the record for one change set.
// Returns nil when the event is suppressed. Sink failures are logged and
// never returned.
func (s *Service) Log(ctx context.Context, cs *model.ChangeSet, channel types.ChannelID) (*model.ChangeRecord, error) {
	rec := Build(cs)
	if rec == nil {
		return nil, nil
	}

	claimed, err := s.repo.Fingerprint().Claim(ctx, cs.Signature(), s.now(), s.dedupWindow)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to check change fingerprint", goerr.V("userID", cs.UserID))
	}
	if !claimed {
		logging.From(ctx).Debug("duplicate change record suppressed",
			"user_id", cs.UserID, "guild_id", cs.GuildID)
		return nil, nil
	}

	if s.sink != nil && channel != "" {
		message := rec.Render()
		async.Dispatch(ctx, func(ctx context.Context) error {
			if err := s.sink.Post(ctx, channel, message); err != nil {
				// Fire-and-forget: log, never raise
				logging.From(ctx).Warn("failed to post change record",
					"channel", channel, "error", err.Error())
			}
			return nil
		})
	}

	return rec, nil
}

// Build applies the suppression rules and renders the record. It is a pure
// function over the change set except that case-only name changes are
// rewritten back to the "before" value in place, so later diffs against
// the persisted state do not re-trigger.
//
// A record survives suppression when at least one holds:
//   - an explicit error or override note is present
//   - the tier differs (case-insensitive)
//   - moniker, handle or display name differ beyond casing
//   - a managed-role delta exists
//
// For fully-automatic events an organization-list transition from empty to
// populated is treated as backfill and suppressed outright. Interactive
// events with no material change produce a header-only "No changes"
// record; automatic ones produce nothing.
func Build(cs *model.ChangeSet) *model.ChangeRecord {
	before, after := cs.Before, cs.After
	if before == nil || after == nil {
		return nil
	}

	rewriteCaseOnly(before, after)

	diff := model.Diff(before, after)

	hasNote := cs.Error != "" || len(cs.Notes) > 0
	tierChanged := !strings.EqualFold(before.Tier.String(), after.Tier.String())
	nameChanged := false
	for _, f := range diff.Fields {
		if f.Field != "tier" {
			nameChanged = true
		}
	}
	roleDelta := len(diff.RolesAdded) > 0 || len(diff.RolesRemoved) > 0

	if !cs.Event.Interactive() && len(cs.BeforeOrgs) == 0 && len(cs.AfterOrgs) > 0 && !hasNote {
		// Backfill of a never-fetched organization list, not a change
		return nil
	}

	material := hasNote || tierChanged || nameChanged || roleDelta
	if !material {
		if cs.Event.Interactive() {
			return &model.ChangeRecord{Header: header(cs, "no changes")}
		}
		return nil
	}

	outcome := "updated"
	if cs.Error != "" {
		outcome = "error"
	}

	rec := &model.ChangeRecord{Header: header(cs, outcome)}
	for _, f := range diff.Fields {
		rec.AddLine(fieldLabel(f.Field), f.Before, f.After)
	}
	if len(diff.RolesAdded) > 0 {
		rec.Lines = append(rec.Lines, "Roles added: "+strings.Join(diff.RolesAdded, ", "))
	}
	if len(diff.RolesRemoved) > 0 {
		rec.Lines = append(rec.Lines, "Roles removed: "+strings.Join(diff.RolesRemoved, ", "))
	}
	if cs.Error != "" {
		rec.Lines = append(rec.Lines, "Error: "+cs.Error)
	}
	for _, note := range cs.Notes {
		rec.Lines = append(rec.Lines, "Note: "+note)
	}
	return rec
}

// rewriteCaseOnly resets case-only name differences to the before value
func rewriteCaseOnly(before, after *model.MemberSnapshot) {
	if strings.EqualFold(before.Moniker, after.Moniker) {
		after.Moniker = before.Moniker
	}
	if strings.EqualFold(before.Handle.String(), after.Handle.String()) {
		after.Handle = before.Handle
	}
	if strings.EqualFold(before.DisplayName, after.DisplayName) {
		after.DisplayName = before.DisplayName
	}
}

func header(cs *model.ChangeSet, outcome string) string {
	initiator := cs.Initiator
	if initiator == "" {
		initiator = "scheduler"
	}
	return fmt.Sprintf("[%s] %s by %s: %s", cs.Event, cs.UserID, initiator, outcome)
}

func fieldLabel(field string) string {
	switch field {
	case "tier":
		return "Tier"
	case "moniker":
		return "Moniker"
	case "handle":
		return "Handle"
	case "display_name":
		return "Display name"
	default:
		return field
	}
}
