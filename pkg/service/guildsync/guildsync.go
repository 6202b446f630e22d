package guildsync

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/service/queue"
	"github.com/guildops/tierkeeper/pkg/utils/errutil"
	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

const (
	// DefaultBatchSize is how many guilds are processed per batch; batches
	// run sequentially as backpressure against the shared task queue
	DefaultBatchSize = 5
	// DefaultConcurrency bounds per-guild applications within one batch
	DefaultConcurrency = 3
	// DefaultFlushTimeout bounds the apply-then-observe flush per guild
	DefaultFlushTimeout = 15 * time.Second
)

// Result is the outcome of applying one verification state to one guild.
// The diff is computed lazily on first use.
type Result struct {
	GuildID types.GuildID
	UserID  types.UserID
	Before  *model.MemberSnapshot
	After   *model.MemberSnapshot

	diffOnce sync.Once
	diff     *model.SnapshotDiff
}

// Diff returns the before/after comparison, computing it on first call
func (r *Result) Diff() *model.SnapshotDiff {
	r.diffOnce.Do(func() {
		r.diff = model.Diff(r.Before, r.After)
	})
	return r.diff
}

// Service applies one externally-derived verification state to every guild
// the user belongs to
type Service struct {
	guild  interfaces.GuildClient
	queue  *queue.Queue
	guilds map[types.GuildID]*model.GuildConfig

	batchSize    int
	concurrency  int
	flushTimeout time.Duration
}

// Option is a functional option for service construction
type Option func(*Service)

// WithBatchSize overrides the guild batch size
func WithBatchSize(n int) Option {
	return func(s *Service) {
		s.batchSize = n
	}
}

// WithConcurrency overrides the in-batch concurrency bound
func WithConcurrency(n int) Option {
	return func(s *Service) {
		s.concurrency = n
	}
}

// WithFlushTimeout overrides the per-guild flush deadline
func WithFlushTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.flushTimeout = d
	}
}

// New creates a guild sync service over the configured guilds
func New(guild interfaces.GuildClient, q *queue.Queue, configs []*model.GuildConfig, opts ...Option) *Service {
	guilds := make(map[types.GuildID]*model.GuildConfig, len(configs))
	for _, cfg := range configs {
		guilds[cfg.ID] = cfg
	}

	s := &Service{
		guild:        guild,
		queue:        q,
		guilds:       guilds,
		batchSize:    DefaultBatchSize,
		concurrency:  DefaultConcurrency,
		flushTimeout: DefaultFlushTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GuildConfigs returns the typed per-guild configurations
func (s *Service) GuildConfigs() map[types.GuildID]*model.GuildConfig {
	return s.guilds
}

// SyncAll applies the state to every guild the user currently belongs to.
// Guilds are partitioned into batches; within a batch up to the concurrency
// bound run in parallel, batches run sequentially. A per-guild failure is
// logged and produces no result; it never aborts the batch or later
// batches.
func (s *Service) SyncAll(ctx context.Context, state *model.VerificationState) []*Result {
	guildIDs := s.activeGuildIDs(ctx, state.UserID)

	var results []*Result
	for start := 0; start < len(guildIDs); start += s.batchSize {
		end := min(start+s.batchSize, len(guildIDs))
		batch := guildIDs[start:end]

		batchResults := make([]*Result, len(batch))
		eg, egCtx := errgroup.WithContext(ctx)
		eg.SetLimit(s.concurrency)

		for i, guildID := range batch {
			eg.Go(func() error {
				res, err := s.ApplyToGuild(egCtx, state, guildID)
				if err != nil {
					_ = errutil.Handle(egCtx, err, "guild sync failed for guild")
					return nil
				}
				batchResults[i] = res
				return nil
			})
		}
		_ = eg.Wait()

		for _, res := range batchResults {
			if res != nil {
				results = append(results, res)
			}
		}
	}

	return results
}

// activeGuildIDs resolves the user's guilds from the membership index,
// falling back to scanning all configured guilds when the index is
// unavailable. Unconfigured guilds are dropped either way.
func (s *Service) activeGuildIDs(ctx context.Context, userID types.UserID) []types.GuildID {
	ids, err := s.guild.MemberGuildIDs(ctx, userID)
	if err != nil {
		logging.From(ctx).Warn("membership index unavailable, scanning all configured guilds",
			"user_id", userID, "error", err.Error())
		ids = make([]types.GuildID, 0, len(s.guilds))
		for id := range s.guilds {
			ids = append(ids, id)
		}
		return ids
	}

	var known []types.GuildID
	for _, id := range ids {
		if _, ok := s.guilds[id]; ok {
			known = append(known, id)
		}
	}
	return known
}
