package usecase_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/repository/memory"
	"github.com/guildops/tierkeeper/pkg/service/breaker"
	"github.com/guildops/tierkeeper/pkg/service/changelog"
	"github.com/guildops/tierkeeper/pkg/service/guildsync"
	"github.com/guildops/tierkeeper/pkg/service/queue"
	"github.com/guildops/tierkeeper/pkg/service/ratelimit"
	"github.com/guildops/tierkeeper/pkg/service/scheduler"
	"github.com/guildops/tierkeeper/pkg/usecase"
)

// stubVerifier returns canned answers and counts fetches
type stubVerifier struct {
	calls   atomic.Int32
	profile *model.OrgProfile
	err     error
}

func (v *stubVerifier) Fetch(ctx context.Context, handle types.Handle) (*model.OrgProfile, error) {
	v.calls.Add(1)
	if v.err != nil {
		return nil, v.err
	}
	return v.profile, nil
}

// stubGuild is a single-guild platform stub
type stubGuild struct {
	mu     sync.Mutex
	member *model.GuildMember
}

func (g *stubGuild) MemberGuildIDs(ctx context.Context, userID types.UserID) ([]types.GuildID, error) {
	return []types.GuildID{"G1"}, nil
}

func (g *stubGuild) GetMember(ctx context.Context, guildID types.GuildID, userID types.UserID) (*model.GuildMember, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.member == nil {
		return nil, goerr.New("not a member", goerr.T(types.TagNotFound))
	}
	cp := *g.member
	cp.Roles = append([]string(nil), g.member.Roles...)
	return &cp, nil
}

func (g *stubGuild) GrantRole(ctx context.Context, guildID types.GuildID, userID types.UserID, role string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.member.Roles = append(g.member.Roles, role)
	return nil
}

func (g *stubGuild) RevokeRole(ctx context.Context, guildID types.GuildID, userID types.UserID, role string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	var kept []string
	for _, r := range g.member.Roles {
		if r != role {
			kept = append(kept, r)
		}
	}
	g.member.Roles = kept
	return nil
}

func (g *stubGuild) SetNickname(ctx context.Context, guildID types.GuildID, userID types.UserID, nickname string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.member.Nickname = nickname
	return nil
}

type fixture struct {
	repo     interfaces.Repository
	verifier *stubVerifier
	guild    *stubGuild
	breaker  *breaker.Breaker
	queue    *queue.Queue
	uc       *usecase.UseCases
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	repo := memory.New()
	v := &stubVerifier{profile: &model.OrgProfile{
		Handle:   "alice",
		Moniker:  "Alice",
		MainOrgs: []string{"acme"},
	}}
	guild := &stubGuild{member: &model.GuildMember{
		GuildID: "G1",
		UserID:  "U1",
		Roles:   []string{"Affiliate"},
	}}

	qcfg := queue.DefaultConfig()
	qcfg.OpsPerSec = 10000
	qcfg.Burst = 10000
	qcfg.RetryBase = time.Millisecond
	q := queue.New(qcfg)
	q.Start(ctx)
	t.Cleanup(q.Stop)

	brk := breaker.New(breaker.DefaultConfig())
	cfg := &model.GuildConfig{
		ID:           "G1",
		ReferenceOrg: "acme",
		ManagedRoles: map[types.Tier][]string{
			types.TierMain:      {"Member"},
			types.TierAffiliate: {"Affiliate"},
		},
		LogChannel: "C1",
	}

	uc := usecase.New(repo,
		usecase.WithVerifier(v),
		usecase.WithBreaker(brk),
		usecase.WithLimiter(ratelimit.New(repo)),
		usecase.WithGuildSync(guildsync.New(guild, q, []*model.GuildConfig{cfg})),
		usecase.WithScheduler(scheduler.New(repo, scheduler.DefaultCadence())),
		usecase.WithChangeLog(changelog.New(repo, nil)),
	)

	return &fixture{repo: repo, verifier: v, guild: guild, breaker: brk, queue: q, uc: uc}
}

func TestRecheckUserHappyPath(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out := gt.R1(f.uc.RecheckUser(ctx, "U1", "alice", types.EventUserCheck, "@alice")).NoError(t)
	gt.Value(t, out.Kind).Equal(usecase.OutcomeOk)

	// Roles converged to the main tier
	member := gt.R1(f.guild.GetMember(ctx, "G1", "U1")).NoError(t)
	gt.Value(t, member.Roles).Equal([]string{"Member"})

	// State persisted
	state := gt.R1(f.repo.Verification().Get(ctx, "U1")).NoError(t)
	gt.Value(t, state).NotNil()
	gt.Value(t, state.GlobalTier()).Equal(types.TierMain)

	// Next recheck scheduled with a clean failure counter
	schedule := gt.R1(f.repo.Recheck().Get(ctx, "U1")).NoError(t)
	gt.Value(t, schedule).NotNil()
	gt.Value(t, schedule.FailCount).Equal(0)
}

func TestRecheckUserReusesPersistedHandle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	gt.NoError(t, f.repo.Verification().Put(ctx, &model.VerificationState{
		UserID: "U1",
		Handle: "alice",
	}))

	out := gt.R1(f.uc.RecheckUser(ctx, "U1", "", types.EventAutoRecheck, "")).NoError(t)
	gt.Value(t, out.Kind).Equal(usecase.OutcomeOk)
	gt.Value(t, f.verifier.calls.Load()).Equal(int32(1))
}

func TestRecheckUserWithoutHandleFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.uc.RecheckUser(ctx, "U1", "", types.EventAutoRecheck, "")
	gt.Error(t, err)
	gt.Value(t, f.verifier.calls.Load()).Equal(int32(0))
}

func TestRecheckUserNotFoundSchedulesBackoff(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.verifier.err = goerr.New("member not found", goerr.T(types.TagNotFound))

	out := gt.R1(f.uc.RecheckUser(ctx, "U1", "alice", types.EventUserCheck, "")).NoError(t)
	gt.Value(t, out.Kind).Equal(usecase.OutcomeNotFound)

	schedule := gt.R1(f.repo.Recheck().Get(ctx, "U1")).NoError(t)
	gt.Value(t, schedule).NotNil()
	gt.Value(t, schedule.FailCount).Equal(1)

	// The answered lookup does not trip the breaker
	gt.Bool(t, f.breaker.IsOpen()).False()
}

func TestRecheckUserTransientFailuresOpenBreaker(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.verifier.err = goerr.New("upstream down", goerr.T(types.TagTransient))

	for range 3 {
		out := gt.R1(f.uc.RecheckUser(ctx, "U1", "alice", types.EventAdminCheck, "@ops")).NoError(t)
		gt.Value(t, out.Kind).Equal(usecase.OutcomeError)
	}
	gt.Value(t, f.verifier.calls.Load()).Equal(int32(3))

	// The fourth attempt fails fast without reaching the upstream
	out := gt.R1(f.uc.RecheckUser(ctx, "U1", "alice", types.EventAdminCheck, "@ops")).NoError(t)
	gt.Value(t, out.Kind).Equal(usecase.OutcomeUnavailable)
	gt.Value(t, f.verifier.calls.Load()).Equal(int32(3))
	gt.Bool(t, out.RetryAfter > 0).True()
}

func TestRecheckUserRateLimited(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	for range 5 {
		out := gt.R1(f.uc.RecheckUser(ctx, "U1", "alice", types.EventUserCheck, "")).NoError(t)
		gt.Value(t, out.Kind).Equal(usecase.OutcomeOk)
	}

	out := gt.R1(f.uc.RecheckUser(ctx, "U1", "alice", types.EventUserCheck, "")).NoError(t)
	gt.Value(t, out.Kind).Equal(usecase.OutcomeRateLimited)

	// An admin override bypasses the limit
	out = gt.R1(f.uc.RecheckUser(ctx, "U1", "alice", types.EventAdminCheck, "@ops")).NoError(t)
	gt.Value(t, out.Kind).Equal(usecase.OutcomeOk)
	gt.Value(t, f.verifier.calls.Load()).Equal(int32(6))
}

func TestRecheckUserAutoUsesRecheckAllowance(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	out := gt.R1(f.uc.RecheckUser(ctx, "U1", "alice", types.EventAutoRecheck, "")).NoError(t)
	gt.Value(t, out.Kind).Equal(usecase.OutcomeOk)

	// A second automatic pass inside the window is held back
	out = gt.R1(f.uc.RecheckUser(ctx, "U1", "alice", types.EventAutoRecheck, "")).NoError(t)
	gt.Value(t, out.Kind).Equal(usecase.OutcomeRateLimited)
	gt.Value(t, f.verifier.calls.Load()).Equal(int32(1))

	// The interactive verification budget is untouched
	out = gt.R1(f.uc.RecheckUser(ctx, "U1", "alice", types.EventUserCheck, "@alice")).NoError(t)
	gt.Value(t, out.Kind).Equal(usecase.OutcomeOk)
}

func TestRecheckUserPreservesNameCasing(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	gt.NoError(t, f.repo.Verification().Put(ctx, &model.VerificationState{
		UserID:   "U1",
		Handle:   "alice",
		Moniker:  "ALICE",
		MainOrgs: []string{"acme"},
	}))

	out := gt.R1(f.uc.RecheckUser(ctx, "U1", "", types.EventAutoRecheck, "")).NoError(t)
	gt.Value(t, out.Kind).Equal(usecase.OutcomeOk)

	// The fetched moniker "Alice" only differs in case, so the persisted
	// casing wins
	state := gt.R1(f.repo.Verification().Get(ctx, "U1")).NoError(t)
	gt.Value(t, state.Moniker).Equal("ALICE")
}
