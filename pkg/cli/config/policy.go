package config

import (
	"os"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/urfave/cli/v3"
	"golang.org/x/time/rate"

	"github.com/guildops/tierkeeper/pkg/domain/model"
	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/service/breaker"
	"github.com/guildops/tierkeeper/pkg/service/queue"
	"github.com/guildops/tierkeeper/pkg/service/ratelimit"
	"github.com/guildops/tierkeeper/pkg/service/scheduler"
)

// Policy holds the CLI flag pointing at the policy file
type Policy struct {
	path string
}

// Flags returns CLI flags for policy configuration
func (p *Policy) Flags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:        "policy",
			Usage:       "Path to the policy TOML file",
			Required:    true,
			Sources:     cli.EnvVars("TIERKEEPER_POLICY"),
			Destination: &p.path,
		},
	}
}

// Configure loads, defaults and validates the policy file
func (p *Policy) Configure() (*AppPolicy, error) {
	raw, err := os.ReadFile(p.path)
	if err != nil {
		return nil, goerr.Wrap(err, "failed to read policy file", goerr.V("path", p.path))
	}

	var policy AppPolicy
	if err := toml.Unmarshal(raw, &policy); err != nil {
		return nil, goerr.Wrap(err, "failed to parse policy file", goerr.V("path", p.path))
	}

	policy.applyDefaults()
	if err := policy.Validate(); err != nil {
		return nil, goerr.Wrap(err, "invalid policy", goerr.V("path", p.path))
	}

	return &policy, nil
}

// AppPolicy is the full policy file: guilds plus tunables for the breaker,
// rate limits, task queue, sync batching and recheck cadence. Every
// tunable has a default, so a minimal file only lists guilds.
type AppPolicy struct {
	Guilds  []Guild       `toml:"guild"`
	Cadence CadencePolicy `toml:"cadence"`
	Limits  LimitsPolicy  `toml:"limits"`
	Queue   QueuePolicy   `toml:"queue"`
	Breaker BreakerPolicy `toml:"breaker"`
	Sync    SyncPolicy    `toml:"sync"`
}

// Guild is one managed guild entry
type Guild struct {
	ID               string              `toml:"id"`
	Name             string              `toml:"name"`
	ReferenceOrg     string              `toml:"reference_org"`
	Roles            map[string][]string `toml:"roles"`
	NicknameTemplate string              `toml:"nickname_template"`
	LogChannel       string              `toml:"log_channel"`
}

// Validate checks one guild entry
func (g *Guild) Validate() error {
	return g.toModel().Validate()
}

func (g *Guild) toModel() *model.GuildConfig {
	managed := make(map[types.Tier][]string, len(g.Roles))
	for tier, roles := range g.Roles {
		managed[types.Tier(tier)] = roles
	}
	return &model.GuildConfig{
		ID:               types.GuildID(g.ID),
		Name:             g.Name,
		ReferenceOrg:     g.ReferenceOrg,
		ManagedRoles:     managed,
		NicknameTemplate: g.NicknameTemplate,
		LogChannel:       types.ChannelID(g.LogChannel),
	}
}

// CadencePolicy tunes recheck intervals per tier
type CadencePolicy struct {
	MainDays        int     `toml:"main_days"`
	AffiliateDays   int     `toml:"affiliate_days"`
	NonMemberDays   int     `toml:"non_member_days"`
	UnknownDays     int     `toml:"unknown_days"`
	JitterHours     float64 `toml:"jitter_hours"`
	BackoffBaseSecs int     `toml:"backoff_base_secs"`
	BackoffMaxSecs  int     `toml:"backoff_max_secs"`
}

// LimitsPolicy tunes per-user attempt caps
type LimitsPolicy struct {
	Verification LimitPolicy `toml:"verification"`
	Recheck      LimitPolicy `toml:"recheck"`
}

// LimitPolicy is one attempt cap over a sliding window
type LimitPolicy struct {
	MaxAttempts int `toml:"max_attempts"`
	WindowSecs  int `toml:"window_secs"`
}

// QueuePolicy tunes the guild mutation queue
type QueuePolicy struct {
	Workers     int     `toml:"workers"`
	OpsPerSec   float64 `toml:"ops_per_sec"`
	MaxAttempts int     `toml:"max_attempts"`
	RetryBaseMS int     `toml:"retry_base_ms"`
}

// BreakerPolicy tunes the verification circuit breaker
type BreakerPolicy struct {
	Threshold        int `toml:"threshold"`
	ResetTimeoutSecs int `toml:"reset_timeout_secs"`
	BackoffBaseSecs  int `toml:"backoff_base_secs"`
	BackoffMaxSecs   int `toml:"backoff_max_secs"`
}

// SyncPolicy tunes guild sync batching
type SyncPolicy struct {
	BatchSize   int `toml:"batch_size"`
	Concurrency int `toml:"concurrency"`
}

func (a *AppPolicy) applyDefaults() {
	cadence := scheduler.DefaultCadence()
	if a.Cadence.MainDays == 0 {
		a.Cadence.MainDays = cadence.DaysByTier[types.TierMain]
	}
	if a.Cadence.AffiliateDays == 0 {
		a.Cadence.AffiliateDays = cadence.DaysByTier[types.TierAffiliate]
	}
	if a.Cadence.NonMemberDays == 0 {
		a.Cadence.NonMemberDays = cadence.DaysByTier[types.TierNonMember]
	}
	if a.Cadence.UnknownDays == 0 {
		a.Cadence.UnknownDays = cadence.DaysByTier[types.TierUnknown]
	}
	if a.Cadence.JitterHours == 0 {
		a.Cadence.JitterHours = cadence.JitterHours
	}
	if a.Cadence.BackoffBaseSecs == 0 {
		a.Cadence.BackoffBaseSecs = int(cadence.BackoffBase / time.Second)
	}
	if a.Cadence.BackoffMaxSecs == 0 {
		a.Cadence.BackoffMaxSecs = int(cadence.BackoffMax / time.Second)
	}

	limits := ratelimit.DefaultPolicies()
	if a.Limits.Verification.MaxAttempts == 0 {
		a.Limits.Verification.MaxAttempts = limits[types.ActionVerification].MaxAttempts
	}
	if a.Limits.Verification.WindowSecs == 0 {
		a.Limits.Verification.WindowSecs = int(limits[types.ActionVerification].Window / time.Second)
	}
	if a.Limits.Recheck.MaxAttempts == 0 {
		a.Limits.Recheck.MaxAttempts = limits[types.ActionRecheck].MaxAttempts
	}
	if a.Limits.Recheck.WindowSecs == 0 {
		a.Limits.Recheck.WindowSecs = int(limits[types.ActionRecheck].Window / time.Second)
	}

	qcfg := queue.DefaultConfig()
	if a.Queue.Workers == 0 {
		a.Queue.Workers = qcfg.Workers
	}
	if a.Queue.OpsPerSec == 0 {
		a.Queue.OpsPerSec = float64(qcfg.OpsPerSec)
	}
	if a.Queue.MaxAttempts == 0 {
		a.Queue.MaxAttempts = qcfg.MaxAttempts
	}
	if a.Queue.RetryBaseMS == 0 {
		a.Queue.RetryBaseMS = int(qcfg.RetryBase / time.Millisecond)
	}

	bcfg := breaker.DefaultConfig()
	if a.Breaker.Threshold == 0 {
		a.Breaker.Threshold = bcfg.Threshold
	}
	if a.Breaker.ResetTimeoutSecs == 0 {
		a.Breaker.ResetTimeoutSecs = int(bcfg.ResetTimeout / time.Second)
	}
	if a.Breaker.BackoffBaseSecs == 0 {
		a.Breaker.BackoffBaseSecs = int(bcfg.BackoffBase / time.Second)
	}
	if a.Breaker.BackoffMaxSecs == 0 {
		a.Breaker.BackoffMaxSecs = int(bcfg.BackoffMax / time.Second)
	}

	if a.Sync.BatchSize == 0 {
		a.Sync.BatchSize = 5
	}
	if a.Sync.Concurrency == 0 {
		a.Sync.Concurrency = 3
	}
}

// Validate checks the full policy
func (a *AppPolicy) Validate() error {
	if len(a.Guilds) == 0 {
		return goerr.New("at least one guild is required")
	}

	guildIDs := make(map[string]bool)
	for _, g := range a.Guilds {
		if err := g.Validate(); err != nil {
			return goerr.Wrap(err, "invalid guild")
		}
		if guildIDs[g.ID] {
			return goerr.New("duplicate guild ID", goerr.V("id", g.ID))
		}
		guildIDs[g.ID] = true
	}

	if a.Queue.Workers < 1 {
		return goerr.New("queue workers must be positive", goerr.V("workers", a.Queue.Workers))
	}
	if a.Breaker.Threshold < 1 {
		return goerr.New("breaker threshold must be positive", goerr.V("threshold", a.Breaker.Threshold))
	}
	if a.Limits.Verification.MaxAttempts < 1 || a.Limits.Recheck.MaxAttempts < 1 {
		return goerr.New("rate limit max attempts must be positive")
	}

	return nil
}

// GuildConfigs converts the guild entries to their typed form
func (a *AppPolicy) GuildConfigs() []*model.GuildConfig {
	configs := make([]*model.GuildConfig, len(a.Guilds))
	for i, g := range a.Guilds {
		configs[i] = g.toModel()
	}
	return configs
}

// CadenceConfig converts the cadence policy to its typed form
func (a *AppPolicy) CadenceConfig() scheduler.CadenceConfig {
	return scheduler.CadenceConfig{
		DaysByTier: map[types.Tier]int{
			types.TierMain:      a.Cadence.MainDays,
			types.TierAffiliate: a.Cadence.AffiliateDays,
			types.TierNonMember: a.Cadence.NonMemberDays,
			types.TierUnknown:   a.Cadence.UnknownDays,
		},
		JitterHours: a.Cadence.JitterHours,
		BackoffBase: time.Duration(a.Cadence.BackoffBaseSecs) * time.Second,
		BackoffMax:  time.Duration(a.Cadence.BackoffMaxSecs) * time.Second,
	}
}

// LimiterOptions converts the limit policies to limiter options
func (a *AppPolicy) LimiterOptions() []ratelimit.Option {
	return []ratelimit.Option{
		ratelimit.WithPolicy(types.ActionVerification, ratelimit.Policy{
			MaxAttempts: a.Limits.Verification.MaxAttempts,
			Window:      time.Duration(a.Limits.Verification.WindowSecs) * time.Second,
		}),
		ratelimit.WithPolicy(types.ActionRecheck, ratelimit.Policy{
			MaxAttempts: a.Limits.Recheck.MaxAttempts,
			Window:      time.Duration(a.Limits.Recheck.WindowSecs) * time.Second,
		}),
	}
}

// QueueConfig converts the queue policy to its typed form
func (a *AppPolicy) QueueConfig() queue.Config {
	cfg := queue.DefaultConfig()
	cfg.Workers = a.Queue.Workers
	cfg.OpsPerSec = rate.Limit(a.Queue.OpsPerSec)
	cfg.Burst = a.Queue.MaxAttempts * a.Queue.Workers
	if burst := int(a.Queue.OpsPerSec); burst > cfg.Burst {
		cfg.Burst = burst
	}
	cfg.MaxAttempts = a.Queue.MaxAttempts
	cfg.RetryBase = time.Duration(a.Queue.RetryBaseMS) * time.Millisecond
	return cfg
}

// BreakerConfig converts the breaker policy to its typed form
func (a *AppPolicy) BreakerConfig() breaker.Config {
	return breaker.Config{
		Threshold:    a.Breaker.Threshold,
		ResetTimeout: time.Duration(a.Breaker.ResetTimeoutSecs) * time.Second,
		BackoffBase:  time.Duration(a.Breaker.BackoffBaseSecs) * time.Second,
		BackoffMax:   time.Duration(a.Breaker.BackoffMaxSecs) * time.Second,
	}
}
