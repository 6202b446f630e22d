package usecase

import (
	"time"

	"github.com/guildops/tierkeeper/pkg/domain/interfaces"
	"github.com/guildops/tierkeeper/pkg/service/breaker"
	"github.com/guildops/tierkeeper/pkg/service/changelog"
	"github.com/guildops/tierkeeper/pkg/service/guildsync"
	"github.com/guildops/tierkeeper/pkg/service/ratelimit"
	"github.com/guildops/tierkeeper/pkg/service/scheduler"
)

// UseCases wires the verification pipeline: external fetch behind the
// circuit breaker and rate limiter, guild propagation, change logging and
// recheck scheduling
type UseCases struct {
	repo      interfaces.Repository
	verifier  interfaces.Verifier
	breaker   *breaker.Breaker
	limiter   *ratelimit.Limiter
	sync      *guildsync.Service
	scheduler *scheduler.Scheduler
	changelog *changelog.Service
	now       func() time.Time
}

type Option func(*UseCases)

func WithVerifier(v interfaces.Verifier) Option {
	return func(uc *UseCases) {
		uc.verifier = v
	}
}

func WithBreaker(b *breaker.Breaker) Option {
	return func(uc *UseCases) {
		uc.breaker = b
	}
}

func WithLimiter(l *ratelimit.Limiter) Option {
	return func(uc *UseCases) {
		uc.limiter = l
	}
}

func WithGuildSync(s *guildsync.Service) Option {
	return func(uc *UseCases) {
		uc.sync = s
	}
}

func WithScheduler(s *scheduler.Scheduler) Option {
	return func(uc *UseCases) {
		uc.scheduler = s
	}
}

func WithChangeLog(c *changelog.Service) Option {
	return func(uc *UseCases) {
		uc.changelog = c
	}
}

// WithClock overrides the time source, used in tests
func WithClock(now func() time.Time) Option {
	return func(uc *UseCases) {
		uc.now = now
	}
}

func New(repo interfaces.Repository, opts ...Option) *UseCases {
	uc := &UseCases{
		repo: repo,
		now:  time.Now,
	}

	for _, opt := range opts {
		opt(uc)
	}

	return uc
}
