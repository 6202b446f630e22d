package breaker

import (
	"sync"
	"time"
)

// State represents the admission state of the breaker
type State int

const (
	// StateClosed allows all calls through
	StateClosed State = iota
	// StateOpen rejects all calls
	StateOpen
	// StateHalfOpen admits probe calls to test recovery
	StateHalfOpen
)

// String returns the human-readable name for the state
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// Config configures the breaker thresholds and backoff
type Config struct {
	// Threshold is the number of consecutive failures before opening
	Threshold int
	// ResetTimeout is the open duration before the first half-open probe
	ResetTimeout time.Duration
	// BackoffBase is the base of the exponential backoff applied after
	// repeated re-opens
	BackoffBase time.Duration
	// BackoffMax caps the computed backoff
	BackoffMax time.Duration
}

// DefaultConfig returns the default breaker configuration
func DefaultConfig() Config {
	return Config{
		Threshold:    3,
		ResetTimeout: 300 * time.Second,
		BackoffBase:  60 * time.Second,
		BackoffMax:   3600 * time.Second,
	}
}

// Breaker protects the external fetch from repeated failures. It is a
// process-wide singleton guarded by a single mutex; the open-to-half-open
// transition is evaluated lazily on read rather than by a timer.
//
// Half-open intentionally admits callers with no single-admission lock:
// callers needing exactly-one-probe semantics must add their own
// serialization.
type Breaker struct {
	cfg Config

	mu               sync.Mutex
	state            State
	failureCount     int
	consecutiveOpens int
	lastFailure      time.Time

	now func() time.Time
}

// Option is a functional option for breaker construction
type Option func(*Breaker)

// WithClock overrides the time source, used in tests
func WithClock(now func() time.Time) Option {
	return func(b *Breaker) {
		b.now = now
	}
}

// New creates a breaker in the closed state
func New(cfg Config, opts ...Option) *Breaker {
	b := &Breaker{
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// currentBackoff is ResetTimeout for a fresh open, then compounds
// exponentially with each consecutive re-open up to BackoffMax
func (b *Breaker) currentBackoff() time.Duration {
	if b.consecutiveOpens == 0 {
		return b.cfg.ResetTimeout
	}
	backoff := b.cfg.BackoffBase << b.consecutiveOpens
	if backoff > b.cfg.BackoffMax || backoff <= 0 {
		backoff = b.cfg.BackoffMax
	}
	return backoff
}

// evaluate applies the lazy OPEN to HALF_OPEN transition. Callers must hold
// the mutex.
func (b *Breaker) evaluate(now time.Time) {
	if b.state == StateOpen && now.Sub(b.lastFailure) >= b.currentBackoff() {
		b.state = StateHalfOpen
	}
}

// IsOpen reports whether calls should be rejected. It is true only while
// strictly open; half-open admits callers.
func (b *Breaker) IsOpen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.evaluate(b.now())
	return b.state == StateOpen
}

// TimeUntilRetry returns how long until the next probe is admitted, or zero
// when calls are already admitted
func (b *Breaker) TimeUntilRetry() time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.evaluate(now)
	if b.state != StateOpen {
		return 0
	}

	remaining := b.currentBackoff() - now.Sub(b.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordSuccess closes the breaker from any state and resets all counters
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.consecutiveOpens = 0
}

// RecordFailure counts a failure. At the threshold the breaker opens fresh;
// a failed half-open probe re-opens it with compounded backoff.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.evaluate(now)

	switch b.state {
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.Threshold {
			b.state = StateOpen
			b.consecutiveOpens = 0
		}

	case StateHalfOpen:
		b.state = StateOpen
		b.consecutiveOpens++
		b.failureCount++

	case StateOpen:
		// Failure from a call that was in flight when the breaker opened
		b.failureCount++
	}

	b.lastFailure = now
}

// Reset forces the breaker back to closed, clearing all counters
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failureCount = 0
	b.consecutiveOpens = 0
	b.lastFailure = time.Time{}
}

// Status is an observability snapshot of the breaker
type Status struct {
	State            string        `json:"state"`
	FailureCount     int           `json:"failure_count"`
	ConsecutiveOpens int           `json:"consecutive_opens"`
	LastFailure      time.Time     `json:"last_failure,omitzero"`
	RetryIn          time.Duration `json:"retry_in"`
}

// Status returns the current breaker state for observability
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	b.evaluate(now)

	status := Status{
		State:            b.state.String(),
		FailureCount:     b.failureCount,
		ConsecutiveOpens: b.consecutiveOpens,
		LastFailure:      b.lastFailure,
	}
	if b.state == StateOpen {
		if remaining := b.currentBackoff() - now.Sub(b.lastFailure); remaining > 0 {
			status.RetryIn = remaining
		}
	}
	return status
}
