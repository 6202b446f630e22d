package breaker_test

import (
	"testing"
	"time"

	"github.com/m-mizutani/gt"

	"github.com/guildops/tierkeeper/pkg/service/breaker"
)

type fakeClock struct {
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.now = c.now.Add(d)
}

func newTestBreaker(cfg breaker.Config) (*breaker.Breaker, *fakeClock) {
	clock := &fakeClock{now: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	return breaker.New(cfg, breaker.WithClock(clock.Now)), clock
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(breaker.DefaultConfig())

	b.RecordFailure()
	b.RecordFailure()
	gt.Bool(t, b.IsOpen()).False()

	b.RecordFailure()
	gt.Bool(t, b.IsOpen()).True()
	gt.Value(t, b.Status().State).Equal("open")
}

func TestBreakerTimeUntilRetryDecreases(t *testing.T) {
	b, clock := newTestBreaker(breaker.DefaultConfig())

	for range 3 {
		b.RecordFailure()
	}
	gt.Value(t, b.TimeUntilRetry()).Equal(300 * time.Second)

	clock.Advance(100 * time.Second)
	gt.Value(t, b.TimeUntilRetry()).Equal(200 * time.Second)
}

func TestBreakerHalfOpenAfterResetTimeout(t *testing.T) {
	b, clock := newTestBreaker(breaker.DefaultConfig())

	for range 3 {
		b.RecordFailure()
	}
	gt.Bool(t, b.IsOpen()).True()

	clock.Advance(300 * time.Second)
	gt.Bool(t, b.IsOpen()).False()
	gt.Value(t, b.Status().State).Equal("half_open")
}

func TestBreakerSuccessClosesAndResets(t *testing.T) {
	b, clock := newTestBreaker(breaker.DefaultConfig())

	for range 3 {
		b.RecordFailure()
	}
	clock.Advance(300 * time.Second)

	b.RecordSuccess()
	st := b.Status()
	gt.Value(t, st.State).Equal("closed")
	gt.Value(t, st.FailureCount).Equal(0)
	gt.Value(t, st.ConsecutiveOpens).Equal(0)
}

func TestBreakerProbeFailureCompoundsBackoff(t *testing.T) {
	b, clock := newTestBreaker(breaker.DefaultConfig())

	for range 3 {
		b.RecordFailure()
	}

	// First probe fails: backoff becomes base << 1 = 120s
	clock.Advance(300 * time.Second)
	gt.Bool(t, b.IsOpen()).False()
	b.RecordFailure()
	gt.Bool(t, b.IsOpen()).True()
	gt.Value(t, b.TimeUntilRetry()).Equal(120 * time.Second)

	// Second probe fails: 240s
	clock.Advance(120 * time.Second)
	gt.Bool(t, b.IsOpen()).False()
	b.RecordFailure()
	gt.Value(t, b.TimeUntilRetry()).Equal(240 * time.Second)
}

func TestBreakerBackoffPlateausAtMax(t *testing.T) {
	b, clock := newTestBreaker(breaker.DefaultConfig())

	for range 3 {
		b.RecordFailure()
	}

	wait := 300 * time.Second
	for range 10 {
		clock.Advance(wait)
		b.RecordFailure()
		wait = b.TimeUntilRetry()
	}
	gt.Value(t, wait).Equal(3600 * time.Second)
}

func TestBreakerFailureWhileOpenDoesNotCompound(t *testing.T) {
	b, _ := newTestBreaker(breaker.DefaultConfig())

	for range 3 {
		b.RecordFailure()
	}
	b.RecordFailure()

	st := b.Status()
	gt.Value(t, st.State).Equal("open")
	gt.Value(t, st.ConsecutiveOpens).Equal(0)
	gt.Value(t, b.TimeUntilRetry()).Equal(300 * time.Second)
}

func TestBreakerReset(t *testing.T) {
	b, _ := newTestBreaker(breaker.DefaultConfig())

	for range 3 {
		b.RecordFailure()
	}
	b.Reset()
	gt.Bool(t, b.IsOpen()).False()
	gt.Value(t, b.Status().State).Equal("closed")
}
