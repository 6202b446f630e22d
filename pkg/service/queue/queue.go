package queue

import (
	"context"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/m-mizutani/goerr/v2"
	"golang.org/x/time/rate"

	"github.com/guildops/tierkeeper/pkg/domain/types"
	"github.com/guildops/tierkeeper/pkg/utils/logging"
)

// TaskFunc is one side-effecting call against the community platform
type TaskFunc func(ctx context.Context) error

// Config configures the queue workers, throttle and retry policy
type Config struct {
	// Workers is the number of long-lived consumer goroutines
	Workers int
	// OpsPerSec is the shared token bucket matching the platform's own
	// rate limits
	OpsPerSec rate.Limit
	// Burst is the token bucket burst size
	Burst int
	// MaxAttempts is the total attempt budget per task, including the
	// first one
	MaxAttempts int
	// RetryBase is the first retry delay, doubled on each further retry
	RetryBase time.Duration
	// RetryJitter is the maximum fractional jitter added to each delay
	RetryJitter float64
}

// DefaultConfig returns the default queue configuration
func DefaultConfig() Config {
	return Config{
		Workers:     2,
		OpsPerSec:   45,
		Burst:       45,
		MaxAttempts: 3,
		RetryBase:   500 * time.Millisecond,
		RetryJitter: 0.10,
	}
}

// Handle is resolved once the task's final outcome is known: success,
// permanent failure, or retries exhausted
type Handle struct {
	ID   string
	Name string

	done     chan struct{}
	err      error
	attempts int
}

// Done is closed when the task has resolved
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the final error. Only valid after Done is closed.
func (h *Handle) Err() error {
	return h.err
}

// Attempts returns how many times the task ran. Only valid after Done is
// closed.
func (h *Handle) Attempts() int {
	return h.attempts
}

// Wait blocks until the task resolves or the context expires
func (h *Handle) Wait(ctx context.Context) error {
	select {
	case <-h.done:
		return h.err
	case <-ctx.Done():
		return goerr.Wrap(ctx.Err(), "interrupted waiting for task", goerr.V("task", h.Name))
	}
}

type task struct {
	seq    uint64
	fn     TaskFunc
	handle *Handle
}

// Queue is an unbounded FIFO of side-effecting closures consumed by a fixed
// pool of workers, each call throttled by a shared token bucket. It is a
// process-wide singleton: all platform mutations funnel through it so they
// are serialized and rate-limited together.
type Queue struct {
	cfg     Config
	limiter *rate.Limiter

	mu          sync.Mutex
	cond        *sync.Cond
	fifo        []*task
	outstanding map[uint64]struct{}
	seq         uint64
	closed      bool

	wg sync.WaitGroup
}

// New creates a queue. Call Start before enqueueing.
func New(cfg Config) *Queue {
	q := &Queue{
		cfg:         cfg,
		limiter:     rate.NewLimiter(cfg.OpsPerSec, cfg.Burst),
		outstanding: make(map[uint64]struct{}),
	}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Start launches the worker pool. Workers run until Stop; ctx cancellation
// resolves in-flight tasks with the context error but does not tear down
// the pool.
func (q *Queue) Start(ctx context.Context) {
	for i := 0; i < q.cfg.Workers; i++ {
		q.wg.Add(1)
		go q.worker(ctx, i)
	}
	logging.From(ctx).Info("task queue started",
		"workers", q.cfg.Workers,
		"ops_per_sec", float64(q.cfg.OpsPerSec))
}

// Stop drains the queue: no new tasks are accepted, all queued and
// in-flight work completes before Stop returns.
func (q *Queue) Stop() {
	q.mu.Lock()
	q.closed = true
	q.cond.Broadcast()
	q.mu.Unlock()

	q.wg.Wait()
}

// Enqueue appends a task and returns its handle. Tasks enqueued after Stop
// resolve immediately with an error.
func (q *Queue) Enqueue(name string, fn TaskFunc) *Handle {
	h := &Handle{
		ID:   uuid.NewString(),
		Name: name,
		done: make(chan struct{}),
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		h.err = goerr.New("task queue is stopped", goerr.V("task", name))
		close(h.done)
		return h
	}

	q.seq++
	t := &task{seq: q.seq, fn: fn, handle: h}
	q.fifo = append(q.fifo, t)
	q.outstanding[t.seq] = struct{}{}
	q.cond.Signal()

	return h
}

// Flush waits until every task enqueued before the call has resolved, or
// the context expires. Tasks enqueued concurrently with the flush are not
// ordered relative to it.
func (q *Queue) Flush(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	target := q.seq

	stop := context.AfterFunc(ctx, func() {
		q.mu.Lock()
		q.cond.Broadcast()
		q.mu.Unlock()
	})
	defer stop()

	for q.outstandingUpTo(target) {
		if ctx.Err() != nil {
			return goerr.Wrap(ctx.Err(), "task queue flush interrupted",
				goerr.V("pending", len(q.outstanding)))
		}
		q.cond.Wait()
	}
	return nil
}

// outstandingUpTo reports whether any task with seq <= target is still
// queued or in flight. Callers must hold the mutex.
func (q *Queue) outstandingUpTo(target uint64) bool {
	for seq := range q.outstanding {
		if seq <= target {
			return true
		}
	}
	return false
}

// Stats is an observability snapshot of the queue
type Stats struct {
	Depth   int `json:"depth"`
	Pending int `json:"pending"`
	Workers int `json:"workers"`
}

// Stats returns current queue depth (waiting) and pending (waiting plus in
// flight) counts
func (q *Queue) Stats() Stats {
	q.mu.Lock()
	defer q.mu.Unlock()

	return Stats{
		Depth:   len(q.fifo),
		Pending: len(q.outstanding),
		Workers: q.cfg.Workers,
	}
}

func (q *Queue) worker(ctx context.Context, id int) {
	defer q.wg.Done()

	for {
		q.mu.Lock()
		for len(q.fifo) == 0 && !q.closed {
			q.cond.Wait()
		}
		if len(q.fifo) == 0 && q.closed {
			q.mu.Unlock()
			return
		}
		t := q.fifo[0]
		q.fifo = q.fifo[1:]
		q.mu.Unlock()

		q.execute(ctx, t)

		q.mu.Lock()
		delete(q.outstanding, t.seq)
		q.cond.Broadcast()
		q.mu.Unlock()
	}
}

// execute runs one task to its final outcome: transient failures are
// retried with exponential backoff and jitter up to the attempt budget,
// permanent failures are logged and abandoned. A task's panic or error must
// never take down the worker loop.
func (q *Queue) execute(ctx context.Context, t *task) {
	logger := logging.From(ctx)
	h := t.handle

	defer close(h.done)

	var err error
	for attempt := 1; attempt <= q.cfg.MaxAttempts; attempt++ {
		h.attempts = attempt

		if err = q.limiter.Wait(ctx); err != nil {
			h.err = goerr.Wrap(err, "task throttle interrupted", goerr.V("task", h.Name))
			return
		}

		err = runTask(ctx, t.fn)
		if err == nil {
			h.err = nil
			return
		}

		if !types.IsTransient(err) {
			logger.Warn("task failed permanently",
				"task", h.Name, "id", h.ID, "attempt", attempt, "error", err.Error())
			h.err = err
			return
		}

		if attempt < q.cfg.MaxAttempts {
			delay := q.retryDelay(attempt)
			logger.Info("task failed transiently, retrying",
				"task", h.Name, "id", h.ID, "attempt", attempt, "delay", delay.String())

			select {
			case <-time.After(delay):
			case <-ctx.Done():
				h.err = goerr.Wrap(ctx.Err(), "task retry interrupted", goerr.V("task", h.Name))
				return
			}
		}
	}

	logger.Warn("task retries exhausted",
		"task", h.Name, "id", h.ID, "attempts", q.cfg.MaxAttempts, "error", err.Error())
	h.err = err
}

// retryDelay doubles the base per retry and adds up to RetryJitter of
// proportional jitter
func (q *Queue) retryDelay(attempt int) time.Duration {
	delay := q.cfg.RetryBase << (attempt - 1)
	if q.cfg.RetryJitter > 0 {
		delay += time.Duration(float64(delay) * q.cfg.RetryJitter * rand.Float64())
	}
	return delay
}

// runTask isolates panics from the worker loop
func runTask(ctx context.Context, fn TaskFunc) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = goerr.New("panic in task", goerr.V("panic", r))
		}
	}()
	return fn(ctx)
}
