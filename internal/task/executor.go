// Package task is for running keyed units of work at most once at a time.
//
// Every caller that submits the same key while it is in flight waits on, and
// receives, the single execution's result. Completed results are kept for
// the executor's lifetime; failures are delivered to every waiter and then
// evicted so the key can be tried again.
package task

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"
)

// State is the lifecycle state of a keyed execution record.
type State int

const (
	// Pending records are registered but their work hasn't started.
	Pending State = iota

	// Running records have a leader executing their work.
	Running

	// Completed records hold a cached, immutable value.
	Completed

	// Failed records have delivered an error to their waiters.
	// They are evicted from the registry right after.
	Failed
)

// String returns the state's name.
func (s State) String() string {
	switch s {
	case Pending:
		return "pending"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Failed:
		return "failed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// ErrPanic is wrapped by the error returned when work panics.
var ErrPanic = errors.New("task panicked")

// record is a registry entry. val and err are written once, before done
// is closed, and are only read after done is closed.
type record[V any] struct {
	state    State
	done     chan struct{}
	val      V
	err      error
	attempts int

	// cancelled is set if the leader's own context was done when it gave up
	cancelled bool
}

// options are shared by every Executor regardless of its key/value types.
type options struct {
	name    string
	retries int
	backoff time.Duration
	retryIf func(error) bool
	metrics *Metrics
}

// Option configures an Executor.
type Option func(*options)

// WithName sets the executor's name, used as the metrics label.
func WithName(name string) Option {
	return func(o *options) { o.name = name }
}

// WithRetries sets how many times failed work is re-run before the
// failure is delivered to waiters. Attempt n waits n*backoff first.
func WithRetries(retries int, backoff time.Duration) Option {
	return func(o *options) {
		if retries < 0 {
			retries = 0
		}
		o.retries = retries
		o.backoff = backoff
	}
}

// WithRetryIf limits retries to errors accepted by fn.
func WithRetryIf(fn func(error) bool) Option {
	return func(o *options) { o.retryIf = fn }
}

// WithMetrics counts submissions, executions, shares, failures and retries.
func WithMetrics(m *Metrics) Option {
	return func(o *options) { o.metrics = m }
}

// Executor deduplicates concurrent work by key.
//
// A single mutex guards the registry: both registering a key and
// publishing its result happen under it, so two callers can never
// both become the leader for one key.
type Executor[K comparable, V any] struct {
	opts options

	mu      sync.Mutex
	records map[K]*record[V]
}

// New returns an Executor without any registered keys.
func New[K comparable, V any](opts ...Option) *Executor[K, V] {
	o := options{name: "default"}
	for _, opt := range opts {
		opt(&o)
	}

	return &Executor[K, V]{
		opts:    o,
		records: make(map[K]*record[V]),
	}
}

// Submit returns the result of work for key.
//
// If key has completed, the cached value is returned without running work.
// If key is in flight, the caller waits for that execution instead of
// starting another. Otherwise the caller becomes the key's leader and runs
// work with its own ctx.
//
// A waiter whose ctx is done stops waiting and gets ctx.Err(); the leader
// is unaffected. If the leader's ctx is cancelled, waiters with live
// contexts resubmit rather than inherit that cancellation.
func (e *Executor[K, V]) Submit(ctx context.Context, key K, work func(context.Context) (V, error)) (V, error) {
	var zero V
	e.opts.metrics.submitted(e.opts.name)

	for {
		e.mu.Lock()
		r, exists := e.records[key]
		if exists && r.state == Completed {
			e.mu.Unlock()
			e.opts.metrics.shared(e.opts.name)
			return r.val, nil
		}

		if exists {
			e.mu.Unlock()
			e.opts.metrics.shared(e.opts.name)

			select {
			case <-r.done:
			case <-ctx.Done():
				return zero, ctx.Err()
			}

			if r.err == nil {
				return r.val, nil
			}
			if r.cancelled && ctx.Err() == nil {
				continue // the leader was cancelled, not us
			}
			return zero, r.err
		}

		r = &record[V]{state: Pending, done: make(chan struct{})}
		e.records[key] = r
		e.mu.Unlock()

		return e.lead(ctx, key, r, work)
	}
}

// lead runs work for a freshly registered record and publishes its result.
func (e *Executor[K, V]) lead(ctx context.Context, key K, r *record[V], work func(context.Context) (V, error)) (V, error) {
	e.mu.Lock()
	r.state = Running
	e.mu.Unlock()

	val, err := e.attempt(ctx, r, work)

	e.mu.Lock()
	if err != nil {
		r.state = Failed
		r.err = err
		r.cancelled = ctx.Err() != nil
		if e.records[key] == r {
			delete(e.records, key)
		}
		e.opts.metrics.failed(e.opts.name)
	} else {
		r.state = Completed
		r.val = val
	}
	close(r.done)
	e.mu.Unlock()

	return val, err
}

// attempt runs work until it succeeds, the retry budget is spent, or ctx is done.
func (e *Executor[K, V]) attempt(ctx context.Context, r *record[V], work func(context.Context) (V, error)) (V, error) {
	var zero V

	for attempt := 1; ; attempt++ {
		e.mu.Lock()
		r.attempts = attempt
		e.mu.Unlock()

		e.opts.metrics.executed(e.opts.name)
		val, err := call(ctx, work)
		if err == nil {
			return val, nil
		}

		if attempt > e.opts.retries || ctx.Err() != nil || !e.retryable(err) {
			if attempt > 1 {
				return zero, fmt.Errorf("failed after %d attempts: %w", attempt, err)
			}
			return zero, err
		}

		e.opts.metrics.retried(e.opts.name)
		timer := time.NewTimer(time.Duration(attempt) * e.opts.backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}
}

// retryable reports whether a failed attempt may be re-run. Work that
// times out on its own, while the leader's ctx is live, is retryable.
func (e *Executor[K, V]) retryable(err error) bool {
	if errors.Is(err, ErrPanic) {
		return false
	}
	if e.opts.retryIf == nil {
		return true
	}
	return e.opts.retryIf(err)
}

// State returns the state of key's record, if one is registered.
func (e *Executor[K, V]) State(key K) (State, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	r, exists := e.records[key]
	if !exists {
		return Pending, false
	}
	return r.state, true
}

// Attempts returns how many times key's work has been started by its current record.
func (e *Executor[K, V]) Attempts(key K) int {
	e.mu.Lock()
	defer e.mu.Unlock()

	if r, exists := e.records[key]; exists {
		return r.attempts
	}
	return 0
}

// Len returns the number of registered records.
func (e *Executor[K, V]) Len() int {
	e.mu.Lock()
	defer e.mu.Unlock()

	return len(e.records)
}

// call runs work, turning a panic into an error.
func call[V any](ctx context.Context, work func(context.Context) (V, error)) (val V, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("%w: %v\n%s", ErrPanic, p, debug.Stack())
		}
	}()

	return work(ctx)
}
