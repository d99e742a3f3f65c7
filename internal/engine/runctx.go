package engine

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/picklr-io/shipyard/internal/cloud"
	"github.com/picklr-io/shipyard/internal/logging"
)

// Run carries everything one deployment invocation shares between its
// reconcilers: the cloud clients, the ownership rules, the clock, and the
// per-run cache of remote state. Nothing here outlives the invocation.
type Run struct {
	ID        string
	Ownership Ownership
	Clock     Clock
	Retry     RetryPolicy
	Metrics   *Metrics

	factory cloud.Factory
	log     *slog.Logger
	clients map[string]*cloud.Clients
	cache   map[string]any
	results map[string]*Result
}

// RunOption customizes a Run.
type RunOption func(*Run)

// WithOwnership sets the recognized ownership values.
func WithOwnership(o Ownership) RunOption {
	return func(r *Run) { r.Ownership = o }
}

// WithClock replaces the system clock.
func WithClock(c Clock) RunOption {
	return func(r *Run) { r.Clock = c }
}

// WithRetryPolicy replaces the default retry policy.
func WithRetryPolicy(p RetryPolicy) RunOption {
	return func(r *Run) { r.Retry = p }
}

// WithMetrics records reconcile outcomes into m.
func WithMetrics(m *Metrics) RunOption {
	return func(r *Run) { r.Metrics = m }
}

// WithLogger sets the base logger.
func WithLogger(l *slog.Logger) RunOption {
	return func(r *Run) { r.log = l }
}

// NewRun creates the context for one deployment invocation.
func NewRun(factory cloud.Factory, opts ...RunOption) *Run {
	r := &Run{
		ID:        uuid.NewString(),
		Ownership: DefaultOwnership(),
		Clock:     RealClock{},
		Retry:     DefaultRetryPolicy(),
		factory:   factory,
		clients:   make(map[string]*cloud.Clients),
		cache:     make(map[string]any),
		results:   make(map[string]*Result),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.log == nil {
		r.log = logging.Logger()
	}
	r.log = r.log.With("run_id", r.ID)
	return r
}

// Log returns the run logger.
func (r *Run) Log() *slog.Logger {
	return r.log
}

// Clients returns the cloud clients for region, creating them once.
func (r *Run) Clients(ctx context.Context, region string) (*cloud.Clients, error) {
	if c, ok := r.clients[region]; ok {
		return c, nil
	}
	c, err := r.factory.Clients(ctx, region)
	if err != nil {
		return nil, fmt.Errorf("failed to create cloud clients for %s: %w", region, err)
	}
	r.clients[region] = c
	return c, nil
}

// Wait blocks until op settles under policy.
func (r *Run) Wait(ctx context.Context, name string, policy WaitPolicy, op Operation) error {
	r.log.Debug("waiting", "operation", name, "poll_interval", policy.PollInterval, "max_wait", policy.MaxWait)
	return Waiter{Clock: r.Clock}.Wait(ctx, name, policy, op)
}

// RetryEventuallyConsistent runs fn under the run's retry policy, retrying
// only eventually-consistent provider errors.
func (r *Run) RetryEventuallyConsistent(ctx context.Context, operation string, fn func() error) error {
	return Retry(ctx, r.Clock, r.Retry, operation, func() error {
		err := fn()
		if IsEventuallyConsistent(err) {
			r.log.Debug("retrying eventually consistent error", "operation", operation, "error", err)
		}
		return err
	}, IsEventuallyConsistent)
}

// Result returns the result recorded for a stage in this run.
func (r *Run) Result(stage string) (*Result, bool) {
	res, ok := r.results[stage]
	return res, ok
}

// SetResult records a stage result for dependents.
func (r *Run) SetResult(stage string, res *Result) {
	r.results[stage] = res
}

// Forget drops a cached entry after the resource behind it was mutated.
func (r *Run) Forget(key string) {
	delete(r.cache, key)
}

// Lookup returns the cached value for key, calling fetch on a miss.
// Failed fetches are not cached.
func Lookup[T any](r *Run, key string, fetch func() (T, error)) (T, error) {
	if v, ok := r.cache[key]; ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	v, err := fetch()
	if err != nil {
		var zero T
		return zero, err
	}
	r.cache[key] = v
	return v, nil
}
