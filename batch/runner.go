package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// DefaultMaxConcurrent is the admission bound used when a run does not set
// one explicitly.
const DefaultMaxConcurrent = 8

// Option configures a Runner.
type Option func(*Runner)

// WithLogger sets a custom logger for the runner.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Runner) {
		r.logger = logger.With("component", "runner")
	}
}

// WithStrategy sets the batch-wide default strategy. Items may still
// override it individually.
func WithStrategy(strategy Strategy) Option {
	return func(r *Runner) {
		r.strategy = strategy
	}
}

// WithDefaults sets batch-wide request options merged under every item's
// own options.
func WithDefaults(opts Options) Option {
	return func(r *Runner) {
		r.defaults = opts
	}
}

// WithResolver sets the resolver used for items that name an operation
// instead of a URL.
func WithResolver(resolver Resolver) Option {
	return func(r *Runner) {
		r.resolver = resolver
	}
}

// WithRecorder sets the telemetry recorder.
func WithRecorder(recorder Recorder) Option {
	return func(r *Runner) {
		r.recorder = recorder
	}
}

// RunConfig holds per-run settings.
type RunConfig struct {
	Blocking      bool
	MaxConcurrent int
}

// RunOption configures one Run call.
type RunOption func(*RunConfig)

// Blocking selects between blocking and streaming mode. Runs block by
// default.
func Blocking(blocking bool) RunOption {
	return func(cfg *RunConfig) {
		cfg.Blocking = blocking
	}
}

// MaxConcurrent bounds the number of items in flight for one run.
func MaxConcurrent(n int) RunOption {
	return func(cfg *RunConfig) {
		cfg.MaxConcurrent = n
	}
}

// Outcome is the final shape of one batch run. Blocking runs populate
// Results; streaming runs populate Handles, one live Future per item in
// submission order, and the caller polls Coordinator.IsComplete and
// HasFailed (or selects on the Futures) externally.
type Outcome struct {
	Coordinator *Coordinator
	Results     map[string]any
	Handles     []*Future
}

// Runner is the batch entry point. It validates a list of work items,
// wires each through the Limiter, its strategy, and the Coordinator, and
// returns either a resolved result map or live in-flight handles.
type Runner struct {
	exec     Executor
	logger   *slog.Logger
	strategy Strategy
	defaults Options
	resolver Resolver
	recorder Recorder
	results  *Results
}

// New creates a Runner around the given executor. The zero configuration
// uses the StoreStatus strategy and the default logger.
func New(exec Executor, opts ...Option) *Runner {
	r := &Runner{
		exec:     exec,
		logger:   slog.Default().With("component", "runner"),
		strategy: StoreStatus,
		results:  NewResults(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Results returns the runner's shared result context. It outlives
// individual runs.
func (r *Runner) Results() *Results { return r.results }

// Get returns the stored value for id, or nil if no strategy or handler
// ever wrote that key.
func (r *Runner) Get(id string) any {
	value, _ := r.results.Get(id)
	return value
}

// Run executes one batch. onLoad fires once when every item settles with
// no logical failures; onFail fires instead when at least one item failed
// (falling back to onLoad when onFail is nil).
//
// Preflight validation runs synchronously before any task starts: a
// duplicate or empty id, a missing target, or an unsupported method fails
// the whole call with zero executor invocations and no side effects.
//
// An executor error counts as an automatic logical failure for its id, so
// a batch with transport-level errors still resolves; the item's Future
// carries the error for callers that want it.
func (r *Runner) Run(ctx context.Context, items []Item, onLoad, onFail Callback, opts ...RunOption) (*Outcome, error) {
	cfg := RunConfig{Blocking: true, MaxConcurrent: DefaultMaxConcurrent}
	for _, opt := range opts {
		opt(&cfg)
	}

	prepared, err := r.preflight(items)
	if err != nil {
		return nil, err
	}

	limiter, err := NewLimiter(cfg.MaxConcurrent)
	if err != nil {
		return nil, err
	}

	ids := make([]string, len(prepared))
	for i, item := range prepared {
		ids[i] = item.ID
	}

	coord := NewCoordinator(r.results, r.wrapLoad(onLoad), r.wrapFail(onLoad, onFail),
		WithCoordinatorLogger(r.logger))
	coord.AddRequired(ids...)

	r.logger.Info("starting batch",
		"items", len(prepared),
		"max_concurrent", cfg.MaxConcurrent,
		"blocking", cfg.Blocking,
	)

	handles := make([]*Future, len(prepared))
	for i, item := range prepared {
		handles[i] = limiter.Submit(r.thunk(ctx, coord, item))
	}

	outcome := &Outcome{Coordinator: coord}
	if !cfg.Blocking {
		outcome.Handles = handles
		return outcome, nil
	}

	results := make(map[string]any, len(prepared))
	for i, handle := range handles {
		value, err := handle.Wait()
		if err != nil {
			// Already auto-failed and logged inside the thunk.
			continue
		}
		results[prepared[i].ID] = value
	}
	outcome.Results = results
	return outcome, nil
}

// Validate runs the same preflight checks as Run without executing
// anything.
func (r *Runner) Validate(items []Item) error {
	_, err := r.preflight(items)
	return err
}

// thunk builds the submission closure for one item: executor call, then
// strategy interpretation, then coordinator bookkeeping.
func (r *Runner) thunk(ctx context.Context, coord *Coordinator, item Item) Job {
	strategy := r.strategy
	if item.Strategy != nil {
		strategy = item.Strategy
	}
	interpret := coord.Wrap(item.ID, strategy(r.results, item.ID, item.Handler))

	return func() (any, error) {
		start := time.Now()
		if r.recorder != nil {
			r.recorder.TaskStarted(item.ID)
		}
		r.logger.Debug("executing item", "id", item.ID, "method", item.Method, "url", item.URL)

		raw, err := r.exec.Do(ctx, item)
		if err != nil {
			// Auto-fail: without this the id would never complete and the
			// terminal callback would never fire.
			r.logger.Error("executor failed", "id", item.ID, "error", err)
			coord.MarkFailure(item.ID, err)
			coord.MarkSuccess(item.ID, err)
			if r.recorder != nil {
				r.recorder.TaskSettled(item.ID, true, time.Since(start).Seconds())
			}
			return nil, fmt.Errorf("item %s: %w", item.ID, err)
		}

		interpret(raw)
		failed := coord.TaskFailed(item.ID)
		if r.recorder != nil {
			r.recorder.TaskSettled(item.ID, failed, time.Since(start).Seconds())
		}
		r.logger.Debug("item settled", "id", item.ID, "failed", failed)
		return raw, nil
	}
}

// wrapLoad decorates the success callback with telemetry.
func (r *Runner) wrapLoad(onLoad Callback) Callback {
	return func(snap Snapshot, payload ...any) {
		if r.recorder != nil {
			r.recorder.BatchSettled(false)
		}
		if onLoad != nil {
			onLoad(snap, payload...)
		}
	}
}

// wrapFail decorates the failure callback with telemetry, preserving the
// fall-back to onLoad when the caller supplied no onFail.
func (r *Runner) wrapFail(onLoad, onFail Callback) Callback {
	return func(snap Snapshot, payload ...any) {
		if r.recorder != nil {
			r.recorder.BatchSettled(true)
		}
		cb := onFail
		if cb == nil {
			cb = onLoad
		}
		if cb != nil {
			cb(snap, payload...)
		}
	}
}

// preflight validates and normalizes the item list. Any violation aborts
// the run before a single executor call.
func (r *Runner) preflight(items []Item) ([]Item, error) {
	seen := make(map[string]struct{}, len(items))
	prepared := make([]Item, len(items))

	for i, item := range items {
		if item.ID == "" {
			return nil, fmt.Errorf("item %d: %w", i, ErrEmptyID)
		}
		if _, dup := seen[item.ID]; dup {
			return nil, fmt.Errorf("item %q: %w", item.ID, ErrDuplicateID)
		}
		seen[item.ID] = struct{}{}

		if item.URL == "" && item.Op == "" {
			return nil, fmt.Errorf("item %q: %w", item.ID, ErrNoTarget)
		}
		if item.URL == "" {
			if r.resolver == nil {
				return nil, fmt.Errorf("item %q: %w", item.ID, ErrNoResolver)
			}
			if err := r.resolver.Apply(&item); err != nil {
				return nil, fmt.Errorf("item %q: %w", item.ID, err)
			}
		}

		item.Method = strings.ToLower(item.Method)
		if item.Method == "" {
			item.Method = MethodGet
		}
		if item.Method != MethodGet && item.Method != MethodPost {
			return nil, fmt.Errorf("item %q: %w: %q", item.ID, ErrBadMethod, item.Method)
		}

		item.Options = item.Options.merge(r.defaults)
		prepared[i] = item
	}
	return prepared, nil
}
