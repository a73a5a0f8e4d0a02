package batch

import (
	"log/slog"
	"sort"
	"sync"
)

// Callback is a terminal batch notification. It is invoked exactly once per
// batch, on the goroutine of the task whose completion resolved the set.
type Callback func(snap Snapshot, payload ...any)

// Snapshot is the state handed to a terminal Callback.
type Snapshot struct {
	// Shared is the opaque context configured at construction time. The
	// Runner passes its Results here.
	Shared any

	// State is a copy of the coordinator's bookkeeping at the moment the
	// batch resolved.
	State State

	// TriggeringID is the id whose completion resolved the batch.
	TriggeringID string
}

// State is a point-in-time copy of a Coordinator's id sets. The slices are
// sorted and owned by the receiver.
type State struct {
	Required  []string
	Completed []string
	Failed    []string
	Winner    string
}

// CoordinatorOption configures a Coordinator.
type CoordinatorOption func(*Coordinator)

// WithCoordinatorLogger sets a custom logger for the coordinator.
func WithCoordinatorLogger(logger *slog.Logger) CoordinatorOption {
	return func(c *Coordinator) {
		c.logger = logger.With("component", "coordinator")
	}
}

// Coordinator tracks a fixed set of required task ids and invokes exactly
// one terminal callback once every required id has completed, successfully
// or with logical failure.
//
// Marking an id that is not required is a no-op, never an error. A failed
// id still counts toward completion: failure decides which callback fires,
// not whether the batch resolves.
type Coordinator struct {
	mu        sync.Mutex
	required  map[string]struct{}
	completed map[string]struct{}
	failed    map[string]struct{}

	// winner is the single-fire latch: set under mu on the first call that
	// makes completed == required, never cleared. The terminal callback has
	// fired iff fired is true.
	winner string
	fired  bool

	onLoad Callback
	onFail Callback
	shared any
	logger *slog.Logger
}

// NewCoordinator creates a Coordinator. onLoad fires when the batch
// resolves with no failures; onFail fires when at least one id failed. If
// onFail is nil, onLoad serves both outcomes and callers must branch on
// HasFailed themselves.
func NewCoordinator(shared any, onLoad, onFail Callback, opts ...CoordinatorOption) *Coordinator {
	c := &Coordinator{
		required:  make(map[string]struct{}),
		completed: make(map[string]struct{}),
		failed:    make(map[string]struct{}),
		onLoad:    onLoad,
		onFail:    onFail,
		shared:    shared,
		logger:    slog.Default().With("component", "coordinator"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AddRequired idempotently merges ids into the required set. Extending the
// set is only safe before the batch resolves; ids added afterward never
// trigger a second callback.
func (c *Coordinator) AddRequired(ids ...string) {
	c.mu.Lock()
	for _, id := range ids {
		c.required[id] = struct{}{}
	}
	c.mu.Unlock()
}

// MarkSuccess records the successful completion of id. If id is not
// required it is ignored and MarkSuccess returns false. If this call
// resolves the batch, the terminal callback fires with the given payload
// before any later Mark call is observed to have resolved it.
func (c *Coordinator) MarkSuccess(id string, payload ...any) bool {
	return c.mark(id, false, payload)
}

// MarkFailure records the logical failure of id. The id is added to both
// the failed and completed sets, so failure still counts toward completion.
// Unknown ids are ignored and return false.
func (c *Coordinator) MarkFailure(id string, payload ...any) bool {
	return c.mark(id, true, payload)
}

func (c *Coordinator) mark(id string, failure bool, payload []any) bool {
	c.mu.Lock()
	if _, ok := c.required[id]; !ok {
		c.mu.Unlock()
		c.logger.Debug("ignoring mark for unknown id", "id", id, "failure", failure)
		return false
	}

	if failure {
		c.failed[id] = struct{}{}
	}
	c.completed[id] = struct{}{}

	var fire Callback
	var snap Snapshot
	if len(c.completed) == len(c.required) && !c.fired {
		c.fired = true
		c.winner = id
		fire = c.onLoad
		if len(c.failed) > 0 && c.onFail != nil {
			fire = c.onFail
		}
		snap = c.snapshotLocked(id)
	}
	c.mu.Unlock()

	// The callback runs outside the lock so it may query the coordinator.
	// Exactly-once is already guaranteed by the latch above.
	if fire != nil {
		c.logger.Info("batch resolved",
			"winner", snap.TriggeringID,
			"completed", len(snap.State.Completed),
			"failed", snap.State.Failed,
		)
		fire(snap, payload...)
	}
	return true
}

func (c *Coordinator) snapshotLocked(triggeringID string) Snapshot {
	return Snapshot{
		Shared: c.shared,
		State: State{
			Required:  sortedKeys(c.required),
			Completed: sortedKeys(c.completed),
			Failed:    sortedKeys(c.failed),
			Winner:    c.winner,
		},
		TriggeringID: triggeringID,
	}
}

// IsComplete reports whether every required id has completed.
func (c *Coordinator) IsComplete() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.completed) == len(c.required)
}

// TaskComplete reports whether the given id has completed.
func (c *Coordinator) TaskComplete(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.completed[id]
	return ok
}

// HasFailed reports whether any id has failed so far.
func (c *Coordinator) HasFailed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.failed) > 0
}

// TaskFailed reports whether the given id has failed.
func (c *Coordinator) TaskFailed(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.failed[id]
	return ok
}

// Winner returns the id whose completion resolved the batch, or "" if the
// batch has not resolved yet.
func (c *Coordinator) Winner() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.winner
}

// FailedIDs returns a sorted copy of the failed id set.
func (c *Coordinator) FailedIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return sortedKeys(c.failed)
}

// Wrap builds the adapter that sits between a task's raw outcome and the
// coordinator. The returned function registers id as required if absent,
// applies fn (a nil fn treats every outcome as success), marks the id
// failed when fn returns the untyped bool false, always marks it complete,
// and hands the raw outcome back unchanged.
func (c *Coordinator) Wrap(id string, fn HandlerFunc) func(raw any) any {
	return func(raw any) any {
		c.AddRequired(id)

		if fn != nil && isFailureSignal(fn(raw)) {
			c.MarkFailure(id, raw)
		}
		c.MarkSuccess(id, raw)
		return raw
	}
}

// isFailureSignal reports whether a handler signal is the logical failure
// sentinel: the untyped bool false. Everything else, nil included, counts
// as success.
func isFailureSignal(signal any) bool {
	b, ok := signal.(bool)
	return ok && !b
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
