package batch

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeExecutor scripts per-id raw results and records every invocation.
type fakeExecutor struct {
	mu       sync.Mutex
	results  map[string]any
	errs     map[string]error
	delays   map[string]time.Duration
	started  []string
	inFlight atomic.Int32
	peak     atomic.Int32
	gate     chan struct{}
}

func newFakeExecutor() *fakeExecutor {
	return &fakeExecutor{
		results: make(map[string]any),
		errs:    make(map[string]error),
		delays:  make(map[string]time.Duration),
	}
}

func (e *fakeExecutor) Do(ctx context.Context, item Item) (any, error) {
	e.mu.Lock()
	e.started = append(e.started, item.ID)
	e.mu.Unlock()

	n := e.inFlight.Add(1)
	for {
		old := e.peak.Load()
		if n <= old || e.peak.CompareAndSwap(old, n) {
			break
		}
	}
	defer e.inFlight.Add(-1)

	if e.gate != nil {
		<-e.gate
	}
	if d := e.delays[item.ID]; d > 0 {
		time.Sleep(d)
	}
	if err := e.errs[item.ID]; err != nil {
		return nil, err
	}
	if res, ok := e.results[item.ID]; ok {
		return res, nil
	}
	return &statusResult{Ok: true, Body: item.ID}, nil
}

func (e *fakeExecutor) startOrder() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.started...)
}

func TestRunner_AllItemsSucceed(t *testing.T) {
	exec := newFakeExecutor()
	runner := New(exec)

	var loads, fails atomic.Int32
	items := []Item{
		{ID: "cfg", URL: "/cfg"},
		{ID: "lang", URL: "/lang"},
		{ID: "ping", URL: "/ping"},
	}

	outcome, err := runner.Run(context.Background(), items,
		func(Snapshot, ...any) { loads.Add(1) },
		func(Snapshot, ...any) { fails.Add(1) },
	)
	require.NoError(t, err)

	assert.Equal(t, int32(1), loads.Load(), "success callback fires once")
	assert.Equal(t, int32(0), fails.Load())
	assert.Len(t, outcome.Results, 3)
	assert.False(t, outcome.Coordinator.HasFailed())
	assert.True(t, outcome.Coordinator.IsComplete())

	for _, id := range []string{"cfg", "lang", "ping"} {
		assert.NotNil(t, runner.Get(id), "default strategy stores every result")
	}
}

func TestRunner_LogicalFailureStillResolves(t *testing.T) {
	exec := newFakeExecutor()
	exec.results["lang"] = &statusResult{Ok: false, Body: "bad translation"}
	runner := New(exec)

	var fails atomic.Int32
	var got Snapshot

	outcome, err := runner.Run(context.Background(),
		[]Item{{ID: "cfg", URL: "/cfg"}, {ID: "lang", URL: "/lang"}, {ID: "ping", URL: "/ping"}},
		nil,
		func(snap Snapshot, payload ...any) {
			fails.Add(1)
			got = snap
		},
	)
	require.NoError(t, err)

	require.Equal(t, int32(1), fails.Load(), "failure callback fires once")
	assert.Equal(t, []string{"lang"}, got.State.Failed)
	assert.True(t, outcome.Coordinator.TaskFailed("lang"))
	assert.True(t, outcome.Coordinator.IsComplete(), "failure still counts toward completion")

	stored := runner.Get("lang")
	require.NotNil(t, stored, "the failing response is still stored")
	assert.Equal(t, "bad translation", stored.(*statusResult).Body)
}

func TestRunner_PreflightFailuresStartNothing(t *testing.T) {
	exec := newFakeExecutor()
	runner := New(exec)
	ctx := context.Background()

	cases := []struct {
		name  string
		items []Item
		want  error
	}{
		{"DuplicateID", []Item{{ID: "x", URL: "/a"}, {ID: "x", URL: "/b"}}, ErrDuplicateID},
		{"EmptyID", []Item{{URL: "/a"}}, ErrEmptyID},
		{"NoTarget", []Item{{ID: "x"}}, ErrNoTarget},
		{"BadMethod", []Item{{ID: "x", URL: "/a", Method: "delete"}}, ErrBadMethod},
		{"OpWithoutResolver", []Item{{ID: "x", Op: "getConfig"}}, ErrNoResolver},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			outcome, err := runner.Run(ctx, tc.items, nil, nil)
			require.Error(t, err)
			assert.ErrorIs(t, err, tc.want)
			assert.Nil(t, outcome)
		})
	}

	assert.Empty(t, exec.startOrder(), "preflight failures must start zero executor calls")
}

func TestRunner_SequentialWithBoundOfOne(t *testing.T) {
	exec := newFakeExecutor()
	exec.delays["slow"] = 30 * time.Millisecond
	exec.delays["mid"] = 20 * time.Millisecond
	exec.delays["fast"] = 10 * time.Millisecond
	runner := New(exec)

	_, err := runner.Run(context.Background(),
		[]Item{{ID: "slow", URL: "/a"}, {ID: "mid", URL: "/b"}, {ID: "fast", URL: "/c"}},
		nil, nil,
		MaxConcurrent(1),
	)
	require.NoError(t, err)

	assert.Equal(t, []string{"slow", "mid", "fast"}, exec.startOrder(),
		"items start strictly in submission order regardless of their delays")
	assert.Equal(t, int32(1), exec.peak.Load(), "at most one executor call in flight")
}

func TestRunner_StreamingMode(t *testing.T) {
	exec := newFakeExecutor()
	exec.gate = make(chan struct{})
	runner := New(exec)

	outcome, err := runner.Run(context.Background(),
		[]Item{{ID: "a", URL: "/a"}, {ID: "b", URL: "/b"}},
		nil, nil,
		Blocking(false),
	)
	require.NoError(t, err)

	require.Len(t, outcome.Handles, 2, "streaming mode returns one handle per item")
	assert.Nil(t, outcome.Results)
	assert.False(t, outcome.Coordinator.IsComplete(), "nothing settled while the executor is gated")

	close(exec.gate)
	for _, handle := range outcome.Handles {
		_, err := handle.Wait()
		require.NoError(t, err)
	}
	assert.True(t, outcome.Coordinator.IsComplete(), "polling observes completion once items settle")
}

func TestRunner_ExecutorErrorAutoFails(t *testing.T) {
	exec := newFakeExecutor()
	boom := errors.New("connection refused")
	exec.errs["down"] = boom
	runner := New(exec)

	var fails atomic.Int32
	outcome, err := runner.Run(context.Background(),
		[]Item{{ID: "up", URL: "/up"}, {ID: "down", URL: "/down"}},
		nil,
		func(Snapshot, ...any) { fails.Add(1) },
		Blocking(false),
	)
	require.NoError(t, err)

	_, err = outcome.Handles[1].Wait()
	assert.ErrorIs(t, err, boom, "the item's future still carries the error")
	_, err = outcome.Handles[0].Wait()
	require.NoError(t, err)

	assert.Equal(t, int32(1), fails.Load(), "an executor error must not hang the batch")
	assert.True(t, outcome.Coordinator.TaskFailed("down"))
	assert.True(t, outcome.Coordinator.IsComplete())
	assert.Nil(t, runner.Get("down"), "nothing is stored for an errored item")
}

func TestRunner_ResultsPersistAcrossRuns(t *testing.T) {
	exec := newFakeExecutor()
	runner := New(exec)
	ctx := context.Background()

	_, err := runner.Run(ctx, []Item{{ID: "first", URL: "/a"}}, nil, nil)
	require.NoError(t, err)
	_, err = runner.Run(ctx, []Item{{ID: "second", URL: "/b"}}, nil, nil)
	require.NoError(t, err)

	assert.NotNil(t, runner.Get("first"), "earlier runs stay queryable")
	assert.NotNil(t, runner.Get("second"))
}

func TestRunner_PerItemStrategyOverride(t *testing.T) {
	exec := newFakeExecutor()
	runner := New(exec, WithStrategy(StoreNone))

	items := []Item{
		{ID: "silent", URL: "/a"},
		{ID: "kept", URL: "/b", Strategy: StoreAlways},
	}
	_, err := runner.Run(context.Background(), items, nil, nil)
	require.NoError(t, err)

	assert.Nil(t, runner.Get("silent"), "batch default StoreNone stores nothing")
	assert.NotNil(t, runner.Get("kept"), "per-item strategy wins")
}

func TestRunner_OptionsMergeDefaultsUnderItem(t *testing.T) {
	var seen Options
	exec := ExecutorFunc(func(ctx context.Context, item Item) (any, error) {
		seen = item.Options
		return &statusResult{Ok: true}, nil
	})
	runner := New(exec, WithDefaults(Options{
		Headers: map[string]string{"Accept": "application/json", "X-Team": "infra"},
	}))

	_, err := runner.Run(context.Background(), []Item{{
		ID:      "a",
		URL:     "/a",
		Options: Options{Headers: map[string]string{"X-Team": "batch"}},
	}}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, "application/json", seen.Headers["Accept"], "defaults fill in missing keys")
	assert.Equal(t, "batch", seen.Headers["X-Team"], "item values win per key")
}

// fakeResolver maps operation names to fixed targets.
type fakeResolver struct{ applied []string }

func (r *fakeResolver) Apply(item *Item) error {
	r.applied = append(r.applied, item.Op)
	if item.Op == "missing" {
		return errors.New("unknown operation")
	}
	item.URL = "/resolved/" + item.Op
	if item.Method == "" {
		item.Method = MethodPost
	}
	return nil
}

func TestRunner_ResolverFillsTarget(t *testing.T) {
	var seen Item
	exec := ExecutorFunc(func(ctx context.Context, item Item) (any, error) {
		seen = item
		return &statusResult{Ok: true}, nil
	})
	resolver := &fakeResolver{}
	runner := New(exec, WithResolver(resolver))

	_, err := runner.Run(context.Background(), []Item{{ID: "a", Op: "sendReport"}}, nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "/resolved/sendReport", seen.URL)
	assert.Equal(t, MethodPost, seen.Method, "the operation's method fills an unset item method")

	_, err = runner.Run(context.Background(), []Item{{ID: "b", Op: "missing"}}, nil, nil)
	require.Error(t, err, "resolver failures abort preflight")
}

// countingRecorder verifies the telemetry hooks.
type countingRecorder struct {
	started, settled, failedTasks, batchIn atomic.Int32
	batchFailed                            atomic.Bool
}

func (r *countingRecorder) TaskStarted(string) { r.started.Add(1) }
func (r *countingRecorder) TaskSettled(_ string, failed bool, _ float64) {
	r.settled.Add(1)
	if failed {
		r.failedTasks.Add(1)
	}
}
func (r *countingRecorder) BatchSettled(failed bool) {
	r.batchIn.Add(1)
	r.batchFailed.Store(failed)
}

func TestRunner_RecorderObservesRun(t *testing.T) {
	exec := newFakeExecutor()
	exec.results["bad"] = &statusResult{Ok: false}
	rec := &countingRecorder{}
	runner := New(exec, WithRecorder(rec))

	_, err := runner.Run(context.Background(),
		[]Item{{ID: "good", URL: "/a"}, {ID: "bad", URL: "/b"}}, nil, nil)
	require.NoError(t, err)

	assert.Equal(t, int32(2), rec.started.Load())
	assert.Equal(t, int32(2), rec.settled.Load())
	assert.Equal(t, int32(1), rec.failedTasks.Load())
	assert.Equal(t, int32(1), rec.batchIn.Load(), "batch outcome recorded exactly once")
	assert.True(t, rec.batchFailed.Load())
}
