// Package batch implements a bounded-concurrency runner for named
// asynchronous operations with exactly-once completion notification.
//
// A batch is a fixed set of work items, each with a unique string id. The
// Runner validates the set up front, admits items through a FIFO Limiter,
// hands each raw result to a pluggable storage/failure strategy, and feeds
// the resulting success or failure signal into a Coordinator. The
// Coordinator fires a single terminal callback the moment the last required
// id settles: the failure callback if any id failed logically, otherwise
// the success callback.
//
// # Core Concepts
//
// A work Item names one asynchronous operation: an id, a request target
// (either a direct URL or a named operation resolved through a dispatch
// table), an optional per-item Handler, and request options merged over the
// batch-wide defaults.
//
// The Coordinator tracks three sets of ids: required, completed, and
// failed. Logical failure is ordinary data, not an error: a failed id still
// counts toward completion, so a batch with failures resolves just like a
// clean one, and the caller learns about failures from the terminal
// callback's snapshot or by polling HasFailed.
//
// Strategies separate "does this result count as failure" from "does this
// result get stored". StoreStatus (the default) stores every raw result and
// fails ids whose result does not report protocol-level success. StoreAlways
// stores unconditionally and leaves failure detection to the user handler.
// StoreNone stores nothing and delegates entirely to the handler. Custom
// strategies are plain Strategy values.
//
// # Execution Modes
//
// In blocking mode (the default) Run waits for every item to settle and
// returns the id-to-result map. In streaming mode Run returns immediately
// with one live Future per item; the caller polls the Coordinator or
// selects on the Futures.
//
//	runner := batch.New(client, batch.WithLogger(logger))
//	outcome, err := runner.Run(ctx, items, onLoad, nil)
//	if err != nil {
//	    // preflight failure: nothing was started
//	}
//	if outcome.Coordinator.HasFailed() {
//	    // inspect outcome.Coordinator and runner.Get(id)
//	}
//
// # Concurrency
//
// Tasks run on real goroutines, so all coordinator bookkeeping is guarded
// by a mutex. The single-fire latch (the "winner" id) is a check-then-set
// under that mutex: two tasks finishing at the same instant can never both
// fire the terminal callback. Submission order is preserved by the
// Limiter's FIFO queue; settlement order depends on executor latency.
//
// The package deliberately implements no retries, backoff, cancellation, or
// priority scheduling. Retries belong to the executor (see the transport
// package); cancellation and timeouts belong to the caller's context and
// executor.
package batch
