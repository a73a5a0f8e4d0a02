package batch

import "context"

// Supported work item methods.
const (
	MethodGet  = "get"
	MethodPost = "post"
)

// Options carries per-request execution options. Item options are merged
// over the Runner's batch-wide defaults; per-key, the item's value wins.
type Options struct {
	// Headers are added to the outgoing request.
	Headers map[string]string `yaml:"headers"`
	// Query parameters are appended to the request URL.
	Query map[string]string `yaml:"query"`
}

// merge returns base overlaid with o. Neither input is modified.
func (o Options) merge(base Options) Options {
	merged := Options{}
	if len(base.Headers)+len(o.Headers) > 0 {
		merged.Headers = make(map[string]string, len(base.Headers)+len(o.Headers))
		for k, v := range base.Headers {
			merged.Headers[k] = v
		}
		for k, v := range o.Headers {
			merged.Headers[k] = v
		}
	}
	if len(base.Query)+len(o.Query) > 0 {
		merged.Query = make(map[string]string, len(base.Query)+len(o.Query))
		for k, v := range base.Query {
			merged.Query[k] = v
		}
		for k, v := range o.Query {
			merged.Query[k] = v
		}
	}
	return merged
}

// Item describes one named asynchronous operation in a batch. Items are
// consumed once by Runner.Run and never retained.
type Item struct {
	// ID must be non-empty and unique within the batch.
	ID string

	// Method is "get" or "post"; empty means get. An Op's method fills
	// this in when the item leaves Method empty.
	Method string

	// URL is the direct request target. Either URL or Op must be set.
	URL string

	// Op names an operation resolved through the Runner's resolver.
	Op string

	// Data is the request payload for post items.
	Data any

	// Handler optionally transforms or validates the raw result.
	Handler Handler

	// Strategy overrides the Runner's default strategy for this item.
	Strategy Strategy

	// Options are merged over the Runner's batch-wide defaults.
	Options Options
}

// Executor performs one work item and returns its raw result. The default
// StoreStatus strategy requires the result to implement Result; other
// strategies impose no shape. The transport package provides the HTTP
// implementation.
type Executor interface {
	Do(ctx context.Context, item Item) (any, error)
}

// ExecutorFunc adapts a plain function to the Executor interface.
type ExecutorFunc func(ctx context.Context, item Item) (any, error)

// Do calls f.
func (f ExecutorFunc) Do(ctx context.Context, item Item) (any, error) {
	return f(ctx, item)
}

// Resolver fills in the request target for items that name an operation
// instead of a URL. A dispatch.Table implements it.
type Resolver interface {
	Apply(item *Item) error
}

// Recorder receives execution telemetry from a Runner. Implementations
// must be safe for concurrent use; the metrics package provides one backed
// by Prometheus.
type Recorder interface {
	// TaskStarted is called when an item's executor call begins.
	TaskStarted(id string)
	// TaskSettled is called when an item reaches a terminal state.
	TaskSettled(id string, failed bool, seconds float64)
	// BatchSettled is called exactly once per run, when the batch resolves.
	BatchSettled(failed bool)
}
