package batch

// Handler is a caller-supplied transform or validator for one task's raw
// result. Returning the untyped bool false signals logical failure; any
// other return value, nil included, is success.
type Handler func(raw any) any

// HandlerFunc is the built interpreter for one task: it may store the raw
// result and reduces it to the success/failure signal consumed by
// Coordinator.Wrap.
type HandlerFunc func(raw any) any

// Strategy builds the HandlerFunc for one task. The three built-ins cover
// the common cases; user-defined strategies are just Strategy values and
// may be set batch-wide with WithStrategy or per item on Item.Strategy.
type Strategy func(results *Results, id string, handler Handler) HandlerFunc

// Result is implemented by executor return values that can report
// protocol-level success, such as an HTTP response. Only the StoreStatus
// strategy inspects it; the other strategies impose no shape on raw
// results.
type Result interface {
	OK() bool
}

// StoreStatus is the default strategy. It stores the raw result
// unconditionally and fails the task when the result does not report
// protocol-level success; otherwise it delegates to the user handler when
// one is present.
func StoreStatus(results *Results, id string, handler Handler) HandlerFunc {
	return func(raw any) any {
		results.Put(id, raw)
		if r, ok := raw.(Result); !ok || !r.OK() {
			return false
		}
		if handler != nil {
			return handler(raw)
		}
		return raw
	}
}

// StoreAlways stores the raw result unconditionally and never fails on its
// own: failure can only come from the user handler returning false.
func StoreAlways(results *Results, id string, handler Handler) HandlerFunc {
	return func(raw any) any {
		results.Put(id, raw)
		if handler != nil {
			return handler(raw)
		}
		return raw
	}
}

// StoreNone performs no automatic storage and delegates entirely to the
// user handler. Handlers that want a value recorded must call Results.Put
// themselves.
func StoreNone(results *Results, id string, handler Handler) HandlerFunc {
	return func(raw any) any {
		if handler != nil {
			return handler(raw)
		}
		return raw
	}
}
