package batch

import "sync"

// Results maps task ids to stored values. A Runner owns one Results for its
// whole lifetime, not per run: values written by earlier runs stay
// queryable until a later run reuses the id. Each id is written at most
// once per run, by the strategy (or handler) of the item that carries it.
type Results struct {
	mu sync.RWMutex
	m  map[string]any
}

// NewResults creates an empty Results.
func NewResults() *Results {
	return &Results{m: make(map[string]any)}
}

// Put stores value under id, replacing any prior value.
func (r *Results) Put(id string, value any) {
	r.mu.Lock()
	r.m[id] = value
	r.mu.Unlock()
}

// Get returns the stored value for id. ok reports whether any strategy or
// handler ever wrote the key.
func (r *Results) Get(id string) (value any, ok bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok = r.m[id]
	return value, ok
}

// Len returns the number of stored ids.
func (r *Results) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.m)
}
