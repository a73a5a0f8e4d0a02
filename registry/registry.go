// Package registry provides a small name-to-value table for pluggable
// components resolved at run time, such as result handlers referenced by
// name from batch files.
package registry

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

// ErrAlreadyRegistered is returned when a name is registered twice.
var ErrAlreadyRegistered = errors.New("name already registered")

// Registry is a concurrency-safe name → value table.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]T
}

// New creates an empty Registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]T)}
}

// Register stores value under name. Registering a name twice is an error.
func (r *Registry[T]) Register(name string, value T) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.entries[name]; exists {
		return fmt.Errorf("%w: %q", ErrAlreadyRegistered, name)
	}
	r.entries[name] = value
	return nil
}

// Lookup returns the value registered under name.
func (r *Registry[T]) Lookup(name string) (T, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	value, ok := r.entries[name]
	return value, ok
}

// Names returns the registered names in sorted order.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
