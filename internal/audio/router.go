package audio

import (
	"fmt"
	"maps"
	"slices"
)

// Router maps engine names to backend implementations, with a fallback
// used when the requested name is not registered.
type Router[T any] struct {
	backends map[string]T
	fallback string
}

// NewRouter creates a router with the given backends and fallback name.
func NewRouter[T any](backends map[string]T, fallback string) *Router[T] {
	return &Router[T]{backends: backends, fallback: fallback}
}

// Route returns the backend for name, falling back to the default.
func (r *Router[T]) Route(name string) (T, error) {
	if backend, ok := r.backends[name]; ok {
		return backend, nil
	}
	if backend, ok := r.backends[r.fallback]; ok {
		return backend, nil
	}
	var zero T
	return zero, fmt.Errorf("no backend for engine %q", name)
}

// Has reports whether a backend is registered under name.
func (r *Router[T]) Has(name string) bool {
	_, ok := r.backends[name]
	return ok
}

// Engines returns the registered names in sorted order.
func (r *Router[T]) Engines() []string {
	return slices.Sorted(maps.Keys(r.backends))
}
