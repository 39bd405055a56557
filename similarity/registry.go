package similarity

import (
	"errors"
	"fmt"
	"sync"

	"github.com/poiesic/picmatch/core"
)

// Registry holds the available backends keyed by method.
type Registry struct {
	mu       sync.RWMutex
	backends map[Method]Backend
	order    []Method
}

// NewRegistry creates a registry holding the given backends.
// Nil backends are skipped.
func NewRegistry(backends ...Backend) *Registry {
	r := &Registry{backends: make(map[Method]Backend)}
	for _, b := range backends {
		r.Register(b)
	}
	return r
}

// Register adds a backend, replacing any backend with the same method.
func (r *Registry) Register(b Backend) {
	if b == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	m := b.Method()
	if _, exists := r.backends[m]; !exists {
		r.order = append(r.order, m)
	}
	r.backends[m] = b
}

// Get returns the backend for m, or core.ErrUnsupportedMethod when none is
// registered.
func (r *Registry) Get(m Method) (Backend, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	b, ok := r.backends[m]
	if !ok {
		return nil, fmt.Errorf("%w: %q is not available", core.ErrUnsupportedMethod, m)
	}
	return b, nil
}

// Methods lists registered methods in registration order.
func (r *Registry) Methods() []Method {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Method(nil), r.order...)
}

// Invalidate forwards to every registered backend.
func (r *Registry) Invalidate(ids ...string) {
	if len(ids) == 0 {
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, m := range r.order {
		r.backends[m].Invalidate(ids...)
	}
}

// Close closes every registered backend.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, m := range r.order {
		if err := r.backends[m].Close(); err != nil {
			errs = append(errs, fmt.Errorf("closing %s backend: %w", m, err))
		}
	}
	return errors.Join(errs...)
}
