package speech

import (
	"fmt"
	"sort"
	"sync"
)

// Factory creates a Backend from a string option map.
type Factory func(options map[string]string) (Backend, error)

// Registry holds named backend factories.
type Registry struct {
	mu        sync.RWMutex
	factories map[string]Factory
}

// Backends is the global backend registry. Engine packages register
// themselves from init().
var Backends = NewRegistry()

// NewRegistry creates a new empty registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
	}
}

// Register adds a named factory to the registry.
func (r *Registry) Register(name string, factory Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories[name] = factory
}

// Create instantiates the named backend.
func (r *Registry) Create(name string, options map[string]string) (Backend, error) {
	r.mu.RLock()
	factory, ok := r.factories[name]
	r.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w %q (available: %v)", ErrUnknownBackend, name, r.List())
	}

	return factory(options)
}

// Has returns true if the named factory exists.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.factories[name]
	return ok
}

// List returns all registered backend names, sorted.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
