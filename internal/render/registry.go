package render

import (
	"fmt"
	"sync"
)

// Registry resolves algorithm identifiers to implementations. It is
// constructed once at startup and passed by reference to the components
// that need it; there is no process-wide singleton.
type Registry struct {
	mu         sync.RWMutex
	algorithms map[string]Algorithm
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		algorithms: make(map[string]Algorithm),
	}
}

// Register adds an algorithm under its own name. Registering the same
// name twice replaces the earlier entry.
func (r *Registry) Register(alg Algorithm) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.algorithms[alg.Name()] = alg
}

// Get resolves an algorithm by identifier.
// Returns ErrUnknownAlgorithm if nothing is registered under the name.
func (r *Registry) Get(name string) (Algorithm, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	alg, ok := r.algorithms[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAlgorithm, name)
	}
	return alg, nil
}

// Names returns the registered algorithm identifiers.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.algorithms))
	for name := range r.algorithms {
		names = append(names, name)
	}
	return names
}
