package executor

import (
	"fmt"
	"sort"
	"sync"
)

// Registry holds the configured executors keyed by execution profile
// ("sim", "nextflow", "awsbatch").
type Registry struct {
	mu        sync.RWMutex
	executors map[string]Executor
}

// NewRegistry creates an empty executor registry.
func NewRegistry() *Registry {
	return &Registry{
		executors: make(map[string]Executor),
	}
}

// Register adds an executor to the registry under the given profile name.
func (r *Registry) Register(profile string, e Executor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.executors[profile] = e
}

// Resolve returns the executor registered for the given profile.
func (r *Registry) Resolve(profile string) (Executor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.executors[profile]
	if !ok {
		return nil, fmt.Errorf("executor profile %q is not registered", profile)
	}
	return e, nil
}

// List returns the registered profile names, sorted for stable output.
func (r *Registry) List() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	profiles := make([]string, 0, len(r.executors))
	for name := range r.executors {
		profiles = append(profiles, name)
	}
	sort.Strings(profiles)
	return profiles
}
