package group

import (
	"sync"

	"doorman/pkg/domain"
)

// Registry hands out one controller per group, building it on first use.
// Safe for concurrent use.
type Registry struct {
	mu     sync.Mutex
	groups map[domain.GroupID]*Group
	build  func(domain.GroupID) *Group
}

// NewRegistry wraps a factory that wires a controller for a group id.
func NewRegistry(build func(domain.GroupID) *Group) *Registry {
	return &Registry{
		groups: make(map[domain.GroupID]*Group),
		build:  build,
	}
}

// Get returns the controller for id, creating it if necessary.
func (r *Registry) Get(id domain.GroupID) *Group {
	r.mu.Lock()
	defer r.mu.Unlock()

	g, ok := r.groups[id]
	if !ok {
		g = r.build(id)
		r.groups[id] = g
	}
	return g
}

// Len reports how many groups have been seen.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.groups)
}
