package agents

import (
	"fmt"
	"sort"
	"sync"
)

// Registry manages the collection of registered agent descriptors.
// It provides thread-safe registration and lookup; it is a process-wide
// collaborator constructed once and passed by reference.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]*Descriptor
}

// NewRegistry creates a new empty agent registry.
func NewRegistry() *Registry {
	return &Registry{
		agents: make(map[string]*Descriptor),
	}
}

// Register adds a descriptor to the registry. Registering an existing id
// replaces the previous descriptor (used for override decoration).
func (r *Registry) Register(d *Descriptor) error {
	if d == nil {
		return fmt.Errorf("cannot register nil agent")
	}
	if err := d.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[d.ID] = d
	return nil
}

// Get retrieves a descriptor by id.
func (r *Registry) Get(id string) (*Descriptor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.agents[id]
	return d, ok
}

// All returns all registered descriptors sorted by id for deterministic
// iteration.
func (r *Registry) All() []*Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*Descriptor, 0, len(r.agents))
	for _, d := range r.agents {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID < out[j].ID
	})
	return out
}

// Len returns the number of registered agents.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.agents)
}
