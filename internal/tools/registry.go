// Package tools provides the tool registry, execution, and rate limiting
// consumed by the tool pipeline. A tool is a function an agent can plan calls
// against; manifests describe tools to the planning LLM.
package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"
)

// Tool defines the interface that all tools must implement.
type Tool interface {
	// Name returns the unique name of the tool.
	Name() string

	// Description returns a human-readable description of what the tool does.
	// It helps the planning LLM decide when to use the tool.
	Description() string

	// Parameters returns a JSON Schema object describing the tool's input
	// parameters.
	Parameters() map[string]interface{}

	// Execute runs the tool with the provided arguments.
	// args is a JSON-encoded string containing the tool's input parameters.
	Execute(args string) (string, error)
}

// ContextualTool is an optional interface that tools can implement to receive
// execution context. If a tool implements this interface, ExecuteWithContext
// is called instead of Execute.
type ContextualTool interface {
	Tool

	// ExecuteWithContext runs the tool with the provided arguments and
	// execution context for cancellation and timeout handling.
	ExecuteWithContext(ctx context.Context, args string) (string, error)
}

// Manifest describes one tool to the planning LLM.
type Manifest struct {
	ID          string                 `json:"id"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// Registry manages the collection of available tools.
// It provides thread-safe operations for registering and retrieving tools.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
}

// NewRegistry creates a new empty tool registry.
func NewRegistry() *Registry {
	return &Registry{
		tools: make(map[string]Tool),
	}
}

// Register adds a tool to the registry.
// If a tool with the same name already exists, it will be replaced.
func (r *Registry) Register(tool Tool) error {
	if tool == nil {
		return fmt.Errorf("cannot register nil tool")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	name := tool.Name()
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}

	r.tools[name] = tool
	return nil
}

// Get retrieves a tool by its name.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	tool, ok := r.tools[name]
	return tool, ok
}

// Manifests returns manifests for the named tools, skipping unknown ids.
// An empty filter returns manifests for every registered tool.
func (r *Registry) Manifests(ids []string) []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if len(ids) == 0 {
		ids = make([]string, 0, len(r.tools))
		for name := range r.tools {
			ids = append(ids, name)
		}
		sort.Strings(ids)
	}

	out := make([]Manifest, 0, len(ids))
	for _, id := range ids {
		tool, ok := r.tools[id]
		if !ok {
			continue
		}
		out = append(out, Manifest{
			ID:          tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return out
}
