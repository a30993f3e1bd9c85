package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/firebase/genkit/go/ai"
	"github.com/firebase/genkit/go/genkit"
)

// ErrUnknownTool indicates a tool name nothing registered. The model
// requesting one is a programming error in the tool definitions handed to
// it, so it surfaces to the caller instead of being swallowed.
var ErrUnknownTool = errors.New("unknown tool")

// Registry holds the tools available to the orchestrator.
// Safe for concurrent use; registration typically happens once at setup.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
	order []string
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool. Re-registering a name replaces the previous tool.
func (r *Registry) Register(t *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.name]; !exists {
		r.order = append(r.order, t.name)
	}
	r.tools[t.name] = t
}

// Get returns a tool by name.
func (r *Registry) Get(name string) (*Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}
	return t, nil
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// Execute runs the named tool with the given input.
func (r *Registry) Execute(ctx context.Context, name string, input any) (any, error) {
	t, err := r.Get(name)
	if err != nil {
		return nil, err
	}
	return t.Execute(ctx, input)
}

// Refs defines every registered tool with Genkit and returns the
// references to pass into generation options.
func (r *Registry) Refs(g *genkit.Genkit) []ai.ToolRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	refs := make([]ai.ToolRef, 0, len(r.order))
	for _, name := range r.order {
		if existing := genkit.LookupTool(g, name); existing != nil {
			refs = append(refs, existing)
			continue
		}
		refs = append(refs, r.tools[name].Define(g))
	}
	return refs
}
