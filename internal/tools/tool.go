// Package tools provides the built-in tool set and its registry.
//
// Every tool implements the Tool interface; the registry keeps them in
// registration order and renders the provider-facing definitions.
package tools

import (
	"context"
	"sync"

	"github.com/dexterhq/dexter/internal/providers"
)

// Tool is one capability the model can invoke.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]interface{}
	Execute(ctx context.Context, args map[string]interface{}) *Result
}

// Registry holds the available tools, preserving registration order so
// prompt and definition output stays stable.
type Registry struct {
	mu    sync.RWMutex
	order []string
	tools map[string]Tool
}

func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Tool)}
}

// Register adds a tool. Re-registering a name replaces the tool but keeps
// its original position.
func (r *Registry) Register(t Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name()]; !exists {
		r.order = append(r.order, t.Name())
	}
	r.tools[t.Name()] = t
}

// Get returns the named tool, or nil.
func (r *Registry) Get(name string) Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// List returns all tools in registration order.
func (r *Registry) List() []Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Tool, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.tools[name])
	}
	return out
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.tools)
}

// ProviderDefs renders the tool definitions in provider wire format.
func (r *Registry) ProviderDefs() []providers.ToolDefinition {
	list := r.List()
	defs := make([]providers.ToolDefinition, 0, len(list))
	for _, t := range list {
		defs = append(defs, providers.ToolDefinition{
			Type: "function",
			Function: providers.ToolFunctionSchema{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Parameters(),
			},
		})
	}
	return defs
}
