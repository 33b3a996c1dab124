package tools

import (
	"context"
	"fmt"
	"sync"
)

// Tool is one function the model may call.
type Tool struct {
	Name        string
	Description string
	Parameters  map[string]interface{}
	ExecuteFunc func(ctx context.Context, args map[string]interface{}) (string, error)
}

// Execute runs the tool.
func (t *Tool) Execute(ctx context.Context, args map[string]interface{}) (string, error) {
	if t.ExecuteFunc == nil {
		return "", fmt.Errorf("tool %s has no executor", t.Name)
	}
	return t.ExecuteFunc(ctx, args)
}

// Registry holds the available tools for the tool-calling loop.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool, replacing any previous tool of the same name.
func (r *Registry) Register(tool *Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[tool.Name] = tool
}

// Get returns the named tool, or nil when unknown.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// Specs returns OpenAI-format tool specifications for every registered tool.
func (r *Registry) Specs() []map[string]interface{} {
	r.mu.RLock()
	defer r.mu.RUnlock()

	specs := make([]map[string]interface{}, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, map[string]interface{}{
			"type": "function",
			"function": map[string]interface{}{
				"name":        tool.Name,
				"description": tool.Description,
				"parameters":  tool.Parameters,
			},
		})
	}
	return specs
}
