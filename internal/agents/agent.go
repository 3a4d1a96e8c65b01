// Package agents implements the Agent Registry (C7): named handlers
// conforming to a uniform (state) -> state contract, invoked by the
// Workflow Engine (C8) when it reaches an agent node. Grounded on
// spec.md section 4.7 and the three LangGraph-style agents in
// original_source/us-stock-assistant/backend/app/services/agents/*.py.
package agents

import (
	"context"
	"sync"
)

// State is the structured record threaded through a workflow run.
// Agents never mutate in place from the caller's point of view — each
// Func returns the state it wants the next node to see — but may
// mutate and return the same map for efficiency, matching the Python
// originals' `state["results"] = results; return state` idiom.
type State struct {
	Context     map[string]any
	Results     map[string]any
	Errors      []string
	CurrentNode string
}

// Clone returns a shallow copy suitable for fanning out to parallel
// nodes from a shared snapshot — each branch gets its own Results map
// so concurrent writes can't race (spec.md section 4.8's parallel mode
// requires per-agent-namespaced, conflict-free merges upstream of this
// copy, not shared mutable state here).
func (s State) Clone() State {
	ctx := make(map[string]any, len(s.Context))
	for k, v := range s.Context {
		ctx[k] = v
	}
	results := make(map[string]any, len(s.Results))
	for k, v := range s.Results {
		results[k] = v
	}
	errs := make([]string, len(s.Errors))
	copy(errs, s.Errors)
	return State{Context: ctx, Results: results, Errors: errs, CurrentNode: s.CurrentNode}
}

// Func is the uniform agent contract: agents never return an error,
// matching spec.md section 4.7 — a recoverable failure is appended to
// Errors instead.
type Func func(ctx context.Context, state State) State

// Registry holds agents by name, looked up by the Workflow Engine when
// it resolves an agent-type node.
type Registry struct {
	mu     sync.RWMutex
	agents map[string]Func
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{agents: make(map[string]Func)}
}

// Register adds or replaces the handler for name.
func (r *Registry) Register(name string, fn Func) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.agents[name] = fn
}

// Get looks up a registered agent by name.
func (r *Registry) Get(name string) (Func, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.agents[name]
	return fn, ok
}

// Names lists every registered agent name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.agents))
	for name := range r.agents {
		names = append(names, name)
	}
	return names
}
