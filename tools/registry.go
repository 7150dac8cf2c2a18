// Package tools implements the Tool Registry and Tool Invoker: the
// federation point between built-in tools, workflows exposed as tools, and
// external MCP backends, plus the retrying dispatcher that fronts all
// three for a running execution.
package tools

import (
	"context"
	"fmt"
	"sync"

	"github.com/ploston/dael"
)

// Handler executes one tool call once its parameters have been rendered
// and validated.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Descriptor is what tools/list and workflow-tool-schema generation need
// to know about a callable tool.
type Descriptor struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Schema      map[string]any `json:"schema,omitempty"`
	Source      string         `json:"source"` // "builtin", "workflow", or an MCP backend id
}

type entry struct {
	Descriptor
	handler Handler
}

// WorkflowLister supplies the Workflow Registry's current set of workflows
// so each can be exposed as a "workflow:<name>" tool.
type WorkflowLister interface {
	List() []*dael.Workflow
}

// Backend is an external tool source reachable over MCP.
type Backend interface {
	ID() string
	ListTools(ctx context.Context) ([]Descriptor, error)
	CallTool(ctx context.Context, name string, params map[string]any) (any, error)
}

// Registry holds three ordered pools of tools and resolves name lookups
// with fixed precedence: built-ins, then workflows, then MCP backends —
// the order the tools are wired into this registry at startup.
type Registry struct {
	mu sync.RWMutex

	builtins  map[string]entry
	workflows map[string]entry
	backendOf map[string]entry

	workflowLister WorkflowLister
	backends       []Backend
	workflowRunner func(ctx context.Context, name string, params map[string]any) (any, error)
}

// New constructs an empty Registry. Built-ins are registered with
// RegisterBuiltin; workflows and MCP backends populate on Refresh.
func New(lister WorkflowLister, backends []Backend, workflowRunner func(ctx context.Context, name string, params map[string]any) (any, error)) *Registry {
	return &Registry{
		builtins:       make(map[string]entry),
		workflows:      make(map[string]entry),
		backendOf:      make(map[string]entry),
		workflowLister: lister,
		backends:       backends,
		workflowRunner: workflowRunner,
	}
}

// RegisterBuiltin adds a built-in tool. Built-ins always win name
// collisions against workflows and MCP backends.
func (r *Registry) RegisterBuiltin(d Descriptor, h Handler) {
	d.Source = "builtin"
	r.mu.Lock()
	defer r.mu.Unlock()
	r.builtins[d.Name] = entry{Descriptor: d, handler: h}
}

// Refresh rebuilds the workflow-tool and MCP-backend pools from their
// current sources and atomically swaps them in, so a lookup never
// observes a partially rebuilt registry.
func (r *Registry) Refresh(ctx context.Context) error {
	workflows := make(map[string]entry)
	if r.workflowLister != nil {
		for _, wf := range r.workflowLister.List() {
			name := "workflow:" + wf.Name()
			workflows[name] = entry{
				Descriptor: Descriptor{
					Name:        name,
					Description: wf.Description(),
					Schema:      workflowSchema(wf),
					Source:      "workflow",
				},
				handler: r.workflowHandler(wf.Name()),
			}
		}
	}

	backendOf := make(map[string]entry)
	claimedBy := make(map[string]string)
	var errs []error
	for _, b := range r.backends {
		descs, err := b.ListTools(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("backend %q: %w", b.ID(), err))
			continue
		}
		for _, d := range descs {
			// A later backend never displaces an earlier one's tool: the
			// name collision is a load-time error, not a silent override.
			if owner, taken := claimedBy[d.Name]; taken {
				errs = append(errs, fmt.Errorf("tool %q claimed by both backend %q and backend %q", d.Name, owner, b.ID()))
				continue
			}
			claimedBy[d.Name] = b.ID()
			d.Source = b.ID()
			backendOf[d.Name] = entry{Descriptor: d, handler: r.backendHandler(b, d.Name)}
		}
	}

	r.mu.Lock()
	r.workflows = workflows
	r.backendOf = backendOf
	r.mu.Unlock()

	if len(errs) > 0 {
		return fmt.Errorf("refresh completed with errors: %v", errs)
	}
	return nil
}

func (r *Registry) workflowHandler(name string) Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		return r.workflowRunner(ctx, name, params)
	}
}

func (r *Registry) backendHandler(b Backend, name string) Handler {
	return func(ctx context.Context, params map[string]any) (any, error) {
		return b.CallTool(ctx, name, params)
	}
}

// Lookup resolves a tool name against builtins, then workflows, then MCP
// backends, in that order.
func (r *Registry) Lookup(name string) (Descriptor, Handler, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.builtins[name]; ok {
		return e.Descriptor, e.handler, true
	}
	if e, ok := r.workflows[name]; ok {
		return e.Descriptor, e.handler, true
	}
	if e, ok := r.backendOf[name]; ok {
		return e.Descriptor, e.handler, true
	}
	return Descriptor{}, nil, false
}

// List returns every tool currently registered, in builtin/workflow/backend
// order, for tools/list and CLI listing.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.builtins)+len(r.workflows)+len(r.backendOf))
	for _, e := range r.builtins {
		out = append(out, e.Descriptor)
	}
	for _, e := range r.workflows {
		out = append(out, e.Descriptor)
	}
	for _, e := range r.backendOf {
		out = append(out, e.Descriptor)
	}
	return out
}

func workflowSchema(wf *dael.Workflow) map[string]any {
	props := make(map[string]any, len(wf.Inputs()))
	var required []string
	for _, name := range wf.SortedInputNames() {
		in, _ := wf.GetInput(name)
		props[name] = map[string]any{
			"type":        string(in.Type),
			"description": in.Description,
		}
		if in.Required {
			required = append(required, name)
		}
	}
	return map[string]any{
		"type":       "object",
		"properties": props,
		"required":   required,
	}
}
