// Package tools provides the gateway's tool catalog: specs exposed via
// tools/list, schema validation of call arguments, and the built-in
// echo and read_file handlers.
package tools

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/haasonsaas/relay/internal/observability"
	"github.com/haasonsaas/relay/pkg/models"
)

// ErrToolNotFound is returned by Execute for unregistered tool names.
// The router maps it to a method-not-found JSON-RPC error.
var ErrToolNotFound = errors.New("tool not found")

// Handler executes a tool call. Failures are reported through the
// response's IsError flag; a returned nil response is treated as an
// internal error by the router.
type Handler func(ctx context.Context, args map[string]any) *models.ToolResponse

// Spec describes a tool for tools/list.
type Spec struct {
	Name        string
	Description string
	InputSchema map[string]any
}

// Descriptor returns the MCP wire form of the spec.
func (s Spec) Descriptor() map[string]any {
	d := map[string]any{
		"name":        s.Name,
		"description": s.Description,
	}
	if s.InputSchema != nil {
		d["inputSchema"] = s.InputSchema
	}
	return d
}

type entry struct {
	spec    Spec
	handler Handler
}

// Registry holds the static tool catalog. Registration happens at
// startup; lookups and execution are safe for concurrent use.
type Registry struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]entry
	metrics *observability.Metrics
}

// NewRegistry creates an empty tool registry. metrics may be nil.
func NewRegistry(metrics *observability.Metrics) *Registry {
	return &Registry{
		entries: map[string]entry{},
		metrics: metrics,
	}
}

// Register adds a tool. Registering a duplicate name is a startup error.
func (r *Registry) Register(spec Spec, handler Handler) error {
	if spec.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if handler == nil {
		return fmt.Errorf("tool %s: handler is required", spec.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[spec.Name]; exists {
		return fmt.Errorf("tool %s already registered", spec.Name)
	}
	r.entries[spec.Name] = entry{spec: spec, handler: handler}
	r.order = append(r.order, spec.Name)
	return nil
}

// MustRegister is Register for wiring code where a duplicate is a bug.
func (r *Registry) MustRegister(spec Spec, handler Handler) {
	if err := r.Register(spec, handler); err != nil {
		panic(err)
	}
}

// Names returns tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string{}, r.order...)
}

// Descriptors returns the tools/list payload in registration order.
func (r *Registry) Descriptors() []map[string]any {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]map[string]any, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].spec.Descriptor())
	}
	return out
}

// Execute validates the arguments against the tool's input schema and
// runs the handler. Schema violations come back as isError responses,
// not Go errors; only an unknown tool name yields ErrToolNotFound.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (*models.ToolResponse, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}

	if args == nil {
		args = map[string]any{}
	}

	if e.spec.InputSchema != nil {
		if err := ValidateArguments(e.spec.InputSchema, args); err != nil {
			r.record(name, "error", 0)
			return models.NewErrorResponse(fmt.Sprintf("invalid arguments for %s: %v", name, err)), nil
		}
	}

	start := time.Now()
	response := e.handler(ctx, args)
	elapsed := time.Since(start).Seconds()

	if response == nil {
		r.record(name, "error", elapsed)
		return models.NewErrorResponse(fmt.Sprintf("tool %s returned no response", name)), nil
	}

	status := "success"
	if response.IsError {
		status = "error"
	}
	r.record(name, status, elapsed)
	return response, nil
}

func (r *Registry) record(name, status string, seconds float64) {
	if r.metrics != nil {
		r.metrics.RecordToolExecution(name, status, seconds)
	}
}
