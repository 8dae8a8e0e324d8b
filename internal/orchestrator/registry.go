// Package orchestrator turns natural-language legal queries into grounded
// answers. It exposes a registry of typed tools over the metadata store,
// the vector store, the legislation service, and the synthesizer; the
// canonical path is get_legal_advice, which plans, retrieves in parallel,
// synthesizes, and validates every citation before packaging.
package orchestrator

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"pravnyk/internal/types"
)

// ToolCategory classifies tools for listing and intent routing.
type ToolCategory string

const (
	CategoryClassify    ToolCategory = "/classify"
	CategoryRetrieve    ToolCategory = "/retrieve"
	CategoryLegislation ToolCategory = "/legislation"
	CategoryProcedural  ToolCategory = "/procedural"
	CategoryDocuments   ToolCategory = "/documents"
	CategoryAdvice      ToolCategory = "/advice"
	CategoryAnalytics   ToolCategory = "/analytics"
	CategoryIngest      ToolCategory = "/ingest"
)

// Property describes one argument in a tool's JSON schema.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Default     any    `json:"default,omitempty"`
	Enum        []any  `json:"enum,omitempty"`
	Items       *Items `json:"items,omitempty"`
}

// Items describes array element schema.
type Items struct {
	Type string `json:"type"`
}

// ToolSchema declares a tool's arguments for validation and tools/list.
type ToolSchema struct {
	Required   []string            `json:"required"`
	Properties map[string]Property `json:"properties"`
}

// ExecContext carries per-invocation state a handler may append to:
// warnings travel back to the caller alongside the result.
type ExecContext struct {
	mu       sync.Mutex
	warnings []string
}

// Warn records a non-fatal problem for the response's warnings array.
func (e *ExecContext) Warn(format string, args ...any) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.warnings = append(e.warnings, fmt.Sprintf(format, args...))
}

// Warnings returns the accumulated warnings.
func (e *ExecContext) Warnings() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]string, len(e.warnings))
	copy(out, e.warnings)
	return out
}

// HandlerFunc executes one tool. Arguments have already passed schema
// validation when the handler runs.
type HandlerFunc func(ctx context.Context, ec *ExecContext, args map[string]any) (any, error)

// Tool is one registered capability.
type Tool struct {
	Name        string
	Description string
	Category    ToolCategory
	Schema      ToolSchema
	Execute     HandlerFunc
}

// Registry holds all tools by name.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*Tool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]*Tool)}
}

// Register adds a tool; duplicate names are a programming error.
func (r *Registry) Register(t *Tool) error {
	if t.Name == "" || t.Execute == nil {
		return fmt.Errorf("tool must have a name and an Execute func")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.tools[t.Name]; exists {
		return fmt.Errorf("tool already registered: %s", t.Name)
	}
	r.tools[t.Name] = t
	return nil
}

// MustRegister registers a tool and panics on error. Used for the static
// registration at construction time.
func (r *Registry) MustRegister(t *Tool) {
	if err := r.Register(t); err != nil {
		panic(err)
	}
}

// Get returns a tool by name, or nil.
func (r *Registry) Get(name string) *Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.tools[name]
}

// All returns every tool sorted by name.
func (r *Registry) All() []*Tool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*Tool, 0, len(r.tools))
	for _, t := range r.tools {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// validateArgs checks args against the schema: required keys present,
// declared types respected, enum membership honored. Unknown keys pass
// through untouched for forward compatibility.
func validateArgs(name string, schema ToolSchema, args map[string]any) error {
	const op = "orchestrator.validateArgs"
	for _, req := range schema.Required {
		if _, ok := args[req]; !ok {
			return types.E(types.KindInvalidArgument, op,
				fmt.Sprintf("%s: missing required argument %q", name, req))
		}
	}
	for key, prop := range schema.Properties {
		val, ok := args[key]
		if !ok || val == nil {
			continue
		}
		if !typeMatches(prop.Type, val) {
			return types.E(types.KindInvalidArgument, op,
				fmt.Sprintf("%s: argument %q must be %s", name, key, prop.Type))
		}
		if len(prop.Enum) > 0 && !enumContains(prop.Enum, val) {
			return types.E(types.KindInvalidArgument, op,
				fmt.Sprintf("%s: argument %q not in enum %v", name, key, prop.Enum))
		}
	}
	return nil
}

func typeMatches(schemaType string, val any) bool {
	switch schemaType {
	case "string":
		_, ok := val.(string)
		return ok
	case "number", "integer":
		switch val.(type) {
		case float64, int, int64:
			return true
		}
		return false
	case "boolean":
		_, ok := val.(bool)
		return ok
	case "array":
		_, ok := val.([]any)
		if !ok {
			_, ok = val.([]string)
		}
		return ok
	case "object":
		_, ok := val.(map[string]any)
		return ok
	default:
		return true
	}
}

func enumContains(enum []any, val any) bool {
	for _, e := range enum {
		if e == val {
			return true
		}
	}
	return false
}

// argString extracts a string argument, "" if absent.
func argString(args map[string]any, key string) string {
	if v, ok := args[key].(string); ok {
		return v
	}
	return ""
}

// argInt extracts an integer argument (JSON numbers decode as float64).
func argInt(args map[string]any, key string, def int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return def
}

// argStrings extracts a string-array argument.
func argStrings(args map[string]any, key string) []string {
	switch v := args[key].(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}
