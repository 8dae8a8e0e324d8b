package orchestrator

import (
	"context"
	"errors"
	"time"

	"pravnyk/internal/adapters"
	"pravnyk/internal/config"
	"pravnyk/internal/ingest"
	"pravnyk/internal/legislation"
	"pravnyk/internal/logging"
	"pravnyk/internal/patterns"
	"pravnyk/internal/sectionizer"
	"pravnyk/internal/store"
	"pravnyk/internal/synthesis"
	"pravnyk/internal/types"
)

// Embedder produces query vectors for semantic retrieval.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Deps wires the orchestrator to the rest of the system. Nil members
// disable the tools that need them; Execute reports UNAVAILABLE for
// those rather than panicking.
type Deps struct {
	Meta        *store.MetadataStore
	Vectors     *store.VectorStore
	Legislation *legislation.Service
	Patterns    *patterns.Extractor
	Embedder    Embedder
	LLM         synthesis.Client
	LLMConfig   config.LLMConfig
	Uploads     *adapters.UploadParser
	Sectionizer *sectionizer.Sectionizer
	Worker      *ingest.Worker
	Query       config.QueryConfig

	// DefaultDeadline bounds every tool call that arrives without one.
	DefaultDeadline time.Duration
}

// Orchestrator dispatches tool calls to their handlers.
type Orchestrator struct {
	deps     Deps
	registry *Registry
}

// New builds the orchestrator and registers the full tool set.
func New(deps Deps) *Orchestrator {
	if deps.DefaultDeadline <= 0 {
		deps.DefaultDeadline = 90 * time.Second
	}
	if deps.Query.ExpandTopK <= 0 {
		deps.Query.ExpandTopK = 3
	}
	if deps.Query.SearchLimit <= 0 {
		deps.Query.SearchLimit = 10
	}
	o := &Orchestrator{deps: deps, registry: NewRegistry()}
	o.registerTools()
	logging.Orchestrator("registered %d tools", len(o.registry.All()))
	return o
}

// Tools lists every registered tool, sorted by name.
func (o *Orchestrator) Tools() []*Tool {
	return o.registry.All()
}

// Lookup returns the named tool, or nil.
func (o *Orchestrator) Lookup(name string) *Tool {
	return o.registry.Get(name)
}

// Result is a tool invocation outcome: the structured payload plus any
// warnings collected along the way.
type Result struct {
	Data     any      `json:"data"`
	Warnings []string `json:"warnings,omitempty"`
}

// Execute validates arguments once at entry and runs the named tool under
// the effective deadline. Unknown tools and schema violations return
// INVALID_ARGUMENT; an expired deadline with nothing collected returns
// DEADLINE_EXCEEDED.
func (o *Orchestrator) Execute(ctx context.Context, name string, args map[string]any) (*Result, error) {
	const op = "orchestrator.Execute"

	tool := o.registry.Get(name)
	if tool == nil {
		return nil, types.E(types.KindInvalidArgument, op, "unknown tool: "+name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := validateArgs(name, tool.Schema, args); err != nil {
		return nil, err
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.deps.DefaultDeadline)
		defer cancel()
	}

	start := time.Now()
	ec := &ExecContext{}
	data, err := tool.Execute(ctx, ec, args)
	elapsed := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			logging.Orchestrator("tool %s deadline exceeded after %v", name, elapsed)
			return nil, types.E(types.KindDeadlineExceeded, op, name+": deadline exceeded")
		}
		logging.Orchestrator("tool %s failed after %v: %v", name, elapsed, err)
		return nil, err
	}

	logging.OrchestratorDebug("tool %s completed in %v (%d warnings)", name, elapsed, len(ec.Warnings()))
	return &Result{Data: data, Warnings: ec.Warnings()}, nil
}

// embedQuery turns one query string into a vector, or nil when no
// embedder is wired.
func (o *Orchestrator) embedQuery(ctx context.Context, query string) ([]float32, error) {
	if o.deps.Embedder == nil {
		return nil, nil
	}
	vecs, err := o.deps.Embedder.EmbedBatch(ctx, []string{query})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}
