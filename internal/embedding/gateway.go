package embedding

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"pravnyk/internal/logging"
	"pravnyk/internal/types"
)

// =============================================================================
// EMBEDDING GATEWAY
// =============================================================================

// Gateway wraps an Engine with the operational concerns every caller needs:
// batch coalescing up to the provider limit, bounded retry with exponential
// backoff on transient failures, strict dimension enforcement, and a running
// cost meter. All ingest and query paths go through the gateway rather than
// talking to an Engine directly.
type Gateway struct {
	engine     Engine
	dimensions int
	maxBatch   int
	maxRetries int

	mu          sync.Mutex
	textsSeen   int64
	charsSeen   int64
	callsFailed int64
}

// NewGateway creates a gateway around an engine. The engine's own dimension
// setting is authoritative; cfg.Dimensions must agree with it.
func NewGateway(engine Engine, cfg Config) (*Gateway, error) {
	if engine == nil {
		return nil, types.E(types.KindInvalidArgument, "embedding.NewGateway", "engine is nil")
	}
	if cfg.Dimensions > 0 && engine.Dimensions() != cfg.Dimensions {
		return nil, types.E(types.KindInvariantViolated, "embedding.NewGateway",
			"engine dimensions do not match configured collection dimensions")
	}
	maxBatch := cfg.MaxBatch
	if maxBatch <= 0 {
		maxBatch = 64
	}
	maxRetries := cfg.MaxRetries
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &Gateway{
		engine:     engine,
		dimensions: engine.Dimensions(),
		maxBatch:   maxBatch,
		maxRetries: maxRetries,
	}, nil
}

// Dimensions returns the dimensionality every returned vector has.
func (g *Gateway) Dimensions() int {
	return g.dimensions
}

// Embed embeds a single text.
func (g *Gateway) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := g.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in provider-sized sub-batches, preserving input
// order. Empty or whitespace-only texts are rejected up front since the
// upstream APIs either error or return garbage vectors for them.
func (g *Gateway) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	const op = "embedding.EmbedBatch"
	if len(texts) == 0 {
		return nil, types.E(types.KindInvalidArgument, op, "no texts to embed")
	}
	for i, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, types.E(types.KindInvalidArgument, op, fmt.Sprintf("text %d is empty", i))
		}
	}

	timer := logging.StartTimer(logging.CategoryEmbedding, "EmbedBatch")
	defer timer.StopWithThreshold(2 * time.Second)

	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += g.maxBatch {
		end := start + g.maxBatch
		if end > len(texts) {
			end = len(texts)
		}
		batch := texts[start:end]

		vecs, err := g.embedWithRetry(ctx, batch)
		if err != nil {
			return nil, err
		}
		for i, v := range vecs {
			if len(v) != g.dimensions {
				g.mu.Lock()
				g.callsFailed++
				g.mu.Unlock()
				return nil, types.E(types.KindInvariantViolated, op,
					fmt.Sprintf("provider returned vector of dimension %d for text %d, want %d", len(v), start+i, g.dimensions))
			}
		}
		out = append(out, vecs...)
	}

	g.mu.Lock()
	g.textsSeen += int64(len(texts))
	for _, t := range texts {
		g.charsSeen += int64(len(t))
	}
	g.mu.Unlock()

	logging.EmbeddingDebug("embedded %d texts via %s", len(texts), g.engine.Name())
	return out, nil
}

// embedWithRetry retries transient upstream failures with exponential
// backoff. Context cancellation and invalid input are never retried.
func (g *Gateway) embedWithRetry(ctx context.Context, batch []string) ([][]float32, error) {
	const op = "embedding.EmbedBatch"
	backoff := 500 * time.Millisecond

	var lastErr error
	for attempt := 0; attempt < g.maxRetries; attempt++ {
		if attempt > 0 {
			logging.Embedding("retrying batch of %d after error (attempt %d/%d): %v",
				len(batch), attempt+1, g.maxRetries, lastErr)
			select {
			case <-ctx.Done():
				return nil, types.Wrap(types.KindDeadlineExceeded, op, ctx.Err())
			case <-time.After(backoff):
			}
			backoff *= 2
		}

		vecs, err := g.engine.EmbedBatch(ctx, batch)
		if err == nil {
			return vecs, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return nil, types.Wrap(types.KindDeadlineExceeded, op, ctx.Err())
		}
		if isQuotaError(err) {
			// Quota errors get the backoff treatment too, but keep the
			// kind distinct so callers can shed load instead of retrying.
			continue
		}
	}

	g.mu.Lock()
	g.callsFailed++
	g.mu.Unlock()

	kind := types.KindUnavailable
	if isQuotaError(lastErr) {
		kind = types.KindResourceExhausted
	}
	return nil, types.Wrap(kind, op, lastErr)
}

func isQuotaError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "quota") ||
		strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "429") ||
		strings.Contains(msg, "resource exhausted")
}

// =============================================================================
// COST METERING
// =============================================================================

// Usage is a snapshot of work the gateway has pushed upstream.
type Usage struct {
	Texts       int64 `json:"texts"`
	Characters  int64 `json:"characters"`
	FailedCalls int64 `json:"failed_calls"`
}

// Usage returns cumulative usage since the gateway was created.
func (g *Gateway) Usage() Usage {
	g.mu.Lock()
	defer g.mu.Unlock()
	return Usage{
		Texts:       g.textsSeen,
		Characters:  g.charsSeen,
		FailedCalls: g.callsFailed,
	}
}
