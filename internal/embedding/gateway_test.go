package embedding

import (
	"context"
	"errors"
	"testing"

	"pravnyk/internal/types"
)

// fakeEngine records calls and returns canned vectors or errors.
type fakeEngine struct {
	dims     int
	failures int // fail this many calls before succeeding
	failWith error
	calls    int
	batches  [][]string
	badDim   bool
}

func (f *fakeEngine) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := f.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

func (f *fakeEngine) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls++
	cp := make([]string, len(texts))
	copy(cp, texts)
	f.batches = append(f.batches, cp)
	if f.failures > 0 {
		f.failures--
		return nil, f.failWith
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		dim := f.dims
		if f.badDim {
			dim = f.dims - 1
		}
		v := make([]float32, dim)
		v[0] = float32(i + 1)
		out[i] = v
	}
	return out, nil
}

func (f *fakeEngine) Dimensions() int { return f.dims }
func (f *fakeEngine) Name() string    { return "fake" }

func TestGatewayEmbedBatchPreservesOrder(t *testing.T) {
	eng := &fakeEngine{dims: 4}
	gw, err := NewGateway(eng, Config{Dimensions: 4, MaxBatch: 2, MaxRetries: 1})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	texts := []string{"перший", "другий", "третій", "четвертий", "п'ятий"}
	vecs, err := gw.EmbedBatch(context.Background(), texts)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(vecs) != len(texts) {
		t.Fatalf("got %d vectors, want %d", len(vecs), len(texts))
	}
	// MaxBatch=2 over 5 texts means 3 upstream calls.
	if eng.calls != 3 {
		t.Errorf("upstream calls = %d, want 3", eng.calls)
	}
	if got := eng.batches[2]; len(got) != 1 || got[0] != "п'ятий" {
		t.Errorf("last batch = %v, want [п'ятий]", got)
	}
}

func TestGatewayRetriesTransientFailure(t *testing.T) {
	eng := &fakeEngine{dims: 4, failures: 2, failWith: errors.New("connection reset")}
	gw, err := NewGateway(eng, Config{Dimensions: 4, MaxBatch: 8, MaxRetries: 3})
	if err != nil {
		t.Fatalf("NewGateway: %v", err)
	}

	vecs, err := gw.EmbedBatch(context.Background(), []string{"текст"})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if len(vecs) != 1 {
		t.Fatalf("got %d vectors, want 1", len(vecs))
	}
	if eng.calls != 3 {
		t.Errorf("upstream calls = %d, want 3", eng.calls)
	}
}

func TestGatewayExhaustedRetriesUnavailable(t *testing.T) {
	eng := &fakeEngine{dims: 4, failures: 10, failWith: errors.New("connection reset")}
	gw, _ := NewGateway(eng, Config{Dimensions: 4, MaxRetries: 2})

	_, err := gw.EmbedBatch(context.Background(), []string{"текст"})
	if err == nil {
		t.Fatal("expected error after exhausted retries")
	}
	if types.KindOf(err) != types.KindUnavailable {
		t.Errorf("kind = %s, want UNAVAILABLE", types.KindOf(err))
	}
	if !types.Retryable(err) {
		t.Error("UNAVAILABLE should be retryable")
	}
}

func TestGatewayQuotaErrorsAreResourceExhausted(t *testing.T) {
	eng := &fakeEngine{dims: 4, failures: 10, failWith: errors.New("429: quota exceeded")}
	gw, _ := NewGateway(eng, Config{Dimensions: 4, MaxRetries: 2})

	_, err := gw.EmbedBatch(context.Background(), []string{"текст"})
	if types.KindOf(err) != types.KindResourceExhausted {
		t.Errorf("kind = %s, want RESOURCE_EXHAUSTED", types.KindOf(err))
	}
}

func TestGatewayRejectsDimensionMismatch(t *testing.T) {
	eng := &fakeEngine{dims: 4, badDim: true}
	gw, _ := NewGateway(eng, Config{Dimensions: 4, MaxRetries: 1})

	_, err := gw.EmbedBatch(context.Background(), []string{"текст"})
	if types.KindOf(err) != types.KindInvariantViolated {
		t.Errorf("kind = %s, want INVARIANT_VIOLATED", types.KindOf(err))
	}
}

func TestGatewayRejectsEmptyInput(t *testing.T) {
	eng := &fakeEngine{dims: 4}
	gw, _ := NewGateway(eng, Config{Dimensions: 4})

	if _, err := gw.EmbedBatch(context.Background(), nil); types.KindOf(err) != types.KindInvalidArgument {
		t.Errorf("nil input kind = %s, want INVALID_ARGUMENT", types.KindOf(err))
	}
	if _, err := gw.EmbedBatch(context.Background(), []string{"ok", "   "}); types.KindOf(err) != types.KindInvalidArgument {
		t.Errorf("blank text kind = %s, want INVALID_ARGUMENT", types.KindOf(err))
	}
	if eng.calls != 0 {
		t.Errorf("invalid input should never reach the engine, got %d calls", eng.calls)
	}
}

func TestGatewayConfigDimensionMismatch(t *testing.T) {
	eng := &fakeEngine{dims: 768}
	if _, err := NewGateway(eng, Config{Dimensions: 1536}); err == nil {
		t.Fatal("expected error when engine and config dimensions disagree")
	}
}

func TestGatewayUsageMeter(t *testing.T) {
	eng := &fakeEngine{dims: 4}
	gw, _ := NewGateway(eng, Config{Dimensions: 4})

	if _, err := gw.EmbedBatch(context.Background(), []string{"abcd", "ab"}); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	u := gw.Usage()
	if u.Texts != 2 {
		t.Errorf("Texts = %d, want 2", u.Texts)
	}
	if u.Characters != 6 {
		t.Errorf("Characters = %d, want 6", u.Characters)
	}
}

func TestCosineSimilarity(t *testing.T) {
	a := []float32{1, 0, 0}
	b := []float32{1, 0, 0}
	c := []float32{0, 1, 0}

	if sim, _ := CosineSimilarity(a, b); sim < 0.999 {
		t.Errorf("identical vectors similarity = %f, want 1", sim)
	}
	if sim, _ := CosineSimilarity(a, c); sim != 0 {
		t.Errorf("orthogonal vectors similarity = %f, want 0", sim)
	}
	if _, err := CosineSimilarity(a, []float32{1, 0}); err == nil {
		t.Error("expected error for mismatched lengths")
	}
}

func TestCentroid(t *testing.T) {
	vecs := [][]float32{{0, 0}, {2, 4}}
	c, err := Centroid(vecs)
	if err != nil {
		t.Fatalf("Centroid: %v", err)
	}
	if c[0] != 1 || c[1] != 2 {
		t.Errorf("centroid = %v, want [1 2]", c)
	}
	if _, err := Centroid(nil); err == nil {
		t.Error("expected error for empty input")
	}
}
