package ingest

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"pravnyk/internal/adapters"
	"pravnyk/internal/sectionizer"
	"pravnyk/internal/store"
	"pravnyk/internal/types"
)

// decisionText carries one marker per extractable section type so the
// pipeline produces facts, claims, reasoning, and decision sections.
const decisionText = `Встановлено, що між сторонами виник спір щодо якості придбаного товару, який був переданий покупцеві після укладення договору купівлі-продажу в магазині відповідача.

Позивач просить визнати недійсним пункт договору та зобов'язати відповідача замінити товар неналежної якості на аналогічний товар належної якості відповідно до умов гарантії.

Суд вважає, що доводи сторони позивача знайшли своє підтвердження під час розгляду справи, оскільки надані докази підтверджують істотне порушення умов договору з боку продавця.

Ухвалив задовольнити позов повністю та поновити порушене право споживача шляхом заміни товару неналежної якості на новий товар у встановлений законом строк.`

type fakeSource struct {
	texts map[string]string
	calls atomic.Int32
	fail  map[string]error
}

func (f *fakeSource) GetFullText(ctx context.Context, docID string) (*adapters.FullText, error) {
	f.calls.Add(1)
	if err, ok := f.fail[docID]; ok {
		return nil, err
	}
	text, ok := f.texts[docID]
	if !ok {
		return nil, types.E(types.KindNotFound, "test", "no such document")
	}
	return &adapters.FullText{Text: text, CaseNumber: "757/" + docID + "/24"}, nil
}

type fakeEmbedder struct {
	dims  int
	calls atomic.Int32
}

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	f.calls.Add(1)
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		vec[0] = float32(len(texts[i]))
		vec[1] = 1
		out[i] = vec
	}
	return out, nil
}

func newTestWorker(t *testing.T, source *fakeSource, embedder *fakeEmbedder) (*Worker, *store.MetadataStore, *store.VectorStore) {
	t.Helper()
	meta, err := store.NewMetadataStore(":memory:")
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	t.Cleanup(func() { meta.Close() })

	vectors, err := store.NewVectorStore(":memory:")
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	t.Cleanup(func() { vectors.Close() })

	w := NewWorker(meta, vectors, source, sectionizer.New(nil), embedder, Config{})
	return w, meta, vectors
}

func TestIngestOneFullPipeline(t *testing.T) {
	source := &fakeSource{texts: map[string]string{"101": decisionText}}
	embedder := &fakeEmbedder{dims: 8}
	w, meta, vectors := newTestWorker(t, source, embedder)

	res, err := w.IngestOne(context.Background(), "101")
	if err != nil {
		t.Fatalf("IngestOne: %v", err)
	}
	if res.Cached {
		t.Error("first ingest reported cached")
	}
	if res.Sections != 4 {
		t.Errorf("sections = %d, want 4", res.Sections)
	}
	// Only DECISION and COURT_REASONING get embedded, one chunk each.
	if res.Embeddings != 2 {
		t.Errorf("embeddings = %d, want 2", res.Embeddings)
	}

	doc, err := meta.GetDocumentByExternalID("101")
	if err != nil {
		t.Fatalf("GetDocumentByExternalID: %v", err)
	}
	if doc.CaseNumber != "757/101/24" {
		t.Errorf("case number = %s", doc.CaseNumber)
	}

	stored, err := meta.GetSections(doc.ID)
	if err != nil {
		t.Fatalf("GetSections: %v", err)
	}
	if len(stored) != 4 {
		t.Errorf("stored sections = %d, want 4", len(stored))
	}

	query := make([]float32, 8)
	query[0] = 100
	query[1] = 1
	hits, err := vectors.Search(query, store.VectorFilter{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("vector hits = %d, want 2", len(hits))
	}
	for _, h := range hits {
		if h.Payload.DocID != doc.ID {
			t.Errorf("hit doc = %s, want %s", h.Payload.DocID, doc.ID)
		}
		if h.Payload.SectionType != types.SectionDecision && h.Payload.SectionType != types.SectionReasoning {
			t.Errorf("embedded section type = %s", h.Payload.SectionType)
		}
	}
}

func TestIngestOneIdempotent(t *testing.T) {
	source := &fakeSource{texts: map[string]string{"101": decisionText}}
	embedder := &fakeEmbedder{dims: 8}
	w, _, _ := newTestWorker(t, source, embedder)

	if _, err := w.IngestOne(context.Background(), "101"); err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	res, err := w.IngestOne(context.Background(), "101")
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !res.Cached {
		t.Error("second ingest not reported cached")
	}
	// The cached path must not refetch or re-embed.
	if got := source.calls.Load(); got != 1 {
		t.Errorf("source calls = %d, want 1", got)
	}
	if got := embedder.calls.Load(); got != 2 {
		t.Errorf("embedder calls = %d, want 2", got)
	}
}

func TestIngestShortDocumentPersistedOnly(t *testing.T) {
	source := &fakeSource{texts: map[string]string{"202": "Ухвала про відкриття."}}
	embedder := &fakeEmbedder{dims: 8}
	w, meta, _ := newTestWorker(t, source, embedder)

	res, err := w.IngestOne(context.Background(), "202")
	if err != nil {
		t.Fatalf("IngestOne: %v", err)
	}
	if res.Sections != 0 || res.Embeddings != 0 {
		t.Errorf("short document produced sections=%d embeddings=%d", res.Sections, res.Embeddings)
	}
	if embedder.calls.Load() != 0 {
		t.Error("short document was embedded")
	}

	// The row itself is still persisted.
	doc, err := meta.GetDocumentByExternalID("202")
	if err != nil {
		t.Fatalf("document not persisted: %v", err)
	}
	n, err := meta.SectionCount(doc.ID)
	if err != nil || n != 0 {
		t.Errorf("section count = %d, err = %v", n, err)
	}

	// Re-running does not report cached: the idempotency bar requires
	// sections, so the document stays eligible for a richer refetch.
	res, err = w.IngestOne(context.Background(), "202")
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if res.Cached {
		t.Error("short document reported cached")
	}
}

func TestIngestBatchToleratesFailures(t *testing.T) {
	source := &fakeSource{
		texts: map[string]string{"1": decisionText, "2": decisionText},
		fail:  map[string]error{"3": errors.New("registry down")},
	}
	w, _, _ := newTestWorker(t, source, &fakeEmbedder{dims: 8})

	report := w.IngestBatch(context.Background(), []string{"1", "2", "3"})
	if report.Processed != 2 {
		t.Errorf("processed = %d, want 2", report.Processed)
	}
	if report.Errors != 1 {
		t.Errorf("errors = %d, want 1", report.Errors)
	}
	if len(report.ErrorDetails) != 1 {
		t.Fatalf("error details = %v", report.ErrorDetails)
	}
	if report.SectionsCreated != 8 {
		t.Errorf("sections created = %d, want 8", report.SectionsCreated)
	}
	if w.QueueDepth() != 0 {
		t.Errorf("queue depth = %d after batch", w.QueueDepth())
	}
}
