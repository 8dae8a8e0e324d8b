package store

import (
	"testing"

	"pravnyk/internal/types"
)

func newTestVectorStore(t *testing.T) *VectorStore {
	t.Helper()
	v, err := NewVectorStore(":memory:")
	if err != nil {
		t.Fatalf("NewVectorStore: %v", err)
	}
	t.Cleanup(func() { v.Close() })
	return v
}

func TestVectorStoreLazyCreationAndDimensionPin(t *testing.T) {
	v := newTestVectorStore(t)
	if v.Dimensions() != 0 {
		t.Fatalf("fresh store dimensions = %d, want 0", v.Dimensions())
	}

	err := v.Upsert("v1", []float32{1, 0, 0, 0}, types.ChunkPayload{DocID: "d1"})
	if err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if v.Dimensions() != 4 {
		t.Errorf("dimensions = %d, want 4 after first upsert", v.Dimensions())
	}

	// Mismatched dimension fails hard.
	err = v.Upsert("v2", []float32{1, 0}, types.ChunkPayload{DocID: "d1"})
	if types.KindOf(err) != types.KindInvariantViolated {
		t.Errorf("mismatch kind = %s, want INVARIANT_VIOLATED", types.KindOf(err))
	}
}

func TestVectorSearchFilteredCosine(t *testing.T) {
	v := newTestVectorStore(t)

	put := func(id string, vec []float32, p types.ChunkPayload) {
		t.Helper()
		if err := v.Upsert(id, vec, p); err != nil {
			t.Fatalf("Upsert %s: %v", id, err)
		}
	}
	put("v1", []float32{1, 0, 0}, types.ChunkPayload{
		DocID: "d1", SectionType: types.SectionReasoning,
		DocumentType: types.DocCourtDecision, Court: "Верховний Суд", Chamber: "КЦС",
	})
	put("v2", []float32{0.9, 0.1, 0}, types.ChunkPayload{
		DocID: "d2", SectionType: types.SectionReasoning,
		DocumentType: types.DocCourtDecision, Court: "Верховний Суд", Chamber: "КГС",
	})
	put("v3", []float32{0, 1, 0}, types.ChunkPayload{
		DocID: "d3", SectionType: types.SectionDecision,
		DocumentType: types.DocCourtDecision, Court: "Апеляційний суд",
	})
	put("v4", []float32{1, 0, 0}, types.ChunkPayload{
		DocID: "act-1", SectionType: types.SectionLawRefs,
		DocumentType: types.DocLegislationArticle,
	})

	query := []float32{1, 0, 0}

	// Unfiltered: v1 and v4 tie at the top.
	hits, err := v.Search(query, VectorFilter{}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 4 {
		t.Fatalf("got %d hits, want 4", len(hits))
	}
	if hits[0].Score < hits[len(hits)-1].Score {
		t.Error("hits not sorted by score descending")
	}

	// document_type filter.
	hits, _ = v.Search(query, VectorFilter{DocumentType: types.DocLegislationArticle}, 10)
	if len(hits) != 1 || hits[0].Payload.DocID != "act-1" {
		t.Errorf("legislation filter hits = %+v", hits)
	}

	// Chamber OR-group.
	hits, _ = v.Search(query, VectorFilter{
		DocumentType: types.DocCourtDecision,
		Chambers:     []string{"КЦС", "КГС"},
	}, 10)
	if len(hits) != 2 {
		t.Fatalf("chamber OR-group hits = %d, want 2", len(hits))
	}
	if hits[0].Payload.DocID != "d1" {
		t.Errorf("best hit = %s, want d1", hits[0].Payload.DocID)
	}

	// Section type filter.
	hits, _ = v.Search(query, VectorFilter{SectionTypes: []types.SectionType{types.SectionDecision}}, 10)
	if len(hits) != 1 || hits[0].Payload.DocID != "d3" {
		t.Errorf("section filter hits = %+v", hits)
	}
}

func TestVectorSearchDimensionMismatch(t *testing.T) {
	v := newTestVectorStore(t)
	if err := v.Upsert("v1", []float32{1, 0, 0}, types.ChunkPayload{DocID: "d1"}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	_, err := v.Search([]float32{1, 0}, VectorFilter{}, 10)
	if types.KindOf(err) != types.KindInvariantViolated {
		t.Errorf("kind = %s, want INVARIANT_VIOLATED", types.KindOf(err))
	}
}

func TestVectorSearchEmptyCollection(t *testing.T) {
	v := newTestVectorStore(t)
	hits, err := v.Search([]float32{1, 0}, VectorFilter{}, 10)
	if err != nil {
		t.Fatalf("Search on empty store: %v", err)
	}
	if hits != nil {
		t.Errorf("hits = %v, want nil", hits)
	}
}

func TestVectorDeleteByDocument(t *testing.T) {
	v := newTestVectorStore(t)
	v.Upsert("v1", []float32{1, 0}, types.ChunkPayload{DocID: "d1"})
	v.Upsert("v2", []float32{0, 1}, types.ChunkPayload{DocID: "d1"})
	v.Upsert("v3", []float32{1, 1}, types.ChunkPayload{DocID: "d2"})

	n, err := v.DeleteByDocument("d1")
	if err != nil {
		t.Fatalf("DeleteByDocument: %v", err)
	}
	if n != 2 {
		t.Errorf("deleted %d, want 2", n)
	}

	count, _ := v.Count()
	if count != 1 {
		t.Errorf("remaining = %d, want 1", count)
	}

	hits, _ := v.Search([]float32{1, 0}, VectorFilter{}, 10)
	for _, h := range hits {
		if h.Payload.DocID == "d1" {
			t.Error("deleted document still appears in search")
		}
	}
}

func TestVectorUpsertReplacesExisting(t *testing.T) {
	v := newTestVectorStore(t)
	v.Upsert("v1", []float32{1, 0}, types.ChunkPayload{DocID: "d1", Text: "old"})
	v.Upsert("v1", []float32{0, 1}, types.ChunkPayload{DocID: "d1", Text: "new"})

	count, _ := v.Count()
	if count != 1 {
		t.Fatalf("count = %d, want 1 after re-upsert", count)
	}
	hits, _ := v.Search([]float32{0, 1}, VectorFilter{}, 1)
	if len(hits) != 1 || hits[0].Payload.Text != "new" {
		t.Errorf("hit = %+v, want refreshed payload", hits)
	}
	if hits[0].Score < 0.99 {
		t.Errorf("score = %f, want ~1 against the replaced vector", hits[0].Score)
	}
}

func TestEncodeDecodeVector(t *testing.T) {
	in := []float32{0.25, -1.5, 3.75, 0}
	out := decodeVector(encodeVector(in))
	if len(out) != len(in) {
		t.Fatalf("length %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: %f != %f", i, in[i], out[i])
		}
	}
}
