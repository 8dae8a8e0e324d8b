package legislation

import (
	"context"
	"sync/atomic"
	"testing"

	"pravnyk/internal/store"
	"pravnyk/internal/types"
)

type fakeFetcher struct {
	calls atomic.Int32
	act   *types.LegislationAct
	arts  []types.LegislationArticle
	err   error
}

func (f *fakeFetcher) Fetch(ctx context.Context, actID string) (*types.LegislationAct, []types.LegislationArticle, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.act, f.arts, nil
}

type fakeEmbedder struct{ dims int }

func (f *fakeEmbedder) Dimensions() int { return f.dims }

func (f *fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		vec := make([]float32, f.dims)
		vec[0] = float32(len(texts[i]))
		vec[1] = 1
		out[i] = vec
	}
	return out, nil
}

func civilCodeFetcher() *fakeFetcher {
	return &fakeFetcher{
		act: &types.LegislationAct{
			Code: "435-15", Type: types.ActCode,
			Title: "Цивільний кодекс України", Status: "чинний",
		},
		arts: []types.LegislationArticle{
			{ActCode: "435-15", ArticleNumber: "625", VersionDate: "2024-01-01",
				Title: "Відповідальність за порушення грошового зобов'язання",
				Text:  "Боржник не звільняється від відповідальності за неможливість виконання ним грошового зобов'язання.",
				IsCurrent: true},
			{ActCode: "435-15", ArticleNumber: "626", VersionDate: "2024-01-01",
				Title: "Поняття та види договору",
				Text:  "Договором є домовленість двох або більше сторін.",
				IsCurrent: true},
		},
	}
}

func newTestService(t *testing.T, fetcher Fetcher, embedder Embedder) (*Service, *store.VectorStore) {
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

	return NewService(meta, vectors, fetcher, embedder), vectors
}

func TestEnsureExistsFetchesOnce(t *testing.T) {
	fetcher := civilCodeFetcher()
	svc, _ := newTestService(t, fetcher, &fakeEmbedder{dims: 4})

	art, err := svc.GetArticle(context.Background(), "435-15", "625")
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if art.Title != "Відповідальність за порушення грошового зобов'язання" {
		t.Errorf("title = %q", art.Title)
	}

	// Second call hits the cache, no refetch.
	if _, err := svc.GetArticle(context.Background(), "435-15", "626"); err != nil {
		t.Fatalf("second GetArticle: %v", err)
	}
	if got := fetcher.calls.Load(); got != 1 {
		t.Errorf("fetcher calls = %d, want 1", got)
	}
}

func TestEnsureExistsEmbedsChunks(t *testing.T) {
	svc, vectors := newTestService(t, civilCodeFetcher(), &fakeEmbedder{dims: 4})

	if err := svc.EnsureExists(context.Background(), "435-15"); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}

	hits, err := vectors.Search([]float32{90, 1, 0, 0}, store.VectorFilter{
		DocumentType: types.DocLegislationArticle,
	}, 10)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("vector hits = %d, want 2 (one chunk per short article)", len(hits))
	}
	for _, h := range hits {
		if h.Payload.DocumentType != types.DocLegislationArticle {
			t.Errorf("payload type = %s", h.Payload.DocumentType)
		}
		if len(h.Payload.LawArticles) != 1 {
			t.Errorf("payload articles = %v", h.Payload.LawArticles)
		}
	}
}

func TestGetStructure(t *testing.T) {
	svc, _ := newTestService(t, civilCodeFetcher(), nil)

	toc, err := svc.GetStructure(context.Background(), "435-15")
	if err != nil {
		t.Fatalf("GetStructure: %v", err)
	}
	if len(toc) != 2 {
		t.Fatalf("toc entries = %d, want 2", len(toc))
	}
	if toc[0].ArticleNumber != "625" || toc[1].ArticleNumber != "626" {
		t.Errorf("toc order = [%s %s]", toc[0].ArticleNumber, toc[1].ArticleNumber)
	}
}

func TestSearchRequiresQuery(t *testing.T) {
	svc, _ := newTestService(t, civilCodeFetcher(), nil)
	_, err := svc.Search(context.Background(), "", "435-15", 5)
	if types.KindOf(err) != types.KindInvalidArgument {
		t.Errorf("kind = %s, want INVALID_ARGUMENT", types.KindOf(err))
	}
}

func TestFindRelevantTextFallback(t *testing.T) {
	// No embedder configured: FindRelevant must fall back to text search.
	svc, _ := newTestService(t, civilCodeFetcher(), nil)
	if err := svc.EnsureExists(context.Background(), "435-15"); err != nil {
		t.Fatalf("EnsureExists: %v", err)
	}

	hits, err := svc.FindRelevant(context.Background(), "грошового зобов'язання", 5)
	if err != nil {
		t.Fatalf("FindRelevant: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("hits = %d, want 1", len(hits))
	}
	if hits[0].Payload.DocID != "435-15/625" {
		t.Errorf("hit doc = %s", hits[0].Payload.DocID)
	}
}

func TestParseReference(t *testing.T) {
	cases := []struct {
		in      string
		act     string
		article string
	}{
		{"ст. 625 ЦК", "435-15", "625"},
		{"ст. 625 ЦК України", "435-15", "625"},
		{"статті 1046 ЦК", "435-15", "1046"},
		{"ЦПК ст. 175", "1618-15", "175"},
		{"ГПК ст. 42", "1798-12", "42"},
		{"КАС ст. 122", "2747-15", "122"},
		{"КПК ст. 303", "4651-17", "303"},
		{"ГК ст. 193", "436-15", "193"},
		{"ПКУ ст. 201", "2755-17", "201"},
		{"1618-15 ст. 354", "1618-15", "354"},
		{"ст. 12-1 ЦПК", "1618-15", "12-1"},
	}
	for _, tc := range cases {
		ref := ParseReference(tc.in)
		if ref == nil {
			t.Errorf("ParseReference(%q) = nil", tc.in)
			continue
		}
		if ref.ActID != tc.act || ref.ArticleNumber != tc.article {
			t.Errorf("ParseReference(%q) = {%s %s}, want {%s %s}",
				tc.in, ref.ActID, ref.ArticleNumber, tc.act, tc.article)
		}
	}

	for _, bad := range []string{"", "просто текст", "ст. БВГ", "НЕВІДОМИЙ ст. 5"} {
		if ref := ParseReference(bad); ref != nil {
			t.Errorf("ParseReference(%q) = %+v, want nil", bad, ref)
		}
	}
}

func TestFormatReferenceRoundTrip(t *testing.T) {
	ref := ParseReference("ст. 625 ЦК")
	if ref == nil {
		t.Fatal("parse failed")
	}
	formatted := FormatReference(ref)
	if formatted != "ст. 625 ЦК" {
		t.Errorf("formatted = %q", formatted)
	}
	back := ParseReference(formatted)
	if back == nil || back.ActID != ref.ActID || back.ArticleNumber != ref.ArticleNumber {
		t.Errorf("round trip lost the reference: %+v", back)
	}

	// Unknown act ids render raw.
	raw := FormatReference(&types.ArticleReference{ActID: "9999-99", ArticleNumber: "7"})
	if raw != "ст. 7 9999-99" {
		t.Errorf("raw format = %q", raw)
	}
}
