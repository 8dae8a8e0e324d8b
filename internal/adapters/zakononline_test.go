package adapters

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"

	"pravnyk/internal/types"
)

func TestSearchComposesRequest(t *testing.T) {
	var gotToken string
	var gotQuery map[string][]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/search" {
			t.Errorf("path = %s, want /v1/search", r.URL.Path)
		}
		gotToken = r.Header.Get("X-App-Token")
		gotQuery = r.URL.Query()
		json.NewEncoder(w).Encode(SearchPage{
			Items: []SearchItem{{
				ID:               json.Number("123456"),
				CauseNumber:      "757/1234/24",
				Title:            "Постанова",
				AdjudicationDate: "2024-03-01",
				CourtName:        "Верховний Суд",
				CategoryName:     "захист прав споживачів",
			}},
			Total: 1, Page: 1, Pages: 1,
		})
	}))
	defer srv.Close()

	c := NewZakonOnlineClient(srv.URL, "tok-xyz", 0)
	page, err := c.Search(context.Background(), SearchParams{
		Text: "неякісний товар",
		Where: []WherePredicate{
			{Field: "court_type", Op: "=", Value: "supreme"},
			{Field: "adjudication_date", Op: ">=", Value: "2023-01-01"},
		},
		OrderField: "adjudication_date",
		OrderDesc:  true,
		Limit:      10,
		Page:       2,
	})
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	if gotToken != "tok-xyz" {
		t.Errorf("X-App-Token = %q", gotToken)
	}
	if got := gotQuery["meta.search"]; len(got) != 1 || got[0] != "неякісний товар" {
		t.Errorf("meta.search = %v", got)
	}
	if got := gotQuery["where[court_type][op]"]; len(got) != 1 || got[0] != "=" {
		t.Errorf("where op = %v", got)
	}
	if got := gotQuery["where[adjudication_date][value]"]; len(got) != 1 || got[0] != "2023-01-01" {
		t.Errorf("where value = %v", got)
	}
	if got := gotQuery["order[adjudication_date]"]; len(got) != 1 || got[0] != "desc" {
		t.Errorf("order = %v", got)
	}
	if got := gotQuery["page"]; len(got) != 1 || got[0] != "2" {
		t.Errorf("page = %v", got)
	}

	if len(page.Items) != 1 || page.Items[0].CauseNumber != "757/1234/24" {
		t.Errorf("page = %+v", page)
	}
}

func TestNormalize(t *testing.T) {
	page := &SearchPage{Items: []SearchItem{{
		ID:               json.Number("42"),
		CauseNumber:      "910/100/23",
		Title:            "Рішення",
		AdjudicationDate: "2023-06-15",
		CourtName:        "Господарський суд",
		ChamberName:      "КГС",
		JudgmentForm:     "задоволено",
		CategoryName:     "господарські спори",
	}}}

	docs := Normalize(page)
	if len(docs) != 1 {
		t.Fatalf("got %d docs, want 1", len(docs))
	}
	d := docs[0]
	if d.ExternalID != "42" || d.Type != types.DocCourtDecision {
		t.Errorf("identity = %s/%s", d.ExternalID, d.Type)
	}
	if d.CaseNumber != "910/100/23" || d.Chamber != "КГС" || d.Outcome != "задоволено" {
		t.Errorf("normalized doc = %+v", d)
	}
}

func TestGetFullTextRetriesTransientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(FullText{Text: "Повний текст рішення", CaseNumber: "757/1/24"})
	}))
	defer srv.Close()

	c := NewZakonOnlineClient(srv.URL, "tok", 0)
	ft, err := c.GetFullText(context.Background(), "9001")
	if err != nil {
		t.Fatalf("GetFullText: %v", err)
	}
	if ft.Text != "Повний текст рішення" {
		t.Errorf("text = %q", ft.Text)
	}
	if calls.Load() != 3 {
		t.Errorf("calls = %d, want 3", calls.Load())
	}
}

func TestGetFullTextNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewZakonOnlineClient(srv.URL, "tok", 0)
	_, err := c.GetFullText(context.Background(), "missing")
	if types.KindOf(err) != types.KindNotFound {
		t.Errorf("kind = %s, want NOT_FOUND", types.KindOf(err))
	}
}

func TestGetFullTextExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewZakonOnlineClient(srv.URL, "tok", 0)
	_, err := c.GetFullText(context.Background(), "9001")
	if types.KindOf(err) != types.KindUnavailable {
		t.Errorf("kind = %s, want UNAVAILABLE", types.KindOf(err))
	}
	if !types.Retryable(err) {
		t.Error("UNAVAILABLE should be retryable at the caller level")
	}
}

func TestGetFullTextUsesCache(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		json.NewEncoder(w).Encode(FullText{Text: "Текст із реєстру"})
	}))
	defer srv.Close()

	cache, err := NewFetchCache(filepath.Join(t.TempDir(), "cache.db"))
	if err != nil {
		t.Fatalf("NewFetchCache: %v", err)
	}
	defer cache.Close()

	c := NewZakonOnlineClient(srv.URL, "tok", 0, WithFetchCache(cache))
	for i := 0; i < 3; i++ {
		if _, err := c.GetFullText(context.Background(), "777"); err != nil {
			t.Fatalf("GetFullText %d: %v", i, err)
		}
	}
	if calls.Load() != 1 {
		t.Errorf("upstream calls = %d, want 1 (cache)", calls.Load())
	}
}
