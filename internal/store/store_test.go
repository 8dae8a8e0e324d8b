package store

import (
	"testing"

	"pravnyk/internal/types"
)

func newTestStore(t *testing.T) *MetadataStore {
	t.Helper()
	s, err := NewMetadataStore(":memory:")
	if err != nil {
		t.Fatalf("NewMetadataStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertDocumentMergeSemantics(t *testing.T) {
	s := newTestStore(t)

	id1, err := s.UpsertDocument(&types.Document{
		ExternalID: "98765432",
		Type:       types.DocCourtDecision,
		Title:      "Постанова ВС",
		CaseNumber: "757/1234/24",
		FullText:   "Повний текст рішення суду у справі про захист прав споживачів.",
	})
	if err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	// Second upsert without full_text must not erase it.
	id2, err := s.UpsertDocument(&types.Document{
		ExternalID: "98765432",
		Type:       types.DocCourtDecision,
		Court:      "Верховний Суд",
	})
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if id1 != id2 {
		t.Fatalf("upsert created a second row: %s != %s", id1, id2)
	}

	doc, err := s.GetDocumentByExternalID("98765432")
	if err != nil {
		t.Fatalf("GetDocumentByExternalID: %v", err)
	}
	if doc.FullText == "" {
		t.Error("full_text was erased by a later upsert without one")
	}
	if doc.Court != "Верховний Суд" {
		t.Errorf("court = %q, want updated value", doc.Court)
	}
	if doc.Title != "Постанова ВС" {
		t.Errorf("title = %q, want preserved value", doc.Title)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.GetDocument("no-such-id")
	if types.KindOf(err) != types.KindNotFound {
		t.Errorf("kind = %s, want NOT_FOUND", types.KindOf(err))
	}
}

func TestReplaceSectionsEnforcesInvariants(t *testing.T) {
	s := newTestStore(t)
	fullText := "Суд встановив обставини справи. Позивач просить стягнути кошти. Суд ухвалив задовольнити позов."
	docID, err := s.UpsertDocument(&types.Document{
		ExternalID: "doc-1",
		Type:       types.DocCourtDecision,
		FullText:   fullText,
	})
	if err != nil {
		t.Fatalf("UpsertDocument: %v", err)
	}

	good := []types.Section{
		{Type: types.SectionFacts, Text: fullText[0:58], StartIndex: 0, EndIndex: 58, Confidence: 0.8},
		{Type: types.SectionDecision, Text: fullText[58:], StartIndex: 58, EndIndex: len(fullText), Confidence: 0.7},
	}
	if err := s.ReplaceSections(docID, good); err != nil {
		t.Fatalf("ReplaceSections: %v", err)
	}

	secs, err := s.GetSections(docID)
	if err != nil {
		t.Fatalf("GetSections: %v", err)
	}
	if len(secs) != 2 {
		t.Fatalf("got %d sections, want 2", len(secs))
	}
	if secs[0].StartIndex > secs[1].StartIndex {
		t.Error("sections not ordered by start_index")
	}

	// Text mismatch with stored full text.
	bad := []types.Section{
		{Type: types.SectionFacts, Text: "інший текст", StartIndex: 0, EndIndex: 11, Confidence: 0.8},
	}
	if err := s.ReplaceSections(docID, bad); types.KindOf(err) != types.KindInvariantViolated {
		t.Errorf("mismatched text kind = %s, want INVARIANT_VIOLATED", types.KindOf(err))
	}

	// Overlapping spans.
	overlapping := []types.Section{
		{Type: types.SectionFacts, Text: fullText[0:58], StartIndex: 0, EndIndex: 58, Confidence: 0.8},
		{Type: types.SectionClaims, Text: fullText[30:70], StartIndex: 30, EndIndex: 70, Confidence: 0.8},
	}
	if err := s.ReplaceSections(docID, overlapping); types.KindOf(err) != types.KindInvariantViolated {
		t.Errorf("overlap kind = %s, want INVARIANT_VIOLATED", types.KindOf(err))
	}

	// A failed replace must leave the previous sections intact.
	secs, _ = s.GetSections(docID)
	if len(secs) != 2 {
		t.Errorf("failed replace clobbered sections, got %d want 2", len(secs))
	}
}

func TestGetSectionsFilteredByType(t *testing.T) {
	s := newTestStore(t)
	fullText := "Встановлено факти. Суд вважає так. Ухвалив рішення."
	docID, _ := s.UpsertDocument(&types.Document{
		ExternalID: "doc-2", Type: types.DocCourtDecision, FullText: fullText,
	})
	sections := []types.Section{
		{Type: types.SectionFacts, Text: fullText[0:33], StartIndex: 0, EndIndex: 33, Confidence: 0.8},
		{Type: types.SectionReasoning, Text: fullText[33:62], StartIndex: 33, EndIndex: 62, Confidence: 0.8},
		{Type: types.SectionDecision, Text: fullText[62:], StartIndex: 62, EndIndex: len(fullText), Confidence: 0.8},
	}
	if err := s.ReplaceSections(docID, sections); err != nil {
		t.Fatalf("ReplaceSections: %v", err)
	}

	got, err := s.GetSections(docID, types.SectionReasoning, types.SectionDecision)
	if err != nil {
		t.Fatalf("GetSections: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d filtered sections, want 2", len(got))
	}
	for _, sec := range got {
		if sec.Type == types.SectionFacts {
			t.Error("filter returned excluded type FACTS")
		}
	}
}

func TestOwnerVisibilityPredicate(t *testing.T) {
	s := newTestStore(t)
	s.UpsertDocument(&types.Document{ExternalID: "pub-1", Type: types.DocCourtDecision, Title: "public"})
	s.UpsertDocument(&types.Document{ExternalID: "own-1", Type: types.DocUploaded, Title: "private", OwnerID: "user-a"})

	// Anonymous caller sees only public rows.
	docs, err := s.ListDocuments(DocumentFilter{})
	if err != nil {
		t.Fatalf("ListDocuments: %v", err)
	}
	if len(docs) != 1 || docs[0].Title != "public" {
		t.Errorf("anonymous listing = %d docs, want only the public one", len(docs))
	}

	// The owner sees both.
	docs, _ = s.ListDocuments(DocumentFilter{OwnerID: "user-a"})
	if len(docs) != 2 {
		t.Errorf("owner listing = %d docs, want 2", len(docs))
	}

	// A different user sees only public.
	docs, _ = s.ListDocuments(DocumentFilter{OwnerID: "user-b"})
	if len(docs) != 1 {
		t.Errorf("other-user listing = %d docs, want 1", len(docs))
	}
}

func TestFullTextSearch(t *testing.T) {
	s := newTestStore(t)
	s.UpsertDocument(&types.Document{
		ExternalID: "fts-1", Type: types.DocCourtDecision,
		Title:    "Про захист прав споживачів",
		FullText: "Суд розглянув справу про неякісний товар та захист прав споживачів.",
	})
	s.UpsertDocument(&types.Document{
		ExternalID: "fts-2", Type: types.DocCourtDecision,
		Title:    "Про стягнення аліментів",
		FullText: "Суд розглянув справу про стягнення аліментів на утримання дитини.",
	})

	docs, err := s.SearchDocuments("споживачів", "", 10)
	if err != nil {
		t.Fatalf("SearchDocuments: %v", err)
	}
	if len(docs) != 1 {
		t.Fatalf("got %d hits, want 1", len(docs))
	}
	if docs[0].ExternalID != "fts-1" {
		t.Errorf("hit = %s, want fts-1", docs[0].ExternalID)
	}

	if _, err := s.SearchDocuments("  ", "", 10); types.KindOf(err) != types.KindInvalidArgument {
		t.Errorf("empty query kind = %s, want INVALID_ARGUMENT", types.KindOf(err))
	}
}

func TestLegislationCurrentVersionInvariant(t *testing.T) {
	s := newTestStore(t)
	if err := s.UpsertAct(&types.LegislationAct{
		Code: "435-15", Type: types.ActCode, Title: "Цивільний кодекс України",
	}); err != nil {
		t.Fatalf("UpsertAct: %v", err)
	}

	_, err := s.SaveArticles("435-15", []types.LegislationArticle{
		{ArticleNumber: "625", VersionDate: "2023-01-01", Title: "Стаття 625", Text: "Боржник не звільняється від відповідальності."},
	})
	if err != nil {
		t.Fatalf("SaveArticles v1: %v", err)
	}
	_, err = s.SaveArticles("435-15", []types.LegislationArticle{
		{ArticleNumber: "625", VersionDate: "2024-06-01", Title: "Стаття 625", Text: "Боржник не звільняється від відповідальності. Доповнено."},
	})
	if err != nil {
		t.Fatalf("SaveArticles v2: %v", err)
	}

	// Exactly one current version.
	var current int
	s.db.QueryRow(`SELECT COUNT(*) FROM legislation_articles
		WHERE act_code='435-15' AND article_number='625' AND is_current=1`).Scan(&current)
	if current != 1 {
		t.Fatalf("current versions = %d, want exactly 1", current)
	}

	a, err := s.GetArticle("435-15", "625")
	if err != nil {
		t.Fatalf("GetArticle: %v", err)
	}
	if a.VersionDate != "2024-06-01" {
		t.Errorf("current version = %s, want 2024-06-01", a.VersionDate)
	}

	// Older version retained.
	var total int
	s.db.QueryRow(`SELECT COUNT(*) FROM legislation_articles
		WHERE act_code='435-15' AND article_number='625'`).Scan(&total)
	if total != 2 {
		t.Errorf("retained versions = %d, want 2", total)
	}
}

func TestPatternConfidenceFollowsFrequency(t *testing.T) {
	s := newTestStore(t)

	p := &types.LegalPattern{
		Intent:          "consumer_protection",
		LawArticles:     []string{"ст. 15"},
		DecisionOutcome: types.OutcomeConsumerWon,
		Frequency:       12,
		Confidence:      0.99, // deliberately wrong; the store recomputes
		ExampleCases:    []string{"a", "b", "c"},
	}
	id, err := s.UpsertPattern(p)
	if err != nil {
		t.Fatalf("UpsertPattern: %v", err)
	}

	stored, err := s.GetPattern(id)
	if err != nil {
		t.Fatalf("GetPattern: %v", err)
	}
	if stored.Confidence != 0.7 {
		t.Errorf("confidence = %v, want 0.7 for frequency 12", stored.Confidence)
	}
	if len(stored.LawArticles) != 1 || stored.LawArticles[0] != "ст. 15" {
		t.Errorf("law_articles = %v", stored.LawArticles)
	}
}

func TestCitationUniqueTriple(t *testing.T) {
	s := newTestStore(t)
	link := &types.CitationLink{FromDocID: "a", ToDocID: "b", Type: "cites", Confidence: 0.5}
	if err := s.AddCitation(link); err != nil {
		t.Fatalf("AddCitation: %v", err)
	}
	link.Confidence = 0.9
	if err := s.AddCitation(link); err != nil {
		t.Fatalf("AddCitation repeat: %v", err)
	}

	links, err := s.CitationsFrom("a")
	if err != nil {
		t.Fatalf("CitationsFrom: %v", err)
	}
	if len(links) != 1 {
		t.Fatalf("got %d links, want 1 (unique triple)", len(links))
	}
	if links[0].Confidence != 0.9 {
		t.Errorf("confidence = %v, want refreshed 0.9", links[0].Confidence)
	}
}

func TestPrecedentStatusDefaultsActive(t *testing.T) {
	s := newTestStore(t)
	ps, err := s.GetPrecedentStatus("never-analyzed")
	if err != nil {
		t.Fatalf("GetPrecedentStatus: %v", err)
	}
	if ps.Status != types.PrecedentActive {
		t.Errorf("status = %s, want active", ps.Status)
	}

	if err := s.SetPrecedentStatus(&types.PrecedentStatus{
		DocumentID: "doc-x", Status: types.PrecedentReversed, ReversedBy: []string{"doc-y"},
	}); err != nil {
		t.Fatalf("SetPrecedentStatus: %v", err)
	}
	ps, _ = s.GetPrecedentStatus("doc-x")
	if ps.Status != types.PrecedentReversed || len(ps.ReversedBy) != 1 {
		t.Errorf("stored status = %+v", ps)
	}
}

func TestEventsAppendOnly(t *testing.T) {
	s := newTestStore(t)
	s.AppendEvent("ingest.completed", map[string]any{"doc": "1"})
	s.AppendEvent("ingest.failed", map[string]any{"doc": "2"})

	events, err := s.RecentEvents("", 10)
	if err != nil {
		t.Fatalf("RecentEvents: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events, want 2", len(events))
	}
	// Newest first.
	if events[0].Type != "ingest.failed" {
		t.Errorf("first event = %s, want ingest.failed", events[0].Type)
	}

	only, _ := s.RecentEvents("ingest.completed", 10)
	if len(only) != 1 {
		t.Errorf("filtered events = %d, want 1", len(only))
	}
}
