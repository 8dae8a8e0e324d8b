// Package types defines the shared domain model for the legal research
// backend: documents, sections, legislation, patterns, and the error
// taxonomy used across the pipeline.
package types

import (
	"encoding/json"
	"time"
)

// =============================================================================
// DOCUMENTS
// =============================================================================

// DocumentType classifies the origin of a document.
type DocumentType string

const (
	DocCourtDecision      DocumentType = "court_decision"
	DocLegislationArticle DocumentType = "legislation_article"
	DocUploaded           DocumentType = "uploaded"
	DocECHR               DocumentType = "echr"
)

// Document is a single unit of the corpus: a court decision, a statute
// article, or an uploaded file. OwnerID == "" means publicly readable.
type Document struct {
	ID              string            `json:"id"`
	ExternalID      string            `json:"external_id"` // zakononline id, act code, or upload id
	Type            DocumentType      `json:"type"`
	Title           string            `json:"title"`
	Date            string            `json:"date"` // ISO date, may be empty
	Court           string            `json:"court"`
	Chamber         string            `json:"chamber"`
	CaseNumber      string            `json:"case_number"`
	DisputeCategory string            `json:"dispute_category"`
	Outcome         string            `json:"outcome"`
	FullText        string            `json:"full_text"`
	FullTextHTML    string            `json:"full_text_html,omitempty"`
	OwnerID         string            `json:"owner_id,omitempty"`
	Metadata        map[string]string `json:"metadata,omitempty"`
	CreatedAt       time.Time         `json:"created_at"`
	UpdatedAt       time.Time         `json:"updated_at"`
}

// Public reports whether the document is visible to every caller.
func (d *Document) Public() bool { return d.OwnerID == "" }

// =============================================================================
// SECTIONS
// =============================================================================

// SectionType tags a contiguous span of a decision. The numeric priority
// (1=FACTS .. 6=AMOUNTS) decides which type wins a contested span.
type SectionType string

const (
	SectionFacts     SectionType = "FACTS"
	SectionClaims    SectionType = "CLAIMS"
	SectionLawRefs   SectionType = "LAW_REFERENCES"
	SectionReasoning SectionType = "COURT_REASONING"
	SectionDecision  SectionType = "DECISION"
	SectionAmounts   SectionType = "AMOUNTS"
)

// SectionPriority returns the contest priority for a section type.
// Lower wins. Unknown types sort last.
func SectionPriority(t SectionType) int {
	switch t {
	case SectionFacts:
		return 1
	case SectionClaims:
		return 2
	case SectionLawRefs:
		return 3
	case SectionReasoning:
		return 4
	case SectionDecision:
		return 5
	case SectionAmounts:
		return 6
	}
	return 7
}

// AllSectionTypes lists section types in priority order.
func AllSectionTypes() []SectionType {
	return []SectionType{
		SectionFacts, SectionClaims, SectionLawRefs,
		SectionReasoning, SectionDecision, SectionAmounts,
	}
}

// Section is a typed span of a document. Invariants: Text equals
// Document.FullText[StartIndex:EndIndex], and the sections of a document
// are pairwise non-overlapping, sorted by StartIndex.
type Section struct {
	ID         int64       `json:"id"`
	DocumentID string      `json:"document_id"`
	Type       SectionType `json:"section_type"`
	Text       string      `json:"text"`
	StartIndex int         `json:"start_index"`
	EndIndex   int         `json:"end_index"`
	Confidence float64     `json:"confidence"`
}

// =============================================================================
// VECTOR PAYLOAD
// =============================================================================

// ChunkPayload is the denormalized snapshot stored alongside every vector.
// Authoritative values live in the metadata store; the payload is refreshed
// on re-ingest.
type ChunkPayload struct {
	DocID           string       `json:"doc_id"`
	SectionType     SectionType  `json:"section_type"`
	DocumentType    DocumentType `json:"document_type"`
	Text            string       `json:"text"`
	Date            string       `json:"date,omitempty"`
	Court           string       `json:"court,omitempty"`
	Chamber         string       `json:"chamber,omitempty"`
	CaseNumber      string       `json:"case_number,omitempty"`
	DisputeCategory string       `json:"dispute_category,omitempty"`
	Outcome         string       `json:"outcome,omitempty"`
	DeviationFlag   bool         `json:"deviation_flag,omitempty"`
	PrecedentStatus string       `json:"precedent_status,omitempty"`
	LawArticles     []string     `json:"law_articles,omitempty"`
	MatterID        string       `json:"matter_id,omitempty"`
}

// VectorHit is one result of a filtered ANN search.
type VectorHit struct {
	VectorID string       `json:"vector_id"`
	Score    float64      `json:"score"`
	Payload  ChunkPayload `json:"payload"`
}

// =============================================================================
// LEGISLATION
// =============================================================================

// ActType classifies a legislation act.
type ActType string

const (
	ActCode       ActType = "code"
	ActLaw        ActType = "law"
	ActRegulation ActType = "regulation"
)

// LegislationAct is a statute identified by its external code (e.g. "1618-15").
type LegislationAct struct {
	Code          string    `json:"code"`
	Type          ActType   `json:"type"`
	Title         string    `json:"title"`
	ShortTitle    string    `json:"short_title"`
	URL           string    `json:"url"`
	AdoptionDate  string    `json:"adoption_date,omitempty"`
	EffectiveDate string    `json:"effective_date,omitempty"`
	AmendedDate   string    `json:"amended_date,omitempty"`
	Status        string    `json:"status"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// LegislationArticle is one numbered provision of an act. Exactly one
// version per (act, article_number) has IsCurrent == true.
type LegislationArticle struct {
	ID            int64  `json:"id"`
	ActCode       string `json:"act_code"`
	ArticleNumber string `json:"article_number"`
	VersionDate   string `json:"version_date"`
	SectionNumber string `json:"section_number,omitempty"`
	ChapterNumber string `json:"chapter_number,omitempty"`
	PartNumber    string `json:"part_number,omitempty"`
	Paragraph     string `json:"paragraph,omitempty"`
	Title         string `json:"title"`
	Text          string `json:"text"`
	HTML          string `json:"html,omitempty"`
	ByteSize      int    `json:"byte_size"`
	IsCurrent     bool   `json:"is_current"`
}

// ArticleReference is a resolved free-form citation like "ст. 625 ЦК".
type ArticleReference struct {
	ActID         string `json:"act_id"`
	ArticleNumber string `json:"article_number"`
}

// =============================================================================
// CITATIONS AND PRECEDENT STATUS
// =============================================================================

// CitationLink is a directed case-to-case citation edge.
// Unique on (FromDocID, ToDocID, Type).
type CitationLink struct {
	FromDocID   string      `json:"from_doc_id"`
	ToDocID     string      `json:"to_doc_id"`
	Type        string      `json:"citation_type"`
	Context     string      `json:"context,omitempty"`
	SectionType SectionType `json:"section_type,omitempty"`
	Confidence  float64     `json:"confidence"`
}

// PrecedentState enumerates the standing of a decision as precedent.
type PrecedentState string

const (
	PrecedentActive        PrecedentState = "active"
	PrecedentReversed      PrecedentState = "reversed"
	PrecedentOverruled     PrecedentState = "overruled"
	PrecedentDistinguished PrecedentState = "distinguished"
)

// PrecedentStatus tracks whether a decision is still good law.
type PrecedentStatus struct {
	DocumentID      string         `json:"document_id"`
	Status          PrecedentState `json:"status"`
	ReversedBy      []string       `json:"reversed_by,omitempty"`
	OverruledBy     []string       `json:"overruled_by,omitempty"`
	DistinguishedIn []string       `json:"distinguished_in,omitempty"`
	LastChecked     time.Time      `json:"last_checked"`
}

// =============================================================================
// LEGAL PATTERNS
// =============================================================================

// PatternOutcome is the majority decision outcome across a pattern's cases.
type PatternOutcome string

const (
	OutcomeConsumerWon PatternOutcome = "consumer_won"
	OutcomeSellerWon   PatternOutcome = "seller_won"
	OutcomePartial     PatternOutcome = "partial"
	OutcomeRejected    PatternOutcome = "rejected"
)

// LegalPattern is an aggregated reasoning fingerprint extracted from
// three or more cases sharing an intent.
type LegalPattern struct {
	ID               int64          `json:"id"`
	Intent           string         `json:"intent"`
	LawArticles      []string       `json:"law_articles"`
	Centroid         []float32      `json:"centroid,omitempty"`
	DecisionOutcome  PatternOutcome `json:"decision_outcome"`
	Frequency        int            `json:"frequency"`
	Confidence       float64        `json:"confidence"`
	ExampleCases     []string       `json:"example_cases"`
	RiskFactors      []string       `json:"risk_factors,omitempty"`
	SuccessArguments []string       `json:"success_arguments,omitempty"`
	AntiPatterns     []string       `json:"anti_patterns,omitempty"`
	UpdatedAt        time.Time      `json:"updated_at"`
}

// TieredConfidence maps a case count onto the fixed confidence ladder:
// <5 -> 0.3, <10 -> 0.5, <20 -> 0.7, >=20 -> 0.9.
func TieredConfidence(frequency int) float64 {
	switch {
	case frequency < 5:
		return 0.3
	case frequency < 10:
		return 0.5
	case frequency < 20:
		return 0.7
	default:
		return 0.9
	}
}

// =============================================================================
// EVENTS
// =============================================================================

// Event is one row of the append-only ingestion/orchestration audit trail.
type Event struct {
	ID        int64           `json:"id"`
	Type      string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
}

// =============================================================================
// QUERY BUDGETS
// =============================================================================

// Budget is the coarse quality/cost dial for model selection and
// expansion depth.
type Budget string

const (
	BudgetQuick    Budget = "quick"
	BudgetStandard Budget = "standard"
	BudgetDeep     Budget = "deep"
)

// ParseBudget normalizes a budget string, defaulting to standard.
func ParseBudget(s string) Budget {
	switch Budget(s) {
	case BudgetQuick, BudgetStandard, BudgetDeep:
		return Budget(s)
	}
	return BudgetStandard
}
