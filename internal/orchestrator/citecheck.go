package orchestrator

import (
	"strings"

	"pravnyk/internal/types"
)

// AnswerPack is the strict structure the synthesizer must return. Raw
// model output is parsed into this; missing required fields fail
// validation rather than defaulting silently.
type AnswerPack struct {
	ShortConclusion struct {
		Conclusion      string `json:"conclusion"`
		Conditions      string `json:"conditions,omitempty"`
		RiskOrException string `json:"risk_or_exception,omitempty"`
	} `json:"short_conclusion"`

	LegalFramework struct {
		Norms []Norm `json:"norms"`
	} `json:"legal_framework"`

	SupremeCourtPositions []SupremeCourtPosition `json:"supreme_court_positions"`
	Practice              []PracticeItem         `json:"practice"`

	CriteriaTest             []string `json:"criteria_test"`
	CounterargumentsAndRisks []string `json:"counterarguments_and_risks"`

	Checklist struct {
		Steps    []string `json:"steps"`
		Evidence []string `json:"evidence"`
	} `json:"checklist"`

	Sources []SourceRef `json:"sources"`
}

// Norm cites one legislation provision.
type Norm struct {
	Act        string `json:"act"`
	ArticleRef string `json:"article_ref"`
	Quote      string `json:"quote,omitempty"`
	Comment    string `json:"comment,omitempty"`
}

// SupremeCourtPosition is one SC thesis with its supporting quotes.
type SupremeCourtPosition struct {
	Thesis  string     `json:"thesis"`
	Quotes  []QuoteRef `json:"quotes"`
	Context string     `json:"context,omitempty"`
}

// QuoteRef anchors a quote to a document section.
type QuoteRef struct {
	Quote       string            `json:"quote"`
	SourceDocID string            `json:"source_doc_id"`
	SectionType types.SectionType `json:"section_type,omitempty"`
}

// PracticeItem is one case excerpt in the practice block.
type PracticeItem struct {
	SourceDocID     string            `json:"source_doc_id"`
	SectionType     types.SectionType `json:"section_type,omitempty"`
	Quote           string            `json:"quote"`
	RelevanceReason string            `json:"relevance_reason,omitempty"`
	CaseNumber      string            `json:"case_number,omitempty"`
	Court           string            `json:"court,omitempty"`
	Date            string            `json:"date,omitempty"`
}

// SourceRef is one entry of the final source list.
type SourceRef struct {
	DocumentID  string            `json:"document_id"`
	SectionType types.SectionType `json:"section_type,omitempty"`
	Quote       string            `json:"quote"`
}

// normalizeQuote collapses whitespace and lowers case so that quoting
// differences in spacing or capitalization never fail validation.
func normalizeQuote(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// quoteInEvidence reports whether the normalized quote is a substring of
// the evidence text held for docID.
func quoteInEvidence(evidence map[string]string, docID, quote string) bool {
	text, ok := evidence[docID]
	if !ok {
		return false
	}
	q := normalizeQuote(quote)
	if q == "" {
		return false
	}
	return strings.Contains(normalizeQuote(text), q)
}

// validateCitations enforces the grounding contract on a synthesized
// answer: every quote must be traceable to evidence. Failing quotes are
// stripped with a warning; an answer whose source list empties out is
// rejected with PRECONDITION_FAILED and never downgraded.
func validateCitations(pack *AnswerPack, evidence map[string]string, legislationTexts map[string]string, ec *ExecContext) error {
	const op = "orchestrator.validateCitations"

	// Norm quotes validate against the quoted legislation articles.
	for i := range pack.LegalFramework.Norms {
		norm := &pack.LegalFramework.Norms[i]
		if norm.Quote == "" {
			continue
		}
		text, ok := legislationTexts[norm.ArticleRef]
		if !ok || !strings.Contains(normalizeQuote(text), normalizeQuote(norm.Quote)) {
			ec.Warn("norm quote for %s not found in quoted legislation, stripped", norm.ArticleRef)
			norm.Quote = ""
		}
	}

	// SC position quotes validate per source document.
	for i := range pack.SupremeCourtPositions {
		pos := &pack.SupremeCourtPositions[i]
		kept := pos.Quotes[:0]
		for _, q := range pos.Quotes {
			if quoteInEvidence(evidence, q.SourceDocID, q.Quote) {
				kept = append(kept, q)
			} else {
				ec.Warn("supreme court quote not traceable to document %s, stripped", q.SourceDocID)
			}
		}
		pos.Quotes = kept
	}

	// Practice items without a verifiable quote drop entirely.
	keptPractice := pack.Practice[:0]
	for _, item := range pack.Practice {
		if quoteInEvidence(evidence, item.SourceDocID, item.Quote) {
			keptPractice = append(keptPractice, item)
		} else {
			ec.Warn("practice quote not traceable to document %s, stripped", item.SourceDocID)
		}
	}
	pack.Practice = keptPractice

	keptSources := pack.Sources[:0]
	for _, src := range pack.Sources {
		if quoteInEvidence(evidence, src.DocumentID, src.Quote) {
			keptSources = append(keptSources, src)
		} else {
			ec.Warn("source quote not traceable to document %s, stripped", src.DocumentID)
		}
	}
	pack.Sources = keptSources

	if len(pack.Sources) == 0 {
		return types.E(types.KindPreconditionFailed, op,
			"citation validation removed every source from the answer")
	}
	return nil
}
