package orchestrator

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"regexp"
	"strings"

	"pravnyk/internal/synthesis"
	"pravnyk/internal/types"
)

// parseDocument ingests an uploaded file: decode, extract text, persist
// as an owned document, and return the stored id with parse metadata.
func (o *Orchestrator) parseDocument(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.parseDocument"
	if o.deps.Uploads == nil || o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, op, "upload parsing not configured")
	}

	encoded := argString(args, "content_base64")
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, types.E(types.KindInvalidArgument, op, "content_base64 is not valid base64")
	}

	parsed, err := o.deps.Uploads.Parse(ctx, raw, argString(args, "mime_type"))
	if err != nil {
		return nil, err
	}

	docID, err := o.deps.Meta.UpsertDocument(&types.Document{
		ExternalID: "upload:" + argString(args, "filename"),
		Type:       types.DocUploaded,
		Title:      argString(args, "filename"),
		FullText:   parsed.Text,
		OwnerID:    argString(args, "user_id"),
	})
	if err != nil {
		return nil, err
	}

	return map[string]any{
		"document_id": docID,
		"page_count":  parsed.PageCount,
		"source":      parsed.Source,
		"text_length": len(parsed.Text),
	}, nil
}

// clausePatterns recognizes the clause families worth surfacing from a
// contract: subject, price, liability, term, termination, disputes.
var clausePatterns = map[string]*regexp.Regexp{
	"subject":     regexp.MustCompile(`(?i)предмет\s+договору`),
	"price":       regexp.MustCompile(`(?i)(ціна\s+договору|вартість|порядок\s+розрахунків)`),
	"liability":   regexp.MustCompile(`(?i)(відповідальність\s+сторін|штраф|пеня|неустойка)`),
	"term":        regexp.MustCompile(`(?i)строк\s+дії\s+договору`),
	"termination": regexp.MustCompile(`(?i)(розірвання|припинення)\s+договору`),
	"disputes":    regexp.MustCompile(`(?i)(вирішення\s+спорів|порядок\s+розгляду\s+спорів)`),
}

// extractKeyClauses locates the standard clause families in an uploaded
// document and returns each with its surrounding excerpt.
func (o *Orchestrator) extractKeyClauses(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	text, err := o.loadUploadedText(args)
	if err != nil {
		return nil, err
	}

	type clause struct {
		Kind    string `json:"kind"`
		Excerpt string `json:"excerpt"`
		Offset  int    `json:"offset"`
	}
	var clauses []clause
	for kind, re := range clausePatterns {
		loc := re.FindStringIndex(text)
		if loc == nil {
			continue
		}
		end := loc[0] + 400
		if end > len(text) {
			end = len(text)
		}
		clauses = append(clauses, clause{Kind: kind, Excerpt: head(text[loc[0]:end], 400), Offset: loc[0]})
	}
	// Deterministic order by position in the document.
	for i := 0; i < len(clauses); i++ {
		for j := i + 1; j < len(clauses); j++ {
			if clauses[j].Offset < clauses[i].Offset {
				clauses[i], clauses[j] = clauses[j], clauses[i]
			}
		}
	}
	return map[string]any{"clauses": clauses}, nil
}

// summarizeDocument produces a short summary of an uploaded document,
// via the quick model when available and by leading-text extraction
// otherwise.
func (o *Orchestrator) summarizeDocument(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	text, err := o.loadUploadedText(args)
	if err != nil {
		return nil, err
	}

	if o.deps.LLM != nil {
		strategy := synthesis.StrategyFor(types.BudgetQuick, o.deps.LLMConfig)
		raw, lerr := o.deps.LLM.CompleteJSON(ctx, strategy.Model,
			`Стисло підсумуй юридичний документ українською. Поверни JSON {"summary": "...", "key_points": ["..."]}.`,
			head(text, 12000))
		if lerr == nil {
			var parsed struct {
				Summary   string   `json:"summary"`
				KeyPoints []string `json:"key_points"`
			}
			if json.Unmarshal([]byte(raw), &parsed) == nil && parsed.Summary != "" {
				return parsed, nil
			}
		}
		ec.Warn("model summary unavailable, returning extractive fallback")
	}

	return map[string]any{
		"summary":    head(text, 500),
		"key_points": []string{},
	}, nil
}

// loadUploadedText resolves a document_id argument into its full text.
func (o *Orchestrator) loadUploadedText(args map[string]any) (string, error) {
	const op = "orchestrator.loadUploadedText"
	if o.deps.Meta == nil {
		return "", types.E(types.KindUnavailable, op, "metadata store not configured")
	}
	docID := argString(args, "document_id")
	doc, err := o.deps.Meta.GetDocument(docID)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(doc.FullText) == "" {
		return "", types.E(types.KindPreconditionFailed, op, "document has no extracted text")
	}
	return doc.FullText, nil
}

// DiffChange is one changed run between two document versions.
type DiffChange struct {
	Severity string `json:"severity"` // critical | significant | minor
	Removed  string `json:"removed,omitempty"`
	Added    string `json:"added,omitempty"`
}

// compareDocuments diffs two stored documents word by word and
// classifies each change by lexical rules.
func (o *Orchestrator) compareDocuments(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.compareDocuments"
	if o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, op, "metadata store not configured")
	}

	left, err := o.deps.Meta.GetDocument(argString(args, "left_id"))
	if err != nil {
		return nil, err
	}
	right, err := o.deps.Meta.GetDocument(argString(args, "right_id"))
	if err != nil {
		return nil, err
	}

	changes := wordDiff(left.FullText, right.FullText)
	counts := map[string]int{}
	for _, c := range changes {
		counts[c.Severity]++
	}
	return map[string]any{
		"left_id":  left.ID,
		"right_id": right.ID,
		"changes":  changes,
		"counts":   counts,
	}, nil
}

// wordDiff computes changed runs between two texts using an LCS over
// words, then classifies each run.
func wordDiff(leftText, rightText string) []DiffChange {
	a := strings.Fields(leftText)
	b := strings.Fields(rightText)

	// LCS table over words.
	lcs := make([][]int, len(a)+1)
	for i := range lcs {
		lcs[i] = make([]int, len(b)+1)
	}
	for i := len(a) - 1; i >= 0; i-- {
		for j := len(b) - 1; j >= 0; j-- {
			if a[i] == b[j] {
				lcs[i][j] = lcs[i+1][j+1] + 1
			} else if lcs[i+1][j] >= lcs[i][j+1] {
				lcs[i][j] = lcs[i+1][j]
			} else {
				lcs[i][j] = lcs[i][j+1]
			}
		}
	}

	var changes []DiffChange
	var removed, added []string
	flush := func() {
		if len(removed) == 0 && len(added) == 0 {
			return
		}
		change := DiffChange{
			Removed: strings.Join(removed, " "),
			Added:   strings.Join(added, " "),
		}
		change.Severity = classifyChange(change.Removed + " " + change.Added)
		changes = append(changes, change)
		removed, added = nil, nil
	}

	i, j := 0, 0
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			flush()
			i++
			j++
		case lcs[i+1][j] >= lcs[i][j+1]:
			removed = append(removed, a[i])
			i++
		default:
			added = append(added, b[j])
			j++
		}
	}
	removed = append(removed, a[i:]...)
	added = append(added, b[j:]...)
	flush()

	return changes
}

// Amounts and dates are digit-bearing, so any numeric change counts as
// an amount or date change.
var numericRe = regexp.MustCompile(`\d`)

// classifyChange applies the severity rules: amounts, dates, and
// liability terms are critical; rights and obligations wording over 50
// characters is significant; everything else is minor.
func classifyChange(text string) string {
	lower := strings.ToLower(text)
	switch {
	case numericRe.MatchString(lower),
		strings.Contains(lower, "відповідальн"), strings.Contains(lower, "штраф"),
		strings.Contains(lower, "пеня"), strings.Contains(lower, "неустойк"):
		return "critical"
	case len(text) > 50 && (strings.Contains(lower, "зобов'яз") ||
		strings.Contains(lower, "права") || strings.Contains(lower, "обов'язк")):
		return "significant"
	default:
		return "minor"
	}
}
