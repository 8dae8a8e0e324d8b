package orchestrator

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"pravnyk/internal/store"
	"pravnyk/internal/synthesis"
	"pravnyk/internal/types"
)

// supremeCourtName is the court filter for the SC practice subset.
const supremeCourtName = "Верховний Суд"

// ProContraResult holds balanced samples of both lines of practice.
type ProContraResult struct {
	Query  string            `json:"query"`
	Pro    []types.VectorHit `json:"pro"`
	Contra []types.VectorHit `json:"contra"`
}

// comparePracticeProContra issues two parallel searches over the Supreme
// Court subset: one biased toward satisfaction, one toward refusal.
func (o *Orchestrator) comparePracticeProContra(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.comparePracticeProContra"
	query := argString(args, "query")
	if strings.TrimSpace(query) == "" {
		return nil, types.E(types.KindInvalidArgument, op, "query must not be empty")
	}
	limit := argInt(args, "limit", 5)

	result := &ProContraResult{Query: query}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		hits, err := o.searchSupremeCourt(gctx, "задоволено "+query, limit)
		if err != nil {
			ec.Warn("affirmative search failed: %v", err)
			return nil
		}
		mu.Lock()
		result.Pro = hits
		mu.Unlock()
		return nil
	})
	g.Go(func() error {
		hits, err := o.searchSupremeCourt(gctx, "відмовлено "+query, limit)
		if err != nil {
			ec.Warn("negative search failed: %v", err)
			return nil
		}
		mu.Lock()
		result.Contra = hits
		mu.Unlock()
		return nil
	})
	g.Wait()

	return result, nil
}

// searchSupremeCourt runs a vector search filtered to the SC subset,
// falling back to keyword search when vectors are unavailable.
func (o *Orchestrator) searchSupremeCourt(ctx context.Context, query string, limit int) ([]types.VectorHit, error) {
	if o.deps.Vectors != nil && o.deps.Embedder != nil {
		vec, err := o.embedQuery(ctx, query)
		if err == nil {
			hits, serr := o.deps.Vectors.Search(vec, store.VectorFilter{
				DocumentType: types.DocCourtDecision,
				Court:        supremeCourtName,
			}, limit)
			if serr == nil {
				return hits, nil
			}
		}
	}
	if o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, "orchestrator.searchSupremeCourt", "no retrieval backend configured")
	}
	docs, err := o.deps.Meta.SearchDocuments(query, "", limit)
	if err != nil {
		return nil, err
	}
	hits := make([]types.VectorHit, 0, len(docs))
	for _, doc := range docs {
		hits = append(hits, types.VectorHit{
			Score: 0.4,
			Payload: types.ChunkPayload{
				DocID: doc.ID, DocumentType: doc.Type, SectionType: types.SectionReasoning,
				Text: head(doc.FullText, 600), CaseNumber: doc.CaseNumber, Court: doc.Court, Date: doc.Date,
			},
		})
	}
	return hits, nil
}

// searchSupremeCourtPractice is the plain SC-subset search tool.
func (o *Orchestrator) searchSupremeCourtPractice(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.searchSupremeCourtPractice"
	query := argString(args, "query")
	if strings.TrimSpace(query) == "" {
		return nil, types.E(types.KindInvalidArgument, op, "query must not be empty")
	}
	return o.searchSupremeCourt(ctx, query, argInt(args, "limit", o.deps.Query.SearchLimit))
}

// findSimilarFactPatternCases first distills search keywords from the
// free-text fact pattern, then runs a combined keyword and vector search.
func (o *Orchestrator) findSimilarFactPatternCases(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.findSimilarFactPatternCases"
	facts := argString(args, "facts")
	if strings.TrimSpace(facts) == "" {
		return nil, types.E(types.KindInvalidArgument, op, "facts must not be empty")
	}
	limit := argInt(args, "limit", o.deps.Query.SearchLimit)

	keywords := o.distillKeywords(ctx, ec, facts)
	query := strings.Join(keywords, " ")

	var collected []types.VectorHit
	if o.deps.Vectors != nil && o.deps.Embedder != nil {
		if vec, err := o.embedQuery(ctx, facts); err == nil {
			if hits, serr := o.deps.Vectors.Search(vec, store.VectorFilter{
				DocumentType: types.DocCourtDecision,
				SectionTypes: []types.SectionType{types.SectionFacts, types.SectionReasoning},
			}, limit); serr == nil {
				collected = append(collected, hits...)
			} else {
				ec.Warn("vector search failed: %v", serr)
			}
		} else {
			ec.Warn("fact embedding failed: %v", err)
		}
	}
	if o.deps.Meta != nil && query != "" {
		docs, err := o.deps.Meta.SearchDocuments(query, "", limit)
		if err != nil {
			ec.Warn("keyword search failed: %v", err)
		} else {
			for _, doc := range docs {
				collected = append(collected, types.VectorHit{
					Score: 0.4,
					Payload: types.ChunkPayload{
						DocID: doc.ID, DocumentType: doc.Type, SectionType: types.SectionFacts,
						Text: head(doc.FullText, 600), CaseNumber: doc.CaseNumber, Court: doc.Court, Date: doc.Date,
					},
				})
			}
		}
	}

	return map[string]any{
		"keywords": keywords,
		"cases":    dedupeByDocument(collected),
	}, nil
}

// distillKeywords asks the quick model for search keywords, falling back
// to picking the longest distinct words of the fact pattern.
func (o *Orchestrator) distillKeywords(ctx context.Context, ec *ExecContext, facts string) []string {
	if o.deps.LLM != nil {
		strategy := synthesis.StrategyFor(types.BudgetQuick, o.deps.LLMConfig)
		raw, err := o.deps.LLM.CompleteJSON(ctx, strategy.Model,
			`Виділи з опису обставин справи 3-7 пошукових ключових слів. Поверни JSON {"keywords": ["..."]}.`,
			facts)
		if err == nil {
			var parsed struct {
				Keywords []string `json:"keywords"`
			}
			if json.Unmarshal([]byte(raw), &parsed) == nil && len(parsed.Keywords) > 0 {
				return parsed.Keywords
			}
		} else {
			ec.Warn("keyword distillation unavailable: %v", err)
		}
	}

	words := strings.Fields(facts)
	sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
	seen := map[string]bool{}
	var keywords []string
	for _, w := range words {
		w = strings.Trim(strings.ToLower(w), ".,;:()\"'")
		if len(w) < 6 || seen[w] {
			continue
		}
		seen[w] = true
		keywords = append(keywords, w)
		if len(keywords) == 5 {
			break
		}
	}
	return keywords
}

// procedureActs maps procedure codes to their register act ids.
var procedureActs = map[string]string{
	"cpc":        "1618-15",
	"commercial": "1798-12",
	"admin":      "2747-15",
	"criminal":   "4651-17",
}

// searchProceduralNorms searches the procedure code of the given branch.
func (o *Orchestrator) searchProceduralNorms(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.searchProceduralNorms"
	query := argString(args, "query")
	if strings.TrimSpace(query) == "" {
		return nil, types.E(types.KindInvalidArgument, op, "query must not be empty")
	}
	if o.deps.Legislation == nil {
		return nil, types.E(types.KindUnavailable, op, "legislation service not configured")
	}

	procedureCode := argString(args, "procedure_code")
	actID := procedureActs[procedureCode]
	if procedureCode != "" && actID == "" {
		return nil, types.E(types.KindInvalidArgument, op, "unknown procedure_code: "+procedureCode)
	}
	return o.deps.Legislation.Search(ctx, query, actID, argInt(args, "limit", o.deps.Query.SearchLimit))
}

// checklistTable holds static procedural checklists per intent.
var checklistTable = map[string][]string{
	"appeal": {
		"Перевірити строк на апеляційне оскарження та за потреби підготувати клопотання про його поновлення.",
		"Скласти апеляційну скаргу з посиланням на порушені норми права.",
		"Сплатити судовий збір та додати квитанцію.",
		"Надіслати копії скарги іншим учасникам справи.",
		"Подати скаргу через суд апеляційної інстанції.",
	},
	"monetary_claim": {
		"Зафіксувати суму основного боргу та період прострочення.",
		"Нарахувати 3% річних та інфляційні втрати за ст. 625 ЦК.",
		"Надіслати боржнику письмову вимогу.",
		"Підготувати позовну заяву з розрахунком заборгованості.",
		"Сплатити судовий збір пропорційно ціні позову.",
	},
	"consumer_protection": {
		"Зібрати докази придбання товару (чек, договір, гарантійний талон).",
		"Зафіксувати недоліки товару (акт, фото, висновок експерта).",
		"Надіслати продавцю письмову претензію.",
		"У разі відмови підготувати позов; споживачі звільнені від судового збору.",
	},
}

// buildProceduralChecklist returns the step list for an intent.
func (o *Orchestrator) buildProceduralChecklist(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.buildProceduralChecklist"
	intent := argString(args, "intent")
	steps, ok := checklistTable[intent]
	if !ok {
		return nil, types.E(types.KindNotFound, op, "no checklist for intent: "+intent)
	}
	return map[string]any{"intent": intent, "steps": steps}, nil
}

// MonetaryClaimResult is the structured damages calculation.
type MonetaryClaimResult struct {
	Principal      float64 `json:"principal"`
	DaysOverdue    int     `json:"days_overdue"`
	AnnualInterest float64 `json:"annual_interest_3pct"`
	Penalty        float64 `json:"penalty,omitempty"`
	Total          float64 `json:"total"`
	Norm           string  `json:"norm"`
}

// calculateMonetaryClaims computes the statutory 3% annual interest for
// a money debt, plus an optional contractual penalty rate.
func (o *Orchestrator) calculateMonetaryClaims(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.calculateMonetaryClaims"

	principal, ok := args["principal"].(float64)
	if !ok || principal <= 0 {
		return nil, types.E(types.KindInvalidArgument, op, "principal must be a positive number")
	}
	from, err := time.Parse(dateLayout, argString(args, "date_from"))
	if err != nil {
		return nil, types.E(types.KindInvalidArgument, op, "date_from must be YYYY-MM-DD")
	}
	to, err := time.Parse(dateLayout, argString(args, "date_to"))
	if err != nil {
		return nil, types.E(types.KindInvalidArgument, op, "date_to must be YYYY-MM-DD")
	}
	if to.Before(from) {
		return nil, types.E(types.KindInvalidArgument, op, "date_to precedes date_from")
	}

	days := int(to.Sub(from).Hours() / 24)
	interest := principal * 0.03 * float64(days) / 365

	result := &MonetaryClaimResult{
		Principal:      round2(principal),
		DaysOverdue:    days,
		AnnualInterest: round2(interest),
		Norm:           "ст. 625 ЦК України",
	}
	if rate, ok := args["penalty_rate"].(float64); ok && rate > 0 {
		result.Penalty = round2(principal * rate / 100 * float64(days) / 365)
	}
	result.Total = round2(result.Principal + result.AnnualInterest + result.Penalty)
	return result, nil
}

func round2(v float64) float64 {
	return float64(int64(v*100+0.5)) / 100
}

// practiceStatistics aggregates outcomes over a filtered document set.
func (o *Orchestrator) practiceStatistics(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.practiceStatistics"
	if o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, op, "metadata store not configured")
	}

	docs, err := o.deps.Meta.ListDocuments(store.DocumentFilter{
		Type:            types.DocCourtDecision,
		Court:           argString(args, "court"),
		DisputeCategory: argString(args, "dispute_category"),
		DateFrom:        argString(args, "date_from"),
		DateTo:          argString(args, "date_to"),
		Limit:           1000,
	})
	if err != nil {
		return nil, err
	}

	outcomes := map[string]int{}
	for _, doc := range docs {
		outcome := doc.Outcome
		if outcome == "" {
			outcome = "unknown"
		}
		outcomes[outcome]++
	}
	return map[string]any{
		"total":    len(docs),
		"outcomes": outcomes,
	}, nil
}
