package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"pravnyk/internal/legislation"
	"pravnyk/internal/logging"
	"pravnyk/internal/store"
	"pravnyk/internal/synthesis"
	"pravnyk/internal/types"
)

// AdviceResult is the packaged output of get_legal_advice: the classified
// intent, the raw evidence, and the validated structured answer.
type AdviceResult struct {
	Intent          string            `json:"intent"`
	PrecedentChunks []types.VectorHit `json:"precedent_chunks"`
	PackagedAnswer  *AnswerPack       `json:"packaged_answer"`
}

const adviceSystemPrompt = `Ти юридичний асистент з українського права. На основі наданих витягів
із судових рішень та норм законодавства сформуй відповідь СУВОРО у форматі JSON:
{
  "short_conclusion": {"conclusion": "...", "conditions": "...", "risk_or_exception": "..."},
  "legal_framework": {"norms": [{"act": "...", "article_ref": "...", "quote": "...", "comment": "..."}]},
  "supreme_court_positions": [{"thesis": "...", "quotes": [{"quote": "...", "source_doc_id": "...", "section_type": "..."}], "context": "..."}],
  "practice": [{"source_doc_id": "...", "section_type": "...", "quote": "...", "relevance_reason": "...", "case_number": "...", "court": "...", "date": "..."}],
  "criteria_test": ["..."],
  "counterarguments_and_risks": ["..."],
  "checklist": {"steps": ["..."], "evidence": ["..."]},
  "sources": [{"document_id": "...", "section_type": "...", "quote": "..."}]
}
Цитуй ЛИШЕ дослівні фрагменти з наданих витягів. Кожна цитата має вказувати source_doc_id витягу, з якого її взято.`

// getLegalAdvice is the canonical end-to-end path: classify, plan
// retrieval, collect evidence in parallel, expand the top cases,
// synthesize, validate citations, and package.
func (o *Orchestrator) getLegalAdvice(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.getLegalAdvice"
	query := argString(args, "query")
	if strings.TrimSpace(query) == "" {
		return nil, types.E(types.KindInvalidArgument, op, "query must not be empty")
	}

	plan, err := o.classifyIntent(ctx, query)
	if err != nil {
		return nil, err
	}
	if budget := argString(args, "budget"); budget != "" {
		plan.ReasoningBudget = types.ParseBudget(budget)
	}
	logging.Orchestrator("advice query classified as %s (budget %s)", plan.Intent, plan.ReasoningBudget)

	hits, legTexts := o.collectEvidence(ctx, ec, query, plan)
	if len(hits) == 0 && len(legTexts) == 0 {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, types.E(types.KindNotFound, op, "no evidence found for the query")
	}

	evidence := o.expandEvidence(ctx, ec, hits)

	pack, err := o.synthesizeAnswer(ctx, query, plan, hits, evidence, legTexts)
	if err != nil {
		return nil, err
	}
	if err := validateCitations(pack, evidence, legTexts, ec); err != nil {
		return nil, err
	}

	return &AdviceResult{
		Intent:          plan.Intent,
		PrecedentChunks: hits,
		PackagedAnswer:  pack,
	}, nil
}

// collectEvidence runs the retrieval plan: vector search, keyword search,
// and legislation lookup in parallel. Per-source failures degrade to
// warnings; results are deduplicated by document id with the
// highest-score occurrence winning.
func (o *Orchestrator) collectEvidence(ctx context.Context, ec *ExecContext, query string, plan *IntentPlan) ([]types.VectorHit, map[string]string) {
	var mu sync.Mutex
	var collected []types.VectorHit
	legTexts := map[string]string{}

	g, gctx := errgroup.WithContext(ctx)

	// Semantic search over precedent chunks.
	if o.deps.Vectors != nil && o.deps.Embedder != nil {
		g.Go(func() error {
			vec, err := o.embedQuery(gctx, query)
			if err != nil {
				ec.Warn("vector retrieval unavailable: %v", err)
				return nil
			}
			hits, err := o.deps.Vectors.Search(vec, vectorFilterFor(plan), o.deps.Query.SearchLimit)
			if err != nil {
				ec.Warn("vector retrieval failed: %v", err)
				return nil
			}
			mu.Lock()
			collected = append(collected, hits...)
			mu.Unlock()
			return nil
		})
	}

	// Keyword search over the metadata store.
	if o.deps.Meta != nil {
		g.Go(func() error {
			docs, err := o.deps.Meta.SearchDocuments(query, "", o.deps.Query.SearchLimit)
			if err != nil {
				ec.Warn("keyword retrieval failed: %v", err)
				return nil
			}
			mu.Lock()
			for _, doc := range docs {
				collected = append(collected, types.VectorHit{
					Score: 0.4, // keyword matches rank below semantic hits
					Payload: types.ChunkPayload{
						DocID:        doc.ID,
						DocumentType: doc.Type,
						SectionType:  types.SectionReasoning,
						Text:         head(doc.FullText, 600),
						CaseNumber:   doc.CaseNumber,
						Court:        doc.Court,
						Date:         doc.Date,
					},
				})
			}
			mu.Unlock()
			return nil
		})
	}

	// Legislation: explicit references in the query, then semantic hits.
	if o.deps.Legislation != nil {
		g.Go(func() error {
			if ref := legislation.ParseReference(query); ref != nil {
				if art, err := o.deps.Legislation.GetArticle(gctx, ref.ActID, ref.ArticleNumber); err == nil {
					mu.Lock()
					legTexts[legislation.FormatReference(ref)] = art.Text
					mu.Unlock()
				} else {
					ec.Warn("referenced article %s unavailable: %v", legislation.FormatReference(ref), err)
				}
			}
			relevant, err := o.deps.Legislation.FindRelevant(gctx, query, 5)
			if err != nil {
				ec.Warn("legislation retrieval failed: %v", err)
				return nil
			}
			mu.Lock()
			for _, hit := range relevant {
				if len(hit.Payload.LawArticles) == 0 {
					continue
				}
				ref := &types.ArticleReference{
					ActID:         strings.SplitN(hit.Payload.DocID, "/", 2)[0],
					ArticleNumber: hit.Payload.LawArticles[0],
				}
				key := legislation.FormatReference(ref)
				if _, seen := legTexts[key]; !seen {
					legTexts[key] = hit.Payload.Text
				}
			}
			mu.Unlock()
			return nil
		})
	}

	g.Wait()

	return dedupeByDocument(collected), legTexts
}

// vectorFilterFor translates plan slots into a vector-store filter.
func vectorFilterFor(plan *IntentPlan) store.VectorFilter {
	f := store.VectorFilter{
		DocumentType: types.DocCourtDecision,
		SectionTypes: plan.SectionsOfInterest,
		DateFrom:     plan.Slots["date_from"],
		DateTo:       plan.Slots["date_to"],
	}
	if plan.Slots["court_level"] == "cassation" {
		f.Court = "Верховний Суд"
	}
	return f
}

// dedupeByDocument keeps the highest-score hit per document, sorted by
// score descending.
func dedupeByDocument(hits []types.VectorHit) []types.VectorHit {
	best := map[string]types.VectorHit{}
	for _, h := range hits {
		if cur, ok := best[h.Payload.DocID]; !ok || h.Score > cur.Score {
			best[h.Payload.DocID] = h
		}
	}
	out := make([]types.VectorHit, 0, len(best))
	for _, h := range best {
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Payload.DocID < out[j].Payload.DocID
	})
	return out
}

// expandEvidence loads full reasoning and decision sections for the
// top-K cases; documents without stored sections fall back to the chunk
// text already in the hit.
func (o *Orchestrator) expandEvidence(ctx context.Context, ec *ExecContext, hits []types.VectorHit) map[string]string {
	evidence := map[string]string{}
	topK := o.deps.Query.ExpandTopK

	for i, hit := range hits {
		docID := hit.Payload.DocID
		if _, done := evidence[docID]; done {
			continue
		}
		if i < topK && o.deps.Meta != nil {
			sections, err := o.deps.Meta.GetSections(docID, types.SectionReasoning, types.SectionDecision)
			if err == nil && len(sections) > 0 {
				var b strings.Builder
				for _, sec := range sections {
					b.WriteString(sec.Text)
					b.WriteString("\n")
				}
				evidence[docID] = b.String()
				continue
			}
			if err != nil {
				ec.Warn("section expansion failed for %s: %v", docID, err)
			}
		}
		evidence[docID] = hit.Payload.Text
	}
	return evidence
}

// synthesizeAnswer issues the single structured-output model call and
// parses the strict answer pack.
func (o *Orchestrator) synthesizeAnswer(ctx context.Context, query string, plan *IntentPlan,
	hits []types.VectorHit, evidence map[string]string, legTexts map[string]string) (*AnswerPack, error) {

	const op = "orchestrator.synthesizeAnswer"
	if o.deps.LLM == nil {
		return nil, types.E(types.KindUnavailable, op, "synthesis client not configured")
	}

	var prompt strings.Builder
	prompt.WriteString("Запит користувача:\n")
	prompt.WriteString(query)
	prompt.WriteString("\n\nВизначений намір: " + plan.Intent + "\n")

	if len(legTexts) > 0 {
		prompt.WriteString("\nНорми законодавства:\n")
		refs := make([]string, 0, len(legTexts))
		for ref := range legTexts {
			refs = append(refs, ref)
		}
		sort.Strings(refs)
		for _, ref := range refs {
			fmt.Fprintf(&prompt, "[%s]\n%s\n\n", ref, head(legTexts[ref], 2000))
		}
	}

	prompt.WriteString("\nВитяги з судових рішень:\n")
	for _, hit := range hits {
		docID := hit.Payload.DocID
		fmt.Fprintf(&prompt, "[doc_id=%s, section=%s, справа %s, %s]\n%s\n\n",
			docID, hit.Payload.SectionType, hit.Payload.CaseNumber, hit.Payload.Court,
			head(evidence[docID], 3000))
	}

	strategy := synthesis.StrategyFor(plan.ReasoningBudget, o.deps.LLMConfig)
	raw, err := o.deps.LLM.CompleteJSON(ctx, strategy.Model, adviceSystemPrompt, prompt.String())
	if err != nil {
		return nil, err
	}

	var pack AnswerPack
	if err := json.Unmarshal([]byte(raw), &pack); err != nil {
		return nil, types.E(types.KindUnavailable, op, "synthesizer returned malformed JSON: "+err.Error())
	}
	if pack.ShortConclusion.Conclusion == "" {
		return nil, types.E(types.KindUnavailable, op, "synthesizer omitted the required conclusion")
	}
	return &pack, nil
}

// head returns the first n bytes of s, cut at a rune boundary.
func head(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := n
	for cut > 0 && s[cut]&0xC0 == 0x80 {
		cut--
	}
	return s[:cut]
}
