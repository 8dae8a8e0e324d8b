// Package patterns aggregates court reasoning across cases that share an
// intent into reusable legal patterns: which articles the courts lean on,
// how the disputes tend to end, and a centroid vector for similarity
// matching against new queries.
package patterns

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"pravnyk/internal/embedding"
	"pravnyk/internal/logging"
	"pravnyk/internal/store"
	"pravnyk/internal/types"
)

const (
	// minCases is the floor for extraction: fewer reasoning-bearing cases
	// than this cannot support a pattern.
	minCases = 3

	// articleShare is the fraction of cases an article must appear in to
	// make it into the pattern.
	articleShare = 0.30

	// matchSimilarity is the cosine floor for Match results.
	matchSimilarity = 0.7

	// matchConfidence excludes weak patterns from matching entirely.
	matchConfidence = 0.6

	// maxExampleCases bounds the example list stored with a pattern.
	maxExampleCases = 10

	// centroidTextLimit truncates very long reasoning before embedding.
	centroidTextLimit = embedding.DefaultChunkSize
)

var articleRe = regexp.MustCompile(`(?i)(?:ст\.?|статт[іяею])\s*(\d+)`)

// Reasoning and decision phrase lexicons. Each entry maps a trigger phrase
// to the normalized factor it evidences.
var riskLexicon = map[string]string{
	"пропущено строк":        "пропуск процесуального строку",
	"пропуск строку":         "пропуск процесуального строку",
	"не доведено":            "недоведеність обставин",
	"недоведеність":          "недоведеність обставин",
	"відсутність доказів":    "відсутність доказової бази",
	"неналежний відповідач":  "неналежний відповідач",
	"не надано доказів":      "відсутність доказової бази",
	"зловживання правом":     "зловживання процесуальними правами",
	"відсутність експертизи": "відсутність висновку експертизи",
}

var successLexicon = map[string]string{
	"докази підтверджують":          "підтвердження вимог доказами",
	"істотне порушення":             "істотне порушення умов договору",
	"висновок експерта":             "висновок судової експертизи",
	"акт про недоліки":              "зафіксовані недоліки товару",
	"письмова претензія":            "досудова претензія",
	"гарантійний строк":             "звернення в межах гарантійного строку",
	"презумпція":                    "презумпція вини продавця",
	"правова позиція верховного су": "усталена позиція Верховного Суду",
}

// Embedder produces the vectors used for pattern centroids.
type Embedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
}

// Extractor builds and matches legal patterns.
type Extractor struct {
	meta     *store.MetadataStore
	embedder Embedder
}

// NewExtractor creates a pattern extractor. embedder may be nil, in which
// case patterns carry no centroid and cannot be vector-matched.
func NewExtractor(meta *store.MetadataStore, embedder Embedder) *Extractor {
	return &Extractor{meta: meta, embedder: embedder}
}

// caseEvidence is what one case contributes to a pattern.
type caseEvidence struct {
	docID     string
	reasoning string
	decision  string
	outcome   types.PatternOutcome
}

// Extract aggregates the given cases into a pattern for the intent and
// persists it. Cases without a COURT_REASONING section are skipped; fewer
// than three usable cases is a precondition failure.
func (e *Extractor) Extract(ctx context.Context, caseIDs []string, intent string) (*types.LegalPattern, error) {
	const op = "patterns.Extract"
	timer := logging.StartTimer(logging.CategoryPatterns, "Extract")
	defer timer.Stop()

	if intent == "" {
		return nil, types.E(types.KindInvalidArgument, op, "intent must not be empty")
	}

	var cases []caseEvidence
	for _, id := range caseIDs {
		ev, ok := e.collectCase(id)
		if ok {
			cases = append(cases, ev)
		}
	}
	if len(cases) < minCases {
		return nil, types.E(types.KindPreconditionFailed, op,
			fmt.Sprintf("need at least %d cases with court reasoning, have %d", minCases, len(cases)))
	}

	pattern := &types.LegalPattern{
		Intent:          intent,
		LawArticles:     dominantArticles(cases),
		DecisionOutcome: majorityOutcome(cases),
		Frequency:       len(cases),
	}
	for _, c := range cases {
		if len(pattern.ExampleCases) < maxExampleCases {
			pattern.ExampleCases = append(pattern.ExampleCases, c.docID)
		}
		pattern.RiskFactors = appendLexiconHits(pattern.RiskFactors, c.reasoning, riskLexicon)
		pattern.SuccessArguments = appendLexiconHits(pattern.SuccessArguments, c.reasoning, successLexicon)
	}

	if e.embedder != nil {
		centroid, err := e.centroid(ctx, cases)
		if err != nil {
			return nil, fmt.Errorf("pattern centroid: %w", err)
		}
		pattern.Centroid = centroid
	}

	id, err := e.meta.UpsertPattern(pattern)
	if err != nil {
		return nil, fmt.Errorf("persist pattern: %w", err)
	}
	pattern.ID = id

	logging.Patterns("extracted pattern %d for intent %q: %d cases, outcome %s, %d articles",
		id, intent, pattern.Frequency, pattern.DecisionOutcome, len(pattern.LawArticles))
	return pattern, nil
}

// collectCase loads one case's reasoning and decision sections. ok is
// false when the case lacks reasoning and must be skipped.
func (e *Extractor) collectCase(docID string) (caseEvidence, bool) {
	sections, err := e.meta.GetSections(docID, types.SectionReasoning, types.SectionDecision)
	if err != nil {
		logging.PatternsDebug("case %s: sections unavailable: %v", docID, err)
		return caseEvidence{}, false
	}

	ev := caseEvidence{docID: docID}
	for _, sec := range sections {
		switch sec.Type {
		case types.SectionReasoning:
			ev.reasoning += sec.Text + "\n"
		case types.SectionDecision:
			ev.decision += sec.Text + "\n"
		}
	}
	if strings.TrimSpace(ev.reasoning) == "" {
		return caseEvidence{}, false
	}
	ev.outcome = classifyOutcome(ev.decision)
	return ev, true
}

// dominantArticles returns "ст. N" strings for articles cited in at least
// articleShare of the cases, ordered by citation count descending then by
// article number for determinism.
func dominantArticles(cases []caseEvidence) []string {
	counts := map[string]int{}
	for _, c := range cases {
		seen := map[string]bool{}
		for _, m := range articleRe.FindAllStringSubmatch(c.reasoning, -1) {
			seen[m[1]] = true
		}
		for num := range seen {
			counts[num]++
		}
	}

	threshold := int(articleShare*float64(len(cases)) + 0.9999)
	var kept []string
	for num, n := range counts {
		if n >= threshold {
			kept = append(kept, num)
		}
	}
	sort.Slice(kept, func(i, j int) bool {
		if counts[kept[i]] != counts[kept[j]] {
			return counts[kept[i]] > counts[kept[j]]
		}
		return kept[i] < kept[j]
	})

	out := make([]string, len(kept))
	for i, num := range kept {
		out[i] = "ст. " + num
	}
	return out
}

// classifyOutcome reads the operative part. Partial satisfaction is
// checked before full satisfaction because its phrasing contains the
// full-satisfaction phrase.
func classifyOutcome(decision string) types.PatternOutcome {
	lower := strings.ToLower(decision)
	switch {
	case strings.Contains(lower, "частково"):
		return types.OutcomePartial
	case strings.Contains(lower, "відмовити") || strings.Contains(lower, "відмовлено"):
		return types.OutcomeRejected
	case strings.Contains(lower, "задовольнити") || strings.Contains(lower, "задоволено"):
		return types.OutcomeConsumerWon
	default:
		return types.OutcomeRejected
	}
}

// majorityOutcome picks the most frequent outcome; ties resolve to
// rejected, the conservative answer for advice built on the pattern.
func majorityOutcome(cases []caseEvidence) types.PatternOutcome {
	counts := map[types.PatternOutcome]int{}
	for _, c := range cases {
		counts[c.outcome]++
	}

	best, bestN := types.OutcomeRejected, 0
	tied := false
	for _, outcome := range []types.PatternOutcome{
		types.OutcomeConsumerWon, types.OutcomeSellerWon,
		types.OutcomePartial, types.OutcomeRejected,
	} {
		n := counts[outcome]
		if n > bestN {
			best, bestN, tied = outcome, n, false
		} else if n == bestN && n > 0 && outcome != best {
			tied = true
		}
	}
	if tied {
		return types.OutcomeRejected
	}
	return best
}

// appendLexiconHits scans text for lexicon triggers and appends the
// normalized factors, deduplicated against what is already present.
func appendLexiconHits(existing []string, text string, lexicon map[string]string) []string {
	lower := strings.ToLower(text)
	have := map[string]bool{}
	for _, f := range existing {
		have[f] = true
	}

	var hits []string
	for trigger, factor := range lexicon {
		if strings.Contains(lower, trigger) && !have[factor] {
			have[factor] = true
			hits = append(hits, factor)
		}
	}
	sort.Strings(hits)
	return append(existing, hits...)
}

// centroid embeds one reasoning text per case and averages the vectors.
func (e *Extractor) centroid(ctx context.Context, cases []caseEvidence) ([]float32, error) {
	texts := make([]string, len(cases))
	for i, c := range cases {
		t := strings.TrimSpace(c.reasoning)
		if len(t) > centroidTextLimit {
			t = t[:centroidTextLimit]
		}
		texts[i] = t
	}
	vectors, err := e.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return nil, err
	}
	return embedding.Centroid(vectors)
}

// Match is one pattern scored against a query vector.
type Match struct {
	Pattern    types.LegalPattern `json:"pattern"`
	Similarity float64            `json:"similarity"`
}

// MatchQuery returns stored patterns for the intent whose centroid is
// within cosine similarity of the query vector. Patterns below the
// confidence floor never match regardless of similarity.
func (e *Extractor) MatchQuery(queryVector []float32, intent string) ([]Match, error) {
	const op = "patterns.MatchQuery"
	if len(queryVector) == 0 {
		return nil, types.E(types.KindInvalidArgument, op, "query vector must not be empty")
	}

	stored, err := e.meta.PatternsByIntent(intent)
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, p := range stored {
		if p.Confidence < matchConfidence || len(p.Centroid) == 0 {
			continue
		}
		sim, err := embedding.CosineSimilarity(queryVector, p.Centroid)
		if err != nil {
			logging.PatternsDebug("pattern %d: %v", p.ID, err)
			continue
		}
		if sim > matchSimilarity {
			matches = append(matches, Match{Pattern: p, Similarity: sim})
		}
	}
	sort.Slice(matches, func(i, j int) bool { return matches[i].Similarity > matches[j].Similarity })
	return matches, nil
}
