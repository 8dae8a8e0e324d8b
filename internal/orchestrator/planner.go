package orchestrator

import (
	"context"
	"encoding/json"
	"strings"

	"pravnyk/internal/logging"
	"pravnyk/internal/synthesis"
	"pravnyk/internal/types"
)

// IntentPlan is the planner's output: what the user wants and how to
// retrieve for it.
type IntentPlan struct {
	Intent             string              `json:"intent"`
	Confidence         float64             `json:"confidence"`
	Domains            []string            `json:"domains"`
	RequiredEntities   []string            `json:"required_entities"`
	SectionsOfInterest []types.SectionType `json:"sections_of_interest"`
	ReasoningBudget    types.Budget        `json:"reasoning_budget"`
	Slots              map[string]string   `json:"slots"`
}

const classifySystemPrompt = `Ти класифікатор юридичних запитів українською мовою.
Поверни JSON з полями: intent (appeal, procedural_deadlines, consumer_protection,
contract_dispute, monetary_claim, labor_dispute, document_analysis,
general_legal_question), confidence (0..1), domains (масив рядків),
required_entities (масив рядків), reasoning_budget (quick, standard, deep),
slots (обʼєкт: procedure_code, court_level, date_from, date_to, parties).`

// classifyIntent produces an IntentPlan. The LLM path runs first; its
// output is sanity-checked and the keyword heuristic takes over whenever
// the model is unavailable or returns garbage, so classification always
// succeeds for a non-empty query.
func (o *Orchestrator) classifyIntent(ctx context.Context, query string) (*IntentPlan, error) {
	const op = "orchestrator.classifyIntent"
	if strings.TrimSpace(query) == "" {
		return nil, types.E(types.KindInvalidArgument, op, "query must not be empty")
	}

	if o.deps.LLM != nil {
		strategy := synthesis.StrategyFor(types.BudgetQuick, o.deps.LLMConfig)
		raw, err := o.deps.LLM.CompleteJSON(ctx, strategy.Model, classifySystemPrompt, query)
		if err == nil {
			var plan IntentPlan
			if jerr := json.Unmarshal([]byte(raw), &plan); jerr == nil && plan.Intent != "" {
				normalizePlan(&plan, query)
				return &plan, nil
			}
			logging.OrchestratorDebug("classifier returned unparseable output, using heuristic")
		} else {
			logging.OrchestratorDebug("classifier model unavailable (%v), using heuristic", err)
		}
	}

	return heuristicPlan(query), nil
}

// intentKeywords drives the fallback classifier. First match wins, so
// more specific intents come first.
var intentKeywords = []struct {
	intent   string
	keywords []string
}{
	{"appeal", []string{"оскаржити", "оскарження", "апеляційну скаргу", "касаційну скаргу"}},
	{"procedural_deadlines", []string{"строк", "термін", "пропустив", "поновлення строку"}},
	{"consumer_protection", []string{"споживач", "неналежної якості", "повернути товар", "гарантійн"}},
	{"labor_dispute", []string{"звільнення", "працівник", "заробітн", "трудов"}},
	{"monetary_claim", []string{"стягнути", "борг", "інфляційні", "3% річних", "заборгованість"}},
	{"contract_dispute", []string{"договір", "договору", "контракт", "зобов'язання"}},
}

// heuristicPlan is the deterministic keyword classifier.
func heuristicPlan(query string) *IntentPlan {
	lower := strings.ToLower(query)

	plan := &IntentPlan{
		Intent:     "general_legal_question",
		Confidence: 0.4,
		Slots:      map[string]string{},
	}
	for _, entry := range intentKeywords {
		for _, kw := range entry.keywords {
			if strings.Contains(lower, kw) {
				plan.Intent = entry.intent
				plan.Confidence = 0.7
				break
			}
		}
		if plan.Intent != "general_legal_question" {
			break
		}
	}

	normalizePlan(plan, query)
	return plan
}

// normalizePlan fills defaults and derives slots both classifier paths
// share: procedure code, court level, sections of interest, budget.
func normalizePlan(plan *IntentPlan, query string) {
	lower := strings.ToLower(query)

	if plan.Slots == nil {
		plan.Slots = map[string]string{}
	}
	if plan.Slots["procedure_code"] == "" {
		switch {
		case strings.Contains(lower, "господар"):
			plan.Slots["procedure_code"] = "commercial"
		case strings.Contains(lower, "адміністратив"):
			plan.Slots["procedure_code"] = "admin"
		case strings.Contains(lower, "кримінал"):
			plan.Slots["procedure_code"] = "criminal"
		case strings.Contains(lower, "суд") || strings.Contains(lower, "позов") ||
			strings.Contains(lower, "рішення") || strings.Contains(lower, "справ"):
			plan.Slots["procedure_code"] = "cpc"
		}
	}
	if plan.Slots["court_level"] == "" {
		switch {
		case strings.Contains(lower, "верховн") || strings.Contains(lower, "касац"):
			plan.Slots["court_level"] = "cassation"
		case strings.Contains(lower, "апеляц"):
			plan.Slots["court_level"] = "appeal"
		case strings.Contains(lower, "першої інстанції"):
			plan.Slots["court_level"] = "first_instance"
		}
	}

	if len(plan.SectionsOfInterest) == 0 {
		switch plan.Intent {
		case "appeal", "procedural_deadlines":
			plan.SectionsOfInterest = []types.SectionType{
				types.SectionReasoning, types.SectionDecision, types.SectionLawRefs,
			}
		default:
			plan.SectionsOfInterest = []types.SectionType{
				types.SectionReasoning, types.SectionDecision,
			}
		}
	}

	plan.ReasoningBudget = types.ParseBudget(string(plan.ReasoningBudget))
	if plan.ReasoningBudget == types.BudgetStandard {
		switch {
		case len(query) > 600 || strings.Contains(lower, "детально") || strings.Contains(lower, "проаналізуй"):
			plan.ReasoningBudget = types.BudgetDeep
		case len(query) < 40:
			plan.ReasoningBudget = types.BudgetQuick
		}
	}

	if plan.Confidence <= 0 || plan.Confidence > 1 {
		plan.Confidence = 0.5
	}
	if len(plan.Domains) == 0 {
		plan.Domains = []string{"civil"}
	}
}
