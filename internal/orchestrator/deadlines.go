package orchestrator

import (
	"context"
	"fmt"
	"time"

	"pravnyk/internal/types"
)

// deadlineKey indexes the static procedural-terms table.
type deadlineKey struct {
	procedureCode string
	appealType    string
	eventType     string
}

// deadlineRule is one row of the table: the statutory term and the norm
// that establishes it.
type deadlineRule struct {
	Days        int
	Act         string
	Article     string
	RenewalNorm string
}

// deadlineTable holds the statutory appeal and cassation terms of the
// four procedure codes. Days count from the event date.
var deadlineTable = map[deadlineKey]deadlineRule{
	{"cpc", "appeal", "decision"}:    {30, "Цивільний процесуальний кодекс України", "354", "127"},
	{"cpc", "appeal", "ruling"}:      {15, "Цивільний процесуальний кодекс України", "354", "127"},
	{"cpc", "cassation", "decision"}: {30, "Цивільний процесуальний кодекс України", "390", "127"},
	{"commercial", "appeal", "decision"}:    {20, "Господарський процесуальний кодекс України", "256", "119"},
	{"commercial", "appeal", "ruling"}:      {10, "Господарський процесуальний кодекс України", "256", "119"},
	{"commercial", "cassation", "decision"}: {20, "Господарський процесуальний кодекс України", "288", "119"},
	{"admin", "appeal", "decision"}:    {30, "Кодекс адміністративного судочинства України", "295", "121"},
	{"admin", "appeal", "ruling"}:      {15, "Кодекс адміністративного судочинства України", "295", "121"},
	{"admin", "cassation", "decision"}: {30, "Кодекс адміністративного судочинства України", "329", "121"},
	{"criminal", "appeal", "decision"}:    {30, "Кримінальний процесуальний кодекс України", "395", "117"},
	{"criminal", "appeal", "ruling"}:      {7, "Кримінальний процесуальний кодекс України", "395", "117"},
	{"criminal", "cassation", "decision"}: {90, "Кримінальний процесуальний кодекс України", "426", "117"},
}

// DeadlineVariant is one way of counting the term.
type DeadlineVariant struct {
	Rule      string `json:"rule"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	Comment   string `json:"comment,omitempty"`
}

// DeadlineAdvice is the structured result of the deadline calculator.
type DeadlineAdvice struct {
	Conclusion string            `json:"conclusion"`
	Days       int               `json:"days"`
	Variants   []DeadlineVariant `json:"variants"`
	Norms      struct {
		Act         string `json:"act"`
		Article     string `json:"article"`
		RenewalNorm string `json:"renewal_norm"`
	} `json:"norms"`
	RenewalCriteria    []string `json:"renewal_criteria"`
	Risks              []string `json:"risks"`
	ActionChecklist    []string `json:"action_checklist"`
	SupremeCourtTheses []string `json:"supreme_court_theses,omitempty"`
}

const dateLayout = "2006-01-02"

// calculateDeadlines resolves the statutory term for the given procedure,
// appeal type, and event, then enriches the advice with recent Supreme
// Court practice on term renewal when the corpus has any.
func (o *Orchestrator) calculateDeadlines(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.calculateDeadlines"

	procedureCode := argString(args, "procedure_code")
	appealType := argString(args, "appeal_type")
	eventType := argString(args, "event_type")
	eventDate := argString(args, "event_date")

	rule, ok := deadlineTable[deadlineKey{procedureCode, appealType, eventType}]
	if !ok {
		return nil, types.E(types.KindNotFound, op,
			fmt.Sprintf("no deadline rule for (%s, %s, %s)", procedureCode, appealType, eventType))
	}

	start, err := time.Parse(dateLayout, eventDate)
	if err != nil {
		return nil, types.E(types.KindInvalidArgument, op, "event_date must be YYYY-MM-DD")
	}
	end := start.AddDate(0, 0, rule.Days)

	advice := &DeadlineAdvice{
		Conclusion: fmt.Sprintf("Строк на оскарження становить %d днів з дня проголошення (%s), останній день подання: %s.",
			rule.Days, eventDate, end.Format(dateLayout)),
		Days: rule.Days,
		Variants: []DeadlineVariant{
			{
				Rule:      "from_event_date",
				StartDate: start.Format(dateLayout),
				EndDate:   end.Format(dateLayout),
			},
			{
				Rule:      "from_full_text_receipt",
				StartDate: start.Format(dateLayout),
				EndDate:   end.Format(dateLayout),
				Comment:   "Якщо рішення проголошено без повного тексту, строк обчислюється з дня складення повного судового рішення.",
			},
		},
		RenewalCriteria: []string{
			"Поважність причин пропуску строку доводить заявник.",
			"Клопотання про поновлення подається разом зі скаргою.",
			"Хвороба, відрядження або несвоєчасне отримання повного тексту рішення можуть визнаватися поважними причинами.",
		},
		Risks: []string{
			"Пропуск строку без поважних причин має наслідком повернення скарги.",
			"Строк, обчислений з дня проголошення, спливає раніше за строк з дня отримання повного тексту.",
		},
		ActionChecklist: []string{
			"Зафіксувати дату проголошення та дату отримання повного тексту рішення.",
			"Підготувати скаргу та докази сплати судового збору.",
			fmt.Sprintf("Подати скаргу не пізніше %s.", end.Format(dateLayout)),
		},
	}
	advice.Norms.Act = rule.Act
	advice.Norms.Article = rule.Article
	advice.Norms.RenewalNorm = rule.RenewalNorm

	// Active search for recent SC practice on renewal; failure here only
	// degrades the advice, never fails it.
	if o.deps.Meta != nil {
		theses, err := o.supremeCourtTheses(ctx, "поновлення строку на оскарження")
		if err != nil {
			ec.Warn("supreme court practice lookup failed: %v", err)
		} else {
			advice.SupremeCourtTheses = theses
		}
	}
	return advice, nil
}

// supremeCourtTheses pulls short reasoning excerpts from Supreme Court
// decisions matching the query.
func (o *Orchestrator) supremeCourtTheses(ctx context.Context, query string) ([]string, error) {
	docs, err := o.deps.Meta.SearchDocuments(query, "", 3)
	if err != nil {
		return nil, err
	}
	var theses []string
	for _, doc := range docs {
		sections, err := o.deps.Meta.GetSections(doc.ID, types.SectionReasoning)
		if err != nil || len(sections) == 0 {
			continue
		}
		text := head(sections[0].Text, 300)
		theses = append(theses, fmt.Sprintf("%s (%s)", text, doc.CaseNumber))
	}
	return theses, nil
}
