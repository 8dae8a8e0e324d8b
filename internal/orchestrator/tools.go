package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"pravnyk/internal/legislation"
	"pravnyk/internal/store"
	"pravnyk/internal/types"
)

// ==== TOOL REGISTRATION ====

// registerTools wires the full tool surface. Handlers for tools whose
// dependencies are nil return UNAVAILABLE at call time, so registration
// itself never depends on wiring.
func (o *Orchestrator) registerTools() {
	reg := o.registry.MustRegister

	// -- classification --

	reg(&Tool{
		Name:        "classify_intent",
		Description: "Класифікує юридичний запит: намір, галузі права, потрібні сутності, бюджет міркування.",
		Category:    CategoryClassify,
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query": {Type: "string", Description: "Запит користувача природною мовою."},
			},
		},
		Execute: func(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
			return o.classifyIntent(ctx, argString(args, "query"))
		},
	})

	// -- retrieval --

	reg(&Tool{
		Name:        "search_precedents",
		Description: "Семантичний пошук по фрагментах судових рішень з фільтрами за секцією, судом і датою.",
		Category:    CategoryRetrieve,
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query":         {Type: "string", Description: "Пошуковий запит."},
				"section_types": {Type: "array", Description: "Типи секцій для пошуку.", Items: &Items{Type: "string"}},
				"court":         {Type: "string", Description: "Назва суду."},
				"date_from":     {Type: "string", Description: "Нижня межа дати, YYYY-MM-DD."},
				"date_to":       {Type: "string", Description: "Верхня межа дати, YYYY-MM-DD."},
				"limit":         {Type: "integer", Description: "Максимум результатів.", Default: 10},
			},
		},
		Execute: o.searchPrecedents,
	})
	reg(&Tool{
		Name:        "search_court_decisions",
		Description: "Пошук рішень за ключовими словами в метаданих і повних текстах.",
		Category:    CategoryRetrieve,
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query": {Type: "string", Description: "Ключові слова."},
				"limit": {Type: "integer", Description: "Максимум результатів.", Default: 10},
			},
		},
		Execute: o.searchCourtDecisions,
	})
	reg(&Tool{
		Name:        "get_decision",
		Description: "Повертає збережене рішення за внутрішнім id, зовнішнім id або номером справи.",
		Category:    CategoryRetrieve,
		Schema: ToolSchema{
			Properties: map[string]Property{
				"document_id": {Type: "string", Description: "Внутрішній id документа."},
				"external_id": {Type: "string", Description: "Зовнішній id документа в реєстрі."},
				"case_number": {Type: "string", Description: "Номер справи."},
			},
		},
		Execute: o.getDecision,
	})
	reg(&Tool{
		Name:        "extract_sections",
		Description: "Повторно розбиває збережений документ на процесуальні секції та зберігає результат.",
		Category:    CategoryRetrieve,
		Schema: ToolSchema{
			Required: []string{"document_id"},
			Properties: map[string]Property{
				"document_id": {Type: "string", Description: "Внутрішній id документа."},
			},
		},
		Execute: o.extractSections,
	})
	reg(&Tool{
		Name:        "get_document_sections",
		Description: "Повертає збережені секції документа, опційно лише вказаних типів.",
		Category:    CategoryRetrieve,
		Schema: ToolSchema{
			Required: []string{"document_id"},
			Properties: map[string]Property{
				"document_id":   {Type: "string", Description: "Внутрішній id документа."},
				"section_types": {Type: "array", Description: "Типи секцій.", Items: &Items{Type: "string"}},
			},
		},
		Execute: o.getDocumentSections,
	})
	reg(&Tool{
		Name:        "load_texts",
		Description: "Догружає повні тексти для переліку зовнішніх id та повертає їх початки.",
		Category:    CategoryRetrieve,
		Schema: ToolSchema{
			Required: []string{"external_ids"},
			Properties: map[string]Property{
				"external_ids": {Type: "array", Description: "Зовнішні id документів.", Items: &Items{Type: "string"}},
			},
		},
		Execute: o.loadTexts,
	})
	reg(&Tool{
		Name:        "list_documents",
		Description: "Перелік збережених документів з фільтрами за типом, судом, категорією і датами.",
		Category:    CategoryRetrieve,
		Schema: ToolSchema{
			Properties: map[string]Property{
				"type":             {Type: "string", Description: "Тип документа."},
				"court":            {Type: "string", Description: "Назва суду."},
				"dispute_category": {Type: "string", Description: "Категорія спору."},
				"outcome":          {Type: "string", Description: "Результат розгляду."},
				"date_from":        {Type: "string", Description: "Нижня межа дати."},
				"date_to":          {Type: "string", Description: "Верхня межа дати."},
				"limit":            {Type: "integer", Description: "Максимум результатів.", Default: 50},
				"offset":           {Type: "integer", Description: "Зсув сторінки.", Default: 0},
			},
		},
		Execute: o.listDocuments,
	})

	// -- legislation --

	reg(&Tool{
		Name:        "search_legislation",
		Description: "Повнотекстовий пошук статей законодавства, опційно в межах одного акта.",
		Category:    CategoryLegislation,
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query":  {Type: "string", Description: "Пошуковий запит."},
				"act_id": {Type: "string", Description: "Реєстровий номер акта, напр. 1618-15."},
				"limit":  {Type: "integer", Description: "Максимум результатів.", Default: 10},
			},
		},
		Execute: o.toolSearchLegislation,
	})
	reg(&Tool{
		Name:        "get_article",
		Description: "Повертає одну статтю акта, догружаючи акт за потреби.",
		Category:    CategoryLegislation,
		Schema: ToolSchema{
			Required: []string{"act_id", "article"},
			Properties: map[string]Property{
				"act_id":  {Type: "string", Description: "Реєстровий номер акта."},
				"article": {Type: "string", Description: "Номер статті."},
			},
		},
		Execute: o.toolGetArticle,
	})
	reg(&Tool{
		Name:        "get_articles",
		Description: "Повертає кілька статей акта за один виклик.",
		Category:    CategoryLegislation,
		Schema: ToolSchema{
			Required: []string{"act_id", "articles"},
			Properties: map[string]Property{
				"act_id":   {Type: "string", Description: "Реєстровий номер акта."},
				"articles": {Type: "array", Description: "Номери статей.", Items: &Items{Type: "string"}},
			},
		},
		Execute: o.toolGetArticles,
	})
	reg(&Tool{
		Name:        "get_structure",
		Description: "Повертає зміст акта: розділи, глави та належні їм статті.",
		Category:    CategoryLegislation,
		Schema: ToolSchema{
			Required: []string{"act_id"},
			Properties: map[string]Property{
				"act_id": {Type: "string", Description: "Реєстровий номер акта."},
			},
		},
		Execute: o.toolGetStructure,
	})
	reg(&Tool{
		Name:        "find_relevant_articles",
		Description: "Семантичний добір статей законодавства під запит.",
		Category:    CategoryLegislation,
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query": {Type: "string", Description: "Опис правової ситуації."},
				"limit": {Type: "integer", Description: "Максимум результатів.", Default: 5},
			},
		},
		Execute: o.toolFindRelevantArticles,
	})
	reg(&Tool{
		Name:        "parse_reference",
		Description: "Розпізнає посилання на статтю кодексу в довільному тексті.",
		Category:    CategoryLegislation,
		Schema: ToolSchema{
			Required: []string{"text"},
			Properties: map[string]Property{
				"text": {Type: "string", Description: "Текст із можливим посиланням, напр. 'ст. 625 ЦК'."},
			},
		},
		Execute: o.toolParseReference,
	})
	reg(&Tool{
		Name:        "format_reference",
		Description: "Форматує посилання на статтю в канонічний вигляд 'ст. N КОД'.",
		Category:    CategoryLegislation,
		Schema: ToolSchema{
			Required: []string{"act_id", "article"},
			Properties: map[string]Property{
				"act_id":  {Type: "string", Description: "Реєстровий номер акта."},
				"article": {Type: "string", Description: "Номер статті."},
			},
		},
		Execute: o.toolFormatReference,
	})

	// -- procedural --

	reg(&Tool{
		Name:        "search_procedural_norms",
		Description: "Пошук процесуальних норм у кодексі відповідного судочинства.",
		Category:    CategoryProcedural,
		Schema: ToolSchema{
			Required: []string{"procedure_code", "query"},
			Properties: map[string]Property{
				"procedure_code": {Type: "string", Description: "Вид судочинства.", Enum: []any{"cpc", "commercial", "admin", "criminal"}},
				"query":          {Type: "string", Description: "Пошуковий запит."},
				"limit":          {Type: "integer", Description: "Максимум результатів.", Default: 10},
			},
		},
		Execute: o.searchProceduralNorms,
	})
	reg(&Tool{
		Name:        "search_supreme_court_practice",
		Description: "Пошук правових позицій Верховного Суду за запитом.",
		Category:    CategoryProcedural,
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query": {Type: "string", Description: "Пошуковий запит."},
				"limit": {Type: "integer", Description: "Максимум результатів.", Default: 5},
			},
		},
		Execute: o.searchSupremeCourtPractice,
	})
	reg(&Tool{
		Name:        "compare_practice_pro_contra",
		Description: "Паралельний добір практики на користь і проти позиції.",
		Category:    CategoryProcedural,
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query": {Type: "string", Description: "Спірне питання."},
				"limit": {Type: "integer", Description: "Максимум на кожну сторону.", Default: 5},
			},
		},
		Execute: o.comparePracticeProContra,
	})
	reg(&Tool{
		Name:        "find_similar_fact_pattern_cases",
		Description: "Шукає справи зі схожими фактичними обставинами за описом ситуації.",
		Category:    CategoryProcedural,
		Schema: ToolSchema{
			Required: []string{"facts"},
			Properties: map[string]Property{
				"facts": {Type: "string", Description: "Опис фактичних обставин."},
				"limit": {Type: "integer", Description: "Максимум справ.", Default: 10},
			},
		},
		Execute: o.findSimilarFactPatternCases,
	})
	reg(&Tool{
		Name:        "calculate_procedural_deadlines",
		Description: "Обчислює процесуальний строк оскарження з нормою, варіантами відліку та ризиками.",
		Category:    CategoryProcedural,
		Schema: ToolSchema{
			Required: []string{"procedure_code", "appeal_type", "event_type", "event_date"},
			Properties: map[string]Property{
				"procedure_code": {Type: "string", Description: "Вид судочинства.", Enum: []any{"cpc", "commercial", "admin", "criminal"}},
				"appeal_type":    {Type: "string", Description: "Вид оскарження.", Enum: []any{"appeal", "cassation"}},
				"event_type":     {Type: "string", Description: "Подія відліку.", Enum: []any{"decision", "ruling"}},
				"event_date":     {Type: "string", Description: "Дата події, YYYY-MM-DD."},
			},
		},
		Execute: o.calculateDeadlines,
	})
	reg(&Tool{
		Name:        "build_procedural_checklist",
		Description: "Покроковий чекліст процесуальних дій для типового наміру.",
		Category:    CategoryProcedural,
		Schema: ToolSchema{
			Required: []string{"intent"},
			Properties: map[string]Property{
				"intent": {Type: "string", Description: "Намір, напр. appeal або monetary_claim."},
			},
		},
		Execute: o.buildProceduralChecklist,
	})
	reg(&Tool{
		Name:        "calculate_monetary_claims",
		Description: "Розраховує 3% річних та пеню за період прострочення грошового зобов'язання.",
		Category:    CategoryProcedural,
		Schema: ToolSchema{
			Required: []string{"principal", "date_from", "date_to"},
			Properties: map[string]Property{
				"principal":    {Type: "number", Description: "Сума основного боргу, грн."},
				"date_from":    {Type: "string", Description: "Початок прострочення, YYYY-MM-DD."},
				"date_to":      {Type: "string", Description: "Кінець періоду, YYYY-MM-DD."},
				"penalty_rate": {Type: "number", Description: "Договірна пеня, частка на день."},
			},
		},
		Execute: o.calculateMonetaryClaims,
	})

	// -- documents --

	reg(&Tool{
		Name:        "parse_document",
		Description: "Парсить завантажений файл (PDF, DOCX, текст) і зберігає витягнутий текст.",
		Category:    CategoryDocuments,
		Schema: ToolSchema{
			Required: []string{"content_base64"},
			Properties: map[string]Property{
				"content_base64": {Type: "string", Description: "Вміст файлу в base64."},
				"mime_type":      {Type: "string", Description: "MIME-тип файлу."},
				"filename":       {Type: "string", Description: "Ім'я файлу."},
				"user_id":        {Type: "string", Description: "Власник завантаження."},
			},
		},
		Execute: o.parseDocument,
	})
	reg(&Tool{
		Name:        "extract_key_clauses",
		Description: "Знаходить ключові розділи договору: предмет, ціну, відповідальність, строки.",
		Category:    CategoryDocuments,
		Schema: ToolSchema{
			Required: []string{"document_id"},
			Properties: map[string]Property{
				"document_id": {Type: "string", Description: "Id збереженого документа."},
			},
		},
		Execute: o.extractKeyClauses,
	})
	reg(&Tool{
		Name:        "summarize_document",
		Description: "Стислий зміст збереженого документа з ключовими тезами.",
		Category:    CategoryDocuments,
		Schema: ToolSchema{
			Required: []string{"document_id"},
			Properties: map[string]Property{
				"document_id": {Type: "string", Description: "Id збереженого документа."},
			},
		},
		Execute: o.summarizeDocument,
	})
	reg(&Tool{
		Name:        "compare_documents",
		Description: "Порівнює дві версії документа та класифікує зміни за значущістю.",
		Category:    CategoryDocuments,
		Schema: ToolSchema{
			Required: []string{"left_id", "right_id"},
			Properties: map[string]Property{
				"left_id":  {Type: "string", Description: "Id першої версії."},
				"right_id": {Type: "string", Description: "Id другої версії."},
			},
		},
		Execute: o.compareDocuments,
	})

	// -- advice --

	reg(&Tool{
		Name:        "get_legal_advice",
		Description: "Повний цикл: класифікація, добір доказів, синтез і перевірка цитат.",
		Category:    CategoryAdvice,
		Schema: ToolSchema{
			Required: []string{"query"},
			Properties: map[string]Property{
				"query":  {Type: "string", Description: "Юридичне питання природною мовою."},
				"budget": {Type: "string", Description: "Бюджет міркування.", Enum: []any{"quick", "standard", "deep"}},
			},
		},
		Execute: o.getLegalAdvice,
	})
	reg(&Tool{
		Name:        "format_answer_pack",
		Description: "Рендерить структуровану відповідь у читабельний markdown.",
		Category:    CategoryAdvice,
		Schema: ToolSchema{
			Required: []string{"pack"},
			Properties: map[string]Property{
				"pack": {Type: "object", Description: "Структурована відповідь get_legal_advice."},
			},
		},
		Execute: o.formatAnswerPack,
	})

	// -- analytics --

	reg(&Tool{
		Name:        "extract_legal_pattern",
		Description: "Виводить правовий патерн із групи справ: статті, результат, фактори ризику.",
		Category:    CategoryAnalytics,
		Schema: ToolSchema{
			Required: []string{"case_ids", "intent"},
			Properties: map[string]Property{
				"case_ids": {Type: "array", Description: "Id справ-джерел.", Items: &Items{Type: "string"}},
				"intent":   {Type: "string", Description: "Намір, до якого належить патерн."},
			},
		},
		Execute: o.toolExtractPattern,
	})
	reg(&Tool{
		Name:        "match_legal_pattern",
		Description: "Шукає збережені патерни, близькі до запиту за центроїдом.",
		Category:    CategoryAnalytics,
		Schema: ToolSchema{
			Required: []string{"query", "intent"},
			Properties: map[string]Property{
				"query":  {Type: "string", Description: "Опис ситуації."},
				"intent": {Type: "string", Description: "Намір для фільтрації патернів."},
			},
		},
		Execute: o.toolMatchPattern,
	})
	reg(&Tool{
		Name:        "get_citations",
		Description: "Повертає граф цитувань документа: на кого посилається і хто посилається на нього.",
		Category:    CategoryAnalytics,
		Schema: ToolSchema{
			Required: []string{"document_id"},
			Properties: map[string]Property{
				"document_id": {Type: "string", Description: "Id документа."},
			},
		},
		Execute: o.toolGetCitations,
	})
	reg(&Tool{
		Name:        "get_precedent_status",
		Description: "Чи є рішення чинним прецедентом: скасоване, відступлене, розмежоване.",
		Category:    CategoryAnalytics,
		Schema: ToolSchema{
			Required: []string{"document_id"},
			Properties: map[string]Property{
				"document_id": {Type: "string", Description: "Id документа."},
			},
		},
		Execute: o.toolGetPrecedentStatus,
	})
	reg(&Tool{
		Name:        "practice_statistics",
		Description: "Розподіл результатів розгляду за судом, категорією та періодом.",
		Category:    CategoryAnalytics,
		Schema: ToolSchema{
			Properties: map[string]Property{
				"court":            {Type: "string", Description: "Назва суду."},
				"dispute_category": {Type: "string", Description: "Категорія спору."},
				"date_from":        {Type: "string", Description: "Нижня межа дати."},
				"date_to":          {Type: "string", Description: "Верхня межа дати."},
			},
		},
		Execute: o.practiceStatistics,
	})
	reg(&Tool{
		Name:        "recent_events",
		Description: "Останні службові події: завершені інджести, оновлення патернів.",
		Category:    CategoryAnalytics,
		Schema: ToolSchema{
			Properties: map[string]Property{
				"event_type": {Type: "string", Description: "Фільтр за типом події."},
				"limit":      {Type: "integer", Description: "Максимум подій.", Default: 20},
			},
		},
		Execute: o.toolRecentEvents,
	})

	// -- ingest --

	reg(&Tool{
		Name:        "bulk_ingest",
		Description: "Інджестить пакет документів за зовнішніми id: тексти, секції, ембедінги.",
		Category:    CategoryIngest,
		Schema: ToolSchema{
			Required: []string{"external_ids"},
			Properties: map[string]Property{
				"external_ids": {Type: "array", Description: "Зовнішні id документів.", Items: &Items{Type: "string"}},
			},
		},
		Execute: o.toolBulkIngest,
	})
	reg(&Tool{
		Name:        "ingest_status",
		Description: "Поточна глибина черги інджесту та останні завершені пакети.",
		Category:    CategoryIngest,
		Schema:      ToolSchema{Properties: map[string]Property{}},
		Execute:     o.toolIngestStatus,
	})
}

// ==== RETRIEVAL HANDLERS ====

func (o *Orchestrator) searchPrecedents(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.searchPrecedents"
	if o.deps.Vectors == nil || o.deps.Embedder == nil {
		return nil, types.E(types.KindUnavailable, op, "semantic search not configured")
	}
	vec, err := o.embedQuery(ctx, argString(args, "query"))
	if err != nil {
		return nil, err
	}
	filter := store.VectorFilter{
		DocumentType: types.DocCourtDecision,
		Court:        argString(args, "court"),
		DateFrom:     argString(args, "date_from"),
		DateTo:       argString(args, "date_to"),
	}
	for _, st := range argStrings(args, "section_types") {
		filter.SectionTypes = append(filter.SectionTypes, types.SectionType(st))
	}
	hits, err := o.deps.Vectors.Search(vec, filter, argInt(args, "limit", o.deps.Query.SearchLimit))
	if err != nil {
		return nil, err
	}
	return map[string]any{"hits": hits}, nil
}

func (o *Orchestrator) searchCourtDecisions(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.searchCourtDecisions"
	if o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, op, "metadata store not configured")
	}
	docs, err := o.deps.Meta.SearchDocuments(argString(args, "query"), "", argInt(args, "limit", 10))
	if err != nil {
		return nil, err
	}
	return map[string]any{"documents": summarizeDocs(docs)}, nil
}

func (o *Orchestrator) getDecision(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.getDecision"
	if o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, op, "metadata store not configured")
	}
	switch {
	case argString(args, "document_id") != "":
		return o.deps.Meta.GetDocument(argString(args, "document_id"))
	case argString(args, "external_id") != "":
		return o.deps.Meta.GetDocumentByExternalID(argString(args, "external_id"))
	case argString(args, "case_number") != "":
		return o.deps.Meta.GetDocumentByCaseNumber(argString(args, "case_number"))
	}
	return nil, types.E(types.KindInvalidArgument, op,
		"one of document_id, external_id, case_number is required")
}

func (o *Orchestrator) extractSections(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.extractSections"
	if o.deps.Meta == nil || o.deps.Sectionizer == nil {
		return nil, types.E(types.KindUnavailable, op, "sectionizer not configured")
	}
	docID := argString(args, "document_id")
	doc, err := o.deps.Meta.GetDocument(docID)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(doc.FullText) == "" {
		return nil, types.E(types.KindPreconditionFailed, op, "document has no full text to sectionize")
	}
	sections, err := o.deps.Sectionizer.Extract(ctx, doc.FullText)
	if err != nil {
		return nil, err
	}
	if len(sections) > 0 {
		if err := o.deps.Meta.ReplaceSections(docID, sections); err != nil {
			return nil, err
		}
	}
	return map[string]any{"document_id": docID, "sections": sections}, nil
}

func (o *Orchestrator) getDocumentSections(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.getDocumentSections"
	if o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, op, "metadata store not configured")
	}
	var secTypes []types.SectionType
	for _, st := range argStrings(args, "section_types") {
		secTypes = append(secTypes, types.SectionType(st))
	}
	sections, err := o.deps.Meta.GetSections(argString(args, "document_id"), secTypes...)
	if err != nil {
		return nil, err
	}
	return map[string]any{"sections": sections}, nil
}

func (o *Orchestrator) loadTexts(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.loadTexts"
	if o.deps.Worker == nil || o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, op, "ingest worker not configured")
	}
	ids := argStrings(args, "external_ids")
	if len(ids) == 0 {
		return nil, types.E(types.KindInvalidArgument, op, "external_ids must not be empty")
	}

	type loaded struct {
		ExternalID string `json:"external_id"`
		DocumentID string `json:"document_id,omitempty"`
		Preview    string `json:"preview,omitempty"`
		Error      string `json:"error,omitempty"`
	}
	out := make([]loaded, 0, len(ids))
	for _, id := range ids {
		entry := loaded{ExternalID: id}
		if _, err := o.deps.Worker.IngestOne(ctx, id); err != nil {
			entry.Error = err.Error()
			out = append(out, entry)
			continue
		}
		doc, err := o.deps.Meta.GetDocumentByExternalID(id)
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.DocumentID = doc.ID
			entry.Preview = head(doc.FullText, 1000)
		}
		out = append(out, entry)
	}
	return map[string]any{"texts": out}, nil
}

func (o *Orchestrator) listDocuments(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.listDocuments"
	if o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, op, "metadata store not configured")
	}
	docs, err := o.deps.Meta.ListDocuments(store.DocumentFilter{
		Type:            types.DocumentType(argString(args, "type")),
		Court:           argString(args, "court"),
		DisputeCategory: argString(args, "dispute_category"),
		Outcome:         argString(args, "outcome"),
		DateFrom:        argString(args, "date_from"),
		DateTo:          argString(args, "date_to"),
		Limit:           argInt(args, "limit", 50),
		Offset:          argInt(args, "offset", 0),
	})
	if err != nil {
		return nil, err
	}
	return map[string]any{"documents": summarizeDocs(docs)}, nil
}

// summarizeDocs strips full texts from listing responses.
func summarizeDocs(docs []*types.Document) []map[string]any {
	out := make([]map[string]any, 0, len(docs))
	for _, d := range docs {
		out = append(out, map[string]any{
			"document_id":      d.ID,
			"external_id":      d.ExternalID,
			"type":             d.Type,
			"title":            d.Title,
			"case_number":      d.CaseNumber,
			"court":            d.Court,
			"date":             d.Date,
			"dispute_category": d.DisputeCategory,
			"outcome":          d.Outcome,
			"text_length":      len(d.FullText),
		})
	}
	return out
}

// ==== LEGISLATION HANDLERS ====

func (o *Orchestrator) requireLegislation(op string) error {
	if o.deps.Legislation == nil {
		return types.E(types.KindUnavailable, op, "legislation service not configured")
	}
	return nil
}

func (o *Orchestrator) toolSearchLegislation(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	if err := o.requireLegislation("orchestrator.searchLegislation"); err != nil {
		return nil, err
	}
	articles, err := o.deps.Legislation.Search(ctx, argString(args, "query"), argString(args, "act_id"), argInt(args, "limit", 10))
	if err != nil {
		return nil, err
	}
	return map[string]any{"articles": articles}, nil
}

func (o *Orchestrator) toolGetArticle(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	if err := o.requireLegislation("orchestrator.getArticle"); err != nil {
		return nil, err
	}
	return o.deps.Legislation.GetArticle(ctx, argString(args, "act_id"), argString(args, "article"))
}

func (o *Orchestrator) toolGetArticles(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	if err := o.requireLegislation("orchestrator.getArticles"); err != nil {
		return nil, err
	}
	articles, err := o.deps.Legislation.GetArticles(ctx, argString(args, "act_id"), argStrings(args, "articles"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"articles": articles}, nil
}

func (o *Orchestrator) toolGetStructure(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	if err := o.requireLegislation("orchestrator.getStructure"); err != nil {
		return nil, err
	}
	entries, err := o.deps.Legislation.GetStructure(ctx, argString(args, "act_id"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"structure": entries}, nil
}

func (o *Orchestrator) toolFindRelevantArticles(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	if err := o.requireLegislation("orchestrator.findRelevantArticles"); err != nil {
		return nil, err
	}
	hits, err := o.deps.Legislation.FindRelevant(ctx, argString(args, "query"), argInt(args, "limit", 5))
	if err != nil {
		return nil, err
	}
	return map[string]any{"hits": hits}, nil
}

func (o *Orchestrator) toolParseReference(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	ref := legislation.ParseReference(argString(args, "text"))
	if ref == nil {
		return map[string]any{"found": false}, nil
	}
	return map[string]any{
		"found":     true,
		"act_id":    ref.ActID,
		"article":   ref.ArticleNumber,
		"canonical": legislation.FormatReference(ref),
	}, nil
}

func (o *Orchestrator) toolFormatReference(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	ref := &types.ArticleReference{
		ActID:         argString(args, "act_id"),
		ArticleNumber: argString(args, "article"),
	}
	return map[string]any{"reference": legislation.FormatReference(ref)}, nil
}

// ==== ADVICE HANDLERS ====

// decodeAnswerPack round-trips an arbitrary JSON object into the strict
// answer structure.
func decodeAnswerPack(v any) (*AnswerPack, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var pack AnswerPack
	if err := json.Unmarshal(raw, &pack); err != nil {
		return nil, err
	}
	if pack.ShortConclusion.Conclusion == "" {
		return nil, fmt.Errorf("missing short_conclusion.conclusion")
	}
	return &pack, nil
}

// formatAnswerPack renders a validated answer pack as markdown.
func (o *Orchestrator) formatAnswerPack(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.formatAnswerPack"
	pack, err := decodeAnswerPack(args["pack"])
	if err != nil {
		return nil, types.E(types.KindInvalidArgument, op, "pack does not match the answer structure: "+err.Error())
	}

	var b strings.Builder
	b.WriteString("## Висновок\n\n")
	b.WriteString(pack.ShortConclusion.Conclusion + "\n")
	if pack.ShortConclusion.Conditions != "" {
		b.WriteString("\n**Умови:** " + pack.ShortConclusion.Conditions + "\n")
	}
	if pack.ShortConclusion.RiskOrException != "" {
		b.WriteString("\n**Ризик/виняток:** " + pack.ShortConclusion.RiskOrException + "\n")
	}

	if len(pack.LegalFramework.Norms) > 0 {
		b.WriteString("\n## Нормативна база\n\n")
		for _, n := range pack.LegalFramework.Norms {
			fmt.Fprintf(&b, "- **%s, %s**", n.Act, n.ArticleRef)
			if n.Quote != "" {
				fmt.Fprintf(&b, ": «%s»", n.Quote)
			}
			if n.Comment != "" {
				b.WriteString(" — " + n.Comment)
			}
			b.WriteString("\n")
		}
	}

	if len(pack.SupremeCourtPositions) > 0 {
		b.WriteString("\n## Позиції Верховного Суду\n\n")
		for _, pos := range pack.SupremeCourtPositions {
			fmt.Fprintf(&b, "- %s\n", pos.Thesis)
			for _, q := range pos.Quotes {
				fmt.Fprintf(&b, "  > «%s» (%s)\n", q.Quote, q.SourceDocID)
			}
		}
	}

	if len(pack.Practice) > 0 {
		b.WriteString("\n## Судова практика\n\n")
		for _, item := range pack.Practice {
			fmt.Fprintf(&b, "- Справа %s, %s: «%s»", item.CaseNumber, item.Court, item.Quote)
			if item.RelevanceReason != "" {
				b.WriteString(" — " + item.RelevanceReason)
			}
			b.WriteString("\n")
		}
	}

	if len(pack.CriteriaTest) > 0 {
		b.WriteString("\n## Критерії оцінки\n\n")
		for _, c := range pack.CriteriaTest {
			b.WriteString("- " + c + "\n")
		}
	}
	if len(pack.CounterargumentsAndRisks) > 0 {
		b.WriteString("\n## Контраргументи та ризики\n\n")
		for _, c := range pack.CounterargumentsAndRisks {
			b.WriteString("- " + c + "\n")
		}
	}
	if len(pack.Checklist.Steps) > 0 {
		b.WriteString("\n## Чекліст дій\n\n")
		for i, s := range pack.Checklist.Steps {
			fmt.Fprintf(&b, "%d. %s\n", i+1, s)
		}
	}
	if len(pack.Sources) > 0 {
		b.WriteString("\n## Джерела\n\n")
		for _, src := range pack.Sources {
			fmt.Fprintf(&b, "- %s (%s)\n", src.DocumentID, src.SectionType)
		}
	}
	return map[string]any{"markdown": b.String()}, nil
}

// ==== ANALYTICS HANDLERS ====

func (o *Orchestrator) toolExtractPattern(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.extractPattern"
	if o.deps.Patterns == nil {
		return nil, types.E(types.KindUnavailable, op, "pattern extractor not configured")
	}
	return o.deps.Patterns.Extract(ctx, argStrings(args, "case_ids"), argString(args, "intent"))
}

func (o *Orchestrator) toolMatchPattern(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.matchPattern"
	if o.deps.Patterns == nil || o.deps.Embedder == nil {
		return nil, types.E(types.KindUnavailable, op, "pattern matching not configured")
	}
	vec, err := o.embedQuery(ctx, argString(args, "query"))
	if err != nil {
		return nil, err
	}
	matches, err := o.deps.Patterns.MatchQuery(vec, argString(args, "intent"))
	if err != nil {
		return nil, err
	}
	return map[string]any{"matches": matches}, nil
}

func (o *Orchestrator) toolGetCitations(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.getCitations"
	if o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, op, "metadata store not configured")
	}
	docID := argString(args, "document_id")
	outgoing, err := o.deps.Meta.CitationsFrom(docID)
	if err != nil {
		return nil, err
	}
	incoming, err := o.deps.Meta.CitationsTo(docID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"cites": outgoing, "cited_by": incoming}, nil
}

func (o *Orchestrator) toolGetPrecedentStatus(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.getPrecedentStatus"
	if o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, op, "metadata store not configured")
	}
	return o.deps.Meta.GetPrecedentStatus(argString(args, "document_id"))
}

func (o *Orchestrator) toolRecentEvents(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.recentEvents"
	if o.deps.Meta == nil {
		return nil, types.E(types.KindUnavailable, op, "metadata store not configured")
	}
	events, err := o.deps.Meta.RecentEvents(argString(args, "event_type"), argInt(args, "limit", 20))
	if err != nil {
		return nil, err
	}
	return map[string]any{"events": events}, nil
}

// ==== INGEST HANDLERS ====

func (o *Orchestrator) toolBulkIngest(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.bulkIngest"
	if o.deps.Worker == nil {
		return nil, types.E(types.KindUnavailable, op, "ingest worker not configured")
	}
	ids := argStrings(args, "external_ids")
	if len(ids) == 0 {
		return nil, types.E(types.KindInvalidArgument, op, "external_ids must not be empty")
	}
	report := o.deps.Worker.IngestBatch(ctx, ids)
	for _, detail := range report.ErrorDetails {
		ec.Warn("%s", detail)
	}
	return report, nil
}

func (o *Orchestrator) toolIngestStatus(ctx context.Context, ec *ExecContext, args map[string]any) (any, error) {
	const op = "orchestrator.ingestStatus"
	if o.deps.Worker == nil {
		return nil, types.E(types.KindUnavailable, op, "ingest worker not configured")
	}
	status := map[string]any{"queue_depth": o.deps.Worker.QueueDepth()}
	if o.deps.Meta != nil {
		if events, err := o.deps.Meta.RecentEvents("ingest.batch_completed", 5); err == nil {
			status["recent_batches"] = events
		}
	}
	return status, nil
}
