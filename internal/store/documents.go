package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pravnyk/internal/logging"
	"pravnyk/internal/types"
)

// =============================================================================
// DOCUMENT UPSERTS AND QUERIES
// =============================================================================

// UpsertDocument inserts or merges a document row keyed by its external id.
// Merge semantics: mutable fields are last-write-wins, but an already
// populated full_text survives a later upsert that arrives without one
// (the search API returns snippets first, full text later).
// Returns the internal document id.
func (s *MetadataStore) UpsertDocument(doc *types.Document) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if doc.ExternalID == "" && doc.ID == "" {
		return "", types.E(types.KindInvalidArgument, "store.UpsertDocument", "document has neither id nor external id")
	}
	if doc.ID == "" {
		doc.ID = uuid.NewString()
	}

	metaJSON := "{}"
	if len(doc.Metadata) > 0 {
		b, err := json.Marshal(doc.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to marshal metadata: %w", err)
		}
		metaJSON = string(b)
	}

	var externalID any
	if doc.ExternalID != "" {
		externalID = doc.ExternalID
	}

	_, err := s.db.Exec(`
		INSERT INTO documents (
			id, zakononline_id, type, title, date, court, chamber, case_number,
			dispute_category, outcome, full_text, full_text_html, user_id, metadata
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(zakononline_id) DO UPDATE SET
			type             = excluded.type,
			title            = COALESCE(NULLIF(excluded.title, ''), documents.title),
			date             = COALESCE(NULLIF(excluded.date, ''), documents.date),
			court            = COALESCE(NULLIF(excluded.court, ''), documents.court),
			chamber          = COALESCE(NULLIF(excluded.chamber, ''), documents.chamber),
			case_number      = COALESCE(NULLIF(excluded.case_number, ''), documents.case_number),
			dispute_category = COALESCE(NULLIF(excluded.dispute_category, ''), documents.dispute_category),
			outcome          = COALESCE(NULLIF(excluded.outcome, ''), documents.outcome),
			full_text        = COALESCE(NULLIF(excluded.full_text, ''), documents.full_text),
			full_text_html   = COALESCE(NULLIF(excluded.full_text_html, ''), documents.full_text_html),
			user_id          = COALESCE(NULLIF(excluded.user_id, ''), documents.user_id),
			metadata         = excluded.metadata,
			updated_at       = CURRENT_TIMESTAMP`,
		doc.ID, externalID, string(doc.Type), doc.Title, doc.Date, doc.Court,
		doc.Chamber, doc.CaseNumber, doc.DisputeCategory, doc.Outcome,
		doc.FullText, doc.FullTextHTML, doc.OwnerID, metaJSON,
	)
	if err != nil {
		return "", fmt.Errorf("failed to upsert document: %w", err)
	}

	// The conflict path keeps the existing internal id; read it back.
	if doc.ExternalID != "" {
		var id string
		if err := s.db.QueryRow(
			"SELECT id FROM documents WHERE zakononline_id = ?", doc.ExternalID,
		).Scan(&id); err != nil {
			return "", fmt.Errorf("failed to read back document id: %w", err)
		}
		doc.ID = id
	}

	logging.StoreDebug("upserted document %s (external=%s)", doc.ID, doc.ExternalID)
	return doc.ID, nil
}

// GetDocument loads a document by internal id.
func (s *MetadataStore) GetDocument(id string) (*types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDocumentWhere("id = ?", id)
}

// GetDocumentByExternalID loads a document by its external registry id.
func (s *MetadataStore) GetDocumentByExternalID(externalID string) (*types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDocumentWhere("zakononline_id = ?", externalID)
}

// GetDocumentByCaseNumber loads the newest document for a case number.
func (s *MetadataStore) GetDocumentByCaseNumber(caseNumber string) (*types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getDocumentWhere("case_number = ? ORDER BY created_at DESC", caseNumber)
}

const documentColumns = `documents.id, COALESCE(documents.zakononline_id, ''), documents.type,
	COALESCE(documents.title, ''), COALESCE(documents.date, ''), COALESCE(documents.court, ''),
	COALESCE(documents.chamber, ''), COALESCE(documents.case_number, ''),
	COALESCE(documents.dispute_category, ''), COALESCE(documents.outcome, ''),
	COALESCE(documents.full_text, ''), COALESCE(documents.full_text_html, ''),
	COALESCE(documents.user_id, ''), COALESCE(documents.metadata, '{}'),
	documents.created_at, documents.updated_at`

func (s *MetadataStore) getDocumentWhere(where string, args ...any) (*types.Document, error) {
	row := s.db.QueryRow("SELECT "+documentColumns+" FROM documents WHERE "+where+" LIMIT 1", args...)
	doc, err := scanDocument(row)
	if err == sql.ErrNoRows {
		return nil, types.E(types.KindNotFound, "store.GetDocument", "document not found")
	}
	return doc, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*types.Document, error) {
	var d types.Document
	var typ, metaJSON string
	err := row.Scan(&d.ID, &d.ExternalID, &typ, &d.Title, &d.Date, &d.Court,
		&d.Chamber, &d.CaseNumber, &d.DisputeCategory, &d.Outcome,
		&d.FullText, &d.FullTextHTML, &d.OwnerID, &metaJSON,
		&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	d.Type = types.DocumentType(typ)
	if metaJSON != "" && metaJSON != "{}" {
		json.Unmarshal([]byte(metaJSON), &d.Metadata)
	}
	return &d, nil
}

// =============================================================================
// COMPOSITE QUERIES
// =============================================================================

// DocumentFilter is the composite listing predicate. Zero fields are
// ignored. OwnerID scopes visibility: results are public documents plus
// documents owned by OwnerID.
type DocumentFilter struct {
	Type            types.DocumentType
	Court           string
	Chamber         string
	DisputeCategory string
	Outcome         string
	CaseNumber      string
	DateFrom        string
	DateTo          string
	OwnerID         string
	Limit           int
	Offset          int
}

// ListDocuments returns documents matching the filter, ordered by
// created_at descending, paginated by Limit/Offset.
func (s *MetadataStore) ListDocuments(f DocumentFilter) ([]*types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.whereClause()
	limit := f.Limit
	if limit <= 0 {
		limit = 20
	}
	args = append(args, limit, f.Offset)

	rows, err := s.db.Query(
		"SELECT "+documentColumns+" FROM documents WHERE "+where+
			" ORDER BY created_at DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	var out []*types.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (f DocumentFilter) whereClause() (string, []any) {
	conds := []string{"(user_id IS NULL OR user_id = '' OR user_id = ?)"}
	args := []any{f.OwnerID}

	add := func(cond string, val any) {
		conds = append(conds, cond)
		args = append(args, val)
	}
	if f.Type != "" {
		add("type = ?", string(f.Type))
	}
	if f.Court != "" {
		add("court = ?", f.Court)
	}
	if f.Chamber != "" {
		add("chamber = ?", f.Chamber)
	}
	if f.DisputeCategory != "" {
		add("dispute_category = ?", f.DisputeCategory)
	}
	if f.Outcome != "" {
		add("outcome = ?", f.Outcome)
	}
	if f.CaseNumber != "" {
		add("case_number = ?", f.CaseNumber)
	}
	if f.DateFrom != "" {
		add("date >= ?", f.DateFrom)
	}
	if f.DateTo != "" {
		add("date <= ?", f.DateTo)
	}
	return strings.Join(conds, " AND "), args
}

// =============================================================================
// FULL-TEXT SEARCH
// =============================================================================

// SearchDocuments runs FTS5 full-text search over title and full_text,
// ranked by bm25, scoped by owner visibility.
func (s *MetadataStore) SearchDocuments(query, ownerID string, limit int) ([]*types.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if strings.TrimSpace(query) == "" {
		return nil, types.E(types.KindInvalidArgument, "store.SearchDocuments", "empty query")
	}
	if limit <= 0 {
		limit = 20
	}

	timer := logging.StartTimer(logging.CategoryStore, "SearchDocuments")
	defer timer.Stop()

	rows, err := s.db.Query(`
		SELECT `+documentColumns+`
		FROM documents_fts f
		JOIN documents ON documents.rowid = f.rowid
		WHERE documents_fts MATCH ?
		  AND (user_id IS NULL OR user_id = '' OR user_id = ?)
		ORDER BY bm25(documents_fts)
		LIMIT ?`,
		ftsQuote(query), ownerID, limit)
	if err != nil {
		return nil, fmt.Errorf("full-text search failed: %w", err)
	}
	defer rows.Close()

	var out []*types.Document
	for rows.Next() {
		d, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

// ftsQuote turns free text into an FTS5 query: each token quoted so that
// punctuation in legal citations ("ст.", case numbers) cannot break the
// MATCH grammar.
func ftsQuote(query string) string {
	fields := strings.Fields(query)
	for i, f := range fields {
		fields[i] = `"` + strings.ReplaceAll(f, `"`, `""`) + `"`
	}
	return strings.Join(fields, " ")
}
