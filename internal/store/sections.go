package store

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"pravnyk/internal/logging"
	"pravnyk/internal/types"
)

// =============================================================================
// DOCUMENT SECTIONS
// =============================================================================

// ReplaceSections atomically replaces a document's sections: delete then
// insert inside one transaction. Before committing it enforces the two
// section invariants against the stored full text:
//
//  1. each section's text equals full_text[start:end]
//  2. sections are pairwise non-overlapping
//
// Violations abort with INVARIANT_VIOLATED and roll back.
func (s *MetadataStore) ReplaceSections(documentID string, sections []types.Section) error {
	const op = "store.ReplaceSections"
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "ReplaceSections")
	defer timer.Stop()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var fullText string
	if err := tx.QueryRow(
		"SELECT COALESCE(full_text, '') FROM documents WHERE id = ?", documentID,
	).Scan(&fullText); err != nil {
		return types.Wrap(types.KindNotFound, op, fmt.Errorf("document %s: %w", documentID, err))
	}

	sorted := make([]types.Section, len(sections))
	copy(sorted, sections)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].StartIndex < sorted[j].StartIndex })

	for i, sec := range sorted {
		if sec.StartIndex < 0 || sec.EndIndex > len(fullText) || sec.StartIndex >= sec.EndIndex {
			return types.E(types.KindInvariantViolated, op,
				fmt.Sprintf("section %d has invalid span [%d,%d) for text of %d bytes",
					i, sec.StartIndex, sec.EndIndex, len(fullText)))
		}
		if fullText[sec.StartIndex:sec.EndIndex] != sec.Text {
			return types.E(types.KindInvariantViolated, op,
				fmt.Sprintf("section %d text does not match document span [%d,%d)",
					i, sec.StartIndex, sec.EndIndex))
		}
		if i > 0 && sec.StartIndex < sorted[i-1].EndIndex {
			return types.E(types.KindInvariantViolated, op,
				fmt.Sprintf("section %d overlaps previous section", i))
		}
	}

	if _, err := tx.Exec("DELETE FROM document_sections WHERE document_id = ?", documentID); err != nil {
		return fmt.Errorf("failed to delete old sections: %w", err)
	}
	for _, sec := range sorted {
		if _, err := tx.Exec(`
			INSERT INTO document_sections
				(document_id, section_type, text, start_index, end_index, confidence)
			VALUES (?, ?, ?, ?, ?, ?)`,
			documentID, string(sec.Type), sec.Text, sec.StartIndex, sec.EndIndex, sec.Confidence,
		); err != nil {
			return fmt.Errorf("failed to insert section: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit sections: %w", err)
	}
	logging.StoreDebug("replaced %d sections for document %s", len(sorted), documentID)
	return nil
}

// GetSections returns a document's sections ordered by start_index.
// Pass section types to restrict the result; none means all.
func (s *MetadataStore) GetSections(documentID string, sectionTypes ...types.SectionType) ([]types.Section, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q := `SELECT id, document_id, section_type, text, start_index, end_index, confidence
		FROM document_sections WHERE document_id = ?`
	args := []any{documentID}
	if len(sectionTypes) > 0 {
		q += " AND section_type IN (?" + strings.Repeat(",?", len(sectionTypes)-1) + ")"
		for _, t := range sectionTypes {
			args = append(args, string(t))
		}
	}
	q += " ORDER BY start_index"

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query sections: %w", err)
	}
	defer rows.Close()

	var out []types.Section
	for rows.Next() {
		var sec types.Section
		var typ string
		if err := rows.Scan(&sec.ID, &sec.DocumentID, &typ, &sec.Text,
			&sec.StartIndex, &sec.EndIndex, &sec.Confidence); err != nil {
			return nil, err
		}
		sec.Type = types.SectionType(typ)
		out = append(out, sec)
	}
	return out, rows.Err()
}

// SectionCount returns how many sections a document currently has.
func (s *MetadataStore) SectionCount(documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM document_sections WHERE document_id = ?", documentID,
	).Scan(&n)
	return n, err
}

// FullTextLength returns the stored full-text length for the idempotency
// check in the ingest path. Returns 0 for an absent document.
func (s *MetadataStore) FullTextLength(documentID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		"SELECT COALESCE(LENGTH(full_text), 0) FROM documents WHERE id = ?", documentID,
	).Scan(&n)
	if err != nil {
		return 0, nil
	}
	return n, nil
}

// =============================================================================
// EMBEDDING CHUNK BOOKKEEPING
// =============================================================================

// RecordChunk mirrors a stored vector so re-ingest can reconcile.
func (s *MetadataStore) RecordChunk(sectionID int64, vectorID, text string, payload *types.ChunkPayload) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	metaJSON := ""
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal chunk payload: %w", err)
		}
		metaJSON = string(b)
	}
	_, err := s.db.Exec(`
		INSERT INTO embedding_chunks (document_section_id, vector_id, text, metadata)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(vector_id) DO UPDATE SET
			document_section_id = excluded.document_section_id,
			text = excluded.text,
			metadata = excluded.metadata`,
		sectionID, vectorID, text, metaJSON)
	if err != nil {
		return fmt.Errorf("failed to record embedding chunk: %w", err)
	}
	return nil
}

// VectorIDsForDocument lists vector ids registered against a document's
// sections, for delete-before-reingest reconciliation.
func (s *MetadataStore) VectorIDsForDocument(documentID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT c.vector_id
		FROM embedding_chunks c
		JOIN document_sections ds ON ds.id = c.document_section_id
		WHERE ds.document_id = ?`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}
