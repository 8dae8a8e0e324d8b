package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"pravnyk/internal/types"
)

// =============================================================================
// CITATION LINKS
// =============================================================================

// AddCitation records a directed case-to-case citation edge. The
// (from, to, type) triple is unique; re-adding refreshes context and
// confidence.
func (s *MetadataStore) AddCitation(link *types.CitationLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if link.FromDocID == "" || link.ToDocID == "" || link.Type == "" {
		return types.E(types.KindInvalidArgument, "store.AddCitation", "from, to and type are required")
	}
	_, err := s.db.Exec(`
		INSERT INTO citation_links
			(from_case_id, to_case_id, citation_type, context, section_type, confidence)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(from_case_id, to_case_id, citation_type) DO UPDATE SET
			context = excluded.context,
			section_type = excluded.section_type,
			confidence = excluded.confidence`,
		link.FromDocID, link.ToDocID, link.Type, link.Context,
		string(link.SectionType), link.Confidence)
	if err != nil {
		return fmt.Errorf("failed to add citation: %w", err)
	}
	return nil
}

// CitationsFrom lists the outgoing citation edges of a document.
func (s *MetadataStore) CitationsFrom(docID string) ([]types.CitationLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryCitations("from_case_id = ?", docID)
}

// CitationsTo lists the incoming citation edges of a document.
func (s *MetadataStore) CitationsTo(docID string) ([]types.CitationLink, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.queryCitations("to_case_id = ?", docID)
}

func (s *MetadataStore) queryCitations(where string, args ...any) ([]types.CitationLink, error) {
	rows, err := s.db.Query(`
		SELECT from_case_id, to_case_id, citation_type, COALESCE(context,''),
			COALESCE(section_type,''), confidence
		FROM citation_links WHERE `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query citations: %w", err)
	}
	defer rows.Close()

	var out []types.CitationLink
	for rows.Next() {
		var l types.CitationLink
		var sectionType string
		if err := rows.Scan(&l.FromDocID, &l.ToDocID, &l.Type, &l.Context,
			&sectionType, &l.Confidence); err != nil {
			return nil, err
		}
		l.SectionType = types.SectionType(sectionType)
		out = append(out, l)
	}
	return out, rows.Err()
}

// =============================================================================
// PRECEDENT STATUS
// =============================================================================

// SetPrecedentStatus upserts the precedent standing of a decision.
func (s *MetadataStore) SetPrecedentStatus(ps *types.PrecedentStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ps.DocumentID == "" {
		return types.E(types.KindInvalidArgument, "store.SetPrecedentStatus", "document id is required")
	}
	reversed, _ := json.Marshal(ps.ReversedBy)
	overruled, _ := json.Marshal(ps.OverruledBy)
	distinguished, _ := json.Marshal(ps.DistinguishedIn)

	_, err := s.db.Exec(`
		INSERT INTO precedent_status
			(case_id, status, reversed_by, overruled_by, distinguished_in, last_checked)
		VALUES (?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(case_id) DO UPDATE SET
			status = excluded.status,
			reversed_by = excluded.reversed_by,
			overruled_by = excluded.overruled_by,
			distinguished_in = excluded.distinguished_in,
			last_checked = CURRENT_TIMESTAMP`,
		ps.DocumentID, string(ps.Status), string(reversed), string(overruled), string(distinguished))
	if err != nil {
		return fmt.Errorf("failed to set precedent status: %w", err)
	}
	return nil
}

// GetPrecedentStatus returns the stored standing, defaulting to active for
// decisions never analyzed.
func (s *MetadataStore) GetPrecedentStatus(docID string) (*types.PrecedentStatus, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ps types.PrecedentStatus
	var status, reversed, overruled, distinguished string
	err := s.db.QueryRow(`
		SELECT case_id, status, COALESCE(reversed_by,'[]'), COALESCE(overruled_by,'[]'),
			COALESCE(distinguished_in,'[]'), last_checked
		FROM precedent_status WHERE case_id = ?`, docID).Scan(
		&ps.DocumentID, &status, &reversed, &overruled, &distinguished, &ps.LastChecked)
	if err == sql.ErrNoRows {
		return &types.PrecedentStatus{DocumentID: docID, Status: types.PrecedentActive}, nil
	}
	if err != nil {
		return nil, err
	}
	ps.Status = types.PrecedentState(status)
	json.Unmarshal([]byte(reversed), &ps.ReversedBy)
	json.Unmarshal([]byte(overruled), &ps.OverruledBy)
	json.Unmarshal([]byte(distinguished), &ps.DistinguishedIn)
	return &ps, nil
}

// =============================================================================
// EVENTS
// =============================================================================

// AppendEvent writes one row to the append-only audit trail.
func (s *MetadataStore) AppendEvent(eventType string, payload any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var payloadJSON string
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal event payload: %w", err)
		}
		payloadJSON = string(b)
	}
	_, err := s.db.Exec(
		"INSERT INTO events (event_type, payload) VALUES (?, ?)",
		eventType, payloadJSON)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

// RecentEvents returns the newest events, optionally filtered by type.
func (s *MetadataStore) RecentEvents(eventType string, limit int) ([]types.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	q := "SELECT id, event_type, COALESCE(payload,''), created_at FROM events"
	args := []any{}
	if eventType != "" {
		q += " WHERE event_type = ?"
		args = append(args, eventType)
	}
	q += " ORDER BY id DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var out []types.Event
	for rows.Next() {
		var e types.Event
		var payload string
		if err := rows.Scan(&e.ID, &e.Type, &payload, &e.CreatedAt); err != nil {
			return nil, err
		}
		if payload != "" {
			e.Payload = json.RawMessage(payload)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
