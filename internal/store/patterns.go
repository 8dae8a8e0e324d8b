package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"pravnyk/internal/types"
)

// =============================================================================
// LEGAL PATTERNS
// =============================================================================

// UpsertPattern inserts a pattern or refreshes the existing one for the
// same intent and article set. Confidence is recomputed from frequency via
// the tiered rule so the two can never drift apart.
func (s *MetadataStore) UpsertPattern(p *types.LegalPattern) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.Intent == "" {
		return 0, types.E(types.KindInvalidArgument, "store.UpsertPattern", "pattern intent is required")
	}
	p.Confidence = types.TieredConfidence(p.Frequency)

	articles, _ := json.Marshal(p.LawArticles)
	centroid, _ := json.Marshal(p.Centroid)
	examples, _ := json.Marshal(p.ExampleCases)
	risks, _ := json.Marshal(p.RiskFactors)
	successes, _ := json.Marshal(p.SuccessArguments)
	anti, _ := json.Marshal(p.AntiPatterns)

	if p.ID != 0 {
		_, err := s.db.Exec(`
			UPDATE legal_patterns SET
				intent = ?, law_articles = ?, centroid = ?, decision_outcome = ?,
				frequency = ?, confidence = ?, example_cases = ?, risk_factors = ?,
				success_arguments = ?, anti_patterns = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			p.Intent, string(articles), string(centroid), string(p.DecisionOutcome),
			p.Frequency, p.Confidence, string(examples), string(risks),
			string(successes), string(anti), p.ID)
		if err != nil {
			return 0, fmt.Errorf("failed to update pattern: %w", err)
		}
		return p.ID, nil
	}

	res, err := s.db.Exec(`
		INSERT INTO legal_patterns
			(intent, law_articles, centroid, decision_outcome, frequency, confidence,
			 example_cases, risk_factors, success_arguments, anti_patterns)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.Intent, string(articles), string(centroid), string(p.DecisionOutcome),
		p.Frequency, p.Confidence, string(examples), string(risks),
		string(successes), string(anti))
	if err != nil {
		return 0, fmt.Errorf("failed to insert pattern: %w", err)
	}
	id, _ := res.LastInsertId()
	p.ID = id
	return id, nil
}

// PatternsByIntent returns every stored pattern for an intent.
func (s *MetadataStore) PatternsByIntent(intent string) ([]types.LegalPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT id, intent, COALESCE(law_articles,'[]'), COALESCE(centroid,'[]'),
			COALESCE(decision_outcome,''), frequency, confidence,
			COALESCE(example_cases,'[]'), COALESCE(risk_factors,'[]'),
			COALESCE(success_arguments,'[]'), COALESCE(anti_patterns,'[]'), updated_at
		FROM legal_patterns WHERE intent = ?`, intent)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var out []types.LegalPattern
	for rows.Next() {
		p, err := scanPattern(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}

// GetPattern loads one pattern by id.
func (s *MetadataStore) GetPattern(id int64) (*types.LegalPattern, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow(`
		SELECT id, intent, COALESCE(law_articles,'[]'), COALESCE(centroid,'[]'),
			COALESCE(decision_outcome,''), frequency, confidence,
			COALESCE(example_cases,'[]'), COALESCE(risk_factors,'[]'),
			COALESCE(success_arguments,'[]'), COALESCE(anti_patterns,'[]'), updated_at
		FROM legal_patterns WHERE id = ?`, id)
	p, err := scanPattern(row)
	if err == sql.ErrNoRows {
		return nil, types.E(types.KindNotFound, "store.GetPattern", "pattern not found")
	}
	return p, err
}

func scanPattern(row rowScanner) (*types.LegalPattern, error) {
	var p types.LegalPattern
	var articles, centroid, outcome, examples, risks, successes, anti string
	err := row.Scan(&p.ID, &p.Intent, &articles, &centroid, &outcome,
		&p.Frequency, &p.Confidence, &examples, &risks, &successes, &anti,
		&p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	p.DecisionOutcome = types.PatternOutcome(outcome)
	json.Unmarshal([]byte(articles), &p.LawArticles)
	json.Unmarshal([]byte(centroid), &p.Centroid)
	json.Unmarshal([]byte(examples), &p.ExampleCases)
	json.Unmarshal([]byte(risks), &p.RiskFactors)
	json.Unmarshal([]byte(successes), &p.SuccessArguments)
	json.Unmarshal([]byte(anti), &p.AntiPatterns)
	return &p, nil
}
