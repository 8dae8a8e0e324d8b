package store

import (
	"database/sql"
	"fmt"
	"strings"

	"pravnyk/internal/logging"
	"pravnyk/internal/types"
)

// =============================================================================
// LEGISLATION ACTS AND ARTICLES
// =============================================================================

// UpsertAct inserts or refreshes a legislation act row.
func (s *MetadataStore) UpsertAct(act *types.LegislationAct) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if act.Code == "" {
		return types.E(types.KindInvalidArgument, "store.UpsertAct", "act code is required")
	}
	_, err := s.db.Exec(`
		INSERT INTO legislation (code, type, title, short_title, url,
			adoption_date, effective_date, amended_date, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			type = excluded.type,
			title = COALESCE(NULLIF(excluded.title, ''), legislation.title),
			short_title = COALESCE(NULLIF(excluded.short_title, ''), legislation.short_title),
			url = COALESCE(NULLIF(excluded.url, ''), legislation.url),
			adoption_date = COALESCE(NULLIF(excluded.adoption_date, ''), legislation.adoption_date),
			effective_date = COALESCE(NULLIF(excluded.effective_date, ''), legislation.effective_date),
			amended_date = COALESCE(NULLIF(excluded.amended_date, ''), legislation.amended_date),
			status = COALESCE(NULLIF(excluded.status, ''), legislation.status),
			updated_at = CURRENT_TIMESTAMP`,
		act.Code, string(act.Type), act.Title, act.ShortTitle, act.URL,
		act.AdoptionDate, act.EffectiveDate, act.AmendedDate, act.Status)
	if err != nil {
		return fmt.Errorf("failed to upsert act %s: %w", act.Code, err)
	}
	return nil
}

// GetAct loads a legislation act by code.
func (s *MetadataStore) GetAct(code string) (*types.LegislationAct, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var act types.LegislationAct
	var typ string
	err := s.db.QueryRow(`
		SELECT code, type, COALESCE(title,''), COALESCE(short_title,''),
			COALESCE(url,''), COALESCE(adoption_date,''), COALESCE(effective_date,''),
			COALESCE(amended_date,''), COALESCE(status,''), updated_at
		FROM legislation WHERE code = ?`, code).Scan(
		&act.Code, &typ, &act.Title, &act.ShortTitle, &act.URL,
		&act.AdoptionDate, &act.EffectiveDate, &act.AmendedDate, &act.Status,
		&act.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, types.E(types.KindNotFound, "store.GetAct", "act "+code+" not in store")
	}
	if err != nil {
		return nil, err
	}
	act.Type = types.ActType(typ)
	return &act, nil
}

// SaveArticles inserts article versions for an act inside one transaction,
// with a savepoint per article so one malformed article does not sink the
// batch. When an article number already has a current version with a
// different version_date, the old version is demoted; exactly one version
// per (act, number) stays current.
func (s *MetadataStore) SaveArticles(actCode string, articles []types.LegislationArticle) (int, error) {
	const op = "store.SaveArticles"
	s.mu.Lock()
	defer s.mu.Unlock()

	timer := logging.StartTimer(logging.CategoryStore, "SaveArticles")
	defer timer.Stop()

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	saved := 0
	for i := range articles {
		a := &articles[i]
		if a.ArticleNumber == "" || a.Text == "" {
			continue
		}
		if _, err := tx.Exec("SAVEPOINT sp_article"); err != nil {
			return saved, err
		}
		if err := saveOneArticle(tx, actCode, a); err != nil {
			tx.Exec("ROLLBACK TO SAVEPOINT sp_article")
			tx.Exec("RELEASE SAVEPOINT sp_article")
			logging.Get(logging.CategoryStore).Warn("skipping article %s of %s: %v", a.ArticleNumber, actCode, err)
			continue
		}
		if _, err := tx.Exec("RELEASE SAVEPOINT sp_article"); err != nil {
			return saved, err
		}
		saved++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit articles: %w", err)
	}
	logging.Store("saved %d/%d articles for act %s", saved, len(articles), actCode)
	return saved, nil
}

func saveOneArticle(tx *sql.Tx, actCode string, a *types.LegislationArticle) error {
	if _, err := tx.Exec(`
		UPDATE legislation_articles SET is_current = 0
		WHERE act_code = ? AND article_number = ? AND version_date <> ?`,
		actCode, a.ArticleNumber, a.VersionDate); err != nil {
		return err
	}
	res, err := tx.Exec(`
		INSERT INTO legislation_articles
			(act_code, article_number, version_date, section_number, chapter_number,
			 part_number, paragraph, title, text, html, byte_size, is_current)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1)
		ON CONFLICT(act_code, article_number, version_date) DO UPDATE SET
			title = excluded.title,
			text = excluded.text,
			html = excluded.html,
			byte_size = excluded.byte_size,
			is_current = 1`,
		actCode, a.ArticleNumber, a.VersionDate, a.SectionNumber, a.ChapterNumber,
		a.PartNumber, a.Paragraph, a.Title, a.Text, a.HTML, len(a.Text))
	if err != nil {
		return err
	}
	if id, err := res.LastInsertId(); err == nil {
		a.ID = id
	}
	a.ActCode = actCode
	a.IsCurrent = true
	return nil
}

const articleColumns = `id, act_code, article_number, version_date,
	COALESCE(section_number,''), COALESCE(chapter_number,''), COALESCE(part_number,''),
	COALESCE(paragraph,''), COALESCE(title,''), text, COALESCE(html,''), byte_size, is_current`

// GetArticle returns the current version of one article.
func (s *MetadataStore) GetArticle(actCode, articleNumber string) (*types.LegislationArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRow("SELECT "+articleColumns+
		" FROM legislation_articles WHERE act_code = ? AND article_number = ? AND is_current = 1",
		actCode, articleNumber)
	a, err := scanArticle(row)
	if err == sql.ErrNoRows {
		return nil, types.E(types.KindNotFound, "store.GetArticle",
			fmt.Sprintf("article %s of act %s not in store", articleNumber, actCode))
	}
	return a, err
}

// GetArticles returns the current versions of the requested article numbers,
// in store order. Missing numbers are simply absent from the result.
func (s *MetadataStore) GetArticles(actCode string, numbers []string) ([]types.LegislationArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(numbers) == 0 {
		return nil, nil
	}
	q := "SELECT " + articleColumns + ` FROM legislation_articles
		WHERE act_code = ? AND is_current = 1 AND article_number IN (?` +
		strings.Repeat(",?", len(numbers)-1) + ")"
	args := []any{actCode}
	for _, n := range numbers {
		args = append(args, n)
	}
	return s.queryArticles(q, args...)
}

// ListArticles returns every current article of an act ordered numerically
// where possible, for table-of-contents assembly.
func (s *MetadataStore) ListArticles(actCode string) ([]types.LegislationArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.queryArticles("SELECT "+articleColumns+
		` FROM legislation_articles WHERE act_code = ? AND is_current = 1
		ORDER BY CAST(article_number AS INTEGER), article_number`, actCode)
}

// SearchArticlesText does substring search over current article text,
// optionally scoped to one act.
func (s *MetadataStore) SearchArticlesText(query, actCode string, limit int) ([]types.LegislationArticle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if strings.TrimSpace(query) == "" {
		return nil, types.E(types.KindInvalidArgument, "store.SearchArticlesText", "empty query")
	}
	if limit <= 0 {
		limit = 10
	}
	q := "SELECT " + articleColumns + ` FROM legislation_articles
		WHERE is_current = 1 AND (text LIKE ? OR title LIKE ?)`
	args := []any{"%" + query + "%", "%" + query + "%"}
	if actCode != "" {
		q += " AND act_code = ?"
		args = append(args, actCode)
	}
	q += " LIMIT ?"
	args = append(args, limit)
	return s.queryArticles(q, args...)
}

func (s *MetadataStore) queryArticles(q string, args ...any) ([]types.LegislationArticle, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query articles: %w", err)
	}
	defer rows.Close()

	var out []types.LegislationArticle
	for rows.Next() {
		a, err := scanArticle(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

func scanArticle(row rowScanner) (*types.LegislationArticle, error) {
	var a types.LegislationArticle
	var current int
	err := row.Scan(&a.ID, &a.ActCode, &a.ArticleNumber, &a.VersionDate,
		&a.SectionNumber, &a.ChapterNumber, &a.PartNumber, &a.Paragraph,
		&a.Title, &a.Text, &a.HTML, &a.ByteSize, &current)
	if err != nil {
		return nil, err
	}
	a.IsCurrent = current != 0
	return &a, nil
}

// =============================================================================
// LEGISLATION CHUNKS
// =============================================================================

// SaveArticleChunks replaces the chunk rows of one article, returning the
// inserted chunk ids in order.
func (s *MetadataStore) SaveArticleChunks(articleID int64, chunks []string) ([]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("DELETE FROM legislation_chunks WHERE article_id = ?", articleID); err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(chunks))
	for i, text := range chunks {
		res, err := tx.Exec(
			"INSERT INTO legislation_chunks (article_id, chunk_index, text) VALUES (?, ?, ?)",
			articleID, i, text)
		if err != nil {
			return nil, err
		}
		id, _ := res.LastInsertId()
		ids = append(ids, id)
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return ids, nil
}

// BindChunkVector records the vector id produced for a legislation chunk.
func (s *MetadataStore) BindChunkVector(chunkID int64, vectorID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(
		"UPDATE legislation_chunks SET vector_id = ? WHERE id = ?", vectorID, chunkID)
	return err
}

// CurrentArticleCount reports how many current articles an act holds; zero
// means the act has not been ingested.
func (s *MetadataStore) CurrentArticleCount(actCode string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int
	err := s.db.QueryRow(
		"SELECT COUNT(*) FROM legislation_articles WHERE act_code = ? AND is_current = 1",
		actCode).Scan(&n)
	return n, err
}
