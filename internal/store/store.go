// Package store persists the legal corpus. MetadataStore owns all
// relational state (documents, sections, legislation, patterns, citations,
// precedent status, events) in SQLite with FTS5 full-text search.
// VectorStore owns the ANN index, backed by the sqlite-vec vec0 virtual
// table when the extension is compiled in and a brute-force cosine scan
// otherwise.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"pravnyk/internal/logging"
)

// MetadataStore is the single authority for relational rows.
type MetadataStore struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// NewMetadataStore opens (or creates) the SQLite database at path and
// ensures the schema exists.
func NewMetadataStore(path string) (*MetadataStore, error) {
	timer := logging.StartTimer(logging.CategoryStore, "NewMetadataStore")
	defer timer.Stop()

	logging.Store("Initializing MetadataStore at path: %s", path)

	db, err := openSQLite(path)
	if err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to open database at %s: %v", path, err)
		return nil, err
	}

	s := &MetadataStore{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		logging.Get(logging.CategoryStore).Error("Failed to initialize schema: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("MetadataStore initialization complete")
	return s, nil
}

// openSQLite opens a database with the pragmas every store here uses.
// Single connection: SQLite serializes writers anyway, and one connection
// avoids SQLITE_BUSY churn under concurrent ingest.
func openSQLite(path string) (*sql.DB, error) {
	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		logging.StoreDebug("Failed to enable foreign keys: %v", err)
	}
	return db, nil
}

// initialize creates the required tables.
func (s *MetadataStore) initialize() error {
	documentsTable := `
	CREATE TABLE IF NOT EXISTS documents (
		id TEXT PRIMARY KEY,
		zakononline_id TEXT UNIQUE,
		type TEXT NOT NULL,
		title TEXT,
		date TEXT,
		court TEXT,
		chamber TEXT,
		case_number TEXT,
		dispute_category TEXT,
		outcome TEXT,
		full_text TEXT,
		full_text_html TEXT,
		user_id TEXT,
		metadata TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_documents_case_number ON documents(case_number);
	CREATE INDEX IF NOT EXISTS idx_documents_court ON documents(court);
	CREATE INDEX IF NOT EXISTS idx_documents_date ON documents(date);
	CREATE INDEX IF NOT EXISTS idx_documents_user ON documents(user_id);
	CREATE INDEX IF NOT EXISTS idx_documents_created ON documents(created_at);
	`

	sectionsTable := `
	CREATE TABLE IF NOT EXISTS document_sections (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
		section_type TEXT NOT NULL,
		text TEXT NOT NULL,
		start_index INTEGER NOT NULL,
		end_index INTEGER NOT NULL,
		confidence REAL NOT NULL,
		UNIQUE(document_id, start_index)
	);
	CREATE INDEX IF NOT EXISTS idx_sections_document ON document_sections(document_id);
	CREATE INDEX IF NOT EXISTS idx_sections_type ON document_sections(section_type);
	`

	// Bookkeeping mirror of the vector store, so re-ingest can find and
	// delete stale vectors even if the vector db was rebuilt.
	chunksTable := `
	CREATE TABLE IF NOT EXISTS embedding_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		document_section_id INTEGER NOT NULL REFERENCES document_sections(id) ON DELETE CASCADE,
		vector_id TEXT NOT NULL UNIQUE,
		text TEXT NOT NULL,
		metadata TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_section ON embedding_chunks(document_section_id);
	`

	legislationTables := `
	CREATE TABLE IF NOT EXISTS legislation (
		code TEXT PRIMARY KEY,
		type TEXT NOT NULL,
		title TEXT,
		short_title TEXT,
		url TEXT,
		adoption_date TEXT,
		effective_date TEXT,
		amended_date TEXT,
		status TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS legislation_articles (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		act_code TEXT NOT NULL REFERENCES legislation(code) ON DELETE CASCADE,
		article_number TEXT NOT NULL,
		version_date TEXT NOT NULL DEFAULT '',
		section_number TEXT,
		chapter_number TEXT,
		part_number TEXT,
		paragraph TEXT,
		title TEXT,
		text TEXT NOT NULL,
		html TEXT,
		byte_size INTEGER NOT NULL DEFAULT 0,
		is_current INTEGER NOT NULL DEFAULT 1,
		UNIQUE(act_code, article_number, version_date)
	);
	CREATE INDEX IF NOT EXISTS idx_articles_act ON legislation_articles(act_code);
	CREATE INDEX IF NOT EXISTS idx_articles_current ON legislation_articles(act_code, article_number, is_current);

	CREATE TABLE IF NOT EXISTS legislation_chunks (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		article_id INTEGER NOT NULL REFERENCES legislation_articles(id) ON DELETE CASCADE,
		chunk_index INTEGER NOT NULL,
		text TEXT NOT NULL,
		vector_id TEXT UNIQUE,
		UNIQUE(article_id, chunk_index)
	);
	`

	patternsTable := `
	CREATE TABLE IF NOT EXISTS legal_patterns (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		intent TEXT NOT NULL,
		law_articles TEXT,
		centroid TEXT,
		decision_outcome TEXT,
		frequency INTEGER NOT NULL DEFAULT 0,
		confidence REAL NOT NULL DEFAULT 0,
		example_cases TEXT,
		risk_factors TEXT,
		success_arguments TEXT,
		anti_patterns TEXT,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_patterns_intent ON legal_patterns(intent);
	`

	citationsTable := `
	CREATE TABLE IF NOT EXISTS citation_links (
		from_case_id TEXT NOT NULL,
		to_case_id TEXT NOT NULL,
		citation_type TEXT NOT NULL,
		context TEXT,
		section_type TEXT,
		confidence REAL NOT NULL DEFAULT 0,
		UNIQUE(from_case_id, to_case_id, citation_type)
	);
	CREATE INDEX IF NOT EXISTS idx_citations_from ON citation_links(from_case_id);
	CREATE INDEX IF NOT EXISTS idx_citations_to ON citation_links(to_case_id);
	`

	precedentTable := `
	CREATE TABLE IF NOT EXISTS precedent_status (
		case_id TEXT PRIMARY KEY,
		status TEXT NOT NULL,
		reversed_by TEXT,
		overruled_by TEXT,
		distinguished_in TEXT,
		last_checked DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	eventsTable := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		event_type TEXT NOT NULL,
		payload TEXT,
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_events_type ON events(event_type);
	`

	// FTS over title + full_text. unicode61 is the best SQLite ships for
	// Ukrainian; no stemmer, ranked by bm25.
	ftsTable := `
	CREATE VIRTUAL TABLE IF NOT EXISTS documents_fts USING fts5(
		title, full_text,
		content='documents', content_rowid='rowid',
		tokenize='unicode61'
	);
	CREATE TRIGGER IF NOT EXISTS documents_fts_ai AFTER INSERT ON documents BEGIN
		INSERT INTO documents_fts(rowid, title, full_text)
		VALUES (new.rowid, new.title, new.full_text);
	END;
	CREATE TRIGGER IF NOT EXISTS documents_fts_ad AFTER DELETE ON documents BEGIN
		INSERT INTO documents_fts(documents_fts, rowid, title, full_text)
		VALUES ('delete', old.rowid, old.title, old.full_text);
	END;
	CREATE TRIGGER IF NOT EXISTS documents_fts_au AFTER UPDATE ON documents BEGIN
		INSERT INTO documents_fts(documents_fts, rowid, title, full_text)
		VALUES ('delete', old.rowid, old.title, old.full_text);
		INSERT INTO documents_fts(rowid, title, full_text)
		VALUES (new.rowid, new.title, new.full_text);
	END;
	`

	for _, ddl := range []string{
		documentsTable, sectionsTable, chunksTable, legislationTables,
		patternsTable, citationsTable, precedentTable, eventsTable, ftsTable,
	} {
		if _, err := s.db.Exec(ddl); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// Close releases the database handle.
func (s *MetadataStore) Close() error {
	logging.Store("Closing MetadataStore at %s", s.dbPath)
	return s.db.Close()
}

// DB exposes the underlying handle for maintenance tooling.
func (s *MetadataStore) DB() *sql.DB { return s.db }
