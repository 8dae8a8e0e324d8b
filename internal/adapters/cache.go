// Package adapters talks to the external legal sources: the court-decision
// search API, the public legislation HTML endpoint, and uploaded files.
// Every adapter goes through a shared rate limiter and an optional local
// cache of fetched raw bytes.
package adapters

import (
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"pravnyk/internal/logging"
)

// =============================================================================
// FETCH CACHE
// =============================================================================

// FetchCache persists raw fetched bytes keyed by URL hash, so repeated
// ingests of the same document or act do not re-hit the upstream.
type FetchCache struct {
	db *sql.DB
	mu sync.Mutex
}

// NewFetchCache opens (or creates) the cache database at path.
func NewFetchCache(path string) (*FetchCache, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open cache database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.Exec("PRAGMA journal_mode = WAL")
	db.Exec("PRAGMA busy_timeout = 5000")

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS fetch_cache (
			url_hash TEXT PRIMARY KEY,
			url TEXT NOT NULL,
			body BLOB NOT NULL,
			fetched_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create cache table: %w", err)
	}
	return &FetchCache{db: db}, nil
}

// Get returns the cached body for a URL if it is younger than maxAge.
// A zero maxAge means any age is acceptable.
func (c *FetchCache) Get(url string, maxAge time.Duration) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var body []byte
	var fetchedAt time.Time
	err := c.db.QueryRow(
		"SELECT body, fetched_at FROM fetch_cache WHERE url_hash = ?",
		hashURL(url)).Scan(&body, &fetchedAt)
	if err != nil {
		return nil, false
	}
	if maxAge > 0 && time.Since(fetchedAt) > maxAge {
		return nil, false
	}
	logging.AdaptersDebug("cache hit for %s (%d bytes)", url, len(body))
	return body, true
}

// Put stores a fetched body.
func (c *FetchCache) Put(url string, body []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.db.Exec(`
		INSERT INTO fetch_cache (url_hash, url, body, fetched_at)
		VALUES (?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(url_hash) DO UPDATE SET
			body = excluded.body,
			fetched_at = CURRENT_TIMESTAMP`,
		hashURL(url), url, body)
	if err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (c *FetchCache) Close() error { return c.db.Close() }

func hashURL(url string) string {
	sum := sha256.Sum256([]byte(url))
	return hex.EncodeToString(sum[:])
}
