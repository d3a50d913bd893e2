package intentcache

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"voxnav/internal/logging"
	"voxnav/internal/types"

	_ "modernc.org/sqlite"
)

// SQLitePersister snapshots learned patterns to a user-local SQLite database
// so they survive restarts. Writes replace the full snapshot; patterns are
// small and the sweep interval is minutes, so incremental updates are not
// worth the bookkeeping.
type SQLitePersister struct {
	db   *sql.DB
	path string
	mu   sync.Mutex
}

const patternsSchema = `
CREATE TABLE IF NOT EXISTS patterns (
	phrase       TEXT PRIMARY KEY,
	intent       TEXT NOT NULL,
	confidence   REAL NOT NULL,
	occurrences  INTEGER NOT NULL,
	contexts     TEXT NOT NULL DEFAULT '{}',
	users        TEXT NOT NULL DEFAULT '{}',
	success_rate REAL NOT NULL,
	last_seen    INTEGER NOT NULL
);`

// NewSQLitePersister creates or opens the pattern database at path.
func NewSQLitePersister(path string) (*SQLitePersister, error) {
	if path == "" {
		return nil, fmt.Errorf("database path required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to verify database connection: %w", err)
	}
	if _, err := db.Exec(patternsSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	logging.Cache("pattern database opened at %s", path)
	return &SQLitePersister{db: db, path: path}, nil
}

// SavePatterns replaces the stored snapshot with the given patterns.
func (p *SQLitePersister) SavePatterns(patterns []Pattern) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	tx, err := p.db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin snapshot: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM patterns`); err != nil {
		return fmt.Errorf("failed to clear patterns: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO patterns (phrase, intent, confidence, occurrences, contexts, users, success_rate, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i := range patterns {
		pat := &patterns[i]
		contexts, err := json.Marshal(pat.Contexts)
		if err != nil {
			return fmt.Errorf("failed to encode contexts for %q: %w", pat.Phrase, err)
		}
		users, err := json.Marshal(pat.Users)
		if err != nil {
			return fmt.Errorf("failed to encode users for %q: %w", pat.Phrase, err)
		}
		if _, err := stmt.Exec(pat.Phrase, string(pat.Intent), pat.Confidence, pat.Occurrences,
			string(contexts), string(users), pat.SuccessRate, pat.LastSeen.UnixMilli()); err != nil {
			return fmt.Errorf("failed to insert pattern %q: %w", pat.Phrase, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit snapshot: %w", err)
	}
	logging.CacheDebug("persisted %d patterns to %s", len(patterns), p.path)
	return nil
}

// LoadPatterns reads the stored snapshot. Rows that fail to decode are
// skipped rather than failing the whole restore.
func (p *SQLitePersister) LoadPatterns() ([]Pattern, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	rows, err := p.db.Query(`
		SELECT phrase, intent, confidence, occurrences, contexts, users, success_rate, last_seen
		FROM patterns`)
	if err != nil {
		return nil, fmt.Errorf("failed to query patterns: %w", err)
	}
	defer rows.Close()

	var out []Pattern
	for rows.Next() {
		var pat Pattern
		var intent, contexts, users string
		var lastSeen int64
		if err := rows.Scan(&pat.Phrase, &intent, &pat.Confidence, &pat.Occurrences,
			&contexts, &users, &pat.SuccessRate, &lastSeen); err != nil {
			logging.Get(logging.CategoryCache).Warn("skipping unreadable pattern row: %v", err)
			continue
		}
		if !types.IsValidIntent(intent) {
			logging.Get(logging.CategoryCache).Warn("skipping pattern %q with stale intent %q", pat.Phrase, intent)
			continue
		}
		pat.Intent = types.IntentCategory(intent)
		pat.LastSeen = time.UnixMilli(lastSeen)
		if err := json.Unmarshal([]byte(contexts), &pat.Contexts); err != nil {
			pat.Contexts = map[string]int{}
		}
		if err := json.Unmarshal([]byte(users), &pat.Users); err != nil {
			pat.Users = map[string]int{}
		}
		out = append(out, pat)
	}
	return out, rows.Err()
}

// Close closes the underlying database.
func (p *SQLitePersister) Close() error {
	return p.db.Close()
}
