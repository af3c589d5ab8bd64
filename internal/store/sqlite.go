package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists postings, artifacts, application records, cache entries
// and quota counters in a single SQLite database.
type SQLiteStore struct {
	db   *sql.DB
	lock *flock.Flock
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS job_postings (
		id               TEXT PRIMARY KEY,
		site             TEXT NOT NULL,
		external_id      TEXT NOT NULL DEFAULT '',
		url              TEXT NOT NULL,
		title            TEXT NOT NULL DEFAULT '',
		company          TEXT NOT NULL DEFAULT '',
		location         TEXT NOT NULL DEFAULT '',
		description      TEXT NOT NULL DEFAULT '',
		posted_at        TEXT,
		status           TEXT NOT NULL,
		first_scraped_at TEXT NOT NULL,
		last_scraped_at  TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_job_postings_site_status ON job_postings(site, status)`,
	`CREATE TABLE IF NOT EXISTS ai_artifacts (
		id                TEXT PRIMARY KEY,
		posting_id        TEXT NOT NULL,
		task              TEXT NOT NULL,
		level             TEXT NOT NULL DEFAULT '',
		payload           TEXT NOT NULL,
		fingerprint       TEXT NOT NULL,
		model_version     TEXT NOT NULL,
		cost_usd          REAL NOT NULL DEFAULT 0,
		prompt_tokens     INTEGER NOT NULL DEFAULT 0,
		completion_tokens INTEGER NOT NULL DEFAULT 0,
		created_at        TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_ai_artifacts_identity ON ai_artifacts(posting_id, task, level, created_at)`,
	`CREATE TABLE IF NOT EXISTS application_records (
		id           TEXT PRIMARY KEY,
		posting_id   TEXT NOT NULL UNIQUE,
		level        TEXT NOT NULL DEFAULT '',
		artifact_ids TEXT NOT NULL DEFAULT '[]',
		status       TEXT NOT NULL,
		transitions  TEXT NOT NULL DEFAULT '[]',
		follow_up_at TEXT,
		notes        TEXT NOT NULL DEFAULT '',
		created_at   TEXT NOT NULL,
		updated_at   TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_application_records_follow_up ON application_records(status, follow_up_at)`,
	`CREATE TABLE IF NOT EXISTS cache_entries (
		fingerprint   TEXT PRIMARY KEY,
		artifact_id   TEXT NOT NULL,
		model_version TEXT NOT NULL,
		created_at    TEXT NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS quota_counters (
		day          TEXT PRIMARY KEY,
		calls        INTEGER NOT NULL DEFAULT 0,
		spend_usd    REAL NOT NULL DEFAULT 0,
		recent_calls TEXT NOT NULL DEFAULT '[]',
		updated_at   TEXT NOT NULL
	)`,
}

// NewSQLiteStore opens (or creates) a SQLite database at dbPath, takes an
// exclusive lock file beside it so only one process writes, and ensures all
// tables exist.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db dir: %w", err)
		}
	}

	lock := flock.New(dbPath + ".lock")
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("locking %s: %w", dbPath, err)
	}
	if !locked {
		return nil, fmt.Errorf("database %s is in use by another process", dbPath)
	}

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)", dbPath)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("opening sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Verify the connection is alive.
	if err := db.Ping(); err != nil {
		db.Close()
		lock.Unlock()
		return nil, fmt.Errorf("pinging sqlite db: %w", err)
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			lock.Unlock()
			return nil, fmt.Errorf("creating schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, lock: lock}, nil
}

// Close closes the underlying database connection and releases the lock file.
func (s *SQLiteStore) Close() error {
	err := s.db.Close()
	if uerr := s.lock.Unlock(); err == nil {
		err = uerr
	}
	return err
}

// timeLayout is fixed width so TEXT columns sort chronologically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func formatNullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullableTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid || s.String == "" {
		return nil, nil
	}
	t, err := parseTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
