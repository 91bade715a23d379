// Package store persists scheduled post jobs, the per-job log stream, and
// application settings in an embedded SQLite database.
//
// Known weakness carried over from the product this replaces: post job rows
// store the account password in plaintext. Encrypt at rest before exposing
// the database file outside a single-user machine.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	_ "modernc.org/sqlite"
)

// Store wraps the SQLite database handle.
type Store struct {
	db *sql.DB
}

// Open opens (creating if necessary) the database at path and applies the
// schema. The busy timeout avoids SQLITE_BUSY when the scheduler and the job
// management commands touch the file concurrently.
func Open(path string) (*Store, error) {
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)", path)
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, errors.Wrap(err, "open sqlite db")
	}
	if err := migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

func migrate(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS post_jobs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		login_id TEXT NOT NULL,
		login_pw TEXT NOT NULL,
		subject TEXT,
		"desc" TEXT NOT NULL,
		scheduled_at TEXT NOT NULL,
		status TEXT NOT NULL,
		result_msg TEXT,
		posted_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		job_id TEXT NOT NULL,
		message TEXT NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_logs_job_id ON logs(job_id);
	CREATE TABLE IF NOT EXISTS settings (
		id INTEGER PRIMARY KEY,
		data TEXT NOT NULL
	);
	`
	if _, err := db.Exec(schema); err != nil {
		return errors.Wrap(err, "migrate schema")
	}
	return nil
}

// Close closes the underlying database handle.
func (s *Store) Close() error {
	return s.db.Close()
}

// Timestamps are stored as RFC3339 TEXT in UTC. Second precision keeps the
// format fixed-width so SQL string comparison orders correctly.
func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339, s)
}
