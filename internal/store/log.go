package store

import (
	"context"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/cockroachdb/errors"
)

// LogEntry is one line in a job's progress log.
type LogEntry struct {
	ID        int64
	JobID     string
	Message   string
	CreatedAt time.Time
}

// AppendLog stores a progress message for the given job. The message is
// sanitized first so malformed text scraped from the page cannot corrupt the
// database encoding.
func (s *Store) AppendLog(ctx context.Context, jobID, message string) error {
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO logs (job_id, message, created_at) VALUES (?, ?, ?)",
		jobID, SanitizeMessage(message), formatTime(time.Now()))
	return errors.Wrap(err, "append log")
}

// GetLogs returns a job's log lines, newest first.
func (s *Store) GetLogs(ctx context.Context, jobID string) ([]LogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, job_id, message, created_at FROM logs WHERE job_id = ? ORDER BY id DESC", jobID)
	if err != nil {
		return nil, errors.Wrap(err, "get logs")
	}
	defer rows.Close()

	var entries []LogEntry
	for rows.Next() {
		var (
			e       LogEntry
			created string
		)
		if err := rows.Scan(&e.ID, &e.JobID, &e.Message, &created); err != nil {
			return nil, errors.Wrap(err, "scan log entry")
		}
		if e.CreatedAt, err = parseTime(created); err != nil {
			return nil, errors.Wrap(err, "parse log created_at")
		}
		entries = append(entries, e)
	}
	return entries, errors.Wrap(rows.Err(), "iterate logs")
}

// SanitizeMessage strips control characters (except tab and newline),
// unpaired surrogates, and invalid UTF-8 sequences from a log message.
func SanitizeMessage(s string) string {
	if utf8.ValidString(s) && !strings.ContainsFunc(s, isDisallowedRune) {
		return s
	}
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r == utf8.RuneError || isDisallowedRune(r) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isDisallowedRune(r rune) bool {
	if r == '\n' || r == '\t' {
		return false
	}
	if unicode.IsControl(r) {
		return true
	}
	return r >= 0xD800 && r <= 0xDFFF
}
