package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
)

// Job status lifecycle: pending -> processing -> completed | failed.
// Failed jobs may move back to pending through Retry.
const (
	StatusPending    = "pending"
	StatusProcessing = "processing"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// OrphanResultMsg is written to jobs stranded in the processing state by an
// unclean shutdown.
const OrphanResultMsg = "작업 중 프로그램 종료됨"

// PostJob is one scheduled content posting task.
type PostJob struct {
	ID          int64
	LoginID     string
	LoginPW     string
	Subject     string
	Desc        string
	ScheduledAt time.Time
	Status      string
	ResultMsg   string
	PostedAt    *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

const postJobColumns = `id, login_id, login_pw, subject, "desc", scheduled_at, status, result_msg, posted_at, created_at, updated_at`

func scanPostJob(row interface{ Scan(...any) error }) (PostJob, error) {
	var (
		j                             PostJob
		subject, resultMsg, postedAt  sql.NullString
		scheduledAt, created, updated string
	)
	err := row.Scan(&j.ID, &j.LoginID, &j.LoginPW, &subject, &j.Desc,
		&scheduledAt, &j.Status, &resultMsg, &postedAt, &created, &updated)
	if err != nil {
		return PostJob{}, err
	}
	j.Subject = subject.String
	j.ResultMsg = resultMsg.String
	if j.ScheduledAt, err = parseTime(scheduledAt); err != nil {
		return PostJob{}, errors.Wrap(err, "parse scheduled_at")
	}
	if postedAt.Valid {
		t, err := parseTime(postedAt.String)
		if err != nil {
			return PostJob{}, errors.Wrap(err, "parse posted_at")
		}
		j.PostedAt = &t
	}
	if j.CreatedAt, err = parseTime(created); err != nil {
		return PostJob{}, errors.Wrap(err, "parse created_at")
	}
	if j.UpdatedAt, err = parseTime(updated); err != nil {
		return PostJob{}, errors.Wrap(err, "parse updated_at")
	}
	return j, nil
}

// CreatePostJobs inserts the given jobs in a single transaction with status
// pending. Callers are expected to have filtered out rows without body text
// or a scheduled time.
func (s *Store) CreatePostJobs(ctx context.Context, jobs []PostJob) (int64, error) {
	if len(jobs) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.Wrap(err, "begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	now := formatTime(time.Now())
	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO post_jobs (login_id, login_pw, subject, "desc", scheduled_at, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return 0, errors.Wrap(err, "prepare insert")
	}
	defer stmt.Close()

	var count int64
	for _, j := range jobs {
		subject := sql.NullString{String: j.Subject, Valid: j.Subject != ""}
		_, err := stmt.ExecContext(ctx, j.LoginID, j.LoginPW, subject, j.Desc,
			formatTime(j.ScheduledAt), StatusPending, now, now)
		if err != nil {
			return 0, errors.Wrap(err, "insert post job")
		}
		count++
	}
	if err := tx.Commit(); err != nil {
		return 0, errors.Wrap(err, "commit tx")
	}
	return count, nil
}

// ListPostJobs returns every job, newest first.
func (s *Store) ListPostJobs(ctx context.Context) ([]PostJob, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+postJobColumns+" FROM post_jobs ORDER BY id DESC")
	if err != nil {
		return nil, errors.Wrap(err, "list post jobs")
	}
	defer rows.Close()
	return collectPostJobs(rows)
}

// ListDue returns pending jobs whose scheduled time is at or before now,
// oldest schedule first.
func (s *Store) ListDue(ctx context.Context, now time.Time) ([]PostJob, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+postJobColumns+" FROM post_jobs WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at, id",
		StatusPending, formatTime(now))
	if err != nil {
		return nil, errors.Wrap(err, "list due jobs")
	}
	defer rows.Close()
	return collectPostJobs(rows)
}

func collectPostJobs(rows *sql.Rows) ([]PostJob, error) {
	var jobs []PostJob
	for rows.Next() {
		j, err := scanPostJob(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan post job")
		}
		jobs = append(jobs, j)
	}
	return jobs, errors.Wrap(rows.Err(), "iterate post jobs")
}

// GetPostJob loads a single job by id.
func (s *Store) GetPostJob(ctx context.Context, id int64) (PostJob, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+postJobColumns+" FROM post_jobs WHERE id = ?", id)
	j, err := scanPostJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return PostJob{}, errors.Wrapf(err, "post job %d not found", id)
	}
	if err != nil {
		return PostJob{}, errors.Wrap(err, "get post job")
	}
	return j, nil
}

// MarkProcessing moves the given jobs to the processing state.
func (s *Store) MarkProcessing(ctx context.Context, ids []int64) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+2)
	args = append(args, StatusProcessing, formatTime(time.Now()))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE post_jobs SET status = ?, updated_at = ? WHERE id IN ("+placeholders+")", args...)
	return errors.Wrap(err, "mark processing")
}

// MarkCompleted records a successful post.
func (s *Store) MarkCompleted(ctx context.Context, id int64, postedAt time.Time) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE post_jobs SET status = ?, result_msg = NULL, posted_at = ?, updated_at = ? WHERE id = ?",
		StatusCompleted, formatTime(postedAt), formatTime(time.Now()), id)
	return errors.Wrap(err, "mark completed")
}

// MarkFailed records a failure message on the given jobs.
func (s *Store) MarkFailed(ctx context.Context, ids []int64, msg string) error {
	if len(ids) == 0 {
		return nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, 0, len(ids)+3)
	args = append(args, StatusFailed, msg, formatTime(time.Now()))
	for _, id := range ids {
		args = append(args, id)
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE post_jobs SET status = ?, result_msg = ?, updated_at = ? WHERE id IN ("+placeholders+")", args...)
	return errors.Wrap(err, "mark failed")
}

// RetryPostJob moves a failed job back to pending and clears its result
// message. Jobs in any other state are left untouched.
func (s *Store) RetryPostJob(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE post_jobs SET status = ?, result_msg = NULL, updated_at = ? WHERE id = ? AND status = ?",
		StatusPending, formatTime(time.Now()), id, StatusFailed)
	if err != nil {
		return errors.Wrap(err, "retry post job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "retry rows affected")
	}
	if n == 0 {
		return errors.Newf("post job %d is not in the failed state", id)
	}
	return nil
}

// DeletePostJob removes a job regardless of state.
func (s *Store) DeletePostJob(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM post_jobs WHERE id = ?", id)
	if err != nil {
		return errors.Wrap(err, "delete post job")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return errors.Wrap(err, "delete rows affected")
	}
	if n == 0 {
		return errors.Newf("post job %d not found", id)
	}
	return nil
}

// FailProcessing fails every job stranded in the processing state. Called at
// startup so jobs interrupted by an unclean shutdown do not stay stuck.
func (s *Store) FailProcessing(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE post_jobs SET status = ?, result_msg = ?, updated_at = ? WHERE status = ?",
		StatusFailed, OrphanResultMsg, formatTime(time.Now()), StatusProcessing)
	if err != nil {
		return 0, errors.Wrap(err, "fail processing jobs")
	}
	n, err := res.RowsAffected()
	return n, errors.Wrap(err, "fail processing rows affected")
}
