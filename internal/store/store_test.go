package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedJobs(t *testing.T, s *Store, jobs ...PostJob) []PostJob {
	t.Helper()
	_, err := s.CreatePostJobs(context.Background(), jobs)
	require.NoError(t, err)
	all, err := s.ListPostJobs(context.Background())
	require.NoError(t, err)
	return all
}

func TestCreateAndListPostJobs(t *testing.T) {
	s := newTestStore(t)
	when := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	n, err := s.CreatePostJobs(context.Background(), []PostJob{
		{LoginID: "acct", LoginPW: "pw", Subject: "hello", Desc: "first body", ScheduledAt: when},
		{LoginID: "acct", LoginPW: "pw", Desc: "second body", ScheduledAt: when.Add(time.Hour)},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	jobs, err := s.ListPostJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)

	// Newest first.
	assert.Equal(t, "second body", jobs[0].Desc)
	assert.Empty(t, jobs[0].Subject)
	assert.Equal(t, StatusPending, jobs[0].Status)
	assert.Equal(t, "hello", jobs[1].Subject)
	assert.True(t, jobs[1].ScheduledAt.Equal(when))
	assert.Nil(t, jobs[1].PostedAt)
}

func TestListDue(t *testing.T) {
	s := newTestStore(t)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	seedJobs(t, s,
		PostJob{LoginID: "a", LoginPW: "p", Desc: "past", ScheduledAt: now.Add(-time.Hour)},
		PostJob{LoginID: "a", LoginPW: "p", Desc: "exact", ScheduledAt: now},
		PostJob{LoginID: "a", LoginPW: "p", Desc: "future", ScheduledAt: now.Add(time.Minute)},
	)

	due, err := s.ListDue(context.Background(), now)
	require.NoError(t, err)
	require.Len(t, due, 2)
	assert.Equal(t, "past", due[0].Desc)
	assert.Equal(t, "exact", due[1].Desc)
}

func TestStatusTransitions(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC().Truncate(time.Second)
	jobs := seedJobs(t, s,
		PostJob{LoginID: "a", LoginPW: "p", Desc: "one", ScheduledAt: now},
		PostJob{LoginID: "a", LoginPW: "p", Desc: "two", ScheduledAt: now},
	)

	ids := []int64{jobs[0].ID, jobs[1].ID}
	require.NoError(t, s.MarkProcessing(context.Background(), ids))

	due, err := s.ListDue(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Empty(t, due, "processing jobs are not due")

	require.NoError(t, s.MarkCompleted(context.Background(), ids[0], now))
	require.NoError(t, s.MarkFailed(context.Background(), ids[1:], "boom"))

	done, err := s.GetPostJob(context.Background(), ids[0])
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.PostedAt)
	assert.True(t, done.PostedAt.Equal(now))

	failed, err := s.GetPostJob(context.Background(), ids[1])
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, failed.Status)
	assert.Equal(t, "boom", failed.ResultMsg)
}

func TestRetryPostJob(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	jobs := seedJobs(t, s, PostJob{LoginID: "a", LoginPW: "p", Desc: "x", ScheduledAt: now})
	id := jobs[0].ID

	// Only failed jobs can be retried.
	require.Error(t, s.RetryPostJob(context.Background(), id))

	require.NoError(t, s.MarkFailed(context.Background(), []int64{id}, "boom"))
	require.NoError(t, s.RetryPostJob(context.Background(), id))

	j, err := s.GetPostJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, j.Status)
	assert.Empty(t, j.ResultMsg, "retry clears the failure message")
}

func TestDeletePostJob(t *testing.T) {
	s := newTestStore(t)
	jobs := seedJobs(t, s, PostJob{LoginID: "a", LoginPW: "p", Desc: "x", ScheduledAt: time.Now()})

	require.NoError(t, s.DeletePostJob(context.Background(), jobs[0].ID))
	require.Error(t, s.DeletePostJob(context.Background(), jobs[0].ID))

	_, err := s.GetPostJob(context.Background(), jobs[0].ID)
	require.Error(t, err)
}

func TestFailProcessing(t *testing.T) {
	s := newTestStore(t)
	now := time.Now().UTC()
	jobs := seedJobs(t, s,
		PostJob{LoginID: "a", LoginPW: "p", Desc: "stranded", ScheduledAt: now},
		PostJob{LoginID: "a", LoginPW: "p", Desc: "untouched", ScheduledAt: now},
	)
	// Newest first, so jobs[1] is "stranded".
	require.NoError(t, s.MarkProcessing(context.Background(), []int64{jobs[1].ID}))

	n, err := s.FailProcessing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	j, err := s.GetPostJob(context.Background(), jobs[1].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusFailed, j.Status)
	assert.Equal(t, OrphanResultMsg, j.ResultMsg)

	other, err := s.GetPostJob(context.Background(), jobs[0].ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPending, other.Status)
}

func TestLogs(t *testing.T) {
	s := newTestStore(t)
	require.NoError(t, s.AppendLog(context.Background(), "run-1", "first"))
	require.NoError(t, s.AppendLog(context.Background(), "run-1", "second"))
	require.NoError(t, s.AppendLog(context.Background(), "run-2", "other run"))

	logs, err := s.GetLogs(context.Background(), "run-1")
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, "second", logs[0].Message, "newest first")
	assert.Equal(t, "first", logs[1].Message)
}

func TestAppSettings(t *testing.T) {
	s := newTestStore(t)

	settings, err := s.GetAppSettings(context.Background())
	require.NoError(t, err)
	assert.True(t, settings.ShowBrowserWindow, "default shows the browser window")

	settings.ShowBrowserWindow = false
	require.NoError(t, s.SetAppSettings(context.Background(), settings))

	settings, err = s.GetAppSettings(context.Background())
	require.NoError(t, err)
	assert.False(t, settings.ShowBrowserWindow)
}

func TestSanitizeMessage(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"clean", "좋아요 완료: [게시물...]", "좋아요 완료: [게시물...]"},
		{"keeps newline and tab", "a\n\tb", "a\n\tb"},
		{"strips control chars", "a\x00b\x1bc", "abc"},
		{"strips invalid utf8", "ok\xff\xfeok", "okok"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SanitizeMessage(tt.in))
		})
	}
}

func FuzzSanitizeMessage(f *testing.F) {
	f.Add("plain message")
	f.Add("댓글 작성 실패")
	f.Add("a\x00b�c")
	f.Add(string([]byte{0xed, 0xa0, 0x80}))
	f.Fuzz(func(t *testing.T, in string) {
		out := SanitizeMessage(in)
		if !utf8.ValidString(out) {
			t.Fatalf("sanitized output is not valid UTF-8: %q", out)
		}
		for _, r := range out {
			if isDisallowedRune(r) {
				t.Fatalf("disallowed rune %U survived sanitization", r)
			}
		}
	})
}
