package automation

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/pyramid-ing/tmgkfl/internal/config"
	"github.com/pyramid-ing/tmgkfl/internal/retry"
	"github.com/pyramid-ing/tmgkfl/internal/threads"
)

type memSink struct {
	mu    sync.Mutex
	lines []string
}

func (m *memSink) AppendLog(_ context.Context, _ string, message string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lines = append(m.lines, message)
	return nil
}

// fakeDriver replays scripted rounds of search results and records every
// action call in order.
type fakeDriver struct {
	rounds [][]threads.Article

	followed map[string]bool
	liked    map[string]bool
	reposted map[string]bool

	loginErr   error
	followErr  map[string]error
	commentErr map[string]error

	articleCalls int
	scrolls      int
	calls        []string
}

func (d *fakeDriver) Login(_ context.Context, _, _ string) error { return d.loginErr }
func (d *fakeDriver) GotoSearch(context.Context) error           { return nil }
func (d *fakeDriver) Search(context.Context, string) error       { return nil }
func (d *fakeDriver) WaitArticles(context.Context) error         { return nil }
func (d *fakeDriver) ScrollDown(context.Context) error {
	d.scrolls++
	return nil
}

func (d *fakeDriver) Articles(context.Context) ([]threads.Article, error) {
	i := d.articleCalls
	d.articleCalls++
	if i >= len(d.rounds) {
		i = len(d.rounds) - 1
	}
	return d.rounds[i], nil
}

func (d *fakeDriver) IsFollowed(_ context.Context, a threads.Article) (bool, error) {
	return d.followed[a.ID], nil
}

func (d *fakeDriver) IsLiked(_ context.Context, a threads.Article) (bool, error) {
	return d.liked[a.ID], nil
}

func (d *fakeDriver) IsReposted(_ context.Context, a threads.Article) (bool, error) {
	return d.reposted[a.ID], nil
}

func (d *fakeDriver) Follow(_ context.Context, a threads.Article) error {
	d.calls = append(d.calls, "follow:"+a.ID)
	if err := d.followErr[a.ID]; err != nil {
		return err
	}
	return nil
}

func (d *fakeDriver) Like(_ context.Context, a threads.Article) error {
	d.calls = append(d.calls, "like:"+a.ID)
	return nil
}

func (d *fakeDriver) Repost(_ context.Context, a threads.Article) error {
	d.calls = append(d.calls, "repost:"+a.ID)
	return nil
}

func (d *fakeDriver) Comment(_ context.Context, a threads.Article, _ string) error {
	d.calls = append(d.calls, "comment:"+a.ID)
	if err := d.commentErr[a.ID]; err != nil {
		return err
	}
	return nil
}

func articleN(n int) threads.Article {
	return threads.Article{ID: fmt.Sprintf("id-%d", n), Excerpt: fmt.Sprintf("excerpt number %d", n)}
}

func newTestOrchestrator(d Driver, sink LogSink) *Orchestrator {
	cfg := config.AutomationConfig{
		MaxScrollRounds:  3,
		ActionsPerMinute: 6000,
	}
	o := New(d, sink, cfg, zap.NewNop())
	o.rng = rand.New(rand.NewSource(1))
	o.sleep = func(ctx context.Context, _ time.Duration) error { return ctx.Err() }
	return o
}

func baseRunConfig() RunConfig {
	return RunConfig{
		JobID:    "run-1",
		LoginID:  "acct",
		LoginPW:  "pw",
		Keyword:  "golang",
		MinDelay: 1,
		MaxDelay: 2,
		MaxCount: 3,
		Messages: []string{"좋은 글 감사합니다"},
		Follow:   true,
	}
}

func TestRunConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*RunConfig)
		wantErr bool
	}{
		{"valid", func(*RunConfig) {}, false},
		{"missing login", func(c *RunConfig) { c.LoginID = " " }, true},
		{"missing keyword", func(c *RunConfig) { c.Keyword = "" }, true},
		{"negative min delay", func(c *RunConfig) { c.MinDelay = -1 }, true},
		{"max below min", func(c *RunConfig) { c.MinDelay = 5; c.MaxDelay = 2 }, true},
		{"zero target", func(c *RunConfig) { c.MaxCount = 0 }, true},
		{"no actions", func(c *RunConfig) { c.Follow = false }, true},
		{"comment only", func(c *RunConfig) { c.Follow = false; c.Comment = true }, true},
		{"comment without message", func(c *RunConfig) { c.Comment = true; c.Messages = []string{" "} }, true},
		{"comment with follow", func(c *RunConfig) { c.Comment = true }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := baseRunConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestRunCompletesAtTargetCount(t *testing.T) {
	d := &fakeDriver{
		rounds: [][]threads.Article{
			{articleN(1), articleN(2), articleN(3), articleN(4), articleN(5)},
		},
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	require.NoError(t, o.Run(context.Background(), baseRunConfig()))

	assert.Equal(t, []string{"follow:id-1", "follow:id-2", "follow:id-3"}, d.calls)
	assert.Zero(t, d.scrolls)
}

func TestRunDeduplicatesAcrossRounds(t *testing.T) {
	// Round two repeats item 1 and 2 with one new item appended.
	d := &fakeDriver{
		rounds: [][]threads.Article{
			{articleN(1), articleN(2)},
			{articleN(1), articleN(2), articleN(3)},
		},
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	require.NoError(t, o.Run(context.Background(), baseRunConfig()))

	assert.Equal(t, []string{"follow:id-1", "follow:id-2", "follow:id-3"}, d.calls)
}

func TestRunActionOrderPerItem(t *testing.T) {
	d := &fakeDriver{
		rounds: [][]threads.Article{{articleN(1)}},
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	cfg := baseRunConfig()
	cfg.MaxCount = 1
	cfg.Like = true
	cfg.Repost = true
	cfg.Comment = true

	require.NoError(t, o.Run(context.Background(), cfg))
	assert.Equal(t, []string{"comment:id-1", "follow:id-1", "like:id-1", "repost:id-1"}, d.calls)
}

func TestRunActionFailureDoesNotAbortItem(t *testing.T) {
	d := &fakeDriver{
		rounds:     [][]threads.Article{{articleN(1)}},
		commentErr: map[string]error{"id-1": errors.New("composer gone")},
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	cfg := baseRunConfig()
	cfg.MaxCount = 1
	cfg.Comment = true

	require.NoError(t, o.Run(context.Background(), cfg))
	// Follow still runs after the comment fails.
	assert.Equal(t, []string{"comment:id-1", "follow:id-1"}, d.calls)
}

func TestRunSkipsAlreadyDoneItems(t *testing.T) {
	d := &fakeDriver{
		rounds:   [][]threads.Article{{articleN(1), articleN(2), articleN(3)}},
		followed: map[string]bool{"id-2": true},
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	require.NoError(t, o.Run(context.Background(), baseRunConfig()))

	// Item 2 probes as done: counted toward the target, never acted on.
	assert.Equal(t, []string{"follow:id-1", "follow:id-3"}, d.calls)
}

func TestRunSkipsAlreadyRepostedItems(t *testing.T) {
	d := &fakeDriver{
		rounds:   [][]threads.Article{{articleN(1), articleN(2)}},
		reposted: map[string]bool{"id-1": true},
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	cfg := baseRunConfig()
	cfg.Follow = false
	cfg.Repost = true
	cfg.MaxCount = 2

	require.NoError(t, o.Run(context.Background(), cfg))
	assert.Equal(t, []string{"repost:id-2"}, d.calls)
}

func TestRunScrollsWhenNothingNew(t *testing.T) {
	d := &fakeDriver{
		rounds: [][]threads.Article{
			{articleN(1)},
			{articleN(1)},
			{articleN(1), articleN(2), articleN(3)},
		},
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	require.NoError(t, o.Run(context.Background(), baseRunConfig()))
	assert.Equal(t, 1, d.scrolls)
	assert.Equal(t, []string{"follow:id-1", "follow:id-2", "follow:id-3"}, d.calls)
}

func TestRunGivesUpAfterScrollBudget(t *testing.T) {
	d := &fakeDriver{
		rounds: [][]threads.Article{{articleN(1)}},
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	// Only one item ever appears; target of three cannot be met.
	require.NoError(t, o.Run(context.Background(), baseRunConfig()))
	assert.Equal(t, 2, d.scrolls)
	assert.Equal(t, []string{"follow:id-1"}, d.calls)
}

func TestRunSessionClosedIsPermanent(t *testing.T) {
	d := &fakeDriver{
		rounds:    [][]threads.Article{{articleN(1)}},
		followErr: map[string]error{"id-1": errors.New("websocket: close 1006")},
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	cfg := baseRunConfig()
	err := o.Run(context.Background(), cfg)
	require.Error(t, err)
	assert.True(t, retry.IsPermanent(err))
}

func TestRunSelectorTimeoutIsRetryable(t *testing.T) {
	d := &fakeDriver{
		rounds:   [][]threads.Article{{}},
		loginErr: errors.Mark(errors.Wrap(context.DeadlineExceeded, "wait for header"), threads.ErrLoginFailed),
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	err := o.Run(context.Background(), baseRunConfig())
	require.Error(t, err)
	// The deadline expired on a live page: the outer retry wrapper gets
	// another attempt.
	assert.False(t, retry.IsPermanent(err))
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestRunLoginFailureIsRetryable(t *testing.T) {
	d := &fakeDriver{
		rounds:   [][]threads.Article{{}},
		loginErr: errors.Mark(errors.New("header never appeared"), threads.ErrLoginFailed),
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	err := o.Run(context.Background(), baseRunConfig())
	require.Error(t, err)
	assert.False(t, retry.IsPermanent(err))
	assert.True(t, errors.Is(err, threads.ErrLoginFailed))
}

func TestRunSkipsUnreadableExcerpts(t *testing.T) {
	blank := threads.Article{ID: "id-blank", Excerpt: ""}
	d := &fakeDriver{
		rounds: [][]threads.Article{
			{blank, articleN(1), articleN(2), articleN(3)},
		},
	}
	sink := &memSink{}
	o := newTestOrchestrator(d, sink)

	require.NoError(t, o.Run(context.Background(), baseRunConfig()))
	assert.NotContains(t, d.calls, "follow:id-blank")
	assert.Len(t, d.calls, 3)
}
