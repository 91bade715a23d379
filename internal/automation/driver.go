package automation

import (
	"context"

	"github.com/pyramid-ing/tmgkfl/internal/threads"
)

// Driver is the page-level surface the orchestrator drives. *threads.Client
// implements it; tests substitute a scripted fake.
type Driver interface {
	Login(ctx context.Context, id, pw string) error
	GotoSearch(ctx context.Context) error
	Search(ctx context.Context, keyword string) error
	WaitArticles(ctx context.Context) error
	Articles(ctx context.Context) ([]threads.Article, error)
	ScrollDown(ctx context.Context) error

	IsFollowed(ctx context.Context, a threads.Article) (bool, error)
	IsLiked(ctx context.Context, a threads.Article) (bool, error)
	IsReposted(ctx context.Context, a threads.Article) (bool, error)

	Follow(ctx context.Context, a threads.Article) error
	Like(ctx context.Context, a threads.Article) error
	Repost(ctx context.Context, a threads.Article) error
	Comment(ctx context.Context, a threads.Article, message string) error
}

// LogSink receives the user-visible progress stream, keyed by run id.
type LogSink interface {
	AppendLog(ctx context.Context, jobID, message string) error
}
