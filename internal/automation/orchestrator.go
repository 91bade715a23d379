package automation

import (
	"context"
	"fmt"
	"hash/fnv"
	"math/rand"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/pyramid-ing/tmgkfl/internal/config"
	"github.com/pyramid-ing/tmgkfl/internal/retry"
	"github.com/pyramid-ing/tmgkfl/internal/threads"
)

// Orchestrator walks search results and applies the configured engagement
// actions, deduplicating content across scroll rounds by excerpt fingerprint.
type Orchestrator struct {
	driver  Driver
	sink    LogSink
	logger  *zap.Logger
	limiter *rate.Limiter

	maxScrollRounds int

	// Injectable for tests.
	rng   *rand.Rand
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds an orchestrator. The rate limiter spaces actions out on top of
// the per-item random delays so bursts never exceed the configured budget.
func New(driver Driver, sink LogSink, cfg config.AutomationConfig, logger *zap.Logger) *Orchestrator {
	return &Orchestrator{
		driver:          driver,
		sink:            sink,
		logger:          logger.Named("automation"),
		limiter:         rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.ActionsPerMinute)), 1),
		maxScrollRounds: cfg.MaxScrollRounds,
		rng:             rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:           sleepCtx,
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// fingerprint hashes an item's excerpt for dedup. Items whose excerpt could
// not be read produce no fingerprint and are revisited on a later round.
func fingerprint(excerpt string) (uint64, bool) {
	if excerpt == "" {
		return 0, false
	}
	h := fnv.New64a()
	h.Write([]byte(excerpt))
	return h.Sum64(), true
}

func (o *Orchestrator) logf(ctx context.Context, jobID, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	o.logger.Info(msg, zap.String("job_id", jobID))
	if err := o.sink.AppendLog(ctx, jobID, msg); err != nil {
		o.logger.Warn("could not append run log", zap.String("job_id", jobID), zap.Error(err))
	}
}

// Run executes one engagement session. The caller wraps it in the retry
// helper; a closed browser session comes back marked permanent so the
// wrapper stops instead of relaunching into a dead page.
func (o *Orchestrator) Run(ctx context.Context, cfg RunConfig) error {
	if err := cfg.Validate(); err != nil {
		return retry.Permanent(err)
	}

	o.logf(ctx, cfg.JobID, "Threads 자동화 작업을 시작합니다. 키워드: %s", cfg.Keyword)

	if err := o.driver.Login(ctx, cfg.LoginID, cfg.LoginPW); err != nil {
		o.logf(ctx, cfg.JobID, "로그인 실패: %v", err)
		return o.classify(err)
	}
	o.logf(ctx, cfg.JobID, "로그인 성공. 메인 페이지로 이동했습니다.")

	if err := o.driver.GotoSearch(ctx); err != nil {
		return o.classify(err)
	}
	if err := o.driver.Search(ctx, cfg.Keyword); err != nil {
		return o.classify(err)
	}
	o.logf(ctx, cfg.JobID, "검색 결과 페이지로 이동")
	if err := o.driver.WaitArticles(ctx); err != nil {
		o.logf(ctx, cfg.JobID, "검색 결과 게시물을 찾을 수 없습니다.")
		return o.classify(err)
	}

	processed := make(map[uint64]struct{})
	scrollRounds := 0

	for len(processed) < cfg.MaxCount {
		if err := ctx.Err(); err != nil {
			return retry.Permanent(err)
		}

		articles, err := o.driver.Articles(ctx)
		if err != nil {
			return o.classify(err)
		}

		newly, err := o.scanRound(ctx, cfg, articles, processed)
		if err != nil {
			return err
		}
		if len(processed) >= cfg.MaxCount {
			break
		}

		// A round with nothing new means every visible item is already
		// handled; scroll to reveal more.
		if newly == 0 {
			scrollRounds++
			if scrollRounds >= o.maxScrollRounds {
				o.logf(ctx, cfg.JobID, "더 이상 새 게시물이 없어 작업을 종료합니다. 처리 %d건", len(processed))
				return nil
			}
			if err := o.driver.ScrollDown(ctx); err != nil {
				return o.classify(err)
			}
		} else {
			scrollRounds = 0
		}
	}

	o.logf(ctx, cfg.JobID, "자동화 작업이 성공적으로 완료되었습니다. 처리 %d건", len(processed))
	return nil
}

// scanRound processes the currently visible items in DOM order and returns
// how many new fingerprints it added.
func (o *Orchestrator) scanRound(ctx context.Context, cfg RunConfig, articles []threads.Article, processed map[uint64]struct{}) (int, error) {
	newly := 0
	for _, a := range articles {
		if len(processed) >= cfg.MaxCount {
			break
		}
		fp, ok := fingerprint(a.Excerpt)
		if !ok {
			continue
		}
		if _, seen := processed[fp]; seen {
			continue
		}

		done, err := o.alreadyDone(ctx, cfg, a)
		if err != nil {
			return newly, o.classify(err)
		}
		if done {
			o.logf(ctx, cfg.JobID, "%s 이미 처리된 게시물, 건너뜁니다.", a.Label())
			processed[fp] = struct{}{}
			newly++
			continue
		}

		if err := o.actOn(ctx, cfg, a); err != nil {
			return newly, err
		}
		processed[fp] = struct{}{}
		newly++
	}
	return newly, nil
}

// alreadyDone runs the enabled pre-probes; any positive probe skips the whole
// item so a retried run cannot double-comment.
func (o *Orchestrator) alreadyDone(ctx context.Context, cfg RunConfig, a threads.Article) (bool, error) {
	if cfg.Follow {
		done, err := o.driver.IsFollowed(ctx, a)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	if cfg.Like {
		done, err := o.driver.IsLiked(ctx, a)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	if cfg.Repost {
		done, err := o.driver.IsReposted(ctx, a)
		if err != nil {
			return false, err
		}
		if done {
			return true, nil
		}
	}
	return false, nil
}

// actOn applies the enabled actions to one item. The comment goes first: it
// has no verifiable pre-condition, so it must land before any click that can
// open a navigating modal. A single action's failure is logged and the item
// continues.
func (o *Orchestrator) actOn(ctx context.Context, cfg RunConfig, a threads.Article) error {
	type step struct {
		enabled bool
		name    string
		run     func(context.Context) error
	}
	steps := []step{
		{cfg.Comment, "답글", func(ctx context.Context) error {
			return o.driver.Comment(ctx, a, o.pickMessage(cfg.Messages))
		}},
		{cfg.Follow, "팔로우", func(ctx context.Context) error { return o.driver.Follow(ctx, a) }},
		{cfg.Like, "좋아요", func(ctx context.Context) error { return o.driver.Like(ctx, a) }},
		{cfg.Repost, "리포스트", func(ctx context.Context) error { return o.driver.Repost(ctx, a) }},
	}

	for _, s := range steps {
		if !s.enabled {
			continue
		}
		if err := o.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		err := s.run(ctx)
		switch {
		case err == nil:
			o.logf(ctx, cfg.JobID, "%s %s 완료", a.Label(), s.name)
		case threads.IsAlreadyDone(err):
			o.logf(ctx, cfg.JobID, "%v", err)
			// No delay: nothing was clicked.
			continue
		case threads.IsSessionClosed(err):
			o.logf(ctx, cfg.JobID, "브라우저 세션이 종료되어 작업을 중단합니다.")
			return retry.Permanent(err)
		default:
			o.logf(ctx, cfg.JobID, "%s %s 실패: %v", a.Label(), s.name, err)
		}
		if err := o.delay(ctx, cfg); err != nil {
			return retry.Permanent(err)
		}
	}
	return nil
}

func (o *Orchestrator) pickMessage(msgs []string) string {
	if len(msgs) == 0 {
		return ""
	}
	return msgs[o.rng.Intn(len(msgs))]
}

// delay waits a uniformly random interval in [MinDelay, MaxDelay] seconds.
func (o *Orchestrator) delay(ctx context.Context, cfg RunConfig) error {
	secs := cfg.MinDelay
	if cfg.MaxDelay > cfg.MinDelay {
		secs += o.rng.Intn(cfg.MaxDelay - cfg.MinDelay + 1)
	}
	if secs <= 0 {
		return nil
	}
	return o.sleep(ctx, time.Duration(secs)*time.Second)
}

// classify marks session-teardown errors permanent so the retry wrapper
// stops; everything else stays retryable.
func (o *Orchestrator) classify(err error) error {
	if err == nil {
		return nil
	}
	if threads.IsSessionClosed(err) {
		return retry.Permanent(err)
	}
	return errors.WithStack(err)
}
