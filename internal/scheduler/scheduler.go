// Package scheduler polls the job table and publishes due posts through a
// browser session, one account at a time.
package scheduler

import (
	"context"
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/pyramid-ing/tmgkfl/internal/accountlock"
	"github.com/pyramid-ing/tmgkfl/internal/browser"
	"github.com/pyramid-ing/tmgkfl/internal/store"
)

// chromeMissingPrefix tags result messages so the UI can distinguish a
// missing browser installation from ordinary posting failures.
const chromeMissingPrefix = "CHROME_NOT_INSTALLED: "

// Session is one logged-in browser session able to publish posts.
type Session interface {
	Login(ctx context.Context, id, pw string) error
	Post(ctx context.Context, content string) error
	Close() error
}

// Launcher starts browser sessions. The production implementation wraps the
// browser package; tests substitute a scripted fake.
type Launcher interface {
	Launch(ctx context.Context, headless bool) (Session, error)
}

// Processor owns the poll loop and the per-account posting workflow.
type Processor struct {
	store    *store.Store
	launcher Launcher
	locks    *accountlock.Registry
	interval time.Duration
	logger   *zap.Logger

	now func() time.Time
}

// NewProcessor builds a processor polling at the given interval.
func NewProcessor(st *store.Store, launcher Launcher, locks *accountlock.Registry, interval time.Duration, logger *zap.Logger) *Processor {
	return &Processor{
		store:    st,
		launcher: launcher,
		locks:    locks,
		interval: interval,
		logger:   logger.Named("scheduler"),
		now:      time.Now,
	}
}

// Start reconciles stranded jobs and then polls until the context is
// canceled.
func (p *Processor) Start(ctx context.Context) error {
	n, err := p.store.FailProcessing(ctx)
	if err != nil {
		return errors.Wrap(err, "recover stranded jobs")
	}
	if n > 0 {
		p.logger.Warn("failed jobs stranded by an unclean shutdown", zap.Int64("count", n))
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info("job processor started", zap.Duration("interval", p.interval))
	for {
		select {
		case <-ctx.Done():
			p.logger.Info("job processor stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := p.ProcessPostJobs(ctx); err != nil {
				p.logger.Error("poll tick failed", zap.Error(err))
			}
		}
	}
}

// ProcessPostJobs runs one poll tick: claim due jobs, then work through them
// grouped by account.
func (p *Processor) ProcessPostJobs(ctx context.Context) error {
	due, err := p.store.ListDue(ctx, p.now())
	if err != nil {
		return err
	}
	if len(due) == 0 {
		return nil
	}

	ids := make([]int64, len(due))
	for i, j := range due {
		ids[i] = j.ID
	}
	if err := p.store.MarkProcessing(ctx, ids); err != nil {
		return err
	}
	p.logger.Info("claimed due jobs", zap.Int("count", len(due)))

	for _, group := range groupByAccount(due) {
		p.processGroup(ctx, group)
	}
	return nil
}

// groupByAccount splits jobs per login id, ordered by login id ascending for
// deterministic processing.
func groupByAccount(jobs []store.PostJob) [][]store.PostJob {
	byID := make(map[string][]store.PostJob)
	for _, j := range jobs {
		byID[j.LoginID] = append(byID[j.LoginID], j)
	}
	logins := make([]string, 0, len(byID))
	for id := range byID {
		logins = append(logins, id)
	}
	sort.Strings(logins)

	groups := make([][]store.PostJob, 0, len(logins))
	for _, id := range logins {
		groups = append(groups, byID[id])
	}
	return groups
}

func (p *Processor) processGroup(ctx context.Context, jobs []store.PostJob) {
	loginID := jobs[0].LoginID
	log := p.logger.With(zap.String("login_id", loginID))

	ids := make([]int64, len(jobs))
	for i, j := range jobs {
		ids[i] = j.ID
	}

	release, err := p.locks.Acquire(ctx, loginID)
	if err != nil {
		p.failJobs(ctx, ids, err.Error())
		return
	}
	defer release()

	settings, err := p.store.GetAppSettings(ctx)
	if err != nil {
		p.failJobs(ctx, ids, err.Error())
		return
	}

	sess, err := p.launcher.Launch(ctx, !settings.ShowBrowserWindow)
	if err != nil {
		if errors.Is(err, browser.ErrBrowserUnavailable) {
			log.Error("browser unavailable, failing account group", zap.Error(err))
			p.failJobs(ctx, ids, chromeMissingPrefix+err.Error())
			return
		}
		p.failJobs(ctx, ids, err.Error())
		return
	}
	defer func() {
		if err := sess.Close(); err != nil {
			log.Warn("session close failed", zap.Error(err))
		}
	}()

	if err := sess.Login(ctx, loginID, jobs[0].LoginPW); err != nil {
		log.Error("login failed, failing account group", zap.Error(err))
		p.failJobs(ctx, ids, err.Error())
		return
	}

	for _, job := range jobs {
		if err := sess.Post(ctx, job.Desc); err != nil {
			log.Error("post failed", zap.Int64("job_id", job.ID), zap.Error(err))
			p.failJobs(ctx, []int64{job.ID}, err.Error())
			continue
		}
		if err := p.store.MarkCompleted(ctx, job.ID, p.now()); err != nil {
			log.Error("could not mark job completed", zap.Int64("job_id", job.ID), zap.Error(err))
			continue
		}
		log.Info("job posted", zap.Int64("job_id", job.ID))
	}
}

func (p *Processor) failJobs(ctx context.Context, ids []int64, msg string) {
	if err := p.store.MarkFailed(ctx, ids, msg); err != nil {
		p.logger.Error("could not mark jobs failed", zap.Int64s("job_ids", ids), zap.Error(err))
	}
}
