// Package service is the in-process API: interactive automation runs, job
// submission and management, and log retrieval.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/pyramid-ing/tmgkfl/internal/accountlock"
	"github.com/pyramid-ing/tmgkfl/internal/automation"
	"github.com/pyramid-ing/tmgkfl/internal/browser"
	"github.com/pyramid-ing/tmgkfl/internal/config"
	"github.com/pyramid-ing/tmgkfl/internal/retry"
	"github.com/pyramid-ing/tmgkfl/internal/store"
	"github.com/pyramid-ing/tmgkfl/internal/threads"
)

// Service wires the store, browser stack, and orchestrator together.
type Service struct {
	cfg    *config.Config
	store  *store.Store
	locks  *accountlock.Registry
	logger *zap.Logger

	// runFn executes one automation run to completion. Tests replace it.
	runFn func(ctx context.Context, jobID string, rc automation.RunConfig) error

	wg sync.WaitGroup
}

// New builds the service.
func New(cfg *config.Config, st *store.Store, locks *accountlock.Registry, logger *zap.Logger) *Service {
	s := &Service{
		cfg:    cfg,
		store:  st,
		locks:  locks,
		logger: logger.Named("service"),
	}
	s.runFn = s.runAutomation
	return s
}

// Wait blocks until every fire-and-forget run has finished.
func (s *Service) Wait() {
	s.wg.Wait()
}

// StartAutomation validates the run and starts it in the background.
// Progress is observable only through the log stream under the returned job
// id.
func (s *Service) StartAutomation(ctx context.Context, rc automation.RunConfig) (string, error) {
	rc.JobID = uuid.New().String()
	if err := rc.Validate(); err != nil {
		return "", err
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.runFn(ctx, rc.JobID, rc); err != nil {
			s.logger.Error("automation run ended with error",
				zap.String("job_id", rc.JobID), zap.Error(err))
		}
	}()
	return rc.JobID, nil
}

// runAutomation holds the account lock for the whole run and wraps the
// orchestrator in the configured retry policy. Session-closed conditions
// come back marked permanent and are not relaunched.
func (s *Service) runAutomation(ctx context.Context, jobID string, rc automation.RunConfig) error {
	release, err := s.locks.Acquire(ctx, rc.LoginID)
	if err != nil {
		return errors.Wrap(err, "acquire account lock")
	}
	defer release()

	settings, err := s.store.GetAppSettings(ctx)
	if err != nil {
		return err
	}

	autoCfg := s.cfg.Automation
	strategy := retry.ParseStrategy(autoCfg.RetryStrategy)

	attempt := func(ctx context.Context) error {
		b, err := browser.Launch(ctx, s.cfg.Browser, !settings.ShowBrowserWindow, s.logger)
		if err != nil {
			if errors.Is(err, browser.ErrBrowserUnavailable) {
				s.appendLog(ctx, jobID, "크롬 브라우저를 찾을 수 없습니다. 설치 후 다시 시도해주세요.")
				return retry.Permanent(err)
			}
			return err
		}
		defer func() {
			if err := b.Close(); err != nil {
				s.logger.Warn("browser close failed", zap.String("job_id", jobID), zap.Error(err))
			}
		}()

		page, err := b.NewPage(ctx)
		if err != nil {
			return err
		}
		defer page.Close()

		client := threads.NewClient(page, s.cfg.Browser, s.logger)
		orch := automation.New(client, s.store, autoCfg, s.logger)
		return orch.Run(ctx, rc)
	}

	err = retry.Do(ctx, attempt, autoCfg.RetryInterval, autoCfg.RetryAttempts, strategy)
	if err != nil {
		s.appendLog(ctx, jobID, fmt.Sprintf("자동화 작업 중 오류가 발생했습니다: %v", err))
		return err
	}
	return nil
}

func (s *Service) appendLog(ctx context.Context, jobID, msg string) {
	if err := s.store.AppendLog(ctx, jobID, msg); err != nil {
		s.logger.Warn("could not append log", zap.String("job_id", jobID), zap.Error(err))
	}
}

// PostInput is one row of a job submission.
type PostInput struct {
	Subject     string
	Desc        string
	ScheduledAt time.Time
}

// CreatePostJobsRequest schedules posts for one account.
type CreatePostJobsRequest struct {
	LoginID string
	LoginPW string
	Posts   []PostInput
}

// CreatePostJobsResult reports how many rows were accepted.
type CreatePostJobsResult struct {
	Count   int64
	Message string
}

// CreatePostJobs filters out rows without body text or a scheduled time and
// stores the rest as pending jobs.
func (s *Service) CreatePostJobs(ctx context.Context, req CreatePostJobsRequest) (CreatePostJobsResult, error) {
	if strings.TrimSpace(req.LoginID) == "" || req.LoginPW == "" {
		return CreatePostJobsResult{}, errors.New("login credentials are required")
	}

	var valid []store.PostJob
	for _, p := range req.Posts {
		if strings.TrimSpace(p.Desc) == "" || p.ScheduledAt.IsZero() {
			continue
		}
		valid = append(valid, store.PostJob{
			LoginID:     req.LoginID,
			LoginPW:     req.LoginPW,
			Subject:     p.Subject,
			Desc:        p.Desc,
			ScheduledAt: p.ScheduledAt,
		})
	}
	if len(valid) == 0 {
		return CreatePostJobsResult{}, errors.New("유효한 게시글 데이터가 없습니다. 모든 데이터가 비어있거나 필수 정보가 누락되었습니다.")
	}

	count, err := s.store.CreatePostJobs(ctx, valid)
	if err != nil {
		return CreatePostJobsResult{}, err
	}
	excluded := len(req.Posts) - len(valid)
	return CreatePostJobsResult{
		Count:   count,
		Message: fmt.Sprintf("%d개의 게시글이 성공적으로 예약되었습니다. (빈 데이터 %d개 자동 제외)", count, excluded),
	}, nil
}

// GetPostJobs lists every job, newest first.
func (s *Service) GetPostJobs(ctx context.Context) ([]store.PostJob, error) {
	return s.store.ListPostJobs(ctx)
}

// DeletePostJob removes a job.
func (s *Service) DeletePostJob(ctx context.Context, id int64) error {
	return s.store.DeletePostJob(ctx, id)
}

// RetryPostJob moves a failed job back to pending.
func (s *Service) RetryPostJob(ctx context.Context, id int64) error {
	return s.store.RetryPostJob(ctx, id)
}

// GetLogs returns a run's log stream, newest first.
func (s *Service) GetLogs(ctx context.Context, jobID string) ([]store.LogEntry, error) {
	return s.store.GetLogs(ctx, jobID)
}

// GetAppSettings reads the stored preferences.
func (s *Service) GetAppSettings(ctx context.Context) (store.AppSettings, error) {
	return s.store.GetAppSettings(ctx)
}

// SetAppSettings updates the stored preferences.
func (s *Service) SetAppSettings(ctx context.Context, settings store.AppSettings) error {
	return s.store.SetAppSettings(ctx, settings)
}
