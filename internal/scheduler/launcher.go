package scheduler

import (
	"context"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/pyramid-ing/tmgkfl/internal/browser"
	"github.com/pyramid-ing/tmgkfl/internal/config"
	"github.com/pyramid-ing/tmgkfl/internal/threads"
)

var _ Launcher = (*BrowserLauncher)(nil)

// BrowserLauncher starts real Chromium sessions.
type BrowserLauncher struct {
	cfg    config.BrowserConfig
	logger *zap.Logger
}

// NewBrowserLauncher builds the production launcher.
func NewBrowserLauncher(cfg config.BrowserConfig, logger *zap.Logger) *BrowserLauncher {
	return &BrowserLauncher{cfg: cfg, logger: logger}
}

// Launch starts a browser and wraps it in a posting session.
func (l *BrowserLauncher) Launch(ctx context.Context, headless bool) (Session, error) {
	b, err := browser.Launch(ctx, l.cfg, headless, l.logger)
	if err != nil {
		return nil, err
	}
	return &browserSession{browser: b, cfg: l.cfg, logger: l.logger}, nil
}

// browserSession keeps the login page open for the session's lifetime so its
// cookies stay live, and opens a fresh page per post.
type browserSession struct {
	browser   *browser.Browser
	cfg       config.BrowserConfig
	logger    *zap.Logger
	loginPage *browser.Page
}

func (s *browserSession) Login(ctx context.Context, id, pw string) error {
	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return errors.Wrap(err, "open login page")
	}
	s.loginPage = page
	return threads.NewClient(page, s.cfg, s.logger).Login(ctx, id, pw)
}

func (s *browserSession) Post(ctx context.Context, content string) error {
	page, err := s.browser.NewPage(ctx)
	if err != nil {
		return errors.Wrap(err, "open posting page")
	}
	defer page.Close()

	client := threads.NewClient(page, s.cfg, s.logger)
	if err := client.GotoHome(ctx); err != nil {
		return err
	}
	return client.PostArticle(ctx, content)
}

func (s *browserSession) Close() error {
	if s.loginPage != nil {
		s.loginPage.Close()
	}
	return s.browser.Close()
}
