// Package browser manages the Chromium process lifecycle and page (tab)
// creation through the Chrome DevTools Protocol.
//
// Account isolation is handled at the process level: callers launch a fresh
// Browser per account so cookies and storage never leak between logins.
package browser

import (
	"context"
	"io/fs"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/pyramid-ing/tmgkfl/internal/config"
)

// ErrBrowserUnavailable marks launch failures caused by a missing Chromium
// executable. Callers treat it as non-retryable.
var ErrBrowserUnavailable = errors.New("browser executable unavailable")

const shutdownGracePeriod = 10 * time.Second

// Browser owns one Chromium process and the allocator context it runs in.
type Browser struct {
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
	logger        *zap.Logger
	cfg           config.BrowserConfig

	closeOnce sync.Once
	closeErr  error
}

// AllocatorOptions builds the exec allocator options for the configured
// browser. The headless argument wins over any configured default so the
// caller can honor the user's show-window setting at launch time.
func AllocatorOptions(cfg config.BrowserConfig, headless bool) []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)

	opts = append(opts,
		chromedp.Flag("headless", headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("lang", "ko-KR"),
		chromedp.WindowSize(cfg.ViewportWidth, cfg.ViewportHeight),
	)

	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	for _, arg := range cfg.Args {
		name := strings.TrimPrefix(arg, "--")
		if k, v, ok := strings.Cut(name, "="); ok {
			opts = append(opts, chromedp.Flag(k, v))
		} else {
			opts = append(opts, chromedp.Flag(name, true))
		}
	}
	return opts
}

// Launch starts a Chromium process and verifies the DevTools connection.
// A missing executable is reported marked with ErrBrowserUnavailable.
func Launch(ctx context.Context, cfg config.BrowserConfig, headless bool, logger *zap.Logger) (*Browser, error) {
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg, headless)...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)

	// chromedp starts the process lazily. Run an empty task list now so a
	// broken installation fails here instead of on the first page action.
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, classifyLaunchError(err)
	}

	logger.Info("browser launched", zap.Bool("headless", headless))
	return &Browser{
		allocCtx:      allocCtx,
		allocCancel:   allocCancel,
		browserCtx:    browserCtx,
		browserCancel: browserCancel,
		logger:        logger,
		cfg:           cfg,
	}, nil
}

func classifyLaunchError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, exec.ErrNotFound) || errors.Is(err, fs.ErrNotExist) {
		return errors.Mark(errors.Wrap(err, "launch browser"), ErrBrowserUnavailable)
	}
	msg := err.Error()
	if strings.Contains(msg, "executable file not found") || strings.Contains(msg, "no such file or directory") {
		return errors.Mark(errors.Wrap(err, "launch browser"), ErrBrowserUnavailable)
	}
	return errors.Wrap(err, "launch browser")
}

// Close shuts the browser down gracefully, falling back to killing the
// process when the grace period runs out. Safe to call more than once.
func (b *Browser) Close() error {
	b.closeOnce.Do(func() {
		b.logger.Debug("closing browser")

		graceCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
		defer cancel()

		done := make(chan error, 1)
		go func() { done <- chromedp.Cancel(b.browserCtx) }()

		select {
		case err := <-done:
			b.closeErr = err
		case <-graceCtx.Done():
			b.logger.Warn("graceful browser shutdown timed out, killing process")
		}
		b.browserCancel()
		b.allocCancel()
	})
	return b.closeErr
}
