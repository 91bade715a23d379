package browser

import (
	"context"
	"sync"

	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/pyramid-ing/tmgkfl/internal/config"
)

// Threads only renders its mobile layout when the session pretends to be a
// phone. The init script runs before any document script and suppresses the
// app-install upsell sheet that would otherwise cover the page.
const mobileInitScript = `(() => {
	try {
		sessionStorage.clear();
		sessionStorage.setItem('barcelona_mobile_upsell_state', '1');
	} catch (e) {}
})();`

// Page is one tab with the mobile persona applied.
type Page struct {
	ctx    context.Context
	cancel context.CancelFunc
	logger *zap.Logger

	closeOnce sync.Once
}

// NewPage opens a tab, applies the mobile persona, and installs the
// persistent init script.
func (b *Browser) NewPage(ctx context.Context) (*Page, error) {
	tabCtx, tabCancel := chromedp.NewContext(b.browserCtx)

	setupCtx, setupCancel := CombineContext(tabCtx, ctx)
	defer setupCancel()

	if err := chromedp.Run(setupCtx, personaTasks(b.cfg)); err != nil {
		tabCancel()
		return nil, errors.Wrap(err, "apply mobile persona")
	}

	b.logger.Debug("page created",
		zap.Int("viewport_width", b.cfg.ViewportWidth),
		zap.Int("viewport_height", b.cfg.ViewportHeight))

	return &Page{
		ctx:    tabCtx,
		cancel: tabCancel,
		logger: b.logger,
	}, nil
}

func personaTasks(cfg config.BrowserConfig) chromedp.Tasks {
	return chromedp.Tasks{
		emulation.SetUserAgentOverride(cfg.UserAgent),
		emulation.SetDeviceMetricsOverride(int64(cfg.ViewportWidth), int64(cfg.ViewportHeight), 3.0, true),
		chromedp.ActionFunc(func(ctx context.Context) error {
			_, err := page.AddScriptToEvaluateOnNewDocument(mobileInitScript).Do(ctx)
			return errors.Wrap(err, "install init script")
		}),
	}
}

// Context exposes the tab's CDP context for event listeners.
func (p *Page) Context() context.Context {
	return p.ctx
}

// Run executes actions against the tab, honoring both the tab lifetime and
// the caller's context.
func (p *Page) Run(ctx context.Context, actions ...chromedp.Action) error {
	runCtx, cancel := CombineContext(p.ctx, ctx)
	defer cancel()
	return chromedp.Run(runCtx, actions...)
}

// Navigate loads a URL and waits for the document to become ready.
func (p *Page) Navigate(ctx context.Context, url string) error {
	return p.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	)
}

// Close destroys the tab. Safe to call more than once.
func (p *Page) Close() {
	p.closeOnce.Do(p.cancel)
}
