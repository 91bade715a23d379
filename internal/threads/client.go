// Package threads drives the Threads mobile web UI: login, keyword search,
// per-post engagement actions, and content posting.
package threads

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/pyramid-ing/tmgkfl/internal/browser"
	"github.com/pyramid-ing/tmgkfl/internal/config"
)

// Client wraps a page with the timeouts and settle delays the Threads UI
// needs. The UI re-renders heavily after every interaction, so actions pause
// before probing the result.
type Client struct {
	page   *browser.Page
	logger *zap.Logger

	viewportWidth  int
	viewportHeight int
	navTimeout     time.Duration
	selTimeout     time.Duration
	settleDelay    time.Duration
	shortDelay     time.Duration
}

// NewClient builds a client for the given page.
func NewClient(page *browser.Page, cfg config.BrowserConfig, logger *zap.Logger) *Client {
	return &Client{
		page:           page,
		logger:         logger.Named("threads"),
		viewportWidth:  cfg.ViewportWidth,
		viewportHeight: cfg.ViewportHeight,
		navTimeout:     cfg.NavigationTimeout,
		selTimeout:     cfg.SelectorTimeout,
		settleDelay:    3 * time.Second,
		shortDelay:     time.Second,
	}
}

func (c *Client) navigate(ctx context.Context, url string) error {
	navCtx, cancel := context.WithTimeout(ctx, c.navTimeout)
	defer cancel()
	return c.page.Navigate(navCtx, url)
}

func (c *Client) waitVisible(ctx context.Context, sel string) error {
	waitCtx, cancel := context.WithTimeout(ctx, c.selTimeout)
	defer cancel()
	return c.page.Run(waitCtx, chromedp.WaitVisible(sel, chromedp.ByQuery))
}

// exists probes for a selector without waiting.
func (c *Client) exists(ctx context.Context, sel string) (bool, error) {
	var found bool
	script := fmt.Sprintf(`!!document.querySelector(%q)`, sel)
	if err := c.page.Run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return false, errors.Wrapf(err, "probe %s", sel)
	}
	return found, nil
}

// Login signs the account in and waits for the main feed header.
func (c *Client) Login(ctx context.Context, id, pw string) error {
	c.logger.Info("logging in", zap.String("login_id", id))

	if err := c.navigate(ctx, loginURL); err != nil {
		return errors.Mark(errors.Wrap(err, "open login page"), ErrLoginFailed)
	}
	if err := c.page.Run(ctx, chromedp.Sleep(c.settleDelay)); err != nil {
		return err
	}

	if err := c.waitVisible(ctx, selLoginLink); err != nil {
		return errors.Mark(errors.Wrap(err, "로그인 버튼 찾을 수 없음"), ErrLoginFailed)
	}
	if err := c.page.Run(ctx,
		chromedp.Click(selLoginLink, chromedp.ByQuery),
	); err != nil {
		return errors.Mark(errors.Wrap(err, "click login link"), ErrLoginFailed)
	}

	if err := c.waitVisible(ctx, selUsernameInput); err != nil {
		return errors.Mark(errors.Wrap(err, "login form did not appear"), ErrLoginFailed)
	}
	if err := c.page.Run(ctx,
		chromedp.Sleep(c.settleDelay),
		chromedp.SendKeys(selUsernameInput, id, chromedp.ByQuery),
		chromedp.SendKeys(selPasswordInput, pw, chromedp.ByQuery),
	); err != nil {
		return errors.Mark(errors.Wrap(err, "fill credentials"), ErrLoginFailed)
	}

	// Click actions wait for their target, so bound the wait: the submit
	// div is sometimes absent and Enter on the password field works too.
	submitCtx, cancelSubmit := context.WithTimeout(ctx, 10*time.Second)
	err := c.page.Run(submitCtx, chromedp.Click(xpathLoginSubmit, chromedp.BySearch))
	cancelSubmit()
	if err != nil {
		c.logger.Debug("submit div not found, sending Enter", zap.Error(err))
		if err := c.page.Run(ctx, chromedp.SendKeys(selPasswordInput, kb.Enter, chromedp.ByQuery)); err != nil {
			return errors.Mark(errors.Wrap(err, "submit login form"), ErrLoginFailed)
		}
	}

	if err := c.waitVisible(ctx, selHeader); err != nil {
		return errors.Mark(errors.Wrap(err, "main page did not load"), ErrLoginFailed)
	}
	c.logger.Info("login succeeded", zap.String("login_id", id))
	return nil
}

// GotoHome opens the main feed.
func (c *Client) GotoHome(ctx context.Context) error {
	if err := c.navigate(ctx, homeURL); err != nil {
		return errors.Wrap(err, "open home")
	}
	return c.page.Run(ctx, chromedp.Sleep(c.settleDelay))
}

// GotoSearch opens the search page.
func (c *Client) GotoSearch(ctx context.Context) error {
	if err := c.navigate(ctx, searchURL); err != nil {
		return errors.Wrap(err, "open search page")
	}
	return c.page.Run(ctx, chromedp.Sleep(c.settleDelay))
}

// Search submits a keyword query.
func (c *Client) Search(ctx context.Context, keyword string) error {
	if err := c.waitVisible(ctx, selSearchInput); err != nil {
		return errors.Wrap(err, "search input did not appear")
	}
	return c.page.Run(ctx,
		chromedp.SendKeys(selSearchInput, keyword+kb.Enter, chromedp.ByQuery),
	)
}

// WaitArticles waits for search results to render.
func (c *Client) WaitArticles(ctx context.Context) error {
	if err := c.waitVisible(ctx, selArticle); err != nil {
		return errors.Mark(errors.Wrap(err, "search results did not render"), ErrNoContentFound)
	}
	return nil
}

// ScrollDown scrolls one viewport to let the feed load more results.
func (c *Client) ScrollDown(ctx context.Context) error {
	return c.page.Run(ctx,
		chromedp.Evaluate(`window.scrollBy(0, window.innerHeight)`, nil),
		chromedp.Sleep(c.shortDelay),
	)
}

// DismissModal closes a dialog overlay if one is covering the page.
func (c *Client) DismissModal(ctx context.Context) error {
	present, err := c.exists(ctx, selDialog)
	if err != nil || !present {
		return err
	}
	return c.page.Run(ctx,
		chromedp.KeyEvent(kb.Escape),
		chromedp.Sleep(c.shortDelay),
	)
}

// clickContaining clicks the first element matching sel whose text contains
// label. Returns false when no such element exists.
func (c *Client) clickContaining(ctx context.Context, sel, label string) (bool, error) {
	var clicked bool
	script := fmt.Sprintf(`(() => {
		for (const el of document.querySelectorAll(%q)) {
			if (el.textContent && el.textContent.includes(%q)) {
				el.click();
				return true;
			}
		}
		return false;
	})()`, sel, label)
	if err := c.page.Run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, errors.Wrapf(err, "click %s element", label)
	}
	return clicked, nil
}

// existsContaining reports whether any element matching sel has text
// containing label.
func (c *Client) existsContaining(ctx context.Context, sel, label string) (bool, error) {
	var found bool
	script := fmt.Sprintf(`(() => {
		for (const el of document.querySelectorAll(%q)) {
			if (el.textContent && el.textContent.includes(%q)) {
				return true;
			}
		}
		return false;
	})()`, sel, label)
	if err := c.page.Run(ctx, chromedp.Evaluate(script, &found)); err != nil {
		return false, errors.Wrapf(err, "probe %s element", label)
	}
	return found, nil
}

// clickFirst clicks the first element matching sel. Returns false when none
// exists.
func (c *Client) clickFirst(ctx context.Context, sel string) (bool, error) {
	var clicked bool
	script := fmt.Sprintf(`(() => {
		const el = document.querySelector(%q);
		if (el) { el.click(); return true; }
		return false;
	})()`, sel)
	if err := c.page.Run(ctx, chromedp.Evaluate(script, &clicked)); err != nil {
		return false, errors.Wrapf(err, "click %s", sel)
	}
	return clicked, nil
}
