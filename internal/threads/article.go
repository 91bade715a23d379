package threads

import (
	"context"
	"fmt"
	"time"

	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/chromedp"
	"github.com/chromedp/chromedp/kb"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

// Article is one post in the search results, identified by its
// data-interactive-id attribute.
type Article struct {
	ID      string `json:"id"`
	Excerpt string `json:"excerpt"`
}

const excerptLabelRunes = 20

// Label returns the short excerpt tag used in log messages.
func (a Article) Label() string {
	runes := []rune(a.Excerpt)
	if len(runes) > excerptLabelRunes {
		runes = runes[:excerptLabelRunes]
	}
	return fmt.Sprintf("[%s...]", string(runes))
}

// Articles scans the rendered search results.
func (c *Client) Articles(ctx context.Context) ([]Article, error) {
	var articles []Article
	script := fmt.Sprintf(`(() => {
		const out = [];
		for (const el of document.querySelectorAll(%q)) {
			const d = el.querySelector(%q);
			out.push({
				id: el.getAttribute('data-interactive-id') || '',
				excerpt: d && d.textContent ? d.textContent : '',
			});
		}
		return out;
	})()`, selArticle, selExcerpt)
	if err := c.page.Run(ctx, chromedp.Evaluate(script, &articles)); err != nil {
		return nil, errors.Wrap(err, "scan articles")
	}
	return articles, nil
}

func articleActionSelector(articleID, ariaLabel string) string {
	return fmt.Sprintf(`div[data-interactive-id=%q] svg[aria-label=%q]`, articleID, ariaLabel)
}

// IsFollowed reports whether the article's author is already followed. The
// follow button disappears once following.
func (c *Client) IsFollowed(ctx context.Context, a Article) (bool, error) {
	present, err := c.exists(ctx, articleActionSelector(a.ID, ariaFollow))
	return !present, err
}

// IsLiked reports whether the article is already liked.
func (c *Client) IsLiked(ctx context.Context, a Article) (bool, error) {
	present, err := c.exists(ctx, articleActionSelector(a.ID, ariaLike))
	return !present, err
}

// Follow follows the article's author, confirming through the popup when one
// appears. Returns ErrAlreadyFollowed when the follow button is gone.
func (c *Client) Follow(ctx context.Context, a Article) error {
	if err := c.DismissModal(ctx); err != nil {
		return err
	}
	sel := articleActionSelector(a.ID, ariaFollow)
	present, err := c.exists(ctx, sel)
	if err != nil {
		return err
	}
	if !present {
		return errors.Mark(errors.Newf("%s 이미 팔로우 된 사용자", a.Label()), ErrAlreadyFollowed)
	}
	if _, err := c.clickFirst(ctx, sel); err != nil {
		return err
	}
	if err := c.page.Run(ctx, chromedp.Sleep(c.settleDelay)); err != nil {
		return err
	}
	// A confirmation popup shows for private profiles.
	if _, err := c.clickFirst(ctx, selOverlayButtons); err != nil {
		return err
	}
	if err := c.page.Run(ctx, chromedp.KeyEvent(kb.Escape)); err != nil {
		return err
	}
	c.logger.Debug("followed author", zap.String("article", a.Label()))
	return nil
}

// Like likes the article. Returns ErrAlreadyLiked when the like button is
// gone.
func (c *Client) Like(ctx context.Context, a Article) error {
	if err := c.DismissModal(ctx); err != nil {
		return err
	}
	sel := articleActionSelector(a.ID, ariaLike)
	present, err := c.exists(ctx, sel)
	if err != nil {
		return err
	}
	if !present {
		return errors.Mark(errors.Newf("%s 이미 좋아요 완료", a.Label()), ErrAlreadyLiked)
	}
	if _, err := c.clickFirst(ctx, sel); err != nil {
		return err
	}
	if err := c.page.Run(ctx, chromedp.Sleep(c.shortDelay)); err != nil {
		return err
	}
	c.logger.Debug("liked article", zap.String("article", a.Label()))
	return nil
}

// IsReposted reports whether the article is already reposted. The check has
// to open the action sheet: the repost icon stays rendered either way, and
// only the sheet reveals whether a repost entry remains. The sheet is
// dismissed before returning.
func (c *Client) IsReposted(ctx context.Context, a Article) (bool, error) {
	if err := c.DismissModal(ctx); err != nil {
		return false, err
	}
	sel := articleActionSelector(a.ID, ariaRepost)
	present, err := c.exists(ctx, sel)
	if err != nil {
		return false, err
	}
	if !present {
		return false, errors.Newf("%s 리포스트 버튼 찾을 수 없음", a.Label())
	}
	if _, err := c.clickFirst(ctx, sel); err != nil {
		return false, err
	}
	if err := c.page.Run(ctx, chromedp.Sleep(c.settleDelay)); err != nil {
		return false, err
	}
	canRepost, err := c.existsContaining(ctx, selOverlaySpans, labelRepost)
	if err != nil {
		return false, err
	}
	if err := c.DismissModal(ctx); err != nil {
		return false, err
	}
	return !canRepost, nil
}

// Repost reposts the article through the action sheet. When the sheet offers
// no repost entry the post was already reposted.
func (c *Client) Repost(ctx context.Context, a Article) error {
	if err := c.DismissModal(ctx); err != nil {
		return err
	}
	sel := articleActionSelector(a.ID, ariaRepost)
	present, err := c.exists(ctx, sel)
	if err != nil {
		return err
	}
	if !present {
		return errors.Newf("%s 리포스트 버튼 찾을 수 없음", a.Label())
	}
	if _, err := c.clickFirst(ctx, sel); err != nil {
		return err
	}
	if err := c.page.Run(ctx, chromedp.Sleep(c.settleDelay)); err != nil {
		return err
	}

	clicked, err := c.clickContaining(ctx, selOverlaySpans, labelRepost)
	if err != nil {
		return err
	}
	if !clicked {
		if err := c.DismissModal(ctx); err != nil {
			return err
		}
		return errors.Mark(errors.Newf("%s 이미 리포스트 완료", a.Label()), ErrAlreadyReposted)
	}
	if err := c.page.Run(ctx, chromedp.Sleep(c.settleDelay)); err != nil {
		return err
	}
	c.logger.Debug("reposted article", zap.String("article", a.Label()))
	return nil
}

// Comment writes a reply on the article. The composer submits either through
// an overlay popup or an inline button depending on the layout.
func (c *Client) Comment(ctx context.Context, a Article, message string) error {
	if err := c.DismissModal(ctx); err != nil {
		return err
	}
	sel := articleActionSelector(a.ID, ariaReply)
	present, err := c.exists(ctx, sel)
	if err != nil {
		return err
	}
	if !present {
		return errors.Newf("%s 댓글 버튼 찾을 수 없음", a.Label())
	}
	if _, err := c.clickFirst(ctx, sel); err != nil {
		return err
	}
	if err := c.page.Run(ctx,
		chromedp.Sleep(c.settleDelay),
		input.InsertText(message),
		chromedp.Sleep(c.shortDelay),
	); err != nil {
		return errors.Wrap(err, "type comment")
	}

	submitted, err := c.clickContaining(ctx, selOverlayButtons, labelPublish)
	if err != nil {
		return err
	}
	if !submitted {
		// Inline composer layout: the submit control is the reply icon
		// inside the article itself.
		inlineSel := fmt.Sprintf(`div[data-interactive-id=%q] svg[aria-label=%q][viewBox="0 0 24 24"]`, a.ID, ariaReply)
		if submitted, err = c.clickFirst(ctx, inlineSel); err != nil {
			return err
		}
	}
	if !submitted {
		return errors.Mark(errors.Newf("%s 댓글 전송버튼 찾을 수 없음", a.Label()), ErrCommentFailed)
	}
	c.logger.Debug("commented on article", zap.String("article", a.Label()))
	return nil
}

// PostArticle publishes a new post from the home feed. The composer opens by
// tapping the center of the bottom tab bar.
func (c *Client) PostArticle(ctx context.Context, content string) error {
	x := float64(c.viewportWidth) / 2
	y := float64(c.viewportHeight) - 50
	if err := c.page.Run(ctx,
		chromedp.MouseClickXY(x, y),
		chromedp.Sleep(c.settleDelay),
		input.InsertText(content),
		chromedp.Sleep(c.settleDelay),
	); err != nil {
		return errors.Wrap(err, "open composer")
	}

	submitted, err := c.clickContaining(ctx, `div[role="button"], button`, labelPublish)
	if err != nil {
		return err
	}
	if !submitted {
		return errors.Mark(errors.New("게시글 게시 버튼 찾을 수 없음"), ErrPostSubmitFailed)
	}
	// Give the post time to land before the page is torn down.
	return c.page.Run(ctx, chromedp.Sleep(5*time.Second))
}
