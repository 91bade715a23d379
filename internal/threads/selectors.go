package threads

// Selectors for the Threads mobile web UI. Aria labels are the Korean locale
// strings; the lang=ko-KR browser flag keeps them stable.
const (
	loginURL  = "https://www.threads.com/login/"
	homeURL   = "https://www.threads.com"
	searchURL = "https://www.threads.com/search"

	selLoginLink     = `a[role="link"]`
	selUsernameInput = `input[autocomplete="username"]`
	selPasswordInput = `input[autocomplete="current-password"]`
	selHeader        = `#barcelona-header`
	selSearchInput   = `input[type="search"]`
	selArticle       = `div[data-interactive-id]`
	selExcerpt       = `div > div:nth-child(3) > div > div:nth-child(1)`

	// Action sheets and confirmation popups render in a light-mode overlay
	// outside the article subtree.
	selOverlayButtons = `div.__fb-light-mode div[role="button"]`
	selOverlaySpans   = `div.__fb-light-mode span`
	selDialog         = `div[role="dialog"]`

	// The login form submit has no stable attribute. It is the div that
	// immediately follows the password input's parent.
	xpathLoginSubmit = `//input[@autocomplete="current-password"]/parent::*/following-sibling::div[1]`

	ariaFollow = "팔로우"
	ariaLike   = "좋아요"
	ariaRepost = "리포스트"
	ariaReply  = "답글"

	labelRepost  = "리포스트"
	labelPublish = "게시"
)
