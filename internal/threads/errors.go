package threads

import (
	"context"
	"strings"

	"github.com/cockroachdb/errors"
)

// Error messages are user-facing: they end up in job result messages and the
// per-run log stream, so they stay in the product's original Korean wording.
var (
	ErrLoginFailed      = errors.New("로그인 실패")
	ErrNoContentFound   = errors.New("검색 결과 게시물 없음")
	ErrAlreadyFollowed  = errors.New("이미 팔로우 된 사용자")
	ErrAlreadyLiked     = errors.New("이미 좋아요 완료")
	ErrAlreadyReposted  = errors.New("이미 리포스트 완료")
	ErrCommentFailed    = errors.New("댓글 전송버튼 찾을 수 없음")
	ErrPostSubmitFailed = errors.New("게시글 게시 버튼 찾을 수 없음")
)

// IsAlreadyDone reports whether the error only means the action had been
// performed before. Such errors are logged but do not abort a run.
func IsAlreadyDone(err error) bool {
	return errors.Is(err, ErrAlreadyFollowed) ||
		errors.Is(err, ErrAlreadyLiked) ||
		errors.Is(err, ErrAlreadyReposted)
}

// IsSessionClosed reports whether the error indicates the browser session is
// gone. No further page actions can succeed after this. A deadline expiry is
// not session loss: bounded selector waits time out on a live page and stay
// retryable.
func IsSessionClosed(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "websocket: close") ||
		strings.Contains(msg, "target closed") ||
		strings.Contains(msg, "browser closed")
}
