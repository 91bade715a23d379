package automation

import (
	"strings"

	"github.com/cockroachdb/errors"
)

// RunConfig describes one interactive engagement run.
type RunConfig struct {
	JobID   string
	LoginID string
	LoginPW string
	Keyword string

	// Delay bounds in seconds between consecutive actions.
	MinDelay int
	MaxDelay int

	// MaxCount is the number of content items to process before the run
	// completes.
	MaxCount int

	// Messages are the candidate reply texts; one is chosen at random per
	// commented item.
	Messages []string

	Follow  bool
	Like    bool
	Repost  bool
	Comment bool
}

// Validate rejects configurations that cannot run safely.
func (c RunConfig) Validate() error {
	if strings.TrimSpace(c.LoginID) == "" {
		return errors.New("login id is required")
	}
	if c.LoginPW == "" {
		return errors.New("login password is required")
	}
	if strings.TrimSpace(c.Keyword) == "" {
		return errors.New("search keyword is required")
	}
	if c.MinDelay < 0 {
		return errors.New("min delay must not be negative")
	}
	if c.MaxDelay < c.MinDelay {
		return errors.New("max delay must be >= min delay")
	}
	if c.MaxCount <= 0 {
		return errors.New("target count must be positive")
	}
	if !c.Follow && !c.Like && !c.Repost && !c.Comment {
		return errors.New("at least one action must be enabled")
	}
	// A comment leaves no DOM trace a probe can verify, so a retried run
	// would comment the same posts again. Requiring a verifiable action
	// alongside lets the dedup probes gate the whole item.
	if c.Comment && !c.Follow && !c.Like && !c.Repost {
		return errors.New("comment action requires follow, like, or repost to be enabled as well")
	}
	if c.Comment && !hasNonBlank(c.Messages) {
		return errors.New("comment action requires at least one message")
	}
	return nil
}

func hasNonBlank(msgs []string) bool {
	for _, m := range msgs {
		if strings.TrimSpace(m) != "" {
			return true
		}
	}
	return false
}
