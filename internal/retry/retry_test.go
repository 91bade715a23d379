package retry

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoSucceedsAfterFailures(t *testing.T) {
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, time.Millisecond, 5, None)

	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDoReturnsLastErrorUnmodified(t *testing.T) {
	sentinel := errors.New("boom")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return sentinel
	}, time.Millisecond, 3, None)

	assert.Equal(t, 3, calls)
	assert.ErrorIs(t, err, sentinel)
}

func TestDoStopsOnPermanentError(t *testing.T) {
	closed := errors.New("browser closed")
	calls := 0
	err := Do(context.Background(), func(context.Context) error {
		calls++
		return Permanent(closed)
	}, time.Millisecond, 5, Linear)

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, err, closed)
	assert.True(t, IsPermanent(err))
}

func TestDoHonorsContextCancellationDuringWait(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	start := time.Now()
	err := Do(ctx, func(context.Context) error {
		return errors.New("transient")
	}, time.Hour, 2, None)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Less(t, time.Since(start), time.Second)
}

func TestBackoffMonotonicity(t *testing.T) {
	interval := 100 * time.Millisecond

	t.Run("linear grows proportionally", func(t *testing.T) {
		for attempt := 1; attempt <= 10; attempt++ {
			assert.Equal(t, interval*time.Duration(attempt), Backoff(Linear, interval, attempt))
		}
	})

	t.Run("exponential never decreases and is capped", func(t *testing.T) {
		prev := time.Duration(0)
		for attempt := 1; attempt <= 64; attempt++ {
			wait := Backoff(Exponential, interval, attempt)
			assert.GreaterOrEqual(t, wait, prev, "attempt %d", attempt)
			assert.LessOrEqual(t, wait, MaxBackoff, "attempt %d", attempt)
			prev = wait
		}
		assert.Equal(t, MaxBackoff, Backoff(Exponential, interval, 64))
	})

	t.Run("none is constant", func(t *testing.T) {
		assert.Equal(t, interval, Backoff(None, interval, 1))
		assert.Equal(t, interval, Backoff(None, interval, 7))
	})
}

func TestParseStrategy(t *testing.T) {
	assert.Equal(t, Exponential, ParseStrategy("exponential"))
	assert.Equal(t, None, ParseStrategy("none"))
	assert.Equal(t, Linear, ParseStrategy("linear"))
	assert.Equal(t, Linear, ParseStrategy("unknown"))
}
