package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type statusErr int

func (s statusErr) Error() string   { return fmt.Sprintf("status %d", int(s)) }
func (s statusErr) StatusCode() int { return int(s) }

func fastConfig(attempts int) RetryConfig {
	cfg := DefaultRetryConfig()
	cfg.MaxAttempts = attempts
	cfg.InitialDelay = time.Millisecond
	cfg.MaxDelay = time.Millisecond
	cfg.RateLimitDelay = time.Millisecond
	cfg.Jitter = false
	return cfg
}

func TestWithRetryConfig(t *testing.T) {
	t.Run("rate limit is retried", func(t *testing.T) {
		lim := NewAdaptiveLimiter(50, 1, 100, 1, 0.5)
		calls := 0
		err := WithRetryConfig(context.Background(), func() error {
			calls++
			if calls < 3 {
				return fmt.Errorf("send: %w", statusErr(429))
			}
			return nil
		}, lim, fastConfig(5))
		assert.NoError(t, err)
		assert.Equal(t, 3, calls)
		assert.Less(t, lim.CurrentLimit(), 50.0)
	})

	t.Run("fatal stops immediately", func(t *testing.T) {
		calls := 0
		forbidden := errors.New("missing permissions")
		err := WithRetryConfig(context.Background(), func() error {
			calls++
			return Fatal(forbidden)
		}, nil, fastConfig(5))
		assert.ErrorIs(t, err, forbidden)
		assert.Equal(t, 1, calls)
	})

	t.Run("attempts are bounded", func(t *testing.T) {
		calls := 0
		err := WithRetryConfig(context.Background(), func() error {
			calls++
			return statusErr(429)
		}, nil, fastConfig(3))
		assert.ErrorIs(t, err, ErrMaxAttempts)
		assert.Equal(t, 3, calls)
	})

	t.Run("context cancel", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := WithRetryConfig(ctx, func() error { return nil }, nil, fastConfig(3))
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestFatalNil(t *testing.T) {
	assert.NoError(t, Fatal(nil))
}
