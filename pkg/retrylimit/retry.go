package retrylimit

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// ErrMaxAttempts is returned when every attempt failed with a retryable error.
var ErrMaxAttempts = errors.New("max attempts exceeded")

// HTTPError is implemented by errors that carry a response status.
type HTTPError interface {
	error
	StatusCode() int
}

// FatalError marks an error that must not be retried.
type FatalError struct {
	Err error
}

func (f *FatalError) Error() string { return f.Err.Error() }
func (f *FatalError) Unwrap() error { return f.Err }

// Fatal wraps err so WithRetryConfig returns it at once. Fatal(nil) is nil.
func Fatal(err error) error {
	if err == nil {
		return nil
	}
	return &FatalError{Err: err}
}

type RetryConfig struct {
	// MaxAttempts bounds the number of calls; zero means 100.
	MaxAttempts int
	// InitialDelay and MaxDelay bound the exponential backoff between
	// ordinary failures.
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// RateLimitDelay is the fixed pause after a 429.
	RateLimitDelay time.Duration
	// Jitter adds up to a quarter of the delay at random.
	Jitter bool
	Logger zerolog.Logger
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:    100,
		InitialDelay:   500 * time.Millisecond,
		MaxDelay:       10 * time.Second,
		Multiplier:     2,
		RateLimitDelay: 100 * time.Millisecond,
		Jitter:         true,
		Logger:         zerolog.Nop(),
	}
}

// WithRetryConfig calls fn until it succeeds, returns a FatalError, ctx ends
// or cfg.MaxAttempts is spent. Each call first waits on lim when it is set.
// A 429 lowers lim and pauses for RateLimitDelay; a 5xx lowers lim and
// backs off like any other failure.
func WithRetryConfig(ctx context.Context, fn func() error, lim *AdaptiveLimiter, cfg RetryConfig) error {
	attempts := cfg.MaxAttempts
	if attempts <= 0 {
		attempts = 100
	}
	log := cfg.Logger
	delay := cfg.InitialDelay

	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if lim != nil {
			if err := lim.Wait(ctx); err != nil {
				return err
			}
		}

		err := fn()
		if err == nil {
			if lim != nil {
				lim.Success()
			}
			if attempt > 1 {
				log.Debug().Int("attempt", attempt).Msg("request succeeded after retry")
			}
			return nil
		}
		var fatal *FatalError
		if errors.As(err, &fatal) {
			return err
		}

		status := statusOf(err)
		if status == http.StatusTooManyRequests || status >= 500 {
			if lim != nil {
				lim.RateLimited()
			}
		}

		pause := delay
		if status == http.StatusTooManyRequests {
			pause = cfg.RateLimitDelay
		} else {
			delay = min(time.Duration(float64(delay)*cfg.Multiplier), cfg.MaxDelay)
		}
		if cfg.Jitter && pause > 4 {
			pause += rand.N(pause / 4)
		}
		log.Warn().Err(err).Int("attempt", attempt).Int("status", status).Dur("wait", pause).Msg("request failed, retrying")

		if err := sleep(ctx, pause); err != nil {
			return err
		}
	}
	return fmt.Errorf("%w (%d)", ErrMaxAttempts, attempts)
}

// statusOf returns the HTTP status carried by err, or 0.
func statusOf(err error) int {
	var httpErr HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode()
	}
	return 0
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
