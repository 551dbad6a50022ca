// Package retrylimit paces outbound REST calls and retries the ones the
// remote side throttled.
package retrylimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// cooldown is how long a throttled limiter refuses to speed up again.
const cooldown = 10 * time.Second

// AdaptiveLimiter is a token bucket whose rate climbs by a fixed step on
// success and shrinks by a factor when the remote side throttles.
type AdaptiveLimiter struct {
	mu        sync.Mutex
	bucket    *rate.Limiter
	floor     rate.Limit
	ceiling   rate.Limit
	step      rate.Limit
	backoff   float64
	throttled time.Time
}

// NewAdaptiveLimiter starts at initial requests per second and stays within
// [floor, ceiling]. Each success adds step; each throttle multiplies by
// backoff.
func NewAdaptiveLimiter(initial, floor, ceiling, step rate.Limit, backoff float64) *AdaptiveLimiter {
	floor = max(floor, 1)
	initial = min(max(initial, floor), max(ceiling, floor))
	return &AdaptiveLimiter{
		bucket:  rate.NewLimiter(initial, burstFor(initial)),
		floor:   floor,
		ceiling: max(ceiling, floor),
		step:    step,
		backoff: backoff,
	}
}

func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.bucket.Wait(ctx)
}

// Success raises the rate unless the limiter was throttled recently.
func (a *AdaptiveLimiter) Success() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if time.Since(a.throttled) < cooldown {
		return
	}
	a.set(a.bucket.Limit() + a.step)
}

// RateLimited lowers the rate and starts the cooldown.
func (a *AdaptiveLimiter) RateLimited() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.throttled = time.Now()
	a.set(rate.Limit(float64(a.bucket.Limit()) * a.backoff))
}

// CurrentLimit reports the rate in requests per second.
func (a *AdaptiveLimiter) CurrentLimit() float64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return float64(a.bucket.Limit())
}

func (a *AdaptiveLimiter) set(l rate.Limit) {
	l = min(max(l, a.floor), a.ceiling)
	if l == a.bucket.Limit() {
		return
	}
	a.bucket.SetLimit(l)
	a.bucket.SetBurst(burstFor(l))
}

func burstFor(l rate.Limit) int {
	return max(1, int(l))
}
