package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"
)

// Limiter gates requests for one session.
type Limiter struct {
	limiter *rate.Limiter
}

// New returns a Limiter allowing rps requests per second with no burst.
// rps <= 0 disables limiting.
func New(rps float64) *Limiter {
	if rps <= 0 {
		return &Limiter{}
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(rps), 1)}
}

// Wait blocks until the next request is permitted or ctx is done.
func (l *Limiter) Wait(ctx context.Context) error {
	if l == nil || l.limiter == nil {
		return ctx.Err()
	}
	return l.limiter.Wait(ctx)
}

// Interval returns the minimum spacing between requests, or 0 when disabled.
func (l *Limiter) Interval() time.Duration {
	if l == nil || l.limiter == nil {
		return 0
	}
	return time.Duration(float64(time.Second) / float64(l.limiter.Limit()))
}

// Enabled reports whether the limiter throttles at all.
func (l *Limiter) Enabled() bool {
	return l != nil && l.limiter != nil
}

// Slowest returns the stricter of the configured rate and the rate implied
// by a robots.txt crawl-delay. A non-positive crawlDelay leaves rps unchanged.
func Slowest(rps float64, crawlDelay time.Duration) float64 {
	if crawlDelay <= 0 {
		return rps
	}
	delayRate := 1 / crawlDelay.Seconds()
	if rps <= 0 || delayRate < rps {
		return delayRate
	}
	return rps
}
