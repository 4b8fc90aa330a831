package common

import (
	"context"
	"math"

	"golang.org/x/time/rate"
)

// RateLimiter paces an operation. A non-positive rate means unlimited.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter allows rps events per second with bursts of up to burst.
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	return &RateLimiter{limiter: rate.NewLimiter(toLimit(rps), max(burst, 1))}
}

// Wait blocks until the limiter allows one event or ctx is done.
func (rl *RateLimiter) Wait(ctx context.Context) error { return rl.limiter.Wait(ctx) }

func toLimit(rps float64) rate.Limit {
	if rps <= 0 || math.IsInf(rps, 1) {
		return rate.Inf
	}
	return rate.Limit(rps)
}
