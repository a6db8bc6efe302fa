package notifier

import (
	"context"

	"golang.org/x/time/rate"
)

// RateLimiter is a token bucket guarding outbound provider requests. It
// keeps the channel under the provider's sustained rate while letting short
// bursts through.
type RateLimiter struct {
	limiter *rate.Limiter
}

// NewRateLimiter creates a limiter that refills at requestsPerSecond and
// allows up to burst immediate requests.
func NewRateLimiter(requestsPerSecond float64, burst int) *RateLimiter {
	return &RateLimiter{
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), burst),
	}
}

// Allow blocks until a token is available or ctx is done.
func (r *RateLimiter) Allow(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}
