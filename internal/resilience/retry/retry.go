// Package retry provides retry logic with exponential backoff.
// It helps handle transient failures gracefully by automatically retrying failed operations.
// Sleeping is abstracted behind the Sleeper interface so tests can run without real delays.
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"syscall"
	"time"
)

// Config holds the configuration for retry logic.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first one
	MaxAttempts int

	// BaseDelay is the delay before the second attempt; the delay before
	// attempt i (zero-based) is BaseDelay * 2^(i-1)
	BaseDelay time.Duration

	// MaxDelay caps the computed backoff delay
	MaxDelay time.Duration

	// JitterFraction is the fraction of delay to add as random jitter (0.0 to 1.0)
	JitterFraction float64
}

// DefaultConfig returns a default retry configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      1 * time.Second,
		MaxDelay:       5 * time.Minute,
		JitterFraction: 0,
	}
}

// DeliveryConfig returns configuration for delivery channel sends,
// built from the operator-supplied retry settings.
func DeliveryConfig(maxAttempts int, baseDelay time.Duration) Config {
	cfg := DefaultConfig()
	cfg.MaxAttempts = maxAttempts
	cfg.BaseDelay = baseDelay
	return cfg
}

// DBConfig returns configuration optimized for database operations.
// Fast retry for transient connection issues.
func DBConfig() Config {
	return Config{
		MaxAttempts:    3,
		BaseDelay:      100 * time.Millisecond,
		MaxDelay:       1 * time.Second,
		JitterFraction: 0.1,
	}
}

// Sleeper abstracts the wait between attempts. The standard
// implementation uses the wall clock; tests inject a recording fake.
type Sleeper interface {
	// Sleep waits for d or until ctx is cancelled, returning ctx.Err()
	// in the latter case.
	Sleep(ctx context.Context, d time.Duration) error
}

// StdSleeper sleeps on the wall clock.
type StdSleeper struct{}

func (StdSleeper) Sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ErrNoAttempts is returned when the configuration permits zero attempts.
var ErrNoAttempts = errors.New("retry: no attempts configured")

// WithBackoff executes fn with exponential backoff, returning the number
// of attempts made and the final error (nil on success).
//
// The delay before attempt i is BaseDelay * 2^(i-1), capped at MaxDelay,
// except when the previous failure carries an explicit retry-after hint
// (a RateLimited delivery error), which overrides the computed delay.
// Non-retryable errors abort immediately. No new attempt is started once
// ctx is cancelled.
func WithBackoff(ctx context.Context, cfg Config, sleeper Sleeper, fn func() error) (int, error) {
	if cfg.MaxAttempts <= 0 {
		return 0, ErrNoAttempts
	}
	if sleeper == nil {
		sleeper = StdSleeper{}
	}

	var lastErr error
	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return attempt, fmt.Errorf("retry aborted: %w", err)
		}

		lastErr = fn()
		if lastErr == nil {
			if attempt > 0 {
				slog.Info("operation succeeded after retry",
					slog.Int("attempt", attempt+1))
			}
			return attempt + 1, nil
		}

		if !IsRetryable(lastErr) {
			slog.Warn("non-retryable error, aborting",
				slog.Int("attempt", attempt+1),
				slog.Any("error", lastErr))
			return attempt + 1, lastErr
		}

		if attempt == cfg.MaxAttempts-1 {
			break
		}

		delay := backoffDelay(cfg, attempt)
		if override, ok := RetryAfterHint(lastErr); ok {
			delay = override
		}

		slog.Warn("operation failed, retrying",
			slog.Int("attempt", attempt+1),
			slog.Int("max_attempts", cfg.MaxAttempts),
			slog.Duration("delay", delay),
			slog.Any("error", lastErr))

		if err := sleeper.Sleep(ctx, delay); err != nil {
			return attempt + 1, fmt.Errorf("retry aborted: %w", err)
		}
	}

	return cfg.MaxAttempts, fmt.Errorf("max retry attempts (%d) exceeded: %w", cfg.MaxAttempts, lastErr)
}

// backoffDelay computes BaseDelay * 2^attempt with cap and jitter.
// attempt is the zero-based index of the attempt that just failed.
func backoffDelay(cfg Config, attempt int) time.Duration {
	delay := cfg.BaseDelay << uint(attempt)
	if cfg.MaxDelay > 0 && delay > cfg.MaxDelay {
		delay = cfg.MaxDelay
	}
	return addJitter(delay, cfg.JitterFraction)
}

// retryable is implemented by errors that know whether they are worth
// retrying (delivery channel errors classify themselves).
type retryable interface {
	Retryable() bool
}

// retryAfterer is implemented by rate-limit errors that carry the wait
// time imposed by the remote service.
type retryAfterer interface {
	RetryAfter() (time.Duration, bool)
}

// IsRetryable determines if an error is worth retrying.
// Errors implementing Retryable() classify themselves; otherwise
// network timeouts and transient syscall errors are retryable.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}

	// Context errors are not retryable
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	var r retryable
	if errors.As(err, &r) {
		return r.Retryable()
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ETIMEDOUT) ||
		errors.Is(err, syscall.ENETUNREACH) {
		return true
	}

	return false
}

// RetryAfterHint extracts an explicit retry-after duration from the
// error chain, if any.
func RetryAfterHint(err error) (time.Duration, bool) {
	var ra retryAfterer
	if errors.As(err, &ra) {
		return ra.RetryAfter()
	}
	return 0, false
}

// addJitter adds random jitter to a duration to prevent thundering herd.
func addJitter(duration time.Duration, jitterFraction float64) time.Duration {
	if jitterFraction <= 0 {
		return duration
	}
	if jitterFraction > 1.0 {
		jitterFraction = 1.0
	}
	// #nosec G404 -- math/rand is fine for backoff jitter.
	jitter := time.Duration(rand.Float64() * float64(duration) * jitterFraction)
	return duration + jitter
}
