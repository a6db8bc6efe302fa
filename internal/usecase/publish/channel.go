package publish

import (
	"context"
	"fmt"
	"time"

	"lessonbot/internal/domain/entity"
)

// Channel delivers lessons and quizzes to subscribers. Implementations
// handle transport-level rate limiting and classify failures as SendError;
// retries are the caller's responsibility.
// Each send returns the provider-assigned message id on success.
type Channel interface {
	Name() string
	SendLesson(ctx context.Context, lesson *entity.Lesson) (string, error)
	SendQuiz(ctx context.Context, quiz *entity.Quiz) (string, error)
}

// ErrorKind classifies a delivery failure for retry decisions.
type ErrorKind string

const (
	// KindRateLimited means the provider throttled the request. Retryable
	// after the hinted delay.
	KindRateLimited ErrorKind = "rate_limited"
	// KindTransient covers provider outages and network failures.
	// Retryable with backoff.
	KindTransient ErrorKind = "transient"
	// KindPermanent covers rejections that will not succeed on retry,
	// such as malformed requests or revoked credentials.
	KindPermanent ErrorKind = "permanent"
)

// SendError is a classified delivery failure.
type SendError struct {
	Kind       ErrorKind
	StatusCode int
	Message    string
	// RetryAfterHint is the provider-requested wait, set for rate limits.
	RetryAfterHint time.Duration
	Cause          error
}

func (e *SendError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("send failed (%s, status %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("send failed (%s): %s", e.Kind, e.Message)
}

func (e *SendError) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the failure may succeed on a later attempt.
func (e *SendError) Retryable() bool {
	return e.Kind == KindRateLimited || e.Kind == KindTransient
}

// RetryAfter returns the provider-requested wait, if any.
func (e *SendError) RetryAfter() (time.Duration, bool) {
	if e.Kind == KindRateLimited && e.RetryAfterHint > 0 {
		return e.RetryAfterHint, true
	}
	return 0, false
}
