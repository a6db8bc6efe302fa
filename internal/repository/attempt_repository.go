package repository

import (
	"context"
	"time"

	"lessonbot/internal/domain/entity"
)

// PostingAttemptRepository persists the append-only publication log.
type PostingAttemptRepository interface {
	// Record appends an attempt. Attempts are never updated afterwards.
	Record(ctx context.Context, attempt *entity.PostingAttempt) error

	// LastSuccessAt returns the time of the most recent successful
	// attempt, or (nil, nil) when nothing has ever been published.
	// Used by the scheduler's missed-post check on startup.
	LastSuccessAt(ctx context.Context) (*time.Time, error)
}
