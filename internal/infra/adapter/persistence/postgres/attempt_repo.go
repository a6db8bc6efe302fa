package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"lessonbot/internal/domain/entity"
	"lessonbot/internal/repository"
)

type AttemptRepo struct{ db Querier }

func NewAttemptRepo(db Querier) repository.PostingAttemptRepository {
	return &AttemptRepo{db: db}
}

func (repo *AttemptRepo) Record(ctx context.Context, attempt *entity.PostingAttempt) error {
	if err := attempt.Validate(); err != nil {
		return fmt.Errorf("Record: %w", err)
	}

	const query = `
INSERT INTO posting_attempts (lesson_id, success, error_message, retry_count, occurred_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id`
	err := repo.db.QueryRowContext(ctx, query,
		attempt.LessonID, attempt.Success, attempt.ErrorMessage, attempt.RetryCount, attempt.OccurredAt,
	).Scan(&attempt.ID)
	if err != nil {
		return fmt.Errorf("Record: %w", err)
	}
	return nil
}

func (repo *AttemptRepo) LastSuccessAt(ctx context.Context) (*time.Time, error) {
	const query = `
SELECT occurred_at
FROM posting_attempts
WHERE success = TRUE
ORDER BY occurred_at DESC
LIMIT 1`
	var at time.Time
	err := repo.db.QueryRowContext(ctx, query).Scan(&at)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("LastSuccessAt: %w", err)
	}
	return &at, nil
}
