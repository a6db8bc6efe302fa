package repository

import (
	"context"
	"time"

	"lessonbot/internal/domain/entity"
)

// LessonRepository is the content store consumed by the lesson selector.
// Implementations return (nil, nil) when a single-row lookup matches
// nothing; absence of content is an expected condition, not an error.
type LessonRepository interface {
	GetAll(ctx context.Context) ([]*entity.Lesson, error)
	GetByCategory(ctx context.Context, category string) ([]*entity.Lesson, error)

	// GetUnused returns lessons with zero usage, oldest created first.
	GetUnused(ctx context.Context) ([]*entity.Lesson, error)

	// GetLeastRecentlyUsed returns the lesson with the smallest
	// last_used_at, never-used lessons winning ties.
	GetLeastRecentlyUsed(ctx context.Context) (*entity.Lesson, error)

	// MarkUsed stamps last_used_at and increments usage_count.
	MarkUsed(ctx context.Context, id int64, usedAt time.Time) error

	// ResetCycle clears usage metadata on every lesson.
	ResetCycle(ctx context.Context) error

	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, lesson *entity.Lesson) error
}
