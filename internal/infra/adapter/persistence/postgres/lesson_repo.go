// Package postgres implements the repository interfaces on PostgreSQL
// via database/sql and the pgx stdlib driver.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"lessonbot/internal/domain/entity"
	"lessonbot/internal/repository"
)

type LessonRepo struct{ db Querier }

// Querier is the subset of *sql.DB used by the repositories. The
// circuit breaker wrapper in internal/resilience/circuitbreaker
// satisfies it as well, so repositories can run gated or ungated.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

func NewLessonRepo(db Querier) repository.LessonRepository {
	return &LessonRepo{db: db}
}

const lessonColumns = "id, title, content, category, difficulty, tags, source, created_at, last_used_at, usage_count"

// scanLesson scans a single lesson row including the JSON-encoded tag list.
func scanLesson(rows *sql.Rows) (*entity.Lesson, error) {
	var lesson entity.Lesson
	var tagsJSON []byte
	if err := rows.Scan(
		&lesson.ID, &lesson.Title, &lesson.Content, &lesson.Category, &lesson.Difficulty,
		&tagsJSON, &lesson.Source, &lesson.CreatedAt, &lesson.LastUsedAt, &lesson.UsageCount,
	); err != nil {
		return nil, err
	}
	if len(tagsJSON) > 0 {
		if err := json.Unmarshal(tagsJSON, &lesson.Tags); err != nil {
			return nil, fmt.Errorf("unmarshal tags: %w", err)
		}
	}
	return &lesson, nil
}

func (repo *LessonRepo) queryLessons(ctx context.Context, query string, args ...interface{}) ([]*entity.Lesson, error) {
	rows, err := repo.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	lessons := make([]*entity.Lesson, 0, 50)
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, err
		}
		lessons = append(lessons, lesson)
	}
	return lessons, rows.Err()
}

func (repo *LessonRepo) GetAll(ctx context.Context) ([]*entity.Lesson, error) {
	const query = `
SELECT ` + lessonColumns + `
FROM lessons
ORDER BY created_at ASC, id ASC`
	lessons, err := repo.queryLessons(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("GetAll: %w", err)
	}
	return lessons, nil
}

func (repo *LessonRepo) GetByCategory(ctx context.Context, category string) ([]*entity.Lesson, error) {
	const query = `
SELECT ` + lessonColumns + `
FROM lessons
WHERE category = $1
ORDER BY created_at ASC, id ASC`
	lessons, err := repo.queryLessons(ctx, query, category)
	if err != nil {
		return nil, fmt.Errorf("GetByCategory: %w", err)
	}
	return lessons, nil
}

func (repo *LessonRepo) GetUnused(ctx context.Context) ([]*entity.Lesson, error) {
	const query = `
SELECT ` + lessonColumns + `
FROM lessons
WHERE usage_count = 0
ORDER BY created_at ASC, id ASC`
	lessons, err := repo.queryLessons(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("GetUnused: %w", err)
	}
	return lessons, nil
}

func (repo *LessonRepo) GetLeastRecentlyUsed(ctx context.Context) (*entity.Lesson, error) {
	// NULLS FIRST keeps never-used lessons ahead of any timestamp.
	const query = `
SELECT ` + lessonColumns + `
FROM lessons
ORDER BY last_used_at ASC NULLS FIRST, created_at ASC, id ASC
LIMIT 1`
	rows, err := repo.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("GetLeastRecentlyUsed: %w", err)
	}
	defer func() { _ = rows.Close() }()

	if !rows.Next() {
		return nil, rows.Err()
	}
	lesson, err := scanLesson(rows)
	if err != nil {
		return nil, fmt.Errorf("GetLeastRecentlyUsed: %w", err)
	}
	return lesson, rows.Err()
}

func (repo *LessonRepo) MarkUsed(ctx context.Context, id int64, usedAt time.Time) error {
	const query = `
UPDATE lessons
SET last_used_at = $2, usage_count = usage_count + 1
WHERE id = $1`
	result, err := repo.db.ExecContext(ctx, query, id, usedAt)
	if err != nil {
		return fmt.Errorf("MarkUsed: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("MarkUsed: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("MarkUsed: lesson %d: %w", id, entity.ErrNotFound)
	}
	return nil
}

func (repo *LessonRepo) ResetCycle(ctx context.Context) error {
	const query = `
UPDATE lessons
SET last_used_at = NULL, usage_count = 0`
	if _, err := repo.db.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("ResetCycle: %w", err)
	}
	return nil
}

func (repo *LessonRepo) Count(ctx context.Context) (int, error) {
	const query = `SELECT COUNT(*) FROM lessons`
	var count int
	if err := repo.db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		return 0, fmt.Errorf("Count: %w", err)
	}
	return count, nil
}

func (repo *LessonRepo) Create(ctx context.Context, lesson *entity.Lesson) error {
	if err := lesson.Validate(); err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	tagsJSON, err := json.Marshal(lesson.Tags)
	if err != nil {
		return fmt.Errorf("Create: marshal tags: %w", err)
	}

	const query = `
INSERT INTO lessons (title, content, category, difficulty, tags, source, created_at, last_used_at, usage_count)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
RETURNING id`
	err = repo.db.QueryRowContext(ctx, query,
		lesson.Title, lesson.Content, lesson.Category, lesson.Difficulty,
		tagsJSON, lesson.Source, lesson.CreatedAt, lesson.LastUsedAt, lesson.UsageCount,
	).Scan(&lesson.ID)
	if err != nil {
		return fmt.Errorf("Create: %w", err)
	}
	return nil
}
