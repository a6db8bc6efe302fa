// Package quiz builds follow-up quizzes for published lessons.
package quiz

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"sync"
	"time"

	"lessonbot/internal/domain/entity"
	"lessonbot/internal/repository"
)

// maxDistractors caps the number of wrong answers per quiz. With the
// correct title included a quiz has at most four options.
const maxDistractors = 3

// TitleBuilder builds a recall quiz from lesson titles: the question asks
// which topic the lesson covered, the correct answer is the lesson's own
// title and the distractors are titles of other lessons, preferring the
// same category.
type TitleBuilder struct {
	repo   repository.LessonRepository
	logger *slog.Logger

	mu  sync.Mutex
	rng *rand.Rand
}

// NewTitleBuilder creates a TitleBuilder backed by the lesson store.
func NewTitleBuilder(repo repository.LessonRepository, logger *slog.Logger) *TitleBuilder {
	if logger == nil {
		logger = slog.Default()
	}
	return &TitleBuilder{
		repo:   repo,
		logger: logger,
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// SetRand overrides the randomness source for tests.
func (b *TitleBuilder) SetRand(rng *rand.Rand) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rng = rng
}

// BuildQuiz returns a quiz for lesson, or (nil, nil) when the lesson pool
// has no other titles to draw distractors from.
func (b *TitleBuilder) BuildQuiz(ctx context.Context, lesson *entity.Lesson) (*entity.Quiz, error) {
	if lesson == nil {
		return nil, fmt.Errorf("quiz: lesson is required")
	}

	distractors, err := b.distractors(ctx, lesson)
	if err != nil {
		return nil, fmt.Errorf("load distractor titles: %w", err)
	}
	if len(distractors) == 0 {
		b.logger.Debug("no distractor titles available, skipping quiz",
			slog.Int64("lesson_id", lesson.ID))
		return nil, nil
	}

	options := append([]string{lesson.Title}, distractors...)
	correct := b.shuffleTrack(options, 0)

	q := &entity.Quiz{
		LessonID:      lesson.ID,
		Question:      fmt.Sprintf("Which topic did today's %s lesson cover?", categoryLabel(lesson.Category)),
		Options:       options,
		CorrectOption: correct,
	}
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("built quiz is invalid: %w", err)
	}
	return q, nil
}

// distractors returns up to maxDistractors titles of other lessons,
// drawn from the same category first and the whole pool when the
// category is too small.
func (b *TitleBuilder) distractors(ctx context.Context, lesson *entity.Lesson) ([]string, error) {
	pool, err := b.repo.GetByCategory(ctx, lesson.Category)
	if err != nil {
		return nil, err
	}
	titles := otherTitles(pool, lesson)
	if len(titles) >= maxDistractors {
		return b.pick(titles, maxDistractors), nil
	}

	all, err := b.repo.GetAll(ctx)
	if err != nil {
		return nil, err
	}
	titles = otherTitles(all, lesson)
	if len(titles) > maxDistractors {
		titles = b.pick(titles, maxDistractors)
	}
	return titles, nil
}

// pick returns n random elements of titles without repetition.
func (b *TitleBuilder) pick(titles []string, n int) []string {
	out := make([]string, len(titles))
	copy(out, titles)
	b.shuffleTrack(out, -1)
	return out[:n]
}

// shuffleTrack shuffles s in place and returns the final position of the
// element that started at index track, or -1 when track is -1.
func (b *TitleBuilder) shuffleTrack(s []string, track int) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rng.Shuffle(len(s), func(i, j int) {
		s[i], s[j] = s[j], s[i]
		switch track {
		case i:
			track = j
		case j:
			track = i
		}
	})
	return track
}

func otherTitles(lessons []*entity.Lesson, lesson *entity.Lesson) []string {
	seen := map[string]struct{}{lesson.Title: {}}
	var titles []string
	for _, l := range lessons {
		if l.ID == lesson.ID {
			continue
		}
		if _, dup := seen[l.Title]; dup {
			continue
		}
		seen[l.Title] = struct{}{}
		titles = append(titles, l.Title)
	}
	return titles
}

func categoryLabel(category string) string {
	return strings.ReplaceAll(category, "_", " ")
}
