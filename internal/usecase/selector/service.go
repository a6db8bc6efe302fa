// Package selector picks the next lesson to publish while avoiding repeats
// within the configured usage cycle.
package selector

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"lessonbot/internal/domain/entity"
	"lessonbot/internal/observability/metrics"
	"lessonbot/internal/repository"
)

// Strategy selects how the next lesson is chosen.
type Strategy string

const (
	// StrategyUnusedFirst prefers lessons never published this cycle,
	// oldest first, falling back to least-recently-used.
	StrategyUnusedFirst Strategy = "unused_first"
	// StrategyLeastRecentlyUsed picks the lesson with the smallest
	// last-used timestamp, never-used lessons winning.
	StrategyLeastRecentlyUsed Strategy = "least_recently_used"
	// StrategyCategoryRotation cycles through categories round-robin,
	// applying unused-first within each.
	StrategyCategoryRotation Strategy = "category_rotation"
)

// DefaultCycleDays is the rotation period after which used lessons become
// eligible again.
const DefaultCycleDays = 30

// Stats summarizes the lesson pool for health and status reporting.
type Stats struct {
	Total      int
	Unused     int
	ByCategory map[string]int
}

// Service is the content selector. Besides the rotation cursor it keeps an
// in-memory record of lessons already handed out but not yet marked used,
// so back-to-back picks never re-issue the same lesson while unused stock
// remains.
type Service struct {
	repo      repository.LessonRepository
	logger    *slog.Logger
	cycleDays int

	mu           sync.Mutex
	lastCategory string
	dispatched   map[int64]struct{}
	now          func() time.Time
}

// NewService builds a selector. cycleDays <= 0 means DefaultCycleDays.
func NewService(repo repository.LessonRepository, cycleDays int, logger *slog.Logger) *Service {
	if cycleDays <= 0 {
		cycleDays = DefaultCycleDays
	}
	return &Service{
		repo:       repo,
		logger:     logger,
		cycleDays:  cycleDays,
		dispatched: make(map[int64]struct{}),
		now:        time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (s *Service) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Next returns the next lesson for the strategy, optionally restricted to a
// category. A (nil, nil) result means no lesson matched; running out of
// content is a steady-state condition, not an error.
func (s *Service) Next(ctx context.Context, strategy Strategy, category string) (*entity.Lesson, error) {
	switch strategy {
	case StrategyUnusedFirst:
		return s.unusedFirst(ctx, category)
	case StrategyLeastRecentlyUsed:
		return s.leastRecentlyUsed(ctx, category)
	case StrategyCategoryRotation:
		return s.categoryRotation(ctx)
	default:
		return nil, fmt.Errorf("unknown selection strategy %q", strategy)
	}
}

func (s *Service) unusedFirst(ctx context.Context, category string) (*entity.Lesson, error) {
	var candidates []*entity.Lesson
	if category == "" {
		unused, err := s.repo.GetUnused(ctx)
		if err != nil {
			return nil, fmt.Errorf("get unused lessons: %w", err)
		}
		candidates = unused
	} else {
		lessons, err := s.repo.GetByCategory(ctx, category)
		if err != nil {
			return nil, fmt.Errorf("get lessons for category %s: %w", category, err)
		}
		for _, lesson := range lessons {
			if lesson.Unused() {
				candidates = append(candidates, lesson)
			}
		}
	}

	s.mu.Lock()
	for _, lesson := range candidates {
		if _, seen := s.dispatched[lesson.ID]; seen {
			continue
		}
		s.dispatched[lesson.ID] = struct{}{}
		s.mu.Unlock()
		return lesson, nil
	}
	s.mu.Unlock()

	// All unused stock has been handed out; fall back to the
	// least-recently-used ordering, which may repeat.
	return s.leastRecentlyUsed(ctx, category)
}

func (s *Service) leastRecentlyUsed(ctx context.Context, category string) (*entity.Lesson, error) {
	if category == "" {
		lesson, err := s.repo.GetLeastRecentlyUsed(ctx)
		if err != nil {
			return nil, fmt.Errorf("get least recently used lesson: %w", err)
		}
		return lesson, nil
	}

	lessons, err := s.repo.GetByCategory(ctx, category)
	if err != nil {
		return nil, fmt.Errorf("get lessons for category %s: %w", category, err)
	}
	return leastRecentlyUsedOf(lessons), nil
}

// leastRecentlyUsedOf picks the lesson with the smallest last-used
// timestamp, treating never-used as smaller than any timestamp. Ties keep
// the earlier lesson in creation order.
func leastRecentlyUsedOf(lessons []*entity.Lesson) *entity.Lesson {
	var best *entity.Lesson
	for _, lesson := range lessons {
		if best == nil || usedBefore(lesson, best) {
			best = lesson
		}
	}
	return best
}

func usedBefore(a, b *entity.Lesson) bool {
	switch {
	case a.LastUsedAt == nil && b.LastUsedAt == nil:
		return false
	case a.LastUsedAt == nil:
		return true
	case b.LastUsedAt == nil:
		return false
	default:
		return a.LastUsedAt.Before(*b.LastUsedAt)
	}
}

func (s *Service) categoryRotation(ctx context.Context) (*entity.Lesson, error) {
	s.mu.Lock()
	last := s.lastCategory
	s.mu.Unlock()

	categories := entity.Categories()
	start := 0
	for i, c := range categories {
		if c == last {
			start = i + 1
			break
		}
	}

	// Probe every category once, starting after the last dispatched one.
	for i := 0; i < len(categories); i++ {
		category := categories[(start+i)%len(categories)]
		lesson, err := s.unusedFirst(ctx, category)
		if err != nil {
			return nil, err
		}
		if lesson != nil {
			s.mu.Lock()
			s.lastCategory = category
			s.mu.Unlock()
			return lesson, nil
		}
	}
	return nil, nil
}

// MarkUsed stamps the lesson as published now. A failed mark is logged and
// returned, but callers treat it as non-fatal: over-counting one use is
// preferable to blocking the publish path.
func (s *Service) MarkUsed(ctx context.Context, id int64) error {
	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()

	if err := s.repo.MarkUsed(ctx, id, now); err != nil {
		s.logger.Warn("mark lesson used failed",
			slog.Int64("lesson_id", id),
			slog.Any("error", err),
		)
		return fmt.Errorf("mark lesson %d used: %w", id, err)
	}

	// The mark is now visible in the store, drop the in-memory hold.
	s.mu.Lock()
	delete(s.dispatched, id)
	s.mu.Unlock()
	return nil
}

// NeedsCycleReset reports whether every lesson has been used and the least
// recently used one is older than the cycle length. It is a recommendation
// for an operator; the selector never resets on its own.
func (s *Service) NeedsCycleReset(ctx context.Context) (bool, error) {
	unused, err := s.repo.GetUnused(ctx)
	if err != nil {
		return false, fmt.Errorf("get unused lessons: %w", err)
	}
	if len(unused) > 0 {
		return false, nil
	}

	oldest, err := s.repo.GetLeastRecentlyUsed(ctx)
	if err != nil {
		return false, fmt.Errorf("get least recently used lesson: %w", err)
	}
	if oldest == nil || oldest.LastUsedAt == nil {
		return false, nil
	}

	s.mu.Lock()
	now := s.now()
	s.mu.Unlock()

	cycle := time.Duration(s.cycleDays) * 24 * time.Hour
	return now.Sub(*oldest.LastUsedAt) > cycle, nil
}

// ResetCycle clears usage metadata on every lesson and forgets the rotation
// cursor, starting a fresh cycle.
func (s *Service) ResetCycle(ctx context.Context) error {
	if err := s.repo.ResetCycle(ctx); err != nil {
		return fmt.Errorf("reset cycle: %w", err)
	}

	s.mu.Lock()
	s.lastCategory = ""
	s.dispatched = make(map[int64]struct{})
	s.mu.Unlock()

	metrics.RecordCycleReset()
	s.logger.Info("lesson cycle reset")
	return nil
}

// Stats returns pool counts for status reporting.
func (s *Service) Stats(ctx context.Context) (Stats, error) {
	lessons, err := s.repo.GetAll(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("get all lessons: %w", err)
	}

	stats := Stats{
		Total:      len(lessons),
		ByCategory: make(map[string]int),
	}
	for _, lesson := range lessons {
		stats.ByCategory[lesson.Category]++
		if lesson.Unused() {
			stats.Unused++
		}
	}
	return stats, nil
}
