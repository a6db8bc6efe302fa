// Package entity defines the core domain entities and validation logic for the application.
// It contains the fundamental business objects such as Lesson and PostingAttempt, along
// with their validation rules and domain-specific errors.
package entity

import "time"

// Lesson categories. The set is closed; repositories and the selector
// rely on it for rotation order.
const (
	CategoryGrammar        = "grammar"
	CategoryVocabulary     = "vocabulary"
	CategoryCommonMistakes = "common_mistakes"
)

// Lesson difficulty levels.
const (
	DifficultyBeginner     = "beginner"
	DifficultyIntermediate = "intermediate"
	DifficultyAdvanced     = "advanced"
)

// Lesson content origins.
const (
	SourceManual      = "manual"
	SourceImported    = "imported"
	SourceAIGenerated = "ai_generated"
)

// Categories returns the fixed category rotation order.
// The slice is a copy; callers may modify it freely.
func Categories() []string {
	return []string{CategoryGrammar, CategoryVocabulary, CategoryCommonMistakes}
}

// Lesson represents a single publishable content item.
// Usage metadata (LastUsedAt, UsageCount) is mutated only through the
// lesson repository's MarkUsed and ResetCycle operations.
//
// Invariant: UsageCount == 0 if and only if LastUsedAt == nil.
type Lesson struct {
	ID         int64
	Title      string
	Content    string
	Category   string
	Difficulty string
	Tags       []string
	Source     string
	CreatedAt  time.Time
	LastUsedAt *time.Time
	UsageCount int
}

// Validate checks the lesson's content and metadata against the closed
// category/difficulty/source sets.
func (l *Lesson) Validate() error {
	if l.Title == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if l.Content == "" {
		return &ValidationError{Field: "content", Message: "content is required"}
	}
	if !isOneOf(l.Category, Categories()) {
		return &ValidationError{Field: "category", Message: "category must be one of grammar, vocabulary, common_mistakes"}
	}
	if !isOneOf(l.Difficulty, []string{DifficultyBeginner, DifficultyIntermediate, DifficultyAdvanced}) {
		return &ValidationError{Field: "difficulty", Message: "difficulty must be one of beginner, intermediate, advanced"}
	}
	if !isOneOf(l.Source, []string{SourceManual, SourceImported, SourceAIGenerated}) {
		return &ValidationError{Field: "source", Message: "source must be one of manual, imported, ai_generated"}
	}
	if l.UsageCount < 0 {
		return &ValidationError{Field: "usage_count", Message: "usage count cannot be negative"}
	}
	if (l.UsageCount == 0) != (l.LastUsedAt == nil) {
		return &ValidationError{Field: "usage_count", Message: "usage count and last used timestamp are inconsistent"}
	}
	return nil
}

// Unused reports whether the lesson has never been published.
func (l *Lesson) Unused() bool {
	return l.UsageCount == 0
}

func isOneOf(v string, valid []string) bool {
	for _, s := range valid {
		if v == s {
			return true
		}
	}
	return false
}
