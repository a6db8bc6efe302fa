package entity

import "time"

// PostingAttempt records a single attempt to publish a lesson.
// Attempts are append-only: once recorded they are never mutated.
//
// LessonID is nil when no lesson was available for the attempt.
type PostingAttempt struct {
	ID           int64
	LessonID     *int64
	Success      bool
	ErrorMessage *string
	RetryCount   int
	OccurredAt   time.Time
}

// FailedAttempt builds a failed attempt for the given lesson and error
// message. lessonID may be nil when content was exhausted.
func FailedAttempt(lessonID *int64, message string, retries int, now time.Time) PostingAttempt {
	return PostingAttempt{
		LessonID:     lessonID,
		Success:      false,
		ErrorMessage: &message,
		RetryCount:   retries,
		OccurredAt:   now,
	}
}

// SuccessfulAttempt builds a successful attempt for the given lesson.
func SuccessfulAttempt(lessonID int64, retries int, now time.Time) PostingAttempt {
	return PostingAttempt{
		LessonID:   &lessonID,
		Success:    true,
		RetryCount: retries,
		OccurredAt: now,
	}
}

// Validate checks attempt consistency before persisting.
func (p *PostingAttempt) Validate() error {
	if p.RetryCount < 0 {
		return &ValidationError{Field: "retry_count", Message: "retry count cannot be negative"}
	}
	if p.LessonID != nil && *p.LessonID <= 0 {
		return &ValidationError{Field: "lesson_id", Message: "lesson id must be positive"}
	}
	if p.Success && p.ErrorMessage != nil {
		return &ValidationError{Field: "error_message", Message: "successful attempt cannot carry an error message"}
	}
	return nil
}
