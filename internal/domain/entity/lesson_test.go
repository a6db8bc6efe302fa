package entity

import (
	"strings"
	"testing"
	"time"
)

func validLesson() Lesson {
	return Lesson{
		ID:         1,
		Title:      "Present perfect vs simple past",
		Content:    "Use the present perfect for experiences without a fixed time.",
		Category:   CategoryGrammar,
		Difficulty: DifficultyIntermediate,
		Tags:       []string{"tense"},
		Source:     SourceManual,
		CreatedAt:  time.Now(),
	}
}

func TestLesson_Validate(t *testing.T) {
	used := time.Now()

	tests := []struct {
		name    string
		mutate  func(l *Lesson)
		wantErr string
	}{
		{"valid", func(l *Lesson) {}, ""},
		{"missing title", func(l *Lesson) { l.Title = "" }, "title"},
		{"missing content", func(l *Lesson) { l.Content = "" }, "content"},
		{"unknown category", func(l *Lesson) { l.Category = "listening" }, "category"},
		{"unknown difficulty", func(l *Lesson) { l.Difficulty = "expert" }, "difficulty"},
		{"unknown source", func(l *Lesson) { l.Source = "scraped" }, "source"},
		{"negative usage count", func(l *Lesson) {
			l.UsageCount = -1
			l.LastUsedAt = &used
		}, "usage count cannot be negative"},
		{"count without timestamp", func(l *Lesson) { l.UsageCount = 3 }, "inconsistent"},
		{"timestamp without count", func(l *Lesson) { l.LastUsedAt = &used }, "inconsistent"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := validLesson()
			tt.mutate(&l)
			err := l.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("Validate() = %v, want error containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestLesson_Unused(t *testing.T) {
	l := validLesson()
	if !l.Unused() {
		t.Error("fresh lesson should be unused")
	}

	now := time.Now()
	l.UsageCount = 1
	l.LastUsedAt = &now
	if l.Unused() {
		t.Error("published lesson should not be unused")
	}
}

func TestCategories_Copy(t *testing.T) {
	cats := Categories()
	cats[0] = "mutated"
	if Categories()[0] != CategoryGrammar {
		t.Error("Categories() must return a copy")
	}
}

func TestPostingAttempt_Validate(t *testing.T) {
	now := time.Now()

	ok := SuccessfulAttempt(7, 2, now)
	if err := ok.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if ok.LessonID == nil || *ok.LessonID != 7 {
		t.Fatalf("LessonID = %v, want 7", ok.LessonID)
	}

	exhausted := FailedAttempt(nil, "no lessons available", 0, now)
	if err := exhausted.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
	if exhausted.LessonID != nil {
		t.Error("content-exhaustion attempt must carry a nil lesson id")
	}

	bad := SuccessfulAttempt(7, 0, now)
	msg := "boom"
	bad.ErrorMessage = &msg
	if err := bad.Validate(); err == nil {
		t.Error("successful attempt with error message must fail validation")
	}

	negative := FailedAttempt(nil, "x", -1, now)
	if err := negative.Validate(); err == nil {
		t.Error("negative retry count must fail validation")
	}
}

func TestQuiz_Validate(t *testing.T) {
	q := Quiz{LessonID: 1, Question: "Pick the correct form", Options: []string{"has gone", "have gone"}, CorrectOption: 0}
	if err := q.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}

	q.CorrectOption = 2
	if err := q.Validate(); err == nil {
		t.Error("out-of-range correct option must fail validation")
	}

	q.Options = []string{"only one"}
	if err := q.Validate(); err == nil {
		t.Error("single-option quiz must fail validation")
	}
}
