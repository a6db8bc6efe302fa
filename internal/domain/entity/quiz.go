package entity

// Quiz is a follow-up multiple-choice question posted after a lesson.
// Quiz content generation lives behind the publish use case's
// QuizBuilder interface; this entity only carries the result.
type Quiz struct {
	LessonID      int64
	Question      string
	Options       []string
	CorrectOption int
}

// Validate checks the quiz structure against the delivery channel's
// poll constraints (at least two options, correct index in range).
func (q *Quiz) Validate() error {
	if q.Question == "" {
		return &ValidationError{Field: "question", Message: "question is required"}
	}
	if len(q.Options) < 2 {
		return &ValidationError{Field: "options", Message: "quiz needs at least two options"}
	}
	if q.CorrectOption < 0 || q.CorrectOption >= len(q.Options) {
		return &ValidationError{Field: "correct_option", Message: "correct option index out of range"}
	}
	return nil
}
