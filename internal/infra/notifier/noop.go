package notifier

import (
	"context"

	"lessonbot/internal/domain/entity"
)

// NoOpChannel is a no-operation implementation of the publish.Channel
// interface, used when delivery is disabled so callers avoid nil checks.
type NoOpChannel struct{}

// NewNoOpChannel creates a NoOpChannel.
func NewNoOpChannel() *NoOpChannel {
	return &NoOpChannel{}
}

func (n *NoOpChannel) Name() string {
	return "noop"
}

// SendLesson does nothing and reports success.
func (n *NoOpChannel) SendLesson(ctx context.Context, lesson *entity.Lesson) (string, error) {
	return "", nil
}

// SendQuiz does nothing and reports success.
func (n *NoOpChannel) SendQuiz(ctx context.Context, quiz *entity.Quiz) (string, error) {
	return "", nil
}
