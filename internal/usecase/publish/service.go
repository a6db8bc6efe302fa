// Package publish implements the lesson publish pipeline: pick a lesson,
// deliver it through the channel with retry and circuit breaking, record
// the attempt, and schedule the follow-up quiz.
package publish

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"lessonbot/internal/domain/entity"
	"lessonbot/internal/observability/tracing"
	"lessonbot/internal/repository"
	"lessonbot/internal/resilience/coordinator"
	"lessonbot/internal/resilience/retry"
	"lessonbot/internal/scheduler"
	"lessonbot/internal/usecase/selector"
)

// BreakerDelivery is the circuit breaker name guarding the delivery channel.
const BreakerDelivery = "delivery"

// Publish outcomes used for metrics and logging.
const (
	outcomeSuccess     = "success"
	outcomeNoContent   = "no_content"
	outcomeCircuitOpen = "circuit_open"
	outcomeFailure     = "failure"
	outcomeSkipped     = "skipped"
)

// ContentSelector picks the next lesson and marks lessons as used.
type ContentSelector interface {
	Next(ctx context.Context, strategy selector.Strategy, category string) (*entity.Lesson, error)
	MarkUsed(ctx context.Context, lessonID int64) error
}

// Coordinator receives failure and success signals from the pipeline and
// reports the current system mode. Non-essential work consults the mode
// before running; the daily publish itself never does, it is degraded last.
type Coordinator interface {
	Mode() coordinator.SystemMode
	HandleOperationFailure(ctx context.Context, operation string, severity coordinator.Severity)
	HandleOperationSuccess()
	HandleNetworkError(ctx context.Context)
	HandleNetworkRecovery()
}

// BreakerRegistry gates delivery calls per dependency.
type BreakerRegistry interface {
	Allow(name string) bool
	RecordSuccess(name string)
	RecordFailure(name string)
}

// FollowUpScheduler schedules the post-lesson quiz job.
type FollowUpScheduler interface {
	ScheduleFollowUp(lessonID int64, delay time.Duration, job scheduler.Job)
}

// QuizBuilder produces the follow-up quiz for a published lesson.
// A nil builder disables follow-ups entirely.
type QuizBuilder interface {
	BuildQuiz(ctx context.Context, lesson *entity.Lesson) (*entity.Quiz, error)
}

// Config holds the publish pipeline settings.
type Config struct {
	// Strategy selects how the next lesson is chosen.
	Strategy selector.Strategy

	// Category restricts selection when non-empty.
	Category string

	// RetryAttempts is the total number of delivery attempts per publish.
	RetryAttempts int

	// RetryBaseDelay is the delay before the second delivery attempt.
	RetryBaseDelay time.Duration

	// QuizzesEnabled turns follow-up quiz scheduling on.
	QuizzesEnabled bool

	// QuizDelay is how long after a successful lesson the quiz fires.
	QuizDelay time.Duration
}

// DefaultConfig returns the standard publish settings.
func DefaultConfig() Config {
	return Config{
		Strategy:       selector.StrategyUnusedFirst,
		RetryAttempts:  3,
		RetryBaseDelay: 1 * time.Second,
		QuizzesEnabled: true,
		QuizDelay:      30 * time.Minute,
	}
}

// Result reports what a single publish run did.
type Result struct {
	// Lesson is the selected lesson, nil when content was exhausted.
	Lesson *entity.Lesson

	// Attempt is the posting record written for this run.
	Attempt entity.PostingAttempt

	// Attempts is the number of delivery calls made (0 when no send happened).
	Attempts int

	// ExternalID is the channel's message id on success.
	ExternalID string
}

// Service orchestrates a single lesson publication end to end.
type Service struct {
	channel  Channel
	selector ContentSelector
	attempts repository.PostingAttemptRepository
	coord    Coordinator
	breakers BreakerRegistry
	sched    FollowUpScheduler
	quizzes  QuizBuilder
	sleeper  retry.Sleeper
	metrics  *Metrics
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time
}

// NewService creates a publish service. sched and quizzes may be nil,
// which disables follow-up quizzes. metrics may be nil.
func NewService(
	channel Channel,
	sel ContentSelector,
	attempts repository.PostingAttemptRepository,
	coord Coordinator,
	breakers BreakerRegistry,
	sched FollowUpScheduler,
	quizzes QuizBuilder,
	cfg Config,
	metrics *Metrics,
	logger *slog.Logger,
) (*Service, error) {
	if channel == nil {
		return nil, fmt.Errorf("publish: channel is required")
	}
	if sel == nil {
		return nil, fmt.Errorf("publish: content selector is required")
	}
	if attempts == nil {
		return nil, fmt.Errorf("publish: attempt repository is required")
	}
	if coord == nil {
		return nil, fmt.Errorf("publish: coordinator is required")
	}
	if breakers == nil {
		return nil, fmt.Errorf("publish: breaker registry is required")
	}
	if cfg.RetryAttempts <= 0 {
		return nil, fmt.Errorf("publish: retry attempts must be positive, got %d", cfg.RetryAttempts)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		channel:  channel,
		selector: sel,
		attempts: attempts,
		coord:    coord,
		breakers: breakers,
		sched:    sched,
		quizzes:  quizzes,
		sleeper:  retry.StdSleeper{},
		metrics:  metrics,
		logger:   logger,
		cfg:      cfg,
		now:      time.Now,
	}, nil
}

// SetSleeper replaces the retry sleeper. Tests use this to avoid real delays.
func (s *Service) SetSleeper(sl retry.Sleeper) {
	s.sleeper = sl
}

// SetNowFunc overrides the clock for tests.
func (s *Service) SetNowFunc(now func() time.Time) {
	s.now = now
}

// Execute runs one publish cycle: select, deliver with retry, record,
// schedule the follow-up. A nil error with a nil Result.Lesson means no
// content was available; delivery failures return the delivery error
// alongside the recorded attempt.
func (s *Service) Execute(ctx context.Context) (*Result, error) {
	ctx, span := tracing.GetTracer().Start(ctx, "publish.Execute")
	defer span.End()

	start := s.now()
	defer func() {
		s.metrics.RecordPublishDuration(time.Since(start).Seconds())
	}()

	lesson, err := s.selector.Next(ctx, s.cfg.Strategy, s.cfg.Category)
	if err != nil {
		s.logger.Error("lesson selection failed",
			slog.String("strategy", string(s.cfg.Strategy)),
			slog.Any("error", err))
		s.coord.HandleOperationFailure(ctx, "lesson_publish", coordinator.SeverityMedium)
		s.metrics.RecordPublish(outcomeFailure)
		attempt := entity.FailedAttempt(nil, fmt.Sprintf("selection failed: %v", err), 0, s.now())
		s.record(ctx, &attempt)
		return &Result{Attempt: attempt}, fmt.Errorf("select lesson: %w", err)
	}

	if lesson == nil {
		s.logger.Warn("no lesson available to publish",
			slog.String("strategy", string(s.cfg.Strategy)))
		s.metrics.RecordPublish(outcomeNoContent)
		attempt := entity.FailedAttempt(nil, "no content available", 0, s.now())
		s.record(ctx, &attempt)
		return &Result{Attempt: attempt}, nil
	}

	span.SetAttributes(attribute.Int64("lesson.id", lesson.ID))

	if !s.breakers.Allow(BreakerDelivery) {
		s.logger.Warn("delivery circuit breaker open, skipping publish",
			slog.Int64("lesson_id", lesson.ID))
		s.metrics.RecordPublish(outcomeCircuitOpen)
		lessonID := lesson.ID
		attempt := entity.FailedAttempt(&lessonID, "circuit breaker open", 0, s.now())
		s.record(ctx, &attempt)
		return &Result{Lesson: lesson, Attempt: attempt}, ErrCircuitOpen
	}

	var externalID string
	attempts, sendErr := retry.WithBackoff(ctx, s.retryConfig(), s.sleeper, func() error {
		id, err := s.channel.SendLesson(ctx, lesson)
		if err != nil {
			return err
		}
		externalID = id
		return nil
	})
	retries := attempts - 1
	if retries < 0 {
		retries = 0
	}
	s.metrics.RecordRetries(retries)

	if sendErr != nil {
		return s.handleSendFailure(ctx, span, lesson, sendErr, attempts, retries)
	}

	s.breakers.RecordSuccess(BreakerDelivery)
	s.coord.HandleOperationSuccess()
	s.coord.HandleNetworkRecovery()

	if err := s.selector.MarkUsed(ctx, lesson.ID); err != nil {
		// The lesson reached the channel; a bookkeeping failure must not
		// undo that, so log and move on.
		s.logger.Warn("failed to mark lesson as used",
			slog.Int64("lesson_id", lesson.ID),
			slog.Any("error", err))
	}

	attempt := entity.SuccessfulAttempt(lesson.ID, retries, s.now())
	s.record(ctx, &attempt)
	s.metrics.RecordPublish(outcomeSuccess)

	s.logger.Info("lesson published",
		slog.Int64("lesson_id", lesson.ID),
		slog.String("category", lesson.Category),
		slog.String("external_id", externalID),
		slog.Int("attempts", attempts))

	s.scheduleQuiz(lesson)

	return &Result{
		Lesson:     lesson,
		Attempt:    attempt,
		Attempts:   attempts,
		ExternalID: externalID,
	}, nil
}

func (s *Service) retryConfig() retry.Config {
	return retry.DeliveryConfig(s.cfg.RetryAttempts, s.cfg.RetryBaseDelay)
}

func (s *Service) handleSendFailure(ctx context.Context, span trace.Span, lesson *entity.Lesson, sendErr error, attempts, retries int) (*Result, error) {
	span.RecordError(sendErr)

	var se *SendError
	errors.As(sendErr, &se)

	// Rate limiting is the channel telling us to slow down, not the
	// channel being broken; it must not push the breaker toward open.
	rateLimited := se != nil && se.Kind == KindRateLimited
	if !rateLimited {
		s.breakers.RecordFailure(BreakerDelivery)
	}

	severity := coordinator.SeverityMedium
	if se != nil && se.Kind == KindPermanent {
		severity = coordinator.SeverityHigh
	}
	s.coord.HandleOperationFailure(ctx, "lesson_publish", severity)
	if se != nil && se.Kind == KindTransient {
		s.coord.HandleNetworkError(ctx)
	}

	lessonID := lesson.ID
	attempt := entity.FailedAttempt(&lessonID, sendErr.Error(), retries, s.now())
	s.record(ctx, &attempt)
	s.metrics.RecordPublish(outcomeFailure)

	s.logger.Error("lesson publish failed",
		slog.Int64("lesson_id", lesson.ID),
		slog.Int("attempts", attempts),
		slog.Any("error", sendErr))

	return &Result{Lesson: lesson, Attempt: attempt, Attempts: attempts}, fmt.Errorf("deliver lesson %d: %w", lesson.ID, sendErr)
}

// record persists the attempt. A storage failure here is logged but never
// changes the publish outcome.
func (s *Service) record(ctx context.Context, attempt *entity.PostingAttempt) {
	if err := s.attempts.Record(ctx, attempt); err != nil {
		s.logger.Error("failed to record posting attempt",
			slog.Bool("success", attempt.Success),
			slog.Any("error", err))
	}
}

// scheduleQuiz registers the follow-up quiz after a successful lesson.
// Rescheduling for the same lesson replaces the pending quiz.
func (s *Service) scheduleQuiz(lesson *entity.Lesson) {
	if !s.cfg.QuizzesEnabled || s.sched == nil || s.quizzes == nil {
		return
	}
	s.sched.ScheduleFollowUp(lesson.ID, s.cfg.QuizDelay, func(ctx context.Context) error {
		return s.publishQuiz(ctx, lesson)
	})
	s.logger.Info("follow-up quiz scheduled",
		slog.Int64("lesson_id", lesson.ID),
		slog.Duration("delay", s.cfg.QuizDelay))
}

// publishQuiz builds and delivers the follow-up quiz for a lesson, under
// the same breaker and retry policy as the lesson itself.
func (s *Service) publishQuiz(ctx context.Context, lesson *entity.Lesson) error {
	ctx, span := tracing.GetTracer().Start(ctx, "publish.Quiz")
	defer span.End()
	span.SetAttributes(attribute.Int64("lesson.id", lesson.ID))

	// Follow-up quizzes are non-essential work; the lesson already went
	// out, and a constrained host should spend nothing on extras.
	if mode := s.coord.Mode(); mode >= coordinator.ModeMinimal {
		s.logger.Warn("skipping follow-up quiz in degraded system mode",
			slog.Int64("lesson_id", lesson.ID),
			slog.String("mode", mode.String()))
		s.metrics.RecordQuizPublish(outcomeSkipped)
		return nil
	}

	quiz, err := s.quizzes.BuildQuiz(ctx, lesson)
	if err != nil {
		s.logger.Error("quiz build failed",
			slog.Int64("lesson_id", lesson.ID),
			slog.Any("error", err))
		s.metrics.RecordQuizPublish(outcomeFailure)
		return fmt.Errorf("build quiz for lesson %d: %w", lesson.ID, err)
	}
	if quiz == nil {
		s.metrics.RecordQuizPublish(outcomeNoContent)
		return nil
	}
	if err := quiz.Validate(); err != nil {
		s.metrics.RecordQuizPublish(outcomeFailure)
		return fmt.Errorf("invalid quiz for lesson %d: %w", lesson.ID, err)
	}

	if !s.breakers.Allow(BreakerDelivery) {
		s.logger.Warn("delivery circuit breaker open, dropping quiz",
			slog.Int64("lesson_id", lesson.ID))
		s.metrics.RecordQuizPublish(outcomeCircuitOpen)
		return ErrCircuitOpen
	}

	_, sendErr := retry.WithBackoff(ctx, s.retryConfig(), s.sleeper, func() error {
		_, err := s.channel.SendQuiz(ctx, quiz)
		return err
	})
	if sendErr != nil {
		var se *SendError
		if !(errors.As(sendErr, &se) && se.Kind == KindRateLimited) {
			s.breakers.RecordFailure(BreakerDelivery)
		}
		s.metrics.RecordQuizPublish(outcomeFailure)
		s.logger.Error("quiz publish failed",
			slog.Int64("lesson_id", lesson.ID),
			slog.Any("error", sendErr))
		return fmt.Errorf("deliver quiz for lesson %d: %w", lesson.ID, sendErr)
	}

	s.breakers.RecordSuccess(BreakerDelivery)
	s.metrics.RecordQuizPublish(outcomeSuccess)
	s.logger.Info("follow-up quiz published", slog.Int64("lesson_id", lesson.ID))
	return nil
}
