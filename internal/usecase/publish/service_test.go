package publish

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"lessonbot/internal/domain/entity"
	"lessonbot/internal/resilience/coordinator"
	"lessonbot/internal/scheduler"
	"lessonbot/internal/usecase/selector"
)

type fakeChannel struct {
	lessonErrs  []error
	lessonCalls int
	lessonID    string

	quizErrs  []error
	quizCalls int
	lastQuiz  *entity.Quiz
}

func (f *fakeChannel) Name() string { return "fake" }

func (f *fakeChannel) SendLesson(ctx context.Context, lesson *entity.Lesson) (string, error) {
	call := f.lessonCalls
	f.lessonCalls++
	if call < len(f.lessonErrs) && f.lessonErrs[call] != nil {
		return "", f.lessonErrs[call]
	}
	return f.lessonID, nil
}

func (f *fakeChannel) SendQuiz(ctx context.Context, quiz *entity.Quiz) (string, error) {
	call := f.quizCalls
	f.quizCalls++
	f.lastQuiz = quiz
	if call < len(f.quizErrs) && f.quizErrs[call] != nil {
		return "", f.quizErrs[call]
	}
	return "q1", nil
}

type fakeSelector struct {
	lesson      *entity.Lesson
	nextErr     error
	markedIDs   []int64
	markUsedErr error
}

func (f *fakeSelector) Next(ctx context.Context, strategy selector.Strategy, category string) (*entity.Lesson, error) {
	if f.nextErr != nil {
		return nil, f.nextErr
	}
	return f.lesson, nil
}

func (f *fakeSelector) MarkUsed(ctx context.Context, lessonID int64) error {
	f.markedIDs = append(f.markedIDs, lessonID)
	return f.markUsedErr
}

type failureReport struct {
	operation string
	severity  coordinator.Severity
}

type fakeCoordinator struct {
	mode              coordinator.SystemMode
	failures          []failureReport
	successes         int
	networkErrors     int
	networkRecoveries int
}

func (f *fakeCoordinator) HandleOperationFailure(ctx context.Context, operation string, severity coordinator.Severity) {
	f.failures = append(f.failures, failureReport{operation: operation, severity: severity})
}

func (f *fakeCoordinator) Mode() coordinator.SystemMode           { return f.mode }
func (f *fakeCoordinator) HandleOperationSuccess()                { f.successes++ }
func (f *fakeCoordinator) HandleNetworkError(ctx context.Context) { f.networkErrors++ }
func (f *fakeCoordinator) HandleNetworkRecovery()                 { f.networkRecoveries++ }

type fakeBreakers struct {
	allow     bool
	successes []string
	failures  []string
}

func (f *fakeBreakers) Allow(name string) bool    { return f.allow }
func (f *fakeBreakers) RecordSuccess(name string) { f.successes = append(f.successes, name) }
func (f *fakeBreakers) RecordFailure(name string) { f.failures = append(f.failures, name) }

type fakeAttempts struct {
	recorded  []entity.PostingAttempt
	recordErr error
}

func (f *fakeAttempts) Record(ctx context.Context, attempt *entity.PostingAttempt) error {
	if f.recordErr != nil {
		return f.recordErr
	}
	f.recorded = append(f.recorded, *attempt)
	return nil
}

func (f *fakeAttempts) LastSuccessAt(ctx context.Context) (*time.Time, error) {
	return nil, nil
}

type scheduledFollowUp struct {
	lessonID int64
	delay    time.Duration
	job      scheduler.Job
}

type fakeFollowUps struct {
	scheduled []scheduledFollowUp
}

func (f *fakeFollowUps) ScheduleFollowUp(lessonID int64, delay time.Duration, job scheduler.Job) {
	f.scheduled = append(f.scheduled, scheduledFollowUp{lessonID: lessonID, delay: delay, job: job})
}

type fakeQuizzes struct {
	quiz *entity.Quiz
	err  error
}

func (f *fakeQuizzes) BuildQuiz(ctx context.Context, lesson *entity.Lesson) (*entity.Quiz, error) {
	return f.quiz, f.err
}

type recordingSleeper struct {
	slept []time.Duration
}

func (r *recordingSleeper) Sleep(ctx context.Context, d time.Duration) error {
	r.slept = append(r.slept, d)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testLesson() *entity.Lesson {
	return &entity.Lesson{
		ID:         7,
		Title:      "Phrasal verbs with get",
		Content:    "Get up, get over, get by.",
		Category:   "vocabulary",
		Difficulty: "intermediate",
	}
}

type testEnv struct {
	svc      *Service
	channel  *fakeChannel
	selector *fakeSelector
	coord    *fakeCoordinator
	breakers *fakeBreakers
	attempts *fakeAttempts
	sched    *fakeFollowUps
	quizzes  *fakeQuizzes
	sleeper  *recordingSleeper
	now      time.Time
}

func newTestEnv(t *testing.T, cfg Config) *testEnv {
	t.Helper()

	env := &testEnv{
		channel:  &fakeChannel{lessonID: "42"},
		selector: &fakeSelector{lesson: testLesson()},
		coord:    &fakeCoordinator{},
		breakers: &fakeBreakers{allow: true},
		attempts: &fakeAttempts{},
		sched:    &fakeFollowUps{},
		quizzes:  &fakeQuizzes{},
		sleeper:  &recordingSleeper{},
		now:      time.Date(2025, 6, 2, 9, 0, 0, 0, time.UTC),
	}

	svc, err := NewService(env.channel, env.selector, env.attempts, env.coord, env.breakers, env.sched, env.quizzes, cfg, nil, discardLogger())
	if err != nil {
		t.Fatalf("NewService() error = %v", err)
	}
	svc.SetSleeper(env.sleeper)
	svc.SetNowFunc(func() time.Time { return env.now })
	env.svc = svc
	return env
}

func baseConfig() Config {
	return Config{
		Strategy:       selector.StrategyUnusedFirst,
		RetryAttempts:  3,
		RetryBaseDelay: 1 * time.Second,
	}
}

func transientErr(msg string) *SendError {
	return &SendError{Kind: KindTransient, Message: msg}
}

func TestNewService_Validation(t *testing.T) {
	env := newTestEnv(t, baseConfig())

	cases := []struct {
		name string
		fn   func() (*Service, error)
	}{
		{"nil channel", func() (*Service, error) {
			return NewService(nil, env.selector, env.attempts, env.coord, env.breakers, nil, nil, baseConfig(), nil, nil)
		}},
		{"nil selector", func() (*Service, error) {
			return NewService(env.channel, nil, env.attempts, env.coord, env.breakers, nil, nil, baseConfig(), nil, nil)
		}},
		{"zero retry attempts", func() (*Service, error) {
			cfg := baseConfig()
			cfg.RetryAttempts = 0
			return NewService(env.channel, env.selector, env.attempts, env.coord, env.breakers, nil, nil, cfg, nil, nil)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := tc.fn(); err == nil {
				t.Error("NewService() expected error, got nil")
			}
		})
	}
}

func TestExecute_SucceedsAfterTransientFailures(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.channel.lessonErrs = []error{transientErr("bad gateway"), transientErr("bad gateway")}

	result, err := env.svc.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Attempts != 3 {
		t.Errorf("Attempts = %d, want 3", result.Attempts)
	}
	if result.ExternalID != "42" {
		t.Errorf("ExternalID = %q, want %q", result.ExternalID, "42")
	}
	wantSleeps := []time.Duration{1 * time.Second, 2 * time.Second}
	if diff := cmp.Diff(wantSleeps, env.sleeper.slept); diff != "" {
		t.Errorf("backoff sleeps mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]int64{7}, env.selector.markedIDs); diff != "" {
		t.Errorf("MarkUsed calls mismatch (-want +got):\n%s", diff)
	}

	if len(env.attempts.recorded) != 1 {
		t.Fatalf("recorded %d attempts, want 1", len(env.attempts.recorded))
	}
	attempt := env.attempts.recorded[0]
	if !attempt.Success {
		t.Error("recorded attempt not marked successful")
	}
	if attempt.RetryCount != 2 {
		t.Errorf("RetryCount = %d, want 2", attempt.RetryCount)
	}
	if attempt.LessonID == nil || *attempt.LessonID != 7 {
		t.Errorf("LessonID = %v, want 7", attempt.LessonID)
	}

	if len(env.breakers.successes) != 1 || len(env.breakers.failures) != 0 {
		t.Errorf("breaker calls = %d successes, %d failures, want 1 and 0",
			len(env.breakers.successes), len(env.breakers.failures))
	}
	if env.coord.successes != 1 || len(env.coord.failures) != 0 {
		t.Errorf("coordinator calls = %d successes, %d failures, want 1 and 0",
			env.coord.successes, len(env.coord.failures))
	}
}

func TestExecute_NoContent(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.selector.lesson = nil

	result, err := env.svc.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if result.Lesson != nil {
		t.Errorf("Lesson = %v, want nil", result.Lesson)
	}
	if env.channel.lessonCalls != 0 {
		t.Errorf("channel called %d times, want 0", env.channel.lessonCalls)
	}
	if len(env.attempts.recorded) != 1 {
		t.Fatalf("recorded %d attempts, want 1", len(env.attempts.recorded))
	}
	attempt := env.attempts.recorded[0]
	if attempt.Success || attempt.LessonID != nil {
		t.Errorf("attempt = %+v, want failed with nil lesson id", attempt)
	}
	if attempt.ErrorMessage == nil || *attempt.ErrorMessage != "no content available" {
		t.Errorf("ErrorMessage = %v, want %q", attempt.ErrorMessage, "no content available")
	}
	if len(env.coord.failures) != 0 {
		t.Errorf("coordinator failures = %d, want 0", len(env.coord.failures))
	}
}

func TestExecute_SelectionError(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.selector.nextErr = errors.New("db down")

	_, err := env.svc.Execute(context.Background())
	if err == nil {
		t.Fatal("Execute() expected error, got nil")
	}

	want := []failureReport{{operation: "lesson_publish", severity: coordinator.SeverityMedium}}
	if diff := cmp.Diff(want, env.coord.failures, cmp.AllowUnexported(failureReport{})); diff != "" {
		t.Errorf("coordinator failures mismatch (-want +got):\n%s", diff)
	}
	if len(env.attempts.recorded) != 1 || env.attempts.recorded[0].LessonID != nil {
		t.Errorf("recorded attempts = %+v, want one with nil lesson id", env.attempts.recorded)
	}
}

func TestExecute_CircuitOpen(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.breakers.allow = false

	result, err := env.svc.Execute(context.Background())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("Execute() error = %v, want ErrCircuitOpen", err)
	}

	if env.channel.lessonCalls != 0 {
		t.Errorf("channel called %d times, want 0", env.channel.lessonCalls)
	}
	if len(env.breakers.failures) != 0 {
		t.Errorf("RecordFailure called %d times, want 0", len(env.breakers.failures))
	}
	if len(env.coord.failures) != 0 {
		t.Errorf("coordinator failures = %d, want 0", len(env.coord.failures))
	}
	if len(env.attempts.recorded) != 1 {
		t.Fatalf("recorded %d attempts, want 1", len(env.attempts.recorded))
	}
	attempt := env.attempts.recorded[0]
	if attempt.Success || attempt.LessonID == nil || *attempt.LessonID != 7 {
		t.Errorf("attempt = %+v, want failed for lesson 7", attempt)
	}
	if result.Attempts != 0 {
		t.Errorf("Attempts = %d, want 0", result.Attempts)
	}
}

func TestExecute_PermanentFailureAbortsRetry(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.channel.lessonErrs = []error{
		&SendError{Kind: KindPermanent, StatusCode: 400, Message: "chat not found"},
	}

	result, err := env.svc.Execute(context.Background())
	if err == nil {
		t.Fatal("Execute() expected error, got nil")
	}

	if env.channel.lessonCalls != 1 {
		t.Errorf("channel called %d times, want 1", env.channel.lessonCalls)
	}
	if len(env.sleeper.slept) != 0 {
		t.Errorf("slept %v, want no sleeps", env.sleeper.slept)
	}
	if len(env.breakers.failures) != 1 {
		t.Errorf("RecordFailure called %d times, want 1", len(env.breakers.failures))
	}
	want := []failureReport{{operation: "lesson_publish", severity: coordinator.SeverityHigh}}
	if diff := cmp.Diff(want, env.coord.failures, cmp.AllowUnexported(failureReport{})); diff != "" {
		t.Errorf("coordinator failures mismatch (-want +got):\n%s", diff)
	}
	if len(env.selector.markedIDs) != 0 {
		t.Errorf("MarkUsed called for ids %v, want none", env.selector.markedIDs)
	}
	if len(env.sched.scheduled) != 0 {
		t.Errorf("follow-ups scheduled = %d, want 0", len(env.sched.scheduled))
	}
	if result.Attempt.Success {
		t.Error("attempt marked successful on failure")
	}
	if result.Attempt.RetryCount != 0 {
		t.Errorf("RetryCount = %d, want 0", result.Attempt.RetryCount)
	}
}

func TestExecute_TransientExhaustionReportsNetworkError(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.channel.lessonErrs = []error{
		transientErr("timeout"), transientErr("timeout"), transientErr("timeout"),
	}

	_, err := env.svc.Execute(context.Background())
	if err == nil {
		t.Fatal("Execute() expected error, got nil")
	}

	if env.channel.lessonCalls != 3 {
		t.Errorf("channel called %d times, want 3", env.channel.lessonCalls)
	}
	if env.coord.networkErrors != 1 {
		t.Errorf("network errors reported = %d, want 1", env.coord.networkErrors)
	}
	want := []failureReport{{operation: "lesson_publish", severity: coordinator.SeverityMedium}}
	if diff := cmp.Diff(want, env.coord.failures, cmp.AllowUnexported(failureReport{})); diff != "" {
		t.Errorf("coordinator failures mismatch (-want +got):\n%s", diff)
	}
	if len(env.breakers.failures) != 1 {
		t.Errorf("RecordFailure called %d times, want 1", len(env.breakers.failures))
	}
}

func TestExecute_RateLimitedSkipsBreaker(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	limited := &SendError{Kind: KindRateLimited, StatusCode: 429, Message: "slow down", RetryAfterHint: 7 * time.Second}
	env.channel.lessonErrs = []error{limited, limited, limited}

	_, err := env.svc.Execute(context.Background())
	if err == nil {
		t.Fatal("Execute() expected error, got nil")
	}

	if len(env.breakers.failures) != 0 {
		t.Errorf("RecordFailure called %d times, want 0", len(env.breakers.failures))
	}
	want := []failureReport{{operation: "lesson_publish", severity: coordinator.SeverityMedium}}
	if diff := cmp.Diff(want, env.coord.failures, cmp.AllowUnexported(failureReport{})); diff != "" {
		t.Errorf("coordinator failures mismatch (-want +got):\n%s", diff)
	}
	// The channel's retry-after hint overrides the computed backoff.
	wantSleeps := []time.Duration{7 * time.Second, 7 * time.Second}
	if diff := cmp.Diff(wantSleeps, env.sleeper.slept); diff != "" {
		t.Errorf("backoff sleeps mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_MarkUsedFailureIsNotFatal(t *testing.T) {
	env := newTestEnv(t, baseConfig())
	env.selector.markUsedErr = errors.New("db down")

	result, err := env.svc.Execute(context.Background())
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if !result.Attempt.Success {
		t.Error("attempt not marked successful")
	}
}

func TestExecute_SchedulesFollowUpQuiz(t *testing.T) {
	cfg := baseConfig()
	cfg.QuizzesEnabled = true
	cfg.QuizDelay = 30 * time.Minute
	env := newTestEnv(t, cfg)
	env.quizzes.quiz = &entity.Quiz{
		LessonID:      7,
		Question:      "Which means to recover?",
		Options:       []string{"get up", "get over"},
		CorrectOption: 1,
	}

	if _, err := env.svc.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	if len(env.sched.scheduled) != 1 {
		t.Fatalf("follow-ups scheduled = %d, want 1", len(env.sched.scheduled))
	}
	followUp := env.sched.scheduled[0]
	if followUp.lessonID != 7 || followUp.delay != 30*time.Minute {
		t.Errorf("follow-up = lesson %d after %v, want lesson 7 after 30m", followUp.lessonID, followUp.delay)
	}

	if err := followUp.job(context.Background()); err != nil {
		t.Fatalf("follow-up job error = %v", err)
	}
	if env.channel.quizCalls != 1 {
		t.Errorf("SendQuiz called %d times, want 1", env.channel.quizCalls)
	}
	if env.channel.lastQuiz == nil || env.channel.lastQuiz.Question != "Which means to recover?" {
		t.Errorf("sent quiz = %+v, want the built quiz", env.channel.lastQuiz)
	}
}

func TestExecute_QuizzesDisabled(t *testing.T) {
	env := newTestEnv(t, baseConfig())

	if _, err := env.svc.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(env.sched.scheduled) != 0 {
		t.Errorf("follow-ups scheduled = %d, want 0", len(env.sched.scheduled))
	}
}

func TestPublishQuiz_BuildErrorDoesNotSend(t *testing.T) {
	cfg := baseConfig()
	cfg.QuizzesEnabled = true
	cfg.QuizDelay = time.Minute
	env := newTestEnv(t, cfg)
	env.quizzes.err = errors.New("no quiz material")

	if _, err := env.svc.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(env.sched.scheduled) != 1 {
		t.Fatalf("follow-ups scheduled = %d, want 1", len(env.sched.scheduled))
	}

	if err := env.sched.scheduled[0].job(context.Background()); err == nil {
		t.Error("follow-up job expected error, got nil")
	}
	if env.channel.quizCalls != 0 {
		t.Errorf("SendQuiz called %d times, want 0", env.channel.quizCalls)
	}
}

func TestPublishQuiz_CircuitOpenDropsQuiz(t *testing.T) {
	cfg := baseConfig()
	cfg.QuizzesEnabled = true
	cfg.QuizDelay = time.Minute
	env := newTestEnv(t, cfg)
	env.quizzes.quiz = &entity.Quiz{
		LessonID:      7,
		Question:      "Pick one",
		Options:       []string{"a", "b"},
		CorrectOption: 0,
	}

	if _, err := env.svc.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	env.breakers.allow = false

	err := env.sched.scheduled[0].job(context.Background())
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("follow-up job error = %v, want ErrCircuitOpen", err)
	}
	if env.channel.quizCalls != 0 {
		t.Errorf("SendQuiz called %d times, want 0", env.channel.quizCalls)
	}
}

func TestPublishQuiz_SkippedUnderResourcePressure(t *testing.T) {
	cfg := baseConfig()
	cfg.QuizzesEnabled = true
	cfg.QuizDelay = time.Minute
	env := newTestEnv(t, cfg)
	env.quizzes.quiz = &entity.Quiz{
		LessonID:      7,
		Question:      "Pick one",
		Options:       []string{"a", "b"},
		CorrectOption: 0,
	}

	if _, err := env.svc.Execute(context.Background()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	env.coord.mode = coordinator.ModeMinimal

	if err := env.sched.scheduled[0].job(context.Background()); err != nil {
		t.Fatalf("follow-up job error = %v, want nil", err)
	}
	if env.channel.quizCalls != 0 {
		t.Errorf("SendQuiz called %d times, want 0 in minimal mode", env.channel.quizCalls)
	}

	// Degraded mode is not severe enough to shed follow-ups.
	env.coord.mode = coordinator.ModeDegraded
	if err := env.sched.scheduled[0].job(context.Background()); err != nil {
		t.Fatalf("follow-up job error = %v", err)
	}
	if env.channel.quizCalls != 1 {
		t.Errorf("SendQuiz called %d times, want 1 in degraded mode", env.channel.quizCalls)
	}
}
