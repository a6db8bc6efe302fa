// Package scheduler runs the daily lesson job and one-shot follow-up jobs
// on top of a cron runner, with missed-fire detection and graceful shutdown.
package scheduler

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// DailyJobID identifies the singleton daily posting job. There is never more
// than one daily job registered at a time.
const DailyJobID = "daily_lesson_post"

// Job is a unit of scheduled work.
type Job func(ctx context.Context) error

// JobState describes the lifecycle of the daily job.
type JobState string

const (
	StateScheduled JobState = "scheduled"
	StateRunning   JobState = "running"
	StateSucceeded JobState = "succeeded"
	StateFailed    JobState = "failed"
	StateMissed    JobState = "missed"
)

// Config controls the scheduler.
type Config struct {
	// PostingTime is the local time of the daily fire, formatted "HH:MM".
	PostingTime string
	// Timezone is an IANA zone name the posting time is interpreted in.
	Timezone string
	// JobTimeout bounds a single job execution.
	JobTimeout time.Duration
	// MissedGrace is how far past the expected fire time the watchdog
	// waits before treating the fire as missed and re-running.
	MissedGrace time.Duration
	// WatchdogInterval is how often the watchdog checks for missed fires.
	WatchdogInterval time.Duration
}

// DefaultConfig returns the standard scheduler configuration.
func DefaultConfig() Config {
	return Config{
		PostingTime:      "09:00",
		Timezone:         "UTC",
		JobTimeout:       10 * time.Minute,
		MissedGrace:      2 * time.Minute,
		WatchdogInterval: 30 * time.Second,
	}
}

// Status is a point-in-time view of the scheduler for health reporting.
type Status struct {
	Running     bool      `json:"running"`
	NextRunTime time.Time `json:"nextRunTime"`
	PostingTime string    `json:"postingTime"`
	Timezone    string    `json:"timezone"`
	JobCount    int       `json:"jobCount"`
	DailyState  JobState  `json:"dailyState"`
}

// Scheduler owns the daily posting job and its follow-up jobs. Follow-ups
// are in-memory one-shot timers keyed by lesson; scheduling a follow-up for
// a lesson that already has one replaces the pending timer. Follow-ups do
// not survive a restart.
type Scheduler struct {
	cfg     Config
	loc     *time.Location
	cron    *cron.Cron
	daily   Job
	metrics *Metrics
	logger  *slog.Logger

	mu           sync.Mutex
	running      bool
	postingTime  string
	entryID      cron.EntryID
	dailyState   JobState
	lastFireAt   time.Time
	expectedNext time.Time
	followUps    map[int64]*time.Timer
	now          func() time.Time

	wg           sync.WaitGroup
	watchdogStop chan struct{}
}

// New builds a Scheduler for the given daily job. metrics may be nil.
func New(cfg Config, daily Job, metrics *Metrics, logger *slog.Logger) (*Scheduler, error) {
	if daily == nil {
		return nil, fmt.Errorf("daily job is required")
	}
	if _, _, err := parsePostingTime(cfg.PostingTime); err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", cfg.Timezone, err)
	}

	s := &Scheduler{
		cfg:          cfg,
		loc:          loc,
		daily:        daily,
		metrics:      metrics,
		logger:       logger,
		postingTime:  cfg.PostingTime,
		dailyState:   StateScheduled,
		followUps:    make(map[int64]*time.Timer),
		now:          time.Now,
		watchdogStop: make(chan struct{}),
	}
	s.cron = cron.New(
		cron.WithLocation(loc),
		cron.WithChain(cron.SkipIfStillRunning(newCronLogger(logger))),
	)
	return s, nil
}

// SetNowFunc overrides the clock, for tests.
func (s *Scheduler) SetNowFunc(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

// Start registers the daily job and starts the cron runner and watchdog.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return fmt.Errorf("scheduler already started")
	}

	id, err := s.cron.AddFunc(cronSpec(s.postingTime), func() {
		s.runDaily()
	})
	if err != nil {
		return fmt.Errorf("register daily job: %w", err)
	}
	s.entryID = id
	s.cron.Start()
	s.running = true
	s.expectedNext = s.cron.Entry(id).Next

	s.wg.Add(1)
	go s.watchdog()

	s.logger.Info("scheduler started",
		slog.String("job", DailyJobID),
		slog.String("posting_time", s.postingTime),
		slog.String("timezone", s.cfg.Timezone),
		slog.Time("next_run", s.expectedNext),
	)
	return nil
}

// Stop cancels pending follow-ups and waits for in-flight jobs to finish.
// The wait is bounded by ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return nil
	}
	s.running = false
	for id, t := range s.followUps {
		if t.Stop() {
			s.wg.Done()
		}
		delete(s.followUps, id)
	}
	close(s.watchdogStop)
	s.mu.Unlock()

	cronCtx := s.cron.Stop()

	done := make(chan struct{})
	go func() {
		<-cronCtx.Done()
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info("scheduler stopped")
		return nil
	case <-ctx.Done():
		s.logger.Warn("scheduler stop timed out with jobs still running")
		return ctx.Err()
	}
}

// Reschedule moves the daily job to a new posting time. The previous entry
// is removed first so the daily job stays a singleton.
func (s *Scheduler) Reschedule(postingTime string) error {
	if _, _, err := parsePostingTime(postingTime); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.postingTime = postingTime
		return nil
	}

	s.cron.Remove(s.entryID)
	id, err := s.cron.AddFunc(cronSpec(postingTime), func() {
		s.runDaily()
	})
	if err != nil {
		return fmt.Errorf("reschedule daily job: %w", err)
	}
	s.entryID = id
	s.postingTime = postingTime
	s.expectedNext = s.cron.Entry(id).Next

	s.logger.Info("daily job rescheduled",
		slog.String("job", DailyJobID),
		slog.String("posting_time", postingTime),
		slog.Time("next_run", s.expectedNext),
	)
	return nil
}

// ScheduleFollowUp schedules job to run after delay, keyed by lesson. A
// pending follow-up for the same lesson is replaced.
func (s *Scheduler) ScheduleFollowUp(lessonID int64, delay time.Duration, job Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		s.logger.Warn("follow-up requested while scheduler stopped", slog.Int64("lesson_id", lessonID))
		return
	}

	if prev, ok := s.followUps[lessonID]; ok {
		if prev.Stop() {
			s.wg.Done()
		}
		s.logger.Info("replacing pending follow-up", slog.Int64("lesson_id", lessonID))
	}

	s.wg.Add(1)
	s.followUps[lessonID] = time.AfterFunc(delay, func() {
		defer s.wg.Done()

		s.mu.Lock()
		delete(s.followUps, lessonID)
		s.mu.Unlock()

		s.runJob(fmt.Sprintf("followup:%d", lessonID), job)
	})
	s.metrics.RecordFollowUpScheduled()

	s.logger.Info("follow-up scheduled",
		slog.Int64("lesson_id", lessonID),
		slog.Duration("delay", delay),
	)
}

// CancelFollowUp cancels a pending follow-up. It reports whether one was
// pending.
func (s *Scheduler) CancelFollowUp(lessonID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.followUps[lessonID]
	if !ok {
		return false
	}
	stopped := t.Stop()
	delete(s.followUps, lessonID)
	if stopped {
		// AfterFunc never fired, release its wg slot.
		s.wg.Done()
	}
	return stopped
}

// RunIfMissed re-runs the daily job immediately when today's fire time has
// already passed and the last success predates it. It reports whether a
// catch-up run happened. Follow-ups have no catch-up; a missed follow-up is
// dropped.
func (s *Scheduler) RunIfMissed(lastSuccess *time.Time) bool {
	s.mu.Lock()
	now := s.now().In(s.loc)
	hour, min, _ := parsePostingTime(s.postingTime)
	todayFire := time.Date(now.Year(), now.Month(), now.Day(), hour, min, 0, 0, s.loc)
	missed := now.After(todayFire) && (lastSuccess == nil || lastSuccess.Before(todayFire))
	if missed {
		s.dailyState = StateMissed
	}
	s.mu.Unlock()

	if !missed {
		return false
	}

	s.logger.Warn("daily fire missed, running catch-up",
		slog.String("job", DailyJobID),
		slog.Time("expected_fire", todayFire),
	)
	s.metrics.RecordMissedFire()
	s.runDaily()
	return true
}

// watchdog detects fires the cron runner slept through, such as after a
// host suspend, and re-runs the daily job.
func (s *Scheduler) watchdog() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.cfg.WatchdogInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.watchdogStop:
			return
		case <-ticker.C:
			s.checkMissedFire()
		}
	}
}

func (s *Scheduler) checkMissedFire() {
	s.mu.Lock()
	expected := s.expectedNext
	lastFire := s.lastFireAt
	now := s.now()
	entryNext := s.cron.Entry(s.entryID).Next
	missed := !expected.IsZero() &&
		now.After(expected.Add(s.cfg.MissedGrace)) &&
		lastFire.Before(expected)
	if missed {
		s.dailyState = StateMissed
	}
	s.expectedNext = entryNext
	s.mu.Unlock()

	if !missed {
		return
	}

	s.logger.Warn("daily fire missed, running catch-up",
		slog.String("job", DailyJobID),
		slog.Time("expected_fire", expected),
	)
	s.metrics.RecordMissedFire()
	s.runDaily()
}

func (s *Scheduler) runDaily() {
	s.mu.Lock()
	s.lastFireAt = s.now()
	s.dailyState = StateRunning
	s.mu.Unlock()

	err := s.runJob(DailyJobID, s.daily)

	s.mu.Lock()
	if err != nil {
		s.dailyState = StateFailed
	} else {
		s.dailyState = StateSucceeded
	}
	if s.running {
		s.expectedNext = s.cron.Entry(s.entryID).Next
	}
	s.mu.Unlock()

	if err == nil {
		s.metrics.RecordLastSuccess()
	}
}

func (s *Scheduler) runJob(name string, job Job) error {
	start := time.Now()
	s.metrics.RecordJobRun(name, "started")
	s.logger.Info("job started", slog.String("job", name))

	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.JobTimeout)
	defer cancel()

	err := job(ctx)
	elapsed := time.Since(start)
	s.metrics.RecordJobDuration(elapsed.Seconds())
	if err != nil {
		s.metrics.RecordJobRun(name, "failure")
		s.logger.Error("job failed",
			slog.String("job", name),
			slog.Duration("duration", elapsed),
			slog.Any("error", err),
		)
		return err
	}

	s.metrics.RecordJobRun(name, "success")
	s.logger.Info("job completed",
		slog.String("job", name),
		slog.Duration("duration", elapsed),
	)
	return nil
}

// Status returns a snapshot of the scheduler state.
func (s *Scheduler) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Running:     s.running,
		PostingTime: s.postingTime,
		Timezone:    s.cfg.Timezone,
		DailyState:  s.dailyState,
		JobCount:    len(s.followUps),
	}
	if s.running {
		st.JobCount++
		st.NextRunTime = s.cron.Entry(s.entryID).Next
	}
	return st
}

// FollowUpCount returns the number of pending follow-up jobs.
func (s *Scheduler) FollowUpCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.followUps)
}

// parsePostingTime parses "HH:MM" into hour and minute.
func parsePostingTime(v string) (hour, min int, err error) {
	parts := strings.Split(v, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("posting time %q must be formatted HH:MM", v)
	}
	hour, err = strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("posting time %q has invalid hour", v)
	}
	min, err = strconv.Atoi(parts[1])
	if err != nil || min < 0 || min > 59 {
		return 0, 0, fmt.Errorf("posting time %q has invalid minute", v)
	}
	return hour, min, nil
}

func cronSpec(postingTime string) string {
	hour, min, _ := parsePostingTime(postingTime)
	return fmt.Sprintf("%d %d * * *", min, hour)
}

// cronLogger adapts slog to the cron runner's logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func newCronLogger(logger *slog.Logger) cronLogger {
	return cronLogger{logger: logger}
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	args := append([]interface{}{slog.Any("error", err)}, keysAndValues...)
	l.logger.Error(msg, args...)
}
