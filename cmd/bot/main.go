package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	pgRepo "lessonbot/internal/infra/adapter/persistence/postgres"
	"lessonbot/internal/infra/bot"
	"lessonbot/internal/infra/db"
	"lessonbot/internal/infra/notifier"
	"lessonbot/internal/observability/logging"
	obsMetrics "lessonbot/internal/observability/metrics"
	"lessonbot/internal/observability/slo"
	"lessonbot/internal/pkg/config"
	"lessonbot/internal/repository"
	"lessonbot/internal/resilience/circuitbreaker"
	"lessonbot/internal/resilience/coordinator"
	"lessonbot/internal/scheduler"
	"lessonbot/internal/usecase/publish"
	"lessonbot/internal/usecase/quiz"
	"lessonbot/internal/usecase/selector"
)

const (
	statusInterval  = 30 * time.Second
	shutdownTimeout = 30 * time.Second
)

func main() {
	// A missing .env is fine; containers inject the environment directly.
	_ = godotenv.Load()

	cfg, logger, level := initConfig()
	database := initDatabase(logger, cfg.DatabaseDSN)
	defer func() {
		if err := database.Close(); err != nil {
			logger.Error("failed to close database", slog.Any("error", err))
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// All queries run through the DB circuit breaker so a dead database
	// fails fast instead of piling up blocked connections.
	store := circuitbreaker.NewDBCircuitBreaker(database)
	lessonRepo := pgRepo.NewLessonRepo(store)
	attemptRepo := pgRepo.NewAttemptRepo(store)

	sel := selector.NewService(lessonRepo, cfg.CycleDays, logger)

	breakers := circuitbreaker.NewRegistry(circuitbreaker.Config{
		FailureThreshold: cfg.BreakerFailureThreshold,
		OpenTimeout:      cfg.BreakerOpenTimeout,
	})

	coordCfg := coordinator.DefaultConfig()
	coordCfg.Thresholds = cfg.Thresholds
	coord, err := coordinator.New(coordCfg, coordinator.NewHostSampler("/"), breakers, level,
		dbReconnector{db: database}, nil, logger)
	if err != nil {
		logger.Error("failed to build resilience coordinator", slog.Any("error", err))
		os.Exit(1)
	}

	channel := notifier.NewTelegramChannel(notifier.TelegramConfig{
		BotToken: cfg.TelegramBotToken,
		ChatID:   cfg.TelegramChatID,
	}, logger)

	counters := &publishCounters{}

	// The daily job closes over the publish service, which in turn needs
	// the scheduler for follow-ups. The service pointer is assigned below,
	// before Start makes the closure reachable.
	var publishSvc *publish.Service
	sched, err := scheduler.New(scheduler.Config{
		PostingTime:      cfg.PostingTime,
		Timezone:         cfg.Timezone,
		JobTimeout:       cfg.JobTimeout,
		MissedGrace:      scheduler.DefaultConfig().MissedGrace,
		WatchdogInterval: scheduler.DefaultConfig().WatchdogInterval,
	}, func(jobCtx context.Context) error {
		return runDailyPublish(jobCtx, logger, sel, publishSvc, counters)
	}, scheduler.NewMetrics(), logger)
	if err != nil {
		logger.Error("failed to build scheduler", slog.Any("error", err))
		os.Exit(1)
	}

	publishSvc, err = publish.NewService(
		channel,
		sel,
		attemptRepo,
		coord,
		breakers,
		sched,
		quiz.NewTitleBuilder(lessonRepo, logger),
		publish.Config{
			Strategy:       cfg.Strategy,
			Category:       cfg.Category,
			RetryAttempts:  cfg.RetryAttempts,
			RetryBaseDelay: cfg.RetryBaseDelay,
			QuizzesEnabled: cfg.QuizzesEnabled,
			QuizDelay:      cfg.QuizDelay,
		},
		publish.NewMetrics(),
		logger,
	)
	if err != nil {
		logger.Error("failed to build publish service", slog.Any("error", err))
		os.Exit(1)
	}

	go func() {
		if err := coord.Run(ctx); err != nil {
			logger.Error("resilience coordinator stopped", slog.Any("error", err))
		}
	}()

	healthAddr := fmt.Sprintf(":%d", cfg.HealthPort)
	healthServer := bot.NewHealthServer(healthAddr, lessonRepo, "postgres", logger)
	go func() {
		if err := healthServer.Start(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("health server failed", slog.Any("error", err))
		}
	}()
	logger.Info("health check server started", slog.String("addr", healthAddr))

	startMetricsServer(ctx, logger, cfg.MetricsPort)

	if err := sched.Start(); err != nil {
		logger.Error("failed to start scheduler", slog.Any("error", err))
		os.Exit(1)
	}
	healthServer.SetReady(true)
	logger.Info("bot started",
		slog.String("posting_time", cfg.PostingTime),
		slog.String("timezone", cfg.Timezone),
		slog.String("strategy", string(cfg.Strategy)),
	)

	// Catch up on a missed daily post without delaying readiness.
	go func() {
		last, err := attemptRepo.LastSuccessAt(ctx)
		if err != nil {
			logger.Error("failed to load last success, skipping missed-post check",
				slog.Any("error", err))
			return
		}
		sched.RunIfMissed(last)
	}()

	runStatusLoop(ctx, logger, bot.NewMetrics(), coord, sel, attemptRepo, database, counters)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := sched.Stop(shutdownCtx); err != nil {
		logger.Error("scheduler shutdown error", slog.Any("error", err))
	}
	logger.Info("bot stopped")
}

// initConfig loads and validates the configuration, then builds the shared
// logger. Configuration errors are reported on a bootstrap logger because
// the log level itself comes from configuration.
func initConfig() (*bot.Config, *slog.Logger, *slog.LevelVar) {
	bootstrap := logging.NewLogger(nil)

	cfg, err := bot.LoadConfigFromEnv(config.NewMetrics("bot"))
	if err != nil {
		bootstrap.Error("invalid configuration", slog.Any("error", err))
		os.Exit(1)
	}

	// The coordinator raises this level during emergency mode; every
	// logger in the process shares it.
	level := logging.NewLevelVar(cfg.LogLevel)
	logger := logging.NewLogger(level)
	slog.SetDefault(logger)
	return cfg, logger, level
}

// initDatabase opens the connection pool and waits for migrations.
func initDatabase(logger *slog.Logger, dsn string) *sql.DB {
	database, err := db.Open(dsn)
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	waitForMigrations(logger, database)
	return database
}

func waitForMigrations(logger *slog.Logger, database *sql.DB) {
	const probe = "SELECT 1 FROM lessons LIMIT 1"
	for i := 0; i < 10; i++ {
		if _, err := database.Exec(probe); err == nil {
			return
		}
		logger.Info("waiting for migrations, retrying in 3s", slog.Int("attempt", i+1))
		time.Sleep(3 * time.Second)
	}
	logger.Error("migrations did not complete in time")
	os.Exit(1)
}

// runDailyPublish is the daily scheduled job: publish one lesson, surfacing
// a cycle reset recommendation when the pool is exhausted. The reset itself
// is an operator action; selection keeps working via the least-recently-used
// fallback in the meantime.
func runDailyPublish(ctx context.Context, logger *slog.Logger, sel *selector.Service, svc *publish.Service, counters *publishCounters) error {
	needsReset, err := sel.NeedsCycleReset(ctx)
	if err != nil {
		logger.Warn("cycle reset check failed", slog.Any("error", err))
	} else if needsReset {
		logger.Warn("lesson pool exhausted beyond the usage cycle, reset recommended")
	}

	result, err := svc.Execute(ctx)
	counters.record(result.Attempt.Success)
	if err != nil {
		return err
	}
	if result.Lesson == nil {
		logger.Warn("no lesson published, pool is empty")
		return nil
	}
	logger.Info("daily lesson published",
		slog.Int64("lesson_id", result.Lesson.ID),
		slog.String("category", result.Lesson.Category),
		slog.Int("attempts", result.Attempts),
	)
	return nil
}

// runStatusLoop periodically exports coordinator, inventory, freshness and
// connection pool metrics until ctx is cancelled.
func runStatusLoop(
	ctx context.Context,
	logger *slog.Logger,
	botMetrics *bot.Metrics,
	coord *coordinator.Coordinator,
	sel *selector.Service,
	attempts repository.PostingAttemptRepository,
	database *sql.DB,
	counters *publishCounters,
) {
	ticker := time.NewTicker(statusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			botMetrics.ObserveStatus(coord.Status())

			if stats, err := sel.Stats(ctx); err == nil {
				obsMetrics.UpdateLessonInventory(stats.Total, stats.Unused)
				for category, count := range stats.ByCategory {
					obsMetrics.UpdateLessonsByCategory(category, count)
				}
			} else {
				logger.Debug("lesson stats unavailable", slog.Any("error", err))
			}

			if last, err := attempts.LastSuccessAt(ctx); err == nil {
				slo.UpdatePostFreshness(last, time.Now())
			}

			if ratio, ok := counters.ratio(); ok {
				slo.UpdatePublishSuccess(ratio)
			}

			dbStats := database.Stats()
			obsMetrics.UpdateDBConnectionStats(dbStats.InUse, dbStats.Idle)
		}
	}
}

// publishCounters tracks publish outcomes since process start for the
// success ratio SLO.
type publishCounters struct {
	total   atomic.Int64
	success atomic.Int64
}

func (c *publishCounters) record(ok bool) {
	c.total.Add(1)
	if ok {
		c.success.Add(1)
	}
}

// ratio reports the success fraction, or false before the first publish.
func (c *publishCounters) ratio() (float64, bool) {
	total := c.total.Load()
	if total == 0 {
		return 0, false
	}
	return float64(c.success.Load()) / float64(total), true
}

// dbReconnector verifies database connectivity for the coordinator's
// network reconnection action. database/sql reopens broken connections on
// its own; pinging confirms the pool is serving again.
type dbReconnector struct {
	db *sql.DB
}

func (r dbReconnector) Reconnect(ctx context.Context) error {
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return r.db.PingContext(pingCtx)
}
