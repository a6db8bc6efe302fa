// Package bot holds the process-level infrastructure of the lesson bot:
// configuration loading, the health endpoint and runtime state metrics.
package bot

import (
	"errors"
	"fmt"
	"time"

	"lessonbot/internal/domain/entity"
	"lessonbot/internal/pkg/config"
	"lessonbot/internal/resilience/coordinator"
	"lessonbot/internal/usecase/selector"
)

// Config holds the operator-facing configuration of the bot.
// All values come from environment variables; a variable that is set but
// invalid fails startup rather than silently falling back.
type Config struct {
	// DatabaseDSN is the PostgreSQL connection string. Required.
	DatabaseDSN string

	// TelegramBotToken authenticates against the Bot API. Required.
	TelegramBotToken string

	// TelegramChatID is the channel or chat lessons are posted to,
	// e.g. "@dailylessons" or a numeric id. Required.
	TelegramChatID string

	// PostingTime is the local time of the daily post, "HH:MM".
	PostingTime string

	// Timezone is the IANA zone the posting time is interpreted in.
	Timezone string

	// Strategy selects how the next lesson is chosen.
	Strategy selector.Strategy

	// Category restricts selection to one category when non-empty.
	Category string

	// CycleDays is the age in days after which a fully used lesson pool
	// is eligible for a cycle reset.
	CycleDays int

	// RetryAttempts is the total number of delivery attempts per publish.
	RetryAttempts int

	// RetryBaseDelay is the delay before the second delivery attempt.
	RetryBaseDelay time.Duration

	// QuizzesEnabled turns follow-up quiz scheduling on.
	QuizzesEnabled bool

	// QuizDelay is how long after a successful lesson the quiz fires.
	QuizDelay time.Duration

	// JobTimeout bounds a single scheduled job execution.
	JobTimeout time.Duration

	// Thresholds are the resource percentages that drive mode transitions.
	Thresholds coordinator.ResourceThresholds

	// BreakerFailureThreshold is the consecutive failure count that opens
	// a delivery circuit breaker.
	BreakerFailureThreshold int

	// BreakerOpenTimeout is how long an open breaker waits before re-probing.
	BreakerOpenTimeout time.Duration

	// HealthPort serves the health endpoints.
	HealthPort int

	// MetricsPort serves the Prometheus metrics endpoint.
	MetricsPort int

	// LogLevel is the initial log level (debug, info, warn, error).
	LogLevel string
}

// DefaultConfig returns the bot configuration defaults. The required
// credentials (database, Telegram) have no defaults.
func DefaultConfig() Config {
	return Config{
		PostingTime:             "09:00",
		Timezone:                "UTC",
		Strategy:                selector.StrategyUnusedFirst,
		CycleDays:               30,
		RetryAttempts:           3,
		RetryBaseDelay:          1 * time.Second,
		QuizzesEnabled:          true,
		QuizDelay:               30 * time.Minute,
		JobTimeout:              10 * time.Minute,
		Thresholds:              coordinator.DefaultThresholds(),
		BreakerFailureThreshold: 5,
		BreakerOpenTimeout:      300 * time.Second,
		HealthPort:              9091,
		MetricsPort:             9090,
		LogLevel:                "info",
	}
}

func isValidCategory(category string) bool {
	for _, c := range entity.Categories() {
		if c == category {
			return true
		}
	}
	return false
}

// validStrategies is the closed set of selection strategy names.
var validStrategies = map[selector.Strategy]bool{
	selector.StrategyUnusedFirst:       true,
	selector.StrategyLeastRecentlyUsed: true,
	selector.StrategyCategoryRotation:  true,
}

// Validate checks the configuration. All violations are collected so an
// operator fixes one bad deploy, not one variable per crash.
func (c *Config) Validate() error {
	var errs []error

	if c.DatabaseDSN == "" {
		errs = append(errs, fmt.Errorf("database DSN is required"))
	}
	if c.TelegramBotToken == "" {
		errs = append(errs, fmt.Errorf("telegram bot token is required"))
	}
	if c.TelegramChatID == "" {
		errs = append(errs, fmt.Errorf("telegram chat id is required"))
	}
	if err := config.ValidatePostingTime(c.PostingTime); err != nil {
		errs = append(errs, err)
	}
	if err := config.ValidateTimezone(c.Timezone); err != nil {
		errs = append(errs, err)
	}
	if !validStrategies[c.Strategy] {
		errs = append(errs, fmt.Errorf("unknown selection strategy %q", c.Strategy))
	}
	if c.Category != "" && !isValidCategory(c.Category) {
		errs = append(errs, fmt.Errorf("unknown category %q", c.Category))
	}
	if err := config.ValidateIntRange(c.CycleDays, 1, 365); err != nil {
		errs = append(errs, fmt.Errorf("cycle days: %w", err))
	}
	if err := config.ValidateIntRange(c.RetryAttempts, 1, 10); err != nil {
		errs = append(errs, fmt.Errorf("retry attempts: %w", err))
	}
	if err := config.ValidateNonNegativeDuration(c.RetryBaseDelay); err != nil {
		errs = append(errs, fmt.Errorf("retry base delay: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.QuizDelay); err != nil {
		errs = append(errs, fmt.Errorf("quiz delay: %w", err))
	}
	if err := config.ValidatePositiveDuration(c.JobTimeout); err != nil {
		errs = append(errs, fmt.Errorf("job timeout: %w", err))
	}
	if err := c.Thresholds.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("resource thresholds: %w", err))
	}
	if c.BreakerFailureThreshold < 1 {
		errs = append(errs, fmt.Errorf("breaker failure threshold must be at least 1, got %d", c.BreakerFailureThreshold))
	}
	if err := config.ValidatePositiveDuration(c.BreakerOpenTimeout); err != nil {
		errs = append(errs, fmt.Errorf("breaker open timeout: %w", err))
	}
	if err := config.ValidateIntRange(c.HealthPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("health port: %w", err))
	}
	if err := config.ValidateIntRange(c.MetricsPort, 1024, 65535); err != nil {
		errs = append(errs, fmt.Errorf("metrics port: %w", err))
	}

	return errors.Join(errs...)
}

// LoadConfigFromEnv loads the bot configuration from environment
// variables. Missing variables use defaults; set-but-invalid values and
// missing required credentials return an error so the process refuses to
// start on bad configuration. metrics may be nil.
func LoadConfigFromEnv(metrics *config.Metrics) (*Config, error) {
	cfg := DefaultConfig()

	fail := func(field string, err error) (*Config, error) {
		metrics.RecordValidationError(field)
		return nil, err
	}

	var err error
	if cfg.DatabaseDSN, err = config.RequireEnv("DATABASE_URL"); err != nil {
		return fail("database_url", err)
	}
	if cfg.TelegramBotToken, err = config.RequireEnv("TELEGRAM_BOT_TOKEN"); err != nil {
		return fail("telegram_bot_token", err)
	}
	if cfg.TelegramChatID, err = config.RequireEnv("TELEGRAM_CHAT_ID"); err != nil {
		return fail("telegram_chat_id", err)
	}

	cfg.PostingTime = config.GetEnvString("POSTING_TIME", cfg.PostingTime)
	cfg.Timezone = config.GetEnvString("BOT_TIMEZONE", cfg.Timezone)
	cfg.Strategy = selector.Strategy(config.GetEnvString("SELECTION_STRATEGY", string(cfg.Strategy)))
	cfg.Category = config.GetEnvString("SELECTION_CATEGORY", cfg.Category)
	cfg.LogLevel = config.GetEnvString("LOG_LEVEL", cfg.LogLevel)

	if cfg.CycleDays, err = config.GetEnvInt("CYCLE_DAYS", cfg.CycleDays, nil); err != nil {
		return fail("cycle_days", err)
	}
	if cfg.RetryAttempts, err = config.GetEnvInt("RETRY_ATTEMPTS", cfg.RetryAttempts, nil); err != nil {
		return fail("retry_attempts", err)
	}
	if cfg.RetryBaseDelay, err = config.GetEnvDuration("RETRY_BASE_DELAY", cfg.RetryBaseDelay, nil); err != nil {
		return fail("retry_base_delay", err)
	}
	if cfg.QuizzesEnabled, err = config.GetEnvBool("QUIZZES_ENABLED", cfg.QuizzesEnabled); err != nil {
		return fail("quizzes_enabled", err)
	}
	if cfg.QuizDelay, err = config.GetEnvDuration("QUIZ_DELAY", cfg.QuizDelay, nil); err != nil {
		return fail("quiz_delay", err)
	}
	if cfg.JobTimeout, err = config.GetEnvDuration("JOB_TIMEOUT", cfg.JobTimeout, nil); err != nil {
		return fail("job_timeout", err)
	}
	if cfg.Thresholds, err = loadThresholds(cfg.Thresholds); err != nil {
		return fail("resource_thresholds", err)
	}
	if cfg.BreakerFailureThreshold, err = config.GetEnvInt("BREAKER_FAILURE_THRESHOLD", cfg.BreakerFailureThreshold, nil); err != nil {
		return fail("breaker_failure_threshold", err)
	}
	if cfg.BreakerOpenTimeout, err = config.GetEnvDuration("BREAKER_OPEN_TIMEOUT", cfg.BreakerOpenTimeout, nil); err != nil {
		return fail("breaker_open_timeout", err)
	}
	if cfg.HealthPort, err = config.GetEnvInt("BOT_HEALTH_PORT", cfg.HealthPort, nil); err != nil {
		return fail("health_port", err)
	}
	if cfg.MetricsPort, err = config.GetEnvInt("BOT_METRICS_PORT", cfg.MetricsPort, nil); err != nil {
		return fail("metrics_port", err)
	}

	if err := cfg.Validate(); err != nil {
		metrics.RecordValidationError("config")
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	metrics.RecordLoad()
	return &cfg, nil
}

// loadThresholds overrides the default resource tiers from the
// environment. Range and ordering are checked by Thresholds.Validate.
func loadThresholds(defaults coordinator.ResourceThresholds) (coordinator.ResourceThresholds, error) {
	t := defaults
	fields := []struct {
		envKey string
		dst    *float64
	}{
		{"CPU_DEGRADED_THRESHOLD", &t.CPUDegraded},
		{"CPU_MINIMAL_THRESHOLD", &t.CPUMinimal},
		{"CPU_EMERGENCY_THRESHOLD", &t.CPUEmergency},
		{"MEMORY_DEGRADED_THRESHOLD", &t.MemoryDegraded},
		{"MEMORY_MINIMAL_THRESHOLD", &t.MemoryMinimal},
		{"MEMORY_EMERGENCY_THRESHOLD", &t.MemoryEmergency},
		{"DISK_DEGRADED_THRESHOLD", &t.DiskDegraded},
		{"DISK_MINIMAL_THRESHOLD", &t.DiskMinimal},
		{"DISK_EMERGENCY_THRESHOLD", &t.DiskEmergency},
	}
	for _, f := range fields {
		value, err := config.GetEnvFloat(f.envKey, *f.dst, config.ValidatePercent)
		if err != nil {
			return t, err
		}
		*f.dst = value
	}
	return t, nil
}
