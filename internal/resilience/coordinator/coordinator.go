// Package coordinator watches host resources and operation outcomes, drives
// the system mode state machine and triggers recovery actions when the
// service degrades.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"lessonbot/internal/resilience/circuitbreaker"
)

// SystemMode classifies overall system health. Modes are ordered by
// severity: Normal < Degraded < Minimal < Emergency.
type SystemMode int

const (
	ModeNormal SystemMode = iota
	ModeDegraded
	ModeMinimal
	ModeEmergency
)

func (m SystemMode) String() string {
	switch m {
	case ModeNormal:
		return "normal"
	case ModeDegraded:
		return "degraded"
	case ModeMinimal:
		return "minimal"
	case ModeEmergency:
		return "emergency"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// Severity classifies how serious a reported operation failure is.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ResourceThresholds holds per-resource percentages above which each
// degraded mode is entered. Within one resource the tiers must be strictly
// increasing.
type ResourceThresholds struct {
	CPUDegraded  float64
	CPUMinimal   float64
	CPUEmergency float64

	MemoryDegraded  float64
	MemoryMinimal   float64
	MemoryEmergency float64

	DiskDegraded  float64
	DiskMinimal   float64
	DiskEmergency float64
}

// DefaultThresholds returns the standard resource tiers.
func DefaultThresholds() ResourceThresholds {
	return ResourceThresholds{
		CPUDegraded: 70, CPUMinimal: 85, CPUEmergency: 95,
		MemoryDegraded: 75, MemoryMinimal: 85, MemoryEmergency: 95,
		DiskDegraded: 80, DiskMinimal: 90, DiskEmergency: 95,
	}
}

// Validate reports the first threshold tier that is not strictly increasing.
func (t ResourceThresholds) Validate() error {
	checks := []struct {
		name                         string
		degraded, minimal, emergency float64
	}{
		{"cpu", t.CPUDegraded, t.CPUMinimal, t.CPUEmergency},
		{"memory", t.MemoryDegraded, t.MemoryMinimal, t.MemoryEmergency},
		{"disk", t.DiskDegraded, t.DiskMinimal, t.DiskEmergency},
	}
	for _, c := range checks {
		if c.degraded <= 0 || c.emergency > 100 {
			return fmt.Errorf("%s thresholds must be within (0, 100]", c.name)
		}
		if !(c.degraded < c.minimal && c.minimal < c.emergency) {
			return fmt.Errorf("%s thresholds must be strictly increasing", c.name)
		}
	}
	return nil
}

// Config controls the monitoring loops and escalation thresholds.
type Config struct {
	Thresholds            ResourceThresholds
	ResourceInterval      time.Duration
	RecoveryInterval      time.Duration
	SweepInterval         time.Duration
	FailureThreshold      int
	NetworkErrorThreshold int
}

// DefaultConfig returns the standard coordinator configuration.
func DefaultConfig() Config {
	return Config{
		Thresholds:            DefaultThresholds(),
		ResourceInterval:      30 * time.Second,
		RecoveryInterval:      60 * time.Second,
		SweepInterval:         30 * time.Second,
		FailureThreshold:      5,
		NetworkErrorThreshold: 3,
	}
}

const historyLimit = 50

// ActionRecord is one entry in the recovery action history.
type ActionRecord struct {
	Action  string
	At      time.Time
	Success bool
	Error   string
}

// actionState retains the invocation history of one action. Timestamps
// older than the action's cooldown window are pruned on each dispatch.
type actionState struct {
	action   RecoveryAction
	runTimes []time.Time
}

// Status is a point-in-time view of the coordinator for health reporting.
type Status struct {
	Mode                SystemMode
	ConsecutiveFailures int
	NetworkErrors       int
	LastUsage           ResourceUsage
	Breakers            []circuitbreaker.Status
	History             []ActionRecord
}

// Coordinator owns the system mode state machine. Mode transitions are
// derived from resource usage; operation and network failures trigger
// recovery actions without changing the mode directly.
type Coordinator struct {
	cfg      Config
	sampler  Sampler
	breakers *circuitbreaker.Registry
	logger   *slog.Logger

	// level is raised in emergency mode to shed log volume and restored
	// when the system returns to normal.
	level     *slog.LevelVar
	baseLevel slog.Level

	mu                  sync.Mutex
	mode                SystemMode
	consecutiveFailures int
	networkErrors       int
	lastUsage           ResourceUsage
	actions             map[string]*actionState
	history             []ActionRecord
	now                 func() time.Time
}

// New builds a Coordinator with the default recovery actions registered.
// reconnect and restart may be nil, in which case the actions that need them
// are not registered and requests for them are logged and skipped.
func New(cfg Config, sampler Sampler, breakers *circuitbreaker.Registry, level *slog.LevelVar, reconnect Reconnector, restart Restarter, logger *slog.Logger) (*Coordinator, error) {
	if err := cfg.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid resource thresholds: %w", err)
	}
	if cfg.FailureThreshold <= 0 || cfg.NetworkErrorThreshold <= 0 {
		return nil, fmt.Errorf("failure thresholds must be positive")
	}

	c := &Coordinator{
		cfg:      cfg,
		sampler:  sampler,
		breakers: breakers,
		logger:   logger,
		level:    level,
		actions:  make(map[string]*actionState),
		now:      time.Now,
	}
	if level != nil {
		c.baseLevel = level.Level()
	}
	for _, a := range defaultActions(reconnect, restart) {
		c.RegisterAction(a)
	}
	return c, nil
}

// RegisterAction registers or replaces a recovery action. Replacing an
// action resets its cooldown and attempt count.
func (c *Coordinator) RegisterAction(a RecoveryAction) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.actions[a.Name] = &actionState{action: a}
}

// SetNowFunc overrides the clock, for tests.
func (c *Coordinator) SetNowFunc(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// Run drives the resource, recovery and breaker sweep loops until ctx is
// cancelled.
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return c.loop(ctx, c.cfg.ResourceInterval, c.checkResources)
	})
	g.Go(func() error {
		return c.loop(ctx, c.cfg.RecoveryInterval, c.attemptRecovery)
	})
	g.Go(func() error {
		return c.loop(ctx, c.cfg.SweepInterval, func(context.Context) {
			c.breakers.Sweep()
		})
	})

	err := g.Wait()
	if err == context.Canceled {
		return nil
	}
	return err
}

func (c *Coordinator) loop(ctx context.Context, interval time.Duration, tick func(context.Context)) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			tick(ctx)
		}
	}
}

// checkResources samples usage and moves the mode to match the most severe
// resource condition.
func (c *Coordinator) checkResources(ctx context.Context) {
	usage, err := c.sampler.Sample(ctx)
	if err != nil {
		c.logger.Warn("resource sampling failed", "error", err)
		return
	}

	c.mu.Lock()
	c.lastUsage = usage
	c.mu.Unlock()

	c.setMode(ctx, c.modeFor(usage))
}

func (c *Coordinator) modeFor(u ResourceUsage) SystemMode {
	t := c.cfg.Thresholds
	mode := ModeNormal

	tiers := []struct {
		value                        float64
		degraded, minimal, emergency float64
	}{
		{u.CPUPercent, t.CPUDegraded, t.CPUMinimal, t.CPUEmergency},
		{u.MemoryPercent, t.MemoryDegraded, t.MemoryMinimal, t.MemoryEmergency},
		{u.DiskPercent, t.DiskDegraded, t.DiskMinimal, t.DiskEmergency},
	}
	for _, tier := range tiers {
		var m SystemMode
		switch {
		case tier.value > tier.emergency:
			m = ModeEmergency
		case tier.value > tier.minimal:
			m = ModeMinimal
		case tier.value > tier.degraded:
			m = ModeDegraded
		default:
			m = ModeNormal
		}
		if m > mode {
			mode = m
		}
	}
	return mode
}

func (c *Coordinator) setMode(ctx context.Context, next SystemMode) {
	c.mu.Lock()
	prev := c.mode
	if next == prev {
		c.mu.Unlock()
		return
	}
	c.mode = next
	c.mu.Unlock()

	c.logger.Warn("system mode changed",
		"from", prev.String(),
		"to", next.String(),
	)

	switch next {
	case ModeNormal:
		c.mu.Lock()
		c.consecutiveFailures = 0
		c.networkErrors = 0
		c.mu.Unlock()
		if c.level != nil {
			c.level.Set(c.baseLevel)
		}
	case ModeDegraded:
		c.runAction(ctx, ActionCleanupResources)
	case ModeMinimal:
		c.runAction(ctx, ActionAggressiveCleanup)
	case ModeEmergency:
		if c.level != nil {
			c.level.Set(slog.LevelWarn)
		}
		c.runAction(ctx, ActionEmergencyCleanup)
	}
}

// attemptRecovery re-runs the remediation for the current mode, subject to
// each action's cooldown and attempt budget.
func (c *Coordinator) attemptRecovery(ctx context.Context) {
	c.mu.Lock()
	mode := c.mode
	c.mu.Unlock()

	switch mode {
	case ModeDegraded:
		c.runAction(ctx, ActionCleanupResources)
	case ModeMinimal:
		c.runAction(ctx, ActionAggressiveCleanup)
	case ModeEmergency:
		c.runAction(ctx, ActionEmergencyCleanup)
	}
}

// HandleOperationFailure records one failed operation. Once the consecutive
// failure count reaches the threshold a recovery action chosen by severity
// runs and the count resets.
func (c *Coordinator) HandleOperationFailure(ctx context.Context, operation string, severity Severity) {
	c.mu.Lock()
	c.consecutiveFailures++
	count := c.consecutiveFailures
	trigger := count >= c.cfg.FailureThreshold
	if trigger {
		c.consecutiveFailures = 0
	}
	c.mu.Unlock()

	c.logger.Warn("operation failed",
		"operation", operation,
		"severity", string(severity),
		"consecutive_failures", count,
	)
	if !trigger {
		return
	}

	switch severity {
	case SeverityCritical:
		c.runAction(ctx, ActionEmergencyRecovery)
	case SeverityHigh:
		c.runAction(ctx, ActionSystemRestart)
	default:
		c.runAction(ctx, ActionServiceRestart)
	}
}

// HandleOperationSuccess resets the consecutive failure streak.
func (c *Coordinator) HandleOperationSuccess() {
	c.mu.Lock()
	c.consecutiveFailures = 0
	c.mu.Unlock()
}

// HandleNetworkError records one network-level error. Once the count reaches
// the threshold a reconnection attempt runs and the count resets.
func (c *Coordinator) HandleNetworkError(ctx context.Context) {
	c.mu.Lock()
	c.networkErrors++
	trigger := c.networkErrors >= c.cfg.NetworkErrorThreshold
	if trigger {
		c.networkErrors = 0
	}
	c.mu.Unlock()

	if trigger {
		c.runAction(ctx, ActionNetworkReconnection)
	}
}

// HandleNetworkRecovery resets the network error streak.
func (c *Coordinator) HandleNetworkRecovery() {
	c.mu.Lock()
	c.networkErrors = 0
	c.mu.Unlock()
}

func (c *Coordinator) runAction(ctx context.Context, name string) {
	c.mu.Lock()
	st, ok := c.actions[name]
	if !ok {
		c.mu.Unlock()
		c.logger.Warn("recovery action not registered", "action", name)
		return
	}
	now := c.now()
	cutoff := now.Add(-st.action.Cooldown)
	recent := st.runTimes[:0]
	for _, at := range st.runTimes {
		if at.After(cutoff) {
			recent = append(recent, at)
		}
	}
	if st.action.MaxAttempts > 0 && len(recent) >= st.action.MaxAttempts {
		st.runTimes = recent
		c.mu.Unlock()
		c.logger.Warn("recovery action capped within cooldown window",
			"action", name,
			"attempts", len(recent),
		)
		return
	}
	st.runTimes = append(recent, now)
	run := st.action.Run
	c.mu.Unlock()

	var err error
	if run != nil {
		err = run(ctx)
	}

	rec := ActionRecord{Action: name, At: now, Success: err == nil}
	if err != nil {
		rec.Error = err.Error()
		c.logger.Error("recovery action failed", "action", name, "error", err)
	} else {
		c.logger.Info("recovery action completed", "action", name)
	}

	c.mu.Lock()
	c.history = append(c.history, rec)
	if len(c.history) > historyLimit {
		c.history = c.history[len(c.history)-historyLimit:]
	}
	c.mu.Unlock()
}

// Mode returns the current system mode.
func (c *Coordinator) Mode() SystemMode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.mode
}

// Status returns a snapshot of the coordinator state.
func (c *Coordinator) Status() Status {
	c.mu.Lock()
	history := make([]ActionRecord, len(c.history))
	copy(history, c.history)
	s := Status{
		Mode:                c.mode,
		ConsecutiveFailures: c.consecutiveFailures,
		NetworkErrors:       c.networkErrors,
		LastUsage:           c.lastUsage,
		History:             history,
	}
	c.mu.Unlock()

	if c.breakers != nil {
		s.Breakers = c.breakers.Snapshot()
	}
	return s
}
