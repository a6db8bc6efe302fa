// Package circuitbreaker provides circuit breaker implementations for external dependencies.
// The Registry tracks consecutive failures per dependency name and gates
// attempts through a closed/open/half-open state machine; the database
// wrapper in db.go uses github.com/sony/gobreaker instead.
package circuitbreaker

import (
	"log/slog"
	"sync"
	"time"
)

// State is the gate state of a single breaker.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// Config holds breaker settings shared by all dependencies in a Registry.
type Config struct {
	// FailureThreshold is the number of consecutive failures that opens the breaker
	FailureThreshold int

	// OpenTimeout is how long an open breaker waits before the sweep
	// moves it to half-open
	OpenTimeout time.Duration
}

// DefaultConfig returns the default breaker configuration:
// open after 5 consecutive failures, re-probe after 5 minutes.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		OpenTimeout:      300 * time.Second,
	}
}

// breaker is the per-dependency state. Protected by Registry.mu.
//
// Invariant: state == open implies consecutiveFailures >= FailureThreshold.
type breaker struct {
	state               State
	consecutiveFailures int
	lastFailureAt       time.Time
}

// Status is a read-only snapshot of one breaker, exposed for health
// and status endpoints.
type Status struct {
	Name                string
	State               State
	ConsecutiveFailures int
	LastFailureAt       *time.Time
}

// Registry holds one breaker per dependency name. First use of a name
// lazily initializes a closed breaker with zero failures. All state
// transitions happen under a single mutex so the pipeline and the
// background sweep observe one consistent view.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	breakers map[string]*breaker
	now      func() time.Time
}

// NewRegistry creates a breaker registry with the given configuration.
func NewRegistry(cfg Config) *Registry {
	if cfg.FailureThreshold < 1 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	return &Registry{
		cfg:      cfg,
		breakers: make(map[string]*breaker),
		now:      time.Now,
	}
}

// SetNowFunc overrides the clock, for tests.
func (r *Registry) SetNowFunc(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
}

// get returns the breaker for name, creating it closed. Caller holds mu.
func (r *Registry) get(name string) *breaker {
	b, ok := r.breakers[name]
	if !ok {
		b = &breaker{state: StateClosed}
		r.breakers[name] = b
	}
	return b
}

// Allow reports whether an attempt against the named dependency may be
// made. Only the open state refuses attempts.
func (r *Registry) Allow(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(name).state != StateOpen
}

// RecordSuccess records a successful operation. A success in half-open
// closes the breaker; a success in closed clears the failure count.
func (r *Registry) RecordSuccess(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(name)
	switch b.state {
	case StateHalfOpen:
		b.state = StateClosed
		b.consecutiveFailures = 0
		slog.Info("circuit breaker closed after successful probe",
			slog.String("dependency", name))
	case StateClosed:
		b.consecutiveFailures = 0
	}
}

// RecordFailure records a failed operation. Crossing the failure
// threshold, or any failure in half-open, opens the breaker.
func (r *Registry) RecordFailure(name string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	b := r.get(name)
	b.consecutiveFailures++
	b.lastFailureAt = r.now()

	if b.state == StateHalfOpen || b.consecutiveFailures >= r.cfg.FailureThreshold {
		if b.state != StateOpen {
			slog.Warn("circuit breaker opened",
				slog.String("dependency", name),
				slog.Int("consecutive_failures", b.consecutiveFailures))
		}
		b.state = StateOpen
	}
}

// Sweep moves open breakers whose OpenTimeout has elapsed since the
// last failure into half-open. This is the only transition out of open;
// it is driven by the resilience coordinator's periodic loop.
func (r *Registry) Sweep() {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	for name, b := range r.breakers {
		if b.state == StateOpen && now.Sub(b.lastFailureAt) > r.cfg.OpenTimeout {
			b.state = StateHalfOpen
			slog.Info("circuit breaker moved to half-open",
				slog.String("dependency", name))
		}
	}
}

// StateOf returns the current state of the named breaker, initializing
// it if needed.
func (r *Registry) StateOf(name string) State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(name).state
}

// Snapshot returns the status of every known breaker.
func (r *Registry) Snapshot() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	statuses := make([]Status, 0, len(r.breakers))
	for name, b := range r.breakers {
		s := Status{
			Name:                name,
			State:               b.state,
			ConsecutiveFailures: b.consecutiveFailures,
		}
		if !b.lastFailureAt.IsZero() {
			at := b.lastFailureAt
			s.LastFailureAt = &at
		}
		statuses = append(statuses, s)
	}
	return statuses
}
