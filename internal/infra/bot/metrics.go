package bot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"lessonbot/internal/pkg/config"
	"lessonbot/internal/resilience/circuitbreaker"
	"lessonbot/internal/resilience/coordinator"
)

// Metrics exposes the bot's runtime state to Prometheus. It embeds the
// configuration metrics and adds gauges fed from the resilience
// coordinator's status snapshot.
type Metrics struct {
	*config.Metrics

	// SystemMode is the current mode: 0 normal, 1 degraded, 2 minimal,
	// 3 emergency.
	SystemMode prometheus.Gauge

	// ConsecutiveFailures is the current publish failure streak.
	ConsecutiveFailures prometheus.Gauge

	// NetworkErrors is the current network error streak.
	NetworkErrors prometheus.Gauge

	// BreakerState reports each circuit breaker: 0 closed, 1 half-open,
	// 2 open.
	BreakerState *prometheus.GaugeVec
}

// NewMetrics creates and registers the bot metrics.
func NewMetrics() *Metrics {
	return &Metrics{
		Metrics: config.NewMetrics("bot"),

		SystemMode: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bot_system_mode",
			Help: "Current system mode (0 normal, 1 degraded, 2 minimal, 3 emergency)",
		}),

		ConsecutiveFailures: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bot_consecutive_failures",
			Help: "Current streak of failed publish operations",
		}),

		NetworkErrors: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "bot_network_errors",
			Help: "Current streak of network errors",
		}),

		BreakerState: promauto.NewGaugeVec(prometheus.GaugeOpts{
			Name: "bot_breaker_state",
			Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open)",
		}, []string{"dependency"}),
	}
}

// ObserveStatus publishes a coordinator status snapshot to the gauges.
// Called periodically from the bot's status loop.
func (m *Metrics) ObserveStatus(st coordinator.Status) {
	if m == nil {
		return
	}
	m.SystemMode.Set(float64(st.Mode))
	m.ConsecutiveFailures.Set(float64(st.ConsecutiveFailures))
	m.NetworkErrors.Set(float64(st.NetworkErrors))
	for _, b := range st.Breakers {
		m.BreakerState.WithLabelValues(b.Name).Set(breakerStateValue(b.State))
	}
}

func breakerStateValue(s circuitbreaker.State) float64 {
	switch s {
	case circuitbreaker.StateOpen:
		return 2
	case circuitbreaker.StateHalfOpen:
		return 1
	default:
		return 0
	}
}
