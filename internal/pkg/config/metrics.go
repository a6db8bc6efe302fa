package config

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics tracks configuration loading per component. Because loading is
// strict, validation errors here mean the process refused to start; the
// counters mostly matter for spotting repeated crash loops caused by bad
// config pushes.
type Metrics struct {
	// LoadTimestamp is the Unix time of the last successful load.
	LoadTimestamp prometheus.Gauge

	// ValidationErrorsTotal counts rejected configuration values by field.
	ValidationErrorsTotal *prometheus.CounterVec
}

// NewMetrics creates configuration metrics prefixed with the component
// name, e.g. "bot_config_load_timestamp".
func NewMetrics(component string) *Metrics {
	return &Metrics{
		LoadTimestamp: promauto.NewGauge(prometheus.GaugeOpts{
			Name: fmt.Sprintf("%s_config_load_timestamp", component),
			Help: "Unix timestamp of the last successful configuration load",
		}),
		ValidationErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: fmt.Sprintf("%s_config_validation_errors_total", component),
				Help: "Total number of rejected configuration values by field",
			},
			[]string{"field"},
		),
	}
}

// RecordLoad marks a successful configuration load.
func (m *Metrics) RecordLoad() {
	if m == nil {
		return
	}
	m.LoadTimestamp.Set(float64(time.Now().Unix()))
}

// RecordValidationError counts a rejected value for the given field.
func (m *Metrics) RecordValidationError(field string) {
	if m == nil {
		return
	}
	m.ValidationErrorsTotal.WithLabelValues(field).Inc()
}
