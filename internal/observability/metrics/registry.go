// Package metrics provides centralized Prometheus metrics for the application.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Business metrics track the lesson inventory
var (
	// LessonsTotal tracks total number of lessons in the database
	LessonsTotal = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lessons_total",
			Help: "Total number of lessons in the database",
		},
	)

	// LessonsUnused tracks lessons not yet posted in the current cycle
	LessonsUnused = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "lessons_unused",
			Help: "Number of lessons not yet posted in the current cycle",
		},
	)

	// LessonsByCategory tracks lesson counts per category
	LessonsByCategory = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "lessons_by_category",
			Help: "Number of lessons per category",
		},
		[]string{"category"},
	)

	// CycleResetsTotal counts duplicate-avoidance cycle resets
	CycleResetsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "lesson_cycle_resets_total",
			Help: "Total number of lesson cycle resets",
		},
	)
)

// Database metrics track database performance
var (
	// DBQueryDuration measures database query duration
	DBQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "db_query_duration_seconds",
			Help:    "Database query duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.001, 2, 10),
		},
		[]string{"operation"},
	)

	// DBConnectionsActive tracks active database connections
	DBConnectionsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_active",
			Help: "Number of active database connections",
		},
	)

	// DBConnectionsIdle tracks idle database connections
	DBConnectionsIdle = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "db_connections_idle",
			Help: "Number of idle database connections",
		},
	)
)

// RecordOperationDuration records the duration of a named operation
func RecordOperationDuration(operation string, duration time.Duration) {
	DBQueryDuration.WithLabelValues(operation).Observe(duration.Seconds())
}
