// Package metrics provides Prometheus metrics registry and recording utilities.
//
// This package centralizes shared application metrics including:
//   - Lesson inventory metrics (totals, unused, per category)
//   - Database query and connection pool metrics
//
// Component-specific metrics (scheduler jobs, publish outcomes, bot state)
// live next to their components; this package holds the metrics that cut
// across them.
//
// All metrics are automatically registered with the Prometheus default registry
// and exposed via the /metrics endpoint.
//
// Example usage:
//
//	import "lessonbot/internal/observability/metrics"
//
//	func refreshInventory(stats selector.Stats) {
//	    metrics.UpdateLessonInventory(stats.Total, stats.Unused)
//	}
package metrics
