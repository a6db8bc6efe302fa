// Package observability provides production-grade observability infrastructure
// including structured logging, Prometheus metrics, and OpenTelemetry tracing.
//
// This package centralizes observability concerns to enable:
//   - Structured logging with context propagation
//   - Prometheus metrics for monitoring the publish pipeline and lesson store
//   - Distributed tracing of publish operations
//   - SLO tracking for the daily posting schedule
//
// Subpackages:
//   - logging: Structured logging utilities with slog
//   - metrics: Prometheus metrics registry and recorders
//   - tracing: OpenTelemetry tracing integration
//   - slo: Service level objective tracking
//
// Example usage:
//
//	import (
//	    "lessonbot/internal/observability/logging"
//	    "lessonbot/internal/observability/metrics"
//	)
//
//	func main() {
//	    level := logging.NewLevelVar("info")
//	    logger := logging.NewLogger(level)
//	    logger.Info("application started")
//
//	    metrics.UpdateLessonInventory(120, 45)
//	}
package observability
