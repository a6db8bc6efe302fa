// Package logging provides structured logging utilities with context propagation.
//
// This package wraps the standard library's log/slog package with helper functions
// for common logging patterns used throughout the application.
//
// Key features:
//   - JSON and text output formats
//   - A process-wide adjustable level, raised in emergency mode
//   - Context-aware logging
//
// Example usage:
//
//	import "lessonbot/internal/observability/logging"
//
//	func main() {
//	    level := logging.NewLevelVar("info")
//	    logger := logging.NewLogger(level)
//	    logger.Info("application started", slog.String("version", "1.0"))
//	}
package logging
