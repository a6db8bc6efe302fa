// Package tracing provides OpenTelemetry tracing integration.
//
// The publish pipeline creates a span per publish and per follow-up quiz;
// the HTTP middleware traces health endpoint requests and propagates
// incoming W3C trace context.
//
// Example usage:
//
//	func processPublish(ctx context.Context) {
//	    ctx, span := tracing.GetTracer().Start(ctx, "publish.Execute")
//	    defer span.End()
//	    // ... publish the lesson ...
//	}
package tracing
