// Package resilience groups the fault tolerance machinery that keeps the
// bot posting through flaky dependencies: circuit breakers for the
// delivery channel and the database, retry with exponential backoff for
// individual sends, and the coordinator that degrades the whole process
// under resource pressure.
//
// Usage Example:
//
//	breakers := circuitbreaker.NewRegistry(circuitbreaker.DefaultConfig())
//	if breakers.Allow("delivery") {
//	    _, err := retry.WithBackoff(ctx, retry.DeliveryConfig(3, time.Second), retry.StdSleeper{}, send)
//	    if err != nil {
//	        breakers.RecordFailure("delivery")
//	    } else {
//	        breakers.RecordSuccess("delivery")
//	    }
//	}
package resilience
