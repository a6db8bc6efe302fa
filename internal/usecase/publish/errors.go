package publish

import "errors"

// ErrCircuitOpen means the delivery breaker pre-empted the attempt; no send
// was made and the breaker's failure count is unchanged.
var ErrCircuitOpen = errors.New("delivery circuit breaker open")
