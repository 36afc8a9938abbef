// Package lifxerr defines the error kinds the core produces, so callers at
// every layer can classify a failure with errors.Is instead of string
// matching.
package lifxerr

import "errors"

// ErrTargetNotFound is returned by the dispatcher when a target spec resolves
// to no known bulb. It is not logged above debug.
var ErrTargetNotFound = errors.New("lifxerr: target not found")

// ErrQueryTimeout is logged by a query verb's collector when it does not
// hear back from every resolved target within QUERY_TIMEOUT_MS. It is not
// returned to the dispatch caller: the caller gets the Result, with each
// target that did not reply marked as timed out.
var ErrQueryTimeout = errors.New("lifxerr: query timed out")

// ErrGatewayTimeout marks a gateway the watchdog considers unresponsive;
// it drives gateway closure, not a caller-visible error.
var ErrGatewayTimeout = errors.New("lifxerr: gateway timed out")

// ErrResourceExhausted is returned when the socket budget is exceeded (file
// descriptor exhaustion opening a new gateway connection). Logged at
// warning; the operation is declined and the daemon keeps running.
var ErrResourceExhausted = errors.New("lifxerr: resource exhausted")

// ErrInvalidCommand marks a dispatch validation failure (bad target spec,
// out-of-range HSBK argument, unknown verb). Surfaced synchronously to the
// caller.
var ErrInvalidCommand = errors.New("lifxerr: invalid command")

// ErrGatewayIO marks a gateway socket dial or write failure. It is returned
// to the caller (which logs it); it does not close the gateway or start a
// re-discovery cycle.
var ErrGatewayIO = errors.New("lifxerr: gateway io error")

// ErrCancelled is delivered to a pending request's reply handler when its
// owning gateway closes before a reply arrives.
var ErrCancelled = errors.New("lifxerr: cancelled")
