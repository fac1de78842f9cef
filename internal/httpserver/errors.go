package httpserver

import "errors"

// Lifecycle errors.
var (
	// ErrAlreadyRunning is returned by Start when the server is running or
	// still owns a queue from a previous start.
	ErrAlreadyRunning = errors.New("httpserver: server already running")

	// ErrDestroyed is returned by Start after Destroy.
	ErrDestroyed = errors.New("httpserver: server destroyed")

	// ErrStopFailed wraps any failure during graceful shutdown.
	ErrStopFailed = errors.New("httpserver: stop failed")
)

// Admission errors returned by the accept callback. The engine answers all of
// them with 503.
var (
	ErrNotAccepting   = errors.New("httpserver: server not accepting requests")
	ErrRateLimited    = errors.New("httpserver: request rate limit exceeded")
	ErrEnqueueTimeout = errors.New("httpserver: timed out enqueuing request")
)

// Queue errors.
var (
	ErrQueueClosed  = errors.New("httpserver: queue closed")
	ErrQueueTimeout = errors.New("httpserver: queue operation timed out")
)

// Request and engine errors.
var (
	// ErrAlreadyCompleted is returned by a second CompleteAsync on the same request.
	ErrAlreadyCompleted = errors.New("httpserver: request already completed")

	// ErrAsyncInProgress is returned by BeginAsync when the request was
	// already handed off.
	ErrAsyncInProgress = errors.New("httpserver: async handoff already in progress")

	// ErrNotAsync is returned when completing a request that was never handed off.
	ErrNotAsync = errors.New("httpserver: request is not an async copy")

	// ErrReclaimed is returned by writes to a request the engine has already
	// answered and released.
	ErrReclaimed = errors.New("httpserver: request reclaimed by engine")

	// ErrEngineStopped is returned by engine operations after Stop.
	ErrEngineStopped = errors.New("httpserver: engine stopped")

	// ErrHandlerPanic wraps a panic recovered from a route handler.
	ErrHandlerPanic = errors.New("httpserver: handler panicked")
)
