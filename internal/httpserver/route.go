package httpserver

import (
	"context"
	"net/http"
)

// HandlerFunc is the type-erased handler bound to a route. It writes its
// response through req and receives the route's opaque user data.
type HandlerFunc func(req *Request, userData any) error

// WebSocketOptions marks a route as a websocket endpoint.
type WebSocketOptions struct {
	// Subprotocol is offered during the upgrade handshake when non-empty.
	Subprotocol string

	// HandleControlFrames installs ping/pong handlers that log and answer
	// control frames instead of the library defaults.
	HandleControlFrames bool
}

// Route is one immutable entry of a route table.
type Route struct {
	URI      string
	Method   string
	Handler  HandlerFunc
	UserData any

	// WebSocket is non-nil for websocket routes.
	WebSocket *WebSocketOptions

	// Synchronous routes run inline on the engine goroutine instead of being
	// dispatched to a worker.
	Synchronous bool
}

// IsSentinel reports whether r is the zero route that terminates a table.
func (r Route) IsSentinel() bool {
	return r.URI == "" && r.Handler == nil
}

// RouteTable is built once at startup and never mutated afterwards.
// A sentinel (zero) Route ends the table; entries after it are ignored.
type RouteTable []Route

// Active returns the routes before the first sentinel.
func (t RouteTable) Active() RouteTable {
	for i, r := range t {
		if r.IsSentinel() {
			return t[:i]
		}
	}
	return t
}

// method returns the route method, defaulting to GET.
func (r Route) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return r.Method
}

// AcceptFunc is the dispatcher callback the engine invokes for every
// non-synchronous request. A non-nil error means the request was not taken
// and the engine must answer it itself.
type AcceptFunc func(req *Request, route Route) error

// Engine is the HTTP engine the dispatcher drives.
//
// The engine owns every request it hands to AcceptFunc: a request taken with
// BeginAsync stays open until CompleteAsync or AbortAsync is called, the
// client goes away, the engine's reclaim timeout elapses, or the engine stops.
// Requests released by any path other than CompleteAsync are answered with
// 503 and later writes to them are discarded.
type Engine interface {
	// RegisterRoute adds a route. Routes must be registered before Start.
	RegisterRoute(route Route) error

	// Start begins serving and binds accept as the dispatcher context.
	Start(ctx context.Context, accept AcceptFunc) error

	// Stop stops serving and releases every open request.
	Stop(ctx context.Context) error

	// BeginAsync returns an owned copy of req that outlives the accept callback.
	BeginAsync(req *Request) (*Request, error)

	// CompleteAsync marks an owned copy complete. A second call returns
	// ErrAlreadyCompleted.
	CompleteAsync(req *Request) error

	// AbortAsync releases an owned copy that will never be served.
	AbortAsync(req *Request)

	// ClearContext drops the engine's reference to the dispatcher.
	ClearContext()
}
