package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/floorheat-core/internal/infrastructure/config"
	"github.com/nerrad567/floorheat-core/internal/infrastructure/logging"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during engine shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// defaultReclaimTimeout applies when the API config leaves it unset.
const defaultReclaimTimeout = 30 * time.Second

// supportedMethods are the methods a route may be registered with.
var supportedMethods = map[string]bool{
	http.MethodGet:    true,
	http.MethodHead:   true,
	http.MethodPost:   true,
	http.MethodPut:    true,
	http.MethodPatch:  true,
	http.MethodDelete: true,
}

// EngineDeps holds the dependencies of a ChiEngine.
type EngineDeps struct {
	Config    config.APIConfig
	WebSocket config.WebSocketConfig
	Logger    *logging.Logger
}

// ChiEngine is the net/http engine behind the dispatcher. It routes with chi,
// runs the request middleware chain, holds every dispatched request open
// until a worker completes it, and serves websocket routes.
//
// Thread Safety: All methods are safe for concurrent use.
type ChiEngine struct {
	cfg            config.APIConfig
	wsCfg          config.WebSocketConfig
	logger         *logging.Logger
	reclaimTimeout time.Duration

	mu       sync.RWMutex
	routes   []Route
	accept   AcceptFunc
	handler  http.Handler
	server   *http.Server
	addr     net.Addr
	stopping chan struct{}
	running  bool

	connMu sync.Mutex
	conns  map[*websocket.Conn]struct{}
}

// NewChiEngine creates an engine. It listens only once Start is called.
func NewChiEngine(deps EngineDeps) *ChiEngine {
	logger := deps.Logger
	if logger == nil {
		logger = logging.Default()
	}
	reclaim := deps.Config.GetReclaimTimeout()
	if reclaim <= 0 {
		reclaim = defaultReclaimTimeout
	}
	return &ChiEngine{
		cfg:            deps.Config,
		wsCfg:          deps.WebSocket,
		logger:         logger.With("component", "engine"),
		reclaimTimeout: reclaim,
		conns:          make(map[*websocket.Conn]struct{}),
	}
}

// RegisterRoute adds a route to the next Start.
func (e *ChiEngine) RegisterRoute(route Route) error {
	if route.Handler == nil {
		return fmt.Errorf("route %q has no handler", route.URI)
	}
	if len(route.URI) == 0 || route.URI[0] != '/' {
		return fmt.Errorf("route %q must start with '/'", route.URI)
	}
	if !supportedMethods[route.method()] {
		return fmt.Errorf("route %q: method %q not supported", route.URI, route.Method)
	}
	if route.WebSocket != nil && route.method() != http.MethodGet {
		return fmt.Errorf("websocket route %q must use GET", route.URI)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.running {
		return errors.New("engine already started")
	}
	e.routes = append(e.routes, route)
	return nil
}

// Start builds the router from the registered routes and begins listening.
// Listen errors (port in use, permissions) are returned; serve errors after
// that are logged.
//
// Parameters:
//   - ctx: Unused beyond the call; the listener lives until Stop
//   - accept: Dispatcher callback for non-synchronous routes
func (e *ChiEngine) Start(_ context.Context, accept AcceptFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.running {
		return errors.New("engine already started")
	}

	handler := e.buildRouter(e.routes)

	addr := fmt.Sprintf("%s:%d", e.cfg.Host, e.cfg.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		e.routes = nil
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	srv := &http.Server{
		Handler:           handler,
		ReadTimeout:       e.cfg.GetReadTimeout(),
		ReadHeaderTimeout: e.cfg.GetReadTimeout(),
		WriteTimeout:      e.cfg.GetWriteTimeout(),
		IdleTimeout:       e.cfg.GetIdleTimeout(),
	}

	e.accept = accept
	e.handler = handler
	e.server = srv
	e.addr = ln.Addr()
	e.stopping = make(chan struct{})
	e.running = true

	go func() {
		var err error
		if e.cfg.TLS.Enabled {
			e.logger.Info("HTTP engine starting with TLS", "address", ln.Addr().String(), "cert", e.cfg.TLS.CertFile)
			err = srv.ServeTLS(ln, e.cfg.TLS.CertFile, e.cfg.TLS.KeyFile)
		} else {
			e.logger.Info("HTTP engine starting", "address", ln.Addr().String())
			err = srv.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("HTTP engine error", "error", err)
		}
	}()

	return nil
}

// buildRouter creates the chi router with the middleware chain and one
// handler per route.
func (e *ChiEngine) buildRouter(routes []Route) http.Handler {
	r := chi.NewRouter()

	r.Use(e.requestIDMiddleware)
	r.Use(e.loggingMiddleware)
	r.Use(e.recoveryMiddleware)
	r.Use(e.corsMiddleware)
	r.Use(e.bodySizeLimitMiddleware)

	for _, route := range routes {
		r.Method(route.method(), route.URI, e.routeHandler(route))
	}
	return r
}

// Handler returns the router of the current run, or nil before Start.
func (e *ChiEngine) Handler() http.Handler {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.handler
}

// Addr returns the listener address of the current run, or nil.
func (e *ChiEngine) Addr() net.Addr {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.addr
}

// Stop releases every open request, closes websocket connections and shuts
// the HTTP server down. Safe to call more than once.
func (e *ChiEngine) Stop(ctx context.Context) error {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return nil
	}
	e.running = false
	close(e.stopping)
	srv := e.server
	e.accept = nil
	e.routes = nil
	e.server = nil
	e.handler = nil
	e.mu.Unlock()

	e.closeWebSockets()

	ctx, cancel := context.WithTimeout(ctx, gracefulShutdownTimeout)
	defer cancel()

	e.logger.Info("HTTP engine shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down HTTP server: %w", err)
	}
	return nil
}

// BeginAsync returns the owned copy of req handed to a worker.
func (e *ChiEngine) BeginAsync(req *Request) (*Request, error) {
	if req == nil || req.ex == nil {
		return nil, errors.New("httpserver: nil request")
	}
	if e.stopped() {
		return nil, ErrEngineStopped
	}

	ex := req.ex
	ex.mu.Lock()
	defer ex.mu.Unlock()

	switch {
	case ex.released:
		return nil, ErrReclaimed
	case ex.begun:
		return nil, ErrAsyncInProgress
	}
	ex.begun = true
	return &Request{ex: ex, async: true}, nil
}

// CompleteAsync marks an owned copy complete and wakes the waiting engine
// goroutine.
func (e *ChiEngine) CompleteAsync(req *Request) error {
	if req == nil || !req.async {
		return ErrNotAsync
	}
	return req.ex.complete()
}

// AbortAsync releases an owned copy that no worker will serve.
func (e *ChiEngine) AbortAsync(req *Request) {
	if req == nil || req.ex == nil {
		return
	}
	req.ex.abort()
}

// ClearContext drops the dispatcher callback. Requests arriving afterwards
// are answered with 503.
func (e *ChiEngine) ClearContext() {
	e.mu.Lock()
	e.accept = nil
	e.mu.Unlock()
}

func (e *ChiEngine) stopped() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return !e.running
}

func (e *ChiEngine) dispatchContext() (AcceptFunc, <-chan struct{}) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.accept, e.stopping
}

func (e *ChiEngine) routeHandler(route Route) http.HandlerFunc {
	if route.WebSocket != nil {
		return e.websocketHandler(route)
	}
	return func(w http.ResponseWriter, r *http.Request) {
		req := NewRequest(w, r)
		if route.Synchronous {
			e.serveInline(req, route)
			return
		}
		e.dispatch(req, route)
	}
}

func (e *ChiEngine) serveInline(req *Request, route Route) {
	if err := route.Handler(req, route.UserData); err != nil {
		e.logger.Error("synchronous handler failed", "uri", req.URI(), "error", err)
		if !req.Written() {
			http.Error(req, err.Error(), http.StatusInternalServerError)
		}
	}
}

// dispatch hands req to the dispatcher and holds the exchange open until it
// is completed or reclaimed.
func (e *ChiEngine) dispatch(req *Request, route Route) {
	accept, stopping := e.dispatchContext()
	if accept == nil {
		req.ex.release()
		return
	}
	if err := accept(req, route); err != nil {
		req.ex.release()
		return
	}
	e.await(req.ex, stopping)
}

func (e *ChiEngine) await(ex *exchange, stopping <-chan struct{}) {
	timer := time.NewTimer(e.reclaimTimeout)
	defer timer.Stop()

	var reason string
	select {
	case <-ex.done:
	case <-ex.r.Context().Done():
		reason = "client gone"
	case <-timer.C:
		reason = "reclaim timeout"
	case <-stopping:
		reason = "engine stopping"
	}

	if completed := ex.release(); !completed && reason != "" {
		e.logger.Warn("request reclaimed", "uri", ex.uri, "request_id", ex.requestID, "reason", reason)
	}
}
