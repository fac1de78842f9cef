package api

import (
	"context"
	"database/sql"
	"time"

	"github.com/nerrad567/floorheat-core/internal/attribute"
	"github.com/nerrad567/floorheat-core/internal/audit"
	"github.com/nerrad567/floorheat-core/internal/control"
	"github.com/nerrad567/floorheat-core/internal/device"
	"github.com/nerrad567/floorheat-core/internal/httpserver"
)

// Route URIs of the operational endpoints.
const (
	RouteHealth    = "/health"
	RouteMetrics   = "/metrics"
	RouteAuditList = "/audit/list"
	RouteWebSocket = "/ws"
	RouteIndex     = "/"
)

// HealthChecker is a component that can report its health.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// ConnectionStatus reports whether a client is connected.
type ConnectionStatus interface {
	IsConnected() bool
}

// LoopStats provides control loop counters.
type LoopStats interface {
	Stats() control.Stats
}

// RecorderStats provides audit recorder counters.
type RecorderStats interface {
	Stats() audit.RecorderStats
}

// DBStats provides connection pool statistics; *database.DB satisfies it.
type DBStats interface {
	Stats() sql.DBStats
}

// Logger is the logging interface used by the api handlers.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Deps holds the dependencies of the route table. Status, Dispatcher and
// Server are required; every other field is optional and the matching
// route or metrics section is left out when it is nil.
type Deps struct {
	Status     *device.Status
	Dispatcher *attribute.Dispatcher
	Server     *httpserver.Server

	Audit    audit.Repository
	Recorder RecorderStats
	Loop     LoopStats
	MQTT     ConnectionStatus
	DB       DBStats

	// Checks are run by /health, keyed by component name.
	Checks map[string]HealthChecker

	// WebSocket overrides the options of the /ws route.
	WebSocket *httpserver.WebSocketOptions

	Version string
	Logger  Logger
}

// API is the controller's route table and the handlers behind it.
type API struct {
	status     *device.Status
	dispatcher *attribute.Dispatcher
	server     *httpserver.Server
	audit      audit.Repository
	recorder   RecorderStats
	loop       LoopStats
	mqtt       ConnectionStatus
	db         DBStats
	checks     map[string]HealthChecker
	version    string
	logger     Logger
	startTime  time.Time

	routes httpserver.RouteTable
	// multiplex maps the URI of every GET route reachable from /ws.
	multiplex map[string]httpserver.Route
}

// New builds the route table.
//
// Parameters:
//   - deps: Collaborators; Status, Dispatcher and Server are required
//
// Returns:
//   - *API: Ready to hand its Routes to Server.Start
//   - error: ErrNoStatus, ErrNoDispatcher or ErrNoServer
func New(deps Deps) (*API, error) {
	switch {
	case deps.Status == nil:
		return nil, ErrNoStatus
	case deps.Dispatcher == nil:
		return nil, ErrNoDispatcher
	case deps.Server == nil:
		return nil, ErrNoServer
	}

	a := &API{
		status:     deps.Status,
		dispatcher: deps.Dispatcher,
		server:     deps.Server,
		audit:      deps.Audit,
		recorder:   deps.Recorder,
		loop:       deps.Loop,
		mqtt:       deps.MQTT,
		db:         deps.DB,
		checks:     deps.Checks,
		version:    deps.Version,
		logger:     deps.Logger,
		startTime:  time.Now(),
	}
	if a.logger == nil {
		a.logger = noopLogger{}
	}
	if a.version == "" {
		a.version = "dev"
	}

	ws := deps.WebSocket
	if ws == nil {
		ws = &httpserver.WebSocketOptions{HandleControlFrames: true}
	}

	routes := a.attributeRoutes()
	routes = append(routes,
		httpserver.Route{URI: RouteHealth, Handler: a.handleHealth, Synchronous: true},
		httpserver.Route{URI: RouteMetrics, Handler: a.handleMetrics, Synchronous: true},
	)
	if a.audit != nil {
		routes = append(routes, httpserver.Route{URI: RouteAuditList, Handler: a.handleAuditList})
	}

	a.multiplex = make(map[string]httpserver.Route, len(routes)+1)
	for _, r := range routes {
		a.multiplex[r.URI] = r
	}

	routes = append(routes,
		httpserver.Route{URI: RouteWebSocket, Handler: a.handleFrame, WebSocket: ws},
		httpserver.Route{URI: RouteIndex, Handler: a.server.ShowRoutes, Synchronous: true},
	)
	a.multiplex[RouteIndex] = routes[len(routes)-1]
	a.routes = routes

	return a, nil
}

// Routes returns a copy of the route table.
func (a *API) Routes() httpserver.RouteTable {
	out := make(httpserver.RouteTable, len(a.routes))
	copy(out, a.routes)
	return out
}
