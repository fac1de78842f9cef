package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/floorheat-core/internal/attribute"
	"github.com/nerrad567/floorheat-core/internal/audit"
	"github.com/nerrad567/floorheat-core/internal/control"
	"github.com/nerrad567/floorheat-core/internal/device"
	"github.com/nerrad567/floorheat-core/internal/httpserver"
	"github.com/nerrad567/floorheat-core/internal/infrastructure/config"
	"github.com/nerrad567/floorheat-core/internal/infrastructure/logging"
)

// =============================================================================
// Helpers
// =============================================================================

type memoryAudit struct {
	mu      sync.Mutex
	entries []audit.Entry
	filters []audit.Filter
	err     error
}

func (m *memoryAudit) Create(_ context.Context, e *audit.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memoryAudit) List(_ context.Context, f audit.Filter) (*audit.ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.filters = append(m.filters, f)
	if m.err != nil {
		return nil, m.err
	}
	return &audit.ListResult{Entries: m.entries, Total: len(m.entries), Limit: f.Limit, Offset: f.Offset}, nil
}

type checkFunc func(context.Context) error

func (f checkFunc) HealthCheck(ctx context.Context) error { return f(ctx) }

type fixedLoop control.Stats

func (f fixedLoop) Stats() control.Stats { return control.Stats(f) }

type connected bool

func (c connected) IsConnected() bool { return bool(c) }

func newTestServer() *httpserver.Server {
	eng := httpserver.NewChiEngine(httpserver.EngineDeps{Logger: logging.Discard()})
	return httpserver.New(eng, httpserver.Options{})
}

func newTestAPI(t *testing.T, mutate func(*Deps)) (*API, *device.Status) {
	t.Helper()
	status := device.NewStatus()
	deps := Deps{
		Status:     status,
		Dispatcher: attribute.NewDispatcher(attribute.Options{}),
		Server:     newTestServer(),
		Version:    "1.2.3",
	}
	if mutate != nil {
		mutate(&deps)
	}
	a, err := New(deps)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return a, status
}

// call runs the handler of the route matching target's path.
func call(t *testing.T, a *API, target string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	req := httpserver.NewRequest(rec, httptest.NewRequest(http.MethodGet, target, nil))

	path, _, _ := strings.Cut(target, "?")
	var handler httpserver.HandlerFunc
	for _, r := range a.Routes() {
		if r.URI == path {
			handler = r.Handler
		}
	}
	if handler == nil {
		t.Fatalf("no route %s", path)
	}
	if err := handler(req, nil); err != nil {
		t.Fatalf("handler(%s) error = %v", target, err)
	}

	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("%s: decoding %q: %v", target, rec.Body.String(), err)
	}
	return rec.Code, body
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_Validation(t *testing.T) {
	status := device.NewStatus()
	d := attribute.NewDispatcher(attribute.Options{})
	srv := newTestServer()

	tests := []struct {
		name string
		deps Deps
		want error
	}{
		{"no status", Deps{Dispatcher: d, Server: srv}, ErrNoStatus},
		{"no dispatcher", Deps{Status: status, Server: srv}, ErrNoDispatcher},
		{"no server", Deps{Status: status, Dispatcher: d}, ErrNoServer},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); !errors.Is(err, tt.want) {
				t.Errorf("New() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestRoutes(t *testing.T) {
	a, _ := newTestAPI(t, func(d *Deps) { d.Audit = &memoryAudit{} })

	want := []string{
		"/mode/is_auto", "/mode/is_manual", "/mode/set",
		"/target_temperature/get", "/target_temperature/set",
		"/target_temperature_range/get", "/target_temperature_range/set",
		"/inlet_open/get", "/inlet_open/set", "/inlet_open/is_open",
		"/zone_open/get", "/zone_open/set", "/zone_open/is_open",
		"/temperature/get",
		"/message_template/get", "/message_template/set",
		RouteHealth, RouteMetrics, RouteAuditList, RouteWebSocket, RouteIndex,
	}
	routes := a.Routes()
	if len(routes) != len(want) {
		t.Fatalf("len(Routes()) = %d, want %d", len(routes), len(want))
	}
	for i, r := range routes {
		if r.URI != want[i] {
			t.Errorf("route %d = %s, want %s", i, r.URI, want[i])
		}
		if r.Handler == nil {
			t.Errorf("route %s has no handler", r.URI)
		}
	}
	if routes[len(routes)-2].WebSocket == nil {
		t.Error("/ws is not a websocket route")
	}

	routes[0].URI = "/changed"
	if a.Routes()[0].URI == "/changed" {
		t.Error("Routes() exposes the internal table")
	}
}

func TestRoutes_NoAudit(t *testing.T) {
	a, _ := newTestAPI(t, nil)
	for _, r := range a.Routes() {
		if r.URI == RouteAuditList {
			t.Fatal("audit route registered without a repository")
		}
	}
}

// =============================================================================
// Attribute Routes
// =============================================================================

func TestAttributeRoutes(t *testing.T) {
	a, status := newTestAPI(t, nil)
	if err := status.SetTemperature(2, 23.4); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		target string
		key    string
		want   any
	}{
		{"/target_temperature/set?value=22.5", attrSuccess, true},
		{"/target_temperature/get", "target_temperature", 22.5},
		{"/target_temperature_range/set?value=1.5", attrSuccess, true},
		{"/target_temperature_range/get", "target_temperature_range", 1.5},
		{"/mode/set?value=true", attrSuccess, true},
		{"/mode/is_auto", "auto", true},
		{"/mode/is_manual", "manual", false},
		{"/inlet_open/set?value=1", attrSuccess, true},
		{"/inlet_open/get", "inlet_open", true},
		{"/inlet_open/is_open", "is_inlet_open", false},
		{"/zone_open/set?id=3&value=on", attrSuccess, true},
		{"/zone_open/get?id=3", "zone_open", true},
		{"/zone_open/is_open?id=3", "is_zone_open", false},
		{"/temperature/get?id=2", "temperature", 23.4},
		{"/message_template/set?id=1&value=hello%20floor", attrSuccess, true},
		{"/message_template/get?id=1", "message_template", "hello floor"},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			code, body := call(t, a, tt.target)
			if code != http.StatusOK {
				t.Fatalf("status = %d, want 200 (body %v)", code, body)
			}
			got := body[tt.key]
			if f, ok := got.(float64); ok {
				// float32 values come back rounded to their shortest form.
				if want, _ := tt.want.(float64); f < want-0.001 || f > want+0.001 {
					t.Errorf("%s = %v, want %v", tt.key, got, tt.want)
				}
				return
			}
			if got != tt.want {
				t.Errorf("%s = %v, want %v", tt.key, got, tt.want)
			}
		})
	}

	if !status.IsAuto() {
		t.Error("mode not switched to automatic")
	}
	if open, _ := status.ZoneOpen(3); !open {
		t.Error("zone 3 not opened")
	}
}

func TestAttributeRoutes_DeviceErrorsAreBadRequests(t *testing.T) {
	a, _ := newTestAPI(t, nil)

	tests := []struct {
		target   string
		expected []any
	}{
		{"/zone_open/get?id=8", []any{"id"}},
		{"/zone_open/set?id=12&value=1", []any{"id", "value"}},
		{"/temperature/get?id=200", []any{"id"}},
		{"/message_template/get?id=4", []any{"id"}},
		{"/target_temperature/set?value=80", []any{"value"}},
		{"/target_temperature_range/set?value=-1", []any{"value"}},
	}
	for _, tt := range tests {
		t.Run(tt.target, func(t *testing.T) {
			code, body := call(t, a, tt.target)
			if code != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400 (body %v)", code, body)
			}
			if body["error"] != true || body["message"] != attribute.KindInvalidArgumentsProvided.Message() {
				t.Errorf("body = %v", body)
			}
			exp, _ := body["expected"].([]any)
			if len(exp) != len(tt.expected) {
				t.Fatalf("expected = %v, want %v", exp, tt.expected)
			}
			for i := range exp {
				if exp[i] != tt.expected[i] {
					t.Errorf("expected = %v, want %v", exp, tt.expected)
				}
			}
		})
	}
}

func TestAttributeRoutes_Observer(t *testing.T) {
	var events []attribute.SetEvent
	a, _ := newTestAPI(t, func(d *Deps) {
		d.Dispatcher = attribute.NewDispatcher(attribute.Options{
			Observer: func(ev attribute.SetEvent) { events = append(events, ev) },
		})
	})

	call(t, a, "/zone_open/set?id=2&value=true")
	call(t, a, "/target_temperature/set?value=99")

	if len(events) != 2 {
		t.Fatalf("events = %d, want 2", len(events))
	}
	if ev := events[0]; ev.Attribute != attrSuccess || ev.Index != 2 || ev.Value != "true" || !ev.Success {
		t.Errorf("zone event = %+v", ev)
	}
	if ev := events[1]; ev.Success || !errors.Is(ev.Err, device.ErrTemperatureRange) {
		t.Errorf("target event = %+v, want failure wrapping ErrTemperatureRange", ev)
	}
}

func TestRequestError(t *testing.T) {
	other := errors.New("boom")
	if requestError(nil) != nil {
		t.Error("requestError(nil) != nil")
	}
	if got := requestError(other); got != other {
		t.Errorf("requestError(other) = %v, want passthrough", got)
	}

	var re *attribute.RequestError
	if err := requestError(device.ErrInvalidChannel, "id"); !errors.As(err, &re) || re.Key != "id" {
		t.Errorf("channel error = %v, want request error on id", err)
	}
	if err := requestError(device.ErrTemperatureRange, "value"); !errors.As(err, &re) || re.Key != "value" {
		t.Errorf("range error = %v, want request error on value", err)
	}
}

// =============================================================================
// Operational Routes
// =============================================================================

func TestHealth(t *testing.T) {
	t.Run("healthy", func(t *testing.T) {
		a, _ := newTestAPI(t, func(d *Deps) {
			d.Checks = map[string]HealthChecker{"database": checkFunc(func(context.Context) error { return nil })}
		})
		code, body := call(t, a, RouteHealth)
		if code != http.StatusOK || body["status"] != healthOK || body["version"] != "1.2.3" {
			t.Errorf("health = %d %v", code, body)
		}
	})

	t.Run("degraded", func(t *testing.T) {
		a, _ := newTestAPI(t, func(d *Deps) {
			d.Checks = map[string]HealthChecker{
				"database": checkFunc(func(context.Context) error { return nil }),
				"mqtt":     checkFunc(func(context.Context) error { return errors.New("not connected") }),
			}
		})
		code, body := call(t, a, RouteHealth)
		if code != http.StatusServiceUnavailable || body["status"] != healthDegraded {
			t.Fatalf("health = %d %v", code, body)
		}
		components, _ := body["components"].(map[string]any)
		if components["mqtt"] != "not connected" || components["database"] != healthOK {
			t.Errorf("components = %v", components)
		}
	})
}

func TestMetrics(t *testing.T) {
	a, _ := newTestAPI(t, func(d *Deps) {
		d.Loop = fixedLoop{Ticks: 42}
		d.MQTT = connected(true)
	})

	code, body := call(t, a, RouteMetrics)
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200", code)
	}
	dispatch, _ := body["dispatch"].(map[string]any)
	if dispatch["state"] != string(httpserver.StateStopped) {
		t.Errorf("dispatch = %v", dispatch)
	}
	ctl, _ := body["control"].(map[string]any)
	if ctl["ticks"] != float64(42) {
		t.Errorf("control = %v", ctl)
	}
	if mq, _ := body["mqtt"].(map[string]any); mq["connected"] != true {
		t.Errorf("mqtt = %v", body["mqtt"])
	}
	if _, ok := body["database"]; ok {
		t.Error("database section present without a database")
	}
}

func TestAuditList(t *testing.T) {
	repo := &memoryAudit{entries: []audit.Entry{{ID: "aud-1", Attribute: "mode"}}}
	a, _ := newTestAPI(t, func(d *Deps) { d.Audit = repo })

	code, body := call(t, a, RouteAuditList+"?limit=5&attribute=FHCP2mqtt%2Finlet%2Fmode&failed=true")
	if code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (%v)", code, body)
	}
	if body["total"] != float64(1) {
		t.Errorf("total = %v, want 1", body["total"])
	}
	f := repo.filters[0]
	if f.Limit != 5 || f.Attribute != "FHCP2mqtt/inlet/mode" || !f.Failed {
		t.Errorf("filter = %+v", f)
	}

	code, body = call(t, a, RouteAuditList+"?limit=many")
	if code != http.StatusBadRequest || body["message"] != attribute.KindInvalidArgumentsProvided.Message() {
		t.Errorf("bad limit = %d %v", code, body)
	}

	repo.err = errors.New("database is locked")
	code, body = call(t, a, RouteAuditList)
	if code != http.StatusInternalServerError || body["code"] != ErrCodeInternal {
		t.Errorf("repository failure = %d %v", code, body)
	}
}

func TestParseAuditFilter(t *testing.T) {
	tests := []struct {
		raw     string
		want    audit.Filter
		wantErr bool
	}{
		{"", audit.Filter{}, false},
		{"limit=10&offset=20", audit.Filter{Limit: 10, Offset: 20}, false},
		{"source=mqtt&failed=1", audit.Filter{Source: "mqtt", Failed: true}, false},
		{"unknown=1", audit.Filter{}, false},
		{"offset=x", audit.Filter{}, true},
		{"failed=maybe", audit.Filter{}, true},
		{"limit", audit.Filter{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := parseAuditFilter(tt.raw)
			if (err != nil) != tt.wantErr {
				t.Fatalf("parseAuditFilter(%q) error = %v, wantErr %v", tt.raw, err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseAuditFilter(%q) = %+v, want %+v", tt.raw, got, tt.want)
			}
		})
	}
}

func TestHandleFrame(t *testing.T) {
	a, status := newTestAPI(t, nil)
	status.SetInletOpen(true)

	code, body := call(t, a, RouteWebSocket+"?id=1")
	if code != http.StatusNotFound {
		t.Errorf("query-only frame status = %d, want 404 (%v)", code, body)
	}

	rec := httptest.NewRecorder()
	req := httpserver.NewRequest(rec, httptest.NewRequest(http.MethodGet, "/inlet_open/get", nil))
	if err := a.handleFrame(req, nil); err != nil {
		t.Fatalf("handleFrame() error = %v", err)
	}
	if got := rec.Body.String(); got != `{"inlet_open":true}` {
		t.Errorf("frame reply = %s, want {\"inlet_open\":true}", got)
	}
}

// =============================================================================
// Full Stack
// =============================================================================

func TestAPI_OverDispatchServer(t *testing.T) {
	status := device.NewStatus()
	eng := httpserver.NewChiEngine(httpserver.EngineDeps{
		Config:    config.APIConfig{Host: "127.0.0.1", Port: 0, ReclaimTimeout: 2},
		WebSocket: config.WebSocketConfig{MaxMessageSize: 1024, PongTimeout: 2},
		Logger:    logging.Discard(),
	})
	srv := httpserver.New(eng, httpserver.Options{})
	a, err := New(Deps{Status: status, Dispatcher: attribute.NewDispatcher(attribute.Options{}), Server: srv})
	if err != nil {
		t.Fatal(err)
	}
	if err := srv.Start(context.Background(), a.Routes()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck // cleanup
		srv.Stop(context.Background())
	})
	base := eng.Addr().String()

	resp, err := http.Get("http://" + base + "/zone_open/set?id=1&value=true") //nolint:gosec,noctx // test URL
	if err != nil {
		t.Fatal(err)
	}
	data, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || string(data) != `{"sucess":true}` {
		t.Fatalf("set = %d %s", resp.StatusCode, data)
	}

	resp, err = http.Get("http://" + base + "/") //nolint:gosec,noctx // test URL
	if err != nil {
		t.Fatal(err)
	}
	data, _ = io.ReadAll(resp.Body)
	resp.Body.Close()
	if !strings.Contains(string(data), `<a href="/zone_open/set">`) {
		t.Errorf("route listing missing /zone_open/set: %s", data)
	}

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+base+RouteWebSocket, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte("/zone_open/get?id=1")); err != nil {
		t.Fatal(err)
	}
	//nolint:errcheck // test deadline
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, reply, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	if string(reply) != `{"zone_open":true}` {
		t.Errorf("frame reply = %s, want {\"zone_open\":true}", reply)
	}
}
