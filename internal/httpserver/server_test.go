package httpserver

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/time/rate"
)

// fakeEngine records the dispatcher's calls and hands requests straight
// through.
type fakeEngine struct {
	mu        sync.Mutex
	routes    []Route
	accept    AcceptFunc
	startErr  error
	started   int
	stopped   int
	cleared   bool
	completed int
	aborted   int
}

func (f *fakeEngine) RegisterRoute(r Route) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.routes = append(f.routes, r)
	return nil
}

func (f *fakeEngine) Start(_ context.Context, accept AcceptFunc) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		f.routes = nil
		return f.startErr
	}
	f.accept = accept
	f.started++
	return nil
}

func (f *fakeEngine) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopped++
	f.routes = nil
	return nil
}

func (f *fakeEngine) BeginAsync(req *Request) (*Request, error) {
	req.ex.mu.Lock()
	defer req.ex.mu.Unlock()
	if req.ex.begun {
		return nil, ErrAsyncInProgress
	}
	req.ex.begun = true
	return &Request{ex: req.ex, async: true}, nil
}

// CompleteAsync holds mu while signalling so counts observed after the
// request is done include it.
func (f *fakeEngine) CompleteAsync(req *Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := req.ex.complete(); err != nil {
		return err
	}
	f.completed++
	return nil
}

func (f *fakeEngine) AbortAsync(req *Request) {
	f.mu.Lock()
	f.aborted++
	f.mu.Unlock()
	req.ex.abort()
}

func (f *fakeEngine) ClearContext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleared = true
	f.accept = nil
}

func (f *fakeEngine) counts() (completed, aborted int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.completed, f.aborted
}

func newTestRequest(t *testing.T, target string) (*Request, *httptest.ResponseRecorder) {
	t.Helper()
	rec := httptest.NewRecorder()
	return NewRequest(rec, httptest.NewRequest(http.MethodGet, target, nil)), rec
}

func waitDone(t *testing.T, req *Request) {
	t.Helper()
	select {
	case <-req.ex.done:
	case <-time.After(2 * time.Second):
		t.Fatalf("request %s was never completed", req.URI())
	}
}

func startServer(t *testing.T, opts Options, routes RouteTable) (*Server, *fakeEngine) {
	t.Helper()
	eng := &fakeEngine{}
	s := New(eng, opts)
	if err := s.Start(context.Background(), routes); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck // cleanup
		s.Stop(context.Background())
	})
	return s, eng
}

func echoRoute(uri string) Route {
	return Route{
		URI: uri,
		Handler: func(req *Request, _ any) error {
			_, err := io.WriteString(req, req.RawQuery())
			return err
		},
	}
}

func TestRouteTable_Active(t *testing.T) {
	table := RouteTable{echoRoute("/a"), echoRoute("/b"), {}, echoRoute("/ignored")}
	active := table.Active()
	if len(active) != 2 {
		t.Fatalf("len(Active()) = %d, want 2", len(active))
	}
	if got := (RouteTable{echoRoute("/a")}).Active(); len(got) != 1 {
		t.Errorf("table without sentinel: len = %d, want 1", len(got))
	}
}

func TestServer_StartRegistersRoutesBeforeSentinel(t *testing.T) {
	s, eng := startServer(t, Options{}, RouteTable{echoRoute("/a"), echoRoute("/b"), {}, echoRoute("/c")})

	if len(eng.routes) != 2 {
		t.Errorf("registered %d routes, want 2", len(eng.routes))
	}
	if s.State() != StateRunning {
		t.Errorf("State() = %q, want %q", s.State(), StateRunning)
	}
	if len(s.Routes()) != 2 {
		t.Errorf("len(Routes()) = %d, want 2", len(s.Routes()))
	}
}

func TestServer_StartTwice(t *testing.T) {
	s, _ := startServer(t, Options{}, RouteTable{echoRoute("/a")})

	if err := s.Start(context.Background(), nil); !errors.Is(err, ErrAlreadyRunning) {
		t.Errorf("second Start() error = %v, want ErrAlreadyRunning", err)
	}
}

func TestServer_StartEngineFailureRollsBack(t *testing.T) {
	eng := &fakeEngine{startErr: errors.New("port in use")}
	s := New(eng, Options{Workers: 3})

	err := s.Start(context.Background(), RouteTable{echoRoute("/a")})
	if err == nil || !strings.Contains(err.Error(), "port in use") {
		t.Fatalf("Start() error = %v, want engine failure", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %q, want %q", s.State(), StateStopped)
	}
	if s.queue.Load() != nil {
		t.Error("queue still present after failed start")
	}
	if s.workers != nil {
		t.Error("workers still present after failed start")
	}

	eng.startErr = nil
	if err := s.Start(context.Background(), RouteTable{echoRoute("/a")}); err != nil {
		t.Fatalf("Start() after failure error = %v", err)
	}
	//nolint:errcheck // cleanup
	s.Stop(context.Background())
}

func TestServer_DispatchCompletesExactlyOnce(t *testing.T) {
	s, eng := startServer(t, Options{}, RouteTable{echoRoute("/echo")})

	req, rec := newTestRequest(t, "/echo?value=42")
	if err := eng.accept(req, s.Routes()[0]); err != nil {
		t.Fatalf("accept() error = %v", err)
	}
	waitDone(t, req)

	if rec.Code != http.StatusOK || rec.Body.String() != "value=42" {
		t.Errorf("response = %d %q, want 200 %q", rec.Code, rec.Body.String(), "value=42")
	}
	if completed, _ := eng.counts(); completed != 1 {
		t.Errorf("completed = %d, want 1", completed)
	}
	owned := &Request{ex: req.ex, async: true}
	if err := eng.CompleteAsync(owned); !errors.Is(err, ErrAlreadyCompleted) {
		t.Errorf("second CompleteAsync() error = %v, want ErrAlreadyCompleted", err)
	}
}

func TestServer_HandlerFailures(t *testing.T) {
	tests := []struct {
		name      string
		handler   HandlerFunc
		wantCode  int
		wantPanic uint64
	}{
		{
			name:     "error without response",
			handler:  func(*Request, any) error { return errors.New("sensor offline") },
			wantCode: http.StatusInternalServerError,
		},
		{
			name: "error after response",
			handler: func(req *Request, _ any) error {
				req.WriteHeader(http.StatusBadRequest)
				return errors.New("already answered")
			},
			wantCode: http.StatusBadRequest,
		},
		{
			name:      "panic",
			handler:   func(*Request, any) error { panic("boom") },
			wantCode:  http.StatusInternalServerError,
			wantPanic: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			route := Route{URI: "/x", Handler: tt.handler}
			s, eng := startServer(t, Options{}, RouteTable{route})

			req, rec := newTestRequest(t, "/x")
			if err := eng.accept(req, route); err != nil {
				t.Fatalf("accept() error = %v", err)
			}
			waitDone(t, req)

			if rec.Code != tt.wantCode {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantCode)
			}
			if completed, _ := eng.counts(); completed != 1 {
				t.Errorf("completed = %d, want 1", completed)
			}
			st := s.Stats()
			if st.Panics != tt.wantPanic {
				t.Errorf("Stats().Panics = %d, want %d", st.Panics, tt.wantPanic)
			}
			if st.Failed != 1 {
				t.Errorf("Stats().Failed = %d, want 1", st.Failed)
			}
		})
	}
}

func TestServer_Backpressure(t *testing.T) {
	started := make(chan struct{}, 4)
	release := make(chan struct{})
	route := Route{
		URI: "/slow",
		Handler: func(*Request, any) error {
			started <- struct{}{}
			<-release
			return nil
		},
	}
	s, eng := startServer(t, Options{Workers: 1, QueueSize: 1, EnqueueWait: 50 * time.Millisecond}, RouteTable{route})
	defer close(release)

	first, _ := newTestRequest(t, "/slow")
	if err := eng.accept(first, route); err != nil {
		t.Fatalf("first accept() error = %v", err)
	}
	<-started // the only worker is now busy

	second, _ := newTestRequest(t, "/slow")
	if err := eng.accept(second, route); err != nil {
		t.Fatalf("second accept() error = %v, want queued", err)
	}

	third, _ := newTestRequest(t, "/slow")
	begin := time.Now()
	err := eng.accept(third, route)
	if !errors.Is(err, ErrEnqueueTimeout) {
		t.Fatalf("third accept() error = %v, want ErrEnqueueTimeout", err)
	}
	if elapsed := time.Since(begin); elapsed > time.Second {
		t.Errorf("rejected accept took %v, want about 50ms", elapsed)
	}
	if _, aborted := eng.counts(); aborted != 1 {
		t.Errorf("aborted = %d, want 1", aborted)
	}
	if st := s.Stats(); st.Rejected != 1 || st.Accepted != 2 {
		t.Errorf("Stats() = %+v, want 2 accepted 1 rejected", st)
	}
}

func TestServer_AcceptWhenNotRunning(t *testing.T) {
	s := New(&fakeEngine{}, Options{})
	req, _ := newTestRequest(t, "/x")

	if err := s.accept(req, echoRoute("/x")); !errors.Is(err, ErrNotAccepting) {
		t.Errorf("accept() error = %v, want ErrNotAccepting", err)
	}
}

func TestServer_RateLimited(t *testing.T) {
	route := echoRoute("/x")
	_, eng := startServer(t, Options{Limiter: rate.NewLimiter(0, 1)}, RouteTable{route})

	first, _ := newTestRequest(t, "/x")
	if err := eng.accept(first, route); err != nil {
		t.Fatalf("first accept() error = %v", err)
	}
	second, _ := newTestRequest(t, "/x")
	if err := eng.accept(second, route); !errors.Is(err, ErrRateLimited) {
		t.Errorf("second accept() error = %v, want ErrRateLimited", err)
	}
}

func TestServer_StopIsIdempotent(t *testing.T) {
	eng := &fakeEngine{}
	s := New(eng, Options{Workers: 3, WorkerWait: 20 * time.Millisecond})
	if err := s.Start(context.Background(), RouteTable{echoRoute("/a")}); err != nil {
		t.Fatal(err)
	}
	workers := append([]*worker(nil), s.workers...)

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	for _, w := range workers {
		if !w.terminated() {
			t.Errorf("worker %d still running after Stop", w.id)
		}
	}
	if s.queue.Load() != nil {
		t.Error("queue still present after Stop")
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %q, want %q", s.State(), StateStopped)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Errorf("second Stop() error = %v", err)
	}
	if eng.stopped != 1 {
		t.Errorf("engine stopped %d times, want 1", eng.stopped)
	}

	// A stopped server can be started again.
	if err := s.Start(context.Background(), RouteTable{echoRoute("/a")}); err != nil {
		t.Fatalf("restart error = %v", err)
	}
	//nolint:errcheck // cleanup
	s.Stop(context.Background())
}

func TestServer_StopDrainsQueue(t *testing.T) {
	route := Route{
		URI: "/slow",
		Handler: func(req *Request, _ any) error {
			time.Sleep(10 * time.Millisecond)
			req.WriteHeader(http.StatusNoContent)
			return nil
		},
	}
	eng := &fakeEngine{}
	s := New(eng, Options{Workers: 1, QueueSize: 4, EnqueueWait: time.Second})
	if err := s.Start(context.Background(), RouteTable{route}); err != nil {
		t.Fatal(err)
	}

	var reqs []*Request
	for i := 0; i < 4; i++ {
		req, _ := newTestRequest(t, "/slow")
		if err := eng.accept(req, route); err != nil {
			t.Fatalf("accept(%d) error = %v", i, err)
		}
		reqs = append(reqs, req)
	}

	if err := s.Stop(context.Background()); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	for _, req := range reqs {
		waitDone(t, req)
	}
	if completed, aborted := eng.counts(); completed != 4 || aborted != 0 {
		t.Errorf("completed = %d, aborted = %d, want 4 and 0", completed, aborted)
	}
}

func TestServer_StopTimeout(t *testing.T) {
	release := make(chan struct{})
	route := Route{URI: "/stuck", Handler: func(*Request, any) error { <-release; return nil }}
	eng := &fakeEngine{}
	s := New(eng, Options{Workers: 1, QueueSize: 2})
	if err := s.Start(context.Background(), RouteTable{route}); err != nil {
		t.Fatal(err)
	}
	defer close(release)

	req, _ := newTestRequest(t, "/stuck")
	if err := eng.accept(req, route); err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := s.Stop(ctx)
	if !errors.Is(err, ErrStopFailed) {
		t.Fatalf("Stop() error = %v, want ErrStopFailed", err)
	}
	if s.State() != StateStopped {
		t.Errorf("State() = %q, want %q", s.State(), StateStopped)
	}
	if eng.stopped != 1 {
		t.Errorf("engine stopped %d times, want 1", eng.stopped)
	}
}

func TestServer_Destroy(t *testing.T) {
	started := make(chan struct{}, 1)
	release := make(chan struct{})
	route := Route{
		URI: "/slow",
		Handler: func(*Request, any) error {
			started <- struct{}{}
			<-release
			return nil
		},
	}
	eng := &fakeEngine{}
	s := New(eng, Options{Workers: 1, QueueSize: 4})
	if err := s.Start(context.Background(), RouteTable{route}); err != nil {
		t.Fatal(err)
	}

	busy, _ := newTestRequest(t, "/slow")
	if err := eng.accept(busy, route); err != nil {
		t.Fatal(err)
	}
	<-started

	queued, rec := newTestRequest(t, "/slow")
	if err := eng.accept(queued, route); err != nil {
		t.Fatal(err)
	}

	s.Destroy()

	if !eng.cleared {
		t.Error("Destroy did not clear the engine context")
	}
	if _, aborted := eng.counts(); aborted != 1 {
		t.Errorf("aborted = %d, want 1", aborted)
	}
	waitDone(t, queued)
	if !queued.ex.aborted {
		t.Error("queued request not marked aborted")
	}
	if queued.ex.release() {
		t.Error("aborted request reported as completed")
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("aborted request status = %d, want 503", rec.Code)
	}
	if s.State() != StateDestroyed {
		t.Errorf("State() = %q, want %q", s.State(), StateDestroyed)
	}
	if err := s.Start(context.Background(), RouteTable{route}); !errors.Is(err, ErrDestroyed) {
		t.Errorf("Start() after Destroy error = %v, want ErrDestroyed", err)
	}

	// The busy worker still completes its request once released.
	close(release)
	waitDone(t, busy)
	s.Destroy()
}

func TestServer_ShowRoutes(t *testing.T) {
	s, _ := startServer(t, Options{}, RouteTable{
		echoRoute("/mode/is_auto"),
		{URI: "/zone_open/set", Method: http.MethodGet, Handler: echoRoute("").Handler},
	})

	req, rec := newTestRequest(t, "/")
	if err := s.ShowRoutes(req, nil); err != nil {
		t.Fatalf("ShowRoutes() error = %v", err)
	}

	body := rec.Body.String()
	for _, want := range []string{
		"<!DOCTYPE html><html><head><title>Overview of api endpoints</title></head><body>",
		`<p><a href="/mode/is_auto">/mode/is_auto</a> (GET)</p>`,
		`<p><a href="/zone_open/set">/zone_open/set</a> (GET)</p>`,
		"</body></html>",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type = %q, want text/html", ct)
	}
}
