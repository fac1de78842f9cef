package httpserver

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// State is the lifecycle state of a Server.
type State string

const (
	StateStopped   State = "stopped"
	StateStarting  State = "starting"
	StateRunning   State = "running"
	StateStopping  State = "stopping"
	StateDestroyed State = "destroyed"
)

// Default dispatcher settings.
const (
	DefaultQueueSize   = 8
	DefaultWorkers     = 2
	DefaultWorkerWait  = time.Second
	DefaultEnqueueWait = 100 * time.Millisecond
)

// Poll intervals used by Stop.
const (
	drainPollInterval  = 10 * time.Millisecond
	workerPollInterval = 100 * time.Millisecond
)

// destroyStopTimeout bounds the engine stop issued by Destroy.
const destroyStopTimeout = 5 * time.Second

// Logger defines the logging interface for the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Options configures a Server. Zero fields take the package defaults.
type Options struct {
	// QueueSize is the queue capacity. It is raised to Workers if smaller.
	QueueSize int

	// Workers is the fixed worker pool size.
	Workers int

	// WorkerWait is how long a worker blocks on an empty queue before
	// checking whether it should exit.
	WorkerWait time.Duration

	// EnqueueWait is how long the accept callback waits for a queue slot.
	EnqueueWait time.Duration

	// Limiter, when set, must allow a request before it is enqueued.
	Limiter *rate.Limiter

	Logger Logger
}

func (o Options) withDefaults() Options {
	if o.QueueSize <= 0 {
		o.QueueSize = DefaultQueueSize
	}
	if o.Workers <= 0 {
		o.Workers = DefaultWorkers
	}
	if o.QueueSize < o.Workers {
		o.QueueSize = o.Workers
	}
	if o.WorkerWait <= 0 {
		o.WorkerWait = DefaultWorkerWait
	}
	if o.EnqueueWait <= 0 {
		o.EnqueueWait = DefaultEnqueueWait
	}
	if o.Logger == nil {
		o.Logger = noopLogger{}
	}
	return o
}

// AsyncRequest is the handoff record passed from the accept callback to a
// worker. Exactly one worker consumes it.
type AsyncRequest struct {
	req      *Request
	route    Route
	enqueued time.Time
}

// worker is the bookkeeping for one worker goroutine.
type worker struct {
	id   int
	done chan struct{}
}

func (w *worker) terminated() bool {
	select {
	case <-w.done:
		return true
	default:
		return false
	}
}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	State      string `json:"state"`
	Workers    int    `json:"workers"`
	QueueDepth int    `json:"queue_depth"`
	QueueCap   int    `json:"queue_capacity"`
	Accepted   uint64 `json:"accepted"`
	Rejected   uint64 `json:"rejected"`
	Completed  uint64 `json:"completed"`
	Failed     uint64 `json:"failed"`
	Panics     uint64 `json:"panics"`
}

// Server is the async dispatch server. It owns a bounded queue and a fixed
// worker pool and drives an Engine whose accept callback feeds the queue.
//
// Thread Safety:
//   - Start, Stop and Destroy are serialized; the accept callback and the
//     workers only touch the queue, atomics and read-only route data.
type Server struct {
	engine Engine
	opts   Options
	logger Logger

	// lifecycle serializes Start, Stop and Destroy.
	lifecycle sync.Mutex

	stateMu sync.RWMutex
	state   State

	accepting atomic.Bool
	queue     atomic.Pointer[Queue[*AsyncRequest]]
	routes    atomic.Pointer[RouteTable]

	workers      []*worker
	cancelWorker context.CancelFunc

	accepted  atomic.Uint64
	rejected  atomic.Uint64
	completed atomic.Uint64
	failed    atomic.Uint64
	panics    atomic.Uint64
}

// New creates a stopped server driving engine.
func New(engine Engine, opts Options) *Server {
	opts = opts.withDefaults()
	return &Server{
		engine: engine,
		opts:   opts,
		logger: opts.Logger,
		state:  StateStopped,
	}
}

// SetLogger sets the logger for the server. Call it before Start.
func (s *Server) SetLogger(logger Logger) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()
	if logger == nil {
		logger = noopLogger{}
	}
	s.logger = logger
}

// State returns the current lifecycle state.
func (s *Server) State() State {
	s.stateMu.RLock()
	defer s.stateMu.RUnlock()
	return s.state
}

func (s *Server) setState(st State) {
	s.stateMu.Lock()
	s.state = st
	s.stateMu.Unlock()
}

// Routes returns the active route table of the current run.
func (s *Server) Routes() RouteTable {
	if t := s.routes.Load(); t != nil {
		return *t
	}
	return nil
}

// Start creates the queue and workers, registers every route before the
// sentinel and starts the engine.
//
// Parameters:
//   - ctx: Context for engine startup; workers outlive it until Stop
//   - routes: Route table, read-only from here on
//
// Returns:
//   - error: ErrAlreadyRunning, ErrDestroyed, or the engine failure. On
//     engine failure the queue and workers created by this call are torn
//     down again.
func (s *Server) Start(ctx context.Context, routes RouteTable) error {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	switch st := s.State(); {
	case st == StateDestroyed:
		return ErrDestroyed
	case st != StateStopped, s.queue.Load() != nil:
		return ErrAlreadyRunning
	}
	s.setState(StateStarting)

	active := routes.Active()
	s.routes.Store(&active)

	q := NewQueue[*AsyncRequest](s.opts.QueueSize)
	s.queue.Store(q)

	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancelWorker = cancel
	s.workers = make([]*worker, s.opts.Workers)
	for i := range s.workers {
		w := &worker{id: i, done: make(chan struct{})}
		s.workers[i] = w
		go s.runWorker(workerCtx, q, w)
	}

	err := s.startEngine(ctx, active)
	if err != nil {
		s.accepting.Store(false)
		s.queue.Store(nil)
		q.Close()
		cancel()
		for _, w := range s.workers {
			<-w.done
		}
		s.workers = nil
		s.setState(StateStopped)
		return err
	}

	s.setState(StateRunning)
	s.logger.Info("dispatch server started",
		"workers", len(s.workers),
		"queue_capacity", q.Cap(),
		"routes", len(active),
	)
	return nil
}

func (s *Server) startEngine(ctx context.Context, routes RouteTable) error {
	for _, r := range routes {
		if err := s.engine.RegisterRoute(r); err != nil {
			return fmt.Errorf("registering route %s %s: %w", r.method(), r.URI, err)
		}
	}

	s.accepting.Store(true)
	if err := s.engine.Start(ctx, s.accept); err != nil {
		return fmt.Errorf("starting engine: %w", err)
	}
	return nil
}

// accept is the engine callback. It never blocks longer than EnqueueWait.
func (s *Server) accept(req *Request, route Route) error {
	err := s.admit(req, route)
	if err != nil {
		s.rejected.Add(1)
		s.logger.Warn("request rejected",
			"uri", req.URI(),
			"request_id", req.ID(),
			"error", err,
		)
		return err
	}
	s.accepted.Add(1)
	return nil
}

func (s *Server) admit(req *Request, route Route) error {
	if !s.accepting.Load() {
		return ErrNotAccepting
	}
	q := s.queue.Load()
	if q == nil {
		return ErrNotAccepting
	}
	if s.opts.Limiter != nil && !s.opts.Limiter.Allow() {
		return ErrRateLimited
	}

	owned, err := s.engine.BeginAsync(req)
	if err != nil {
		return fmt.Errorf("beginning async handoff: %w", err)
	}

	item := &AsyncRequest{req: owned, route: route, enqueued: time.Now()}
	if err := q.Push(item, s.opts.EnqueueWait); err != nil {
		s.engine.AbortAsync(owned)
		if errors.Is(err, ErrQueueTimeout) {
			return ErrEnqueueTimeout
		}
		return ErrNotAccepting
	}
	return nil
}

func (s *Server) runWorker(ctx context.Context, q *Queue[*AsyncRequest], w *worker) {
	defer close(w.done)

	for ctx.Err() == nil {
		item, err := q.Pop(s.opts.WorkerWait)
		if err != nil {
			if errors.Is(err, ErrQueueClosed) {
				return
			}
			continue
		}
		s.serve(w, item)
	}
}

// serve runs one request and completes it exactly once, whatever the
// handler did.
func (s *Server) serve(w *worker, item *AsyncRequest) {
	req := item.req
	defer func() {
		if err := s.engine.CompleteAsync(req); err != nil {
			s.logger.Warn("completing request", "uri", req.URI(), "error", err)
		}
		s.completed.Add(1)
	}()

	err := s.invoke(item)
	if err == nil {
		return
	}

	s.failed.Add(1)
	s.logger.Error("handler failed",
		"worker", w.id,
		"uri", req.URI(),
		"request_id", req.ID(),
		"queued_ms", time.Since(item.enqueued).Milliseconds(),
		"error", err,
	)
	if !req.Written() {
		http.Error(req, err.Error(), http.StatusInternalServerError)
	}
}

func (s *Server) invoke(item *AsyncRequest) (err error) {
	defer func() {
		if r := recover(); r != nil {
			s.panics.Add(1)
			err = fmt.Errorf("%w: %v", ErrHandlerPanic, r)
		}
	}()
	return item.route.Handler(item.req, item.route.UserData)
}

// Stop shuts the server down gracefully: stop accepting, wait for the queue
// to drain, destroy it, wait for every worker to exit, stop the engine.
// Calling Stop on a stopped server is a no-op.
//
// Parameters:
//   - ctx: Bounds the whole shutdown
//
// Returns:
//   - error: ErrStopFailed wrapping the cause; the server is still torn down
//     as far as possible and left Stopped
func (s *Server) Stop(ctx context.Context) (err error) {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	switch s.State() {
	case StateStopped, StateDestroyed:
		return nil
	}
	s.setState(StateStopping)

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrStopFailed, r)
		}
		s.workers = nil
		s.setState(StateStopped)
		if err != nil {
			s.logger.Error("dispatch server stop failed", "error", err)
		} else {
			s.logger.Info("dispatch server stopped")
		}
	}()

	s.accepting.Store(false)

	var errs []error
	q := s.queue.Load()
	if q != nil {
		if perr := poll(ctx, drainPollInterval, func() bool { return q.Len() == 0 }); perr != nil {
			errs = append(errs, fmt.Errorf("draining queue: %w", perr))
		}
		s.queue.Store(nil)
		s.abortAll(q.Close())
	}

	if perr := poll(ctx, workerPollInterval, s.workersTerminated); perr != nil {
		errs = append(errs, fmt.Errorf("waiting for workers: %w", perr))
	}
	if s.cancelWorker != nil {
		s.cancelWorker()
	}

	if serr := s.engine.Stop(ctx); serr != nil {
		errs = append(errs, fmt.Errorf("stopping engine: %w", serr))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrStopFailed, errors.Join(errs...))
	}
	return nil
}

func (s *Server) workersTerminated() bool {
	for _, w := range s.workers {
		if !w.terminated() {
			return false
		}
	}
	return true
}

// abortAll hands never-dequeued requests back to the engine.
func (s *Server) abortAll(items []*AsyncRequest) {
	for _, item := range items {
		s.engine.AbortAsync(item.req)
	}
	if len(items) > 0 {
		s.logger.Warn("discarded queued requests", "count", len(items))
	}
}

// Destroy tears the server down without draining: queued requests are
// aborted, workers are told to exit but not waited for, and the engine is
// stopped. The server cannot be started again.
func (s *Server) Destroy() {
	s.lifecycle.Lock()
	defer s.lifecycle.Unlock()

	if s.State() == StateDestroyed {
		return
	}

	s.engine.ClearContext()
	s.accepting.Store(false)

	if q := s.queue.Swap(nil); q != nil {
		s.abortAll(q.Close())
	}
	if s.cancelWorker != nil {
		s.cancelWorker()
	}
	s.workers = nil

	ctx, cancel := context.WithTimeout(context.Background(), destroyStopTimeout)
	defer cancel()
	if err := s.engine.Stop(ctx); err != nil {
		s.logger.Warn("engine stop during destroy", "error", err)
	}

	s.setState(StateDestroyed)
	s.logger.Info("dispatch server destroyed")
}

// Stats returns a snapshot of the dispatcher counters.
func (s *Server) Stats() Stats {
	st := Stats{
		State:     string(s.State()),
		Workers:   s.opts.Workers,
		Accepted:  s.accepted.Load(),
		Rejected:  s.rejected.Load(),
		Completed: s.completed.Load(),
		Failed:    s.failed.Load(),
		Panics:    s.panics.Load(),
	}
	if q := s.queue.Load(); q != nil {
		st.QueueDepth = q.Len()
		st.QueueCap = q.Cap()
	}
	return st
}

// poll calls cond every interval until it returns true or ctx ends.
func poll(ctx context.Context, interval time.Duration, cond func() bool) error {
	if cond() {
		return nil
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if cond() {
				return nil
			}
		}
	}
}
