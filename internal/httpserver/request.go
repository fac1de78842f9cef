package httpserver

import (
	"context"
	"io"
	"net/http"
	"sync"
)

// exchange is the state of one HTTP request/response pair shared by the
// engine and whichever side currently owns the request. All response writes
// go through mu so the engine can release the exchange at any time without
// racing a worker.
type exchange struct {
	mu sync.Mutex

	w http.ResponseWriter
	r *http.Request

	uri       string
	path      string
	rawQuery  string
	requestID string

	// header belongs to the current owner and is only merged into w by
	// the owner's own first write. The engine never touches it.
	header      http.Header
	wroteHeader bool
	status      int
	written     int64

	begun     bool
	completed bool
	aborted   bool
	released  bool

	done     chan struct{}
	doneOnce sync.Once
}

func newExchange(w http.ResponseWriter, r *http.Request) *exchange {
	id, _ := r.Context().Value(ctxKeyRequestID).(string) //nolint:errcheck // empty when middleware absent
	return &exchange{
		w:         w,
		r:         r,
		uri:       r.URL.RequestURI(),
		path:      r.URL.Path,
		rawQuery:  r.URL.RawQuery,
		requestID: id,
		header:    make(http.Header),
		done:      make(chan struct{}),
	}
}

func (ex *exchange) signal() {
	ex.doneOnce.Do(func() { close(ex.done) })
}

// writeHeaderLocked merges the owner's headers and commits the status
// line. Only the owner calls it, holding mu.
func (ex *exchange) writeHeaderLocked(status int) {
	if ex.wroteHeader {
		return
	}
	dst := ex.w.Header()
	for k, v := range ex.header {
		dst[k] = v
	}
	ex.commitLocked(status)
}

// commitLocked sends the status line with whatever ex.w already carries.
// Callers hold mu.
func (ex *exchange) commitLocked(status int) {
	ex.w.WriteHeader(status)
	ex.wroteHeader = true
	ex.status = status
}

func (ex *exchange) writable() error {
	switch {
	case ex.released:
		return ErrReclaimed
	case ex.completed:
		return ErrAlreadyCompleted
	}
	return nil
}

func (ex *exchange) complete() error {
	ex.mu.Lock()
	if ex.completed {
		ex.mu.Unlock()
		return ErrAlreadyCompleted
	}
	ex.completed = true
	ex.mu.Unlock()

	ex.signal()
	return nil
}

func (ex *exchange) abort() {
	ex.mu.Lock()
	if !ex.completed {
		ex.aborted = true
	}
	ex.mu.Unlock()

	ex.signal()
}

// release hands the exchange back to the engine for good. Unless the owner
// completed it, an unanswered exchange gets a plain 503. Later writes are
// dropped.
//
// Returns:
//   - bool: true when the owner completed the exchange before release
func (ex *exchange) release() bool {
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.released {
		return ex.completed
	}
	ex.released = true

	if !ex.completed && !ex.wroteHeader {
		h := ex.w.Header()
		h.Set("Content-Type", "text/plain; charset=utf-8")
		h.Set("X-Content-Type-Options", "nosniff")
		ex.commitLocked(http.StatusServiceUnavailable)
		//nolint:errcheck // Best-effort write; connection may be closed
		io.WriteString(ex.w, http.StatusText(http.StatusServiceUnavailable)+"\n")
	}
	return ex.completed
}

// Request is a handle over one HTTP exchange (or one websocket frame).
// It implements http.ResponseWriter.
//
// The engine passes its own handle to the accept callback; BeginAsync
// returns an owned copy for the worker. Both refer to the same exchange, but
// only the owned copy may be completed.
type Request struct {
	ex    *exchange
	async bool
}

// NewRequest wraps a plain ResponseWriter/Request pair in a Request that is
// served inline. Synchronous routes receive requests built this way.
func NewRequest(w http.ResponseWriter, r *http.Request) *Request {
	return &Request{ex: newExchange(w, r)}
}

// URI returns the request target (path plus query).
func (req *Request) URI() string { return req.ex.uri }

// Path returns the URL path.
func (req *Request) Path() string { return req.ex.path }

// RawQuery returns the query string without the leading '?'.
func (req *Request) RawQuery() string { return req.ex.rawQuery }

// Method returns the HTTP method.
func (req *Request) Method() string { return req.ex.r.Method }

// ID returns the request ID assigned by the engine middleware.
func (req *Request) ID() string { return req.ex.requestID }

// Context returns the context of the underlying HTTP request. It is
// cancelled when the client goes away.
func (req *Request) Context() context.Context { return req.ex.r.Context() }

// HTTPRequest returns the underlying request. Handlers must treat it as
// read-only.
func (req *Request) HTTPRequest() *http.Request { return req.ex.r }

// IsAsync reports whether req is an owned copy returned by BeginAsync.
func (req *Request) IsAsync() bool { return req.async }

// Header returns the response header map of the current owner. Changes
// after the first write, or after the engine reclaimed the request, have no
// effect.
func (req *Request) Header() http.Header {
	return req.ex.header
}

// WriteHeader sends the status line. Calls after the first are ignored, as
// are calls on a released request.
func (req *Request) WriteHeader(status int) {
	ex := req.ex
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if ex.writable() != nil {
		return
	}
	ex.writeHeaderLocked(status)
}

// Write writes body bytes, sending a 200 status first if none was sent.
func (req *Request) Write(b []byte) (int, error) {
	ex := req.ex
	ex.mu.Lock()
	defer ex.mu.Unlock()

	if err := ex.writable(); err != nil {
		return 0, err
	}
	ex.writeHeaderLocked(http.StatusOK)
	n, err := ex.w.Write(b)
	ex.written += int64(n)
	return n, err
}

// Written reports whether a status line has been sent.
func (req *Request) Written() bool {
	req.ex.mu.Lock()
	defer req.ex.mu.Unlock()
	return req.ex.wroteHeader
}

// Status returns the status sent so far, or 0.
func (req *Request) Status() int {
	req.ex.mu.Lock()
	defer req.ex.mu.Unlock()
	return req.ex.status
}
