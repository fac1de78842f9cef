package attribute

import (
	"bytes"
	"errors"
	"fmt"
	"net/url"
	"sync"

	"github.com/nerrad567/floorheat-core/internal/httpserver"
	"github.com/nerrad567/floorheat-core/internal/queryparser"
)

// Query keys read by the bound handlers.
const (
	KeyID    = "id"
	KeyValue = "value"
)

// DefaultMaxQueryLength bounds the raw query of a request when Options
// leaves it unset.
const DefaultMaxQueryLength = 512

// ErrAccessorPanic wraps a panic raised by a getter or setter.
var ErrAccessorPanic = errors.New("attribute: accessor panicked")

// Accessor signatures bound by the dispatcher.
type (
	Getter[T Primitive]        func() (T, error)
	IndexedGetter[T Primitive] func(idx uint8) (T, error)
	Setter[T Primitive]        func(value T) (bool, error)
	IndexedSetter[T Primitive] func(idx uint8, value T) (bool, error)
)

// GetterOf adapts an accessor that cannot fail.
func GetterOf[T Primitive](fn func() T) Getter[T] {
	return func() (T, error) { return fn(), nil }
}

// SetterOf adapts a setter that cannot fail.
func SetterOf[T Primitive](fn func(T) bool) Setter[T] {
	return func(v T) (bool, error) { return fn(v), nil }
}

// Logger is the logging interface used by the dispatcher.
type Logger interface {
	Debug(msg string, args ...any)
	Error(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Error(string, ...any) {}

// SetEvent describes one setter invocation.
type SetEvent struct {
	URI       string
	Attribute string
	// Index is the channel of an indexed setter, -1 otherwise.
	Index     int
	Value     string
	Success   bool
	Err       error
	RequestID string
}

// SetObserver is called after every setter invocation, successful or not.
// It runs on the worker goroutine and must not block.
type SetObserver func(SetEvent)

// Options configures a Dispatcher.
type Options struct {
	Logger         Logger
	Observer       SetObserver
	MaxQueryLength int
}

// Dispatcher binds typed accessors to httpserver handlers. It owns the
// request validation and the JSON rendering shared by every route.
type Dispatcher struct {
	logger         Logger
	maxQueryLength int

	mu       sync.RWMutex
	observer SetObserver
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(opts Options) *Dispatcher {
	d := &Dispatcher{
		logger:         opts.Logger,
		maxQueryLength: opts.MaxQueryLength,
		observer:       opts.Observer,
	}
	if d.logger == nil {
		d.logger = noopLogger{}
	}
	if d.maxQueryLength <= 0 {
		d.maxQueryLength = DefaultMaxQueryLength
	}
	return d
}

// SetObserver replaces the setter observer. A nil observer disables it.
func (d *Dispatcher) SetObserver(obs SetObserver) {
	d.mu.Lock()
	d.observer = obs
	d.mu.Unlock()
}

func (d *Dispatcher) notify(ev SetEvent) {
	d.mu.RLock()
	obs := d.observer
	d.mu.RUnlock()
	if obs != nil {
		obs(ev)
	}
}

// Get binds a getter. The query is ignored; the response is
// {"<attr>": value}.
func Get[T Primitive](d *Dispatcher, attr string, fn Getter[T]) httpserver.HandlerFunc {
	return func(req *httpserver.Request, _ any) error {
		v, err := protect[T](fn)
		return d.respond(req, attr, v, err)
	}
}

// GetIndexed binds a getter addressed by the "id" key.
func GetIndexed[T Primitive](d *Dispatcher, attr string, fn IndexedGetter[T]) httpserver.HandlerFunc {
	return func(req *httpserver.Request, _ any) error {
		q, err := d.parse(req, KeyID)
		if err != nil {
			return d.respond(req, attr, false, err)
		}
		defer q.Release()

		idx, err := arg[uint8](q, KeyID, KeyID)
		if err != nil {
			return d.respond(req, attr, false, err)
		}
		v, err := protect(func() (T, error) { return fn(idx) })
		return d.respond(req, attr, v, err)
	}
}

// Set binds a setter fed by the "value" key. The response is
// {"<attr>": success}.
func Set[T Primitive](d *Dispatcher, attr string, fn Setter[T]) httpserver.HandlerFunc {
	return func(req *httpserver.Request, _ any) error {
		q, err := d.parse(req, KeyValue)
		if err != nil {
			return d.respond(req, attr, false, err)
		}
		defer q.Release()

		v, raw, err := value[T](q, KeyValue)
		if err != nil {
			return d.respond(req, attr, false, err)
		}
		ok, err := protect(func() (bool, error) { return fn(v) })
		d.notify(SetEvent{
			URI: req.URI(), Attribute: attr, Index: -1, Value: raw,
			Success: ok, Err: err, RequestID: req.ID(),
		})
		return d.respond(req, attr, ok, err)
	}
}

// SetIndexed binds a setter addressed by "id" and fed by "value".
func SetIndexed[T Primitive](d *Dispatcher, attr string, fn IndexedSetter[T]) httpserver.HandlerFunc {
	return func(req *httpserver.Request, _ any) error {
		q, err := d.parse(req, KeyID, KeyValue)
		if err != nil {
			return d.respond(req, attr, false, err)
		}
		defer q.Release()

		idx, err := arg[uint8](q, KeyID, KeyID, KeyValue)
		if err != nil {
			return d.respond(req, attr, false, err)
		}
		v, raw, err := value[T](q, KeyID, KeyValue)
		if err != nil {
			return d.respond(req, attr, false, err)
		}
		ok, err := protect(func() (bool, error) { return fn(idx, v) })
		d.notify(SetEvent{
			URI: req.URI(), Attribute: attr, Index: int(idx), Value: raw,
			Success: ok, Err: err, RequestID: req.ID(),
		})
		return d.respond(req, attr, ok, err)
	}
}

// parse validates the raw query and parses it into a pooled buffer.
func (d *Dispatcher) parse(req *httpserver.Request, expected ...string) (*queryparser.Parser, error) {
	raw := req.RawQuery()
	switch {
	case raw == "":
		return nil, NewRequestError(KindNoArgumentsProvided, expected...)
	case len(raw) > d.maxQueryLength:
		return nil, NewRequestError(KindTooLong, expected...)
	case hasControl(raw):
		return nil, NewRequestError(KindInvalidRequest, expected...)
	}
	return queryparser.NewString(raw), nil
}

// respond writes the value or the error. Errors that were rendered are
// reported as handled; only write failures reach the worker.
func (d *Dispatcher) respond(req *httpserver.Request, attr string, v any, err error) error {
	if err == nil {
		if err = WriteValue(req, attr, v); err == nil || req.Written() {
			return err
		}
	}

	if KindOf(err) != KindUnknown {
		d.logger.Debug("attribute request rejected", "uri", req.URI(), "request_id", req.ID(), "error", err)
	} else {
		d.logger.Error("attribute request failed", "uri", req.URI(), "request_id", req.ID(), "error", err)
	}
	if req.Written() {
		return err
	}
	return WriteError(req, req.URI(), err)
}

// arg converts the value of a required key.
func arg[T Primitive](q *queryparser.Parser, key string, expected ...string) (T, error) {
	v, _, err := value[T](q, key, expected...)
	return v, err
}

// value looks key up, percent-decodes its value and converts it. The
// decoded text is returned alongside for observers.
func value[T Primitive](q *queryparser.Parser, key string, expected ...string) (T, string, error) {
	var zero T
	if len(expected) == 0 {
		expected = []string{key}
	}

	record := q.HasKey(key)
	if record == queryparser.NotFound {
		return zero, "", &RequestError{Kind: KindKeyNotProvided, Key: key, Expected: expected}
	}
	raw, ok := q.Value(record)
	if !ok {
		return zero, "", &RequestError{Kind: KindInvalidArgumentsProvided, Key: key, Expected: expected}
	}

	decoded, err := unescape(raw)
	if err != nil {
		return zero, "", &RequestError{Kind: KindInvalidArgumentsProvided, Key: key, Expected: expected, Err: err}
	}
	if hasControl(string(decoded)) {
		return zero, "", &RequestError{Kind: KindInvalidRequest, Key: key, Expected: expected}
	}

	v, err := Convert[T](decoded)
	if err != nil {
		return zero, "", &RequestError{Kind: KindInvalidArgumentsProvided, Key: key, Expected: expected, Err: err}
	}
	return v, string(decoded), nil
}

func unescape(raw []byte) ([]byte, error) {
	if bytes.IndexAny(raw, "%+") < 0 {
		return raw, nil
	}
	s, err := url.QueryUnescape(string(raw))
	if err != nil {
		return nil, err
	}
	return []byte(s), nil
}

func hasControl(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < 0x20 || s[i] == 0x7f {
			return true
		}
	}
	return false
}

func protect[T any](fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, fmt.Errorf("%w: %v", ErrAccessorPanic, r)
		}
	}()
	return fn()
}
