package audit

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/nerrad567/floorheat-core/internal/attribute"
	"github.com/nerrad567/floorheat-core/internal/hass"
)

const (
	// DefaultBuffer is the number of entries a Recorder queues.
	DefaultBuffer = 64

	// writeTimeout bounds one insert.
	writeTimeout = 5 * time.Second
)

// Logger is the logging interface used by the Recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Warn(string, ...any) {}

// Recorder queues entries and writes them to a Repository in the
// background.
type Recorder struct {
	repo    Repository
	entries chan Entry
	logger  Logger

	written atomic.Uint64
	dropped atomic.Uint64
	failed  atomic.Uint64
}

// RecorderStats counts what happened to recorded entries.
type RecorderStats struct {
	Written uint64 `json:"written"`
	Dropped uint64 `json:"dropped"`
	Failed  uint64 `json:"failed"`
}

// NewRecorder creates a Recorder; call Run to start writing.
//
// Parameters:
//   - repo: Destination of the entries
//   - buffer: Queue length; DefaultBuffer when <= 0
//   - logger: Optional, receives write failures
func NewRecorder(repo Repository, buffer int, logger Logger) *Recorder {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{
		repo:    repo,
		entries: make(chan Entry, buffer),
		logger:  logger,
	}
}

// Record queues an entry without blocking. It reports false when the queue
// is full and the entry was dropped.
func (r *Recorder) Record(e Entry) bool {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	select {
	case r.entries <- e:
		return true
	default:
		r.dropped.Add(1)
		return false
	}
}

// Run writes queued entries until ctx is cancelled, then writes whatever is
// still queued and returns nil.
func (r *Recorder) Run(ctx context.Context) error {
	for {
		select {
		case e := <-r.entries:
			r.write(e)
		case <-ctx.Done():
			for {
				select {
				case e := <-r.entries:
					r.write(e)
				default:
					return nil
				}
			}
		}
	}
}

func (r *Recorder) write(e Entry) {
	// The run context may already be cancelled while draining.
	ctx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()
	if err := r.repo.Create(ctx, &e); err != nil {
		r.failed.Add(1)
		r.logger.Warn("audit write failed", "attribute", e.Attribute, "error", err)
		return
	}
	r.written.Add(1)
}

// Stats returns the recorder counters.
func (r *Recorder) Stats() RecorderStats {
	return RecorderStats{
		Written: r.written.Load(),
		Dropped: r.dropped.Load(),
		Failed:  r.failed.Load(),
	}
}

// ObserveSet records an HTTP setter call. It matches attribute.SetObserver.
// The attribute is named after the route ("/zone_open/set" is zone_open)
// since every setter answers under the same response key.
func (r *Recorder) ObserveSet(ev attribute.SetEvent) {
	e := Entry{
		Action:    ActionSet,
		Attribute: routeAttribute(ev),
		Value:     ev.Value,
		Success:   ev.Success && ev.Err == nil,
		Source:    SourceHTTP,
		RequestID: ev.RequestID,
	}
	if ev.Index >= 0 {
		ch := ev.Index
		e.Channel = &ch
	}
	if ev.Err != nil {
		e.Error = ev.Err.Error()
	}
	r.Record(e)
}

// ObserveCommand records an MQTT command. It matches hass.CommandObserver.
func (r *Recorder) ObserveCommand(cmd hass.Command) {
	e := Entry{
		Action:    ActionSet,
		Attribute: cmd.Endpoint + "/" + cmd.Attribute,
		Value:     string(cmd.Value),
		Success:   cmd.Err == nil,
		Source:    SourceMQTT,
	}
	if cmd.Err != nil {
		e.Error = cmd.Err.Error()
	}
	r.Record(e)
}

func routeAttribute(ev attribute.SetEvent) string {
	path, _, _ := strings.Cut(ev.URI, "?")
	name := strings.TrimSuffix(strings.TrimPrefix(path, "/"), "/set")
	if name == "" {
		return ev.Attribute
	}
	return name
}
