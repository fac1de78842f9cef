package audit

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/nerrad567/floorheat-core/internal/attribute"
	"github.com/nerrad567/floorheat-core/internal/hass"
)

// memoryRepository is an in-memory Repository.
type memoryRepository struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (m *memoryRepository) Create(_ context.Context, e *Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries = append(m.entries, *e)
	return nil
}

func (m *memoryRepository) List(context.Context, Filter) (*ListResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	return &ListResult{Entries: out, Total: len(out)}, nil
}

func (m *memoryRepository) snapshot() []Entry {
	res, _ := m.List(context.Background(), Filter{})
	return res.Entries
}

// runRecorder drains everything queued so far and stops the recorder.
func runRecorder(t *testing.T, r *Recorder) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.Run(ctx); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
}

func TestRecorder_ObserveSet(t *testing.T) {
	repo := &memoryRepository{}
	r := NewRecorder(repo, 4, nil)

	r.ObserveSet(attribute.SetEvent{
		URI: "/zone_open/set", Attribute: "zone_open", Index: 3,
		Value: "true", Success: true, RequestID: "req-9",
	})
	r.ObserveSet(attribute.SetEvent{
		URI: "/mode/set", Attribute: "mode", Index: -1,
		Value: "eco", Err: errors.New("invalid mode"),
	})
	runRecorder(t, r)

	got := repo.snapshot()
	if len(got) != 2 {
		t.Fatalf("entries = %d, want 2", len(got))
	}
	if got[0].Channel == nil || *got[0].Channel != 3 || !got[0].Success || got[0].Source != SourceHTTP || got[0].RequestID != "req-9" {
		t.Errorf("first entry = %+v", got[0])
	}
	if got[1].Channel != nil || got[1].Success || got[1].Error != "invalid mode" {
		t.Errorf("second entry = %+v", got[1])
	}
	if s := r.Stats(); s.Written != 2 {
		t.Errorf("Written = %d, want 2", s.Written)
	}
}

func TestRecorder_ObserveCommand(t *testing.T) {
	repo := &memoryRepository{}
	r := NewRecorder(repo, 4, nil)

	r.ObserveCommand(hass.Command{
		Endpoint:  "FHCP2mqtt/inlet",
		Attribute: "target_temperature",
		Value:     json.RawMessage(`21.5`),
	})
	runRecorder(t, r)

	got := repo.snapshot()
	if len(got) != 1 {
		t.Fatalf("entries = %d, want 1", len(got))
	}
	e := got[0]
	if e.Attribute != "FHCP2mqtt/inlet/target_temperature" || e.Value != "21.5" || e.Source != SourceMQTT || !e.Success {
		t.Errorf("entry = %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Error("CreatedAt not stamped at record time")
	}
}

func TestRecorder_DropsWhenFull(t *testing.T) {
	r := NewRecorder(&memoryRepository{}, 1, nil)
	if !r.Record(Entry{Attribute: "a"}) {
		t.Fatal("first Record() = false")
	}
	if r.Record(Entry{Attribute: "b"}) {
		t.Error("Record() on full queue = true, want false")
	}
	if s := r.Stats(); s.Dropped != 1 {
		t.Errorf("Dropped = %d, want 1", s.Dropped)
	}
}

func TestRecorder_WriteFailureCounted(t *testing.T) {
	repo := &memoryRepository{err: errors.New("disk full")}
	r := NewRecorder(repo, 2, nil)
	r.Record(Entry{Attribute: "mode"})
	runRecorder(t, r)

	if s := r.Stats(); s.Failed != 1 || s.Written != 0 {
		t.Errorf("Stats() = %+v, want 1 failed", s)
	}
}

func TestRecorder_RunWritesWhileRunning(t *testing.T) {
	repo := &memoryRepository{}
	r := NewRecorder(repo, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	r.Record(Entry{Attribute: "mode"})
	deadline := time.Now().Add(2 * time.Second)
	for len(repo.snapshot()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("entry not written while running")
		}
		time.Sleep(5 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run() error = %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestRouteAttribute(t *testing.T) {
	tests := []struct {
		uri  string
		attr string
		want string
	}{
		{"/zone_open/set?id=1&value=true", "sucess", "zone_open"},
		{"/mode/set", "sucess", "mode"},
		{"/message_template/set?id=0&value=x", "sucess", "message_template"},
		{"", "target_temperature", "target_temperature"},
		{"/?value=1", "fallback", "fallback"},
	}
	for _, tt := range tests {
		got := routeAttribute(attribute.SetEvent{URI: tt.uri, Attribute: tt.attr})
		if got != tt.want {
			t.Errorf("routeAttribute(%q) = %q, want %q", tt.uri, got, tt.want)
		}
	}
}
