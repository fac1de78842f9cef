package control

import (
	"context"
	"sync"
	"time"

	"github.com/nerrad567/floorheat-core/internal/device"
	"github.com/nerrad567/floorheat-core/internal/infrastructure/influxdb"
)

// TelemetryWriter is the part of *influxdb.Client the telemetry uses.
type TelemetryWriter interface {
	WriteInlet(deviceName string, s influxdb.InletSample, at time.Time)
	WriteZone(deviceName string, s influxdb.ZoneSample, at time.Time)
	WriteStats(deviceName, component string, counters map[string]any, at time.Time)
}

// StatsSource returns the counters of one component.
type StatsSource func() map[string]any

// Telemetry turns tick snapshots into time-series points. Its Observe
// method is a TickObserver.
type Telemetry struct {
	w      TelemetryWriter
	device string
	zones  int
	now    func() time.Time

	mu      sync.Mutex
	sources map[string]StatsSource
}

// NewTelemetry creates telemetry for a device with the given number of
// zones besides the inlet. zones is clamped to [0, device.Channels-1].
func NewTelemetry(w TelemetryWriter, deviceName string, zones int) *Telemetry {
	zones = max(0, min(zones, device.Channels-1))
	return &Telemetry{
		w:       w,
		device:  deviceName,
		zones:   zones,
		now:     time.Now,
		sources: make(map[string]StatsSource),
	}
}

// AddStats registers a component whose counters are written on every tick.
// Registering the same component again replaces the source.
func (t *Telemetry) AddStats(component string, src StatsSource) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sources[component] = src
}

// Observe writes the inlet, every configured zone and the registered
// counters, all with the same timestamp.
func (t *Telemetry) Observe(_ context.Context, s device.Snapshot) {
	at := t.now()

	t.w.WriteInlet(t.device, influxdb.InletSample{
		Automatic:              s.Mode == device.Automatic.String(),
		Temperature:            float64(s.Temperatures[0]),
		TargetTemperature:      float64(s.TargetTemperature),
		TargetTemperatureRange: float64(s.TargetTemperatureRange),
		Open:                   s.InletOpen,
		IsOpen:                 s.IsInletOpen,
	}, at)

	for z := 1; z <= t.zones; z++ {
		t.w.WriteZone(t.device, influxdb.ZoneSample{
			Zone:        z,
			Temperature: float64(s.Temperatures[z]),
			Open:        s.ZoneOpen[z],
			IsOpen:      s.IsZoneOpen[z],
		}, at)
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	for component, src := range t.sources {
		t.w.WriteStats(t.device, component, src(), at)
	}
}

// Fields returns the counters as telemetry fields.
func (s Stats) Fields() map[string]any {
	return map[string]any{
		"ticks":          s.Ticks,
		"sensor_errors":  s.SensorErrors,
		"relay_errors":   s.RelayErrors,
		"inlet_switches": s.InletSwitches,
	}
}
