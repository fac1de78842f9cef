package control

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nerrad567/floorheat-core/internal/device"
)

const (
	// DefaultInterval is the loop period when none is configured.
	DefaultInterval = time.Second

	// defaultReadTimeout bounds one sensor read.
	defaultReadTimeout = 2 * time.Second
)

// Logger is the logging interface used by the loop.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// TickObserver receives the status snapshot taken at the end of a tick.
// Observers run on the loop goroutine and should return quickly.
type TickObserver func(ctx context.Context, snap device.Snapshot)

// Deps holds the collaborators of a Loop.
type Deps struct {
	Status *device.Status
	Relay  Relay

	// Sensors are indexed by channel; sensor 0 is the inlet probe. A nil
	// entry leaves its channel untouched.
	Sensors []Sensor

	Interval    time.Duration
	ReadTimeout time.Duration
	Logger      Logger
}

// Stats counts loop activity since start.
type Stats struct {
	Ticks         uint64 `json:"ticks"`
	SensorErrors  uint64 `json:"sensor_errors"`
	RelayErrors   uint64 `json:"relay_errors"`
	InletSwitches uint64 `json:"inlet_switches"`
}

// Loop is the periodic control loop.
type Loop struct {
	status      *device.Status
	relay       Relay
	sensors     []Sensor
	interval    time.Duration
	readTimeout time.Duration
	logger      Logger

	observersMu sync.RWMutex
	observers   []TickObserver

	ticks         atomic.Uint64
	sensorErrors  atomic.Uint64
	relayErrors   atomic.Uint64
	inletSwitches atomic.Uint64
}

// New creates a loop. Call Run to start it.
//
// Returns:
//   - *Loop: Ready to run
//   - error: ErrNoStatus or ErrNoRelay
func New(deps Deps) (*Loop, error) {
	if deps.Status == nil {
		return nil, ErrNoStatus
	}
	if deps.Relay == nil {
		return nil, ErrNoRelay
	}
	l := &Loop{
		status:      deps.Status,
		relay:       deps.Relay,
		sensors:     deps.Sensors,
		interval:    deps.Interval,
		readTimeout: deps.ReadTimeout,
		logger:      deps.Logger,
	}
	if len(l.sensors) > device.Channels {
		l.sensors = l.sensors[:device.Channels]
	}
	if l.interval <= 0 {
		l.interval = DefaultInterval
	}
	if l.readTimeout <= 0 {
		l.readTimeout = defaultReadTimeout
	}
	if l.logger == nil {
		l.logger = noopLogger{}
	}
	return l, nil
}

// OnTick registers an observer called after every tick.
func (l *Loop) OnTick(fn TickObserver) {
	l.observersMu.Lock()
	l.observers = append(l.observers, fn)
	l.observersMu.Unlock()
}

// Stats returns the loop counters.
func (l *Loop) Stats() Stats {
	return Stats{
		Ticks:         l.ticks.Load(),
		SensorErrors:  l.sensorErrors.Load(),
		RelayErrors:   l.relayErrors.Load(),
		InletSwitches: l.inletSwitches.Load(),
	}
}

// Run switches every relay off, then ticks every interval until ctx is
// cancelled. On return every relay is off again.
//
// Tick failures are logged and do not stop the loop. Run returns an error
// only when the relays cannot be switched off.
func (l *Loop) Run(ctx context.Context) error {
	if err := l.relay.AllOff(); err != nil {
		return fmt.Errorf("control: switching relays off: %w", err)
	}
	l.logger.Info("control loop started",
		"interval", l.interval,
		"sensors", len(l.sensors),
		"channels", l.relay.Channels(),
	)

	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()

	for {
		if err := l.Tick(ctx); err != nil {
			l.logger.Warn("control tick failed", "error", err)
		}

		select {
		case <-ctx.Done():
			l.logger.Info("control loop stopping")
			if err := l.relay.AllOff(); err != nil {
				return fmt.Errorf("control: switching relays off: %w", err)
			}
			return nil
		case <-ticker.C:
		}
	}
}

// Tick runs one control iteration. Sensor and relay failures are joined
// into the returned error; the rest of the tick still runs.
func (l *Loop) Tick(ctx context.Context) error {
	l.ticks.Add(1)

	var errs []error
	if err := l.readSensors(ctx); err != nil {
		errs = append(errs, err)
	}
	if err := l.drive(); err != nil {
		l.relayErrors.Add(1)
		errs = append(errs, err)
	}
	l.feedback()

	snap := l.status.Snapshot()
	l.observersMu.RLock()
	observers := l.observers
	l.observersMu.RUnlock()
	for _, fn := range observers {
		fn(ctx, snap)
	}
	return errors.Join(errs...)
}

// readSensors reads every sensor concurrently. A failed read leaves the
// previous temperature of its channel in place.
func (l *Loop) readSensors(ctx context.Context) error {
	readings := make([]float32, len(l.sensors))
	failures := make([]error, len(l.sensors))

	var g errgroup.Group
	for i, s := range l.sensors {
		if s == nil {
			continue
		}
		i, s := i, s
		g.Go(func() error {
			readCtx, cancel := context.WithTimeout(ctx, l.readTimeout)
			defer cancel()
			t, err := s.Temperature(readCtx)
			if err != nil {
				failures[i] = fmt.Errorf("channel %d: %w", i, err)
				return nil
			}
			readings[i] = t
			return nil
		})
	}
	//nolint:errcheck // readers report through failures
	g.Wait()

	for i, s := range l.sensors {
		if s == nil || failures[i] != nil {
			continue
		}
		//nolint:errcheck // i is below device.Channels
		l.status.SetTemperature(uint8(i), readings[i])
	}

	err := errors.Join(failures...)
	if err != nil {
		l.sensorErrors.Add(1)
	}
	return err
}

// drive applies the control rules to the relays.
func (l *Loop) drive() error {
	var errs []error

	if l.status.IsAuto() {
		t0, _ := l.status.Temperature(0)
		target := l.status.TargetTemperature()
		band := l.status.TargetTemperatureRange()
		switch {
		case t0 > target+band:
			errs = append(errs, l.switchInlet(false))
		case t0 < target-band:
			errs = append(errs, l.switchInlet(true))
		}
	} else {
		errs = append(errs, l.relay.Set(0, l.status.InletOpen()))
	}

	for ch := 1; ch < l.relay.Channels() && ch < device.Channels; ch++ {
		open, err := l.status.ZoneOpen(uint8(ch))
		if err != nil {
			errs = append(errs, err)
			continue
		}
		errs = append(errs, l.relay.Set(ch, open))
	}
	return errors.Join(errs...)
}

// switchInlet records an automatic inlet decision and applies it to relay 0.
func (l *Loop) switchInlet(open bool) error {
	if l.status.InletOpen() != open {
		l.inletSwitches.Add(1)
	}
	l.status.SetInletOpen(open)
	return l.relay.Set(0, open)
}

// feedback copies the relay states into the status.
func (l *Loop) feedback() {
	if on, err := l.relay.State(0); err == nil {
		l.status.SetIsInletOpen(on)
	}
	for ch := 1; ch < l.relay.Channels() && ch < device.Channels; ch++ {
		if on, err := l.relay.State(ch); err == nil {
			//nolint:errcheck // ch is below device.Channels
			l.status.SetIsZoneOpen(uint8(ch), on)
		}
	}
}
