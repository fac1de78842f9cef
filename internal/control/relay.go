package control

import (
	"fmt"
	"sync"

	"github.com/nerrad567/floorheat-core/internal/infrastructure/config"
)

// Relay drives a bank of on/off channels. Channel 0 switches the inlet
// valve, channels 1..n the zone valves.
type Relay interface {
	// Channels returns the number of channels on the board.
	Channels() int

	// Set switches one channel.
	Set(ch int, on bool) error

	// State reports whether a channel is on.
	State(ch int) (bool, error)

	// AllOff switches every channel off.
	AllOff() error

	// Close releases the driver.
	Close() error
}

// OpenRelay creates the relay driver selected in the control config.
//
// Parameters:
//   - cfg: Relay section of the control config ("memory" or "serial")
//   - channels: Number of channels to drive (inlet plus zones)
func OpenRelay(cfg config.RelayConfig, channels int) (Relay, error) {
	switch cfg.Driver {
	case "", "memory":
		return NewMemoryRelay(channels), nil
	case "serial":
		return OpenSerialRelay(cfg.Port, cfg.BaudRate, channels)
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, cfg.Driver)
}

// MemoryRelay is a relay board kept in memory.
type MemoryRelay struct {
	mu     sync.RWMutex
	state  []bool
	closed bool
}

// NewMemoryRelay creates an in-memory board with every channel off.
func NewMemoryRelay(channels int) *MemoryRelay {
	if channels < 1 {
		channels = 1
	}
	return &MemoryRelay{state: make([]bool, channels)}
}

// Channels returns the number of channels.
func (m *MemoryRelay) Channels() int { return len(m.state) }

// Set switches one channel.
func (m *MemoryRelay) Set(ch int, on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrRelayClosed
	}
	if ch < 0 || ch >= len(m.state) {
		return fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	m.state[ch] = on
	return nil
}

// State reports whether a channel is on.
func (m *MemoryRelay) State(ch int) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if ch < 0 || ch >= len(m.state) {
		return false, fmt.Errorf("%w: %d", ErrInvalidChannel, ch)
	}
	return m.state[ch], nil
}

// AllOff switches every channel off.
func (m *MemoryRelay) AllOff() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrRelayClosed
	}
	for i := range m.state {
		m.state[i] = false
	}
	return nil
}

// Close marks the board closed; further switching fails.
func (m *MemoryRelay) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}
