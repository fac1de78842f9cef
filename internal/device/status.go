package device

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"sync/atomic"
)

// ControlMode selects who drives the inlet valve.
type ControlMode uint8

// Control modes. The values are the bit stored in the status word.
const (
	Manual    ControlMode = 0
	Automatic ControlMode = 1
)

// String returns "manual" or "automatic".
func (m ControlMode) String() string {
	switch m {
	case Manual:
		return "manual"
	case Automatic:
		return "automatic"
	}
	return fmt.Sprintf("ControlMode(%d)", uint8(m))
}

// ParseControlMode parses "manual" or "automatic" (case-insensitive).
func ParseControlMode(s string) (ControlMode, error) {
	switch strings.ToLower(s) {
	case "manual":
		return Manual, nil
	case "automatic":
		return Automatic, nil
	}
	return Manual, fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

const (
	// Channels is the number of temperature/valve channels. Channel 0 is
	// the inlet, 1..7 are zones.
	Channels = 8

	// Lines is the number of message lines.
	Lines = 4

	// MaxTemperature is the largest temperature the status can hold.
	MaxTemperature = float32(tempMask) / tempScale
)

// Packed layout. Channel idx lives in word idx&3; the upper half of the
// channels (idx >= 4) uses the second slot of each field.
//
//	word 0: bit 31 mode, bits 22-30 target temperature
//	word 1: bits 22-30 target range
//	all:    bits 0-8 / 9-17 temperature, bits 18/19 zone open, bits 20/21 feedback
const (
	tempMask  = 0x1ff
	tempBits  = 9
	tempScale = 10

	modeShift   = 31
	targetShift = 22
	openShift   = 18
	isOpenShift = 20
)

// Status is the shared device state read and written by the HTTP handlers,
// the control loop and the MQTT bridge. It is safe for concurrent use.
type Status struct {
	words [4]atomic.Uint32

	mu    sync.RWMutex
	lines [Lines]string
}

// NewStatus creates a status in manual mode with every field zeroed.
func NewStatus() *Status {
	return &Status{}
}

func (s *Status) field(word int, shift uint, mask uint32) uint32 {
	return (s.words[word].Load() >> shift) & mask
}

func (s *Status) setField(word int, shift uint, mask, v uint32) {
	for {
		old := s.words[word].Load()
		next := old&^(mask<<shift) | (v&mask)<<shift
		if s.words[word].CompareAndSwap(old, next) {
			return
		}
	}
}

func channelSlot(idx uint8) (word int, half uint, err error) {
	if idx >= Channels {
		return 0, 0, fmt.Errorf("%w: %d", ErrInvalidChannel, idx)
	}
	return int(idx & 3), uint(idx>>2) & 1, nil
}

func toTenths(t float32) uint32 {
	v := math.Round(float64(t) * tempScale)
	switch {
	case math.IsNaN(v), v <= 0:
		return 0
	case v >= tempMask:
		return tempMask
	}
	return uint32(v)
}

func fromTenths(v uint32) float32 {
	return float32(v) / tempScale
}

func checkSetpoint(t float32) error {
	v := math.Round(float64(t) * tempScale)
	if math.IsNaN(v) || v < 0 || v > tempMask {
		return fmt.Errorf("%w: %v (0 to %v)", ErrTemperatureRange, t, MaxTemperature)
	}
	return nil
}

// Mode returns the control mode.
func (s *Status) Mode() ControlMode {
	return ControlMode(s.field(0, modeShift, 1))
}

// IsAuto reports whether the controller runs the inlet automatically.
func (s *Status) IsAuto() bool { return s.Mode() == Automatic }

// IsManual reports whether the inlet follows InletOpen.
func (s *Status) IsManual() bool { return s.Mode() == Manual }

// SetMode sets the control mode.
func (s *Status) SetMode(m ControlMode) (bool, error) {
	if m != Manual && m != Automatic {
		return false, fmt.Errorf("%w: %d", ErrInvalidMode, uint8(m))
	}
	s.setField(0, modeShift, 1, uint32(m))
	return true, nil
}

// TargetTemperature returns the inlet setpoint in °C.
func (s *Status) TargetTemperature() float32 {
	return fromTenths(s.field(0, targetShift, tempMask))
}

// SetTargetTemperature sets the inlet setpoint, rounded to 0.1 °C.
func (s *Status) SetTargetTemperature(t float32) (bool, error) {
	if err := checkSetpoint(t); err != nil {
		return false, err
	}
	s.setField(0, targetShift, tempMask, toTenths(t))
	return true, nil
}

// TargetTemperatureRange returns the hysteresis half-width in °C.
func (s *Status) TargetTemperatureRange() float32 {
	return fromTenths(s.field(1, targetShift, tempMask))
}

// SetTargetTemperatureRange sets the hysteresis half-width.
func (s *Status) SetTargetTemperatureRange(t float32) (bool, error) {
	if err := checkSetpoint(t); err != nil {
		return false, err
	}
	s.setField(1, targetShift, tempMask, toTenths(t))
	return true, nil
}

// InletOpen returns the requested inlet state.
func (s *Status) InletOpen() bool {
	open, _ := s.ZoneOpen(0)
	return open
}

// SetInletOpen requests the inlet open or closed.
func (s *Status) SetInletOpen(open bool) bool {
	ok, _ := s.SetZoneOpen(0, open)
	return ok
}

// IsInletOpen returns the inlet relay feedback.
func (s *Status) IsInletOpen() bool {
	open, _ := s.IsZoneOpen(0)
	return open
}

// SetIsInletOpen records the inlet relay feedback.
func (s *Status) SetIsInletOpen(open bool) {
	//nolint:errcheck // channel 0 is always valid
	s.SetIsZoneOpen(0, open)
}

// ZoneOpen returns the requested state of channel idx.
func (s *Status) ZoneOpen(idx uint8) (bool, error) {
	word, half, err := channelSlot(idx)
	if err != nil {
		return false, err
	}
	return s.field(word, openShift+half, 1) == 1, nil
}

// SetZoneOpen requests channel idx open or closed.
func (s *Status) SetZoneOpen(idx uint8, open bool) (bool, error) {
	word, half, err := channelSlot(idx)
	if err != nil {
		return false, err
	}
	s.setField(word, openShift+half, 1, boolBit(open))
	return true, nil
}

// IsZoneOpen returns the relay feedback of channel idx.
func (s *Status) IsZoneOpen(idx uint8) (bool, error) {
	word, half, err := channelSlot(idx)
	if err != nil {
		return false, err
	}
	return s.field(word, isOpenShift+half, 1) == 1, nil
}

// SetIsZoneOpen records the relay feedback of channel idx.
func (s *Status) SetIsZoneOpen(idx uint8, open bool) error {
	word, half, err := channelSlot(idx)
	if err != nil {
		return err
	}
	s.setField(word, isOpenShift+half, 1, boolBit(open))
	return nil
}

// Temperature returns the last reading of channel idx in °C.
func (s *Status) Temperature(idx uint8) (float32, error) {
	word, half, err := channelSlot(idx)
	if err != nil {
		return 0, err
	}
	return fromTenths(s.field(word, tempBits*half, tempMask)), nil
}

// SetTemperature stores a reading for channel idx. Readings are clamped to
// 0..MaxTemperature.
func (s *Status) SetTemperature(idx uint8, t float32) error {
	word, half, err := channelSlot(idx)
	if err != nil {
		return err
	}
	s.setField(word, tempBits*half, tempMask, toTenths(t))
	return nil
}

// Message returns message line n.
func (s *Status) Message(line uint8) (string, error) {
	if line >= Lines {
		return "", fmt.Errorf("%w: %d", ErrInvalidLine, line)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lines[line], nil
}

// SetMessage replaces message line n.
func (s *Status) SetMessage(line uint8, msg string) (bool, error) {
	if line >= Lines {
		return false, fmt.Errorf("%w: %d", ErrInvalidLine, line)
	}
	s.mu.Lock()
	s.lines[line] = msg
	s.mu.Unlock()
	return true, nil
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// Snapshot is a point-in-time copy of the status.
type Snapshot struct {
	Mode                   string            `json:"mode"`
	TargetTemperature      float32           `json:"target_temperature"`
	TargetTemperatureRange float32           `json:"target_temperature_range"`
	InletOpen              bool              `json:"inlet_open"`
	IsInletOpen            bool              `json:"is_inlet_open"`
	ZoneOpen               [Channels]bool    `json:"zone_open"`
	IsZoneOpen             [Channels]bool    `json:"is_zone_open"`
	Temperatures           [Channels]float32 `json:"temperatures"`
	Messages               [Lines]string     `json:"messages"`
}

// Snapshot copies every field. Fields are read one at a time, so a
// snapshot taken during a control tick may mix values from before and
// after it.
func (s *Status) Snapshot() Snapshot {
	snap := Snapshot{
		Mode:                   s.Mode().String(),
		TargetTemperature:      s.TargetTemperature(),
		TargetTemperatureRange: s.TargetTemperatureRange(),
		InletOpen:              s.InletOpen(),
		IsInletOpen:            s.IsInletOpen(),
	}
	for i := uint8(0); i < Channels; i++ {
		snap.ZoneOpen[i], _ = s.ZoneOpen(i)
		snap.IsZoneOpen[i], _ = s.IsZoneOpen(i)
		snap.Temperatures[i], _ = s.Temperature(i)
	}

	s.mu.RLock()
	snap.Messages = s.lines
	s.mu.RUnlock()
	return snap
}
