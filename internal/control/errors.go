package control

import "errors"

var (
	// ErrInvalidChannel is returned for a relay channel outside the board.
	ErrInvalidChannel = errors.New("control: invalid relay channel")

	// ErrRelayClosed is returned after the relay driver has been closed.
	ErrRelayClosed = errors.New("control: relay closed")

	// ErrUnknownDriver is returned by OpenRelay for an unsupported driver.
	ErrUnknownDriver = errors.New("control: unknown relay driver")

	// ErrCRC is returned when a 1-Wire reading fails its CRC check.
	ErrCRC = errors.New("control: sensor CRC check failed")

	// ErrMalformedReading is returned for sensor output that cannot be parsed.
	ErrMalformedReading = errors.New("control: malformed sensor reading")

	// ErrNoStatus is returned by New without a device status.
	ErrNoStatus = errors.New("control: device status is required")

	// ErrNoRelay is returned by New without a relay driver.
	ErrNoRelay = errors.New("control: relay driver is required")
)
