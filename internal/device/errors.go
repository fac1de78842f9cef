package device

import "errors"

// Domain errors for the device package.
//
// These errors can be checked using errors.Is():
//
//	if errors.Is(err, device.ErrInvalidChannel) {
//	    // reject the request
//	}
var (
	// ErrInvalidChannel is returned for a channel index outside 0..Channels-1.
	ErrInvalidChannel = errors.New("device: invalid channel")

	// ErrInvalidLine is returned for a message line outside 0..Lines-1.
	ErrInvalidLine = errors.New("device: invalid message line")

	// ErrInvalidMode is returned when a control mode value is not recognised.
	ErrInvalidMode = errors.New("device: invalid control mode")

	// ErrTemperatureRange is returned when a setpoint cannot be represented
	// in the packed status words.
	ErrTemperatureRange = errors.New("device: temperature out of range")
)
