package hass

import "errors"

var (
	// ErrNoPublisher is returned by New when no MQTT publisher is given.
	ErrNoPublisher = errors.New("hass: publisher is required")

	// ErrNoIdentifier is returned by New when the device has no identifier.
	ErrNoIdentifier = errors.New("hass: device identifier is required")

	// ErrInvalidEndpoint is returned for an empty endpoint name.
	ErrInvalidEndpoint = errors.New("hass: endpoint name cannot be empty")

	// ErrInvalidAttribute is returned for an attribute without a name or
	// without any accessor.
	ErrInvalidAttribute = errors.New("hass: invalid attribute")

	// ErrDuplicateAttribute is returned when an endpoint already has an
	// attribute with the same name.
	ErrDuplicateAttribute = errors.New("hass: duplicate attribute")

	// ErrInvalidPayload is returned when a command payload cannot be decoded.
	ErrInvalidPayload = errors.New("hass: invalid command payload")
)
