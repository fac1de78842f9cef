package mqtt

import "fmt"

// DefaultDiscoveryPrefix is the topic prefix Home Assistant listens on for
// discovery messages.
const DefaultDiscoveryPrefix = "homeassistant"

// availabilitySuffix is appended to the device name to form the
// availability topic.
const availabilitySuffix = "controller"

// commandSuffix is appended to an endpoint to form its command topic.
const commandSuffix = "set"

// Topics provides builders for the controller's MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
// Endpoints are publishing roots such as "FHCP2mqtt/inlet"; the endpoint
// itself is the state topic.
//
//	topics := mqtt.Topics{}
//	cmd := topics.Command("FHCP2mqtt/zone/1")
//	// Returns: "FHCP2mqtt/zone/1/set"
type Topics struct{}

// DiscoveryConfig returns the retained discovery topic of one attribute.
//
// Example: homeassistant/switch/1a2b3c4d/state/config
func (Topics) DiscoveryConfig(prefix, component, objectID, attribute string) string {
	if prefix == "" {
		prefix = DefaultDiscoveryPrefix
	}
	return fmt.Sprintf("%s/%s/%s/%s/config", prefix, component, objectID, attribute)
}

// State returns the state topic of an endpoint.
//
// Example: FHCP2mqtt/inlet
func (Topics) State(endpoint string) string {
	return endpoint
}

// Command returns the command topic of an endpoint.
//
// Example: FHCP2mqtt/inlet/set
func (Topics) Command(endpoint string) string {
	return fmt.Sprintf("%s/%s", endpoint, commandSuffix)
}

// Availability returns the availability topic of a device.
//
// Example: FHCP2mqtt/controller
func (Topics) Availability(device string) string {
	return fmt.Sprintf("%s/%s", device, availabilitySuffix)
}
