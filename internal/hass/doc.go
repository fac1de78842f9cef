// Package hass publishes the controller to Home Assistant through MQTT
// discovery.
//
// A Discovery owns the device description and a set of endpoints. An
// endpoint is a state topic ("FHCP2mqtt/inlet") carrying one JSON object
// whose keys are the endpoint's attributes; each attribute is announced to
// Home Assistant as its own entity through a retained config message under
// the discovery prefix:
//
//	homeassistant/<component>/<endpoint id>/<attribute>/config
//
// Commands arrive on "<endpoint>/set" as a JSON object keyed by attribute
// name. Every attribute present in the object with a setter is applied;
// unknown keys are ignored. Endpoints created with publishAfterSet publish
// their state right after a command.
//
// Discovery registers a "<device>/controller" endpoint with a connectivity
// binary sensor named "available". Every announced entity uses that topic as
// its availability topic, which is also where the MQTT client keeps its
// retained availability message and last will.
//
// Usage:
//
//	d, err := hass.New(client, hass.Options{
//	    Device: hass.Device{Identifier: "FHCP2mqtt", Name: "FHCP2mqtt"},
//	})
//	if err != nil {
//	    return err
//	}
//	if err := hass.BindStatus(d, status, "FHCP2mqtt", 4); err != nil {
//	    return err
//	}
//	defer d.Close()
//
// Thread Safety:
//   - Discovery and Endpoint are safe for concurrent use.
//   - Getters and setters run on the MQTT client's callback goroutines and
//     on whatever goroutine calls Publish/PublishAll.
package hass
