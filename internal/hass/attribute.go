package hass

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Component is the Home Assistant MQTT platform an attribute is announced as.
type Component string

// Supported components.
const (
	ComponentNumber       Component = "number"
	ComponentSensor       Component = "sensor"
	ComponentBinarySensor Component = "binary_sensor"
	ComponentSwitch       Component = "switch"
	ComponentButton       Component = "button"
	ComponentSelect       Component = "select"
)

// Getter returns the current value of an attribute. The value is encoded
// with encoding/json into the endpoint's state object.
type Getter func() (any, error)

// Setter applies the raw JSON value found under the attribute's key in a
// command object.
type Setter func(raw json.RawMessage) error

// Attribute describes one Home Assistant entity. Use the constructors
// (Number, Sensor, BinarySensor, Switch, Button, Select) to build one.
type Attribute struct {
	Name        string
	Component   Component
	DeviceClass string
	StateClass  string
	Unit        string

	Get Getter
	Set Setter

	// extra holds the component-specific config keys.
	extra map[string]any
}

// Number is a settable numeric entity bounded by minValue and maxValue.
func Number(name string, get Getter, set Setter, unit string, minValue, maxValue, step float64) Attribute {
	return Attribute{
		Name:      name,
		Component: ComponentNumber,
		Unit:      unit,
		Get:       get,
		Set:       set,
		extra:     map[string]any{"min": minValue, "max": maxValue, "step": step},
	}
}

// Sensor is a read-only measurement.
func Sensor(name string, get Getter, deviceClass, stateClass, unit string) Attribute {
	return Attribute{
		Name:        name,
		Component:   ComponentSensor,
		DeviceClass: deviceClass,
		StateClass:  stateClass,
		Unit:        unit,
		Get:         get,
	}
}

// BinarySensor is a read-only boolean published as JSON true/false.
func BinarySensor(name string, get Getter, deviceClass string) Attribute {
	return Attribute{
		Name:        name,
		Component:   ComponentBinarySensor,
		DeviceClass: deviceClass,
		Get:         get,
		extra:       boolPayloads(),
	}
}

// Switch is a settable boolean.
func Switch(name string, get Getter, set Setter, deviceClass string) Attribute {
	return Attribute{
		Name:        name,
		Component:   ComponentSwitch,
		DeviceClass: deviceClass,
		Get:         get,
		Set:         set,
		extra:       boolPayloads(),
	}
}

// Button is a stateless trigger.
func Button(name string, set Setter, deviceClass string) Attribute {
	return Attribute{
		Name:        name,
		Component:   ComponentButton,
		DeviceClass: deviceClass,
		Set:         set,
	}
}

// Select is a settable choice between fixed options.
func Select(name string, get Getter, set Setter, options []string) Attribute {
	opts := make([]string, len(options))
	copy(opts, options)
	return Attribute{
		Name:      name,
		Component: ComponentSelect,
		Get:       get,
		Set:       set,
		extra:     map[string]any{"options": opts},
	}
}

func boolPayloads() map[string]any {
	return map[string]any{"payload_on": true, "payload_off": false}
}

func (a Attribute) validate() error {
	if a.Name == "" || a.Component == "" {
		return fmt.Errorf("%w: name and component are required", ErrInvalidAttribute)
	}
	if a.Get == nil && a.Set == nil {
		return fmt.Errorf("%w: %s has neither getter nor setter", ErrInvalidAttribute, a.Name)
	}
	return nil
}

// config builds the discovery config of the attribute without the device,
// origin and availability blocks.
func (a Attribute) config(ep *Endpoint, unique string) map[string]any {
	cfg := map[string]any{
		"object_id": ep.uniqueID,
		"unique_id": unique,
		"name":      a.Name,
	}
	if a.Get != nil {
		cfg["state_topic"] = ep.name
		cfg["value_template"] = "{{ value_json." + a.Name + " }}"
	}
	if a.Set != nil {
		cfg["command_topic"] = ep.commandTopic
		cfg["command_template"] = `{"` + a.Name + `": {{ value | tojson }}}`
	}
	if a.DeviceClass != "" {
		cfg["device_class"] = a.DeviceClass
	}
	if a.StateClass != "" {
		cfg["state_class"] = a.StateClass
	}
	if a.Unit != "" {
		cfg["unit_of_measurement"] = a.Unit
	}
	for k, v := range a.extra {
		cfg[k] = v
	}
	return cfg
}

// Value adapts an infallible accessor into a Getter.
func Value[T any](fn func() T) Getter {
	return func() (any, error) {
		return fn(), nil
	}
}

// ValueErr adapts an accessor that can fail into a Getter.
func ValueErr[T any](fn func() (T, error)) Getter {
	return func() (any, error) {
		return fn()
	}
}

// Decode adapts a typed setter into a Setter. The raw value is decoded with
// encoding/json; the setter's changed flag is discarded.
func Decode[T any](fn func(T) (bool, error)) Setter {
	return func(raw json.RawMessage) error {
		var v T
		if err := json.Unmarshal(raw, &v); err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		_, err := fn(v)
		return err
	}
}

// DecodeBool adapts a boolean setter into a Setter. Besides JSON booleans it
// accepts the strings Home Assistant renders for them ("True", "ON", "1",
// and their negatives).
func DecodeBool(fn func(bool) (bool, error)) Setter {
	return func(raw json.RawMessage) error {
		v, err := parseBool(raw)
		if err != nil {
			return err
		}
		_, err = fn(v)
		return err
	}
}

func parseBool(raw json.RawMessage) (bool, error) {
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return false, fmt.Errorf("%w: %s is not a boolean", ErrInvalidPayload, raw)
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "on", "1":
		return true, nil
	case "false", "off", "0":
		return false, nil
	}
	return false, fmt.Errorf("%w: %q is not a boolean", ErrInvalidPayload, s)
}
