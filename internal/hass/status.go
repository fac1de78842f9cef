package hass

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/nerrad567/floorheat-core/internal/device"
)

// Entity limits announced for the setpoints.
const (
	targetMin   = 5
	targetMax   = 50
	rangeMin    = 0
	rangeMax    = 10
	setpointStep = 0.1

	celsius = "°C"
)

// modeOptions are the options of the inlet "mode" select, in ControlMode
// order.
var modeOptions = []string{device.Manual.String(), device.Automatic.String()}

// BindStatus registers the controller's endpoints on d:
//
//	<node>/inlet           state, mode, is_open, temperature,
//	                       target_temperature, target_temperature_range
//	<node>/zone/<n>        state, is_open
//	<node>/temperature/<n> state
//
// for n in 1..zones. The inlet endpoint publishes its state after every
// command.
func BindStatus(d *Discovery, status *device.Status, node string, zones int) error {
	if zones < 0 || zones >= device.Channels {
		return fmt.Errorf("hass: zones must be between 0 and %d, got %d", device.Channels-1, zones)
	}

	inlet, err := d.Endpoint(node+"/inlet", true)
	if err != nil {
		return err
	}
	err = inlet.Add(
		Switch("state", Value(status.InletOpen), DecodeBool(func(open bool) (bool, error) {
			return status.SetInletOpen(open), nil
		}), ""),
		Select("mode", Value(func() string { return status.Mode().String() }), decodeMode(status), modeOptions),
		BinarySensor("is_open", Value(status.IsInletOpen), "opening"),
		Sensor("temperature", ValueErr(func() (float32, error) { return status.Temperature(0) }), "temperature", "measurement", celsius),
		Number("target_temperature", Value(status.TargetTemperature), Decode(status.SetTargetTemperature), celsius, targetMin, targetMax, setpointStep),
		Number("target_temperature_range", Value(status.TargetTemperatureRange), Decode(status.SetTargetTemperatureRange), "", rangeMin, rangeMax, setpointStep),
	)
	if err != nil {
		return err
	}

	for n := 1; n <= zones; n++ {
		idx := uint8(n)
		zone, err := d.Endpoint(node+"/zone/"+strconv.Itoa(n), false)
		if err != nil {
			return err
		}
		err = zone.Add(
			Switch("state", ValueErr(func() (bool, error) { return status.ZoneOpen(idx) }), DecodeBool(func(open bool) (bool, error) {
				return status.SetZoneOpen(idx, open)
			}), ""),
			BinarySensor("is_open", ValueErr(func() (bool, error) { return status.IsZoneOpen(idx) }), "opening"),
		)
		if err != nil {
			return err
		}
	}

	for n := 1; n <= zones; n++ {
		idx := uint8(n)
		temp, err := d.Endpoint(node+"/temperature/"+strconv.Itoa(n), false)
		if err != nil {
			return err
		}
		err = temp.Add(Sensor("state", ValueErr(func() (float32, error) { return status.Temperature(idx) }), "temperature", "measurement", celsius))
		if err != nil {
			return err
		}
	}
	return nil
}

// decodeMode accepts an option string ("manual", "automatic") or a JSON
// boolean where true selects automatic mode.
func decodeMode(status *device.Status) Setter {
	return func(raw json.RawMessage) error {
		var auto bool
		if err := json.Unmarshal(raw, &auto); err == nil {
			mode := device.Manual
			if auto {
				mode = device.Automatic
			}
			_, err := status.SetMode(mode)
			return err
		}

		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return fmt.Errorf("%w: %s is not a mode", ErrInvalidPayload, raw)
		}
		mode, err := device.ParseControlMode(s)
		if err != nil {
			return fmt.Errorf("%w: %w", ErrInvalidPayload, err)
		}
		_, err = status.SetMode(mode)
		return err
	}
}
