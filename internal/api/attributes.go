package api

import (
	"errors"

	"github.com/nerrad567/floorheat-core/internal/attribute"
	"github.com/nerrad567/floorheat-core/internal/device"
	"github.com/nerrad567/floorheat-core/internal/httpserver"
)

// attrSuccess is the key every setter answers with. The spelling is part
// of the wire format existing clients parse.
const attrSuccess = "sucess"

// modeEnum carries the control mode as a bool: true is automatic.
var modeEnum = attribute.Enum[device.ControlMode, bool]{
	ToPrimitive: func(m device.ControlMode) bool { return m == device.Automatic },
	FromPrimitive: func(auto bool) (device.ControlMode, error) {
		if auto {
			return device.Automatic, nil
		}
		return device.Manual, nil
	},
}

// attributeRoutes binds the device status accessors.
func (a *API) attributeRoutes() httpserver.RouteTable {
	d, s := a.dispatcher, a.status

	return httpserver.RouteTable{
		{URI: "/mode/is_auto", Handler: attribute.Get(d, "auto", attribute.GetterOf(s.IsAuto))},
		{URI: "/mode/is_manual", Handler: attribute.Get(d, "manual", attribute.GetterOf(s.IsManual))},
		{URI: "/mode/set", Handler: attribute.Set(d, attrSuccess, setter[bool](modeEnum.Setter(s.SetMode)))},

		{URI: "/target_temperature/get", Handler: attribute.Get(d, "target_temperature", attribute.GetterOf(s.TargetTemperature))},
		{URI: "/target_temperature/set", Handler: attribute.Set(d, attrSuccess, setter(s.SetTargetTemperature))},

		{URI: "/target_temperature_range/get", Handler: attribute.Get(d, "target_temperature_range", attribute.GetterOf(s.TargetTemperatureRange))},
		{URI: "/target_temperature_range/set", Handler: attribute.Set(d, attrSuccess, setter(s.SetTargetTemperatureRange))},

		{URI: "/inlet_open/get", Handler: attribute.Get(d, "inlet_open", attribute.GetterOf(s.InletOpen))},
		{URI: "/inlet_open/set", Handler: attribute.Set(d, attrSuccess, attribute.SetterOf(s.SetInletOpen))},
		{URI: "/inlet_open/is_open", Handler: attribute.Get(d, "is_inlet_open", attribute.GetterOf(s.IsInletOpen))},

		{URI: "/zone_open/get", Handler: attribute.GetIndexed(d, "zone_open", indexedGetter(s.ZoneOpen))},
		{URI: "/zone_open/set", Handler: attribute.SetIndexed(d, attrSuccess, indexedSetter(s.SetZoneOpen))},
		{URI: "/zone_open/is_open", Handler: attribute.GetIndexed(d, "is_zone_open", indexedGetter(s.IsZoneOpen))},

		{URI: "/temperature/get", Handler: attribute.GetIndexed(d, "temperature", indexedGetter(s.Temperature))},

		{URI: "/message_template/get", Handler: attribute.GetIndexed(d, "message_template", indexedGetter(s.Message))},
		{URI: "/message_template/set", Handler: attribute.SetIndexed(d, attrSuccess, indexedSetter(s.SetMessage))},
	}
}

// requestError turns device validation failures into request errors so
// they render as 400 instead of 500. Other errors pass through.
func requestError(err error, expected ...string) error {
	var key string
	switch {
	case err == nil:
		return nil
	case errors.Is(err, device.ErrInvalidChannel), errors.Is(err, device.ErrInvalidLine):
		key = attribute.KeyID
	case errors.Is(err, device.ErrTemperatureRange), errors.Is(err, device.ErrInvalidMode):
		key = attribute.KeyValue
	default:
		return err
	}
	return &attribute.RequestError{
		Kind:     attribute.KindInvalidArgumentsProvided,
		Key:      key,
		Expected: expected,
		Err:      err,
	}
}

func setter[T attribute.Primitive](fn func(T) (bool, error)) attribute.Setter[T] {
	return func(v T) (bool, error) {
		ok, err := fn(v)
		return ok, requestError(err, attribute.KeyValue)
	}
}

func indexedGetter[T attribute.Primitive](fn func(uint8) (T, error)) attribute.IndexedGetter[T] {
	return func(idx uint8) (T, error) {
		v, err := fn(idx)
		return v, requestError(err, attribute.KeyID)
	}
}

func indexedSetter[T attribute.Primitive](fn func(uint8, T) (bool, error)) attribute.IndexedSetter[T] {
	return func(idx uint8, v T) (bool, error) {
		ok, err := fn(idx, v)
		return ok, requestError(err, attribute.KeyID, attribute.KeyValue)
	}
}
