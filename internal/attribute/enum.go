package attribute

// Enum converts between an enumeration and the primitive it travels as.
// Dispatch only knows primitives; wrap enum accessors with an Enum before
// binding them.
//
// Example:
//
//	var modeEnum = attribute.Enum[device.ControlMode, bool]{
//	    ToPrimitive:   func(m device.ControlMode) bool { return m == device.Automatic },
//	    FromPrimitive: func(auto bool) (device.ControlMode, error) { ... },
//	}
//	attribute.Set(d, "sucess", modeEnum.Setter(status.SetMode))
type Enum[E any, P Primitive] struct {
	ToPrimitive   func(E) P
	FromPrimitive func(P) (E, error)
}

// Getter adapts an enum getter.
func (e Enum[E, P]) Getter(fn func() (E, error)) Getter[P] {
	return func() (P, error) {
		v, err := fn()
		if err != nil {
			var zero P
			return zero, err
		}
		return e.ToPrimitive(v), nil
	}
}

// IndexedGetter adapts an indexed enum getter.
func (e Enum[E, P]) IndexedGetter(fn func(uint8) (E, error)) IndexedGetter[P] {
	return func(idx uint8) (P, error) {
		v, err := fn(idx)
		if err != nil {
			var zero P
			return zero, err
		}
		return e.ToPrimitive(v), nil
	}
}

// Setter adapts an enum setter. A primitive that maps to no enum value is
// an invalid argument.
func (e Enum[E, P]) Setter(fn func(E) (bool, error)) Setter[P] {
	return func(p P) (bool, error) {
		v, err := e.from(p)
		if err != nil {
			return false, err
		}
		return fn(v)
	}
}

// IndexedSetter adapts an indexed enum setter.
func (e Enum[E, P]) IndexedSetter(fn func(uint8, E) (bool, error)) IndexedSetter[P] {
	return func(idx uint8, p P) (bool, error) {
		v, err := e.from(p)
		if err != nil {
			return false, err
		}
		return fn(idx, v)
	}
}

func (e Enum[E, P]) from(p P) (E, error) {
	v, err := e.FromPrimitive(p)
	if err != nil {
		return v, &RequestError{
			Kind:     KindInvalidArgumentsProvided,
			Key:      KeyValue,
			Expected: []string{KeyValue},
			Err:      err,
		}
	}
	return v, nil
}
