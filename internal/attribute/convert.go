package attribute

import (
	"errors"
	"fmt"
	"math"
	"math/bits"
)

// Primitive is the closed set of value types a query token can be converted
// to. Requesting any other type is a compile error.
type Primitive interface {
	bool |
		int8 | int16 | int32 | int64 | int |
		uint8 | uint16 | uint32 | uint64 | uint |
		float32 | float64 |
		string
}

// Conversion failures. A ConversionError always unwraps to one of these.
var (
	ErrNotBoolean       = errors.New("not a recognized boolean value")
	ErrSignOnUnsigned   = errors.New("type is not a signed type, but '-' sign was found")
	ErrSecondDot        = errors.New("decimal dot was already found in number")
	ErrDotOnInteger     = errors.New("decimal dot was found while type is not a decimal number")
	ErrUnrecognizedChar = errors.New("unrecognized character found")
	ErrOutOfRange       = errors.New("value out of range")
	ErrNoDigits         = errors.New("no digits found")
)

// ConversionError describes a token that could not be converted.
type ConversionError struct {
	Target string
	Input  string
	Err    error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("converting %q to %s: %v", e.Input, e.Target, e.Err)
}

func (e *ConversionError) Unwrap() error {
	return e.Err
}

// Convert turns raw into a value of type T.
//
// Booleans accept 1/0/y/Y/n/N and case-insensitive yes/no/true/false.
// Numbers are scanned left to right with an optional leading sign; only
// floating-point targets accept a single decimal dot. Values that do not fit
// the target type are rejected with ErrOutOfRange. Strings are copied.
//
// Parameters:
//   - raw: Token bytes, typically a slice into a query parser buffer
//
// Returns:
//   - T: Converted value (zero value on failure, never a partial result)
//   - error: *ConversionError on failure
func Convert[T Primitive](raw []byte) (T, error) {
	var v T
	var err error

	switch p := any(&v).(type) {
	case *bool:
		*p, err = parseBool(raw)
	case *string:
		*p = string(raw)
	case *int8:
		*p, err = signed[int8](raw, 8)
	case *int16:
		*p, err = signed[int16](raw, 16)
	case *int32:
		*p, err = signed[int32](raw, 32)
	case *int64:
		*p, err = signed[int64](raw, 64)
	case *int:
		*p, err = signed[int](raw, bits.UintSize)
	case *uint8:
		*p, err = unsigned[uint8](raw, 8)
	case *uint16:
		*p, err = unsigned[uint16](raw, 16)
	case *uint32:
		*p, err = unsigned[uint32](raw, 32)
	case *uint64:
		*p, err = unsigned[uint64](raw, 64)
	case *uint:
		*p, err = unsigned[uint](raw, bits.UintSize)
	case *float32:
		var f float64
		f, err = parseFloat(raw)
		if err == nil && math.Abs(f) > math.MaxFloat32 {
			err = ErrOutOfRange
		}
		*p = float32(f)
	case *float64:
		*p, err = parseFloat(raw)
	}

	if err != nil {
		var zero T
		return zero, &ConversionError{
			Target: fmt.Sprintf("%T", v),
			Input:  string(raw),
			Err:    err,
		}
	}
	return v, nil
}

func parseBool(raw []byte) (bool, error) {
	if len(raw) == 1 {
		switch raw[0] {
		case '1', 'y', 'Y':
			return true, nil
		case '0', 'n', 'N':
			return false, nil
		}
		return false, ErrNotBoolean
	}

	switch {
	case equalFold(raw, "yes"), equalFold(raw, "true"):
		return true, nil
	case equalFold(raw, "no"), equalFold(raw, "false"):
		return false, nil
	}
	return false, ErrNotBoolean
}

// equalFold compares raw against a lower-case ASCII word.
func equalFold(raw []byte, word string) bool {
	if len(raw) != len(word) {
		return false
	}
	for i := range raw {
		c := raw[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		if c != word[i] {
			return false
		}
	}
	return true
}

// scanSign consumes an optional leading sign.
func scanSign(raw []byte) (negative bool, rest []byte) {
	if len(raw) > 0 {
		switch raw[0] {
		case '-':
			return true, raw[1:]
		case '+':
			return false, raw[1:]
		}
	}
	return false, raw
}

// scanMagnitude accumulates the digits of an integer token, rejecting
// anything above limit.
func scanMagnitude(digits []byte, limit uint64) (uint64, error) {
	if len(digits) == 0 {
		return 0, ErrNoDigits
	}

	var mag uint64
	for _, c := range digits {
		switch {
		case c >= '0' && c <= '9':
			d := uint64(c - '0')
			if mag > (limit-d)/10 {
				return 0, ErrOutOfRange
			}
			mag = mag*10 + d
		case c == '.':
			return 0, ErrDotOnInteger
		default:
			return 0, ErrUnrecognizedChar
		}
	}
	return mag, nil
}

func signed[S int8 | int16 | int32 | int64 | int](raw []byte, size uint) (S, error) {
	negative, digits := scanSign(raw)

	limit := uint64(1)<<(size-1) - 1
	if negative {
		limit++
	}

	mag, err := scanMagnitude(digits, limit)
	if err != nil {
		return 0, err
	}
	if negative {
		// Two's complement negation keeps the minimum value representable.
		return S(-int64(mag - 1) - 1), nil
	}
	return S(mag), nil
}

func unsigned[U uint8 | uint16 | uint32 | uint64 | uint](raw []byte, size uint) (U, error) {
	if len(raw) > 0 && raw[0] == '-' {
		return 0, ErrSignOnUnsigned
	}
	_, digits := scanSign(raw)

	limit := uint64(math.MaxUint64)
	if size < 64 {
		limit = uint64(1)<<size - 1
	}

	mag, err := scanMagnitude(digits, limit)
	if err != nil {
		return 0, err
	}
	return U(mag), nil
}

// parseFloat weighs digits before the dot by powers of ten and each digit
// after it by a descending negative power of ten.
func parseFloat(raw []byte) (float64, error) {
	negative, digits := scanSign(raw)

	var value float64
	seenDot := false
	seenDigit := false
	weight := 1.0

	for _, c := range digits {
		switch {
		case c >= '0' && c <= '9':
			seenDigit = true
			d := float64(c - '0')
			if !seenDot {
				value = value*10 + d
			} else {
				weight /= 10
				value += d * weight
			}
		case c == '.':
			if seenDot {
				return 0, ErrSecondDot
			}
			seenDot = true
		default:
			return 0, ErrUnrecognizedChar
		}
	}

	if !seenDigit {
		return 0, ErrNoDigits
	}
	if math.IsInf(value, 0) {
		return 0, ErrOutOfRange
	}
	if negative {
		value = -value
	}
	return value, nil
}
