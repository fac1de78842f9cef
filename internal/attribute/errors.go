package attribute

import (
	"errors"
	"net/http"
	"strings"
)

// Kind is a request-level failure class with a canned message and status.
type Kind uint8

// Request failure kinds.
const (
	KindUnknown Kind = iota
	KindNoArgumentsProvided
	KindInvalidArgumentsProvided
	KindInvalidRequest
	KindTooLong
	KindKeyNotProvided
)

var kindInfo = [...]struct {
	name    string
	message string
	status  int
}{
	KindUnknown:                  {"UNKNOWN", "An unknown error occurred", http.StatusInternalServerError},
	KindNoArgumentsProvided:      {"NO_ARGUMENTS_PROVIDED", "No arguments have been provided", http.StatusBadRequest},
	KindInvalidArgumentsProvided: {"INVALID_ARGUMENTS_PROVIDED", "Invalid arguments have been provided", http.StatusBadRequest},
	KindInvalidRequest:           {"INVALID_REQUEST", "HTTP Request is invalid", http.StatusBadRequest},
	KindTooLong:                  {"TOO_LONG", "URL is too long", http.StatusBadRequest},
	KindKeyNotProvided:           {"KEY_NOT_PROVIDED", "Required argument has not been provided", http.StatusBadRequest},
}

func (k Kind) valid() bool {
	return int(k) < len(kindInfo)
}

// String returns the kind's identifier, e.g. "KEY_NOT_PROVIDED".
func (k Kind) String() string {
	if !k.valid() {
		return kindInfo[KindUnknown].name
	}
	return kindInfo[k].name
}

// Message returns the human-readable message rendered to clients.
func (k Kind) Message() string {
	if !k.valid() {
		return kindInfo[KindUnknown].message
	}
	return kindInfo[k].message
}

// Status returns the HTTP status code the kind maps to.
func (k Kind) Status() int {
	if !k.valid() {
		return kindInfo[KindUnknown].status
	}
	return kindInfo[k].status
}

// StatusCoder is implemented by errors that know their HTTP status.
type StatusCoder interface {
	StatusCode() int
}

// RequestError is an expected request failure of a known kind.
type RequestError struct {
	Kind Kind

	// Key is the query key involved, if any.
	Key string

	// Expected lists the argument names the handler requires.
	Expected []string

	// Err is the underlying cause, e.g. a *ConversionError.
	Err error
}

func (e *RequestError) Error() string {
	var b strings.Builder
	b.WriteString(e.Kind.Message())
	if e.Key != "" {
		b.WriteString(": ")
		b.WriteString(e.Key)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *RequestError) Unwrap() error {
	return e.Err
}

// StatusCode implements StatusCoder.
func (e *RequestError) StatusCode() int {
	return e.Kind.Status()
}

// NewRequestError creates a RequestError of the given kind.
func NewRequestError(kind Kind, expected ...string) *RequestError {
	return &RequestError{Kind: kind, Expected: expected}
}

// KindOf returns the kind carried by err, or KindUnknown when err is not a
// RequestError.
func KindOf(err error) Kind {
	var re *RequestError
	if errors.As(err, &re) {
		return re.Kind
	}
	return KindUnknown
}

// ErrorStatus returns the HTTP status for err: the status of the first
// StatusCoder in its chain, or 500.
func ErrorStatus(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.StatusCode()
	}
	return http.StatusInternalServerError
}
