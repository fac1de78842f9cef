package api

import (
	"encoding/json"
	"errors"
	"net/http"
)

// Sentinel errors returned by New.
var (
	ErrNoStatus     = errors.New("api: device status is required")
	ErrNoDispatcher = errors.New("api: dispatcher is required")
	ErrNoServer     = errors.New("api: dispatch server is required")
)

// Error is the body of non-attribute failures.
type Error struct {
	Status  int    `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
)

// writeJSON writes v with the given status. The body is encoded before the
// header goes out so an encoding failure can still become a 500.
func writeJSON(w http.ResponseWriter, status int, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

func writeError(w http.ResponseWriter, status int, code, message string) error {
	return writeJSON(w, status, Error{Status: status, Code: code, Message: message})
}
