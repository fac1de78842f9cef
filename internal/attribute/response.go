package attribute

import (
	"encoding/json"
	"errors"
	"net/http"
)

// ErrorBody is the JSON body of every failed attribute request.
type ErrorBody struct {
	Error    bool     `json:"error"`
	URI      string   `json:"uri"`
	Message  string   `json:"message"`
	Expected []string `json:"expected,omitempty"`
}

// writeJSON writes body with the given status. Marshalling happens before
// the header is sent so an unencodable value can still become a 500.
func writeJSON(w http.ResponseWriter, status int, body any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(data)
	return err
}

// WriteValue renders {"<attr>": value} with status 200.
//
// Returns:
//   - error: Encoding failure (nothing was written) or write failure
func WriteValue[T any](w http.ResponseWriter, attr string, value T) error {
	return writeJSON(w, http.StatusOK, map[string]T{attr: value})
}

// WriteError renders err as an ErrorBody. Request errors use their kind's
// message and status; anything else is a 500 carrying err's own message.
func WriteError(w http.ResponseWriter, uri string, err error) error {
	body := ErrorBody{Error: true, URI: uri, Message: err.Error()}

	var re *RequestError
	if errors.As(err, &re) {
		body.Message = re.Kind.Message()
		body.Expected = re.Expected
	}
	return writeJSON(w, ErrorStatus(err), body)
}
