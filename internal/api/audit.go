package api

import (
	"bytes"
	"net/http"
	"net/url"

	"github.com/nerrad567/floorheat-core/internal/attribute"
	"github.com/nerrad567/floorheat-core/internal/audit"
	"github.com/nerrad567/floorheat-core/internal/httpserver"
	"github.com/nerrad567/floorheat-core/internal/queryparser"
)

// Query keys of /audit/list. All are optional.
const (
	keyLimit     = "limit"
	keyOffset    = "offset"
	keyAttribute = "attribute"
	keySource    = "source"
	keyFailed    = "failed"
)

var auditKeys = []string{keyLimit, keyOffset, keyAttribute, keySource, keyFailed}

// handleAuditList returns audit entries, newest first.
func (a *API) handleAuditList(req *httpserver.Request, _ any) error {
	filter, err := parseAuditFilter(req.RawQuery())
	if err != nil {
		return attribute.WriteError(req, req.URI(), err)
	}

	result, err := a.audit.List(req.Context(), filter)
	if err != nil {
		a.logger.Warn("listing audit entries failed", "error", err)
		return writeError(req, http.StatusInternalServerError, ErrCodeInternal, "failed to list audit entries")
	}
	return writeJSON(req, http.StatusOK, result)
}

// parseAuditFilter reads the optional filter keys. Malformed values are
// request errors naming the offending key.
func parseAuditFilter(raw string) (audit.Filter, error) {
	var f audit.Filter
	if raw == "" {
		return f, nil
	}

	q := queryparser.NewString(raw)
	defer q.Release()

	var err error
	if f.Limit, err = optional[int](q, keyLimit); err != nil {
		return f, err
	}
	if f.Offset, err = optional[int](q, keyOffset); err != nil {
		return f, err
	}
	if f.Attribute, err = optional[string](q, keyAttribute); err != nil {
		return f, err
	}
	if f.Source, err = optional[string](q, keySource); err != nil {
		return f, err
	}
	if f.Failed, err = optional[bool](q, keyFailed); err != nil {
		return f, err
	}
	return f, nil
}

// optional percent-decodes and converts the value of key, returning the zero value when the key
// is absent.
func optional[T attribute.Primitive](q *queryparser.Parser, key string) (T, error) {
	var zero T
	record := q.HasKey(key)
	if record == queryparser.NotFound {
		return zero, nil
	}
	raw, ok := q.Value(record)
	if !ok {
		return zero, &attribute.RequestError{Kind: attribute.KindInvalidArgumentsProvided, Key: key, Expected: auditKeys}
	}
	if bytes.IndexAny(raw, "%+") >= 0 {
		decoded, err := url.QueryUnescape(string(raw))
		if err != nil {
			return zero, &attribute.RequestError{Kind: attribute.KindInvalidArgumentsProvided, Key: key, Expected: auditKeys, Err: err}
		}
		raw = []byte(decoded)
	}
	v, err := attribute.Convert[T](raw)
	if err != nil {
		return zero, &attribute.RequestError{Kind: attribute.KindInvalidArgumentsProvided, Key: key, Expected: auditKeys, Err: err}
	}
	return v, nil
}
