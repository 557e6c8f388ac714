package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

const (
	// MaxBodySize is the maximum allowed API request body size (1 MB).
	MaxBodySize = 1 << 20
	// MaxWebhookBodySize bounds alert webhook payloads, which batch many alerts.
	MaxWebhookBodySize = 10 << 20
)

// DecodeJSON reads and decodes a JSON request body into dst, rejecting
// unknown fields. It returns user-friendly error messages instead of
// leaking Go internals.
func DecodeJSON(r *http.Request, dst interface{}) error {
	return decode(r, dst, MaxBodySize, true)
}

// DecodeJSONLenient is DecodeJSON without the unknown field check, for
// endpoints that only pick a few fields out of a larger body.
func DecodeJSONLenient(r *http.Request, dst interface{}) error {
	return decode(r, dst, MaxBodySize, false)
}

// ReadBody reads at most limit bytes of the request body.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil {
		return nil, errors.New("request body is empty")
	}
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
	var maxBytesErr *http.MaxBytesError
	if errors.As(err, &maxBytesErr) {
		return nil, fmt.Errorf("request body exceeds maximum size of %d bytes", limit)
	}
	if err != nil {
		return nil, errors.New("failed to read request body")
	}
	if len(body) == 0 {
		return nil, errors.New("request body is empty")
	}
	return body, nil
}

func decode(r *http.Request, dst interface{}, limit int64, strict bool) error {
	if r.Body == nil {
		return errors.New("request body is empty")
	}

	r.Body = http.MaxBytesReader(nil, r.Body, limit)

	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}

	err := dec.Decode(dst)
	if err == nil {
		return nil
	}

	var syntaxErr *json.SyntaxError
	var unmarshalTypeErr *json.UnmarshalTypeError
	var maxBytesErr *http.MaxBytesError

	switch {
	case errors.As(err, &syntaxErr):
		return fmt.Errorf("malformed JSON at position %d", syntaxErr.Offset)
	case errors.As(err, &unmarshalTypeErr):
		if unmarshalTypeErr.Field == "" {
			return fmt.Errorf("request body must be a JSON %s", jsonKind(unmarshalTypeErr.Type.Kind().String()))
		}
		return fmt.Errorf("invalid value for field %q: expected %s", unmarshalTypeErr.Field, jsonKind(unmarshalTypeErr.Type.Kind().String()))
	case errors.Is(err, io.EOF):
		return errors.New("request body is empty")
	case errors.As(err, &maxBytesErr):
		return fmt.Errorf("request body exceeds maximum size of %d bytes", limit)
	case strings.HasPrefix(err.Error(), "json: unknown field"):
		field := strings.TrimPrefix(err.Error(), "json: unknown field ")
		return fmt.Errorf("unknown field %s", field)
	default:
		return errors.New("invalid JSON in request body")
	}
}

// jsonKind names a Go kind the way JSON does
func jsonKind(kind string) string {
	switch kind {
	case "slice", "array":
		return "array"
	case "map", "struct":
		return "object"
	case "int", "int64", "int32", "uint", "float64":
		return "number"
	default:
		return kind
	}
}

// WantsHTML reports whether the client asked for an HTML page
func WantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}
