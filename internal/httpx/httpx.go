// Package httpx holds the JSON response helpers shared by the HTTP handlers.
package httpx

import (
	"encoding/json"
	"net/http"
	"strings"

	"gamelibrary/internal/apperr"
)

type errorBody struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// WriteJSON encodes v with the given status.
func WriteJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// StatusFor maps an error kind onto the HTTP status contract.
func StatusFor(err error) int {
	switch apperr.KindOf(err) {
	case apperr.KindValidation, apperr.KindConflict:
		return http.StatusBadRequest
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindUnauthorized:
		return http.StatusUnauthorized
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindUnavailable, apperr.KindMirror:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// WriteError writes err as a JSON error body. Server faults hide their detail.
func WriteError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = http.StatusText(status)
	}
	WriteJSON(w, status, errorBody{Error: msg, Kind: apperr.KindOf(err).String()})
}

// ForwardedPrefixHeader carries the path prefix a gateway stripped before proxying.
const ForwardedPrefixHeader = "X-Forwarded-Prefix"

// SetLocation sets the Location header to path, restoring any prefix the
// gateway stripped so the URL resolves for the original caller.
func SetLocation(w http.ResponseWriter, r *http.Request, path string) {
	prefix := strings.TrimRight(r.Header.Get(ForwardedPrefixHeader), "/")
	if !strings.HasPrefix(prefix, "/") || strings.HasPrefix(prefix, "//") {
		prefix = ""
	}
	w.Header().Set("Location", prefix+path)
}

// DecodeJSON decodes the request body into v, reporting malformed input as a validation error.
func DecodeJSON(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return apperr.Validation("invalid request body: %v", err)
	}
	return nil
}
