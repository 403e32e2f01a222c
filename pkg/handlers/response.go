package handlers

import (
	"encoding/json"
	"net/http"
)

// APIError is the body of every error returned by the plain HTTP endpoints.
// MCP errors travel inside JSON-RPC responses instead.
type APIError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// ErrorResponse writes an APIError and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	return WriteJSON(w, statusCode, APIError{Error: errorCode, Message: message})
}

// WriteJSON writes data as JSON with the given status. HTML characters are
// not escaped so SQL comparisons such as "<" and "&&" stay readable.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(data)
}
