// Package handlers exposes the HTTP API: embeddings, reranking,
// similarity search, chat, and vocabulary management.
package handlers

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse writes a JSON error payload in the API's {"detail": ...}
// shape and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, detail string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{"detail": detail})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// DecodeJSON parses a request body into out. A false return means the
// 422 has already been written.
func DecodeJSON(w http.ResponseWriter, r *http.Request, out interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(out); err != nil {
		_ = ErrorResponse(w, http.StatusUnprocessableEntity, "Invalid request body")
		return false
	}
	return true
}
