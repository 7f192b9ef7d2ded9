package utils

import (
	"encoding/json"
	"net/http"

	"github.com/pratik-mahalle/secwatch/internal/pkg/errors"
)

// Envelope is the body of every JSON response served by the API
type Envelope struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
}

// ErrorDetail is the error member of a failed Envelope
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// WriteJSON encodes v with the given status. Responses are never cached.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) error {
	h := w.Header()
	h.Set("Content-Type", "application/json")
	h.Set("Cache-Control", "no-store")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// WriteSuccess wraps data in a successful Envelope
func WriteSuccess(w http.ResponseWriter, status int, data interface{}) error {
	return WriteJSON(w, status, Envelope{Success: true, Data: data})
}

// WriteError renders err as a failed Envelope using its status code
func WriteError(w http.ResponseWriter, err *errors.AppError) error {
	if err.Code == errors.ErrCodeRateLimited && w.Header().Get("Retry-After") == "" {
		w.Header().Set("Retry-After", "1")
	}
	return WriteJSON(w, err.StatusCode, Envelope{
		Error: &ErrorDetail{
			Code:    err.Code,
			Message: err.Message,
			Details: err.Details,
		},
	})
}
