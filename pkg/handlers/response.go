package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
)

// ApiResponse is the standard success envelope.
type ApiResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorResponse writes a JSON error response and returns any encoding error.
func ErrorResponse(w http.ResponseWriter, statusCode int, errorCode, message string) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(map[string]string{
		"error":   errorCode,
		"message": message,
	})
}

// WriteJSON writes a JSON response and returns any encoding error.
func WriteJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if statusCode != http.StatusOK {
		w.WriteHeader(statusCode)
	}
	return json.NewEncoder(w).Encode(data)
}

// ServiceError maps domain errors to HTTP responses. Unrecognised errors
// become a 500 with the provided fallback code.
func ServiceError(w http.ResponseWriter, err error, fallbackCode string) error {
	switch {
	case errors.Is(err, apperrors.ErrNotFound):
		return ErrorResponse(w, http.StatusNotFound, "not_found", err.Error())
	case errors.Is(err, apperrors.ErrValidation):
		return ErrorResponse(w, http.StatusBadRequest, "validation_failed", err.Error())
	case errors.Is(err, apperrors.ErrConflict):
		return ErrorResponse(w, http.StatusConflict, "conflict", err.Error())
	case errors.Is(err, apperrors.ErrRateLimited):
		return ErrorResponse(w, http.StatusTooManyRequests, "rate_limited", err.Error())
	case errors.Is(err, apperrors.ErrQueueSaturated):
		return ErrorResponse(w, http.StatusServiceUnavailable, "queue_saturated", err.Error())
	case errors.Is(err, apperrors.ErrCircuitOpen):
		return ErrorResponse(w, http.StatusServiceUnavailable, "circuit_open", err.Error())
	case errors.Is(err, apperrors.ErrIntegrity):
		return ErrorResponse(w, http.StatusConflict, "integrity_violation", err.Error())
	default:
		return ErrorResponse(w, http.StatusInternalServerError, fallbackCode, err.Error())
	}
}
