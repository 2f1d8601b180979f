package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
)

func TestWriteJSON(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: "ok"}))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/json", w.Header().Get("Content-Type"))
	assert.JSONEq(t, `{"success":true,"data":"ok"}`, w.Body.String())
}

func TestErrorResponse(t *testing.T) {
	w := httptest.NewRecorder()
	require.NoError(t, ErrorResponse(w, http.StatusBadRequest, "validation_failed", "bad input"))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.JSONEq(t, `{"error":"validation_failed","message":"bad input"}`, w.Body.String())
}

func TestServiceError_StatusMapping(t *testing.T) {
	tests := []struct {
		err        error
		status     int
		code       string
	}{
		{apperrors.ErrNotFound, http.StatusNotFound, "not_found"},
		{fmt.Errorf("requirement: %w", apperrors.ErrNotFound), http.StatusNotFound, "not_found"},
		{apperrors.ErrValidation, http.StatusBadRequest, "validation_failed"},
		{apperrors.ErrConflict, http.StatusConflict, "conflict"},
		{apperrors.ErrRateLimited, http.StatusTooManyRequests, "rate_limited"},
		{apperrors.ErrQueueSaturated, http.StatusServiceUnavailable, "queue_saturated"},
		{apperrors.ErrCircuitOpen, http.StatusServiceUnavailable, "circuit_open"},
		{apperrors.ErrIntegrity, http.StatusConflict, "integrity_violation"},
		{errors.New("boom"), http.StatusInternalServerError, "internal_error"},
	}

	for _, tc := range tests {
		t.Run(tc.code, func(t *testing.T) {
			w := httptest.NewRecorder()
			require.NoError(t, ServiceError(w, tc.err, "internal_error"))
			assert.Equal(t, tc.status, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}
}
