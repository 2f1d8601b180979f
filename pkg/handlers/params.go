package handlers

import (
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ParseRequirementID extracts and validates the requirement ID from the
// request path. Expects path parameter: rid
func ParseRequirementID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "rid", "invalid_requirement_id", "Invalid requirement ID format", logger)
}

// ParseMatchID extracts and validates the match ID from the request path.
// Expects path parameter: mid
func ParseMatchID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "mid", "invalid_match_id", "Invalid match ID format", logger)
}

// ParseDocumentID extracts and validates the document ID from the request
// path. Expects path parameter: did
func ParseDocumentID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "did", "invalid_document_id", "Invalid document ID format", logger)
}

// ParseSubmissionID extracts and validates the submission ID from the request
// path. Expects path parameter: sid
func ParseSubmissionID(w http.ResponseWriter, r *http.Request, logger *zap.Logger) (uuid.UUID, bool) {
	return parseUUID(w, r, "sid", "invalid_submission_id", "Invalid submission ID format", logger)
}

func parseUUID(w http.ResponseWriter, r *http.Request, param, errorCode, message string, logger *zap.Logger) (uuid.UUID, bool) {
	id, err := uuid.Parse(r.PathValue(param))
	if err != nil {
		logger.Warn("Invalid path parameter",
			zap.String("param", param),
			zap.String("value", r.PathValue(param)))
		if err := ErrorResponse(w, http.StatusBadRequest, errorCode, message); err != nil {
			logger.Error("Failed to write error response", zap.Error(err))
		}
		return uuid.Nil, false
	}
	return id, true
}

// QueryLimit reads the "limit" query parameter, returning fallback when
// absent or unparsable.
func QueryLimit(r *http.Request, fallback int) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return fallback
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit <= 0 {
		return fallback
	}
	return limit
}
