package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/services"
)

// MatchListResponse for GET /requirements/{rid}/matches
type MatchListResponse struct {
	Matches []*models.Match `json:"matches"`
	Total   int             `json:"total"`
}

// UpdateMatchStatusRequest for PATCH /matches/{mid}/status
type UpdateMatchStatusRequest struct {
	Status string `json:"status"`
}

// SubmitFeedbackRequest for POST /matches/{mid}/feedback
type SubmitFeedbackRequest struct {
	Outcome  string         `json:"outcome"`
	Rating   *int           `json:"rating,omitempty"`
	Reason   *string        `json:"reason,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// CreateSubmissionRequest for POST /matches/{mid}/submissions
type CreateSubmissionRequest struct {
	Status string `json:"status,omitempty"`
}

// UpdateSubmissionStatusRequest for PATCH /submissions/{sid}/status
type UpdateSubmissionStatusRequest struct {
	Status string `json:"status"`
}

// MatchHandler handles matching engine HTTP requests.
type MatchHandler struct {
	matches services.MatchService
	logger  *zap.Logger
}

// NewMatchHandler creates a new match handler.
func NewMatchHandler(matches services.MatchService, logger *zap.Logger) *MatchHandler {
	return &MatchHandler{matches: matches, logger: logger}
}

// RegisterRoutes registers the match handler's routes on the given mux.
func (h *MatchHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/tenants/{tid}"

	mux.HandleFunc("POST "+base+"/requirements/{rid}/matches", tenantMiddleware(h.Run))
	mux.HandleFunc("GET "+base+"/requirements/{rid}/matches", tenantMiddleware(h.List))
	mux.HandleFunc("GET "+base+"/matches/{mid}", tenantMiddleware(h.Get))
	mux.HandleFunc("PATCH "+base+"/matches/{mid}/status", tenantMiddleware(h.UpdateStatus))
	mux.HandleFunc("POST "+base+"/matches/{mid}/feedback", tenantMiddleware(h.SubmitFeedback))
	mux.HandleFunc("GET "+base+"/matches/{mid}/feedback", tenantMiddleware(h.ListFeedback))
	mux.HandleFunc("POST "+base+"/matches/{mid}/submissions", tenantMiddleware(h.CreateSubmission))
	mux.HandleFunc("PATCH "+base+"/submissions/{sid}/status", tenantMiddleware(h.UpdateSubmissionStatus))
}

// Run handles POST /api/tenants/{tid}/requirements/{rid}/matches
func (h *MatchHandler) Run(w http.ResponseWriter, r *http.Request) {
	requirementID, ok := ParseRequirementID(w, r, h.logger)
	if !ok {
		return
	}

	matches, err := h.matches.MatchRequirement(r.Context(), requirementID)
	if err != nil {
		h.logger.Error("Failed to run matching",
			zap.String("requirement_id", requirementID.String()),
			zap.Error(err))
		h.serviceError(w, err, "match_run_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: MatchListResponse{Matches: matches, Total: len(matches)}})
}

// List handles GET /api/tenants/{tid}/requirements/{rid}/matches
func (h *MatchHandler) List(w http.ResponseWriter, r *http.Request) {
	requirementID, ok := ParseRequirementID(w, r, h.logger)
	if !ok {
		return
	}

	matches, err := h.matches.ListMatches(r.Context(), requirementID, QueryLimit(r, 50))
	if err != nil {
		h.serviceError(w, err, "list_matches_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: MatchListResponse{Matches: matches, Total: len(matches)}})
}

// Get handles GET /api/tenants/{tid}/matches/{mid}
func (h *MatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	matchID, ok := ParseMatchID(w, r, h.logger)
	if !ok {
		return
	}

	match, err := h.matches.GetMatch(r.Context(), matchID)
	if err != nil {
		h.serviceError(w, err, "get_match_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: match})
}

// UpdateStatus handles PATCH /api/tenants/{tid}/matches/{mid}/status
func (h *MatchHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	matchID, ok := ParseMatchID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateMatchStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "A non-empty status is required")
		return
	}

	if err := h.matches.UpdateStatus(r.Context(), matchID, req.Status); err != nil {
		h.serviceError(w, err, "update_status_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true})
}

// SubmitFeedback handles POST /api/tenants/{tid}/matches/{mid}/feedback
func (h *MatchHandler) SubmitFeedback(w http.ResponseWriter, r *http.Request) {
	matchID, ok := ParseMatchID(w, r, h.logger)
	if !ok {
		return
	}

	var req SubmitFeedbackRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Outcome == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "A non-empty outcome is required")
		return
	}

	feedback := &models.MatchFeedback{
		MatchID:  matchID,
		Outcome:  req.Outcome,
		Rating:   req.Rating,
		Reason:   req.Reason,
		Metadata: req.Metadata,
	}
	if err := h.matches.SubmitFeedback(r.Context(), feedback); err != nil {
		h.logger.Error("Failed to submit feedback",
			zap.String("match_id", matchID.String()),
			zap.Error(err))
		h.serviceError(w, err, "submit_feedback_failed")
		return
	}
	h.writeJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: feedback})
}

// ListFeedback handles GET /api/tenants/{tid}/matches/{mid}/feedback
func (h *MatchHandler) ListFeedback(w http.ResponseWriter, r *http.Request) {
	matchID, ok := ParseMatchID(w, r, h.logger)
	if !ok {
		return
	}

	feedback, err := h.matches.ListFeedback(r.Context(), matchID)
	if err != nil {
		h.serviceError(w, err, "list_feedback_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: feedback})
}

// CreateSubmission handles POST /api/tenants/{tid}/matches/{mid}/submissions
func (h *MatchHandler) CreateSubmission(w http.ResponseWriter, r *http.Request) {
	matchID, ok := ParseMatchID(w, r, h.logger)
	if !ok {
		return
	}

	var req CreateSubmissionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	if req.Status == "" {
		req.Status = models.SubmissionStatusSubmitted
	}

	submission := &models.Submission{MatchID: matchID, Status: req.Status}
	if err := h.matches.CreateSubmission(r.Context(), submission); err != nil {
		h.serviceError(w, err, "create_submission_failed")
		return
	}
	h.writeJSON(w, http.StatusCreated, ApiResponse{Success: true, Data: submission})
}

// UpdateSubmissionStatus handles PATCH /api/tenants/{tid}/submissions/{sid}/status
func (h *MatchHandler) UpdateSubmissionStatus(w http.ResponseWriter, r *http.Request) {
	submissionID, ok := ParseSubmissionID(w, r, h.logger)
	if !ok {
		return
	}

	var req UpdateSubmissionStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Status == "" {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "A non-empty status is required")
		return
	}

	if err := h.matches.UpdateSubmissionStatus(r.Context(), submissionID, req.Status); err != nil {
		h.serviceError(w, err, "update_submission_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true})
}

func (h *MatchHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *MatchHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *MatchHandler) serviceError(w http.ResponseWriter, err error, fallbackCode string) {
	if err := ServiceError(w, err, fallbackCode); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
