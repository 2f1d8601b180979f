package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/queue"
	"github.com/benchlane/benchlane-engine/pkg/services"
)

// RunEvaluationRequest for POST /evaluations. An omitted window defaults to
// the trailing seven days.
type RunEvaluationRequest struct {
	WindowStart *time.Time `json:"window_start,omitempty"`
	WindowEnd   *time.Time `json:"window_end,omitempty"`
}

// AnalyticsHandler handles evaluation and analytics HTTP requests.
type AnalyticsHandler struct {
	evaluation services.EvaluationService
	jobs       *queue.Queue
	logger     *zap.Logger
}

// NewAnalyticsHandler creates a new analytics handler.
func NewAnalyticsHandler(evaluation services.EvaluationService, jobs *queue.Queue, logger *zap.Logger) *AnalyticsHandler {
	return &AnalyticsHandler{evaluation: evaluation, jobs: jobs, logger: logger}
}

// RegisterRoutes registers the analytics handler's routes on the given mux.
func (h *AnalyticsHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/tenants/{tid}"

	mux.HandleFunc("POST "+base+"/evaluations", tenantMiddleware(h.RunEvaluation))
	mux.HandleFunc("POST "+base+"/evals/retrieval", tenantMiddleware(h.RunEvaluation))
	mux.HandleFunc("GET "+base+"/analytics/snapshots", tenantMiddleware(h.ListSnapshots))
	mux.HandleFunc("GET "+base+"/analytics/snapshots/latest", tenantMiddleware(h.LatestSnapshot))
	mux.HandleFunc("GET "+base+"/analytics/summary", tenantMiddleware(h.LatestSnapshot))
	mux.HandleFunc("GET "+base+"/evals/metrics", tenantMiddleware(h.ListSnapshots))
}

// RunEvaluation handles POST /api/tenants/{tid}/evaluations by queueing an
// evaluation job for the window.
func (h *AnalyticsHandler) RunEvaluation(w http.ResponseWriter, r *http.Request) {
	scope, ok := database.GetTenantScope(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "no_tenant_scope", "Missing tenant scope")
		return
	}

	var req RunEvaluationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}

	windowEnd := time.Now()
	if req.WindowEnd != nil {
		windowEnd = *req.WindowEnd
	}
	windowStart := windowEnd.Add(-7 * 24 * time.Hour)
	if req.WindowStart != nil {
		windowStart = *req.WindowStart
	}
	if !windowStart.Before(windowEnd) {
		h.writeError(w, http.StatusBadRequest, "invalid_window", "window_start must precede window_end")
		return
	}

	payload, err := json.Marshal(map[string]time.Time{
		"window_start": windowStart,
		"window_end":   windowEnd,
	})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "encode_failed", "Failed to encode job payload")
		return
	}

	job := &queue.Job{
		ID:       "evaluation:" + scope.TenantID.String() + ":" + windowEnd.UTC().Format(time.RFC3339),
		Type:     queue.TypeEvaluation,
		TenantID: scope.TenantID,
		Payload:  payload,
	}
	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		h.logger.Error("Failed to enqueue evaluation", zap.Error(err))
		h.serviceError(w, err, "enqueue_evaluation_failed")
		return
	}

	h.writeJSON(w, http.StatusAccepted, ApiResponse{Success: true, Data: map[string]any{
		"window_start": windowStart,
		"window_end":   windowEnd,
	}})
}

// ListSnapshots handles GET /api/tenants/{tid}/analytics/snapshots
func (h *AnalyticsHandler) ListSnapshots(w http.ResponseWriter, r *http.Request) {
	snapshots, err := h.evaluation.List(r.Context(), QueryLimit(r, 20))
	if err != nil {
		h.serviceError(w, err, "list_snapshots_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: snapshots})
}

// LatestSnapshot handles GET /api/tenants/{tid}/analytics/snapshots/latest
func (h *AnalyticsHandler) LatestSnapshot(w http.ResponseWriter, r *http.Request) {
	snapshot, err := h.evaluation.Latest(r.Context())
	if err != nil {
		h.serviceError(w, err, "latest_snapshot_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: snapshot})
}

func (h *AnalyticsHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *AnalyticsHandler) serviceError(w http.ResponseWriter, err error, fallbackCode string) {
	if err := ServiceError(w, err, fallbackCode); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
