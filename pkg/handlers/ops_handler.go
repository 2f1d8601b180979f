package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/queue"
)

// QueueStatsResponse for GET /queues/{qtype}
type QueueStatsResponse struct {
	Type        string `json:"type"`
	Pending     int64  `json:"pending"`
	DeadLetters int64  `json:"dead_letters"`
}

// DrainRequest for POST /queues/{qtype}/drain
type DrainRequest struct {
	Limit int `json:"limit,omitempty"`
}

// ReindexRequest for POST /index/refresh
type ReindexRequest struct {
	EntityType string `json:"entity_type"`
}

// OpsHandler exposes operational surfaces: queue stats, dead-letter drains,
// and index rebuilds.
type OpsHandler struct {
	jobs   *queue.Queue
	logger *zap.Logger
}

// NewOpsHandler creates a new ops handler.
func NewOpsHandler(jobs *queue.Queue, logger *zap.Logger) *OpsHandler {
	return &OpsHandler{jobs: jobs, logger: logger}
}

var knownJobTypes = map[string]bool{
	queue.TypeResumeIngestion:      true,
	queue.TypeRequirementIngestion: true,
	queue.TypeIndexRefresh:         true,
	queue.TypeEvaluation:           true,
}

// RegisterRoutes registers the ops handler's routes on the given mux.
func (h *OpsHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/tenants/{tid}"

	mux.HandleFunc("GET "+base+"/queues/{qtype}", tenantMiddleware(h.QueueStats))
	mux.HandleFunc("POST "+base+"/queues/{qtype}/drain", tenantMiddleware(h.DrainDeadLetters))
	mux.HandleFunc("POST "+base+"/index/refresh", tenantMiddleware(h.Reindex))
}

// QueueStats handles GET /api/tenants/{tid}/queues/{qtype}
func (h *OpsHandler) QueueStats(w http.ResponseWriter, r *http.Request) {
	jobType := r.PathValue("qtype")
	if !knownJobTypes[jobType] {
		h.writeError(w, http.StatusNotFound, "unknown_queue", "Unknown queue type")
		return
	}

	pending, err := h.jobs.Depth(r.Context(), jobType)
	if err != nil {
		h.serviceError(w, err, "queue_stats_failed")
		return
	}
	deadLetters, err := h.jobs.DeadLetterDepth(r.Context(), jobType)
	if err != nil {
		h.serviceError(w, err, "queue_stats_failed")
		return
	}

	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: QueueStatsResponse{
		Type:        jobType,
		Pending:     pending,
		DeadLetters: deadLetters,
	}})
}

// DrainDeadLetters handles POST /api/tenants/{tid}/queues/{qtype}/drain,
// requeueing dead letters with a fresh attempt counter.
func (h *OpsHandler) DrainDeadLetters(w http.ResponseWriter, r *http.Request) {
	jobType := r.PathValue("qtype")
	if !knownJobTypes[jobType] {
		h.writeError(w, http.StatusNotFound, "unknown_queue", "Unknown queue type")
		return
	}

	var req DrainRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	if req.Limit <= 0 {
		req.Limit = 100
	}

	drained, err := h.jobs.DrainDeadLetters(r.Context(), jobType, req.Limit)
	if err != nil {
		h.logger.Error("Failed to drain dead letters",
			zap.String("queue", jobType),
			zap.Error(err))
		h.serviceError(w, err, "drain_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]int{"drained": drained}})
}

// Reindex handles POST /api/tenants/{tid}/index/refresh by queueing a rebuild
// for the entity type.
func (h *OpsHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	scope, ok := database.GetTenantScope(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "no_tenant_scope", "Missing tenant scope")
		return
	}

	var req ReindexRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	if req.EntityType != models.EntityTypeConsultant && req.EntityType != models.EntityTypeRequirement {
		h.writeError(w, http.StatusBadRequest, "invalid_entity_type", "entity_type must be CONSULTANT or REQUIREMENT")
		return
	}

	payload, err := json.Marshal(map[string]string{"entity_type": req.EntityType})
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, "encode_failed", "Failed to encode job payload")
		return
	}
	job := &queue.Job{
		ID:       uuid.New().String(),
		Type:     queue.TypeIndexRefresh,
		TenantID: scope.TenantID,
		Payload:  payload,
	}
	if err := h.jobs.Enqueue(r.Context(), job); err != nil {
		h.serviceError(w, err, "enqueue_reindex_failed")
		return
	}
	h.writeJSON(w, http.StatusAccepted, ApiResponse{Success: true})
}

func (h *OpsHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *OpsHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *OpsHandler) serviceError(w http.ResponseWriter, err error, fallbackCode string) {
	if err := ServiceError(w, err, fallbackCode); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
