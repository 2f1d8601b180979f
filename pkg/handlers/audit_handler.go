package handlers

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/services"
)

// AuditListResponse for GET /audit
type AuditListResponse struct {
	Entries []*models.AuditLogEntry `json:"entries"`
	Total   int                     `json:"total"`
}

// AuditHandler handles audit trail HTTP requests.
type AuditHandler struct {
	audit  services.AuditService
	logger *zap.Logger
}

// NewAuditHandler creates a new audit handler.
func NewAuditHandler(audit services.AuditService, logger *zap.Logger) *AuditHandler {
	return &AuditHandler{audit: audit, logger: logger}
}

// RegisterRoutes registers the audit handler's routes on the given mux.
func (h *AuditHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/tenants/{tid}/audit"

	mux.HandleFunc("GET "+base, tenantMiddleware(h.List))
	mux.HandleFunc("POST "+base+"/verify", tenantMiddleware(h.Verify))
}

// List handles GET /api/tenants/{tid}/audit
func (h *AuditHandler) List(w http.ResponseWriter, r *http.Request) {
	entries, err := h.audit.List(r.Context(), QueryLimit(r, 100))
	if err != nil {
		h.logger.Error("Failed to list audit entries", zap.Error(err))
		if err := ServiceError(w, err, "list_audit_failed"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: AuditListResponse{Entries: entries, Total: len(entries)}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

// Verify handles POST /api/tenants/{tid}/audit/verify. Replays the tenant's
// hash chain; a 409 means the chain does not verify.
func (h *AuditHandler) Verify(w http.ResponseWriter, r *http.Request) {
	if err := h.audit.Verify(r.Context()); err != nil {
		h.logger.Warn("Audit chain verification failed", zap.Error(err))
		if err := ServiceError(w, err, "verify_audit_failed"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}
	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]bool{"verified": true}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
