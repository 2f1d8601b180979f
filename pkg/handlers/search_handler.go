package handlers

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/services"
)

// SearchResponse for POST /search
type SearchResponse struct {
	Results []*models.HybridResult `json:"results"`
	Total   int                    `json:"total"`
}

// SearchHandler handles hybrid search HTTP requests.
type SearchHandler struct {
	search services.SearchService
	logger *zap.Logger
}

// NewSearchHandler creates a new search handler.
func NewSearchHandler(search services.SearchService, logger *zap.Logger) *SearchHandler {
	return &SearchHandler{search: search, logger: logger}
}

// RegisterRoutes registers the search handler's routes on the given mux.
func (h *SearchHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	mux.HandleFunc("POST /api/tenants/{tid}/search", tenantMiddleware(h.Search))
	mux.HandleFunc("POST /api/tenants/{tid}/search/hybrid", tenantMiddleware(h.Search))
}

// Search handles POST /api/tenants/{tid}/search
func (h *SearchHandler) Search(w http.ResponseWriter, r *http.Request) {
	var query models.HybridQuery
	if err := json.NewDecoder(r.Body).Decode(&query); err != nil {
		if err := ErrorResponse(w, http.StatusBadRequest, "invalid_json", "Invalid request body"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	results, err := h.search.Search(r.Context(), &query)
	if err != nil {
		h.logger.Error("Search failed",
			zap.String("query", query.Query),
			zap.Error(err))
		if err := ServiceError(w, err, "search_failed"); err != nil {
			h.logger.Error("Failed to write error response", zap.Error(err))
		}
		return
	}

	if err := WriteJSON(w, http.StatusOK, ApiResponse{Success: true, Data: SearchResponse{Results: results, Total: len(results)}}); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}
