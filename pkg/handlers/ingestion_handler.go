package handlers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/blob"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/services"
)

// maxUploadBytes bounds in-band resume uploads; larger documents should go
// through presigned upload.
const maxUploadBytes = 20 << 20

// IngestRequirementRequest for POST /requirements/ingest
type IngestRequirementRequest struct {
	Source  string `json:"source,omitempty"`
	Content string `json:"content"`
}

// PresignUploadRequest for POST /documents/presign
type PresignUploadRequest struct {
	FileName    string `json:"file_name"`
	ContentType string `json:"content_type"`
}

// PresignUploadResponse carries the presigned PUT target.
type PresignUploadResponse struct {
	URL        string `json:"url"`
	StorageKey string `json:"storage_key"`
}

// DocumentResponse joins an asset with its ingestion metadata.
type DocumentResponse struct {
	Asset    *models.DocumentAsset    `json:"asset"`
	Metadata *models.DocumentMetadata `json:"metadata"`
}

// IngestionHandler handles document and requirement ingress HTTP requests.
type IngestionHandler struct {
	resumes      services.ResumeIngestionService
	requirements services.RequirementIngestionService
	dedupe       services.DedupeService
	documents    services.DocumentService
	storage      blob.Storage
	logger       *zap.Logger
}

// NewIngestionHandler creates a new ingestion handler.
func NewIngestionHandler(
	resumes services.ResumeIngestionService,
	requirements services.RequirementIngestionService,
	dedupe services.DedupeService,
	documents services.DocumentService,
	storage blob.Storage,
	logger *zap.Logger,
) *IngestionHandler {
	return &IngestionHandler{
		resumes:      resumes,
		requirements: requirements,
		dedupe:       dedupe,
		documents:    documents,
		storage:      storage,
		logger:       logger,
	}
}

// RegisterRoutes registers the ingestion handler's routes on the given mux.
func (h *IngestionHandler) RegisterRoutes(mux *http.ServeMux, tenantMiddleware TenantMiddleware) {
	base := "/api/tenants/{tid}"

	mux.HandleFunc("POST "+base+"/resumes", tenantMiddleware(h.UploadResume))
	mux.HandleFunc("POST "+base+"/ingestion/resumes", tenantMiddleware(h.UploadResume))
	mux.HandleFunc("POST "+base+"/requirements/ingest", tenantMiddleware(h.IngestRequirement))
	mux.HandleFunc("POST "+base+"/ingestion/requirements", tenantMiddleware(h.IngestRequirement))
	mux.HandleFunc("GET "+base+"/documents/{did}", tenantMiddleware(h.GetDocument))
	mux.HandleFunc("GET "+base+"/documents/{did}/download", tenantMiddleware(h.PresignDownload))
	mux.HandleFunc("POST "+base+"/documents/upload-url", tenantMiddleware(h.PresignUpload))
	mux.HandleFunc("POST "+base+"/documents/presign", tenantMiddleware(h.PresignUpload))
	mux.HandleFunc("GET "+base+"/dedupe/candidates", tenantMiddleware(h.DedupeCandidates))
}

// UploadResume handles POST /api/tenants/{tid}/resumes as multipart form data
// with a "file" part and an optional "consultant_id" field.
func (h *IngestionHandler) UploadResume(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(maxUploadBytes); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_multipart", "Expected multipart form data")
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "missing_file", "Missing file part")
		return
	}
	defer file.Close() //nolint:errcheck // read-only temp file

	data, err := io.ReadAll(io.LimitReader(file, maxUploadBytes+1))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "read_failed", "Failed to read file")
		return
	}
	if len(data) > maxUploadBytes {
		h.writeError(w, http.StatusRequestEntityTooLarge, "file_too_large", "File exceeds upload limit")
		return
	}

	upload := &services.ResumeUpload{
		FileName:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Data:        data,
		Source:      models.SourceAPI,
	}
	if raw := r.FormValue("consultant_id"); raw != "" {
		consultantID, err := uuid.Parse(raw)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "invalid_consultant_id", "Invalid consultant ID format")
			return
		}
		upload.ConsultantID = &consultantID
	}

	result, err := h.resumes.Upload(r.Context(), upload)
	if err != nil {
		h.logger.Error("Failed to upload resume",
			zap.String("file_name", header.Filename),
			zap.Error(err))
		h.serviceError(w, err, "resume_upload_failed")
		return
	}

	status := http.StatusAccepted
	if result.Duplicate {
		status = http.StatusOK
	}
	h.writeJSON(w, status, ApiResponse{Success: true, Data: result})
}

// IngestRequirement handles POST /api/tenants/{tid}/requirements/ingest
func (h *IngestionHandler) IngestRequirement(w http.ResponseWriter, r *http.Request) {
	var req IngestRequirementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	if req.Source == "" {
		req.Source = models.SourceAPI
	}

	result, err := h.requirements.Ingest(r.Context(), req.Source, req.Content)
	if err != nil {
		h.logger.Error("Failed to ingest requirement", zap.Error(err))
		h.serviceError(w, err, "requirement_ingest_failed")
		return
	}

	status := http.StatusAccepted
	if result.Duplicate {
		status = http.StatusOK
	}
	h.writeJSON(w, status, ApiResponse{Success: true, Data: result})
}

// GetDocument handles GET /api/tenants/{tid}/documents/{did}
func (h *IngestionHandler) GetDocument(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	asset, metadata, err := h.documents.Get(r.Context(), documentID)
	if err != nil {
		h.serviceError(w, err, "get_document_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: DocumentResponse{Asset: asset, Metadata: metadata}})
}

// PresignDownload handles GET /api/tenants/{tid}/documents/{did}/download
func (h *IngestionHandler) PresignDownload(w http.ResponseWriter, r *http.Request) {
	documentID, ok := ParseDocumentID(w, r, h.logger)
	if !ok {
		return
	}

	asset, _, err := h.documents.Get(r.Context(), documentID)
	if err != nil {
		h.serviceError(w, err, "get_document_failed")
		return
	}
	url, err := h.storage.PresignGet(asset.StorageKey)
	if err != nil {
		h.logger.Error("Failed to presign download",
			zap.String("document_id", documentID.String()),
			zap.Error(err))
		h.serviceError(w, err, "presign_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: map[string]string{"url": url}})
}

// PresignUpload handles POST /api/tenants/{tid}/documents/presign
func (h *IngestionHandler) PresignUpload(w http.ResponseWriter, r *http.Request) {
	scope, ok := database.GetTenantScope(r.Context())
	if !ok {
		h.writeError(w, http.StatusInternalServerError, "no_tenant_scope", "Missing tenant scope")
		return
	}

	var req PresignUploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid_json", "Invalid request body")
		return
	}
	if req.FileName == "" || req.ContentType == "" {
		h.writeError(w, http.StatusBadRequest, "missing_fields", "file_name and content_type are required")
		return
	}

	key := blob.DocumentKey(scope.TenantID, uuid.New(), req.FileName)
	url, err := h.storage.PresignPut(key, req.ContentType)
	if err != nil {
		h.logger.Error("Failed to presign upload", zap.Error(err))
		h.serviceError(w, err, "presign_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: PresignUploadResponse{URL: url, StorageKey: key}})
}

// DedupeCandidates handles GET /api/tenants/{tid}/dedupe/candidates
func (h *IngestionHandler) DedupeCandidates(w http.ResponseWriter, r *http.Request) {
	candidates, err := h.dedupe.Candidates(r.Context())
	if err != nil {
		h.logger.Error("Failed to compute duplicate candidates", zap.Error(err))
		h.serviceError(w, err, "dedupe_failed")
		return
	}
	h.writeJSON(w, http.StatusOK, ApiResponse{Success: true, Data: candidates})
}

func (h *IngestionHandler) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	if err := WriteJSON(w, status, data); err != nil {
		h.logger.Error("Failed to write response", zap.Error(err))
	}
}

func (h *IngestionHandler) writeError(w http.ResponseWriter, status int, code, message string) {
	if err := ErrorResponse(w, status, code, message); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}

func (h *IngestionHandler) serviceError(w http.ResponseWriter, err error, fallbackCode string) {
	if err := ServiceError(w, err, fallbackCode); err != nil {
		h.logger.Error("Failed to write error response", zap.Error(err))
	}
}
