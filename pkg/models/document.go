package models

import (
	"time"

	"github.com/google/uuid"
)

// Document kinds.
const (
	DocumentKindResume                = "RESUME"
	DocumentKindRequirementAttachment = "REQUIREMENT_ATTACHMENT"
)

// Document ingestion statuses.
const (
	DocIngestionPending    = "PENDING"
	DocIngestionProcessing = "PROCESSING"
	DocIngestionComplete   = "COMPLETE"
	DocIngestionFailed     = "FAILED"
)

// PII statuses.
const (
	PIIStatusUnknown = "UNKNOWN"
	PIIStatusClean   = "CLEAN"
	PIIStatusFlagged = "FLAGGED"
)

// DocumentAsset is an uploaded binary (resume, attachment). Tenant-partitioned.
// (tenant_id, sha256) on its metadata row uniquely identifies a document.
type DocumentAsset struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	Kind          string     `json:"kind"`
	FileName      string     `json:"file_name"`
	ContentType   string     `json:"content_type"`
	SizeBytes     int64      `json:"size_bytes"`
	StorageKey    string     `json:"storage_key"`
	ConsultantID  *uuid.UUID `json:"consultant_id,omitempty"`
	RequirementID *uuid.UUID `json:"requirement_id,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DocumentMetadata carries hashes, ingestion state and PII state for one asset.
type DocumentMetadata struct {
	DocumentID         uuid.UUID  `json:"document_id"`
	TenantID           uuid.UUID  `json:"tenant_id"`
	SHA256             string     `json:"sha256"`
	SHA1               *string    `json:"sha1,omitempty"`
	MD5                *string    `json:"md5,omitempty"`
	IngestionStatus    string     `json:"ingestion_status"`
	PIIStatus          string     `json:"pii_status"`
	PIISummary         *PIISummary `json:"pii_summary,omitempty"`
	PageCount          *int       `json:"page_count,omitempty"`
	TextByteSize       *int64     `json:"text_byte_size,omitempty"`
	IngestionLatencyMs *int64     `json:"ingestion_latency_ms,omitempty"`
	ExtractedAt        *time.Time `json:"extracted_at,omitempty"`
	LastRedactionAt    *time.Time `json:"last_redaction_at,omitempty"`
}

// PIISummary aggregates redaction results for a document.
type PIISummary struct {
	Counts map[string]int `json:"counts"`
	Tokens []PIITokenRef  `json:"tokens"`
	Vault  []string       `json:"vault"`
}

// PIITokenRef names one minted token and its PII type.
type PIITokenRef struct {
	Token string `json:"token"`
	Type  string `json:"type"`
}
