package models

import (
	"time"

	"github.com/google/uuid"
)

// Requirement statuses.
const (
	RequirementStatusOpen       = "OPEN"
	RequirementStatusInProgress = "IN_PROGRESS"
	RequirementStatusOnHold     = "ON_HOLD"
	RequirementStatusClosed     = "CLOSED"
)

// Requirement is a client job requirement. Tenant-partitioned.
type Requirement struct {
	ID          uuid.UUID  `json:"id"`
	TenantID    uuid.UUID  `json:"tenant_id"`
	Title       string     `json:"title"`
	ClientName  string     `json:"client_name"`
	Description string     `json:"description"`
	Location    *string    `json:"location,omitempty"`
	Type        *string    `json:"type,omitempty"`
	Status      string     `json:"status"`
	Source      string     `json:"source"`
	MinRate     *float64   `json:"min_rate,omitempty"`
	MaxRate     *float64   `json:"max_rate,omitempty"`
	PostedAt    time.Time  `json:"posted_at"`
	ClosesAt    *time.Time `json:"closes_at,omitempty"`
	Skills      []WeightedSkill `json:"skills,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Requirement ingestion record statuses.
const (
	IngestionStatusPending   = "PENDING"
	IngestionStatusProcessed = "PROCESSED"
	IngestionStatusFailed    = "FAILED"
)

// RequirementIngestion records one raw requirement ingress.
// Unique by (tenant_id, content_hash) where content_hash = md5(raw_content).
type RequirementIngestion struct {
	ID          uuid.UUID      `json:"id"`
	TenantID    uuid.UUID      `json:"tenant_id"`
	Source      string         `json:"source"`
	RawContent  string         `json:"raw_content"`
	ContentHash string         `json:"content_hash"`
	ParsedData  map[string]any `json:"parsed_data,omitempty"`
	Status      string         `json:"status"`
	RetryCount  int            `json:"retry_count"`
	ProcessedAt *time.Time     `json:"processed_at,omitempty"`
	LatencyMs   *int64         `json:"latency_ms,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}

// ParsedRequirement is the structured-extraction collaborator output for a
// raw requirement body.
type ParsedRequirement struct {
	Title         string   `json:"title"`
	ClientName    string   `json:"client_name"`
	Location      string   `json:"location,omitempty"`
	SuggestedRate *float64 `json:"suggested_rate,omitempty"`
	Skills        []string `json:"skills,omitempty"`
}
