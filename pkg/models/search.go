package models

import (
	"time"

	"github.com/google/uuid"
)

// Indexed entity types.
const (
	EntityTypeConsultant  = "CONSULTANT"
	EntityTypeRequirement = "REQUIREMENT"
)

// SearchDocument is the hybrid index entry for one entity.
// Unique by (tenant_id, entity_type, entity_id). The lexical tsvector is
// derived from Content in the database; Embedding has the configured
// dimension D (zero vector when the embedder is disabled).
type SearchDocument struct {
	TenantID   uuid.UUID      `json:"tenant_id"`
	EntityType string         `json:"entity_type"`
	EntityID   uuid.UUID      `json:"entity_id"`
	Content    string         `json:"content"`
	Metadata   SearchMetadata `json:"metadata"`
	Embedding  []float32      `json:"-"`
	UpdatedAt  time.Time      `json:"updated_at"`
}

// SearchMetadata carries the filterable attributes of an indexed entity.
type SearchMetadata struct {
	Availability string     `json:"availability,omitempty"`
	Status       string     `json:"status,omitempty"`
	Location     string     `json:"location,omitempty"`
	Rate         *float64   `json:"rate,omitempty"`
	RateRange    []float64  `json:"rate_range,omitempty"` // [min, max]
	Skills       []string   `json:"skills,omitempty"`
	Tags         []string   `json:"tags,omitempty"`
	UpdatedAt    time.Time  `json:"updated_at"`
	PostedAt     *time.Time `json:"posted_at,omitempty"`
	ClosesAt     *time.Time `json:"closes_at,omitempty"`
}

// SearchFilters are hard predicates applied before ranking.
type SearchFilters struct {
	Location string   `json:"location,omitempty"`
	Skills   []string `json:"skills,omitempty"`
	MaxRate  *float64 `json:"max_rate,omitempty"`
}

// HybridQuery is a weighted hybrid search request.
type HybridQuery struct {
	Query       string         `json:"query"`
	EntityTypes []string       `json:"entity_types,omitempty"`
	Filters     *SearchFilters `json:"filters,omitempty"`
	Limit       int            `json:"limit,omitempty"`
}

// HybridResult is one ranked hybrid search hit.
// TotalScore = wV*VectorScore + wL*LexicalScore; results are ordered by
// descending TotalScore. When both sub-scores are zero, ordering among the
// tied rows is unstable and callers must treat ties as equivalent.
type HybridResult struct {
	EntityType   string         `json:"entity_type"`
	EntityID     uuid.UUID      `json:"entity_id"`
	Content      string         `json:"content"`
	Metadata     SearchMetadata `json:"metadata"`
	VectorScore  float64        `json:"vector_score"`
	LexicalScore float64        `json:"lexical_score"`
	TotalScore   float64        `json:"total_score"`
}
