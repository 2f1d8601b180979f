package models

import (
	"time"

	"github.com/google/uuid"
)

// Availability states for a consultant.
const (
	AvailabilityAvailable    = "AVAILABLE"
	AvailabilityInterviewing = "INTERVIEWING"
	AvailabilityAssigned     = "ASSIGNED"
	AvailabilityUnavailable  = "UNAVAILABLE"
)

// Consultant is a bench consultant. All consultants are tenant-partitioned.
type Consultant struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	FirstName    string    `json:"first_name"`
	LastName     string    `json:"last_name"`
	Email        *string   `json:"email,omitempty"`
	Phone        *string   `json:"phone,omitempty"`
	Location     *string   `json:"location,omitempty"`
	Availability string    `json:"availability"`
	Rate         *float64  `json:"rate,omitempty"`
	Experience   *float64  `json:"experience,omitempty"` // years
	Summary      *string   `json:"summary,omitempty"`
	Skills       []WeightedSkill `json:"skills,omitempty"`
	Tags         []string  `json:"tags,omitempty"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Identity signature kinds used for duplicate detection.
const (
	SignatureKindEmail   = "EMAIL"
	SignatureKindPhone   = "PHONE"
	SignatureKindNameLoc = "NAME_LOC"
)

// IdentitySignature is a normalised attribute of a consultant used to detect
// duplicate identities across documents. Unique per (tenant_id, kind, value).
type IdentitySignature struct {
	ID           uuid.UUID `json:"id"`
	TenantID     uuid.UUID `json:"tenant_id"`
	ConsultantID uuid.UUID `json:"consultant_id"`
	Kind         string    `json:"kind"`
	Value        string    `json:"value"`
	CreatedAt    time.Time `json:"created_at"`
}

// Identity cluster statuses.
const (
	ClusterStatusPending  = "PENDING"
	ClusterStatusResolved = "RESOLVED"
	ClusterStatusIgnored  = "IGNORED"
)

// IdentityCluster is the transitive closure of consultants sharing at least
// one identity signature. Surfaced to operators as duplicate candidates.
type IdentityCluster struct {
	Members []uuid.UUID `json:"members"`
	Status  string      `json:"status"`
}

// DuplicateCandidates is the dedupe surface returned to operators.
type DuplicateCandidates struct {
	Clusters        []IdentityCluster `json:"clusters"`
	PendingClusters int               `json:"pending_clusters"`
}

// Resume is the normalised payload extracted from one resume document for a
// consultant. Unique per (tenant_id, consultant_id, file_key).
type Resume struct {
	ID           uuid.UUID      `json:"id"`
	TenantID     uuid.UUID      `json:"tenant_id"`
	ConsultantID uuid.UUID      `json:"consultant_id"`
	FileKey      string         `json:"file_key"`
	Summary      string         `json:"summary"`
	Payload      map[string]any `json:"payload"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
}
