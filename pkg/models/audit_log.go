package models

import (
	"time"

	"github.com/google/uuid"
)

// Audit result codes.
const (
	AuditResultSuccess = "SUCCESS"
	AuditResultFailure = "FAILURE"
)

// Audit actions recorded by the engine.
const (
	AuditActionResumeIngested      = "resume.ingested"
	AuditActionResumeDuplicate     = "resume.duplicate"
	AuditActionRequirementIngested = "requirement.ingested"
	AuditActionEntityIndexed       = "entity.indexed"
	AuditActionMatchComputed       = "match.computed"
	AuditActionFeedbackRecorded    = "feedback.recorded"
	AuditActionEvaluationRun       = "evaluation.run"
	AuditActionErasure             = "compliance.erasure"
)

// AuditLogEntry is one append-only, hash-chained audit record.
// For a fixed tenant, hash = SHA256(canonical JSON of the entry fields plus
// prev_hash), and prev_hash is the hash of the immediately preceding entry
// (null for the first). Replaying entries in created_at order recomputes
// every hash exactly; any tampering is detectable.
type AuditLogEntry struct {
	ID         uuid.UUID  `json:"id"`
	TenantID   uuid.UUID  `json:"tenant_id"`
	UserID     *uuid.UUID `json:"user_id,omitempty"`
	ActorRole  *string    `json:"actor_role,omitempty"`
	Action     string     `json:"action"`
	EntityType string     `json:"entity_type"`
	EntityID   *uuid.UUID `json:"entity_id,omitempty"`
	Payload    []byte     `json:"payload,omitempty"` // sanitised, truncated JSON
	ResultCode string     `json:"result_code"`
	IP         *string    `json:"ip,omitempty"`
	UserAgent  *string    `json:"user_agent,omitempty"`
	PrevHash   *string    `json:"prev_hash,omitempty"`
	Hash       string     `json:"hash"`
	CreatedAt  time.Time  `json:"created_at"`
}
