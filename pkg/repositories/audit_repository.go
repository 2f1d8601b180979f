package repositories

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// AuditRepository provides data access for the append-only hash-chained audit log.
type AuditRepository interface {
	// Record computes the chain hash for the entry and inserts it inside a
	// transaction. A tenant-level advisory lock serialises concurrent writers
	// so the chain cannot fork.
	Record(ctx context.Context, entry *models.AuditLogEntry) error

	// ListByTenant returns entries for the scoped tenant in created_at order
	// (oldest first), up to limit.
	ListByTenant(ctx context.Context, limit int) ([]*models.AuditLogEntry, error)

	// VerifyChain replays the tenant's chain and returns apperrors.ErrIntegrity
	// on the first entry whose hash or prev_hash does not recompute.
	VerifyChain(ctx context.Context) error
}

type auditRepository struct{}

// NewAuditRepository creates a new AuditRepository.
func NewAuditRepository() AuditRepository {
	return &auditRepository{}
}

var _ AuditRepository = (*auditRepository)(nil)

// chainDigest is the canonical structure hashed into the chain. Field order
// is fixed by the struct; changing it breaks verification of existing chains.
type chainDigest struct {
	PrevHash   *string `json:"prevHash"`
	TenantID   string  `json:"tenantId"`
	Action     string  `json:"action"`
	EntityType string  `json:"entityType"`
	EntityID   string  `json:"entityId"`
	Payload    string  `json:"payload"`
	ResultCode string  `json:"resultCode"`
	Timestamp  string  `json:"timestamp"`
}

func computeChainHash(entry *models.AuditLogEntry, prevHash *string) (string, error) {
	entityID := ""
	if entry.EntityID != nil {
		entityID = entry.EntityID.String()
	}
	digest := chainDigest{
		PrevHash:   prevHash,
		TenantID:   entry.TenantID.String(),
		Action:     entry.Action,
		EntityType: entry.EntityType,
		EntityID:   entityID,
		Payload:    string(entry.Payload),
		ResultCode: entry.ResultCode,
		Timestamp:  entry.CreatedAt.UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(digest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal chain digest: %w", err)
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:]), nil
}

func (r *auditRepository) Record(ctx context.Context, entry *models.AuditLogEntry) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if entry.ID == uuid.Nil {
		entry.ID = uuid.New()
	}
	entry.TenantID = scope.TenantID
	// Truncate to microseconds so the hashed timestamp survives the
	// round-trip through timestamptz and verification recomputes exactly.
	entry.CreatedAt = time.Now().UTC().Truncate(time.Microsecond)

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// Serialise SELECT latest + INSERT per tenant so concurrent writers
	// cannot fork the chain.
	_, err = tx.Exec(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", scope.TenantID.String())
	if err != nil {
		return fmt.Errorf("failed to acquire audit chain lock: %w", err)
	}

	var prevHash *string
	err = tx.QueryRow(ctx,
		`SELECT hash FROM engine_audit_log WHERE tenant_id = $1 ORDER BY created_at DESC, id DESC LIMIT 1`,
		scope.TenantID,
	).Scan(&prevHash)
	if err != nil && !errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("failed to load previous audit entry: %w", err)
	}

	hash, err := computeChainHash(entry, prevHash)
	if err != nil {
		return err
	}
	entry.PrevHash = prevHash
	entry.Hash = hash

	var payload []byte
	if len(entry.Payload) > 0 {
		payload = entry.Payload
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO engine_audit_log (
			id, tenant_id, user_id, actor_role, action, entity_type, entity_id,
			payload, result_code, ip, user_agent, prev_hash, hash, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		entry.ID, entry.TenantID, entry.UserID, entry.ActorRole, entry.Action,
		entry.EntityType, entry.EntityID, payload, entry.ResultCode,
		entry.IP, entry.UserAgent, entry.PrevHash, entry.Hash, entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log entry: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit audit log entry: %w", err)
	}

	return nil
}

func (r *auditRepository) ListByTenant(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}
	if limit <= 0 {
		limit = 1000
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, tenant_id, user_id, actor_role, action, entity_type, entity_id,
		       payload, result_code, ip, user_agent, prev_hash, hash, created_at
		FROM engine_audit_log
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC
		LIMIT $2`,
		scope.TenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var entries []*models.AuditLogEntry
	for rows.Next() {
		var entry models.AuditLogEntry
		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.UserID, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Payload,
			&entry.ResultCode, &entry.IP, &entry.UserAgent, &entry.PrevHash,
			&entry.Hash, &entry.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan audit log entry: %w", err)
		}
		entries = append(entries, &entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating audit log entries: %w", err)
	}

	return entries, nil
}

func (r *auditRepository) VerifyChain(ctx context.Context) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	// Streamed without a limit: verification must cover the entire chain, not
	// just a recent window.
	rows, err := scope.Conn.Query(ctx, `
		SELECT id, tenant_id, user_id, actor_role, action, entity_type, entity_id,
		       payload, result_code, ip, user_agent, prev_hash, hash, created_at
		FROM engine_audit_log
		WHERE tenant_id = $1
		ORDER BY created_at ASC, id ASC`,
		scope.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to query audit log: %w", err)
	}
	defer rows.Close()

	var prevHash *string
	for rows.Next() {
		var entry models.AuditLogEntry
		if err := rows.Scan(
			&entry.ID, &entry.TenantID, &entry.UserID, &entry.ActorRole,
			&entry.Action, &entry.EntityType, &entry.EntityID, &entry.Payload,
			&entry.ResultCode, &entry.IP, &entry.UserAgent, &entry.PrevHash,
			&entry.Hash, &entry.CreatedAt,
		); err != nil {
			return fmt.Errorf("failed to scan audit log entry: %w", err)
		}
		if err := verifyLink(&entry, prevHash); err != nil {
			return err
		}
		prevHash = &entry.Hash
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("error iterating audit log entries: %w", err)
	}

	return nil
}

// verifyLink checks one entry against its predecessor's hash: the stored
// prev_hash must match and the stored hash must recompute.
func verifyLink(entry *models.AuditLogEntry, prevHash *string) error {
	if (entry.PrevHash == nil) != (prevHash == nil) ||
		(entry.PrevHash != nil && prevHash != nil && *entry.PrevHash != *prevHash) {
		return fmt.Errorf("%w: broken prev_hash link at entry %s", apperrors.ErrIntegrity, entry.ID)
	}
	recomputed, err := computeChainHash(entry, entry.PrevHash)
	if err != nil {
		return err
	}
	if recomputed != entry.Hash {
		return fmt.Errorf("%w: hash mismatch at entry %s", apperrors.ErrIntegrity, entry.ID)
	}
	return nil
}
