package repositories

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// IdentityRepository stores normalised identity signatures used for duplicate
// detection across documents.
type IdentityRepository interface {
	// ReplaceForConsultant rewrites the consultant's signature set in one
	// transaction. A consultant has at most one signature per kind.
	ReplaceForConsultant(ctx context.Context, consultantID uuid.UUID, signatures []*models.IdentitySignature) error
	// ListByTenant returns all signatures for the scoped tenant, for clustering.
	ListByTenant(ctx context.Context) ([]*models.IdentitySignature, error)
}

type identityRepository struct{}

// NewIdentityRepository creates a new IdentityRepository.
func NewIdentityRepository() IdentityRepository {
	return &identityRepository{}
}

var _ IdentityRepository = (*identityRepository)(nil)

func (r *identityRepository) ReplaceForConsultant(ctx context.Context, consultantID uuid.UUID, signatures []*models.IdentitySignature) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	_, err = tx.Exec(ctx,
		`DELETE FROM engine_identity_signatures WHERE tenant_id = $1 AND consultant_id = $2`,
		scope.TenantID, consultantID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear identity signatures: %w", err)
	}

	now := time.Now()
	for _, signature := range signatures {
		if signature.ID == uuid.Nil {
			signature.ID = uuid.New()
		}
		signature.TenantID = scope.TenantID
		signature.ConsultantID = consultantID
		signature.CreatedAt = now

		_, err = tx.Exec(ctx, `
			INSERT INTO engine_identity_signatures (id, tenant_id, consultant_id, kind, value, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (tenant_id, consultant_id, kind) DO UPDATE SET value = EXCLUDED.value`,
			signature.ID, signature.TenantID, signature.ConsultantID,
			signature.Kind, signature.Value, signature.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store identity signature: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit identity signatures: %w", err)
	}
	return nil
}

func (r *identityRepository) ListByTenant(ctx context.Context) ([]*models.IdentitySignature, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, tenant_id, consultant_id, kind, value, created_at
		FROM engine_identity_signatures WHERE tenant_id = $1
		ORDER BY kind, value`,
		scope.TenantID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list identity signatures: %w", err)
	}
	defer rows.Close()

	var signatures []*models.IdentitySignature
	for rows.Next() {
		var signature models.IdentitySignature
		if err := rows.Scan(
			&signature.ID, &signature.TenantID, &signature.ConsultantID,
			&signature.Kind, &signature.Value, &signature.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan identity signature: %w", err)
		}
		signatures = append(signatures, &signature)
	}
	return signatures, rows.Err()
}
