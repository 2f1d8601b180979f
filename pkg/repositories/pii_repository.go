package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// PIIRepository stores encrypted originals behind minted redaction tokens.
type PIIRepository interface {
	// PutBatch inserts vault entries in one transaction. Re-minted tokens are
	// rejected; tokens are random enough that a collision means a bug.
	PutBatch(ctx context.Context, entries []*models.PIIVaultEntry) error
	Get(ctx context.Context, token string) (*models.PIIVaultEntry, error)
}

type piiRepository struct{}

// NewPIIRepository creates a new PIIRepository.
func NewPIIRepository() PIIRepository {
	return &piiRepository{}
}

var _ PIIRepository = (*piiRepository)(nil)

func (r *piiRepository) PutBatch(ctx context.Context, entries []*models.PIIVaultEntry) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}
	if len(entries) == 0 {
		return nil
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	now := time.Now()
	for _, entry := range entries {
		entry.CreatedAt = now
		_, err = tx.Exec(ctx, `
			INSERT INTO engine_pii_vault (token, tenant_id, type, ciphertext, created_at)
			VALUES ($1, $2, $3, $4, $5)`,
			entry.Token, scope.TenantID, entry.Type, entry.Ciphertext, entry.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to store pii vault entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit pii vault entries: %w", err)
	}
	return nil
}

func (r *piiRepository) Get(ctx context.Context, token string) (*models.PIIVaultEntry, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	var entry models.PIIVaultEntry
	err := scope.Conn.QueryRow(ctx, `
		SELECT token, type, ciphertext, created_at
		FROM engine_pii_vault WHERE tenant_id = $1 AND token = $2`,
		scope.TenantID, token,
	).Scan(&entry.Token, &entry.Type, &entry.Ciphertext, &entry.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load pii vault entry: %w", err)
	}
	return &entry, nil
}
