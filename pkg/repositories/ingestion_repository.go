package repositories

import (
	"context"
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

// IngestionRepository records raw requirement ingress and its processing state.
type IngestionRepository interface {
	// Create inserts a new ingestion record. Returns apperrors.ErrConflict if
	// the tenant already has a record with the same content hash.
	Create(ctx context.Context, ingestion *models.RequirementIngestion) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.RequirementIngestion, error)
	GetByHash(ctx context.Context, contentHash string) (*models.RequirementIngestion, error)
	MarkProcessed(ctx context.Context, id uuid.UUID, parsedData map[string]any, latencyMs int64) error
	// MarkFailed flips the record to FAILED and increments retry_count.
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

type ingestionRepository struct{}

// NewIngestionRepository creates a new IngestionRepository.
func NewIngestionRepository() IngestionRepository {
	return &ingestionRepository{}
}

var _ IngestionRepository = (*ingestionRepository)(nil)

const ingestionColumns = `id, tenant_id, source, raw_content, content_hash,
	parsed_data, status, retry_count, processed_at, latency_ms, created_at`

func (r *ingestionRepository) Create(ctx context.Context, ingestion *models.RequirementIngestion) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if ingestion.ID == uuid.Nil {
		ingestion.ID = uuid.New()
	}
	ingestion.TenantID = scope.TenantID
	ingestion.CreatedAt = time.Now()
	if ingestion.Status == "" {
		ingestion.Status = models.IngestionStatusPending
	}

	tag, err := scope.Conn.Exec(ctx, `
		INSERT INTO engine_requirement_ingestions (
			id, tenant_id, source, raw_content, content_hash, status, retry_count, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, content_hash) DO NOTHING`,
		ingestion.ID, ingestion.TenantID, ingestion.Source, ingestion.RawContent,
		ingestion.ContentHash, ingestion.Status, ingestion.RetryCount, ingestion.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create requirement ingestion: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrConflict
	}
	return nil
}

func (r *ingestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RequirementIngestion, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	row := scope.Conn.QueryRow(ctx,
		`SELECT `+ingestionColumns+` FROM engine_requirement_ingestions
		 WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID, id,
	)
	return scanIngestion(row)
}

func (r *ingestionRepository) GetByHash(ctx context.Context, contentHash string) (*models.RequirementIngestion, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	row := scope.Conn.QueryRow(ctx,
		`SELECT `+ingestionColumns+` FROM engine_requirement_ingestions
		 WHERE tenant_id = $1 AND content_hash = $2`,
		scope.TenantID, contentHash,
	)
	return scanIngestion(row)
}

func (r *ingestionRepository) MarkProcessed(ctx context.Context, id uuid.UUID, parsedData map[string]any, latencyMs int64) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	var parsedJSON []byte
	if parsedData != nil {
		raw, err := json.Marshal(parsedData)
		if err != nil {
			return fmt.Errorf("failed to marshal parsed data: %w", err)
		}
		parsedJSON = raw
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE engine_requirement_ingestions
		SET status = $3, parsed_data = $4, processed_at = $5, latency_ms = $6
		WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID, id, models.IngestionStatusProcessed, parsedJSON,
		time.Now(), latencyMs,
	)
	if err != nil {
		return fmt.Errorf("failed to mark ingestion processed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *ingestionRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE engine_requirement_ingestions
		SET status = $3, retry_count = retry_count + 1
		WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID, id, models.IngestionStatusFailed,
	)
	if err != nil {
		return fmt.Errorf("failed to mark ingestion failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func scanIngestion(row pgx.Row) (*models.RequirementIngestion, error) {
	var ingestion models.RequirementIngestion
	var parsedJSON []byte
	err := row.Scan(
		&ingestion.ID, &ingestion.TenantID, &ingestion.Source, &ingestion.RawContent,
		&ingestion.ContentHash, &parsedJSON, &ingestion.Status, &ingestion.RetryCount,
		&ingestion.ProcessedAt, &ingestion.LatencyMs, &ingestion.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan requirement ingestion: %w", err)
	}
	if len(parsedJSON) > 0 {
		if err := json.Unmarshal(parsedJSON, &ingestion.ParsedData); err != nil {
			return nil, fmt.Errorf("failed to unmarshal parsed data: %w", err)
		}
	}
	return &ingestion, nil
}
