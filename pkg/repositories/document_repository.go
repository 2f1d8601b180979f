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

// DocumentRepository provides data access for document assets, their
// ingestion metadata, and normalised resumes.
type DocumentRepository interface {
	// CreateAssetWithMetadata inserts the asset and its metadata row in one
	// transaction so a crash cannot leave an asset without hashes.
	CreateAssetWithMetadata(ctx context.Context, asset *models.DocumentAsset, metadata *models.DocumentMetadata) error
	GetAsset(ctx context.Context, id uuid.UUID) (*models.DocumentAsset, error)
	ListAssets(ctx context.Context, kind string, limit int) ([]*models.DocumentAsset, error)
	// GetMetadataBySHA256 is the content-hash dedupe lookup.
	GetMetadataBySHA256(ctx context.Context, sha256 string) (*models.DocumentMetadata, error)
	GetMetadata(ctx context.Context, documentID uuid.UUID) (*models.DocumentMetadata, error)
	UpdateMetadata(ctx context.Context, metadata *models.DocumentMetadata) error
	UpsertResume(ctx context.Context, resume *models.Resume) error
	GetResume(ctx context.Context, consultantID uuid.UUID, fileKey string) (*models.Resume, error)
}

type documentRepository struct{}

// NewDocumentRepository creates a new DocumentRepository.
func NewDocumentRepository() DocumentRepository {
	return &documentRepository{}
}

var _ DocumentRepository = (*documentRepository)(nil)

const assetColumns = `id, tenant_id, kind, file_name, content_type, size_bytes,
	storage_key, consultant_id, requirement_id, created_at`

func (r *documentRepository) CreateAssetWithMetadata(ctx context.Context, asset *models.DocumentAsset, metadata *models.DocumentMetadata) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if asset.ID == uuid.Nil {
		asset.ID = uuid.New()
	}
	asset.TenantID = scope.TenantID
	asset.CreatedAt = time.Now()

	metadata.DocumentID = asset.ID
	metadata.TenantID = scope.TenantID
	if metadata.IngestionStatus == "" {
		metadata.IngestionStatus = models.DocIngestionPending
	}
	if metadata.PIIStatus == "" {
		metadata.PIIStatus = models.PIIStatusUnknown
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	_, err = tx.Exec(ctx, `
		INSERT INTO engine_document_assets (
			id, tenant_id, kind, file_name, content_type, size_bytes,
			storage_key, consultant_id, requirement_id, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		asset.ID, asset.TenantID, asset.Kind, asset.FileName, asset.ContentType,
		asset.SizeBytes, asset.StorageKey, asset.ConsultantID, asset.RequirementID,
		asset.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document asset: %w", err)
	}

	summaryJSON, err := marshalPIISummary(metadata.PIISummary)
	if err != nil {
		return err
	}

	_, err = tx.Exec(ctx, `
		INSERT INTO engine_document_metadata (
			document_id, tenant_id, sha256, sha1, md5, ingestion_status, pii_status,
			pii_summary, page_count, text_byte_size, ingestion_latency_ms,
			extracted_at, last_redaction_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		metadata.DocumentID, metadata.TenantID, metadata.SHA256, metadata.SHA1,
		metadata.MD5, metadata.IngestionStatus, metadata.PIIStatus, summaryJSON,
		metadata.PageCount, metadata.TextByteSize, metadata.IngestionLatencyMs,
		metadata.ExtractedAt, metadata.LastRedactionAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create document metadata: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit document asset: %w", err)
	}
	return nil
}

func (r *documentRepository) GetAsset(ctx context.Context, id uuid.UUID) (*models.DocumentAsset, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	row := scope.Conn.QueryRow(ctx,
		`SELECT `+assetColumns+` FROM engine_document_assets WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID, id,
	)
	return scanAsset(row)
}

func (r *documentRepository) ListAssets(ctx context.Context, kind string, limit int) ([]*models.DocumentAsset, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}
	if limit <= 0 {
		limit = 100
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT `+assetColumns+` FROM engine_document_assets
		 WHERE tenant_id = $1 AND ($2 = '' OR kind = $2)
		 ORDER BY created_at DESC LIMIT $3`,
		scope.TenantID, kind, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list document assets: %w", err)
	}
	defer rows.Close()

	var assets []*models.DocumentAsset
	for rows.Next() {
		asset, err := scanAsset(rows)
		if err != nil {
			return nil, err
		}
		assets = append(assets, asset)
	}
	return assets, rows.Err()
}

func (r *documentRepository) GetMetadataBySHA256(ctx context.Context, sha256 string) (*models.DocumentMetadata, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	row := scope.Conn.QueryRow(ctx,
		metadataSelect+` WHERE tenant_id = $1 AND sha256 = $2`,
		scope.TenantID, sha256,
	)
	return scanMetadata(row)
}

func (r *documentRepository) GetMetadata(ctx context.Context, documentID uuid.UUID) (*models.DocumentMetadata, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	row := scope.Conn.QueryRow(ctx,
		metadataSelect+` WHERE tenant_id = $1 AND document_id = $2`,
		scope.TenantID, documentID,
	)
	return scanMetadata(row)
}

func (r *documentRepository) UpdateMetadata(ctx context.Context, metadata *models.DocumentMetadata) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	summaryJSON, err := marshalPIISummary(metadata.PIISummary)
	if err != nil {
		return err
	}

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE engine_document_metadata
		SET ingestion_status = $3, pii_status = $4, pii_summary = $5, page_count = $6,
		    text_byte_size = $7, ingestion_latency_ms = $8, extracted_at = $9,
		    last_redaction_at = $10
		WHERE tenant_id = $1 AND document_id = $2`,
		scope.TenantID, metadata.DocumentID, metadata.IngestionStatus, metadata.PIIStatus,
		summaryJSON, metadata.PageCount, metadata.TextByteSize, metadata.IngestionLatencyMs,
		metadata.ExtractedAt, metadata.LastRedactionAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update document metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *documentRepository) UpsertResume(ctx context.Context, resume *models.Resume) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if resume.ID == uuid.Nil {
		resume.ID = uuid.New()
	}
	resume.TenantID = scope.TenantID
	now := time.Now()
	resume.UpdatedAt = now
	if resume.CreatedAt.IsZero() {
		resume.CreatedAt = now
	}
	if resume.Payload == nil {
		resume.Payload = map[string]any{}
	}

	payloadJSON, err := json.Marshal(resume.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal resume payload: %w", err)
	}

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO engine_resumes (id, tenant_id, consultant_id, file_key, summary, payload, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (tenant_id, consultant_id, file_key)
		DO UPDATE SET summary = EXCLUDED.summary,
		              payload = EXCLUDED.payload,
		              updated_at = EXCLUDED.updated_at`,
		resume.ID, resume.TenantID, resume.ConsultantID, resume.FileKey,
		resume.Summary, payloadJSON, resume.CreatedAt, resume.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert resume: %w", err)
	}
	return nil
}

func (r *documentRepository) GetResume(ctx context.Context, consultantID uuid.UUID, fileKey string) (*models.Resume, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	var resume models.Resume
	var payloadJSON []byte
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, tenant_id, consultant_id, file_key, summary, payload, created_at, updated_at
		FROM engine_resumes
		WHERE tenant_id = $1 AND consultant_id = $2 AND file_key = $3`,
		scope.TenantID, consultantID, fileKey,
	).Scan(&resume.ID, &resume.TenantID, &resume.ConsultantID, &resume.FileKey,
		&resume.Summary, &payloadJSON, &resume.CreatedAt, &resume.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load resume: %w", err)
	}
	if len(payloadJSON) > 0 {
		if err := json.Unmarshal(payloadJSON, &resume.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal resume payload: %w", err)
		}
	}
	return &resume, nil
}

const metadataSelect = `
	SELECT document_id, tenant_id, sha256, sha1, md5, ingestion_status, pii_status,
	       pii_summary, page_count, text_byte_size, ingestion_latency_ms,
	       extracted_at, last_redaction_at
	FROM engine_document_metadata`

func marshalPIISummary(summary *models.PIISummary) ([]byte, error) {
	if summary == nil {
		return nil, nil
	}
	raw, err := json.Marshal(summary)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal pii summary: %w", err)
	}
	return raw, nil
}

func scanAsset(row pgx.Row) (*models.DocumentAsset, error) {
	var asset models.DocumentAsset
	err := row.Scan(
		&asset.ID, &asset.TenantID, &asset.Kind, &asset.FileName, &asset.ContentType,
		&asset.SizeBytes, &asset.StorageKey, &asset.ConsultantID, &asset.RequirementID,
		&asset.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan document asset: %w", err)
	}
	return &asset, nil
}

func scanMetadata(row pgx.Row) (*models.DocumentMetadata, error) {
	var metadata models.DocumentMetadata
	var summaryJSON []byte
	err := row.Scan(
		&metadata.DocumentID, &metadata.TenantID, &metadata.SHA256, &metadata.SHA1,
		&metadata.MD5, &metadata.IngestionStatus, &metadata.PIIStatus, &summaryJSON,
		&metadata.PageCount, &metadata.TextByteSize, &metadata.IngestionLatencyMs,
		&metadata.ExtractedAt, &metadata.LastRedactionAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan document metadata: %w", err)
	}
	if len(summaryJSON) > 0 {
		metadata.PIISummary = &models.PIISummary{}
		if err := json.Unmarshal(summaryJSON, metadata.PIISummary); err != nil {
			return nil, fmt.Errorf("failed to unmarshal pii summary: %w", err)
		}
	}
	return &metadata, nil
}
