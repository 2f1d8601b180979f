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

// AnalyticsRepository persists evaluation snapshots.
type AnalyticsRepository interface {
	InsertSnapshot(ctx context.Context, snapshot *models.AnalyticsSnapshot) error
	Latest(ctx context.Context) (*models.AnalyticsSnapshot, error)
	List(ctx context.Context, limit int) ([]*models.AnalyticsSnapshot, error)
}

type analyticsRepository struct{}

// NewAnalyticsRepository creates a new AnalyticsRepository.
func NewAnalyticsRepository() AnalyticsRepository {
	return &analyticsRepository{}
}

var _ AnalyticsRepository = (*analyticsRepository)(nil)

func (r *analyticsRepository) InsertSnapshot(ctx context.Context, snapshot *models.AnalyticsSnapshot) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	snapshot.TenantID = scope.TenantID
	snapshot.CreatedAt = time.Now()

	offlineJSON, err := json.Marshal(snapshot.Offline)
	if err != nil {
		return fmt.Errorf("failed to marshal offline metrics: %w", err)
	}
	onlineJSON, err := json.Marshal(snapshot.Online)
	if err != nil {
		return fmt.Errorf("failed to marshal online metrics: %w", err)
	}
	var deltaJSON []byte
	if snapshot.BaselineDelta != nil {
		deltaJSON, err = json.Marshal(snapshot.BaselineDelta)
		if err != nil {
			return fmt.Errorf("failed to marshal baseline delta: %w", err)
		}
	}

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO engine_analytics_snapshots (
			id, tenant_id, window_start, window_end, offline, online,
			baseline_delta, review_summary, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		snapshot.ID, snapshot.TenantID, snapshot.WindowStart, snapshot.WindowEnd,
		offlineJSON, onlineJSON, deltaJSON, snapshot.ReviewSummary, snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert analytics snapshot: %w", err)
	}
	return nil
}

func (r *analyticsRepository) Latest(ctx context.Context) (*models.AnalyticsSnapshot, error) {
	snapshots, err := r.List(ctx, 1)
	if err != nil {
		return nil, err
	}
	if len(snapshots) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return snapshots[0], nil
}

func (r *analyticsRepository) List(ctx context.Context, limit int) ([]*models.AnalyticsSnapshot, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}
	if limit <= 0 {
		limit = 20
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, tenant_id, window_start, window_end, offline, online,
		       baseline_delta, review_summary, created_at
		FROM engine_analytics_snapshots
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2`,
		scope.TenantID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list analytics snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.AnalyticsSnapshot
	for rows.Next() {
		snapshot, err := scanSnapshot(rows)
		if err != nil {
			return nil, err
		}
		snapshots = append(snapshots, snapshot)
	}
	return snapshots, rows.Err()
}

func scanSnapshot(row pgx.Row) (*models.AnalyticsSnapshot, error) {
	var snapshot models.AnalyticsSnapshot
	var offlineJSON, onlineJSON, deltaJSON []byte
	err := row.Scan(
		&snapshot.ID, &snapshot.TenantID, &snapshot.WindowStart, &snapshot.WindowEnd,
		&offlineJSON, &onlineJSON, &deltaJSON, &snapshot.ReviewSummary, &snapshot.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan analytics snapshot: %w", err)
	}
	if err := json.Unmarshal(offlineJSON, &snapshot.Offline); err != nil {
		return nil, fmt.Errorf("failed to unmarshal offline metrics: %w", err)
	}
	if err := json.Unmarshal(onlineJSON, &snapshot.Online); err != nil {
		return nil, fmt.Errorf("failed to unmarshal online metrics: %w", err)
	}
	if len(deltaJSON) > 0 {
		snapshot.BaselineDelta = &models.BaselineDelta{}
		if err := json.Unmarshal(deltaJSON, snapshot.BaselineDelta); err != nil {
			return nil, fmt.Errorf("failed to unmarshal baseline delta: %w", err)
		}
	}
	return &snapshot, nil
}
