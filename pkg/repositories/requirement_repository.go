package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// RequirementRepository provides data access for requirements and their skill edges.
type RequirementRepository interface {
	Create(ctx context.Context, requirement *models.Requirement) error
	Update(ctx context.Context, requirement *models.Requirement) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Requirement, error)
	// FindByTitleClient matches (title, client_name) case-insensitively.
	FindByTitleClient(ctx context.Context, title, clientName string) (*models.Requirement, error)
	SetSkills(ctx context.Context, requirementID uuid.UUID, skills []models.WeightedSkill) error
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

type requirementRepository struct{}

// NewRequirementRepository creates a new RequirementRepository.
func NewRequirementRepository() RequirementRepository {
	return &requirementRepository{}
}

var _ RequirementRepository = (*requirementRepository)(nil)

const requirementColumns = `id, tenant_id, title, client_name, description, location, type,
	status, source, min_rate, max_rate, posted_at, closes_at, created_at, updated_at`

func (r *requirementRepository) Create(ctx context.Context, requirement *models.Requirement) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if requirement.ID == uuid.Nil {
		requirement.ID = uuid.New()
	}
	requirement.TenantID = scope.TenantID
	now := time.Now()
	requirement.CreatedAt = now
	requirement.UpdatedAt = now
	if requirement.Status == "" {
		requirement.Status = models.RequirementStatusOpen
	}
	if requirement.PostedAt.IsZero() {
		requirement.PostedAt = now
	}

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO engine_requirements (
			id, tenant_id, title, client_name, description, location, type,
			status, source, min_rate, max_rate, posted_at, closes_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)`,
		requirement.ID, requirement.TenantID, requirement.Title, requirement.ClientName,
		requirement.Description, requirement.Location, requirement.Type, requirement.Status,
		requirement.Source, requirement.MinRate, requirement.MaxRate, requirement.PostedAt,
		requirement.ClosesAt, requirement.CreatedAt, requirement.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create requirement: %w", err)
	}

	if len(requirement.Skills) > 0 {
		return r.SetSkills(ctx, requirement.ID, requirement.Skills)
	}
	return nil
}

func (r *requirementRepository) Update(ctx context.Context, requirement *models.Requirement) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	requirement.UpdatedAt = time.Now()

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE engine_requirements
		SET title = $3, client_name = $4, description = $5, location = $6, type = $7,
		    status = $8, source = $9, min_rate = $10, max_rate = $11, posted_at = $12,
		    closes_at = $13, updated_at = $14
		WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID, requirement.ID, requirement.Title, requirement.ClientName,
		requirement.Description, requirement.Location, requirement.Type, requirement.Status,
		requirement.Source, requirement.MinRate, requirement.MaxRate, requirement.PostedAt,
		requirement.ClosesAt, requirement.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update requirement: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *requirementRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Requirement, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	row := scope.Conn.QueryRow(ctx,
		`SELECT `+requirementColumns+` FROM engine_requirements WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID, id,
	)
	requirement, err := scanRequirement(row)
	if err != nil {
		return nil, err
	}

	skills, err := r.loadSkills(ctx, requirement.ID)
	if err != nil {
		return nil, err
	}
	requirement.Skills = skills
	return requirement, nil
}

func (r *requirementRepository) FindByTitleClient(ctx context.Context, title, clientName string) (*models.Requirement, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	row := scope.Conn.QueryRow(ctx,
		`SELECT `+requirementColumns+` FROM engine_requirements
		 WHERE tenant_id = $1 AND lower(title) = lower($2) AND lower(client_name) = lower($3)
		 LIMIT 1`,
		scope.TenantID, title, clientName,
	)
	return scanRequirement(row)
}

func (r *requirementRepository) SetSkills(ctx context.Context, requirementID uuid.UUID, skills []models.WeightedSkill) error {
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
		`DELETE FROM engine_requirement_skills
		 WHERE requirement_id = $1
		   AND requirement_id IN (SELECT id FROM engine_requirements WHERE tenant_id = $2)`,
		requirementID, scope.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear requirement skills: %w", err)
	}

	for _, skill := range skills {
		_, err = tx.Exec(ctx,
			`INSERT INTO engine_requirement_skills (requirement_id, skill_id, weight)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (requirement_id, skill_id) DO UPDATE SET weight = EXCLUDED.weight`,
			requirementID, skill.SkillID, skill.Weight,
		)
		if err != nil {
			return fmt.Errorf("failed to set requirement skill: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit requirement skills: %w", err)
	}
	return nil
}

func (r *requirementRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT id FROM engine_requirements WHERE tenant_id = $1`, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requirement ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan requirement id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *requirementRepository) loadSkills(ctx context.Context, requirementID uuid.UUID) ([]models.WeightedSkill, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT rs.skill_id, s.name, rs.weight
		FROM engine_requirement_skills rs
		JOIN engine_skills s ON s.id = rs.skill_id
		WHERE rs.requirement_id = $1`,
		requirementID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load requirement skills: %w", err)
	}
	defer rows.Close()

	var skills []models.WeightedSkill
	for rows.Next() {
		var skill models.WeightedSkill
		if err := rows.Scan(&skill.SkillID, &skill.Name, &skill.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan requirement skill: %w", err)
		}
		skills = append(skills, skill)
	}
	return skills, rows.Err()
}

func scanRequirement(row pgx.Row) (*models.Requirement, error) {
	var requirement models.Requirement
	err := row.Scan(
		&requirement.ID, &requirement.TenantID, &requirement.Title, &requirement.ClientName,
		&requirement.Description, &requirement.Location, &requirement.Type, &requirement.Status,
		&requirement.Source, &requirement.MinRate, &requirement.MaxRate, &requirement.PostedAt,
		&requirement.ClosesAt, &requirement.CreatedAt, &requirement.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan requirement: %w", err)
	}
	return &requirement, nil
}
