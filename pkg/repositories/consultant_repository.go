package repositories

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// ConsultantRepository provides data access for consultants and their skill edges.
type ConsultantRepository interface {
	Create(ctx context.Context, consultant *models.Consultant) error
	Update(ctx context.Context, consultant *models.Consultant) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Consultant, error)
	GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Consultant, error)
	FindByEmail(ctx context.Context, email string) (*models.Consultant, error)
	FindByPhone(ctx context.Context, phone string) (*models.Consultant, error)
	SetSkills(ctx context.Context, consultantID uuid.UUID, skills []models.WeightedSkill) error
	ListIDs(ctx context.Context) ([]uuid.UUID, error)
}

type consultantRepository struct{}

// NewConsultantRepository creates a new ConsultantRepository.
func NewConsultantRepository() ConsultantRepository {
	return &consultantRepository{}
}

var _ ConsultantRepository = (*consultantRepository)(nil)

var nonDigits = regexp.MustCompile(`\D`)

const consultantColumns = `id, tenant_id, first_name, last_name, email, phone, location,
	availability, rate, experience, summary, tags, created_at, updated_at`

func (r *consultantRepository) Create(ctx context.Context, consultant *models.Consultant) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if consultant.ID == uuid.Nil {
		consultant.ID = uuid.New()
	}
	consultant.TenantID = scope.TenantID
	now := time.Now()
	consultant.CreatedAt = now
	consultant.UpdatedAt = now
	if consultant.Availability == "" {
		consultant.Availability = models.AvailabilityAvailable
	}
	if consultant.Tags == nil {
		consultant.Tags = []string{}
	}

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO engine_consultants (
			id, tenant_id, first_name, last_name, email, phone, location,
			availability, rate, experience, summary, tags, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		consultant.ID, consultant.TenantID, consultant.FirstName, consultant.LastName,
		consultant.Email, consultant.Phone, consultant.Location, consultant.Availability,
		consultant.Rate, consultant.Experience, consultant.Summary, consultant.Tags,
		consultant.CreatedAt, consultant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create consultant: %w", err)
	}

	if len(consultant.Skills) > 0 {
		return r.SetSkills(ctx, consultant.ID, consultant.Skills)
	}
	return nil
}

func (r *consultantRepository) Update(ctx context.Context, consultant *models.Consultant) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	consultant.UpdatedAt = time.Now()

	tag, err := scope.Conn.Exec(ctx, `
		UPDATE engine_consultants
		SET first_name = $3, last_name = $4, email = $5, phone = $6, location = $7,
		    availability = $8, rate = $9, experience = $10, summary = $11, tags = $12,
		    updated_at = $13
		WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID, consultant.ID, consultant.FirstName, consultant.LastName,
		consultant.Email, consultant.Phone, consultant.Location, consultant.Availability,
		consultant.Rate, consultant.Experience, consultant.Summary, consultant.Tags,
		consultant.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to update consultant: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *consultantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Consultant, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	row := scope.Conn.QueryRow(ctx,
		`SELECT `+consultantColumns+` FROM engine_consultants WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID, id,
	)
	consultant, err := scanConsultant(row)
	if err != nil {
		return nil, err
	}

	skills, err := r.loadSkills(ctx, []uuid.UUID{id})
	if err != nil {
		return nil, err
	}
	consultant.Skills = skills[id]
	return consultant, nil
}

func (r *consultantRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Consultant, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}
	if len(ids) == 0 {
		return nil, nil
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT `+consultantColumns+` FROM engine_consultants WHERE tenant_id = $1 AND id = ANY($2)`,
		scope.TenantID, ids,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query consultants: %w", err)
	}
	defer rows.Close()

	var consultants []*models.Consultant
	for rows.Next() {
		consultant, err := scanConsultant(rows)
		if err != nil {
			return nil, err
		}
		consultants = append(consultants, consultant)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating consultants: %w", err)
	}

	skills, err := r.loadSkills(ctx, ids)
	if err != nil {
		return nil, err
	}
	for _, consultant := range consultants {
		consultant.Skills = skills[consultant.ID]
	}
	return consultants, nil
}

func (r *consultantRepository) FindByEmail(ctx context.Context, email string) (*models.Consultant, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	row := scope.Conn.QueryRow(ctx,
		`SELECT `+consultantColumns+` FROM engine_consultants
		 WHERE tenant_id = $1 AND lower(email) = lower($2) LIMIT 1`,
		scope.TenantID, email,
	)
	return scanConsultant(row)
}

func (r *consultantRepository) FindByPhone(ctx context.Context, phone string) (*models.Consultant, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	digits := nonDigits.ReplaceAllString(phone, "")
	if digits == "" {
		return nil, apperrors.ErrNotFound
	}

	row := scope.Conn.QueryRow(ctx,
		`SELECT `+consultantColumns+` FROM engine_consultants
		 WHERE tenant_id = $1 AND regexp_replace(coalesce(phone, ''), '\D', '', 'g') LIKE '%' || $2 || '%'
		 LIMIT 1`,
		scope.TenantID, digits,
	)
	return scanConsultant(row)
}

func (r *consultantRepository) SetSkills(ctx context.Context, consultantID uuid.UUID, skills []models.WeightedSkill) error {
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
		`DELETE FROM engine_consultant_skills
		 WHERE consultant_id = $1
		   AND consultant_id IN (SELECT id FROM engine_consultants WHERE tenant_id = $2)`,
		consultantID, scope.TenantID,
	)
	if err != nil {
		return fmt.Errorf("failed to clear consultant skills: %w", err)
	}

	for _, skill := range skills {
		_, err = tx.Exec(ctx,
			`INSERT INTO engine_consultant_skills (consultant_id, skill_id, weight)
			 VALUES ($1, $2, $3)
			 ON CONFLICT (consultant_id, skill_id) DO UPDATE SET weight = EXCLUDED.weight`,
			consultantID, skill.SkillID, skill.Weight,
		)
		if err != nil {
			return fmt.Errorf("failed to set consultant skill: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit consultant skills: %w", err)
	}
	return nil
}

func (r *consultantRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT id FROM engine_consultants WHERE tenant_id = $1`, scope.TenantID)
	if err != nil {
		return nil, fmt.Errorf("failed to list consultant ids: %w", err)
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan consultant id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *consultantRepository) loadSkills(ctx context.Context, consultantIDs []uuid.UUID) (map[uuid.UUID][]models.WeightedSkill, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT cs.consultant_id, cs.skill_id, s.name, cs.weight
		FROM engine_consultant_skills cs
		JOIN engine_skills s ON s.id = cs.skill_id
		JOIN engine_consultants c ON c.id = cs.consultant_id
		WHERE c.tenant_id = $1 AND cs.consultant_id = ANY($2)`,
		scope.TenantID, consultantIDs,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load consultant skills: %w", err)
	}
	defer rows.Close()

	skills := make(map[uuid.UUID][]models.WeightedSkill)
	for rows.Next() {
		var consultantID uuid.UUID
		var skill models.WeightedSkill
		if err := rows.Scan(&consultantID, &skill.SkillID, &skill.Name, &skill.Weight); err != nil {
			return nil, fmt.Errorf("failed to scan consultant skill: %w", err)
		}
		skills[consultantID] = append(skills[consultantID], skill)
	}
	return skills, rows.Err()
}

func scanConsultant(row pgx.Row) (*models.Consultant, error) {
	var consultant models.Consultant
	err := row.Scan(
		&consultant.ID, &consultant.TenantID, &consultant.FirstName, &consultant.LastName,
		&consultant.Email, &consultant.Phone, &consultant.Location, &consultant.Availability,
		&consultant.Rate, &consultant.Experience, &consultant.Summary, &consultant.Tags,
		&consultant.CreatedAt, &consultant.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan consultant: %w", err)
	}
	return &consultant, nil
}
