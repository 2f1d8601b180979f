package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// SkillRepository provides data access for the global skill catalogue and the
// versioned ontology behind it. Ontology tables are global, not tenant-scoped,
// but callers still go through a tenant scope for the connection.
type SkillRepository interface {
	CreateOntologyVersion(ctx context.Context, version *models.OntologyVersion) error
	// ActivateVersion marks one version active and deactivates the rest.
	ActivateVersion(ctx context.Context, versionID uuid.UUID) error
	GetActiveVersion(ctx context.Context) (*models.OntologyVersion, error)
	CreateNode(ctx context.Context, node *models.OntologyNode) error
	CreateAlias(ctx context.Context, alias *models.OntologyAlias) error
	// ResolveAlias maps a surface form to its ontology node within the active
	// version. Lookup is case-insensitive.
	ResolveAlias(ctx context.Context, value string) (*models.OntologyNode, error)
	EnsureSkill(ctx context.Context, name string) (*models.Skill, error)
	GetSkillsByNames(ctx context.Context, names []string) ([]*models.Skill, error)
	ListSkills(ctx context.Context) ([]*models.Skill, error)
}

type skillRepository struct{}

// NewSkillRepository creates a new SkillRepository.
func NewSkillRepository() SkillRepository {
	return &skillRepository{}
}

var _ SkillRepository = (*skillRepository)(nil)

func (r *skillRepository) CreateOntologyVersion(ctx context.Context, version *models.OntologyVersion) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if version.ID == uuid.Nil {
		version.ID = uuid.New()
	}
	now := time.Now()
	version.CreatedAt = now
	if version.PublishedAt.IsZero() {
		version.PublishedAt = now
	}

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO engine_ontology_versions (id, version, source, is_active, published_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		version.ID, version.Version, version.Source, version.IsActive,
		version.PublishedAt, version.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ontology version: %w", err)
	}
	return nil
}

func (r *skillRepository) ActivateVersion(ctx context.Context, versionID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	if _, err := tx.Exec(ctx,
		`UPDATE engine_ontology_versions SET is_active = false WHERE is_active`); err != nil {
		return fmt.Errorf("failed to deactivate ontology versions: %w", err)
	}

	tag, err := tx.Exec(ctx,
		`UPDATE engine_ontology_versions SET is_active = true WHERE id = $1`, versionID)
	if err != nil {
		return fmt.Errorf("failed to activate ontology version: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit ontology activation: %w", err)
	}
	return nil
}

func (r *skillRepository) GetActiveVersion(ctx context.Context) (*models.OntologyVersion, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	var version models.OntologyVersion
	err := scope.Conn.QueryRow(ctx, `
		SELECT id, version, source, is_active, published_at, created_at
		FROM engine_ontology_versions WHERE is_active LIMIT 1`,
	).Scan(&version.ID, &version.Version, &version.Source, &version.IsActive,
		&version.PublishedAt, &version.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to load active ontology version: %w", err)
	}
	return &version, nil
}

func (r *skillRepository) CreateNode(ctx context.Context, node *models.OntologyNode) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if node.ID == uuid.Nil {
		node.ID = uuid.New()
	}
	node.CreatedAt = time.Now()
	if node.Tags == nil {
		node.Tags = []string{}
	}

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO engine_ontology_nodes (id, version_id, canonical_name, code, category, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		node.ID, node.VersionID, node.CanonicalName, node.Code, node.Category,
		node.Tags, node.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create ontology node: %w", err)
	}
	return nil
}

func (r *skillRepository) CreateAlias(ctx context.Context, alias *models.OntologyAlias) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if alias.ID == uuid.Nil {
		alias.ID = uuid.New()
	}
	if alias.MatchType == "" {
		alias.MatchType = models.AliasMatchExact
	}
	alias.Value = strings.ToLower(alias.Value)

	_, err := scope.Conn.Exec(ctx, `
		INSERT INTO engine_ontology_aliases (id, node_id, value, locale, match_type, confidence)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (node_id, value) DO UPDATE SET match_type = EXCLUDED.match_type,
		                                           confidence = EXCLUDED.confidence`,
		alias.ID, alias.NodeID, alias.Value, alias.Locale, alias.MatchType, alias.Confidence,
	)
	if err != nil {
		return fmt.Errorf("failed to create ontology alias: %w", err)
	}
	return nil
}

func (r *skillRepository) ResolveAlias(ctx context.Context, value string) (*models.OntologyNode, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	var node models.OntologyNode
	err := scope.Conn.QueryRow(ctx, `
		SELECT n.id, n.version_id, n.canonical_name, n.code, n.category, n.tags, n.created_at
		FROM engine_ontology_aliases a
		JOIN engine_ontology_nodes n ON n.id = a.node_id
		JOIN engine_ontology_versions v ON v.id = n.version_id
		WHERE v.is_active AND a.value = lower($1)
		LIMIT 1`,
		value,
	).Scan(&node.ID, &node.VersionID, &node.CanonicalName, &node.Code,
		&node.Category, &node.Tags, &node.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve ontology alias: %w", err)
	}
	return &node, nil
}

func (r *skillRepository) EnsureSkill(ctx context.Context, name string) (*models.Skill, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	var skill models.Skill
	err := scope.Conn.QueryRow(ctx, `
		INSERT INTO engine_skills (id, name, created_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		RETURNING id, name, category, ontology_node_id, created_at`,
		uuid.New(), name, time.Now(),
	).Scan(&skill.ID, &skill.Name, &skill.Category, &skill.OntologyNodeID, &skill.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to ensure skill: %w", err)
	}
	return &skill, nil
}

func (r *skillRepository) GetSkillsByNames(ctx context.Context, names []string) ([]*models.Skill, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}
	if len(names) == 0 {
		return nil, nil
	}

	lowered := make([]string, len(names))
	for i, name := range names {
		lowered[i] = strings.ToLower(name)
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, name, category, ontology_node_id, created_at
		FROM engine_skills WHERE lower(name) = ANY($1)`,
		lowered,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query skills by name: %w", err)
	}
	defer rows.Close()

	return scanSkills(rows)
}

func (r *skillRepository) ListSkills(ctx context.Context) ([]*models.Skill, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, name, category, ontology_node_id, created_at
		FROM engine_skills ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list skills: %w", err)
	}
	defer rows.Close()

	return scanSkills(rows)
}

func scanSkills(rows pgx.Rows) ([]*models.Skill, error) {
	var skills []*models.Skill
	for rows.Next() {
		var skill models.Skill
		if err := rows.Scan(&skill.ID, &skill.Name, &skill.Category,
			&skill.OntologyNodeID, &skill.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan skill: %w", err)
		}
		skills = append(skills, &skill)
	}
	return skills, rows.Err()
}
