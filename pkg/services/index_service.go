package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/ai"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

// IndexService maintains the hybrid search index. Indexing is explicit:
// after a consultant or requirement mutation the caller invokes IndexEntity.
type IndexService interface {
	IndexEntity(ctx context.Context, entityType string, entityID uuid.UUID) error
	// Reindex rebuilds the index for every entity of the requested type.
	// Returns the number of entities indexed.
	Reindex(ctx context.Context, entityType string) (int, error)
	RemoveEntity(ctx context.Context, entityType string, entityID uuid.UUID) error
}

type indexService struct {
	searchRepo      repositories.SearchRepository
	consultantRepo  repositories.ConsultantRepository
	requirementRepo repositories.RequirementRepository
	embedder        ai.Embedder
	logger          *zap.Logger
}

// NewIndexService creates a new IndexService.
func NewIndexService(
	searchRepo repositories.SearchRepository,
	consultantRepo repositories.ConsultantRepository,
	requirementRepo repositories.RequirementRepository,
	embedder ai.Embedder,
	logger *zap.Logger,
) IndexService {
	return &indexService{
		searchRepo:      searchRepo,
		consultantRepo:  consultantRepo,
		requirementRepo: requirementRepo,
		embedder:        embedder,
		logger:          logger.Named("index-service"),
	}
}

var _ IndexService = (*indexService)(nil)

func (s *indexService) IndexEntity(ctx context.Context, entityType string, entityID uuid.UUID) error {
	var doc *models.SearchDocument
	switch entityType {
	case models.EntityTypeConsultant:
		consultant, err := s.consultantRepo.GetByID(ctx, entityID)
		if err != nil {
			return fmt.Errorf("load consultant for indexing: %w", err)
		}
		doc = buildConsultantDocument(consultant)
	case models.EntityTypeRequirement:
		requirement, err := s.requirementRepo.GetByID(ctx, entityID)
		if err != nil {
			return fmt.Errorf("load requirement for indexing: %w", err)
		}
		doc = buildRequirementDocument(requirement)
	default:
		return fmt.Errorf("unknown entity type %q", entityType)
	}

	doc.Embedding = s.embed(ctx, doc.Content)

	if err := s.searchRepo.UpsertDocument(ctx, doc); err != nil {
		return fmt.Errorf("upsert search document: %w", err)
	}

	s.logger.Debug("Entity indexed",
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID.String()))
	return nil
}

func (s *indexService) Reindex(ctx context.Context, entityType string) (int, error) {
	var ids []uuid.UUID
	var err error
	switch entityType {
	case models.EntityTypeConsultant:
		ids, err = s.consultantRepo.ListIDs(ctx)
	case models.EntityTypeRequirement:
		ids, err = s.requirementRepo.ListIDs(ctx)
	default:
		return 0, fmt.Errorf("unknown entity type %q", entityType)
	}
	if err != nil {
		return 0, fmt.Errorf("list entities for reindex: %w", err)
	}

	indexed := 0
	for _, id := range ids {
		if err := s.IndexEntity(ctx, entityType, id); err != nil {
			s.logger.Warn("Failed to reindex entity",
				zap.String("entity_type", entityType),
				zap.String("entity_id", id.String()),
				zap.Error(err))
			continue
		}
		indexed++
	}

	s.logger.Info("Reindex complete",
		zap.String("entity_type", entityType),
		zap.Int("indexed", indexed),
		zap.Int("total", len(ids)))
	return indexed, nil
}

func (s *indexService) RemoveEntity(ctx context.Context, entityType string, entityID uuid.UUID) error {
	return s.searchRepo.DeleteForEntity(ctx, entityType, entityID)
}

// embed returns the content embedding, or a zero vector when the embedder is
// disabled or failing. A zero vector drops the vector term from hybrid
// scores; lexical ranking still works.
func (s *indexService) embed(ctx context.Context, content string) []float32 {
	vector, err := s.embedder.Embed(ctx, content)
	if err != nil {
		s.logger.Warn("Embedding failed, indexing with zero vector", zap.Error(err))
		return make([]float32, s.embedder.Dimensions())
	}
	return ai.FitDimensions(vector, s.embedder.Dimensions())
}

func buildConsultantDocument(consultant *models.Consultant) *models.SearchDocument {
	skills := make([]string, 0, len(consultant.Skills))
	for _, skill := range consultant.Skills {
		skills = append(skills, skill.Name)
	}

	summary := ""
	if consultant.Summary != nil {
		summary = *consultant.Summary
	}
	content := fmt.Sprintf("%s %s\n%s\n%s\n%s",
		consultant.FirstName, consultant.LastName, summary,
		strings.Join(skills, ", "), strings.Join(consultant.Tags, ", "))

	metadata := models.SearchMetadata{
		Availability: consultant.Availability,
		Rate:         consultant.Rate,
		Skills:       skills,
		Tags:         consultant.Tags,
		UpdatedAt:    consultant.UpdatedAt,
	}
	if consultant.Location != nil {
		metadata.Location = *consultant.Location
	}

	return &models.SearchDocument{
		EntityType: models.EntityTypeConsultant,
		EntityID:   consultant.ID,
		Content:    content,
		Metadata:   metadata,
	}
}

func buildRequirementDocument(requirement *models.Requirement) *models.SearchDocument {
	skills := make([]string, 0, len(requirement.Skills))
	for _, skill := range requirement.Skills {
		skills = append(skills, skill.Name)
	}

	content := fmt.Sprintf("%s\n%s\n%s\n%s",
		requirement.Title, requirement.ClientName, requirement.Description,
		strings.Join(skills, ", "))

	postedAt := requirement.PostedAt
	metadata := models.SearchMetadata{
		Status:    requirement.Status,
		Skills:    skills,
		UpdatedAt: requirement.UpdatedAt,
		PostedAt:  &postedAt,
		ClosesAt:  requirement.ClosesAt,
	}
	if requirement.Location != nil {
		metadata.Location = *requirement.Location
	}
	if requirement.MinRate != nil || requirement.MaxRate != nil {
		minRate, maxRate := 0.0, 0.0
		if requirement.MinRate != nil {
			minRate = *requirement.MinRate
		}
		if requirement.MaxRate != nil {
			maxRate = *requirement.MaxRate
		}
		metadata.RateRange = []float64{minRate, maxRate}
	}

	return &models.SearchDocument{
		EntityType: models.EntityTypeRequirement,
		EntityID:   requirement.ID,
		Content:    content,
		Metadata:   metadata,
	}
}
