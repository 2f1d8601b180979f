package services

import (
	"context"
	"crypto/md5" //nolint:gosec // content fingerprint only
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/ai"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/queue"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

// RequirementIngestResult reports the ingestion record, or the existing one
// when the raw content is a duplicate for the tenant.
type RequirementIngestResult struct {
	IngestionID uuid.UUID `json:"ingestion_id"`
	Duplicate   bool      `json:"duplicate"`
}

// requirementJobPayload is the queue payload for deferred parsing.
type requirementJobPayload struct {
	IngestionID uuid.UUID `json:"ingestion_id"`
}

// RequirementIngestionService accepts raw requirement text (email bodies,
// pasted postings) and runs the asynchronous pipeline: structured parsing,
// skill resolution, requirement upsert, and indexing.
type RequirementIngestionService interface {
	// Ingest records the raw content and queues parsing. Duplicate content for
	// the tenant short-circuits with the existing ingestion ID.
	Ingest(ctx context.Context, source, rawContent string) (*RequirementIngestResult, error)

	// Process parses one ingestion record. Invoked by the worker.
	Process(ctx context.Context, ingestionID uuid.UUID) error

	// HandleJob adapts Process to the queue handler contract.
	HandleJob(ctx context.Context, job *queue.Job) error
}

type requirementIngestionService struct {
	ingestionRepo   repositories.IngestionRepository
	requirementRepo repositories.RequirementRepository
	skillRepo       repositories.SkillRepository
	parser          ai.RequirementParser
	jobs            *queue.Queue
	scopes          *database.TenantScopeProvider
	index           IndexService
	audit           AuditService
	logger          *zap.Logger
	now             func() time.Time
}

// NewRequirementIngestionService creates a new RequirementIngestionService.
func NewRequirementIngestionService(
	ingestionRepo repositories.IngestionRepository,
	requirementRepo repositories.RequirementRepository,
	skillRepo repositories.SkillRepository,
	parser ai.RequirementParser,
	jobs *queue.Queue,
	scopes *database.TenantScopeProvider,
	index IndexService,
	audit AuditService,
	logger *zap.Logger,
) RequirementIngestionService {
	return &requirementIngestionService{
		ingestionRepo:   ingestionRepo,
		requirementRepo: requirementRepo,
		skillRepo:       skillRepo,
		parser:          parser,
		jobs:            jobs,
		scopes:          scopes,
		index:           index,
		audit:           audit,
		logger:          logger.Named("requirement-ingestion"),
		now:             time.Now,
	}
}

var _ RequirementIngestionService = (*requirementIngestionService)(nil)

func (s *requirementIngestionService) Ingest(ctx context.Context, source, rawContent string) (*RequirementIngestResult, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}
	if rawContent == "" {
		return nil, fmt.Errorf("%w: empty requirement content", apperrors.ErrValidation)
	}

	hash := md5.Sum([]byte(rawContent)) //nolint:gosec // content fingerprint only
	contentHash := hex.EncodeToString(hash[:])

	record := &models.RequirementIngestion{
		Source:      source,
		RawContent:  rawContent,
		ContentHash: contentHash,
	}
	err := s.ingestionRepo.Create(ctx, record)
	if errors.Is(err, apperrors.ErrConflict) {
		existing, lookupErr := s.ingestionRepo.GetByHash(ctx, contentHash)
		if lookupErr != nil {
			return nil, fmt.Errorf("load duplicate ingestion: %w", lookupErr)
		}
		s.logger.Info("Duplicate requirement content",
			zap.String("ingestion_id", existing.ID.String()),
			zap.String("source", source))
		return &RequirementIngestResult{IngestionID: existing.ID, Duplicate: true}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create ingestion record: %w", err)
	}

	payload, err := json.Marshal(requirementJobPayload{IngestionID: record.ID})
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	job := &queue.Job{
		ID:       record.ID.String(),
		Type:     queue.TypeRequirementIngestion,
		TenantID: scope.TenantID,
		Payload:  payload,
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue requirement ingestion: %w", err)
	}

	if err := s.audit.Record(ctx, "requirement.received", "REQUIREMENT_INGESTION", &record.ID, map[string]any{
		"source":       source,
		"content_hash": contentHash,
	}, "OK"); err != nil {
		s.logger.Warn("Failed to audit requirement ingress", zap.Error(err))
	}

	return &RequirementIngestResult{IngestionID: record.ID}, nil
}

func (s *requirementIngestionService) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload requirementJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode requirement job payload: %w", err)
	}

	scoped, cleanup, err := s.scopes.WithTenantScope(ctx, job.TenantID)
	if err != nil {
		return fmt.Errorf("acquire tenant scope: %w", err)
	}
	defer cleanup()

	return s.Process(scoped, payload.IngestionID)
}

func (s *requirementIngestionService) Process(ctx context.Context, ingestionID uuid.UUID) error {
	started := s.now()

	record, err := s.ingestionRepo.GetByID(ctx, ingestionID)
	if err != nil {
		return fmt.Errorf("load ingestion record: %w", err)
	}

	parsed, err := s.parser.Parse(ctx, record.RawContent)
	if err != nil {
		return s.failProcessing(ctx, ingestionID, fmt.Errorf("parse requirement: %w", err))
	}

	skills, err := s.resolveSkills(ctx, parsed.Skills)
	if err != nil {
		return s.failProcessing(ctx, ingestionID, err)
	}

	requirement, err := s.upsertRequirement(ctx, record, parsed, skills)
	if err != nil {
		return s.failProcessing(ctx, ingestionID, err)
	}

	parsedData := map[string]any{
		"title":       parsed.Title,
		"client_name": parsed.ClientName,
		"skills":      parsed.Skills,
	}
	if parsed.Location != "" {
		parsedData["location"] = parsed.Location
	}
	if parsed.SuggestedRate != nil {
		parsedData["suggested_rate"] = *parsed.SuggestedRate
	}
	latency := s.now().Sub(started).Milliseconds()
	if err := s.ingestionRepo.MarkProcessed(ctx, ingestionID, parsedData, latency); err != nil {
		return s.failProcessing(ctx, ingestionID, fmt.Errorf("mark ingestion processed: %w", err))
	}

	if err := s.index.IndexEntity(ctx, models.EntityTypeRequirement, requirement.ID); err != nil {
		s.logger.Warn("Failed to index requirement after ingestion",
			zap.String("requirement_id", requirement.ID.String()),
			zap.Error(err))
	}

	if err := s.audit.Record(ctx, "requirement.ingested", models.EntityTypeRequirement, &requirement.ID, map[string]any{
		"ingestion_id": ingestionID,
		"title":        requirement.Title,
		"client_name":  requirement.ClientName,
		"latency_ms":   latency,
	}, "OK"); err != nil {
		s.logger.Warn("Failed to audit requirement ingestion", zap.Error(err))
	}

	s.logger.Info("Requirement ingested",
		zap.String("ingestion_id", ingestionID.String()),
		zap.String("requirement_id", requirement.ID.String()),
		zap.Int64("latency_ms", latency))
	return nil
}

// failProcessing marks the ingestion record FAILED and returns the pipeline
// error. Every error after the record loads must land here so a stuck record
// never reads PENDING forever.
func (s *requirementIngestionService) failProcessing(ctx context.Context, ingestionID uuid.UUID, err error) error {
	if markErr := s.ingestionRepo.MarkFailed(ctx, ingestionID); markErr != nil {
		s.logger.Error("Failed to mark ingestion failed",
			zap.String("ingestion_id", ingestionID.String()),
			zap.Error(markErr))
	}
	return err
}

// resolveSkills maps parsed skill names to catalogue skills, creating missing
// entries. Alias resolution through the active ontology normalises surface
// forms before creation.
func (s *requirementIngestionService) resolveSkills(ctx context.Context, names []string) ([]models.WeightedSkill, error) {
	skills := make([]models.WeightedSkill, 0, len(names))
	seen := make(map[uuid.UUID]bool, len(names))
	for _, name := range names {
		canonical := name
		if node, err := s.skillRepo.ResolveAlias(ctx, name); err == nil {
			canonical = node.CanonicalName
		} else if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("resolve skill alias: %w", err)
		}

		skill, err := s.skillRepo.EnsureSkill(ctx, canonical)
		if err != nil {
			return nil, fmt.Errorf("ensure skill %q: %w", canonical, err)
		}
		if seen[skill.ID] {
			continue
		}
		seen[skill.ID] = true
		skills = append(skills, models.WeightedSkill{
			SkillID: skill.ID,
			Name:    skill.Name,
			Weight:  models.DefaultSkillWeight,
		})
	}
	return skills, nil
}

// upsertRequirement updates the existing requirement with the same
// (title, client) or creates a new one.
func (s *requirementIngestionService) upsertRequirement(ctx context.Context, record *models.RequirementIngestion, parsed *models.ParsedRequirement, skills []models.WeightedSkill) (*models.Requirement, error) {
	existing, err := s.requirementRepo.FindByTitleClient(ctx, parsed.Title, parsed.ClientName)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("find requirement: %w", err)
	}

	requirement := existing
	if requirement == nil {
		requirement = &models.Requirement{
			Title:      parsed.Title,
			ClientName: parsed.ClientName,
			Status:     models.RequirementStatusOpen,
			Source:     record.Source,
			PostedAt:   record.CreatedAt,
		}
	}
	requirement.Description = record.RawContent
	if parsed.Location != "" {
		location := parsed.Location
		requirement.Location = &location
	}
	if parsed.SuggestedRate != nil {
		requirement.MaxRate = parsed.SuggestedRate
	}

	if existing == nil {
		err = s.requirementRepo.Create(ctx, requirement)
	} else {
		err = s.requirementRepo.Update(ctx, requirement)
	}
	if err != nil {
		return nil, fmt.Errorf("upsert requirement: %w", err)
	}

	if len(skills) > 0 {
		if err := s.requirementRepo.SetSkills(ctx, requirement.ID, skills); err != nil {
			return nil, fmt.Errorf("set requirement skills: %w", err)
		}
		requirement.Skills = skills
	}
	return requirement, nil
}
