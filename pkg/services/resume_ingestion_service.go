package services

import (
	"context"
	"crypto/md5"  //nolint:gosec // fingerprint only, not a security boundary
	"crypto/sha1" //nolint:gosec // fingerprint only, not a security boundary
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/blob"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/ingestion"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/queue"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

// ResumeUpload is an inbound resume document.
type ResumeUpload struct {
	FileName     string
	ContentType  string
	Data         []byte
	ConsultantID *uuid.UUID
	Source       string
}

// ResumeUploadResult reports the stored document, or the existing one when
// the upload is a content-hash duplicate.
type ResumeUploadResult struct {
	DocumentID uuid.UUID `json:"document_id"`
	Duplicate  bool      `json:"duplicate"`
}

// resumeJobPayload is the queue payload for deferred resume processing.
type resumeJobPayload struct {
	DocumentID uuid.UUID `json:"document_id"`
}

// ResumeIngestionService accepts resume uploads and runs the asynchronous
// pipeline: extraction, PII redaction, skill tagging, consultant resolution,
// identity signatures, and indexing.
type ResumeIngestionService interface {
	// Upload stores the document and queues processing. Duplicate content for
	// the tenant short-circuits with the existing document ID.
	Upload(ctx context.Context, upload *ResumeUpload) (*ResumeUploadResult, error)

	// Process runs the pipeline for a stored document. Invoked by the worker.
	Process(ctx context.Context, documentID uuid.UUID) error

	// HandleJob adapts Process to the queue handler contract.
	HandleJob(ctx context.Context, job *queue.Job) error
}

type resumeIngestionService struct {
	documentRepo   repositories.DocumentRepository
	consultantRepo repositories.ConsultantRepository
	skillRepo      repositories.SkillRepository
	identityRepo   repositories.IdentityRepository
	piiRepo        repositories.PIIRepository
	storage        blob.Storage
	extractor      *ingestion.Extractor
	redactor       *ingestion.Redactor
	jobs           *queue.Queue
	scopes         *database.TenantScopeProvider
	index          IndexService
	audit          AuditService
	logger         *zap.Logger
	now            func() time.Time
}

// NewResumeIngestionService creates a new ResumeIngestionService.
func NewResumeIngestionService(
	documentRepo repositories.DocumentRepository,
	consultantRepo repositories.ConsultantRepository,
	skillRepo repositories.SkillRepository,
	identityRepo repositories.IdentityRepository,
	piiRepo repositories.PIIRepository,
	storage blob.Storage,
	extractor *ingestion.Extractor,
	redactor *ingestion.Redactor,
	jobs *queue.Queue,
	scopes *database.TenantScopeProvider,
	index IndexService,
	audit AuditService,
	logger *zap.Logger,
) ResumeIngestionService {
	return &resumeIngestionService{
		documentRepo:   documentRepo,
		consultantRepo: consultantRepo,
		skillRepo:      skillRepo,
		identityRepo:   identityRepo,
		piiRepo:        piiRepo,
		storage:        storage,
		extractor:      extractor,
		redactor:       redactor,
		jobs:           jobs,
		scopes:         scopes,
		index:          index,
		audit:          audit,
		logger:         logger.Named("resume-ingestion"),
		now:            time.Now,
	}
}

var _ ResumeIngestionService = (*resumeIngestionService)(nil)

func (s *resumeIngestionService) Upload(ctx context.Context, upload *ResumeUpload) (*ResumeUploadResult, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}
	if len(upload.Data) == 0 {
		return nil, fmt.Errorf("%w: empty document", apperrors.ErrValidation)
	}

	sha256Sum := sha256.Sum256(upload.Data)
	sha256Hex := hex.EncodeToString(sha256Sum[:])

	existing, err := s.documentRepo.GetMetadataBySHA256(ctx, sha256Hex)
	if err != nil && !errors.Is(err, apperrors.ErrNotFound) {
		return nil, fmt.Errorf("dedupe lookup: %w", err)
	}
	if existing != nil {
		s.logger.Info("Duplicate resume upload",
			zap.String("document_id", existing.DocumentID.String()),
			zap.String("file_name", upload.FileName))
		return &ResumeUploadResult{DocumentID: existing.DocumentID, Duplicate: true}, nil
	}

	sha1Sum := sha1.Sum(upload.Data) //nolint:gosec // fingerprint only
	md5Sum := md5.Sum(upload.Data)   //nolint:gosec // fingerprint only
	sha1Hex := hex.EncodeToString(sha1Sum[:])
	md5Hex := hex.EncodeToString(md5Sum[:])

	asset := &models.DocumentAsset{
		ID:           uuid.New(),
		Kind:         models.DocumentKindResume,
		FileName:     upload.FileName,
		ContentType:  upload.ContentType,
		SizeBytes:    int64(len(upload.Data)),
		ConsultantID: upload.ConsultantID,
	}
	asset.StorageKey = blob.DocumentKey(scope.TenantID, asset.ID, upload.FileName)

	if err := s.storage.Put(ctx, asset.StorageKey, upload.ContentType, upload.Data); err != nil {
		return nil, fmt.Errorf("store document: %w", err)
	}

	metadata := &models.DocumentMetadata{
		SHA256: sha256Hex,
		SHA1:   &sha1Hex,
		MD5:    &md5Hex,
	}
	if err := s.documentRepo.CreateAssetWithMetadata(ctx, asset, metadata); err != nil {
		return nil, fmt.Errorf("create document asset: %w", err)
	}

	payload, err := json.Marshal(resumeJobPayload{DocumentID: asset.ID})
	if err != nil {
		return nil, fmt.Errorf("marshal job payload: %w", err)
	}
	job := &queue.Job{
		ID:       asset.ID.String(),
		Type:     queue.TypeResumeIngestion,
		TenantID: scope.TenantID,
		Payload:  payload,
	}
	if err := s.jobs.Enqueue(ctx, job); err != nil {
		return nil, fmt.Errorf("enqueue resume ingestion: %w", err)
	}

	if err := s.audit.Record(ctx, "resume.uploaded", "DOCUMENT", &asset.ID, map[string]any{
		"file_name":  upload.FileName,
		"size_bytes": asset.SizeBytes,
		"sha256":     sha256Hex,
	}, "OK"); err != nil {
		s.logger.Warn("Failed to audit resume upload", zap.Error(err))
	}

	return &ResumeUploadResult{DocumentID: asset.ID}, nil
}

func (s *resumeIngestionService) HandleJob(ctx context.Context, job *queue.Job) error {
	var payload resumeJobPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return fmt.Errorf("decode resume job payload: %w", err)
	}

	scoped, cleanup, err := s.scopes.WithTenantScope(ctx, job.TenantID)
	if err != nil {
		return fmt.Errorf("acquire tenant scope: %w", err)
	}
	defer cleanup()

	return s.Process(scoped, payload.DocumentID)
}

func (s *resumeIngestionService) Process(ctx context.Context, documentID uuid.UUID) error {
	started := s.now()

	asset, err := s.documentRepo.GetAsset(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document asset: %w", err)
	}
	metadata, err := s.documentRepo.GetMetadata(ctx, documentID)
	if err != nil {
		return fmt.Errorf("load document metadata: %w", err)
	}

	data, err := s.storage.Get(ctx, asset.StorageKey)
	if err != nil {
		return s.fail(ctx, metadata, fmt.Errorf("fetch document bytes: %w", err))
	}

	text := s.extractor.Extract(ctx, asset.ContentType, data)
	extractedAt := s.now()

	redaction, err := s.redactor.Redact(ctx, text)
	if err != nil {
		return s.fail(ctx, metadata, fmt.Errorf("redact document: %w", err))
	}
	if len(redaction.VaultEntries) > 0 {
		if err := s.piiRepo.PutBatch(ctx, redaction.VaultEntries); err != nil {
			return s.fail(ctx, metadata, fmt.Errorf("store pii vault entries: %w", err))
		}
	}

	consultant, err := s.resolveConsultant(ctx, asset, text, redaction)
	if err != nil {
		return s.fail(ctx, metadata, err)
	}

	if err := s.applySkills(ctx, consultant, text); err != nil {
		return s.fail(ctx, metadata, err)
	}

	resume := &models.Resume{
		ConsultantID: consultant.ID,
		FileKey:      asset.StorageKey,
		Summary:      ingestion.Summarize(redaction.RedactedText),
		Payload: map[string]any{
			"pii_counts":  redaction.Counts,
			"skill_count": len(consultant.Skills),
		},
	}
	if err := s.documentRepo.UpsertResume(ctx, resume); err != nil {
		return s.fail(ctx, metadata, fmt.Errorf("store resume: %w", err))
	}

	signatures := ingestion.BuildSignatures(consultant)
	if err := s.identityRepo.ReplaceForConsultant(ctx, consultant.ID, signatures); err != nil {
		return s.fail(ctx, metadata, fmt.Errorf("replace identity signatures: %w", err))
	}

	textSize := int64(len(text))
	latency := s.now().Sub(started).Milliseconds()
	redactedAt := s.now()
	metadata.IngestionStatus = models.DocIngestionComplete
	metadata.PIIStatus = models.PIIStatusClean
	if len(redaction.Findings) > 0 {
		metadata.PIIStatus = models.PIIStatusFlagged
	}
	metadata.PIISummary = &models.PIISummary{
		Counts: redaction.Counts,
		Tokens: redaction.Tokens,
		Vault:  vaultTokens(redaction.VaultEntries),
	}
	metadata.TextByteSize = &textSize
	metadata.IngestionLatencyMs = &latency
	metadata.ExtractedAt = &extractedAt
	metadata.LastRedactionAt = &redactedAt
	if err := s.documentRepo.UpdateMetadata(ctx, metadata); err != nil {
		return fmt.Errorf("update document metadata: %w", err)
	}

	if err := s.index.IndexEntity(ctx, models.EntityTypeConsultant, consultant.ID); err != nil {
		s.logger.Warn("Failed to index consultant after ingestion",
			zap.String("consultant_id", consultant.ID.String()),
			zap.Error(err))
	}

	if err := s.audit.Record(ctx, "resume.ingested", "DOCUMENT", &documentID, map[string]any{
		"consultant_id": consultant.ID,
		"pii_findings":  len(redaction.Findings),
		"latency_ms":    latency,
	}, "OK"); err != nil {
		s.logger.Warn("Failed to audit resume ingestion", zap.Error(err))
	}

	s.logger.Info("Resume ingested",
		zap.String("document_id", documentID.String()),
		zap.String("consultant_id", consultant.ID.String()),
		zap.Int("pii_findings", len(redaction.Findings)),
		zap.Int64("latency_ms", latency))
	return nil
}

// fail flips the metadata to FAILED before surfacing the error so the queue's
// retry policy sees the failure while operators see the document state.
func (s *resumeIngestionService) fail(ctx context.Context, metadata *models.DocumentMetadata, cause error) error {
	metadata.IngestionStatus = models.DocIngestionFailed
	if err := s.documentRepo.UpdateMetadata(ctx, metadata); err != nil {
		s.logger.Error("Failed to mark document failed",
			zap.String("document_id", metadata.DocumentID.String()),
			zap.Error(err))
	}
	return cause
}

// resolveConsultant finds the owner of the resume: the explicit consultant on
// the asset, then an email match, then a phone match, then a new stub profile
// built from the extracted contact surface.
func (s *resumeIngestionService) resolveConsultant(ctx context.Context, asset *models.DocumentAsset, text string, redaction *ingestion.RedactionResult) (*models.Consultant, error) {
	if asset.ConsultantID != nil {
		consultant, err := s.consultantRepo.GetByID(ctx, *asset.ConsultantID)
		if err != nil {
			return nil, fmt.Errorf("load linked consultant: %w", err)
		}
		return consultant, nil
	}

	var emails, phones, persons []string
	for _, finding := range redaction.Findings {
		switch finding.Type {
		case models.PIITypeEmail:
			emails = append(emails, finding.Value)
		case models.PIITypePhone:
			phones = append(phones, finding.Value)
		case models.PIITypePerson:
			persons = append(persons, finding.Value)
		}
	}
	profile := ingestion.ExtractCandidate(text, emails, phones, persons)

	for _, email := range profile.Emails {
		consultant, err := s.consultantRepo.FindByEmail(ctx, email)
		if err == nil {
			return consultant, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("find consultant by email: %w", err)
		}
	}
	for _, phone := range profile.Phones {
		consultant, err := s.consultantRepo.FindByPhone(ctx, phone)
		if err == nil {
			return consultant, nil
		}
		if !errors.Is(err, apperrors.ErrNotFound) {
			return nil, fmt.Errorf("find consultant by phone: %w", err)
		}
	}

	consultant := &models.Consultant{
		FirstName: profile.FirstName,
		LastName:  profile.LastName,
	}
	if consultant.FirstName == "" {
		consultant.FirstName = "Unknown"
	}
	if len(profile.Emails) > 0 {
		email := profile.Emails[0]
		consultant.Email = &email
	}
	if len(profile.Phones) > 0 {
		phone := profile.Phones[0]
		consultant.Phone = &phone
	}
	if err := s.consultantRepo.Create(ctx, consultant); err != nil {
		return nil, fmt.Errorf("create consultant from resume: %w", err)
	}
	return consultant, nil
}

// applySkills tags the consultant with catalogue skills found in the text.
// Each matched skill gets a flat default weight; recruiters tune weights later.
func (s *resumeIngestionService) applySkills(ctx context.Context, consultant *models.Consultant, text string) error {
	catalogue, err := s.skillRepo.ListSkills(ctx)
	if err != nil {
		return fmt.Errorf("load skill catalogue: %w", err)
	}
	names := make([]string, 0, len(catalogue))
	byName := make(map[string]*models.Skill, len(catalogue))
	for _, skill := range catalogue {
		names = append(names, skill.Name)
		byName[skill.Name] = skill
	}

	matched := ingestion.MatchSkills(text, names)
	if len(matched) == 0 {
		return nil
	}

	skills := make([]models.WeightedSkill, 0, len(matched))
	for _, name := range matched {
		skills = append(skills, models.WeightedSkill{
			SkillID: byName[name].ID,
			Name:    name,
			Weight:  models.DefaultSkillWeight,
		})
	}
	if err := s.consultantRepo.SetSkills(ctx, consultant.ID, skills); err != nil {
		return fmt.Errorf("set consultant skills: %w", err)
	}
	consultant.Skills = skills
	return nil
}

func vaultTokens(entries []*models.PIIVaultEntry) []string {
	tokens := make([]string, 0, len(entries))
	for _, entry := range entries {
		tokens = append(tokens, entry.Token)
	}
	return tokens
}
