package services

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

type mockIngestionRepository struct {
	records       map[uuid.UUID]*models.RequirementIngestion
	markFailedIDs []uuid.UUID
	processedIDs  []uuid.UUID
	processedErr  error
}

func newMockIngestionRepository(records ...*models.RequirementIngestion) *mockIngestionRepository {
	repo := &mockIngestionRepository{records: make(map[uuid.UUID]*models.RequirementIngestion)}
	for _, record := range records {
		repo.records[record.ID] = record
	}
	return repo
}

func (m *mockIngestionRepository) Create(ctx context.Context, ingestion *models.RequirementIngestion) error {
	if ingestion.ID == uuid.Nil {
		ingestion.ID = uuid.New()
	}
	m.records[ingestion.ID] = ingestion
	return nil
}

func (m *mockIngestionRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.RequirementIngestion, error) {
	record, ok := m.records[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return record, nil
}

func (m *mockIngestionRepository) GetByHash(ctx context.Context, contentHash string) (*models.RequirementIngestion, error) {
	for _, record := range m.records {
		if record.ContentHash == contentHash {
			return record, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockIngestionRepository) MarkProcessed(ctx context.Context, id uuid.UUID, parsedData map[string]any, latencyMs int64) error {
	if m.processedErr != nil {
		return m.processedErr
	}
	m.processedIDs = append(m.processedIDs, id)
	if record, ok := m.records[id]; ok {
		record.Status = models.IngestionStatusProcessed
		record.ParsedData = parsedData
	}
	return nil
}

func (m *mockIngestionRepository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	m.markFailedIDs = append(m.markFailedIDs, id)
	if record, ok := m.records[id]; ok {
		record.Status = models.IngestionStatusFailed
		record.RetryCount++
	}
	return nil
}

var _ repositories.IngestionRepository = (*mockIngestionRepository)(nil)

type mockSkillRepository struct {
	skills    map[string]*models.Skill
	ensureErr error
}

func newMockSkillRepository() *mockSkillRepository {
	return &mockSkillRepository{skills: make(map[string]*models.Skill)}
}

func (m *mockSkillRepository) CreateOntologyVersion(ctx context.Context, version *models.OntologyVersion) error {
	return nil
}
func (m *mockSkillRepository) ActivateVersion(ctx context.Context, versionID uuid.UUID) error {
	return nil
}
func (m *mockSkillRepository) GetActiveVersion(ctx context.Context) (*models.OntologyVersion, error) {
	return nil, apperrors.ErrNotFound
}
func (m *mockSkillRepository) CreateNode(ctx context.Context, node *models.OntologyNode) error {
	return nil
}
func (m *mockSkillRepository) CreateAlias(ctx context.Context, alias *models.OntologyAlias) error {
	return nil
}

func (m *mockSkillRepository) ResolveAlias(ctx context.Context, value string) (*models.OntologyNode, error) {
	return nil, apperrors.ErrNotFound
}

func (m *mockSkillRepository) EnsureSkill(ctx context.Context, name string) (*models.Skill, error) {
	if m.ensureErr != nil {
		return nil, m.ensureErr
	}
	if skill, ok := m.skills[name]; ok {
		return skill, nil
	}
	skill := &models.Skill{ID: uuid.New(), Name: name}
	m.skills[name] = skill
	return skill, nil
}

func (m *mockSkillRepository) GetSkillsByNames(ctx context.Context, names []string) ([]*models.Skill, error) {
	return nil, nil
}
func (m *mockSkillRepository) ListSkills(ctx context.Context) ([]*models.Skill, error) {
	return nil, nil
}

var _ repositories.SkillRepository = (*mockSkillRepository)(nil)

type mockIndexService struct {
	indexed []uuid.UUID
}

func (m *mockIndexService) IndexEntity(ctx context.Context, entityType string, entityID uuid.UUID) error {
	m.indexed = append(m.indexed, entityID)
	return nil
}
func (m *mockIndexService) Reindex(ctx context.Context, entityType string) (int, error) {
	return 0, nil
}
func (m *mockIndexService) RemoveEntity(ctx context.Context, entityType string, entityID uuid.UUID) error {
	return nil
}

var _ IndexService = (*mockIndexService)(nil)

type stubRequirementParser struct {
	parsed *models.ParsedRequirement
	err    error
}

func (p *stubRequirementParser) Parse(ctx context.Context, raw string) (*models.ParsedRequirement, error) {
	if p.err != nil {
		return nil, p.err
	}
	return p.parsed, nil
}

// createFailingRequirementRepo fails every write so upserting cannot succeed.
type createFailingRequirementRepo struct {
	*mockRequirementRepository
}

func (m *createFailingRequirementRepo) Create(ctx context.Context, requirement *models.Requirement) error {
	return errors.New("insert rejected")
}

type requirementIngestionFixture struct {
	service       RequirementIngestionService
	ingestionRepo *mockIngestionRepository
	reqRepo       repositories.RequirementRepository
	record        *models.RequirementIngestion
}

func newRequirementIngestionFixture(t *testing.T, parser *stubRequirementParser, reqRepo repositories.RequirementRepository) *requirementIngestionFixture {
	t.Helper()
	record := &models.RequirementIngestion{
		ID:          uuid.New(),
		TenantID:    uuid.New(),
		Source:      "email",
		RawContent:  "Senior Go Engineer\nClient: Acme\nSkills: Go, SQL",
		ContentHash: "abc123",
		Status:      models.IngestionStatusPending,
	}
	ingestionRepo := newMockIngestionRepository(record)
	service := NewRequirementIngestionService(
		ingestionRepo, reqRepo, newMockSkillRepository(), parser,
		nil, nil, &mockIndexService{}, &mockAuditService{}, zap.NewNop(),
	)
	return &requirementIngestionFixture{
		service:       service,
		ingestionRepo: ingestionRepo,
		reqRepo:       reqRepo,
		record:        record,
	}
}

func parsedFixture() *models.ParsedRequirement {
	return &models.ParsedRequirement{
		Title:      "Senior Go Engineer",
		ClientName: "Acme",
		Skills:     []string{"Go", "SQL"},
	}
}

func TestRequirementIngestion_Process_MarksProcessed(t *testing.T) {
	parser := &stubRequirementParser{parsed: parsedFixture()}
	f := newRequirementIngestionFixture(t, parser, newMockRequirementRepository())

	err := f.service.Process(context.Background(), f.record.ID)
	require.NoError(t, err)

	assert.Equal(t, models.IngestionStatusProcessed, f.record.Status)
	assert.Empty(t, f.ingestionRepo.markFailedIDs)

	created, err := f.reqRepo.FindByTitleClient(context.Background(), "Senior Go Engineer", "Acme")
	require.NoError(t, err)
	assert.Len(t, created.Skills, 2)
}

func TestRequirementIngestion_Process_ParserFailureMarksFailed(t *testing.T) {
	parser := &stubRequirementParser{err: errors.New("model unavailable")}
	f := newRequirementIngestionFixture(t, parser, newMockRequirementRepository())

	err := f.service.Process(context.Background(), f.record.ID)
	require.Error(t, err)

	assert.Equal(t, models.IngestionStatusFailed, f.record.Status)
	assert.Equal(t, []uuid.UUID{f.record.ID}, f.ingestionRepo.markFailedIDs)
}

func TestRequirementIngestion_Process_SkillFailureMarksFailed(t *testing.T) {
	parser := &stubRequirementParser{parsed: parsedFixture()}
	f := newRequirementIngestionFixture(t, parser, newMockRequirementRepository())

	skillRepo := newMockSkillRepository()
	skillRepo.ensureErr = errors.New("catalogue unavailable")
	f.service = NewRequirementIngestionService(
		f.ingestionRepo, f.reqRepo, skillRepo, parser,
		nil, nil, &mockIndexService{}, &mockAuditService{}, zap.NewNop(),
	)

	err := f.service.Process(context.Background(), f.record.ID)
	require.Error(t, err)

	assert.Equal(t, models.IngestionStatusFailed, f.record.Status)
	assert.Equal(t, []uuid.UUID{f.record.ID}, f.ingestionRepo.markFailedIDs)
}

func TestRequirementIngestion_Process_UpsertFailureMarksFailed(t *testing.T) {
	parser := &stubRequirementParser{parsed: parsedFixture()}
	failing := &createFailingRequirementRepo{newMockRequirementRepository()}
	f := newRequirementIngestionFixture(t, parser, failing)

	err := f.service.Process(context.Background(), f.record.ID)
	require.Error(t, err)

	assert.Equal(t, models.IngestionStatusFailed, f.record.Status)
	assert.Equal(t, []uuid.UUID{f.record.ID}, f.ingestionRepo.markFailedIDs)
}

func TestRequirementIngestion_Process_MarkProcessedFailureMarksFailed(t *testing.T) {
	parser := &stubRequirementParser{parsed: parsedFixture()}
	f := newRequirementIngestionFixture(t, parser, newMockRequirementRepository())
	f.ingestionRepo.processedErr = errors.New("write timeout")

	err := f.service.Process(context.Background(), f.record.ID)
	require.Error(t, err)

	assert.Equal(t, models.IngestionStatusFailed, f.record.Status)
	assert.Equal(t, []uuid.UUID{f.record.ID}, f.ingestionRepo.markFailedIDs)
}
