package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/ai"
	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

type mockConsultantRepository struct {
	consultants map[uuid.UUID]*models.Consultant
}

func newMockConsultantRepository(consultants ...*models.Consultant) *mockConsultantRepository {
	repo := &mockConsultantRepository{consultants: make(map[uuid.UUID]*models.Consultant)}
	for _, consultant := range consultants {
		repo.consultants[consultant.ID] = consultant
	}
	return repo
}

func (m *mockConsultantRepository) Create(ctx context.Context, consultant *models.Consultant) error {
	if consultant.ID == uuid.Nil {
		consultant.ID = uuid.New()
	}
	m.consultants[consultant.ID] = consultant
	return nil
}

func (m *mockConsultantRepository) Update(ctx context.Context, consultant *models.Consultant) error {
	m.consultants[consultant.ID] = consultant
	return nil
}

func (m *mockConsultantRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Consultant, error) {
	consultant, ok := m.consultants[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return consultant, nil
}

func (m *mockConsultantRepository) GetByIDs(ctx context.Context, ids []uuid.UUID) ([]*models.Consultant, error) {
	var consultants []*models.Consultant
	for _, id := range ids {
		if consultant, ok := m.consultants[id]; ok {
			consultants = append(consultants, consultant)
		}
	}
	return consultants, nil
}

func (m *mockConsultantRepository) FindByEmail(ctx context.Context, email string) (*models.Consultant, error) {
	for _, consultant := range m.consultants {
		if consultant.Email != nil && *consultant.Email == email {
			return consultant, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockConsultantRepository) FindByPhone(ctx context.Context, phone string) (*models.Consultant, error) {
	for _, consultant := range m.consultants {
		if consultant.Phone != nil && *consultant.Phone == phone {
			return consultant, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockConsultantRepository) SetSkills(ctx context.Context, consultantID uuid.UUID, skills []models.WeightedSkill) error {
	if consultant, ok := m.consultants[consultantID]; ok {
		consultant.Skills = skills
	}
	return nil
}

func (m *mockConsultantRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id := range m.consultants {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ repositories.ConsultantRepository = (*mockConsultantRepository)(nil)

type mockRequirementRepository struct {
	requirements map[uuid.UUID]*models.Requirement
}

func newMockRequirementRepository(requirements ...*models.Requirement) *mockRequirementRepository {
	repo := &mockRequirementRepository{requirements: make(map[uuid.UUID]*models.Requirement)}
	for _, requirement := range requirements {
		repo.requirements[requirement.ID] = requirement
	}
	return repo
}

func (m *mockRequirementRepository) Create(ctx context.Context, requirement *models.Requirement) error {
	if requirement.ID == uuid.Nil {
		requirement.ID = uuid.New()
	}
	m.requirements[requirement.ID] = requirement
	return nil
}

func (m *mockRequirementRepository) Update(ctx context.Context, requirement *models.Requirement) error {
	m.requirements[requirement.ID] = requirement
	return nil
}

func (m *mockRequirementRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Requirement, error) {
	requirement, ok := m.requirements[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return requirement, nil
}

func (m *mockRequirementRepository) FindByTitleClient(ctx context.Context, title, clientName string) (*models.Requirement, error) {
	for _, requirement := range m.requirements {
		if requirement.Title == title && requirement.ClientName == clientName {
			return requirement, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockRequirementRepository) SetSkills(ctx context.Context, requirementID uuid.UUID, skills []models.WeightedSkill) error {
	if requirement, ok := m.requirements[requirementID]; ok {
		requirement.Skills = skills
	}
	return nil
}

func (m *mockRequirementRepository) ListIDs(ctx context.Context) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for id := range m.requirements {
		ids = append(ids, id)
	}
	return ids, nil
}

var _ repositories.RequirementRepository = (*mockRequirementRepository)(nil)

type mockSearchService struct {
	results   []*models.HybridResult
	lastQuery *models.HybridQuery
}

func (m *mockSearchService) Search(ctx context.Context, query *models.HybridQuery) ([]*models.HybridResult, error) {
	m.lastQuery = query
	return m.results, nil
}

var _ SearchService = (*mockSearchService)(nil)

type matchFixture struct {
	service     MatchService
	matchRepo   *mockMatchRepository
	search      *mockSearchService
	audit       *mockAuditService
	requirement *models.Requirement
	alice       *models.Consultant
	bob         *models.Consultant
	carol       *models.Consultant
}

func newMatchFixture(t *testing.T, cfg *config.MatchConfig) *matchFixture {
	t.Helper()
	now := time.Now()

	requirement := &models.Requirement{
		ID:         uuid.New(),
		Title:      "Senior Go Engineer",
		ClientName: "Acme Corp",
		Location:   strPtr("Austin, TX"),
		MinRate:    floatPtr(70),
		MaxRate:    floatPtr(100),
		Skills: []models.WeightedSkill{
			weighted("Go", 60),
			weighted("Kubernetes", 40),
		},
	}

	alice := &models.Consultant{
		ID:           uuid.New(),
		FirstName:    "Alice",
		LastName:     "Nguyen",
		Availability: models.AvailabilityAvailable,
		Location:     strPtr("Austin, TX"),
		Rate:         floatPtr(85),
		Skills: []models.WeightedSkill{
			weighted("Go", 80),
			weighted("Kubernetes", 50),
		},
		UpdatedAt: now,
	}
	bob := &models.Consultant{
		ID:           uuid.New(),
		FirstName:    "Bob",
		LastName:     "Iyer",
		Availability: models.AvailabilityInterviewing,
		Location:     strPtr("Remote"),
		Rate:         floatPtr(95),
		Skills:       []models.WeightedSkill{weighted("Go", 50)},
		UpdatedAt:    now.Add(-30 * 24 * time.Hour),
	}
	carol := &models.Consultant{
		ID:           uuid.New(),
		FirstName:    "Carol",
		LastName:     "Reyes",
		Availability: models.AvailabilityUnavailable,
		Skills:       []models.WeightedSkill{weighted("Go", 90)},
		UpdatedAt:    now,
	}

	search := &mockSearchService{results: []*models.HybridResult{
		{EntityID: alice.ID, VectorScore: 0.8, LexicalScore: 0.6, TotalScore: 0.72},
		{EntityID: bob.ID, VectorScore: 0.5, LexicalScore: 0.4, TotalScore: 0.46},
		{EntityID: carol.ID, VectorScore: 0.6, LexicalScore: 0.5, TotalScore: 0.56},
	}}

	matchRepo := newMockMatchRepository()
	audit := &mockAuditService{}
	summarizer := ai.NewSummarizer(&config.SummariserConfig{Provider: "rules"}, nil, zap.NewNop())
	pool := ai.NewWorkerPool(ai.DefaultWorkerPoolConfig(), zap.NewNop())

	service := NewMatchService(
		matchRepo,
		newMockConsultantRepository(alice, bob, carol),
		newMockRequirementRepository(requirement),
		search, summarizer, pool, audit, cfg, zap.NewNop(),
	)

	return &matchFixture{
		service:     service,
		matchRepo:   matchRepo,
		search:      search,
		audit:       audit,
		requirement: requirement,
		alice:       alice,
		bob:         bob,
		carol:       carol,
	}
}

func TestMatchService_MatchRequirement(t *testing.T) {
	cfg := &config.MatchConfig{BaseWeight: 0.2, LinearWeight: 0.35, TopN: 2}
	fixture := newMatchFixture(t, cfg)

	matches, err := fixture.service.MatchRequirement(context.Background(), fixture.requirement.ID)
	require.NoError(t, err)
	require.Len(t, matches, 2)

	// Carol fails the availability hard filter; Alice outranks Bob.
	assert.Equal(t, fixture.alice.ID, matches[0].ConsultantID)
	assert.Equal(t, fixture.bob.ID, matches[1].ConsultantID)
	assert.Greater(t, matches[0].Score, matches[1].Score)
	for _, match := range matches {
		assert.Equal(t, fixture.requirement.ID, match.RequirementID)
		assert.Greater(t, match.Score, 0.0)
		assert.LessOrEqual(t, match.Score, 1.0)
	}

	// Retrieval oversizes relative to top-N and carries the location filter.
	require.NotNil(t, fixture.search.lastQuery)
	assert.Equal(t, 25, fixture.search.lastQuery.Limit)
	assert.Equal(t, []string{models.EntityTypeConsultant}, fixture.search.lastQuery.EntityTypes)
	require.NotNil(t, fixture.search.lastQuery.Filters)
	assert.Equal(t, "Austin, TX", fixture.search.lastQuery.Filters.Location)

	// Every persisted match carries an immutable feature snapshot.
	require.Len(t, fixture.matchRepo.snapshots, 2)
	assert.Equal(t, ModelVersion, fixture.matchRepo.snapshots[0].ModelVersion)

	require.Len(t, fixture.audit.recorded, 1)
	assert.Equal(t, "match.computed", fixture.audit.recorded[0].Action)
}

func TestMatchService_Explanation(t *testing.T) {
	cfg := &config.MatchConfig{BaseWeight: 0.2, LinearWeight: 0.35, TopN: 2}
	fixture := newMatchFixture(t, cfg)

	matches, err := fixture.service.MatchRequirement(context.Background(), fixture.requirement.ID)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	explanation := matches[0].Explanation
	require.NotNil(t, explanation)

	assert.Equal(t, ExplanationSchemaVersion, explanation.SchemaVersion)
	assert.Equal(t, ModelVersion, explanation.ModelVersion)
	assert.Equal(t, RankerVersion, explanation.RankerVersion)
	assert.ElementsMatch(t, []string{"Go", "Kubernetes"}, explanation.AlignedSkills)
	assert.Len(t, explanation.Contributions, 7)

	assert.Equal(t, models.LocationMatchExact, explanation.Deltas.Location.Status)
	assert.True(t, explanation.Deltas.Rate.WithinRange)
	require.NotNil(t, explanation.Deltas.Rate.Delta)
	assert.Zero(t, *explanation.Deltas.Rate.Delta)
	assert.Equal(t, models.AvailabilityAvailable, explanation.Deltas.Availability.Availability)
	assert.Equal(t, "Available to start immediately", explanation.Deltas.Availability.Description)

	assert.Equal(t, 0.8, explanation.Retrieval.VectorScore)
	assert.Equal(t, 0.72, explanation.Retrieval.Combined)

	assert.Equal(t, matches[0].Score, explanation.Scores.Final)
	// LLM stage disabled: no confidence recorded.
	assert.Nil(t, explanation.Scores.LLMConfidence)
	assert.Equal(t, "Alice Nguyen", explanation.Facts.ConsultantName)
	assert.Equal(t, "Acme Corp", explanation.Facts.ClientName)
}

func TestMatchService_LLMRerank(t *testing.T) {
	cfg := &config.MatchConfig{
		BaseWeight:   0.2,
		LinearWeight: 0.35,
		LLMWeight:    0.2,
		EnableLLM:    true,
		TopN:         2,
	}
	fixture := newMatchFixture(t, cfg)

	matches, err := fixture.service.MatchRequirement(context.Background(), fixture.requirement.ID)
	require.NoError(t, err)
	require.NotEmpty(t, matches)

	explanation := matches[0].Explanation
	require.NotNil(t, explanation)
	require.NotNil(t, explanation.Scores.LLMConfidence)
	// The rules summariser reports the skill overlap as its confidence.
	assert.InDelta(t, explanation.Facts.SkillOverlap, *explanation.Scores.LLMConfidence, 1e-9)
	assert.NotEmpty(t, explanation.Highlights)
}

func TestMatchService_HardFilterFallback(t *testing.T) {
	cfg := &config.MatchConfig{BaseWeight: 0.2, LinearWeight: 0.35, TopN: 5}
	fixture := newMatchFixture(t, cfg)

	// Only the unavailable candidate is retrieved; the unfiltered set is
	// scored so the requirement still gets results.
	fixture.search.results = []*models.HybridResult{
		{EntityID: fixture.carol.ID, VectorScore: 0.6, LexicalScore: 0.5, TotalScore: 0.56},
	}

	matches, err := fixture.service.MatchRequirement(context.Background(), fixture.requirement.ID)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, fixture.carol.ID, matches[0].ConsultantID)
}

func TestMatchService_NoCandidates(t *testing.T) {
	cfg := &config.MatchConfig{BaseWeight: 0.2, LinearWeight: 0.35, TopN: 5}
	fixture := newMatchFixture(t, cfg)
	fixture.search.results = nil

	matches, err := fixture.service.MatchRequirement(context.Background(), fixture.requirement.ID)
	require.NoError(t, err)
	assert.Empty(t, matches)
	assert.Empty(t, fixture.matchRepo.upserted)
	assert.Empty(t, fixture.audit.recorded)
}

func TestMatchService_UnknownRequirement(t *testing.T) {
	cfg := &config.MatchConfig{BaseWeight: 0.2, LinearWeight: 0.35, TopN: 5}
	fixture := newMatchFixture(t, cfg)

	_, err := fixture.service.MatchRequirement(context.Background(), uuid.New())
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestMatchService_StatusAndFeedback(t *testing.T) {
	cfg := &config.MatchConfig{BaseWeight: 0.2, LinearWeight: 0.35, TopN: 2}
	fixture := newMatchFixture(t, cfg)

	matches, err := fixture.service.MatchRequirement(context.Background(), fixture.requirement.ID)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	matchID := matches[0].ID

	require.NoError(t, fixture.service.UpdateStatus(context.Background(), matchID, models.MatchStatusShortlisted))
	updated, err := fixture.service.GetMatch(context.Background(), matchID)
	require.NoError(t, err)
	assert.Equal(t, models.MatchStatusShortlisted, updated.Status)

	require.NoError(t, fixture.service.SubmitFeedback(context.Background(), &models.MatchFeedback{
		MatchID: matchID,
		Outcome: models.FeedbackPositive,
	}))
	events, err := fixture.service.ListFeedback(context.Background(), matchID)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, models.FeedbackPositive, events[0].Outcome)

	actions := make([]string, 0, len(fixture.audit.recorded))
	for _, recorded := range fixture.audit.recorded {
		actions = append(actions, recorded.Action)
	}
	assert.Contains(t, actions, "match.status_changed")
	assert.Contains(t, actions, "match.feedback")
}

func TestRateDelta(t *testing.T) {
	within := rateDelta(floatPtr(85), floatPtr(70), floatPtr(100))
	assert.True(t, within.WithinRange)
	require.NotNil(t, within.Delta)
	assert.Zero(t, *within.Delta)

	below := rateDelta(floatPtr(60), floatPtr(70), floatPtr(100))
	assert.False(t, below.WithinRange)
	assert.Equal(t, -10.0, *below.Delta)

	above := rateDelta(floatPtr(120), floatPtr(70), floatPtr(100))
	assert.False(t, above.WithinRange)
	assert.Equal(t, 20.0, *above.Delta)

	maxOnly := rateDelta(floatPtr(90), nil, floatPtr(100))
	assert.True(t, maxOnly.WithinRange)
	assert.Equal(t, -10.0, *maxOnly.Delta)

	none := rateDelta(nil, floatPtr(70), floatPtr(100))
	assert.False(t, none.WithinRange)
	assert.Nil(t, none.Delta)
}
