package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

type mockMatchRepository struct {
	evaluated []*repositories.EvaluatedMatch

	matches     map[uuid.UUID]*models.Match
	upserted    []*models.Match
	snapshots   []*models.MatchFeatureSnapshot
	feedback    []*models.MatchFeedback
	submissions []*models.Submission
}

func newMockMatchRepository() *mockMatchRepository {
	return &mockMatchRepository{matches: make(map[uuid.UUID]*models.Match)}
}

func (m *mockMatchRepository) UpsertWithSnapshot(ctx context.Context, match *models.Match, snapshot *models.MatchFeatureSnapshot) error {
	if match.ID == uuid.Nil {
		match.ID = uuid.New()
	}
	if match.Status == "" {
		match.Status = models.MatchStatusReview
	}
	m.matches[match.ID] = match
	m.upserted = append(m.upserted, match)
	if snapshot != nil {
		snapshot.MatchID = match.ID
		m.snapshots = append(m.snapshots, snapshot)
	}
	return nil
}

func (m *mockMatchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	match, ok := m.matches[id]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return match, nil
}

func (m *mockMatchRepository) GetByPair(ctx context.Context, consultantID, requirementID uuid.UUID) (*models.Match, error) {
	for _, match := range m.matches {
		if match.ConsultantID == consultantID && match.RequirementID == requirementID {
			return match, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (m *mockMatchRepository) ListByRequirement(ctx context.Context, requirementID uuid.UUID, limit int) ([]*models.Match, error) {
	var matches []*models.Match
	for _, match := range m.matches {
		if match.RequirementID == requirementID {
			matches = append(matches, match)
		}
	}
	return matches, nil
}

func (m *mockMatchRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	match, ok := m.matches[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	match.Status = status
	return nil
}

func (m *mockMatchRepository) InsertFeedback(ctx context.Context, feedback *models.MatchFeedback) error {
	m.feedback = append(m.feedback, feedback)
	return nil
}

func (m *mockMatchRepository) ListFeedback(ctx context.Context, matchID uuid.UUID) ([]*models.MatchFeedback, error) {
	var events []*models.MatchFeedback
	for _, event := range m.feedback {
		if event.MatchID == matchID {
			events = append(events, event)
		}
	}
	return events, nil
}

func (m *mockMatchRepository) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	m.submissions = append(m.submissions, submission)
	return nil
}

func (m *mockMatchRepository) UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status string) error {
	for _, submission := range m.submissions {
		if submission.ID == id {
			submission.Status = status
			return nil
		}
	}
	return apperrors.ErrNotFound
}

func (m *mockMatchRepository) ListEvaluated(ctx context.Context, windowStart, windowEnd time.Time) ([]*repositories.EvaluatedMatch, error) {
	return m.evaluated, nil
}

func (m *mockMatchRepository) ListSnapshots(ctx context.Context, matchID uuid.UUID) ([]*models.MatchFeatureSnapshot, error) {
	return m.snapshots, nil
}

var _ repositories.MatchRepository = (*mockMatchRepository)(nil)

type mockAnalyticsRepository struct {
	snapshots []*models.AnalyticsSnapshot
}

func (m *mockAnalyticsRepository) InsertSnapshot(ctx context.Context, snapshot *models.AnalyticsSnapshot) error {
	if snapshot.ID == uuid.Nil {
		snapshot.ID = uuid.New()
	}
	m.snapshots = append(m.snapshots, snapshot)
	return nil
}

func (m *mockAnalyticsRepository) Latest(ctx context.Context) (*models.AnalyticsSnapshot, error) {
	if len(m.snapshots) == 0 {
		return nil, apperrors.ErrNotFound
	}
	return m.snapshots[len(m.snapshots)-1], nil
}

func (m *mockAnalyticsRepository) List(ctx context.Context, limit int) ([]*models.AnalyticsSnapshot, error) {
	return m.snapshots, nil
}

var _ repositories.AnalyticsRepository = (*mockAnalyticsRepository)(nil)

type auditedAction struct {
	Action     string
	EntityType string
}

type mockAuditService struct {
	recorded []auditedAction
}

func (m *mockAuditService) Record(ctx context.Context, action, entityType string, entityID *uuid.UUID, payload any, resultCode string) error {
	m.recorded = append(m.recorded, auditedAction{Action: action, EntityType: entityType})
	return nil
}

func (m *mockAuditService) List(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	return nil, nil
}

func (m *mockAuditService) Verify(ctx context.Context) error { return nil }

var _ AuditService = (*mockAuditService)(nil)

func evalConfig() *config.EvalConfig {
	return &config.EvalConfig{K: 10, HitThreshold: 1, OnlineWindowHours: 24}
}

func evaluatedMatch(requirementID uuid.UUID, score float64, createdAt time.Time) *repositories.EvaluatedMatch {
	return &repositories.EvaluatedMatch{
		Match: &models.Match{
			ID:            uuid.New(),
			RequirementID: requirementID,
			Score:         score,
			Status:        models.MatchStatusReview,
			CreatedAt:     createdAt,
		},
	}
}

func TestEvaluationService_Run(t *testing.T) {
	windowEnd := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	windowStart := windowEnd.Add(-7 * 24 * time.Hour)
	recent := windowEnd.Add(-2 * time.Hour)
	stale := windowEnd.Add(-3 * 24 * time.Hour)

	reqA, reqB := uuid.New(), uuid.New()

	// Requirement A ranks its hired candidate first: perfect ordering.
	hired := evaluatedMatch(reqA, 0.9, recent)
	hired.FeedbackOutcomes = []string{models.FeedbackHired}
	aAlso := evaluatedMatch(reqA, 0.5, recent)

	// Requirement B ranks an unlabelled candidate above the one that reached
	// interview: imperfect ordering.
	bTop := evaluatedMatch(reqB, 0.8, stale)
	bInterview := evaluatedMatch(reqB, 0.4, stale)
	bInterview.SubmissionStatuses = []string{models.SubmissionStatusSubmitted, models.SubmissionStatusInterview}

	matchRepo := newMockMatchRepository()
	matchRepo.evaluated = []*repositories.EvaluatedMatch{hired, aAlso, bTop, bInterview}
	analyticsRepo := &mockAnalyticsRepository{}
	audit := &mockAuditService{}

	service := NewEvaluationService(matchRepo, analyticsRepo, audit, evalConfig(), zap.NewNop())

	snapshot, err := service.Run(context.Background(), windowStart, windowEnd, nil)
	require.NoError(t, err)

	assert.Equal(t, 4, snapshot.Offline.SampleSize)
	// Requirement A scores 1.0; requirement B scores (2.5/log2(3)) / 2.5.
	assert.InDelta(t, (1.0+0.63093)/2, snapshot.Offline.NDCGAt10, 1e-4)
	assert.InDelta(t, 1.0, snapshot.Offline.HitRateAt10, 1e-9)
	assert.InDelta(t, 0.25, snapshot.Offline.Coverage, 1e-9)

	// Only requirement A's matches fall inside the online window.
	assert.Equal(t, 2, snapshot.Online.SampleSize)
	assert.InDelta(t, 1.0, snapshot.Online.NDCGAt10, 1e-9)

	assert.Nil(t, snapshot.BaselineDelta)

	require.Len(t, analyticsRepo.snapshots, 1)
	require.Len(t, audit.recorded, 1)
	assert.Equal(t, "evaluation.run", audit.recorded[0].Action)
}

func TestEvaluationService_Run_BaselineDelta(t *testing.T) {
	windowEnd := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	reqID := uuid.New()
	match := evaluatedMatch(reqID, 0.9, windowEnd.Add(-time.Hour))
	match.FeedbackOutcomes = []string{models.FeedbackPositive}

	matchRepo := newMockMatchRepository()
	matchRepo.evaluated = []*repositories.EvaluatedMatch{match}
	service := NewEvaluationService(matchRepo, &mockAnalyticsRepository{}, &mockAuditService{}, evalConfig(), zap.NewNop())

	baseline := &models.EvaluationMetrics{NDCGAt10: 0.5, HitRateAt10: 0.5, Coverage: 0.25}
	snapshot, err := service.Run(context.Background(), windowEnd.Add(-24*time.Hour), windowEnd, baseline)
	require.NoError(t, err)

	require.NotNil(t, snapshot.BaselineDelta)
	assert.InDelta(t, 0.5, snapshot.BaselineDelta.NDCGAt10, 1e-9)
	assert.InDelta(t, 0.5, snapshot.BaselineDelta.HitRateAt10, 1e-9)
	assert.InDelta(t, 0.75, snapshot.BaselineDelta.Coverage, 1e-9)
}

func TestEvaluationService_Run_EmptyWindow(t *testing.T) {
	matchRepo := newMockMatchRepository()
	analyticsRepo := &mockAnalyticsRepository{}
	service := NewEvaluationService(matchRepo, analyticsRepo, &mockAuditService{}, evalConfig(), zap.NewNop())

	snapshot, err := service.Run(context.Background(), time.Now().Add(-time.Hour), time.Now(), nil)
	require.NoError(t, err)

	assert.Zero(t, snapshot.Offline.SampleSize)
	assert.Zero(t, snapshot.Offline.NDCGAt10)
	assert.Zero(t, snapshot.Offline.Coverage)
	require.Len(t, analyticsRepo.snapshots, 1)
}

func TestRelevance_TakesStrongestSignal(t *testing.T) {
	match := &repositories.EvaluatedMatch{
		Match:              &models.Match{Status: models.MatchStatusShortlisted},
		FeedbackOutcomes:   []string{models.FeedbackNeutral},
		SubmissionStatuses: []string{models.SubmissionStatusInterview},
	}
	assert.Equal(t, 2.5, relevance(match))

	match.FeedbackOutcomes = append(match.FeedbackOutcomes, models.FeedbackHired)
	assert.Equal(t, 3.0, relevance(match))
}

func TestRelevanceGrades(t *testing.T) {
	assert.Equal(t, 3.0, feedbackRelevance(models.FeedbackHired))
	assert.Equal(t, 2.0, feedbackRelevance(models.FeedbackPositive))
	assert.Equal(t, 1.0, feedbackRelevance(models.FeedbackNeutral))
	assert.Equal(t, 0.0, feedbackRelevance(models.FeedbackNegative))

	assert.Equal(t, 3.0, statusRelevance(models.MatchStatusHired))
	assert.Equal(t, 2.0, statusRelevance(models.MatchStatusShortlisted))
	assert.Equal(t, 2.0, statusRelevance(models.MatchStatusSubmitted))
	assert.Equal(t, 0.0, statusRelevance(models.MatchStatusRejected))
	assert.Equal(t, 0.0, statusRelevance(models.MatchStatusReview))

	assert.Equal(t, 3.0, submissionRelevance(models.SubmissionStatusOffer))
	assert.Equal(t, 3.0, submissionRelevance(models.SubmissionStatusHired))
	assert.Equal(t, 2.5, submissionRelevance(models.SubmissionStatusInterview))
	assert.Equal(t, 2.0, submissionRelevance(models.SubmissionStatusSubmitted))
	assert.Equal(t, 0.0, submissionRelevance(models.SubmissionStatusRejected))
	assert.Equal(t, 0.0, submissionRelevance("WITHDRAWN"))
}

func TestNDCGAtK(t *testing.T) {
	assert.InDelta(t, 1.0, ndcgAtK([]float64{3, 2, 1}, 10), 1e-9)
	assert.Equal(t, 0.0, ndcgAtK([]float64{0, 0, 0}, 10))

	// Best item ranked last out of three.
	inverted := ndcgAtK([]float64{0, 0, 3}, 10)
	assert.InDelta(t, 0.5, inverted, 1e-9)

	// K truncates: the relevant item at rank 3 is invisible at K=2.
	assert.Equal(t, 0.0, hitAtK([]float64{0, 0, 3}, 2, 1))
	assert.Equal(t, 1.0, hitAtK([]float64{0, 0, 3}, 3, 1))
}
