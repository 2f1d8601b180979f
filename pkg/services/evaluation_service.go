package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

// EvaluationService computes ranking quality metrics over a window of matches
// and persists them as analytics snapshots. Relevance labels come from human
// signals: feedback outcomes, match statuses, and submission progress.
type EvaluationService interface {
	// Run evaluates the window, persists a snapshot, and returns it. baseline
	// may be nil; when present the snapshot carries metric deltas against it.
	Run(ctx context.Context, windowStart, windowEnd time.Time, baseline *models.EvaluationMetrics) (*models.AnalyticsSnapshot, error)

	Latest(ctx context.Context) (*models.AnalyticsSnapshot, error)
	List(ctx context.Context, limit int) ([]*models.AnalyticsSnapshot, error)
}

type evaluationService struct {
	matchRepo     repositories.MatchRepository
	analyticsRepo repositories.AnalyticsRepository
	audit         AuditService
	cfg           *config.EvalConfig
	logger        *zap.Logger
}

// NewEvaluationService creates a new EvaluationService.
func NewEvaluationService(
	matchRepo repositories.MatchRepository,
	analyticsRepo repositories.AnalyticsRepository,
	audit AuditService,
	cfg *config.EvalConfig,
	logger *zap.Logger,
) EvaluationService {
	return &evaluationService{
		matchRepo:     matchRepo,
		analyticsRepo: analyticsRepo,
		audit:         audit,
		cfg:           cfg,
		logger:        logger.Named("evaluation-service"),
	}
}

var _ EvaluationService = (*evaluationService)(nil)

func (s *evaluationService) Run(ctx context.Context, windowStart, windowEnd time.Time, baseline *models.EvaluationMetrics) (*models.AnalyticsSnapshot, error) {
	evaluated, err := s.matchRepo.ListEvaluated(ctx, windowStart, windowEnd)
	if err != nil {
		return nil, fmt.Errorf("load evaluated matches: %w", err)
	}

	offline := s.computeMetrics(evaluated)

	onlineStart := windowEnd.Add(-time.Duration(s.cfg.OnlineWindowHours) * time.Hour)
	var online []*repositories.EvaluatedMatch
	for _, match := range evaluated {
		if !match.Match.CreatedAt.Before(onlineStart) && !match.Match.CreatedAt.After(windowEnd) {
			online = append(online, match)
		}
	}

	snapshot := &models.AnalyticsSnapshot{
		WindowStart: windowStart,
		WindowEnd:   windowEnd,
		Offline:     offline,
		Online:      s.computeMetrics(online),
	}
	if baseline != nil {
		snapshot.BaselineDelta = &models.BaselineDelta{
			NDCGAt10:    offline.NDCGAt10 - baseline.NDCGAt10,
			HitRateAt10: offline.HitRateAt10 - baseline.HitRateAt10,
			Coverage:    offline.Coverage - baseline.Coverage,
		}
	}

	if err := s.analyticsRepo.InsertSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("persist evaluation snapshot: %w", err)
	}

	if err := s.audit.Record(ctx, "evaluation.run", "ANALYTICS_SNAPSHOT", &snapshot.ID, map[string]any{
		"window_start": windowStart,
		"window_end":   windowEnd,
		"sample_size":  offline.SampleSize,
		"ndcg":         offline.NDCGAt10,
	}, "OK"); err != nil {
		s.logger.Warn("Failed to audit evaluation run", zap.Error(err))
	}

	s.logger.Info("Evaluation complete",
		zap.Time("window_start", windowStart),
		zap.Time("window_end", windowEnd),
		zap.Int("matches", len(evaluated)),
		zap.Float64("ndcg", offline.NDCGAt10),
		zap.Float64("hit_rate", offline.HitRateAt10),
		zap.Float64("coverage", offline.Coverage))
	return snapshot, nil
}

// computeMetrics groups matches per requirement, ranks each group by score,
// and averages nDCG@K and Hit@K across requirements. Coverage is the fraction
// of matches carrying at least one feedback event.
func (s *evaluationService) computeMetrics(evaluated []*repositories.EvaluatedMatch) models.EvaluationMetrics {
	metrics := models.EvaluationMetrics{SampleSize: len(evaluated)}
	if len(evaluated) == 0 {
		return metrics
	}

	byRequirement := make(map[uuid.UUID][]*repositories.EvaluatedMatch)
	withFeedback := 0
	for _, match := range evaluated {
		byRequirement[match.Match.RequirementID] = append(byRequirement[match.Match.RequirementID], match)
		if len(match.FeedbackOutcomes) > 0 {
			withFeedback++
		}
	}
	metrics.Coverage = float64(withFeedback) / float64(len(evaluated))

	ndcgSum, hitSum := 0.0, 0.0
	for _, group := range byRequirement {
		sort.SliceStable(group, func(i, j int) bool {
			return group[i].Match.Score > group[j].Match.Score
		})
		relevances := make([]float64, len(group))
		for i, match := range group {
			relevances[i] = relevance(match)
		}
		ndcgSum += ndcgAtK(relevances, s.cfg.K)
		hitSum += hitAtK(relevances, s.cfg.K, s.cfg.HitThreshold)
	}
	requirements := float64(len(byRequirement))
	metrics.NDCGAt10 = ndcgSum / requirements
	metrics.HitRateAt10 = hitSum / requirements
	return metrics
}

// relevance is the strongest human signal attached to a match: the maximum of
// the feedback-, status-, and submission-derived grades.
func relevance(match *repositories.EvaluatedMatch) float64 {
	best := statusRelevance(match.Match.Status)
	for _, outcome := range match.FeedbackOutcomes {
		best = math.Max(best, feedbackRelevance(outcome))
	}
	for _, status := range match.SubmissionStatuses {
		best = math.Max(best, submissionRelevance(status))
	}
	return best
}

func feedbackRelevance(outcome string) float64 {
	switch outcome {
	case models.FeedbackHired:
		return 3
	case models.FeedbackPositive:
		return 2
	case models.FeedbackNeutral:
		return 1
	default:
		return 0
	}
}

func statusRelevance(status string) float64 {
	switch status {
	case models.MatchStatusHired:
		return 3
	case models.MatchStatusShortlisted, models.MatchStatusSubmitted:
		return 2
	default:
		return 0
	}
}

func submissionRelevance(status string) float64 {
	switch status {
	case models.SubmissionStatusOffer, models.SubmissionStatusHired:
		return 3
	case models.SubmissionStatusInterview:
		return 2.5
	case models.SubmissionStatusSubmitted:
		return 2
	default:
		return 0
	}
}

// ndcgAtK computes normalised discounted cumulative gain over the ranked
// relevance list. An all-zero list scores zero.
func ndcgAtK(relevances []float64, k int) float64 {
	dcg := dcgAtK(relevances, k)

	ideal := make([]float64, len(relevances))
	copy(ideal, relevances)
	sort.Sort(sort.Reverse(sort.Float64Slice(ideal)))
	idcg := dcgAtK(ideal, k)
	if idcg == 0 {
		return 0
	}
	return dcg / idcg
}

func dcgAtK(relevances []float64, k int) float64 {
	dcg := 0.0
	for i := 0; i < len(relevances) && i < k; i++ {
		dcg += relevances[i] / math.Log2(float64(i)+2)
	}
	return dcg
}

func hitAtK(relevances []float64, k int, threshold float64) float64 {
	for i := 0; i < len(relevances) && i < k; i++ {
		if relevances[i] >= threshold {
			return 1
		}
	}
	return 0
}

func (s *evaluationService) Latest(ctx context.Context) (*models.AnalyticsSnapshot, error) {
	return s.analyticsRepo.Latest(ctx)
}

func (s *evaluationService) List(ctx context.Context, limit int) ([]*models.AnalyticsSnapshot, error) {
	return s.analyticsRepo.List(ctx, limit)
}
