package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/ai"
	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

// ExplanationSchemaVersion is bumped whenever the explanation shape changes.
const ExplanationSchemaVersion = 1

// MatchService runs the staged matching pipeline for a requirement:
// hybrid retrieval, feature extraction with hard filters, linear scoring,
// tree-based re-ranking, optional LLM confidence, and persistence of the
// top-N matches with immutable feature snapshots.
type MatchService interface {
	// MatchRequirement scores candidates for the requirement and persists the
	// top-N matches, newest score winning per (consultant, requirement) pair.
	MatchRequirement(ctx context.Context, requirementID uuid.UUID) ([]*models.Match, error)

	GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error)
	ListMatches(ctx context.Context, requirementID uuid.UUID, limit int) ([]*models.Match, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error

	// SubmitFeedback records a feedback event and refreshes the match's
	// aggregate outcome counts.
	SubmitFeedback(ctx context.Context, feedback *models.MatchFeedback) error
	ListFeedback(ctx context.Context, matchID uuid.UUID) ([]*models.MatchFeedback, error)

	CreateSubmission(ctx context.Context, submission *models.Submission) error
	UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status string) error
}

type matchService struct {
	matchRepo       repositories.MatchRepository
	consultantRepo  repositories.ConsultantRepository
	requirementRepo repositories.RequirementRepository
	search          SearchService
	summarizer      ai.Summarizer
	pool            *ai.WorkerPool
	audit           AuditService
	cfg             *config.MatchConfig
	logger          *zap.Logger
	now             func() time.Time
}

// NewMatchService creates a new MatchService.
func NewMatchService(
	matchRepo repositories.MatchRepository,
	consultantRepo repositories.ConsultantRepository,
	requirementRepo repositories.RequirementRepository,
	search SearchService,
	summarizer ai.Summarizer,
	pool *ai.WorkerPool,
	audit AuditService,
	cfg *config.MatchConfig,
	logger *zap.Logger,
) MatchService {
	return &matchService{
		matchRepo:       matchRepo,
		consultantRepo:  consultantRepo,
		requirementRepo: requirementRepo,
		search:          search,
		summarizer:      summarizer,
		pool:            pool,
		audit:           audit,
		cfg:             cfg,
		logger:          logger.Named("match-service"),
		now:             time.Now,
	}
}

var _ MatchService = (*matchService)(nil)

func (s *matchService) MatchRequirement(ctx context.Context, requirementID uuid.UUID) ([]*models.Match, error) {
	started := s.now()

	requirement, err := s.requirementRepo.GetByID(ctx, requirementID)
	if err != nil {
		return nil, fmt.Errorf("load requirement: %w", err)
	}

	candidates, retrievalByID, err := s.retrieve(ctx, requirement)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		s.logger.Info("No candidates retrieved",
			zap.String("requirement_id", requirementID.String()))
		return nil, nil
	}

	scored := s.score(requirement, candidates, retrievalByID)
	if len(scored) == 0 {
		return nil, nil
	}

	s.rerankWithLLM(ctx, requirement, scored)

	for _, candidate := range scored {
		candidate.scored.Final = s.blend(candidate)
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].scored.Final > scored[j].scored.Final
	})
	if len(scored) > s.cfg.TopN {
		scored = scored[:s.cfg.TopN]
	}

	matches := make([]*models.Match, 0, len(scored))
	for _, candidate := range scored {
		explanation := s.buildExplanation(requirement, candidate)
		match := &models.Match{
			ConsultantID:  candidate.consultant.ID,
			RequirementID: requirement.ID,
			Score:         candidate.scored.Final,
			Explanation:   explanation,
		}
		snapshot := &models.MatchFeatureSnapshot{
			ModelVersion: ModelVersion,
			Features:     candidate.scored.Features,
			Explanation:  explanation,
		}
		if err := s.matchRepo.UpsertWithSnapshot(ctx, match, snapshot); err != nil {
			return nil, fmt.Errorf("persist match: %w", err)
		}
		matches = append(matches, match)
	}

	if err := s.audit.Record(ctx, "match.computed", models.EntityTypeRequirement, &requirement.ID, map[string]any{
		"matches":    len(matches),
		"candidates": len(candidates),
		"latency_ms": s.now().Sub(started).Milliseconds(),
	}, "OK"); err != nil {
		s.logger.Warn("Failed to audit match run", zap.Error(err))
	}

	s.logger.Info("Matching complete",
		zap.String("requirement_id", requirementID.String()),
		zap.Int("candidates", len(candidates)),
		zap.Int("matches", len(matches)),
		zap.Duration("elapsed", s.now().Sub(started)))
	return matches, nil
}

// candidateState carries one consultant through the scoring stages.
type candidateState struct {
	consultant *models.Consultant
	retrieval  *models.HybridResult
	scored     models.ScoredCandidate
	summary    *models.MatchSummary
}

// retrieve runs hybrid retrieval over consultants and loads the retrieved
// profiles. The retrieval set is oversized relative to top-N so the hard
// filters have room to cut.
func (s *matchService) retrieve(ctx context.Context, requirement *models.Requirement) ([]*models.Consultant, map[uuid.UUID]*models.HybridResult, error) {
	query := &models.HybridQuery{
		Query:       strings.TrimSpace(requirement.Title + " " + requirement.ClientName + " " + requirement.Description),
		EntityTypes: []string{models.EntityTypeConsultant},
		Limit:       max(3*s.cfg.TopN, 25),
	}
	if requirement.Location != nil && strings.TrimSpace(*requirement.Location) != "" {
		query.Filters = &models.SearchFilters{Location: *requirement.Location}
	}

	results, err := s.search.Search(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("candidate retrieval: %w", err)
	}

	retrievalByID := make(map[uuid.UUID]*models.HybridResult, len(results))
	ids := make([]uuid.UUID, 0, len(results))
	for _, result := range results {
		retrievalByID[result.EntityID] = result
		ids = append(ids, result.EntityID)
	}

	consultants, err := s.consultantRepo.GetByIDs(ctx, ids)
	if err != nil {
		return nil, nil, fmt.Errorf("load candidates: %w", err)
	}
	return consultants, retrievalByID, nil
}

// score extracts features, applies the hard filters, and computes the linear
// and tree-ranker scores. When every candidate is filtered out the unfiltered
// set is scored instead so the requirement still gets ranked results.
func (s *matchService) score(requirement *models.Requirement, consultants []*models.Consultant, retrievalByID map[uuid.UUID]*models.HybridResult) []*candidateState {
	now := s.now()

	all := make([]*candidateState, 0, len(consultants))
	filtered := make([]*candidateState, 0, len(consultants))
	for _, consultant := range consultants {
		state := &candidateState{
			consultant: consultant,
			retrieval:  retrievalByID[consultant.ID],
		}
		state.scored.ConsultantID = consultant.ID
		state.scored.Features = ExtractFeatures(consultant, requirement, state.retrieval, now)
		all = append(all, state)
		if HardFilter(state.scored.Features, requirement) {
			filtered = append(filtered, state)
		}
	}

	kept := filtered
	if len(kept) == 0 {
		s.logger.Debug("Hard filters removed all candidates, scoring unfiltered set",
			zap.String("requirement_id", requirement.ID.String()))
		kept = all
	}

	for _, state := range kept {
		state.scored.Linear = LinearScore(state.scored.Features, s.cfg.BaseWeight)
		state.scored.LTR = LTRScore(state.scored.Features, state.scored.Linear)
	}
	return kept
}

// rerankWithLLM asks the summariser for a grounded confidence on the top
// tree-ranked candidates. Failures and cancellations leave the candidate
// without a summary, which makes the final blend fall back to the tree score.
func (s *matchService) rerankWithLLM(ctx context.Context, requirement *models.Requirement, scored []*candidateState) {
	if !s.cfg.EnableLLM {
		return
	}

	byLTR := make([]*candidateState, len(scored))
	copy(byLTR, scored)
	sort.SliceStable(byLTR, func(i, j int) bool {
		return byLTR[i].scored.LTR > byLTR[j].scored.LTR
	})
	rerankDepth := min(min(2*s.cfg.TopN, 10), len(byLTR))

	items := make([]ai.WorkItem[*models.MatchSummary], 0, rerankDepth)
	byID := make(map[string]*candidateState, rerankDepth)
	for _, state := range byLTR[:rerankDepth] {
		facts := s.buildFacts(requirement, state)
		id := state.consultant.ID.String()
		byID[id] = state
		items = append(items, ai.WorkItem[*models.MatchSummary]{
			ID: id,
			Execute: func(ctx context.Context) (*models.MatchSummary, error) {
				return s.summarizer.Summarize(ctx, facts)
			},
		})
	}

	for _, result := range ai.Process(ctx, s.pool, items) {
		if result.Err != nil || result.Result == nil {
			continue
		}
		state := byID[result.ID]
		state.summary = result.Result
		state.scored.Summary = result.Result
	}
}

// blend combines the stage scores. The LLM term only participates when a
// grounded summary exists; its weight otherwise folds into the tree ranker.
func (s *matchService) blend(state *candidateState) float64 {
	linearWeight := s.cfg.LinearWeight
	llmWeight := 0.0
	if s.cfg.EnableLLM {
		llmWeight = math.Min(0.3, s.cfg.LLMWeight)
	}
	ltrWeight := math.Max(0.2, 1-linearWeight-llmWeight)

	llmTerm := state.scored.LTR
	if state.summary != nil && state.summary.Grounded {
		llmTerm = clamp01(state.summary.Confidence)
	}

	total := linearWeight + ltrWeight + llmWeight
	return clamp01((linearWeight*state.scored.Linear +
		ltrWeight*state.scored.LTR +
		llmWeight*llmTerm) / total)
}

func (s *matchService) buildExplanation(requirement *models.Requirement, state *candidateState) *models.Explanation {
	facts := s.buildFacts(requirement, state)
	features := state.scored.Features

	explanation := &models.Explanation{
		SchemaVersion: ExplanationSchemaVersion,
		ModelVersion:  ModelVersion,
		RankerVersion: RankerVersion,
		AlignedSkills: facts.AlignedSkills,
		Contributions: Contributions(features),
		Deltas: models.ExplanationDeltas{
			Location:     locationDelta(state.consultant, requirement, features.LocationMatch),
			Rate:         rateDelta(state.consultant.Rate, requirement.MinRate, requirement.MaxRate),
			Availability: availabilityDelta(state.consultant.Availability),
		},
		Scores: models.StageScores{
			Linear: state.scored.Linear,
			LTR:    state.scored.LTR,
			Final:  state.scored.Final,
		},
		Facts: *facts,
	}

	if state.retrieval != nil {
		explanation.Retrieval = models.RetrievalScores{
			VectorScore:  state.retrieval.VectorScore,
			LexicalScore: state.retrieval.LexicalScore,
			Combined:     state.retrieval.TotalScore,
		}
	}
	if state.summary != nil {
		confidence := clamp01(state.summary.Confidence)
		explanation.Scores.LLMConfidence = &confidence
		explanation.Highlights = state.summary.Highlights
	}

	state.scored.Explanation = explanation
	return explanation
}

func (s *matchService) buildFacts(requirement *models.Requirement, state *candidateState) *models.MatchSummaryFacts {
	consultant := state.consultant
	aligned, missing := skillAlignment(consultant.Skills, requirement.Skills)

	facts := &models.MatchSummaryFacts{
		ConsultantName:   strings.TrimSpace(consultant.FirstName + " " + consultant.LastName),
		ConsultantRate:   consultant.Rate,
		Availability:     consultant.Availability,
		RequirementTitle: requirement.Title,
		ClientName:       requirement.ClientName,
		AlignedSkills:    aligned,
		MissingSkills:    missing,
		SkillOverlap:     state.scored.Features.SkillOverlap,
	}
	if consultant.Location != nil {
		facts.ConsultantLocation = *consultant.Location
	}
	if requirement.Location != nil {
		facts.RequirementLocation = *requirement.Location
	}
	if requirement.MinRate != nil && requirement.MaxRate != nil {
		facts.RateRange = []float64{*requirement.MinRate, *requirement.MaxRate}
	}
	if state.retrieval != nil {
		facts.RetrievalScore = state.retrieval.TotalScore
	}
	return facts
}

func skillAlignment(consultantSkills, requirementSkills []models.WeightedSkill) (aligned, missing []string) {
	has := make(map[string]bool, len(consultantSkills))
	for _, skill := range consultantSkills {
		has[strings.ToLower(skill.Name)] = true
	}
	for _, skill := range requirementSkills {
		if has[strings.ToLower(skill.Name)] {
			aligned = append(aligned, skill.Name)
		} else {
			missing = append(missing, skill.Name)
		}
	}
	return aligned, missing
}

func locationDelta(consultant *models.Consultant, requirement *models.Requirement, score float64) models.LocationDelta {
	delta := models.LocationDelta{}
	if consultant.Location != nil {
		delta.ConsultantLocation = *consultant.Location
	}
	if requirement.Location != nil {
		delta.RequirementLocation = *requirement.Location
	}
	switch score {
	case 1:
		delta.Status = models.LocationMatchExact
	case 0.8:
		delta.Status = models.LocationMatchRemote
	case 0.6:
		delta.Status = models.LocationMatchRegion
	case 0.25:
		delta.Status = models.LocationMatchMiss
	default:
		delta.Status = models.LocationMatchUnknown
	}
	return delta
}

func rateDelta(rate, minRate, maxRate *float64) models.RateDelta {
	delta := models.RateDelta{}
	if rate == nil {
		return delta
	}
	switch {
	case minRate != nil && maxRate != nil:
		if *rate >= *minRate && *rate <= *maxRate {
			zero := 0.0
			delta.Delta = &zero
			delta.WithinRange = true
		} else if *rate < *minRate {
			d := *rate - *minRate
			delta.Delta = &d
		} else {
			d := *rate - *maxRate
			delta.Delta = &d
		}
	case minRate != nil:
		d := *rate - *minRate
		delta.Delta = &d
		delta.WithinRange = d == 0
	case maxRate != nil:
		d := *rate - *maxRate
		delta.Delta = &d
		delta.WithinRange = d <= 0
	}
	return delta
}

func availabilityDelta(availability string) models.AvailabilityDelta {
	delta := models.AvailabilityDelta{Availability: availability}
	switch availability {
	case models.AvailabilityAvailable:
		delta.Description = "Available to start immediately"
	case models.AvailabilityInterviewing:
		delta.Description = "Currently interviewing elsewhere"
	case models.AvailabilityAssigned:
		delta.Description = "On an active assignment"
	default:
		delta.Description = "Not currently available"
	}
	return delta
}

func (s *matchService) GetMatch(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	return s.matchRepo.GetByID(ctx, id)
}

func (s *matchService) ListMatches(ctx context.Context, requirementID uuid.UUID, limit int) ([]*models.Match, error) {
	return s.matchRepo.ListByRequirement(ctx, requirementID, limit)
}

func (s *matchService) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	if err := s.matchRepo.UpdateStatus(ctx, id, status); err != nil {
		return err
	}
	if err := s.audit.Record(ctx, "match.status_changed", "MATCH", &id, map[string]any{
		"status": status,
	}, "OK"); err != nil {
		s.logger.Warn("Failed to audit status change", zap.Error(err))
	}
	return nil
}

func (s *matchService) SubmitFeedback(ctx context.Context, feedback *models.MatchFeedback) error {
	if err := s.matchRepo.InsertFeedback(ctx, feedback); err != nil {
		return fmt.Errorf("record feedback: %w", err)
	}
	if err := s.audit.Record(ctx, "match.feedback", "MATCH", &feedback.MatchID, map[string]any{
		"outcome": feedback.Outcome,
	}, "OK"); err != nil {
		s.logger.Warn("Failed to audit feedback", zap.Error(err))
	}
	return nil
}

func (s *matchService) ListFeedback(ctx context.Context, matchID uuid.UUID) ([]*models.MatchFeedback, error) {
	return s.matchRepo.ListFeedback(ctx, matchID)
}

func (s *matchService) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	if err := s.matchRepo.CreateSubmission(ctx, submission); err != nil {
		return err
	}
	if err := s.audit.Record(ctx, "submission.created", "MATCH", &submission.MatchID, map[string]any{
		"status": submission.Status,
	}, "OK"); err != nil {
		s.logger.Warn("Failed to audit submission", zap.Error(err))
	}
	return nil
}

func (s *matchService) UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status string) error {
	return s.matchRepo.UpdateSubmissionStatus(ctx, id, status)
}
