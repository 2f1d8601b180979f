package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// EvaluatedMatch joins a match with the signals evaluation needs: feedback
// outcomes and submission statuses, in chronological order.
type EvaluatedMatch struct {
	Match              *models.Match
	FeedbackOutcomes   []string
	SubmissionStatuses []string
}

// MatchRepository provides data access for matches, feature snapshots,
// feedback, and submissions.
type MatchRepository interface {
	// UpsertWithSnapshot writes the match row and its immutable feature
	// snapshot in one transaction. The match is unique per
	// (tenant, consultant, requirement); re-matching updates score and
	// explanation, and appends a new snapshot.
	UpsertWithSnapshot(ctx context.Context, match *models.Match, snapshot *models.MatchFeatureSnapshot) error
	GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error)
	GetByPair(ctx context.Context, consultantID, requirementID uuid.UUID) (*models.Match, error)
	ListByRequirement(ctx context.Context, requirementID uuid.UUID, limit int) ([]*models.Match, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status string) error

	// InsertFeedback records one feedback event and recomputes the match's
	// aggregate outcome counts in the same transaction.
	InsertFeedback(ctx context.Context, feedback *models.MatchFeedback) error
	ListFeedback(ctx context.Context, matchID uuid.UUID) ([]*models.MatchFeedback, error)

	CreateSubmission(ctx context.Context, submission *models.Submission) error
	UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status string) error

	// ListEvaluated returns matches created inside the window together with
	// their feedback outcomes and submission statuses.
	ListEvaluated(ctx context.Context, windowStart, windowEnd time.Time) ([]*EvaluatedMatch, error)
	ListSnapshots(ctx context.Context, matchID uuid.UUID) ([]*models.MatchFeatureSnapshot, error)
}

type matchRepository struct{}

// NewMatchRepository creates a new MatchRepository.
func NewMatchRepository() MatchRepository {
	return &matchRepository{}
}

var _ MatchRepository = (*matchRepository)(nil)

const matchColumns = `id, tenant_id, consultant_id, requirement_id, score, status,
	explanation, feedback, created_at, updated_at`

func (r *matchRepository) UpsertWithSnapshot(ctx context.Context, match *models.Match, snapshot *models.MatchFeatureSnapshot) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if match.ID == uuid.Nil {
		match.ID = uuid.New()
	}
	match.TenantID = scope.TenantID
	now := time.Now()
	match.UpdatedAt = now
	if match.CreatedAt.IsZero() {
		match.CreatedAt = now
	}
	if match.Status == "" {
		match.Status = models.MatchStatusReview
	}

	explanationJSON, err := marshalExplanation(match.Explanation)
	if err != nil {
		return err
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	// On re-match the existing row keeps its id, status, and feedback; only
	// score and explanation move.
	err = tx.QueryRow(ctx, `
		INSERT INTO engine_matches (
			id, tenant_id, consultant_id, requirement_id, score, status,
			explanation, feedback, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, '{}', $8, $9)
		ON CONFLICT (tenant_id, consultant_id, requirement_id)
		DO UPDATE SET score = EXCLUDED.score,
		              explanation = EXCLUDED.explanation,
		              updated_at = EXCLUDED.updated_at
		RETURNING id, status, created_at`,
		match.ID, match.TenantID, match.ConsultantID, match.RequirementID,
		match.Score, match.Status, explanationJSON, match.CreatedAt, match.UpdatedAt,
	).Scan(&match.ID, &match.Status, &match.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert match: %w", err)
	}

	if snapshot != nil {
		if snapshot.ID == uuid.Nil {
			snapshot.ID = uuid.New()
		}
		snapshot.MatchID = match.ID
		snapshot.CreatedAt = now

		featuresJSON, err := json.Marshal(snapshot.Features)
		if err != nil {
			return fmt.Errorf("failed to marshal feature vector: %w", err)
		}
		snapshotExplanationJSON, err := marshalExplanation(snapshot.Explanation)
		if err != nil {
			return err
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO engine_match_feature_snapshots (id, match_id, model_version, features, explanation, created_at)
			VALUES ($1, $2, $3, $4, $5, $6)`,
			snapshot.ID, snapshot.MatchID, snapshot.ModelVersion,
			featuresJSON, snapshotExplanationJSON, snapshot.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert feature snapshot: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit match: %w", err)
	}
	return nil
}

func (r *matchRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Match, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	row := scope.Conn.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM engine_matches WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID, id,
	)
	return scanMatch(row)
}

func (r *matchRepository) GetByPair(ctx context.Context, consultantID, requirementID uuid.UUID) (*models.Match, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	row := scope.Conn.QueryRow(ctx,
		`SELECT `+matchColumns+` FROM engine_matches
		 WHERE tenant_id = $1 AND consultant_id = $2 AND requirement_id = $3`,
		scope.TenantID, consultantID, requirementID,
	)
	return scanMatch(row)
}

func (r *matchRepository) ListByRequirement(ctx context.Context, requirementID uuid.UUID, limit int) ([]*models.Match, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}
	if limit <= 0 {
		limit = 50
	}

	rows, err := scope.Conn.Query(ctx,
		`SELECT `+matchColumns+` FROM engine_matches
		 WHERE tenant_id = $1 AND requirement_id = $2
		 ORDER BY score DESC LIMIT $3`,
		scope.TenantID, requirementID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list matches: %w", err)
	}
	defer rows.Close()

	var matches []*models.Match
	for rows.Next() {
		match, err := scanMatch(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, match)
	}
	return matches, rows.Err()
}

func (r *matchRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	tag, err := scope.Conn.Exec(ctx,
		`UPDATE engine_matches SET status = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID, id, status, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update match status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *matchRepository) InsertFeedback(ctx context.Context, feedback *models.MatchFeedback) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if feedback.ID == uuid.Nil {
		feedback.ID = uuid.New()
	}
	feedback.TenantID = scope.TenantID
	feedback.CreatedAt = time.Now()

	var metadataJSON []byte
	if feedback.Metadata != nil {
		raw, err := json.Marshal(feedback.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal feedback metadata: %w", err)
		}
		metadataJSON = raw
	}

	tx, err := scope.Conn.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback on defer is best-effort

	tag, err := tx.Exec(ctx, `
		INSERT INTO engine_match_feedback (id, match_id, tenant_id, outcome, rating, reason, metadata, created_at)
		SELECT $1, $2, $3, $4, $5, $6, $7, $8
		WHERE EXISTS (SELECT 1 FROM engine_matches WHERE tenant_id = $3 AND id = $2)`,
		feedback.ID, feedback.MatchID, feedback.TenantID, feedback.Outcome,
		feedback.Rating, feedback.Reason, metadataJSON, feedback.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert match feedback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}

	// Keep the aggregate counts on the match in step with the event log.
	_, err = tx.Exec(ctx, `
		UPDATE engine_matches m
		SET feedback = agg.counts, updated_at = $3
		FROM (
			SELECT jsonb_object_agg(outcome, n) AS counts
			FROM (
				SELECT outcome, count(*) AS n
				FROM engine_match_feedback
				WHERE tenant_id = $1 AND match_id = $2
				GROUP BY outcome
			) per_outcome
		) agg
		WHERE m.tenant_id = $1 AND m.id = $2`,
		scope.TenantID, feedback.MatchID, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to recompute feedback aggregate: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit match feedback: %w", err)
	}
	return nil
}

func (r *matchRepository) ListFeedback(ctx context.Context, matchID uuid.UUID) ([]*models.MatchFeedback, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT id, match_id, tenant_id, outcome, rating, reason, metadata, created_at
		FROM engine_match_feedback
		WHERE tenant_id = $1 AND match_id = $2
		ORDER BY created_at ASC`,
		scope.TenantID, matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list match feedback: %w", err)
	}
	defer rows.Close()

	var events []*models.MatchFeedback
	for rows.Next() {
		var feedback models.MatchFeedback
		var metadataJSON []byte
		if err := rows.Scan(
			&feedback.ID, &feedback.MatchID, &feedback.TenantID, &feedback.Outcome,
			&feedback.Rating, &feedback.Reason, &metadataJSON, &feedback.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan match feedback: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &feedback.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal feedback metadata: %w", err)
			}
		}
		events = append(events, &feedback)
	}
	return events, rows.Err()
}

func (r *matchRepository) CreateSubmission(ctx context.Context, submission *models.Submission) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	if submission.ID == uuid.Nil {
		submission.ID = uuid.New()
	}
	submission.TenantID = scope.TenantID
	now := time.Now()
	submission.CreatedAt = now
	submission.UpdatedAt = now
	if submission.Status == "" {
		submission.Status = models.SubmissionStatusSubmitted
	}

	tag, err := scope.Conn.Exec(ctx, `
		INSERT INTO engine_submissions (id, tenant_id, match_id, status, created_at, updated_at)
		SELECT $1, $2, $3, $4, $5, $6
		WHERE EXISTS (SELECT 1 FROM engine_matches WHERE tenant_id = $2 AND id = $3)`,
		submission.ID, submission.TenantID, submission.MatchID, submission.Status,
		submission.CreatedAt, submission.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create submission: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *matchRepository) UpdateSubmissionStatus(ctx context.Context, id uuid.UUID, status string) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	tag, err := scope.Conn.Exec(ctx,
		`UPDATE engine_submissions SET status = $3, updated_at = $4 WHERE tenant_id = $1 AND id = $2`,
		scope.TenantID, id, status, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to update submission status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return apperrors.ErrNotFound
	}
	return nil
}

func (r *matchRepository) ListEvaluated(ctx context.Context, windowStart, windowEnd time.Time) ([]*EvaluatedMatch, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT `+matchColumns+`,
		       coalesce((SELECT array_agg(f.outcome ORDER BY f.created_at)
		                 FROM engine_match_feedback f
		                 WHERE f.tenant_id = m.tenant_id AND f.match_id = m.id), '{}'),
		       coalesce((SELECT array_agg(s.status ORDER BY s.created_at)
		                 FROM engine_submissions s
		                 WHERE s.tenant_id = m.tenant_id AND s.match_id = m.id), '{}')
		FROM engine_matches m
		WHERE m.tenant_id = $1 AND m.created_at >= $2 AND m.created_at < $3
		ORDER BY m.requirement_id, m.score DESC`,
		scope.TenantID, windowStart, windowEnd,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list evaluated matches: %w", err)
	}
	defer rows.Close()

	var evaluated []*EvaluatedMatch
	for rows.Next() {
		var match models.Match
		var explanationJSON, feedbackJSON []byte
		var outcomes, statuses []string
		if err := rows.Scan(
			&match.ID, &match.TenantID, &match.ConsultantID, &match.RequirementID,
			&match.Score, &match.Status, &explanationJSON, &feedbackJSON,
			&match.CreatedAt, &match.UpdatedAt, &outcomes, &statuses,
		); err != nil {
			return nil, fmt.Errorf("failed to scan evaluated match: %w", err)
		}
		if err := unmarshalMatchJSON(&match, explanationJSON, feedbackJSON); err != nil {
			return nil, err
		}
		evaluated = append(evaluated, &EvaluatedMatch{
			Match:              &match,
			FeedbackOutcomes:   outcomes,
			SubmissionStatuses: statuses,
		})
	}
	return evaluated, rows.Err()
}

func (r *matchRepository) ListSnapshots(ctx context.Context, matchID uuid.UUID) ([]*models.MatchFeatureSnapshot, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	rows, err := scope.Conn.Query(ctx, `
		SELECT fs.id, fs.match_id, fs.model_version, fs.features, fs.explanation, fs.created_at
		FROM engine_match_feature_snapshots fs
		JOIN engine_matches m ON m.id = fs.match_id
		WHERE m.tenant_id = $1 AND fs.match_id = $2
		ORDER BY fs.created_at ASC`,
		scope.TenantID, matchID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list feature snapshots: %w", err)
	}
	defer rows.Close()

	var snapshots []*models.MatchFeatureSnapshot
	for rows.Next() {
		var snapshot models.MatchFeatureSnapshot
		var featuresJSON, explanationJSON []byte
		if err := rows.Scan(
			&snapshot.ID, &snapshot.MatchID, &snapshot.ModelVersion,
			&featuresJSON, &explanationJSON, &snapshot.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("failed to scan feature snapshot: %w", err)
		}
		if err := json.Unmarshal(featuresJSON, &snapshot.Features); err != nil {
			return nil, fmt.Errorf("failed to unmarshal feature vector: %w", err)
		}
		if len(explanationJSON) > 0 {
			snapshot.Explanation = &models.Explanation{}
			if err := json.Unmarshal(explanationJSON, snapshot.Explanation); err != nil {
				return nil, fmt.Errorf("failed to unmarshal snapshot explanation: %w", err)
			}
		}
		snapshots = append(snapshots, &snapshot)
	}
	return snapshots, rows.Err()
}

func marshalExplanation(explanation *models.Explanation) ([]byte, error) {
	if explanation == nil {
		return nil, nil
	}
	raw, err := json.Marshal(explanation)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal explanation: %w", err)
	}
	return raw, nil
}

func unmarshalMatchJSON(match *models.Match, explanationJSON, feedbackJSON []byte) error {
	if len(explanationJSON) > 0 {
		match.Explanation = &models.Explanation{}
		if err := json.Unmarshal(explanationJSON, match.Explanation); err != nil {
			return fmt.Errorf("failed to unmarshal explanation: %w", err)
		}
	}
	if len(feedbackJSON) > 0 {
		if err := json.Unmarshal(feedbackJSON, &match.Feedback); err != nil {
			return fmt.Errorf("failed to unmarshal feedback aggregate: %w", err)
		}
	}
	return nil
}

func scanMatch(row pgx.Row) (*models.Match, error) {
	var match models.Match
	var explanationJSON, feedbackJSON []byte
	err := row.Scan(
		&match.ID, &match.TenantID, &match.ConsultantID, &match.RequirementID,
		&match.Score, &match.Status, &explanationJSON, &feedbackJSON,
		&match.CreatedAt, &match.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan match: %w", err)
	}
	if err := unmarshalMatchJSON(&match, explanationJSON, feedbackJSON); err != nil {
		return nil, err
	}
	return &match, nil
}
