package models

import (
	"time"

	"github.com/google/uuid"
)

// Match statuses.
const (
	MatchStatusReview      = "REVIEW"
	MatchStatusShortlisted = "SHORTLISTED"
	MatchStatusSubmitted   = "SUBMITTED"
	MatchStatusRejected    = "REJECTED"
	MatchStatusHired       = "HIRED"
)

// Feedback outcomes.
const (
	FeedbackPositive = "POSITIVE"
	FeedbackNegative = "NEGATIVE"
	FeedbackNeutral  = "NEUTRAL"
	FeedbackHired    = "HIRED"
	FeedbackRejected = "REJECTED"
)

// Submission statuses. Statuses outside this list contribute zero relevance
// to evaluation.
const (
	SubmissionStatusSubmitted = "SUBMITTED"
	SubmissionStatusInterview = "INTERVIEW"
	SubmissionStatusOffer     = "OFFER"
	SubmissionStatusHired     = "HIRED"
	SubmissionStatusRejected  = "REJECTED"
)

// Match is the scored pairing of a consultant and a requirement.
// Unique by (tenant_id, consultant_id, requirement_id); upserted on every
// match request for the pair.
type Match struct {
	ID            uuid.UUID      `json:"id"`
	TenantID      uuid.UUID      `json:"tenant_id"`
	ConsultantID  uuid.UUID      `json:"consultant_id"`
	RequirementID uuid.UUID      `json:"requirement_id"`
	Score         float64        `json:"score"`
	Status        string         `json:"status"`
	Explanation   *Explanation   `json:"explanation,omitempty"`
	Feedback      map[string]int `json:"feedback,omitempty"` // aggregate counts by outcome
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

// MatchFeatureSnapshot is immutable scoring history for one match run.
type MatchFeatureSnapshot struct {
	ID           uuid.UUID     `json:"id"`
	MatchID      uuid.UUID     `json:"match_id"`
	ModelVersion string        `json:"model_version"`
	Features     FeatureVector `json:"features"`
	Explanation  *Explanation  `json:"explanation,omitempty"`
	CreatedAt    time.Time     `json:"created_at"`
}

// MatchFeedback is one human feedback event on a match.
type MatchFeedback struct {
	ID        uuid.UUID      `json:"id"`
	MatchID   uuid.UUID      `json:"match_id"`
	TenantID  uuid.UUID      `json:"tenant_id"`
	Outcome   string         `json:"outcome"`
	Rating    *int           `json:"rating,omitempty"`
	Reason    *string        `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Submission tracks a consultant submission against a requirement, used by
// evaluation's submission relevance.
type Submission struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	MatchID   uuid.UUID `json:"match_id"`
	Status    string    `json:"status"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FeatureVector holds all matching features, each in [0,1].
type FeatureVector struct {
	SkillOverlap  float64 `json:"skill_overlap"`
	VectorScore   float64 `json:"vector_score"`
	LexicalScore  float64 `json:"lexical_score"`
	Availability  float64 `json:"availability"`
	LocationMatch float64 `json:"location_match"`
	RateAlignment float64 `json:"rate_alignment"`
	RecencyScore  float64 `json:"recency_score"`
}

// FeatureContribution is one weighted feature's share of the linear score.
type FeatureContribution struct {
	Feature      string  `json:"feature"`
	Value        float64 `json:"value"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
}

// Explanation is the grounded, versioned explanation persisted with a match.
type Explanation struct {
	SchemaVersion  int                   `json:"schema_version"`
	ModelVersion   string                `json:"model_version"`
	RankerVersion  string                `json:"ranker_version"`
	AlignedSkills  []string              `json:"aligned_skills"`
	Contributions  []FeatureContribution `json:"contributions"`
	Deltas         ExplanationDeltas     `json:"deltas"`
	Retrieval      RetrievalScores       `json:"retrieval"`
	Scores         StageScores           `json:"scores"`
	Highlights     []string              `json:"highlights,omitempty"`
	Facts          MatchSummaryFacts     `json:"facts"`
}

// ExplanationDeltas describes how the candidate deviates from the requirement.
type ExplanationDeltas struct {
	Location     LocationDelta     `json:"location"`
	Rate         RateDelta         `json:"rate"`
	Availability AvailabilityDelta `json:"availability"`
}

// Location delta statuses.
const (
	LocationMatchExact   = "MATCH"
	LocationMatchRemote  = "REMOTE"
	LocationMatchRegion  = "REGION"
	LocationMatchMiss    = "MISMATCH"
	LocationMatchUnknown = "UNKNOWN"
)

// LocationDelta describes the location relationship.
type LocationDelta struct {
	Status              string `json:"status"`
	ConsultantLocation  string `json:"consultant_location,omitempty"`
	RequirementLocation string `json:"requirement_location,omitempty"`
}

// RateDelta describes the rate relationship.
type RateDelta struct {
	Delta       *float64 `json:"delta,omitempty"`
	WithinRange bool     `json:"within_range"`
}

// AvailabilityDelta describes the candidate's availability.
type AvailabilityDelta struct {
	Availability string `json:"availability"`
	Description  string `json:"description"`
}

// RetrievalScores are the hybrid sub-scores used for retrieval.
type RetrievalScores struct {
	VectorScore  float64 `json:"vector_score"`
	LexicalScore float64 `json:"lexical_score"`
	Combined     float64 `json:"combined"`
}

// StageScores are the four scoring-stage outputs, each in [0,1].
type StageScores struct {
	Linear        float64  `json:"linear"`
	LTR           float64  `json:"ltr"`
	LLMConfidence *float64 `json:"llm_confidence,omitempty"`
	Final         float64  `json:"final"`
}

// MatchSummaryFacts is the grounded fact sheet handed to the summariser.
// The summariser must never introduce facts absent from this structure.
type MatchSummaryFacts struct {
	ConsultantName      string   `json:"consultant_name"`
	ConsultantLocation  string   `json:"consultant_location,omitempty"`
	ConsultantRate      *float64 `json:"consultant_rate,omitempty"`
	Availability        string   `json:"availability"`
	RequirementTitle    string   `json:"requirement_title"`
	ClientName          string   `json:"client_name"`
	RequirementLocation string   `json:"requirement_location,omitempty"`
	RateRange           []float64 `json:"rate_range,omitempty"`
	AlignedSkills       []string `json:"aligned_skills"`
	MissingSkills       []string `json:"missing_skills,omitempty"`
	SkillOverlap        float64  `json:"skill_overlap"`
	RetrievalScore      float64  `json:"retrieval_score"`
}

// MatchSummary is the summariser collaborator output.
type MatchSummary struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Confidence float64  `json:"confidence"`
	Grounded   bool     `json:"grounded"`
	Provider   string   `json:"provider"`
}

// ScoredCandidate is a fully scored consultant for one requirement.
type ScoredCandidate struct {
	ConsultantID uuid.UUID         `json:"consultant_id"`
	Features     FeatureVector     `json:"features"`
	Linear       float64           `json:"linear"`
	LTR          float64           `json:"ltr"`
	Final        float64           `json:"final"`
	Summary      *MatchSummary     `json:"summary,omitempty"`
	Explanation  *Explanation      `json:"explanation,omitempty"`
}
