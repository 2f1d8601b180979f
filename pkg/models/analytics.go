package models

import (
	"time"

	"github.com/google/uuid"
)

// EvaluationMetrics are ranking quality metrics over one window.
type EvaluationMetrics struct {
	NDCGAt10     float64 `json:"ndcg_at_10"`
	HitRateAt10  float64 `json:"hit_rate_at_10"`
	Coverage     float64 `json:"coverage"`
	SampleSize   int     `json:"sample_size"`
}

// BaselineDelta is metric minus baseline, captured when a baseline is supplied.
type BaselineDelta struct {
	NDCGAt10    float64 `json:"ndcg_at_10"`
	HitRateAt10 float64 `json:"hit_rate_at_10"`
	Coverage    float64 `json:"coverage"`
}

// AnalyticsSnapshot persists one evaluation run for a tenant.
type AnalyticsSnapshot struct {
	ID            uuid.UUID          `json:"id"`
	TenantID      uuid.UUID          `json:"tenant_id"`
	WindowStart   time.Time          `json:"window_start"`
	WindowEnd     time.Time          `json:"window_end"`
	Offline       EvaluationMetrics  `json:"offline"`
	Online        EvaluationMetrics  `json:"online"`
	BaselineDelta *BaselineDelta     `json:"baseline_delta,omitempty"`
	ReviewSummary *string            `json:"review_summary,omitempty"`
	CreatedAt     time.Time          `json:"created_at"`
}
