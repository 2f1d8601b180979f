package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/queue"
)

// indexRefreshPayload asks the worker to rebuild the index for one entity type.
type indexRefreshPayload struct {
	EntityType string `json:"entity_type"`
}

// NewIndexRefreshHandler adapts IndexService.Reindex to the queue handler
// contract.
func NewIndexRefreshHandler(index IndexService, scopes *database.TenantScopeProvider) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var payload indexRefreshPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode index refresh payload: %w", err)
		}

		scoped, cleanup, err := scopes.WithTenantScope(ctx, job.TenantID)
		if err != nil {
			return fmt.Errorf("acquire tenant scope: %w", err)
		}
		defer cleanup()

		_, err = index.Reindex(scoped, payload.EntityType)
		return err
	}
}

// evaluationPayload asks the worker to evaluate one window.
type evaluationPayload struct {
	WindowStart time.Time `json:"window_start"`
	WindowEnd   time.Time `json:"window_end"`
}

// NewEvaluationHandler adapts EvaluationService.Run to the queue handler
// contract. The previous snapshot's offline metrics serve as the baseline.
func NewEvaluationHandler(evaluation EvaluationService, scopes *database.TenantScopeProvider) queue.Handler {
	return func(ctx context.Context, job *queue.Job) error {
		var payload evaluationPayload
		if err := json.Unmarshal(job.Payload, &payload); err != nil {
			return fmt.Errorf("decode evaluation payload: %w", err)
		}

		scoped, cleanup, err := scopes.WithTenantScope(ctx, job.TenantID)
		if err != nil {
			return fmt.Errorf("acquire tenant scope: %w", err)
		}
		defer cleanup()

		baseline := baselineMetrics(scoped, evaluation)
		_, err = evaluation.Run(scoped, payload.WindowStart, payload.WindowEnd, baseline)
		return err
	}
}

func baselineMetrics(ctx context.Context, evaluation EvaluationService) *models.EvaluationMetrics {
	previous, err := evaluation.Latest(ctx)
	if err != nil {
		return nil
	}
	offline := previous.Offline
	return &offline
}
