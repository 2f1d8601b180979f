package ai

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// WorkerPoolConfig configures the collaborator worker pool.
type WorkerPoolConfig struct {
	MaxConcurrent int // Maximum concurrent collaborator calls (default: 8)
}

// DefaultWorkerPoolConfig returns sensible defaults.
func DefaultWorkerPoolConfig() WorkerPoolConfig {
	return WorkerPoolConfig{
		MaxConcurrent: 8,
	}
}

// WorkerPool manages concurrent collaborator calls with bounded parallelism.
type WorkerPool struct {
	config WorkerPoolConfig
	logger *zap.Logger
}

// NewWorkerPool creates a new worker pool.
func NewWorkerPool(config WorkerPoolConfig, logger *zap.Logger) *WorkerPool {
	if config.MaxConcurrent < 1 {
		config.MaxConcurrent = 8
	}
	return &WorkerPool{
		config: config,
		logger: logger.Named("ai-worker-pool"),
	}
}

// WorkItem represents a unit of work to be processed.
type WorkItem[T any] struct {
	ID      string
	Execute func(ctx context.Context) (T, error)
}

// WorkResult represents the result of a work item.
type WorkResult[T any] struct {
	ID     string
	Result T
	Err    error
}

// Process executes all work items with bounded parallelism. Returns results
// in completion order. Continues processing all items even if some fail.
func Process[T any](
	ctx context.Context,
	pool *WorkerPool,
	items []WorkItem[T],
) []WorkResult[T] {
	if len(items) == 0 {
		return nil
	}

	resultsChan := make(chan WorkResult[T], len(items))
	sem := make(chan struct{}, pool.config.MaxConcurrent)

	var wg sync.WaitGroup
	for _, item := range items {
		wg.Add(1)
		go func(item WorkItem[T]) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
				defer func() { <-sem }()
			case <-ctx.Done():
				resultsChan <- WorkResult[T]{ID: item.ID, Err: ctx.Err()}
				return
			}

			result, err := item.Execute(ctx)
			if err != nil {
				pool.logger.Debug("Work item failed",
					zap.String("id", item.ID),
					zap.Error(err))
			}
			resultsChan <- WorkResult[T]{ID: item.ID, Result: result, Err: err}
		}(item)
	}

	go func() {
		wg.Wait()
		close(resultsChan)
	}()

	results := make([]WorkResult[T], 0, len(items))
	for result := range resultsChan {
		results = append(results, result)
	}
	return results
}
