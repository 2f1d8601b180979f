package queue

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Handler processes one job. A non-nil error triggers a retry until the
// configured attempt budget is exhausted, then the job dead-letters.
type Handler func(ctx context.Context, job *Job) error

// Workers consumes registered job types from the queue with bounded
// concurrency per type. Polling rather than blocking reads keeps shutdown
// deterministic: in-flight jobs finish, nothing new is started.
type Workers struct {
	queue  *Queue
	logger *zap.Logger

	mu       sync.Mutex
	handlers map[string]Handler

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewWorkers creates a worker set over the queue.
func NewWorkers(queue *Queue, logger *zap.Logger) *Workers {
	return &Workers{
		queue:    queue,
		logger:   logger.Named("workers"),
		handlers: make(map[string]Handler),
	}
}

// Register binds a handler to a job type. Must be called before Start.
func (w *Workers) Register(jobType string, handler Handler) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.handlers[jobType] = handler
}

// Start launches the polling loops. Each registered type gets the configured
// number of concurrent workers. Jobs left on a processing list by a previous
// instance are returned to pending before any worker begins polling.
func (w *Workers) Start(ctx context.Context) {
	ctx, w.cancel = context.WithCancel(ctx)

	w.mu.Lock()
	defer w.mu.Unlock()
	for jobType := range w.handlers {
		if _, err := w.queue.ReclaimProcessing(ctx, jobType); err != nil {
			w.logger.Error("Failed to reclaim in-flight jobs",
				zap.String("type", jobType),
				zap.Error(err))
		}
	}
	for jobType, handler := range w.handlers {
		for i := 0; i < w.queue.cfg.Concurrency; i++ {
			w.wg.Add(1)
			go w.run(ctx, jobType, handler)
		}
	}
	w.logger.Info("Workers started",
		zap.Int("types", len(w.handlers)),
		zap.Int("concurrency", w.queue.cfg.Concurrency))
}

// Stop cancels the polling loops and waits for in-flight jobs to finish.
func (w *Workers) Stop() {
	if w.cancel != nil {
		w.cancel()
	}
	w.wg.Wait()
	w.logger.Info("Workers stopped")
}

func (w *Workers) run(ctx context.Context, jobType string, handler Handler) {
	defer w.wg.Done()

	ticker := time.NewTicker(w.queue.cfg.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		if err := w.queue.promoteDue(ctx, jobType); err != nil {
			if ctx.Err() != nil {
				return
			}
			w.logger.Warn("Failed to promote delayed jobs",
				zap.String("type", jobType),
				zap.Error(err))
			continue
		}

		// Drain everything that is ready before sleeping again.
		for {
			job, raw, err := w.queue.pop(ctx, jobType)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				w.logger.Warn("Failed to pop job",
					zap.String("type", jobType),
					zap.Error(err))
				break
			}
			if job == nil {
				break
			}
			w.process(ctx, job, raw, handler)
			if ctx.Err() != nil {
				return
			}
		}
	}
}

func (w *Workers) process(ctx context.Context, job *Job, raw string, handler Handler) {
	// A job popped before shutdown must still reach a durable outcome: the
	// attempt and its retry or dead-letter writes run on a context that
	// survives Stop cancelling the polling loops. The soft deadline bounds a
	// single attempt, not the job's lifetime.
	base := context.WithoutCancel(ctx)
	jobCtx, cancel := context.WithTimeout(base, w.queue.cfg.JobSoftDeadline)
	defer cancel()

	start := time.Now()
	err := handler(jobCtx, job)
	if err == nil {
		w.logger.Debug("Job completed",
			zap.String("job_id", job.ID),
			zap.String("type", job.Type),
			zap.Duration("elapsed", time.Since(start)))
		w.ack(base, job, raw)
		return
	}

	w.logger.Warn("Job failed",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempt", job.Attempt),
		zap.Error(err))

	if job.Attempt >= w.queue.cfg.Attempts {
		if dlqErr := w.queue.deadLetter(base, job, err.Error()); dlqErr != nil {
			// Leave the job on the processing list; the next Start reclaims it.
			w.logger.Error("Failed to dead-letter job",
				zap.String("job_id", job.ID),
				zap.Error(dlqErr))
			return
		}
		w.ack(base, job, raw)
		return
	}

	delay := w.queue.backoffDelay(job.Attempt)
	job.Attempt++
	if retryErr := w.queue.enqueueDelayed(base, job, time.Now().Add(delay)); retryErr != nil {
		// Leave the job on the processing list; the next Start reclaims it.
		w.logger.Error("Failed to schedule retry",
			zap.String("job_id", job.ID),
			zap.Error(retryErr))
		return
	}
	w.ack(base, job, raw)
	w.logger.Info(fmt.Sprintf("Job retry scheduled in %s", delay),
		zap.String("job_id", job.ID),
		zap.Int("attempt", job.Attempt))
}

// ack is best-effort from the worker's side: a failed ack leaves a duplicate
// on the processing list that the next Start reclaims, which at-least-once
// delivery tolerates.
func (w *Workers) ack(ctx context.Context, job *Job, raw string) {
	if err := w.queue.ack(ctx, job.Type, raw); err != nil {
		w.logger.Warn("Failed to ack job",
			zap.String("job_id", job.ID),
			zap.Error(err))
	}
}
