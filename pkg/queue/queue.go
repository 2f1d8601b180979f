package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/config"
)

// Logical queue names processed by the background workers.
const (
	TypeResumeIngestion      = "resume.ingestion"
	TypeRequirementIngestion = "requirement.ingestion"
	TypeIndexRefresh         = "index.refresh"
	TypeEvaluation           = "evaluation.run"
)

// Job is one unit of background work. Payload is opaque to the queue.
type Job struct {
	ID         string          `json:"id"`
	Type       string          `json:"type"`
	TenantID   uuid.UUID       `json:"tenant_id"`
	Payload    json.RawMessage `json:"payload"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// DeadLetter wraps a job that exhausted its attempts.
type DeadLetter struct {
	FailedAt     time.Time `json:"failed_at"`
	Reason       string    `json:"reason"`
	OriginalData Job       `json:"original_data"`
}

// Queue is a Redis-backed work queue with delayed retries and a dead-letter
// list per job type. Enqueues are idempotent on job ID.
type Queue struct {
	client *redis.Client
	cfg    *config.QueueConfig
	logger *zap.Logger
}

// NewQueue creates a Queue over the shared Redis client.
func NewQueue(client *redis.Client, cfg *config.QueueConfig, logger *zap.Logger) *Queue {
	return &Queue{
		client: client,
		cfg:    cfg,
		logger: logger.Named("queue"),
	}
}

func pendingKey(jobType string) string    { return "queue:" + jobType }
func processingKey(jobType string) string { return "queue:" + jobType + ":processing" }
func delayedKey(jobType string) string    { return "queue:" + jobType + ":delayed" }
func dlqKey(jobType string) string        { return "queue:" + jobType + ":dlq" }
func seenKey(jobID string) string         { return "queue:seen:" + jobID }

// seenTTL bounds how long enqueue idempotency is enforced for a job ID.
const seenTTL = 24 * time.Hour

// Enqueue pushes a job onto its pending list. A job ID that was already
// enqueued within the idempotency window is silently dropped. Returns
// apperrors.ErrQueueSaturated when the pending list is at the high-water mark.
func (q *Queue) Enqueue(ctx context.Context, job *Job) error {
	if job.ID == "" {
		job.ID = uuid.NewString()
	}
	if job.Attempt == 0 {
		job.Attempt = 1
	}
	job.EnqueuedAt = time.Now()

	depth, err := q.client.LLen(ctx, pendingKey(job.Type)).Result()
	if err != nil {
		return fmt.Errorf("failed to check queue depth: %w", err)
	}
	if depth >= q.cfg.HighWaterMark {
		q.logger.Warn("Queue at high-water mark, rejecting job",
			zap.String("type", job.Type),
			zap.Int64("depth", depth))
		return apperrors.ErrQueueSaturated
	}

	fresh, err := q.client.SetNX(ctx, seenKey(job.ID), 1, seenTTL).Result()
	if err != nil {
		return fmt.Errorf("failed to check job idempotency: %w", err)
	}
	if !fresh {
		q.logger.Debug("Duplicate job dropped", zap.String("job_id", job.ID))
		return nil
	}

	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job: %w", err)
	}
	if err := q.client.LPush(ctx, pendingKey(job.Type), raw).Err(); err != nil {
		return fmt.Errorf("failed to enqueue job: %w", err)
	}

	q.logger.Debug("Job enqueued",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type))
	return nil
}

// enqueueDelayed schedules a retry without re-checking idempotency; the job
// has already been admitted once.
func (q *Queue) enqueueDelayed(ctx context.Context, job *Job, readyAt time.Time) error {
	raw, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal delayed job: %w", err)
	}
	err = q.client.ZAdd(ctx, delayedKey(job.Type), redis.Z{
		Score:  float64(readyAt.UnixMilli()),
		Member: raw,
	}).Err()
	if err != nil {
		return fmt.Errorf("failed to schedule delayed job: %w", err)
	}
	return nil
}

// promoteDue moves delayed jobs whose retry time has arrived back onto the
// pending list.
func (q *Queue) promoteDue(ctx context.Context, jobType string) error {
	now := float64(time.Now().UnixMilli())
	members, err := q.client.ZRangeByScore(ctx, delayedKey(jobType), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%f", now),
	}).Result()
	if err != nil {
		return fmt.Errorf("failed to read delayed jobs: %w", err)
	}
	for _, member := range members {
		removed, err := q.client.ZRem(ctx, delayedKey(jobType), member).Result()
		if err != nil {
			return fmt.Errorf("failed to remove delayed job: %w", err)
		}
		if removed == 0 {
			// Another worker promoted it first.
			continue
		}
		if err := q.client.LPush(ctx, pendingKey(jobType), member).Err(); err != nil {
			return fmt.Errorf("failed to promote delayed job: %w", err)
		}
	}
	return nil
}

// pop moves the oldest pending job onto the processing list and returns it,
// or returns nil when the queue is empty. The raw payload is the ack handle:
// a job stays on the processing list until ack confirms its outcome was
// recorded, so a crash mid-job leaves it reclaimable instead of lost.
func (q *Queue) pop(ctx context.Context, jobType string) (*Job, string, error) {
	raw, err := q.client.LMove(ctx, pendingKey(jobType), processingKey(jobType), "RIGHT", "LEFT").Result()
	if err != nil {
		if err == redis.Nil {
			return nil, "", nil
		}
		return nil, "", fmt.Errorf("failed to pop job: %w", err)
	}
	var job Job
	if err := json.Unmarshal([]byte(raw), &job); err != nil {
		return nil, "", fmt.Errorf("failed to unmarshal job: %w", err)
	}
	return &job, raw, nil
}

// ack removes a job from the processing list after its outcome (completion,
// retry schedule, or dead letter) has been recorded.
func (q *Queue) ack(ctx context.Context, jobType, raw string) error {
	if err := q.client.LRem(ctx, processingKey(jobType), 1, raw).Err(); err != nil {
		return fmt.Errorf("failed to ack job: %w", err)
	}
	return nil
}

// ReclaimProcessing returns jobs abandoned on the processing list (a previous
// instance crashed or was killed mid-job) to the pending list. Called once on
// worker startup, before any worker begins polling.
func (q *Queue) ReclaimProcessing(ctx context.Context, jobType string) (int, error) {
	reclaimed := 0
	for {
		_, err := q.client.LMove(ctx, processingKey(jobType), pendingKey(jobType), "RIGHT", "LEFT").Result()
		if err != nil {
			if err == redis.Nil {
				break
			}
			return reclaimed, fmt.Errorf("failed to reclaim processing job: %w", err)
		}
		reclaimed++
	}
	if reclaimed > 0 {
		q.logger.Warn("Reclaimed abandoned in-flight jobs",
			zap.String("type", jobType),
			zap.Int("count", reclaimed))
	}
	return reclaimed, nil
}

// deadLetter moves an exhausted job onto the dead-letter list.
func (q *Queue) deadLetter(ctx context.Context, job *Job, reason string) error {
	entry := DeadLetter{
		FailedAt:     time.Now(),
		Reason:       reason,
		OriginalData: *job,
	}
	raw, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal dead letter: %w", err)
	}
	if err := q.client.LPush(ctx, dlqKey(job.Type), raw).Err(); err != nil {
		return fmt.Errorf("failed to push dead letter: %w", err)
	}
	q.logger.Error("Job moved to dead-letter queue",
		zap.String("job_id", job.ID),
		zap.String("type", job.Type),
		zap.Int("attempts", job.Attempt),
		zap.String("reason", reason))
	return nil
}

// Depth returns the pending list length for one job type.
func (q *Queue) Depth(ctx context.Context, jobType string) (int64, error) {
	depth, err := q.client.LLen(ctx, pendingKey(jobType)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read queue depth: %w", err)
	}
	return depth, nil
}

// DeadLetterDepth returns the dead-letter list length for one job type.
func (q *Queue) DeadLetterDepth(ctx context.Context, jobType string) (int64, error) {
	depth, err := q.client.LLen(ctx, dlqKey(jobType)).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to read dead-letter depth: %w", err)
	}
	return depth, nil
}

// DrainDeadLetters requeues up to limit dead-lettered jobs back onto the
// pending list, oldest first, with a fresh attempt counter. Returns the number
// of jobs requeued.
func (q *Queue) DrainDeadLetters(ctx context.Context, jobType string, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}
	requeued := 0
	for i := 0; i < limit; i++ {
		raw, err := q.client.RPop(ctx, dlqKey(jobType)).Result()
		if err != nil {
			if err == redis.Nil {
				break
			}
			return requeued, fmt.Errorf("failed to drain dead letter: %w", err)
		}
		var entry DeadLetter
		if err := json.Unmarshal([]byte(raw), &entry); err != nil {
			return requeued, fmt.Errorf("failed to unmarshal dead letter: %w", err)
		}
		job := entry.OriginalData
		job.Attempt = 1
		jobRaw, err := json.Marshal(&job)
		if err != nil {
			return requeued, fmt.Errorf("failed to marshal requeued job: %w", err)
		}
		if err := q.client.LPush(ctx, pendingKey(jobType), jobRaw).Err(); err != nil {
			return requeued, fmt.Errorf("failed to requeue dead letter: %w", err)
		}
		requeued++
	}
	if requeued > 0 {
		q.logger.Info("Dead letters requeued",
			zap.String("type", jobType),
			zap.Int("count", requeued))
	}
	return requeued, nil
}

// backoffDelay returns the retry delay for a given attempt number, doubling
// from the configured base.
func (q *Queue) backoffDelay(attempt int) time.Duration {
	delay := q.cfg.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
	}
	return delay
}
