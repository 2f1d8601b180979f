package queue

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/config"
)

func testQueue(t *testing.T) (*Queue, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.QueueConfig{
		Concurrency:     1,
		Attempts:        3,
		BackoffBase:     5 * time.Second,
		HighWaterMark:   100,
		PollInterval:    10 * time.Millisecond,
		JobSoftDeadline: time.Minute,
	}
	return NewQueue(client, cfg, zap.NewNop()), mr
}

func testJob(jobType string) *Job {
	return &Job{
		ID:       uuid.NewString(),
		Type:     jobType,
		TenantID: uuid.New(),
		Payload:  json.RawMessage(`{"k":"v"}`),
	}
}

func TestQueue_EnqueuePop_FIFO(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	first := testJob(TypeResumeIngestion)
	second := testJob(TypeResumeIngestion)
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	depth, err := q.Depth(ctx, TypeResumeIngestion)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	popped, _, err := q.pop(ctx, TypeResumeIngestion)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, first.ID, popped.ID)
	assert.Equal(t, first.TenantID, popped.TenantID)
	assert.Equal(t, 1, popped.Attempt)

	popped, _, err = q.pop(ctx, TypeResumeIngestion)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, second.ID, popped.ID)

	popped, _, err = q.pop(ctx, TypeResumeIngestion)
	require.NoError(t, err)
	assert.Nil(t, popped)
}

func TestQueue_Pop_MovesJobToProcessing(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	job := testJob(TypeResumeIngestion)
	require.NoError(t, q.Enqueue(ctx, job))

	popped, raw, err := q.pop(ctx, TypeResumeIngestion)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.NotEmpty(t, raw)

	// The job is in flight, not gone: it sits on the processing list until
	// its outcome is recorded.
	pending, err := q.client.LLen(ctx, pendingKey(TypeResumeIngestion)).Result()
	require.NoError(t, err)
	assert.Zero(t, pending)

	inflight, err := q.client.LLen(ctx, processingKey(TypeResumeIngestion)).Result()
	require.NoError(t, err)
	assert.Equal(t, int64(1), inflight)

	require.NoError(t, q.ack(ctx, TypeResumeIngestion, raw))
	inflight, err = q.client.LLen(ctx, processingKey(TypeResumeIngestion)).Result()
	require.NoError(t, err)
	assert.Zero(t, inflight)
}

func TestQueue_ReclaimProcessing_ReturnsAbandonedJobs(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	first := testJob(TypeResumeIngestion)
	second := testJob(TypeResumeIngestion)
	require.NoError(t, q.Enqueue(ctx, first))
	require.NoError(t, q.Enqueue(ctx, second))

	// Simulate a crash: both jobs popped, neither acked.
	_, _, err := q.pop(ctx, TypeResumeIngestion)
	require.NoError(t, err)
	_, _, err = q.pop(ctx, TypeResumeIngestion)
	require.NoError(t, err)

	reclaimed, err := q.ReclaimProcessing(ctx, TypeResumeIngestion)
	require.NoError(t, err)
	assert.Equal(t, 2, reclaimed)

	depth, err := q.Depth(ctx, TypeResumeIngestion)
	require.NoError(t, err)
	assert.Equal(t, int64(2), depth)

	inflight, err := q.client.LLen(ctx, processingKey(TypeResumeIngestion)).Result()
	require.NoError(t, err)
	assert.Zero(t, inflight)

	// Oldest job comes back first.
	popped, _, err := q.pop(ctx, TypeResumeIngestion)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, first.ID, popped.ID)
}

func TestQueue_ReclaimProcessing_EmptyList(t *testing.T) {
	q, _ := testQueue(t)
	reclaimed, err := q.ReclaimProcessing(context.Background(), TypeEvaluation)
	require.NoError(t, err)
	assert.Zero(t, reclaimed)
}

func TestQueue_Enqueue_IdempotentOnJobID(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	job := testJob(TypeEvaluation)
	require.NoError(t, q.Enqueue(ctx, job))

	duplicate := testJob(TypeEvaluation)
	duplicate.ID = job.ID
	require.NoError(t, q.Enqueue(ctx, duplicate))

	depth, err := q.Depth(ctx, TypeEvaluation)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)
}

func TestQueue_Enqueue_HighWaterMark(t *testing.T) {
	q, _ := testQueue(t)
	q.cfg.HighWaterMark = 2
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testJob(TypeIndexRefresh)))
	require.NoError(t, q.Enqueue(ctx, testJob(TypeIndexRefresh)))

	err := q.Enqueue(ctx, testJob(TypeIndexRefresh))
	assert.ErrorIs(t, err, apperrors.ErrQueueSaturated)
}

func TestQueue_PromoteDue(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	due := testJob(TypeResumeIngestion)
	due.Attempt = 2
	require.NoError(t, q.enqueueDelayed(ctx, due, time.Now().Add(-time.Second)))

	notYet := testJob(TypeResumeIngestion)
	require.NoError(t, q.enqueueDelayed(ctx, notYet, time.Now().Add(time.Hour)))

	require.NoError(t, q.promoteDue(ctx, TypeResumeIngestion))

	popped, _, err := q.pop(ctx, TypeResumeIngestion)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, due.ID, popped.ID)
	assert.Equal(t, 2, popped.Attempt)

	popped, _, err = q.pop(ctx, TypeResumeIngestion)
	require.NoError(t, err)
	assert.Nil(t, popped)
}

func TestQueue_DrainDeadLetters(t *testing.T) {
	q, _ := testQueue(t)
	ctx := context.Background()

	job := testJob(TypeRequirementIngestion)
	job.Attempt = 3
	require.NoError(t, q.deadLetter(ctx, job, "parse failed"))

	depth, err := q.DeadLetterDepth(ctx, TypeRequirementIngestion)
	require.NoError(t, err)
	assert.Equal(t, int64(1), depth)

	drained, err := q.DrainDeadLetters(ctx, TypeRequirementIngestion, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, drained)

	depth, err = q.DeadLetterDepth(ctx, TypeRequirementIngestion)
	require.NoError(t, err)
	assert.Zero(t, depth)

	// Requeued jobs get a fresh attempt budget.
	popped, _, err := q.pop(ctx, TypeRequirementIngestion)
	require.NoError(t, err)
	require.NotNil(t, popped)
	assert.Equal(t, job.ID, popped.ID)
	assert.Equal(t, 1, popped.Attempt)
}

func TestQueue_DrainDeadLetters_Empty(t *testing.T) {
	q, _ := testQueue(t)
	drained, err := q.DrainDeadLetters(context.Background(), TypeEvaluation, 10)
	require.NoError(t, err)
	assert.Zero(t, drained)
}

func TestQueue_BackoffDelay(t *testing.T) {
	q, _ := testQueue(t)
	assert.Equal(t, 5*time.Second, q.backoffDelay(1))
	assert.Equal(t, 10*time.Second, q.backoffDelay(2))
	assert.Equal(t, 20*time.Second, q.backoffDelay(3))
}
