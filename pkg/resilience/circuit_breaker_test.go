package resilience

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
)

func testRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return client
}

var errDependencyDown = errors.New("dependency down")

func failingCall(ctx context.Context) error { return errDependencyDown }
func healthyCall(ctx context.Context) error { return nil }

func TestCircuitBreaker_OpensAfterThreshold(t *testing.T) {
	client := testRedis(t)
	cb := NewCircuitBreaker(client, "payments", "database", zap.NewNop())
	ctx := context.Background()

	// database preset trips at 3 failures
	for i := 0; i < 3; i++ {
		err := cb.Execute(ctx, failingCall)
		assert.ErrorIs(t, err, errDependencyDown)
	}

	state, err := cb.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, CircuitOpen, state)

	// Open circuit rejects without calling through.
	called := false
	err = cb.Execute(ctx, func(ctx context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.False(t, called)
}

func TestCircuitBreaker_StaysClosedUnderThreshold(t *testing.T) {
	client := testRedis(t)
	cb := NewCircuitBreaker(client, "payments", "database", zap.NewNop())
	ctx := context.Background()

	require.ErrorIs(t, cb.Execute(ctx, failingCall), errDependencyDown)
	require.ErrorIs(t, cb.Execute(ctx, failingCall), errDependencyDown)

	state, err := cb.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, state)

	assert.NoError(t, cb.Execute(ctx, healthyCall))
}

// forceOpen writes an expired open record so recovery probes are admitted
// without waiting out the real timeout.
func forceOpen(t *testing.T, cb *CircuitBreaker, ctx context.Context) {
	t.Helper()
	record := &circuitRecord{
		State:           CircuitOpen,
		FailureCount:    cb.cfg.FailureThreshold,
		LastFailureTime: time.Now().Add(-time.Minute),
		NextAttemptTime: time.Now().Add(-time.Second),
	}
	require.NoError(t, cb.save(ctx, record))
}

func TestCircuitBreaker_RecoversThroughHalfOpen(t *testing.T) {
	client := testRedis(t)
	cb := NewCircuitBreaker(client, "embeddings", "ai_service", zap.NewNop())
	ctx := context.Background()

	forceOpen(t, cb, ctx)

	state, err := cb.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, CircuitHalfOpen, state)

	// ai_service preset needs 2 successful probes to close.
	require.NoError(t, cb.Execute(ctx, healthyCall))
	require.NoError(t, cb.Execute(ctx, healthyCall))

	state, err = cb.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, state)
}

func TestCircuitBreaker_FailedProbeReopens(t *testing.T) {
	client := testRedis(t)
	cb := NewCircuitBreaker(client, "embeddings", "ai_service", zap.NewNop())
	ctx := context.Background()

	forceOpen(t, cb, ctx)

	require.ErrorIs(t, cb.Execute(ctx, failingCall), errDependencyDown)

	state, err := cb.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, CircuitOpen, state)

	assert.ErrorIs(t, cb.Execute(ctx, healthyCall), apperrors.ErrCircuitOpen)
}

func TestCircuitBreaker_Reset(t *testing.T) {
	client := testRedis(t)
	cb := NewCircuitBreaker(client, "blob", "file_storage", zap.NewNop())
	ctx := context.Background()

	forceOpen(t, cb, ctx)
	require.NoError(t, cb.Reset(ctx))

	state, err := cb.State(ctx)
	require.NoError(t, err)
	assert.Equal(t, CircuitClosed, state)
	assert.NoError(t, cb.Execute(ctx, healthyCall))
}

func TestPresetConfig_UnknownFallsBackToExternalAPI(t *testing.T) {
	assert.Equal(t, PresetConfig("external_api"), PresetConfig("something_else"))
	assert.Equal(t, 3, PresetConfig("database").FailureThreshold)
}
