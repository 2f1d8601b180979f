package resilience

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
)

// CircuitState represents the current state of a circuit breaker.
type CircuitState string

const (
	// CircuitClosed means the circuit is operational and requests flow through.
	CircuitClosed CircuitState = "CLOSED"
	// CircuitOpen means the circuit has tripped due to failures and requests are blocked.
	CircuitOpen CircuitState = "OPEN"
	// CircuitHalfOpen means the circuit is testing if the dependency has recovered.
	CircuitHalfOpen CircuitState = "HALF_OPEN"
)

// CircuitBreakerConfig holds configuration for one breaker.
type CircuitBreakerConfig struct {
	// FailureThreshold is the failure count within MonitoringPeriod that trips the circuit.
	FailureThreshold int
	// RecoveryTimeout is how long the circuit stays open before probing.
	RecoveryTimeout time.Duration
	// MonitoringPeriod bounds the window in which failures accumulate.
	MonitoringPeriod time.Duration
	// HalfOpenMaxCalls is how many probes are admitted in half-open, and how
	// many must succeed to close the circuit.
	HalfOpenMaxCalls int
}

// Preset breaker profiles by dependency class.
var circuitPresets = map[string]CircuitBreakerConfig{
	"database":     {FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, MonitoringPeriod: 2 * time.Minute, HalfOpenMaxCalls: 2},
	"external_api": {FailureThreshold: 5, RecoveryTimeout: 60 * time.Second, MonitoringPeriod: 5 * time.Minute, HalfOpenMaxCalls: 3},
	"ai_service":   {FailureThreshold: 3, RecoveryTimeout: 30 * time.Second, MonitoringPeriod: 3 * time.Minute, HalfOpenMaxCalls: 2},
	"file_storage": {FailureThreshold: 5, RecoveryTimeout: 45 * time.Second, MonitoringPeriod: 4 * time.Minute, HalfOpenMaxCalls: 3},
}

// PresetConfig returns the preset profile for a dependency class, or the
// external_api profile for unknown classes.
func PresetConfig(profile string) CircuitBreakerConfig {
	if cfg, ok := circuitPresets[profile]; ok {
		return cfg
	}
	return circuitPresets["external_api"]
}

// circuitRecord is the persisted breaker state.
type circuitRecord struct {
	State           CircuitState `json:"state"`
	FailureCount    int          `json:"failure_count"`
	LastFailureTime time.Time    `json:"last_failure_time"`
	NextAttemptTime time.Time    `json:"next_attempt_time"`
	SuccessCount    int          `json:"success_count"`
	HalfOpenCalls   int          `json:"half_open_calls"`
	TotalCalls      int64        `json:"total_calls"`
}

// CircuitBreaker implements the circuit breaker pattern with state shared
// across instances through Redis. Worst case under a lost race between
// instances is one extra probe, which is acceptable.
type CircuitBreaker struct {
	client *redis.Client
	key    string
	cfg    CircuitBreakerConfig
	logger *zap.Logger
}

// NewCircuitBreaker creates a breaker for one dependency key using a preset
// profile name ("database", "external_api", "ai_service", "file_storage").
func NewCircuitBreaker(client *redis.Client, key, profile string, logger *zap.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		client: client,
		key:    key,
		cfg:    PresetConfig(profile),
		logger: logger.Named("circuit_breaker"),
	}
}

func (cb *CircuitBreaker) redisKey() string {
	return "circuit_breaker:" + cb.key
}

// stateTTL keeps state around long enough for a full trip and recovery cycle.
func (cb *CircuitBreaker) stateTTL() time.Duration {
	return cb.cfg.MonitoringPeriod + cb.cfg.RecoveryTimeout
}

func (cb *CircuitBreaker) load(ctx context.Context) (*circuitRecord, error) {
	raw, err := cb.client.Get(ctx, cb.redisKey()).Result()
	if err != nil {
		if err == redis.Nil {
			return &circuitRecord{State: CircuitClosed}, nil
		}
		return nil, fmt.Errorf("failed to load breaker state: %w", err)
	}
	var record circuitRecord
	if err := json.Unmarshal([]byte(raw), &record); err != nil {
		return nil, fmt.Errorf("failed to unmarshal breaker state: %w", err)
	}
	return &record, nil
}

func (cb *CircuitBreaker) save(ctx context.Context, record *circuitRecord) error {
	raw, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal breaker state: %w", err)
	}
	if err := cb.client.Set(ctx, cb.redisKey(), raw, cb.stateTTL()).Err(); err != nil {
		return fmt.Errorf("failed to save breaker state: %w", err)
	}
	return nil
}

// Execute runs fn under the breaker. Returns apperrors.ErrCircuitOpen without
// calling fn when the circuit rejects the request.
func (cb *CircuitBreaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	record, err := cb.load(ctx)
	if err != nil {
		return err
	}

	now := time.Now()
	switch record.State {
	case CircuitOpen:
		if now.Before(record.NextAttemptTime) {
			return fmt.Errorf("%w: %s retries at %s", apperrors.ErrCircuitOpen,
				cb.key, record.NextAttemptTime.Format(time.RFC3339))
		}
		record.State = CircuitHalfOpen
		record.SuccessCount = 0
		record.HalfOpenCalls = 0
		cb.logger.Info("Circuit half-open", zap.String("key", cb.key))
	case CircuitHalfOpen:
		if record.HalfOpenCalls >= cb.cfg.HalfOpenMaxCalls {
			return fmt.Errorf("%w: %s is probing recovery", apperrors.ErrCircuitOpen, cb.key)
		}
	}

	if record.State == CircuitHalfOpen {
		record.HalfOpenCalls++
	}
	record.TotalCalls++
	if err := cb.save(ctx, record); err != nil {
		return err
	}

	callErr := fn(ctx)
	if callErr != nil {
		if recordErr := cb.recordFailure(ctx); recordErr != nil {
			cb.logger.Warn("Failed to record breaker failure",
				zap.String("key", cb.key), zap.Error(recordErr))
		}
		return callErr
	}
	if recordErr := cb.recordSuccess(ctx); recordErr != nil {
		cb.logger.Warn("Failed to record breaker success",
			zap.String("key", cb.key), zap.Error(recordErr))
	}
	return nil
}

func (cb *CircuitBreaker) recordFailure(ctx context.Context) error {
	record, err := cb.load(ctx)
	if err != nil {
		return err
	}
	now := time.Now()

	switch record.State {
	case CircuitHalfOpen:
		// A failed probe reopens immediately.
		record.State = CircuitOpen
		record.NextAttemptTime = now.Add(cb.cfg.RecoveryTimeout)
		record.SuccessCount = 0
		cb.logger.Warn("Circuit reopened by failed probe", zap.String("key", cb.key))
	default:
		if !record.LastFailureTime.IsZero() && now.Sub(record.LastFailureTime) > cb.cfg.MonitoringPeriod {
			// Stale failures outside the window don't count.
			record.FailureCount = 1
		} else {
			record.FailureCount++
		}
		if record.FailureCount >= cb.cfg.FailureThreshold {
			record.State = CircuitOpen
			record.NextAttemptTime = now.Add(cb.cfg.RecoveryTimeout)
			cb.logger.Warn("Circuit opened",
				zap.String("key", cb.key),
				zap.Int("failures", record.FailureCount))
		}
	}
	record.LastFailureTime = now

	return cb.save(ctx, record)
}

func (cb *CircuitBreaker) recordSuccess(ctx context.Context) error {
	record, err := cb.load(ctx)
	if err != nil {
		return err
	}

	if record.State == CircuitHalfOpen {
		record.SuccessCount++
		if record.SuccessCount >= cb.cfg.HalfOpenMaxCalls {
			record.State = CircuitClosed
			record.FailureCount = 0
			record.SuccessCount = 0
			record.HalfOpenCalls = 0
			cb.logger.Info("Circuit closed", zap.String("key", cb.key))
		}
	}

	return cb.save(ctx, record)
}

// State returns the breaker's current persisted state.
func (cb *CircuitBreaker) State(ctx context.Context) (CircuitState, error) {
	record, err := cb.load(ctx)
	if err != nil {
		return "", err
	}
	// An expired recovery timeout reads as half-open even before a probe lands.
	if record.State == CircuitOpen && !time.Now().Before(record.NextAttemptTime) {
		return CircuitHalfOpen, nil
	}
	return record.State, nil
}

// Reset forces the breaker back to closed.
func (cb *CircuitBreaker) Reset(ctx context.Context) error {
	if err := cb.client.Del(ctx, cb.redisKey()).Err(); err != nil {
		return fmt.Errorf("failed to reset breaker state: %w", err)
	}
	return nil
}
