package resilience

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
)

// RateLimitConfig is a window size and request budget for one tier.
type RateLimitConfig struct {
	MaxRequests int
	Window      time.Duration
	// FailOpen controls behaviour when Redis is unreachable: fail open admits
	// the request, fail closed rejects it.
	FailOpen bool
}

// Preset limiter tiers. User-level limits fail closed because they guard
// abuse; the global limit fails open because rejecting all traffic on a cache
// outage is worse than briefly losing the cap.
var rateLimitPresets = map[string]RateLimitConfig{
	"tenant":  {MaxRequests: 1000, Window: 15 * time.Minute, FailOpen: false},
	"user":    {MaxRequests: 100, Window: 15 * time.Minute, FailOpen: false},
	"global":  {MaxRequests: 10000, Window: time.Minute, FailOpen: true},
	"api_key": {MaxRequests: 1000, Window: time.Minute, FailOpen: false},
}

// PresetRateLimit returns the preset config for a tier name, defaulting to
// the user tier for unknown names.
func PresetRateLimit(tier string) RateLimitConfig {
	if cfg, ok := rateLimitPresets[tier]; ok {
		return cfg
	}
	return rateLimitPresets["user"]
}

// RateLimiter enforces fixed- and sliding-window request budgets against
// shared Redis state.
type RateLimiter struct {
	client *redis.Client
	logger *zap.Logger
}

// NewRateLimiter creates a limiter over the shared Redis client.
func NewRateLimiter(client *redis.Client, logger *zap.Logger) *RateLimiter {
	return &RateLimiter{
		client: client,
		logger: logger.Named("rate_limiter"),
	}
}

// AllowFixed checks a fixed-window budget for the subject. Returns
// apperrors.ErrRateLimited when the budget is exhausted.
func (rl *RateLimiter) AllowFixed(ctx context.Context, subject string, cfg RateLimitConfig) error {
	windowMs := cfg.Window.Milliseconds()
	bucket := time.Now().UnixMilli() / windowMs
	key := fmt.Sprintf("rate_limit:%s:%d", subject, bucket)

	count, err := rl.client.Incr(ctx, key).Result()
	if err != nil {
		return rl.cacheFailure(subject, cfg, err)
	}
	if count == 1 {
		if err := rl.client.Expire(ctx, key, cfg.Window).Err(); err != nil {
			return rl.cacheFailure(subject, cfg, err)
		}
	}
	if count > int64(cfg.MaxRequests) {
		return fmt.Errorf("%w: %s exceeded %d requests per %s",
			apperrors.ErrRateLimited, subject, cfg.MaxRequests, cfg.Window)
	}
	return nil
}

// AllowSliding checks a sliding-window budget for the subject. Returns
// apperrors.ErrRateLimited when the budget is exhausted.
func (rl *RateLimiter) AllowSliding(ctx context.Context, subject string, cfg RateLimitConfig) error {
	key := "rate_limit_sliding:" + subject
	now := time.Now()
	cutoff := now.Add(-cfg.Window)

	if err := rl.client.ZRemRangeByScore(ctx, key, "-inf",
		fmt.Sprintf("%d", cutoff.UnixMilli())).Err(); err != nil {
		return rl.cacheFailure(subject, cfg, err)
	}

	count, err := rl.client.ZCard(ctx, key).Result()
	if err != nil {
		return rl.cacheFailure(subject, cfg, err)
	}
	if count >= int64(cfg.MaxRequests) {
		return fmt.Errorf("%w: %s exceeded %d requests per %s",
			apperrors.ErrRateLimited, subject, cfg.MaxRequests, cfg.Window)
	}

	err = rl.client.ZAdd(ctx, key, redis.Z{
		Score:  float64(now.UnixMilli()),
		Member: fmt.Sprintf("%d-%d", now.UnixNano(), count),
	}).Err()
	if err != nil {
		return rl.cacheFailure(subject, cfg, err)
	}
	if err := rl.client.Expire(ctx, key, cfg.Window).Err(); err != nil {
		return rl.cacheFailure(subject, cfg, err)
	}
	return nil
}

func (rl *RateLimiter) cacheFailure(subject string, cfg RateLimitConfig, err error) error {
	if cfg.FailOpen {
		rl.logger.Warn("Rate limit cache unavailable, failing open",
			zap.String("subject", subject),
			zap.Error(err))
		return nil
	}
	rl.logger.Warn("Rate limit cache unavailable, failing closed",
		zap.String("subject", subject),
		zap.Error(err))
	return fmt.Errorf("%w: limiter state unavailable for %s", apperrors.ErrRateLimited, subject)
}
