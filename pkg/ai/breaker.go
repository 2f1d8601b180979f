package ai

import "context"

// Breaker gates outbound model calls. A nil Breaker means ungated.
type Breaker interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

// guard runs fn through the breaker when one is configured.
func guard(ctx context.Context, breaker Breaker, fn func(ctx context.Context) error) error {
	if breaker == nil {
		return fn(ctx)
	}
	return breaker.Execute(ctx, fn)
}
