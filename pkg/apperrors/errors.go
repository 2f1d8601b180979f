package apperrors

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrValidation      = errors.New("validation failed")
	ErrCircuitOpen     = errors.New("circuit breaker open")
	ErrRateLimited     = errors.New("rate limit exceeded")
	ErrQueueSaturated  = errors.New("queue depth above high-water mark")
	ErrIntegrity       = errors.New("audit chain integrity violation")
	ErrVectorDimension = errors.New("embedding dimension mismatch")
	ErrNoTenantScope   = errors.New("no tenant scope in context")
)
