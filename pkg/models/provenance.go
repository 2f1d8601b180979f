package models

import (
	"context"

	"github.com/google/uuid"
)

// Actor sources for audited operations.
const (
	SourceAPI    = "api"
	SourceWorker = "worker"
	SourceEmail  = "email"
	SourceManual = "manual"
)

// ActorContext identifies who (or what) triggered an audited operation.
type ActorContext struct {
	UserID    *uuid.UUID
	ActorRole string
	Source    string
	IP        string
	UserAgent string
}

type actorContextKey struct{}

// WithActor stores the actor context for audit extraction.
func WithActor(ctx context.Context, actor ActorContext) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// GetActor retrieves the actor context. Returns false if not present,
// which audit treats as a system operation.
func GetActor(ctx context.Context) (ActorContext, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(ActorContext)
	return actor, ok
}
