package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/logging"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

// AuditService records hash-chained audit entries for engine actions.
// It extracts the actor from context and sanitises payloads before write.
type AuditService interface {
	// Record appends one entry to the tenant's chain. Payload may be any
	// JSON-marshalable value; sensitive fields are redacted and the result is
	// truncated before hashing.
	Record(ctx context.Context, action, entityType string, entityID *uuid.UUID, payload any, resultCode string) error

	// List returns the tenant's entries oldest first.
	List(ctx context.Context, limit int) ([]*models.AuditLogEntry, error)

	// Verify replays the tenant's chain and reports tampering.
	Verify(ctx context.Context) error
}

type auditService struct {
	repo   repositories.AuditRepository
	logger *zap.Logger
}

// NewAuditService creates a new AuditService.
func NewAuditService(repo repositories.AuditRepository, logger *zap.Logger) AuditService {
	return &auditService{
		repo:   repo,
		logger: logger.Named("audit-service"),
	}
}

var _ AuditService = (*auditService)(nil)

func (s *auditService) Record(ctx context.Context, action, entityType string, entityID *uuid.UUID, payload any, resultCode string) error {
	entry := &models.AuditLogEntry{
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		ResultCode: resultCode,
	}

	if actor, ok := models.GetActor(ctx); ok {
		entry.UserID = actor.UserID
		if actor.ActorRole != "" {
			role := actor.ActorRole
			entry.ActorRole = &role
		}
		if actor.IP != "" {
			ip := actor.IP
			entry.IP = &ip
		}
		if actor.UserAgent != "" {
			ua := actor.UserAgent
			entry.UserAgent = &ua
		}
	}

	if payload != nil {
		entry.Payload = logging.SanitizePayload(payload)
	}

	if err := s.repo.Record(ctx, entry); err != nil {
		s.logger.Error("Failed to record audit entry",
			zap.String("action", action),
			zap.String("entity_type", entityType),
			zap.Error(err))
		return fmt.Errorf("record audit entry: %w", err)
	}

	return nil
}

func (s *auditService) List(ctx context.Context, limit int) ([]*models.AuditLogEntry, error) {
	return s.repo.ListByTenant(ctx, limit)
}

func (s *auditService) Verify(ctx context.Context) error {
	return s.repo.VerifyChain(ctx)
}
