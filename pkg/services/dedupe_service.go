package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/ingestion"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

// DedupeService surfaces duplicate-identity candidates: clusters of
// consultants sharing a normalised email, phone, or name+location signature.
type DedupeService interface {
	Candidates(ctx context.Context) (*models.DuplicateCandidates, error)
}

type dedupeService struct {
	identityRepo repositories.IdentityRepository
	logger       *zap.Logger
}

// NewDedupeService creates a new DedupeService.
func NewDedupeService(identityRepo repositories.IdentityRepository, logger *zap.Logger) DedupeService {
	return &dedupeService{
		identityRepo: identityRepo,
		logger:       logger.Named("dedupe-service"),
	}
}

var _ DedupeService = (*dedupeService)(nil)

func (s *dedupeService) Candidates(ctx context.Context) (*models.DuplicateCandidates, error) {
	signatures, err := s.identityRepo.ListByTenant(ctx)
	if err != nil {
		return nil, fmt.Errorf("list identity signatures: %w", err)
	}

	candidates := ingestion.ClusterSignatures(signatures)
	s.logger.Debug("Duplicate candidates computed",
		zap.Int("signatures", len(signatures)),
		zap.Int("clusters", len(candidates.Clusters)))
	return candidates, nil
}
