package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

// DocumentService reads document assets and their ingestion state.
type DocumentService interface {
	Get(ctx context.Context, documentID uuid.UUID) (*models.DocumentAsset, *models.DocumentMetadata, error)
	List(ctx context.Context, kind string, limit int) ([]*models.DocumentAsset, error)
}

type documentService struct {
	documentRepo repositories.DocumentRepository
	logger       *zap.Logger
}

// NewDocumentService creates a new DocumentService.
func NewDocumentService(documentRepo repositories.DocumentRepository, logger *zap.Logger) DocumentService {
	return &documentService{
		documentRepo: documentRepo,
		logger:       logger.Named("document-service"),
	}
}

var _ DocumentService = (*documentService)(nil)

func (s *documentService) Get(ctx context.Context, documentID uuid.UUID) (*models.DocumentAsset, *models.DocumentMetadata, error) {
	asset, err := s.documentRepo.GetAsset(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load document asset: %w", err)
	}
	metadata, err := s.documentRepo.GetMetadata(ctx, documentID)
	if err != nil {
		return nil, nil, fmt.Errorf("load document metadata: %w", err)
	}
	return asset, metadata, nil
}

func (s *documentService) List(ctx context.Context, kind string, limit int) ([]*models.DocumentAsset, error) {
	return s.documentRepo.ListAssets(ctx, kind, limit)
}
