package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/ai"
	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/models"
	"github.com/benchlane/benchlane-engine/pkg/repositories"
)

// SearchService answers weighted hybrid queries over the index.
type SearchService interface {
	Search(ctx context.Context, query *models.HybridQuery) ([]*models.HybridResult, error)
}

type searchService struct {
	searchRepo repositories.SearchRepository
	embedder   ai.Embedder
	cfg        *config.SearchConfig
	logger     *zap.Logger
}

// NewSearchService creates a new SearchService.
func NewSearchService(
	searchRepo repositories.SearchRepository,
	embedder ai.Embedder,
	cfg *config.SearchConfig,
	logger *zap.Logger,
) SearchService {
	return &searchService{
		searchRepo: searchRepo,
		embedder:   embedder,
		cfg:        cfg,
		logger:     logger.Named("search-service"),
	}
}

var _ SearchService = (*searchService)(nil)

func (s *searchService) Search(ctx context.Context, query *models.HybridQuery) ([]*models.HybridResult, error) {
	queryEmbedding := make([]float32, s.embedder.Dimensions())
	if s.embedder.Enabled() && query.Query != "" {
		vector, err := s.embedder.Embed(ctx, query.Query)
		if err != nil {
			// Degrade to lexical-only rather than failing the query.
			s.logger.Warn("Query embedding failed, searching lexical-only", zap.Error(err))
		} else {
			queryEmbedding = ai.FitDimensions(vector, s.embedder.Dimensions())
		}
	}

	results, err := s.searchRepo.HybridSearch(ctx, query, queryEmbedding,
		s.cfg.VectorWeight, s.cfg.LexicalWeight, s.cfg.MaxResults)
	if err != nil {
		return nil, fmt.Errorf("hybrid search: %w", err)
	}

	s.logger.Debug("Hybrid search served",
		zap.String("query", query.Query),
		zap.Int("results", len(results)))
	return results, nil
}
