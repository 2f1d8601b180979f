package ai

import (
	"context"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/retry"
)

// Embedder turns text into a dense vector of the configured dimension.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Dimensions() int
	Enabled() bool
}

// NewEmbedder builds the configured embedder. When embedding is disabled the
// returned embedder yields zero vectors, which contribute nothing to hybrid
// scores. The breaker gates the upstream call and may be nil.
func NewEmbedder(cfg *config.EmbeddingConfig, breaker Breaker, logger *zap.Logger) Embedder {
	if !cfg.Enabled || cfg.APIKey == "" {
		return &disabledEmbedder{dimensions: cfg.Dimensions}
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientConfig.BaseURL = cfg.BaseURL
	}
	return &openaiEmbedder{
		client:     openai.NewClientWithConfig(clientConfig),
		breaker:    breaker,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		logger:     logger.Named("embedder"),
	}
}

type openaiEmbedder struct {
	client     *openai.Client
	breaker    Breaker
	model      string
	dimensions int
	logger     *zap.Logger
}

var _ Embedder = (*openaiEmbedder)(nil)

func (e *openaiEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	start := time.Now()
	var resp openai.EmbeddingResponse
	err := guard(ctx, e.breaker, func(ctx context.Context) error {
		var callErr error
		resp, callErr = retry.DoWithResult(ctx, retry.DefaultConfig(), func() (openai.EmbeddingResponse, error) {
			return e.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
				Model: openai.EmbeddingModel(e.model),
				Input: []string{text},
			})
		})
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("create embedding: %w", err)
	}
	if len(resp.Data) == 0 || len(resp.Data[0].Embedding) == 0 {
		return nil, fmt.Errorf("no embedding in response")
	}

	e.logger.Debug("Embedding created",
		zap.Int("input_chars", len(text)),
		zap.Duration("elapsed", time.Since(start)))

	return FitDimensions(resp.Data[0].Embedding, e.dimensions), nil
}

func (e *openaiEmbedder) Dimensions() int { return e.dimensions }
func (e *openaiEmbedder) Enabled() bool   { return true }

type disabledEmbedder struct {
	dimensions int
}

var _ Embedder = (*disabledEmbedder)(nil)

func (e *disabledEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return make([]float32, e.dimensions), nil
}

func (e *disabledEmbedder) Dimensions() int { return e.dimensions }
func (e *disabledEmbedder) Enabled() bool   { return false }

// FitDimensions pads a vector with zeros or truncates it to exactly d
// elements.
func FitDimensions(vector []float32, d int) []float32 {
	if len(vector) == d {
		return vector
	}
	fitted := make([]float32, d)
	copy(fitted, vector)
	return fitted
}
