package ai

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/config"
)

// openBreaker rejects every call without invoking fn, the way a tripped
// breaker does.
type openBreaker struct {
	calls int
}

var _ Breaker = (*openBreaker)(nil)

func (b *openBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	b.calls++
	return fmt.Errorf("%w: upstream unavailable", apperrors.ErrCircuitOpen)
}

func TestEmbedder_OpenBreakerBlocksCall(t *testing.T) {
	breaker := &openBreaker{}
	e := NewEmbedder(&config.EmbeddingConfig{
		Enabled:    true,
		APIKey:     "test-key",
		Model:      "text-embedding-3-small",
		Dimensions: 8,
	}, breaker, zap.NewNop())

	vector, err := e.Embed(context.Background(), "some resume text")
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)
	assert.Nil(t, vector)
	assert.Equal(t, 1, breaker.calls)
}

func TestSummarizer_OpenBreakerFallsBackToRules(t *testing.T) {
	breaker := &openBreaker{}
	s := NewSummarizer(&config.SummariserConfig{
		Provider: "anthropic",
		APIKey:   "test-key",
		Model:    "claude-sonnet-4-20250514",
	}, breaker, zap.NewNop())

	summary, err := s.Summarize(context.Background(), summaryFacts())
	require.NoError(t, err)
	require.NotNil(t, summary)

	// The tripped breaker routed the request to the deterministic provider.
	assert.Equal(t, "rules", summary.Provider)
	assert.True(t, summary.Grounded)
	assert.Equal(t, 1, breaker.calls)
}

func TestRequirementParser_OpenBreakerFallsBackToRules(t *testing.T) {
	breaker := &openBreaker{}
	p := NewRequirementParser(&config.SummariserConfig{
		Provider: "anthropic",
		APIKey:   "test-key",
		Model:    "claude-sonnet-4-20250514",
	}, breaker, zap.NewNop())

	parsed, err := p.Parse(context.Background(), "Senior Go Engineer\nClient: Acme\nSkills: Go, SQL")
	require.NoError(t, err)
	require.NotNil(t, parsed)
	assert.Equal(t, "Senior Go Engineer", parsed.Title)
	assert.Equal(t, "Acme", parsed.ClientName)
	assert.Equal(t, 1, breaker.calls)
}
