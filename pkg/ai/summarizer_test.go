package ai

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

func summaryFacts() *models.MatchSummaryFacts {
	rate := 85.0
	return &models.MatchSummaryFacts{
		ConsultantName:      "Jane Doe",
		ConsultantLocation:  "Austin, TX",
		RequirementTitle:    "Senior Go Engineer",
		RequirementLocation: "Austin, TX",
		ClientName:          "Acme Corp",
		AlignedSkills:       []string{"Go", "Kubernetes", "PostgreSQL", "Redis"},
		Availability:        "AVAILABLE",
		ConsultantRate:      &rate,
		RateRange:           []float64{70, 100},
		SkillOverlap:        0.9,
	}
}

func TestNewSummarizer_DefaultsToRules(t *testing.T) {
	s := NewSummarizer(&config.SummariserConfig{Provider: "rules"}, nil, zap.NewNop())
	assert.Equal(t, "rules", s.Provider())

	// anthropic without an API key still gets the deterministic provider
	s = NewSummarizer(&config.SummariserConfig{Provider: "anthropic"}, nil, zap.NewNop())
	assert.Equal(t, "rules", s.Provider())
}

func TestRulesSummarizer(t *testing.T) {
	s := &rulesSummarizer{}
	facts := summaryFacts()

	summary, err := s.Summarize(context.Background(), facts)
	require.NoError(t, err)

	assert.Contains(t, summary.Summary, "Jane Doe is a candidate for Senior Go Engineer at Acme Corp.")
	assert.Contains(t, summary.Summary, "Aligned skills: Go, Kubernetes, PostgreSQL, Redis.")
	assert.Contains(t, summary.Summary, "Availability: available.")
	assert.Contains(t, summary.Summary, "Based in Austin, TX.")

	// Three skill highlights plus the rate highlight.
	require.Len(t, summary.Highlights, 4)
	assert.Equal(t, "Has Go", summary.Highlights[0])
	assert.Equal(t, "Rate within requirement range", summary.Highlights[3])

	assert.Equal(t, 0.9, summary.Confidence)
	assert.True(t, summary.Grounded)
	assert.Equal(t, "rules", summary.Provider)
}

func TestRulesSummarizer_RateAboveRange(t *testing.T) {
	s := &rulesSummarizer{}
	facts := summaryFacts()
	rate := 150.0
	facts.ConsultantRate = &rate

	summary, err := s.Summarize(context.Background(), facts)
	require.NoError(t, err)
	assert.NotContains(t, summary.Highlights, "Rate within requirement range")
}

func TestRulesSummarizer_SparseFacts(t *testing.T) {
	s := &rulesSummarizer{}
	summary, err := s.Summarize(context.Background(), &models.MatchSummaryFacts{
		ConsultantName:   "Bob Ray",
		RequirementTitle: "Data Engineer",
		ClientName:       "Initech",
	})
	require.NoError(t, err)

	assert.Equal(t, "Bob Ray is a candidate for Data Engineer at Initech.", summary.Summary)
	assert.Empty(t, summary.Highlights)
}

func TestIsGrounded(t *testing.T) {
	facts := summaryFacts()

	t.Run("empty summary rejected", func(t *testing.T) {
		assert.False(t, isGrounded(&llmSummaryResponse{Summary: "  "}, facts))
	})

	t.Run("highlight naming unknown skill rejected", func(t *testing.T) {
		resp := &llmSummaryResponse{
			Summary:    "Jane looks strong.",
			Highlights: []string{"Expert in Haskell"},
		}
		assert.False(t, isGrounded(resp, facts))
	})

	t.Run("highlights drawn from facts accepted", func(t *testing.T) {
		resp := &llmSummaryResponse{
			Summary:    "Jane looks strong.",
			Highlights: []string{"Deep Kubernetes experience", "Based in Austin, TX"},
		}
		assert.True(t, isGrounded(resp, facts))
	})

	t.Run("no highlights accepted", func(t *testing.T) {
		assert.True(t, isGrounded(&llmSummaryResponse{Summary: "Solid fit."}, facts))
	})
}

func TestExtractJSON(t *testing.T) {
	assert.Equal(t, `{"a":1}`, extractJSON("Here you go:\n{\"a\":1}\nThanks!"))
	assert.Equal(t, `{"a":1}`, extractJSON(`{"a":1}`))
	assert.Equal(t, "no braces here", extractJSON("no braces here"))
}
