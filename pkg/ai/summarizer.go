package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// Summarizer produces a short human-readable pitch for a match. Output must
// stay grounded: no facts beyond the supplied fact sheet.
type Summarizer interface {
	Summarize(ctx context.Context, facts *models.MatchSummaryFacts) (*models.MatchSummary, error)
	Provider() string
}

// NewSummarizer builds the configured summariser. The deterministic rules
// provider is the default; the anthropic provider falls back to rules output
// whenever the model response fails the grounding check. The breaker gates
// the model call and may be nil.
func NewSummarizer(cfg *config.SummariserConfig, breaker Breaker, logger *zap.Logger) Summarizer {
	rules := &rulesSummarizer{}
	if cfg.Provider != "anthropic" || cfg.APIKey == "" {
		return rules
	}
	return &anthropicSummarizer{
		client:   anthropic.NewClient(cfg.APIKey),
		breaker:  breaker,
		model:    cfg.Model,
		fallback: rules,
		logger:   logger.Named("summarizer"),
	}
}

// rulesSummarizer assembles the summary from the fact sheet with fixed
// templates. Deterministic and always grounded.
type rulesSummarizer struct{}

var _ Summarizer = (*rulesSummarizer)(nil)

func (s *rulesSummarizer) Provider() string { return "rules" }

func (s *rulesSummarizer) Summarize(ctx context.Context, facts *models.MatchSummaryFacts) (*models.MatchSummary, error) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s is a candidate for %s at %s.",
		facts.ConsultantName, facts.RequirementTitle, facts.ClientName)
	if len(facts.AlignedSkills) > 0 {
		fmt.Fprintf(&sb, " Aligned skills: %s.", strings.Join(facts.AlignedSkills, ", "))
	}
	if facts.Availability != "" {
		fmt.Fprintf(&sb, " Availability: %s.", strings.ToLower(facts.Availability))
	}
	if facts.ConsultantLocation != "" {
		fmt.Fprintf(&sb, " Based in %s.", facts.ConsultantLocation)
	}

	var highlights []string
	for _, skill := range facts.AlignedSkills {
		highlights = append(highlights, "Has "+skill)
		if len(highlights) == 3 {
			break
		}
	}
	if facts.ConsultantRate != nil && len(facts.RateRange) == 2 &&
		*facts.ConsultantRate <= facts.RateRange[1] {
		highlights = append(highlights, "Rate within requirement range")
	}

	return &models.MatchSummary{
		Summary:    sb.String(),
		Highlights: highlights,
		Confidence: facts.SkillOverlap,
		Grounded:   true,
		Provider:   s.Provider(),
	}, nil
}

// anthropicSummarizer asks Claude for a summary constrained to the fact
// sheet, then verifies the output against it.
type anthropicSummarizer struct {
	client   *anthropic.Client
	breaker  Breaker
	model    string
	fallback *rulesSummarizer
	logger   *zap.Logger
}

var _ Summarizer = (*anthropicSummarizer)(nil)

func (s *anthropicSummarizer) Provider() string { return "anthropic" }

type llmSummaryResponse struct {
	Summary    string   `json:"summary"`
	Highlights []string `json:"highlights"`
	Confidence float64  `json:"confidence"`
}

func (s *anthropicSummarizer) Summarize(ctx context.Context, facts *models.MatchSummaryFacts) (*models.MatchSummary, error) {
	factsJSON, err := json.Marshal(facts)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal summary facts: %w", err)
	}

	prompt := fmt.Sprintf(`You are writing a one-paragraph candidate pitch for a staffing operator.

Use ONLY the facts below. Do not invent skills, rates, locations, or history.

Facts:
%s

Return ONLY a JSON object: {"summary": string, "highlights": [string], "confidence": number between 0 and 1}.`,
		string(factsJSON))

	var resp anthropic.MessagesResponse
	err = guard(ctx, s.breaker, func(ctx context.Context) error {
		var callErr error
		resp, callErr = s.client.CreateMessages(ctx, anthropic.MessagesRequest{
			Model:     anthropic.Model(s.model),
			MaxTokens: 500,
			Messages: []anthropic.Message{
				{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
					{Type: "text", Text: &prompt},
				}},
			},
		})
		return callErr
	})
	if err != nil {
		s.logger.Warn("Summariser call failed, using rules output", zap.Error(err))
		return s.fallback.Summarize(ctx, facts)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			responseText = *block.Text
			break
		}
	}

	var parsed llmSummaryResponse
	if err := json.Unmarshal([]byte(extractJSON(responseText)), &parsed); err != nil {
		s.logger.Warn("Summariser returned unparseable output, using rules output",
			zap.Error(err))
		return s.fallback.Summarize(ctx, facts)
	}

	if !isGrounded(&parsed, facts) {
		s.logger.Warn("Summariser output failed grounding check, using rules output")
		return s.fallback.Summarize(ctx, facts)
	}

	if parsed.Confidence < 0 {
		parsed.Confidence = 0
	}
	if parsed.Confidence > 1 {
		parsed.Confidence = 1
	}

	return &models.MatchSummary{
		Summary:    parsed.Summary,
		Highlights: parsed.Highlights,
		Confidence: parsed.Confidence,
		Grounded:   true,
		Provider:   s.Provider(),
	}, nil
}

// isGrounded rejects output that names skills absent from the fact sheet.
// The check is conservative: a highlight must mention at least one aligned
// skill or a fact field verbatim.
func isGrounded(resp *llmSummaryResponse, facts *models.MatchSummaryFacts) bool {
	if strings.TrimSpace(resp.Summary) == "" {
		return false
	}
	known := []string{
		facts.ConsultantName, facts.RequirementTitle, facts.ClientName,
		facts.ConsultantLocation, facts.RequirementLocation, facts.Availability,
	}
	known = append(known, facts.AlignedSkills...)

	for _, highlight := range resp.Highlights {
		matched := false
		lowered := strings.ToLower(highlight)
		for _, fact := range known {
			if fact != "" && strings.Contains(lowered, strings.ToLower(fact)) {
				matched = true
				break
			}
		}
		if !matched {
			return false
		}
	}
	return true
}

// extractJSON strips any prose around the first JSON object in the text.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return text
	}
	return text[start : end+1]
}
