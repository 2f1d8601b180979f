package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	anthropic "github.com/liushuangls/go-anthropic/v2"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// RequirementParser extracts a structured requirement from raw text.
type RequirementParser interface {
	Parse(ctx context.Context, raw string) (*models.ParsedRequirement, error)
}

// NewRequirementParser builds the configured parser. The deterministic rules
// parser is both the default and the fallback when the model output cannot be
// parsed. The breaker gates the model call and may be nil.
func NewRequirementParser(cfg *config.SummariserConfig, breaker Breaker, logger *zap.Logger) RequirementParser {
	rules := &rulesParser{}
	if cfg.Provider != "anthropic" || cfg.APIKey == "" {
		return rules
	}
	return &anthropicParser{
		client:   anthropic.NewClient(cfg.APIKey),
		breaker:  breaker,
		model:    cfg.Model,
		fallback: rules,
		logger:   logger.Named("requirement_parser"),
	}
}

// rulesParser derives structure from the text with simple heuristics: the
// first non-empty line is the title, labelled lines fill the rest.
type rulesParser struct{}

var _ RequirementParser = (*rulesParser)(nil)

var (
	clientPattern   = regexp.MustCompile(`(?im)^(?:client|company|end[- ]client)\s*[:\-]\s*(.+)$`)
	locationPattern = regexp.MustCompile(`(?im)^(?:location|where)\s*[:\-]\s*(.+)$`)
	ratePattern     = regexp.MustCompile(`(?i)\$\s*(\d+(?:\.\d+)?)\s*(?:/|per\s*)(?:hr|hour)`)
	skillsPattern   = regexp.MustCompile(`(?im)^(?:skills?|requirements?|must[- ]have)\s*[:\-]\s*(.+)$`)
)

func (p *rulesParser) Parse(ctx context.Context, raw string) (*models.ParsedRequirement, error) {
	parsed := &models.ParsedRequirement{}

	for _, line := range strings.Split(raw, "\n") {
		if trimmed := strings.TrimSpace(line); trimmed != "" {
			parsed.Title = trimmed
			break
		}
	}
	if parsed.Title == "" {
		return nil, fmt.Errorf("requirement text is empty")
	}

	if m := clientPattern.FindStringSubmatch(raw); m != nil {
		parsed.ClientName = strings.TrimSpace(m[1])
	}
	if parsed.ClientName == "" {
		parsed.ClientName = "Unknown"
	}
	if m := locationPattern.FindStringSubmatch(raw); m != nil {
		parsed.Location = strings.TrimSpace(m[1])
	}
	if m := ratePattern.FindStringSubmatch(raw); m != nil {
		if rate, err := strconv.ParseFloat(m[1], 64); err == nil {
			parsed.SuggestedRate = &rate
		}
	}
	if m := skillsPattern.FindStringSubmatch(raw); m != nil {
		for _, part := range strings.Split(m[1], ",") {
			if skill := strings.TrimSpace(part); skill != "" {
				parsed.Skills = append(parsed.Skills, skill)
			}
		}
	}

	return parsed, nil
}

// anthropicParser asks Claude for the structured extraction.
type anthropicParser struct {
	client   *anthropic.Client
	breaker  Breaker
	model    string
	fallback *rulesParser
	logger   *zap.Logger
}

var _ RequirementParser = (*anthropicParser)(nil)

func (p *anthropicParser) Parse(ctx context.Context, raw string) (*models.ParsedRequirement, error) {
	prompt := fmt.Sprintf(`Extract the job requirement below into JSON.

Requirement text:
%s

Return ONLY a JSON object:
{"title": string, "client_name": string, "location": string, "suggested_rate": number or null, "skills": [string]}.
Use "Unknown" for a missing client name. Extract only what the text states.`, raw)

	var resp anthropic.MessagesResponse
	err := guard(ctx, p.breaker, func(ctx context.Context) error {
		var callErr error
		resp, callErr = p.client.CreateMessages(ctx, anthropic.MessagesRequest{
			Model:     anthropic.Model(p.model),
			MaxTokens: 800,
			Messages: []anthropic.Message{
				{Role: anthropic.RoleUser, Content: []anthropic.MessageContent{
					{Type: "text", Text: &prompt},
				}},
			},
		})
		return callErr
	})
	if err != nil {
		p.logger.Warn("Extraction call failed, using rules parser", zap.Error(err))
		return p.fallback.Parse(ctx, raw)
	}

	var responseText string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != nil {
			responseText = *block.Text
			break
		}
	}

	var parsed models.ParsedRequirement
	if err := json.Unmarshal([]byte(extractJSON(responseText)), &parsed); err != nil {
		p.logger.Warn("Extraction returned unparseable output, using rules parser",
			zap.Error(err))
		return p.fallback.Parse(ctx, raw)
	}
	if strings.TrimSpace(parsed.Title) == "" {
		return p.fallback.Parse(ctx, raw)
	}
	if parsed.ClientName == "" {
		parsed.ClientName = "Unknown"
	}
	return &parsed, nil
}
