package ingestion

import (
	"context"
	"regexp"

	"github.com/benchlane/benchlane-engine/pkg/models"
)

// EntityRecognizer finds named entities in extracted text. PERSON is the
// minimum entity type the pipeline depends on.
type EntityRecognizer interface {
	Recognize(ctx context.Context, text string) ([]models.PIIFinding, error)
}

// RegexRecognizer is the deterministic fallback used when no external NER
// collaborator is configured. It detects capitalised two-part names, which is
// coarse but predictable.
type RegexRecognizer struct{}

var _ EntityRecognizer = (*RegexRecognizer)(nil)

// NewRegexRecognizer creates the fallback recognizer.
func NewRegexRecognizer() *RegexRecognizer {
	return &RegexRecognizer{}
}

// personPattern matches "Firstname Lastname" pairs. Common sentence starters
// produce false positives; downstream tokenisation tolerates over-redaction
// better than a leaked name.
var personPattern = regexp.MustCompile(`\b[A-Z][a-z]+ [A-Z][a-z]+\b`)

// Recognize returns PERSON findings with byte offsets into text.
func (r *RegexRecognizer) Recognize(ctx context.Context, text string) ([]models.PIIFinding, error) {
	var findings []models.PIIFinding
	for _, loc := range personPattern.FindAllStringIndex(text, -1) {
		findings = append(findings, models.PIIFinding{
			Type:  models.PIITypePerson,
			Value: text[loc[0]:loc[1]],
			Start: loc[0],
			End:   loc[1],
		})
	}
	return findings, nil
}
