package ingestion

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
	"sort"

	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/crypto"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// RedactionResult is the output of one redaction pass.
type RedactionResult struct {
	RedactedText string
	Findings     []models.PIIFinding
	Tokens       []models.PIITokenRef
	VaultEntries []*models.PIIVaultEntry
	Counts       map[string]int
}

// Redactor detects PII in text, substitutes minted tokens, and prepares
// encrypted vault entries for the originals.
type Redactor struct {
	encryptor *crypto.VaultEncryptor
	ner       EntityRecognizer
	prefix    string
	logger    *zap.Logger
}

// NewRedactor creates a redactor. The token secret encrypts vault originals;
// ner may be nil, in which case the regex fallback recognizer is used.
func NewRedactor(cfg *config.PIIConfig, ner EntityRecognizer, logger *zap.Logger) (*Redactor, error) {
	encryptor, err := crypto.NewVaultEncryptor(cfg.TokenSecret)
	if err != nil {
		return nil, fmt.Errorf("failed to create vault encryptor: %w", err)
	}
	if ner == nil {
		ner = NewRegexRecognizer()
	}
	return &Redactor{
		encryptor: encryptor,
		ner:       ner,
		prefix:    cfg.TokenPrefix,
		logger:    logger.Named("redactor"),
	}, nil
}

var (
	emailPattern = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	phonePattern = regexp.MustCompile(`(?:\+?1[\s.\-]?)?\(?\d{3}\)?[\s.\-]\d{3}[\s.\-]\d{4}`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
)

// Redact finds EMAIL, PHONE, SSN, and PERSON spans in text, replaces each
// selected span with a literal {{token}}, and returns encrypted vault entries
// for the originals. Overlapping findings resolve by earliest start; a span
// inside an already-consumed region is dropped.
func (r *Redactor) Redact(ctx context.Context, text string) (*RedactionResult, error) {
	var findings []models.PIIFinding
	findings = append(findings, findPattern(text, emailPattern, models.PIITypeEmail)...)
	findings = append(findings, findPattern(text, phonePattern, models.PIITypePhone)...)
	findings = append(findings, findPattern(text, ssnPattern, models.PIITypeSSN)...)

	persons, err := r.ner.Recognize(ctx, text)
	if err != nil {
		r.logger.Warn("Entity recognition failed, continuing with pattern findings",
			zap.Error(err))
	} else {
		findings = append(findings, persons...)
	}

	selected := resolveOverlaps(findings)

	result := &RedactionResult{
		RedactedText: text,
		Findings:     selected,
		Counts:       make(map[string]int),
	}

	// Substitute back-to-front so earlier offsets stay valid.
	for i := len(selected) - 1; i >= 0; i-- {
		finding := selected[i]

		token, err := r.mintToken(finding.Type)
		if err != nil {
			return nil, err
		}
		ciphertext, err := r.encryptor.Encrypt(finding.Value)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt pii value: %w", err)
		}

		result.RedactedText = result.RedactedText[:finding.Start] +
			"{{" + token + "}}" + result.RedactedText[finding.End:]
		result.Tokens = append(result.Tokens, models.PIITokenRef{Token: token, Type: finding.Type})
		result.VaultEntries = append(result.VaultEntries, &models.PIIVaultEntry{
			Token:      token,
			Type:       finding.Type,
			Ciphertext: ciphertext,
		})
		result.Counts[finding.Type]++
	}

	// Restore document order after the reverse pass.
	reverseTokens(result.Tokens)
	reverseEntries(result.VaultEntries)

	return result, nil
}

func (r *Redactor) mintToken(piiType string) (string, error) {
	buf := make([]byte, 6)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("failed to mint token: %w", err)
	}
	return fmt.Sprintf("%s:%s:%s", r.prefix, piiType, hex.EncodeToString(buf)), nil
}

func findPattern(text string, pattern *regexp.Regexp, piiType string) []models.PIIFinding {
	var findings []models.PIIFinding
	for _, loc := range pattern.FindAllStringIndex(text, -1) {
		findings = append(findings, models.PIIFinding{
			Type:  piiType,
			Value: text[loc[0]:loc[1]],
			Start: loc[0],
			End:   loc[1],
		})
	}
	return findings
}

// resolveOverlaps keeps the earliest-starting finding of any overlapping
// group; later spans that begin inside a kept span are dropped. Ties on start
// prefer the longer span.
func resolveOverlaps(findings []models.PIIFinding) []models.PIIFinding {
	sort.Slice(findings, func(i, j int) bool {
		if findings[i].Start != findings[j].Start {
			return findings[i].Start < findings[j].Start
		}
		return findings[i].End > findings[j].End
	})

	var selected []models.PIIFinding
	lastEnd := -1
	for _, finding := range findings {
		if finding.Start < lastEnd {
			continue
		}
		selected = append(selected, finding)
		lastEnd = finding.End
	}
	return selected
}

func reverseTokens(tokens []models.PIITokenRef) {
	for i, j := 0, len(tokens)-1; i < j; i, j = i+1, j-1 {
		tokens[i], tokens[j] = tokens[j], tokens[i]
	}
}

func reverseEntries(entries []*models.PIIVaultEntry) {
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
}
