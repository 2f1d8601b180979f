package ingestion

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/config"
	"github.com/benchlane/benchlane-engine/pkg/crypto"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

func testRedactor(t *testing.T) *Redactor {
	t.Helper()
	redactor, err := NewRedactor(&config.PIIConfig{
		TokenSecret: "test-secret",
		TokenPrefix: "pii",
	}, nil, zap.NewNop())
	require.NoError(t, err)
	return redactor
}

func TestRedactor_Redact(t *testing.T) {
	redactor := testRedactor(t)

	text := "contact Jane Doe at jane.doe@acme.io or call 415-555-0134"
	result, err := redactor.Redact(context.Background(), text)
	require.NoError(t, err)

	require.Len(t, result.Findings, 3)
	assert.Equal(t, 1, result.Counts[models.PIITypePerson])
	assert.Equal(t, 1, result.Counts[models.PIITypeEmail])
	assert.Equal(t, 1, result.Counts[models.PIITypePhone])

	assert.NotContains(t, result.RedactedText, "Jane Doe")
	assert.NotContains(t, result.RedactedText, "jane.doe@acme.io")
	assert.NotContains(t, result.RedactedText, "415-555-0134")
	assert.Equal(t, 3, strings.Count(result.RedactedText, "{{pii:"))

	// Tokens and vault entries come back in document order.
	require.Len(t, result.Tokens, 3)
	assert.Equal(t, models.PIITypePerson, result.Tokens[0].Type)
	assert.Equal(t, models.PIITypeEmail, result.Tokens[1].Type)
	assert.Equal(t, models.PIITypePhone, result.Tokens[2].Type)

	require.Len(t, result.VaultEntries, 3)
	for i, entry := range result.VaultEntries {
		assert.Equal(t, result.Tokens[i].Token, entry.Token)
		assert.NotEmpty(t, entry.Ciphertext)
	}
}

func TestRedactor_VaultEntriesDecrypt(t *testing.T) {
	redactor := testRedactor(t)

	result, err := redactor.Redact(context.Background(), "reach me at bob@corp.example")
	require.NoError(t, err)
	require.Len(t, result.VaultEntries, 1)

	encryptor, err := crypto.NewVaultEncryptor("test-secret")
	require.NoError(t, err)

	plaintext, err := encryptor.Decrypt(result.VaultEntries[0].Ciphertext)
	require.NoError(t, err)
	assert.Equal(t, "bob@corp.example", plaintext)
}

func TestRedactor_SSN(t *testing.T) {
	redactor := testRedactor(t)

	result, err := redactor.Redact(context.Background(), "ssn on file: 123-45-6789")
	require.NoError(t, err)

	require.Len(t, result.Findings, 1)
	assert.Equal(t, models.PIITypeSSN, result.Findings[0].Type)
	assert.NotContains(t, result.RedactedText, "123-45-6789")
}

func TestRedactor_NoFindings(t *testing.T) {
	redactor := testRedactor(t)

	text := "ten years of platform engineering across cloud providers"
	result, err := redactor.Redact(context.Background(), text)
	require.NoError(t, err)

	assert.Equal(t, text, result.RedactedText)
	assert.Empty(t, result.Findings)
	assert.Empty(t, result.Tokens)
	assert.Empty(t, result.VaultEntries)
}

func TestResolveOverlaps(t *testing.T) {
	findings := []models.PIIFinding{
		{Type: models.PIITypePerson, Start: 8, End: 16},
		{Type: models.PIITypePerson, Start: 0, End: 12},
		{Type: models.PIITypeEmail, Start: 20, End: 36},
	}

	selected := resolveOverlaps(findings)
	require.Len(t, selected, 2)
	// Earliest start wins; the span starting inside it is dropped.
	assert.Equal(t, 0, selected[0].Start)
	assert.Equal(t, 20, selected[1].Start)
}

func TestResolveOverlaps_TiePrefersLongerSpan(t *testing.T) {
	findings := []models.PIIFinding{
		{Type: models.PIITypePhone, Start: 5, End: 12},
		{Type: models.PIITypePhone, Start: 5, End: 20},
	}

	selected := resolveOverlaps(findings)
	require.Len(t, selected, 1)
	assert.Equal(t, 20, selected[0].End)
}

func TestRegexRecognizer(t *testing.T) {
	recognizer := NewRegexRecognizer()

	findings, err := recognizer.Recognize(context.Background(), "worked with Priya Sharma on the migration")
	require.NoError(t, err)
	require.Len(t, findings, 1)
	assert.Equal(t, models.PIITypePerson, findings[0].Type)
	assert.Equal(t, "Priya Sharma", findings[0].Value)

	findings, err = recognizer.Recognize(context.Background(), "no names here")
	require.NoError(t, err)
	assert.Empty(t, findings)
}
