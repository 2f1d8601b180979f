package blob

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/config"
)

// openBreaker rejects every call without invoking fn.
type openBreaker struct {
	calls int
}

var _ Breaker = (*openBreaker)(nil)

func (b *openBreaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	b.calls++
	return fmt.Errorf("%w: bucket unavailable", apperrors.ErrCircuitOpen)
}

func testStorage(t *testing.T, breaker Breaker) Storage {
	t.Helper()
	storage, err := NewStorage(&config.BlobConfig{
		Region:          "us-east-1",
		Bucket:          "test-bucket",
		Endpoint:        "http://localhost:9000",
		AccessKeyID:     "test",
		SecretAccessKey: "test",
		ForcePathStyle:  true,
		SignedURLTTL:    time.Minute,
	}, breaker, zap.NewNop())
	require.NoError(t, err)
	return storage
}

func TestStorage_OpenBreakerBlocksBucketCalls(t *testing.T) {
	breaker := &openBreaker{}
	storage := testStorage(t, breaker)
	ctx := context.Background()

	err := storage.Put(ctx, "tenants/a/doc", "text/plain", []byte("body"))
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)

	_, err = storage.Get(ctx, "tenants/a/doc")
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)

	err = storage.Delete(ctx, "tenants/a/doc")
	assert.ErrorIs(t, err, apperrors.ErrCircuitOpen)

	assert.Equal(t, 3, breaker.calls)
}

func TestStorage_PresignIsNotGated(t *testing.T) {
	breaker := &openBreaker{}
	storage := testStorage(t, breaker)

	// Presigning signs locally and must keep working while the bucket is
	// unreachable.
	url, err := storage.PresignPut("tenants/a/doc", "application/pdf")
	require.NoError(t, err)
	assert.Contains(t, url, "tenants/a/doc")

	url, err = storage.PresignGet("tenants/a/doc")
	require.NoError(t, err)
	assert.Contains(t, url, "tenants/a/doc")

	assert.Zero(t, breaker.calls)
}

func TestSanitizeFileName(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"lowercases", "Resume.PDF", "resume.pdf"},
		{"collapses unsafe runs", "Jane Doe // Resume (final).pdf", "jane-doe-resume-final-.pdf"},
		{"keeps safe punctuation", "jane_doe-v2.1.docx", "jane_doe-v2.1.docx"},
		{"trims leading and trailing dashes", "((archived)) copy", "archived-copy"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, SanitizeFileName(tc.input))
		})
	}
}

func TestSanitizeFileName_EmptyFallsBackToHash(t *testing.T) {
	sanitized := SanitizeFileName("///")
	assert.Len(t, sanitized, 40)
	assert.Regexp(t, "^[0-9a-f]{40}$", sanitized)

	// Stable for the same input.
	assert.Equal(t, sanitized, SanitizeFileName("///"))
	assert.NotEqual(t, sanitized, SanitizeFileName("###"))
}

func TestDocumentKey(t *testing.T) {
	tenantID := uuid.New()
	documentID := uuid.New()

	key := DocumentKey(tenantID, documentID, "Jane Resume.pdf")
	assert.Equal(t,
		fmt.Sprintf("tenants/%s/documents/%s/jane-resume.pdf", tenantID, documentID),
		key)
}
