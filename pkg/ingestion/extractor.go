package ingestion

import (
	"context"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"
)

// TextExtractor pulls plain text out of a document's bytes.
type TextExtractor interface {
	Extract(ctx context.Context, contentType string, data []byte) (string, error)
	Supports(contentType string) bool
}

// Extractor chains a primary extractor and an OCR fallback for image MIME
// types. When both fail (or neither supports the type), the document's bytes
// are interpreted as UTF-8 text so ingestion never hard-fails on format.
type Extractor struct {
	primary TextExtractor
	ocr     TextExtractor
	logger  *zap.Logger
}

// NewExtractor creates an extractor chain. primary and ocr may be nil; the
// UTF-8 fallback always applies last.
func NewExtractor(primary, ocr TextExtractor, logger *zap.Logger) *Extractor {
	return &Extractor{
		primary: primary,
		ocr:     ocr,
		logger:  logger.Named("extractor"),
	}
}

// Extract returns the document's text content.
func (e *Extractor) Extract(ctx context.Context, contentType string, data []byte) string {
	if e.primary != nil && e.primary.Supports(contentType) {
		text, err := e.primary.Extract(ctx, contentType, data)
		if err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		if err != nil {
			e.logger.Warn("Primary extraction failed",
				zap.String("content_type", contentType),
				zap.Error(err))
		}
	}

	if e.ocr != nil && strings.HasPrefix(contentType, "image/") {
		text, err := e.ocr.Extract(ctx, contentType, data)
		if err == nil && strings.TrimSpace(text) != "" {
			return text
		}
		if err != nil {
			e.logger.Warn("OCR extraction failed",
				zap.String("content_type", contentType),
				zap.Error(err))
		}
	}

	return decodeUTF8(data)
}

// decodeUTF8 interprets bytes as UTF-8, replacing invalid sequences and
// stripping control characters that would pollute the index.
func decodeUTF8(data []byte) string {
	var sb strings.Builder
	sb.Grow(len(data))
	for len(data) > 0 {
		r, size := utf8.DecodeRune(data)
		data = data[size:]
		if r == utf8.RuneError && size == 1 {
			continue
		}
		if r == '\n' || r == '\t' || r >= ' ' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}

// PlainTextExtractor handles text MIME types by decoding UTF-8 directly.
type PlainTextExtractor struct{}

var _ TextExtractor = (*PlainTextExtractor)(nil)

// Supports reports whether the content type is plain text.
func (p *PlainTextExtractor) Supports(contentType string) bool {
	return strings.HasPrefix(contentType, "text/")
}

// Extract decodes the bytes as UTF-8.
func (p *PlainTextExtractor) Extract(ctx context.Context, contentType string, data []byte) (string, error) {
	return decodeUTF8(data), nil
}
