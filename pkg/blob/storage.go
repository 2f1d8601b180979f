package blob

import (
	"bytes"
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"io"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/benchlane/benchlane-engine/pkg/config"
)

// Storage stores document bytes in an S3-compatible bucket and issues
// presigned URLs for direct upload/download.
type Storage interface {
	Put(ctx context.Context, key string, contentType string, body []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
	PresignPut(key string, contentType string) (string, error)
	PresignGet(key string) (string, error)
}

// Breaker gates outbound bucket calls. A nil Breaker means ungated. Presign
// operations sign locally and are never gated.
type Breaker interface {
	Execute(ctx context.Context, fn func(ctx context.Context) error) error
}

type s3Storage struct {
	client  *s3.S3
	breaker Breaker
	bucket  string
	ttl     time.Duration
	logger  *zap.Logger
}

// NewStorage creates an S3-backed Storage from configuration. A custom
// endpoint with path-style addressing supports MinIO and other S3-compatible
// stores.
func NewStorage(cfg *config.BlobConfig, breaker Breaker, logger *zap.Logger) (Storage, error) {
	awsCfg := aws.NewConfig().
		WithRegion(cfg.Region).
		WithS3ForcePathStyle(cfg.ForcePathStyle)
	if cfg.Endpoint != "" {
		awsCfg = awsCfg.WithEndpoint(cfg.Endpoint)
	}
	if cfg.AccessKeyID != "" {
		awsCfg = awsCfg.WithCredentials(
			credentials.NewStaticCredentials(cfg.AccessKeyID, cfg.SecretAccessKey, ""))
	}

	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create blob session: %w", err)
	}

	return &s3Storage{
		client:  s3.New(sess),
		breaker: breaker,
		bucket:  cfg.Bucket,
		ttl:     cfg.SignedURLTTL,
		logger:  logger.Named("blob"),
	}, nil
}

var _ Storage = (*s3Storage)(nil)

func (s *s3Storage) guard(ctx context.Context, fn func(ctx context.Context) error) error {
	if s.breaker == nil {
		return fn(ctx)
	}
	return s.breaker.Execute(ctx, fn)
}

func (s *s3Storage) Put(ctx context.Context, key string, contentType string, body []byte) error {
	err := s.guard(ctx, func(ctx context.Context) error {
		_, callErr := s.client.PutObjectWithContext(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			ContentType: aws.String(contentType),
			Body:        bytes.NewReader(body),
		})
		return callErr
	})
	if err != nil {
		return fmt.Errorf("failed to put object %s: %w", key, err)
	}
	s.logger.Debug("Object stored",
		zap.String("key", key),
		zap.Int("size", len(body)))
	return nil
}

func (s *s3Storage) Get(ctx context.Context, key string) ([]byte, error) {
	var body []byte
	err := s.guard(ctx, func(ctx context.Context) error {
		out, callErr := s.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if callErr != nil {
			return callErr
		}
		defer out.Body.Close()
		body, callErr = io.ReadAll(out.Body)
		return callErr
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get object %s: %w", key, err)
	}
	return body, nil
}

func (s *s3Storage) Delete(ctx context.Context, key string) error {
	err := s.guard(ctx, func(ctx context.Context) error {
		_, callErr := s.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		return callErr
	})
	if err != nil {
		return fmt.Errorf("failed to delete object %s: %w", key, err)
	}
	return nil
}

func (s *s3Storage) PresignPut(key string, contentType string) (string, error) {
	req, _ := s.client.PutObjectRequest(&s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		ContentType: aws.String(contentType),
	})
	url, err := req.Presign(s.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign upload for %s: %w", key, err)
	}
	return url, nil
}

func (s *s3Storage) PresignGet(key string) (string, error) {
	req, _ := s.client.GetObjectRequest(&s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	url, err := req.Presign(s.ttl)
	if err != nil {
		return "", fmt.Errorf("failed to presign download for %s: %w", key, err)
	}
	return url, nil
}

var unsafeKeyChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// SanitizeFileName lowercases the name and collapses runs of unsafe
// characters to a single dash. An empty result falls back to the SHA-1 of the
// original name so every file gets a stable key component.
func SanitizeFileName(name string) string {
	cleaned := unsafeKeyChars.ReplaceAllString(strings.ToLower(name), "-")
	cleaned = strings.Trim(cleaned, "-")
	if cleaned == "" {
		sum := sha1.Sum([]byte(name))
		return hex.EncodeToString(sum[:])
	}
	return cleaned
}

// DocumentKey builds the canonical storage key for a tenant document.
func DocumentKey(tenantID, documentID uuid.UUID, fileName string) string {
	return fmt.Sprintf("tenants/%s/documents/%s/%s",
		tenantID, documentID, SanitizeFileName(fileName))
}
