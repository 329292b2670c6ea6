// Package storage archives finished exports to object storage.
// Works with any S3-compatible provider: AWS, Garage, Hetzner Object Storage,
// Cloudflare R2, MinIO, etc., or a local directory.
// Multi-provider failover: if the primary upload fails, it retries on secondary
// providers in order until one succeeds.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/google/uuid"

	"github.com/fabriziosalmi/activitylogs/internal/config"
)

// Store wraps an S3 client for a specific bucket / provider.
type Store struct {
	client   *s3.Client
	bucket   string
	provider string
}

// New creates a Store from config. Works with any S3-compatible endpoint.
func New(ctx context.Context, cfg config.S3Config, provider string) (*Store, error) {
	opts := s3.Options{
		Region:       cfg.Region,
		Credentials:  credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		UsePathStyle: cfg.ForcePathStyle,
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
	}
	store := &Store{client: s3.New(opts), bucket: cfg.Bucket, provider: provider}

	if err := store.ensureBucketExists(ctx); err != nil {
		return nil, fmt.Errorf("storage: ensure bucket exists: %w", err)
	}
	return store, nil
}

// ensureBucketExists creates the bucket when HeadBucket reports it missing.
func (s *Store) ensureBucketExists(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err == nil {
		return nil
	}
	var notFound *types.NotFound
	if !errors.As(err, &notFound) {
		return fmt.Errorf("head bucket %s: %w", s.bucket, err)
	}

	_, err = s.client.CreateBucket(ctx, &s3.CreateBucketInput{
		Bucket: aws.String(s.bucket),
	})
	if err != nil {
		return fmt.Errorf("failed to create bucket %s: %w", s.bucket, err)
	}
	return nil
}

// Provider returns the human-readable provider label.
func (s *Store) Provider() string { return s.provider }

// PutExport compresses the export array and uploads it.
// Returns: object key, SHA-256 hex of compressed bytes, compressed byte count.
func (s *Store) PutExport(ctx context.Context, runID uuid.UUID, from, to time.Time, raw []byte) (key, sha256hex string, compressedBytes int64, err error) {
	compressed, meta, err := PrepareBlob(raw, runID, from, to)
	if err != nil {
		return "", "", 0, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:          aws.String(s.bucket),
		Key:             aws.String(meta.Key),
		Body:            bytes.NewReader(compressed),
		ContentLength:   aws.Int64(meta.Size),
		ContentType:     aws.String("application/json"),
		ContentEncoding: aws.String("gzip"),
		Metadata:        map[string]string{"sha256": meta.SHA256, "run-id": runID.String()},
	})
	if err != nil {
		return "", "", 0, fmt.Errorf("storage: put object: %w", err)
	}
	return meta.Key, meta.SHA256, meta.Size, nil
}

// GetExport downloads and decompresses an archived export.
func (s *Store) GetExport(ctx context.Context, key string) ([]byte, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("storage: get object: %w", err)
	}
	defer out.Body.Close()

	return DecompressBlob(out.Body)
}

// ── Multi-provider failover ───────────────────────────────────────────────────

// MultiStore tries providers in order and returns on first success.
type MultiStore struct {
	providers []Backend
}

// NewMultiStore creates a MultiStore from a list of Backends (primary first).
func NewMultiStore(providers ...Backend) *MultiStore {
	return &MultiStore{providers: providers}
}

// Provider lists the configured providers.
func (m *MultiStore) Provider() string {
	label := "multi"
	for i, p := range m.providers {
		sep := ","
		if i == 0 {
			sep = ":"
		}
		label += sep + p.Provider()
	}
	return label
}

// PutExport uploads to the first available provider and returns its label
// alongside the object metadata.
func (m *MultiStore) PutExport(ctx context.Context, runID uuid.UUID, from, to time.Time, raw []byte) (key, sha256hex, provider string, compressedBytes int64, err error) {
	if len(m.providers) == 0 {
		return "", "", "", 0, errors.New("storage: no providers configured")
	}
	for _, p := range m.providers {
		var k, h string
		var cb int64
		k, h, cb, err = p.PutExport(ctx, runID, from, to, raw)
		if err == nil {
			return k, h, p.Provider(), cb, nil
		}
	}
	return "", "", "", 0, fmt.Errorf("storage: all providers failed, last error: %w", err)
}

// GetExport fetches from the first provider that has the object.
func (m *MultiStore) GetExport(ctx context.Context, key string) ([]byte, error) {
	var lastErr error
	for _, p := range m.providers {
		data, err := p.GetExport(ctx, key)
		if err == nil {
			return data, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("storage: all providers failed: %w", lastErr)
}
