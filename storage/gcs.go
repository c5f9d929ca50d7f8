//go:build gcp

package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	gcs "cloud.google.com/go/storage"
)

// GCSStore keeps recordings in a Google Cloud Storage bucket.
type GCSStore struct {
	client *gcs.Client
	bucket string
	prefix string
}

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string
	Prefix string
}

// NewGCSStore uses application default credentials.
func NewGCSStore(ctx context.Context, cfg GCSStoreConfig) (*GCSStore, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("GCS bucket is required")
	}
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCS client: %w", err)
	}
	return &GCSStore{client: client, bucket: cfg.Bucket, prefix: cfg.Prefix}, nil
}

func (s *GCSStore) object(objectPath string) (string, *gcs.ObjectHandle, error) {
	p, err := CleanPath(objectPath)
	if err != nil {
		return "", nil, err
	}
	return p, s.client.Bucket(s.bucket).Object(s.prefix + p), nil
}

func (s *GCSStore) Upload(ctx context.Context, objectPath string, data []byte, contentType string) (string, error) {
	p, obj, err := s.object(objectPath)
	if err != nil {
		return "", err
	}
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, bytes.NewReader(data)); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("gcs write failed: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("gcs close failed: %w", err)
	}
	return p, nil
}

func (s *GCSStore) SignedURL(_ context.Context, objectPath string, ttl time.Duration) (string, error) {
	p, err := CleanPath(objectPath)
	if err != nil {
		return "", err
	}
	u, err := s.client.Bucket(s.bucket).SignedURL(s.prefix+p, &gcs.SignedURLOptions{
		Scheme:  gcs.SigningSchemeV4,
		Method:  http.MethodGet,
		Expires: time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("gcs sign failed for %s: %w", p, err)
	}
	return u, nil
}

func (s *GCSStore) Download(ctx context.Context, objectPath string) ([]byte, error) {
	p, obj, err := s.object(objectPath)
	if err != nil {
		return nil, err
	}
	reader, err := obj.NewReader(ctx)
	if err != nil {
		if errors.Is(err, gcs.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, p)
		}
		return nil, fmt.Errorf("gcs get failed for %s: %w", p, err)
	}
	defer func() { _ = reader.Close() }()
	return io.ReadAll(reader)
}

func (s *GCSStore) Delete(ctx context.Context, objectPath string) error {
	p, obj, err := s.object(objectPath)
	if err != nil {
		return err
	}
	if err := obj.Delete(ctx); err != nil && !errors.Is(err, gcs.ErrObjectNotExist) {
		return fmt.Errorf("gcs delete failed for %s: %w", p, err)
	}
	return nil
}

// Close closes the GCS client.
func (s *GCSStore) Close() error {
	return s.client.Close()
}

func newGCSStore(ctx context.Context, bucket, prefix string) (ObjectStore, error) {
	return NewGCSStore(ctx, GCSStoreConfig{Bucket: bucket, Prefix: prefix})
}
