package storage

import (
	"context"
	"fmt"

	"github.com/cppla/voicebloom/config"
)

const (
	DriverLocal = "local"
	DriverS3    = "s3"
	DriverGCS   = "gcs"
)

// New builds the object store selected by cfg.StorageDriver.
func New(ctx context.Context, cfg config.AppConfig) (ObjectStore, error) {
	switch cfg.StorageDriver {
	case DriverLocal, "":
		return NewLocalStore(cfg.LocalStorageDir, cfg.PublicBaseURL, []byte(cfg.StorageSigningKey))
	case DriverS3:
		return NewS3Store(ctx, S3StoreConfig{
			Bucket:       cfg.S3Bucket,
			Region:       cfg.S3Region,
			Endpoint:     cfg.S3Endpoint,
			Prefix:       cfg.S3Prefix,
			UsePathStyle: cfg.S3UsePathStyle,
		})
	case DriverGCS:
		return newGCSStore(ctx, cfg.GCSBucket, cfg.GCSPrefix)
	default:
		return nil, fmt.Errorf("unsupported storage driver: %s", cfg.StorageDriver)
	}
}
