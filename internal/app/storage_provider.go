package app

import (
	"context"
	"fmt"
	"strings"

	"github.com/yungbote/fluent-backend/internal/platform/logger"
	"github.com/yungbote/fluent-backend/internal/platform/objectstore"
)

var newBucketService = objectstore.NewBucketService

type StorageBootstrapError struct {
	Endpoint string
	Bucket   string
	Cause    error
}

func (e *StorageBootstrapError) Error() string {
	if e == nil {
		return "object storage bootstrap failed"
	}
	return fmt.Sprintf("object storage bootstrap failed (endpoint=%q bucket=%q): %v", e.Endpoint, e.Bucket, e.Cause)
}

func (e *StorageBootstrapError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// resolveBucketService returns nil when no MinIO endpoint is configured;
// uploads are then ingested without keeping the raw file.
func resolveBucketService(ctx context.Context, log *logger.Logger, cfg Config) (objectstore.BucketService, error) {
	endpoint := strings.TrimSpace(cfg.MinioEndpoint)
	if endpoint == "" {
		log.Info("MINIO_ENDPOINT not set; raw uploads will not be stored")
		return nil, nil
	}
	bucket, err := newBucketService(ctx, log, objectstore.Config{
		Endpoint:  endpoint,
		AccessKey: cfg.MinioAccessKey,
		SecretKey: cfg.MinioSecretKey,
		Bucket:    strings.TrimSpace(cfg.MinioBucket),
		UseSSL:    cfg.MinioUseSSL,
	})
	if err != nil {
		bootErr := &StorageBootstrapError{Endpoint: endpoint, Bucket: cfg.MinioBucket, Cause: err}
		log.Error("Object storage bootstrap failed", "error", bootErr)
		return nil, bootErr
	}
	return bucket, nil
}
