package storage

import (
	"context"
	"fmt"

	"github.com/dp-govee/S-iot-awsiotlogsv2/pkg/observability"
)

// New builds the snapshot store selected by cfg.Type
func New(ctx context.Context, cfg Config, metrics *observability.Metrics) (SnapshotStore, error) {
	switch cfg.Type {
	case "s3":
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.S3Bucket, cfg.Prefix, metrics), nil
	case "filesystem":
		return NewFileSystemStore(cfg.FilesystemRoot, cfg.Prefix, metrics)
	default:
		return nil, fmt.Errorf("invalid storage type: %s (must be s3 or filesystem)", cfg.Type)
	}
}
