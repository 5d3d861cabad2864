package documents

import (
	"context"
	"fmt"

	"github.com/transplantflow/platform/pkg/common/config"
	"github.com/transplantflow/platform/pkg/common/logger"
)

// Open builds the backend named by cfg.DocumentBackend.
func Open(ctx context.Context, cfg *config.Config) (Store, error) {
	logger.WithField("backend", cfg.DocumentBackend).Info("Opening document archive")
	switch cfg.DocumentBackend {
	case "memory":
		return NewMemory(), nil
	case "fs", "":
		return NewFilesystem(cfg.DocumentDir)
	case "s3":
		return NewS3(ctx, S3Config{
			Region:          cfg.S3Region,
			Bucket:          cfg.S3Bucket,
			Endpoint:        cfg.S3Endpoint,
			AccessKeyID:     cfg.S3AccessKeyID,
			SecretAccessKey: cfg.S3SecretKey,
			PathStyle:       cfg.S3PathStyle,
		})
	default:
		return nil, fmt.Errorf("unknown document backend %q", cfg.DocumentBackend)
	}
}
