package storage

import (
	"context"
	"fmt"

	"github.com/arsenic-art/DreamFundr/internal/config"
)

type FactoryResult struct {
	Driver  string
	Storage Storage // nil when archiving is disabled
}

func FromConfig(ctx context.Context, cfg config.ArchiveConfig) (FactoryResult, error) {
	switch cfg.Driver {
	case "", "none":
		return FactoryResult{Driver: "none"}, nil

	case "local":
		dir := cfg.LocalDir
		if dir == "" {
			dir = "./storage/anomalies"
		}
		return FactoryResult{Driver: "local", Storage: NewLocal(dir)}, nil

	case "s3":
		if cfg.S3Region == "" || cfg.S3Bucket == "" {
			return FactoryResult{}, fmt.Errorf("S3 archive config missing: archive.s3_region, archive.s3_bucket required")
		}
		s, err := NewS3(ctx, S3Config{
			Region: cfg.S3Region,
			Bucket: cfg.S3Bucket,
			Prefix: cfg.S3Prefix,
		})
		if err != nil {
			return FactoryResult{}, err
		}
		return FactoryResult{Driver: "s3", Storage: s}, nil

	default:
		return FactoryResult{}, fmt.Errorf("unknown archive driver: %s", cfg.Driver)
	}
}
