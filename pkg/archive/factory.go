package archive

import (
	"context"
	"fmt"
	"path/filepath"
)

// Type selects an archive backend.
type Type string

const (
	TypeFS  Type = "fs"
	TypeS3  Type = "s3"
	TypeGCS Type = "gcs"
)

// Config selects and configures a backend.
type Config struct {
	Type    Type
	DataDir string // fs: blobs go under DataDir/archive
	S3      S3Config
	GCS     GCSConfig
}

// GCSConfig holds configuration for GCSStore. GCS support requires the gcp
// build tag.
type GCSConfig struct {
	Bucket string
	Prefix string
}

// NewStore builds the configured backend. An empty Type means fs.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Type {
	case "", TypeFS:
		dir := cfg.DataDir
		if dir == "" {
			dir = "data"
		}
		return NewFileStore(filepath.Join(dir, "archive"))
	case TypeS3:
		if cfg.S3.Region == "" {
			cfg.S3.Region = "us-east-1"
		}
		return NewS3Store(ctx, cfg.S3)
	case TypeGCS:
		return newGCSStore(ctx, cfg.GCS)
	default:
		return nil, fmt.Errorf("unsupported archive storage type: %s", cfg.Type)
	}
}
