// Package storage keeps uploaded files and backup archives on a local
// directory or an S3-compatible bucket (AWS S3, Cloudflare R2, MinIO).
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"

	"itflow/internal/config"
)

var ErrNotFound = errors.New("object not found")

type Disk interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	// URL is the public address of the object, or "" when the disk has none.
	URL(key string) string
}

// New builds the disk selected by cfg.StorageDisk.
func New(ctx context.Context, cfg *config.Config) (Disk, error) {
	switch cfg.StorageDisk {
	case "", "local":
		return NewLocalDisk(cfg.StorageLocalRoot, cfg.StorageURL)
	case "s3":
		return NewS3Disk(ctx, S3Options{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Key:       cfg.S3Key,
			Secret:    cfg.S3Secret,
			Endpoint:  cfg.S3Endpoint,
			PublicURL: cfg.S3PublicURL,
		})
	default:
		return nil, fmt.Errorf("storage: unknown disk %q", cfg.StorageDisk)
	}
}
