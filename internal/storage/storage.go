package storage

import (
	"context"

	"github.com/andresuchdata/vendcast/internal/config"
)

// ObjectInfo represents metadata for a remote file/object.
type ObjectInfo struct {
	Key  string
	Size int64
}

// ObjectStorage captures the minimal S3-compatible operations exports need.
type ObjectStorage interface {
	ListObjects(ctx context.Context, prefix string) ([]ObjectInfo, error)
	DownloadObject(ctx context.Context, key string, destPath string) error
	UploadObject(ctx context.Context, key string, data []byte, contentType string) error
}

// New returns the MinIO-backed store when storage is enabled and a local
// directory store rooted at localDir otherwise.
func New(cfg config.StorageConfig, localDir string) (ObjectStorage, error) {
	if !cfg.Enabled {
		local, err := NewLocal(localDir)
		if err != nil {
			return nil, err
		}
		return local, nil
	}
	remote, err := NewMinio(cfg)
	if err != nil {
		return nil, err
	}
	return remote, nil
}
