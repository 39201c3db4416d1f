// Package blob stores opaque files: document uploads and database backups.
package blob

import (
	"context"
	"fmt"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"traceline/internal/config"
	"traceline/internal/domain"
)

// ErrNotFound is returned for a missing key.
var ErrNotFound = domain.ErrNotFound

// Object describes a stored file.
type Object struct {
	Key         string    `json:"key"`
	Size        int64     `json:"size"`
	ModTime     time.Time `json:"modified_at"`
	ContentType string    `json:"content_type,omitempty"`
}

type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Get returns the object body; the caller closes it.
	Get(ctx context.Context, key string) (io.ReadCloser, Object, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]Object, error)
	Exists(ctx context.Context, key string) (bool, error)
}

// CleanKey normalizes a slash separated key and rejects keys escaping the
// store root.
func CleanKey(key string) (string, error) {
	k := strings.TrimSpace(strings.ReplaceAll(key, "\\", "/"))
	if k == "" {
		return "", domain.Validation("key", "required")
	}
	k = path.Clean("/" + k)[1:]
	if k == "" {
		return "", domain.Validation("key", fmt.Sprintf("invalid key %q", key))
	}
	return k, nil
}

// Open builds the store selected by the storage config. Local stores default
// to <workspace>/.traceline/files.
func Open(ctx context.Context, cfg config.StorageConfig, workspace string) (Store, error) {
	switch strings.ToLower(cfg.Backend) {
	case "", "local":
		root := cfg.Local.Root
		if root == "" {
			if workspace == "" {
				workspace = "."
			}
			root = filepath.Join(workspace, ".traceline", "files")
		}
		return NewLocal(root)
	case "minio":
		s, err := NewMinIO(cfg)
		if err != nil {
			return nil, err
		}
		if err := s.EnsureBucket(ctx); err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}
