package blob

import (
	"context"
	"fmt"
	"io"
	"log"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"traceline/internal/config"
)

// MinIO keeps objects in one bucket of an S3 compatible server.
type MinIO struct {
	mc     *minio.Client
	bucket string
}

func NewMinIO(cfg config.StorageConfig) (*MinIO, error) {
	mcfg := cfg.MinIO
	if mcfg.Endpoint == "" {
		return nil, fmt.Errorf("minio endpoint is required")
	}
	if mcfg.AccessKey == "" || mcfg.SecretKey == "" {
		return nil, fmt.Errorf("minio access_key and secret_key are required")
	}
	mc, err := minio.New(mcfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(mcfg.AccessKey, mcfg.SecretKey, ""),
		Secure: mcfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}
	bucket := mcfg.Bucket
	if bucket == "" {
		bucket = "traceline"
	}
	return &MinIO{mc: mc, bucket: bucket}, nil
}

// EnsureBucket creates the bucket on first use.
func (m *MinIO) EnsureBucket(ctx context.Context) error {
	exists, err := m.mc.BucketExists(ctx, m.bucket)
	if err != nil {
		return fmt.Errorf("check bucket: %w", err)
	}
	if !exists {
		if err := m.mc.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket: %w", err)
		}
		log.Printf("blob: created bucket %s", m.bucket)
	}
	return nil
}

func (m *MinIO) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	if _, err := m.mc.PutObject(ctx, m.bucket, k, r, size, minio.PutObjectOptions{ContentType: contentType}); err != nil {
		return fmt.Errorf("upload %s: %w", k, err)
	}
	return nil
}

func (m *MinIO) Get(ctx context.Context, key string) (io.ReadCloser, Object, error) {
	k, err := CleanKey(key)
	if err != nil {
		return nil, Object{}, err
	}
	obj, err := m.mc.GetObject(ctx, m.bucket, k, minio.GetObjectOptions{})
	if err != nil {
		return nil, Object{}, fmt.Errorf("download %s: %w", k, err)
	}
	// GetObject is lazy; Stat surfaces a missing key.
	info, err := obj.Stat()
	if err != nil {
		obj.Close()
		if isNoSuchKey(err) {
			return nil, Object{}, ErrNotFound
		}
		return nil, Object{}, fmt.Errorf("stat %s: %w", k, err)
	}
	return obj, objectFromInfo(info), nil
}

func (m *MinIO) Delete(ctx context.Context, key string) error {
	k, err := CleanKey(key)
	if err != nil {
		return err
	}
	ok, err := m.Exists(ctx, k)
	if err != nil {
		return err
	}
	if !ok {
		return ErrNotFound
	}
	return m.mc.RemoveObject(ctx, m.bucket, k, minio.RemoveObjectOptions{})
}

func (m *MinIO) List(ctx context.Context, prefix string) ([]Object, error) {
	var out []Object
	for info := range m.mc.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if info.Err != nil {
			return nil, fmt.Errorf("list %s: %w", prefix, info.Err)
		}
		out = append(out, objectFromInfo(info))
	}
	return out, nil
}

func (m *MinIO) Exists(ctx context.Context, key string) (bool, error) {
	k, err := CleanKey(key)
	if err != nil {
		return false, err
	}
	_, err = m.mc.StatObject(ctx, m.bucket, k, minio.StatObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

func objectFromInfo(info minio.ObjectInfo) Object {
	return Object{
		Key:         info.Key,
		Size:        info.Size,
		ModTime:     info.LastModified.UTC(),
		ContentType: info.ContentType,
	}
}
