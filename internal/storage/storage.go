// Package storage stores profile photos in an object store and exposes their public URLs.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/agronect/apiserver/config"
)

// ObjectStorage is implemented by each supported object store.
type ObjectStorage interface {
	EnsureBucket(ctx context.Context) error
	// Put uploads a publicly readable object.
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	// PublicURL returns the URL clients fetch key from.
	PublicURL(key string) string
	Bucket() string
}

// Storage wraps an ObjectStorage backend with URL helpers.
type Storage struct {
	backend ObjectStorage
}

func NewStorage(backend ObjectStorage) *Storage {
	return &Storage{backend: backend}
}

// Open builds the backend named by cfg.Backend. It returns (nil, nil) for "none" or "".
func Open(ctx context.Context, cfg config.StorageConfig) (*Storage, error) {
	var (
		backend ObjectStorage
		err     error
	)
	switch cfg.Backend {
	case "", "none":
		return nil, nil
	case "minio":
		backend, err = NewMinioClient(cfg.Minio)
	case "gcs":
		backend, err = NewGCSClient(ctx, cfg.GCS)
	case "s3":
		backend, err = NewS3Client(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", cfg.Backend, err)
	}
	return NewStorage(backend), nil
}

func (s *Storage) EnsureBucket(ctx context.Context) error {
	return s.backend.EnsureBucket(ctx)
}

// Upload stores r under key and returns the object's public URL.
func (s *Storage) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (string, error) {
	if err := s.backend.Put(ctx, key, r, size, contentType); err != nil {
		return "", err
	}
	return s.backend.PublicURL(key), nil
}

// KeyFromURL reverses PublicURL. It reports false for URLs outside this bucket.
func (s *Storage) KeyFromURL(publicURL string) (string, bool) {
	prefix := s.backend.PublicURL("")
	if publicURL == "" || !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	key := strings.TrimPrefix(publicURL, prefix)
	if key == "" {
		return "", false
	}
	return key, true
}

// DeleteIfExists removes key and reports whether there was anything to delete.
func (s *Storage) DeleteIfExists(ctx context.Context, key string) (bool, error) {
	exists, err := s.backend.Exists(ctx, key)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := s.backend.Delete(ctx, key); err != nil {
		return false, err
	}
	return true, nil
}

func (s *Storage) Bucket() string {
	return s.backend.Bucket()
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}
