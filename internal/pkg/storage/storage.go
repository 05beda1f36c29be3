package storage

import (
	"context"
	"errors"
	"io"
)

// ErrNotFound is returned when an object does not exist.
var ErrNotFound = errors.New("object not found")

// Store is the object storage used for the webhook payload archive.
type Store interface {
	// Put stores an object at key.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Get opens an object; ErrNotFound when absent.
	Get(ctx context.Context, key string) (io.ReadCloser, error)

	// Exists reports whether key is stored.
	Exists(ctx context.Context, key string) (bool, error)
}

// Config configures the S3/MinIO backend.
type Config struct {
	S3Endpoint  string
	S3Region    string
	S3Bucket    string
	S3AccessKey string
	S3SecretKey string
}
