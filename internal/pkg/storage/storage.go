package storage

import (
	"context"
	"io"
)

// Storage is the object store used for manual payout instructions.
type Storage interface {
	// Put stores an object under key, overwriting any previous version.
	Put(ctx context.Context, key string, reader io.Reader, contentType string) error

	// Exists reports whether key is present.
	Exists(ctx context.Context, key string) (bool, error)

	// GetURL returns the location of key for operators.
	GetURL(key string) string
}

// Config holds S3/MinIO connection settings.
type Config struct {
	S3Endpoint  string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
	S3Bucket    string
}

// Configured reports whether enough settings exist to reach S3.
func (c Config) Configured() bool {
	return c.S3Bucket != "" && c.S3AccessKey != "" && c.S3SecretKey != ""
}
