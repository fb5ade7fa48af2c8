package storage

import (
	"context"
	"io"
	"time"
)

// StorageType represents the type of storage backend
type StorageType string

const (
	StorageTypeLocal StorageType = "local"
	StorageTypeS3    StorageType = "s3"
)

// StorageConfig contains configuration for storage backends
type StorageConfig struct {
	Type            StorageType
	BasePath        string
	Endpoint        string
	Region          string
	Bucket          string
	AccessKeyID     string
	SecretAccessKey string
	UseSSL          bool
	MaxRetries      int
	RetryDelay      time.Duration
	Timeout         time.Duration
}

// DefaultStorageConfig returns a default storage configuration
func DefaultStorageConfig() StorageConfig {
	return StorageConfig{
		Type:       StorageTypeLocal,
		BasePath:   "./recordings",
		MaxRetries: 3,
		RetryDelay: 2 * time.Second,
		Timeout:    30 * time.Second,
		UseSSL:     true,
	}
}

// StorageObject represents an object in storage
type StorageObject struct {
	Key          string
	Size         int64
	LastModified time.Time
	ContentType  string
	Metadata     map[string]string
}

// Storage defines the interface for storage backends — the object-store
// primitive every SPEC_FULL.md component that persists bytes (recorder
// segments/playlists/chapters via RecordingStorage, S3Pusher's live
// push) is built on top of.
type Storage interface {
	Upload(ctx context.Context, key string, data io.Reader, size int64, contentType string) error
	Download(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
	List(ctx context.Context, prefix string, maxKeys int) ([]StorageObject, error)
	GetMetadata(ctx context.Context, key string) (map[string]string, error)
	SetMetadata(ctx context.Context, key string, metadata map[string]string) error
	Copy(ctx context.Context, srcKey, dstKey string) error
	GetURL(ctx context.Context, key string, expires time.Duration) (string, error)
	Close() error
}
