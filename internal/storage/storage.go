// Package storage provides the photo blob store behind a provider interface.
package storage

import (
	"context"
	"io"
	"time"
)

// Object represents a stored file
type Object struct {
	Key          string    `json:"key"`
	Bucket       string    `json:"bucket"`
	Size         int64     `json:"size"`
	ContentType  string    `json:"content_type"`
	LastModified time.Time `json:"last_modified"`
	ETag         string    `json:"etag,omitempty"`
}

// UploadOptions contains options for uploading files
type UploadOptions struct {
	ContentType  string
	CacheControl string
}

// Provider defines the interface for blob storage backends
type Provider interface {
	// Name returns the provider name ("local" or "s3")
	Name() string

	// Health checks if the storage is reachable and writable
	Health(ctx context.Context) error

	// Upload stores a file and returns its metadata
	Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, opts *UploadOptions) (*Object, error)

	// Download retrieves a file
	Download(ctx context.Context, bucket, key string) (io.ReadCloser, *Object, error)

	// Delete removes a file
	Delete(ctx context.Context, bucket, key string) error

	// EnsureBucket creates the bucket if it does not exist
	EnsureBucket(ctx context.Context, bucket string) error

	// PublicURL returns a publicly resolvable URL for an uploaded object
	PublicURL(bucket, key string) string
}
