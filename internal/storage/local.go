package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// LocalStorage implements Provider using the local filesystem.
// Objects are served back through the HTTP server's static file route.
type LocalStorage struct {
	basePath string
	baseURL  string
}

// NewLocalStorage creates a new local filesystem storage provider
func NewLocalStorage(basePath, baseURL string) (*LocalStorage, error) {
	if err := os.MkdirAll(basePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage directory: %w", err)
	}

	return &LocalStorage{
		basePath: basePath,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
	}, nil
}

// Name returns the provider name
func (ls *LocalStorage) Name() string {
	return "local"
}

// BasePath returns the filesystem root of the store
func (ls *LocalStorage) BasePath() string {
	return ls.basePath
}

// Health checks if the storage is healthy
func (ls *LocalStorage) Health(ctx context.Context) error {
	if _, err := os.Stat(ls.basePath); err != nil {
		return fmt.Errorf("storage directory not accessible: %w", err)
	}

	testFile := filepath.Join(ls.basePath, ".health_check")
	if err := os.WriteFile(testFile, []byte("ok"), 0644); err != nil {
		return fmt.Errorf("storage directory not writable: %w", err)
	}
	os.Remove(testFile)

	return nil
}

// getPath returns the full filesystem path for a bucket/key
func (ls *LocalStorage) getPath(bucket, key string) string {
	return filepath.Join(ls.basePath, bucket, key)
}

// Upload stores a file on disk
func (ls *LocalStorage) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, opts *UploadOptions) (*Object, error) {
	if opts == nil {
		opts = &UploadOptions{}
	}

	filePath := ls.getPath(bucket, key)
	if err := os.MkdirAll(filepath.Dir(filePath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.Create(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	written, err := io.Copy(file, data)
	if err != nil {
		os.Remove(filePath)
		return nil, fmt.Errorf("failed to write file: %w", err)
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}

	return &Object{
		Key:          key,
		Bucket:       bucket,
		Size:         written,
		ContentType:  opts.ContentType,
		LastModified: info.ModTime(),
	}, nil
}

// Download retrieves a file from disk
func (ls *LocalStorage) Download(ctx context.Context, bucket, key string) (io.ReadCloser, *Object, error) {
	filePath := ls.getPath(bucket, key)

	info, err := os.Stat(filePath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("object %s/%s not found", bucket, key)
		}
		return nil, nil, fmt.Errorf("failed to stat file: %w", err)
	}

	file, err := os.Open(filePath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open file: %w", err)
	}

	return file, &Object{
		Key:          key,
		Bucket:       bucket,
		Size:         info.Size(),
		LastModified: info.ModTime(),
	}, nil
}

// Delete removes a file from disk
func (ls *LocalStorage) Delete(ctx context.Context, bucket, key string) error {
	filePath := ls.getPath(bucket, key)
	if err := os.Remove(filePath); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("object %s/%s not found", bucket, key)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}

// EnsureBucket creates the bucket directory if it does not exist
func (ls *LocalStorage) EnsureBucket(ctx context.Context, bucket string) error {
	if err := os.MkdirAll(filepath.Join(ls.basePath, bucket), 0755); err != nil {
		return fmt.Errorf("failed to create bucket directory: %w", err)
	}
	return nil
}

// PublicURL returns the URL the HTTP server exposes the object under
func (ls *LocalStorage) PublicURL(bucket, key string) string {
	return fmt.Sprintf("%s/storage/%s/%s", ls.baseURL, bucket, key)
}
