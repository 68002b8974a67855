// Package testutil provides shared test utilities and mocks for unit testing.
package testutil

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/mingafix/mingafix/internal/storage"
)

// ErrMockObjectNotFound is returned when an object is not found in mock storage
var ErrMockObjectNotFound = errors.New("object not found")

// MockStorageProvider implements storage.Provider for testing
type MockStorageProvider struct {
	mu      sync.RWMutex
	objects map[string]map[string][]byte // bucket -> key -> data
	buckets map[string]bool

	// Callbacks for custom behavior
	OnUpload   func(ctx context.Context, bucket, key string, data io.Reader, size int64) error
	OnDownload func(ctx context.Context, bucket, key string) (io.ReadCloser, *storage.Object, error)
	OnDelete   func(ctx context.Context, bucket, key string) error
	OnHealth   func(ctx context.Context) error
}

// NewMockStorageProvider creates a new mock storage provider
func NewMockStorageProvider() *MockStorageProvider {
	return &MockStorageProvider{
		objects: make(map[string]map[string][]byte),
		buckets: make(map[string]bool),
	}
}

func (m *MockStorageProvider) Name() string {
	return "mock"
}

func (m *MockStorageProvider) Health(ctx context.Context) error {
	if m.OnHealth != nil {
		return m.OnHealth(ctx)
	}
	return nil
}

func (m *MockStorageProvider) Upload(ctx context.Context, bucket, key string, data io.Reader, size int64, opts *storage.UploadOptions) (*storage.Object, error) {
	if m.OnUpload != nil {
		if err := m.OnUpload(ctx, bucket, key, data, size); err != nil {
			return nil, err
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.objects[bucket]; !exists {
		m.objects[bucket] = make(map[string][]byte)
	}

	content, _ := io.ReadAll(data)
	m.objects[bucket][key] = content

	return &storage.Object{
		Key:          key,
		Size:         int64(len(content)),
		LastModified: time.Now(),
	}, nil
}

func (m *MockStorageProvider) Download(ctx context.Context, bucket, key string) (io.ReadCloser, *storage.Object, error) {
	if m.OnDownload != nil {
		return m.OnDownload(ctx, bucket, key)
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	if bucketData, exists := m.objects[bucket]; exists {
		if data, exists := bucketData[key]; exists {
			return io.NopCloser(bytes.NewReader(data)), &storage.Object{Key: key, Size: int64(len(data))}, nil
		}
	}
	return nil, nil, ErrMockObjectNotFound
}

func (m *MockStorageProvider) Delete(ctx context.Context, bucket, key string) error {
	if m.OnDelete != nil {
		return m.OnDelete(ctx, bucket, key)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if bucketData, exists := m.objects[bucket]; exists {
		delete(bucketData, key)
	}
	return nil
}

func (m *MockStorageProvider) EnsureBucket(ctx context.Context, bucket string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.buckets[bucket] = true
	if _, exists := m.objects[bucket]; !exists {
		m.objects[bucket] = make(map[string][]byte)
	}
	return nil
}

func (m *MockStorageProvider) PublicURL(bucket, key string) string {
	return "https://mock-storage.example.com/" + bucket + "/" + key
}

// BucketExists reports whether EnsureBucket was called for the bucket
func (m *MockStorageProvider) BucketExists(bucket string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.buckets[bucket]
}

// ObjectCount returns the number of stored objects in a bucket
func (m *MockStorageProvider) ObjectCount(bucket string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.objects[bucket])
}
