package storage

import (
	"context"
	"fmt"
	"strings"

	"github.com/mingafix/mingafix/internal/config"
)

// Service wraps a storage provider with the configured photo bucket.
type Service struct {
	Provider Provider
	config   *config.StorageConfig
}

// NewService creates a new storage service based on configuration
func NewService(cfg *config.StorageConfig, baseURL string) (*Service, error) {
	var provider Provider
	var err error

	switch strings.ToLower(cfg.Provider) {
	case "local":
		provider, err = NewLocalStorage(cfg.LocalPath, baseURL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize local storage: %w", err)
		}

	case "s3":
		// Determine SSL from the endpoint scheme; MinIO setups are often http
		useSSL := true
		endpoint := cfg.S3Endpoint
		if strings.HasPrefix(endpoint, "http://") {
			useSSL = false
		}
		endpoint = strings.TrimPrefix(endpoint, "https://")
		endpoint = strings.TrimPrefix(endpoint, "http://")

		if endpoint == "" {
			endpoint = "s3.amazonaws.com"
			useSSL = true
		}

		provider, err = NewS3Storage(endpoint, cfg.S3AccessKey, cfg.S3SecretKey, cfg.S3Region, useSSL)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize S3 storage: %w", err)
		}

	default:
		return nil, fmt.Errorf("unsupported storage provider: %s", cfg.Provider)
	}

	return &Service{
		Provider: provider,
		config:   cfg,
	}, nil
}

// Bucket returns the configured photo bucket name
func (s *Service) Bucket() string {
	return s.config.Bucket
}

// EnsureBucket creates the photo bucket if missing
func (s *Service) EnsureBucket(ctx context.Context) error {
	return s.Provider.EnsureBucket(ctx, s.config.Bucket)
}

// MaxUploadSize returns the maximum allowed upload size
func (s *Service) MaxUploadSize() int64 {
	return s.config.MaxUploadSize
}

// ValidateUploadSize checks if the upload size is within limits
func (s *Service) ValidateUploadSize(size int64) error {
	if size > s.config.MaxUploadSize {
		return fmt.Errorf("file size %d exceeds maximum allowed size %d", size, s.config.MaxUploadSize)
	}
	return nil
}
