package storage

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mingafix/mingafix/internal/config"
)

func TestLocalStorage_UploadDownload(t *testing.T) {
	dir := t.TempDir()
	ls, err := NewLocalStorage(dir, "http://localhost:8080")
	require.NoError(t, err)

	ctx := context.Background()
	content := []byte("fake jpeg bytes")

	obj, err := ls.Upload(ctx, "report-photos", "abc.jpg", bytes.NewReader(content), int64(len(content)),
		&UploadOptions{ContentType: "image/jpeg"})
	require.NoError(t, err)
	assert.Equal(t, "abc.jpg", obj.Key)
	assert.Equal(t, int64(len(content)), obj.Size)
	assert.Equal(t, "image/jpeg", obj.ContentType)

	reader, meta, err := ls.Download(ctx, "report-photos", "abc.jpg")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, content, data)
	assert.Equal(t, int64(len(content)), meta.Size)
}

func TestLocalStorage_Delete(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)

	ctx := context.Background()

	_, err = ls.Upload(ctx, "b", "k", bytes.NewReader([]byte("x")), 1, nil)
	require.NoError(t, err)

	require.NoError(t, ls.Delete(ctx, "b", "k"))

	_, _, err = ls.Download(ctx, "b", "k")
	assert.ErrorContains(t, err, "not found")

	assert.ErrorContains(t, ls.Delete(ctx, "b", "k"), "not found")
}

func TestLocalStorage_EnsureBucket(t *testing.T) {
	dir := t.TempDir()
	ls, err := NewLocalStorage(dir, "http://localhost:8080")
	require.NoError(t, err)

	require.NoError(t, ls.EnsureBucket(context.Background(), "report-photos"))

	info, err := os.Stat(filepath.Join(dir, "report-photos"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalStorage_PublicURL(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/")
	require.NoError(t, err)

	assert.Equal(t, "http://localhost:8080/storage/report-photos/abc.jpg",
		ls.PublicURL("report-photos", "abc.jpg"))
}

func TestLocalStorage_Health(t *testing.T) {
	ls, err := NewLocalStorage(t.TempDir(), "http://localhost:8080")
	require.NoError(t, err)

	assert.NoError(t, ls.Health(context.Background()))
}

func TestService_ValidateUploadSize(t *testing.T) {
	cfg := &config.StorageConfig{
		Provider:      "local",
		LocalPath:     t.TempDir(),
		Bucket:        "report-photos",
		MaxUploadSize: 100,
	}
	svc, err := NewService(cfg, "http://localhost:8080")
	require.NoError(t, err)

	assert.NoError(t, svc.ValidateUploadSize(100))
	assert.Error(t, svc.ValidateUploadSize(101))
	assert.Equal(t, "report-photos", svc.Bucket())
}
