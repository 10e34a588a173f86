// Package storage persists archived media blobs on the local filesystem or
// in S3-compatible object storage.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Store abstracts archive blob storage. Keys returned by SaveMedia are
// backend-relative and must be passed back unchanged to the other methods.
type Store interface {
	SaveMedia(ctx context.Context, data []byte, slug, contentType string) (string, error)
	ReadMedia(ctx context.Context, key string) ([]byte, error)
	DeleteMedia(ctx context.Context, key string) error
}

// Config contains filesystem storage configuration
type Config struct {
	BasePath string // Base directory for all stored files
}

// DefaultConfig returns default filesystem storage configuration
func DefaultConfig() Config {
	return Config{
		BasePath: "./storage",
	}
}

// FS stores media under BasePath, sharded by year and month.
type FS struct {
	config Config
}

// New creates filesystem storage, creating the base directory if needed.
func New(config Config) (*FS, error) {
	if err := os.MkdirAll(config.BasePath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base storage directory: %w", err)
	}
	return &FS{config: config}, nil
}

// SaveMedia writes a media blob under media/YYYY/MM/slug.ext and returns the
// path relative to the base directory. Colliding names get a counter suffix.
func (s *FS) SaveMedia(_ context.Context, data []byte, slug, contentType string) (string, error) {
	ext := extensionFromContentType(contentType)
	if ext == "" {
		ext = ".jpg"
	}

	now := time.Now()
	dirPath := filepath.Join(s.config.BasePath, "media",
		fmt.Sprintf("%04d", now.Year()), fmt.Sprintf("%02d", int(now.Month())))

	if err := os.MkdirAll(dirPath, 0755); err != nil {
		return "", fmt.Errorf("failed to create media directory: %w", err)
	}

	filename := slug + ext
	filePath := filepath.Join(dirPath, filename)

	counter := 1
	for fileExists(filePath) {
		filename = fmt.Sprintf("%s-%d%s", slug, counter, ext)
		filePath = filepath.Join(dirPath, filename)
		counter++
	}

	if err := os.WriteFile(filePath, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write media file: %w", err)
	}

	relPath, err := filepath.Rel(s.config.BasePath, filePath)
	if err != nil {
		return "", fmt.Errorf("failed to get relative path: %w", err)
	}
	return relPath, nil
}

// ReadMedia reads a media blob by its relative path.
func (s *FS) ReadMedia(_ context.Context, key string) ([]byte, error) {
	data, err := os.ReadFile(filepath.Join(s.config.BasePath, key))
	if err != nil {
		return nil, fmt.Errorf("failed to read media file: %w", err)
	}
	return data, nil
}

// DeleteMedia removes a media blob. Deleting a missing file is not an error.
func (s *FS) DeleteMedia(_ context.Context, key string) error {
	if err := os.Remove(filepath.Join(s.config.BasePath, key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete media file: %w", err)
	}
	return nil
}

// FullPath returns the absolute filesystem path for a relative key.
func (s *FS) FullPath(key string) string {
	return filepath.Join(s.config.BasePath, key)
}

// fileExists checks if a file exists
func fileExists(path string) bool {
	_, err := os.Stat(path)
	return !os.IsNotExist(err)
}

// extensionFromContentType returns the file extension for a content type
func extensionFromContentType(contentType string) string {
	contentType = strings.ToLower(strings.Split(contentType, ";")[0])
	contentType = strings.TrimSpace(contentType)

	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/svg+xml":
		return ".svg"
	case "image/bmp":
		return ".bmp"
	case "image/tiff":
		return ".tiff"
	case "image/avif":
		return ".avif"
	default:
		return ""
	}
}
