package utils

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	StorageProviderGCS   = "gcs"
	StorageProviderLocal = "local"
)

func GetStorageProvider() string {
	provider := strings.TrimSpace(strings.ToLower(os.Getenv("STORAGE_PROVIDER")))
	if provider == "" {
		return StorageProviderLocal
	}
	return provider
}

// SaveImage writes image bytes under the configured provider and returns a
// URL the API can hand back to clients.
func SaveImage(ctx context.Context, objectName string, data []byte) (string, error) {
	switch GetStorageProvider() {
	case StorageProviderGCS:
		return SaveImageToGCS(ctx, objectName, data)
	case StorageProviderLocal:
		return saveImageToLocal(objectName, data)
	default:
		return "", fmt.Errorf("unknown storage provider %q", GetStorageProvider())
	}
}

func saveImageToLocal(objectName string, data []byte) (string, error) {
	root := strings.TrimSpace(os.Getenv("UPLOAD_DIR"))
	if root == "" {
		root = "uploads"
	}
	fullPath := filepath.Join(root, objectName)
	if err := os.MkdirAll(filepath.Dir(fullPath), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(fullPath, data, 0o644); err != nil {
		return "", err
	}
	return "/" + filepath.ToSlash(fullPath), nil
}
