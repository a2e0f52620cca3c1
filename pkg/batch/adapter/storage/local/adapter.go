// Package local provides a local file system implementation of the storage adapter interface.
package local

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	storageAdapter "github.com/tigerroll/capture/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/capture/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

const (
	// ProviderType defines the type identifier for this local storage adapter.
	ProviderType = "local"
)

// LocalAdapter implements storage.ObjectStore on the local file system.
// A bucket is a directory under BaseDir.
type LocalAdapter struct {
	cfg storageConfig.StorageConfig
}

// Verify that LocalAdapter implements the storage.ObjectStore interface.
var _ storageAdapter.ObjectStore = (*LocalAdapter)(nil)

// NewLocalAdapter creates a new LocalAdapter instance.
// It validates the BaseDir configuration and attempts to create it if it doesn't exist.
func NewLocalAdapter(cfg storageConfig.StorageConfig) (*LocalAdapter, error) {
	if cfg.BaseDir == "" {
		return nil, fmt.Errorf("local storage adapter: base_dir must be specified in configuration")
	}
	info, err := os.Stat(cfg.BaseDir)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("local storage adapter: failed to stat base_dir '%s': %w", cfg.BaseDir, err)
		}
		if err := os.MkdirAll(cfg.BaseDir, 0755); err != nil {
			return nil, fmt.Errorf("local storage adapter: failed to create base_dir '%s': %w", cfg.BaseDir, err)
		}
	} else if !info.IsDir() {
		return nil, fmt.Errorf("local storage adapter: base_dir '%s' is not a directory", cfg.BaseDir)
	}
	return &LocalAdapter{cfg: cfg}, nil
}

// Close does nothing for the local file system adapter as it holds no special resources.
func (a *LocalAdapter) Close() error {
	return nil
}

// Type returns the type of the adapter, which is "local".
func (a *LocalAdapter) Type() string {
	return ProviderType
}

// Upload writes data to BaseDir/bucket/prefix/objectName, creating directories as needed.
func (a *LocalAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for upload: %w", err)
	}

	dir := filepath.Dir(fullPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory '%s': %w", dir, err)
	}

	// Write to a sibling temp file so a failed copy never leaves a truncated product.
	tmp, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file in '%s': %w", dir, err)
	}
	if _, err := io.Copy(tmp, data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write data to '%s': %w", fullPath, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close '%s': %w", tmp.Name(), err)
	}
	if err := os.Rename(tmp.Name(), fullPath); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to move upload into '%s': %w", fullPath, err)
	}
	logger.Debugf("Uploaded '%s' (%s).", fullPath, contentType)
	return nil
}

// Download opens BaseDir/bucket/prefix/objectName. The returned io.ReadCloser must be closed by the caller.
func (a *LocalAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve path for download: %w", err)
	}
	file, err := os.Open(fullPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file '%s': %w", fullPath, err)
	}
	return file, nil
}

// ListObjects walks the bucket directory and calls fn with every object name starting with prefix.
// Object names are relative to the configured prefix and use forward slashes.
func (a *LocalAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	basePath, err := a.resolvePath(bucket, "")
	if err != nil {
		return fmt.Errorf("failed to resolve base path for listing: %w", err)
	}
	if _, err := os.Stat(basePath); os.IsNotExist(err) {
		return nil
	}

	err = filepath.WalkDir(basePath, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || strings.HasPrefix(d.Name(), ".upload-") {
			return nil
		}
		objectName, err := filepath.Rel(basePath, p)
		if err != nil {
			return fmt.Errorf("failed to get relative path for '%s' from '%s': %w", p, basePath, err)
		}
		objectName = filepath.ToSlash(objectName)
		if !strings.HasPrefix(objectName, prefix) {
			return nil
		}
		return fn(objectName)
	})
	if err != nil {
		return fmt.Errorf("failed to list objects in '%s' with prefix '%s': %w", basePath, prefix, err)
	}
	return nil
}

// DeleteObject deletes the specified object. If the object does not exist, it logs a warning and returns nil.
func (a *LocalAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	fullPath, err := a.resolvePath(bucket, objectName)
	if err != nil {
		return fmt.Errorf("failed to resolve path for delete: %w", err)
	}
	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			logger.Warnf("Attempted to delete non-existent object '%s'.", fullPath)
			return nil
		}
		return fmt.Errorf("failed to delete file '%s': %w", fullPath, err)
	}
	logger.Debugf("Deleted object '%s'.", fullPath)
	return nil
}

// resolvePath resolves the full path of an object relative to BaseDir.
// It also ensures the resolved path does not escape BaseDir.
func (a *LocalAdapter) resolvePath(bucket, objectName string) (string, error) {
	if bucket == "" {
		bucket = a.cfg.BucketName
	}
	rel := path.Join(a.cfg.Prefix, objectName)
	fullPath := filepath.Join(a.cfg.BaseDir, bucket, filepath.FromSlash(rel))

	absBaseDir, err := filepath.Abs(a.cfg.BaseDir)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for base_dir '%s': %w", a.cfg.BaseDir, err)
	}
	absFullPath, err := filepath.Abs(fullPath)
	if err != nil {
		return "", fmt.Errorf("failed to get absolute path for '%s': %w", fullPath, err)
	}
	if absFullPath != absBaseDir && !strings.HasPrefix(absFullPath, absBaseDir+string(filepath.Separator)) {
		return "", fmt.Errorf("resolved path '%s' is outside of base_dir '%s'", fullPath, a.cfg.BaseDir)
	}
	return fullPath, nil
}
