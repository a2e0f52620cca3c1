// Package gcs provides a Google Cloud Storage implementation of the storage adapter interface.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"

	storageAdapter "github.com/tigerroll/capture/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/capture/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// ProviderType defines the type identifier for this adapter.
const ProviderType = "gcs"

// GCSAdapter implements storage.ObjectStore on a Cloud Storage bucket.
type GCSAdapter struct {
	cfg    storageConfig.StorageConfig
	client *storage.Client
}

var _ storageAdapter.ObjectStore = (*GCSAdapter)(nil)

// NewGCSAdapter creates a client using cfg.CredentialsFile, or application default credentials
// when it is empty.
func NewGCSAdapter(ctx context.Context, cfg storageConfig.StorageConfig, opts ...option.ClientOption) (*GCSAdapter, error) {
	if cfg.BucketName == "" {
		return nil, fmt.Errorf("gcs storage adapter: bucket_name must be specified in configuration")
	}
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("gcs storage adapter: failed to create client: %w", err)
	}
	logger.Debugf("GCS storage adapter created for bucket '%s'.", cfg.BucketName)
	return &GCSAdapter{cfg: cfg, client: client}, nil
}

// Type returns "gcs".
func (a *GCSAdapter) Type() string {
	return ProviderType
}

// Close closes the underlying client.
func (a *GCSAdapter) Close() error {
	return a.client.Close()
}

func (a *GCSAdapter) bucket(name string) *storage.BucketHandle {
	if name == "" {
		name = a.cfg.BucketName
	}
	return a.client.Bucket(name)
}

func (a *GCSAdapter) objectKey(objectName string) string {
	return path.Join(a.cfg.Prefix, objectName)
}

// Upload streams data into the object.
func (a *GCSAdapter) Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error {
	key := a.objectKey(objectName)
	w := a.bucket(bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	if _, err := io.Copy(w, data); err != nil {
		w.Close()
		return fmt.Errorf("failed to upload '%s': %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("failed to finalize upload of '%s': %w", key, err)
	}
	logger.Debugf("Uploaded gs://%s/%s.", w.Bucket, key)
	return nil
}

// Download opens a reader on the object. The caller must close it.
func (a *GCSAdapter) Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error) {
	key := a.objectKey(objectName)
	r, err := a.bucket(bucket).Object(key).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to download '%s': %w", key, err)
	}
	return r, nil
}

// ListObjects calls fn for each object under the configured prefix whose name starts with prefix.
func (a *GCSAdapter) ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error {
	base := a.cfg.Prefix
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	it := a.bucket(bucket).Objects(ctx, &storage.Query{Prefix: base + prefix})
	for {
		attrs, err := it.Next()
		if errors.Is(err, iterator.Done) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to list objects with prefix '%s': %w", base+prefix, err)
		}
		if err := fn(strings.TrimPrefix(attrs.Name, base)); err != nil {
			return err
		}
	}
}

// DeleteObject deletes the object. A missing object is not an error.
func (a *GCSAdapter) DeleteObject(ctx context.Context, bucket, objectName string) error {
	key := a.objectKey(objectName)
	err := a.bucket(bucket).Object(key).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		logger.Warnf("Attempted to delete non-existent object '%s'.", key)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to delete '%s': %w", key, err)
	}
	return nil
}
