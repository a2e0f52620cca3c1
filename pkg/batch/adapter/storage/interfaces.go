// Package storage defines the common interface of the object storage adapters.
// Pipeline products (FITS images and reports) are published through it to a
// local directory or a cloud bucket with the same API.
package storage

import (
	"context"
	"io"
	"strings"
)

// ObjectStore defines generic storage operations.
type ObjectStore interface {
	// Upload uploads data to the specified bucket and object name.
	// 'data' is the stream of data to upload. 'contentType' is the MIME type of the data.
	// An empty bucket selects the configured default bucket.
	Upload(ctx context.Context, bucket, objectName string, data io.Reader, contentType string) error
	// Download downloads data from the specified bucket and object name.
	// It returns a ReadCloser which must be closed by the caller after use.
	Download(ctx context.Context, bucket, objectName string) (io.ReadCloser, error)
	// ListObjects lists objects within the specified bucket and prefix.
	// The 'fn' callback function is called for each object name found.
	ListObjects(ctx context.Context, bucket, prefix string, fn func(objectName string) error) error
	// DeleteObject deletes the specified object from the bucket. A missing object is not an error.
	DeleteObject(ctx context.Context, bucket, objectName string) error
	// Type returns the adapter type, "local" or "gcs".
	Type() string
	// Close releases the underlying client.
	Close() error
}

// ContentTypeFor returns the MIME type used for a published product.
func ContentTypeFor(objectName string) string {
	switch {
	case strings.HasSuffix(objectName, ".fits"):
		return "application/fits"
	case strings.HasSuffix(objectName, ".parquet"):
		return "application/vnd.apache.parquet"
	case strings.HasSuffix(objectName, ".json"):
		return "application/json"
	default:
		return "application/octet-stream"
	}
}
