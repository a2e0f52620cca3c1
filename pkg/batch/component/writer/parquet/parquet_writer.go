// Package parquet writes typed report rows as Parquet files into an object store.
package parquet

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/hashicorp/go-multierror"
	pq "github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/writer"

	"github.com/tigerroll/capture/pkg/batch/adapter/storage"
	"github.com/tigerroll/capture/pkg/batch/support/util/configbinder"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
	"github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// WriterConfig holds the configuration for Writer.
type WriterConfig struct {
	// OutputBaseDir is the directory within the store that receives the files (e.g., "reports").
	OutputBaseDir string `yaml:"outputBaseDir"`
	// CompressionType is the compression type for Parquet files ("SNAPPY", "GZIP" or "NONE").
	CompressionType string `yaml:"compressionType"`
}

// Writer buffers rows of T per partition key and writes one Parquet file per partition on Close.
// T must carry `parquet:"..."` struct tags.
type Writer[T any] struct {
	name   string
	config WriterConfig
	store  storage.ObjectStore
	// itemPrototype is a pointer to a zero-value instance of the item type, used for Parquet schema reflection.
	itemPrototype *T
	// partitionKeyFunc returns the file name, without extension, that receives an item.
	partitionKeyFunc func(T) string

	bufferedItems map[string][]T
	written       []string
}

// NewWriter creates a new instance of Writer. properties are bound onto WriterConfig.
func NewWriter[T any](
	name string,
	properties map[string]interface{},
	store storage.ObjectStore,
	partitionKeyFunc func(T) string,
) (*Writer[T], error) {
	var cfg WriterConfig
	if err := configbinder.BindProperties(properties, &cfg); err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("failed to bind properties of parquet writer '%s'", name), err, exception.KindConfiguration)
	}
	if cfg.OutputBaseDir == "" {
		return nil, exception.NewBatchErrorf("writer", exception.KindConfiguration, "parquet writer '%s' requires 'outputBaseDir' property", name)
	}
	if cfg.CompressionType == "" {
		cfg.CompressionType = "SNAPPY"
	}
	if _, err := compressionCodec(cfg.CompressionType); err != nil {
		return nil, exception.NewBatchError("writer", fmt.Sprintf("parquet writer '%s'", name), err, exception.KindConfiguration)
	}
	return &Writer[T]{
		name:             name,
		config:           cfg,
		store:            store,
		itemPrototype:    new(T),
		partitionKeyFunc: partitionKeyFunc,
		bufferedItems:    make(map[string][]T),
	}, nil
}

// Write accumulates items into the partition buffers. Nothing is uploaded until Close.
func (w *Writer[T]) Write(ctx context.Context, items []T) error {
	for _, item := range items {
		key := w.partitionKeyFunc(item)
		w.bufferedItems[key] = append(w.bufferedItems[key], item)
	}
	logger.Debugf("Parquet writer '%s' buffered %d items.", w.name, len(items))
	return nil
}

// Close writes every buffered partition to Parquet and uploads it. Partitions are independent:
// a failure in one is collected and the rest are still written.
func (w *Writer[T]) Close(ctx context.Context) error {
	if len(w.bufferedItems) == 0 {
		logger.Debugf("Parquet writer '%s': no records buffered.", w.name)
		return nil
	}
	codec, _ := compressionCodec(w.config.CompressionType)

	keys := make([]string, 0, len(w.bufferedItems))
	for k := range w.bufferedItems {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var multiErr error
	for _, key := range keys {
		objectName := path.Join(w.config.OutputBaseDir, key+".parquet")
		if err := w.writePartition(ctx, objectName, w.bufferedItems[key], codec); err != nil {
			multiErr = multierror.Append(multiErr, exception.NewBatchError("writer",
				fmt.Sprintf("failed to write partition '%s' of parquet writer '%s'", key, w.name), err, exception.KindPersistence))
			continue
		}
		w.written = append(w.written, objectName)
		logger.Infof("Parquet writer '%s': wrote %d rows to %s.", w.name, len(w.bufferedItems[key]), objectName)
	}
	w.bufferedItems = make(map[string][]T)
	return multiErr
}

func (w *Writer[T]) writePartition(ctx context.Context, objectName string, items []T, codec pq.CompressionCodec) (err error) {
	buf := new(bytes.Buffer)
	pw, err := writer.NewParquetWriterFromWriter(buf, w.itemPrototype, 1)
	if err != nil {
		return fmt.Errorf("create parquet writer: %w", err)
	}
	pw.CompressionType = codec

	for _, item := range items {
		if err := pw.Write(item); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}

	// The library panics on some schema errors.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("parquet writer panicked during WriteStop: %v", r)
		}
	}()
	if err := pw.WriteStop(); err != nil {
		return fmt.Errorf("finalize parquet file: %w", err)
	}

	return w.store.Upload(ctx, "", objectName, buf, storage.ContentTypeFor(objectName))
}

// Written returns the object names uploaded so far.
func (w *Writer[T]) Written() []string {
	return w.written
}

// compressionCodec returns the Parquet compression codec from a string.
func compressionCodec(compressionType string) (pq.CompressionCodec, error) {
	switch strings.ToUpper(compressionType) {
	case "SNAPPY":
		return pq.CompressionCodec_SNAPPY, nil
	case "GZIP":
		return pq.CompressionCodec_GZIP, nil
	case "NONE", "":
		return pq.CompressionCodec_UNCOMPRESSED, nil
	default:
		return 0, fmt.Errorf("unsupported compression type: %s", compressionType)
	}
}
