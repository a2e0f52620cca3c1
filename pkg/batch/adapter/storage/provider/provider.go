// Package provider selects and constructs the configured storage adapter.
package provider

import (
	"context"
	"strings"

	"go.uber.org/fx"

	storageAdapter "github.com/tigerroll/capture/pkg/batch/adapter/storage"
	storageConfig "github.com/tigerroll/capture/pkg/batch/adapter/storage/config"
	"github.com/tigerroll/capture/pkg/batch/adapter/storage/gcs"
	"github.com/tigerroll/capture/pkg/batch/adapter/storage/local"
	config "github.com/tigerroll/capture/pkg/batch/core/config"
	"github.com/tigerroll/capture/pkg/batch/support/util/exception"
)

// NewObjectStore creates the adapter named by cfg.Type.
func NewObjectStore(ctx context.Context, cfg storageConfig.StorageConfig) (storageAdapter.ObjectStore, error) {
	switch strings.ToLower(cfg.Type) {
	case "", local.ProviderType:
		store, err := local.NewLocalAdapter(cfg)
		if err != nil {
			return nil, exception.NewBatchError("storage", "failed to create local storage adapter", err, exception.KindConfiguration)
		}
		return store, nil
	case gcs.ProviderType:
		store, err := gcs.NewGCSAdapter(ctx, cfg)
		if err != nil {
			return nil, exception.NewBatchError("storage", "failed to create gcs storage adapter", err, exception.KindConfiguration)
		}
		return store, nil
	default:
		return nil, exception.NewUnsupportedConfigurationError("storage", "unknown storage type %q", cfg.Type)
	}
}

// NewObjectStoreFromConfig provides the ObjectStore and closes it when the application stops.
func NewObjectStoreFromConfig(lc fx.Lifecycle, cfg *config.Config) (storageAdapter.ObjectStore, error) {
	store, err := NewObjectStore(context.Background(), cfg.Capture.Storage)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return store.Close()
		},
	})
	return store, nil
}

// Module is the Fx module for the storage adapter.
var Module = fx.Options(
	fx.Provide(NewObjectStoreFromConfig),
)
