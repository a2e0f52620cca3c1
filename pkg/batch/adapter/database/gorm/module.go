package gorm

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	config "github.com/tigerroll/capture/pkg/batch/core/config"
)

// NewDB opens the ledger database and closes it when the application stops.
func NewDB(lc fx.Lifecycle, cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg.Capture.Database)
	if err != nil {
		return nil, err
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			sqlDB, err := db.DB()
			if err != nil {
				return err
			}
			return sqlDB.Close()
		},
	})
	return db, nil
}

// Module provides *gorm.DB. The dialect subpackages must be imported for their registration.
var Module = fx.Options(
	fx.Provide(NewDB),
)
