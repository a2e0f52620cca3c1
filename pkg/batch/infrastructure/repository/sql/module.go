package sql

import (
	"context"

	"go.uber.org/fx"
	"gorm.io/gorm"

	config "github.com/tigerroll/capture/pkg/batch/core/config"
	repository "github.com/tigerroll/capture/pkg/batch/core/domain/repository"
)

// NewRunRepository migrates the ledger schema and returns the GORM ledger.
func NewRunRepository(db *gorm.DB, cfg *config.Config) (repository.RunRepository, error) {
	if err := Migrate(context.Background(), db, cfg.Capture.Database.Type); err != nil {
		return nil, persistenceError("sql", "failed to migrate run ledger", err)
	}
	return NewGORMRunRepository(db), nil
}

// Module provides the SQL run ledger. It needs a *gorm.DB in the graph.
var Module = fx.Options(
	fx.Provide(NewRunRepository),
)
