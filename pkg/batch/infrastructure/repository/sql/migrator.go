package sql

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database"
	"github.com/golang-migrate/migrate/v4/database/mysql"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"gorm.io/gorm"

	"github.com/tigerroll/capture/pkg/batch/support/util/logger"
)

// MigrationsTable tracks the applied ledger schema version.
const MigrationsTable = "capture_schema_migrations"

//go:embed migrations
var migrationFS embed.FS

// MigrationsFS returns the migration scripts for dbType.
func MigrationsFS(dbType string) (fs.FS, error) {
	return fs.Sub(migrationFS, "migrations/"+dbType)
}

// databaseDriver returns a migrate driver on the connection behind db.
func databaseDriver(db *gorm.DB, dbType string) (database.Driver, error) {
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}
	switch dbType {
	case "postgres":
		return postgres.WithInstance(sqlDB, &postgres.Config{MigrationsTable: MigrationsTable})
	case "mysql":
		return mysql.WithInstance(sqlDB, &mysql.Config{MigrationsTable: MigrationsTable})
	case "sqlite":
		return sqlite.WithInstance(sqlDB, &sqlite.Config{MigrationsTable: MigrationsTable})
	default:
		return nil, fmt.Errorf("unsupported database type for migration: %s", dbType)
	}
}

// Migrate applies every pending ledger migration for dbType.
func Migrate(ctx context.Context, db *gorm.DB, dbType string) error {
	sub, err := MigrationsFS(dbType)
	if err != nil {
		return err
	}
	source, err := iofs.New(sub, ".")
	if err != nil {
		return fmt.Errorf("failed to create iofs source driver for %s: %w", dbType, err)
	}
	driver, err := databaseDriver(db, dbType)
	if err != nil {
		return err
	}
	m, err := migrate.NewWithInstance("iofs", source, dbType, driver)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	logger.Infof("Applying run ledger migrations (DB: %s, Table: %s)", dbType, MigrationsTable)
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("ledger migration failed (DB: %s): %w", dbType, err)
	}
	version, dirty, err := m.Version()
	if err == nil {
		logger.Debugf("Run ledger schema at version %d (dirty: %t).", version, dirty)
	}
	return nil
}
