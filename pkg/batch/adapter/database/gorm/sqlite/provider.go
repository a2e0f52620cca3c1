// Package sqlite registers the SQLite dialector for the run ledger.
package sqlite

import (
	"errors"

	// The cgo driver gorm's sqlite dialector opens by name.
	_ "github.com/mattn/go-sqlite3"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	dbconfig "github.com/tigerroll/capture/pkg/batch/adapter/database/config"
	gormadapter "github.com/tigerroll/capture/pkg/batch/adapter/database/gorm"
)

func init() {
	gormadapter.RegisterDialector("sqlite", func(cfg dbconfig.DatabaseConfig) (gorm.Dialector, error) {
		dsn := ConnectionString(cfg)
		if dsn == "" {
			return nil, errors.New("SQLite database path cannot be empty")
		}
		return sqlite.Open(dsn), nil
	})
}

// ConnectionString returns the file path GORM's SQLite dialector expects.
func ConnectionString(c dbconfig.DatabaseConfig) string {
	return c.Database
}
