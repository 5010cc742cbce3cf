package db

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"

	"github.com/yungbote/progression-engine/internal/platform/logger"
)

// OpenSQLite opens a SQLite database. An empty path (or ":memory:") opens a
// private shared-cache in-memory database, used by tests and local development.
func OpenSQLite(logg *logger.Logger, path string) (*gorm.DB, error) {
	path = strings.TrimSpace(path)
	dsn := path
	if path == "" || path == ":memory:" {
		dsn = fmt.Sprintf("file:progression-%s?mode=memory&cache=shared&_foreign_keys=off", uuid.NewString())
	}
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
		Logger:                                   gormLogger.Default.LogMode(gormLogger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// SQLite serializes writers; a single connection keeps transactions from
	// failing with SQLITE_BUSY.
	sqlDB.SetMaxOpenConns(1)
	if logg != nil {
		logg.Debug("Opened sqlite database", "path", dsn)
	}
	return db, nil
}

// IsSQLite reports whether db talks to SQLite, which lacks row locks.
func IsSQLite(db *gorm.DB) bool {
	return db != nil && db.Dialector != nil && db.Dialector.Name() == "sqlite"
}
