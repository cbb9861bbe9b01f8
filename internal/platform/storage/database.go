package storage

import (
	"os"
	"path/filepath"
	"strings"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"ambrosia-pos-gateway/internal/platform/errors"
	"ambrosia-pos-gateway/internal/platform/storage/migrations"
)

// Open opens the sqlite database at dsn, creating its directory when needed,
// and brings the schema up to date.
func Open(dsn string) (*gorm.DB, error) {
	if dsn == "" {
		return nil, errors.New(errors.KindStorage, "open", "empty sqlite dsn")
	}

	if !isMemoryDSN(dsn) {
		dir := filepath.Dir(strings.SplitN(strings.TrimPrefix(dsn, "file:"), "?", 2)[0])
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(errors.KindStorage, "open", "create data directory", err)
		}
	}

	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, errors.Wrap(errors.KindStorage, "open", "open database", err)
	}

	if err := Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// Migrate applies the gateway schema.
func Migrate(db *gorm.DB) error {
	manager := NewMigrationManager(db)
	manager.AddMigration(&migrations.Migration001Gateway{})
	if err := manager.RunMigrations(); err != nil {
		return err
	}
	// AutoMigrate keeps columns added to the models after 001 in sync.
	if err := db.AutoMigrate(&SessionRecord{}, &AuditEvent{}); err != nil {
		return errors.Wrap(errors.KindStorage, "migrate", "auto migrate models", err)
	}
	return nil
}

// Close releases the underlying sql.DB.
func Close(db *gorm.DB) error {
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.KindStorage, "close", "get sql db", err)
	}
	return sqlDB.Close()
}

func isMemoryDSN(dsn string) bool {
	return dsn == ":memory:" || strings.Contains(dsn, "mode=memory") || strings.HasPrefix(dsn, "file::memory:")
}
