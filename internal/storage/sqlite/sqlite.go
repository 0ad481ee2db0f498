// internal/storage/sqlite/sqlite.go
package sqlite

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/rovshanmuradov/reflex/internal/storage"
)

// Open creates or opens the journal database file at path.
func Open(path string, zapLogger *zap.Logger) (*storage.GormJournal, error) {
	if path == "" {
		return nil, fmt.Errorf("sqlite path is empty")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}
	logger := zapLogger.Named("sqlite")

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: storage.NewGormLogger(logger.Named("gorm")),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	// SQLite allows a single writer.
	sqlDB.SetMaxOpenConns(1)

	return storage.NewGormJournal(db, logger, nil), nil
}
