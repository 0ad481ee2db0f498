// internal/storage/journal.go
package storage

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/rovshanmuradov/reflex/internal/storage/models"
)

// MigrateFunc creates or updates the journal tables.
type MigrateFunc func(db *gorm.DB) error

// AutoMigrate is the default MigrateFunc.
func AutoMigrate(db *gorm.DB) error {
	if err := db.AutoMigrate(AllModels()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

var _ Journal = (*GormJournal)(nil)

// GormJournal implements Journal on any GORM dialect.
type GormJournal struct {
	db      *gorm.DB
	logger  *zap.Logger
	migrate MigrateFunc
}

// NewGormJournal wraps an open connection. A nil migrate uses AutoMigrate.
func NewGormJournal(db *gorm.DB, logger *zap.Logger, migrate MigrateFunc) *GormJournal {
	if migrate == nil {
		migrate = AutoMigrate
	}
	return &GormJournal{db: db, logger: logger, migrate: migrate}
}

// DB exposes the underlying connection.
func (j *GormJournal) DB() *gorm.DB {
	return j.db
}

func (j *GormJournal) RunMigrations() error {
	if err := j.migrate(j.db); err != nil {
		return err
	}
	j.logger.Info("Journal migrations applied")
	return nil
}

func (j *GormJournal) SaveTransfer(ctx context.Context, rec *models.TransferRecord) error {
	if err := j.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("save transfer %s: %w", rec.TransferID, err)
	}
	return nil
}

func (j *GormJournal) GetTransfer(ctx context.Context, transferID string) (*models.TransferRecord, error) {
	var rec models.TransferRecord
	err := j.db.WithContext(ctx).Where("transfer_id = ?", transferID).First(&rec).Error
	if err != nil {
		return nil, wrapLookup(err, "transfer %s", transferID)
	}
	return &rec, nil
}

// ListTransfers returns transfers newest first. An empty account lists all
// and a limit of zero or less means no limit.
func (j *GormJournal) ListTransfers(ctx context.Context, account string, limit, offset int) ([]*models.TransferRecord, error) {
	q := j.db.WithContext(ctx).Model(&models.TransferRecord{})
	if account != "" {
		q = q.Where("from_address = ? OR to_address = ?", account, account)
	}
	var recs []*models.TransferRecord
	err := q.Order("occurred_at desc").Order("id desc").
		Limit(noLimit(limit)).
		Offset(offset).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list transfers: %w", err)
	}
	return recs, nil
}

func (j *GormJournal) SaveAudit(ctx context.Context, rec *models.AuditRecord) error {
	if err := j.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("save audit %s: %w", rec.EventType, err)
	}
	return nil
}

// ListAudit returns the newest audit entries first.
func (j *GormJournal) ListAudit(ctx context.Context, limit int) ([]*models.AuditRecord, error) {
	var recs []*models.AuditRecord
	err := j.db.WithContext(ctx).
		Order("occurred_at desc").Order("id desc").
		Limit(noLimit(limit)).
		Find(&recs).Error
	if err != nil {
		return nil, fmt.Errorf("list audit: %w", err)
	}
	return recs, nil
}

func (j *GormJournal) SaveSnapshot(ctx context.Context, rec *models.SnapshotRecord) error {
	if err := j.db.WithContext(ctx).Create(rec).Error; err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (j *GormJournal) LatestSnapshot(ctx context.Context, tokenAddress string) (*models.SnapshotRecord, error) {
	var rec models.SnapshotRecord
	err := j.db.WithContext(ctx).
		Where("token_address = ?", tokenAddress).
		Order("taken_at desc").Order("id desc").
		First(&rec).Error
	if err != nil {
		return nil, wrapLookup(err, "snapshot of %s", tokenAddress)
	}
	return &rec, nil
}

func (j *GormJournal) Close() error {
	sqlDB, err := j.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}
	return sqlDB.Close()
}

func wrapLookup(err error, format string, args ...any) error {
	what := fmt.Sprintf(format, args...)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}

func noLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}
