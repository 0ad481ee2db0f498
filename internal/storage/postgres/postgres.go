// internal/storage/postgres/postgres.go
package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"github.com/rovshanmuradov/reflex/internal/storage"
)

// migrationLockID is the advisory lock key held while migrating.
const migrationLockID = 7301

// Options configures the connection pool and the connect retry.
type Options struct {
	DSN          string
	Retries      int
	RetryDelay   time.Duration
	MaxOpenConns int
	MaxIdleConns int
}

// Open connects to PostgreSQL, retrying with exponential backoff until the
// server answers or Retries attempts have failed.
func Open(ctx context.Context, opts Options, zapLogger *zap.Logger) (*storage.GormJournal, error) {
	if opts.DSN == "" {
		return nil, fmt.Errorf("postgres dsn is empty")
	}
	if opts.Retries <= 0 {
		opts.Retries = 1
	}
	if opts.RetryDelay <= 0 {
		opts.RetryDelay = 500 * time.Millisecond
	}
	logger := zapLogger.Named("postgres")

	backoffPolicy := backoff.NewExponentialBackOff()
	backoffPolicy.InitialInterval = opts.RetryDelay
	backoffPolicy.MaxInterval = opts.RetryDelay * 10

	notify := func(err error, duration time.Duration) {
		logger.Warn("Database not ready, retrying", zap.Error(err), zap.Duration("backoff", duration))
	}

	operation := func() (*gorm.DB, error) {
		db, err := gorm.Open(postgres.Open(opts.DSN), &gorm.Config{
			Logger: storage.NewGormLogger(logger.Named("gorm")),
			NowFunc: func() time.Time {
				return time.Now().UTC()
			},
			DisableForeignKeyConstraintWhenMigrating: true,
			SkipDefaultTransaction:                   true,
		})
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, backoff.Permanent(fmt.Errorf("failed to get database instance: %w", err))
		}
		if err := sqlDB.PingContext(ctx); err != nil {
			_ = sqlDB.Close()
			return nil, err
		}
		return db, nil
	}

	db, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoffPolicy),
		backoff.WithMaxTries(uint(opts.Retries)),
		backoff.WithNotify(notify))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}
	if opts.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(opts.MaxIdleConns)
	}
	if opts.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(opts.MaxOpenConns)
	}
	sqlDB.SetConnMaxLifetime(time.Hour)

	logger.Info("Connected to journal database")
	return storage.NewGormJournal(db, logger, migrate), nil
}

// migrate runs AutoMigrate under a session advisory lock so that only one
// process migrates at a time. Advisory locks belong to a connection, so the
// lock, the migration and the unlock share one.
func migrate(db *gorm.DB) error {
	return db.Connection(func(conn *gorm.DB) error {
		var lockObtained bool
		if err := conn.Raw("SELECT pg_try_advisory_lock(?)", migrationLockID).Scan(&lockObtained).Error; err != nil {
			return fmt.Errorf("failed to acquire migration lock: %w", err)
		}
		if !lockObtained {
			return fmt.Errorf("another migration is in progress")
		}
		defer conn.Exec("SELECT pg_advisory_unlock(?)", migrationLockID)

		return storage.AutoMigrate(conn)
	})
}
