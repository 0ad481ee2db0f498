// internal/storage/storage.go
package storage

import (
	"context"
	"errors"

	"github.com/rovshanmuradov/reflex/internal/storage/models"
)

// ErrNotFound is returned when a lookup matches no row.
var ErrNotFound = errors.New("record not found")

// Journal persists transfers, owner actions and token snapshots.
type Journal interface {
	// Transfers
	SaveTransfer(ctx context.Context, rec *models.TransferRecord) error
	GetTransfer(ctx context.Context, transferID string) (*models.TransferRecord, error)
	ListTransfers(ctx context.Context, account string, limit, offset int) ([]*models.TransferRecord, error)

	// Owner actions and approvals
	SaveAudit(ctx context.Context, rec *models.AuditRecord) error
	ListAudit(ctx context.Context, limit int) ([]*models.AuditRecord, error)

	// Snapshots
	SaveSnapshot(ctx context.Context, rec *models.SnapshotRecord) error
	LatestSnapshot(ctx context.Context, tokenAddress string) (*models.SnapshotRecord, error)

	RunMigrations() error
	Close() error
}

// AllModels lists every table the journal owns.
func AllModels() []any {
	return []any{
		&models.TransferRecord{},
		&models.AuditRecord{},
		&models.SnapshotRecord{},
	}
}
