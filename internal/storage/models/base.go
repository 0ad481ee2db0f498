// internal/storage/models/base.go
package models

import "time"

// BaseModel replaces gorm.Model with explicit columns.
type BaseModel struct {
	ID        uint      `gorm:"primarykey"`
	CreatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
	UpdatedAt time.Time `gorm:"default:CURRENT_TIMESTAMP"`
}

// Transfer statuses.
const (
	TransferCompleted = "completed"
	TransferRejected  = "rejected"
)
