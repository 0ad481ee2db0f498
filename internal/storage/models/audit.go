// internal/storage/models/audit.go
package models

import "time"

// AuditRecord is one owner action or allowance change.
type AuditRecord struct {
	BaseModel
	EventType  string    `gorm:"index;not null;type:varchar(40)"`
	Name       string    `gorm:"type:varchar(60)"`
	Value      string    `gorm:"type:text"`
	Account    string    `gorm:"index;type:varchar(44)"`
	OccurredAt time.Time `gorm:"index;not null"`
}
