// internal/storage/models/transfer.go
package models

import "time"

// TransferRecord is one journaled transfer. Amounts are base units as
// decimal strings so that 256-bit values survive every SQL dialect.
type TransferRecord struct {
	BaseModel
	TransferID   string    `gorm:"uniqueIndex;not null;type:varchar(36)"`
	FromAddress  string    `gorm:"index;not null;type:varchar(44)"`
	ToAddress    string    `gorm:"index;not null;type:varchar(44)"`
	Amount       string    `gorm:"not null;type:varchar(80)"`
	Net          string    `gorm:"type:varchar(80)"`
	TaxPercent   uint64    `gorm:"default:0"`
	Tax          string    `gorm:"type:varchar(80)"`
	Burned       string    `gorm:"type:varchar(80)"`
	Treasury     string    `gorm:"type:varchar(80)"`
	Reflection   string    `gorm:"type:varchar(80)"`
	Flushed      string    `gorm:"type:varchar(80)"`
	Coefficient  string    `gorm:"type:varchar(80)"`
	Status       string    `gorm:"index;not null;type:varchar(20)"`
	Stage        string    `gorm:"type:varchar(40)"`
	ErrorMessage string    `gorm:"type:text"`
	OccurredAt   time.Time `gorm:"index;not null"`
}
