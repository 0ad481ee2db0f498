// internal/storage/models/snapshot.go
package models

import "time"

type SnapshotRecord struct {
	BaseModel
	TokenAddress string    `gorm:"index;not null;type:varchar(44)"`
	Accounts     int       `gorm:"not null"`
	Coefficient  string    `gorm:"type:varchar(80)"`
	TotalBurned  string    `gorm:"type:varchar(80)"`
	State        string    `gorm:"type:text;not null"`
	TakenAt      time.Time `gorm:"index;not null"`
}
