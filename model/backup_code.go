package model

import "time"

// BackupCode holds the SHA-256 hash of one single-use recovery code.
// Consuming a code deletes the row; the unique index gives set semantics.
type BackupCode struct {
	ID         uint   `gorm:"primaryKey;autoIncrement"`
	CustomerID uint   `gorm:"not null;index:idx_backup_code,unique"`
	CodeHash   string `gorm:"size:64;not null;index:idx_backup_code,unique"`
	CreatedAt  time.Time
}

func (BackupCode) TableName() string {
	return "mfa_backup_codes"
}
