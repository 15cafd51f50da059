package model

import "time"

// failure categories for FailedLogin.ErrorType
const (
	LoginErrInvalidCredentials = "invalid_credentials"
	LoginErrAccountLocked      = "account_locked"
	LoginErrAccountDisabled    = "account_disabled"
	LoginErrTooManyAttempts    = "too_many_attempts"
)

// FailedLogin is append-only; lockout decisions are derived from the count of
// rows per email inside the trailing window.
type FailedLogin struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement"`
	Email     string    `gorm:"size:256;not null;index:idx_failed_login_email_time"`
	IP        string    `gorm:"size:45"`
	UserAgent string    `gorm:"size:512"`
	ErrorType string    `gorm:"size:32;not null"`
	CreatedAt time.Time `gorm:"index:idx_failed_login_email_time"`
}

func (FailedLogin) TableName() string {
	return "failed_login_attempts"
}
