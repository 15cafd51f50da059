package model

import "time"

// SecurityEvent is one security-relevant action. Write-only from the request
// path; a failed insert must never abort the operation that triggered it.
type SecurityEvent struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	CustomerID    uint      `gorm:"index"`                  // 0 when the actor is unknown
	Action        string    `gorm:"size:64;not null;index"` // login_success, mfa_verify...
	Resource      string    `gorm:"size:64;not null;index"`
	ResourceID    string    `gorm:"size:64"`
	IP            string    `gorm:"size:45"`
	UserAgent     string    `gorm:"size:512"`
	RequestMethod string    `gorm:"size:8"`
	RequestPath   string    `gorm:"size:256"`
	StatusCode    int       //
	ErrorMessage  string    `gorm:"size:512"`
	Metadata      string    `gorm:"size:2048"` // JSON blob, optional
	CreatedAt     time.Time `gorm:"autoCreateTime;index"`
}

func (SecurityEvent) TableName() string {
	return "security_audit_log"
}

// AdminAction records privileged operations separately from the general
// security log, one row per allowed admin call.
type AdminAction struct {
	ID         uint64 `gorm:"primaryKey;autoIncrement"`
	CustomerID uint   `gorm:"index;not null"`
	Action     string `gorm:"size:64;not null;index"`
	Resource   string `gorm:"size:64;not null"`
	Details    string `gorm:"size:2048"` // JSON blob, optional
	CreatedAt  time.Time
}

func (AdminAction) TableName() string {
	return "admin_audit_log"
}
