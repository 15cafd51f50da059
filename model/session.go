package model

import (
	"time"

	"gorm.io/gorm"
)

// Session is one authenticated client context. The token is the only
// credential; rotation on refresh replaces it in place.
type Session struct {
	ID           uint      `gorm:"primarykey"`
	Token        string    `gorm:"uniqueIndex;size:64;not null"`
	CustomerID   uint      `gorm:"index;not null"`
	IP           string    `gorm:"size:45"`  // IPv4/IPv6
	UserAgent    string    `gorm:"size:512"` //
	MFAVerified  bool      `gorm:"default:false;not null"`
	LastActivity time.Time `gorm:"not null"`
	ExpiresAt    time.Time `gorm:"index;not null"` // absolute ceiling
	CreatedAt    time.Time
}

func (s *Session) BeforeCreate(tx *gorm.DB) error {
	if s.ID == 0 {
		s.ID = GenerateID()
	}
	return nil
}
