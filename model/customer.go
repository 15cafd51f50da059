package model

import (
	"time"

	"gorm.io/gorm"
)

// Customer is the tenant identity. MFA fields live directly on the row as
// typed columns; backup code hashes are separate rows with set semantics.
type Customer struct {
	ID               uint      `gorm:"primarykey"`
	Email            string    `gorm:"uniqueIndex;size:256;not null"`
	CompanyName      string    `gorm:"size:128;not null"`
	Password         string    `gorm:"size:64;not null"` // bcrypt hash
	IsAdmin          bool      `gorm:"default:false;not null"`
	Disabled         bool      `gorm:"default:false;not null"`
	MFAEnabled       bool      `gorm:"default:false;not null"`
	MFASecret        string     `gorm:"size:128"` // base32, empty when MFA disabled
	MFAVerifiedAt    *time.Time // when enrollment completed
	LastMFAChallenge *time.Time // last verify attempt that succeeded
	CreatedAt        time.Time
	UpdatedAt        time.Time
	DeletedAt        gorm.DeletedAt `gorm:"index"`
}

func (c *Customer) BeforeCreate(tx *gorm.DB) error {
	if c.ID == 0 {
		c.ID = GenerateID()
	}
	return nil
}
