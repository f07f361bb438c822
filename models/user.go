package models

import (
	"gorm.io/gorm"
)

// User represents a user account in the system. Accounts are managed by the
// external auth service; the engine only reads ownership and status.
type User struct {
	gorm.Model

	Email        string  `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string  `gorm:"not null" json:"-"`
	Name         *string `json:"name,omitempty"`

	// Google OAuth fields
	GoogleID *string `gorm:"uniqueIndex" json:"google_id,omitempty"`

	// Account status
	IsActive     bool `gorm:"default:true" json:"is_active"`
	TokenVersion int  `gorm:"default:0" json:"-"`

	// Relations
	Mailboxes []Mailbox `gorm:"foreignKey:UserID" json:"mailboxes,omitempty"`
	Rules     []Rule    `gorm:"foreignKey:UserID" json:"rules,omitempty"`
}
