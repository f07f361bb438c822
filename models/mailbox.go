package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

// Provider types for a mailbox connection.
const (
	ProviderIMAP     = "imap"      // interval polling over IMAP
	ProviderIMAPIdle = "imap-idle" // persistent IMAP connection with IDLE push
	ProviderGmail    = "gmail"     // Gmail REST API with a bearer token
)

// Mailbox represents one set of mailbox credentials owned by a user.
// Secrets are encrypted in the application layer before they hit the
// database. The monitoring engine treats this record as read-only apart
// from LastError.
type Mailbox struct {
	gorm.Model
	UserID uint `gorm:"not null;uniqueIndex" json:"user_id"`

	ProviderType string `gorm:"not null;default:'imap'" json:"provider_type"`

	// Display identity for outbound mail
	FromName  string `gorm:"not null" json:"from_name"`
	FromEmail string `gorm:"not null" json:"from_email"`

	// ========= IMAP Configuration =========
	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port" gorm:"default:993"`
	IMAPUsername   string `json:"imap_username"`
	IMAPPassword   string `json:"-"` // Encrypted in application layer
	IMAPEncryption string `json:"imap_encryption" gorm:"default:'SSL'"` // SSL, STARTTLS, NONE
	IMAPMailbox    string `json:"imap_mailbox" gorm:"default:'INBOX'"`

	// ========= SMTP Configuration =========
	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `json:"smtp_port" gorm:"default:587"`
	SMTPUsername   string `json:"smtp_username"`
	SMTPPassword   string `json:"-"` // Encrypted in application layer
	SMTPEncryption string `json:"smtp_encryption" gorm:"default:'STARTTLS'"`

	// ========= OAuth Configuration (gmail provider) =========
	OAuthToken  string     `gorm:"column:oauth_token" json:"-"` // Encrypted
	OAuthExpiry *time.Time `gorm:"column:oauth_expiry" json:"oauth_expiry,omitempty"`

	// ========= Monitoring state =========
	MonitoringEnabled bool       `gorm:"default:false" json:"monitoring_enabled"`
	LastError         *string    `json:"last_error,omitempty"`
	LastScanAt        *time.Time `json:"last_scan_at,omitempty"`

	// Relations
	User User `json:"-"`
}

var (
	ErrIncompleteIMAP  = errors.New("mailbox: IMAP credentials are incomplete")
	ErrIncompleteSMTP  = errors.New("mailbox: SMTP credentials are incomplete")
	ErrMissingToken    = errors.New("mailbox: gmail provider requires an OAuth token")
	ErrUnknownProvider = errors.New("mailbox: unknown provider type")
)

// Validate enforces the all-or-nothing credential invariant: a monitor may
// only start when the transports it needs are fully configured.
func (m *Mailbox) Validate() error {
	switch m.ProviderType {
	case ProviderIMAP, ProviderIMAPIdle:
		if m.IMAPHost == "" || m.IMAPPort == 0 || m.IMAPUsername == "" || m.IMAPPassword == "" {
			return ErrIncompleteIMAP
		}
		if m.SMTPHost == "" || m.SMTPPort == 0 || m.SMTPUsername == "" || m.SMTPPassword == "" {
			return ErrIncompleteSMTP
		}
		return nil
	case ProviderGmail:
		if m.OAuthToken == "" {
			return ErrMissingToken
		}
		return nil
	default:
		return ErrUnknownProvider
	}
}

// Sanitize clears secrets before the record leaves the API layer.
func (m *Mailbox) Sanitize() {
	m.IMAPPassword = ""
	m.SMTPPassword = ""
	m.OAuthToken = ""
}
