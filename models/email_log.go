package models

import (
	"gorm.io/gorm"
)

// EmailLog statuses. A message identifier maps to at most one non-error
// terminal entry; reprocessing the same identifier is a no-op.
const (
	LogStatusProcessing  = "processing"
	LogStatusProcessed   = "processed"
	LogStatusError       = "error"
	LogStatusNoRuleMatch = "no_rule_match"
)

// EmailLog records one processing attempt of an inbound message. Created
// with status processing when a scan picks the message up, then moved to a
// terminal status. The unique (mailbox_id, message_id) index is what makes
// redelivered messages a silent skip.
type EmailLog struct {
	gorm.Model
	UserID    uint `gorm:"not null;index" json:"user_id"`
	MailboxID uint `gorm:"not null;uniqueIndex:idx_mailbox_message" json:"mailbox_id"`

	MessageID string `gorm:"not null;uniqueIndex:idx_mailbox_message" json:"message_id"`
	FromEmail string `gorm:"not null" json:"from_email"`
	ToEmail   string `json:"to_email"`
	Subject   string `json:"subject"`
	Body      string `gorm:"type:text" json:"body"`

	Status string  `gorm:"not null;default:'processing';index" json:"status"`
	Error  *string `json:"error,omitempty"`
	RuleID *uint   `gorm:"index" json:"rule_id,omitempty"`

	// Relations
	Rule *Rule `json:"rule,omitempty"`
}

// Terminal reports whether the log entry reached a final status.
func (l *EmailLog) Terminal() bool {
	return l.Status == LogStatusProcessed || l.Status == LogStatusError || l.Status == LogStatusNoRuleMatch
}
