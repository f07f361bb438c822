package monitor

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"mailrules/models"
)

// ErrDuplicateLog is returned by CreateLog when another writer already
// recorded the same message identifier for the mailbox.
var ErrDuplicateLog = errors.New("monitor: log entry already exists for message")

// Store is the engine's view of persistence. Rule and credential data are
// read-only; only EmailLog rows and the mailbox status fields are written.
type Store interface {
	Mailbox(userID uint) (*models.Mailbox, error)
	EnabledMailboxes() ([]models.Mailbox, error)
	SetMonitoring(mailboxID uint, enabled bool) error
	RecordMailboxError(mailboxID uint, message string) error
	TouchScan(mailboxID uint) error

	ActiveRules(userID uint) ([]models.Rule, error)

	FindLog(mailboxID uint, messageID string) (*models.EmailLog, error)
	CreateLog(entry *models.EmailLog) error
	UpdateLog(entry *models.EmailLog) error
	RecentLogs(userID uint, limit int) ([]models.EmailLog, error)
}

// GormStore backs Store with the application database.
type GormStore struct {
	db *gorm.DB
}

func NewGormStore(db *gorm.DB) *GormStore {
	return &GormStore{db: db}
}

func (s *GormStore) Mailbox(userID uint) (*models.Mailbox, error) {
	var mb models.Mailbox
	if err := s.db.Where("user_id = ?", userID).First(&mb).Error; err != nil {
		return nil, err
	}
	return &mb, nil
}

func (s *GormStore) EnabledMailboxes() ([]models.Mailbox, error) {
	var mailboxes []models.Mailbox
	if err := s.db.Where("monitoring_enabled = ?", true).Find(&mailboxes).Error; err != nil {
		return nil, err
	}
	return mailboxes, nil
}

func (s *GormStore) SetMonitoring(mailboxID uint, enabled bool) error {
	return s.db.Model(&models.Mailbox{}).
		Where("id = ?", mailboxID).
		Update("monitoring_enabled", enabled).
		Error
}

func (s *GormStore) RecordMailboxError(mailboxID uint, message string) error {
	return s.db.Model(&models.Mailbox{}).
		Where("id = ?", mailboxID).
		Update("last_error", message).
		Error
}

func (s *GormStore) TouchScan(mailboxID uint) error {
	return s.db.Model(&models.Mailbox{}).
		Where("id = ?", mailboxID).
		Updates(map[string]interface{}{
			"last_scan_at": time.Now(),
			"last_error":   nil,
		}).
		Error
}

// ActiveRules returns the user's active rules ordered for evaluation:
// priority descending, creation order on ties.
func (s *GormStore) ActiveRules(userID uint) ([]models.Rule, error) {
	var ruleSet []models.Rule
	err := s.db.Where("user_id = ? AND is_active = ?", userID, true).
		Preload("Conditions").
		Preload("Actions").
		Order("priority DESC, id ASC").
		Find(&ruleSet).Error
	if err != nil {
		return nil, err
	}
	return ruleSet, nil
}

func (s *GormStore) FindLog(mailboxID uint, messageID string) (*models.EmailLog, error) {
	var entry models.EmailLog
	err := s.db.Where("mailbox_id = ? AND message_id = ?", mailboxID, messageID).First(&entry).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &entry, nil
}

// CreateLog inserts a processing entry. The unique (mailbox_id,
// message_id) index makes the check-then-create race safe: the loser gets
// ErrDuplicateLog and skips the message.
func (s *GormStore) CreateLog(entry *models.EmailLog) error {
	err := s.db.Create(entry).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateLog
	}
	return err
}

func (s *GormStore) UpdateLog(entry *models.EmailLog) error {
	return s.db.Save(entry).Error
}

func (s *GormStore) RecentLogs(userID uint, limit int) ([]models.EmailLog, error) {
	var entries []models.EmailLog
	err := s.db.Where("user_id = ?", userID).
		Preload("Rule").
		Order("created_at DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, err
	}
	return entries, nil
}
