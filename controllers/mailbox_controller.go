package controller

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"
	"gorm.io/gorm"

	"mailrules/models"
	"mailrules/monitor"
	"mailrules/utils"
)

type MailboxController struct {
	db      *gorm.DB
	factory monitor.AdapterFactory
	logger  *log.Logger
}

func NewMailboxController(db *gorm.DB, factory monitor.AdapterFactory, logger *log.Logger) *MailboxController {
	return &MailboxController{
		db:      db,
		factory: factory,
		logger:  logger,
	}
}

type mailboxInput struct {
	ProviderType string `json:"provider_type" validate:"required"`
	FromName     string `json:"from_name" validate:"required,max=120"`
	FromEmail    string `json:"from_email" validate:"required,email"`

	IMAPHost       string `json:"imap_host"`
	IMAPPort       int    `json:"imap_port"`
	IMAPUsername   string `json:"imap_username"`
	IMAPPassword   string `json:"imap_password"`
	IMAPEncryption string `json:"imap_encryption"`
	IMAPMailbox    string `json:"imap_mailbox"`

	SMTPHost       string `json:"smtp_host"`
	SMTPPort       int    `json:"smtp_port"`
	SMTPUsername   string `json:"smtp_username"`
	SMTPPassword   string `json:"smtp_password"`
	SMTPEncryption string `json:"smtp_encryption"`

	OAuthToken string `json:"oauth_token"`
}

// GetMailbox returns the user's mailbox settings with secrets stripped.
func (mc *MailboxController) GetMailbox(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var mailbox models.Mailbox
	if err := mc.db.Where("user_id = ?", user.ID).First(&mailbox).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Mailbox settings not found",
			})
		}
		mc.logger.Printf("load mailbox for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch mailbox settings",
		})
	}

	mailbox.Sanitize()
	return c.JSON(mailbox)
}

// UpsertMailbox creates or replaces the user's mailbox credentials,
// encrypting secrets before they are stored. Secrets omitted from the
// request keep their stored values, so the UI can save settings without
// re-entering passwords.
func (mc *MailboxController) UpsertMailbox(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var input mailboxInput
	if err := c.BodyParser(&input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if err := utils.ValidateStruct(input); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}
	if err := utils.ValidateEmailAddress(input.FromEmail, false); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	var mailbox models.Mailbox
	err := mc.db.Where("user_id = ?", user.ID).First(&mailbox).Error
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		mc.logger.Printf("load mailbox for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch mailbox settings",
		})
	}

	mailbox.UserID = user.ID
	mailbox.ProviderType = input.ProviderType
	mailbox.FromName = input.FromName
	mailbox.FromEmail = input.FromEmail
	mailbox.IMAPHost = input.IMAPHost
	mailbox.IMAPUsername = input.IMAPUsername
	mailbox.SMTPHost = input.SMTPHost
	mailbox.SMTPUsername = input.SMTPUsername
	if input.IMAPPort != 0 {
		mailbox.IMAPPort = input.IMAPPort
	}
	if input.SMTPPort != 0 {
		mailbox.SMTPPort = input.SMTPPort
	}
	if input.IMAPEncryption != "" {
		mailbox.IMAPEncryption = input.IMAPEncryption
	}
	if input.SMTPEncryption != "" {
		mailbox.SMTPEncryption = input.SMTPEncryption
	}
	if input.IMAPMailbox != "" {
		mailbox.IMAPMailbox = input.IMAPMailbox
	}

	if input.IMAPPassword != "" {
		encrypted, err := utils.Encrypt(input.IMAPPassword)
		if err != nil {
			return mc.encryptionFailed(c, user.ID, err)
		}
		mailbox.IMAPPassword = encrypted
	}
	if input.SMTPPassword != "" {
		encrypted, err := utils.Encrypt(input.SMTPPassword)
		if err != nil {
			return mc.encryptionFailed(c, user.ID, err)
		}
		mailbox.SMTPPassword = encrypted
	}
	if input.OAuthToken != "" {
		encrypted, err := utils.Encrypt(input.OAuthToken)
		if err != nil {
			return mc.encryptionFailed(c, user.ID, err)
		}
		mailbox.OAuthToken = encrypted
	}

	if err := mailbox.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	if err := mc.db.Save(&mailbox).Error; err != nil {
		mc.logger.Printf("save mailbox for user %d: %v", user.ID, err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to save mailbox settings",
		})
	}

	mailbox.Sanitize()
	return c.JSON(mailbox)
}

// TestMailbox opens and closes a transport connection with the stored
// credentials, reporting whether the mailbox is reachable.
func (mc *MailboxController) TestMailbox(c *fiber.Ctx) error {
	user := c.Locals("user").(*models.User)

	var mailbox models.Mailbox
	if err := mc.db.Where("user_id = ?", user.ID).First(&mailbox).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "Mailbox settings not found",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to fetch mailbox settings",
		})
	}

	if err := mailbox.Validate(); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": err.Error()})
	}

	adapter, err := mc.factory(&mailbox)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to prepare transport: " + err.Error(),
		})
	}

	if err := adapter.Connect(c.Context()); err != nil {
		utils.LogError("mailbox_test_failed", err, map[string]interface{}{
			"user_id":    user.ID,
			"mailbox_id": mailbox.ID,
			"provider":   mailbox.ProviderType,
		})
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"error":   err.Error(),
		})
	}
	_ = adapter.Close()

	utils.LogEvent("mailbox_test_succeeded", map[string]interface{}{
		"user_id":    user.ID,
		"mailbox_id": mailbox.ID,
	})
	return c.JSON(fiber.Map{
		"success": true,
		"message": "Mailbox connection verified",
	})
}

func (mc *MailboxController) encryptionFailed(c *fiber.Ctx, userID uint, err error) error {
	mc.logger.Printf("encrypt mailbox secret for user %d: %v", userID, err)
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": "Failed to store credentials",
	})
}
