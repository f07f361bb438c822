package monitor

import (
	"fmt"
	"log"

	"mailrules/mailsource"
	"mailrules/models"
	"mailrules/utils"
)

// DefaultFactory decrypts the stored mailbox secrets and builds the
// adapter variant for the mailbox's provider type.
func DefaultFactory(logger *log.Logger) AdapterFactory {
	return func(mb *models.Mailbox) (mailsource.Adapter, error) {
		imapPassword, err := utils.Decrypt(mb.IMAPPassword)
		if err != nil {
			return nil, fmt.Errorf("decrypt IMAP password: %w", err)
		}
		smtpPassword, err := utils.Decrypt(mb.SMTPPassword)
		if err != nil {
			return nil, fmt.Errorf("decrypt SMTP password: %w", err)
		}
		accessToken, err := utils.Decrypt(mb.OAuthToken)
		if err != nil {
			return nil, fmt.Errorf("decrypt OAuth token: %w", err)
		}

		return mailsource.New(mb, mailsource.Credentials{
			IMAPPassword: imapPassword,
			SMTPPassword: smtpPassword,
			AccessToken:  accessToken,
		}, logger)
	}
}
