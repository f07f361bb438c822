package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func fullIMAPMailbox() Mailbox {
	return Mailbox{
		UserID:       1,
		ProviderType: ProviderIMAP,
		FromName:     "Test",
		FromEmail:    "test@corp.example",
		IMAPHost:     "imap.corp.example",
		IMAPPort:     993,
		IMAPUsername: "test@corp.example",
		IMAPPassword: "enc",
		SMTPHost:     "smtp.corp.example",
		SMTPPort:     587,
		SMTPUsername: "test@corp.example",
		SMTPPassword: "enc",
	}
}

func TestMailboxValidate(t *testing.T) {
	mb := fullIMAPMailbox()
	assert.NoError(t, mb.Validate())

	mb = fullIMAPMailbox()
	mb.ProviderType = ProviderIMAPIdle
	assert.NoError(t, mb.Validate())

	// All-or-nothing: any missing IMAP field fails.
	mb = fullIMAPMailbox()
	mb.IMAPPassword = ""
	assert.ErrorIs(t, mb.Validate(), ErrIncompleteIMAP)

	mb = fullIMAPMailbox()
	mb.SMTPHost = ""
	assert.ErrorIs(t, mb.Validate(), ErrIncompleteSMTP)

	gm := Mailbox{UserID: 2, ProviderType: ProviderGmail, OAuthToken: "enc"}
	assert.NoError(t, gm.Validate())
	gm.OAuthToken = ""
	assert.ErrorIs(t, gm.Validate(), ErrMissingToken)

	mb = fullIMAPMailbox()
	mb.ProviderType = "exchange"
	assert.ErrorIs(t, mb.Validate(), ErrUnknownProvider)
}

func TestMailboxSanitize(t *testing.T) {
	mb := fullIMAPMailbox()
	mb.OAuthToken = "enc"
	mb.Sanitize()
	assert.Empty(t, mb.IMAPPassword)
	assert.Empty(t, mb.SMTPPassword)
	assert.Empty(t, mb.OAuthToken)
}

func TestEmailLogTerminal(t *testing.T) {
	for status, terminal := range map[string]bool{
		LogStatusProcessing:  false,
		LogStatusProcessed:   true,
		LogStatusError:       true,
		LogStatusNoRuleMatch: true,
	} {
		entry := EmailLog{Status: status}
		assert.Equal(t, terminal, entry.Terminal(), status)
	}
}
