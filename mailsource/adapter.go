// Package mailsource abstracts the mailbox transport behind a single
// Adapter contract with three variants: interval polling over IMAP, a
// persistent IMAP connection with IDLE push, and the Gmail REST API.
// All variants mark messages seen at fetch time, so delivery is
// at-least-once and de-duplication is the caller's job.
package mailsource

import (
	"context"
	"fmt"
	"log"
	"time"

	"mailrules/models"
)

// Message is the normalized form of one inbound email. It lives only for
// the duration of a single processing pass.
type Message struct {
	// ID is the provider message identifier, stable across fetches.
	// Used for de-duplication.
	ID string

	// UID is the IMAP UID within the current session. Zero for
	// provider-API transports.
	UID uint32

	From    string
	To      string
	Subject string
	Body    string
	Date    time.Time

	// ParseErr is set when the body or headers could not be decoded.
	// The message still carries whatever headers were readable.
	ParseErr error
}

// Outbound is a message to send through the mailbox's outbound transport.
type Outbound struct {
	To      string
	Subject string
	Body    string

	// InReplyTo threads the send under the original message where the
	// transport supports it.
	InReplyTo string
}

// Adapter is the mailbox transport owned by one monitor instance.
//
// Connect must be called before any other method and reports
// authentication or connectivity failures as *ConnectError. FetchUnseen
// returns the messages the mailbox currently reports as unseen, marking
// them seen as they are fetched; an empty result is not an error. A
// fetch that fails partway returns the messages read before the failure
// alongside the error, since those are already marked seen.
type Adapter interface {
	Connect(ctx context.Context) error
	FetchUnseen(ctx context.Context) ([]Message, error)
	Send(ctx context.Context, out Outbound) error

	// Archive removes the message from the inbox. Transports without
	// folder semantics treat this as a successful no-op.
	Archive(ctx context.Context, msg Message) error

	// ApplyLabel attaches a label by name, creating it on the mailbox
	// if absent. Creation is idempotent.
	ApplyLabel(ctx context.Context, msg Message, label string) error

	// Notifications returns a channel that fires when the transport
	// learns of new mail, or nil for transports without push.
	Notifications() <-chan struct{}

	Close() error
}

// ConnectError marks a failure to authenticate or connect; surfaced to the
// caller of Start, never retried implicitly.
type ConnectError struct {
	Err error
}

func (e *ConnectError) Error() string { return fmt.Sprintf("transport connect: %v", e.Err) }
func (e *ConnectError) Unwrap() error { return e.Err }

// TransientError marks a mid-operation transport failure. The current scan
// is abandoned and the monitor retries on its next tick.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string { return fmt.Sprintf("transport %s: %v", e.Op, e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// Credentials carries the decrypted secrets for a mailbox. Decryption is
// the credential store's concern, not the adapter's.
type Credentials struct {
	IMAPPassword string
	SMTPPassword string
	AccessToken  string
}

// New selects the adapter variant for the mailbox's provider type.
func New(mb *models.Mailbox, creds Credentials, logger *log.Logger) (Adapter, error) {
	switch mb.ProviderType {
	case models.ProviderIMAP:
		return newIMAPAdapter(mb, creds, logger), nil
	case models.ProviderIMAPIdle:
		return newIdleAdapter(mb, creds, logger), nil
	case models.ProviderGmail:
		return newGmailAdapter(mb, creds, logger), nil
	default:
		return nil, models.ErrUnknownProvider
	}
}
