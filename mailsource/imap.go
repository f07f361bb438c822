package mailsource

import (
	"context"
	"crypto/tls"
	"fmt"
	"log"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"gopkg.in/gomail.v2"

	"mailrules/models"
)

// archiveMailbox is the folder messages move to on the archive action.
const archiveMailbox = "Archive"

// imapAdapter is the interval-polling transport: one logged-in IMAP
// session reused across scans, SMTP via gomail for outbound.
type imapAdapter struct {
	mailbox *models.Mailbox
	creds   Credentials
	logger  *log.Logger

	client *client.Client
}

func newIMAPAdapter(mb *models.Mailbox, creds Credentials, logger *log.Logger) *imapAdapter {
	return &imapAdapter{
		mailbox: mb,
		creds:   creds,
		logger:  logger,
	}
}

func (a *imapAdapter) Connect(ctx context.Context) error {
	c, err := a.dial()
	if err != nil {
		return &ConnectError{Err: err}
	}

	if err := c.Login(a.mailbox.IMAPUsername, a.creds.IMAPPassword); err != nil {
		_ = c.Logout()
		return &ConnectError{Err: fmt.Errorf("login: %w", err)}
	}

	a.client = c
	return nil
}

func (a *imapAdapter) dial() (*client.Client, error) {
	addr := fmt.Sprintf("%s:%d", a.mailbox.IMAPHost, a.mailbox.IMAPPort)

	switch strings.ToUpper(a.mailbox.IMAPEncryption) {
	case "SSL", "TLS":
		return client.DialTLS(addr, &tls.Config{ServerName: a.mailbox.IMAPHost})
	case "STARTTLS":
		c, err := client.Dial(addr)
		if err != nil {
			return nil, err
		}
		if err := c.StartTLS(&tls.Config{ServerName: a.mailbox.IMAPHost}); err != nil {
			_ = c.Logout()
			return nil, err
		}
		return c, nil
	default:
		return client.Dial(addr)
	}
}

// reconnect replaces a session the server has dropped. Called from inside
// FetchUnseen; a failure here is transient, not a connect error, because
// the monitor is already running.
func (a *imapAdapter) reconnect() error {
	if a.client != nil {
		_ = a.client.Logout()
		a.client = nil
	}

	c, err := a.dial()
	if err != nil {
		return err
	}
	if err := c.Login(a.mailbox.IMAPUsername, a.creds.IMAPPassword); err != nil {
		_ = c.Logout()
		return fmt.Errorf("login: %w", err)
	}
	a.client = c
	return nil
}

func (a *imapAdapter) FetchUnseen(ctx context.Context) ([]Message, error) {
	mailboxName := a.mailbox.IMAPMailbox
	if mailboxName == "" {
		mailboxName = "INBOX"
	}

	if _, err := a.client.Select(mailboxName, false); err != nil {
		// The session may have timed out between scans; retry once on
		// a fresh connection before giving up.
		if rerr := a.reconnect(); rerr != nil {
			return nil, &TransientError{Op: "select", Err: rerr}
		}
		if _, err := a.client.Select(mailboxName, false); err != nil {
			return nil, &TransientError{Op: "select", Err: err}
		}
	}

	criteria := imap.NewSearchCriteria()
	criteria.WithoutFlags = []string{imap.SeenFlag}
	uids, err := a.client.UidSearch(criteria)
	if err != nil {
		return nil, &TransientError{Op: "search", Err: err}
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)

	// BODY[] without PEEK sets \Seen as bodies are fetched. A crash
	// before this completes redelivers the message on the next poll.
	section := &imap.BodySectionName{}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, section.FetchItem()}

	messages := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- a.client.UidFetch(seqset, items, messages)
	}()

	var out []Message
	for msg := range messages {
		out = append(out, a.normalize(msg, section))
	}

	if err := <-done; err != nil {
		// Bodies already streamed are marked \Seen; hand them to the
		// caller with the error so they are not lost from the unseen
		// set without a trace.
		return out, &TransientError{Op: "fetch", Err: err}
	}

	return out, nil
}

func (a *imapAdapter) normalize(msg *imap.Message, section *imap.BodySectionName) Message {
	m := Message{UID: msg.Uid}

	if msg.Envelope != nil {
		m.ID = msg.Envelope.MessageId
		m.From = formatAddresses(msg.Envelope.From)
		m.To = formatAddresses(msg.Envelope.To)
		m.Subject = msg.Envelope.Subject
		m.Date = msg.Envelope.Date
	}
	if m.ID == "" {
		// Some messages arrive without a Message-Id header; fall back
		// to a UID-scoped identifier so de-duplication still works
		// within this mailbox.
		m.ID = fmt.Sprintf("uid-%d@%s", msg.Uid, a.mailbox.IMAPHost)
	}

	literal := msg.GetBody(section)
	if literal == nil {
		m.ParseErr = fmt.Errorf("message body not found")
		return m
	}

	body, err := parseBody(literal)
	if err != nil {
		m.ParseErr = err
		return m
	}
	m.Body = body
	return m
}

func (a *imapAdapter) Send(ctx context.Context, out Outbound) error {
	m := gomail.NewMessage()
	m.SetHeader("From", fmt.Sprintf("%s <%s>", a.mailbox.FromName, a.mailbox.FromEmail))
	m.SetHeader("To", out.To)
	m.SetHeader("Subject", out.Subject)
	if out.InReplyTo != "" {
		m.SetHeader("In-Reply-To", out.InReplyTo)
		m.SetHeader("References", out.InReplyTo)
	}
	m.SetBody("text/plain", out.Body)

	d := gomail.NewDialer(
		a.mailbox.SMTPHost,
		a.mailbox.SMTPPort,
		a.mailbox.SMTPUsername,
		a.creds.SMTPPassword,
	)
	if strings.EqualFold(a.mailbox.SMTPEncryption, "SSL") || strings.EqualFold(a.mailbox.SMTPEncryption, "TLS") {
		d.SSL = true
	}

	if err := d.DialAndSend(m); err != nil {
		return &TransientError{Op: "send", Err: err}
	}
	return nil
}

func (a *imapAdapter) Archive(ctx context.Context, msg Message) error {
	if msg.UID == 0 {
		return fmt.Errorf("archive: message has no session UID")
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(msg.UID)

	if err := a.ensureMailbox(archiveMailbox); err != nil {
		return &TransientError{Op: "archive", Err: err}
	}
	if err := a.client.UidMove(seqset, archiveMailbox); err != nil {
		return &TransientError{Op: "archive", Err: err}
	}
	return nil
}

func (a *imapAdapter) ApplyLabel(ctx context.Context, msg Message, label string) error {
	if msg.UID == 0 {
		return fmt.Errorf("label: message has no session UID")
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(msg.UID)

	// IMAP has no first-class labels; a label is a mailbox the message
	// is copied into, created on demand.
	if err := a.ensureMailbox(label); err != nil {
		return &TransientError{Op: "label", Err: err}
	}
	if err := a.client.UidCopy(seqset, label); err != nil {
		return &TransientError{Op: "label", Err: err}
	}
	return nil
}

// ensureMailbox creates the named mailbox, tolerating a concurrent create:
// servers answer an existing name with ALREADYEXISTS or a plain NO, and
// either way the mailbox is there for the copy that follows.
func (a *imapAdapter) ensureMailbox(name string) error {
	if err := a.client.Create(name); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "exist") {
			return nil
		}
		// Verify rather than trust the error text.
		mailboxes := make(chan *imap.MailboxInfo, 10)
		listDone := make(chan error, 1)
		go func() {
			listDone <- a.client.List("", name, mailboxes)
		}()
		found := false
		for mb := range mailboxes {
			if mb.Name == name {
				found = true
			}
		}
		if lerr := <-listDone; lerr == nil && found {
			return nil
		}
		return err
	}
	return nil
}

func (a *imapAdapter) Notifications() <-chan struct{} { return nil }

func (a *imapAdapter) Close() error {
	if a.client == nil {
		return nil
	}
	err := a.client.Logout()
	a.client = nil
	return err
}
