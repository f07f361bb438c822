package mailsource

import (
	"context"
	"log"
	"time"

	"github.com/emersion/go-imap/client"

	"mailrules/models"
)

const (
	idleBackoffMin = 5 * time.Second
	idleBackoffMax = 5 * time.Minute
)

// idleAdapter is the event-push transport. It keeps a dedicated IMAP
// connection in IDLE and signals new mail on the notification channel;
// fetching and acting reuse the embedded polling adapter on a second
// connection so IDLE never has to be interrupted mid-scan.
type idleAdapter struct {
	imapAdapter

	notify chan struct{}
	stop   chan struct{}
	done   chan struct{}
}

func newIdleAdapter(mb *models.Mailbox, creds Credentials, logger *log.Logger) *idleAdapter {
	return &idleAdapter{
		imapAdapter: imapAdapter{mailbox: mb, creds: creds, logger: logger},
		notify:      make(chan struct{}, 1),
		stop:        make(chan struct{}),
		done:        make(chan struct{}),
	}
}

func (a *idleAdapter) Connect(ctx context.Context) error {
	if err := a.imapAdapter.Connect(ctx); err != nil {
		return err
	}

	// Prove the idle connection can be established before reporting
	// success; after that the watch loop owns reconnection.
	c, err := a.dialIdleSession()
	if err != nil {
		_ = a.imapAdapter.Close()
		return &ConnectError{Err: err}
	}

	go a.watch(c)
	return nil
}

func (a *idleAdapter) dialIdleSession() (*client.Client, error) {
	c, err := a.dial()
	if err != nil {
		return nil, err
	}
	if err := c.Login(a.mailbox.IMAPUsername, a.creds.IMAPPassword); err != nil {
		_ = c.Logout()
		return nil, err
	}

	mailboxName := a.mailbox.IMAPMailbox
	if mailboxName == "" {
		mailboxName = "INBOX"
	}
	if _, err := c.Select(mailboxName, true); err != nil {
		_ = c.Logout()
		return nil, err
	}
	return c, nil
}

// watch keeps the IDLE session alive, reconnecting with exponential
// backoff on transport errors, until Close is called.
func (a *idleAdapter) watch(c *client.Client) {
	defer close(a.done)

	backoff := idleBackoffMin
	for {
		if c == nil {
			select {
			case <-a.stop:
				return
			case <-time.After(backoff):
			}
			if backoff < idleBackoffMax {
				backoff *= 2
			}

			var err error
			c, err = a.dialIdleSession()
			if err != nil {
				a.logger.Printf("idle reconnect failed for mailbox %d: %v", a.mailbox.ID, err)
				c = nil
				continue
			}
		}
		backoff = idleBackoffMin

		updates := make(chan client.Update, 8)
		c.Updates = updates

		idleStop := make(chan struct{})
		idleErr := make(chan error, 1)
		go func() {
			// Idle falls back to NOOP polling when the server lacks
			// the IDLE capability.
			idleErr <- c.Idle(idleStop, nil)
		}()

	session:
		for {
			select {
			case <-a.stop:
				close(idleStop)
				<-idleErr
				_ = c.Logout()
				return
			case upd := <-updates:
				if _, ok := upd.(*client.MailboxUpdate); ok {
					select {
					case a.notify <- struct{}{}:
					default:
					}
				}
			case err := <-idleErr:
				if err != nil {
					a.logger.Printf("idle session lost for mailbox %d: %v", a.mailbox.ID, err)
				}
				_ = c.Logout()
				c = nil
				break session
			}
		}
	}
}

func (a *idleAdapter) Notifications() <-chan struct{} { return a.notify }

func (a *idleAdapter) Close() error {
	close(a.stop)
	<-a.done
	return a.imapAdapter.Close()
}
