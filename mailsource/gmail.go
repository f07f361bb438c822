package mailsource

import (
	"context"
	"encoding/base64"
	"fmt"
	"log"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	"mailrules/models"
)

// gmailAdapter is the provider-API transport. The bearer token comes from
// the credential store; refreshing it is the store's responsibility.
type gmailAdapter struct {
	mailbox *models.Mailbox
	creds   Credentials
	logger  *log.Logger

	service *gmail.Service
}

func newGmailAdapter(mb *models.Mailbox, creds Credentials, logger *log.Logger) *gmailAdapter {
	return &gmailAdapter{
		mailbox: mb,
		creds:   creds,
		logger:  logger,
	}
}

func (a *gmailAdapter) Connect(ctx context.Context) error {
	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: a.creds.AccessToken})

	srv, err := gmail.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return &ConnectError{Err: err}
	}

	// The service constructor does not talk to the API; fetch the
	// profile so a bad token fails at start, not mid-scan.
	if _, err := srv.Users.GetProfile("me").Context(ctx).Do(); err != nil {
		return &ConnectError{Err: fmt.Errorf("get profile: %w", err)}
	}

	a.service = srv
	return nil
}

func (a *gmailAdapter) FetchUnseen(ctx context.Context) ([]Message, error) {
	list, err := a.service.Users.Messages.List("me").Q("is:unread in:inbox").Context(ctx).Do()
	if err != nil {
		return nil, &TransientError{Op: "list", Err: err}
	}

	var out []Message
	for _, ref := range list.Messages {
		full, err := a.service.Users.Messages.Get("me", ref.Id).Format("full").Context(ctx).Do()
		if err != nil {
			return out, &TransientError{Op: "get", Err: err}
		}

		msg := parseGmailMessage(full)

		// Mark unread off now so delivery is at-least-once: a crash
		// after this point redelivers nothing, a crash before it
		// redelivers the message on the next poll.
		req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"UNREAD"}}
		if _, err := a.service.Users.Messages.Modify("me", ref.Id, req).Context(ctx).Do(); err != nil {
			return out, &TransientError{Op: "mark read", Err: err}
		}

		out = append(out, msg)
	}

	return out, nil
}

// parseGmailMessage normalizes a full-format Gmail message, preferring the
// first text/plain part and falling back to a single-part body.
func parseGmailMessage(msg *gmail.Message) Message {
	m := Message{
		ID:   msg.Id,
		Date: time.UnixMilli(msg.InternalDate),
	}

	if msg.Payload == nil {
		m.ParseErr = fmt.Errorf("message %s has no payload", msg.Id)
		return m
	}

	for _, header := range msg.Payload.Headers {
		switch header.Name {
		case "Subject":
			m.Subject = header.Value
		case "From":
			m.From = header.Value
		case "To":
			m.To = header.Value
		}
	}

	body, err := extractGmailBody(msg.Payload)
	if err != nil {
		m.ParseErr = err
		return m
	}
	m.Body = body
	return m
}

func extractGmailBody(payload *gmail.MessagePart) (string, error) {
	for _, part := range payload.Parts {
		if part.MimeType == "text/plain" && part.Body != nil && part.Body.Data != "" {
			return decodeGmailData(part.Body.Data)
		}
	}
	if payload.Body != nil && payload.Body.Data != "" {
		return decodeGmailData(payload.Body.Data)
	}
	return "", nil
}

func decodeGmailData(data string) (string, error) {
	b, err := base64.URLEncoding.DecodeString(data)
	if err != nil {
		// Gmail omits padding on some payloads.
		b, err = base64.RawURLEncoding.DecodeString(data)
		if err != nil {
			return "", fmt.Errorf("failed to decode body: %w", err)
		}
	}
	return string(b), nil
}

func (a *gmailAdapter) Send(ctx context.Context, out Outbound) error {
	raw := "From: " + fmt.Sprintf("%s <%s>", a.mailbox.FromName, a.mailbox.FromEmail) + "\r\n" +
		"To: " + out.To + "\r\n" +
		"Subject: " + out.Subject + "\r\n"
	if out.InReplyTo != "" {
		raw += "In-Reply-To: " + out.InReplyTo + "\r\n" +
			"References: " + out.InReplyTo + "\r\n"
	}
	raw += "Content-Type: text/plain; charset=\"UTF-8\"\r\n\r\n" + out.Body

	msg := &gmail.Message{Raw: base64.URLEncoding.EncodeToString([]byte(raw))}
	if _, err := a.service.Users.Messages.Send("me", msg).Context(ctx).Do(); err != nil {
		return &TransientError{Op: "send", Err: err}
	}
	return nil
}

func (a *gmailAdapter) Archive(ctx context.Context, msg Message) error {
	req := &gmail.ModifyMessageRequest{RemoveLabelIds: []string{"INBOX"}}
	if _, err := a.service.Users.Messages.Modify("me", msg.ID, req).Context(ctx).Do(); err != nil {
		return &TransientError{Op: "archive", Err: err}
	}
	return nil
}

func (a *gmailAdapter) ApplyLabel(ctx context.Context, msg Message, label string) error {
	labelID, err := a.ensureLabel(ctx, label)
	if err != nil {
		return &TransientError{Op: "label", Err: err}
	}

	req := &gmail.ModifyMessageRequest{AddLabelIds: []string{labelID}}
	if _, err := a.service.Users.Messages.Modify("me", msg.ID, req).Context(ctx).Do(); err != nil {
		return &TransientError{Op: "label", Err: err}
	}
	return nil
}

// ensureLabel resolves a label by name, creating it if absent. A concurrent
// create loses the race with a 409 and resolves the existing label instead.
func (a *gmailAdapter) ensureLabel(ctx context.Context, name string) (string, error) {
	id, err := a.findLabel(ctx, name)
	if err != nil {
		return "", err
	}
	if id != "" {
		return id, nil
	}

	created, err := a.service.Users.Labels.Create("me", &gmail.Label{
		Name:                  name,
		LabelListVisibility:   "labelShow",
		MessageListVisibility: "show",
	}).Context(ctx).Do()
	if err != nil {
		if gerr, ok := err.(*googleapi.Error); ok && gerr.Code == 409 {
			id, ferr := a.findLabel(ctx, name)
			if ferr != nil {
				return "", ferr
			}
			if id == "" {
				// The create was refused as a duplicate but the list
				// does not show the label; attaching an empty id would
				// silently fail.
				return "", fmt.Errorf("label %q not found after duplicate create", name)
			}
			return id, nil
		}
		return "", err
	}
	return created.Id, nil
}

func (a *gmailAdapter) findLabel(ctx context.Context, name string) (string, error) {
	labels, err := a.service.Users.Labels.List("me").Context(ctx).Do()
	if err != nil {
		return "", err
	}
	for _, l := range labels.Labels {
		if l.Name == name {
			return l.Id, nil
		}
	}
	return "", nil
}

func (a *gmailAdapter) Notifications() <-chan struct{} { return nil }

func (a *gmailAdapter) Close() error {
	a.service = nil
	return nil
}
