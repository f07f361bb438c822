package mailsource

import (
	"fmt"
	"io"
	"strings"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-message/mail"
)

// parseBody reads the RFC822 literal and extracts a plain-text body,
// preferring text/plain parts and falling back to text/html.
func parseBody(literal imap.Literal) (string, error) {
	mr, err := mail.CreateReader(literal)
	if err != nil {
		return "", fmt.Errorf("failed to create message reader: %w", err)
	}

	var bodyText, bodyHTML string
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		} else if err != nil {
			return "", fmt.Errorf("failed to read next part: %w", err)
		}

		if h, ok := p.Header.(*mail.InlineHeader); ok {
			contentType, _, _ := h.ContentType()
			b, err := io.ReadAll(p.Body)
			if err != nil {
				return "", fmt.Errorf("failed to read body: %w", err)
			}

			if strings.Contains(contentType, "text/plain") && bodyText == "" {
				bodyText = string(b)
			} else if strings.Contains(contentType, "text/html") && bodyHTML == "" {
				bodyHTML = string(b)
			}
		}
	}

	if bodyText != "" {
		return bodyText, nil
	}
	return bodyHTML, nil
}

// formatAddresses renders an envelope address list as a comma-separated
// list of addr-specs, dropping entries without a mailbox or host.
func formatAddresses(addrs []*imap.Address) string {
	var parts []string
	for _, a := range addrs {
		if a == nil || a.MailboxName == "" || a.HostName == "" {
			continue
		}
		parts = append(parts, a.MailboxName+"@"+a.HostName)
	}
	return strings.Join(parts, ", ")
}
