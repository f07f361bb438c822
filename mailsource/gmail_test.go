package mailsource

import (
	"encoding/base64"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/gmail/v1"
)

func b64url(s string) string {
	return base64.URLEncoding.EncodeToString([]byte(s))
}

func TestParseGmailMessageMultipart(t *testing.T) {
	msg := &gmail.Message{
		Id:           "18f2c3a",
		InternalDate: time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC).UnixMilli(),
		Payload: &gmail.MessagePart{
			MimeType: "multipart/alternative",
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "Alice <alice@vendor.example>"},
				{Name: "To", Value: "me@corp.example"},
				{Name: "Subject", Value: "Invoice #4521"},
			},
			Parts: []*gmail.MessagePart{
				{MimeType: "text/html", Body: &gmail.MessagePartBody{Data: b64url("<p>ignored</p>")}},
				{MimeType: "text/plain", Body: &gmail.MessagePartBody{Data: b64url("plain body")}},
			},
		},
	}

	m := parseGmailMessage(msg)
	require.NoError(t, m.ParseErr)
	assert.Equal(t, "18f2c3a", m.ID)
	assert.Equal(t, "Alice <alice@vendor.example>", m.From)
	assert.Equal(t, "me@corp.example", m.To)
	assert.Equal(t, "Invoice #4521", m.Subject)
	assert.Equal(t, "plain body", m.Body)
	assert.True(t, m.Date.Equal(time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC)))
}

func TestParseGmailMessageSinglePart(t *testing.T) {
	msg := &gmail.Message{
		Id: "abc",
		Payload: &gmail.MessagePart{
			MimeType: "text/plain",
			Headers:  []*gmail.MessagePartHeader{{Name: "Subject", Value: "hi"}},
			Body:     &gmail.MessagePartBody{Data: b64url("just text")},
		},
	}

	m := parseGmailMessage(msg)
	require.NoError(t, m.ParseErr)
	assert.Equal(t, "just text", m.Body)
}

func TestParseGmailMessageNoPayload(t *testing.T) {
	m := parseGmailMessage(&gmail.Message{Id: "empty"})
	assert.Error(t, m.ParseErr)
	assert.Equal(t, "empty", m.ID)
}

func TestParseGmailMessageKeepsHeadersOnBodyError(t *testing.T) {
	msg := &gmail.Message{
		Id: "bad",
		Payload: &gmail.MessagePart{
			Headers: []*gmail.MessagePartHeader{
				{Name: "From", Value: "alice@vendor.example"},
				{Name: "Subject", Value: "broken"},
			},
			Body: &gmail.MessagePartBody{Data: "!!not base64!!"},
		},
	}

	m := parseGmailMessage(msg)
	assert.Error(t, m.ParseErr)
	assert.Equal(t, "alice@vendor.example", m.From)
	assert.Equal(t, "broken", m.Subject)
	assert.Empty(t, m.Body)
}

func TestDecodeGmailData(t *testing.T) {
	// Standard padding.
	got, err := decodeGmailData(base64.URLEncoding.EncodeToString([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	// Gmail sometimes omits padding.
	got, err = decodeGmailData(base64.RawURLEncoding.EncodeToString([]byte("hello")))
	require.NoError(t, err)
	assert.Equal(t, "hello", got)

	_, err = decodeGmailData("%%%")
	assert.Error(t, err)
}
