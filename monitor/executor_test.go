package monitor

import (
	"context"
	"errors"
	"io"
	"log"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"mailrules/mailsource"
	"mailrules/models"
)

func testMessage() mailsource.Message {
	return mailsource.Message{
		ID:      "<orig@example>",
		From:    "alice@vendor.example",
		To:      "me@corp.example",
		Subject: "contract draft",
		Body:    "Attached is the draft.",
		Date:    time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
	}
}

func newTestExecutor(adapter mailsource.Adapter) *Executor {
	return NewExecutor(adapter, log.New(io.Discard, "", 0))
}

func TestExecutorReplyThreadsUnderOriginal(t *testing.T) {
	adapter := newFakeAdapter()
	exec := newTestExecutor(adapter)

	rule := models.Rule{
		Model:   gorm.Model{ID: 1},
		Actions: []models.RuleAction{{Type: models.ActionReply, Template: "Thanks, will review."}},
	}
	failures := exec.RunActions(context.Background(), rule, testMessage())
	require.Empty(t, failures)

	require.Len(t, adapter.sent, 1)
	out := adapter.sent[0]
	assert.Equal(t, "alice@vendor.example", out.To)
	assert.Equal(t, "Re: contract draft", out.Subject)
	assert.Equal(t, "Thanks, will review.", out.Body)
	assert.Equal(t, "<orig@example>", out.InReplyTo)
}

func TestExecutorForwardCarriesOriginal(t *testing.T) {
	adapter := newFakeAdapter()
	exec := newTestExecutor(adapter)

	rule := models.Rule{
		Model:   gorm.Model{ID: 2},
		Actions: []models.RuleAction{{Type: models.ActionForward, To: "legal@corp.example"}},
	}
	failures := exec.RunActions(context.Background(), rule, testMessage())
	require.Empty(t, failures)

	require.Len(t, adapter.sent, 1)
	out := adapter.sent[0]
	assert.Equal(t, "legal@corp.example", out.To)
	assert.Equal(t, "Fwd: contract draft", out.Subject)
	assert.Empty(t, out.InReplyTo)
	assert.Contains(t, out.Body, "---------- Forwarded message ----------")
	assert.Contains(t, out.Body, "From: alice@vendor.example")
	assert.Contains(t, out.Body, "Subject: contract draft")
	assert.Contains(t, out.Body, "Attached is the draft.")
}

func TestExecutorArchiveAndLabel(t *testing.T) {
	adapter := newFakeAdapter()
	exec := newTestExecutor(adapter)

	msg := testMessage()
	rule := models.Rule{
		Model: gorm.Model{ID: 3},
		Actions: []models.RuleAction{
			{Type: models.ActionLabel, Label: "Contracts"},
			{Type: models.ActionArchive},
		},
	}
	failures := exec.RunActions(context.Background(), rule, msg)
	require.Empty(t, failures)

	assert.Equal(t, []string{"Contracts"}, adapter.labeled[msg.ID])
	assert.Equal(t, []string{msg.ID}, adapter.archived)
}

func TestExecutorContinuesPastFailures(t *testing.T) {
	adapter := newFakeAdapter()
	adapter.sendErr = errors.New("smtp unavailable")
	exec := newTestExecutor(adapter)

	msg := testMessage()
	rule := models.Rule{
		Model: gorm.Model{ID: 9},
		Actions: []models.RuleAction{
			{Type: models.ActionReply, Template: "auto"},
			{Type: models.ActionArchive},
			{Type: "shred"},
		},
	}
	failures := exec.RunActions(context.Background(), rule, msg)
	require.Len(t, failures, 2)

	assert.Equal(t, uint(9), failures[0].RuleID)
	assert.Equal(t, models.ActionReply, failures[0].ActionType)
	assert.ErrorContains(t, failures[0], "smtp unavailable")
	assert.Equal(t, "shred", failures[1].ActionType)

	// The archive between the two failures still ran.
	assert.Equal(t, []string{msg.ID}, adapter.archived)
}
