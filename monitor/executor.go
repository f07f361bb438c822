package monitor

import (
	"context"
	"fmt"
	"log"

	"mailrules/mailsource"
	"mailrules/models"
)

// Executor performs the side-effecting operations of matched rules through
// the monitor's transport. Actions run in declared order and each failure
// is reported independently; one failing action never blocks the rest.
type Executor struct {
	adapter mailsource.Adapter
	logger  *log.Logger
}

func NewExecutor(adapter mailsource.Adapter, logger *log.Logger) *Executor {
	return &Executor{adapter: adapter, logger: logger}
}

// ActionError ties a failure to the rule and action that produced it.
type ActionError struct {
	RuleID     uint
	ActionType string
	Err        error
}

func (e *ActionError) Error() string {
	return fmt.Sprintf("rule %d action %s: %v", e.RuleID, e.ActionType, e.Err)
}

func (e *ActionError) Unwrap() error { return e.Err }

// RunActions executes every action of the rule against the message,
// returning one ActionError per failure.
func (e *Executor) RunActions(ctx context.Context, rule models.Rule, msg mailsource.Message) []*ActionError {
	var failures []*ActionError
	for _, action := range rule.Actions {
		if err := e.execute(ctx, action, msg); err != nil {
			e.logger.Printf("action %s of rule %d failed for message %s: %v",
				action.Type, rule.ID, msg.ID, err)
			failures = append(failures, &ActionError{
				RuleID:     rule.ID,
				ActionType: action.Type,
				Err:        err,
			})
		}
	}
	return failures
}

func (e *Executor) execute(ctx context.Context, action models.RuleAction, msg mailsource.Message) error {
	switch action.Type {
	case models.ActionReply:
		return e.adapter.Send(ctx, mailsource.Outbound{
			To:        msg.From,
			Subject:   "Re: " + msg.Subject,
			Body:      action.Template,
			InReplyTo: msg.ID,
		})

	case models.ActionForward:
		return e.adapter.Send(ctx, mailsource.Outbound{
			To:      action.To,
			Subject: "Fwd: " + msg.Subject,
			Body:    forwardBody(msg),
		})

	case models.ActionArchive:
		return e.adapter.Archive(ctx, msg)

	case models.ActionLabel:
		return e.adapter.ApplyLabel(ctx, msg, action.Label)

	default:
		return fmt.Errorf("unknown action type %q", action.Type)
	}
}

func forwardBody(msg mailsource.Message) string {
	return "---------- Forwarded message ----------\n" +
		"From: " + msg.From + "\n" +
		"Date: " + msg.Date.String() + "\n" +
		"Subject: " + msg.Subject + "\n" +
		"To: " + msg.To + "\n\n" +
		msg.Body
}
