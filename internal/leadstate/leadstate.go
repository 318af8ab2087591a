// Package leadstate is the lead lifecycle: a total transition function over
// (status, action, outcome). Unknown combinations are rejected rather than
// silently ignored.
package leadstate

import (
	"errors"
	"fmt"
	"time"

	"github.com/aatumaykin/leadbot/internal/model"
)

var (
	// ErrInvalidTransition is returned for a (status, action, outcome)
	// combination that has no rule.
	ErrInvalidTransition = errors.New("invalid lead transition")
	// ErrTerminalLead is returned when a send is applied to a terminal lead.
	ErrTerminalLead = errors.New("lead is in a terminal status")
)

// Event is what happened to the lead.
type Event struct {
	Action  model.ActionType
	Outcome model.Outcome
	Error   string // transport error text for failures
}

// Options carries agent-wide knobs that affect transitions.
type Options struct {
	// MaxLeadErrors moves a lead to status error after that many transient
	// failures. Zero disables the cap.
	MaxLeadErrors int
}

// Apply returns the lead after ev. The input is never modified.
func Apply(lead model.Lead, ev Event, now time.Time, opts Options) (model.Lead, error) {
	next := lead.Clone()

	switch {
	case ev.Action.IsSend():
		return applySend(next, ev, now, opts)
	case ev.Action == model.ActionReply:
		return applyReply(next, ev)
	case ev.Action == model.ActionReset:
		return applyReset(next, ev, now)
	}
	return lead, invalid(lead, ev)
}

func applySend(l model.Lead, ev Event, now time.Time, opts Options) (model.Lead, error) {
	if l.Status.Terminal() {
		return l, fmt.Errorf("%w: %s on %s", ErrTerminalLead, ev.Action, l.Status)
	}
	if l.Status == model.StatusError {
		return l, invalid(l, ev)
	}

	switch ev.Outcome {
	case model.OutcomeSent:
		return applySent(l, ev, now)

	case model.OutcomePermanentFailure:
		l.Status = model.StatusBounced
		l.BounceCount++
		l.AgentEnabled = false
		l.NextCheckAt = nil
		l.LastActionAt = model.TimePtr(now)
		l.LastErrorMessage = ev.Error
		return l, nil

	case model.OutcomeTransientFailure:
		l.ErrorCount++
		l.LastErrorMessage = ev.Error
		if opts.MaxLeadErrors > 0 && l.ErrorCount >= opts.MaxLeadErrors {
			l.Status = model.StatusError
			l.NextCheckAt = nil
		}
		return l, nil
	}
	return l, invalid(l, ev)
}

func applySent(l model.Lead, ev Event, now time.Time) (model.Lead, error) {
	switch {
	case ev.Action == model.ActionSendInitial && l.Status == model.StatusNew:
		l.Status = model.StatusContacted
		l.FollowUpCount = 0
		l.LastActionAt = model.TimePtr(now)
		l.NextCheckAt = model.TimePtr(now.Add(l.FollowUpInterval()))
		return l, nil

	case ev.Action == model.ActionSendFollowUp &&
		(l.Status == model.StatusContacted || l.Status == model.StatusFollowUpDue):
		if l.FollowUpCount >= l.MaxFollowUps {
			return l, fmt.Errorf("%w: follow-up cap %d already reached", ErrInvalidTransition, l.MaxFollowUps)
		}
		l.FollowUpCount++
		l.LastActionAt = model.TimePtr(now)
		if l.FollowUpCount >= l.MaxFollowUps {
			l.Status = model.StatusClosed
			l.NextCheckAt = nil
			return l, nil
		}
		l.Status = model.StatusFollowUpDue
		l.NextCheckAt = model.TimePtr(now.Add(l.FollowUpInterval()))
		return l, nil
	}
	return l, invalid(l, ev)
}

// applyReply classifies an inbound reply. Any status but bounced accepts it,
// including a lead with a follow-up in flight.
func applyReply(l model.Lead, ev Event) (model.Lead, error) {
	if l.Status == model.StatusBounced {
		return l, fmt.Errorf("%w: reply on bounced lead", ErrTerminalLead)
	}
	switch ev.Outcome {
	case model.OutcomeReplied:
		l.Status = model.StatusReplied
	case model.OutcomeInterested:
		l.Status = model.StatusInterested
	case model.OutcomeNotInterested:
		l.Status = model.StatusNotInterested
	default:
		return l, invalid(l, ev)
	}
	l.NextCheckAt = nil
	return l, nil
}

// applyReset returns a lead parked in status error to the sequence it was
// in. Only successful sends set LastActionAt, so a lead without one never
// received the initial message.
func applyReset(l model.Lead, ev Event, now time.Time) (model.Lead, error) {
	if l.Status != model.StatusError || ev.Outcome != model.OutcomeApplied {
		return l, invalid(l, ev)
	}
	l.ErrorCount = 0
	l.LastErrorMessage = ""
	l.NextCheckAt = model.TimePtr(now)
	if l.LastActionAt == nil {
		l.Status = model.StatusNew
	} else {
		l.Status = model.StatusFollowUpDue
	}
	return l, nil
}

func invalid(l model.Lead, ev Event) error {
	return fmt.Errorf("%w: status=%s action=%s outcome=%s", ErrInvalidTransition, l.Status, ev.Action, ev.Outcome)
}
