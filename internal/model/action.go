package model

import "time"

// ActionType identifies what the agent did (or considered doing) for a lead.
type ActionType string

const (
	ActionSendInitial  ActionType = "send_initial"
	ActionSendFollowUp ActionType = "send_followup"
	ActionSkip         ActionType = "skip"
	ActionError        ActionType = "error"
	ActionReply        ActionType = "reply"
	ActionReset        ActionType = "reset"
	ActionControl      ActionType = "control"
)

// IsSend reports whether the action reaches the transport.
func (a ActionType) IsSend() bool {
	return a == ActionSendInitial || a == ActionSendFollowUp
}

// Outcome is the result recorded for an action.
type Outcome string

const (
	OutcomeSent             Outcome = "sent"
	OutcomeTransientFailure Outcome = "transient_failure"
	OutcomePermanentFailure Outcome = "permanent_failure"
	OutcomeSkipped          Outcome = "skipped"
	OutcomeReplied          Outcome = "replied"
	OutcomeInterested       Outcome = "interested"
	OutcomeNotInterested    Outcome = "not_interested"
	OutcomeApplied          Outcome = "applied"
)

// IsSendResult reports whether the outcome came back from the transport and
// therefore belongs in the safety window.
func (o Outcome) IsSendResult() bool {
	return o == OutcomeSent || o == OutcomeTransientFailure || o == OutcomePermanentFailure
}

// IsError reports whether a send result counts against the error rate.
func (o Outcome) IsError() bool {
	return o == OutcomeTransientFailure || o == OutcomePermanentFailure
}

// IsReply reports whether the outcome classifies an inbound reply.
func (o Outcome) IsReply() bool {
	return o == OutcomeReplied || o == OutcomeInterested || o == OutcomeNotInterested
}

// ActionLogEntry is one append-only audit record.
type ActionLogEntry struct {
	ID                       int64             `json:"id" yaml:"id"`
	RunID                    string            `json:"run_id,omitempty" yaml:"run_id,omitempty"`
	ActionType               ActionType        `json:"action_type" yaml:"action_type"`
	Outcome                  Outcome           `json:"outcome" yaml:"outcome"`
	LeadID                   int64             `json:"lead_id,omitempty" yaml:"lead_id,omitempty"`
	LeadEmail                string            `json:"lead_email,omitempty" yaml:"lead_email,omitempty"`
	DecisionReason           string            `json:"decision_reason,omitempty" yaml:"decision_reason,omitempty"`
	Metadata                 map[string]string `json:"metadata,omitempty" yaml:"metadata,omitempty"`
	ErrorMessage             string            `json:"error_message,omitempty" yaml:"error_message,omitempty"`
	ExecutionTime            time.Duration     `json:"execution_time" yaml:"execution_time"`
	EmailsSentBefore         int               `json:"emails_sent_before" yaml:"emails_sent_before"`
	EmailsSentThisHourBefore int               `json:"emails_sent_this_hour_before" yaml:"emails_sent_this_hour_before"`
	CreatedAt                time.Time         `json:"created_at" yaml:"created_at"`
}

// TimedOutcome is the projection of an action log entry the safety window
// needs.
type TimedOutcome struct {
	Outcome Outcome
	At      time.Time
}
