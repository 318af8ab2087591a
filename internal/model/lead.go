// Package model holds the persisted domain types shared by the decision
// pipeline: leads, the singleton agent configuration row and the
// append-only action log.
package model

import (
	"fmt"
	"strings"
	"time"
)

// LeadStatus is the outreach state of a lead.
type LeadStatus string

const (
	StatusNew           LeadStatus = "new"
	StatusContacted     LeadStatus = "contacted"
	StatusFollowUpDue   LeadStatus = "follow_up_due"
	StatusReplied       LeadStatus = "replied"
	StatusInterested    LeadStatus = "interested"
	StatusNotInterested LeadStatus = "not_interested"
	StatusBounced       LeadStatus = "bounced"
	StatusError         LeadStatus = "error"
	StatusClosed        LeadStatus = "closed"
)

// AllStatuses lists every lead status in lifecycle order.
var AllStatuses = []LeadStatus{
	StatusNew,
	StatusContacted,
	StatusFollowUpDue,
	StatusReplied,
	StatusInterested,
	StatusNotInterested,
	StatusBounced,
	StatusError,
	StatusClosed,
}

// ParseLeadStatus converts a stored string into a LeadStatus.
func ParseLeadStatus(s string) (LeadStatus, error) {
	st := LeadStatus(strings.ToLower(strings.TrimSpace(s)))
	for _, known := range AllStatuses {
		if st == known {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown lead status %q", s)
}

// Terminal reports whether no outbound action may follow this status.
func (s LeadStatus) Terminal() bool {
	switch s {
	case StatusBounced, StatusReplied, StatusInterested, StatusNotInterested, StatusClosed:
		return true
	}
	return false
}

func (s LeadStatus) String() string { return string(s) }

// Lead is a prospective recipient plus the agent's per-lead bookkeeping.
type Lead struct {
	ID        int64  `json:"id" yaml:"id"`
	Email     string `json:"email" yaml:"email"`
	FirstName string `json:"first_name,omitempty" yaml:"first_name,omitempty"`
	LastName  string `json:"last_name,omitempty" yaml:"last_name,omitempty"`
	Company   string `json:"company,omitempty" yaml:"company,omitempty"`
	Industry  string `json:"industry,omitempty" yaml:"industry,omitempty"`

	AgentEnabled bool       `json:"agent_enabled" yaml:"agent_enabled"`
	AgentPaused  bool       `json:"agent_paused" yaml:"agent_paused"`
	Status       LeadStatus `json:"status" yaml:"status"`

	NextCheckAt  *time.Time `json:"next_check_at,omitempty" yaml:"next_check_at,omitempty"`
	LastActionAt *time.Time `json:"last_action_at,omitempty" yaml:"last_action_at,omitempty"`

	FollowUpCount        int `json:"follow_up_count" yaml:"follow_up_count"`
	MaxFollowUps         int `json:"max_follow_ups" yaml:"max_follow_ups"`
	DaysBetweenFollowups int `json:"days_between_followups" yaml:"days_between_followups"`

	PriorityScore   float64 `json:"priority_score" yaml:"priority_score"`
	EngagementScore float64 `json:"engagement_score" yaml:"engagement_score"`

	BounceCount      int    `json:"bounce_count" yaml:"bounce_count"`
	ErrorCount       int    `json:"error_count" yaml:"error_count"`
	LastErrorMessage string `json:"last_error_message,omitempty" yaml:"last_error_message,omitempty"`

	Version   int64     `json:"version" yaml:"version"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

const (
	DefaultMaxFollowUps         = 3
	DefaultDaysBetweenFollowups = 3
)

// NewLead returns a lead with the defaults applied to a freshly imported row.
func NewLead(email string) Lead {
	return Lead{
		Email:                strings.TrimSpace(email),
		AgentEnabled:         true,
		Status:               StatusNew,
		MaxFollowUps:         DefaultMaxFollowUps,
		DaysBetweenFollowups: DefaultDaysBetweenFollowups,
	}
}

// FullName joins first and last name, skipping empty parts.
func (l Lead) FullName() string {
	return strings.TrimSpace(l.FirstName + " " + l.LastName)
}

// Due reports whether next_check_at is unset or not in the future.
func (l Lead) Due(now time.Time) bool {
	return l.NextCheckAt == nil || !l.NextCheckAt.After(now)
}

// FollowUpInterval converts DaysBetweenFollowups into a duration.
func (l Lead) FollowUpInterval() time.Duration {
	return time.Duration(l.DaysBetweenFollowups) * 24 * time.Hour
}

// Clone returns a deep copy; pointer fields are duplicated so the copy can be
// mutated without touching the original.
func (l Lead) Clone() Lead {
	c := l
	if l.NextCheckAt != nil {
		t := *l.NextCheckAt
		c.NextCheckAt = &t
	}
	if l.LastActionAt != nil {
		t := *l.LastActionAt
		c.LastActionAt = &t
	}
	return c
}

// TimePtr is a small helper for optional timestamps.
func TimePtr(t time.Time) *time.Time {
	return &t
}
