package model

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// RunState is derived from the IsRunning / IsPaused pair.
type RunState string

const (
	RunStateStopped RunState = "stopped"
	RunStateRunning RunState = "running"
	RunStatePaused  RunState = "paused"
)

// PauseReason explains why IsPaused was set.
type PauseReason string

const (
	PauseReasonNone      PauseReason = ""
	PauseReasonManual    PauseReason = "manual"
	PauseReasonErrorRate PauseReason = "error_rate"
)

// AgentConfig is the single persisted row (id = 1) holding run mode,
// budgets, the business-hours window, safety settings and lifetime totals.
type AgentConfig struct {
	IsRunning   bool        `json:"is_running" yaml:"is_running"`
	IsPaused    bool        `json:"is_paused" yaml:"is_paused"`
	PauseReason PauseReason `json:"pause_reason,omitempty" yaml:"pause_reason,omitempty"`

	DailyEmailLimit    int       `json:"daily_email_limit" yaml:"daily_email_limit"`
	HourlyEmailLimit   int       `json:"hourly_email_limit" yaml:"hourly_email_limit"`
	EmailsSentToday    int       `json:"emails_sent_today" yaml:"emails_sent_today"`
	EmailsSentThisHour int       `json:"emails_sent_this_hour" yaml:"emails_sent_this_hour"`
	LastResetDate      string    `json:"last_reset_date" yaml:"last_reset_date"`
	LastHourReset      time.Time `json:"last_hour_reset" yaml:"last_hour_reset"`

	BusinessHoursStart   string `json:"business_hours_start" yaml:"business_hours_start"`
	BusinessHoursEnd     string `json:"business_hours_end" yaml:"business_hours_end"`
	Timezone             string `json:"timezone" yaml:"timezone"`
	ActiveDays           []int  `json:"active_days" yaml:"active_days"`
	RespectBusinessHours bool   `json:"respect_business_hours" yaml:"respect_business_hours"`

	ErrorRateThreshold   float64       `json:"error_rate_threshold" yaml:"error_rate_threshold"`
	SafetyWindowSize     int           `json:"safety_window_size" yaml:"safety_window_size"`
	SafetyWindowDuration time.Duration `json:"safety_window_duration" yaml:"safety_window_duration"`
	SafetyMinOutcomes    int           `json:"safety_min_outcomes" yaml:"safety_min_outcomes"`
	SafetyWindowStart    *time.Time    `json:"safety_window_start,omitempty" yaml:"safety_window_start,omitempty"`
	PauseOnHighErrorRate bool          `json:"pause_on_high_error_rate" yaml:"pause_on_high_error_rate"`
	TrippedAt            *time.Time    `json:"tripped_at,omitempty" yaml:"tripped_at,omitempty"`

	AgentCheckInterval time.Duration `json:"agent_check_interval" yaml:"agent_check_interval"`
	InboxCheckInterval time.Duration `json:"inbox_check_interval" yaml:"inbox_check_interval"`
	BatchSize          int           `json:"batch_size" yaml:"batch_size"`
	MaxLeadErrors      int           `json:"max_lead_errors" yaml:"max_lead_errors"`

	TotalEmailsSent      int64 `json:"total_emails_sent" yaml:"total_emails_sent"`
	TotalRepliesReceived int64 `json:"total_replies_received" yaml:"total_replies_received"`
	TotalErrors          int64 `json:"total_errors" yaml:"total_errors"`

	AgentStartedAt *time.Time `json:"agent_started_at,omitempty" yaml:"agent_started_at,omitempty"`
	AgentStoppedAt *time.Time `json:"agent_stopped_at,omitempty" yaml:"agent_stopped_at,omitempty"`
	LastAgentRunAt *time.Time `json:"last_agent_run_at,omitempty" yaml:"last_agent_run_at,omitempty"`
	NextAgentRunAt *time.Time `json:"next_agent_run_at,omitempty" yaml:"next_agent_run_at,omitempty"`

	Version   int64     `json:"version" yaml:"version"`
	UpdatedAt time.Time `json:"updated_at" yaml:"updated_at"`
}

// Defaults mirror the values the agent has always shipped with.
const (
	DefaultDailyEmailLimit    = 50
	DefaultHourlyEmailLimit   = 10
	DefaultBusinessHoursStart = "09:00"
	DefaultBusinessHoursEnd   = "17:00"
	DefaultTimezone           = "America/New_York"
	DefaultErrorRateThreshold = 10.0
	DefaultSafetyWindowSize   = 50
	DefaultSafetyMinOutcomes  = 0
	DefaultAgentCheckInterval = 5 * time.Minute
	DefaultInboxCheckInterval = 15 * time.Minute
	DefaultBatchSize          = 20
	DefaultMaxLeadErrors      = 3
)

// DefaultActiveDays is Monday through Friday (ISO weekdays).
var DefaultActiveDays = []int{1, 2, 3, 4, 5}

// DefaultAgentConfig returns a stopped agent with default budgets and window.
func DefaultAgentConfig() AgentConfig {
	return AgentConfig{
		DailyEmailLimit:      DefaultDailyEmailLimit,
		HourlyEmailLimit:     DefaultHourlyEmailLimit,
		BusinessHoursStart:   DefaultBusinessHoursStart,
		BusinessHoursEnd:     DefaultBusinessHoursEnd,
		Timezone:             DefaultTimezone,
		ActiveDays:           append([]int(nil), DefaultActiveDays...),
		RespectBusinessHours: true,
		ErrorRateThreshold:   DefaultErrorRateThreshold,
		SafetyWindowSize:     DefaultSafetyWindowSize,
		SafetyMinOutcomes:    DefaultSafetyMinOutcomes,
		PauseOnHighErrorRate: true,
		AgentCheckInterval:   DefaultAgentCheckInterval,
		InboxCheckInterval:   DefaultInboxCheckInterval,
		BatchSize:            DefaultBatchSize,
		MaxLeadErrors:        DefaultMaxLeadErrors,
	}
}

// RunState derives the operator-facing state.
func (c AgentConfig) RunState() RunState {
	switch {
	case !c.IsRunning:
		return RunStateStopped
	case c.IsPaused:
		return RunStatePaused
	default:
		return RunStateRunning
	}
}

// Location loads the configured IANA zone.
func (c AgentConfig) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

// Validate returns every configuration problem found; an empty slice means
// the row may be persisted.
func (c AgentConfig) Validate() []error {
	var errs []error

	if c.DailyEmailLimit <= 0 {
		errs = append(errs, fmt.Errorf("daily_email_limit must be > 0 (got %d)", c.DailyEmailLimit))
	}
	if c.HourlyEmailLimit <= 0 {
		errs = append(errs, fmt.Errorf("hourly_email_limit must be > 0 (got %d)", c.HourlyEmailLimit))
	}

	start, errStart := ParseClock(c.BusinessHoursStart)
	if errStart != nil {
		errs = append(errs, fmt.Errorf("business_hours_start: %w", errStart))
	}
	end, errEnd := ParseClock(c.BusinessHoursEnd)
	if errEnd != nil {
		errs = append(errs, fmt.Errorf("business_hours_end: %w", errEnd))
	}
	if errStart == nil && errEnd == nil && start >= end {
		errs = append(errs, fmt.Errorf("business_hours_start (%s) must be before business_hours_end (%s)",
			c.BusinessHoursStart, c.BusinessHoursEnd))
	}

	if _, err := c.Location(); err != nil {
		errs = append(errs, err)
	}
	if len(c.ActiveDays) == 0 {
		errs = append(errs, errors.New("active_days must not be empty"))
	}
	for _, d := range c.ActiveDays {
		if d < 1 || d > 7 {
			errs = append(errs, fmt.Errorf("active_days contains %d (expected ISO weekday 1..7)", d))
		}
	}

	if c.ErrorRateThreshold < 0 || c.ErrorRateThreshold > 100 {
		errs = append(errs, fmt.Errorf("error_rate_threshold must be within [0, 100] (got %v)", c.ErrorRateThreshold))
	}
	if c.SafetyWindowSize <= 0 {
		errs = append(errs, fmt.Errorf("safety_window_size must be > 0 (got %d)", c.SafetyWindowSize))
	}
	if c.SafetyWindowDuration < 0 {
		errs = append(errs, fmt.Errorf("safety_window_duration must not be negative"))
	}
	if c.SafetyMinOutcomes < 0 {
		errs = append(errs, fmt.Errorf("safety_min_outcomes must not be negative"))
	}
	if c.AgentCheckInterval <= 0 {
		errs = append(errs, fmt.Errorf("agent_check_interval must be > 0"))
	}
	if c.BatchSize <= 0 {
		errs = append(errs, fmt.Errorf("batch_size must be > 0 (got %d)", c.BatchSize))
	}
	if c.MaxLeadErrors < 0 {
		errs = append(errs, fmt.Errorf("max_lead_errors must not be negative"))
	}

	return errs
}

// Clone returns a deep copy.
func (c AgentConfig) Clone() AgentConfig {
	out := c
	out.ActiveDays = append([]int(nil), c.ActiveDays...)
	for _, p := range []**time.Time{
		&out.SafetyWindowStart, &out.TrippedAt, &out.AgentStartedAt,
		&out.AgentStoppedAt, &out.LastAgentRunAt, &out.NextAgentRunAt,
	} {
		if *p != nil {
			t := **p
			*p = &t
		}
	}
	return out
}

// ParseClock parses "HH:MM" into minutes since midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock time %q (expected HH:MM)", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in %q", s)
	}
	if h == 24 && m != 0 {
		return 0, fmt.Errorf("invalid clock time %q", s)
	}
	return h*60 + m, nil
}

// FormatDays renders ISO weekdays as a comma separated list for storage.
func FormatDays(days []int) string {
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// ParseDays is the inverse of FormatDays.
func ParseDays(s string) ([]int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var days []int
	for _, p := range strings.Split(s, ",") {
		d, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid weekday %q", p)
		}
		days = append(days, d)
	}
	return days, nil
}
