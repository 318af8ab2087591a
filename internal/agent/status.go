package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/safety"
	"github.com/aatumaykin/leadbot/internal/store"
	"github.com/aatumaykin/leadbot/internal/timegate"
)

// Status is the operator view of the agent.
type Status struct {
	State       model.RunState    `json:"state" yaml:"state"`
	PauseReason model.PauseReason `json:"pause_reason,omitempty" yaml:"pause_reason,omitempty"`

	EmailsSentToday    int `json:"emails_sent_today" yaml:"emails_sent_today"`
	EmailsSentThisHour int `json:"emails_sent_this_hour" yaml:"emails_sent_this_hour"`
	DailyRemaining     int `json:"daily_remaining" yaml:"daily_remaining"`
	HourlyRemaining    int `json:"hourly_remaining" yaml:"hourly_remaining"`

	InBusinessHours bool       `json:"in_business_hours" yaml:"in_business_hours"`
	NextOpening     *time.Time `json:"next_opening,omitempty" yaml:"next_opening,omitempty"`

	ErrorRate     float64    `json:"error_rate_percent" yaml:"error_rate_percent"`
	WindowTotal   int        `json:"window_outcomes" yaml:"window_outcomes"`
	TrippedAt     *time.Time `json:"tripped_at,omitempty" yaml:"tripped_at,omitempty"`
	OracleBreaker string     `json:"oracle_breaker" yaml:"oracle_breaker"`
	SendBreaker   string     `json:"transport_breaker" yaml:"transport_breaker"`

	LastRunAt  *time.Time `json:"last_run_at,omitempty" yaml:"last_run_at,omitempty"`
	NextRunAt  *time.Time `json:"next_run_at,omitempty" yaml:"next_run_at,omitempty"`
	LastSendAt *time.Time `json:"last_send_at,omitempty" yaml:"last_send_at,omitempty"`

	LeadsByStatus map[model.LeadStatus]int `json:"leads_by_status" yaml:"leads_by_status"`
	Config        model.AgentConfig        `json:"config" yaml:"config"`
}

// Status reads the current state. It never mutates the stored row.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	now := r.now()
	cfg, err := r.store.LoadAgentConfig(ctx)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	capacity := r.limiter.Remaining(cfg, now)
	// Remaining rolls a copy over; show the rolled counters too.
	rolled := cfg.Clone()
	r.limiter.Rollover(&rolled, now)

	st := Status{
		State:              cfg.RunState(),
		PauseReason:        cfg.PauseReason,
		EmailsSentToday:    rolled.EmailsSentToday,
		EmailsSentThisHour: rolled.EmailsSentThisHour,
		DailyRemaining:     max(capacity.DailyRemaining, 0),
		HourlyRemaining:    max(capacity.HourlyRemaining, 0),
		TrippedAt:          cfg.TrippedAt,
		OracleBreaker:      r.engine.Breaker().State().String(),
		SendBreaker:        r.transportBr.State().String(),
		LastRunAt:          cfg.LastAgentRunAt,
		NextRunAt:          cfg.NextAgentRunAt,
		Config:             cfg,
	}

	if ok, _, err := r.gate.Check(cfg, now); err == nil {
		st.InBusinessHours = ok
		if !ok {
			if w, err := timegate.FromConfig(cfg); err == nil {
				if next := w.NextOpening(now); !next.IsZero() {
					st.NextOpening = &next
				}
			}
		}
	}

	w, err := safety.NewController(r.store).Load(ctx, cfg, now)
	if err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	w.Prune(now)
	st.ErrorRate = w.Rate()
	st.WindowTotal = w.Total()

	if st.LastSendAt, err = r.store.LastSendAt(ctx); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	if st.LeadsByStatus, err = r.store.CountLeadsByStatus(ctx); err != nil {
		return Status{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	r.observer.AgentState(st.State)
	r.observer.BudgetUsed(rolled)
	r.observer.ErrorRate(st.ErrorRate)
	return st, nil
}

// Statistics summarizes activity since a point in time.
type Statistics struct {
	Since         time.Time                `json:"since" yaml:"since"`
	Actions       []store.ActionCount      `json:"actions" yaml:"actions"`
	LeadsByStatus map[model.LeadStatus]int `json:"leads_by_status" yaml:"leads_by_status"`

	Sent        int     `json:"sent" yaml:"sent"`
	Failed      int     `json:"failed" yaml:"failed"`
	Skipped     int     `json:"skipped" yaml:"skipped"`
	Replies     int     `json:"replies" yaml:"replies"`
	SuccessRate float64 `json:"success_rate_percent" yaml:"success_rate_percent"`

	TotalEmailsSent      int64 `json:"total_emails_sent" yaml:"total_emails_sent"`
	TotalRepliesReceived int64 `json:"total_replies_received" yaml:"total_replies_received"`
	TotalErrors          int64 `json:"total_errors" yaml:"total_errors"`
}

// Statistics groups the action log since the given time. A zero since
// means the last 7 days.
func (r *Runner) Statistics(ctx context.Context, since time.Time) (Statistics, error) {
	if since.IsZero() {
		since = r.now().Add(-7 * 24 * time.Hour)
	}
	cfg, err := r.store.LoadAgentConfig(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	counts, err := r.store.ActionStats(ctx, since)
	if err != nil {
		return Statistics{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}
	byStatus, err := r.store.CountLeadsByStatus(ctx)
	if err != nil {
		return Statistics{}, fmt.Errorf("%w: %w", ErrStoreUnavailable, err)
	}

	st := Statistics{
		Since:                since,
		Actions:              counts,
		LeadsByStatus:        byStatus,
		TotalEmailsSent:      cfg.TotalEmailsSent,
		TotalRepliesReceived: cfg.TotalRepliesReceived,
		TotalErrors:          cfg.TotalErrors,
	}
	for _, c := range counts {
		switch {
		case c.Outcome == model.OutcomeSent:
			st.Sent += c.Count
		case c.Outcome.IsError():
			st.Failed += c.Count
		case c.Outcome == model.OutcomeSkipped:
			st.Skipped += c.Count
		case c.Outcome.IsReply():
			st.Replies += c.Count
		}
	}
	if attempts := st.Sent + st.Failed; attempts > 0 {
		st.SuccessRate = float64(st.Sent) * 100 / float64(attempts)
	}
	return st, nil
}
