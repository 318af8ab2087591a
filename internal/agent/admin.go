package agent

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aatumaykin/leadbot/internal/leadstate"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/store"
)

// Duration accepts "90s" / "5m" in JSON, YAML and TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(b []byte) error {
	v, err := time.ParseDuration(strings.TrimSpace(string(b)))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ConfigPatch is a partial update of the persisted agent configuration.
// Nil fields are left unchanged. Run state and counters are not patchable.
type ConfigPatch struct {
	DailyEmailLimit      *int      `json:"daily_email_limit,omitempty" yaml:"daily_email_limit,omitempty"`
	HourlyEmailLimit     *int      `json:"hourly_email_limit,omitempty" yaml:"hourly_email_limit,omitempty"`
	BusinessHoursStart   *string   `json:"business_hours_start,omitempty" yaml:"business_hours_start,omitempty"`
	BusinessHoursEnd     *string   `json:"business_hours_end,omitempty" yaml:"business_hours_end,omitempty"`
	Timezone             *string   `json:"timezone,omitempty" yaml:"timezone,omitempty"`
	ActiveDays           *[]int    `json:"active_days,omitempty" yaml:"active_days,omitempty"`
	RespectBusinessHours *bool     `json:"respect_business_hours,omitempty" yaml:"respect_business_hours,omitempty"`
	ErrorRateThreshold   *float64  `json:"error_rate_threshold,omitempty" yaml:"error_rate_threshold,omitempty"`
	SafetyWindowSize     *int      `json:"safety_window_size,omitempty" yaml:"safety_window_size,omitempty"`
	SafetyWindowDuration *Duration `json:"safety_window_duration,omitempty" yaml:"safety_window_duration,omitempty"`
	SafetyMinOutcomes    *int      `json:"safety_min_outcomes,omitempty" yaml:"safety_min_outcomes,omitempty"`
	PauseOnHighErrorRate *bool     `json:"pause_on_high_error_rate,omitempty" yaml:"pause_on_high_error_rate,omitempty"`
	AgentCheckInterval   *Duration `json:"agent_check_interval,omitempty" yaml:"agent_check_interval,omitempty"`
	InboxCheckInterval   *Duration `json:"inbox_check_interval,omitempty" yaml:"inbox_check_interval,omitempty"`
	BatchSize            *int      `json:"batch_size,omitempty" yaml:"batch_size,omitempty"`
	MaxLeadErrors        *int      `json:"max_lead_errors,omitempty" yaml:"max_lead_errors,omitempty"`
}

// Apply copies the set fields onto cfg and returns the names it changed.
func (p ConfigPatch) Apply(cfg *model.AgentConfig) []string {
	var changed []string
	setInt := func(name string, dst *int, v *int) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = append(changed, name)
		}
	}
	setStr := func(name string, dst *string, v *string) {
		if v != nil && *dst != *v {
			*dst = strings.TrimSpace(*v)
			changed = append(changed, name)
		}
	}
	setBool := func(name string, dst *bool, v *bool) {
		if v != nil && *dst != *v {
			*dst = *v
			changed = append(changed, name)
		}
	}
	setDur := func(name string, dst *time.Duration, v *Duration) {
		if v != nil && *dst != time.Duration(*v) {
			*dst = time.Duration(*v)
			changed = append(changed, name)
		}
	}

	setInt("daily_email_limit", &cfg.DailyEmailLimit, p.DailyEmailLimit)
	setInt("hourly_email_limit", &cfg.HourlyEmailLimit, p.HourlyEmailLimit)
	setStr("business_hours_start", &cfg.BusinessHoursStart, p.BusinessHoursStart)
	setStr("business_hours_end", &cfg.BusinessHoursEnd, p.BusinessHoursEnd)
	setStr("timezone", &cfg.Timezone, p.Timezone)
	if p.ActiveDays != nil && model.FormatDays(*p.ActiveDays) != model.FormatDays(cfg.ActiveDays) {
		cfg.ActiveDays = append([]int(nil), (*p.ActiveDays)...)
		changed = append(changed, "active_days")
	}
	setBool("respect_business_hours", &cfg.RespectBusinessHours, p.RespectBusinessHours)
	if p.ErrorRateThreshold != nil && cfg.ErrorRateThreshold != *p.ErrorRateThreshold {
		cfg.ErrorRateThreshold = *p.ErrorRateThreshold
		changed = append(changed, "error_rate_threshold")
	}
	setInt("safety_window_size", &cfg.SafetyWindowSize, p.SafetyWindowSize)
	setDur("safety_window_duration", &cfg.SafetyWindowDuration, p.SafetyWindowDuration)
	setInt("safety_min_outcomes", &cfg.SafetyMinOutcomes, p.SafetyMinOutcomes)
	setBool("pause_on_high_error_rate", &cfg.PauseOnHighErrorRate, p.PauseOnHighErrorRate)
	setDur("agent_check_interval", &cfg.AgentCheckInterval, p.AgentCheckInterval)
	setDur("inbox_check_interval", &cfg.InboxCheckInterval, p.InboxCheckInterval)
	setInt("batch_size", &cfg.BatchSize, p.BatchSize)
	setInt("max_lead_errors", &cfg.MaxLeadErrors, p.MaxLeadErrors)
	return changed
}

// ValidationError lists every problem of a rejected config update. It
// matches ErrInvalidConfig.
type ValidationError struct {
	Problems []error
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.Error()
	}
	return ErrInvalidConfig.Error() + ": " + strings.Join(msgs, "; ")
}

func (e *ValidationError) Is(target error) bool { return target == ErrInvalidConfig }

// UpdateConfig validates and persists a partial update. Invalid input
// leaves the stored row untouched and returns ErrInvalidConfig.
func (r *Runner) UpdateConfig(ctx context.Context, patch ConfigPatch) (model.AgentConfig, error) {
	now := r.now()
	var changed []string
	cfg, err := r.mutateConfig(ctx, func(tx *store.Tx, cfg *model.AgentConfig) (bool, error) {
		changed = patch.Apply(cfg)
		if len(changed) == 0 {
			return false, nil
		}
		if errs := cfg.Validate(); len(errs) > 0 {
			return false, &ValidationError{Problems: errs}
		}
		return true, control(ctx, tx, "config_update", now, map[string]string{
			"fields": strings.Join(changed, ","),
		})
	})
	if err != nil {
		return model.AgentConfig{}, fmt.Errorf("update config: %w", err)
	}
	if len(changed) > 0 {
		r.log.InfoCtx(ctx, "Agent config updated", logger.Field{Key: "fields", Value: strings.Join(changed, ",")})
	}
	return cfg, nil
}

// ResetCounters zeroes the daily and hourly send counters.
func (r *Runner) ResetCounters(ctx context.Context) (model.AgentConfig, error) {
	now := r.now()
	cfg, err := r.mutateConfig(ctx, func(tx *store.Tx, cfg *model.AgentConfig) (bool, error) {
		meta := map[string]string{
			"emails_sent_today":     strconv.Itoa(cfg.EmailsSentToday),
			"emails_sent_this_hour": strconv.Itoa(cfg.EmailsSentThisHour),
		}
		r.limiter.ResetCounters(cfg, now)
		return true, control(ctx, tx, "reset_counters", now, meta)
	})
	if err != nil {
		return model.AgentConfig{}, fmt.Errorf("reset counters: %w", err)
	}
	r.observer.BudgetUsed(cfg)
	return cfg, nil
}

// ListActions returns the audit log, newest first.
func (r *Runner) ListActions(ctx context.Context, f store.ActionFilter) ([]model.ActionLogEntry, error) {
	return r.store.ListActions(ctx, f)
}

// AddLead imports a lead.
func (r *Runner) AddLead(ctx context.Context, lead model.Lead) (model.Lead, error) {
	lead.Email = strings.ToLower(strings.TrimSpace(lead.Email))
	if lead.Email == "" || !strings.Contains(lead.Email, "@") {
		return model.Lead{}, fmt.Errorf("%w: email %q", ErrInvalidLead, lead.Email)
	}
	if lead.Status == "" {
		lead.Status = model.StatusNew
	}
	out, err := r.store.InsertLead(ctx, lead)
	if err != nil {
		return model.Lead{}, fmt.Errorf("add lead: %w", err)
	}
	r.log.InfoCtx(ctx, "Lead added", logger.Field{Key: "lead_id", Value: out.ID})
	return out, nil
}

// ListLeads returns leads for the admin surface.
func (r *Runner) ListLeads(ctx context.Context, f store.LeadFilter) ([]model.Lead, error) {
	return r.store.ListLeads(ctx, f)
}

// updateLead runs fn on the current row of lead id and writes the result
// and an audit entry in one transaction.
func (r *Runner) updateLead(ctx context.Context, id int64, action model.ActionType, outcome model.Outcome,
	reason string, fn func(l *model.Lead) error, totals store.Totals) (model.Lead, error) {
	now := r.now()
	var out model.Lead
	err := r.store.InTx(ctx, func(tx *store.Tx) error {
		cur, err := tx.GetLead(ctx, id)
		if err != nil {
			return err
		}
		next := cur.Clone()
		if err := fn(&next); err != nil {
			return err
		}
		if out, err = tx.UpdateLead(ctx, next); err != nil {
			return err
		}
		if _, err := tx.AppendAction(ctx, model.ActionLogEntry{
			ActionType:     action,
			Outcome:        outcome,
			LeadID:         cur.ID,
			LeadEmail:      cur.Email,
			DecisionReason: reason,
			Metadata:       map[string]string{"previous_status": string(cur.Status)},
			CreatedAt:      now,
		}); err != nil {
			return err
		}
		return tx.IncrementTotals(ctx, totals)
	})
	if err != nil {
		return model.Lead{}, err
	}
	r.observer.ActionRecorded(action, outcome)
	return out, nil
}

// RecordReply classifies an inbound reply. It wins over a follow-up that is
// in flight for the same lead.
func (r *Runner) RecordReply(ctx context.Context, id int64, kind model.Outcome) (model.Lead, error) {
	if !kind.IsReply() {
		return model.Lead{}, fmt.Errorf("%w: %q", ErrInvalidReply, kind)
	}
	now := r.now()
	lead, err := r.updateLead(ctx, id, model.ActionReply, kind, string(kind), func(l *model.Lead) error {
		next, err := leadstate.Apply(*l, leadstate.Event{Action: model.ActionReply, Outcome: kind}, now, leadstate.Options{})
		if err != nil {
			return err
		}
		*l = next
		return nil
	}, store.Totals{Replies: 1})
	if err != nil {
		return model.Lead{}, fmt.Errorf("record reply for lead %d: %w", id, err)
	}
	r.log.InfoCtx(ctx, "Reply recorded",
		logger.Field{Key: "lead_id", Value: id},
		logger.Field{Key: "kind", Value: string(kind)})
	return lead, nil
}

// PauseLead excludes a lead from cycles until resumed.
func (r *Runner) PauseLead(ctx context.Context, id int64) (model.Lead, error) {
	lead, err := r.updateLead(ctx, id, model.ActionControl, model.OutcomeApplied, "pause_lead", func(l *model.Lead) error {
		l.AgentPaused = true
		return nil
	}, store.Totals{})
	if err != nil {
		return model.Lead{}, fmt.Errorf("pause lead %d: %w", id, err)
	}
	return lead, nil
}

// ResumeLead makes a paused lead eligible again and due now.
func (r *Runner) ResumeLead(ctx context.Context, id int64) (model.Lead, error) {
	now := r.now()
	lead, err := r.updateLead(ctx, id, model.ActionControl, model.OutcomeApplied, "resume_lead", func(l *model.Lead) error {
		l.AgentPaused = false
		if !l.Status.Terminal() && l.Status != model.StatusError {
			l.NextCheckAt = model.TimePtr(now)
		}
		return nil
	}, store.Totals{})
	if err != nil {
		return model.Lead{}, fmt.Errorf("resume lead %d: %w", id, err)
	}
	return lead, nil
}

// ResetLead returns a lead parked in status error to its sequence.
func (r *Runner) ResetLead(ctx context.Context, id int64) (model.Lead, error) {
	now := r.now()
	lead, err := r.updateLead(ctx, id, model.ActionReset, model.OutcomeApplied, "reset_lead", func(l *model.Lead) error {
		next, err := leadstate.Apply(*l, leadstate.Event{Action: model.ActionReset, Outcome: model.OutcomeApplied}, now, leadstate.Options{})
		if err != nil {
			return err
		}
		*l = next
		return nil
	}, store.Totals{})
	if err != nil {
		return model.Lead{}, fmt.Errorf("reset lead %d: %w", id, err)
	}
	return lead, nil
}
