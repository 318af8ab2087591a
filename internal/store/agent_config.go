package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aatumaykin/leadbot/internal/model"
)

const agentConfigColumns = `is_running, is_paused, pause_reason,
	daily_email_limit, hourly_email_limit, emails_sent_today, emails_sent_this_hour,
	last_reset_date, last_hour_reset,
	business_hours_start, business_hours_end, timezone, active_days, respect_business_hours,
	error_rate_threshold, safety_window_size, safety_window_seconds, safety_min_outcomes,
	safety_window_start, pause_on_high_error_rate, tripped_at,
	agent_check_interval_seconds, inbox_check_interval_seconds, batch_size, max_lead_errors,
	total_emails_sent, total_replies_received, total_errors,
	agent_started_at, agent_stopped_at, last_agent_run_at, next_agent_run_at,
	version, updated_at`

func scanAgentConfig(row scanner) (model.AgentConfig, error) {
	var (
		c                                     model.AgentConfig
		running, paused, respect, pauseOnHigh int
		pauseReason, days                     string
		lastHourReset, updatedAt              int64
		windowSec, checkSec, inboxSec         int64
		windowStart, tripped                  sql.NullInt64
		started, stopped, lastRun, nextRun    sql.NullInt64
	)
	err := row.Scan(&running, &paused, &pauseReason,
		&c.DailyEmailLimit, &c.HourlyEmailLimit, &c.EmailsSentToday, &c.EmailsSentThisHour,
		&c.LastResetDate, &lastHourReset,
		&c.BusinessHoursStart, &c.BusinessHoursEnd, &c.Timezone, &days, &respect,
		&c.ErrorRateThreshold, &c.SafetyWindowSize, &windowSec, &c.SafetyMinOutcomes,
		&windowStart, &pauseOnHigh, &tripped,
		&checkSec, &inboxSec, &c.BatchSize, &c.MaxLeadErrors,
		&c.TotalEmailsSent, &c.TotalRepliesReceived, &c.TotalErrors,
		&started, &stopped, &lastRun, &nextRun,
		&c.Version, &updatedAt)
	if err != nil {
		return model.AgentConfig{}, err
	}

	activeDays, err := model.ParseDays(days)
	if err != nil {
		return model.AgentConfig{}, fmt.Errorf("agent config active_days: %w", err)
	}

	c.IsRunning = running != 0
	c.IsPaused = paused != 0
	c.PauseReason = model.PauseReason(pauseReason)
	c.ActiveDays = activeDays
	c.RespectBusinessHours = respect != 0
	c.PauseOnHighErrorRate = pauseOnHigh != 0
	if lastHourReset != 0 {
		c.LastHourReset = fromMillis(lastHourReset)
	}
	c.SafetyWindowDuration = time.Duration(windowSec) * time.Second
	c.AgentCheckInterval = time.Duration(checkSec) * time.Second
	c.InboxCheckInterval = time.Duration(inboxSec) * time.Second
	c.SafetyWindowStart = ptrFromNull(windowStart)
	c.TrippedAt = ptrFromNull(tripped)
	c.AgentStartedAt = ptrFromNull(started)
	c.AgentStoppedAt = ptrFromNull(stopped)
	c.LastAgentRunAt = ptrFromNull(lastRun)
	c.NextAgentRunAt = ptrFromNull(nextRun)
	c.UpdatedAt = fromMillis(updatedAt)
	return c, nil
}

func hourResetMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return toMillis(t)
}

// LoadAgentConfig reads the singleton row.
func (q *queries) LoadAgentConfig(ctx context.Context) (model.AgentConfig, error) {
	row := q.db.QueryRowContext(ctx, `SELECT `+agentConfigColumns+` FROM agent_config WHERE id = 1`)
	cfg, err := scanAgentConfig(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.AgentConfig{}, fmt.Errorf("agent config: %w", ErrNotFound)
	}
	if err != nil {
		return model.AgentConfig{}, fmt.Errorf("load agent config: %w", err)
	}
	return cfg, nil
}

// EnsureAgentConfig inserts seed as the singleton row if none exists and
// returns the stored row; created reports whether seed was used.
func (q *queries) EnsureAgentConfig(ctx context.Context, seed model.AgentConfig) (model.AgentConfig, bool, error) {
	if errs := seed.Validate(); len(errs) > 0 {
		return model.AgentConfig{}, false, fmt.Errorf("invalid agent config seed: %w", errors.Join(errs...))
	}
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `INSERT OR IGNORE INTO agent_config (
		id, `+agentConfigColumns+`
	) VALUES (1, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		boolInt(seed.IsRunning), boolInt(seed.IsPaused), string(seed.PauseReason),
		seed.DailyEmailLimit, seed.HourlyEmailLimit, seed.EmailsSentToday, seed.EmailsSentThisHour,
		seed.LastResetDate, hourResetMillis(seed.LastHourReset),
		seed.BusinessHoursStart, seed.BusinessHoursEnd, seed.Timezone, model.FormatDays(seed.ActiveDays),
		boolInt(seed.RespectBusinessHours),
		seed.ErrorRateThreshold, seed.SafetyWindowSize, int64(seed.SafetyWindowDuration/time.Second), seed.SafetyMinOutcomes,
		nullMillis(seed.SafetyWindowStart), boolInt(seed.PauseOnHighErrorRate), nullMillis(seed.TrippedAt),
		int64(seed.AgentCheckInterval/time.Second), int64(seed.InboxCheckInterval/time.Second),
		seed.BatchSize, seed.MaxLeadErrors,
		seed.TotalEmailsSent, seed.TotalRepliesReceived, seed.TotalErrors,
		nullMillis(seed.AgentStartedAt), nullMillis(seed.AgentStoppedAt),
		nullMillis(seed.LastAgentRunAt), nullMillis(seed.NextAgentRunAt),
		toMillis(now))
	if err != nil {
		return model.AgentConfig{}, false, fmt.Errorf("seed agent config: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return model.AgentConfig{}, false, fmt.Errorf("seed agent config: %w", err)
	}
	cfg, err := q.LoadAgentConfig(ctx)
	return cfg, n == 1, err
}

// SaveAgentConfig writes cfg if its Version matches the stored row. The
// lifetime totals are not written here; IncrementTotals owns them so a
// stale read can never roll them back.
func (q *queries) SaveAgentConfig(ctx context.Context, cfg model.AgentConfig) (model.AgentConfig, error) {
	if errs := cfg.Validate(); len(errs) > 0 {
		return model.AgentConfig{}, fmt.Errorf("invalid agent config: %w", errors.Join(errs...))
	}
	now := time.Now().UTC()
	res, err := q.db.ExecContext(ctx, `UPDATE agent_config SET
		is_running = ?, is_paused = ?, pause_reason = ?,
		daily_email_limit = ?, hourly_email_limit = ?, emails_sent_today = ?, emails_sent_this_hour = ?,
		last_reset_date = ?, last_hour_reset = ?,
		business_hours_start = ?, business_hours_end = ?, timezone = ?, active_days = ?, respect_business_hours = ?,
		error_rate_threshold = ?, safety_window_size = ?, safety_window_seconds = ?, safety_min_outcomes = ?,
		safety_window_start = ?, pause_on_high_error_rate = ?, tripped_at = ?,
		agent_check_interval_seconds = ?, inbox_check_interval_seconds = ?, batch_size = ?, max_lead_errors = ?,
		agent_started_at = ?, agent_stopped_at = ?, last_agent_run_at = ?, next_agent_run_at = ?,
		version = version + 1, updated_at = ?
	WHERE id = 1 AND version = ?`,
		boolInt(cfg.IsRunning), boolInt(cfg.IsPaused), string(cfg.PauseReason),
		cfg.DailyEmailLimit, cfg.HourlyEmailLimit, cfg.EmailsSentToday, cfg.EmailsSentThisHour,
		cfg.LastResetDate, hourResetMillis(cfg.LastHourReset),
		cfg.BusinessHoursStart, cfg.BusinessHoursEnd, cfg.Timezone, model.FormatDays(cfg.ActiveDays),
		boolInt(cfg.RespectBusinessHours),
		cfg.ErrorRateThreshold, cfg.SafetyWindowSize, int64(cfg.SafetyWindowDuration/time.Second), cfg.SafetyMinOutcomes,
		nullMillis(cfg.SafetyWindowStart), boolInt(cfg.PauseOnHighErrorRate), nullMillis(cfg.TrippedAt),
		int64(cfg.AgentCheckInterval/time.Second), int64(cfg.InboxCheckInterval/time.Second),
		cfg.BatchSize, cfg.MaxLeadErrors,
		nullMillis(cfg.AgentStartedAt), nullMillis(cfg.AgentStoppedAt),
		nullMillis(cfg.LastAgentRunAt), nullMillis(cfg.NextAgentRunAt),
		toMillis(now), cfg.Version)
	if err != nil {
		return model.AgentConfig{}, fmt.Errorf("save agent config: %w", err)
	}
	n, err := rowsAffected(res)
	if err != nil {
		return model.AgentConfig{}, fmt.Errorf("save agent config: %w", err)
	}
	if n == 0 {
		return model.AgentConfig{}, fmt.Errorf("agent config at version %d: %w", cfg.Version, ErrVersionConflict)
	}
	return q.LoadAgentConfig(ctx)
}

// Totals are lifetime counters added to the config row.
type Totals struct {
	Sent    int64
	Replies int64
	Errors  int64
}

// IncrementTotals adds to the lifetime counters without a version check.
func (q *queries) IncrementTotals(ctx context.Context, t Totals) error {
	if t == (Totals{}) {
		return nil
	}
	_, err := q.db.ExecContext(ctx, `UPDATE agent_config SET
		total_emails_sent = total_emails_sent + ?,
		total_replies_received = total_replies_received + ?,
		total_errors = total_errors + ?
	WHERE id = 1`, t.Sent, t.Replies, t.Errors)
	if err != nil {
		return fmt.Errorf("increment totals: %w", err)
	}
	return nil
}
