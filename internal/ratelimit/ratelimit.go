// Package ratelimit enforces the daily and hourly send budgets stored on the
// agent configuration row.
//
// All functions are pure: they mutate the given *model.AgentConfig and the
// caller persists it (version compare-and-swap) in the same transaction as
// the reservation.
package ratelimit

import (
	"time"

	"github.com/aatumaykin/leadbot/internal/model"
)

const dateLayout = "2006-01-02"

// Reservation is the result of a Reserve call.
type Reservation struct {
	Reserved bool
	Reason   string // daily_limit_exceeded | hourly_limit_exceeded when denied

	// Counters before the increment, recorded in the action log.
	SentTodayBefore    int
	SentThisHourBefore int
}

// Capacity is a non-mutating view of the remaining budget.
type Capacity struct {
	DailyRemaining  int
	HourlyRemaining int
}

// Available reports whether one more send fits into both budgets.
func (c Capacity) Available() bool {
	return c.DailyRemaining > 0 && c.HourlyRemaining > 0
}

// Reason returns the limit that blocks the next send, or "".
func (c Capacity) Reason() string {
	switch {
	case c.DailyRemaining <= 0:
		return model.ReasonDailyLimitExceeded
	case c.HourlyRemaining <= 0:
		return model.ReasonHourlyLimitExceeded
	}
	return ""
}

// Limiter holds no state; it exists so callers can depend on it explicitly.
type Limiter struct{}

// New returns a Limiter.
func New() Limiter { return Limiter{} }

// Rollover resets the daily counter when the local date changed and the
// hourly counter when the local hour changed. Returns true if anything was
// reset. Calling it twice within the same hour is a no-op.
func (Limiter) Rollover(cfg *model.AgentConfig, now time.Time) bool {
	local := now.In(location(cfg))
	changed := false

	today := local.Format(dateLayout)
	if cfg.LastResetDate != today {
		cfg.EmailsSentToday = 0
		cfg.LastResetDate = today
		changed = true
	}

	hour := hourStart(local)
	if !cfg.LastHourReset.Equal(hour) {
		cfg.EmailsSentThisHour = 0
		cfg.LastHourReset = hour
		changed = true
	}
	return changed
}

// Remaining performs a rollover on a copy and reports the remaining budget.
func (l Limiter) Remaining(cfg model.AgentConfig, now time.Time) Capacity {
	l.Rollover(&cfg, now)
	return Capacity{
		DailyRemaining:  cfg.DailyEmailLimit - cfg.EmailsSentToday,
		HourlyRemaining: cfg.HourlyEmailLimit - cfg.EmailsSentThisHour,
	}
}

// Reserve claims one send from both budgets. The daily budget is checked
// first. On success both counters are incremented together.
func (l Limiter) Reserve(cfg *model.AgentConfig, now time.Time) Reservation {
	l.Rollover(cfg, now)

	res := Reservation{
		SentTodayBefore:    cfg.EmailsSentToday,
		SentThisHourBefore: cfg.EmailsSentThisHour,
	}
	if cfg.EmailsSentToday >= cfg.DailyEmailLimit {
		res.Reason = model.ReasonDailyLimitExceeded
		return res
	}
	if cfg.EmailsSentThisHour >= cfg.HourlyEmailLimit {
		res.Reason = model.ReasonHourlyLimitExceeded
		return res
	}

	cfg.EmailsSentToday++
	cfg.EmailsSentThisHour++
	res.Reserved = true
	return res
}

// ResetCounters forces a rollover regardless of the stored markers.
func (Limiter) ResetCounters(cfg *model.AgentConfig, now time.Time) {
	local := now.In(location(cfg))
	cfg.EmailsSentToday = 0
	cfg.EmailsSentThisHour = 0
	cfg.LastResetDate = local.Format(dateLayout)
	cfg.LastHourReset = hourStart(local)
}

// hourStart subtracts the elapsed part of the local hour, which stays exact
// through repeated DST hours and half-hour offsets.
func hourStart(local time.Time) time.Time {
	elapsed := time.Duration(local.Minute())*time.Minute +
		time.Duration(local.Second())*time.Second +
		time.Duration(local.Nanosecond())
	return local.Add(-elapsed)
}

// location falls back to UTC for an unloadable zone; such a config never
// passes validation, so this only matters for hand-built values in tests.
func location(cfg *model.AgentConfig) *time.Location {
	loc, err := cfg.Location()
	if err != nil {
		return time.UTC
	}
	return loc
}
