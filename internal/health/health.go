// Package health runs the periodic agent health check and raises alerts
// through a notifier. Each alert kind is sent once and repeated only after
// a cooldown while the condition persists.
package health

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/aatumaykin/leadbot/internal/agent"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/notify"
)

// Alert kinds.
const (
	AlertStoreUnavailable = "store_unavailable"
	AlertNoActivity       = "no_activity"
	AlertHighErrorRate    = "high_error_rate"
	AlertZeroSends        = "zero_sends"
	AlertBreakerTripped   = "breaker_tripped"
)

// StatusSource is implemented by *agent.Runner.
type StatusSource interface {
	Status(ctx context.Context) (agent.Status, error)
}

// Config tunes the checks.
type Config struct {
	NoActivityAfter time.Duration
	AlertCooldown   time.Duration
}

// Report is the result of one check.
type Report struct {
	At      time.Time      `json:"at" yaml:"at"`
	Healthy bool           `json:"healthy" yaml:"healthy"`
	State   model.RunState `json:"state,omitempty" yaml:"state,omitempty"`
	Alerts  []notify.Alert `json:"alerts" yaml:"alerts"`
}

// Checker evaluates agent health.
type Checker struct {
	source   StatusSource
	notifier notify.Notifier
	cfg      Config
	logger   *logger.Logger
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[string]time.Time
}

// NewChecker creates a new health checker.
func NewChecker(source StatusSource, notifier notify.Notifier, cfg Config, log *logger.Logger) *Checker {
	if cfg.NoActivityAfter <= 0 {
		cfg.NoActivityAfter = 30 * time.Minute
	}
	if cfg.AlertCooldown <= 0 {
		cfg.AlertCooldown = time.Hour
	}
	if notifier == nil {
		notifier = notify.NewLogNotifier(log)
	}
	return &Checker{
		source:   source,
		notifier: notifier,
		cfg:      cfg,
		logger:   log,
		now:      time.Now,
		lastSent: make(map[string]time.Time),
	}
}

// Evaluate computes the current findings without notifying anyone.
func (c *Checker) Evaluate(ctx context.Context) Report {
	now := c.now().UTC()
	rep := Report{At: now}

	st, err := c.source.Status(ctx)
	if err != nil {
		rep.Alerts = append(rep.Alerts, notify.Alert{
			Kind:     AlertStoreUnavailable,
			Severity: notify.SeverityCritical,
			Message:  "agent status is unavailable",
			At:       now,
			Fields:   map[string]string{"error": err.Error()},
		})
		return rep
	}
	rep.State = st.State
	rep.Alerts = findings(st, c.cfg, now)
	rep.Healthy = len(rep.Alerts) == 0
	return rep
}

// Run evaluates and notifies about new or repeating findings. It returns
// the report and the number of alerts sent.
func (c *Checker) Run(ctx context.Context) (Report, int) {
	rep := c.Evaluate(ctx)

	c.mu.Lock()
	firing := make(map[string]bool, len(rep.Alerts))
	var due []notify.Alert
	for _, a := range rep.Alerts {
		firing[a.Kind] = true
		if last, ok := c.lastSent[a.Kind]; ok && rep.At.Sub(last) < c.cfg.AlertCooldown {
			continue
		}
		c.lastSent[a.Kind] = rep.At
		due = append(due, a)
	}
	for kind := range c.lastSent {
		if !firing[kind] {
			delete(c.lastSent, kind)
			c.logger.InfoCtx(ctx, "Health alert resolved", logger.Field{Key: "alert", Value: kind})
		}
	}
	c.mu.Unlock()

	for _, a := range due {
		if err := c.notifier.Notify(ctx, a); err != nil {
			c.logger.ErrorCtx(ctx, "Failed to deliver health alert", err, logger.Field{Key: "alert", Value: a.Kind})
		}
	}
	if rep.Healthy {
		c.logger.DebugCtx(ctx, "Health check: all good")
	}
	return rep, len(due)
}

// Execute is the worker task entry point.
func (c *Checker) Execute(ctx context.Context) (string, error) {
	rep, sent := c.Run(ctx)
	return fmt.Sprintf("healthy=%t alerts=%d notified=%d", rep.Healthy, len(rep.Alerts), sent), nil
}

func findings(st agent.Status, cfg Config, now time.Time) []notify.Alert {
	var out []notify.Alert
	alert := func(kind string, sev notify.Severity, msg string, fields map[string]string) {
		out = append(out, notify.Alert{Kind: kind, Severity: sev, Message: msg, At: now, Fields: fields})
	}

	if st.PauseReason == model.PauseReasonErrorRate {
		alert(AlertHighErrorRate, notify.SeverityCritical, "agent paused by the error-rate breaker", map[string]string{
			"rate":      fmt.Sprintf("%.1f", st.ErrorRate),
			"threshold": fmt.Sprintf("%.1f", st.Config.ErrorRateThreshold),
		})
	} else if st.WindowTotal >= st.Config.SafetyMinOutcomes && st.ErrorRate > st.Config.ErrorRateThreshold {
		alert(AlertHighErrorRate, notify.SeverityWarning, "error rate above threshold", map[string]string{
			"rate":      fmt.Sprintf("%.1f", st.ErrorRate),
			"threshold": fmt.Sprintf("%.1f", st.Config.ErrorRateThreshold),
			"outcomes":  fmt.Sprint(st.WindowTotal),
		})
	}

	for _, b := range []struct{ dep, state string }{{"oracle", st.OracleBreaker}, {"transport", st.SendBreaker}} {
		if b.state == "open" {
			dep := b.dep
			alert(AlertBreakerTripped, notify.SeverityWarning, dep+" circuit breaker is open", map[string]string{"dependency": dep})
		}
	}

	if st.State != model.RunStateRunning || !st.InBusinessHours {
		return dedupeKinds(out)
	}

	ref := st.Config.AgentStartedAt
	if st.LastRunAt != nil && (ref == nil || st.LastRunAt.After(*ref)) {
		ref = st.LastRunAt
	}
	if ref == nil || now.Sub(*ref) > cfg.NoActivityAfter {
		fields := map[string]string{"threshold": cfg.NoActivityAfter.String()}
		if ref != nil {
			fields["last_activity"] = ref.UTC().Format(time.RFC3339)
		}
		alert(AlertNoActivity, notify.SeverityWarning, "agent is running but no cycle completed recently", fields)
	}

	pending := st.LeadsByStatus[model.StatusNew] + st.LeadsByStatus[model.StatusFollowUpDue]
	if st.EmailsSentToday == 0 && pending > 0 && openFor(st.Config, now) > cfg.NoActivityAfter {
		alert(AlertZeroSends, notify.SeverityWarning, "nothing sent today inside business hours", map[string]string{
			"pending_leads": fmt.Sprint(pending),
		})
	}
	return dedupeKinds(out)
}

// openFor reports how long today's business window has been open.
func openFor(cfg model.AgentConfig, now time.Time) time.Duration {
	loc, err := cfg.Location()
	if err != nil {
		return 0
	}
	start, err := model.ParseClock(cfg.BusinessHoursStart)
	if err != nil {
		return 0
	}
	local := now.In(loc)
	y, m, d := local.Date()
	opening := time.Date(y, m, d, 0, 0, 0, 0, loc).Add(time.Duration(start) * time.Minute)
	if local.Before(opening) {
		return 0
	}
	return local.Sub(opening)
}

// dedupeKinds keeps the first alert of each kind so both breakers open
// still produce one breaker_tripped alert.
func dedupeKinds(alerts []notify.Alert) []notify.Alert {
	seen := make(map[string]int, len(alerts))
	out := alerts[:0]
	for _, a := range alerts {
		if i, ok := seen[a.Kind]; ok {
			if dep := a.Fields["dependency"]; dep != "" {
				out[i].Fields["dependency"] += "," + dep
			}
			continue
		}
		seen[a.Kind] = len(out)
		out = append(out, a)
	}
	return out
}
