// Package safety is the agent's error-rate circuit breaker and the
// dependency breakers that short-circuit a failing oracle or transport.
package safety

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/leadbot/internal/model"
)

// OutcomeSource returns send outcomes recorded at or after since, newest
// last, at most limit of them (limit <= 0 means no limit).
type OutcomeSource interface {
	RecentOutcomes(ctx context.Context, since time.Time, limit int) ([]model.TimedOutcome, error)
}

// State is the controller's answer for the current cycle.
type State string

const (
	StateOK      State = "ok"
	StatePaused  State = "paused"
	StateTripped State = "tripped"
)

// Verdict describes a safety evaluation.
type Verdict struct {
	State  State
	Reason model.PauseReason
	Rate   float64
	Errors int
	Total  int
}

// Blocked reports whether the cycle must not proceed.
func (v Verdict) Blocked() bool { return v.State != StateOK }

// Controller evaluates the rolling error rate against the threshold stored
// on the agent configuration.
type Controller struct {
	source OutcomeSource
}

// NewController returns a Controller reading outcomes from source.
func NewController(source OutcomeSource) *Controller {
	return &Controller{source: source}
}

// Load builds the window for cfg from the action log. Outcomes recorded
// before SafetyWindowStart (set on resume) are excluded.
func (c *Controller) Load(ctx context.Context, cfg model.AgentConfig, now time.Time) (*Window, error) {
	var since time.Time
	if cfg.SafetyWindowDuration > 0 {
		since = now.Add(-cfg.SafetyWindowDuration)
	}
	if cfg.SafetyWindowStart != nil && cfg.SafetyWindowStart.After(since) {
		since = *cfg.SafetyWindowStart
	}

	outcomes, err := c.source.RecentOutcomes(ctx, since, cfg.SafetyWindowSize)
	if err != nil {
		return nil, fmt.Errorf("load safety window: %w", err)
	}

	w := NewWindow(cfg.SafetyWindowSize, cfg.SafetyWindowDuration)
	for _, o := range outcomes {
		w.Add(o.Outcome, o.At)
	}
	return w, nil
}

// Check returns Paused immediately for a paused agent (a trip is sticky) and
// otherwise evaluates the window, tripping cfg in place when the error rate
// exceeds the threshold. The caller persists cfg.
func (c *Controller) Check(ctx context.Context, cfg *model.AgentConfig, now time.Time) (Verdict, error) {
	if cfg.IsPaused {
		return Verdict{State: StatePaused, Reason: cfg.PauseReason}, nil
	}
	w, err := c.Load(ctx, *cfg, now)
	if err != nil {
		return Verdict{}, err
	}
	return Evaluate(cfg, w, now), nil
}

// Evaluate applies the trip rule to an in-memory window.
func Evaluate(cfg *model.AgentConfig, w *Window, now time.Time) Verdict {
	if cfg.IsPaused {
		return Verdict{State: StatePaused, Reason: cfg.PauseReason}
	}
	w.Prune(now)
	v := Verdict{State: StateOK, Rate: w.Rate(), Errors: w.Errors(), Total: w.Total()}

	if !cfg.PauseOnHighErrorRate || v.Total == 0 || v.Total < cfg.SafetyMinOutcomes {
		return v
	}
	if v.Rate > cfg.ErrorRateThreshold {
		Trip(cfg, now)
		v.State = StateTripped
		v.Reason = model.PauseReasonErrorRate
	}
	return v
}

// Trip pauses the agent because of the error rate.
func Trip(cfg *model.AgentConfig, now time.Time) {
	cfg.IsPaused = true
	cfg.PauseReason = model.PauseReasonErrorRate
	cfg.TrippedAt = model.TimePtr(now)
}

// Reset clears a pause and starts a fresh window at now.
func Reset(cfg *model.AgentConfig, now time.Time) {
	cfg.IsPaused = false
	cfg.PauseReason = model.PauseReasonNone
	cfg.TrippedAt = nil
	cfg.SafetyWindowStart = model.TimePtr(now)
}
