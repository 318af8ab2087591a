// Package decision decides, per lead, whether to send an initial email, a
// follow-up, or skip. Cheap eligibility checks run first; the oracle is
// consulted only for leads that pass them.
package decision

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/oracle"
	"github.com/aatumaykin/leadbot/internal/safety"
)

// ErrOracleOpen is returned when the oracle breaker rejects the call.
var ErrOracleOpen = errors.New("oracle breaker open")

// DefaultOracleTimeout bounds one Recommend call.
const DefaultOracleTimeout = 30 * time.Second

// Kind is the decided action.
type Kind string

const (
	KindSkip         Kind = "skip"
	KindSendInitial  Kind = "send_initial"
	KindSendFollowUp Kind = "send_followup"
)

// Action maps the kind to the action log type.
func (k Kind) Action() model.ActionType {
	switch k {
	case KindSendInitial:
		return model.ActionSendInitial
	case KindSendFollowUp:
		return model.ActionSendFollowUp
	}
	return model.ActionSkip
}

// Decision is the engine's answer for one lead.
type Decision struct {
	Kind           Kind
	Reason         string
	Recommendation oracle.Recommendation
	// Err is the oracle failure behind an oracle_unavailable skip.
	Err error
}

// IsSend reports whether the decision reaches the transport.
func (d Decision) IsSend() bool { return d.Kind != KindSkip }

func skip(reason string) Decision { return Decision{Kind: KindSkip, Reason: reason} }

// Options configures the engine.
type Options struct {
	Timeout time.Duration
	Breaker *safety.Breaker
	// Observe receives the duration and error of every oracle call.
	Observe func(time.Duration, error)
}

// Engine decides per lead.
type Engine struct {
	oracle  oracle.Oracle
	timeout time.Duration
	breaker *safety.Breaker
	observe func(time.Duration, error)
}

// New creates an engine.
func New(o oracle.Oracle, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultOracleTimeout
	}
	if opts.Breaker == nil {
		opts.Breaker = safety.NewBreaker(0, 0)
	}
	return &Engine{oracle: o, timeout: opts.Timeout, breaker: opts.Breaker, observe: opts.Observe}
}

// Breaker exposes the oracle breaker for health reporting.
func (e *Engine) Breaker() *safety.Breaker { return e.breaker }

// PreCheck runs the eligibility rules in order and stops at the first
// failure. It never calls the oracle.
func PreCheck(lead model.Lead, now time.Time) Decision {
	switch {
	case !lead.AgentEnabled:
		return skip(model.ReasonAgentDisabled)
	case lead.AgentPaused:
		return skip(model.ReasonLeadPaused)
	case lead.Status.Terminal():
		return skip(model.ReasonTerminalStatus)
	case lead.Status == model.StatusError:
		return skip(model.ReasonLeadError)
	case !lead.Due(now):
		return skip(model.ReasonNotDue)
	case lead.FollowUpCount >= lead.MaxFollowUps:
		return skip(model.ReasonFollowUpCap)
	}

	switch lead.Status {
	case model.StatusNew:
		return Decision{Kind: KindSendInitial, Reason: model.ReasonInitialContact}
	case model.StatusContacted, model.StatusFollowUpDue:
		return Decision{Kind: KindSendFollowUp, Reason: model.ReasonFollowUpDue}
	}
	return skip(model.ReasonTerminalStatus)
}

// Decide returns the decision for lead. Oracle failures, timeouts and
// malformed output become a skip with oracle_unavailable.
func (e *Engine) Decide(ctx context.Context, lead model.Lead, now time.Time) Decision {
	d := PreCheck(lead, now)
	if !d.IsSend() {
		return d
	}

	rec, err := e.recommend(ctx, oracle.NewRequest(lead, d.Kind.Action()))
	if err != nil {
		return Decision{Kind: KindSkip, Reason: model.ReasonOracleUnavailable, Err: err}
	}
	d.Recommendation = rec
	return d
}

func (e *Engine) recommend(ctx context.Context, req oracle.Request) (oracle.Recommendation, error) {
	if !e.breaker.Allow() {
		return oracle.Recommendation{}, ErrOracleOpen
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	start := time.Now()
	rec, err := e.oracle.Recommend(ctx, req)
	if err == nil {
		err = rec.Validate()
	}
	if e.observe != nil {
		e.observe(time.Since(start), err)
	}
	if err != nil {
		e.breaker.RecordFailure()
		return oracle.Recommendation{}, fmt.Errorf("recommend lead %d: %w", req.Lead.ID, err)
	}
	e.breaker.RecordSuccess()
	return rec, nil
}

// Order sorts leads by priority desc, engagement desc, id asc.
func Order(leads []model.Lead) {
	sort.SliceStable(leads, func(i, j int) bool {
		a, b := leads[i], leads[j]
		if a.PriorityScore != b.PriorityScore {
			return a.PriorityScore > b.PriorityScore
		}
		if a.EngagementScore != b.EngagementScore {
			return a.EngagementScore > b.EngagementScore
		}
		return a.ID < b.ID
	})
}
