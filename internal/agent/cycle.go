package agent

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/aatumaykin/leadbot/internal/decision"
	"github.com/aatumaykin/leadbot/internal/leadstate"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/oracle"
	"github.com/aatumaykin/leadbot/internal/ratelimit"
	"github.com/aatumaykin/leadbot/internal/runlock"
	"github.com/aatumaykin/leadbot/internal/safety"
	"github.com/aatumaykin/leadbot/internal/store"
	"github.com/aatumaykin/leadbot/internal/transport"
)

// CycleStatus says how a cycle ended.
type CycleStatus string

const (
	CycleCompleted        CycleStatus = "completed"
	CycleNotRunning       CycleStatus = "not_running"
	CyclePaused           CycleStatus = "paused"
	CycleOutsideHours     CycleStatus = "outside_hours"
	CycleAlreadyRunning   CycleStatus = "already_running"
	CycleStoreUnavailable CycleStatus = "store_unavailable"
	CycleLockUnavailable  CycleStatus = "lock_unavailable"
	// Mid-cycle stops.
	CycleTripped         CycleStatus = "tripped"
	CycleInterrupted     CycleStatus = "interrupted"
	CycleBudgetExhausted CycleStatus = "budget_exhausted"
	CycleTransportDown   CycleStatus = "transport_unavailable"
	CycleLeaseLost       CycleStatus = "lease_lost"
)

// CycleResult summarizes one RunCycle call.
type CycleResult struct {
	RunID    string        `json:"run_id" yaml:"run_id"`
	Status   CycleStatus   `json:"status" yaml:"status"`
	Sent     int           `json:"sent" yaml:"sent"`
	Skipped  int           `json:"skipped" yaml:"skipped"`
	Errored  int           `json:"errored" yaml:"errored"`
	Reason   string        `json:"reason,omitempty" yaml:"reason,omitempty"`
	Duration time.Duration `json:"duration" yaml:"duration"`
}

// errAbort rolls a transaction back without being an error for the caller.
var errAbort = errors.New("abort transaction")

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrStoreUnavailable, err)
}

// cycle carries the state of one RunCycle.
type cycle struct {
	r      *Runner
	runID  string
	log    *logger.Logger
	cfg    model.AgentConfig
	window *safety.Window
	lease  *runlock.Lease
	res    *CycleResult
}

// RunCycle performs one pass over the eligible leads. It is a no-op unless
// the agent is running, the safety breaker is closed and the business-hours
// window is open. Only storage failures are returned as errors.
func (r *Runner) RunCycle(ctx context.Context) (res CycleResult, err error) {
	start := time.Now()
	res = CycleResult{RunID: uuid.NewString()}
	log := r.log.WithRun(res.RunID)
	defer func() {
		res.Duration = time.Since(start)
		r.observer.CycleFinished(res.Status, res.Duration)
		log.InfoCtx(ctx, "Cycle finished",
			logger.Field{Key: "status", Value: string(res.Status)},
			logger.Field{Key: "reason", Value: res.Reason},
			logger.Field{Key: "sent", Value: res.Sent},
			logger.Field{Key: "skipped", Value: res.Skipped},
			logger.Field{Key: "errored", Value: res.Errored},
			logger.Field{Key: "duration", Value: res.Duration.String()})
	}()

	if !r.cycling.CompareAndSwap(false, true) {
		res.Status = CycleAlreadyRunning
		return res, nil
	}
	defer r.cycling.Store(false)

	now := r.now()
	var (
		window  *safety.Window
		verdict safety.Verdict
	)
	cfg, err := r.mutateConfig(ctx, func(tx *store.Tx, cfg *model.AgentConfig) (bool, error) {
		if !cfg.IsRunning || cfg.IsPaused {
			return false, nil
		}
		w, err := safety.NewController(tx).Load(ctx, *cfg, now)
		if err != nil {
			return false, err
		}
		window = w
		verdict = safety.Evaluate(cfg, w, now)
		return verdict.State == safety.StateTripped, nil
	})
	if err != nil {
		res.Status = CycleStoreUnavailable
		return res, storeErr("cycle preflight", err)
	}
	r.observer.AgentState(cfg.RunState())

	switch {
	case !cfg.IsRunning:
		res.Status = CycleNotRunning
		return res, nil
	case verdict.State == safety.StateTripped:
		r.observer.ErrorRate(verdict.Rate)
		log.WarnCtx(ctx, "Safety breaker tripped, agent paused",
			logger.Field{Key: "error_rate", Value: verdict.Rate},
			logger.Field{Key: "outcomes", Value: verdict.Total})
		res.Status, res.Reason = CyclePaused, string(model.PauseReasonErrorRate)
		return res, nil
	case cfg.IsPaused:
		res.Status, res.Reason = CyclePaused, string(cfg.PauseReason)
		return res, nil
	}
	r.observer.ErrorRate(verdict.Rate)

	ok, reason, err := r.gate.Check(cfg, now)
	if err != nil {
		return res, fmt.Errorf("business hours: %w", err)
	}
	if !ok {
		res.Status, res.Reason = CycleOutsideHours, reason
		return res, nil
	}

	lease, err := runlock.Acquire(ctx, r.locker, r.lockName, runlock.NewOwner("cycle"), r.lockTTL)
	if errors.Is(err, runlock.ErrLockHeld) {
		res.Status = CycleAlreadyRunning
		return res, nil
	}
	if err != nil {
		res.Status = CycleLockUnavailable
		return res, fmt.Errorf("run lock: %w", err)
	}
	defer func() {
		relCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := lease.Release(relCtx); err != nil {
			log.Warn("Failed to release run lock", logger.Field{Key: "error", Value: err.Error()})
		}
	}()

	c := &cycle{r: r, runID: res.RunID, log: log, cfg: cfg, window: window, lease: lease, res: &res}
	if err := c.run(ctx); err != nil {
		res.Status = CycleStoreUnavailable
		return res, err
	}

	end := r.now()
	if _, err := r.mutateConfig(ctx, func(_ *store.Tx, cfg *model.AgentConfig) (bool, error) {
		cfg.LastAgentRunAt = model.TimePtr(end)
		if cfg.IsRunning {
			cfg.NextAgentRunAt = model.TimePtr(end.Add(cfg.AgentCheckInterval))
		}
		return true, nil
	}); err != nil {
		res.Status = CycleStoreUnavailable
		return res, storeErr("record cycle", err)
	}
	return res, nil
}

func (c *cycle) run(ctx context.Context) error {
	leads, err := c.r.store.FetchEligible(ctx, c.r.now(), c.cfg.BatchSize)
	if err != nil {
		return storeErr("fetch leads", err)
	}
	decision.Order(leads)
	c.log.DebugCtx(ctx, "Cycle started", logger.Field{Key: "leads", Value: len(leads)})

	c.res.Status = CycleCompleted
	for _, lead := range leads {
		if err := ctx.Err(); err != nil {
			c.res.Status, c.res.Reason = CycleInterrupted, err.Error()
			return nil
		}
		stop, err := c.processLead(ctx, lead)
		if err != nil {
			return err
		}
		if stop {
			return nil
		}
		if stop, err := c.checkpoint(ctx); err != nil || stop {
			return err
		}
	}
	return nil
}

// checkpoint renews the lease and re-reads the run state between leads.
func (c *cycle) checkpoint(ctx context.Context) (bool, error) {
	if err := c.lease.KeepAlive(ctx); err != nil {
		c.log.WarnCtx(ctx, "Run lock lost, stopping cycle", logger.Field{Key: "error", Value: err.Error()})
		c.res.Status, c.res.Reason = CycleLeaseLost, err.Error()
		return true, nil
	}
	cfg, err := c.r.store.LoadAgentConfig(ctx)
	if err != nil {
		return true, storeErr("reload run state", err)
	}
	if !cfg.IsRunning {
		c.res.Status, c.res.Reason = CycleInterrupted, string(model.RunStateStopped)
		return true, nil
	}
	if cfg.IsPaused {
		c.res.Status, c.res.Reason = CycleInterrupted, string(model.RunStatePaused)
		return true, nil
	}
	c.cfg = cfg
	return false, nil
}

// processLead handles one lead. stop ends the cycle early.
func (c *cycle) processLead(ctx context.Context, lead model.Lead) (stop bool, err error) {
	log := c.log.WithLead(lead.ID, lead.Email)
	now := c.r.now()

	if capacity := c.r.limiter.Remaining(c.cfg, now); !capacity.Available() {
		c.res.Status, c.res.Reason = CycleBudgetExhausted, capacity.Reason()
		return true, c.skip(ctx, lead, capacity.Reason(), nil, now)
	}

	oracleStart := time.Now()
	d := c.r.engine.Decide(ctx, lead, now)
	c.r.observer.DependencyCall("oracle", time.Since(oracleStart))
	if !d.IsSend() {
		if d.Err != nil {
			log.WarnCtx(ctx, "Oracle unavailable", logger.Field{Key: "error", Value: d.Err.Error()})
		}
		return false, c.skip(ctx, lead, d.Reason, d.Err, now)
	}

	if !c.r.transportBr.Allow() {
		c.res.Status, c.res.Reason = CycleTransportDown, model.ReasonTransportUnavailable
		return true, c.skip(ctx, lead, model.ReasonTransportUnavailable, nil, now)
	}

	resv, claimed, stopReason, err := c.reserve(ctx, lead, now)
	if err != nil {
		return true, err
	}
	switch {
	case stopReason != "":
		c.res.Status, c.res.Reason = CycleInterrupted, stopReason
		return true, nil
	case !resv.Reserved:
		c.res.Status, c.res.Reason = CycleBudgetExhausted, resv.Reason
		return true, c.skip(ctx, lead, resv.Reason, nil, now)
	case claimed == nil:
		return false, c.skip(ctx, lead, model.ReasonLeadChanged, nil, now)
	}

	result := c.send(ctx, lead, d.Recommendation)
	sentAt := c.r.now()

	entry := model.ActionLogEntry{
		RunID:                    c.runID,
		ActionType:               d.Kind.Action(),
		Outcome:                  result.Outcome,
		LeadID:                   lead.ID,
		LeadEmail:                lead.Email,
		DecisionReason:           d.Reason,
		ExecutionTime:            result.Duration,
		EmailsSentBefore:         resv.SentTodayBefore,
		EmailsSentThisHourBefore: resv.SentThisHourBefore,
		CreatedAt:                sentAt,
		Metadata: map[string]string{
			"subject":  d.Recommendation.Subject,
			"strategy": d.Recommendation.Strategy,
		},
	}
	if result.MessageID != "" {
		entry.Metadata["message_id"] = result.MessageID
	}
	if d.Kind == decision.KindSendFollowUp {
		entry.Metadata["follow_up_number"] = strconv.Itoa(lead.FollowUpCount + 1)
	}
	ev := leadstate.Event{Action: d.Kind.Action(), Outcome: result.Outcome}
	if result.Err != nil {
		ev.Error = result.Err.Error()
		entry.ErrorMessage = ev.Error
	}

	if err := c.commit(ctx, log, lead, *claimed, ev, entry, sentAt); err != nil {
		return true, err
	}
	c.r.observer.ActionRecorded(entry.ActionType, entry.Outcome)

	switch {
	case result.Outcome == model.OutcomeSent:
		c.res.Sent++
		log.InfoCtx(ctx, "Email sent",
			logger.Field{Key: "action", Value: string(entry.ActionType)},
			logger.Field{Key: "message_id", Value: result.MessageID})
	default:
		c.res.Errored++
		log.WarnCtx(ctx, "Email not delivered",
			logger.Field{Key: "outcome", Value: string(result.Outcome)},
			logger.Field{Key: "error", Value: entry.ErrorMessage})
	}

	return c.observeOutcome(ctx, result.Outcome, sentAt)
}

// reserve claims one send from the budget and the lead itself in a single
// transaction. The claim pushes next_check_at past the lease so a crashed
// cycle cannot leave the lead stuck forever and no other cycle picks it up
// meanwhile. claimed is nil when the lead changed since it was fetched.
func (c *cycle) reserve(ctx context.Context, lead model.Lead, now time.Time) (ratelimit.Reservation, *model.Lead, string, error) {
	var (
		resv       ratelimit.Reservation
		claimed    *model.Lead
		stopReason string
	)
	err := c.r.store.InTx(ctx, func(tx *store.Tx) error {
		resv, claimed, stopReason = ratelimit.Reservation{}, nil, ""

		cfg, err := tx.LoadAgentConfig(ctx)
		if err != nil {
			return err
		}
		if st := cfg.RunState(); st != model.RunStateRunning {
			stopReason = string(st)
			return errAbort
		}
		resv = c.r.limiter.Reserve(&cfg, now)
		if !resv.Reserved {
			return errAbort
		}

		cur, err := tx.GetLead(ctx, lead.ID)
		if err != nil {
			return err
		}
		if cur.Version != lead.Version {
			return errAbort
		}
		claim := cur.Clone()
		claim.NextCheckAt = model.TimePtr(now.Add(c.r.lockTTL))
		updated, err := tx.UpdateLead(ctx, claim)
		if err != nil {
			return err
		}
		if cfg, err = tx.SaveAgentConfig(ctx, cfg); err != nil {
			return err
		}
		c.cfg = cfg
		claimed = &updated
		return nil
	})
	if errors.Is(err, errAbort) {
		err = nil
	}
	if err != nil {
		return resv, nil, "", storeErr("reserve send", err)
	}
	if claimed != nil {
		c.r.observer.BudgetUsed(c.cfg)
	}
	return resv, claimed, stopReason, nil
}

func (c *cycle) send(ctx context.Context, lead model.Lead, rec oracle.Recommendation) transport.Result {
	msg := transport.Message{
		LeadID:  lead.ID,
		To:      lead.Email,
		ToName:  lead.FullName(),
		Subject: rec.Subject,
	}
	if rec.Format == oracle.FormatHTML {
		msg.HTMLBody = rec.Body
	} else {
		msg.TextBody = rec.Body
	}

	sendCtx, cancel := context.WithTimeout(ctx, c.r.sendTimeout)
	defer cancel()
	result := c.r.sender.Send(sendCtx, msg)
	c.r.observer.DependencyCall("transport", result.Duration)

	switch result.Outcome {
	case model.OutcomeTransientFailure:
		c.r.transportBr.RecordFailure()
	default:
		// Permanent failures are about the recipient, not the transport.
		c.r.transportBr.RecordSuccess()
	}
	return result
}

// commit writes the lead transition, the action entry and the totals in one
// transaction. The transition is computed from the pre-claim snapshot; if
// the lead changed underneath the claim (a reply or an operator action),
// the event is re-applied to the current row, and when that is refused
// (the reply made the lead terminal) only the action entry is written.
func (c *cycle) commit(ctx context.Context, log *logger.Logger, lead, claimed model.Lead,
	ev leadstate.Event, entry model.ActionLogEntry, now time.Time) error {
	opts := leadstate.Options{MaxLeadErrors: c.cfg.MaxLeadErrors}

	next, applyErr := leadstate.Apply(lead, ev, now, opts)
	if applyErr != nil {
		log.ErrorCtx(ctx, "Lead transition rejected", applyErr)
	}

	totals := store.Totals{}
	if ev.Outcome == model.OutcomeSent {
		totals.Sent = 1
	} else if ev.Outcome.IsError() {
		totals.Errors = 1
	}

	err := c.r.store.InTx(ctx, func(tx *store.Tx) error {
		e := entry
		e.Metadata = cloneMeta(entry.Metadata)

		if applyErr == nil {
			n := next
			n.Version = claimed.Version
			_, err := tx.UpdateLead(ctx, n)
			if errors.Is(err, store.ErrVersionConflict) {
				err = c.reapply(ctx, tx, lead.ID, ev, now, opts, e.Metadata)
			}
			if err != nil {
				return err
			}
		} else {
			e.Metadata["transition_error"] = applyErr.Error()
		}

		if _, err := tx.AppendAction(ctx, e); err != nil {
			return err
		}
		return tx.IncrementTotals(ctx, totals)
	})
	if err != nil {
		return storeErr("commit send", err)
	}
	return nil
}

func (c *cycle) reapply(ctx context.Context, tx *store.Tx, id int64, ev leadstate.Event, now time.Time,
	opts leadstate.Options, meta map[string]string) error {
	cur, err := tx.GetLead(ctx, id)
	if err != nil {
		return err
	}
	next, err := leadstate.Apply(cur, ev, now, opts)
	if err != nil {
		meta["superseded_by"] = string(cur.Status)
		c.log.InfoCtx(ctx, "Lead changed during send, keeping its status",
			logger.Field{Key: "lead_id", Value: id},
			logger.Field{Key: "status", Value: string(cur.Status)})
		return nil
	}
	_, err = tx.UpdateLead(ctx, next)
	return err
}

// observeOutcome feeds the safety window and trips the breaker when the
// error rate crosses the threshold.
func (c *cycle) observeOutcome(ctx context.Context, outcome model.Outcome, at time.Time) (bool, error) {
	c.window.Add(outcome, at)
	probe := c.cfg.Clone()
	verdict := safety.Evaluate(&probe, c.window, at)
	c.r.observer.ErrorRate(verdict.Rate)
	if verdict.State != safety.StateTripped {
		return false, nil
	}

	_, err := c.r.mutateConfig(ctx, func(_ *store.Tx, cfg *model.AgentConfig) (bool, error) {
		if cfg.IsPaused {
			return false, nil
		}
		safety.Trip(cfg, at)
		return true, nil
	})
	if err != nil {
		return true, storeErr("trip safety breaker", err)
	}
	c.log.WarnCtx(ctx, "Error rate above threshold, agent paused",
		logger.Field{Key: "error_rate", Value: verdict.Rate},
		logger.Field{Key: "threshold", Value: c.cfg.ErrorRateThreshold},
		logger.Field{Key: "outcomes", Value: verdict.Total})
	c.res.Status, c.res.Reason = CycleTripped, string(model.PauseReasonErrorRate)
	return true, nil
}

// skip records a skipped lead.
func (c *cycle) skip(ctx context.Context, lead model.Lead, reason string, cause error, now time.Time) error {
	c.res.Skipped++
	entry := model.ActionLogEntry{
		RunID:                    c.runID,
		ActionType:               model.ActionSkip,
		Outcome:                  model.OutcomeSkipped,
		LeadID:                   lead.ID,
		LeadEmail:                lead.Email,
		DecisionReason:           reason,
		EmailsSentBefore:         c.cfg.EmailsSentToday,
		EmailsSentThisHourBefore: c.cfg.EmailsSentThisHour,
		CreatedAt:                now,
	}
	if cause != nil {
		entry.ErrorMessage = cause.Error()
	}
	if _, err := c.r.store.AppendAction(ctx, entry); err != nil {
		return storeErr("record skip", err)
	}
	c.r.observer.ActionRecorded(entry.ActionType, entry.Outcome)
	c.log.DebugCtx(ctx, "Lead skipped",
		logger.Field{Key: "lead_id", Value: lead.ID},
		logger.Field{Key: "reason", Value: reason})
	return nil
}

func cloneMeta(m map[string]string) map[string]string {
	out := make(map[string]string, len(m)+1)
	for k, v := range m {
		out[k] = v
	}
	return out
}
