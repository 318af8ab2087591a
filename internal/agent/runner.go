// Package agent runs the outreach cycle and owns the agent's run state.
//
// Runner ties the gates together: run state, safety breaker, business hours,
// the run lock, the per-lead decision, budget reservation, delivery and the
// lead lifecycle. All persisted state lives in the store; the runner itself
// keeps only wiring.
package agent

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/aatumaykin/leadbot/internal/decision"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/ratelimit"
	"github.com/aatumaykin/leadbot/internal/runlock"
	"github.com/aatumaykin/leadbot/internal/safety"
	"github.com/aatumaykin/leadbot/internal/store"
	"github.com/aatumaykin/leadbot/internal/timegate"
	"github.com/aatumaykin/leadbot/internal/transport"
)

var (
	// ErrNotRunning is returned by Pause and Resume on a stopped agent.
	ErrNotRunning = errors.New("agent is not running")
	// ErrStoreUnavailable marks a cycle aborted because storage failed.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrInvalidConfig wraps validation failures of a config update.
	ErrInvalidConfig = errors.New("invalid agent config")
	// ErrInvalidReply is returned for a reply kind that is not a reply outcome.
	ErrInvalidReply = errors.New("invalid reply kind")
	// ErrInvalidLead is returned by AddLead for unusable input.
	ErrInvalidLead = errors.New("invalid lead")
)

const (
	DefaultLockName    = "agent_cycle"
	DefaultLockTTL     = 10 * time.Minute
	DefaultSendTimeout = 30 * time.Second
)

// Config wires a Runner.
type Config struct {
	Store    *store.SQLite
	Engine   *decision.Engine
	Sender   transport.Sender
	Locker   runlock.Locker
	Logger   *logger.Logger
	Observer Observer

	LockName    string
	LockTTL     time.Duration
	SendTimeout time.Duration
	// TransportBreaker stops a cycle early once the transport keeps failing.
	TransportBreaker *safety.Breaker
	// Clock is time.Now unless a test pins it.
	Clock func() time.Time
}

// Runner executes cycles and the administrative operations.
type Runner struct {
	store    *store.SQLite
	engine   *decision.Engine
	sender   transport.Sender
	locker   runlock.Locker
	log      *logger.Logger
	observer Observer

	limiter ratelimit.Limiter
	gate    timegate.Gate

	lockName    string
	lockTTL     time.Duration
	sendTimeout time.Duration
	transportBr *safety.Breaker
	now         func() time.Time

	cycling atomic.Bool
}

// NewRunner validates cfg and creates a Runner.
func NewRunner(cfg Config) (*Runner, error) {
	if cfg.Store == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg.Engine == nil {
		return nil, fmt.Errorf("decision engine cannot be nil")
	}
	if cfg.Sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger cannot be nil")
	}
	if cfg.Locker == nil {
		cfg.Locker = cfg.Store.RunLock()
	}
	if cfg.Observer == nil {
		cfg.Observer = NopObserver{}
	}
	if cfg.LockName == "" {
		cfg.LockName = DefaultLockName
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = DefaultLockTTL
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = DefaultSendTimeout
	}
	if cfg.TransportBreaker == nil {
		cfg.TransportBreaker = safety.NewBreaker(0, 0)
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}

	return &Runner{
		store:       cfg.Store,
		engine:      cfg.Engine,
		sender:      cfg.Sender,
		locker:      cfg.Locker,
		log:         cfg.Logger,
		observer:    cfg.Observer,
		limiter:     ratelimit.New(),
		lockName:    cfg.LockName,
		lockTTL:     cfg.LockTTL,
		sendTimeout: cfg.SendTimeout,
		transportBr: cfg.TransportBreaker,
		now:         func() time.Time { return cfg.Clock().UTC() },
	}, nil
}

// TransportBreaker exposes the transport breaker for health reporting.
func (r *Runner) TransportBreaker() *safety.Breaker { return r.transportBr }

// OracleBreaker exposes the oracle breaker for health reporting.
func (r *Runner) OracleBreaker() *safety.Breaker { return r.engine.Breaker() }

// mutateConfig loads the config row, lets fn change it and saves it when fn
// reports a change, all in one transaction.
func (r *Runner) mutateConfig(ctx context.Context, fn func(tx *store.Tx, cfg *model.AgentConfig) (bool, error)) (model.AgentConfig, error) {
	var out model.AgentConfig
	err := r.store.InTx(ctx, func(tx *store.Tx) error {
		cfg, err := tx.LoadAgentConfig(ctx)
		if err != nil {
			return err
		}
		changed, err := fn(tx, &cfg)
		if err != nil {
			return err
		}
		if changed {
			if cfg, err = tx.SaveAgentConfig(ctx, cfg); err != nil {
				return err
			}
		}
		out = cfg
		return nil
	})
	return out, err
}

// control records an operator action in the audit log.
func control(ctx context.Context, tx *store.Tx, op string, now time.Time, meta map[string]string) error {
	_, err := tx.AppendAction(ctx, model.ActionLogEntry{
		ActionType:     model.ActionControl,
		Outcome:        model.OutcomeApplied,
		DecisionReason: op,
		Metadata:       meta,
		CreatedAt:      now,
	})
	return err
}

// Start moves the agent to running. A fresh start clears any safety trip
// and starts a new safety window. Starting a running agent is a no-op.
func (r *Runner) Start(ctx context.Context) (Status, error) {
	now := r.now()
	_, err := r.mutateConfig(ctx, func(tx *store.Tx, cfg *model.AgentConfig) (bool, error) {
		if cfg.IsRunning {
			return false, nil
		}
		cfg.IsRunning = true
		safety.Reset(cfg, now)
		cfg.AgentStartedAt = model.TimePtr(now)
		cfg.NextAgentRunAt = model.TimePtr(now)
		return true, control(ctx, tx, "start", now, nil)
	})
	if err != nil {
		return Status{}, fmt.Errorf("start agent: %w", err)
	}
	r.log.InfoCtx(ctx, "Agent started")
	return r.Status(ctx)
}

// Stop moves the agent to stopped. Counters are kept.
func (r *Runner) Stop(ctx context.Context) (Status, error) {
	now := r.now()
	_, err := r.mutateConfig(ctx, func(tx *store.Tx, cfg *model.AgentConfig) (bool, error) {
		if !cfg.IsRunning {
			return false, nil
		}
		cfg.IsRunning = false
		cfg.IsPaused = false
		cfg.PauseReason = model.PauseReasonNone
		cfg.AgentStoppedAt = model.TimePtr(now)
		cfg.NextAgentRunAt = nil
		return true, control(ctx, tx, "stop", now, nil)
	})
	if err != nil {
		return Status{}, fmt.Errorf("stop agent: %w", err)
	}
	r.log.InfoCtx(ctx, "Agent stopped")
	return r.Status(ctx)
}

// Pause suspends cycles without stopping the agent.
func (r *Runner) Pause(ctx context.Context) (Status, error) {
	now := r.now()
	var notRunning bool
	_, err := r.mutateConfig(ctx, func(tx *store.Tx, cfg *model.AgentConfig) (bool, error) {
		if !cfg.IsRunning {
			notRunning = true
			return false, nil
		}
		if cfg.IsPaused {
			return false, nil
		}
		cfg.IsPaused = true
		cfg.PauseReason = model.PauseReasonManual
		return true, control(ctx, tx, "pause", now, nil)
	})
	if err != nil {
		return Status{}, fmt.Errorf("pause agent: %w", err)
	}
	st, err := r.Status(ctx)
	if err != nil {
		return st, err
	}
	if notRunning {
		return st, ErrNotRunning
	}
	r.log.InfoCtx(ctx, "Agent paused")
	return st, nil
}

// Resume continues a paused agent. Resuming after a safety trip starts a
// fresh safety window so the old failures do not trip it again at once.
func (r *Runner) Resume(ctx context.Context) (Status, error) {
	now := r.now()
	var notRunning bool
	_, err := r.mutateConfig(ctx, func(tx *store.Tx, cfg *model.AgentConfig) (bool, error) {
		if !cfg.IsRunning {
			notRunning = true
			return false, nil
		}
		if !cfg.IsPaused {
			return false, nil
		}
		prev := cfg.PauseReason
		safety.Reset(cfg, now)
		cfg.NextAgentRunAt = model.TimePtr(now)
		return true, control(ctx, tx, "resume", now, map[string]string{"previous_reason": string(prev)})
	})
	if err != nil {
		return Status{}, fmt.Errorf("resume agent: %w", err)
	}
	st, err := r.Status(ctx)
	if err != nil {
		return st, err
	}
	if notRunning {
		return st, ErrNotRunning
	}
	r.log.InfoCtx(ctx, "Agent resumed")
	return st, nil
}
