package app

import (
	"context"
	"fmt"
	"time"

	"github.com/aatumaykin/leadbot/internal/agent"
	"github.com/aatumaykin/leadbot/internal/api"
	"github.com/aatumaykin/leadbot/internal/app/builders"
	"github.com/aatumaykin/leadbot/internal/cleanup"
	"github.com/aatumaykin/leadbot/internal/decision"
	"github.com/aatumaykin/leadbot/internal/health"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/metrics"
	"github.com/aatumaykin/leadbot/internal/model"
	"github.com/aatumaykin/leadbot/internal/safety"
	"github.com/aatumaykin/leadbot/internal/scheduler"
	"github.com/aatumaykin/leadbot/internal/store"
	"github.com/aatumaykin/leadbot/internal/workers"
)

// Initialize opens the store, seeds the agent config row on first run and
// builds the decision pipeline. Nothing runs in the background until Start.
// One-shot CLI commands stop here and call Shutdown when done.
func (a *App) Initialize(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.initialized {
		return nil
	}
	a.ctx, a.cancel = context.WithCancel(ctx)

	// 1. Store and the persisted agent config
	st, err := store.Open(a.ctx, store.Config{
		Path:         a.config.Storage.Path,
		BusyTimeout:  a.config.Storage.BusyTimeout,
		MaxOpenConns: a.config.Storage.MaxOpenConns,
	}, a.logger)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	a.store = st
	a.closers = append(a.closers, st.Close)

	agentCfg, created, err := st.EnsureAgentConfig(a.ctx, a.config.AgentSeed())
	if err != nil {
		a.closeAll()
		return fmt.Errorf("failed to load agent config: %w", err)
	}
	if created {
		a.logger.Info("Agent config seeded from file",
			logger.Field{Key: "daily_email_limit", Value: agentCfg.DailyEmailLimit},
			logger.Field{Key: "hourly_email_limit", Value: agentCfg.HourlyEmailLimit},
			logger.Field{Key: "timezone", Value: agentCfg.Timezone})
	} else if errs := agentCfg.Validate(); len(errs) > 0 {
		a.closeAll()
		return fmt.Errorf("stored agent config is invalid: %w", &agent.ValidationError{Problems: errs})
	}

	// 2. Run lock
	locker, closeLock, err := builders.NewLockBuilder(a.config, a.logger, st).Build(a.ctx)
	if err != nil {
		a.closeAll()
		return err
	}
	if closeLock != nil {
		a.closers = append(a.closers, closeLock)
	}

	// 3. Oracle and decision engine
	oracle, err := builders.NewOracleBuilder(a.config, a.logger).WithProvider(a.provider).Build()
	if err != nil {
		a.closeAll()
		return err
	}
	engine := decision.New(oracle, decision.Options{
		Timeout: a.config.Oracle.Timeout,
		Breaker: safety.NewBreaker(a.config.Safety.OracleBreakerThreshold, a.config.Safety.OracleBreakerCooldown),
	})

	// 4. Transport
	sender := a.sender
	if sender == nil {
		if sender, err = builders.NewTransportBuilder(a.config, a.logger).Build(); err != nil {
			a.closeAll()
			return err
		}
	}

	// 5. Metrics
	var observer agent.Observer = agent.NopObserver{}
	if a.config.Metrics.Enabled {
		a.metrics = metrics.New(a.config.Metrics.Namespace, a.config.Metrics.Runtime)
		observer = a.metrics
	}

	// 6. Agent runner
	runner, err := agent.NewRunner(agent.Config{
		Store:            st,
		Engine:           engine,
		Sender:           sender,
		Locker:           locker,
		Logger:           a.logger,
		Observer:         observer,
		LockName:         a.config.Lock.Name,
		LockTTL:          a.config.Lock.TTL,
		SendTimeout:      a.config.Transport.SendTimeout,
		TransportBreaker: safety.NewBreaker(a.config.Safety.TransportBreakerThreshold, a.config.Safety.TransportBreakerCooldown),
	})
	if err != nil {
		a.closeAll()
		return fmt.Errorf("failed to create agent runner: %w", err)
	}
	a.runner = runner

	// 7. Health checks and retention
	notifier, err := builders.NewNotifyBuilder(a.config, a.logger).Build()
	if err != nil {
		a.closeAll()
		return err
	}
	a.notifier = notifier
	a.health = health.NewChecker(runner, notifier, health.Config{
		NoActivityAfter: a.config.Health.NoActivityAfter,
		AlertCooldown:   a.config.Health.AlertCooldown,
	}, a.logger)
	a.cleanup = cleanup.NewRunner(cleanup.Config{RetentionDays: a.config.Cleanup.RetentionDays}, st)

	a.initialized = true
	return nil
}

// Start launches the worker pool, the cron jobs and the admin API.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return fmt.Errorf("app is not initialized")
	}
	if a.started {
		return nil
	}

	agentCfg, err := a.store.LoadAgentConfig(ctx)
	if err != nil {
		return fmt.Errorf("failed to load agent config: %w", err)
	}
	loc, err := agentCfg.Location()
	if err != nil {
		return err
	}

	// 1. Worker pool
	poolCfg := workers.Config{
		Workers:     a.config.Workers.PoolSize,
		QueueSize:   a.config.Workers.QueueSize,
		TaskTimeout: a.config.Workers.TaskTimeout,
	}
	if a.metrics != nil {
		poolCfg.Recorder = a.metrics
	}
	a.workerPool = workers.NewPool(poolCfg, a.logger)
	a.workerPool.Register(workers.TaskAgentCycle, a.executeCycle)
	a.workerPool.Register(workers.TaskHealthCheck, func(ctx context.Context, _ workers.Task) (string, error) {
		return a.health.Execute(ctx)
	})
	a.workerPool.Register(workers.TaskLogRetention, func(ctx context.Context, _ workers.Task) (string, error) {
		return a.cleanup.Execute(ctx, a.logger)
	})
	a.workerPool.Start()

	// 2. Cron jobs
	a.scheduler = scheduler.New(a.logger, a.workerPool, loc)
	jobs := []scheduler.Job{{
		Name:     JobAgentCycle,
		Schedule: scheduler.EverySpec(agentCfg.AgentCheckInterval),
		TaskType: workers.TaskAgentCycle,
	}}
	if a.config.Health.Enabled {
		jobs = append(jobs, scheduler.Job{
			Name:     JobHealthCheck,
			Schedule: scheduler.EverySpec(a.config.Health.CheckInterval),
			TaskType: workers.TaskHealthCheck,
		})
	}
	if a.config.Cleanup.Enabled {
		jobs = append(jobs, scheduler.Job{
			Name:     JobLogRetention,
			Schedule: a.config.Cleanup.Schedule,
			TaskType: workers.TaskLogRetention,
		})
	}
	for _, job := range jobs {
		if err := a.scheduler.Add(job); err != nil {
			a.workerPool.Stop()
			return fmt.Errorf("failed to schedule %s: %w", job.Name, err)
		}
	}
	if err := a.scheduler.Start(a.ctx); err != nil {
		a.workerPool.Stop()
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	// 3. Admin API
	if a.config.HTTP.Enabled {
		if err := a.startHTTP(); err != nil {
			a.scheduler.Stop()
			a.workerPool.Stop()
			return err
		}
	}

	a.started = true

	// 4. Optional auto start
	if a.config.Agent.AutoStart {
		if _, err := a.runner.Start(ctx); err != nil {
			a.logger.Error("Failed to auto start agent", err)
		}
	}
	return nil
}

func (a *App) startHTTP() error {
	opts := api.Options{
		Runner:         a.runner,
		Health:         a.health,
		Pinger:         a.store,
		Trigger:        a.TriggerCycle,
		OnConfigChange: a.onConfigChange,
		AuthToken:      a.config.HTTP.AuthToken,
		Logger:         a.logger,
	}
	if a.metrics != nil {
		opts.Metrics = a.metrics.Handler()
		opts.MetricsPath = a.config.Metrics.Path
	}
	srv, err := api.NewServer(opts)
	if err != nil {
		return fmt.Errorf("failed to create admin API: %w", err)
	}
	a.httpServer = srv.NewHTTPServer(a.config.HTTP.Listen, a.config.HTTP.ReadTimeout, a.config.HTTP.WriteTimeout)

	errCh := make(chan error, 1)
	go func() {
		errCh <- a.httpServer.ListenAndServe()
	}()
	select {
	case err := <-errCh:
		return fmt.Errorf("failed to start admin API on %s: %w", a.config.HTTP.Listen, err)
	case <-time.After(100 * time.Millisecond):
	}
	a.logger.Info("Admin API listening", logger.Field{Key: "addr", Value: a.config.HTTP.Listen})
	return nil
}

// executeCycle is the worker task for the agent_cycle job.
func (a *App) executeCycle(ctx context.Context, _ workers.Task) (string, error) {
	res, err := a.runner.RunCycle(ctx)
	if a.metrics != nil {
		a.metrics.BreakerState("oracle", a.runner.OracleBreaker().State())
		a.metrics.BreakerState("transport", a.runner.TransportBreaker().State())
	}
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("run=%s status=%s sent=%d skipped=%d errored=%d",
		res.RunID, res.Status, res.Sent, res.Skipped, res.Errored), nil
}

// TriggerCycle queues a cycle outside the schedule.
func (a *App) TriggerCycle() error {
	a.mu.RLock()
	s := a.scheduler
	a.mu.RUnlock()
	if s == nil {
		return fmt.Errorf("scheduler is not running")
	}
	return s.Trigger(JobAgentCycle)
}

// onConfigChange follows a changed cycle interval.
func (a *App) onConfigChange(cfg model.AgentConfig) {
	a.mu.RLock()
	s := a.scheduler
	a.mu.RUnlock()
	if s == nil {
		return
	}
	if err := s.Reschedule(JobAgentCycle, scheduler.EverySpec(cfg.AgentCheckInterval)); err != nil {
		a.logger.Error("Failed to reschedule agent cycle", err)
	}
}
