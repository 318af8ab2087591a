// Package app provides the main application structure for leadbot.
// It wires the store, run lock, oracle, transport and agent runner, and
// drives them from the cron scheduler, the worker pool and the admin API.
package app

import (
	"context"
	"net/http"
	"sync"

	"github.com/aatumaykin/leadbot/internal/agent"
	"github.com/aatumaykin/leadbot/internal/cleanup"
	"github.com/aatumaykin/leadbot/internal/config"
	"github.com/aatumaykin/leadbot/internal/health"
	"github.com/aatumaykin/leadbot/internal/llm"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/metrics"
	"github.com/aatumaykin/leadbot/internal/notify"
	"github.com/aatumaykin/leadbot/internal/scheduler"
	"github.com/aatumaykin/leadbot/internal/store"
	"github.com/aatumaykin/leadbot/internal/transport"
	"github.com/aatumaykin/leadbot/internal/workers"
)

// Scheduled job names.
const (
	JobAgentCycle   = "agent_cycle"
	JobHealthCheck  = "health_check"
	JobLogRetention = "log_retention"
)

// App represents the main application structure.
// It holds references to all major components and manages their lifecycle.
type App struct {
	// Configuration and core services
	config *config.Config
	logger *logger.Logger

	// Persistence and the decision pipeline
	store    *store.SQLite
	runner   *agent.Runner
	metrics  *metrics.Prometheus
	notifier notify.Notifier

	// Background task execution
	workerPool *workers.WorkerPool
	scheduler  *scheduler.Scheduler
	health     *health.Checker
	cleanup    *cleanup.Runner

	// Admin API
	httpServer *http.Server

	// Test seams
	provider llm.Provider
	sender   transport.Sender

	// Connections opened during Initialize, closed on shutdown
	closers []func() error

	// Context management
	ctx    context.Context
	cancel context.CancelFunc

	// Thread-safety
	mu          sync.RWMutex
	initialized bool
	started     bool
}

// Option customizes an App before Initialize.
type Option func(*App)

// WithLLMProvider replaces the OpenAI-compatible client of the llm oracle.
func WithLLMProvider(p llm.Provider) Option {
	return func(a *App) { a.provider = p }
}

// WithSender replaces the configured transport.
func WithSender(s transport.Sender) Option {
	return func(a *App) { a.sender = s }
}

// New creates a new App instance with the provided configuration and logger.
// Components are created in Initialize and started in Start.
func New(cfg *config.Config, log *logger.Logger, opts ...Option) *App {
	a := &App{
		config: cfg,
		logger: log,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Run initializes and starts the application and blocks until ctx is
// cancelled, then shuts down.
func (a *App) Run(ctx context.Context) error {
	if err := a.Initialize(ctx); err != nil {
		return err
	}
	if err := a.Start(ctx); err != nil {
		_ = a.Shutdown()
		return err
	}

	a.logger.Info("Application is running")

	<-ctx.Done()

	return a.Shutdown()
}

// Runner returns the agent runner. Nil before Initialize.
func (a *App) Runner() *agent.Runner {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.runner
}

// Store returns the SQLite store. Nil before Initialize.
func (a *App) Store() *store.SQLite {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.store
}

// Scheduler returns the cron scheduler. Nil before Start.
func (a *App) Scheduler() *scheduler.Scheduler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.scheduler
}

// Health returns the health checker. Nil before Initialize.
func (a *App) Health() *health.Checker {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.health
}

// WorkerPool returns the worker pool. Nil before Start.
func (a *App) WorkerPool() *workers.WorkerPool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.workerPool
}
