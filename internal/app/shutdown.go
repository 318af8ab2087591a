package app

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// shutdownTimeout bounds the HTTP drain.
const shutdownTimeout = 10 * time.Second

// Shutdown performs graceful shutdown of all components.
// It stops the application in the following order:
//  1. Stops the admin API (in-flight requests drain)
//  2. Stops the cron scheduler so no new ticks are queued
//  3. Stops the worker pool; a running cycle sees its context cancelled and
//     ends after the current lead
//  4. Closes lock backends and the store
//
// The method is thread-safe and idempotent.
func (a *App) Shutdown() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.initialized {
		return nil
	}

	var errs []error

	if a.httpServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.httpServer.Shutdown(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.logger.Error("Failed to stop admin API", err)
			errs = append(errs, err)
		}
		cancel()
		a.httpServer = nil
	}

	if a.scheduler != nil {
		a.scheduler.Stop()
		a.scheduler = nil
	}

	if a.cancel != nil {
		a.cancel()
	}

	if a.workerPool != nil {
		a.workerPool.Stop()
		a.workerPool = nil
	}

	if err := a.closeAll(); err != nil {
		errs = append(errs, err)
	}

	a.started = false
	a.initialized = false

	a.logger.Info("Application shutdown complete")
	return errors.Join(errs...)
}

// closeAll closes connections in reverse order of opening.
func (a *App) closeAll() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Error("Failed to close resource", err)
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
