// Package retry runs an operation with exponential backoff. It is used for
// oracle calls, SQLite contention and lock backends.
package retry

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/aatumaykin/leadbot/internal/logger"
)

const (
	defaultMaxAttempts  = 3
	defaultInitialDelay = 1 * time.Second
	defaultMaxDelay     = 10 * time.Second
)

// Config represents retry configuration.
type Config struct {
	MaxAttempts    int           // Maximum number of attempts (default: 3)
	InitialBackoff time.Duration // Initial backoff duration (default: 1s)
	MaxBackoff     time.Duration // Maximum backoff duration (default: 10s)
	Jitter         bool          // Add up to InitialBackoff of random delay

	// Retryable decides whether an error is worth another attempt.
	// Defaults to IsRetryable.
	Retryable func(error) bool

	// Logger receives one debug line per failed attempt. Optional.
	Logger *logger.Logger
	// Op names the operation in log lines.
	Op string
}

func (c Config) withDefaults() Config {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = defaultMaxAttempts
	}
	if c.InitialBackoff <= 0 {
		c.InitialBackoff = defaultInitialDelay
	}
	if c.MaxBackoff <= 0 {
		c.MaxBackoff = defaultMaxDelay
	}
	if c.Retryable == nil {
		c.Retryable = IsRetryable
	}
	return c
}

// Do executes fn until it succeeds, returns a non-retryable error, the
// attempts are exhausted or ctx is done.
func Do[T any](ctx context.Context, cfg Config, fn func(context.Context) (T, error)) (T, error) {
	cfg = cfg.withDefaults()
	var zero T
	var lastErr error

	for attempt := 0; attempt < cfg.MaxAttempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !cfg.Retryable(err) {
			return zero, err
		}
		if attempt == cfg.MaxAttempts-1 {
			break
		}

		backoff := calculateBackoff(attempt, cfg.InitialBackoff, cfg.MaxBackoff)
		if cfg.Jitter {
			backoff += time.Duration(rand.Int64N(int64(cfg.InitialBackoff)))
		}
		if cfg.Logger != nil {
			cfg.Logger.DebugCtx(ctx, "retrying after error",
				logger.Field{Key: "op", Value: cfg.Op},
				logger.Field{Key: "attempt", Value: attempt + 1},
				logger.Field{Key: "max_attempts", Value: cfg.MaxAttempts},
				logger.Field{Key: "backoff", Value: backoff},
				logger.Field{Key: "error", Value: err})
		}

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return zero, ctx.Err()
		}
	}

	return zero, fmt.Errorf("all %d attempts failed: %w", cfg.MaxAttempts, lastErr)
}

// DoErr is Do for operations without a result.
func DoErr(ctx context.Context, cfg Config, fn func(context.Context) error) error {
	_, err := Do(ctx, cfg, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, fn(ctx)
	})
	return err
}

// StatusCoder is implemented by HTTP-ish errors that carry a status code.
type StatusCoder interface {
	StatusCode() int
}

// IsRetryable reports whether err looks transient: timeouts, network
// failures, 429 and 5xx responses. Cancellation and 4xx are final.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var sc StatusCoder
	if errors.As(err, &sc) {
		code := sc.StatusCode()
		return code == 429 || code >= 500
	}

	errLower := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"deadline exceeded",
		"timeout",
		"connection refused",
		"connection reset",
		"broken pipe",
		"temporary failure",
		"eof",
		"too many requests",
		"rate limit",
		"network",
	} {
		if strings.Contains(errLower, pattern) {
			return true
		}
	}
	return false
}

// calculateBackoff returns 2^attempt * initial, capped at max.
func calculateBackoff(attempt int, initial, max time.Duration) time.Duration {
	backoff := time.Duration(1<<uint(attempt)) * initial
	if backoff > max || backoff <= 0 {
		return max
	}
	return backoff
}
