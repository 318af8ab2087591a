package builders

import (
	"context"
	"fmt"

	"github.com/aatumaykin/leadbot/internal/config"
	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/runlock"
	"github.com/aatumaykin/leadbot/internal/store"
)

type LockBuilder struct {
	config *config.Config
	logger *logger.Logger
	store  *store.SQLite
}

func NewLockBuilder(cfg *config.Config, log *logger.Logger, st *store.SQLite) *LockBuilder {
	return &LockBuilder{
		config: cfg,
		logger: log,
		store:  st,
	}
}

// Build returns the run lock and a close function for its connection
// (nil when the backend shares the store).
func (b *LockBuilder) Build(ctx context.Context) (runlock.Locker, func() error, error) {
	switch b.config.Lock.Backend {
	case "sqlite":
		if b.store == nil {
			return nil, nil, fmt.Errorf("sqlite lock backend requires the store")
		}
		b.logger.Info("Run lock initialized", logger.Field{Key: "backend", Value: "sqlite"})
		return b.store.RunLock(), nil, nil

	case "memory":
		b.logger.Warn("Run lock is process-local, concurrent workers are not excluded")
		return runlock.NewMemory(), nil, nil

	case "redis":
		l, closeFn, err := runlock.DialRedis(ctx, b.config.Redis.URL, b.config.Redis.Prefix)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect redis lock: %w", err)
		}
		b.logger.Info("Run lock initialized", logger.Field{Key: "backend", Value: "redis"})
		return l, closeFn, nil

	case "postgres":
		l, closeFn, err := runlock.DialPostgres(ctx, b.config.Postgres.DSN)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to connect postgres lock: %w", err)
		}
		b.logger.Info("Run lock initialized", logger.Field{Key: "backend", Value: "postgres"})
		return l, closeFn, nil

	default:
		return nil, nil, fmt.Errorf("unsupported lock backend: %s", b.config.Lock.Backend)
	}
}
