// Package store is the SQLite persistence layer: leads, the singleton agent
// configuration row, the append-only action log and the lease table used by
// the default run lock.
//
// Writers serialize through BEGIN IMMEDIATE transactions and optimistic
// version checks; transient SQLITE_BUSY / SQLITE_LOCKED errors are retried
// with backoff.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/aatumaykin/leadbot/internal/logger"
	"github.com/aatumaykin/leadbot/internal/retry"
)

var (
	// ErrNotFound is returned when a row does not exist.
	ErrNotFound = errors.New("not found")
	// ErrVersionConflict is returned when an optimistic update lost a race.
	ErrVersionConflict = errors.New("version conflict")
	// ErrDuplicate is returned when a unique key already exists.
	ErrDuplicate = errors.New("already exists")
)

// Config describes the database file and pool.
type Config struct {
	Path          string
	BusyTimeout   time.Duration
	MaxOpenConns  int
	SkipMigrate   bool
	RetryAttempts int
}

// SQLite is the store backed by modernc.org/sqlite.
type SQLite struct {
	*queries
	db       *sql.DB
	path     string
	log      *logger.Logger
	retryCfg retry.Config
}

// Open creates the database file if needed, applies pragmas and migrations.
func Open(ctx context.Context, cfg Config, log *logger.Logger) (*SQLite, error) {
	if cfg.Path == "" {
		return nil, errors.New("store: database path is required")
	}
	if cfg.BusyTimeout <= 0 {
		cfg.BusyTimeout = 10 * time.Second
	}
	if cfg.MaxOpenConns <= 0 {
		cfg.MaxOpenConns = 4
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 4
	}

	if cfg.Path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn(cfg))
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxOpenConns)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if !cfg.SkipMigrate {
		if err := applyMigrations(db, TargetLatest, LatestMigrationVersion, log.StdLogger()); err != nil {
			db.Close()
			return nil, fmt.Errorf("migrate: %w", err)
		}
	}

	s := &SQLite{
		queries: &queries{db: db},
		db:      db,
		path:    cfg.Path,
		log:     log,
		retryCfg: retry.Config{
			MaxAttempts:    cfg.RetryAttempts,
			InitialBackoff: 50 * time.Millisecond,
			MaxBackoff:     500 * time.Millisecond,
			Jitter:         true,
			Retryable:      isTransientSQLiteErr,
			Logger:         log,
			Op:             "sqlite",
		},
	}
	return s, nil
}

func dsn(cfg Config) string {
	return fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(%d)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)&_txlock=immediate",
		cfg.Path, cfg.BusyTimeout.Milliseconds())
}

// Close closes the pool.
func (s *SQLite) Close() error { return s.db.Close() }

// Ping checks connectivity; used by the health endpoint.
func (s *SQLite) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

// Path returns the database file path.
func (s *SQLite) Path() string { return s.path }

// Tx exposes the same queries bound to a transaction.
type Tx struct {
	*queries
}

// InTx runs fn inside one IMMEDIATE transaction. The whole transaction is
// retried on transient contention; fn must therefore be side-effect free
// outside the database.
func (s *SQLite) InTx(ctx context.Context, fn func(*Tx) error) error {
	return retry.DoErr(ctx, s.retryCfg, func(ctx context.Context) error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("begin tx: %w", err)
		}
		if err := fn(&Tx{queries: &queries{db: tx}}); err != nil {
			_ = tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit tx: %w", err)
		}
		return nil
	})
}

// withRetry wraps a single statement outside a transaction.
func (s *SQLite) withRetry(ctx context.Context, fn func(context.Context) error) error {
	return retry.DoErr(ctx, s.retryCfg, fn)
}

// isTransientSQLiteErr matches the error texts modernc.org/sqlite produces
// for SQLITE_BUSY, SQLITE_LOCKED and WAL short reads.
func isTransientSQLiteErr(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, pattern := range []string{
		"SQLITE_BUSY",
		"SQLITE_LOCKED",
		"IOERR_SHORT_READ",
		"database is locked",
		"database table is locked",
		"(5)",
		"(6)",
		"(517)",
		"(522)",
	} {
		if strings.Contains(msg, pattern) {
			return true
		}
	}
	return false
}
