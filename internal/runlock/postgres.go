package runlock

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const createLocksTable = `CREATE TABLE IF NOT EXISTS leadbot_run_locks (
	name        TEXT PRIMARY KEY,
	owner       TEXT        NOT NULL,
	acquired_at TIMESTAMPTZ NOT NULL,
	expires_at  TIMESTAMPTZ NOT NULL
)`

// execer is the part of pgxpool.Pool the lock needs.
type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Postgres is a Locker backed by a lease row; expiry uses the server clock.
type Postgres struct {
	db execer
}

// NewPostgres ensures the lease table exists.
func NewPostgres(ctx context.Context, db execer) (*Postgres, error) {
	if _, err := db.Exec(ctx, createLocksTable); err != nil {
		return nil, fmt.Errorf("create lock table: %w", err)
	}
	return &Postgres{db: db}, nil
}

// DialPostgres opens a pool for dsn and prepares the lease table.
func DialPostgres(ctx context.Context, dsn string) (*Postgres, func() error, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, nil, fmt.Errorf("create pg pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	p, err := NewPostgres(ctx, pool)
	if err != nil {
		pool.Close()
		return nil, nil, err
	}
	return p, func() error { pool.Close(); return nil }, nil
}

func (p *Postgres) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	tag, err := p.db.Exec(ctx, `INSERT INTO leadbot_run_locks (name, owner, acquired_at, expires_at)
	VALUES ($1, $2, now(), now() + $3 * interval '1 millisecond')
	ON CONFLICT (name) DO UPDATE SET
		owner = EXCLUDED.owner,
		acquired_at = EXCLUDED.acquired_at,
		expires_at = EXCLUDED.expires_at
	WHERE leadbot_run_locks.expires_at <= now() OR leadbot_run_locks.owner = EXCLUDED.owner`,
		name, owner, ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Renew(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	tag, err := p.db.Exec(ctx, `UPDATE leadbot_run_locks
	SET expires_at = now() + $3 * interval '1 millisecond'
	WHERE name = $1 AND owner = $2 AND expires_at > now()`,
		name, owner, ttl.Milliseconds())
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (p *Postgres) Release(ctx context.Context, name, owner string) error {
	_, err := p.db.Exec(ctx, `DELETE FROM leadbot_run_locks WHERE name = $1 AND owner = $2`, name, owner)
	return err
}
