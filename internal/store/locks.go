package store

import (
	"context"
	"fmt"
	"time"
)

// LeaseLock is the run lock kept in the run_locks table. A lease that is
// not renewed before expires_at may be taken over by another owner.
type LeaseLock struct {
	s   *SQLite
	now func() time.Time
}

// RunLock returns the SQLite-backed run lock.
func (s *SQLite) RunLock() *LeaseLock {
	return &LeaseLock{s: s, now: time.Now}
}

// Acquire takes the lease if it is free, expired, or already ours.
func (l *LeaseLock) Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := l.now()
	var acquired bool
	err := l.s.withRetry(ctx, func(ctx context.Context) error {
		res, err := l.s.db.ExecContext(ctx, `INSERT INTO run_locks (name, owner, acquired_at, expires_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			owner = excluded.owner,
			acquired_at = excluded.acquired_at,
			expires_at = excluded.expires_at
		WHERE run_locks.expires_at <= ? OR run_locks.owner = excluded.owner`,
			name, owner, toMillis(now), toMillis(now.Add(ttl)), toMillis(now))
		if err != nil {
			return err
		}
		n, err := rowsAffected(res)
		acquired = n == 1
		return err
	})
	if err != nil {
		return false, fmt.Errorf("acquire lock %s: %w", name, err)
	}
	return acquired, nil
}

// Renew extends a lease we still hold.
func (l *LeaseLock) Renew(ctx context.Context, name, owner string, ttl time.Duration) (bool, error) {
	now := l.now()
	var renewed bool
	err := l.s.withRetry(ctx, func(ctx context.Context) error {
		res, err := l.s.db.ExecContext(ctx, `UPDATE run_locks SET expires_at = ?
		WHERE name = ? AND owner = ? AND expires_at > ?`,
			toMillis(now.Add(ttl)), name, owner, toMillis(now))
		if err != nil {
			return err
		}
		n, err := rowsAffected(res)
		renewed = n == 1
		return err
	})
	if err != nil {
		return false, fmt.Errorf("renew lock %s: %w", name, err)
	}
	return renewed, nil
}

// Release drops the lease if we own it.
func (l *LeaseLock) Release(ctx context.Context, name, owner string) error {
	err := l.s.withRetry(ctx, func(ctx context.Context) error {
		_, err := l.s.db.ExecContext(ctx, `DELETE FROM run_locks WHERE name = ? AND owner = ?`, name, owner)
		return err
	})
	if err != nil {
		return fmt.Errorf("release lock %s: %w", name, err)
	}
	return nil
}
