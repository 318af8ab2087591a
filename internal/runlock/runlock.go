// Package runlock provides the lease that keeps agent cycles mutually
// exclusive across processes. The SQLite backend lives in the store package;
// Redis and PostgreSQL backends live here.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrLockHeld is returned when another owner holds the lease.
var ErrLockHeld = errors.New("run lock held by another owner")

// ErrLeaseLost is returned when a renewal finds the lease gone.
var ErrLeaseLost = errors.New("run lock lease lost")

// Locker is a non-blocking lease lock.
type Locker interface {
	Acquire(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Renew(ctx context.Context, name, owner string, ttl time.Duration) (bool, error)
	Release(ctx context.Context, name, owner string) error
}

// NewOwner returns a unique owner token for one process/cycle.
func NewOwner(prefix string) string {
	if prefix == "" {
		return uuid.NewString()
	}
	return prefix + "-" + uuid.NewString()
}

// Lease is one held lock. It renews itself when more than half of the TTL
// has elapsed since the last acquire or renew.
type Lease struct {
	locker  Locker
	name    string
	owner   string
	ttl     time.Duration
	renewed time.Time
	now     func() time.Time
}

// Acquire takes the lease or returns ErrLockHeld.
func Acquire(ctx context.Context, l Locker, name, owner string, ttl time.Duration) (*Lease, error) {
	return acquireAt(ctx, l, name, owner, ttl, time.Now)
}

func acquireAt(ctx context.Context, l Locker, name, owner string, ttl time.Duration, now func() time.Time) (*Lease, error) {
	ok, err := l.Acquire(ctx, name, owner, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrLockHeld)
	}
	return &Lease{locker: l, name: name, owner: owner, ttl: ttl, renewed: now(), now: now}, nil
}

// Owner returns the owner token.
func (l *Lease) Owner() string { return l.owner }

// TTL returns the lease duration.
func (l *Lease) TTL() time.Duration { return l.ttl }

// KeepAlive renews the lease when past half of its TTL.
func (l *Lease) KeepAlive(ctx context.Context) error {
	now := l.now()
	if now.Sub(l.renewed) < l.ttl/2 {
		return nil
	}
	ok, err := l.locker.Renew(ctx, l.name, l.owner, l.ttl)
	if err != nil {
		return fmt.Errorf("renew %s: %w", l.name, err)
	}
	if !ok {
		return fmt.Errorf("%s: %w", l.name, ErrLeaseLost)
	}
	l.renewed = now
	return nil
}

// Release drops the lease.
func (l *Lease) Release(ctx context.Context) error {
	return l.locker.Release(ctx, l.name, l.owner)
}

// Memory is an in-process Locker for tests and single-binary dry runs.
type Memory struct {
	mu     sync.Mutex
	leases map[string]memLease
	now    func() time.Time
}

type memLease struct {
	owner   string
	expires time.Time
}

// NewMemory creates an empty in-process locker.
func NewMemory() *Memory {
	return &Memory{leases: make(map[string]memLease), now: time.Now}
}

func (m *Memory) Acquire(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	cur, ok := m.leases[name]
	if ok && cur.owner != owner && now.Before(cur.expires) {
		return false, nil
	}
	m.leases[name] = memLease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (m *Memory) Renew(_ context.Context, name, owner string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	cur, ok := m.leases[name]
	if !ok || cur.owner != owner || !now.Before(cur.expires) {
		return false, nil
	}
	m.leases[name] = memLease{owner: owner, expires: now.Add(ttl)}
	return true, nil
}

func (m *Memory) Release(_ context.Context, name, owner string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.leases[name]; ok && cur.owner == owner {
		delete(m.leases, name)
	}
	return nil
}
