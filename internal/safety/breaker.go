package safety

import (
	"sync/atomic"
	"time"
)

// BreakerState is the state of a dependency breaker.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half_open"
	default:
		return "closed"
	}
}

// Breaker short-circuits calls to a dependency after threshold consecutive
// failures and lets a single probe through once cooldown has elapsed.
type Breaker struct {
	state            atomic.Int32
	failures         atomic.Int32
	lastFail         atomic.Int64
	halfOpenAttempts atomic.Int32
	threshold        int32
	cooldown         time.Duration
	now              func() time.Time
}

// NewBreaker returns a closed breaker. Zero values fall back to 5 failures
// and a 30s cooldown.
func NewBreaker(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{threshold: int32(threshold), cooldown: cooldown, now: time.Now}
}

// Allow reports whether a call may proceed.
func (b *Breaker) Allow() bool {
	for {
		switch BreakerState(b.state.Load()) {
		case BreakerClosed:
			return true

		case BreakerOpen:
			lastFail := time.Unix(0, b.lastFail.Load())
			if b.now().Sub(lastFail) <= b.cooldown {
				return false
			}
			if !b.state.CompareAndSwap(int32(BreakerOpen), int32(BreakerHalfOpen)) {
				continue
			}
			b.halfOpenAttempts.Store(1)
			return true

		case BreakerHalfOpen:
			return b.halfOpenAttempts.CompareAndSwap(0, 1)
		}
	}
}

// RecordSuccess closes the breaker.
func (b *Breaker) RecordSuccess() {
	b.failures.Store(0)
	b.halfOpenAttempts.Store(0)
	b.state.Store(int32(BreakerClosed))
}

// RecordFailure counts a failure; a failed half-open probe reopens at once.
func (b *Breaker) RecordFailure() {
	n := b.failures.Add(1)
	b.lastFail.Store(b.now().UnixNano())

	if BreakerState(b.state.Load()) == BreakerHalfOpen || n >= b.threshold {
		b.state.Store(int32(BreakerOpen))
		b.halfOpenAttempts.Store(0)
	}
}

// State returns the current state.
func (b *Breaker) State() BreakerState {
	return BreakerState(b.state.Load())
}

// Reset closes the breaker and clears counters.
func (b *Breaker) Reset() {
	b.RecordSuccess()
	b.lastFail.Store(0)
}
