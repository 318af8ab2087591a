package llm

import (
	"context"
	"sync"
	"time"
)

// TokenBucket ограничивает частоту запросов к LLM, чтобы локальная модель
// не захлебнулась при большом батче лидов.
type TokenBucket struct {
	capacity     int           // Максимальное количество токенов
	tokens       int           // Текущее количество токенов
	refillRate   time.Duration // Интервал пополнения
	refillAmount int           // Токенов за интервал
	lastRefill   time.Time
	now          func() time.Time
	mu           sync.Mutex
}

// NewTokenBucket создает полный bucket.
func NewTokenBucket(capacity int, refillInterval time.Duration, refillAmount int) *TokenBucket {
	if refillInterval <= 0 {
		refillInterval = time.Second
	}
	if refillAmount <= 0 {
		refillAmount = 1
	}
	return &TokenBucket{
		capacity:     capacity,
		tokens:       capacity,
		refillRate:   refillInterval,
		refillAmount: refillAmount,
		lastRefill:   time.Now(),
		now:          time.Now,
	}
}

// TryAcquire берет токен, если он есть; иначе возвращает время ожидания.
func (b *TokenBucket) TryAcquire() (bool, time.Duration) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	if elapsed := now.Sub(b.lastRefill); elapsed >= b.refillRate {
		intervals := int(elapsed / b.refillRate)
		b.tokens = min(b.capacity, b.tokens+intervals*b.refillAmount)
		// остаток сохраняем для точности
		b.lastRefill = now.Add(-elapsed % b.refillRate)
	}

	if b.tokens > 0 {
		b.tokens--
		return true, 0
	}
	return false, b.refillRate - now.Sub(b.lastRefill)%b.refillRate
}

// Wait блокирует до получения токена или отмены ctx.
func (b *TokenBucket) Wait(ctx context.Context) error {
	for {
		ok, wait := b.TryAcquire()
		if ok {
			return nil
		}
		timer := time.NewTimer(wait)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}

// Available возвращает текущее количество токенов.
func (b *TokenBucket) Available() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tokens
}
