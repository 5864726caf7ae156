package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// Memory keeps one token bucket per key. Buckets idle for longer than the
// idle TTL are swept on the next call after the sweep interval.
type Memory struct {
	mu        sync.Mutex
	buckets   map[string]*bucket
	limit     rate.Limit
	burst     int
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
}

var _ Limiter = (*Memory)(nil)

type MemoryOption func(*Memory)

// WithMemoryClock overrides the time source.
func WithMemoryClock(now func() time.Time) MemoryOption {
	return func(m *Memory) {
		if now != nil {
			m.now = now
		}
	}
}

// WithIdleTTL overrides how long an unused bucket is kept.
func WithIdleTTL(ttl time.Duration) MemoryOption {
	return func(m *Memory) {
		if ttl > 0 {
			m.idleTTL = ttl
		}
	}
}

func NewMemory(perSecond float64, burst int, opts ...MemoryOption) *Memory {
	m := &Memory{
		buckets: make(map[string]*bucket),
		limit:   rate.Limit(perSecond),
		burst:   burst,
		idleTTL: 5 * time.Minute,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	m.lastSweep = m.now()
	return m
}

func (m *Memory) Allow(_ context.Context, key string) (Decision, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	if now.Sub(m.lastSweep) > time.Minute {
		m.sweep(now)
	}
	b, ok := m.buckets[key]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(m.limit, m.burst)}
		m.buckets[key] = b
	}
	b.seen = now

	if b.lim.AllowN(now, 1) {
		return Decision{
			Allowed:   true,
			Limit:     m.burst,
			Remaining: int(b.lim.TokensAt(now)),
			ResetAt:   now,
		}, nil
	}
	// узнаём, когда появится следующий токен, и отменяем резерв
	r := b.lim.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return Decision{
		Allowed:   false,
		Limit:     m.burst,
		Remaining: 0,
		ResetAt:   now.Add(delay),
	}, nil
}

// Len reports the number of tracked keys.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.buckets)
}

func (m *Memory) sweep(now time.Time) {
	for k, b := range m.buckets {
		if now.Sub(b.seen) > m.idleTTL {
			delete(m.buckets, k)
		}
	}
	m.lastSweep = now
}
