package middleware

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimitConfig controls the token bucket handed to every key.
type RateLimitConfig struct {
	// Requests allowed per Window once the burst is spent.
	Requests int
	Window   time.Duration
	Burst    int
	// TTL evicts buckets that have been idle for longer than this.
	TTL time.Duration
}

func (c RateLimitConfig) withDefaults() RateLimitConfig {
	if c.Requests <= 0 {
		c.Requests = 1
	}
	if c.Window <= 0 {
		c.Window = time.Second
	}
	if c.Burst <= 0 {
		c.Burst = 1
	}
	if c.TTL <= 0 {
		c.TTL = 5 * time.Minute
	}
	return c
}

type bucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// KeyedRateLimiter hands out one token bucket per key, such as a user id or client IP.
type KeyedRateLimiter struct {
	mu      sync.Mutex
	buckets map[string]*bucket
	limit   rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time
}

// NewKeyedRateLimiter constructs a limiter from cfg, filling in defaults for zero fields.
func NewKeyedRateLimiter(cfg RateLimitConfig) *KeyedRateLimiter {
	cfg = cfg.withDefaults()
	return &KeyedRateLimiter{
		buckets: make(map[string]*bucket),
		limit:   rate.Every(cfg.Window / time.Duration(cfg.Requests)),
		burst:   cfg.Burst,
		ttl:     cfg.TTL,
		now:     time.Now,
	}
}

// Allow reports whether key may perform one more event now.
func (l *KeyedRateLimiter) Allow(key string) bool {
	if key == "" {
		key = "unknown"
	}

	l.mu.Lock()
	now := l.now()
	b := l.bucketLocked(key, now)
	l.evictLocked(now)
	l.mu.Unlock()

	return b.limiter.AllowN(now, 1)
}

// Len reports how many buckets are currently tracked.
func (l *KeyedRateLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

func (l *KeyedRateLimiter) bucketLocked(key string, now time.Time) *bucket {
	if b, ok := l.buckets[key]; ok {
		b.lastSeen = now
		return b
	}

	b := &bucket{limiter: rate.NewLimiter(l.limit, l.burst), lastSeen: now}
	l.buckets[key] = b
	return b
}

func (l *KeyedRateLimiter) evictLocked(now time.Time) {
	for key, b := range l.buckets {
		if now.Sub(b.lastSeen) > l.ttl {
			delete(l.buckets, key)
		}
	}
}

// WithNowFunc allows tests to override the time source.
func (l *KeyedRateLimiter) WithNowFunc(now func() time.Time) *KeyedRateLimiter {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.now = now
	return l
}
