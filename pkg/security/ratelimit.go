package security

import (
	"sync"
	"time"
)

// bucket is a token bucket for one client.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// rateLimiter hands out tokens per client. Refill rate is rpm/60 tokens per
// second; capacity is the burst size. All buckets sit behind a single lock.
type rateLimiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	ratePerS float64
	capacity float64
	now      func() time.Time
}

func newRateLimiter(rpm float64, burst int) *rateLimiter {
	return &rateLimiter{
		buckets:  make(map[string]*bucket),
		ratePerS: rpm / 60.0,
		capacity: float64(burst),
		now:      time.Now,
	}
}

// Allow consumes one token for the client if available.
func (rl *rateLimiter) Allow(clientID string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	b, ok := rl.buckets[clientID]
	if !ok {
		b = &bucket{tokens: rl.capacity, lastRefill: now}
		rl.buckets[clientID] = b
	}

	elapsed := now.Sub(b.lastRefill).Seconds()
	b.tokens += elapsed * rl.ratePerS
	if b.tokens > rl.capacity {
		b.tokens = rl.capacity
	}
	b.lastRefill = now

	if b.tokens < 1 {
		return false
	}
	b.tokens--
	return true
}
