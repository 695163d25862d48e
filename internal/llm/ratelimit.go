package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// rateLimiter is a token bucket bounding sync provider calls per minute.
// The async path is not limited: one batch submission covers many requests.
type rateLimiter struct {
	lastRefill time.Time
	tokens     float64
	capacity   float64
	perMinute  float64
	mu         sync.Mutex
}

// newRateLimiter creates a limiter allowing requestsPerMinute sync calls.
func newRateLimiter(requestsPerMinute int) *rateLimiter {
	if requestsPerMinute <= 0 {
		requestsPerMinute = 60
	}
	return &rateLimiter{
		tokens:     float64(requestsPerMinute),
		capacity:   float64(requestsPerMinute),
		perMinute:  float64(requestsPerMinute),
		lastRefill: time.Now(),
	}
}

// wait blocks until a token is available or the context is cancelled.
// Refill happens lazily on acquisition, so no background goroutine is
// needed and an idle limiter costs nothing.
func (rl *rateLimiter) wait(ctx context.Context) error {
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		if rl.tryAcquire() {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("rate limiter cancelled: %w", ctx.Err())
		case <-ticker.C:
		}
	}
}

func (rl *rateLimiter) tryAcquire() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	rl.tokens += now.Sub(rl.lastRefill).Minutes() * rl.perMinute
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
	rl.lastRefill = now

	if rl.tokens >= 1 {
		rl.tokens--
		return true
	}
	return false
}
