// ratelimit.go implements token-bucket rate limiting for the broker gateway.
//
// Brokers in this domain publish per-category rate limits measured in
// requests per second. This provides a smooth token-bucket implementation
// that refills continuously (rather than in bursts) to avoid hitting hard
// limits.
//
// Five buckets are maintained, one per broker operation category.
package broker

import (
	"context"
	"sync"
	"time"
)

// TokenBucket implements a token-bucket rate limiter with continuous refill.
// Callers block in Wait() until a token is available or the context is cancelled.
type TokenBucket struct {
	mu       sync.Mutex
	tokens   float64
	capacity float64
	rate     float64
	lastTime time.Time
}

// NewTokenBucket creates a rate limiter with the given capacity and refill rate.
func NewTokenBucket(capacity, ratePerSecond float64) *TokenBucket {
	return &TokenBucket{
		tokens:   capacity,
		capacity: capacity,
		rate:     ratePerSecond,
		lastTime: time.Now(),
	}
}

// Wait blocks until a token is available or ctx is cancelled.
func (tb *TokenBucket) Wait(ctx context.Context) error {
	for {
		tb.mu.Lock()
		now := time.Now()
		elapsed := now.Sub(tb.lastTime).Seconds()
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
		tb.lastTime = now

		if tb.tokens >= 1 {
			tb.tokens--
			tb.mu.Unlock()
			return nil
		}

		wait := time.Duration((1 - tb.tokens) / tb.rate * float64(time.Second))
		tb.mu.Unlock()

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// RateLimiter groups token buckets by broker operation category. Each
// trading operation must call the appropriate bucket's Wait() before making
// the HTTP request.
type RateLimiter struct {
	Place        *TokenBucket
	Modify       *TokenBucket
	Cancel       *TokenBucket
	Orderbook    *TokenBucket
	Positionbook *TokenBucket
}

// NewRateLimiter creates rate limiters tuned to a conservative broker profile:
// 10 req/s burst-of-20 for mutating calls, 5 req/s burst-of-10 for reads.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{
		Place:        NewTokenBucket(20, 10),
		Modify:       NewTokenBucket(20, 10),
		Cancel:       NewTokenBucket(20, 10),
		Orderbook:    NewTokenBucket(10, 5),
		Positionbook: NewTokenBucket(10, 5),
	}
}
