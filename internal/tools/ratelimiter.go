package tools

import (
	"sync"
	"time"
)

// RateLimitMetrics tracks rate limiting outcomes.
type RateLimitMetrics struct {
	TotalRequests    int64
	AllowedRequests  int64
	RejectedRequests int64
}

// tokenBucket implements the token bucket algorithm for one tool id.
type tokenBucket struct {
	capacity     int
	tokens       int
	refillRate   time.Duration
	refillAmount int
	lastRefill   time.Time
}

// tryAcquire takes one token if available, refilling based on elapsed time.
// Caller holds the limiter lock.
func (b *tokenBucket) tryAcquire(now time.Time) bool {
	elapsed := now.Sub(b.lastRefill)
	if elapsed >= b.refillRate {
		intervals := int(elapsed / b.refillRate)
		tokensToAdd := intervals * b.refillAmount
		if b.tokens+tokensToAdd > b.capacity {
			b.tokens = b.capacity
		} else {
			b.tokens += tokensToAdd
		}
		// Keep the remainder for refill accuracy.
		b.lastRefill = now.Add(-elapsed % b.refillRate)
	}

	if b.tokens > 0 {
		b.tokens--
		return true
	}
	return false
}

// RateLimiter applies a token bucket per tool id. It is a process-wide
// singleton shared across sessions; its lifecycle is bound to the
// application, not the session.
type RateLimiter struct {
	mu           sync.Mutex
	buckets      map[string]*tokenBucket
	capacity     int
	refillRate   time.Duration
	refillAmount int
	metrics      RateLimitMetrics
}

// NewRateLimiter creates a rate limiter whose per-tool buckets hold capacity
// tokens and gain refillAmount tokens every refillInterval.
func NewRateLimiter(capacity int, refillInterval time.Duration, refillAmount int) *RateLimiter {
	if capacity <= 0 {
		capacity = 10
	}
	if refillInterval <= 0 {
		refillInterval = time.Minute
	}
	if refillAmount <= 0 {
		refillAmount = capacity
	}
	return &RateLimiter{
		buckets:      make(map[string]*tokenBucket),
		capacity:     capacity,
		refillRate:   refillInterval,
		refillAmount: refillAmount,
	}
}

// Acquire attempts to take a token for the given tool id.
// Returns false when the tool's bucket is exhausted.
func (r *RateLimiter) Acquire(toolID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.metrics.TotalRequests++

	bucket, ok := r.buckets[toolID]
	if !ok {
		bucket = &tokenBucket{
			capacity:     r.capacity,
			tokens:       r.capacity,
			refillRate:   r.refillRate,
			refillAmount: r.refillAmount,
			lastRefill:   time.Now(),
		}
		r.buckets[toolID] = bucket
	}

	if bucket.tryAcquire(time.Now()) {
		r.metrics.AllowedRequests++
		return true
	}
	r.metrics.RejectedRequests++
	return false
}

// Metrics returns a copy of the current metrics.
func (r *RateLimiter) Metrics() RateLimitMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// Reset restores all buckets to full capacity.
func (r *RateLimiter) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, bucket := range r.buckets {
		bucket.tokens = bucket.capacity
		bucket.lastRefill = time.Now()
	}
}
