// Package server throttles inbound frames with a per-connection token bucket
// so a single client cannot flood the hub's broadcast loop.
package server

import (
	"sync"
	"time"
)

// rateLimiter is a token bucket sized for chat traffic: the burst capacity
// absorbs a quick flurry of events, and tokens refill continuously at
// burst-per-interval.
type rateLimiter struct {
	mu         sync.Mutex
	tokens     float64
	capacity   float64
	perSecond  float64
	lastRefill time.Time
}

func newRateLimiter(burst int, interval time.Duration) *rateLimiter {
	if burst <= 0 {
		burst = 1
	}
	if interval <= 0 {
		interval = time.Second
	}

	return &rateLimiter{
		tokens:     float64(burst),
		capacity:   float64(burst),
		perSecond:  float64(burst) / interval.Seconds(),
		lastRefill: time.Now(),
	}
}

// allow consumes one token, refilling for the time elapsed since the last
// call. It reports whether the frame should be processed.
func (rl *rateLimiter) allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	rl.refill(time.Now())
	if rl.tokens < 1 {
		return false
	}
	rl.tokens--
	return true
}

func (rl *rateLimiter) refill(now time.Time) {
	elapsed := now.Sub(rl.lastRefill).Seconds()
	rl.lastRefill = now
	if elapsed <= 0 {
		return
	}

	rl.tokens += elapsed * rl.perSecond
	if rl.tokens > rl.capacity {
		rl.tokens = rl.capacity
	}
}
