// rate_limiter.go - Per-principal submission limits
package main

import (
	"sync"
	"time"
)

// RateLimiter implements a simple token bucket rate limiter
type RateLimiter struct {
	mu           sync.Mutex
	tokens       int
	maxTokens    int
	refillRate   int
	lastRefill   time.Time
	refillPeriod time.Duration
	now          func() time.Time
}

// newRateLimiter creates a full bucket read against now.
func newRateLimiter(maxTokens, refillRate int, refillPeriod time.Duration, now func() time.Time) *RateLimiter {
	return &RateLimiter{
		tokens:       maxTokens,
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		lastRefill:   now(),
		refillPeriod: refillPeriod,
		now:          now,
	}
}

// Allow checks if a request is allowed and consumes a token if so
func (rl *RateLimiter) Allow() bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	if refills := int(now.Sub(rl.lastRefill) / rl.refillPeriod); refills > 0 {
		rl.tokens += refills * rl.refillRate
		if rl.tokens > rl.maxTokens {
			rl.tokens = rl.maxTokens
		}
		rl.lastRefill = rl.lastRefill.Add(time.Duration(refills) * rl.refillPeriod)
	}

	if rl.tokens > 0 {
		rl.tokens--
		return true
	}
	return false
}

// Tokens returns the current number of available tokens
func (rl *RateLimiter) Tokens() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return rl.tokens
}

// PrincipalRateLimiter keeps one bucket per principal.
type PrincipalRateLimiter struct {
	mu           sync.Mutex
	limiters     map[string]*RateLimiter
	maxTokens    int
	refillRate   int
	refillPeriod time.Duration
	now          func() time.Time
}

// NewPrincipalRateLimiter creates a new per-principal rate limiter
func NewPrincipalRateLimiter(maxTokens, refillRate int, refillPeriod time.Duration) *PrincipalRateLimiter {
	return &PrincipalRateLimiter{
		limiters:     make(map[string]*RateLimiter),
		maxTokens:    maxTokens,
		refillRate:   refillRate,
		refillPeriod: refillPeriod,
		now:          time.Now,
	}
}

// Allow checks if a submission from principal is allowed
func (prl *PrincipalRateLimiter) Allow(principal string) bool {
	prl.mu.Lock()
	limiter, ok := prl.limiters[principal]
	if !ok {
		limiter = newRateLimiter(prl.maxTokens, prl.refillRate, prl.refillPeriod, prl.now)
		prl.limiters[principal] = limiter
	}
	prl.mu.Unlock()

	return limiter.Allow()
}

// Tokens returns the available tokens for principal
func (prl *PrincipalRateLimiter) Tokens(principal string) int {
	prl.mu.Lock()
	limiter, ok := prl.limiters[principal]
	prl.mu.Unlock()
	if !ok {
		return prl.maxTokens
	}
	return limiter.Tokens()
}
