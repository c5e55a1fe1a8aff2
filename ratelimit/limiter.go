// Package ratelimit provides per-webhook delivery rate limiting.
package ratelimit

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Limiter throttles deliveries per webhook using token buckets.
type Limiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
}

// New creates a new rate limiter.
func New() *Limiter {
	return &Limiter{
		limiters: make(map[string]*rate.Limiter),
	}
}

// Allow reports whether a delivery for the webhook may proceed now.
// A perSecond of 0 means unlimited (always true).
func (l *Limiter) Allow(webhookID string, perSecond int) bool {
	if perSecond <= 0 {
		return true
	}
	return l.get(webhookID, perSecond).Allow()
}

// Wait blocks until the rate limit allows the delivery or the context is
// cancelled. A perSecond of 0 means unlimited (returns immediately).
func (l *Limiter) Wait(ctx context.Context, webhookID string, perSecond int) error {
	if perSecond <= 0 {
		return nil
	}
	return l.get(webhookID, perSecond).Wait(ctx)
}

// Reset clears the rate limit state for a webhook.
func (l *Limiter) Reset(webhookID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.limiters, webhookID)
}

// get returns the webhook's limiter, creating or replacing it when the
// configured rate changed.
func (l *Limiter) get(webhookID string, perSecond int) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.limiters[webhookID]
	if !ok || lim.Limit() != rate.Limit(perSecond) {
		lim = rate.NewLimiter(rate.Limit(perSecond), perSecond)
		l.limiters[webhookID] = lim
	}
	return lim
}
