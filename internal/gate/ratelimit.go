// Package gate decides whether a request may proceed to Copilot: an optional
// single-slot rate limiter followed by an optional operator approval prompt.
package gate

import (
	"context"
	"sync"
	"time"

	"github.com/router-for-me/CopilotAPI/internal/interfaces"
	"github.com/router-for-me/CopilotAPI/internal/session"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// RateLimiter admits at most one request per window. In wait mode a throttled
// request sleeps out the remainder; otherwise it fails with RateLimited.
type RateLimiter struct {
	mu      sync.RWMutex
	limiter *rate.Limiter
	window  time.Duration
	wait    bool
	state   *session.State
}

// NewRateLimiter returns a limiter. A zero window disables it.
func NewRateLimiter(state *session.State, window time.Duration, wait bool) *RateLimiter {
	r := &RateLimiter{state: state}
	r.Update(window, wait)
	return r
}

// Update swaps the limiter settings. The window restarts when it changes.
func (r *RateLimiter) Update(window time.Duration, wait bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.wait = wait
	if window == r.window && (window <= 0 || r.limiter != nil) {
		return
	}
	r.window = window
	if window <= 0 {
		r.limiter = nil
		return
	}
	r.limiter = rate.NewLimiter(rate.Every(window), 1)
}

// Check admits the request or reports why it cannot proceed.
func (r *RateLimiter) Check(ctx context.Context) error {
	r.mu.RLock()
	limiter, wait := r.limiter, r.wait
	r.mu.RUnlock()
	if limiter == nil {
		return nil
	}

	if wait {
		res := limiter.Reserve()
		if delay := res.Delay(); delay > 0 {
			log.WithField("wait", delay.Round(time.Millisecond)).Info("Rate limit reached, waiting")
			timer := time.NewTimer(delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				res.Cancel()
				return ctx.Err()
			case <-timer.C:
			}
		}
	} else {
		res := limiter.Reserve()
		if delay := res.Delay(); delay > 0 {
			res.Cancel()
			log.WithField("wait", delay.Round(time.Millisecond)).Warn("Rate limit exceeded")
			return interfaces.NewRateLimited(delay)
		}
	}
	if r.state != nil {
		r.state.MarkRequest(time.Now())
	}
	return nil
}
