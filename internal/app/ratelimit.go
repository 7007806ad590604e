package app

import (
	"sync"
	"time"

	"github.com/keremar/Amora/internal/core"
	"github.com/keremar/Amora/internal/domain"
)

// CallRateLimiter caps call attempts per identity over a sliding window so a
// flood of call_incoming envelopes cannot churn the call table.
type CallRateLimiter struct {
	mu      sync.Mutex
	clock   core.Clock
	history map[domain.UserID][]time.Time
	limit   int
	window  time.Duration
}

func NewCallRateLimiter(clock core.Clock, limit int, window time.Duration) *CallRateLimiter {
	return &CallRateLimiter{
		clock:   clock,
		history: make(map[domain.UserID][]time.Time),
		limit:   limit,
		window:  window,
	}
}

func (rl *CallRateLimiter) Allow(id domain.UserID) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.clock.Now()
	windowStart := now.Add(-rl.window)

	attempts := rl.history[id]
	fresh := make([]time.Time, 0, len(attempts))
	for _, t := range attempts {
		if t.After(windowStart) {
			fresh = append(fresh, t)
		}
	}

	if len(fresh) >= rl.limit {
		rl.history[id] = fresh
		return false
	}
	rl.history[id] = append(fresh, now)
	return true
}

// Forget drops an identity's history, called when its session goes away.
func (rl *CallRateLimiter) Forget(id domain.UserID) {
	rl.mu.Lock()
	delete(rl.history, id)
	rl.mu.Unlock()
}
