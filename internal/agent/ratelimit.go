package agent

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

// RateLimiter keeps one token bucket per sender.
type RateLimiter struct {
	mu        sync.Mutex
	limit     rate.Limit
	burst     int
	senders   map[string]*senderLimiter
	lastPrune time.Time
}

type senderLimiter struct {
	lim      *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter allows perMinute messages per sender with the given burst.
// perMinute <= 0 disables limiting.
func NewRateLimiter(perMinute float64, burst int) *RateLimiter {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Inf
	if perMinute > 0 {
		limit = rate.Limit(perMinute / 60.0)
	}
	return &RateLimiter{
		limit:     limit,
		burst:     burst,
		senders:   make(map[string]*senderLimiter),
		lastPrune: time.Now(),
	}
}

// Allow reports whether sender may be served now, consuming a token if so.
func (rl *RateLimiter) Allow(sender string) bool {
	return rl.allowAt(sender, time.Now())
}

func (rl *RateLimiter) allowAt(sender string, now time.Time) bool {
	if rl.limit == rate.Inf {
		return true
	}

	rl.mu.Lock()
	defer rl.mu.Unlock()

	if now.Sub(rl.lastPrune) > limiterIdleTTL {
		for k, s := range rl.senders {
			if now.Sub(s.lastSeen) > limiterIdleTTL {
				delete(rl.senders, k)
			}
		}
		rl.lastPrune = now
	}

	s, ok := rl.senders[sender]
	if !ok {
		s = &senderLimiter{lim: rate.NewLimiter(rl.limit, rl.burst)}
		rl.senders[sender] = s
	}
	s.lastSeen = now
	return s.lim.AllowN(now, 1)
}

// Tracked returns how many senders currently hold a bucket.
func (rl *RateLimiter) Tracked() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.senders)
}
