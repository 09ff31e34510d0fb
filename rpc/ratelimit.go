package rpc

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const limiterIdleTTL = 10 * time.Minute

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// clientLimiter keeps one token bucket per client address.
type clientLimiter struct {
	perSecond rate.Limit
	burst     int

	mu       sync.Mutex
	visitors map[string]*limiterEntry
	lastGC   time.Time
	now      func() time.Time
}

func newClientLimiter(perSecond float64, burst int) *clientLimiter {
	limit := rate.Inf
	if perSecond > 0 {
		limit = rate.Limit(perSecond)
	}
	if burst <= 0 {
		burst = 1
	}
	return &clientLimiter{
		perSecond: limit,
		burst:     burst,
		visitors:  make(map[string]*limiterEntry),
		now:       time.Now,
	}
}

func (c *clientLimiter) allow(source string) bool {
	if c == nil || c.perSecond == rate.Inf {
		return true
	}
	if source == "" {
		source = "unknown"
	}
	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Sub(c.lastGC) > limiterIdleTTL {
		for id, entry := range c.visitors {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(c.visitors, id)
			}
		}
		c.lastGC = now
	}
	entry, ok := c.visitors[source]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(c.perSecond, c.burst)}
		c.visitors[source] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
