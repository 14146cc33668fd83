package correlator

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/modwatch/modwatch/internal/types"
)

// guildLimiter tracks a token-bucket rate limiter per guild so one noisy
// guild cannot starve the others.
type guildLimiter struct {
	mu         sync.Mutex
	limiters   map[types.EntityID]*rate.Limiter
	lastAccess map[types.EntityID]time.Time
	rate       rate.Limit
	burst      int
}

func newGuildLimiter(perSecond, burst int) *guildLimiter {
	return &guildLimiter{
		limiters:   make(map[types.EntityID]*rate.Limiter),
		lastAccess: make(map[types.EntityID]time.Time),
		rate:       rate.Limit(perSecond),
		burst:      burst,
	}
}

func (g *guildLimiter) Allow(guildID types.EntityID) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	limiter, exists := g.limiters[guildID]
	if !exists {
		limiter = rate.NewLimiter(g.rate, g.burst)
		g.limiters[guildID] = limiter
	}
	g.lastAccess[guildID] = time.Now()
	return limiter.Allow()
}

// Evict removes limiters for guilds not seen within maxAge.
func (g *guildLimiter) Evict(maxAge time.Duration) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	for guildID, last := range g.lastAccess {
		if last.Before(cutoff) {
			delete(g.limiters, guildID)
			delete(g.lastAccess, guildID)
		}
	}
}

// evictLimiters periodically drops limiters for idle guilds.
func (c *Correlator) evictLimiters(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.limiter.Evict(time.Hour)
		}
	}
}
