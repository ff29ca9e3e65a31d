package network

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// FloodGuard limits how fast and how many connections a single IP may open.
// Each IP gets a token bucket for new connections and a cap on concurrent ones.
type FloodGuard struct {
	limit    rate.Limit
	burst    int
	maxPerIP int

	mu      sync.Mutex
	clients map[string]*floodEntry
}

type floodEntry struct {
	limiter  *rate.Limiter
	active   int
	lastSeen time.Time
}

// NewFloodGuard creates a guard allowing perSecond new connections per IP with
// the given burst and at most maxPerIP concurrent connections (0 = unlimited).
func NewFloodGuard(perSecond float64, burst, maxPerIP int) *FloodGuard {
	if burst <= 0 {
		burst = 1
	}
	limit := rate.Limit(perSecond)
	if perSecond <= 0 {
		limit = rate.Inf
	}
	return &FloodGuard{
		limit:    limit,
		burst:    burst,
		maxPerIP: maxPerIP,
		clients:  make(map[string]*floodEntry),
	}
}

// Allow reports whether ip may open one more connection and, if so, counts it
// as active. Every accepted connection must be paired with Release.
func (g *FloodGuard) Allow(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	e, ok := g.clients[ip]
	if !ok {
		e = &floodEntry{limiter: rate.NewLimiter(g.limit, g.burst)}
		g.clients[ip] = e
	}
	e.lastSeen = time.Now()

	if g.maxPerIP > 0 && e.active >= g.maxPerIP {
		return false
	}
	if !e.limiter.Allow() {
		return false
	}
	e.active++
	return true
}

// Release marks one connection from ip as closed.
func (g *FloodGuard) Release(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.clients[ip]; ok && e.active > 0 {
		e.active--
		e.lastSeen = time.Now()
	}
}

// Active returns the number of open connections counted for ip.
func (g *FloodGuard) Active(ip string) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	if e, ok := g.clients[ip]; ok {
		return e.active
	}
	return 0
}

// Prune forgets IPs with no open connections that were last seen before idle ago.
// Returns the number of removed entries.
func (g *FloodGuard) Prune(idle time.Duration) int {
	g.mu.Lock()
	defer g.mu.Unlock()

	cutoff := time.Now().Add(-idle)
	removed := 0
	for ip, e := range g.clients {
		if e.active == 0 && e.lastSeen.Before(cutoff) {
			delete(g.clients, ip)
			removed++
		}
	}
	return removed
}
