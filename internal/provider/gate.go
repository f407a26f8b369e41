package provider

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"
)

// Provider names used for gates, limits and cache keys.
const (
	NameTMDb   = "tmdb"
	NameOMDb   = "omdb"
	NameScrape = "scrape"
)

// Limits configure one provider: the token bucket, the 429 cool-off and the
// per-request retry policy.
type Limits struct {
	Rate           float64       `yaml:"rate"`  // tokens per second
	Burst          int           `yaml:"burst"` // bucket capacity
	Cooldown       time.Duration `yaml:"cooldown"`
	MaxRetries     int           `yaml:"max_retries"`
	InitialBackoff time.Duration `yaml:"initial_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Timeout        time.Duration `yaml:"timeout"`
}

// Gate is a token bucket shared by every caller of one provider, plus a
// cool-off window entered after the provider signals throttling.
type Gate struct {
	lim       *rate.Limiter
	cooldown  time.Duration
	coolUntil atomic.Int64 // unix nanos
}

// NewGate creates a gate from limits.
func NewGate(l Limits) *Gate {
	burst := l.Burst
	if burst <= 0 {
		burst = 1
	}
	r := rate.Limit(l.Rate)
	if l.Rate <= 0 {
		r = rate.Inf
	}
	return &Gate{
		lim:      rate.NewLimiter(r, burst),
		cooldown: l.Cooldown,
	}
}

// Wait blocks until the cool-off has passed and a token is available.
func (g *Gate) Wait(ctx context.Context) error {
	for {
		until := g.coolUntil.Load()
		d := time.Until(time.Unix(0, until))
		if until == 0 || d <= 0 {
			break
		}
		timer := time.NewTimer(d)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
	return g.lim.Wait(ctx)
}

// Cooldown pauses the gate for at least d, and never less than the configured
// cool-off. Overlapping calls keep the latest deadline.
func (g *Gate) Cooldown(d time.Duration) {
	if d < g.cooldown {
		d = g.cooldown
	}
	target := time.Now().Add(d).UnixNano()
	for {
		cur := g.coolUntil.Load()
		if target <= cur {
			return
		}
		if g.coolUntil.CompareAndSwap(cur, target) {
			return
		}
	}
}

// CoolingDown reports whether the gate is inside a cool-off window.
func (g *Gate) CoolingDown() bool {
	return time.Now().UnixNano() < g.coolUntil.Load()
}

// Gates shares one gate per provider name across all clients in the process.
type Gates struct {
	mu    sync.Mutex
	gates map[string]*Gate
}

// NewGates creates an empty registry.
func NewGates() *Gates {
	return &Gates{gates: make(map[string]*Gate)}
}

// For returns the gate for name, creating it from l on first use.
func (r *Gates) For(name string, l Limits) *Gate {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.gates[name]
	if !ok {
		g = NewGate(l)
		r.gates[name] = g
	}
	return g
}
