package rate

import (
	"context"
	"sync"

	"golang.org/x/time/rate"
)

// Config defines rate limiting parameters for an outbound provider.
type Config struct {
	RequestsPerSecond int
	Burst             int
}

// Manager holds per-provider token buckets, created lazily from defaults.
type Manager struct {
	mu       sync.RWMutex
	limiters map[string]*rate.Limiter
	defaults Config
}

func NewManager(defaults Config) *Manager {
	if defaults.Burst <= 0 {
		defaults.Burst = 1
	}
	return &Manager{
		limiters: make(map[string]*rate.Limiter),
		defaults: defaults,
	}
}

// Configure overrides the limits for a single key.
func (m *Manager) Configure(key string, cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.limiters[key] = newLimiter(cfg)
}

func (m *Manager) GetLimiter(key string) *rate.Limiter {
	m.mu.RLock()
	if lim, ok := m.limiters[key]; ok {
		m.mu.RUnlock()
		return lim
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if lim, ok := m.limiters[key]; ok {
		return lim
	}
	lim := newLimiter(m.defaults)
	m.limiters[key] = lim
	return lim
}

// Wait blocks until key has a token or ctx is done.
func (m *Manager) Wait(ctx context.Context, key string) error {
	return m.GetLimiter(key).Wait(ctx)
}

// Allow reports whether a request for key may proceed right now.
func (m *Manager) Allow(key string) bool {
	return m.GetLimiter(key).Allow()
}

func newLimiter(cfg Config) *rate.Limiter {
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return rate.NewLimiter(limit, burst)
}
