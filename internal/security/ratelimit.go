package security

import (
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// ErrRateLimited is returned when a client exceeds its rate limit.
var ErrRateLimited = errors.New("rate limit exceeded")

// RateLimitConfig configures per-client token buckets.
type RateLimitConfig struct {
	// PerMinute is the sustained number of attempts allowed per client.
	PerMinute int `yaml:"per_minute"`

	// Burst is the number of attempts allowed at once. Defaults to PerMinute.
	Burst int `yaml:"burst"`

	// MaxClients bounds the number of tracked clients. The table is reset
	// when it is exceeded.
	MaxClients int `yaml:"max_clients"`
}

func (c *RateLimitConfig) defaults() {
	if c.PerMinute <= 0 {
		c.PerMinute = 30
	}
	if c.Burst <= 0 {
		c.Burst = c.PerMinute
	}
	if c.MaxClients <= 0 {
		c.MaxClients = 4096
	}
}

// RateLimiter keeps one token bucket per client key.
type RateLimiter struct {
	mu      sync.Mutex
	clients map[string]*rate.Limiter
	config  RateLimitConfig
	now     func() time.Time
}

// NewRateLimiter creates a rate limiter. Zero fields in cfg take defaults.
func NewRateLimiter(cfg RateLimitConfig) *RateLimiter {
	cfg.defaults()
	return &RateLimiter{
		clients: make(map[string]*rate.Limiter),
		config:  cfg,
		now:     time.Now,
	}
}

// Allow consumes one token from the bucket of key.
func (rl *RateLimiter) Allow(key string) error {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	lim, ok := rl.clients[key]
	if !ok {
		if len(rl.clients) >= rl.config.MaxClients {
			clear(rl.clients)
		}
		lim = rate.NewLimiter(rate.Every(time.Minute/time.Duration(rl.config.PerMinute)), rl.config.Burst)
		rl.clients[key] = lim
	}
	if !lim.AllowN(rl.now(), 1) {
		return ErrRateLimited
	}
	return nil
}

// Clients returns the number of tracked clients.
func (rl *RateLimiter) Clients() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.clients)
}
