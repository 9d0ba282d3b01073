// Package ratecontrol tracks per-provider request budgets: token-bucket
// gating for steady state, exponential backoff for rate limiting, and
// suspension after repeated errors.
package ratecontrol

import (
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/logging"
	"golang.org/x/time/rate"
)

// Outcome describes the result of one provider call, as reported by the
// aggregator once the call resolves.
type Outcome int

const (
	OutcomeSuccess Outcome = iota
	OutcomeRateLimited
	OutcomeError
)

// Decision is the non-blocking answer to an acquire check. When Allowed is
// false, RetryAt carries the earliest time a retry may be attempted, so the
// caller can schedule around it instead of blocking.
type Decision struct {
	Allowed bool
	RetryAt time.Time
}

// Config holds the rate controller tuning knobs.
type Config struct {
	RequestsPerSecond float64
	Burst             int
	BaseBackoff       time.Duration
	MaxBackoffFactor  int
	ErrorBackoff      time.Duration
	SuspendAfter      int
	SuspendCooldown   time.Duration
}

// FromSettings converts configuration file settings into a Config.
func FromSettings(s conf.RateLimitSettings) Config {
	return Config{
		RequestsPerSecond: s.RequestsPerSecond,
		Burst:             s.Burst,
		BaseBackoff:       s.BaseBackoff,
		MaxBackoffFactor:  s.MaxBackoffFactor,
		ErrorBackoff:      s.ErrorBackoff,
		SuspendAfter:      s.SuspendAfter,
		SuspendCooldown:   s.SuspendCooldown,
	}
}

// budget is the per-provider rate state. Mutated only under its own mutex so
// contention never spans more than one provider.
type budget struct {
	mu sync.Mutex

	limiter             *rate.Limiter
	backoff             time.Duration // current backoff, zero at the floor
	nextAllowed         time.Time
	consecutiveFailures int
	suspendedUntil      time.Time
}

// Controller owns one budget per registered provider. Process-lifetime state;
// budgets are never reset except through Reset.
type Controller struct {
	cfg    Config
	logger *slog.Logger

	mu      sync.RWMutex
	budgets map[string]*budget

	now    func() time.Time
	jitter func() float64 // multiplier in [0.8, 1.2)
}

// New creates a Controller with the given configuration.
func New(cfg Config) *Controller {
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoffFactor <= 0 {
		cfg.MaxBackoffFactor = 64
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 1
	}
	return &Controller{
		cfg:     cfg,
		logger:  logging.ForService("ratecontrol"),
		budgets: make(map[string]*budget),
		now:     time.Now,
		jitter:  func() float64 { return 0.8 + 0.4*rand.Float64() },
	}
}

// Register creates the budget for a provider. Registering an existing
// provider is a no-op, preserving its accumulated state.
func (c *Controller) Register(providerID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.budgets[providerID]; exists {
		return
	}
	c.budgets[providerID] = &budget{
		limiter: rate.NewLimiter(rate.Limit(c.cfg.RequestsPerSecond), c.cfg.Burst),
	}
}

// lookup returns the provider's budget, registering it lazily.
func (c *Controller) lookup(providerID string) *budget {
	c.mu.RLock()
	b, ok := c.budgets[providerID]
	c.mu.RUnlock()
	if ok {
		return b
	}
	c.Register(providerID)
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.budgets[providerID]
}

// Acquire performs a non-blocking budget check for one outbound call. It
// consumes a token when allowed.
func (c *Controller) Acquire(providerID string) Decision {
	b := c.lookup(providerID)
	now := c.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	if now.Before(b.suspendedUntil) {
		return Decision{RetryAt: b.suspendedUntil}
	}
	if now.Before(b.nextAllowed) {
		return Decision{RetryAt: b.nextAllowed}
	}

	res := b.limiter.ReserveN(now, 1)
	if !res.OK() {
		return Decision{RetryAt: now.Add(time.Second)}
	}
	if delay := res.DelayFrom(now); delay > 0 {
		res.CancelAt(now)
		return Decision{RetryAt: now.Add(delay)}
	}
	return Decision{Allowed: true}
}

// ReportOutcome updates the provider's budget after a call resolves.
// retryAfter is the provider's Retry-After hint; zero when absent.
func (c *Controller) ReportOutcome(providerID string, outcome Outcome, retryAfter time.Duration) {
	b := c.lookup(providerID)
	now := c.now()

	b.mu.Lock()
	defer b.mu.Unlock()

	switch outcome {
	case OutcomeSuccess:
		// Decay, never an instant reset: halve the backoff and any
		// remaining wait so a single success after many failures does not
		// open the floodgates.
		b.consecutiveFailures = 0
		b.backoff /= 2
		if b.backoff < c.cfg.BaseBackoff {
			b.backoff = 0
		}
		if remaining := b.nextAllowed.Sub(now); remaining > 0 {
			b.nextAllowed = now.Add(remaining / 2)
		}

	case OutcomeRateLimited:
		if b.backoff == 0 {
			b.backoff = c.cfg.BaseBackoff
		} else {
			b.backoff *= 2
		}
		maxBackoff := time.Duration(c.cfg.MaxBackoffFactor) * c.cfg.BaseBackoff
		if b.backoff > maxBackoff {
			b.backoff = maxBackoff
		}

		var next time.Time
		if retryAfter > 0 {
			next = now.Add(retryAfter)
		} else {
			jittered := time.Duration(float64(b.backoff) * c.jitter())
			next = now.Add(jittered)
		}
		// The next-allowed-time never moves backward on a rate limit.
		if next.After(b.nextAllowed) {
			b.nextAllowed = next
		}
		c.logger.Warn("Provider rate limited",
			"provider", providerID,
			"retry_after", retryAfter,
			"backoff", b.backoff,
			"next_allowed", b.nextAllowed)

	case OutcomeError:
		b.consecutiveFailures++
		next := now.Add(c.cfg.ErrorBackoff)
		if next.After(b.nextAllowed) {
			b.nextAllowed = next
		}
		if c.cfg.SuspendAfter > 0 && b.consecutiveFailures >= c.cfg.SuspendAfter {
			b.suspendedUntil = now.Add(c.cfg.SuspendCooldown)
			c.logger.Warn("Provider suspended after consecutive errors",
				"provider", providerID,
				"consecutive_failures", b.consecutiveFailures,
				"cooldown", c.cfg.SuspendCooldown,
				"suspended_until", b.suspendedUntil)
		}
	}
}

// Suspended reports whether the provider is currently suspended. Reads may be
// slightly stale relative to a concurrent ReportOutcome, but a suspended
// provider can never be acquired.
func (c *Controller) Suspended(providerID string) bool {
	b := c.lookup(providerID)
	b.mu.Lock()
	defer b.mu.Unlock()
	return c.now().Before(b.suspendedUntil)
}

// SuspendedCount returns how many registered providers are currently
// suspended.
func (c *Controller) SuspendedCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	now := c.now()
	count := 0
	for _, b := range c.budgets {
		b.mu.Lock()
		if now.Before(b.suspendedUntil) {
			count++
		}
		b.mu.Unlock()
	}
	return count
}

// NextAllowed returns the provider's earliest allowed call time. Zero time
// means the provider has no pending backoff.
func (c *Controller) NextAllowed(providerID string) time.Time {
	b := c.lookup(providerID)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.suspendedUntil.After(b.nextAllowed) {
		return b.suspendedUntil
	}
	return b.nextAllowed
}

// Reset clears the provider's backoff and suspension state. Operator action
// only; normal operation never resets a budget.
func (c *Controller) Reset(providerID string) {
	b := c.lookup(providerID)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.backoff = 0
	b.nextAllowed = time.Time{}
	b.consecutiveFailures = 0
	b.suspendedUntil = time.Time{}
	c.logger.Info("Provider budget reset", "provider", providerID)
}
