// Package provider defines the adapter contract for external media sources
// and a registry of configured adapters. Each adapter translates a character
// query into a provider-specific request and normalizes the response into a
// ProviderResult; ordinary failures (timeouts, 4xx, empty results) are status
// values, never faults.
package provider

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/soratane/chardex-go/internal/errors"
	"github.com/soratane/chardex-go/internal/media"
)

// Adapter wraps one external media source.
type Adapter interface {
	// ID returns the provider identifier used for budgets, priority and logs.
	ID() string

	// SupportedCategories lists the categories this provider serves. The
	// aggregator skips adapters that don't support a requested category.
	SupportedCategories() []media.Category

	// Fetch queries the provider for up to limit items of one category.
	// It must respect ctx cancellation and abort outbound I/O promptly.
	// All ordinary failure modes map to the result's Status.
	Fetch(ctx context.Context, identity media.CharacterIdentity, category media.Category, limit int) media.ProviderResult
}

// Registry holds the configured adapters in priority order (registration
// order is priority order, highest first).
type Registry struct {
	mu       sync.RWMutex
	adapters map[string]Adapter
	order    []string
}

// NewRegistry creates an empty adapter registry.
func NewRegistry() *Registry {
	return &Registry{adapters: make(map[string]Adapter)}
}

// Register adds an adapter. Registration order defines priority order.
func (r *Registry) Register(a Adapter) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.adapters[a.ID()]; exists {
		return errors.Newf("provider already registered: %s", a.ID()).
			Component("provider").
			Category(errors.CategoryConfiguration).
			Context("provider", a.ID()).
			Build()
	}
	r.adapters[a.ID()] = a
	r.order = append(r.order, a.ID())
	return nil
}

// Get returns the adapter with the given id.
func (r *Registry) Get(id string) (Adapter, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.adapters[id]
	return a, ok
}

// PriorityOrder returns the provider ids from highest to lowest priority.
func (r *Registry) PriorityOrder() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(r.order))
	copy(out, r.order)
	return out
}

// ForCategory returns the adapters serving the given category, in priority
// order.
func (r *Registry) ForCategory(cat media.Category) []Adapter {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []Adapter
	for _, id := range r.order {
		a := r.adapters[id]
		for _, c := range a.SupportedCategories() {
			if c == cat {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// Len returns the number of registered adapters.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.adapters)
}

// ParseRetryAfter interprets a Retry-After header value, either delay
// seconds or an HTTP date. Returns zero when absent or malformed.
func ParseRetryAfter(h http.Header, now time.Time) time.Duration {
	v := h.Get("Retry-After")
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// ClassifyResponse maps an HTTP status code onto a result status. 429 and 403
// are treated as rate limiting; other non-2xx codes are ordinary errors.
func ClassifyResponse(statusCode int) media.ResultStatus {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return media.StatusSuccess
	case statusCode == http.StatusTooManyRequests, statusCode == http.StatusForbidden:
		return media.StatusRateLimited
	default:
		return media.StatusError
	}
}
