// Package aggregator fans character media queries out to all eligible
// provider adapters concurrently, bounded by global and per-provider
// concurrency ceilings, and folds the results into a deduplicated,
// categorized bundle.
package aggregator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/dedup"
	"github.com/soratane/chardex-go/internal/errors"
	"github.com/soratane/chardex-go/internal/logging"
	"github.com/soratane/chardex-go/internal/media"
	"github.com/soratane/chardex-go/internal/observability"
	"github.com/soratane/chardex-go/internal/provider"
	"github.com/soratane/chardex-go/internal/ratecontrol"
	"golang.org/x/sync/semaphore"
)

// ErrAllProvidersFailed reports that no provider succeeded for any requested
// category. The cache layer maps this to an Unavailable result when it has no
// stale entry to fall back to.
var ErrAllProvidersFailed = errors.NewStd("all providers failed")

// defaultCategoryCap bounds categories missing an explicit cap.
const defaultCategoryCap = 10

// Config holds the aggregator tuning knobs.
type Config struct {
	GlobalConcurrency   int
	CallTimeout         time.Duration
	RequestDeadline     time.Duration
	CategoryCaps        map[media.Category]int
	ProviderConcurrency map[string]int
}

// FromSettings converts configuration file settings into a Config.
func FromSettings(s conf.MediaSettings) Config {
	caps := make(map[media.Category]int, len(s.CategoryCaps))
	for _, cc := range s.CategoryCaps {
		if cat, err := media.ParseCategory(cc.Category); err == nil {
			caps[cat] = cc.Limit
		}
	}
	perProvider := make(map[string]int, len(s.Providers))
	for i := range s.Providers {
		perProvider[s.Providers[i].ID] = s.Providers[i].MaxConcurrent
	}
	return Config{
		GlobalConcurrency:   s.Aggregator.GlobalConcurrency,
		CallTimeout:         s.Aggregator.CallTimeout,
		RequestDeadline:     s.Aggregator.RequestDeadline,
		CategoryCaps:        caps,
		ProviderConcurrency: perProvider,
	}
}

// Aggregator coordinates concurrent provider calls for one request at a time.
// Safe for concurrent use; all mutable state is per-request or owned by the
// rate controller.
type Aggregator struct {
	registry      *provider.Registry
	rates         *ratecontrol.Controller
	deduper       *dedup.Deduper
	fingerprinter dedup.Fingerprinter
	metrics       *observability.MediaMetrics
	cfg           Config
	logger        *slog.Logger

	global      *semaphore.Weighted
	perProvider map[string]*semaphore.Weighted
}

// New creates an Aggregator. fingerprinter and metrics may be nil.
func New(cfg Config, registry *provider.Registry, rates *ratecontrol.Controller, fingerprinter dedup.Fingerprinter, metrics *observability.MediaMetrics, dedupThreshold float64) *Aggregator {
	if cfg.GlobalConcurrency <= 0 {
		cfg.GlobalConcurrency = 8
	}
	if cfg.CallTimeout <= 0 {
		cfg.CallTimeout = 5 * time.Second
	}
	if cfg.RequestDeadline <= cfg.CallTimeout {
		cfg.RequestDeadline = 2 * cfg.CallTimeout
	}

	perProvider := make(map[string]*semaphore.Weighted)
	for _, id := range registry.PriorityOrder() {
		limit := cfg.ProviderConcurrency[id]
		if limit <= 0 {
			limit = 2
		}
		perProvider[id] = semaphore.NewWeighted(int64(limit))
	}

	return &Aggregator{
		registry:      registry,
		rates:         rates,
		deduper:       dedup.New(dedupThreshold, registry.PriorityOrder()),
		fingerprinter: fingerprinter,
		metrics:       metrics,
		cfg:           cfg,
		logger:        logging.ForService("aggregator"),
		global:        semaphore.NewWeighted(int64(cfg.GlobalConcurrency)),
		perProvider:   perProvider,
	}
}

// dispatchedCall pairs one adapter with one requested category.
type dispatchedCall struct {
	adapter  provider.Adapter
	category media.Category
}

// callResult carries one resolved provider call back to the collector.
type callResult struct {
	category media.Category
	result   media.ProviderResult
}

// Aggregate queries all eligible, non-suspended adapters for the requested
// categories and returns the deduplicated, capped bundle. Individual provider
// failures are non-fatal; ErrAllProvidersFailed is returned only when zero
// providers succeeded across every requested category.
func (a *Aggregator) Aggregate(ctx context.Context, identity media.CharacterIdentity, categories []media.Category) (*media.Bundle, error) {
	reqID := uuid.New().String()[:8]
	logger := a.logger.With("request_id", reqID, "character", identity.Name, "series", identity.Series)

	// Keep the caller's context apart from the deadline-bounded one: a
	// caller that goes away is not a provider failure.
	parent := ctx
	ctx, cancel := context.WithTimeout(ctx, a.cfg.RequestDeadline)
	defer cancel()

	calls, supported := a.planCalls(logger, categories)

	results := make(chan callResult, len(calls))
	for _, c := range calls {
		go a.dispatch(ctx, c, identity, results)
	}

	// Collect until every call resolves or the overall deadline passes.
	// Stragglers keep updating rate budgets in their own goroutines, but
	// their results are discarded for this request.
	collected := make(map[media.Category]map[string][]media.Item, len(categories))
	succeeded := make(map[media.Category]int, len(categories))
	failed := false

	pending := len(calls)
collect:
	for pending > 0 {
		select {
		case <-ctx.Done():
			logger.Warn("Request deadline expired, discarding stragglers", "outstanding", pending)
			failed = true
			break collect
		case r := <-results:
			pending--
			switch r.result.Status {
			case media.StatusSuccess:
				succeeded[r.category]++
				byProvider := collected[r.category]
				if byProvider == nil {
					byProvider = make(map[string][]media.Item)
					collected[r.category] = byProvider
				}
				// Copy into the aggregation buffer, never merge in place.
				items := make([]media.Item, len(r.result.Items))
				copy(items, r.result.Items)
				byProvider[r.result.Provider] = items
			case media.StatusEmpty:
				succeeded[r.category]++
			case media.StatusRateLimited:
				failed = true
				logger.Warn("Provider rate limited during aggregation",
					"provider", r.result.Provider, "category", r.category, "retry_after", r.result.RetryAfter)
			case media.StatusError:
				failed = true
				logger.Warn("Provider failed during aggregation",
					"provider", r.result.Provider, "category", r.category, "error", r.result.Err)
			}
		}
	}

	bundle := a.buildBundle(ctx, identity, categories, collected)
	bundle.Partial = failed

	// Fail the whole request only if no category had a single success and
	// at least one category actually had providers to try.
	attemptedAny := false
	for _, cat := range categories {
		if supported[cat] == 0 {
			continue
		}
		attemptedAny = true
		if succeeded[cat] > 0 {
			logger.Debug("Aggregation complete", "items", bundle.Count(), "partial", bundle.Partial)
			return bundle, nil
		}
	}
	if attemptedAny {
		if err := parent.Err(); err != nil {
			logger.Warn("Aggregation abandoned, caller context done", "error", err)
			return nil, err
		}
		logger.Warn("Aggregation failed for all requested categories")
		return nil, ErrAllProvidersFailed
	}
	return bundle, nil
}

// planCalls determines eligible, non-suspended, non-backed-off adapter calls
// per requested category. supported counts adapters that serve each category
// regardless of current budget state.
func (a *Aggregator) planCalls(logger *slog.Logger, categories []media.Category) (calls []dispatchedCall, supported map[media.Category]int) {
	supported = make(map[media.Category]int, len(categories))
	for _, cat := range categories {
		for _, adapter := range a.registry.ForCategory(cat) {
			supported[cat]++
			id := adapter.ID()
			if a.rates.Suspended(id) {
				logger.Debug("Skipping suspended provider", "provider", id, "category", cat)
				continue
			}
			decision := a.rates.Acquire(id)
			if !decision.Allowed {
				logger.Debug("Provider budget exhausted, skipping for this request",
					"provider", id, "category", cat, "retry_at", decision.RetryAt)
				continue
			}
			calls = append(calls, dispatchedCall{adapter: adapter, category: cat})
		}
	}
	return calls, supported
}

// dispatch runs one adapter call under the global and per-provider
// concurrency ceilings and its own timeout, reports the outcome to the rate
// controller, and delivers the result. The results channel is buffered for
// every planned call, so delivery never blocks even after the collector has
// given up.
func (a *Aggregator) dispatch(ctx context.Context, c dispatchedCall, identity media.CharacterIdentity, results chan<- callResult) {
	id := c.adapter.ID()

	if err := a.global.Acquire(ctx, 1); err != nil {
		results <- callResult{category: c.category, result: media.ProviderResult{
			Provider: id, Status: media.StatusError, Err: err,
		}}
		return
	}
	defer a.global.Release(1)

	if sem := a.perProvider[id]; sem != nil {
		if err := sem.Acquire(ctx, 1); err != nil {
			results <- callResult{category: c.category, result: media.ProviderResult{
				Provider: id, Status: media.StatusError, Err: err,
			}}
			return
		}
		defer sem.Release(1)
	}

	callCtx, cancel := context.WithTimeout(ctx, a.cfg.CallTimeout)
	defer cancel()

	limit := a.categoryCap(c.category)
	result := c.adapter.Fetch(callCtx, identity, c.category, limit)

	a.reportOutcome(ctx, id, result)
	results <- callResult{category: c.category, result: result}
}

// reportOutcome feeds the call result into the rate controller. Failures
// caused by the overall request deadline are bookkeeping noise, not provider
// misbehavior, and are not counted against the budget.
func (a *Aggregator) reportOutcome(parent context.Context, providerID string, result media.ProviderResult) {
	var outcome ratecontrol.Outcome
	switch result.Status {
	case media.StatusSuccess, media.StatusEmpty:
		outcome = ratecontrol.OutcomeSuccess
	case media.StatusRateLimited:
		outcome = ratecontrol.OutcomeRateLimited
	case media.StatusError:
		if parent.Err() != nil {
			if a.metrics != nil {
				a.metrics.ObserveProviderCall(providerID, "cancelled", result.Elapsed.Seconds())
			}
			return
		}
		outcome = ratecontrol.OutcomeError
	}

	a.rates.ReportOutcome(providerID, outcome, result.RetryAfter)
	if a.metrics != nil {
		a.metrics.ObserveProviderCall(providerID, string(result.Status), result.Elapsed.Seconds())
		a.metrics.ProvidersSuspended.Set(float64(a.rates.SuspendedCount()))
	}
}

func (a *Aggregator) categoryCap(cat media.Category) int {
	if limit, ok := a.cfg.CategoryCaps[cat]; ok && limit > 0 {
		return limit
	}
	return defaultCategoryCap
}
