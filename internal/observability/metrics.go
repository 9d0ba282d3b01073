// Package observability provides Prometheus metrics for the media
// aggregation engine.
package observability

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// MediaMetrics contains all Prometheus metrics related to media aggregation.
type MediaMetrics struct {
	CacheHits          prometheus.Counter
	CacheMisses        prometheus.Counter
	CacheStaleServes   prometheus.Counter
	CacheNegativeHits  prometheus.Counter
	CacheEvictions     prometheus.Counter
	CoalescedCallers   prometheus.Counter
	ProviderCalls      *prometheus.CounterVec
	ProviderDuration   *prometheus.HistogramVec
	ProvidersSuspended prometheus.Gauge
	DedupCollapsed     prometheus.Counter

	registry *prometheus.Registry
}

// NewMediaMetrics creates and registers the media aggregation metrics.
func NewMediaMetrics(registry *prometheus.Registry) (*MediaMetrics, error) {
	m := &MediaMetrics{registry: registry}
	m.initMetrics()
	if err := registry.Register(m); err != nil {
		return nil, fmt.Errorf("failed to register media metrics: %w", err)
	}
	return m, nil
}

func (m *MediaMetrics) initMetrics() {
	m.CacheHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_cache_hits_total",
		Help: "Total number of fresh media cache hits.",
	})
	m.CacheMisses = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_cache_misses_total",
		Help: "Total number of media cache misses.",
	})
	m.CacheStaleServes = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_cache_stale_serves_total",
		Help: "Total number of stale bundles served while a refresh ran.",
	})
	m.CacheNegativeHits = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_cache_negative_hits_total",
		Help: "Total number of lookups answered by the negative cache.",
	})
	m.CacheEvictions = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_cache_evictions_total",
		Help: "Total number of bundles evicted by the capacity bound.",
	})
	m.CoalescedCallers = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_singleflight_coalesced_total",
		Help: "Total number of callers coalesced onto an in-flight fetch.",
	})
	m.ProviderCalls = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "media_provider_calls_total",
		Help: "Total provider calls by provider id and outcome.",
	}, []string{"provider", "outcome"})
	m.ProviderDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "media_provider_call_duration_seconds",
		Help:    "Duration of provider calls in seconds.",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
	}, []string{"provider"})
	m.ProvidersSuspended = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "media_providers_suspended",
		Help: "Number of providers currently suspended.",
	})
	m.DedupCollapsed = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "media_dedup_collapsed_total",
		Help: "Total number of items collapsed as duplicates.",
	})
}

// ObserveProviderCall records one resolved provider call.
func (m *MediaMetrics) ObserveProviderCall(provider, outcome string, durationSeconds float64) {
	m.ProviderCalls.WithLabelValues(provider, outcome).Inc()
	m.ProviderDuration.WithLabelValues(provider).Observe(durationSeconds)
}

// Collect implements the prometheus.Collector interface.
func (m *MediaMetrics) Collect(ch chan<- prometheus.Metric) {
	ch <- m.CacheHits
	ch <- m.CacheMisses
	ch <- m.CacheStaleServes
	ch <- m.CacheNegativeHits
	ch <- m.CacheEvictions
	ch <- m.CoalescedCallers
	m.ProviderCalls.Collect(ch)
	m.ProviderDuration.Collect(ch)
	ch <- m.ProvidersSuspended
	ch <- m.DedupCollapsed
}

// Describe implements the prometheus.Collector interface.
func (m *MediaMetrics) Describe(ch chan<- *prometheus.Desc) {
	ch <- m.CacheHits.Desc()
	ch <- m.CacheMisses.Desc()
	ch <- m.CacheStaleServes.Desc()
	ch <- m.CacheNegativeHits.Desc()
	ch <- m.CacheEvictions.Desc()
	ch <- m.CoalescedCallers.Desc()
	m.ProviderCalls.Describe(ch)
	m.ProviderDuration.Describe(ch)
	ch <- m.ProvidersSuspended.Desc()
	ch <- m.DedupCollapsed.Desc()
}
