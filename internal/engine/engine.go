// Package engine assembles the media aggregation pipeline from its parts:
// HTTP client, provider registry, rate controller, aggregator, cache and
// character catalog. Subcommands call into this package instead of wiring
// components themselves.
package engine

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/soratane/chardex-go/internal/aggregator"
	"github.com/soratane/chardex-go/internal/charstore"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/dedup"
	"github.com/soratane/chardex-go/internal/httpclient"
	"github.com/soratane/chardex-go/internal/mediacache"
	"github.com/soratane/chardex-go/internal/observability"
	"github.com/soratane/chardex-go/internal/provider"
	"github.com/soratane/chardex-go/internal/ratecontrol"
)

// Engine holds the assembled media aggregation pipeline.
type Engine struct {
	Settings   *conf.Settings
	Store      charstore.Store
	Cache      *mediacache.Cache
	Aggregator *aggregator.Aggregator
	Registry   *prometheus.Registry
	Metrics    *observability.MediaMetrics

	client *httpclient.Client
}

// New assembles the pipeline from settings. The returned Engine owns the
// HTTP client and catalog connection; call Close when done.
func New(settings *conf.Settings) (*Engine, error) {
	clientCfg := httpclient.DefaultConfig()
	clientCfg.DefaultTimeout = settings.Media.Aggregator.CallTimeout
	client := httpclient.New(&clientCfg)

	providers, err := provider.BuildRegistry(settings.Media.Providers, client)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("building provider registry: %w", err)
	}

	promRegistry := prometheus.NewRegistry()
	metrics, err := observability.NewMediaMetrics(promRegistry)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("registering metrics: %w", err)
	}

	rates := ratecontrol.New(ratecontrol.FromSettings(settings.Media.RateLimit))
	for _, id := range providers.PriorityOrder() {
		rates.Register(id)
	}

	agg := aggregator.New(
		aggregator.FromSettings(settings.Media),
		providers,
		rates,
		dedup.NewDifferenceHasher(client),
		metrics,
		settings.Media.Dedup.Threshold,
	)

	cache := mediacache.New(mediacache.FromSettings(settings.Media.Cache), agg, metrics)

	store, err := charstore.Open(settings.Store, settings.Debug)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("opening character catalog: %w", err)
	}

	return &Engine{
		Settings:   settings,
		Store:      store,
		Cache:      cache,
		Aggregator: agg,
		Registry:   promRegistry,
		Metrics:    metrics,
		client:     client,
	}, nil
}

// Close waits for in-flight background refreshes and releases the catalog
// and HTTP client.
func (e *Engine) Close() error {
	e.Cache.WaitRefreshes()
	e.client.Close()
	return e.Store.Close()
}
