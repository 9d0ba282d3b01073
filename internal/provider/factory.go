package provider

import (
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/errors"
	"github.com/soratane/chardex-go/internal/httpclient"
	"github.com/soratane/chardex-go/internal/logging"
)

// BuildRegistry constructs adapters for every enabled configured provider, in
// configuration order so the registry's priority order matches the config.
func BuildRegistry(providers []conf.ProviderSettings, client *httpclient.Client) (*Registry, error) {
	registry := NewRegistry()
	for i := range providers {
		cfg := providers[i]
		if !cfg.Enabled {
			logging.Info("Provider disabled by configuration", "provider", cfg.ID)
			continue
		}

		var adapter Adapter
		switch cfg.ID {
		case booruProviderName:
			adapter = NewBooruAdapter(cfg, client)
		case gifVaultProviderName:
			adapter = NewGifVaultAdapter(cfg, client)
		case fandomProviderName:
			adapter = NewFandomAdapter(cfg, client)
		default:
			return nil, errors.Newf("unknown provider id in configuration: %s", cfg.ID).
				Component("provider").
				Category(errors.CategoryConfiguration).
				Context("provider", cfg.ID).
				Build()
		}

		if err := registry.Register(adapter); err != nil {
			return nil, err
		}
		logging.Info("Registered media provider",
			"provider", cfg.ID,
			"categories", cfg.Categories,
			"priority", registry.Len())
	}
	return registry, nil
}
