package conf

import (
	"time"

	"github.com/spf13/viper"
)

// setDefaultConfig sets the default configuration values
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	// Main configuration
	viper.SetDefault("main.name", "chardex")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "logs/chardex.log")
	viper.SetDefault("main.log.rotation", RotationDaily)
	viper.SetDefault("main.log.maxsize", 10*1024*1024)

	// Server configuration
	viper.SetDefault("server.host", "0.0.0.0")
	viper.SetDefault("server.port", 8090)

	// Character store configuration
	viper.SetDefault("store.path", "chardex.db")

	// Media aggregation engine
	viper.SetDefault("media.cache.ttl", 6*time.Hour)
	viper.SetDefault("media.cache.negativettl", 30*time.Second)
	viper.SetDefault("media.cache.refreshgrace", 24*time.Hour)
	viper.SetDefault("media.cache.capacity", 2048)

	viper.SetDefault("media.aggregator.globalconcurrency", 8)
	viper.SetDefault("media.aggregator.calltimeout", 5*time.Second)
	viper.SetDefault("media.aggregator.requestdeadline", 10*time.Second)

	viper.SetDefault("media.ratelimit.requestspersecond", 2.0)
	viper.SetDefault("media.ratelimit.burst", 2)
	viper.SetDefault("media.ratelimit.basebackoff", 500*time.Millisecond)
	viper.SetDefault("media.ratelimit.maxbackofffactor", 64)
	viper.SetDefault("media.ratelimit.errorbackoff", 2*time.Second)
	viper.SetDefault("media.ratelimit.suspendafter", 5)
	viper.SetDefault("media.ratelimit.suspendcooldown", 5*time.Minute)

	viper.SetDefault("media.dedup.threshold", 0.05)

	viper.SetDefault("media.categorycaps", []map[string]any{
		{"category": "portrait", "limit": 15},
		{"category": "full-body", "limit": 15},
		{"category": "gif", "limit": 10},
		{"category": "fan-art", "limit": 20},
		{"category": "official-art", "limit": 10},
	})

	// Provider list order defines priority order, official sources first.
	viper.SetDefault("media.providers", []map[string]any{
		{
			"id":            "fandom",
			"enabled":       true,
			"baseurl":       "https://characters.fandom.com",
			"categories":    []string{"portrait", "full-body", "official-art"},
			"maxconcurrent": 2,
		},
		{
			"id":            "booru",
			"enabled":       true,
			"baseurl":       "https://safebooru.donmai.us",
			"categories":    []string{"portrait", "full-body", "fan-art", "official-art"},
			"maxconcurrent": 2,
		},
		{
			"id":            "gifvault",
			"enabled":       true,
			"baseurl":       "https://g.tenor.com/v1",
			"categories":    []string{"gif"},
			"maxconcurrent": 2,
		},
	})
}
