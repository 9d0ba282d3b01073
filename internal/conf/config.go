// Package conf loads and exposes the chardex-go runtime configuration.
package conf

import (
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"
)

// Log rotation types
const (
	RotationDaily  = "daily"
	RotationWeekly = "weekly"
	RotationSize   = "size"
)

// LogConfig defines the configuration for a log file
type LogConfig struct {
	Enabled  bool   // true to enable this log
	Path     string // Path to the log file
	Rotation string // Log rotation type
	MaxSize  int64  // Max log size in bytes for size rotation
}

// MainSettings contains the main application settings
type MainSettings struct {
	Name string    // name of this node, can be used to identify this instance
	Log  LogConfig // main log configuration
}

// ServerSettings contains the HTTP API server settings
type ServerSettings struct {
	Host string // server host address
	Port int    // server port
}

// StoreSettings contains the character identity store settings
type StoreSettings struct {
	Path string // path to the sqlite database file
}

// ProviderSettings configures one external media provider.
// The order of providers in the configuration defines priority order
// for deduplication tie-breaks and bundle ordering.
type ProviderSettings struct {
	ID            string   // provider identifier, e.g. "booru"
	Enabled       bool     // false to disable the provider entirely
	BaseURL       string   // provider API base URL
	APIKey        string   // optional credential
	Categories    []string // media categories this provider serves
	MaxConcurrent int      // per-provider concurrent call ceiling
}

// CacheSettings configures the media result cache.
type CacheSettings struct {
	TTL          time.Duration // freshness window for cached bundles
	NegativeTTL  time.Duration // how long total failures are remembered
	RefreshGrace time.Duration // max age past TTL before stale serving is refused
	Capacity     int           // max number of cached bundles before eviction
}

// AggregatorSettings configures the fan-out aggregator.
type AggregatorSettings struct {
	GlobalConcurrency int           // simultaneous outbound calls across all providers
	CallTimeout       time.Duration // per provider call timeout
	RequestDeadline   time.Duration // overall aggregation deadline
}

// RateLimitSettings configures per-provider rate budgets.
type RateLimitSettings struct {
	RequestsPerSecond float64       // steady-state token refill rate
	Burst             int           // token bucket burst size
	BaseBackoff       time.Duration // initial backoff after a rate limit
	MaxBackoffFactor  int           // backoff cap as a multiple of BaseBackoff
	ErrorBackoff      time.Duration // fixed backoff after a non-rate-limit error
	SuspendAfter      int           // consecutive errors before suspension
	SuspendCooldown   time.Duration // how long a suspended provider stays excluded
}

// DedupSettings configures perceptual deduplication.
type DedupSettings struct {
	Threshold float64 // normalized Hamming distance at or below which items cluster
}

// CategoryCap pairs a media category name with its result cap.
type CategoryCap struct {
	Category string
	Limit    int
}

// MediaSettings groups all media aggregation engine settings.
type MediaSettings struct {
	Providers    []ProviderSettings // ordered by priority, highest first
	CategoryCaps []CategoryCap      // per-category result caps
	Cache        CacheSettings
	Aggregator   AggregatorSettings
	RateLimit    RateLimitSettings
	Dedup        DedupSettings
}

// Settings contains all application settings
type Settings struct {
	Debug   bool   // true to enable debug logging
	Version string // release version, set at build time

	Main   MainSettings
	Server ServerSettings
	Store  StoreSettings
	Media  MediaSettings
}

var (
	settingsInstance *Settings
	once             sync.Once
	settingsMutex    sync.RWMutex
)

// Load reads the configuration into the global settings instance.
func Load() (*Settings, error) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()

	settings := &Settings{}

	// Initialize viper and read config
	if err := initViper(); err != nil {
		return nil, fmt.Errorf("error initializing viper: %w", err)
	}

	// Unmarshal config into settings
	if err := viper.Unmarshal(settings); err != nil {
		return nil, fmt.Errorf("error unmarshaling config into struct: %w", err)
	}

	if err := validateSettings(settings); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	settingsInstance = settings
	return settingsInstance, nil
}

// initViper initializes viper with defaults, config file discovery and env overrides.
func initViper() error {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	configPaths, err := GetDefaultConfigPaths()
	if err != nil {
		return fmt.Errorf("error getting default config paths: %w", err)
	}
	for _, path := range configPaths {
		viper.AddConfigPath(path)
	}

	viper.SetEnvPrefix("CHARDEX")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	setDefaultConfig()

	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !asConfigFileNotFound(err, &notFound) {
			return fmt.Errorf("fatal error reading config file: %w", err)
		}
		// No config file found, defaults and env vars apply
		slog.Info("No configuration file found, using defaults")
	}

	return nil
}

// Setting returns the global settings instance, loading it if necessary.
func Setting() *Settings {
	once.Do(func() {
		if settingsInstance == nil {
			if _, err := Load(); err != nil {
				slog.Error("Error loading settings", "error", err)
			}
		}
	})

	settingsMutex.RLock()
	defer settingsMutex.RUnlock()
	return settingsInstance
}

// SetTestSettings replaces the global settings instance. Tests only.
func SetTestSettings(s *Settings) {
	settingsMutex.Lock()
	defer settingsMutex.Unlock()
	settingsInstance = s
	once.Do(func() {})
}

// validateSettings checks cross-field constraints that viper cannot express.
func validateSettings(s *Settings) error {
	agg := s.Media.Aggregator
	if agg.CallTimeout >= agg.RequestDeadline {
		return fmt.Errorf("media.aggregator: calltimeout (%s) must be strictly smaller than requestdeadline (%s)",
			agg.CallTimeout, agg.RequestDeadline)
	}
	if s.Media.Cache.TTL <= agg.RequestDeadline {
		return fmt.Errorf("media.cache: ttl (%s) must exceed the aggregator request deadline (%s)",
			s.Media.Cache.TTL, agg.RequestDeadline)
	}
	if s.Media.Dedup.Threshold < 0 || s.Media.Dedup.Threshold > 1 {
		return fmt.Errorf("media.dedup: threshold must be within [0, 1], got %f", s.Media.Dedup.Threshold)
	}
	seen := make(map[string]bool, len(s.Media.Providers))
	for i := range s.Media.Providers {
		id := s.Media.Providers[i].ID
		if id == "" {
			return fmt.Errorf("media.providers[%d]: id must not be empty", i)
		}
		if seen[id] {
			return fmt.Errorf("media.providers: duplicate provider id %q", id)
		}
		seen[id] = true
	}
	return nil
}

func asConfigFileNotFound(err error, target *viper.ConfigFileNotFoundError) bool {
	if e, ok := err.(viper.ConfigFileNotFoundError); ok {
		*target = e
		return true
	}
	return false
}
