package conf

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validFixture() *Settings {
	s := &Settings{}
	s.Media.Aggregator = AggregatorSettings{
		GlobalConcurrency: 8,
		CallTimeout:       5 * time.Second,
		RequestDeadline:   10 * time.Second,
	}
	s.Media.Cache = CacheSettings{
		TTL:          6 * time.Hour,
		NegativeTTL:  30 * time.Second,
		RefreshGrace: 24 * time.Hour,
		Capacity:     2048,
	}
	s.Media.Dedup.Threshold = 0.05
	s.Media.Providers = []ProviderSettings{
		{ID: "fandom", Enabled: true},
		{ID: "booru", Enabled: true},
	}
	return s
}

func TestValidateSettingsAcceptsDefaults(t *testing.T) {
	assert.NoError(t, validateSettings(validFixture()))
}

func TestValidateSettingsCallTimeoutMustBeBelowDeadline(t *testing.T) {
	s := validFixture()
	s.Media.Aggregator.CallTimeout = 10 * time.Second
	err := validateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "calltimeout")
}

func TestValidateSettingsTTLMustExceedDeadline(t *testing.T) {
	s := validFixture()
	s.Media.Cache.TTL = 5 * time.Second
	err := validateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ttl")
}

func TestValidateSettingsThresholdRange(t *testing.T) {
	for _, bad := range []float64{-0.1, 1.5} {
		s := validFixture()
		s.Media.Dedup.Threshold = bad
		assert.Error(t, validateSettings(s), "threshold %f should be rejected", bad)
	}
}

func TestValidateSettingsProviderIDs(t *testing.T) {
	s := validFixture()
	s.Media.Providers = append(s.Media.Providers, ProviderSettings{ID: "booru"})
	err := validateSettings(s)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate")

	s = validFixture()
	s.Media.Providers[0].ID = ""
	assert.Error(t, validateSettings(s))
}

func TestLoadAppliesDefaults(t *testing.T) {
	settings, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8, settings.Media.Aggregator.GlobalConcurrency)
	assert.Equal(t, 5*time.Second, settings.Media.Aggregator.CallTimeout)
	assert.Equal(t, 10*time.Second, settings.Media.Aggregator.RequestDeadline)
	assert.Equal(t, 30*time.Second, settings.Media.Cache.NegativeTTL)
	assert.InDelta(t, 0.05, settings.Media.Dedup.Threshold, 1e-9)
	assert.NotEmpty(t, settings.Media.Providers)

	// Provider order carries priority, so the defaults must be stable.
	assert.Equal(t, "fandom", settings.Media.Providers[0].ID)
}
