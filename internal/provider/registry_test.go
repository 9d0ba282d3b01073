package provider

import (
	"context"
	"testing"

	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/httpclient"
	"github.com/soratane/chardex-go/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubAdapter struct {
	id         string
	categories []media.Category
}

func (s *stubAdapter) ID() string                               { return s.id }
func (s *stubAdapter) SupportedCategories() []media.Category    { return s.categories }
func (s *stubAdapter) Fetch(context.Context, media.CharacterIdentity, media.Category, int) media.ProviderResult {
	return media.ProviderResult{Provider: s.id, Status: media.StatusEmpty}
}

func TestRegistryPriorityOrder(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{id: "official", categories: []media.Category{media.CategoryPortrait}}))
	require.NoError(t, r.Register(&stubAdapter{id: "fan", categories: []media.Category{media.CategoryPortrait, media.CategoryGIF}}))

	assert.Equal(t, []string{"official", "fan"}, r.PriorityOrder())
}

func TestRegistryRejectsDuplicates(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{id: "booru"}))
	assert.Error(t, r.Register(&stubAdapter{id: "booru"}))
}

func TestRegistryForCategoryFiltersAndOrders(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	require.NoError(t, r.Register(&stubAdapter{id: "a", categories: []media.Category{media.CategoryPortrait}}))
	require.NoError(t, r.Register(&stubAdapter{id: "b", categories: []media.Category{media.CategoryGIF}}))
	require.NoError(t, r.Register(&stubAdapter{id: "c", categories: []media.Category{media.CategoryPortrait}}))

	eligible := r.ForCategory(media.CategoryPortrait)
	require.Len(t, eligible, 2)
	assert.Equal(t, "a", eligible[0].ID())
	assert.Equal(t, "c", eligible[1].ID())

	assert.Empty(t, r.ForCategory(media.CategoryFanArt))
}

func TestBuildRegistrySkipsDisabledProviders(t *testing.T) {
	t.Parallel()

	client := httpclient.New(nil)
	registry, err := BuildRegistry([]conf.ProviderSettings{
		{ID: "fandom", Enabled: true, BaseURL: "https://wiki.test", Categories: []string{"portrait"}},
		{ID: "booru", Enabled: false, BaseURL: "https://booru.test", Categories: []string{"fan-art"}},
		{ID: "gifvault", Enabled: true, BaseURL: "https://gif.test"},
	}, client)
	require.NoError(t, err)

	assert.Equal(t, []string{"fandom", "gifvault"}, registry.PriorityOrder())
	_, ok := registry.Get("booru")
	assert.False(t, ok)
}

func TestBuildRegistryUnknownProvider(t *testing.T) {
	t.Parallel()

	_, err := BuildRegistry([]conf.ProviderSettings{
		{ID: "mystery", Enabled: true},
	}, httpclient.New(nil))
	assert.Error(t, err)
}
