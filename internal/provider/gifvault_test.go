package provider

import (
	"context"
	"testing"

	"github.com/jarcoal/httpmock"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const gifTestBase = "https://gif.test/v1"

func newGifVaultUnderTest(t *testing.T) *GifVaultAdapter {
	t.Helper()
	return NewGifVaultAdapter(conf.ProviderSettings{
		ID:      "gifvault",
		BaseURL: gifTestBase,
		APIKey:  "test-key",
	}, newMockedClient(t))
}

func TestGifVaultFetchSuccess(t *testing.T) {
	adapter := newGifVaultUnderTest(t)

	httpmock.RegisterResponder("GET", gifTestBase+"/search",
		httpmock.NewStringResponder(200, `{
			"results": [
				{"id": "1", "media": [{"gif": {"url": "https://cdn.gif.test/1.gif"}}]},
				{"id": "2", "media": [{"gif": {"url": "https://cdn.gif.test/2.gif"}}]},
				{"id": "3", "media": [{"gif": {"url": ""}}]}
			]
		}`))

	result := adapter.Fetch(context.Background(), media.NewIdentity("Anya Forger", "Spy x Family"), media.CategoryGIF, 10)

	assert.Equal(t, media.StatusSuccess, result.Status)
	require.Len(t, result.Items, 2)
	assert.Equal(t, media.CategoryGIF, result.Items[0].Category)

	info := httpmock.GetCallCountInfo()
	assert.Equal(t, 1, info["GET "+gifTestBase+"/search"])
}

func TestGifVaultOnlyServesGIFs(t *testing.T) {
	adapter := newGifVaultUnderTest(t)

	result := adapter.Fetch(context.Background(), media.NewIdentity("Anya Forger", "Spy x Family"), media.CategoryPortrait, 10)

	assert.Equal(t, media.StatusEmpty, result.Status)
	assert.Empty(t, result.Items)
	assert.Zero(t, httpmock.GetTotalCallCount(), "non-GIF categories never hit the network")
}

func TestGifVaultEmptyResults(t *testing.T) {
	adapter := newGifVaultUnderTest(t)

	httpmock.RegisterResponder("GET", gifTestBase+"/search",
		httpmock.NewStringResponder(200, `{"results": []}`))

	result := adapter.Fetch(context.Background(), media.NewIdentity("Unknown", "Nowhere"), media.CategoryGIF, 10)

	assert.Equal(t, media.StatusEmpty, result.Status)
	assert.NoError(t, result.Err)
}
