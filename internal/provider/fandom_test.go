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

const fandomTestBase = "https://wiki.test"

const fandomTestPage = `<html><body>
<aside class="portable-infobox">
  <figure class="pi-image">
    <img src="https://static.wiki.test/loid.png/revision/latest/scale-to-width-down/350">
  </figure>
</aside>
<div class="wikia-gallery-item">
  <img src="https://static.wiki.test/loid-full.png?cb=123">
  <figcaption><b>Full body</b> concept art</figcaption>
</div>
<div class="wikia-gallery-item">
  <img src="https://static.wiki.test/loid-misc.png">
  <figcaption>Episode 3 screenshot</figcaption>
</div>
</body></html>`

func newFandomUnderTest(t *testing.T) *FandomAdapter {
	t.Helper()
	return NewFandomAdapter(conf.ProviderSettings{
		ID:         "fandom",
		BaseURL:    fandomTestBase,
		Categories: []string{"portrait", "full-body", "official-art"},
	}, newMockedClient(t))
}

func TestFandomPortraitFromInfobox(t *testing.T) {
	adapter := newFandomUnderTest(t)

	httpmock.RegisterResponder("GET", fandomTestBase+"/wiki/Loid_Forger",
		httpmock.NewStringResponder(200, fandomTestPage))

	result := adapter.Fetch(context.Background(), media.NewIdentity("Loid Forger", "Spy x Family"), media.CategoryPortrait, 5)

	assert.Equal(t, media.StatusSuccess, result.Status)
	require.Len(t, result.Items, 1)
	assert.Equal(t, "https://static.wiki.test/loid.png", result.Items[0].URL, "thumbnail scaling suffix is stripped")
	assert.Equal(t, 1.0, result.Items[0].Score)
}

func TestFandomFullBodyMatchesCaption(t *testing.T) {
	adapter := newFandomUnderTest(t)

	httpmock.RegisterResponder("GET", fandomTestBase+"/wiki/Loid_Forger",
		httpmock.NewStringResponder(200, fandomTestPage))

	result := adapter.Fetch(context.Background(), media.NewIdentity("Loid Forger", "Spy x Family"), media.CategoryFullBody, 5)

	assert.Equal(t, media.StatusSuccess, result.Status)
	require.Len(t, result.Items, 1, "only gallery entries with a full-body caption qualify")
	assert.Equal(t, "https://static.wiki.test/loid-full.png", result.Items[0].URL)
}

func TestFandomMissingPageFallsThroughAliases(t *testing.T) {
	adapter := newFandomUnderTest(t)

	httpmock.RegisterResponder("GET", fandomTestBase+"/wiki/Loid_Forger",
		httpmock.NewStringResponder(404, "not found"))
	httpmock.RegisterResponder("GET", fandomTestBase+"/wiki/Twilight",
		httpmock.NewStringResponder(200, fandomTestPage))

	result := adapter.Fetch(context.Background(), media.NewIdentity("Loid Forger", "Spy x Family", "Twilight"), media.CategoryPortrait, 5)

	assert.Equal(t, media.StatusSuccess, result.Status)
	require.Len(t, result.Items, 1)
}

func TestFandomNoPageAnywhereIsEmpty(t *testing.T) {
	adapter := newFandomUnderTest(t)

	httpmock.RegisterResponder("GET", `=~^https://wiki\.test/wiki/.*`,
		httpmock.NewStringResponder(404, "not found"))

	result := adapter.Fetch(context.Background(), media.NewIdentity("Nobody", "Nowhere"), media.CategoryPortrait, 5)

	assert.Equal(t, media.StatusEmpty, result.Status)
	assert.NoError(t, result.Err)
}
