package provider

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/jarcoal/httpmock"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/httpclient"
	"github.com/soratane/chardex-go/internal/media"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const booruTestBase = "https://booru.test"

func newMockedClient(t *testing.T) *httpclient.Client {
	t.Helper()
	client := httpclient.New(nil)
	client.SetTransport(httpmock.DefaultTransport)
	t.Cleanup(httpmock.DefaultTransport.Reset)
	return client
}

func newBooruUnderTest(t *testing.T) *BooruAdapter {
	t.Helper()
	return NewBooruAdapter(conf.ProviderSettings{
		ID:         "booru",
		BaseURL:    booruTestBase,
		Categories: []string{"portrait", "fan-art"},
	}, newMockedClient(t))
}

func TestBooruFetchSuccess(t *testing.T) {
	adapter := newBooruUnderTest(t)

	httpmock.RegisterResponder("GET", booruTestBase+"/posts.json",
		httpmock.NewStringResponder(200, `[
			{"file_url": "https://cdn.booru.test/a.jpg", "score": 42},
			{"file_url": "https://cdn.booru.test/b.jpg", "score": 7},
			{"score": 3}
		]`))

	identity := media.NewIdentity("Loid Forger", "Spy x Family")
	result := adapter.Fetch(context.Background(), identity, media.CategoryFanArt, 10)

	assert.Equal(t, media.StatusSuccess, result.Status)
	require.Len(t, result.Items, 2, "posts without file_url are skipped")
	assert.Equal(t, "https://cdn.booru.test/a.jpg", result.Items[0].URL)
	assert.Equal(t, 42.0, result.Items[0].Score)
	assert.Equal(t, "booru", result.Items[0].Provider)
	assert.Equal(t, media.CategoryFanArt, result.Items[0].Category)
}

func TestBooruFetchEmptyTriesAliases(t *testing.T) {
	adapter := newBooruUnderTest(t)

	calls := 0
	httpmock.RegisterResponder("GET", booruTestBase+"/posts.json",
		func(req *http.Request) (*http.Response, error) {
			calls++
			if req.URL.Query().Get("tags") == "twilight" {
				return httpmock.NewStringResponse(200, `[{"file_url": "https://cdn.booru.test/t.jpg"}]`), nil
			}
			return httpmock.NewStringResponse(200, `[]`), nil
		})

	identity := media.NewIdentity("Loid Forger", "Spy x Family", "Twilight")
	result := adapter.Fetch(context.Background(), identity, media.CategoryFanArt, 10)

	assert.Equal(t, media.StatusSuccess, result.Status)
	assert.Equal(t, 2, calls, "empty result for the canonical name falls through to the alias")
	require.Len(t, result.Items, 1)
}

func TestBooruFetchRateLimited(t *testing.T) {
	adapter := newBooruUnderTest(t)

	resp := httpmock.NewStringResponse(429, "slow down")
	resp.Header = http.Header{"Retry-After": []string{"17"}}
	httpmock.RegisterResponder("GET", booruTestBase+"/posts.json", httpmock.ResponderFromResponse(resp))

	result := adapter.Fetch(context.Background(), media.NewIdentity("Rem", "Re:Zero"), media.CategoryFanArt, 10)

	assert.Equal(t, media.StatusRateLimited, result.Status)
	assert.Equal(t, 17*time.Second, result.RetryAfter)
	assert.Empty(t, result.Items)
}

func TestBooruFetchServerErrorIsStatusNotFault(t *testing.T) {
	adapter := newBooruUnderTest(t)

	httpmock.RegisterResponder("GET", booruTestBase+"/posts.json",
		httpmock.NewStringResponder(500, "oops"))

	result := adapter.Fetch(context.Background(), media.NewIdentity("Rem", "Re:Zero"), media.CategoryFanArt, 10)

	assert.Equal(t, media.StatusError, result.Status)
	assert.Error(t, result.Err)
}

func TestBooruFetchMalformedJSON(t *testing.T) {
	adapter := newBooruUnderTest(t)

	httpmock.RegisterResponder("GET", booruTestBase+"/posts.json",
		httpmock.NewStringResponder(200, `{not json`))

	result := adapter.Fetch(context.Background(), media.NewIdentity("Rem", "Re:Zero"), media.CategoryFanArt, 10)

	assert.Equal(t, media.StatusError, result.Status)
	assert.Error(t, result.Err)
}

func TestBooruFetchHonorsCancellation(t *testing.T) {
	adapter := newBooruUnderTest(t)

	httpmock.RegisterResponder("GET", booruTestBase+"/posts.json",
		httpmock.NewStringResponder(200, `[]`).Delay(5*time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	start := time.Now()
	result := adapter.Fetch(ctx, media.NewIdentity("Rem", "Re:Zero"), media.CategoryFanArt, 10)

	assert.Equal(t, media.StatusError, result.Status)
	assert.Less(t, time.Since(start), time.Second, "cancellation must abort outbound I/O promptly")
}
