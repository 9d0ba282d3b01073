package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/soratane/chardex-go/internal/charstore"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/errors"
	"github.com/soratane/chardex-go/internal/media"
	"github.com/soratane/chardex-go/internal/mediacache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubStore is an in-memory charstore.Store for handler tests.
type stubStore struct {
	characters map[uint]*charstore.Character
}

func (s *stubStore) Get(_ context.Context, id uint) (*charstore.Character, error) {
	if c, ok := s.characters[id]; ok {
		return c, nil
	}
	return nil, charstore.ErrCharacterNotFound
}

func (s *stubStore) GetBySlug(_ context.Context, slug string) (*charstore.Character, error) {
	for _, c := range s.characters {
		if c.Slug == slug {
			return c, nil
		}
	}
	return nil, charstore.ErrCharacterNotFound
}

func (s *stubStore) Search(_ context.Context, query string, _ int) ([]charstore.Character, error) {
	var out []charstore.Character
	for _, c := range s.characters {
		if c.Name == query {
			out = append(out, *c)
		}
	}
	return out, nil
}

func (s *stubStore) Close() error { return nil }

// stubFetcher feeds the media cache in handler tests.
type stubFetcher struct {
	bundle *media.Bundle
	err    error
}

func (f *stubFetcher) Aggregate(_ context.Context, identity media.CharacterIdentity, _ []media.Category) (*media.Bundle, error) {
	if f.err != nil {
		return nil, f.err
	}
	b := *f.bundle
	b.Identity = identity
	return &b, nil
}

func testSettings() *conf.Settings {
	s := &conf.Settings{}
	s.Version = "test"
	s.Media.Cache.NegativeTTL = 30 * time.Second
	return s
}

func newTestController(t *testing.T, fetcher mediacache.Fetcher) *Controller {
	t.Helper()

	store := &stubStore{characters: map[uint]*charstore.Character{
		1: {
			ID:     1,
			Slug:   "mika-blue-archive",
			Name:   "Mika",
			Series: "Blue Archive",
		},
	}}

	cache := mediacache.New(mediacache.Config{
		TTL:         time.Hour,
		NegativeTTL: 30 * time.Second,
		Capacity:    16,
	}, fetcher, nil)

	return New(echo.New(), store, cache, testSettings(), nil)
}

func successFetcher() *stubFetcher {
	return &stubFetcher{bundle: &media.Bundle{
		Categories: map[media.Category][]media.Item{
			media.CategoryPortrait: {
				{URL: "https://a.example/1.png", Provider: "booru", Category: media.CategoryPortrait, Score: 0.9},
			},
		},
		FetchedAt: time.Now().UTC(),
	}}
}

func doRequest(c *Controller, method, target string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, target, http.NoBody)
	rec := httptest.NewRecorder()
	c.Echo.ServeHTTP(rec, req)
	return rec
}

func TestGetCharacterMedia(t *testing.T) {
	t.Parallel()

	c := newTestController(t, successFetcher())

	rec := doRequest(c, http.MethodGet, "/api/v1/characters/1/media")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp CharacterMediaResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Mika", resp.Character)
	assert.Equal(t, "Blue Archive", resp.Series)
	assert.Equal(t, 1, resp.TotalItems)
	require.Len(t, resp.Categories["portrait"], 1)
	assert.Equal(t, "https://a.example/1.png", resp.Categories["portrait"][0].URL)
}

func TestGetCharacterMediaBySlug(t *testing.T) {
	t.Parallel()

	c := newTestController(t, successFetcher())

	rec := doRequest(c, http.MethodGet, "/api/v1/characters/mika-blue-archive/media")
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestGetCharacterMediaUnknownCharacter(t *testing.T) {
	t.Parallel()

	c := newTestController(t, successFetcher())

	rec := doRequest(c, http.MethodGet, "/api/v1/characters/999/media")
	require.Equal(t, http.StatusNotFound, rec.Code)

	var resp ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, http.StatusNotFound, resp.Code)
	assert.NotEmpty(t, resp.CorrelationID)
}

func TestGetCharacterMediaBadCategory(t *testing.T) {
	t.Parallel()

	c := newTestController(t, successFetcher())

	rec := doRequest(c, http.MethodGet, "/api/v1/characters/1/media?categories=portrait,wallpaper")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetCharacterMediaUnavailable(t *testing.T) {
	t.Parallel()

	c := newTestController(t, &stubFetcher{err: errors.NewStd("all providers failed")})

	rec := doRequest(c, http.MethodGet, "/api/v1/characters/1/media")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "30", rec.Header().Get("Retry-After"))
}

func TestSearchCharacters(t *testing.T) {
	t.Parallel()

	c := newTestController(t, successFetcher())

	rec := doRequest(c, http.MethodGet, "/api/v1/characters/search?q=Mika")
	require.Equal(t, http.StatusOK, rec.Code)

	var resp []CharacterResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Len(t, resp, 1)
	assert.Equal(t, "mika-blue-archive", resp[0].Slug)
}

func TestSearchCharactersMissingQuery(t *testing.T) {
	t.Parallel()

	c := newTestController(t, successFetcher())

	rec := doRequest(c, http.MethodGet, "/api/v1/characters/search")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	c := newTestController(t, successFetcher())

	rec := doRequest(c, http.MethodGet, "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}
