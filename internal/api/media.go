package api

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/soratane/chardex-go/internal/charstore"
	"github.com/soratane/chardex-go/internal/errors"
	"github.com/soratane/chardex-go/internal/media"
	"github.com/soratane/chardex-go/internal/mediacache"
)

// MediaItemResponse is one media asset in an API response.
type MediaItemResponse struct {
	URL      string  `json:"url"`
	Provider string  `json:"provider"`
	Category string  `json:"category"`
	Score    float64 `json:"score,omitempty"`
}

// CharacterMediaResponse is the response body for the character media
// endpoint.
type CharacterMediaResponse struct {
	Character  string                         `json:"character"`
	Series     string                         `json:"series"`
	Partial    bool                           `json:"partial"`
	FetchedAt  time.Time                      `json:"fetched_at"`
	TotalItems int                            `json:"total_items"`
	Categories map[string][]MediaItemResponse `json:"categories"`
}

// CharacterResponse is one catalog entry in a search result.
type CharacterResponse struct {
	ID      uint     `json:"id"`
	Slug    string   `json:"slug"`
	Name    string   `json:"name"`
	Series  string   `json:"series"`
	Aliases []string `json:"aliases,omitempty"`
}

// GetCharacterMedia returns the aggregated media bundle for one character.
// The :id parameter accepts a numeric catalog ID or a URL slug; the optional
// categories query parameter narrows the result to a comma-separated subset.
func (c *Controller) GetCharacterMedia(ctx echo.Context) error {
	character, err := c.lookupCharacter(ctx)
	if err != nil {
		if errors.Is(err, charstore.ErrCharacterNotFound) {
			return c.handleError(ctx, err, "Character not found", http.StatusNotFound)
		}
		return c.handleError(ctx, err, "Failed to look up character", http.StatusInternalServerError)
	}

	categories, err := parseCategoriesParam(ctx.QueryParam("categories"))
	if err != nil {
		return c.handleError(ctx, err, "Invalid media category", http.StatusBadRequest)
	}

	bundle, err := c.cache.Get(ctx.Request().Context(), character.Identity(), categories)
	if err != nil {
		if errors.Is(err, mediacache.ErrUnavailable) {
			ctx.Response().Header().Set("Retry-After",
				strconv.Itoa(int(c.settings.Media.Cache.NegativeTTL.Seconds())))
			return c.handleError(ctx, err, "Media providers temporarily unavailable",
				http.StatusServiceUnavailable)
		}
		return c.handleError(ctx, err, "Failed to aggregate media", http.StatusInternalServerError)
	}

	return ctx.JSON(http.StatusOK, bundleResponse(character, bundle))
}

// SearchCharacters returns catalog entries matching the q query parameter by
// name or alias.
func (c *Controller) SearchCharacters(ctx echo.Context) error {
	query := strings.TrimSpace(ctx.QueryParam("q"))
	if query == "" {
		return c.handleError(ctx, nil, "Missing search query", http.StatusBadRequest)
	}

	limit := 20
	if raw := ctx.QueryParam("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 100 {
			return c.handleError(ctx, err, "Invalid limit", http.StatusBadRequest)
		}
		limit = parsed
	}

	chars, err := c.store.Search(ctx.Request().Context(), query, limit)
	if err != nil {
		return c.handleError(ctx, err, "Search failed", http.StatusInternalServerError)
	}

	resp := make([]CharacterResponse, 0, len(chars))
	for i := range chars {
		resp = append(resp, characterResponse(&chars[i]))
	}
	return ctx.JSON(http.StatusOK, resp)
}

// lookupCharacter resolves the :id path parameter as a numeric catalog ID
// first, then as a URL slug.
func (c *Controller) lookupCharacter(ctx echo.Context) (*charstore.Character, error) {
	param := ctx.Param("id")
	if id, err := strconv.ParseUint(param, 10, 32); err == nil {
		return c.store.Get(ctx.Request().Context(), uint(id))
	}
	return c.store.GetBySlug(ctx.Request().Context(), param)
}

// parseCategoriesParam parses a comma-separated category list, defaulting to
// all known categories when empty. Unknown categories are an error, not
// silently dropped, so the caller learns about typos.
func parseCategoriesParam(raw string) ([]media.Category, error) {
	if strings.TrimSpace(raw) == "" {
		return media.AllCategories(), nil
	}

	var categories []media.Category
	for _, part := range strings.Split(raw, ",") {
		cat, err := media.ParseCategory(part)
		if err != nil {
			return nil, err
		}
		categories = append(categories, cat)
	}
	return categories, nil
}

func bundleResponse(character *charstore.Character, bundle *media.Bundle) *CharacterMediaResponse {
	resp := &CharacterMediaResponse{
		Character:  character.Name,
		Series:     character.Series,
		Partial:    bundle.Partial,
		FetchedAt:  bundle.FetchedAt,
		TotalItems: bundle.Count(),
		Categories: make(map[string][]MediaItemResponse, len(bundle.Categories)),
	}
	for cat, items := range bundle.Categories {
		out := make([]MediaItemResponse, 0, len(items))
		for _, it := range items {
			out = append(out, MediaItemResponse{
				URL:      it.URL,
				Provider: it.Provider,
				Category: string(it.Category),
				Score:    it.Score,
			})
		}
		resp.Categories[string(cat)] = out
	}
	return resp
}

func characterResponse(c *charstore.Character) CharacterResponse {
	aliases := make([]string, 0, len(c.Aliases))
	for _, a := range c.Aliases {
		aliases = append(aliases, a.Name)
	}
	return CharacterResponse{
		ID:      c.ID,
		Slug:    c.Slug,
		Name:    c.Name,
		Series:  c.Series,
		Aliases: aliases,
	}
}
