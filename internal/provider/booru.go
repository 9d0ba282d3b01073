// booru.go: Adapter for Danbooru-compatible image board APIs.
package provider

import (
	"context"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/antonholmquist/jason"
	"github.com/google/uuid"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/httpclient"
	"github.com/soratane/chardex-go/internal/logging"
	"github.com/soratane/chardex-go/internal/media"
)

const booruProviderName = "booru"

// categoryTags maps media categories onto board tag filters.
var booruCategoryTags = map[media.Category]string{
	media.CategoryPortrait:    "portrait",
	media.CategoryFullBody:    "full_body",
	media.CategoryFanArt:      "",
	media.CategoryOfficialArt: "official_art",
}

// BooruAdapter fetches character art from a Danbooru-compatible JSON API.
type BooruAdapter struct {
	id         string
	baseURL    string
	apiKey     string
	categories []media.Category
	client     *httpclient.Client
	logger     *slog.Logger
}

// NewBooruAdapter creates an adapter from provider configuration.
func NewBooruAdapter(cfg conf.ProviderSettings, client *httpclient.Client) *BooruAdapter {
	return &BooruAdapter{
		id:         cfg.ID,
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.APIKey,
		categories: parseCategories(cfg.Categories),
		client:     client,
		logger:     logging.ForService("provider." + cfg.ID),
	}
}

// ID implements Adapter.
func (a *BooruAdapter) ID() string { return a.id }

// SupportedCategories implements Adapter.
func (a *BooruAdapter) SupportedCategories() []media.Category { return a.categories }

// Fetch implements Adapter. Query terms are tried in order until one yields
// results; an exhausted term list is an empty result, not an error.
func (a *BooruAdapter) Fetch(ctx context.Context, identity media.CharacterIdentity, category media.Category, limit int) media.ProviderResult {
	reqID := uuid.New().String()[:8]
	logger := a.logger.With("request_id", reqID, "character", identity.Name, "category", category)
	start := time.Now()

	result := media.ProviderResult{Provider: a.id, Status: media.StatusEmpty}
	for _, term := range identity.QueryTerms() {
		items, status, retryAfter, err := a.search(ctx, logger, term, category, limit)
		switch status {
		case media.StatusSuccess:
			result.Items = items
			result.Status = media.StatusSuccess
		case media.StatusEmpty:
			logger.Debug("No results for query term, trying next alias", "term", term)
			continue
		case media.StatusRateLimited:
			result.Status = media.StatusRateLimited
			result.RetryAfter = retryAfter
		case media.StatusError:
			result.Status = media.StatusError
			result.Err = err
		}
		break
	}

	result.Elapsed = time.Since(start)
	logger.Debug("Booru fetch complete",
		"status", result.Status,
		"items", len(result.Items),
		"elapsed", result.Elapsed)
	return result
}

func (a *BooruAdapter) search(ctx context.Context, logger *slog.Logger, term string, category media.Category, limit int) ([]media.Item, media.ResultStatus, time.Duration, error) {
	q := url.Values{}
	tags := term
	if catTag := booruCategoryTags[category]; catTag != "" {
		tags += " " + catTag
	}
	q.Set("tags", tags)
	q.Set("limit", strconv.Itoa(limit))
	if a.apiKey != "" {
		q.Set("api_key", a.apiKey)
	}
	fullURL := a.baseURL + "/posts.json?" + q.Encode()

	resp, err := a.client.Get(ctx, fullURL)
	if err != nil {
		return nil, media.StatusError, 0, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("Failed to close response body", "error", closeErr)
		}
	}()

	switch ClassifyResponse(resp.StatusCode) {
	case media.StatusRateLimited:
		return nil, media.StatusRateLimited, ParseRetryAfter(resp.Header, time.Now()), nil
	case media.StatusError:
		logger.Warn("Booru API returned error status", "status_code", resp.StatusCode, "term", term)
		return nil, media.StatusError, 0, errorFromStatus(a.id, resp.StatusCode)
	}

	root, err := jason.NewValueFromReader(resp.Body)
	if err != nil {
		logger.Warn("Failed to parse booru response", "error", err, "term", term)
		return nil, media.StatusError, 0, err
	}
	posts, err := root.Array()
	if err != nil {
		logger.Warn("Booru response is not a post array", "error", err, "term", term)
		return nil, media.StatusError, 0, err
	}
	if len(posts) == 0 {
		return nil, media.StatusEmpty, 0, nil
	}

	items := make([]media.Item, 0, len(posts))
	for _, p := range posts {
		post, err := p.Object()
		if err != nil {
			continue
		}
		fileURL, err := post.GetString("file_url")
		if err != nil || fileURL == "" {
			// Posts hidden behind account restrictions have no file_url.
			continue
		}
		score, _ := post.GetFloat64("score")
		items = append(items, media.Item{
			URL:      fileURL,
			Provider: a.id,
			Category: category,
			Score:    score,
		})
	}
	if len(items) == 0 {
		return nil, media.StatusEmpty, 0, nil
	}
	return items, media.StatusSuccess, 0, nil
}
