// gifvault.go: Adapter for Tenor-compatible GIF search APIs.
package provider

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/url"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/httpclient"
	"github.com/soratane/chardex-go/internal/logging"
	"github.com/soratane/chardex-go/internal/media"
)

const gifVaultProviderName = "gifvault"

// GifVaultAdapter fetches character GIFs from a Tenor-compatible search API.
type GifVaultAdapter struct {
	id      string
	baseURL string
	apiKey  string
	client  *httpclient.Client
	logger  *slog.Logger
}

// NewGifVaultAdapter creates an adapter from provider configuration.
func NewGifVaultAdapter(cfg conf.ProviderSettings, client *httpclient.Client) *GifVaultAdapter {
	return &GifVaultAdapter{
		id:      cfg.ID,
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		client:  client,
		logger:  logging.ForService("provider." + cfg.ID),
	}
}

// ID implements Adapter.
func (a *GifVaultAdapter) ID() string { return a.id }

// SupportedCategories implements Adapter. GIF search serves exactly one
// category regardless of configuration.
func (a *GifVaultAdapter) SupportedCategories() []media.Category {
	return []media.Category{media.CategoryGIF}
}

// gifSearchResponse mirrors the subset of the search API response we consume.
type gifSearchResponse struct {
	Results []struct {
		ID    string `json:"id"`
		Media []struct {
			GIF struct {
				URL string `json:"url"`
			} `json:"gif"`
		} `json:"media"`
	} `json:"results"`
}

// Fetch implements Adapter.
func (a *GifVaultAdapter) Fetch(ctx context.Context, identity media.CharacterIdentity, category media.Category, limit int) media.ProviderResult {
	reqID := uuid.New().String()[:8]
	logger := a.logger.With("request_id", reqID, "character", identity.Name)
	start := time.Now()

	result := media.ProviderResult{Provider: a.id, Status: media.StatusEmpty}
	if category != media.CategoryGIF {
		result.Elapsed = time.Since(start)
		return result
	}

	// Series-qualified query gives much better hit rates than the bare name.
	q := url.Values{}
	q.Set("q", identity.Name+" "+identity.Series)
	q.Set("limit", strconv.Itoa(limit))
	if a.apiKey != "" {
		q.Set("key", a.apiKey)
	}
	fullURL := a.baseURL + "/search?" + q.Encode()

	resp, err := a.client.Get(ctx, fullURL)
	if err != nil {
		result.Status = media.StatusError
		result.Err = err
		result.Elapsed = time.Since(start)
		return result
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("Failed to close response body", "error", closeErr)
		}
	}()

	switch ClassifyResponse(resp.StatusCode) {
	case media.StatusRateLimited:
		result.Status = media.StatusRateLimited
		result.RetryAfter = ParseRetryAfter(resp.Header, time.Now())
		result.Elapsed = time.Since(start)
		logger.Warn("GIF API rate limited", "status_code", resp.StatusCode, "retry_after", result.RetryAfter)
		return result
	case media.StatusError:
		result.Status = media.StatusError
		result.Err = errorFromStatus(a.id, resp.StatusCode)
		result.Elapsed = time.Since(start)
		logger.Warn("GIF API returned error status", "status_code", resp.StatusCode)
		return result
	}

	var parsed gifSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		result.Status = media.StatusError
		result.Err = err
		result.Elapsed = time.Since(start)
		logger.Warn("Failed to decode GIF API response", "error", err)
		return result
	}

	for _, r := range parsed.Results {
		for _, m := range r.Media {
			if m.GIF.URL == "" {
				continue
			}
			result.Items = append(result.Items, media.Item{
				URL:      m.GIF.URL,
				Provider: a.id,
				Category: media.CategoryGIF,
			})
			break
		}
	}
	if len(result.Items) > 0 {
		result.Status = media.StatusSuccess
	}
	result.Elapsed = time.Since(start)
	logger.Debug("GIF fetch complete", "status", result.Status, "items", len(result.Items), "elapsed", result.Elapsed)
	return result
}
