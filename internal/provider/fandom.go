// fandom.go: Adapter scraping character pages on Fandom-style wikis.
package provider

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"github.com/k3a/html2text"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/httpclient"
	"github.com/soratane/chardex-go/internal/logging"
	"github.com/soratane/chardex-go/internal/media"
)

const fandomProviderName = "fandom"

// FandomAdapter scrapes character wiki pages for official art. The infobox
// portrait ranks above gallery images.
type FandomAdapter struct {
	id         string
	baseURL    string
	categories []media.Category
	client     *httpclient.Client
	logger     *slog.Logger
}

// NewFandomAdapter creates an adapter from provider configuration.
func NewFandomAdapter(cfg conf.ProviderSettings, client *httpclient.Client) *FandomAdapter {
	return &FandomAdapter{
		id:         cfg.ID,
		baseURL:    cfg.BaseURL,
		categories: parseCategories(cfg.Categories),
		client:     client,
		logger:     logging.ForService("provider." + cfg.ID),
	}
}

// ID implements Adapter.
func (a *FandomAdapter) ID() string { return a.id }

// SupportedCategories implements Adapter.
func (a *FandomAdapter) SupportedCategories() []media.Category { return a.categories }

// Fetch implements Adapter.
func (a *FandomAdapter) Fetch(ctx context.Context, identity media.CharacterIdentity, category media.Category, limit int) media.ProviderResult {
	reqID := uuid.New().String()[:8]
	logger := a.logger.With("request_id", reqID, "character", identity.Name, "category", category)
	start := time.Now()

	result := media.ProviderResult{Provider: a.id, Status: media.StatusEmpty}
	for _, term := range identity.QueryTerms() {
		items, status, retryAfter, err := a.scrapePage(ctx, logger, term, category, limit)
		switch status {
		case media.StatusSuccess:
			result.Items = items
			result.Status = media.StatusSuccess
		case media.StatusEmpty:
			logger.Debug("No wiki page or images for term, trying next alias", "term", term)
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
	logger.Debug("Fandom fetch complete",
		"status", result.Status,
		"items", len(result.Items),
		"elapsed", result.Elapsed)
	return result
}

// pageTitle converts a query term to wiki page title form.
func pageTitle(term string) string {
	return url.PathEscape(strings.ReplaceAll(strings.Title(term), " ", "_")) //nolint:staticcheck // wiki titles are ASCII
}

func (a *FandomAdapter) scrapePage(ctx context.Context, logger *slog.Logger, term string, category media.Category, limit int) ([]media.Item, media.ResultStatus, time.Duration, error) {
	fullURL := a.baseURL + "/wiki/" + pageTitle(term)

	resp, err := a.client.Get(ctx, fullURL)
	if err != nil {
		return nil, media.StatusError, 0, err
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			logger.Debug("Failed to close response body", "error", closeErr)
		}
	}()

	if resp.StatusCode == 404 {
		return nil, media.StatusEmpty, 0, nil
	}
	switch ClassifyResponse(resp.StatusCode) {
	case media.StatusRateLimited:
		return nil, media.StatusRateLimited, ParseRetryAfter(resp.Header, time.Now()), nil
	case media.StatusError:
		logger.Warn("Wiki returned error status", "status_code", resp.StatusCode, "term", term)
		return nil, media.StatusError, 0, errorFromStatus(a.id, resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		logger.Warn("Failed to parse wiki page", "error", err, "term", term)
		return nil, media.StatusError, 0, err
	}

	var items []media.Item
	appendItem := func(src string, score float64) {
		if src == "" || len(items) >= limit {
			return
		}
		items = append(items, media.Item{
			URL:      stripThumbParams(src),
			Provider: a.id,
			Category: category,
			Score:    score,
		})
	}

	// The infobox portrait is the page's canonical depiction.
	if category == media.CategoryPortrait {
		doc.Find(".portable-infobox .pi-image img, .infobox img").Each(func(_ int, s *goquery.Selection) {
			src, _ := s.Attr("src")
			appendItem(src, 1.0)
		})
	}

	// Gallery figures cover the remaining art categories; figure captions
	// carry HTML that needs flattening before matching.
	doc.Find(".wikia-gallery-item, figure.thumb, li.gallerybox").Each(func(_ int, s *goquery.Selection) {
		img := s.Find("img").First()
		src, ok := img.Attr("src")
		if !ok {
			return
		}
		captionHTML, err := s.Find("figcaption, .lightbox-caption, .gallerytext").First().Html()
		caption := ""
		if err == nil {
			caption = strings.ToLower(html2text.HTML2Text(captionHTML))
		}
		switch category {
		case media.CategoryFullBody:
			if strings.Contains(caption, "full body") || strings.Contains(caption, "full-body") || strings.Contains(caption, "concept") {
				appendItem(src, 0.5)
			}
		case media.CategoryOfficialArt:
			appendItem(src, 0.5)
		case media.CategoryPortrait:
			// Infobox handled above; galleries are too noisy for portraits.
		}
	})

	if len(items) == 0 {
		return nil, media.StatusEmpty, 0, nil
	}
	return items, media.StatusSuccess, 0, nil
}

// stripThumbParams removes wiki thumbnail scaling suffixes so the same asset
// referenced at different sizes dedups by URL.
func stripThumbParams(src string) string {
	if i := strings.Index(src, "/revision/"); i >= 0 {
		return src[:i]
	}
	if i := strings.Index(src, "?"); i >= 0 {
		return src[:i]
	}
	return src
}
