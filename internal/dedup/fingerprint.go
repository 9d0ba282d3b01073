package dedup

import (
	"context"
	"fmt"
	"image"
	"io"
	"log/slog"

	// Register decoders for the formats providers serve.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"
	"github.com/soratane/chardex-go/internal/errors"
	"github.com/soratane/chardex-go/internal/httpclient"
	"github.com/soratane/chardex-go/internal/logging"
	"github.com/soratane/chardex-go/internal/media"
)

// maxImageBytes bounds how much of a remote asset is read for fingerprinting.
const maxImageBytes = 8 << 20

// Fingerprinter computes a 64-bit perceptual fingerprint for a media item.
// Implementations must honor context cancellation. A failed fingerprint is an
// ordinary condition: the item simply bypasses perceptual dedup.
type Fingerprinter interface {
	Fingerprint(ctx context.Context, item media.Item) (uint64, error)
}

// DifferenceHasher fingerprints items by downloading the asset and computing
// a 64-bit difference hash over the decoded image.
type DifferenceHasher struct {
	client *httpclient.Client
	logger *slog.Logger
}

// NewDifferenceHasher creates a DifferenceHasher using the shared HTTP client.
func NewDifferenceHasher(client *httpclient.Client) *DifferenceHasher {
	return &DifferenceHasher{
		client: client,
		logger: logging.ForService("dedup.fingerprint"),
	}
}

// Fingerprint downloads the asset at the item's URL and returns its
// difference hash.
func (h *DifferenceHasher) Fingerprint(ctx context.Context, item media.Item) (uint64, error) {
	resp, err := h.client.Get(ctx, item.URL)
	if err != nil {
		return 0, errors.New(err).
			Component("dedup").
			Category(errors.CategoryNetwork).
			Context("provider", item.Provider).
			Context("operation", "fingerprint_download").
			Build()
	}
	defer func() {
		if closeErr := resp.Body.Close(); closeErr != nil {
			h.logger.Debug("Failed to close fingerprint response body", "error", closeErr)
		}
	}()

	if resp.StatusCode != 200 {
		return 0, errors.Newf("fingerprint download returned status %d", resp.StatusCode).
			Component("dedup").
			Category(errors.CategoryNetwork).
			Context("provider", item.Provider).
			Context("status_code", resp.StatusCode).
			Build()
	}

	img, format, err := image.Decode(io.LimitReader(resp.Body, maxImageBytes))
	if err != nil {
		return 0, fmt.Errorf("failed to decode image for fingerprinting: %w", err)
	}

	hash, err := goimagehash.DifferenceHash(img)
	if err != nil {
		return 0, fmt.Errorf("failed to compute difference hash: %w", err)
	}

	h.logger.Debug("Computed fingerprint",
		"provider", item.Provider,
		"format", format,
		"fingerprint", fmt.Sprintf("%016x", hash.GetHash()))

	return hash.GetHash(), nil
}

// Annotate computes fingerprints for items that lack one, returning a new
// slice. Fingerprint failures are logged and leave the item untouched so it
// still participates in exact-URL dedup.
func Annotate(ctx context.Context, fp Fingerprinter, items []media.Item) []media.Item {
	if fp == nil {
		return items
	}
	out := make([]media.Item, len(items))
	copy(out, items)
	for i := range out {
		if out[i].HasFingerprint {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		hash, err := fp.Fingerprint(ctx, out[i])
		if err != nil {
			logging.Debug("Fingerprint unavailable, item bypasses perceptual dedup",
				"url", out[i].URL,
				"provider", out[i].Provider,
				"error", err)
			continue
		}
		out[i].Fingerprint = hash
		out[i].HasFingerprint = true
	}
	return out
}
