package aggregator

import (
	"context"
	"time"

	"github.com/soratane/chardex-go/internal/dedup"
	"github.com/soratane/chardex-go/internal/media"
)

// buildBundle flattens collected items in provider priority order, annotates
// perceptual fingerprints, deduplicates, and applies per-category caps. The
// flattening order is fixed by registry priority and per-provider discovery
// order, so identical raw results always produce an identical bundle.
func (a *Aggregator) buildBundle(ctx context.Context, identity media.CharacterIdentity, categories []media.Category, collected map[media.Category]map[string][]media.Item) *media.Bundle {
	bundle := &media.Bundle{
		Identity:   identity,
		Categories: make(map[media.Category][]media.Item, len(categories)),
		FetchedAt:  time.Now().UTC(),
	}

	priority := a.registry.PriorityOrder()
	for _, cat := range categories {
		byProvider := collected[cat]
		if len(byProvider) == 0 {
			continue
		}

		var flat []media.Item
		for _, id := range priority {
			flat = append(flat, byProvider[id]...)
		}

		if a.fingerprinter != nil {
			flat = dedup.Annotate(ctx, a.fingerprinter, flat)
		}

		before := len(flat)
		deduped := a.deduper.Dedupe(flat)
		if a.metrics != nil && before > len(deduped) {
			a.metrics.DedupCollapsed.Add(float64(before - len(deduped)))
		}

		if limit := a.categoryCap(cat); len(deduped) > limit {
			deduped = deduped[:limit]
		}
		if len(deduped) > 0 {
			bundle.Categories[cat] = deduped
		}
	}
	return bundle
}
