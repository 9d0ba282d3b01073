// Package media defines the data model shared by the media aggregation
// engine: character identities, media categories, discovered items and the
// categorized bundles returned to callers.
package media

import (
	"fmt"
	"strings"
	"time"
)

// Category tags one kind of media asset.
type Category string

const (
	CategoryPortrait    Category = "portrait"
	CategoryFullBody    Category = "full-body"
	CategoryGIF         Category = "gif"
	CategoryFanArt      Category = "fan-art"
	CategoryOfficialArt Category = "official-art"
)

// AllCategories lists every known category in canonical order.
func AllCategories() []Category {
	return []Category{
		CategoryPortrait,
		CategoryFullBody,
		CategoryGIF,
		CategoryFanArt,
		CategoryOfficialArt,
	}
}

// ParseCategory converts a string to a known Category.
func ParseCategory(s string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(s)))
	switch c {
	case CategoryPortrait, CategoryFullBody, CategoryGIF, CategoryFanArt, CategoryOfficialArt:
		return c, nil
	}
	return "", fmt.Errorf("unknown media category: %q", s)
}

// CharacterIdentity is an immutable character reference: canonical name,
// series, and an ordered list of aliases. Construct with NewIdentity.
type CharacterIdentity struct {
	Name    string
	Series  string
	Aliases []string
}

// NewIdentity builds a CharacterIdentity. The alias slice is copied so the
// identity does not share state with the caller.
func NewIdentity(name, series string, aliases ...string) CharacterIdentity {
	copied := make([]string, len(aliases))
	copy(copied, aliases)
	return CharacterIdentity{Name: name, Series: series, Aliases: copied}
}

// normalizeTerm case-folds and collapses internal whitespace so that
// "Loid  Forger" and "loid forger" compare equal.
func normalizeTerm(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

// Key derives the stable, series-qualified cache key for this identity.
// Identities that normalize equal produce identical keys.
func (ci CharacterIdentity) Key() string {
	return normalizeTerm(ci.Series) + "/" + normalizeTerm(ci.Name)
}

// QueryTerms returns the canonical name followed by aliases, normalized and
// deduplicated, preserving order. Providers may try terms in order until one
// yields results.
func (ci CharacterIdentity) QueryTerms() []string {
	terms := make([]string, 0, len(ci.Aliases)+1)
	seen := make(map[string]bool, len(ci.Aliases)+1)
	for _, t := range append([]string{ci.Name}, ci.Aliases...) {
		n := normalizeTerm(t)
		if n == "" || seen[n] {
			continue
		}
		seen[n] = true
		terms = append(terms, n)
	}
	return terms
}

// Item is one discovered media asset. Immutable once created.
type Item struct {
	URL      string   `json:"url"`             // source URL of the asset
	Provider string   `json:"provider"`        // originating provider id
	Category Category `json:"category"`        // category the asset was discovered under
	Score    float64  `json:"score,omitempty"` // optional provider quality hint, higher is better

	// Fingerprint is the 64-bit perceptual fingerprint of the asset, valid
	// only when HasFingerprint is true. Computed lazily; items without one
	// bypass perceptual dedup.
	Fingerprint    uint64 `json:"-"`
	HasFingerprint bool   `json:"-"`
}

// ResultStatus describes the outcome of one provider call.
type ResultStatus string

const (
	StatusSuccess     ResultStatus = "success"
	StatusEmpty       ResultStatus = "empty"
	StatusRateLimited ResultStatus = "rate-limited"
	StatusError       ResultStatus = "error"
)

// ProviderResult is the raw output of one adapter call. Items are always
// copied into the aggregation buffer, never merged in place.
type ProviderResult struct {
	Provider   string
	Items      []Item
	Status     ResultStatus
	RetryAfter time.Duration // from a Retry-After header, zero if absent
	Err        error         // populated when Status is StatusError
	Elapsed    time.Duration
}

// Bundle is the final categorized, deduplicated, capped set of media for one
// character. Read-only after construction.
type Bundle struct {
	Identity   CharacterIdentity
	Categories map[Category][]Item
	FetchedAt  time.Time

	// Partial is true when at least one eligible provider failed during
	// aggregation, so the bundle may be smaller than usual.
	Partial bool
}

// Count returns the total number of items across all categories.
func (b *Bundle) Count() int {
	n := 0
	for _, items := range b.Categories {
		n += len(items)
	}
	return n
}

// Empty reports whether the bundle holds no items at all. An empty bundle is
// still a valid result, distinct from Unavailable.
func (b *Bundle) Empty() bool {
	return b.Count() == 0
}
