// Package dedup collapses near-identical media items. Stage one removes
// exact URL duplicates, stage two clusters items whose perceptual
// fingerprints fall within a configured normalized Hamming distance and keeps
// one representative per cluster.
package dedup

import (
	"math/bits"
	"sort"

	"github.com/soratane/chardex-go/internal/media"
)

// fingerprintBits is the width of the perceptual fingerprints produced by the
// difference hasher.
const fingerprintBits = 64

// Deduper collapses exact and perceptual duplicates within one category.
type Deduper struct {
	threshold float64
	rank      map[string]int // provider id -> priority rank, lower wins
	unranked  int            // rank assigned to providers missing from the priority list
}

// New creates a Deduper. providerPriority lists provider ids from highest to
// lowest priority; providers not listed rank below all listed ones.
func New(threshold float64, providerPriority []string) *Deduper {
	rank := make(map[string]int, len(providerPriority))
	for i, id := range providerPriority {
		if _, dup := rank[id]; !dup {
			rank[id] = i
		}
	}
	return &Deduper{
		threshold: threshold,
		rank:      rank,
		unranked:  len(providerPriority),
	}
}

type candidate struct {
	item media.Item
	idx  int // discovery order within the input
	rank int // provider priority rank
}

// better reports whether a should represent a cluster over b: higher score
// wins, then provider priority, then discovery order.
func better(a, b candidate) bool {
	if a.item.Score != b.item.Score {
		return a.item.Score > b.item.Score
	}
	if a.rank != b.rank {
		return a.rank < b.rank
	}
	return a.idx < b.idx
}

// normalizedDistance returns the Hamming distance between two fingerprints
// scaled to [0, 1].
func normalizedDistance(a, b uint64) float64 {
	return float64(bits.OnesCount64(a^b)) / float64(fingerprintBits)
}

// Dedupe collapses duplicates in items and returns the surviving
// representatives ordered by provider priority, then discovery order. The
// operation is a fixed point: applying it to its own output returns the same
// output. The input slice is not mutated.
func (d *Deduper) Dedupe(items []media.Item) []media.Item {
	if len(items) == 0 {
		return nil
	}

	// Stage 1: exact URL dedup. The best candidate per URL survives.
	byURL := make(map[string]candidate, len(items))
	order := make([]string, 0, len(items))
	for i, item := range items {
		c := candidate{item: item, idx: i, rank: d.providerRank(item.Provider)}
		prev, seen := byURL[item.URL]
		if !seen {
			byURL[item.URL] = c
			order = append(order, item.URL)
			continue
		}
		if better(c, prev) {
			byURL[item.URL] = c
		}
	}

	survivors := make([]candidate, 0, len(order))
	for _, url := range order {
		survivors = append(survivors, byURL[url])
	}

	// Process in output order so clustering is deterministic regardless of
	// input permutation of equal items.
	sort.Slice(survivors, func(i, j int) bool {
		if survivors[i].rank != survivors[j].rank {
			return survivors[i].rank < survivors[j].rank
		}
		return survivors[i].idx < survivors[j].idx
	})

	// Stage 2: perceptual clustering, repeated until stable. Replacing a
	// cluster's representative can move the cluster within threshold of
	// another, so with non-transitive similarities a single greedy pass can
	// leave two representatives that are themselves near-duplicates. A pass
	// that collapses nothing proves no such pair remains, which also makes
	// the whole operation a fixed point.
	clustered := survivors
	for {
		next := d.clusterPass(clustered)
		if len(next) == len(clustered) {
			break
		}
		clustered = next
	}

	out := make([]media.Item, len(clustered))
	for i, c := range clustered {
		out[i] = c.item
	}
	return out
}

// clusterPass performs one greedy clustering pass over candidates already
// ordered by provider rank then discovery order. Items without a fingerprint
// bypass clustering and are always kept.
func (d *Deduper) clusterPass(cands []candidate) []candidate {
	var reps []candidate
	var kept []candidate

	for _, c := range cands {
		if !c.item.HasFingerprint {
			kept = append(kept, c)
			continue
		}
		joined := false
		for ri := range reps {
			if normalizedDistance(c.item.Fingerprint, reps[ri].item.Fingerprint) <= d.threshold {
				if better(c, reps[ri]) {
					reps[ri] = c
				}
				joined = true
				break
			}
		}
		if !joined {
			reps = append(reps, c)
		}
	}

	kept = append(kept, reps...)
	sort.Slice(kept, func(i, j int) bool {
		if kept[i].rank != kept[j].rank {
			return kept[i].rank < kept[j].rank
		}
		return kept[i].idx < kept[j].idx
	})
	return kept
}

func (d *Deduper) providerRank(id string) int {
	if r, ok := d.rank[id]; ok {
		return r
	}
	return d.unranked
}
