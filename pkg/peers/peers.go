// Package peers finds similar items within a category.
package peers

import (
	"math"
	"sort"

	"github.com/propgate/propgate/pkg/catalog"
)

// Defaults.
const (
	DefaultThreshold = 0.8
	DefaultWeight    = 0.5
)

// Options tune the similarity computation.
type Options struct {
	// Threshold is the minimum similarity for a peer to be kept.
	Threshold float64
	// Weights are per-property weights; properties not listed use DefaultWeight.
	Weights map[string]float64
}

// Peer is a similar item and its similarity score.
type Peer struct {
	Item       catalog.Item
	Similarity float64
}

// Finder computes peers over a catalog snapshot.
type Finder struct {
	cat  *catalog.Catalog
	opts Options
}

// NewFinder creates a Finder. A zero threshold uses DefaultThreshold.
func NewFinder(cat *catalog.Catalog, opts Options) *Finder {
	if opts.Threshold <= 0 {
		opts.Threshold = DefaultThreshold
	}
	return &Finder{cat: cat, opts: opts}
}

// Peers returns the items in the same category whose similarity to item is
// at least the threshold, most similar first, ties broken by id.
func (f *Finder) Peers(item catalog.Item) []Peer {
	var out []Peer
	for _, candidate := range f.cat.Items(item.Category) {
		if candidate.ID() == item.ID() {
			continue
		}
		sim := Similarity(item, candidate, f.opts.Weights)
		if sim < f.opts.Threshold {
			continue
		}
		out = append(out, Peer{Item: candidate, Similarity: sim})
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].Item.ID() < out[j].Item.ID()
	})
	return out
}

// Similarity returns the weighted mean per-property similarity over the
// numeric properties both items carry. Items sharing none have similarity 0.
func Similarity(a, b catalog.Item, weights map[string]float64) float64 {
	var sum, total float64
	for _, name := range a.PropertyNames() {
		va, ok := a.Number(name)
		if !ok {
			continue
		}
		vb, ok := b.Number(name)
		if !ok {
			continue
		}
		w := DefaultWeight
		if custom, ok := weights[name]; ok {
			w = custom
		}
		if w <= 0 {
			continue
		}
		sum += w * PropertySimilarity(va, vb)
		total += w
	}
	if total == 0 {
		return 0
	}
	return sum / total
}

// PropertySimilarity returns 1 - |a-b| / max(|a|,|b|) clamped to [0,1].
// Two zeros are identical; exactly one zero is dissimilar.
func PropertySimilarity(a, b float64) float64 {
	if a == 0 && b == 0 {
		return 1
	}
	if a == 0 || b == 0 {
		return 0
	}
	denom := math.Max(math.Abs(a), math.Abs(b))
	sim := 1 - math.Abs(a-b)/denom
	return math.Max(0, math.Min(1, sim))
}

// Values returns the numeric values of property carried by peers.
func Values(peers []Peer, property string) []float64 {
	var values []float64
	for _, p := range peers {
		if v, ok := p.Item.Number(property); ok {
			values = append(values, v)
		}
	}
	return values
}
