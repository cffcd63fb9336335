package peers

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propgate/propgate/internal/utils/ptr"
	"github.com/propgate/propgate/pkg/catalog"
)

func item(category, name string, props map[string]float64) catalog.Item {
	records := make(map[string]catalog.PropertyRecord, len(props))
	for k, v := range props {
		records[k] = catalog.PropertyRecord{Value: ptr.To(v)}
	}
	return catalog.Item{Name: name, Category: category, Properties: records}
}

func TestPropertySimilarity(t *testing.T) {
	tests := []struct {
		a, b, want float64
	}{
		{0, 0, 1},
		{0, 5, 0},
		{5, 0, 0},
		{10, 10, 1},
		{8, 10, 0.8},
		{-10, 10, 0},
		{-8, -10, 0.8},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, PropertySimilarity(tt.a, tt.b), 1e-9, "%v vs %v", tt.a, tt.b)
	}
}

func TestSimilarityWeights(t *testing.T) {
	a := item("metals", "a", map[string]float64{"density": 10, "hardness": 4})
	b := item("metals", "b", map[string]float64{"density": 8, "hardness": 4, "extra": 1})

	assert.InDelta(t, 0.9, Similarity(a, b, nil), 1e-9)
	assert.InDelta(t, (3*0.8+1*1.0)/4, Similarity(a, b, map[string]float64{"density": 3, "hardness": 1}), 1e-9)

	c := item("metals", "c", map[string]float64{"color_index": 2})
	assert.Equal(t, 0.0, Similarity(a, c, nil))
}

func TestSimilaritySymmetric(t *testing.T) {
	rng := rand.New(rand.NewSource(11))
	props := []string{"p1", "p2", "p3", "p4"}
	weights := map[string]float64{"p1": 0.9, "p3": 0.2}
	for i := 0; i < 200; i++ {
		va := map[string]float64{}
		vb := map[string]float64{}
		for _, p := range props {
			if rng.Intn(3) > 0 {
				va[p] = rng.NormFloat64() * 5
			}
			if rng.Intn(3) > 0 {
				vb[p] = rng.NormFloat64() * 5
			}
		}
		a := item("c", "a", va)
		b := item("c", "b", vb)
		assert.Equal(t, Similarity(a, b, weights), Similarity(b, a, weights))
	}
}

func TestFinderPeers(t *testing.T) {
	cat := catalog.MustNew(
		item("metals", "target", map[string]float64{"density": 10}),
		item("metals", "close-b", map[string]float64{"density": 9}),
		item("metals", "close-a", map[string]float64{"density": 11}),
		item("metals", "closest", map[string]float64{"density": 10}),
		item("metals", "far", map[string]float64{"density": 2}),
		item("stones", "other", map[string]float64{"density": 10}),
	)
	target, ok := cat.Get("metals/target")
	require.True(t, ok)

	got := NewFinder(cat, Options{}).Peers(target)
	require.Len(t, got, 3)
	assert.Equal(t, catalog.ItemID("metals/closest"), got[0].Item.ID())
	assert.Equal(t, catalog.ItemID("metals/close-a"), got[1].Item.ID())
	assert.Equal(t, catalog.ItemID("metals/close-b"), got[2].Item.ID())
	assert.Equal(t, []float64{10, 11, 9}, Values(got, "density"))
}
