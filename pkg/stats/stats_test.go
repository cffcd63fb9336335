package stats

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propgate/propgate/internal/utils/ptr"
	"github.com/propgate/propgate/pkg/catalog"
)

func TestComputeThresholds(t *testing.T) {
	_, ok := Compute([]float64{1}, DefaultIQRMultiplier)
	assert.False(t, ok)

	d, ok := Compute([]float64{1, 3}, DefaultIQRMultiplier)
	require.True(t, ok)
	assert.False(t, d.HasQuartiles)
	assert.InDelta(t, 2.0, d.Mean, 1e-9)
	assert.InDelta(t, 2.0, d.Variance, 1e-9)

	d, ok = Compute([]float64{1, 2, 3, 4}, DefaultIQRMultiplier)
	require.True(t, ok)
	assert.True(t, d.HasQuartiles)
}

func TestComputeValues(t *testing.T) {
	d, ok := Compute([]float64{7, 1, 3, 5, 9}, DefaultIQRMultiplier)
	require.True(t, ok)

	assert.Equal(t, 5, d.Count)
	assert.InDelta(t, 5.0, d.Mean, 1e-9)
	assert.InDelta(t, 5.0, d.Median, 1e-9)
	assert.InDelta(t, 10.0, d.Variance, 1e-9)
	assert.InDelta(t, 3.0, d.Q1, 1e-9)
	assert.InDelta(t, 7.0, d.Q3, 1e-9)
	assert.InDelta(t, 4.0, d.IQR, 1e-9)
	assert.InDelta(t, -3.0, d.OutlierLower, 1e-9)
	assert.InDelta(t, 13.0, d.OutlierUpper, 1e-9)
	assert.Equal(t, 1.0, d.Min)
	assert.Equal(t, 9.0, d.Max)
}

func TestQuartileOrdering(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		n := 4 + rng.Intn(40)
		values := make([]float64, n)
		for j := range values {
			values[j] = rng.NormFloat64()*10 + 50
		}
		d, ok := Compute(values, DefaultIQRMultiplier)
		require.True(t, ok)
		assert.LessOrEqual(t, d.Q1, d.Median)
		assert.LessOrEqual(t, d.Median, d.Q3)
		assert.LessOrEqual(t, d.OutlierLower, d.Q1)
		assert.GreaterOrEqual(t, d.OutlierUpper, d.Q3)
	}
}

func TestZScore(t *testing.T) {
	d := Distribution{Mean: 7.5, Stdev: 1.0}
	assert.InDelta(t, 1.46, d.ZScore(8.96), 1e-9)
	assert.Equal(t, 0.0, Distribution{Mean: 3}.ZScore(5))
}

func TestPercentileRank(t *testing.T) {
	d, ok := Compute([]float64{1, 2, 3, 4, 5}, DefaultIQRMultiplier)
	require.True(t, ok)

	p, ok := d.PercentileRank(1)
	require.True(t, ok)
	assert.InDelta(t, 10.0, p, 1e-9)

	p, ok = d.PercentileRank(3)
	require.True(t, ok)
	assert.InDelta(t, 50.0, p, 1e-9)

	small, _ := Compute([]float64{1, 2, 3, 4}, DefaultIQRMultiplier)
	_, ok = small.PercentileRank(1)
	assert.False(t, ok)
}

func TestIQROutlier(t *testing.T) {
	d, ok := Compute([]float64{10, 11, 12, 13, 50}, DefaultIQRMultiplier)
	require.True(t, ok)
	assert.True(t, d.IsIQROutlier(50))
	assert.False(t, d.IsIQROutlier(12))
}

func TestBuild(t *testing.T) {
	cat := catalog.MustNew(
		catalog.Item{Name: "a", Category: "metals", Properties: map[string]catalog.PropertyRecord{"density": {Value: ptr.To(7.0)}, "hardness": {Value: ptr.To(3.0)}}},
		catalog.Item{Name: "b", Category: "metals", Properties: map[string]catalog.PropertyRecord{"density": {Value: ptr.To(9.0)}}},
		catalog.Item{Name: "c", Category: "metals", Properties: map[string]catalog.PropertyRecord{"density": {Text: "unknown"}}},
	)
	set := Build(cat, 0)

	d, ok := set.Get("metals", "density")
	require.True(t, ok)
	assert.Equal(t, 2, d.Count)
	assert.InDelta(t, 8.0, d.Mean, 1e-9)

	_, ok = set.Get("metals", "hardness")
	assert.False(t, ok, "single sample has no distribution")
	assert.Equal(t, 1, set.Len())
}
