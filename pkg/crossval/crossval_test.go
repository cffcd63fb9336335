package crossval

import (
	"context"
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propgate/propgate/internal/utils/ptr"
	"github.com/propgate/propgate/pkg/catalog"
	"github.com/propgate/propgate/pkg/peers"
	"github.com/propgate/propgate/pkg/stats"
)

func TestEvaluateDensityScenario(t *testing.T) {
	dist := &stats.Distribution{Count: 20, Mean: 7.5, Stdev: 1.0, HasQuartiles: true, Q1: 6.8, Q3: 8.2, IQR: 1.4, OutlierLower: 4.7, OutlierUpper: 10.3}
	rec := catalog.PropertyRecord{Value: ptr.To(8.96)}

	f := Evaluate("metals/copper", "density", rec, dist, []float64{4.0, 4.5, 5.0, 5.5, 6.0}, DefaultOptions())

	require.NotNil(t, f.ZScore)
	assert.InDelta(t, 1.46, *f.ZScore, 1e-9)
	assert.False(t, f.Has(FlagZScoreOutlier))
	require.NotNil(t, f.PeerMean)
	assert.InDelta(t, 5.0, *f.PeerMean, 1e-9)
	require.NotNil(t, f.PeerDeviation)
	assert.InDelta(t, 0.79, *f.PeerDeviation, 0.005)
	assert.True(t, f.Has(FlagHighPeerDeviation))
	assert.Equal(t, SeverityMedium, f.Severity)
	assert.Equal(t, -0.15, f.ConfidenceImpact)
}

func TestEvaluateSeverities(t *testing.T) {
	d, ok := stats.Compute([]float64{8, 9, 9.5, 10, 10, 10, 10.5, 11, 12}, stats.DefaultIQRMultiplier)
	require.True(t, ok)
	wide := &d

	t.Run("high when statistical and peer fire", func(t *testing.T) {
		f := Evaluate("c/a", "p", catalog.PropertyRecord{Value: ptr.To(20.0)}, wide, []float64{10, 10, 10}, DefaultOptions())
		assert.True(t, f.Has(FlagZScoreOutlier))
		assert.True(t, f.Has(FlagExtremePercentile))
		assert.True(t, f.Has(FlagIQROutlier))
		assert.True(t, f.Has(FlagHighPeerDeviation))
		assert.Equal(t, SeverityHigh, f.Severity)
		assert.Equal(t, -0.30, f.ConfidenceImpact)
	})

	t.Run("none when nothing fires", func(t *testing.T) {
		f := Evaluate("c/a", "p", catalog.PropertyRecord{Value: ptr.To(10.0)}, wide, []float64{10, 10, 10}, DefaultOptions())
		assert.Empty(t, f.Flags)
		assert.Equal(t, SeverityNone, f.Severity)
		assert.Equal(t, 0.0, f.ConfidenceImpact)
	})

	t.Run("no data only is low without impact", func(t *testing.T) {
		f := Evaluate("c/a", "p", catalog.PropertyRecord{Value: ptr.To(10.0)}, nil, nil, DefaultOptions())
		assert.Equal(t, []Flag{FlagNoDistribution, FlagInsufficientPeers}, f.Flags)
		assert.Equal(t, SeverityLow, f.Severity)
		assert.Equal(t, 0.0, f.ConfidenceImpact)
		assert.True(t, f.NoDataOnly())
	})

	t.Run("range violation carries low impact", func(t *testing.T) {
		rec := catalog.PropertyRecord{Value: ptr.To(10.0), Max: ptr.To(9.0)}
		f := Evaluate("c/a", "p", rec, nil, nil, DefaultOptions())
		assert.True(t, f.Has(FlagRangeViolation))
		assert.Equal(t, SeverityLow, f.Severity)
		assert.Equal(t, -0.05, f.ConfidenceImpact)
	})

	t.Run("zero peer mean", func(t *testing.T) {
		f := Evaluate("c/a", "p", catalog.PropertyRecord{Value: ptr.To(1.0)}, nil, []float64{-1, 0, 1}, DefaultOptions())
		assert.True(t, f.Has(FlagZeroPeerMean))
		assert.Nil(t, f.PeerDeviation)
	})
}

func randomCatalog(t *testing.T, seed int64) *catalog.Catalog {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	var items []catalog.Item
	for c := 0; c < 3; c++ {
		for i := 0; i < 12; i++ {
			props := map[string]catalog.PropertyRecord{}
			for _, p := range []string{"density", "hardness", "conductivity"} {
				if rng.Intn(5) == 0 {
					continue
				}
				props[p] = catalog.PropertyRecord{Value: ptr.To(10 + rng.NormFloat64()*2)}
			}
			props["notes"] = catalog.PropertyRecord{Text: "n/a"}
			items = append(items, catalog.Item{Name: fmt.Sprintf("item-%02d", i), Category: fmt.Sprintf("cat-%d", c), Properties: props})
		}
	}
	return catalog.MustNew(items...)
}

func runValidator(t *testing.T, cat *catalog.Catalog, workers int) *Result {
	t.Helper()
	opts := DefaultOptions()
	opts.Workers = workers
	v := New(cat, stats.Build(cat, stats.DefaultIQRMultiplier), peers.NewFinder(cat, peers.Options{}), opts)
	res, err := v.Run(context.Background())
	require.NoError(t, err)
	return res
}

func TestRunOneFindingPerNumericProperty(t *testing.T) {
	cat := randomCatalog(t, 3)
	res := runValidator(t, cat, 1)

	want := 0
	for _, item := range cat.All() {
		numeric := 0
		for _, rec := range item.Properties {
			if rec.IsNumeric() {
				numeric++
			}
		}
		want += numeric
		assert.Len(t, res.ForItem(item.ID()), numeric)
	}
	assert.Len(t, res.Findings, want)
}

func TestRunParallelMatchesSequential(t *testing.T) {
	cat := randomCatalog(t, 5)
	seq := runValidator(t, cat, 1)
	par := runValidator(t, cat, 8)
	assert.Equal(t, seq.Findings, par.Findings)
}

func TestRunCanceled(t *testing.T) {
	cat := randomCatalog(t, 9)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	v := New(cat, stats.Build(cat, 0), nil, DefaultOptions())
	_, err := v.Run(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}
