// Package stats computes per-category, per-property value distributions.
//
// Distributions are rebuilt from the run's catalog every time; nothing here
// keeps state between runs.
package stats

import (
	"math"
	"sort"

	"github.com/propgate/propgate/pkg/catalog"
)

// Sample-size thresholds.
const (
	MinSamplesForStdev      = 2
	MinSamplesForQuartiles  = 4
	MinSamplesForPercentile = 5
)

// DefaultIQRMultiplier is the default k in Q1 - k*IQR / Q3 + k*IQR.
const DefaultIQRMultiplier = 1.5

// Distribution summarizes one property across a category.
type Distribution struct {
	Count        int     `json:"count" yaml:"count"`
	Mean         float64 `json:"mean" yaml:"mean"`
	Median       float64 `json:"median" yaml:"median"`
	Stdev        float64 `json:"stdev" yaml:"stdev"`
	Variance     float64 `json:"variance" yaml:"variance"`
	Min          float64 `json:"min" yaml:"min"`
	Max          float64 `json:"max" yaml:"max"`
	Q1           float64 `json:"q1,omitempty" yaml:"q1,omitempty"`
	Q3           float64 `json:"q3,omitempty" yaml:"q3,omitempty"`
	IQR          float64 `json:"iqr,omitempty" yaml:"iqr,omitempty"`
	OutlierLower float64 `json:"outlier_lower,omitempty" yaml:"outlier_lower,omitempty"`
	OutlierUpper float64 `json:"outlier_upper,omitempty" yaml:"outlier_upper,omitempty"`
	CV           float64 `json:"cv" yaml:"cv"`
	HasQuartiles bool    `json:"has_quartiles" yaml:"has_quartiles"`

	sorted []float64
}

// Compute builds a distribution from values. It returns false when there
// are fewer than MinSamplesForStdev values. Quartiles are only computed
// from MinSamplesForQuartiles values on.
func Compute(values []float64, k float64) (Distribution, bool) {
	n := len(values)
	if n < MinSamplesForStdev {
		return Distribution{}, false
	}

	sorted := make([]float64, n)
	copy(sorted, values)
	sort.Float64s(sorted)

	d := Distribution{
		Count:  n,
		Mean:   Mean(sorted),
		Median: quantile(sorted, 0.5),
		Min:    sorted[0],
		Max:    sorted[n-1],
		sorted: sorted,
	}
	d.Variance = SampleVariance(sorted)
	d.Stdev = math.Sqrt(d.Variance)
	if d.Mean != 0 {
		d.CV = d.Stdev / math.Abs(d.Mean)
	}

	if n >= MinSamplesForQuartiles {
		d.HasQuartiles = true
		d.Q1 = quantile(sorted, 0.25)
		d.Q3 = quantile(sorted, 0.75)
		d.IQR = d.Q3 - d.Q1
		d.OutlierLower = d.Q1 - k*d.IQR
		d.OutlierUpper = d.Q3 + k*d.IQR
	}
	return d, true
}

// ZScore returns (v - mean) / stdev, or 0 when the distribution has no spread.
func (d Distribution) ZScore(v float64) float64 {
	if d.Stdev == 0 {
		return 0
	}
	return (v - d.Mean) / d.Stdev
}

// PercentileRank returns the empirical percentile rank of v in [0,100] using
// the mid-rank convention: 100 * (below + 0.5*equal) / n. The second result
// is false when the distribution has too few samples.
func (d Distribution) PercentileRank(v float64) (float64, bool) {
	if d.Count < MinSamplesForPercentile || len(d.sorted) == 0 {
		return 0, false
	}
	below := sort.SearchFloat64s(d.sorted, v)
	equal := 0
	for i := below; i < len(d.sorted) && d.sorted[i] == v; i++ {
		equal++
	}
	return 100 * (float64(below) + 0.5*float64(equal)) / float64(len(d.sorted)), true
}

// IsIQROutlier reports whether v lies outside the IQR fences.
func (d Distribution) IsIQROutlier(v float64) bool {
	if !d.HasQuartiles {
		return false
	}
	return v < d.OutlierLower || v > d.OutlierUpper
}

// Mean returns the arithmetic mean, 0 for no values.
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}

// SampleVariance returns the n-1 variance, 0 below two values.
func SampleVariance(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	mean := Mean(values)
	var ss float64
	for _, v := range values {
		ss += (v - mean) * (v - mean)
	}
	return ss / float64(len(values)-1)
}

// quantile interpolates linearly between the closest ranks of sorted values.
func quantile(sorted []float64, p float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	pos := p * float64(n-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	frac := pos - float64(lo)
	return sorted[lo] + frac*(sorted[hi]-sorted[lo])
}

// Set holds distributions by category and property.
type Set struct {
	k     float64
	dists map[string]map[string]Distribution
}

// Build computes every distribution for the catalog.
func Build(cat *catalog.Catalog, k float64) *Set {
	if k <= 0 {
		k = DefaultIQRMultiplier
	}
	s := &Set{k: k, dists: make(map[string]map[string]Distribution)}
	for _, category := range cat.Categories() {
		for _, property := range cat.Properties(category) {
			d, ok := Compute(cat.Values(category, property), k)
			if !ok {
				continue
			}
			if s.dists[category] == nil {
				s.dists[category] = make(map[string]Distribution)
			}
			s.dists[category][property] = d
		}
	}
	return s
}

// Get returns the distribution of a category property.
func (s *Set) Get(category, property string) (Distribution, bool) {
	if s == nil {
		return Distribution{}, false
	}
	d, ok := s.dists[category][property]
	return d, ok
}

// Category returns the distributions of one category keyed by property.
func (s *Set) Category(category string) map[string]Distribution {
	out := make(map[string]Distribution, len(s.dists[category]))
	for k, v := range s.dists[category] {
		out[k] = v
	}
	return out
}

// Len returns the number of distributions.
func (s *Set) Len() int {
	n := 0
	for _, props := range s.dists {
		n += len(props)
	}
	return n
}
