// Package crossval flags outlying property values by combining category
// statistics with peer comparison.
package crossval

import (
	"context"
	"math"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/propgate/propgate/pkg/catalog"
	"github.com/propgate/propgate/pkg/logging"
	"github.com/propgate/propgate/pkg/peers"
	"github.com/propgate/propgate/pkg/stats"
)

// Defaults.
const (
	DefaultZThreshold       = 2.5
	DefaultPercentileLow    = 5.0
	DefaultPercentileHigh   = 95.0
	DefaultMinPeers         = 3
	DefaultMaxPeers         = 10
	DefaultMaxPeerDeviation = 0.3
)

// Options tune the cross-validation.
type Options struct {
	ZThreshold       float64
	PercentileLow    float64
	PercentileHigh   float64
	MinPeers         int
	MaxPeers         int
	MaxPeerDeviation float64
	// Workers > 1 validates items concurrently.
	Workers int
}

// DefaultOptions returns the default options.
func DefaultOptions() Options {
	return Options{
		ZThreshold:       DefaultZThreshold,
		PercentileLow:    DefaultPercentileLow,
		PercentileHigh:   DefaultPercentileHigh,
		MinPeers:         DefaultMinPeers,
		MaxPeers:         DefaultMaxPeers,
		MaxPeerDeviation: DefaultMaxPeerDeviation,
		Workers:          1,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.ZThreshold <= 0 {
		o.ZThreshold = d.ZThreshold
	}
	if o.PercentileLow <= 0 {
		o.PercentileLow = d.PercentileLow
	}
	if o.PercentileHigh <= 0 {
		o.PercentileHigh = d.PercentileHigh
	}
	if o.MinPeers <= 0 {
		o.MinPeers = d.MinPeers
	}
	if o.MaxPeers <= 0 {
		o.MaxPeers = d.MaxPeers
	}
	if o.MaxPeerDeviation <= 0 {
		o.MaxPeerDeviation = d.MaxPeerDeviation
	}
	return o
}

// Validator runs cross-validation over one catalog snapshot.
type Validator struct {
	cat    *catalog.Catalog
	dists  *stats.Set
	finder *peers.Finder
	opts   Options
}

// New creates a Validator.
func New(cat *catalog.Catalog, dists *stats.Set, finder *peers.Finder, opts Options) *Validator {
	return &Validator{cat: cat, dists: dists, finder: finder, opts: opts.withDefaults()}
}

// Result holds every finding of a run.
type Result struct {
	Findings []Finding
	byItem   map[catalog.ItemID][]Finding
}

// ForItem returns the findings of one item ordered by property.
func (r *Result) ForItem(id catalog.ItemID) []Finding {
	if r == nil {
		return nil
	}
	return r.byItem[id]
}

// Count returns the number of findings per severity.
func (r *Result) Count() map[Severity]int {
	counts := make(map[Severity]int)
	for _, f := range r.Findings {
		counts[f.Severity]++
	}
	return counts
}

// Run validates every item of the catalog. Results are ordered by item id then
// property whatever the worker count.
func (v *Validator) Run(ctx context.Context) (*Result, error) {
	items := v.cat.All()
	perItem := make([][]Finding, len(items))

	if v.opts.Workers <= 1 {
		for i, item := range items {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			perItem[i] = v.ValidateItem(item)
		}
	} else {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(v.opts.Workers)
		for i, item := range items {
			i, item := i, item
			g.Go(func() error {
				if err := gctx.Err(); err != nil {
					return err
				}
				perItem[i] = v.ValidateItem(item)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	result := &Result{byItem: make(map[catalog.ItemID][]Finding, len(items))}
	for i, item := range items {
		result.Findings = append(result.Findings, perItem[i]...)
		result.byItem[item.ID()] = perItem[i]
	}
	logging.FromContext(ctx).Debug().
		Int("items", len(items)).
		Int("findings", len(result.Findings)).
		Int("workers", v.opts.Workers).
		Msg("cross-validation complete")
	return result, nil
}

// ValidateItem returns one finding per numeric property of item.
func (v *Validator) ValidateItem(item catalog.Item) []Finding {
	var itemPeers []peers.Peer
	if v.finder != nil {
		itemPeers = v.finder.Peers(item)
	}
	if len(itemPeers) > v.opts.MaxPeers {
		itemPeers = itemPeers[:v.opts.MaxPeers]
	}

	var findings []Finding
	for _, name := range item.PropertyNames() {
		rec := item.Properties[name]
		if !rec.IsNumeric() {
			continue
		}
		var dist *stats.Distribution
		if d, ok := v.dists.Get(item.Category, name); ok {
			dist = &d
		}
		findings = append(findings, Evaluate(item.ID(), name, rec, dist, peers.Values(itemPeers, name), v.opts))
	}
	sort.SliceStable(findings, func(i, j int) bool { return findings[i].Property < findings[j].Property })
	return findings
}

// Evaluate produces the finding for one numeric property value from its
// category distribution (nil when none exists) and its peers' values.
func Evaluate(id catalog.ItemID, property string, rec catalog.PropertyRecord, dist *stats.Distribution, peerValues []float64, opts Options) Finding {
	opts = opts.withDefaults()
	value, _ := rec.Number()
	f := Finding{Item: id, Property: property, Value: value}

	// statistical
	if dist == nil {
		f.Flags = append(f.Flags, FlagNoDistribution)
	} else {
		z := dist.ZScore(value)
		f.ZScore = &z
		if math.Abs(z) > opts.ZThreshold {
			f.Flags = append(f.Flags, FlagZScoreOutlier)
		}
		if p, ok := dist.PercentileRank(value); ok {
			f.Percentile = &p
			if p <= opts.PercentileLow || p >= opts.PercentileHigh {
				f.Flags = append(f.Flags, FlagExtremePercentile)
			}
		} else {
			f.Flags = append(f.Flags, FlagInsufficientPercentile)
		}
		if !dist.HasQuartiles {
			f.Flags = append(f.Flags, FlagInsufficientIQR)
		} else if dist.IsIQROutlier(value) {
			f.Flags = append(f.Flags, FlagIQROutlier)
		}
	}

	// peers
	f.PeerCount = len(peerValues)
	if len(peerValues) < opts.MinPeers {
		f.Flags = append(f.Flags, FlagInsufficientPeers)
	} else {
		mean := stats.Mean(peerValues)
		f.PeerMean = &mean
		if mean == 0 {
			f.Flags = append(f.Flags, FlagZeroPeerMean)
		} else {
			dev := math.Abs(value-mean) / math.Abs(mean)
			f.PeerDeviation = &dev
			if dev > opts.MaxPeerDeviation {
				f.Flags = append(f.Flags, FlagHighPeerDeviation)
			}
		}
	}

	if !rec.InRange() {
		f.Flags = append(f.Flags, FlagRangeViolation)
	}

	f.Severity = combine(f.Flags)
	f.ConfidenceImpact = f.Severity.Impact()
	if f.Severity == SeverityLow && f.NoDataOnly() {
		f.ConfidenceImpact = 0
	}
	return f
}

func combine(flags []Flag) Severity {
	var statistical, peer bool
	for _, flag := range flags {
		statistical = statistical || flag.IsStatistical()
		peer = peer || flag.IsPeer()
	}
	switch {
	case statistical && peer:
		return SeverityHigh
	case statistical || peer:
		return SeverityMedium
	case len(flags) > 0:
		return SeverityLow
	default:
		return SeverityNone
	}
}
