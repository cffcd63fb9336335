package monitor

import (
	"context"
	"path/filepath"
	"sort"
	"time"

	"github.com/propgate/propgate/internal/fsutil"
	"github.com/propgate/propgate/pkg/catalog"
	"github.com/propgate/propgate/pkg/crossval"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/peers"
	"github.com/propgate/propgate/pkg/quality"
	"github.com/propgate/propgate/pkg/stats"
)

// FileMetric is the fingerprint of one production file.
type FileMetric struct {
	Checksum string `json:"checksum" yaml:"checksum"`
	Size     int64  `json:"size" yaml:"size"`
}

// DistributionMetric summarizes one category property.
type DistributionMetric struct {
	Count    int     `json:"count" yaml:"count"`
	Mean     float64 `json:"mean" yaml:"mean"`
	Stdev    float64 `json:"stdev" yaml:"stdev"`
	Variance float64 `json:"variance" yaml:"variance"`
}

// Metrics is one snapshot of the production store.
type Metrics struct {
	Timestamp        time.Time                     `json:"timestamp" yaml:"timestamp"`
	Cycle            int64                         `json:"cycle" yaml:"cycle"`
	Kind             Kind                          `json:"kind,omitempty" yaml:"kind,omitempty"`
	FileCount        int                           `json:"file_count" yaml:"file_count"`
	ItemCount        int                           `json:"item_count" yaml:"item_count"`
	Files            map[string]FileMetric         `json:"files" yaml:"files"`
	Distributions    map[string]DistributionMetric `json:"distributions" yaml:"distributions"`
	CompletenessRate float64                       `json:"completeness_rate" yaml:"completeness_rate"`
	Consistency      float64                       `json:"consistency" yaml:"consistency"`
	Confidence       float64                       `json:"confidence" yaml:"confidence"`
	MeanQuality      float64                       `json:"mean_quality" yaml:"mean_quality"`
	Grades           map[quality.Grade]int         `json:"grades,omitempty" yaml:"grades,omitempty"`
	Counters         map[string]int64              `json:"counters,omitempty" yaml:"counters,omitempty"`
}

// DistributionKey names a distribution metric.
func DistributionKey(category, property string) string {
	return category + "/" + property
}

// DistributionKeys returns the distribution keys in sorted order.
func (m *Metrics) DistributionKeys() []string {
	keys := make([]string, 0, len(m.Distributions))
	for k := range m.Distributions {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Collector produces metric snapshots.
type Collector interface {
	Collect(ctx context.Context) (*Metrics, error)
}

// CollectorFunc adapts a function to Collector.
type CollectorFunc func(ctx context.Context) (*Metrics, error)

// Collect implements Collector.
func (f CollectorFunc) Collect(ctx context.Context) (*Metrics, error) {
	return f(ctx)
}

// StoreCollector computes metrics by running the validation pipeline over the
// production store. It only reads files and holds no locks between calls.
type StoreCollector struct {
	ProductionDir string
	ResearchDir   string
	Scorer        *quality.Scorer
	CrossVal      crossval.Options
	Peers         peers.Options
	IQRMultiplier float64
}

// Collect implements Collector.
func (c *StoreCollector) Collect(ctx context.Context) (*Metrics, error) {
	files, err := fsutil.ListFiles(c.ProductionDir)
	if err != nil {
		return nil, errors.Storage("monitor", "list production files", err)
	}
	m := &Metrics{
		Files:         make(map[string]FileMetric, len(files)),
		Distributions: make(map[string]DistributionMetric),
		Counters:      make(map[string]int64),
	}
	for _, rel := range files {
		sum, size, err := fsutil.Checksum(filepath.Join(c.ProductionDir, filepath.FromSlash(rel)))
		if err != nil {
			return nil, errors.Storage("monitor", "checksum "+rel, err)
		}
		m.Files[rel] = FileMetric{Checksum: sum, Size: size}
	}
	m.FileCount = len(m.Files)

	cat, loadErr := catalog.LoadDir(c.ProductionDir)
	if loadErr != nil {
		m.Counters["load_errors"] = int64(countJoined(loadErr))
	}
	research, resErr := catalog.LoadResearchDir(c.ResearchDir)
	if resErr != nil {
		m.Counters["research_errors"] = int64(countJoined(resErr))
	}
	m.ItemCount = cat.Len()

	dists := stats.Build(cat, c.IQRMultiplier)
	for _, category := range cat.Categories() {
		for property, d := range dists.Category(category) {
			m.Distributions[DistributionKey(category, property)] = DistributionMetric{
				Count:    d.Count,
				Mean:     d.Mean,
				Stdev:    d.Stdev,
				Variance: d.Variance,
			}
		}
	}

	result, err := crossval.New(cat, dists, peers.NewFinder(cat, c.Peers), c.CrossVal).Run(ctx)
	if err != nil {
		return nil, err
	}
	for sev, n := range result.Count() {
		m.Counters["findings_"+string(sev)] = int64(n)
	}

	assessments := c.Scorer.AssessAll(cat, result, research)
	summary := quality.Summarize(assessments)
	m.CompletenessRate = summary.DimensionMeans.Completeness
	m.Consistency = summary.DimensionMeans.Consistency
	m.Confidence = summary.DimensionMeans.ResearchValidation
	m.MeanQuality = summary.MeanScore
	m.Grades = summary.GradeDistribution
	m.Counters["items"] = int64(cat.Len())
	m.Counters["properties_validated"] = int64(len(result.Findings))
	return m, nil
}

// countJoined counts the errors combined by errors.Join.
func countJoined(err error) int {
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		return len(joined.Unwrap())
	}
	return 1
}
