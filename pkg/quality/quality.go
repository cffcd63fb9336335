// Package quality turns cross-validation findings and research artifacts into
// a weighted per-item quality score, a grade and remediation recommendations.
package quality

import (
	"math"
	"sort"

	"github.com/propgate/propgate/pkg/catalog"
	"github.com/propgate/propgate/pkg/crossval"
	"github.com/propgate/propgate/pkg/errors"
)

// Dimension defaults used when the underlying evidence is missing.
const (
	DefaultAccuracy             = 0.5
	DefaultResearchValidation   = 0.3
	PeerAgreementNoFindings     = 0.4
	PeerAgreementNoComparisons  = 0.5
	DefaultExtraPropertyBonus   = 0.02
	DefaultMaxCompletenessBonus = 0.2
)

// Consistency penalties per finding severity.
var severityPenalty = map[crossval.Severity]float64{
	crossval.SeverityHigh:   0.3,
	crossval.SeverityMedium: 0.2,
	crossval.SeverityLow:    0.1,
}

// CategoryRules lists the essential and critical properties of a category.
type CategoryRules struct {
	Essential []string `mapstructure:"essential" yaml:"essential,omitempty" json:"essential,omitempty"`
	Critical  []string `mapstructure:"critical" yaml:"critical,omitempty" json:"critical,omitempty"`
}

// Options configure a Scorer.
type Options struct {
	Weights    Weights
	Thresholds GradeThresholds
	Rules      map[string]CategoryRules
	ExtraBonus float64
	MaxBonus   float64
}

// DefaultOptions returns default scoring options without category rules.
func DefaultOptions() Options {
	return Options{
		Weights:    DefaultWeights(),
		Thresholds: DefaultGradeThresholds(),
		ExtraBonus: DefaultExtraPropertyBonus,
		MaxBonus:   DefaultMaxCompletenessBonus,
	}
}

// Assessment is the quality verdict for one item.
type Assessment struct {
	Item                catalog.ItemID     `json:"item" yaml:"item"`
	Category            string             `json:"category" yaml:"category"`
	Dimensions          Dimensions         `json:"dimensions" yaml:"dimensions"`
	Overall             float64            `json:"overall_score" yaml:"overall_score"`
	Grade               Grade              `json:"grade" yaml:"grade"`
	CriticalCoverage    float64            `json:"critical_coverage" yaml:"critical_coverage"`
	MissingCritical     []string           `json:"missing_critical,omitempty" yaml:"missing_critical,omitempty"`
	CriticalConfidence  map[string]float64 `json:"critical_confidence,omitempty" yaml:"critical_confidence,omitempty"`
	PropertiesValidated int                `json:"properties_validated" yaml:"properties_validated"`
	Outliers            int                `json:"outliers" yaml:"outliers"`
	Recommendations     []Recommendation   `json:"recommendations,omitempty" yaml:"recommendations,omitempty"`
}

// HighPriorityCount returns the number of high-priority recommendations.
func (a Assessment) HighPriorityCount() int {
	return a.countPriority(PriorityHigh)
}

// MediumPriorityCount returns the number of medium-priority recommendations.
func (a Assessment) MediumPriorityCount() int {
	return a.countPriority(PriorityMedium)
}

func (a Assessment) countPriority(p Priority) int {
	n := 0
	for _, r := range a.Recommendations {
		if r.Priority == p {
			n++
		}
	}
	return n
}

// Scorer computes assessments.
type Scorer struct {
	opts Options
}

// NewScorer validates options and creates a Scorer.
func NewScorer(opts Options) (*Scorer, error) {
	if err := opts.Weights.Validate(); err != nil {
		return nil, errors.Configuration("quality.weights", "invalid weights", err)
	}
	if err := opts.Thresholds.Validate(); err != nil {
		return nil, errors.Configuration("quality.grades", "invalid grade thresholds", err)
	}
	if opts.ExtraBonus < 0 {
		opts.ExtraBonus = 0
	}
	if opts.MaxBonus < 0 {
		opts.MaxBonus = 0
	}
	return &Scorer{opts: opts}, nil
}

// Rules returns the rules of a category.
func (s *Scorer) Rules(category string) CategoryRules {
	return s.opts.Rules[category]
}

// Grade maps a score onto a grade with the scorer's thresholds.
func (s *Scorer) Grade(score float64) Grade {
	return s.opts.Thresholds.Grade(score)
}

// Score combines dimensions into an overall score and grade.
func (s *Scorer) Score(d Dimensions) (float64, Grade) {
	overall := s.opts.Weights.Overall(d)
	return overall, s.opts.Thresholds.Grade(overall)
}

// Assess scores one item from its findings and research entries.
func (s *Scorer) Assess(item catalog.Item, findings []crossval.Finding, research map[string]catalog.ResearchEntry) Assessment {
	rules := s.opts.Rules[item.Category]

	a := Assessment{
		Item:                item.ID(),
		Category:            item.Category,
		PropertiesValidated: len(findings),
	}
	for _, f := range findings {
		if f.IsOutlier() {
			a.Outliers++
		}
	}

	a.Dimensions = Dimensions{
		Completeness:       s.completeness(item, rules),
		Accuracy:           accuracy(research),
		Consistency:        consistency(findings),
		ResearchValidation: researchValidation(item, research),
		PeerAgreement:      peerAgreement(findings),
	}
	a.Overall, a.Grade = s.Score(a.Dimensions)
	a.CriticalCoverage, a.MissingCritical = criticalCoverage(item, rules)
	a.CriticalConfidence = criticalConfidence(item, rules, research)
	a.Recommendations = recommend(item, a, rules, findings, research)
	return a
}

// AssessAll assesses every item of the catalog, ordered by item id.
func (s *Scorer) AssessAll(cat *catalog.Catalog, result *crossval.Result, research catalog.Research) []Assessment {
	items := cat.All()
	out := make([]Assessment, 0, len(items))
	for _, item := range items {
		out = append(out, s.Assess(item, result.ForItem(item.ID()), research.For(item.ID())))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Item < out[j].Item })
	return out
}

func (s *Scorer) completeness(item catalog.Item, rules CategoryRules) float64 {
	essential := make(map[string]bool, len(rules.Essential))
	for _, name := range rules.Essential {
		essential[name] = true
	}

	base := 1.0
	if len(essential) > 0 {
		present := 0
		for name := range essential {
			if rec, ok := item.Properties[name]; ok && rec.IsPresent() {
				present++
			}
		}
		base = float64(present) / float64(len(essential))
	}

	extras := 0
	for name, rec := range item.Properties {
		if !essential[name] && rec.IsPresent() {
			extras++
		}
	}
	bonus := math.Min(s.opts.MaxBonus, float64(extras)*s.opts.ExtraBonus)
	return clamp(base + bonus)
}

func accuracy(research map[string]catalog.ResearchEntry) float64 {
	if len(research) == 0 {
		return DefaultAccuracy
	}
	var validated, disputed int
	for _, entry := range research {
		switch entry.Status {
		case catalog.StatusValidated:
			validated++
		case catalog.StatusDisputed:
			disputed++
		}
	}
	n := float64(len(research))
	return clamp(float64(validated)/n - 0.5*float64(disputed)/n)
}

func consistency(findings []crossval.Finding) float64 {
	if len(findings) == 0 {
		return 1
	}
	var penalty float64
	for _, f := range findings {
		if f.NoDataOnly() {
			continue
		}
		penalty += severityPenalty[f.Severity]
	}
	return math.Max(0, 1-penalty/float64(len(findings)))
}

// researchValidation averages research confidences, falling back to the
// confidences carried by the property records themselves.
func researchValidation(item catalog.Item, research map[string]catalog.ResearchEntry) float64 {
	var sum float64
	var n int
	for _, entry := range research {
		if entry.Confidence != nil {
			sum += *entry.Confidence
			n++
		}
	}
	if n == 0 {
		for _, rec := range item.Properties {
			if rec.Confidence != nil {
				sum += *rec.Confidence
				n++
			}
		}
	}
	if n == 0 {
		return DefaultResearchValidation
	}
	return clamp(sum / float64(n))
}

func peerAgreement(findings []crossval.Finding) float64 {
	if len(findings) == 0 {
		return PeerAgreementNoFindings
	}
	var sum float64
	var n int
	for _, f := range findings {
		if !f.HasPeerComparison() {
			continue
		}
		sum += 1 - math.Min(1, *f.PeerDeviation)
		n++
	}
	if n == 0 {
		return PeerAgreementNoComparisons
	}
	return sum / float64(n)
}

func criticalCoverage(item catalog.Item, rules CategoryRules) (float64, []string) {
	if len(rules.Critical) == 0 {
		return 1, nil
	}
	var missing []string
	for _, name := range rules.Critical {
		if rec, ok := item.Properties[name]; !ok || !rec.IsPresent() {
			missing = append(missing, name)
		}
	}
	sort.Strings(missing)
	present := len(rules.Critical) - len(missing)
	return float64(present) / float64(len(rules.Critical)), missing
}

// criticalConfidence returns the confidence known for each present critical
// property, preferring research confidence over the record's own.
func criticalConfidence(item catalog.Item, rules CategoryRules, research map[string]catalog.ResearchEntry) map[string]float64 {
	var out map[string]float64
	for _, name := range rules.Critical {
		rec, ok := item.Properties[name]
		if !ok || !rec.IsPresent() {
			continue
		}
		conf := rec.Confidence
		if entry, ok := research[name]; ok && entry.Confidence != nil {
			conf = entry.Confidence
		}
		if conf == nil {
			continue
		}
		if out == nil {
			out = make(map[string]float64)
		}
		out[name] = *conf
	}
	return out
}
