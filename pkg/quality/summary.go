package quality

import (
	"math"
	"sort"
)

// Summary aggregates a set of assessments.
type Summary struct {
	Count             int                        `json:"count" yaml:"count"`
	MeanScore         float64                    `json:"mean_score" yaml:"mean_score"`
	MinScore          float64                    `json:"min_score" yaml:"min_score"`
	MaxScore          float64                    `json:"max_score" yaml:"max_score"`
	GradeDistribution map[Grade]int              `json:"grade_distribution" yaml:"grade_distribution"`
	DimensionMeans    Dimensions                 `json:"dimension_means" yaml:"dimension_means"`
	Recommendations   map[Priority]int           `json:"recommendations" yaml:"recommendations"`
	Categories        map[string]CategorySummary `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// CategorySummary aggregates the assessments of one category.
type CategorySummary struct {
	Count     int     `json:"count" yaml:"count"`
	MeanScore float64 `json:"mean_score" yaml:"mean_score"`
	Outliers  int     `json:"outliers" yaml:"outliers"`
}

// Summarize computes aggregates over assessments.
func Summarize(assessments []Assessment) Summary {
	s := Summary{
		Count:             len(assessments),
		GradeDistribution: make(map[Grade]int, len(Grades)),
		Recommendations:   make(map[Priority]int),
		Categories:        make(map[string]CategorySummary),
	}
	for _, g := range Grades {
		s.GradeDistribution[g] = 0
	}
	if len(assessments) == 0 {
		return s
	}

	s.MinScore = math.Inf(1)
	s.MaxScore = math.Inf(-1)
	var total float64
	var dims Dimensions
	for _, a := range assessments {
		total += a.Overall
		s.MinScore = math.Min(s.MinScore, a.Overall)
		s.MaxScore = math.Max(s.MaxScore, a.Overall)
		s.GradeDistribution[a.Grade]++

		dims.Completeness += a.Dimensions.Completeness
		dims.Accuracy += a.Dimensions.Accuracy
		dims.Consistency += a.Dimensions.Consistency
		dims.ResearchValidation += a.Dimensions.ResearchValidation
		dims.PeerAgreement += a.Dimensions.PeerAgreement

		for _, r := range a.Recommendations {
			s.Recommendations[r.Priority]++
		}

		cs := s.Categories[a.Category]
		cs.Count++
		cs.MeanScore += a.Overall
		cs.Outliers += a.Outliers
		s.Categories[a.Category] = cs
	}

	n := float64(len(assessments))
	s.MeanScore = total / n
	s.DimensionMeans = Dimensions{
		Completeness:       dims.Completeness / n,
		Accuracy:           dims.Accuracy / n,
		Consistency:        dims.Consistency / n,
		ResearchValidation: dims.ResearchValidation / n,
		PeerAgreement:      dims.PeerAgreement / n,
	}
	for name, cs := range s.Categories {
		cs.MeanScore /= float64(cs.Count)
		s.Categories[name] = cs
	}
	return s
}

// Ranked returns assessments sorted by overall score descending, ties by id.
func Ranked(assessments []Assessment) []Assessment {
	out := make([]Assessment, len(assessments))
	copy(out, assessments)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Overall != out[j].Overall {
			return out[i].Overall > out[j].Overall
		}
		return out[i].Item < out[j].Item
	})
	return out
}
