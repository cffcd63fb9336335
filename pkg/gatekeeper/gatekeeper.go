// Package gatekeeper decides which assessed items are ready for deployment.
//
// Evaluate is a pure function of an assessment and the criteria: it reads no
// files and keeps no state, so identical inputs always yield the same decision.
package gatekeeper

import (
	"fmt"
	"sort"

	"github.com/propgate/propgate/pkg/catalog"
	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/quality"
)

// DefaultNearMargin is how close to the minimum score an item may be before a warning.
const DefaultNearMargin = 0.05

// IssueCode names a blocking issue or warning.
type IssueCode string

// Blocking issues.
const (
	IssueScoreBelowMinimum       IssueCode = "score_below_minimum"
	IssueGradeNotAccepted        IssueCode = "grade_not_accepted"
	IssueTooManyHighPriority     IssueCode = "too_many_high_priority_recommendations"
	IssueMissingCriticalProperty IssueCode = "missing_critical_property"
	IssueLowConfidenceCritical   IssueCode = "low_confidence_critical_property"
)

// Warnings.
const (
	WarnScoreNearMinimum          IssueCode = "score_near_minimum"
	WarnMediumPriority            IssueCode = "medium_priority_recommendations"
	WarnOutliersPresent           IssueCode = "outliers_present"
	WarnCriticalConfidenceUnknown IssueCode = "critical_confidence_unknown"
)

// Issue is a named reason attached to a decision.
type Issue struct {
	Code     IssueCode `json:"code" yaml:"code"`
	Property string    `json:"property,omitempty" yaml:"property,omitempty"`
	Message  string    `json:"message" yaml:"message"`
}

// Name renders the issue as "code" or "code:property".
func (i Issue) Name() string {
	if i.Property == "" {
		return string(i.Code)
	}
	return string(i.Code) + ":" + i.Property
}

// Criteria are the deployment thresholds.
type Criteria struct {
	MinScore        float64
	RequiredGrade   quality.Grade
	AcceptedGrades  []quality.Grade
	MaxHighPriority int
	// MinCriticalConfidence of 0 disables the confidence check.
	MinCriticalConfidence float64
	NearMargin            float64
}

// Validate checks the criteria are usable.
func (c Criteria) Validate() error {
	if c.MinScore < 0 || c.MinScore > 1 {
		return errors.Configuration("deployment.min_quality_score", fmt.Sprintf("must be within [0,1], got %v", c.MinScore), nil)
	}
	if len(c.AcceptedGrades) == 0 && c.RequiredGrade.Rank() < 0 {
		return errors.Configuration("deployment.required_grade", fmt.Sprintf("unknown grade %q", c.RequiredGrade), nil)
	}
	for _, g := range c.AcceptedGrades {
		if g.Rank() < 0 {
			return errors.Configuration("deployment.accepted_grades", fmt.Sprintf("unknown grade %q", g), nil)
		}
	}
	if c.MaxHighPriority < 0 {
		return errors.Configuration("deployment.max_high_priority_issues", "must not be negative", nil)
	}
	if c.MinCriticalConfidence < 0 || c.MinCriticalConfidence > 1 {
		return errors.Configuration("deployment.min_critical_confidence", "must be within [0,1]", nil)
	}
	return nil
}

// Accepts reports whether grade is in the accepted set.
func (c Criteria) Accepts(grade quality.Grade) bool {
	if len(c.AcceptedGrades) > 0 {
		for _, g := range c.AcceptedGrades {
			if g == grade {
				return true
			}
		}
		return false
	}
	return grade.AtLeast(c.RequiredGrade)
}

// Candidate is the readiness decision for one item.
type Candidate struct {
	Item           catalog.ItemID `json:"item" yaml:"item"`
	Category       string         `json:"category" yaml:"category"`
	Ready          bool           `json:"ready" yaml:"ready"`
	Score          float64        `json:"score" yaml:"score"`
	Grade          quality.Grade  `json:"grade" yaml:"grade"`
	BlockingIssues []Issue        `json:"blocking_issues,omitempty" yaml:"blocking_issues,omitempty"`
	Warnings       []Issue        `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Evaluate decides whether one assessed item may be deployed.
func Evaluate(a quality.Assessment, c Criteria) Candidate {
	margin := c.NearMargin
	if margin <= 0 {
		margin = DefaultNearMargin
	}

	cand := Candidate{Item: a.Item, Category: a.Category, Score: a.Overall, Grade: a.Grade}
	block := func(code IssueCode, property, msg string) {
		cand.BlockingIssues = append(cand.BlockingIssues, Issue{Code: code, Property: property, Message: msg})
	}
	warn := func(code IssueCode, property, msg string) {
		cand.Warnings = append(cand.Warnings, Issue{Code: code, Property: property, Message: msg})
	}

	if a.Overall < c.MinScore {
		block(IssueScoreBelowMinimum, "", fmt.Sprintf("score %.3f below minimum %.3f", a.Overall, c.MinScore))
	} else if a.Overall < c.MinScore+margin {
		warn(WarnScoreNearMinimum, "", fmt.Sprintf("score %.3f within %.2f of minimum %.3f", a.Overall, margin, c.MinScore))
	}

	if !c.Accepts(a.Grade) {
		block(IssueGradeNotAccepted, "", fmt.Sprintf("grade %s not accepted", a.Grade))
	}

	if high := a.HighPriorityCount(); high > c.MaxHighPriority {
		block(IssueTooManyHighPriority, "", fmt.Sprintf("%d high-priority recommendations, at most %d allowed", high, c.MaxHighPriority))
	}

	for _, name := range a.MissingCritical {
		block(IssueMissingCriticalProperty, name, fmt.Sprintf("critical property %s is missing", name))
	}

	if c.MinCriticalConfidence > 0 {
		names := make([]string, 0, len(a.CriticalConfidence))
		for name := range a.CriticalConfidence {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			if conf := a.CriticalConfidence[name]; conf < c.MinCriticalConfidence {
				block(IssueLowConfidenceCritical, name, fmt.Sprintf("critical property %s confidence %.2f below %.2f", name, conf, c.MinCriticalConfidence))
			}
		}
		if a.CriticalCoverage > 0 && len(a.CriticalConfidence) == 0 {
			warn(WarnCriticalConfidenceUnknown, "", "no confidence recorded for critical properties")
		}
	}

	if medium := a.MediumPriorityCount(); medium > 0 {
		warn(WarnMediumPriority, "", fmt.Sprintf("%d medium-priority recommendations", medium))
	}
	if a.Outliers > 0 {
		warn(WarnOutliersPresent, "", fmt.Sprintf("%d outlying property values", a.Outliers))
	}

	cand.Ready = len(cand.BlockingIssues) == 0
	return cand
}

// EvaluateAll decides every assessment; candidates are ordered by score
// descending, ties broken by item id.
func EvaluateAll(assessments []quality.Assessment, c Criteria) []Candidate {
	out := make([]Candidate, 0, len(assessments))
	for _, a := range assessments {
		out = append(out, Evaluate(a, c))
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].Item < out[j].Item
	})
	return out
}

// Ready returns the ready candidates preserving order.
func Ready(candidates []Candidate) []Candidate {
	var out []Candidate
	for _, c := range candidates {
		if c.Ready {
			out = append(out, c)
		}
	}
	return out
}
