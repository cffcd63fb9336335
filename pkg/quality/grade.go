package quality

import (
	"fmt"
	"strings"
)

// Grade is the tiered label of an overall score.
type Grade string

// Grades from best to worst.
const (
	GradeExcellent  Grade = "excellent"
	GradeGood       Grade = "good"
	GradeAcceptable Grade = "acceptable"
	GradePoor       Grade = "poor"
	GradeCritical   Grade = "critical"
)

// Grades lists every grade from best to worst.
var Grades = []Grade{GradeExcellent, GradeGood, GradeAcceptable, GradePoor, GradeCritical}

// Rank returns 4 for excellent down to 0 for critical, -1 for unknown grades.
func (g Grade) Rank() int {
	for i, known := range Grades {
		if g == known {
			return len(Grades) - 1 - i
		}
	}
	return -1
}

// AtLeast reports whether g is the same as or better than other.
func (g Grade) AtLeast(other Grade) bool {
	return g.Rank() >= other.Rank() && g.Rank() >= 0
}

// ParseGrade parses a grade name case-insensitively.
func ParseGrade(s string) (Grade, error) {
	g := Grade(strings.ToLower(strings.TrimSpace(s)))
	if g.Rank() < 0 {
		return "", fmt.Errorf("unknown grade %q", s)
	}
	return g, nil
}

// GradeThresholds are the minimum scores of each grade above critical.
type GradeThresholds struct {
	Excellent  float64 `mapstructure:"excellent" yaml:"excellent" json:"excellent"`
	Good       float64 `mapstructure:"good" yaml:"good" json:"good"`
	Acceptable float64 `mapstructure:"acceptable" yaml:"acceptable" json:"acceptable"`
	Poor       float64 `mapstructure:"poor" yaml:"poor" json:"poor"`
}

// DefaultGradeThresholds returns the default grade boundaries.
func DefaultGradeThresholds() GradeThresholds {
	return GradeThresholds{Excellent: 0.90, Good: 0.75, Acceptable: 0.60, Poor: 0.40}
}

// Validate checks the thresholds are strictly descending within [0,1].
func (t GradeThresholds) Validate() error {
	ordered := []float64{1, t.Excellent, t.Good, t.Acceptable, t.Poor, 0}
	for i := 1; i < len(ordered); i++ {
		if ordered[i] > ordered[i-1] || (i < len(ordered)-1 && ordered[i] <= ordered[i+1]) {
			return fmt.Errorf("grade thresholds must descend within [0,1]: %+v", t)
		}
	}
	return nil
}

// Grade maps a score onto a grade.
func (t GradeThresholds) Grade(score float64) Grade {
	switch {
	case score >= t.Excellent:
		return GradeExcellent
	case score >= t.Good:
		return GradeGood
	case score >= t.Acceptable:
		return GradeAcceptable
	case score >= t.Poor:
		return GradePoor
	default:
		return GradeCritical
	}
}
