package gatekeeper

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propgate/propgate/pkg/errors"
	"github.com/propgate/propgate/pkg/quality"
)

func scenarioCriteria() Criteria {
	return Criteria{MinScore: 0.6, RequiredGrade: quality.GradeAcceptable, MaxHighPriority: 2}
}

func scenarioAssessment() quality.Assessment {
	return quality.Assessment{
		Item:             "metals/copper",
		Category:         "metals",
		Overall:          0.725,
		Grade:            quality.GradeAcceptable,
		CriticalCoverage: 1,
	}
}

func highRecs(n int) []quality.Recommendation {
	recs := make([]quality.Recommendation, n)
	for i := range recs {
		recs[i] = quality.Recommendation{Type: quality.RecInvestigateOutlier, Priority: quality.PriorityHigh}
	}
	return recs
}

func names(issues []Issue) []string {
	var out []string
	for _, i := range issues {
		out = append(out, i.Name())
	}
	return out
}

func TestEvaluateScenario(t *testing.T) {
	c := scenarioCriteria()

	t.Run("ready", func(t *testing.T) {
		a := scenarioAssessment()
		a.Recommendations = highRecs(2)
		cand := Evaluate(a, c)
		assert.True(t, cand.Ready)
		assert.Empty(t, cand.BlockingIssues)
	})

	t.Run("too many high priority", func(t *testing.T) {
		a := scenarioAssessment()
		a.Recommendations = highRecs(3)
		cand := Evaluate(a, c)
		assert.False(t, cand.Ready)
		assert.Equal(t, []string{"too_many_high_priority_recommendations"}, names(cand.BlockingIssues))
	})

	t.Run("missing critical property", func(t *testing.T) {
		a := scenarioAssessment()
		a.CriticalCoverage = 0.5
		a.MissingCritical = []string{"density"}
		cand := Evaluate(a, c)
		assert.False(t, cand.Ready)
		assert.Equal(t, []string{"missing_critical_property:density"}, names(cand.BlockingIssues))
	})
}

func TestEvaluateBlocking(t *testing.T) {
	a := quality.Assessment{Item: "c/x", Overall: 0.5, Grade: quality.GradePoor}
	cand := Evaluate(a, scenarioCriteria())
	assert.False(t, cand.Ready)
	assert.Equal(t, []string{"score_below_minimum", "grade_not_accepted"}, names(cand.BlockingIssues))
}

func TestEvaluateCriticalConfidence(t *testing.T) {
	c := scenarioCriteria()
	c.MinCriticalConfidence = 0.7

	a := scenarioAssessment()
	a.CriticalConfidence = map[string]float64{"density": 0.9, "melting_point": 0.4}
	cand := Evaluate(a, c)
	assert.False(t, cand.Ready)
	assert.Equal(t, []string{"low_confidence_critical_property:melting_point"}, names(cand.BlockingIssues))

	a.CriticalConfidence = nil
	cand = Evaluate(a, c)
	assert.True(t, cand.Ready)
	assert.Contains(t, names(cand.Warnings), "critical_confidence_unknown")
}

func TestEvaluateWarnings(t *testing.T) {
	a := scenarioAssessment()
	a.Overall = 0.62
	a.Outliers = 1
	a.Recommendations = []quality.Recommendation{{Priority: quality.PriorityMedium}}
	cand := Evaluate(a, scenarioCriteria())
	assert.True(t, cand.Ready)
	assert.Equal(t, []string{"score_near_minimum", "medium_priority_recommendations", "outliers_present"}, names(cand.Warnings))
}

func TestEvaluatePure(t *testing.T) {
	a := scenarioAssessment()
	a.Recommendations = highRecs(3)
	a.MissingCritical = []string{"a", "b"}
	c := scenarioCriteria()
	first := Evaluate(a, c)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, Evaluate(a, c))
	}
}

func TestAcceptedGrades(t *testing.T) {
	c := Criteria{AcceptedGrades: []quality.Grade{quality.GradeExcellent}}
	assert.True(t, c.Accepts(quality.GradeExcellent))
	assert.False(t, c.Accepts(quality.GradeGood))

	c = Criteria{RequiredGrade: quality.GradeGood}
	assert.True(t, c.Accepts(quality.GradeExcellent))
	assert.False(t, c.Accepts(quality.GradeAcceptable))
}

func TestCriteriaValidate(t *testing.T) {
	require.NoError(t, scenarioCriteria().Validate())

	err := Criteria{MinScore: 1.5, RequiredGrade: quality.GradeGood}.Validate()
	assert.True(t, errors.IsConfiguration(err))

	err = Criteria{MinScore: 0.5, RequiredGrade: "stellar"}.Validate()
	assert.True(t, errors.IsConfiguration(err))
}

func TestEvaluateAllOrdering(t *testing.T) {
	assessments := []quality.Assessment{
		{Item: "c/b", Overall: 0.8, Grade: quality.GradeGood},
		{Item: "c/a", Overall: 0.8, Grade: quality.GradeGood},
		{Item: "c/c", Overall: 0.9, Grade: quality.GradeExcellent},
		{Item: "c/d", Overall: 0.3, Grade: quality.GradeCritical},
	}
	cands := EvaluateAll(assessments, scenarioCriteria())
	require.Len(t, cands, 4)
	assert.Equal(t, []string{"c/c", "c/a", "c/b", "c/d"}, []string{string(cands[0].Item), string(cands[1].Item), string(cands[2].Item), string(cands[3].Item)})
	assert.Len(t, Ready(cands), 3)
}
