package quality

import (
	"fmt"
	"sort"
	"strings"

	"github.com/propgate/propgate/pkg/catalog"
	"github.com/propgate/propgate/pkg/crossval"
)

// Priority orders recommendations.
type Priority string

// Priorities.
const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// Rank returns 2 for high, 1 for medium and 0 otherwise.
func (p Priority) Rank() int {
	switch p {
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 1
	default:
		return 0
	}
}

// RecommendationType names a remediation rule.
type RecommendationType string

// Recommendation types.
const (
	RecAddCriticalProperty  RecommendationType = "add_critical_property"
	RecInvestigateOutlier   RecommendationType = "investigate_outlier"
	RecReviewOutlier        RecommendationType = "review_outlier"
	RecResolveDisputedValue RecommendationType = "resolve_disputed_value"
	RecAddMissingProperties RecommendationType = "add_missing_properties"
	RecFixDeclaredRange     RecommendationType = "fix_declared_range"
	RecStrengthenResearch   RecommendationType = "strengthen_research"
	RecCompareWithPeers     RecommendationType = "compare_with_peers"
)

// Rule thresholds.
const (
	weakResearchThreshold = 0.5
	weakPeerThreshold     = 0.6
)

// Recommendation is a derived remediation hint.
type Recommendation struct {
	Item        catalog.ItemID     `json:"item" yaml:"item"`
	Type        RecommendationType `json:"type" yaml:"type"`
	Priority    Priority           `json:"priority" yaml:"priority"`
	Property    string             `json:"property,omitempty" yaml:"property,omitempty"`
	Description string             `json:"description" yaml:"description"`
	Actions     []string           `json:"actions,omitempty" yaml:"actions,omitempty"`
}

func recommend(item catalog.Item, a Assessment, rules CategoryRules, findings []crossval.Finding, research map[string]catalog.ResearchEntry) []Recommendation {
	var recs []Recommendation
	add := func(t RecommendationType, p Priority, property, description string, actions ...string) {
		recs = append(recs, Recommendation{
			Item:        item.ID(),
			Type:        t,
			Priority:    p,
			Property:    property,
			Description: description,
			Actions:     actions,
		})
	}

	for _, name := range a.MissingCritical {
		add(RecAddCriticalProperty, PriorityHigh, name,
			fmt.Sprintf("critical property %s is missing", name),
			"research and add a sourced value for "+name)
	}

	critical := make(map[string]bool, len(rules.Critical))
	for _, name := range rules.Critical {
		critical[name] = true
	}
	var missing []string
	for _, name := range rules.Essential {
		if critical[name] {
			continue
		}
		if rec, ok := item.Properties[name]; !ok || !rec.IsPresent() {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		add(RecAddMissingProperties, PriorityMedium, "",
			"essential properties missing: "+strings.Join(missing, ", "),
			"add values for "+strings.Join(missing, ", "))
	}

	for _, f := range findings {
		switch f.Severity {
		case crossval.SeverityHigh:
			add(RecInvestigateOutlier, PriorityHigh, f.Property,
				fmt.Sprintf("%s value %g is both a statistical and a peer outlier", f.Property, f.Value),
				"verify the value against a primary source", "check the unit of "+f.Property)
		case crossval.SeverityMedium:
			add(RecReviewOutlier, PriorityMedium, f.Property,
				fmt.Sprintf("%s value %g is flagged as an outlier (%s)", f.Property, f.Value, joinFlags(f.Flags)),
				"review the value against a primary source")
		}
		if f.Has(crossval.FlagRangeViolation) {
			add(RecFixDeclaredRange, PriorityLow, f.Property,
				fmt.Sprintf("%s value %g lies outside its declared range", f.Property, f.Value),
				"correct the value or its min/max bounds")
		}
	}

	disputed := make([]string, 0)
	for name, entry := range research {
		if entry.Status == catalog.StatusDisputed {
			disputed = append(disputed, name)
		}
	}
	sort.Strings(disputed)
	for _, name := range disputed {
		add(RecResolveDisputedValue, PriorityMedium, name,
			fmt.Sprintf("research disputes the value of %s", name),
			"reconcile conflicting sources for "+name)
	}

	if a.Dimensions.ResearchValidation < weakResearchThreshold {
		add(RecStrengthenResearch, PriorityLow, "",
			fmt.Sprintf("research confidence is low (%.2f)", a.Dimensions.ResearchValidation),
			"add corroborating sources")
	}
	if a.Dimensions.PeerAgreement < weakPeerThreshold {
		add(RecCompareWithPeers, PriorityLow, "",
			fmt.Sprintf("peer agreement is low (%.2f)", a.Dimensions.PeerAgreement),
			"compare values with similar items in "+item.Category)
	}

	sortRecommendations(recs)
	return recs
}

func sortRecommendations(recs []Recommendation) {
	sort.SliceStable(recs, func(i, j int) bool {
		if recs[i].Priority.Rank() != recs[j].Priority.Rank() {
			return recs[i].Priority.Rank() > recs[j].Priority.Rank()
		}
		if recs[i].Type != recs[j].Type {
			return recs[i].Type < recs[j].Type
		}
		return recs[i].Property < recs[j].Property
	})
}

func joinFlags(flags []crossval.Flag) string {
	names := make([]string, 0, len(flags))
	for _, f := range flags {
		if f.IsStatistical() || f.IsPeer() {
			names = append(names, string(f))
		}
	}
	return strings.Join(names, ", ")
}
