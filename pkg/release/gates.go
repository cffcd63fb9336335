package release

import (
	"fmt"
	"path"
	"sort"
	"strings"

	"github.com/propgate/propgate/pkg/catalog"
)

// Gate names.
const (
	GateSchemaCompleteness = "schema_completeness"
	GateCrossReference     = "cross_reference"
	GateRangeValidity      = "range_validity"
	GateUnitPlausibility   = "unit_plausibility"
)

// GateOptions toggles the validation gates and carries their rules.
type GateOptions struct {
	SchemaCompleteness bool
	CrossReference     bool
	RangeValidity      bool
	UnitPlausibility   bool

	// Categories lists the configured categories a record may reference.
	// Required keys and category directories already in production are
	// accepted as well.
	Categories []string
	// Required lists the properties a record of each category must carry.
	Required map[string][]string
	// Units lists the accepted units per property name.
	Units map[string][]string
}

// DefaultGateOptions enables every gate without rules.
func DefaultGateOptions() GateOptions {
	return GateOptions{
		SchemaCompleteness: true,
		CrossReference:     true,
		RangeValidity:      true,
		UnitPlausibility:   true,
	}
}

// GateResult is the outcome of one gate for one record.
type GateResult struct {
	Gate    string `json:"gate" yaml:"gate"`
	Passed  bool   `json:"passed" yaml:"passed"`
	Message string `json:"message,omitempty" yaml:"message,omitempty"`
}

// Gates evaluates staged records.
type Gates struct {
	opts       GateOptions
	categories map[string]bool
}

// NewGates creates the gate set. categories are the categories a record may
// reference.
func NewGates(opts GateOptions, categories []string) *Gates {
	known := make(map[string]bool, len(categories))
	for _, c := range categories {
		known[c] = true
	}
	return &Gates{opts: opts, categories: known}
}

// Check runs every enabled gate against a parsed record stored at rel.
func (g *Gates) Check(rel string, item catalog.Item) []GateResult {
	var results []GateResult
	if g.opts.SchemaCompleteness {
		results = append(results, g.schema(item))
	}
	if g.opts.CrossReference {
		results = append(results, g.crossReference(rel, item))
	}
	if g.opts.RangeValidity {
		results = append(results, rangeValidity(item))
	}
	if g.opts.UnitPlausibility {
		results = append(results, g.units(item))
	}
	return results
}

// Passed reports whether every result passed.
func Passed(results []GateResult) bool {
	for _, r := range results {
		if !r.Passed {
			return false
		}
	}
	return true
}

// Failures returns the failed results.
func Failures(results []GateResult) []GateResult {
	var out []GateResult
	for _, r := range results {
		if !r.Passed {
			out = append(out, r)
		}
	}
	return out
}

func pass(gate string) GateResult {
	return GateResult{Gate: gate, Passed: true}
}

func fail(gate string, problems []string) GateResult {
	return GateResult{Gate: gate, Message: strings.Join(problems, "; ")}
}

func (g *Gates) schema(item catalog.Item) GateResult {
	var problems []string
	if strings.TrimSpace(item.Name) == "" {
		problems = append(problems, "name is empty")
	}
	if strings.TrimSpace(item.Category) == "" {
		problems = append(problems, "category is empty")
	}
	if len(item.Properties) == 0 {
		problems = append(problems, "no properties")
	}
	for _, name := range item.PropertyNames() {
		if !item.Properties[name].IsPresent() {
			problems = append(problems, "property "+name+" has no value")
		}
	}
	for _, name := range g.opts.Required[item.Category] {
		if rec, ok := item.Properties[name]; !ok || !rec.IsPresent() {
			problems = append(problems, "required property "+name+" missing")
		}
	}
	if len(problems) > 0 {
		return fail(GateSchemaCompleteness, problems)
	}
	return pass(GateSchemaCompleteness)
}

func (g *Gates) crossReference(rel string, item catalog.Item) GateResult {
	var problems []string
	if !g.categories[item.Category] {
		problems = append(problems, fmt.Sprintf("unknown category %q", item.Category))
	}
	if dir := path.Dir(rel); dir != "." && path.Base(dir) != item.Category {
		problems = append(problems, fmt.Sprintf("record stored under %q but declares category %q", dir, item.Category))
	}
	if len(problems) > 0 {
		return fail(GateCrossReference, problems)
	}
	return pass(GateCrossReference)
}

func rangeValidity(item catalog.Item) GateResult {
	var problems []string
	for _, name := range item.PropertyNames() {
		rec := item.Properties[name]
		if rec.Min != nil && rec.Max != nil && *rec.Min > *rec.Max {
			problems = append(problems, fmt.Sprintf("%s min %g exceeds max %g", name, *rec.Min, *rec.Max))
			continue
		}
		if !rec.InRange() {
			problems = append(problems, fmt.Sprintf("%s value %g outside declared range", name, *rec.Value))
		}
	}
	if len(problems) > 0 {
		return fail(GateRangeValidity, problems)
	}
	return pass(GateRangeValidity)
}

func (g *Gates) units(item catalog.Item) GateResult {
	var problems []string
	for _, name := range item.PropertyNames() {
		allowed, ok := g.opts.Units[name]
		if !ok || len(allowed) == 0 {
			continue
		}
		rec := item.Properties[name]
		if !rec.IsNumeric() {
			continue
		}
		if !containsUnit(allowed, rec.Unit) {
			sorted := append([]string(nil), allowed...)
			sort.Strings(sorted)
			problems = append(problems, fmt.Sprintf("%s unit %q not in [%s]", name, rec.Unit, strings.Join(sorted, ", ")))
		}
	}
	if len(problems) > 0 {
		return fail(GateUnitPlausibility, problems)
	}
	return pass(GateUnitPlausibility)
}

func containsUnit(allowed []string, unit string) bool {
	unit = strings.TrimSpace(unit)
	for _, a := range allowed {
		if strings.TrimSpace(a) == unit {
			return true
		}
	}
	return false
}
