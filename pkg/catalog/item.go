// Package catalog holds the normalized in-memory representation of items and
// their property records, plus loading and saving of the YAML record files the
// pipeline consumes and deploys.
//
// Every property shape found in upstream files (bare scalars, numeric strings,
// value/unit maps, nested range maps) is normalized at ingestion into one
// PropertyRecord, so downstream components never branch on shape.
package catalog

import (
	"math"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/propgate/propgate/pkg/constants"
)

// ItemID identifies an item as "category/name".
type ItemID string

// NewItemID builds the identifier for an item.
func NewItemID(category, name string) ItemID {
	return ItemID(category + "/" + name)
}

// String implements fmt.Stringer.
func (id ItemID) String() string {
	return string(id)
}

// Category returns the category part of the id.
func (id ItemID) Category() string {
	if i := strings.Index(string(id), "/"); i >= 0 {
		return string(id)[:i]
	}
	return ""
}

// PropertyRecord is the tagged representation of one technical property.
type PropertyRecord struct {
	Value      *float64 `yaml:"value,omitempty" json:"value,omitempty"`
	Text       string   `yaml:"text,omitempty" json:"text,omitempty"`
	Unit       string   `yaml:"unit,omitempty" json:"unit,omitempty"`
	Min        *float64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max        *float64 `yaml:"max,omitempty" json:"max,omitempty"`
	Confidence *float64 `yaml:"confidence,omitempty" json:"confidence,omitempty"`
}

// IsNumeric reports whether the record carries a finite numeric value.
func (p PropertyRecord) IsNumeric() bool {
	return p.Value != nil && !math.IsNaN(*p.Value) && !math.IsInf(*p.Value, 0)
}

// Number returns the numeric value and whether it is usable.
func (p PropertyRecord) Number() (float64, bool) {
	if !p.IsNumeric() {
		return 0, false
	}
	return *p.Value, true
}

// IsPresent reports whether the record carries any value at all.
func (p PropertyRecord) IsPresent() bool {
	return p.IsNumeric() || strings.TrimSpace(p.Text) != ""
}

// InRange reports whether the value lies within its own declared bounds.
// Records without a numeric value or without bounds are in range.
func (p PropertyRecord) InRange() bool {
	v, ok := p.Number()
	if !ok {
		return true
	}
	if p.Min != nil && v < *p.Min {
		return false
	}
	if p.Max != nil && v > *p.Max {
		return false
	}
	return true
}

// ConfidenceOr returns the record confidence or def when absent.
func (p PropertyRecord) ConfidenceOr(def float64) float64 {
	if p.Confidence == nil {
		return def
	}
	return *p.Confidence
}

// Item is an entity under evaluation.
type Item struct {
	Name       string                    `yaml:"name" json:"name"`
	Category   string                    `yaml:"category" json:"category"`
	Properties map[string]PropertyRecord `yaml:"properties" json:"properties"`

	// Path is the record file path relative to the directory it was loaded from.
	Path string `yaml:"-" json:"-"`
}

// ID returns the item identifier.
func (i Item) ID() ItemID {
	return NewItemID(i.Category, i.Name)
}

// PropertyNames returns the property names in sorted order.
func (i Item) PropertyNames() []string {
	names := make([]string, 0, len(i.Properties))
	for name := range i.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Number returns the numeric value of a property.
func (i Item) Number(property string) (float64, bool) {
	rec, ok := i.Properties[property]
	if !ok {
		return 0, false
	}
	return rec.Number()
}

// RecordPath returns the path of the item's record file: the path it was
// loaded from, or "<category>/<slug>.yaml".
func (i Item) RecordPath() string {
	if i.Path != "" {
		return i.Path
	}
	return filepath.Join(i.Category, Slug(i.Name)+constants.RecordExt)
}

// Slug converts a name to a file-system friendly lowercase token.
func Slug(name string) string {
	var sb strings.Builder
	lastDash := false
	for _, r := range strings.ToLower(strings.TrimSpace(name)) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			sb.WriteRune(r)
			lastDash = false
		case !lastDash && sb.Len() > 0:
			sb.WriteByte('-')
			lastDash = true
		}
	}
	return strings.TrimSuffix(sb.String(), "-")
}
