package catalog

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/propgate/propgate/pkg/errors"
)

// Status is the upstream validation status of a property.
type Status string

// Validation statuses.
const (
	StatusValidated Status = "validated"
	StatusDisputed  Status = "disputed"
	StatusUnknown   Status = "unknown"
)

// ParseStatus maps free-form status text onto a Status.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusValidated:
		return StatusValidated
	case StatusDisputed:
		return StatusDisputed
	default:
		return StatusUnknown
	}
}

// ResearchEntry is the research artifact for one item property.
type ResearchEntry struct {
	Status     Status   `yaml:"validation_status" json:"validation_status"`
	Confidence *float64 `yaml:"research_confidence,omitempty" json:"research_confidence,omitempty"`
}

// Research holds research artifacts keyed by item and property.
type Research map[ItemID]map[string]ResearchEntry

// For returns the research entries of an item.
func (r Research) For(id ItemID) map[string]ResearchEntry {
	if r == nil {
		return nil
	}
	return r[id]
}

// Set records one entry.
func (r Research) Set(id ItemID, property string, entry ResearchEntry) {
	if r[id] == nil {
		r[id] = make(map[string]ResearchEntry)
	}
	r[id][property] = entry
}

type rawResearch struct {
	Name       string `yaml:"name"`
	Category   string `yaml:"category"`
	Properties map[string]struct {
		Status     string `yaml:"validation_status"`
		Confidence any    `yaml:"research_confidence"`
	} `yaml:"properties"`
}

// ParseResearch parses one research artifact file.
func ParseResearch(rel string, data []byte) (ItemID, map[string]ResearchEntry, error) {
	var raw rawResearch
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return "", nil, errors.WrapParse("yaml", rel, err)
	}
	name := strings.TrimSpace(raw.Name)
	if name == "" {
		name = strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	}
	category := strings.TrimSpace(raw.Category)
	if category == "" && path.Dir(rel) != "." {
		category = path.Base(path.Dir(rel))
	}
	if category == "" {
		return "", nil, errors.NewParseError("yaml", rel, "category is required", nil)
	}

	entries := make(map[string]ResearchEntry, len(raw.Properties))
	for prop, r := range raw.Properties {
		entry := ResearchEntry{Status: ParseStatus(r.Status)}
		if f, ok := toFloat(r.Confidence); ok {
			if f < 0 || f > 1 {
				return "", nil, errors.NewParseError("yaml", rel, "research_confidence of "+prop+" outside [0,1]", nil)
			}
			entry.Confidence = &f
		}
		entries[prop] = entry
	}
	return NewItemID(category, name), entries, nil
}

// LoadResearchDir loads research artifacts laid out as <category>/<item>.yaml.
// A missing directory yields empty research; malformed files are joined into
// the returned error while the rest still load.
func LoadResearchDir(dir string) (Research, error) {
	research := make(Research)
	if dir == "" {
		return research, nil
	}
	fsys := os.DirFS(dir)
	paths, err := recordPaths(fsys)
	if err != nil {
		return research, err
	}
	var errs []error
	for _, rel := range paths {
		data, err := fs.ReadFile(fsys, rel)
		if err != nil {
			errs = append(errs, errors.WrapIO("read", rel, err))
			continue
		}
		id, entries, err := ParseResearch(rel, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		for prop, entry := range entries {
			research.Set(id, prop, entry)
		}
	}
	return research, stderrors.Join(errs...)
}
