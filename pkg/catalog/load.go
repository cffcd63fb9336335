package catalog

import (
	stderrors "errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/propgate/propgate/pkg/constants"
	"github.com/propgate/propgate/pkg/errors"
)

// rawItem mirrors the on-disk record before normalization.
type rawItem struct {
	Name       string         `yaml:"name"`
	Category   string         `yaml:"category"`
	Properties map[string]any `yaml:"properties"`
}

// ParseItem parses one record file. Missing name and category default to the
// file name and parent directory of rel.
func ParseItem(rel string, data []byte) (Item, error) {
	var raw rawItem
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return Item{}, errors.WrapParse("yaml", rel, err)
	}

	item := Item{
		Name:       strings.TrimSpace(raw.Name),
		Category:   strings.TrimSpace(raw.Category),
		Properties: make(map[string]PropertyRecord, len(raw.Properties)),
		Path:       rel,
	}
	if item.Name == "" {
		item.Name = strings.TrimSuffix(path.Base(rel), path.Ext(rel))
	}
	if item.Category == "" {
		if dir := path.Dir(rel); dir != "." {
			item.Category = path.Base(dir)
		}
	}
	if item.Category == "" {
		return Item{}, errors.NewParseError("yaml", rel, "category is required", nil)
	}

	for name, value := range raw.Properties {
		rec, err := NormalizeProperty(value)
		if err != nil {
			return Item{}, errors.NewParseError("yaml", rel, fmt.Sprintf("property %s: %v", name, err), err)
		}
		item.Properties[name] = rec
	}
	return item, nil
}

// LoadFile reads and parses a single record file.
func LoadFile(root, rel string) (Item, error) {
	data, err := os.ReadFile(path.Join(root, rel))
	if err != nil {
		return Item{}, errors.WrapIO("read", rel, err)
	}
	return ParseItem(rel, data)
}

// LoadDir loads every record under dir laid out as <category>/<item>.yaml.
//
// Unreadable or malformed files do not stop the load: the returned catalog
// holds everything that parsed and the error joins each individual failure.
// A missing directory yields an empty catalog.
func LoadDir(dir string) (*Catalog, error) {
	return LoadFS(os.DirFS(dir))
}

// LoadFS is LoadDir over an fs.FS.
func LoadFS(fsys fs.FS) (*Catalog, error) {
	paths, err := recordPaths(fsys)
	if err != nil {
		return MustNew(), err
	}

	cat := MustNew()
	var errs []error
	for _, rel := range paths {
		data, err := fs.ReadFile(fsys, rel)
		if err != nil {
			errs = append(errs, errors.WrapIO("read", rel, err))
			continue
		}
		item, err := ParseItem(rel, data)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if err := cat.Add(item); err != nil {
			errs = append(errs, err)
		}
	}
	return cat, stderrors.Join(errs...)
}

// recordPaths lists record files in deterministic order.
func recordPaths(fsys fs.FS) ([]string, error) {
	var paths []string
	err := fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if d.IsDir() {
			if p != "." && strings.HasPrefix(d.Name(), ".") {
				return fs.SkipDir
			}
			return nil
		}
		if strings.HasSuffix(p, constants.RecordExt) {
			paths = append(paths, p)
		}
		return nil
	})
	if err != nil && !os.IsNotExist(err) {
		return nil, errors.WrapIO("walk", "records", err)
	}
	sort.Strings(paths)
	return paths, nil
}

// RecordPaths lists the record files under dir, relative to dir.
func RecordPaths(dir string) ([]string, error) {
	return recordPaths(os.DirFS(dir))
}
