package catalog

import (
	"github.com/goccy/go-yaml"

	"github.com/propgate/propgate/pkg/errors"
)

// Marshal renders an item as a record file.
func Marshal(item Item) ([]byte, error) {
	data, err := yaml.MarshalWithOptions(item, yaml.Indent(2), yaml.IndentSequence(false))
	if err != nil {
		return nil, errors.WrapParse("yaml", item.RecordPath(), err)
	}
	return data, nil
}
