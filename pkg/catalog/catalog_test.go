package catalog

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/propgate/propgate/internal/utils/ptr"
	"github.com/propgate/propgate/pkg/errors"
)

func writeFile(t *testing.T, dir, rel, content string) {
	t.Helper()
	full := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
	require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
}

func TestNormalizeProperty(t *testing.T) {
	tests := []struct {
		name    string
		raw     any
		value   *float64
		text    string
		unit    string
		min     *float64
		max     *float64
		conf    *float64
		wantErr bool
	}{
		{name: "bare float", raw: 8.96, value: ptr.To(8.96)},
		{name: "bare int", raw: uint64(42), value: ptr.To(42.0)},
		{name: "numeric string", raw: " 8.96 ", value: ptr.To(8.96)},
		{name: "text", raw: "face-centered cubic", text: "face-centered cubic"},
		{
			name:  "value map",
			raw:   map[string]any{"value": 8.96, "unit": "g/cm³", "min": 8.9, "max": 9.0, "confidence": 0.9},
			value: ptr.To(8.96), unit: "g/cm³", min: ptr.To(8.9), max: ptr.To(9.0), conf: ptr.To(0.9),
		},
		{
			name:  "nested range map",
			raw:   map[string]any{"value": "1085", "unit": "°C", "range": map[string]any{"min": 1080, "max": 1090}},
			value: ptr.To(1085.0), unit: "°C", min: ptr.To(1080.0), max: ptr.To(1090.0),
		},
		{
			name:  "range list",
			raw:   map[string]any{"value": 5.0, "range": []any{4.0, 6.0}},
			value: ptr.To(5.0), min: ptr.To(4.0), max: ptr.To(6.0),
		},
		{
			name:  "percent confidence",
			raw:   map[string]any{"value": 1.0, "confidence": 85},
			value: ptr.To(1.0), conf: ptr.To(0.85),
		},
		{name: "bad range", raw: map[string]any{"value": 1.0, "range": []any{1.0}}, wantErr: true},
		{name: "bad confidence", raw: map[string]any{"value": 1.0, "confidence": "high"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec, err := NormalizeProperty(tt.raw)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.text, rec.Text)
			assert.Equal(t, tt.unit, rec.Unit)
			assertFloatPtr(t, tt.value, rec.Value)
			assertFloatPtr(t, tt.min, rec.Min)
			assertFloatPtr(t, tt.max, rec.Max)
			assertFloatPtr(t, tt.conf, rec.Confidence)
		})
	}
}

func assertFloatPtr(t *testing.T, want, got *float64) {
	t.Helper()
	if want == nil {
		assert.Nil(t, got)
		return
	}
	require.NotNil(t, got)
	assert.InDelta(t, *want, *got, 1e-9)
}

func TestPropertyRecordInRange(t *testing.T) {
	assert.True(t, PropertyRecord{Value: ptr.To(5.0), Min: ptr.To(4.0), Max: ptr.To(6.0)}.InRange())
	assert.False(t, PropertyRecord{Value: ptr.To(7.0), Max: ptr.To(6.0)}.InRange())
	assert.False(t, PropertyRecord{Value: ptr.To(3.0), Min: ptr.To(4.0)}.InRange())
	assert.True(t, PropertyRecord{Text: "n/a", Min: ptr.To(4.0)}.InRange())
}

func TestSlug(t *testing.T) {
	assert.Equal(t, "stainless-steel-304", Slug("Stainless Steel 304"))
	assert.Equal(t, "copper", Slug("  Copper!! "))
}

func TestCatalogAddAndQuery(t *testing.T) {
	cat, err := New(
		Item{Name: "iron", Category: "metals", Properties: map[string]PropertyRecord{"density": {Value: ptr.To(7.87)}}},
		Item{Name: "copper", Category: "metals", Properties: map[string]PropertyRecord{"density": {Value: ptr.To(8.96)}, "color": {Text: "red"}}},
		Item{Name: "granite", Category: "stones", Properties: map[string]PropertyRecord{"density": {Value: ptr.To(2.7)}}},
	)
	require.NoError(t, err)

	assert.Equal(t, 3, cat.Len())
	assert.Equal(t, []string{"metals", "stones"}, cat.Categories())
	assert.Equal(t, []float64{8.96, 7.87}, cat.Values("metals", "density"))
	assert.Equal(t, []string{"color", "density"}, cat.Properties("metals"))

	item, ok := cat.Get("metals/copper")
	require.True(t, ok)
	assert.Equal(t, "copper", item.Name)

	err = cat.Add(Item{Name: "iron", Category: "metals"})
	assert.True(t, errors.IsValidationError(err))

	filtered := cat.Filter("stones")
	assert.Equal(t, 1, filtered.Len())
	assert.False(t, filtered.HasCategory("metals"))
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "metals/copper.yaml", `
name: copper
category: metals
properties:
  density:
    value: 8.96
    unit: g/cm³
  melting_point: "1085"
`)
	writeFile(t, dir, "metals/iron.yaml", `
properties:
  density: 7.87
`)
	writeFile(t, dir, "metals/broken.yaml", "properties: [unclosed")
	writeFile(t, dir, "notes.txt", "ignored")

	cat, err := LoadDir(dir)
	require.Error(t, err)
	var parseErr *errors.ParseError
	assert.ErrorAs(t, err, &parseErr)

	assert.Equal(t, 2, cat.Len())
	iron, ok := cat.Get("metals/iron")
	require.True(t, ok)
	assert.Equal(t, "metals/iron.yaml", iron.Path)
	v, ok := iron.Number("density")
	require.True(t, ok)
	assert.InDelta(t, 7.87, v, 1e-9)

	copper, ok := cat.Get("metals/copper")
	require.True(t, ok)
	mp, ok := copper.Number("melting_point")
	require.True(t, ok)
	assert.InDelta(t, 1085, mp, 1e-9)
}

func TestLoadDirMissing(t *testing.T) {
	cat, err := LoadDir(filepath.Join(t.TempDir(), "absent"))
	require.NoError(t, err)
	assert.Equal(t, 0, cat.Len())
}

func TestLoadResearchDir(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "metals/copper.yaml", `
properties:
  density:
    validation_status: validated
    research_confidence: 0.9
  melting_point:
    validation_status: Disputed
`)
	research, err := LoadResearchDir(dir)
	require.NoError(t, err)

	entries := research.For("metals/copper")
	require.Len(t, entries, 2)
	assert.Equal(t, StatusValidated, entries["density"].Status)
	assert.InDelta(t, 0.9, *entries["density"].Confidence, 1e-9)
	assert.Equal(t, StatusDisputed, entries["melting_point"].Status)
	assert.Nil(t, entries["melting_point"].Confidence)
}

func TestMarshalRoundTrip(t *testing.T) {
	item := Item{
		Name:     "copper",
		Category: "metals",
		Properties: map[string]PropertyRecord{
			"density": {Value: ptr.To(8.96), Unit: "g/cm³", Min: ptr.To(8.9), Max: ptr.To(9.0)},
		},
	}
	data, err := Marshal(item)
	require.NoError(t, err)

	parsed, err := ParseItem("metals/copper.yaml", data)
	require.NoError(t, err)
	assert.Equal(t, item.ID(), parsed.ID())
	assertFloatPtr(t, item.Properties["density"].Value, parsed.Properties["density"].Value)
	assert.Equal(t, "g/cm³", parsed.Properties["density"].Unit)
	assertFloatPtr(t, ptr.To(9.0), parsed.Properties["density"].Max)
}
