package catalog

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/propgate/propgate/internal/utils/ptr"
)

// NormalizeProperty converts any upstream property shape into a PropertyRecord.
//
// Accepted shapes:
//
//	density: 8.96
//	density: "8.96"
//	density: {value: 8.96, unit: g/cm³, min: 8.9, max: 9.0, confidence: 0.9}
//	density: {value: 8.96, range: {min: 8.9, max: 9.0}}
//	density: {value: 8.96, range: [8.9, 9.0]}
func NormalizeProperty(raw any) (PropertyRecord, error) {
	switch v := raw.(type) {
	case nil:
		return PropertyRecord{}, nil
	case map[string]any:
		return normalizeMap(v)
	default:
		var rec PropertyRecord
		setValue(&rec, v)
		return rec, nil
	}
}

func normalizeMap(m map[string]any) (PropertyRecord, error) {
	var rec PropertyRecord
	setValue(&rec, m["value"])

	if unit, ok := m["unit"]; ok && unit != nil {
		rec.Unit = strings.TrimSpace(fmt.Sprint(unit))
	}

	rec.Min = floatOr(rec.Min, m["min"])
	rec.Max = floatOr(rec.Max, m["max"])
	switch r := m["range"].(type) {
	case map[string]any:
		rec.Min = floatOr(rec.Min, r["min"])
		rec.Max = floatOr(rec.Max, r["max"])
	case []any:
		if len(r) != 2 {
			return rec, fmt.Errorf("range must have two bounds, got %d", len(r))
		}
		rec.Min = floatOr(rec.Min, r[0])
		rec.Max = floatOr(rec.Max, r[1])
	}

	if raw, ok := m["confidence"]; ok && raw != nil {
		f, ok := toFloat(raw)
		if !ok {
			return rec, fmt.Errorf("confidence %v is not numeric", raw)
		}
		if f > 1 && f <= 100 {
			// percentages are accepted and scaled
			f /= 100
		}
		if f < 0 || f > 1 {
			return rec, fmt.Errorf("confidence %v outside [0,1]", raw)
		}
		rec.Confidence = ptr.To(f)
	}
	return rec, nil
}

func setValue(rec *PropertyRecord, raw any) {
	if raw == nil {
		return
	}
	if f, ok := toFloat(raw); ok {
		rec.Value = ptr.To(f)
		return
	}
	rec.Text = strings.TrimSpace(fmt.Sprint(raw))
}

// floatOr returns raw as a bound when it is numeric, otherwise cur.
func floatOr(cur *float64, raw any) *float64 {
	if f, ok := toFloat(raw); ok {
		return ptr.To(f)
	}
	return cur
}

func toFloat(raw any) (float64, bool) {
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint64:
		return float64(v), true
	case int32:
		return float64(v), true
	case uint32:
		return float64(v), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		return f, true
	default:
		return 0, false
	}
}
