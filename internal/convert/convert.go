package convert

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/datainsight/datainsight/internal/dataset"
)

// Rows applies typeMap to every row. It never fails: a cell that cannot be coerced keeps
// its raw value, and cells for fields outside typeMap are copied unchanged.
func Rows(rows []dataset.Row, typeMap dataset.FieldTypeMap) []dataset.Row {
	out := make([]dataset.Row, len(rows))
	for i, row := range rows {
		converted := row.Clone()
		for j, cell := range converted {
			fieldType, ok := typeMap[cell.Name]
			if !ok || cell.Value == nil {
				continue
			}
			converted[j].Value = Value(cell.Value, fieldType)
		}
		out[i] = converted
	}
	return out
}

// Value coerces a single raw value. Values already of the target type are returned as-is.
func Value(raw any, fieldType dataset.FieldType) any {
	if raw == nil {
		return nil
	}
	switch fieldType {
	case dataset.TypeInteger:
		if converted, ok := toInteger(raw); ok {
			return converted
		}
	case dataset.TypeFloat:
		if converted, ok := toFloat(raw); ok {
			return converted
		}
	case dataset.TypeBoolean:
		if converted, ok := toBoolean(raw); ok {
			return converted
		}
	case dataset.TypeDate:
		if converted, ok := toDate(raw); ok {
			return converted
		}
	}
	return raw
}

// toInteger truncates toward zero. Strings parse their leading numeric prefix, so
// "3.7" and "12kg" become 3 and 12; a string with no leading digits is not an integer.
func toInteger(raw any) (int64, bool) {
	switch typed := raw.(type) {
	case int64:
		return typed, true
	case int:
		return int64(typed), true
	case float64:
		return truncate(typed)
	case string:
		return leadingInteger(typed)
	default:
		return 0, false
	}
}

func leadingInteger(raw string) (int64, bool) {
	text := strings.TrimSpace(raw)
	end := 0
	if end < len(text) && (text[end] == '+' || text[end] == '-') {
		end++
	}
	digitsStart := end
	for end < len(text) && text[end] >= '0' && text[end] <= '9' {
		end++
	}
	if end == digitsStart {
		return 0, false
	}
	parsed, err := strconv.ParseInt(text[:end], 10, 64)
	if err != nil {
		return 0, false
	}
	return parsed, true
}

func toFloat(raw any) (float64, bool) {
	switch typed := raw.(type) {
	case float64:
		return typed, true
	case int64:
		return float64(typed), true
	case int:
		return float64(typed), true
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(typed), 64)
		if err != nil || math.IsNaN(parsed) || math.IsInf(parsed, 0) {
			return 0, false
		}
		return parsed, true
	default:
		return 0, false
	}
}

func toBoolean(raw any) (bool, bool) {
	switch typed := raw.(type) {
	case bool:
		return typed, true
	case string:
		switch strings.ToLower(strings.TrimSpace(typed)) {
		case "true", "1":
			return true, true
		case "false", "0":
			return false, true
		}
	}
	return false, false
}

func toDate(raw any) (time.Time, bool) {
	switch typed := raw.(type) {
	case time.Time:
		return typed, true
	case string:
		return dataset.ParseDate(typed)
	default:
		return time.Time{}, false
	}
}

// truncate rejects values outside the int64 range. 2^63 is exactly representable as a
// float64 while MaxInt64 is not, so the upper bound is exclusive.
func truncate(value float64) (int64, bool) {
	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	value = math.Trunc(value)
	if value >= 0x1p63 || value < -0x1p63 {
		return 0, false
	}
	return int64(value), true
}
