package inference

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/datainsight/datainsight/internal/dataset"
)

// DetectExactDataType reports a definitive type for already-stored sample values.
// Null values are discarded and an empty sample yields TypeUnknown. When every value is
// numeric the result is TypeFloat, so mixed integer/decimal columns never report integer.
// Otherwise the first surviving value decides.
func DetectExactDataType(values []any) dataset.FieldType {
	kept := make([]any, 0, len(values))
	for _, value := range values {
		if value != nil {
			kept = append(kept, value)
		}
	}
	if len(kept) == 0 {
		return dataset.TypeUnknown
	}

	allNumeric := true
	for _, value := range kept {
		kind := classifyValue(value)
		if kind != dataset.TypeInteger && kind != dataset.TypeFloat {
			allNumeric = false
			break
		}
	}
	if allNumeric {
		return dataset.TypeFloat
	}
	return classifyValue(kept[0])
}

func classifyValue(value any) dataset.FieldType {
	switch typed := value.(type) {
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return dataset.TypeInteger
	case float32:
		return classifyFloat(float64(typed))
	case float64:
		return classifyFloat(typed)
	case bool:
		return dataset.TypeBoolean
	case time.Time:
		return dataset.TypeDate
	case string:
		return classifyText(typed)
	default:
		return dataset.TypeString
	}
}

func classifyFloat(value float64) dataset.FieldType {
	if value == float64(int64(value)) {
		return dataset.TypeInteger
	}
	return dataset.TypeFloat
}

func classifyText(raw string) dataset.FieldType {
	text := strings.TrimSpace(raw)
	if text == "" {
		return dataset.TypeString
	}
	if _, err := strconv.ParseInt(text, 10, 64); err == nil {
		return dataset.TypeInteger
	}
	if parsed, err := strconv.ParseFloat(text, 64); err == nil && !isSpecialFloat(text) {
		return classifyFloat(parsed)
	}
	switch strings.ToLower(text) {
	case "true", "false":
		return dataset.TypeBoolean
	}
	if _, ok := dataset.ParseDate(text); ok {
		return dataset.TypeDate
	}
	return dataset.TypeString
}

func isSpecialFloat(text string) bool {
	switch strings.ToLower(strings.TrimLeft(text, "+-")) {
	case "nan", "inf", "infinity":
		return true
	}
	return false
}

// LocalClassifier is the deterministic classifier. It never calls out and never fails.
type LocalClassifier struct {
	SampleLimit int
}

func (c LocalClassifier) Classify(_ context.Context, rows []dataset.Row) (dataset.FieldTypeMap, error) {
	order, samples := collectSamples(rows, c.SampleLimit)
	typeMap := make(dataset.FieldTypeMap, len(order))
	for _, field := range order {
		detected := DetectExactDataType(samples[field])
		if detected == dataset.TypeUnknown {
			continue
		}
		typeMap[field] = detected
	}
	return typeMap, nil
}
