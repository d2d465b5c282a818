package inference

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/textgen"
)

// OracleClassifier asks a generative text provider to type each field.
type OracleClassifier struct {
	Completer   textgen.Completer
	SampleLimit int
	Logger      *slog.Logger
}

type fieldTypeReply struct {
	Field string `json:"field"`
	Type  string `json:"type"`
}

func (c *OracleClassifier) Classify(ctx context.Context, rows []dataset.Row) (dataset.FieldTypeMap, error) {
	if c.Completer == nil {
		return nil, fmt.Errorf("%w: no text generation provider configured", dataset.ErrInference)
	}
	order, samples := collectSamples(rows, c.SampleLimit)
	fields := make([]string, 0, len(order))
	for _, field := range order {
		if len(samples[field]) > 0 {
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		return dataset.FieldTypeMap{}, nil
	}

	reply, err := c.Completer.Complete(ctx, buildTypePrompt(fields, samples))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrInference, err)
	}
	payload, err := textgen.ExtractJSON(reply)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", dataset.ErrInference, err)
	}
	var parsed []fieldTypeReply
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return nil, fmt.Errorf("%w: reply is not a list of field types: %v", dataset.ErrInference, err)
	}

	known := make(map[string]struct{}, len(fields))
	for _, field := range fields {
		known[field] = struct{}{}
	}
	typeMap := make(dataset.FieldTypeMap, len(parsed))
	for _, item := range parsed {
		if _, ok := known[item.Field]; !ok {
			continue
		}
		fieldType, ok := dataset.ParseFieldType(item.Type)
		if !ok {
			if c.Logger != nil {
				c.Logger.WarnContext(ctx, "unrecognized field type from oracle; keeping values as strings",
					slog.String("field", item.Field),
					slog.String("type", item.Type),
				)
			}
			fieldType = dataset.TypeString
		}
		typeMap[item.Field] = fieldType
	}
	return typeMap, nil
}

func buildTypePrompt(fields []string, samples map[string][]any) string {
	var b strings.Builder
	b.WriteString("You are given the columns of a CSV file together with sample values.\n")
	b.WriteString("For each field decide the single best data type, one of: string, integer, float, boolean, date.\n\n")
	for _, field := range fields {
		b.WriteString("Field name: ")
		b.WriteString(field)
		b.WriteString("\nSamples: ")
		b.WriteString(joinSamples(samples[field]))
		b.WriteString("\n")
	}
	b.WriteString(`
Return the response as a valid JSON array with objects in this format:
[
  { "field": "fieldName", "type": "integer" }
]
and don't add any additional text to the response.`)
	return b.String()
}

func joinSamples(values []any) string {
	parts := make([]string, 0, len(values))
	for _, value := range values {
		parts = append(parts, fmt.Sprint(value))
	}
	return strings.Join(parts, ", ")
}
