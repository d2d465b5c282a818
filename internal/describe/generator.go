package describe

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/inference"
	"github.com/datainsight/datainsight/internal/observability"
	"github.com/datainsight/datainsight/internal/textgen"
)

const (
	defaultSampleLimit    = 100
	defaultConcurrency    = 4
	defaultFieldsPerQuery = 64
)

// Prober reads attribute names and sample values from a stored collection.
// SampleFields answers for several fields with one pass over the collection.
type Prober interface {
	ListAttributes(ctx context.Context, name string) ([]string, error)
	SampleFields(ctx context.Context, name string, fields []string, limit int) (map[string][]any, error)
}

type Request struct {
	Collection string `json:"collection"`
	Company    string `json:"company"`
	Context    string `json:"context,omitempty"`
}

type Generator struct {
	Prober      Prober
	Store       *Store
	Completer   textgen.Completer
	SampleLimit int
	// FieldsPerQuery bounds how many fields one sampling statement covers.
	FieldsPerQuery int
	Concurrency    int
	Logger         *slog.Logger
}

type fieldSamples struct {
	field  string
	values []any
}

// Generate asks the oracle to describe every field of a collection from sampled
// values, attaches a detected data type to each field and saves the result.
func (g *Generator) Generate(ctx context.Context, req Request) (Description, error) {
	collection := strings.TrimSpace(req.Collection)
	if err := dataset.ValidateCollectionName(collection); err != nil {
		return Description{}, err
	}
	if strings.TrimSpace(req.Company) == "" {
		return Description{}, fmt.Errorf("%w: company is required", dataset.ErrValidation)
	}

	attributes, err := g.Prober.ListAttributes(ctx, collection)
	if err != nil {
		return Description{}, err
	}
	if len(attributes) == 0 {
		return Description{}, fmt.Errorf("%w: no columns found for collection %q", dataset.ErrValidation, collection)
	}

	samples, err := g.sample(ctx, collection, attributes)
	if err != nil {
		return Description{}, err
	}

	reply, err := g.Completer.Complete(ctx, buildPrompt(collection, req, samples))
	if err != nil {
		return Description{}, fmt.Errorf("%w: %v", dataset.ErrInference, err)
	}
	description, err := parseReply(reply)
	if err != nil {
		return Description{}, err
	}

	byField := make(map[string][]any, len(samples))
	for _, item := range samples {
		byField[item.field] = item.values
	}
	for i := range description.Descriptions {
		description.Descriptions[i].DataType = inference.DetectExactDataType(byField[description.Descriptions[i].Field])
	}

	if _, err := g.Store.Save(ctx, collection, req.Company, description); err != nil {
		return Description{}, err
	}
	observability.OrDiscard(g.Logger).InfoContext(ctx, "description generated",
		slog.String("collection", collection),
		slog.Int("fields", len(description.Descriptions)),
	)
	return description, nil
}

// sample fetches values in chunks of FieldsPerQuery fields, running chunks
// concurrently, and keeps attribute order.
func (g *Generator) sample(ctx context.Context, collection string, attributes []string) ([]fieldSamples, error) {
	limit := g.SampleLimit
	if limit <= 0 {
		limit = defaultSampleLimit
	}
	concurrency := g.Concurrency
	if concurrency <= 0 {
		concurrency = defaultConcurrency
	}
	chunkSize := g.FieldsPerQuery
	if chunkSize <= 0 {
		chunkSize = defaultFieldsPerQuery
	}

	out := make([]fieldSamples, len(attributes))
	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(concurrency)
	for start := 0; start < len(attributes); start += chunkSize {
		end := min(start+chunkSize, len(attributes))
		group.Go(func() error {
			chunk := attributes[start:end]
			values, err := g.Prober.SampleFields(groupCtx, collection, chunk, limit)
			if err != nil {
				return fmt.Errorf("sample fields %s..%s: %w", chunk[0], chunk[len(chunk)-1], err)
			}
			for offset, field := range chunk {
				out[start+offset] = fieldSamples{field: field, values: values[field]}
			}
			return nil
		})
	}
	if err := group.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildPrompt(collection string, req Request, samples []fieldSamples) string {
	var b strings.Builder
	fmt.Fprintf(&b, "You are given data from the company %q stored in collection %q.\n", strings.TrimSpace(req.Company), collection)
	b.WriteString("For each field, use the field name and its sample values to write a detailed description of what the field represents.\n")
	b.WriteString("Also write a short summary of what the whole file contains.\n")
	if extra := strings.TrimSpace(req.Context); extra != "" {
		b.WriteString("\nAdditional context about the data:\n")
		b.WriteString(extra)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	for _, item := range samples {
		rendered := make([]string, 0, len(item.values))
		for _, value := range item.values {
			rendered = append(rendered, fmt.Sprint(value))
		}
		fmt.Fprintf(&b, "Field name: %s\nSamples: %s\n", item.field, strings.Join(rendered, ", "))
	}
	b.WriteString(`
Return only valid JSON in this format and nothing else:
{
  "fileSummary": "summary of the file",
  "descriptions": [
    { "field": "fieldName", "description": "description of field" }
  ]
}`)
	return b.String()
}

func parseReply(reply string) (Description, error) {
	payload, err := textgen.ExtractJSON(reply)
	if err != nil {
		return Description{}, fmt.Errorf("%w: description reply: %v", dataset.ErrInference, err)
	}

	var description Description
	trimmed := strings.TrimSpace(payload)
	if strings.HasPrefix(trimmed, "[") {
		if err := json.Unmarshal([]byte(trimmed), &description.Descriptions); err != nil {
			return Description{}, fmt.Errorf("%w: decode description list: %v", dataset.ErrInference, err)
		}
	} else if err := json.Unmarshal([]byte(trimmed), &description); err != nil {
		return Description{}, fmt.Errorf("%w: decode description object: %v", dataset.ErrInference, err)
	}

	kept := make([]FieldDescription, 0, len(description.Descriptions))
	for _, item := range description.Descriptions {
		item.Field = strings.TrimSpace(item.Field)
		if item.Field == "" {
			continue
		}
		item.DataType = ""
		kept = append(kept, item)
	}
	if len(kept) == 0 {
		return Description{}, fmt.Errorf("%w: description reply contains no fields", dataset.ErrInference)
	}
	description.Descriptions = kept
	return description, nil
}
