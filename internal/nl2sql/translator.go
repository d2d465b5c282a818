// Package nl2sql turns natural-language requests into DuckDB SQL over a
// collection.
package nl2sql

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/describe"
	"github.com/datainsight/datainsight/internal/observability"
	"github.com/datainsight/datainsight/internal/textgen"
)

const defaultSampleDocuments = 5

type Sampler interface {
	Exists(ctx context.Context, name string) (bool, error)
	SampleDocuments(ctx context.Context, name string, limit int) ([]map[string]any, error)
}

type DescriptionLoader interface {
	Load(ctx context.Context, collection string) describe.Description
}

type Request struct {
	Prompt     string `json:"prompt"`
	Collection string `json:"collection,omitempty"`
	Context    string `json:"context,omitempty"`
}

type Translation struct {
	Collection  string `json:"collection"`
	Query       string `json:"query"`
	Explanation string `json:"explanation"`
}

type Translator struct {
	Store           Sampler
	Descriptions    DescriptionLoader
	Completer       textgen.Completer
	SampleDocuments int
	RowLimit        int
	Logger          *slog.Logger
}

// Translate never substitutes a default translation: a failed provider call or
// a reply without all three fields is an error.
func (t *Translator) Translate(ctx context.Context, req Request) (translation Translation, err error) {
	defer func() { observability.ObserveTranslation(err) }()

	if strings.TrimSpace(req.Prompt) == "" {
		return Translation{}, fmt.Errorf("%w: prompt is required", dataset.ErrValidation)
	}
	collection := strings.TrimSpace(req.Collection)
	if collection == "" {
		collection, err = t.ExtractCollection(ctx, req.Prompt)
		if err != nil {
			return Translation{}, err
		}
	}
	if err := dataset.ValidateCollectionName(collection); err != nil {
		return Translation{}, err
	}

	samples, err := t.samples(ctx, collection)
	if err != nil {
		return Translation{}, err
	}
	description := describe.Description{Descriptions: []describe.FieldDescription{}}
	if t.Descriptions != nil {
		description = t.Descriptions.Load(ctx, collection)
	}

	prompt, err := buildTranslationPrompt(collection, req.Prompt, req.Context, samples, description, t.RowLimit)
	if err != nil {
		return Translation{}, fmt.Errorf("%w: %v", dataset.ErrTranslation, err)
	}
	reply, err := t.Completer.Complete(ctx, prompt)
	if err != nil {
		return Translation{}, fmt.Errorf("%w: %v", dataset.ErrTranslation, err)
	}

	translation, err = parseTranslation(reply)
	if err != nil {
		return Translation{}, err
	}
	t.logger().DebugContext(ctx, "query translated",
		slog.String("collection", translation.Collection),
		slog.String("query", translation.Query),
	)
	return translation, nil
}

// ExtractCollection asks the oracle which collection a request refers to.
func (t *Translator) ExtractCollection(ctx context.Context, request string) (string, error) {
	reply, err := t.Completer.Complete(ctx, buildExtractionPrompt(request))
	if err != nil {
		return "", fmt.Errorf("%w: extract collection: %v", dataset.ErrTranslation, err)
	}
	payload, err := textgen.ExtractJSON(reply)
	if err != nil {
		return "", fmt.Errorf("%w: extract collection: %v", dataset.ErrTranslation, err)
	}
	var parsed struct {
		Collection *string `json:"collection"`
	}
	if err := json.Unmarshal([]byte(payload), &parsed); err != nil {
		return "", fmt.Errorf("%w: decode collection reply: %v", dataset.ErrTranslation, err)
	}
	if parsed.Collection == nil {
		return "", fmt.Errorf("%w: no collection name found in request", dataset.ErrValidation)
	}
	name := strings.TrimSpace(*parsed.Collection)
	if name == "" || strings.EqualFold(name, "null") {
		return "", fmt.Errorf("%w: no collection name found in request", dataset.ErrValidation)
	}
	return name, nil
}

func (t *Translator) samples(ctx context.Context, collection string) ([]map[string]any, error) {
	limit := t.SampleDocuments
	if limit <= 0 {
		limit = defaultSampleDocuments
	}
	samples, err := t.Store.SampleDocuments(ctx, collection, limit)
	if err == nil {
		if samples == nil {
			samples = []map[string]any{}
		}
		return samples, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	exists, existsErr := t.Store.Exists(ctx, collection)
	if existsErr == nil && !exists {
		return nil, fmt.Errorf("%w: collection %q does not exist", dataset.ErrTranslation, collection)
	}
	t.logger().WarnContext(ctx, "sample documents unavailable", slog.String("collection", collection), slog.Any("error", err))
	return []map[string]any{}, nil
}

func parseTranslation(reply string) (Translation, error) {
	payload, err := textgen.ExtractJSON(reply)
	if err != nil {
		return Translation{}, fmt.Errorf("%w: %v", dataset.ErrTranslation, err)
	}
	var translation Translation
	if err := json.Unmarshal([]byte(payload), &translation); err != nil {
		return Translation{}, fmt.Errorf("%w: decode translation: %v", dataset.ErrTranslation, err)
	}
	translation.Collection = strings.TrimSpace(translation.Collection)
	translation.Query = strings.TrimSpace(translation.Query)
	translation.Explanation = strings.TrimSpace(translation.Explanation)

	var missing []string
	if translation.Collection == "" {
		missing = append(missing, "collection")
	}
	if translation.Query == "" {
		missing = append(missing, "query")
	}
	if translation.Explanation == "" {
		missing = append(missing, "explanation")
	}
	if len(missing) > 0 {
		return Translation{}, fmt.Errorf("%w: reply is missing %s", dataset.ErrTranslation, strings.Join(missing, ", "))
	}
	if err := dataset.ValidateCollectionName(translation.Collection); err != nil {
		return Translation{}, fmt.Errorf("%w: %v", dataset.ErrTranslation, err)
	}
	return translation, nil
}

func (t *Translator) logger() *slog.Logger {
	return observability.OrDiscard(t.Logger)
}
