// Package describe authors and keeps human-readable field descriptions for
// collections.
package describe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/datainsight/datainsight/internal/catalog"
	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/observability"
)

type FieldDescription struct {
	Field       string            `json:"field"`
	Description string            `json:"description"`
	DataType    dataset.FieldType `json:"dataType,omitempty"`
}

type Description struct {
	FileSummary  string             `json:"fileSummary"`
	Descriptions []FieldDescription `json:"descriptions"`
}

// Empty reports whether no description was authored.
func (d Description) Empty() bool {
	return strings.TrimSpace(d.FileSummary) == "" && len(d.Descriptions) == 0
}

type Repository interface {
	InsertSchemaDescription(ctx context.Context, in catalog.InsertSchemaDescriptionInput) (catalog.SchemaDescription, error)
	GetLatestSchemaDescription(ctx context.Context, collection string) (catalog.SchemaDescription, error)
}

// Store appends descriptions; the newest one per collection wins on read.
type Store struct {
	Repo   Repository
	Logger *slog.Logger
}

func NewStore(repo Repository, logger *slog.Logger) *Store {
	return &Store{Repo: repo, Logger: observability.OrDiscard(logger)}
}

func (s *Store) Save(ctx context.Context, collection, company string, description Description) (time.Time, error) {
	if err := dataset.ValidateCollectionName(collection); err != nil {
		return time.Time{}, err
	}
	fields := description.Descriptions
	if fields == nil {
		fields = []FieldDescription{}
	}
	payload, err := json.Marshal(fields)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: encode descriptions: %v", dataset.ErrStore, err)
	}
	saved, err := s.Repo.InsertSchemaDescription(ctx, catalog.InsertSchemaDescriptionInput{
		Collection:       collection,
		Company:          strings.TrimSpace(company),
		FileSummary:      description.FileSummary,
		DescriptionsJSON: payload,
	})
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: save description for %q: %v", dataset.ErrStore, collection, err)
	}
	return saved.CreatedAt, nil
}

// Load never fails. A missing or unreadable description comes back empty since
// descriptions are only context for translation.
func (s *Store) Load(ctx context.Context, collection string) Description {
	empty := Description{Descriptions: []FieldDescription{}}

	saved, err := s.Repo.GetLatestSchemaDescription(ctx, collection)
	if err != nil {
		if !errors.Is(err, catalog.ErrNotFound) {
			s.logger().WarnContext(ctx, "load description failed", slog.String("collection", collection), slog.Any("error", err))
		}
		return empty
	}

	var fields []FieldDescription
	if len(saved.DescriptionsJSON) > 0 {
		if err := json.Unmarshal(saved.DescriptionsJSON, &fields); err != nil {
			s.logger().WarnContext(ctx, "decode description failed", slog.String("collection", collection), slog.Any("error", err))
			return empty
		}
	}
	if fields == nil {
		fields = []FieldDescription{}
	}
	return Description{FileSummary: saved.FileSummary, Descriptions: fields}
}

func (s *Store) logger() *slog.Logger {
	return observability.OrDiscard(s.Logger)
}
