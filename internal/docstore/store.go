// Package docstore keeps dataset collections as Parquet objects registered in
// the catalog and answers queries over them with DuckDB.
package docstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/datainsight/datainsight/internal/catalog"
	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/observability"
	"github.com/datainsight/datainsight/internal/query"
	"github.com/datainsight/datainsight/internal/storage"
)

// internalFields are identity attributes never reported as dataset fields.
var internalFields = map[string]struct{}{
	"_id":    {},
	"_key":   {},
	"_rev":   {},
	"_empty": {},
}

type Store struct {
	Catalog  catalog.Repository
	Objects  storage.ObjectStore
	Engine   query.Engine
	Logger   *slog.Logger
	NewID    func() string
	RowLimit int
}

type ImportResult struct {
	Collection string
	Count      int64
	ObjectPath string
	SizeBytes  int64
}

type Query struct {
	Collection string
	SQL        string
	RowLimit   int
}

func New(repo catalog.Repository, objects storage.ObjectStore, engine query.Engine, logger *slog.Logger) *Store {
	return &Store{
		Catalog: repo,
		Objects: objects,
		Engine:  engine,
		Logger:  observability.OrDiscard(logger),
		NewID:   uuid.NewString,
	}
}

func (s *Store) Exists(ctx context.Context, name string) (bool, error) {
	if _, err := s.Catalog.GetCollection(ctx, name); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("%w: lookup collection %q: %v", dataset.ErrStore, name, err)
	}
	return true, nil
}

// Create is a no-op when the collection already exists.
func (s *Store) Create(ctx context.Context, name string) error {
	if err := dataset.ValidateCollectionName(name); err != nil {
		return err
	}
	if _, _, err := s.Catalog.CreateCollection(ctx, name); err != nil {
		return fmt.Errorf("%w: create collection %q: %v", dataset.ErrStore, name, err)
	}
	return nil
}

// BulkImport stores one batch as a single object. The object is only visible to
// queries once the catalog registration commits.
// DropEmpty removes a collection that never received a batch. A collection that
// holds data is left alone.
func (s *Store) DropEmpty(ctx context.Context, name string) error {
	if _, err := s.Catalog.DeleteEmptyCollection(ctx, name); err != nil {
		return fmt.Errorf("%w: drop empty collection %q: %v", dataset.ErrStore, name, err)
	}
	return nil
}

func (s *Store) BulkImport(ctx context.Context, name string, rows []dataset.Row) (ImportResult, error) {
	result := ImportResult{Collection: name}
	if len(rows) == 0 {
		return result, nil
	}
	start := time.Now()

	batch, err := encodeBatch(rows)
	if err != nil {
		return result, fmt.Errorf("%w: encode batch for %q: %v", dataset.ErrStore, name, err)
	}
	objectPath, err := storage.CollectionObjectPath(name, s.newID())
	if err != nil {
		return result, fmt.Errorf("%w: %v", dataset.ErrStore, err)
	}

	info, err := s.Objects.Put(ctx, objectPath, bytes.NewReader(batch.Data), int64(len(batch.Data)), storage.PutOptions{
		ContentType: storage.ContentTypeParquet,
		Metadata: map[string]string{
			"collection":   name,
			"record-count": strconv.FormatInt(batch.RecordCount, 10),
		},
	})
	if err != nil {
		return result, fmt.Errorf("%w: upload batch for %q: %v", dataset.ErrStore, name, err)
	}
	sizeBytes := info.Size
	if sizeBytes <= 0 {
		sizeBytes = int64(len(batch.Data))
	}

	if _, err := s.Catalog.RegisterObject(ctx, catalog.RegisterObjectInput{
		Collection:    name,
		Path:          objectPath,
		RecordCount:   batch.RecordCount,
		FileSizeBytes: sizeBytes,
	}); err != nil {
		if deleteErr := s.Objects.Delete(context.WithoutCancel(ctx), objectPath); deleteErr != nil {
			s.logger().WarnContext(ctx, "orphaned batch object", slog.String("path", objectPath), slog.Any("error", deleteErr))
		}
		return result, fmt.Errorf("%w: register batch for %q: %v", dataset.ErrStore, name, err)
	}

	elapsed := time.Since(start)
	observability.ObserveBatchImport(len(rows), elapsed)
	s.logger().DebugContext(ctx, "batch imported",
		slog.String("collection", name),
		slog.String("path", objectPath),
		slog.Int64("records", batch.RecordCount),
		slog.Int("columns", len(batch.Columns)),
		slog.Duration("duration", elapsed),
	)

	result.Count = batch.RecordCount
	result.ObjectPath = objectPath
	result.SizeBytes = sizeBytes
	return result, nil
}

// RunQuery executes a read-only statement with the collection mounted as a view
// of the same name.
func (s *Store) RunQuery(ctx context.Context, q Query) (query.Result, error) {
	if !IsReadOnly(q.SQL) {
		return query.Result{}, fmt.Errorf("%w: only read-only SELECT/WITH queries are allowed", dataset.ErrExecution)
	}
	if err := dataset.ValidateCollectionName(q.Collection); err != nil {
		return query.Result{}, fmt.Errorf("%w: %v", dataset.ErrExecution, err)
	}
	if _, err := s.Catalog.GetCollection(ctx, q.Collection); err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return query.Result{}, fmt.Errorf("%w: collection %q does not exist", dataset.ErrExecution, q.Collection)
		}
		return query.Result{}, fmt.Errorf("%w: lookup collection %q: %v", dataset.ErrStore, q.Collection, err)
	}
	objects, err := s.Catalog.ListObjects(ctx, q.Collection)
	if err != nil {
		return query.Result{}, fmt.Errorf("%w: list objects of %q: %v", dataset.ErrStore, q.Collection, err)
	}

	collection := query.Collection{Name: q.Collection, Objects: make([]query.Object, 0, len(objects))}
	for _, object := range objects {
		collection.Objects = append(collection.Objects, query.Object{Path: object.Path, SizeBytes: object.FileSizeBytes})
	}

	rowLimit := q.RowLimit
	if rowLimit <= 0 {
		rowLimit = s.RowLimit
	}
	result, err := s.Engine.Execute(ctx, query.Request{
		SQL:         q.SQL,
		RowLimit:    rowLimit,
		Collections: []query.Collection{collection},
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return query.Result{}, ctxErr
		}
		if errors.Is(err, query.ErrSetup) {
			return query.Result{}, fmt.Errorf("%w: %v", dataset.ErrStore, err)
		}
		return query.Result{}, fmt.Errorf("%w: %v", dataset.ErrExecution, err)
	}
	return result, nil
}

func (s *Store) SampleDocuments(ctx context.Context, name string, limit int) ([]map[string]any, error) {
	if limit <= 0 {
		limit = 5
	}
	result, err := s.RunQuery(ctx, Query{
		Collection: name,
		SQL:        fmt.Sprintf("SELECT * FROM %s LIMIT %d", quoteIdent(name), limit),
		RowLimit:   limit,
	})
	if err != nil {
		return nil, err
	}
	documents := result.Records()
	for _, document := range documents {
		for field := range internalFields {
			delete(document, field)
		}
	}
	return documents, nil
}

// ListAttributes probes one document and reports its field names.
func (s *Store) ListAttributes(ctx context.Context, name string) ([]string, error) {
	result, err := s.RunQuery(ctx, Query{
		Collection: name,
		SQL:        fmt.Sprintf("SELECT * FROM %s LIMIT 1", quoteIdent(name)),
		RowLimit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return []string{}, nil
	}
	attributes := make([]string, 0, len(result.Columns))
	for _, column := range result.Columns {
		if _, internal := internalFields[column]; internal {
			continue
		}
		attributes = append(attributes, column)
	}
	return attributes, nil
}

// SampleFields returns up to limit non-null values for each field. All fields are
// sampled by one statement, so the collection's objects are staged once.
func (s *Store) SampleFields(ctx context.Context, name string, fields []string, limit int) (map[string][]any, error) {
	if limit <= 0 {
		limit = 100
	}
	samples := make(map[string][]any, len(fields))
	columns := make([]string, 0, len(fields))
	selected := make([]string, 0, len(fields))
	for _, field := range fields {
		if _, dup := samples[field]; dup {
			continue
		}
		samples[field] = []any{}
		column := quoteIdent(field)
		columns = append(columns, fmt.Sprintf("(SELECT list(%s) FROM (SELECT %s FROM %s WHERE %s IS NOT NULL LIMIT %d)) AS %s",
			column, column, quoteIdent(name), column, limit, column))
		selected = append(selected, field)
	}
	if len(selected) == 0 {
		return samples, nil
	}

	result, err := s.RunQuery(ctx, Query{
		Collection: name,
		SQL:        "SELECT " + strings.Join(columns, ", "),
		RowLimit:   1,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Rows) == 0 {
		return samples, nil
	}
	row := result.Rows[0]
	for i, field := range selected {
		if i >= len(row) {
			break
		}
		if values, ok := row[i].([]any); ok {
			samples[field] = values
		}
	}
	return samples, nil
}

func (s *Store) ListCollections(ctx context.Context) ([]catalog.Collection, error) {
	collections, err := s.Catalog.ListCollections(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: list collections: %v", dataset.ErrStore, err)
	}
	return collections, nil
}

func (s *Store) HealthCheck(ctx context.Context) error {
	return s.Catalog.HealthCheck(ctx)
}

// IsReadOnly accepts statements that start with SELECT or WITH.
func IsReadOnly(sqlText string) bool {
	normalized := strings.ToLower(strings.TrimSpace(sqlText))
	if normalized == "" {
		return false
	}
	return strings.HasPrefix(normalized, "select") || strings.HasPrefix(normalized, "with")
}

func (s *Store) newID() string {
	if s.NewID != nil {
		return s.NewID()
	}
	return uuid.NewString()
}

func (s *Store) logger() *slog.Logger {
	return observability.OrDiscard(s.Logger)
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}
