package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/datainsight/datainsight/internal/catalog"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

// CreateCollection is idempotent; the boolean reports whether a new row was created.
func (r *Repository) CreateCollection(ctx context.Context, name string) (catalog.Collection, bool, error) {
	query := `
INSERT INTO collection (name)
VALUES ($1)
ON CONFLICT (name) DO NOTHING
RETURNING created_at`
	var createdAt time.Time
	err := r.db.QueryRowContext(ctx, query, name).Scan(&createdAt)
	if err == nil {
		return catalog.Collection{Name: name, CreatedAt: createdAt, UpdatedAt: createdAt}, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return catalog.Collection{}, false, fmt.Errorf("create collection: %w", err)
	}
	existing, err := r.GetCollection(ctx, name)
	if err != nil {
		return catalog.Collection{}, false, err
	}
	return existing, false, nil
}

// DeleteEmptyCollection removes a collection with no registered objects. It reports
// false when the collection is missing or already holds data.
func (r *Repository) DeleteEmptyCollection(ctx context.Context, name string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM collection
WHERE name = $1 AND object_count = 0`, name)
	if err != nil {
		return false, fmt.Errorf("delete empty collection: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete empty collection: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) GetCollection(ctx context.Context, name string) (catalog.Collection, error) {
	query := `
SELECT name, row_count, object_count, created_at, updated_at
FROM collection
WHERE name = $1`

	var collection catalog.Collection
	if err := r.db.QueryRowContext(ctx, query, name).Scan(
		&collection.Name,
		&collection.RowCount,
		&collection.ObjectCount,
		&collection.CreatedAt,
		&collection.UpdatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Collection{}, catalog.ErrNotFound
		}
		return catalog.Collection{}, fmt.Errorf("get collection: %w", err)
	}
	return collection, nil
}

func (r *Repository) ListCollections(ctx context.Context) ([]catalog.Collection, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT name, row_count, object_count, created_at, updated_at
FROM collection
ORDER BY name ASC`)
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	collections := make([]catalog.Collection, 0)
	for rows.Next() {
		var collection catalog.Collection
		if err := rows.Scan(
			&collection.Name,
			&collection.RowCount,
			&collection.ObjectCount,
			&collection.CreatedAt,
			&collection.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan collection row: %w", err)
		}
		collections = append(collections, collection)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection rows: %w", err)
	}
	return collections, nil
}

// RegisterObject records an imported batch and bumps the collection counters atomically.
func (r *Repository) RegisterObject(ctx context.Context, in catalog.RegisterObjectInput) (catalog.CollectionObject, error) {
	if in.Collection == "" {
		return catalog.CollectionObject{}, fmt.Errorf("collection is required")
	}
	if in.Path == "" {
		return catalog.CollectionObject{}, fmt.Errorf("object path is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return catalog.CollectionObject{}, fmt.Errorf("begin register tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	result, err := tx.ExecContext(ctx, `
UPDATE collection
SET row_count = row_count + $2, object_count = object_count + 1, updated_at = NOW()
WHERE name = $1`, in.Collection, in.RecordCount)
	if err != nil {
		return catalog.CollectionObject{}, fmt.Errorf("update collection counters: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return catalog.CollectionObject{}, fmt.Errorf("update collection counters: %w", err)
	}
	if affected == 0 {
		return catalog.CollectionObject{}, catalog.ErrNotFound
	}

	object := catalog.CollectionObject{
		Collection:    in.Collection,
		Path:          in.Path,
		RecordCount:   in.RecordCount,
		FileSizeBytes: in.FileSizeBytes,
	}
	if err := tx.QueryRowContext(ctx, `
INSERT INTO collection_object (collection, path, record_count, file_size_bytes)
VALUES ($1, $2, $3, $4)
RETURNING object_id, created_at`, in.Collection, in.Path, in.RecordCount, in.FileSizeBytes).Scan(&object.ObjectID, &object.CreatedAt); err != nil {
		return catalog.CollectionObject{}, fmt.Errorf("insert collection object: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return catalog.CollectionObject{}, fmt.Errorf("commit register tx: %w", err)
	}
	return object, nil
}

// ListObjects returns the objects of a collection in import order.
func (r *Repository) ListObjects(ctx context.Context, collection string) ([]catalog.CollectionObject, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT object_id, collection, path, record_count, file_size_bytes, created_at
FROM collection_object
WHERE collection = $1
ORDER BY object_id ASC`, collection)
	if err != nil {
		return nil, fmt.Errorf("list collection objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	objects := make([]catalog.CollectionObject, 0)
	for rows.Next() {
		var object catalog.CollectionObject
		if err := rows.Scan(
			&object.ObjectID,
			&object.Collection,
			&object.Path,
			&object.RecordCount,
			&object.FileSizeBytes,
			&object.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan collection object row: %w", err)
		}
		objects = append(objects, object)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate collection object rows: %w", err)
	}
	return objects, nil
}

func (r *Repository) InsertSchemaDescription(ctx context.Context, in catalog.InsertSchemaDescriptionInput) (catalog.SchemaDescription, error) {
	if len(in.DescriptionsJSON) == 0 {
		in.DescriptionsJSON = []byte("[]")
	}
	query := `
INSERT INTO schema_description (collection, company, file_summary, descriptions_json)
VALUES ($1, $2, $3, $4::jsonb)
RETURNING description_id, created_at`

	description := catalog.SchemaDescription{
		Collection:       in.Collection,
		Company:          in.Company,
		FileSummary:      in.FileSummary,
		DescriptionsJSON: in.DescriptionsJSON,
	}
	if err := r.db.QueryRowContext(ctx, query, in.Collection, in.Company, in.FileSummary, string(in.DescriptionsJSON)).Scan(
		&description.DescriptionID,
		&description.CreatedAt,
	); err != nil {
		return catalog.SchemaDescription{}, fmt.Errorf("insert schema description: %w", err)
	}
	return description, nil
}

// GetLatestSchemaDescription returns the most recently created description; older rows
// are kept as history.
func (r *Repository) GetLatestSchemaDescription(ctx context.Context, collection string) (catalog.SchemaDescription, error) {
	query := `
SELECT description_id, collection, company, file_summary, descriptions_json, created_at
FROM schema_description
WHERE collection = $1
ORDER BY created_at DESC, description_id DESC
LIMIT 1`

	var description catalog.SchemaDescription
	var descriptionsJSON string
	if err := r.db.QueryRowContext(ctx, query, collection).Scan(
		&description.DescriptionID,
		&description.Collection,
		&description.Company,
		&description.FileSummary,
		&descriptionsJSON,
		&description.CreatedAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.SchemaDescription{}, catalog.ErrNotFound
		}
		return catalog.SchemaDescription{}, fmt.Errorf("get latest schema description: %w", err)
	}
	description.DescriptionsJSON = []byte(descriptionsJSON)
	return description, nil
}
