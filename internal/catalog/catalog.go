package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("catalog: not found")

type Repository interface {
	HealthCheck(ctx context.Context) error
	CreateCollection(ctx context.Context, name string) (Collection, bool, error)
	DeleteEmptyCollection(ctx context.Context, name string) (bool, error)
	GetCollection(ctx context.Context, name string) (Collection, error)
	ListCollections(ctx context.Context) ([]Collection, error)
	RegisterObject(ctx context.Context, in RegisterObjectInput) (CollectionObject, error)
	ListObjects(ctx context.Context, collection string) ([]CollectionObject, error)
	InsertSchemaDescription(ctx context.Context, in InsertSchemaDescriptionInput) (SchemaDescription, error)
	GetLatestSchemaDescription(ctx context.Context, collection string) (SchemaDescription, error)
}

type Collection struct {
	Name        string
	RowCount    int64
	ObjectCount int
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CollectionObject is one imported batch stored as a Parquet object.
type CollectionObject struct {
	ObjectID      int64
	Collection    string
	Path          string
	RecordCount   int64
	FileSizeBytes int64
	CreatedAt     time.Time
}

type RegisterObjectInput struct {
	Collection    string
	Path          string
	RecordCount   int64
	FileSizeBytes int64
}

type SchemaDescription struct {
	DescriptionID    int64
	Collection       string
	Company          string
	FileSummary      string
	DescriptionsJSON []byte
	CreatedAt        time.Time
}

type InsertSchemaDescriptionInput struct {
	Collection       string
	Company          string
	FileSummary      string
	DescriptionsJSON []byte
}
