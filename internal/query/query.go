package query

import (
	"context"
	"errors"
	"time"
)

// ErrSetup marks failures that happen before the statement runs: staging objects
// from the store, the scratch directory, or opening the engine. Statement errors
// are returned without it.
var ErrSetup = errors.New("query setup failed")

// Object is one Parquet object that belongs to a collection.
type Object struct {
	Path      string
	SizeBytes int64
}

// Collection is exposed to the query as a view of the same name over its objects.
type Collection struct {
	Name    string
	Objects []Object
}

type Request struct {
	SQL         string
	RowLimit    int
	Collections []Collection
}

type Result struct {
	Columns        []string
	Rows           [][]any
	ScannedObjects int
	ScannedBytes   int64
	Duration       time.Duration
}

// Records returns the rows keyed by column name.
func (r Result) Records() []map[string]any {
	records := make([]map[string]any, 0, len(r.Rows))
	for _, row := range r.Rows {
		record := make(map[string]any, len(r.Columns))
		for i, column := range r.Columns {
			if i < len(row) {
				record[column] = row[i]
			}
		}
		records = append(records, record)
	}
	return records
}

type Engine interface {
	Execute(ctx context.Context, request Request) (Result, error)
}
