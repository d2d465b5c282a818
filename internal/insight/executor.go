// Package insight runs the translate, sanitize and execute pipeline behind a
// natural-language question.
package insight

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/docstore"
	"github.com/datainsight/datainsight/internal/observability"
	"github.com/datainsight/datainsight/internal/query"
)

type Runner interface {
	RunQuery(ctx context.Context, q docstore.Query) (query.Result, error)
}

// Executor runs already sanitized queries against one collection.
type Executor struct {
	Store    Runner
	RowLimit int
	Logger   *slog.Logger
}

// Execute fails with dataset.ErrExecution when the store rejects the query.
// Store transport failures keep their own classification.
func (e *Executor) Execute(ctx context.Context, collection, sanitizedQuery string) (result query.Result, err error) {
	defer func() { observability.ObserveQueryExecution(err) }()

	started := time.Now()
	result, err = e.Store.RunQuery(ctx, docstore.Query{
		Collection: collection,
		SQL:        sanitizedQuery,
		RowLimit:   e.RowLimit,
	})
	if err != nil {
		if ctx.Err() != nil || errors.Is(err, dataset.ErrExecution) || errors.Is(err, dataset.ErrStore) {
			return query.Result{}, err
		}
		return query.Result{}, fmt.Errorf("%w: %v", dataset.ErrExecution, err)
	}
	observability.OrDiscard(e.Logger).DebugContext(ctx, "query executed",
		slog.String("collection", collection),
		slog.Int("rows", len(result.Rows)),
		slog.Duration("elapsed", time.Since(started)),
	)
	return result, nil
}
