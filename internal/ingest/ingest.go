// Package ingest streams a delimited-text source into a collection in fixed
// size batches.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/datainsight/datainsight/internal/convert"
	"github.com/datainsight/datainsight/internal/csvsource"
	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/docstore"
	"github.com/datainsight/datainsight/internal/inference"
	"github.com/datainsight/datainsight/internal/observability"
)

const DefaultBatchSize = 50000

type Store interface {
	Exists(ctx context.Context, name string) (bool, error)
	Create(ctx context.Context, name string) error
	DropEmpty(ctx context.Context, name string) error
	BulkImport(ctx context.Context, name string, rows []dataset.Row) (docstore.ImportResult, error)
}

type Result struct {
	DatasetName    string `json:"dataset_name"`
	CollectionName string `json:"collection_name"`
	TotalRows      int64  `json:"total_rows"`
}

// AbortError reports a run that stopped after it started importing. Batches
// imported before the failure stay in the collection.
type AbortError struct {
	Imported int64
	Err      error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("ingestion aborted after %d imported rows: %v", e.Imported, e.Err)
}

func (e *AbortError) Unwrap() error {
	return e.Err
}

type Ingestor struct {
	Store       Store
	Classifier  inference.Classifier
	BatchSize   int
	EmptyAsNull bool
	Logger      *slog.Logger
}

func New(store Store, classifier inference.Classifier, batchSize int, logger *slog.Logger) *Ingestor {
	return &Ingestor{
		Store:      store,
		Classifier: classifier,
		BatchSize:  batchSize,
		Logger:     observability.OrDiscard(logger),
	}
}

// Ingest imports every row of source into the collection derived from
// datasetName. A collection that already exists is a conflict; that check runs
// before the source is opened. A run that fails before its first batch is imported
// drops the collection again so the same dataset can be retried.
func (i *Ingestor) Ingest(ctx context.Context, source Source, datasetName string) (result Result, err error) {
	logger := observability.OrDiscard(i.Logger)
	defer func() {
		if releaseErr := source.Release(context.WithoutCancel(ctx)); releaseErr != nil {
			logger.WarnContext(ctx, "release ingest source failed", slog.String("source", source.Name()), slog.Any("error", releaseErr))
		}
		observability.ObserveIngestRun(err)
	}()

	datasetName = strings.TrimSpace(datasetName)
	if datasetName == "" {
		return Result{}, fmt.Errorf("%w: dataset name is required", dataset.ErrValidation)
	}
	if i.Store == nil || i.Classifier == nil {
		return Result{}, fmt.Errorf("%w: ingestor is not configured", dataset.ErrValidation)
	}
	collection := dataset.CollectionName(datasetName)
	if err := dataset.ValidateCollectionName(collection); err != nil {
		return Result{}, err
	}

	exists, err := i.Store.Exists(ctx, collection)
	if err != nil {
		return Result{}, err
	}
	if exists {
		return Result{}, fmt.Errorf("%w: collection %q", dataset.ErrConflict, collection)
	}
	if err := i.Store.Create(ctx, collection); err != nil {
		return Result{}, err
	}

	body, err := source.Open(ctx)
	if err != nil {
		i.dropEmpty(ctx, collection, logger)
		return Result{}, fmt.Errorf("%w: %v", dataset.ErrIO, err)
	}
	defer func() { _ = body.Close() }()

	r := &run{
		ingestor:   i,
		logger:     logger.With(slog.String("collection", collection)),
		reader:     csvsource.NewReader(body, csvsource.Options{EmptyAsNull: i.EmptyAsNull}),
		collection: collection,
		batchSize:  i.batchSize(),
	}
	if err := r.execute(ctx); err != nil {
		if r.imported == 0 {
			i.dropEmpty(ctx, collection, logger)
		}
		return Result{}, err
	}

	logger.InfoContext(ctx, "ingestion complete",
		slog.String("dataset", datasetName),
		slog.String("collection", collection),
		slog.Int64("rows", r.imported),
		slog.Int("batches", r.batches),
	)
	return Result{DatasetName: datasetName, CollectionName: collection, TotalRows: r.imported}, nil
}

func (i *Ingestor) dropEmpty(ctx context.Context, collection string, logger *slog.Logger) {
	if err := i.Store.DropEmpty(context.WithoutCancel(ctx), collection); err != nil {
		logger.WarnContext(ctx, "drop empty collection failed", slog.String("collection", collection), slog.Any("error", err))
	}
}

func (i *Ingestor) batchSize() int {
	if i.BatchSize > 0 {
		return i.BatchSize
	}
	return DefaultBatchSize
}

type state int

const (
	stateReading state = iota
	stateFlushing
	stateInferring
	stateConverting
	stateImporting
	stateDraining
	stateDone
	stateAborted
)

func (s state) String() string {
	switch s {
	case stateReading:
		return "reading"
	case stateFlushing:
		return "flushing"
	case stateInferring:
		return "inferring"
	case stateConverting:
		return "converting"
	case stateImporting:
		return "importing"
	case stateDraining:
		return "draining"
	case stateDone:
		return "done"
	case stateAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// run is the state of one ingestion. Reading only happens in stateReading, so
// the source is never consumed while a batch is being converted or imported.
type run struct {
	ingestor   *Ingestor
	logger     *slog.Logger
	reader     *csvsource.Reader
	collection string
	batchSize  int

	state     state
	batch     []dataset.Row
	converted []dataset.Row
	typeMap   dataset.FieldTypeMap
	exhausted bool
	imported  int64
	batches   int
}

func (r *run) execute(ctx context.Context) error {
	r.batch = make([]dataset.Row, 0, min(r.batchSize, 1024))
	for {
		var err error
		switch r.state {
		case stateReading:
			err = r.read(ctx)
		case stateFlushing:
			if r.typeMap == nil {
				r.transition(ctx, stateInferring)
			} else {
				r.transition(ctx, stateConverting)
			}
		case stateInferring:
			err = r.infer(ctx)
		case stateConverting:
			r.converted = convert.Rows(r.batch, r.typeMap)
			r.transition(ctx, stateImporting)
		case stateImporting:
			err = r.importBatch(ctx)
		case stateDraining:
			if len(r.batch) > 0 {
				r.transition(ctx, stateFlushing)
			} else {
				r.transition(ctx, stateDone)
			}
		case stateDone:
			return nil
		case stateAborted:
			return fmt.Errorf("ingestion run already aborted")
		}
		if err != nil {
			r.transition(ctx, stateAborted)
			if r.imported > 0 {
				return &AbortError{Imported: r.imported, Err: err}
			}
			return err
		}
	}
}

func (r *run) read(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	row, err := r.reader.Next()
	if err != nil {
		if errors.Is(err, io.EOF) {
			r.exhausted = true
			r.transition(ctx, stateDraining)
			return nil
		}
		return fmt.Errorf("%w: %v", dataset.ErrIO, err)
	}
	r.batch = append(r.batch, row)
	if len(r.batch) >= r.batchSize {
		r.transition(ctx, stateFlushing)
	}
	return nil
}

func (r *run) infer(ctx context.Context) error {
	observability.IncrementInferenceCalls()
	typeMap, err := r.ingestor.Classifier.Classify(ctx, r.batch)
	if err != nil {
		if errors.Is(err, dataset.ErrInference) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %v", dataset.ErrInference, err)
	}
	if typeMap == nil {
		typeMap = dataset.FieldTypeMap{}
	}
	r.typeMap = typeMap
	r.logger.DebugContext(ctx, "field types inferred", slog.Int("fields", len(typeMap)), slog.Int("sample_rows", len(r.batch)))
	r.transition(ctx, stateConverting)
	return nil
}

func (r *run) importBatch(ctx context.Context) error {
	imported, err := r.ingestor.Store.BulkImport(ctx, r.collection, r.converted)
	if err != nil {
		if errors.Is(err, dataset.ErrStore) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %v", dataset.ErrStore, err)
	}
	r.imported += imported.Count
	r.batches++
	r.logger.InfoContext(ctx, "batch imported",
		slog.Int("batch", r.batches),
		slog.Int64("rows", imported.Count),
		slog.Int64("total_rows", r.imported),
	)

	clear(r.batch)
	r.batch = r.batch[:0]
	r.converted = nil
	if r.exhausted {
		r.transition(ctx, stateDone)
	} else {
		r.transition(ctx, stateReading)
	}
	return nil
}

func (r *run) transition(ctx context.Context, next state) {
	r.logger.DebugContext(ctx, "ingest state", slog.String("from", r.state.String()), slog.String("to", next.String()))
	r.state = next
}
