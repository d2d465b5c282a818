// Package maintenance checks that every batch object recorded in the catalog is
// still present in object storage with the recorded size, and, when the store can
// list, that no unregistered objects linger under a collection prefix.
package maintenance

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datainsight/datainsight/internal/catalog"
	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/observability"
	"github.com/datainsight/datainsight/internal/storage"
)

const maxIssueSamples = 20

type Catalog interface {
	GetCollection(ctx context.Context, name string) (catalog.Collection, error)
	ListCollections(ctx context.Context) ([]catalog.Collection, error)
	ListObjects(ctx context.Context, collection string) ([]catalog.CollectionObject, error)
}

type Service struct {
	Catalog     Catalog
	ObjectStore storage.ObjectStore
	Logger      *slog.Logger
}

type IntegritySummary struct {
	CollectionsScanned  int      `json:"collections_scanned"`
	ObjectsChecked      int      `json:"objects_checked"`
	MissingObjects      int      `json:"missing_objects"`
	SizeMismatchObjects int      `json:"size_mismatch_objects"`
	RowCountMismatches  int      `json:"row_count_mismatches"`
	OrphanObjects       int      `json:"orphan_objects"`
	OperationalFailures int      `json:"operational_failures"`
	Issues              []string `json:"issues"`
}

func (s IntegritySummary) Healthy() bool {
	return s.MissingObjects == 0 && s.SizeMismatchObjects == 0 && s.RowCountMismatches == 0 &&
		s.OrphanObjects == 0 && s.OperationalFailures == 0
}

// CheckIntegrity verifies one collection, or all of them when collection is empty.
// Problems found in storage are reported in the summary; only failures to read the
// catalog itself are returned as errors.
func (s *Service) CheckIntegrity(ctx context.Context, collection string) (IntegritySummary, error) {
	if s.Catalog == nil {
		return IntegritySummary{}, fmt.Errorf("catalog is required")
	}
	if s.ObjectStore == nil {
		return IntegritySummary{}, fmt.Errorf("object store is required")
	}

	targets, err := s.targets(ctx, strings.TrimSpace(collection))
	if err != nil {
		return IntegritySummary{}, err
	}
	summary := IntegritySummary{CollectionsScanned: len(targets), Issues: []string{}}
	issueCount := 0
	addIssue := func(message string) {
		issueCount++
		if len(summary.Issues) < maxIssueSamples {
			summary.Issues = append(summary.Issues, message)
		}
	}

	for _, target := range targets {
		objects, err := s.Catalog.ListObjects(ctx, target.Name)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("collection %s list objects: %v", target.Name, err))
			continue
		}

		var recordedRows int64
		registered := make(map[string]struct{}, len(objects))
		for _, object := range objects {
			recordedRows += object.RecordCount
			registered[object.Path] = struct{}{}
			summary.ObjectsChecked++

			info, err := s.ObjectStore.Stat(ctx, object.Path)
			if err != nil {
				if errors.Is(err, storage.ErrObjectNotFound) {
					summary.MissingObjects++
					addIssue(fmt.Sprintf("collection %s missing object %s (object_id=%d)", target.Name, object.Path, object.ObjectID))
					continue
				}
				if ctx.Err() != nil {
					return summary, ctx.Err()
				}
				summary.OperationalFailures++
				addIssue(fmt.Sprintf("collection %s stat object %s: %v", target.Name, object.Path, err))
				continue
			}
			if info.Size != object.FileSizeBytes {
				summary.SizeMismatchObjects++
				addIssue(fmt.Sprintf("collection %s size mismatch for %s (expected=%d actual=%d)", target.Name, object.Path, object.FileSizeBytes, info.Size))
			}
		}
		if recordedRows != target.RowCount {
			summary.RowCountMismatches++
			addIssue(fmt.Sprintf("collection %s row count %d does not match object total %d", target.Name, target.RowCount, recordedRows))
		}

		lister, ok := s.ObjectStore.(storage.Lister)
		if !ok {
			continue
		}
		prefix, err := storage.CollectionPrefix(target.Name)
		if err != nil {
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("collection %s prefix: %v", target.Name, err))
			continue
		}
		listed, err := lister.List(ctx, prefix)
		if err != nil {
			if ctx.Err() != nil {
				return summary, ctx.Err()
			}
			summary.OperationalFailures++
			addIssue(fmt.Sprintf("collection %s list objects: %v", target.Name, err))
			continue
		}
		for _, info := range listed {
			if _, ok := registered[info.Key]; !ok {
				summary.OrphanObjects++
				addIssue(fmt.Sprintf("collection %s orphan object %s", target.Name, info.Key))
			}
		}
	}

	if extra := issueCount - len(summary.Issues); extra > 0 {
		summary.Issues = append(summary.Issues, fmt.Sprintf("... plus %d more", extra))
	}
	observeIntegrity(summary)
	if !summary.Healthy() {
		observability.OrDiscard(s.Logger).WarnContext(ctx, "integrity check found issues",
			slog.Int("issues", issueCount),
			slog.Int("collections", summary.CollectionsScanned),
		)
	}
	return summary, nil
}

func (s *Service) targets(ctx context.Context, collection string) ([]catalog.Collection, error) {
	if collection == "" {
		collections, err := s.Catalog.ListCollections(ctx)
		if err != nil {
			return nil, fmt.Errorf("%w: list collections: %v", dataset.ErrStore, err)
		}
		return collections, nil
	}
	if err := dataset.ValidateCollectionName(collection); err != nil {
		return nil, err
	}
	found, err := s.Catalog.GetCollection(ctx, collection)
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			return nil, fmt.Errorf("%w: collection %q does not exist", dataset.ErrValidation, collection)
		}
		return nil, fmt.Errorf("%w: get collection: %v", dataset.ErrStore, err)
	}
	return []catalog.Collection{found}, nil
}
