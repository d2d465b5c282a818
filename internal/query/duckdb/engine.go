package duckdb

import (
	"context"
	"database/sql"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/datainsight/datainsight/internal/query"
	"github.com/datainsight/datainsight/internal/storage"
)

type Engine struct {
	Store   storage.ObjectStore
	TempDir string
}

func NewEngine(store storage.ObjectStore) *Engine {
	return &Engine{Store: store}
}

func (e *Engine) Execute(ctx context.Context, request query.Request) (query.Result, error) {
	if strings.TrimSpace(request.SQL) == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.Store == nil {
		return query.Result{}, fmt.Errorf("%w: object store is required", query.ErrSetup)
	}

	start := time.Now()
	workDir, err := os.MkdirTemp(e.TempDir, "datainsight-query-")
	if err != nil {
		return query.Result{}, fmt.Errorf("%w: create query temp dir: %v", query.ErrSetup, err)
	}
	defer func() { _ = os.RemoveAll(workDir) }()

	localPaths := make(map[string][]string, len(request.Collections))
	scannedObjects := 0
	var scannedBytes int64

	for _, collection := range request.Collections {
		if _, ok := localPaths[collection.Name]; !ok {
			localPaths[collection.Name] = []string{}
		}
		for index, object := range collection.Objects {
			localPath := filepath.Join(workDir, fmt.Sprintf("%s_%d.parquet", sanitizeFileComponent(collection.Name), index))
			if err := e.download(ctx, object.Path, localPath); err != nil {
				return query.Result{}, fmt.Errorf("%w: %w", query.ErrSetup, err)
			}
			localPaths[collection.Name] = append(localPaths[collection.Name], localPath)
			scannedObjects++
			scannedBytes += object.SizeBytes
		}
	}

	db, err := sql.Open("duckdb", "")
	if err != nil {
		return query.Result{}, fmt.Errorf("%w: open duckdb: %v", query.ErrSetup, err)
	}
	defer func() { _ = db.Close() }()

	for name, paths := range localPaths {
		if _, err := db.ExecContext(ctx, viewSQL(name, paths)); err != nil {
			return query.Result{}, fmt.Errorf("%w: create view for collection %q: %v", query.ErrSetup, name, err)
		}
	}

	sqlText := stripTrailingSemicolons(request.SQL)
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if request.RowLimit > 0 {
		sqlText = fmt.Sprintf("SELECT * FROM (%s) AS q LIMIT %d", sqlText, request.RowLimit)
	}

	rows, err := db.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, fmt.Errorf("execute query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{
		Columns:        columns,
		Rows:           resultRows,
		ScannedObjects: scannedObjects,
		ScannedBytes:   scannedBytes,
		Duration:       time.Since(start),
	}, nil
}

func (e *Engine) download(ctx context.Context, objectPath, localPath string) error {
	reader, err := e.Store.Get(ctx, objectPath)
	if err != nil {
		return fmt.Errorf("get object %q: %w", objectPath, err)
	}
	if err := writeFile(localPath, reader); err != nil {
		_ = reader.Close()
		return fmt.Errorf("write local parquet file %q: %w", localPath, err)
	}
	if err := reader.Close(); err != nil {
		return fmt.Errorf("close object %q: %w", objectPath, err)
	}
	return nil
}

// viewSQL unions batches by column name since every batch carries its own schema.
// A collection without objects still resolves, to an empty relation.
func viewSQL(name string, paths []string) string {
	if len(paths) == 0 {
		return fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT NULL AS _empty WHERE false`, quoteIdent(name))
	}
	return fmt.Sprintf(`CREATE OR REPLACE VIEW %s AS SELECT * FROM read_parquet(%s, union_by_name = true)`, quoteIdent(name), quoteStringArray(paths))
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		case *big.Int:
			if typed.IsInt64() {
				normalized[i] = typed.Int64()
			} else {
				normalized[i] = typed.String()
			}
		case time.Time:
			normalized[i] = typed.UTC()
		case []any:
			normalized[i] = normalizeValues(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func quoteStringArray(values []string) string {
	quoted := make([]string, 0, len(values))
	for _, value := range values {
		quoted = append(quoted, `'`+strings.ReplaceAll(value, `'`, `''`)+`'`)
	}
	return "[" + strings.Join(quoted, ",") + "]"
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "collection"
	}
	return value
}

func stripTrailingSemicolons(sqlText string) string {
	trimmed := strings.TrimSpace(sqlText)
	for strings.HasSuffix(trimmed, ";") {
		trimmed = strings.TrimSpace(strings.TrimSuffix(trimmed, ";"))
	}
	return trimmed
}
