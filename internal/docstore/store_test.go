package docstore

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/datainsight/datainsight/internal/catalog"
	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/query/duckdb"
	"github.com/datainsight/datainsight/internal/storage"
)

func TestBulkImportThenQueryRoundTrip(t *testing.T) {
	store, repo, objects := newTestStore()
	ctx := context.Background()

	if err := store.Create(ctx, "sales_csv"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	result, err := store.BulkImport(ctx, "sales_csv", []dataset.Row{
		{{Name: "region", Value: "north"}, {Name: "amount", Value: int64(120)}, {Name: "paid", Value: true}},
		{{Name: "region", Value: "south"}, {Name: "amount", Value: int64(80)}, {Name: "paid", Value: false}},
	})
	if err != nil {
		t.Fatalf("BulkImport() error = %v", err)
	}
	if result.Count != 2 {
		t.Fatalf("Count = %d", result.Count)
	}
	if _, ok := objects.objects[result.ObjectPath]; !ok {
		t.Fatalf("object %q was not stored", result.ObjectPath)
	}
	if repo.collections["sales_csv"].RowCount != 2 {
		t.Fatalf("RowCount = %d", repo.collections["sales_csv"].RowCount)
	}

	got, err := store.RunQuery(ctx, Query{Collection: "sales_csv", SQL: `SELECT region FROM "sales_csv" WHERE amount > 100`})
	if err != nil {
		t.Fatalf("RunQuery() error = %v", err)
	}
	if len(got.Rows) != 1 || got.Rows[0][0] != "north" {
		t.Fatalf("rows = %+v", got.Rows)
	}
}

func TestCreateIsIdempotentAndExistsReportsIt(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()

	exists, err := store.Exists(ctx, "sales_csv")
	if err != nil || exists {
		t.Fatalf("Exists() = %v, %v before create", exists, err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Create(ctx, "sales_csv"); err != nil {
			t.Fatalf("Create() call %d error = %v", i, err)
		}
	}
	exists, err = store.Exists(ctx, "sales_csv")
	if err != nil || !exists {
		t.Fatalf("Exists() = %v, %v after create", exists, err)
	}
}

func TestDropEmptyKeepsCollectionsWithData(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()
	if err := store.Create(ctx, "empty_csv"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	mustImport(t, store, "full_csv", []dataset.Row{{{Name: "amount", Value: int64(1)}}})

	for _, name := range []string{"empty_csv", "full_csv", "missing_csv"} {
		if err := store.DropEmpty(ctx, name); err != nil {
			t.Fatalf("DropEmpty(%s) error = %v", name, err)
		}
	}
	if exists, _ := store.Exists(ctx, "empty_csv"); exists {
		t.Fatal("empty collection still exists")
	}
	if exists, _ := store.Exists(ctx, "full_csv"); !exists {
		t.Fatal("collection with data was dropped")
	}
}

func TestBulkImportDeletesObjectWhenRegistrationFails(t *testing.T) {
	store, repo, objects := newTestStore()
	repo.registerErr = errors.New("catalog down")

	_, err := store.BulkImport(context.Background(), "sales_csv", []dataset.Row{{{Name: "a", Value: "x"}}})
	if !errors.Is(err, dataset.ErrStore) {
		t.Fatalf("error = %v, want ErrStore", err)
	}
	if len(objects.objects) != 0 {
		t.Fatalf("expected orphaned object to be deleted, have %d", len(objects.objects))
	}
}

func TestBulkImportSkipsEmptyBatch(t *testing.T) {
	store, _, objects := newTestStore()
	result, err := store.BulkImport(context.Background(), "sales_csv", nil)
	if err != nil {
		t.Fatalf("BulkImport() error = %v", err)
	}
	if result.Count != 0 || len(objects.objects) != 0 {
		t.Fatalf("result = %+v objects = %d", result, len(objects.objects))
	}
}

func TestRunQueryRejectsWritesAndUnknownCollections(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()

	_, err := store.RunQuery(ctx, Query{Collection: "sales_csv", SQL: `DROP TABLE "sales_csv"`})
	if !errors.Is(err, dataset.ErrExecution) {
		t.Fatalf("write error = %v, want ErrExecution", err)
	}
	_, err = store.RunQuery(ctx, Query{Collection: "missing_csv", SQL: `SELECT * FROM "missing_csv"`})
	if !errors.Is(err, dataset.ErrExecution) {
		t.Fatalf("missing collection error = %v, want ErrExecution", err)
	}
}

func TestRunQueryReportsMissingFieldAsExecutionError(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()
	mustImport(t, store, "sales_csv", []dataset.Row{{{Name: "amount", Value: int64(1)}}})

	_, err := store.RunQuery(ctx, Query{Collection: "sales_csv", SQL: `SELECT nope FROM "sales_csv"`})
	if !errors.Is(err, dataset.ErrExecution) {
		t.Fatalf("error = %v, want ErrExecution", err)
	}
}

func TestRunQueryReportsMissingObjectAsStoreError(t *testing.T) {
	store, repo, objects := newTestStore()
	ctx := context.Background()
	mustImport(t, store, "sales_csv", []dataset.Row{{{Name: "amount", Value: int64(1)}}})

	for _, object := range repo.objects["sales_csv"] {
		if err := objects.Delete(ctx, object.Path); err != nil {
			t.Fatalf("Delete() error = %v", err)
		}
	}

	_, err := store.RunQuery(ctx, Query{Collection: "sales_csv", SQL: `SELECT * FROM "sales_csv"`})
	if !errors.Is(err, dataset.ErrStore) {
		t.Fatalf("error = %v, want ErrStore", err)
	}
	if errors.Is(err, dataset.ErrExecution) {
		t.Fatalf("error = %v, store outage reported as execution error", err)
	}
}

func TestSampleDocumentsAttributesAndFields(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()
	mustImport(t, store, "people_csv", []dataset.Row{
		{{Name: "name", Value: "ada"}, {Name: "age", Value: int64(36)}},
		{{Name: "name", Value: "alan"}, {Name: "age", Value: nil}},
		{{Name: "name", Value: "grace"}, {Name: "age", Value: int64(85)}},
	})

	documents, err := store.SampleDocuments(ctx, "people_csv", 2)
	if err != nil {
		t.Fatalf("SampleDocuments() error = %v", err)
	}
	if len(documents) != 2 {
		t.Fatalf("documents = %+v", documents)
	}

	attributes, err := store.ListAttributes(ctx, "people_csv")
	if err != nil {
		t.Fatalf("ListAttributes() error = %v", err)
	}
	sort.Strings(attributes)
	if len(attributes) != 2 || attributes[0] != "age" || attributes[1] != "name" {
		t.Fatalf("attributes = %v", attributes)
	}

	samples, err := store.SampleFields(ctx, "people_csv", []string{"age", "name", "age"}, 10)
	if err != nil {
		t.Fatalf("SampleFields() error = %v", err)
	}
	if len(samples) != 2 || len(samples["name"]) != 3 {
		t.Fatalf("samples = %v", samples)
	}
	if len(samples["age"]) != 2 {
		t.Fatalf("age samples = %v, want the two non-null ages", samples["age"])
	}
	for _, value := range samples["age"] {
		if _, ok := value.(int64); !ok {
			t.Fatalf("age sample %#v lost its type", value)
		}
	}

	limited, err := store.SampleFields(ctx, "people_csv", []string{"name"}, 1)
	if err != nil {
		t.Fatalf("SampleFields(limit 1) error = %v", err)
	}
	if len(limited["name"]) != 1 {
		t.Fatalf("limited samples = %v", limited)
	}
}

func TestSampleFieldsStagesObjectsOnce(t *testing.T) {
	store, _, objects := newTestStore()
	ctx := context.Background()
	mustImport(t, store, "wide_csv", []dataset.Row{{
		{Name: "a", Value: int64(1)}, {Name: "b", Value: "x"}, {Name: "c", Value: 2.5}, {Name: "d", Value: nil},
	}})
	mustImport(t, store, "wide_csv", []dataset.Row{{{Name: "a", Value: int64(2)}}})

	objects.resetGets()
	samples, err := store.SampleFields(ctx, "wide_csv", []string{"a", "b", "c", "d"}, 10)
	if err != nil {
		t.Fatalf("SampleFields() error = %v", err)
	}
	if got := objects.getCount(); got != 2 {
		t.Fatalf("object reads = %d, want one per batch object", got)
	}
	if len(samples["a"]) != 2 || len(samples["d"]) != 0 {
		t.Fatalf("samples = %v", samples)
	}
}

func TestListAttributesOfEmptyCollection(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()
	if err := store.Create(ctx, "empty_csv"); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	attributes, err := store.ListAttributes(ctx, "empty_csv")
	if err != nil {
		t.Fatalf("ListAttributes() error = %v", err)
	}
	if len(attributes) != 0 {
		t.Fatalf("attributes = %v", attributes)
	}
}

func TestBatchesWithDifferentKindsStayQueryable(t *testing.T) {
	store, _, _ := newTestStore()
	ctx := context.Background()
	mustImport(t, store, "mixed_csv", []dataset.Row{
		{{Name: "amount", Value: int64(1)}},
		{{Name: "amount", Value: 2.5}},
	})
	mustImport(t, store, "mixed_csv", []dataset.Row{
		{{Name: "amount", Value: int64(4)}},
	})

	result, err := store.RunQuery(ctx, Query{Collection: "mixed_csv", SQL: `SELECT SUM(amount) AS total FROM "mixed_csv"`})
	if err != nil {
		t.Fatalf("RunQuery() error = %v", err)
	}
	if result.Rows[0][0] != 7.5 {
		t.Fatalf("total = %#v", result.Rows[0][0])
	}
}

func TestEncodeBatchWidensAndDegradesKinds(t *testing.T) {
	when := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	batch, err := encodeBatch([]dataset.Row{
		{{Name: "id", Value: int64(1)}, {Name: "score", Value: int64(3)}, {Name: "note", Value: "ok"}, {Name: "when", Value: when}, {Name: "flag", Value: true}},
		{{Name: "id", Value: "n/a"}, {Name: "score", Value: 4.5}, {Name: "note", Value: nil}, {Name: "when", Value: when}, {Name: "flag", Value: false}},
	})
	if err != nil {
		t.Fatalf("encodeBatch() error = %v", err)
	}
	if batch.RecordCount != 2 {
		t.Fatalf("RecordCount = %d", batch.RecordCount)
	}

	file, err := parquet.OpenFile(bytes.NewReader(batch.Data), int64(len(batch.Data)))
	if err != nil {
		t.Fatalf("OpenFile() error = %v", err)
	}
	if file.NumRows() != 2 {
		t.Fatalf("NumRows() = %d", file.NumRows())
	}
	kinds := map[string]parquet.Kind{}
	for _, field := range file.Schema().Fields() {
		kinds[field.Name()] = field.Type().Kind()
	}
	want := map[string]parquet.Kind{
		"id":    parquet.ByteArray,
		"score": parquet.Double,
		"note":  parquet.ByteArray,
		"when":  parquet.Int64,
		"flag":  parquet.Boolean,
	}
	for name, kind := range want {
		if kinds[name] != kind {
			t.Fatalf("column %q kind = %v, want %v", name, kinds[name], kind)
		}
	}
}

func TestIsReadOnly(t *testing.T) {
	cases := map[string]bool{
		"SELECT 1":                      true,
		"  with t as (select 1) select": true,
		"DELETE FROM x":                 false,
		"":                              false,
	}
	for sqlText, want := range cases {
		if got := IsReadOnly(sqlText); got != want {
			t.Fatalf("IsReadOnly(%q) = %v, want %v", sqlText, got, want)
		}
	}
}

func mustImport(t *testing.T, store *Store, name string, rows []dataset.Row) {
	t.Helper()
	if err := store.Create(context.Background(), name); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if _, err := store.BulkImport(context.Background(), name, rows); err != nil {
		t.Fatalf("BulkImport() error = %v", err)
	}
}

func newTestStore() (*Store, *memoryCatalog, *memoryObjects) {
	repo := newMemoryCatalog()
	objects := &memoryObjects{objects: map[string][]byte{}}
	store := New(repo, objects, duckdb.NewEngine(objects), nil)
	sequence := 0
	store.NewID = func() string {
		sequence++
		return "obj-" + strconv.Itoa(sequence)
	}
	return store, repo, objects
}

type memoryCatalog struct {
	mu           sync.Mutex
	collections  map[string]catalog.Collection
	objects      map[string][]catalog.CollectionObject
	descriptions []catalog.SchemaDescription
	registerErr  error
	nextID       int64
}

func newMemoryCatalog() *memoryCatalog {
	return &memoryCatalog{
		collections: map[string]catalog.Collection{},
		objects:     map[string][]catalog.CollectionObject{},
	}
}

func (m *memoryCatalog) HealthCheck(context.Context) error { return nil }

func (m *memoryCatalog) CreateCollection(_ context.Context, name string) (catalog.Collection, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.collections[name]; ok {
		return existing, false, nil
	}
	collection := catalog.Collection{Name: name, CreatedAt: time.Now()}
	m.collections[name] = collection
	return collection, true, nil
}

func (m *memoryCatalog) DeleteEmptyCollection(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	collection, ok := m.collections[name]
	if !ok || collection.ObjectCount > 0 {
		return false, nil
	}
	delete(m.collections, name)
	return true, nil
}

func (m *memoryCatalog) GetCollection(_ context.Context, name string) (catalog.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	collection, ok := m.collections[name]
	if !ok {
		return catalog.Collection{}, catalog.ErrNotFound
	}
	return collection, nil
}

func (m *memoryCatalog) ListCollections(context.Context) ([]catalog.Collection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]catalog.Collection, 0, len(m.collections))
	for _, collection := range m.collections {
		out = append(out, collection)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *memoryCatalog) RegisterObject(_ context.Context, in catalog.RegisterObjectInput) (catalog.CollectionObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.registerErr != nil {
		return catalog.CollectionObject{}, m.registerErr
	}
	collection, ok := m.collections[in.Collection]
	if !ok {
		return catalog.CollectionObject{}, catalog.ErrNotFound
	}
	m.nextID++
	object := catalog.CollectionObject{
		ObjectID:      m.nextID,
		Collection:    in.Collection,
		Path:          in.Path,
		RecordCount:   in.RecordCount,
		FileSizeBytes: in.FileSizeBytes,
		CreatedAt:     time.Now(),
	}
	collection.RowCount += in.RecordCount
	collection.ObjectCount++
	m.collections[in.Collection] = collection
	m.objects[in.Collection] = append(m.objects[in.Collection], object)
	return object, nil
}

func (m *memoryCatalog) ListObjects(_ context.Context, name string) ([]catalog.CollectionObject, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]catalog.CollectionObject(nil), m.objects[name]...), nil
}

func (m *memoryCatalog) InsertSchemaDescription(_ context.Context, in catalog.InsertSchemaDescriptionInput) (catalog.SchemaDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	description := catalog.SchemaDescription{
		DescriptionID:    m.nextID,
		Collection:       in.Collection,
		Company:          in.Company,
		FileSummary:      in.FileSummary,
		DescriptionsJSON: in.DescriptionsJSON,
		CreatedAt:        time.Now(),
	}
	m.descriptions = append(m.descriptions, description)
	return description, nil
}

func (m *memoryCatalog) GetLatestSchemaDescription(_ context.Context, name string) (catalog.SchemaDescription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.descriptions) - 1; i >= 0; i-- {
		if m.descriptions[i].Collection == name {
			return m.descriptions[i], nil
		}
	}
	return catalog.SchemaDescription{}, catalog.ErrNotFound
}

type memoryObjects struct {
	mu      sync.Mutex
	objects map[string][]byte
	gets    int
}

func (m *memoryObjects) resetGets() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets = 0
}

func (m *memoryObjects) getCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.gets
}

func (m *memoryObjects) Put(_ context.Context, key string, body io.Reader, _ int64, _ storage.PutOptions) (storage.ObjectInfo, error) {
	payload, err := io.ReadAll(body)
	if err != nil {
		return storage.ObjectInfo{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = payload
	return storage.ObjectInfo{Key: key, Size: int64(len(payload))}, nil
}

func (m *memoryObjects) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	payload, ok := m.objects[key]
	if !ok {
		return nil, storage.ErrObjectNotFound
	}
	return io.NopCloser(bytes.NewReader(payload)), nil
}

func (m *memoryObjects) Stat(_ context.Context, key string) (storage.ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	payload, ok := m.objects[key]
	if !ok {
		return storage.ObjectInfo{}, storage.ErrObjectNotFound
	}
	return storage.ObjectInfo{Key: key, Size: int64(len(payload))}, nil
}

func (m *memoryObjects) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}
