package insight

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/docstore"
	"github.com/datainsight/datainsight/internal/nl2sql"
	"github.com/datainsight/datainsight/internal/query"
)

func TestAskReturnsRowsForSuccessfulQuery(t *testing.T) {
	runner := &fakeRunner{result: query.Result{
		Columns: []string{"region", "total"},
		Rows:    [][]any{{"north", 420.0}, {"south", 99.5}},
	}}
	service := newService(fakeTranslator{translation: nl2sql.Translation{
		Collection:  "sales_csv",
		Query:       "SELECT region, SUM(amount) AS total FROM sales_csv GROUP BY region",
		Explanation: "Totals per region.",
	}}, runner)

	answer, err := service.Ask(context.Background(), nl2sql.Request{Prompt: "total per region", Collection: "sales_csv"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if answer.Failed() {
		t.Fatalf("unexpected answer error %q", answer.Error)
	}
	if runner.last.SQL != `SELECT region, SUM(amount) AS total FROM "sales_csv" GROUP BY region` {
		t.Fatalf("executed SQL = %q", runner.last.SQL)
	}
	if answer.Query != runner.last.SQL || runner.last.Collection != "sales_csv" || runner.last.RowLimit != 200 {
		t.Fatalf("answer = %+v last = %+v", answer, runner.last)
	}
	if len(answer.Rows) != 2 || answer.Rows[0]["region"] != "north" || answer.Rows[1]["total"] != 99.5 {
		t.Fatalf("rows = %+v", answer.Rows)
	}
}

func TestAskReportsExecutionFailureAsData(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: Binder Error: Referenced column \"amount_usd\" not found", dataset.ErrExecution)}
	service := newService(fakeTranslator{translation: nl2sql.Translation{
		Collection:  "sales_csv",
		Query:       "SELECT * FROM sales_csv WHERE amount_usd > 100",
		Explanation: "Orders above 100 USD.",
	}}, runner)

	answer, err := service.Ask(context.Background(), nl2sql.Request{Prompt: "orders above 100 usd", Collection: "sales_csv"})
	if err != nil {
		t.Fatalf("Ask() error = %v, want execution failure reported in the answer", err)
	}
	if !answer.Failed() || !strings.Contains(answer.Error, "amount_usd") {
		t.Fatalf("answer.Error = %q", answer.Error)
	}
	if answer.Rows != nil {
		t.Fatalf("rows must be absent on failure: %+v", answer.Rows)
	}
	if answer.Collection != "sales_csv" || answer.Query != `SELECT * FROM "sales_csv" WHERE amount_usd > 100` || answer.Explanation != "Orders above 100 USD." {
		t.Fatalf("answer = %+v", answer)
	}

	body, err := json.Marshal(answer)
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	var decoded map[string]any
	if err := json.Unmarshal(body, &decoded); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	for _, key := range []string{"collection", "query", "explanation", "error"} {
		if _, ok := decoded[key]; !ok {
			t.Fatalf("encoded answer missing %q: %s", key, body)
		}
	}
	if _, ok := decoded["rows"]; ok {
		t.Fatalf("encoded failure must not carry rows: %s", body)
	}
}

func TestAskPropagatesTranslationFailure(t *testing.T) {
	runner := &fakeRunner{}
	service := newService(fakeTranslator{err: fmt.Errorf("%w: reply is missing query", dataset.ErrTranslation)}, runner)

	_, err := service.Ask(context.Background(), nl2sql.Request{Prompt: "anything", Collection: "sales_csv"})
	if !errors.Is(err, dataset.ErrTranslation) {
		t.Fatalf("error = %v, want ErrTranslation", err)
	}
	if runner.calls != 0 {
		t.Fatalf("runner called %d times", runner.calls)
	}
}

func TestAskPropagatesStoreFailure(t *testing.T) {
	runner := &fakeRunner{err: fmt.Errorf("%w: list objects: connection refused", dataset.ErrStore)}
	service := newService(fakeTranslator{translation: nl2sql.Translation{Collection: "sales_csv", Query: "SELECT 1", Explanation: "x"}}, runner)

	_, err := service.Ask(context.Background(), nl2sql.Request{Prompt: "anything", Collection: "sales_csv"})
	if !errors.Is(err, dataset.ErrStore) {
		t.Fatalf("error = %v, want ErrStore", err)
	}
}

func TestAskPropagatesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	runner := &fakeRunner{err: context.Canceled}
	service := newService(fakeTranslator{translation: nl2sql.Translation{Collection: "sales_csv", Query: "SELECT 1", Explanation: "x"}}, runner)

	if _, err := service.Ask(ctx, nl2sql.Request{Prompt: "anything"}); !errors.Is(err, context.Canceled) {
		t.Fatalf("error = %v, want context.Canceled", err)
	}
}

func TestExecuteClassifiesUnknownFailures(t *testing.T) {
	executor := &Executor{Store: &fakeRunner{err: errors.New("boom")}}
	_, err := executor.Execute(context.Background(), "sales_csv", "SELECT 1")
	if !errors.Is(err, dataset.ErrExecution) {
		t.Fatalf("error = %v, want ErrExecution", err)
	}
}

func TestAnswerEncodesEmptyRows(t *testing.T) {
	body, err := json.Marshal(Answer{Collection: "sales_csv", Query: "SELECT 1", Explanation: "x"})
	if err != nil {
		t.Fatalf("json.Marshal() error = %v", err)
	}
	if !strings.Contains(string(body), `"rows":[]`) || strings.Contains(string(body), `"error"`) {
		t.Fatalf("body = %s", body)
	}
}

func newService(translator Translator, runner *fakeRunner) *Service {
	return &Service{
		Translator: translator,
		Executor:   &Executor{Store: runner, RowLimit: 200},
	}
}

type fakeTranslator struct {
	translation nl2sql.Translation
	err         error
}

func (f fakeTranslator) Translate(context.Context, nl2sql.Request) (nl2sql.Translation, error) {
	return f.translation, f.err
}

type fakeRunner struct {
	result query.Result
	err    error
	last   docstore.Query
	calls  int
}

func (f *fakeRunner) RunQuery(_ context.Context, q docstore.Query) (query.Result, error) {
	f.calls++
	f.last = q
	return f.result, f.err
}
