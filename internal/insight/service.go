package insight

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"

	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/nl2sql"
	"github.com/datainsight/datainsight/internal/observability"
)

type Translator interface {
	Translate(ctx context.Context, req nl2sql.Request) (nl2sql.Translation, error)
}

// Answer carries either Rows or Error, never both.
type Answer struct {
	Collection  string
	Query       string
	Explanation string
	Columns     []string
	Rows        []map[string]any
	Error       string
}

func (a Answer) Failed() bool {
	return a.Error != ""
}

func (a Answer) MarshalJSON() ([]byte, error) {
	type base struct {
		Collection  string `json:"collection"`
		Query       string `json:"query"`
		Explanation string `json:"explanation"`
	}
	head := base{Collection: a.Collection, Query: a.Query, Explanation: a.Explanation}
	if a.Failed() {
		return json.Marshal(struct {
			base
			Error string `json:"error"`
		}{head, a.Error})
	}
	columns := a.Columns
	if columns == nil {
		columns = []string{}
	}
	rows := a.Rows
	if rows == nil {
		rows = []map[string]any{}
	}
	return json.Marshal(struct {
		base
		Columns []string         `json:"columns"`
		Rows    []map[string]any `json:"rows"`
	}{head, columns, rows})
}

type Service struct {
	Translator Translator
	Executor   *Executor
	Logger     *slog.Logger
}

// Ask translates a request, sanitizes the generated query and runs it.
// Translation failures are returned as errors; an execution failure is
// reported inside the Answer together with the attempted query.
func (s *Service) Ask(ctx context.Context, req nl2sql.Request) (Answer, error) {
	translation, err := s.Translator.Translate(ctx, req)
	if err != nil {
		return Answer{}, err
	}
	answer := Answer{
		Collection:  translation.Collection,
		Query:       nl2sql.Sanitize(translation.Query),
		Explanation: translation.Explanation,
	}

	result, err := s.Executor.Execute(ctx, answer.Collection, answer.Query)
	if err != nil {
		if ctx.Err() != nil || !errors.Is(err, dataset.ErrExecution) {
			return Answer{}, err
		}
		observability.OrDiscard(s.Logger).InfoContext(ctx, "generated query failed",
			slog.String("collection", answer.Collection),
			slog.String("query", answer.Query),
			slog.Any("error", err),
		)
		answer.Error = err.Error()
		return answer, nil
	}
	answer.Columns = result.Columns
	answer.Rows = result.Records()
	return answer, nil
}
