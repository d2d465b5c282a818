package inference

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/textgen"
)

func TestDetectExactDataTypeCollapsesNumericToFloat(t *testing.T) {
	if got := DetectExactDataType([]any{int64(1), int64(2), 3.5}); got != dataset.TypeFloat {
		t.Fatalf("DetectExactDataType() = %q, want float", got)
	}
	if got := DetectExactDataType([]any{"1", "2", "3"}); got != dataset.TypeFloat {
		t.Fatalf("all-integer sample = %q, want float", got)
	}
}

func TestDetectExactDataTypeDates(t *testing.T) {
	if got := DetectExactDataType([]any{"2024-01-01", "2024-02-15"}); got != dataset.TypeDate {
		t.Fatalf("DetectExactDataType() = %q, want date", got)
	}
	if got := DetectExactDataType([]any{time.Now()}); got != dataset.TypeDate {
		t.Fatalf("time value = %q, want date", got)
	}
}

func TestDetectExactDataTypeFirstValueDecides(t *testing.T) {
	cases := []struct {
		values []any
		want   dataset.FieldType
	}{
		{values: []any{nil, "true", "x"}, want: dataset.TypeBoolean},
		{values: []any{"7", "seven"}, want: dataset.TypeInteger},
		{values: []any{"7.5", "seven"}, want: dataset.TypeFloat},
		{values: []any{"Berlin", "12"}, want: dataset.TypeString},
		{values: []any{true, false}, want: dataset.TypeBoolean},
	}
	for _, tc := range cases {
		if got := DetectExactDataType(tc.values); got != tc.want {
			t.Fatalf("DetectExactDataType(%v) = %q, want %q", tc.values, got, tc.want)
		}
	}
}

func TestDetectExactDataTypeUnknownForEmpty(t *testing.T) {
	if got := DetectExactDataType(nil); got != dataset.TypeUnknown {
		t.Fatalf("empty = %q", got)
	}
	if got := DetectExactDataType([]any{nil, nil}); got != dataset.TypeUnknown {
		t.Fatalf("all null = %q", got)
	}
}

func TestLocalClassifierOmitsAllNullFields(t *testing.T) {
	rows := []dataset.Row{
		{{Name: "id", Value: "1"}, {Name: "city", Value: "Oslo"}, {Name: "blank", Value: nil}},
		{{Name: "id", Value: "2"}, {Name: "city", Value: "Lima"}, {Name: "blank", Value: nil}},
	}
	typeMap, err := LocalClassifier{}.Classify(context.Background(), rows)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if typeMap["id"] != dataset.TypeFloat {
		t.Fatalf("id = %q", typeMap["id"])
	}
	if typeMap["city"] != dataset.TypeString {
		t.Fatalf("city = %q", typeMap["city"])
	}
	if _, ok := typeMap["blank"]; ok {
		t.Fatal("blank field should be omitted")
	}
}

func TestOracleClassifierParsesReply(t *testing.T) {
	var prompt string
	classifier := &OracleClassifier{Completer: textgen.CompleterFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```json\n[{\"field\":\"id\",\"type\":\"Integer\"},{\"field\":\"when\",\"type\":\"DATE\"},{\"field\":\"ghost\",\"type\":\"float\"}]\n```", nil
	})}

	rows := []dataset.Row{{{Name: "id", Value: "1"}, {Name: "when", Value: "2024-01-01"}, {Name: "note", Value: "x"}}}
	typeMap, err := classifier.Classify(context.Background(), rows)
	if err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if typeMap["id"] != dataset.TypeInteger || typeMap["when"] != dataset.TypeDate {
		t.Fatalf("typeMap = %v", typeMap)
	}
	if _, ok := typeMap["note"]; ok {
		t.Fatal("fields absent from reply must be omitted")
	}
	if _, ok := typeMap["ghost"]; ok {
		t.Fatal("fields absent from sample must be ignored")
	}
	if !strings.Contains(prompt, "Field name: id\nSamples: 1") {
		t.Fatalf("prompt missing samples: %s", prompt)
	}
}

func TestOracleClassifierLimitsSamples(t *testing.T) {
	var prompt string
	classifier := &OracleClassifier{SampleLimit: 2, Completer: textgen.CompleterFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return `[]`, nil
	})}
	rows := []dataset.Row{
		{{Name: "n", Value: "a"}}, {{Name: "n", Value: "b"}}, {{Name: "n", Value: "c"}},
	}
	if _, err := classifier.Classify(context.Background(), rows); err != nil {
		t.Fatalf("Classify() error = %v", err)
	}
	if !strings.Contains(prompt, "Samples: a, b\n") {
		t.Fatalf("prompt exceeded sample limit: %s", prompt)
	}
}

func TestOracleClassifierFailsOnMalformedReply(t *testing.T) {
	classifier := &OracleClassifier{Completer: textgen.CompleterFunc(func(context.Context, string) (string, error) {
		return "I think the id column is an integer.", nil
	})}
	_, err := classifier.Classify(context.Background(), []dataset.Row{{{Name: "id", Value: "1"}}})
	if !errors.Is(err, dataset.ErrInference) {
		t.Fatalf("error = %v, want ErrInference", err)
	}
}

func TestOracleClassifierFailsOnProviderError(t *testing.T) {
	classifier := &OracleClassifier{Completer: textgen.CompleterFunc(func(context.Context, string) (string, error) {
		return "", errors.New("provider down")
	})}
	_, err := classifier.Classify(context.Background(), []dataset.Row{{{Name: "id", Value: "1"}}})
	if !errors.Is(err, dataset.ErrInference) {
		t.Fatalf("error = %v, want ErrInference", err)
	}
}

func TestNewSelectsClassifier(t *testing.T) {
	completer := textgen.CompleterFunc(func(context.Context, string) (string, error) { return "[]", nil })

	if _, ok := mustClassifier(t, "local", nil).(LocalClassifier); !ok {
		t.Fatal("expected LocalClassifier")
	}
	if _, ok := mustClassifier(t, "Oracle", completer).(*OracleClassifier); !ok {
		t.Fatal("expected OracleClassifier")
	}
	if _, err := New("oracle", nil, 10, nil); err == nil {
		t.Fatal("expected error for oracle without provider")
	}
	if _, err := New("dice", completer, 10, nil); err == nil {
		t.Fatal("expected error for unknown classifier")
	}
}

func mustClassifier(t *testing.T, kind string, completer textgen.Completer) Classifier {
	t.Helper()
	classifier, err := New(kind, completer, 10, nil)
	if err != nil {
		t.Fatalf("New(%q) error = %v", kind, err)
	}
	return classifier
}
