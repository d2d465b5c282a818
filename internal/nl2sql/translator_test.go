package nl2sql

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/describe"
	"github.com/datainsight/datainsight/internal/textgen"
)

func TestTranslateBuildsPromptAndParsesReply(t *testing.T) {
	store := &fakeSampler{
		exists:  map[string]bool{"sales_csv": true},
		samples: []map[string]any{{"region": "north", "amount": 120.0}},
	}
	descriptions := fakeDescriptions{description: describe.Description{
		FileSummary:  "Orders",
		Descriptions: []describe.FieldDescription{{Field: "amount", Description: "Order value", DataType: dataset.TypeFloat}},
	}}
	var prompt string
	completer := textgen.CompleterFunc(func(_ context.Context, p string) (string, error) {
		prompt = p
		return "```json\n{\"collection\":\"sales_csv\",\"query\":\"SELECT * FROM sales_csv WHERE amount > 100\",\"explanation\":\"Large orders.\"}\n```", nil
	})

	translator := &Translator{Store: store, Descriptions: descriptions, Completer: completer, SampleDocuments: 3, RowLimit: 200}
	translation, err := translator.Translate(context.Background(), Request{
		Prompt:     "orders above 100",
		Collection: "sales_csv",
		Context:    "amounts are in EUR",
	})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if translation != (Translation{Collection: "sales_csv", Query: "SELECT * FROM sales_csv WHERE amount > 100", Explanation: "Large orders."}) {
		t.Fatalf("translation = %+v", translation)
	}
	if store.lastLimit != 3 {
		t.Fatalf("sample limit = %d", store.lastLimit)
	}
	for _, snippet := range []string{
		"### Collection name: sales_csv",
		`"region": "north"`,
		"- amount (float): Order value",
		"amounts are in EUR",
		"LIMIT 200",
		`"orders above 100"`,
	} {
		if !strings.Contains(prompt, snippet) {
			t.Fatalf("prompt missing %q:\n%s", snippet, prompt)
		}
	}
}

func TestTranslateMarksMissingDescriptions(t *testing.T) {
	var prompt string
	translator := &Translator{
		Store:        &fakeSampler{exists: map[string]bool{"sales_csv": true}},
		Descriptions: fakeDescriptions{description: describe.Description{Descriptions: []describe.FieldDescription{}}},
		Completer: textgen.CompleterFunc(func(_ context.Context, p string) (string, error) {
			prompt = p
			return `{"collection":"sales_csv","query":"SELECT 1","explanation":"x"}`, nil
		}),
	}
	if _, err := translator.Translate(context.Background(), Request{Prompt: "anything", Collection: "sales_csv"}); err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if !strings.Contains(prompt, noDescriptionsMarker) {
		t.Fatalf("prompt missing marker:\n%s", prompt)
	}
	if !strings.Contains(prompt, "### Sample documents:\n[]") {
		t.Fatalf("prompt should carry an empty sample list:\n%s", prompt)
	}
}

func TestTranslateRejectsIncompleteReplies(t *testing.T) {
	replies := []string{
		`{"collection":"sales_csv","query":"SELECT 1"}`,
		`{"collection":"sales_csv","explanation":"x"}`,
		`{"query":"SELECT 1","explanation":"x"}`,
		`Sure! Here is your query: SELECT 1`,
		`{"collection":"bad name","query":"SELECT 1","explanation":"x"}`,
	}
	for _, reply := range replies {
		translator := &Translator{
			Store:     &fakeSampler{exists: map[string]bool{"sales_csv": true}},
			Completer: textgen.CompleterFunc(func(context.Context, string) (string, error) { return reply, nil }),
		}
		_, err := translator.Translate(context.Background(), Request{Prompt: "q", Collection: "sales_csv"})
		if !errors.Is(err, dataset.ErrTranslation) {
			t.Fatalf("reply %q error = %v, want ErrTranslation", reply, err)
		}
	}
}

func TestTranslatePropagatesProviderFailure(t *testing.T) {
	translator := &Translator{
		Store:     &fakeSampler{exists: map[string]bool{"sales_csv": true}},
		Completer: textgen.CompleterFunc(func(context.Context, string) (string, error) { return "", errors.New("timeout") }),
	}
	_, err := translator.Translate(context.Background(), Request{Prompt: "q", Collection: "sales_csv"})
	if !errors.Is(err, dataset.ErrTranslation) {
		t.Fatalf("error = %v, want ErrTranslation", err)
	}
}

func TestTranslateExtractsCollectionWhenOmitted(t *testing.T) {
	calls := 0
	translator := &Translator{
		Store: &fakeSampler{exists: map[string]bool{"sales_csv": true}},
		Completer: textgen.CompleterFunc(func(_ context.Context, prompt string) (string, error) {
			calls++
			if calls == 1 {
				if !strings.Contains(prompt, "extract the database collection name") {
					t.Fatalf("first prompt should extract the collection:\n%s", prompt)
				}
				return `{"collection":"sales_csv"}`, nil
			}
			return `{"collection":"sales_csv","query":"SELECT * FROM sales_csv","explanation":"All rows."}`, nil
		}),
	}
	translation, err := translator.Translate(context.Background(), Request{Prompt: "show everything in sales_csv"})
	if err != nil {
		t.Fatalf("Translate() error = %v", err)
	}
	if translation.Collection != "sales_csv" || calls != 2 {
		t.Fatalf("translation = %+v calls = %d", translation, calls)
	}
}

func TestExtractCollectionRejectsNull(t *testing.T) {
	for _, reply := range []string{`{"collection":"null"}`, `{"collection":null}`, `{"collection":""}`} {
		translator := &Translator{Completer: textgen.CompleterFunc(func(context.Context, string) (string, error) { return reply, nil })}
		if _, err := translator.ExtractCollection(context.Background(), "how many rows?"); !errors.Is(err, dataset.ErrValidation) {
			t.Fatalf("reply %s error = %v, want ErrValidation", reply, err)
		}
	}
}

func TestTranslateFailsForUnknownCollection(t *testing.T) {
	translator := &Translator{
		Store: &fakeSampler{exists: map[string]bool{}, sampleErr: errors.New("collection missing")},
		Completer: textgen.CompleterFunc(func(context.Context, string) (string, error) {
			t.Fatal("provider must not be called")
			return "", nil
		}),
	}
	_, err := translator.Translate(context.Background(), Request{Prompt: "q", Collection: "ghost_csv"})
	if !errors.Is(err, dataset.ErrTranslation) {
		t.Fatalf("error = %v, want ErrTranslation", err)
	}
}

func TestTranslateRequiresPrompt(t *testing.T) {
	_, err := (&Translator{}).Translate(context.Background(), Request{Prompt: " "})
	if !errors.Is(err, dataset.ErrValidation) {
		t.Fatalf("error = %v, want ErrValidation", err)
	}
}

type fakeSampler struct {
	exists    map[string]bool
	samples   []map[string]any
	sampleErr error
	lastLimit int
}

func (f *fakeSampler) Exists(_ context.Context, name string) (bool, error) {
	return f.exists[name], nil
}

func (f *fakeSampler) SampleDocuments(_ context.Context, _ string, limit int) ([]map[string]any, error) {
	f.lastLimit = limit
	if f.sampleErr != nil {
		return nil, f.sampleErr
	}
	return f.samples, nil
}

type fakeDescriptions struct {
	description describe.Description
}

func (f fakeDescriptions) Load(context.Context, string) describe.Description {
	return f.description
}
