package inference

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/datainsight/datainsight/internal/dataset"
	"github.com/datainsight/datainsight/internal/textgen"
)

// Classifier derives a FieldTypeMap from sample rows. Fields it cannot type may be
// omitted; callers must tolerate a partial map.
type Classifier interface {
	Classify(ctx context.Context, rows []dataset.Row) (dataset.FieldTypeMap, error)
}

const defaultSampleLimit = 100

// New returns the classifier named by kind: "oracle" or "local".
func New(kind string, completer textgen.Completer, sampleLimit int, logger *slog.Logger) (Classifier, error) {
	switch strings.ToLower(strings.TrimSpace(kind)) {
	case "", "oracle":
		if completer == nil {
			return nil, fmt.Errorf("oracle classifier requires a text generation provider")
		}
		return &OracleClassifier{Completer: completer, SampleLimit: sampleLimit, Logger: logger}, nil
	case "local":
		return LocalClassifier{SampleLimit: sampleLimit}, nil
	default:
		return nil, fmt.Errorf("unsupported classifier %q", kind)
	}
}

// collectSamples gathers up to limit non-null values per field in first-seen field order.
func collectSamples(rows []dataset.Row, limit int) ([]string, map[string][]any) {
	if limit <= 0 {
		limit = defaultSampleLimit
	}
	order := dataset.FieldOrder(rows)
	samples := make(map[string][]any, len(order))
	for _, row := range rows {
		for _, cell := range row {
			if cell.Value == nil || len(samples[cell.Name]) >= limit {
				continue
			}
			samples[cell.Name] = append(samples[cell.Name], cell.Value)
		}
	}
	return order, samples
}
