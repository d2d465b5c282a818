package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	ingestRowsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datainsight_ingest_rows_total",
			Help: "Total number of CSV rows imported into collections.",
		},
	)
	ingestBatchesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datainsight_ingest_batches_total",
			Help: "Total number of batches imported into collections.",
		},
	)
	ingestRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datainsight_ingest_runs_total",
			Help: "Total number of ingestion runs by outcome.",
		},
		[]string{"outcome"},
	)
	inferenceCallsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datainsight_inference_calls_total",
			Help: "Total number of field type inference calls.",
		},
	)
	batchImportDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "datainsight_batch_import_duration_seconds",
			Help:    "Latency of encoding, uploading and registering one batch.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
	)
	translationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datainsight_translations_total",
			Help: "Total number of natural-language query translations by outcome.",
		},
		[]string{"outcome"},
	)
	queryExecutionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datainsight_query_executions_total",
			Help: "Total number of translated query executions by outcome.",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(
		ingestRowsTotal,
		ingestBatchesTotal,
		ingestRunsTotal,
		inferenceCallsTotal,
		batchImportDurationSeconds,
		translationsTotal,
		queryExecutionsTotal,
	)
}

func ObserveBatchImport(rows int, elapsed time.Duration) {
	ingestBatchesTotal.Inc()
	if rows > 0 {
		ingestRowsTotal.Add(float64(rows))
	}
	batchImportDurationSeconds.Observe(elapsed.Seconds())
}

func ObserveIngestRun(err error) {
	ingestRunsTotal.WithLabelValues(outcome(err)).Inc()
}

func IncrementInferenceCalls() {
	inferenceCallsTotal.Inc()
}

func ObserveTranslation(err error) {
	translationsTotal.WithLabelValues(outcome(err)).Inc()
}

func ObserveQueryExecution(err error) {
	queryExecutionsTotal.WithLabelValues(outcome(err)).Inc()
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
