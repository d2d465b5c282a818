package maintenance

import "github.com/prometheus/client_golang/prometheus"

var (
	integrityRunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "datainsight_integrity_runs_total",
			Help: "Total number of integrity check runs by status.",
		},
		[]string{"status"},
	)
	integrityObjectsCheckedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datainsight_integrity_objects_checked_total",
			Help: "Total number of batch objects checked by integrity validation.",
		},
	)
	integrityMissingObjectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datainsight_integrity_missing_objects_total",
			Help: "Total number of missing batch objects detected by integrity validation.",
		},
	)
	integritySizeMismatchObjectsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "datainsight_integrity_size_mismatch_objects_total",
			Help: "Total number of batch object size mismatches detected by integrity validation.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		integrityRunsTotal,
		integrityObjectsCheckedTotal,
		integrityMissingObjectsTotal,
		integritySizeMismatchObjectsTotal,
	)
}

func observeIntegrity(summary IntegritySummary) {
	integrityObjectsCheckedTotal.Add(float64(summary.ObjectsChecked))
	integrityMissingObjectsTotal.Add(float64(summary.MissingObjects))
	integritySizeMismatchObjectsTotal.Add(float64(summary.SizeMismatchObjects))
	if summary.Healthy() {
		integrityRunsTotal.WithLabelValues("completed").Inc()
		return
	}
	integrityRunsTotal.WithLabelValues("failed").Inc()
}
