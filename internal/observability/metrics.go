package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics bundles the Prometheus collectors shared by the ingestion
// and mapping pipelines. Response structs (spec §6) surface the same
// counts so API callers and the /metrics endpoint never diverge
// (SPEC_FULL.md §8).
type Metrics struct {
	RowsProcessed     *prometheus.CounterVec
	RowsFailed        *prometheus.CounterVec
	LoadDuration      *prometheus.HistogramVec
	MappingTransitions *prometheus.CounterVec
	MappingDuration   prometheus.Histogram
	DictionaryEntries *prometheus.CounterVec
}

// NewMetrics registers and returns the collector set against reg. A
// caller-supplied registry (rather than the global default) keeps
// tests isolated from each other.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RowsProcessed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taxcore",
			Subsystem: "ingest",
			Name:      "rows_processed_total",
			Help:      "Rows processed by the Row Transformer, by taxonomy type.",
		}, []string{"taxonomy_type"}),
		RowsFailed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taxcore",
			Subsystem: "ingest",
			Name:      "rows_failed_total",
			Help:      "Rows that failed Row Transformer processing.",
		}, []string{"taxonomy_type"}),
		LoadDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "taxcore",
			Subsystem: "ingest",
			Name:      "load_duration_seconds",
			Help:      "Wall-clock duration of one Load Coordinator invocation.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"status"}),
		MappingTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taxcore",
			Subsystem: "mapping",
			Name:      "transitions_total",
			Help:      "Mapping Engine per-node state transitions, by action.",
		}, []string{"action"}),
		MappingDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "taxcore",
			Subsystem: "mapping",
			Name:      "job_duration_seconds",
			Help:      "Wall-clock duration of one Mapping Engine invocation.",
			Buckets:   prometheus.DefBuckets,
		}),
		DictionaryEntries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "taxcore",
			Subsystem: "dictionary",
			Name:      "entries_total",
			Help:      "Dictionary cache lookups, by kind and outcome (cache hit or store round trip).",
		}, []string{"kind", "outcome"}),
	}

	reg.MustRegister(
		m.RowsProcessed,
		m.RowsFailed,
		m.LoadDuration,
		m.MappingTransitions,
		m.MappingDuration,
		m.DictionaryEntries,
	)
	return m
}
