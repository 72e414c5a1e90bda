package main

import (
	"encoding/json"
	"io"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/healthtax/taxcore/internal/observability"
)

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc
}

// newMetrics registers a fresh Prometheus registry per invocation; a
// one-shot CLI command has no /metrics endpoint to scrape, so the
// registry only exists to satisfy the Coordinator/Engine constructor
// shape they share with the long-running service entry point.
func newMetrics() *observability.Metrics {
	return observability.NewMetrics(prometheus.NewRegistry())
}
