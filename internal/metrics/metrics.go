// Package metrics declares the prometheus collectors shared by the ledger
// access paths, the index manager and the record store.
package metrics

import (
	"context"
	"errors"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "peerledger"

var LedgerCalls = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "calls_total",
	Help:      "ledger calls by operation and result",
}, []string{"op", "result"})

var LedgerLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "ledger",
	Name:      "call_duration_seconds",
	Help:      "ledger call latency",
	Buckets:   prometheus.ExponentialBucketsRange(0.0005, 30, 16),
}, []string{"op"})

var IndexAppendAttempts = promauto.NewHistogram(prometheus.HistogramOpts{
	Namespace: namespace,
	Subsystem: "index",
	Name:      "append_attempts",
	Help:      "read-modify-write rounds needed per index append",
	Buckets:   []float64{1, 2, 3, 5, 8},
})

var IndexConflicts = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "index",
	Name:      "conflicts_total",
	Help:      "index appends whose id was missing on verification",
})

var RecordsCreated = promauto.NewCounter(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "store",
	Name:      "records_created_total",
})

var RecordsSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: namespace,
	Subsystem: "store",
	Name:      "records_skipped_total",
	Help:      "records left out of a listing",
}, []string{"reason"})

var OrphansFound = promauto.NewGauge(prometheus.GaugeOpts{
	Namespace: namespace,
	Subsystem: "store",
	Name:      "orphans",
	Help:      "orphaned records found by the last scan",
})

// Result labels an operation outcome for the calls counter.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return "error"
	}
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
