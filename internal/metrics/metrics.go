// Package metrics registers the service's Prometheus instruments.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics bundles the instruments the poll loops, matcher and dispatcher
// update. One instance is shared by reference across the subsystems.
type Metrics struct {
	FetchTotal    *prometheus.CounterVec
	DiffItems     *prometheus.CounterVec
	DispatchTotal *prometheus.CounterVec
	RetryTotal    prometheus.Counter
	MatchRows     prometheus.Histogram
}

// New registers the instruments on the given registerer (use
// prometheus.DefaultRegisterer in the binary, a private registry in tests).
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		FetchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwatch_fetch_total",
			Help: "Upstream fetch attempts by loop and outcome.",
		}, []string{"loop", "outcome"}),
		DiffItems: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwatch_diff_items_total",
			Help: "Rotation items emitted by the diff stage, by item class.",
		}, []string{"class"}),
		DispatchTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "inkwatch_dispatch_total",
			Help: "Per-target delivery outcomes by agent.",
		}, []string{"agent", "outcome"}),
		RetryTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "inkwatch_dispatch_retries_total",
			Help: "Transient delivery failures that scheduled a retry.",
		}),
		MatchRows: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "inkwatch_match_rows",
			Help:    "Interested delivery targets per rotation item.",
			Buckets: prometheus.ExponentialBuckets(1, 2, 12),
		}),
	}
}
