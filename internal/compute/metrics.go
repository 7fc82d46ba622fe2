package compute

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	computeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obscura_compute_duration_seconds",
			Help:    "Computation latency by engine and kind",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"engine", "kind"},
	)

	computeFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obscura_compute_failures_total",
			Help: "Failed computations by engine and kind",
		},
		[]string{"engine", "kind"},
	)
)
