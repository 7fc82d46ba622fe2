package events

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	eventsPublished = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obscura_relay_events_published_total",
			Help: "Ledger events delivered to the broker by type",
		},
		[]string{"type"},
	)

	publishFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "obscura_relay_publish_failures_total",
			Help: "Failed broker publish attempts",
		},
	)
)
