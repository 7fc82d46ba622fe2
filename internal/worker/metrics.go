package worker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	jobsInPhase = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "obscura_worker_jobs_in_phase",
			Help: "In-flight jobs by coordinator phase",
		},
		[]string{"phase"},
	)

	jobOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obscura_worker_job_outcomes_total",
			Help: "Finished job attempts by final phase",
		},
		[]string{"outcome"},
	)

	notificationsReceived = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obscura_worker_notifications_total",
			Help: "Broker notifications received by event type",
		},
		[]string{"type"},
	)

	reconcileScans = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "obscura_worker_reconcile_scans_total",
			Help: "Pending job scans run by the reconciler",
		},
	)
)
