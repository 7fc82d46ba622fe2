package ledger

import (
	"math/big"
	"time"

	"github.com/Panchu11/obscura/internal/ledger/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts ledger operations by name and outcome class
	operationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "obscura_ledger_operations_total",
			Help: "Ledger operations by operation and result",
		},
		[]string{"operation", "result"},
	)

	// operationDuration tracks transaction latency including the ledger lock wait
	operationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "obscura_ledger_operation_duration_seconds",
			Help:    "Ledger operation latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	// claimConflicts counts claims that lost the race for a job
	claimConflicts = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "obscura_ledger_claim_conflicts_total",
			Help: "Claims rejected because the job was no longer pending",
		},
	)

	// payoutsTotal sums worker payouts released (in the smallest unit)
	payoutsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "obscura_ledger_payouts_total",
			Help: "Total worker payouts released at verification",
		},
	)
)

func observeOperation(op string, err error, elapsed time.Duration) {
	result := "ok"
	if err != nil {
		result = string(domain.ClassOf(err))
	}
	operationsTotal.WithLabelValues(op, result).Inc()
	if elapsed > 0 {
		operationDuration.WithLabelValues(op).Observe(elapsed.Seconds())
	}
}

func amountFloat(a domain.Amount) float64 {
	if a.IsNil() {
		return 0
	}
	f, _ := new(big.Float).SetInt(a.BigInt()).Float64()
	return f
}
