package tracker

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PendingTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bridge_client",
		Subsystem: "tracker",
		Name:      "pending_transactions",
		Help:      "Submitted transactions waiting for their first confirmation.",
	})
	TrackedTransactions = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "bridge_client",
		Subsystem: "tracker",
		Name:      "tracked_transactions",
		Help:      "Bridge transactions visible to the user.",
	})
	Confirmations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge_client",
		Subsystem: "tracker",
		Name:      "confirmations_total",
		Help:      "Settled pending transactions by result.",
	}, []string{"chain_id", "result"})
	StatusTransitions = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge_client",
		Subsystem: "tracker",
		Name:      "status_transitions_total",
		Help:      "Observed destination message status changes.",
	}, []string{"chain_id", "status"})
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "bridge_client",
		Subsystem: "tracker",
		Name:      "job_duration_seconds",
		Help:      "Duration of tracker polling jobs.",
	}, []string{"job", "status"})
)
