package watcher

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Refreshes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "bridge_client",
		Subsystem: "watcher",
		Name:      "refreshes_total",
		Help:      "Wallet state refresh cycles by result.",
	}, []string{"result"})
	SkippedRefreshes = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "bridge_client",
		Subsystem: "watcher",
		Name:      "skipped_refreshes_total",
		Help:      "Refresh requests folded into a cycle already in flight.",
	})
)
