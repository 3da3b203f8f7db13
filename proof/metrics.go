package proof

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/omni/tokenbridge-client/bridgeerr"
)

var ProofResults = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "bridge_client",
	Subsystem: "proof",
	Name:      "results_total",
}, []string{"kind", "status"})

func ObserveProof(kind string, err error) {
	switch {
	case err == nil:
		ProofResults.WithLabelValues(kind, "ok").Inc()
	case bridgeerr.Is(err, bridgeerr.KindInvalidProof):
		ProofResults.WithLabelValues(kind, "invalid").Inc()
	default:
		ProofResults.WithLabelValues(kind, "error").Inc()
	}
}
