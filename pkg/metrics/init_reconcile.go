package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReconcileMetrics() {
	r.ReconcileBroadcastsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectd_reconcile_broadcasts_total",
			Help: "Cleanup broadcasts sent on behalf of dead clients and expired work",
		},
		[]string{"op", "result"}, // discard_implementer, abort_ccb, finalize_admin_owner
	)

	r.ContinuationTimeouts = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectd_continuation_timeouts_total",
			Help: "Continuations that exceeded their wait budget",
		},
		[]string{"kind"},
	)

	r.StaleClients = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "objectd_stale_clients",
			Help: "Client registrations whose cleanup is incomplete",
		},
	)

	r.DiscardedClientsTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "objectd_discarded_clients_total",
			Help: "Client registrations fully discarded after peer loss",
		},
	)
}
