package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initTransferMetrics() {
	r.HelperSpawnsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectd_helper_spawns_total",
			Help: "Helper process starts (loader, sync agent, backend)",
		},
		[]string{"helper", "result"},
	)

	r.HelperExitsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectd_helper_exits_total",
			Help: "Observed helper process exits",
		},
		[]string{"helper", "result"},
	)

	r.HelperRunning = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "objectd_helper_running",
			Help: "Whether a helper process is currently running",
		},
		[]string{"helper"},
	)
}
