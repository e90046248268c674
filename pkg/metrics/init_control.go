package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initControlMetrics() {
	r.ControlState = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "objectd_control_state",
			Help: "Current control state (1 for the active state, 0 otherwise)",
		},
		[]string{"state"},
	)

	r.ControlTransitions = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectd_control_transitions_total",
			Help: "Total number of control state transitions",
		},
		[]string{"from", "to"},
	)

	r.ControlFatalTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectd_control_fatal_total",
			Help: "Fatal aborts of the control state machine",
		},
		[]string{"reason"},
	)

	r.ControlTickDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "objectd_control_tick_duration_seconds",
			Help:    "Duration of a single control tick",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1},
		},
	)

	r.NodeEpoch = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "objectd_node_epoch",
			Help: "Model epoch reflected by this node's replica",
		},
	)

	r.RulingEpoch = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "objectd_ruling_epoch",
			Help: "Highest epoch declared by a coordinator",
		},
	)

	r.Coordinator = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "objectd_coordinator",
			Help: "Whether this node is the cluster coordinator (1=yes, 0=no)",
		},
	)

	r.AnnouncementsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectd_announcements_total",
			Help: "Control messages sent to the cluster",
		},
		[]string{"type", "result"},
	)

	r.SyncRoundsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "objectd_sync_rounds_total",
			Help: "Sync rounds served by this node as coordinator",
		},
		[]string{"outcome"}, // completed, barrier_timeout, agent_failed
	)
}
