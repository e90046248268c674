package metrics

import (
	"runtime"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	r := &Registry{
		registry: prometheus.NewRegistry(),
		started:  time.Now(),
	}

	r.initControlMetrics()
	r.initTransferMetrics()
	r.initReconcileMetrics()
	r.initSystemMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// All Record*/Set* helpers accept a nil receiver so components can run without metrics.

// SetControlState marks state as the current control state.
func (r *Registry) SetControlState(state string, all []string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range all {
		r.ControlState.WithLabelValues(s).Set(0)
	}
	r.ControlState.WithLabelValues(state).Set(1)
}

// RecordTransition counts a control state transition.
func (r *Registry) RecordTransition(from, to string) {
	if r == nil {
		return
	}
	r.ControlTransitions.WithLabelValues(from, to).Inc()
}

// RecordFatal counts a fatal abort by reason.
func (r *Registry) RecordFatal(reason string) {
	if r == nil {
		return
	}
	r.ControlFatalTotal.WithLabelValues(reason).Inc()
}

// ObserveTick records how long one control tick took.
func (r *Registry) ObserveTick(d time.Duration) {
	if r == nil {
		return
	}
	r.ControlTickDuration.Observe(d.Seconds())
}

// UpdateEpochs publishes the node and ruling epochs and the coordinator flag.
func (r *Registry) UpdateEpochs(node, ruling int64, coordinator bool) {
	if r == nil {
		return
	}
	r.NodeEpoch.Set(float64(node))
	r.RulingEpoch.Set(float64(ruling))
	if coordinator {
		r.Coordinator.Set(1)
	} else {
		r.Coordinator.Set(0)
	}
}

// RecordAnnouncement counts an outbound control message.
func (r *Registry) RecordAnnouncement(kind string, err error) {
	if r == nil {
		return
	}
	r.AnnouncementsTotal.WithLabelValues(kind, result(err)).Inc()
}

// RecordSyncRound counts a finished sync round on the coordinator.
func (r *Registry) RecordSyncRound(outcome string) {
	if r == nil {
		return
	}
	r.SyncRoundsTotal.WithLabelValues(outcome).Inc()
}

// RecordHelperSpawn counts a helper process start.
func (r *Registry) RecordHelperSpawn(kind string, err error) {
	if r == nil {
		return
	}
	r.HelperSpawnsTotal.WithLabelValues(kind, result(err)).Inc()
	if err == nil {
		r.HelperRunning.WithLabelValues(kind).Set(1)
	}
}

// RecordHelperExit counts an observed helper exit.
func (r *Registry) RecordHelperExit(kind string, err error) {
	if r == nil {
		return
	}
	r.HelperExitsTotal.WithLabelValues(kind, result(err)).Inc()
	r.HelperRunning.WithLabelValues(kind).Set(0)
}

// RecordReconcileBroadcast counts a reconciler broadcast by operation.
func (r *Registry) RecordReconcileBroadcast(op string, err error) {
	if r == nil {
		return
	}
	r.ReconcileBroadcastsTotal.WithLabelValues(op, result(err)).Inc()
}

// RecordContinuationTimeout counts an expired continuation by kind.
func (r *Registry) RecordContinuationTimeout(kind string) {
	if r == nil {
		return
	}
	r.ContinuationTimeouts.WithLabelValues(kind).Inc()
}

// SetStaleClients publishes the number of stale client registrations.
func (r *Registry) SetStaleClients(n int) {
	if r == nil {
		return
	}
	r.StaleClients.Set(float64(n))
}

// RecordDiscardedClient counts a fully discarded client registration.
func (r *Registry) RecordDiscardedClient() {
	if r == nil {
		return
	}
	r.DiscardedClientsTotal.Inc()
}

// UpdateSystemMetrics refreshes uptime and goroutine gauges.
func (r *Registry) UpdateSystemMetrics() {
	if r == nil {
		return
	}
	r.UptimeSeconds.Set(time.Since(r.started).Seconds())
	r.GoRoutines.Set(float64(runtime.NumGoroutine()))
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}
