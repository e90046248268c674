package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Registry holds all metrics for the node
type Registry struct {
	// Control state machine
	ControlState        *prometheus.GaugeVec
	ControlTransitions  *prometheus.CounterVec
	ControlFatalTotal   *prometheus.CounterVec
	ControlTickDuration prometheus.Histogram
	NodeEpoch           prometheus.Gauge
	RulingEpoch         prometheus.Gauge
	Coordinator         prometheus.Gauge
	AnnouncementsTotal  *prometheus.CounterVec
	SyncRoundsTotal     *prometheus.CounterVec

	// Bulk transfer helpers
	HelperSpawnsTotal *prometheus.CounterVec
	HelperExitsTotal  *prometheus.CounterVec
	HelperRunning     *prometheus.GaugeVec

	// Reconciliation
	ReconcileBroadcastsTotal *prometheus.CounterVec
	ContinuationTimeouts     *prometheus.CounterVec
	StaleClients             prometheus.Gauge
	DiscardedClientsTotal    prometheus.Counter

	// System
	UptimeSeconds prometheus.Gauge
	GoRoutines    prometheus.Gauge

	started  time.Time
	registry *prometheus.Registry
	mu       sync.Mutex
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)
