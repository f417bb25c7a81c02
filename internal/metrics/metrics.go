// Package metrics defines the Prometheus collectors the engine reports
// through. A single Registry can be shared across an EventStore,
// Repository, and projection Engine within one process; the outbox
// Publisher reports through its own outbox.Metrics instead.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry bundles the engine's Prometheus collectors.
type Registry struct {
	AppendLatency  prometheus.Histogram
	AppendFailures *prometheus.CounterVec
	SnapshotWrites prometheus.Counter
	ProjectionLag  *prometheus.GaugeVec
}

// NewRegistry builds a Registry under namespace and registers it with reg.
func NewRegistry(namespace string, reg prometheus.Registerer) *Registry {
	m := &Registry{
		AppendLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "append_duration_seconds",
			Help:      "Latency of EventStore.Append calls.",
			Buckets:   prometheus.DefBuckets,
		}),
		AppendFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "append_failures_total",
			Help:      "EventStore.Append failures by kind.",
		}, []string{"kind"}),
		SnapshotWrites: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "snapshot_writes_total",
			Help:      "Snapshots persisted by the repository.",
		}),
		ProjectionLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "projection_lag",
			Help:      "Per-projection lag (highest global sequence minus checkpoint).",
		}, []string{"projection"}),
	}
	if reg != nil {
		reg.MustRegister(m.AppendLatency, m.AppendFailures, m.SnapshotWrites, m.ProjectionLag)
	}
	return m
}
