package observability

import "github.com/prometheus/client_golang/prometheus"

// Metrics groups the counters/gauges emitted by both engines under one
// private registry, following the teacher's NewMetrics/Registry shape.
type Metrics struct {
	registry *prometheus.Registry

	// Recording-side, except ActiveConnections which both engines'
	// CONNECT/MITM tunnel handling increments and decrements.
	ResourcesRecordedTotal  *prometheus.CounterVec
	ActiveConnections       prometheus.Gauge
	UpstreamErrorsTotal     *prometheus.CounterVec
	NormalisationErrorTotal prometheus.Counter

	// Playback-side.
	BytesStreamedTotal       prometheus.Counter
	TimingDeadlineMissTotal  prometheus.Counter
	MatchNotFoundTotal       prometheus.Counter
	ActiveStreamedTransfers  prometheus.Gauge
}

// NewMetrics constructs and registers the full metric set under the
// playback_proxy namespace.
func NewMetrics() *Metrics {
	r := prometheus.NewRegistry()
	m := &Metrics{
		registry: r,
		ResourcesRecordedTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "playback_proxy",
			Name:      "resources_recorded_total",
			Help:      "Resources appended to the in-memory inventory, by outcome",
		}, []string{"outcome"}),
		ActiveConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "playback_proxy",
			Name:      "active_connections",
			Help:      "Client connections currently being served",
		}),
		UpstreamErrorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "playback_proxy",
			Name:      "upstream_errors_total",
			Help:      "Upstream request errors by kind",
		}, []string{"kind"}),
		NormalisationErrorTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "playback_proxy",
			Name:      "normalisation_errors_total",
			Help:      "Response normalisation failures (non-fatal)",
		}),
		BytesStreamedTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "playback_proxy",
			Name:      "bytes_streamed_total",
			Help:      "Body bytes written to playback clients",
		}),
		TimingDeadlineMissTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "playback_proxy",
			Name:      "timing_deadline_misses_total",
			Help:      "Chunk or close writes that missed their target deadline",
		}),
		MatchNotFoundTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "playback_proxy",
			Name:      "match_not_found_total",
			Help:      "Playback requests with no matching transaction",
		}),
		ActiveStreamedTransfers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "playback_proxy",
			Name:      "active_streamed_transfers",
			Help:      "Transactions currently being streamed to a client",
		}),
	}
	r.MustRegister(
		m.ResourcesRecordedTotal,
		m.ActiveConnections,
		m.UpstreamErrorsTotal,
		m.NormalisationErrorTotal,
		m.BytesStreamedTotal,
		m.TimingDeadlineMissTotal,
		m.MatchNotFoundTotal,
		m.ActiveStreamedTransfers,
	)
	return m
}

// Registry exposes the underlying Prometheus registry, e.g. for tests that
// want to assert on collected samples.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }
