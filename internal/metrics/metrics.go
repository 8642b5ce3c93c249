// Package metrics provides Prometheus collectors for the upstream relay.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Relay holds the collectors updated by relay operations. A nil *Relay is
// valid and records nothing.
type Relay struct {
	connects *prometheus.CounterVec
	written  *prometheus.CounterVec
	errors   *prometheus.CounterVec
	inFlight prometheus.Gauge
}

// NewRelay registers relay collectors with r under namespace. If r is nil the
// collectors are registered with a private registry that is discarded.
func NewRelay(r prometheus.Registerer, namespace string) *Relay {
	if r == nil {
		r = prometheus.NewRegistry()
	}
	f := promauto.With(r)

	return &Relay{
		connects: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_connects_total",
			Help:      "Upstream connection attempts by result.",
		}, []string{"result"}),
		written: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_written_bytes_total",
			Help:      "Bytes written to upstream connections by request phase.",
		}, []string{"phase"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "relay_errors_total",
			Help:      "Relay operations aborted by phase.",
		}, []string{"phase"}),
		inFlight: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "relay_in_flight",
			Help:      "Upstream connections currently held by relay operations.",
		}),
	}
}

// Connect records a connection attempt. result is "ok" on success or the
// failure kind otherwise.
func (m *Relay) Connect(result string) {
	if m == nil {
		return
	}
	m.connects.WithLabelValues(result).Inc()
	if result == "ok" {
		m.inFlight.Inc()
	}
}

// Closed records the release of a connection counted by Connect.
func (m *Relay) Closed() {
	if m == nil {
		return
	}
	m.inFlight.Dec()
}

// Written adds n bytes written during phase.
func (m *Relay) Written(phase string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.written.WithLabelValues(phase).Add(float64(n))
}

// Error records a relay operation aborted during phase.
func (m *Relay) Error(phase string) {
	if m == nil {
		return
	}
	m.errors.WithLabelValues(phase).Inc()
}
