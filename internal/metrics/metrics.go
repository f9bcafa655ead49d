package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "ciphersock"

// Handshake tracks handshake latency and failures plus live peers.
type Handshake struct {
	Latency  *prometheus.HistogramVec // labels: role, result
	Failures *prometheus.CounterVec   // labels: role, step, kind
	Rejected *prometheus.CounterVec   // labels: reason
	Peers    prometheus.Gauge
}

// NewHandshake builds the collectors and registers them with reg when it is
// non-nil.
func NewHandshake(reg prometheus.Registerer) (*Handshake, error) {
	m := &Handshake{
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "handshake_duration_seconds",
			Help:      "Time from stream open to encrypted session.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"role", "result"}),
		Failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "handshake_failures_total",
			Help:      "Failed handshakes by step and kind.",
		}, []string{"role", "step", "kind"}),
		Rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "peers_rejected_total",
			Help:      "Connections refused before the handshake.",
		}, []string{"reason"}),
		Peers: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "peers_active",
			Help:      "Peers currently held by the listener.",
		}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{m.Latency, m.Failures, m.Rejected, m.Peers} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return m, nil
}

// ObserveHandshake records one handshake outcome.
func (m *Handshake) ObserveHandshake(role string, started time.Time, err error, step, kind string) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
		m.Failures.WithLabelValues(role, step, kind).Inc()
	}
	m.Latency.WithLabelValues(role, result).Observe(time.Since(started).Seconds())
}

// Reject records a connection refused before the handshake.
func (m *Handshake) Reject(reason string) {
	if m == nil {
		return
	}
	m.Rejected.WithLabelValues(reason).Inc()
}

// PeerAdded and PeerRemoved track the listener's registry size.
func (m *Handshake) PeerAdded() {
	if m != nil {
		m.Peers.Inc()
	}
}

func (m *Handshake) PeerRemoved() {
	if m != nil {
		m.Peers.Dec()
	}
}
