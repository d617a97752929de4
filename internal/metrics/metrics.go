// ABOUTME: Prometheus metrics for the walkie arbiter server
// ABOUTME: Floor grants, denials, releases and audio relay counters
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Release reasons
const (
	ReleaseStop       = "stop"
	ReleaseTimeout    = "timeout"
	ReleaseDisconnect = "disconnect"
	ReleaseDisabled   = "disabled"
)

// Drop reasons
const (
	DropNotHolder = "not_holder"
	DropEmpty     = "empty"
	DropQueueFull = "queue_full"
	DropMalformed = "malformed"
)

// Metrics contains all Prometheus metrics for the arbiter
type Metrics struct {
	// Connections
	Clients prometheus.Gauge

	// Floor control
	Grants      prometheus.Counter
	Denials     prometheus.Counter
	Releases    *prometheus.CounterVec
	HoldSeconds prometheus.Histogram
	PTTEnabled  prometheus.Gauge

	// Audio relay
	FramesRelayed prometheus.Counter
	BytesRelayed  prometheus.Counter
	FramesDropped *prometheus.CounterVec
}

// New creates and registers all metrics on reg. A nil registerer leaves
// the metrics unregistered.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Clients: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walkie_connected_clients",
			Help: "Current number of connected clients",
		}),

		Grants: factory.NewCounter(prometheus.CounterOpts{
			Name: "walkie_floor_grants_total",
			Help: "Total number of start_speaking requests granted",
		}),
		Denials: factory.NewCounter(prometheus.CounterOpts{
			Name: "walkie_floor_denials_total",
			Help: "Total number of start_speaking requests denied",
		}),
		Releases: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walkie_floor_releases_total",
			Help: "Total number of floor releases by reason",
		}, []string{"reason"}),
		HoldSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "walkie_floor_hold_seconds",
			Help:    "How long the floor was held before release",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30},
		}),
		PTTEnabled: factory.NewGauge(prometheus.GaugeOpts{
			Name: "walkie_ptt_enabled",
			Help: "Whether push-to-talk is currently enabled (1) or disabled (0)",
		}),

		FramesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "walkie_frames_relayed_total",
			Help: "Total number of audio frames delivered to listeners",
		}),
		BytesRelayed: factory.NewCounter(prometheus.CounterOpts{
			Name: "walkie_bytes_relayed_total",
			Help: "Total number of audio payload bytes delivered to listeners",
		}),
		FramesDropped: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "walkie_frames_dropped_total",
			Help: "Total number of audio frames dropped by reason",
		}, []string{"reason"}),
	}
}

// SetEnabled records the push-to-talk switch.
func (m *Metrics) SetEnabled(enabled bool) {
	if enabled {
		m.PTTEnabled.Set(1)
		return
	}
	m.PTTEnabled.Set(0)
}
