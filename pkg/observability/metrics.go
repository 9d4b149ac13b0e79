// Package observability provides Prometheus metrics and tracing for the
// timer coordination core: sample commits, channel traffic, and the
// failures both are designed to tolerate.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// TimerMetrics holds all Prometheus metrics for the coordination core.
type TimerMetrics struct {
	// Commit metrics
	SamplesCommittedTotal *prometheus.CounterVec
	SpeakingSeconds       *prometheus.HistogramVec
	ActiveSpeaker         *prometheus.GaugeVec

	// Channel metrics
	MessagesSentTotal     *prometheus.CounterVec
	MessagesReceivedTotal *prometheus.CounterVec
	MessagesDroppedTotal  *prometheus.CounterVec
	TransportFailures     *prometheus.CounterVec

	// Store metrics
	StoreWritesTotal *prometheus.CounterVec
}

// DefaultTimerMetrics creates metrics on the default registerer.
func DefaultTimerMetrics() *TimerMetrics {
	return NewTimerMetrics(prometheus.DefaultRegisterer)
}

// NewTimerMetrics creates a new set of coordination metrics.
func NewTimerMetrics(reg prometheus.Registerer) *TimerMetrics {
	factory := promauto.With(reg)

	return &TimerMetrics{
		SamplesCommittedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airtime_samples_committed_total",
				Help: "Completed speaking turns committed per category",
			},
			[]string{"category"},
		),
		SpeakingSeconds: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "airtime_speaking_seconds",
				Help:    "Duration of committed speaking turns",
				Buckets: []float64{1, 5, 10, 30, 60, 120, 300, 600},
			},
			[]string{"category"},
		),
		ActiveSpeaker: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "airtime_active_speaker",
				Help: "1 for the category currently speaking, 0 otherwise",
			},
			[]string{"category"},
		),
		MessagesSentTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airtime_messages_sent_total",
				Help: "Envelopes sent over the channel per kind",
			},
			[]string{"kind", "role"},
		),
		MessagesReceivedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airtime_messages_received_total",
				Help: "Envelopes accepted from the channel per kind",
			},
			[]string{"kind", "role"},
		),
		MessagesDroppedTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airtime_messages_dropped_total",
				Help: "Inbound envelopes dropped at the decode boundary",
			},
			[]string{"reason", "role"},
		),
		TransportFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airtime_transport_failures_total",
				Help: "Sends that certainly did not reach the peer",
			},
			[]string{"kind", "role"},
		),
		StoreWritesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "airtime_store_writes_total",
				Help: "Meeting record writes per key and outcome",
			},
			[]string{"key", "outcome"},
		),
	}
}

// Drop reasons for MessagesDroppedTotal.
const (
	DropReasonOrigin    = "origin_mismatch"
	DropReasonMalformed = "malformed"
)

// SetActiveSpeaker flips the per-category gauge so at most one category
// reads 1.
func (m *TimerMetrics) SetActiveSpeaker(categories []string, active string) {
	for _, c := range categories {
		v := 0.0
		if c == active {
			v = 1.0
		}
		m.ActiveSpeaker.WithLabelValues(c).Set(v)
	}
}
