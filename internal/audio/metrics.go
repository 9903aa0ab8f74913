package audio

import (
	"errors"
	"log/slog"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsNamespace = "audiofocus"

// metrics tracks admission and completion counts for a Manager.
type metrics struct {
	admitted  *prometheus.CounterVec
	rejected  *prometheus.CounterVec
	preempted *prometheus.CounterVec
	completed *prometheus.CounterVec
	bytes     *prometheus.CounterVec
	active    *prometheus.GaugeVec
	volume    prometheus.Gauge
}

func newMetrics(reg prometheus.Registerer, logger *slog.Logger) *metrics {
	m := &metrics{
		admitted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "streams_admitted_total",
			Help:      "Streams admitted, by kind and priority.",
		}, []string{"kind", "priority"}),
		rejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "streams_rejected_total",
			Help:      "Requests refused at admission, by kind and reason.",
		}, []string{"kind", "reason"}),
		preempted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "streams_preempted_total",
			Help:      "Playback streams interrupted by a higher priority, by interrupted priority.",
		}, []string{"priority"}),
		completed: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "streams_completed_total",
			Help:      "Streams that reached a terminal state, by kind and state.",
		}, []string{"kind", "state"}),
		bytes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "pcm_bytes_total",
			Help:      "PCM bytes moved by finished streams, by kind.",
		}, []string{"kind"}),
		active: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "active_streams",
			Help:      "Streams currently holding a slot (playback or recording).",
		}, []string{"slot"}),
		volume: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "volume",
			Help:      "System volume (0-100).",
		}),
	}

	if reg != nil {
		for _, c := range m.collectors() {
			if err := reg.Register(c); err != nil {
				logger.Warn("failed to register audio metric", "error", err)
			}
		}
	}
	return m
}

func (m *metrics) collectors() []prometheus.Collector {
	return []prometheus.Collector{m.admitted, m.rejected, m.preempted, m.completed, m.bytes, m.active, m.volume}
}

// reject counts a refused request and returns err unchanged.
func (m *metrics) reject(kind Kind, err error) error {
	m.rejected.WithLabelValues(kind.String(), rejectReason(err)).Inc()
	return err
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrCapabilityUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidArgument):
		return "invalid"
	case errors.Is(err, ErrClosed):
		return "closed"
	default:
		return "other"
	}
}

func slotName(kind Kind) string {
	if kind == KindFileRecording {
		return "recording"
	}
	return "playback"
}
