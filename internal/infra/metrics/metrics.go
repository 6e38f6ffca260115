// Package metrics provides Prometheus collectors for the call simulation.
package metrics

import (
	"net/http"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "exitcall"

// Outcome label values.
const (
	OutcomeOK       = "ok"
	OutcomeRejected = "rejected"
	OutcomeError    = "error"
)

// Trigger label values.
const (
	TriggerFired     = "fired"
	TriggerCancelled = "cancelled"
	TriggerSkipped   = "skipped"
	TriggerFailed    = "failed"
)

// Metrics holds the collectors. A nil *Metrics is valid and records nothing.
type Metrics struct {
	registry *prometheus.Registry

	sessionsStarted  prometheus.Counter
	transitions      *prometheus.CounterVec
	triggers         *prometheus.CounterVec
	playbackFailures prometheus.Counter
	ringing          prometheus.Gauge
	uploads          *prometheus.CounterVec
}

// New creates the collectors and registers them on a dedicated registry.
func New() (*Metrics, error) {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "started_total",
			Help:      "Call sessions created.",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "session",
			Name:      "transitions_total",
			Help:      "Session transitions by name and outcome.",
		}, []string{"transition", "outcome"}),
		triggers: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "trigger",
			Name:      "total",
			Help:      "Deferred incoming-call triggers by result.",
		}, []string{"result"}),
		playbackFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ringtone",
			Name:      "failures_total",
			Help:      "Ringtones that could not start.",
		}),
		ringing: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "ringtone",
			Name:      "ringing",
			Help:      "Ringtone handles currently owned by incoming sessions.",
		}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "upload",
			Name:      "total",
			Help:      "Ringtone uploads by outcome.",
		}, []string{"outcome"}),
	}

	collectors := []prometheus.Collector{
		m.sessionsStarted,
		m.transitions,
		m.triggers,
		m.playbackFailures,
		m.ringing,
		m.uploads,
		prometheus.NewGoCollector(),
	}
	for _, c := range collectors {
		if err := m.registry.Register(c); err != nil {
			return nil, errors.Wrap(err, "failed to register collector")
		}
	}

	return m, nil
}

// Handler returns the HTTP handler exposing the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.sessionsStarted.Inc()
}

func (m *Metrics) Transition(name, outcome string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(name, outcome).Inc()
}

func (m *Metrics) Trigger(result string) {
	if m == nil {
		return
	}
	m.triggers.WithLabelValues(result).Inc()
}

func (m *Metrics) PlaybackFailure() {
	if m == nil {
		return
	}
	m.playbackFailures.Inc()
}

// RingingAcquired and RingingReleased track owned ringtone handles.
func (m *Metrics) RingingAcquired() {
	if m == nil {
		return
	}
	m.ringing.Inc()
}

func (m *Metrics) RingingReleased() {
	if m == nil {
		return
	}
	m.ringing.Dec()
}

func (m *Metrics) Upload(outcome string) {
	if m == nil {
		return
	}
	m.uploads.WithLabelValues(outcome).Inc()
}
