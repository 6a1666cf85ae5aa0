package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics for the gateway. A nil *Metrics is
// valid and records nothing, so wiring stays optional in tests.
type Metrics struct {
	registry *prometheus.Registry

	SessionsActive  prometheus.Gauge
	SessionsTotal   prometheus.Counter
	SessionDuration prometheus.Histogram

	ClientMessagesTotal *prometheus.CounterVec
	ProviderEventsTotal *prometheus.CounterVec
	TextFlushesTotal    prometheus.Counter
	ErrorsTotal         *prometheus.CounterVec
}

// New creates a Metrics instance with all metrics registered on a private
// registry.
func New(namespace string) *Metrics {
	if namespace == "" {
		namespace = "jastalk"
	}

	registry := prometheus.NewRegistry()

	sessionsActive := prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "live_sessions_active",
		Help:      "Number of active interview sessions",
	})
	sessionsTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "live_sessions_total",
		Help:      "Total interview sessions started",
	})
	sessionDuration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "live_session_duration_seconds",
		Help:      "Interview session duration in seconds",
		Buckets:   []float64{10, 30, 60, 120, 300, 600, 1800, 3600},
	})
	clientMessagesTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "client_messages_total",
		Help:      "Inbound client messages by kind",
	}, []string{"kind"})
	providerEventsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "provider_events_total",
		Help:      "Provider push-events by kind",
	}, []string{"kind"})
	textFlushesTotal := prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "text_flushes_total",
		Help:      "Accumulated text chunks flushed to clients",
	})
	errorsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "errors_total",
		Help:      "Errors by stage",
	}, []string{"stage"})

	registry.MustRegister(
		sessionsActive,
		sessionsTotal,
		sessionDuration,
		clientMessagesTotal,
		providerEventsTotal,
		textFlushesTotal,
		errorsTotal,
	)

	return &Metrics{
		registry:            registry,
		SessionsActive:      sessionsActive,
		SessionsTotal:       sessionsTotal,
		SessionDuration:     sessionDuration,
		ClientMessagesTotal: clientMessagesTotal,
		ProviderEventsTotal: providerEventsTotal,
		TextFlushesTotal:    textFlushesTotal,
		ErrorsTotal:         errorsTotal,
	}
}

// Handler serves the registry in Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) SessionStarted() {
	if m == nil {
		return
	}
	m.SessionsTotal.Inc()
	m.SessionsActive.Inc()
}

func (m *Metrics) SessionEnded(d time.Duration) {
	if m == nil {
		return
	}
	m.SessionsActive.Dec()
	m.SessionDuration.Observe(d.Seconds())
}

func (m *Metrics) ClientMessage(kind string) {
	if m == nil {
		return
	}
	m.ClientMessagesTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) ProviderEvent(kind string) {
	if m == nil {
		return
	}
	m.ProviderEventsTotal.WithLabelValues(kind).Inc()
}

func (m *Metrics) TextFlush() {
	if m == nil {
		return
	}
	m.TextFlushesTotal.Inc()
}

func (m *Metrics) Error(stage string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(stage).Inc()
}
