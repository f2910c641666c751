package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "infrawatch"

// Metrics holds every collector the service exports.
type Metrics struct {
	registry *prometheus.Registry

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec

	validationRejections *prometheus.CounterVec

	hubClients    prometheus.Gauge
	hubBroadcasts prometheus.Counter
	hubDropped    prometheus.Counter

	realtimeState       *prometheus.GaugeVec
	realtimeTransitions *prometheus.CounterVec

	eventsPublished *prometheus.CounterVec
}

// New creates the collectors on a fresh registry, together with the Go
// runtime and process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m := &Metrics{
		registry: reg,
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests by route, method and status code.",
		}, []string{"route", "method", "code"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route", "method"}),
		validationRejections: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "validation",
			Name:      "rejections_total",
			Help:      "Requests rejected with 400 by input source.",
		}, []string{"source"}),
		hubClients: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "clients",
			Help:      "Connected realtime clients.",
		}),
		hubBroadcasts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "broadcasts_total",
			Help:      "Frames broadcast to realtime clients.",
		}),
		hubDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "hub",
			Name:      "dropped_total",
			Help:      "Frames dropped because a client send queue was full.",
		}),
		realtimeState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "state",
			Help:      "1 for the current realtime client state, 0 otherwise.",
		}, []string{"state"}),
		realtimeTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "realtime",
			Name:      "transitions_total",
			Help:      "Realtime client state transitions by target state.",
		}, []string{"to"}),
		eventsPublished: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "published_total",
			Help:      "Change events published by sink and result.",
		}, []string{"sink", "result"}),
	}

	reg.MustRegister(
		m.httpRequests,
		m.httpDuration,
		m.validationRejections,
		m.hubClients,
		m.hubBroadcasts,
		m.hubDropped,
		m.realtimeState,
		m.realtimeTransitions,
		m.eventsPublished,
	)
	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveRequest records one HTTP request.
func (m *Metrics) ObserveRequest(route, method string, code int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, method, strconv.Itoa(code)).Inc()
	m.httpDuration.WithLabelValues(route, method).Observe(elapsed.Seconds())
}

// ValidationRejected counts a 400 from the validation middleware.
func (m *Metrics) ValidationRejected(source string) {
	if m == nil {
		return
	}
	m.validationRejections.WithLabelValues(source).Inc()
}

// HubClientConnected increments the connected client gauge.
func (m *Metrics) HubClientConnected() {
	if m == nil {
		return
	}
	m.hubClients.Inc()
}

// HubClientDisconnected decrements the connected client gauge.
func (m *Metrics) HubClientDisconnected() {
	if m == nil {
		return
	}
	m.hubClients.Dec()
}

// HubBroadcast counts one broadcast and the clients it was dropped for.
func (m *Metrics) HubBroadcast(dropped int) {
	if m == nil {
		return
	}
	m.hubBroadcasts.Inc()
	if dropped > 0 {
		m.hubDropped.Add(float64(dropped))
	}
}

// RealtimeTransition records a client state change.
func (m *Metrics) RealtimeTransition(from, to string) {
	if m == nil {
		return
	}
	m.realtimeState.WithLabelValues(from).Set(0)
	m.realtimeState.WithLabelValues(to).Set(1)
	m.realtimeTransitions.WithLabelValues(to).Inc()
}

// EventPublished records the outcome of publishing to sink.
func (m *Metrics) EventPublished(sink string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(sink, result).Inc()
}
