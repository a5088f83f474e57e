// Package metrics exposes Prometheus instrumentation for the engine, the
// pruning worker and the callable API. A nil *Metrics is valid and records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "marginalia"

// Metrics holds every collector of the process.
type Metrics struct {
	eventsTotal        *prometheus.CounterVec
	eventDuration      *prometheus.HistogramVec
	notificationsTotal *prometheus.CounterVec
	churnsTotal        prometheus.Counter
	pruneUnitsTotal    *prometheus.CounterVec
	pruneRemovedTotal  *prometheus.CounterVec
	pruneDuration      *prometheus.HistogramVec
	requestsTotal      *prometheus.CounterVec
	requestDuration    *prometheus.HistogramVec
}

// New registers all collectors on reg.
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Engagement events handled by the engine",
		}, []string{"event", "outcome"}),

		eventDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "event_duration_seconds",
			Help:      "Duration of engagement event handling in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),

		notificationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notifications approved by the throttle",
		}, []string{"kind"}),

		churnsTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "risk_churns_total",
			Help:      "Flags that started a fresh risk episode",
		}),

		pruneUnitsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prune_units_total",
			Help:      "Users or topics visited by pruning jobs",
		}, []string{"job", "outcome"}),

		pruneRemovedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "prune_removed_total",
			Help:      "Entries removed by pruning jobs",
		}, []string{"job"}),

		pruneDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "prune_duration_seconds",
			Help:      "Duration of a full pruning run in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.01, 4, 8),
		}, []string{"job"}),

		requestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served by the callable API",
		}, []string{"route", "status"}),

		requestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObserveEvent records the outcome and duration of an engine event.
func (m *Metrics) ObserveEvent(event string, err error, duration time.Duration) {
	if m == nil {
		return
	}

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}

	m.eventsTotal.WithLabelValues(event, outcome).Inc()
	m.eventDuration.WithLabelValues(event).Observe(duration.Seconds())
}

// IncNotification counts an emitted notification.
func (m *Metrics) IncNotification(kind string) {
	if m == nil {
		return
	}
	m.notificationsTotal.WithLabelValues(kind).Inc()
}

// IncChurn counts a churned risk aggregate.
func (m *Metrics) IncChurn() {
	if m == nil {
		return
	}
	m.churnsTotal.Inc()
}

// ObservePruneUnit records one pruned user or topic.
func (m *Metrics) ObservePruneUnit(job string, removed int, err error) {
	if m == nil {
		return
	}

	if err != nil {
		m.pruneUnitsTotal.WithLabelValues(job, "skipped").Inc()
		return
	}

	m.pruneUnitsTotal.WithLabelValues(job, "pruned").Inc()
	m.pruneRemovedTotal.WithLabelValues(job).Add(float64(removed))
}

// ObservePruneRun records the duration of a full pruning run.
func (m *Metrics) ObservePruneRun(job string, duration time.Duration) {
	if m == nil {
		return
	}
	m.pruneDuration.WithLabelValues(job).Observe(duration.Seconds())
}

// ObserveRequest records a served HTTP request.
func (m *Metrics) ObserveRequest(route string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	m.requestsTotal.WithLabelValues(route, statusBucket(status)).Inc()
	m.requestDuration.WithLabelValues(route).Observe(duration.Seconds())
}

func statusBucket(code int) string {
	switch {
	case code < 300:
		return "2xx"
	case code < 400:
		return "3xx"
	case code < 500:
		return "4xx"
	default:
		return "5xx"
	}
}
