package metrics

import (
	"database/sql"
	"log"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const (
	metricPrefix = "alarm_api_"

	resultSuccess = "success"
	resultError   = "error"
)

var (
	registerOnce sync.Once

	apiRequests *prometheus.CounterVec
	apiLatency  *prometheus.HistogramVec

	alarmEventsTotal      *prometheus.CounterVec
	stateTransitionsTotal *prometheus.CounterVec

	eventPublishErrors prometheus.Counter
)

// Init registers observability metrics and DB-backed gauges.
func Init(db *sql.DB, logger *log.Logger) {
	registerOnce.Do(func() {
		apiRequests = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "requests_total",
				Help: "Total API requests by operation and result",
			},
			[]string{"op", "result"},
		)
		apiLatency = prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    metricPrefix + "request_latency_seconds",
				Help:    "API request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"op", "result"},
		)

		alarmEventsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "alarm_events_total",
				Help: "Total alarm lifecycle events by type",
			},
			[]string{"event"},
		)
		stateTransitionsTotal = prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "state_transitions_total",
				Help: "Total alarm state transitions by new state",
			},
			[]string{"state"},
		)

		eventPublishErrors = prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: metricPrefix + "event_publish_errors_total",
				Help: "Total event bus publish failures",
			},
		)

		prometheus.MustRegister(
			apiRequests,
			apiLatency,
			alarmEventsTotal,
			stateTransitionsTotal,
			eventPublishErrors,
		)

		if db != nil {
			registerDBMetrics(db, logger)
		}
	})
}

// ObserveAPIRequest records request duration and result for an operation.
func ObserveAPIRequest(op, result string, duration time.Duration) {
	if result == "" {
		result = resultSuccess
	}
	if apiRequests != nil {
		apiRequests.WithLabelValues(op, result).Inc()
	}
	if apiLatency != nil {
		apiLatency.WithLabelValues(op, result).Observe(duration.Seconds())
	}
}

// IncAlarmEvent increments the alarm event counter.
func IncAlarmEvent(event string) {
	if event == "" {
		event = "unknown"
	}
	if alarmEventsTotal != nil {
		alarmEventsTotal.WithLabelValues(event).Inc()
	}
}

// IncStateTransition increments the state transition counter.
func IncStateTransition(newState string) {
	if newState == "" {
		return
	}
	if stateTransitionsTotal != nil {
		stateTransitionsTotal.WithLabelValues(newState).Inc()
	}
}

// IncEventPublishError increments the publish failure counter.
func IncEventPublishError() {
	if eventPublishErrors != nil {
		eventPublishErrors.Inc()
	}
}
