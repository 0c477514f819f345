// Package metrics holds the process-wide Prometheus collectors for the
// rating pipeline. Collectors register with the default registry and are
// exposed by the daemon under /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Fetch result labels.
const (
	ResultResolved  = "resolved"
	ResultNotFound  = "not_found"
	ResultThrottled = "throttled"
	ResultTransient = "transient"
	ResultPermanent = "permanent"
	ResultSkipped   = "skipped"
)

// Remote operation labels.
const (
	OpSearch  = "search"
	OpDetails = "details"
)

var (
	// FetchResultsTotal counts processed queue items by outcome.
	FetchResultsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csfdoverlay_fetch_results_total",
		Help: "Processed fetch work items by result",
	}, []string{"result"})

	// ThrottleSignalsTotal counts throttle responses fed to the rate limiter.
	ThrottleSignalsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "csfdoverlay_throttle_signals_total",
		Help: "Throttle signals registered with the rate limiter",
	})

	// RemoteRequestsTotal counts requests against the rating site.
	RemoteRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "csfdoverlay_remote_requests_total",
		Help: "Requests sent to the rating site by operation and outcome",
	}, []string{"op", "outcome"})

	// BreakerState reports circuit breaker state by name (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "csfdoverlay_breaker_state",
		Help: "Circuit breaker state by breaker name",
	}, []string{"name"})

	// QueueDepth reports pending work items.
	QueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "csfdoverlay_queue_depth",
		Help: "Pending fetch work items",
	})
)

// RecordFetchResult increments the fetch result counter.
func RecordFetchResult(result string) {
	FetchResultsTotal.WithLabelValues(result).Inc()
}

// RecordRemoteRequest increments the remote request counter.
func RecordRemoteRequest(op, outcome string) {
	RemoteRequestsTotal.WithLabelValues(op, outcome).Inc()
}

// RecordThrottleSignal increments the throttle signal counter.
func RecordThrottleSignal() {
	ThrottleSignalsTotal.Inc()
}

// SetQueueDepth updates the queue depth gauge.
func SetQueueDepth(n int) {
	QueueDepth.Set(float64(n))
}

// SetBreakerState records the numeric state of a named breaker.
func SetBreakerState(name string, state float64) {
	BreakerState.WithLabelValues(name).Set(state)
}
