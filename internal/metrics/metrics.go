// Package metrics exposes the substrate's Prometheus metrics: counters and a
// histogram for the Event Store, Scheduler, Job Dispatcher, and Cache, plus a
// thin HTTP instrumentation middleware for every path except /metrics. Namespaced
// "substrate" the way the teacher namespaces its HTTP metrics "alert_history"
// (pkg/metrics/prometheus.go).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "substrate"

// Metrics bundles every counter/histogram the substrate's components record
// against. Built once at startup and threaded through each component.
type Metrics struct {
	EventsPopped       prometheus.Histogram   // batch size per PopReadyEvents call
	SchedulerLocksWon  *prometheus.CounterVec // labeled by task name
	SchedulerLocksLost *prometheus.CounterVec // labeled by task name
	DispatcherQueued   *prometheus.CounterVec // labeled by priority
	DispatcherDropped  *prometheus.CounterVec // labeled by priority, queue-full
	CacheHits          *prometheus.CounterVec // labeled by operation
	CacheMisses        *prometheus.CounterVec // labeled by operation

	httpRequests *prometheus.CounterVec
	httpDuration *prometheus.HistogramVec
}

// New registers and returns the substrate's metric set against the default
// Prometheus registry.
func New() *Metrics {
	return &Metrics{
		EventsPopped: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "events",
			Name:      "popped_batch_size",
			Help:      "Number of events returned by a single PopReadyEvents call",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		SchedulerLocksWon: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "lock_acquisitions_total",
			Help:      "Number of times this replica won a task's lease lock",
		}, []string{"task"}),
		SchedulerLocksLost: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "lock_skips_total",
			Help:      "Number of times this replica lost a task's lease lock to another replica",
		}, []string{"task"}),
		DispatcherQueued: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "jobs_queued_total",
			Help:      "Number of jobs successfully enqueued, by priority",
		}, []string{"priority"}),
		DispatcherDropped: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "dispatcher",
			Name:      "jobs_dropped_total",
			Help:      "Number of jobs rejected because their priority queue was full",
		}, []string{"priority"}),
		CacheHits: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "hits_total",
			Help:      "Number of cache reads that found a value",
		}, []string{"op"}),
		CacheMisses: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "cache",
			Name:      "misses_total",
			Help:      "Number of cache reads that found nothing",
		}, []string{"op"}),
		httpRequests: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests processed",
		}, []string{"method", "path", "status_code"}),
		httpDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1.0},
		}, []string{"method", "path", "status_code"}),
	}
}

type statusWriter struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusWriter) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// Middleware instruments every HTTP request except /metrics itself.
func (m *Metrics) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		start := time.Now()
		wrapped := &statusWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		status := strconv.Itoa(wrapped.statusCode)
		m.httpRequests.WithLabelValues(r.Method, r.URL.Path, status).Inc()
		m.httpDuration.WithLabelValues(r.Method, r.URL.Path, status).Observe(time.Since(start).Seconds())
	})
}

// Handler serves the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.Handler()
}
