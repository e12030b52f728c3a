package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	TasksEnqueuedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_tasks_enqueued_total",
			Help: "Total number of moderation requests published to the bus",
		},
	)
	TasksCompletedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_tasks_completed_total",
			Help: "Total number of tasks transitioned to completed",
		},
	)
	TasksFailedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_tasks_failed_total",
			Help: "Total number of tasks transitioned to failed",
		},
	)
	TasksDiscardedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_tasks_discarded_total",
			Help: "Total number of duplicate requests that found no pending task",
		},
	)
	DLQMessagesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "moderation_dlq_messages_total",
			Help: "Total number of envelopes published to the dead-letter topic",
		},
	)

	CacheOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cache_operations_total",
			Help: "Cache operations by cache name and outcome",
		},
		[]string{"cache", "outcome"},
	)

	ViolationProbability = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "moderation_violation_probability",
			Help:    "Distribution of scored violation probabilities",
			Buckets: []float64{0, 0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 1.0},
		},
	)
)

// InitMetrics registers all collectors once per process.
func InitMetrics() {
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
	prometheus.MustRegister(TasksEnqueuedTotal)
	prometheus.MustRegister(TasksCompletedTotal)
	prometheus.MustRegister(TasksFailedTotal)
	prometheus.MustRegister(TasksDiscardedTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(CacheOpsTotal)
	prometheus.MustRegister(ViolationProbability)
}

// HTTPMetricsMiddleware records Prometheus metrics for each request.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		dur := time.Since(start).Seconds()
		// Route pattern may be unavailable outside chi router; guard nil
		var route string
		if rc := chi.RouteContext(r.Context()); rc != nil {
			route = rc.RoutePattern()
		}
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(dur)
	})
}

// CacheHit records a successful cache read.
func CacheHit(cache string) { CacheOpsTotal.WithLabelValues(cache, "hit").Inc() }

// CacheMiss records an absent or unusable cache entry.
func CacheMiss(cache string) { CacheOpsTotal.WithLabelValues(cache, "miss").Inc() }

// CacheError records a degraded cache operation.
func CacheError(cache string) { CacheOpsTotal.WithLabelValues(cache, "error").Inc() }
