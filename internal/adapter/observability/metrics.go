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
	// HTTPRequestsTotal counts HTTP requests by route/method/status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "status"},
	)
	// HTTPRequestDuration observes request latency.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5},
		},
		[]string{"route", "method"},
	)

	// JobsEnqueuedTotal counts jobs enqueued per queue.
	JobsEnqueuedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_enqueued_total",
			Help: "Total number of jobs enqueued",
		},
		[]string{"queue"},
	)
	// JobsProcessing gauges in-flight handlers per queue.
	JobsProcessing = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "jobs_processing",
			Help: "Number of jobs currently processing",
		},
		[]string{"queue"},
	)
	// JobsCompletedTotal counts handler completions per queue.
	JobsCompletedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_completed_total",
			Help: "Total number of jobs completed",
		},
		[]string{"queue"},
	)
	// JobsFailedTotal counts handler failures per queue.
	JobsFailedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "jobs_failed_total",
			Help: "Total number of jobs failed",
		},
		[]string{"queue"},
	)

	// PostOutcomesTotal counts classified posting outcomes.
	PostOutcomesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "post_outcomes_total",
			Help: "Comment posting outcomes by class",
		},
		[]string{"class"},
	)
	// UpstreamRequestDuration observes upstream platform call latency.
	UpstreamRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "upstream_request_duration_seconds",
			Help:    "Upstream platform request duration in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"operation"},
	)

	// SleepCyclesTotal counts sleep-window entries.
	SleepCyclesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "sleep_cycles_total",
			Help: "Total number of sleep windows entered",
		},
	)
	// RotationsTotal counts account-pool rotations.
	RotationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rotations_total",
			Help: "Total number of account pool rotations",
		},
		[]string{"direction"},
	)
	// ProxyReactivationsTotal counts self-healed proxies.
	ProxyReactivationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "proxy_reactivations_total",
			Help: "Total number of inactive proxies reactivated by a live probe",
		},
	)
)

// InitMetrics registers all collectors with the default registry.
// Safe to call once per process.
func InitMetrics() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		JobsEnqueuedTotal,
		JobsProcessing,
		JobsCompletedTotal,
		JobsFailedTotal,
		PostOutcomesTotal,
		UpstreamRequestDuration,
		SleepCyclesTotal,
		RotationsTotal,
		ProxyReactivationsTotal,
	)
}

// EnqueueJob records one enqueued job.
func EnqueueJob(queue string) { JobsEnqueuedTotal.WithLabelValues(queue).Inc() }

// StartProcessingJob marks a handler start.
func StartProcessingJob(queue string) { JobsProcessing.WithLabelValues(queue).Inc() }

// CompleteJob marks a handler completion.
func CompleteJob(queue string) {
	JobsProcessing.WithLabelValues(queue).Dec()
	JobsCompletedTotal.WithLabelValues(queue).Inc()
}

// FailJob marks a handler failure.
func FailJob(queue string) {
	JobsProcessing.WithLabelValues(queue).Dec()
	JobsFailedTotal.WithLabelValues(queue).Inc()
}

// PostOutcome records one classified posting outcome.
func PostOutcome(class string) { PostOutcomesTotal.WithLabelValues(class).Inc() }

// HTTPMetricsMiddleware instruments requests with count and duration.
func HTTPMetricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = r.URL.Path
		}
		HTTPRequestsTotal.WithLabelValues(route, r.Method, strconv.Itoa(ww.Status())).Inc()
		HTTPRequestDuration.WithLabelValues(route, r.Method).Observe(time.Since(start).Seconds())
	})
}
