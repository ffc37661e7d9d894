package obs

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// HTTP-level metrics.
var (
	httpInFlight = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "http_in_flight_requests",
		Help: "In-flight HTTP requests.",
	})

	httpRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests.",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latencies in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)

// Disclosure-core metrics.
var (
	denialsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridex_denials_total",
			Help: "Generic denials returned by the disclosure core, by component.",
		},
		[]string{"component"},
	)

	shareAccessTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridex_share_access_total",
			Help: "Shared-view access attempts by result.",
		},
		[]string{"result"},
	)

	integrityFailuresTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "veridex_integrity_failures_total",
		Help: "Audit hash-chain verifications that reported a mismatch.",
	})

	autofillDecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "veridex_autofill_decisions_total",
			Help: "Autofill proposal outcomes by status.",
		},
		[]string{"status"},
	)
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight, httpRequestsTotal, httpRequestDuration,
		denialsTotal, shareAccessTotal, integrityFailuresTotal, autofillDecisionsTotal,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// CountDenial records a generic denial issued by the named component.
func CountDenial(component string) {
	denialsTotal.WithLabelValues(component).Inc()
}

// CountShareAccess records the outcome of a shared-view access attempt.
func CountShareAccess(result string) {
	shareAccessTotal.WithLabelValues(result).Inc()
}

// CountIntegrityFailure records a failed hash-chain verification.
func CountIntegrityFailure() {
	integrityFailuresTotal.Inc()
}

// CountAutofillDecision records a terminal autofill outcome.
func CountAutofillDecision(status string) {
	autofillDecisionsTotal.WithLabelValues(status).Inc()
}

// Instrument wraps a handler with RPS/latency/in-flight measurement.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		method := r.Method

		httpInFlight.Inc()
		start := time.Now()

		sw := &statusWriter{ResponseWriter: w, code: 200}
		next.ServeHTTP(sw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(sw.code)

		httpRequestDuration.WithLabelValues(method, path, status).Observe(duration)
		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpInFlight.Dec()
	})
}

// statusWriter captures the response code written by downstream handlers.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}
