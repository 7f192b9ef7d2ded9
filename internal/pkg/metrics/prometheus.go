package metrics

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "secwatch"

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	httpRequestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_in_flight",
			Help:      "Number of HTTP requests currently being served",
		},
	)

	// Security metrics
	adminAccessTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "admin_access_total",
			Help:      "Total number of admin area accesses",
		},
		[]string{"path", "method", "user_type"},
	)

	failedLoginTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "failed_login_total",
			Help:      "Total number of failed login attempts",
		},
		[]string{"ip"},
	)

	failedLoginRate = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "failed_login_rate",
			Help:      "Failed login attempts per minute over the tracking window",
		},
		[]string{"ip"},
	)

	httpErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "security",
			Name:      "http_errors_total",
			Help:      "Total number of HTTP error responses",
		},
		[]string{"status_code", "path"},
	)

	// Alert pipeline metrics
	alertsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "total",
			Help:      "Total number of alerts by name and severity",
		},
		[]string{"alert_name", "severity"},
	)

	dispatchOutcomesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "dispatch_outcomes_total",
			Help:      "Sink invocations by sink and outcome",
		},
		[]string{"sink", "outcome"},
	)

	dispatchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "alert",
			Name:      "sink_duration_seconds",
			Help:      "Duration of sink invocations in seconds",
			Buckets:   []float64{.001, .005, .01, .05, .1, .5, 1, 5, 10, 30},
		},
		[]string{"sink"},
	)

	blockedIPsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mitigation",
			Name:      "blocked_ips_total",
			Help:      "Number of IP ranges added to the firewall block rule",
		},
	)

	trackedKeys = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "tracker",
			Name:      "keys",
			Help:      "Number of keys held by the failed login rate tracker",
		},
	)

	// Database metrics
	dbQueryDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "db",
			Name:      "query_duration_seconds",
			Help:      "Database query duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"operation", "table"},
	)
)

// responseWriter wraps http.ResponseWriter to capture status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Unwrap() http.ResponseWriter {
	return rw.ResponseWriter
}

// Middleware returns a middleware that records Prometheus metrics
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		httpRequestsInFlight.Inc()
		defer httpRequestsInFlight.Dec()

		wrapped := &responseWriter{
			ResponseWriter: w,
			statusCode:     http.StatusOK,
		}

		next.ServeHTTP(wrapped, r)

		duration := time.Since(start).Seconds()

		// Get route pattern from chi
		routePattern := "unknown"
		if rctx := chi.RouteContext(r.Context()); rctx != nil && rctx.RoutePattern() != "" {
			routePattern = rctx.RoutePattern()
		}

		status := strconv.Itoa(wrapped.statusCode)

		httpRequestsTotal.WithLabelValues(r.Method, routePattern, status).Inc()
		httpRequestDuration.WithLabelValues(r.Method, routePattern, status).Observe(duration)
	})
}

// Handler returns the Prometheus metrics HTTP handler
func Handler() http.Handler {
	return promhttp.Handler()
}

// maxPathGroups bounds the path label values of the security counters
const maxPathGroups = 64

var pathGroups = struct {
	sync.Mutex
	seen map[string]struct{}
}{seen: make(map[string]struct{})}

// pathLabel reduces a request path to its first segment. Once maxPathGroups
// groups have been seen, new ones are reported as "other".
func pathLabel(path string) string {
	group := "/"
	if seg, _, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/"); seg != "" {
		group = "/" + seg + "/"
	}

	pathGroups.Lock()
	defer pathGroups.Unlock()
	if _, ok := pathGroups.seen[group]; ok {
		return group
	}
	if len(pathGroups.seen) >= maxPathGroups {
		return "other"
	}
	pathGroups.seen[group] = struct{}{}
	return group
}

// RecordAdminAccess counts an admin area access
func RecordAdminAccess(path, method, userType string) {
	adminAccessTotal.WithLabelValues(pathLabel(path), method, userType).Inc()
}

// RecordFailedLogin counts a failed login and publishes the current rate
func RecordFailedLogin(ip string, rate float64) {
	failedLoginTotal.WithLabelValues(ip).Inc()
	failedLoginRate.WithLabelValues(ip).Set(rate)
}

// RecordHTTPError counts an HTTP error response
func RecordHTTPError(statusCode, path string) {
	httpErrorsTotal.WithLabelValues(statusCode, pathLabel(path)).Inc()
}

// RecordAlert counts an alert by name and severity
func RecordAlert(name, severity string) {
	alertsTotal.WithLabelValues(name, severity).Inc()
}

// RecordDispatchOutcome records one sink invocation
func RecordDispatchOutcome(sink, outcome string, duration time.Duration) {
	dispatchOutcomesTotal.WithLabelValues(sink, outcome).Inc()
	dispatchDuration.WithLabelValues(sink).Observe(duration.Seconds())
}

// RecordBlockedIP counts a range added to the block rule
func RecordBlockedIP() {
	blockedIPsTotal.Inc()
}

// SetTrackedKeys sets the gauge for keys held by the rate tracker
func SetTrackedKeys(count int) {
	trackedKeys.Set(float64(count))
}

// RecordDBQuery records a database query duration
func RecordDBQuery(operation, table string, duration time.Duration) {
	dbQueryDuration.WithLabelValues(operation, table).Observe(duration.Seconds())
}
