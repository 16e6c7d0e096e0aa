package obs

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

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

	transactionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_transactions_total",
			Help: "Transactions applied successfully, by kind.",
		},
		[]string{"kind"},
	)

	rejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "engine_rejections_total",
			Help: "Transactions rejected, by kind and reason.",
		},
		[]string{"kind", "reason"},
	)

	accountsGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "engine_accounts",
		Help: "Number of accounts currently materialized.",
	})

	readyGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "service_ready",
		Help: "1 when the service reports ready, 0 otherwise.",
	})
)

// Init registers all metrics in the default registry.
func Init() {
	prometheus.MustRegister(
		httpInFlight,
		httpRequestsTotal,
		httpRequestDuration,
		transactionsTotal,
		rejectionsTotal,
		accountsGauge,
		readyGauge,
	)
}

// Handler exposes the Prometheus scrape endpoint.
func Handler() http.Handler {
	return promhttp.Handler()
}

// TransactionApplied records a successfully applied transaction.
func TransactionApplied(kind string) {
	transactionsTotal.WithLabelValues(kind).Inc()
}

// TransactionRejected records a rejection with its classified reason.
func TransactionRejected(kind, reason string) {
	rejectionsTotal.WithLabelValues(kind, reason).Inc()
}

// SetAccounts updates the materialized-accounts gauge.
func SetAccounts(n int) {
	accountsGauge.Set(float64(n))
}

// SetReady flips the readiness gauge.
func SetReady(ready bool) {
	if ready {
		readyGauge.Set(1)
		return
	}
	readyGauge.Set(0)
}

// Instrument wraps an HTTP handler with RPS/latency/in-flight metrics.
func Instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := CanonicalPath(r.URL.Path)
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

// CanonicalPath collapses resource identifiers so metric label
// cardinality stays bounded.
func CanonicalPath(path string) string {
	if idx := strings.IndexByte(path, '?'); idx >= 0 {
		path = path[:idx]
	}
	if path == "" {
		return "/"
	}
	parts := strings.Split(path, "/")
	if len(parts) == 4 && parts[1] == "v1" && parts[2] == "accounts" && parts[3] != "" {
		return "/v1/accounts/:id"
	}
	return path
}

// statusWriter captures the response code for labelling.
type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streamable through the wrapper.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
