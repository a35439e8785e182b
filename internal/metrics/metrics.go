package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Registry holds the storefront collectors.
	Registry = prometheus.NewRegistry()

	cartOperations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "operations_total",
			Help:      "Cart engine operations by mode and result.",
		},
		[]string{"operation", "mode", "result"},
	)

	cartRefreshes = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "cart",
			Name:      "refreshes_total",
			Help:      "Server cart refetches by outcome (applied, stale, failed).",
		},
		[]string{"outcome"},
	)

	remoteRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "remote",
			Name:      "requests_total",
			Help:      "Calls to the storefront API by operation and status class.",
		},
		[]string{"operation", "status"},
	)

	remoteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "storefront",
			Subsystem: "remote",
			Name:      "request_duration_seconds",
			Help:      "Latency of calls to the storefront API.",
			Buckets:   prometheus.ExponentialBuckets(0.005, 2, 10),
		},
		[]string{"operation"},
	)

	breakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "remote",
			Name:      "circuit_open",
			Help:      "1 while the storefront API circuit breaker is open.",
		},
		[]string{"name"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "storefront",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Gateway HTTP requests handled.",
		},
		[]string{"method", "path", "status"},
	)

	activeSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "storefront",
			Subsystem: "sessions",
			Name:      "active",
			Help:      "Browser sessions currently held by the gateway.",
		},
	)
)

func init() {
	Registry.MustRegister(
		cartOperations,
		cartRefreshes,
		remoteRequests,
		remoteDuration,
		breakerState,
		httpRequests,
		activeSessions,
		collectors.NewGoCollector(),
	)
}

// Handler exposes the registry in the Prometheus text format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordCartOperation counts one engine operation.
func RecordCartOperation(operation, mode string, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	cartOperations.WithLabelValues(operation, mode, result).Inc()
}

// RecordRefresh counts one refetch outcome.
func RecordRefresh(outcome string) {
	cartRefreshes.WithLabelValues(outcome).Inc()
}

// RecordRemoteRequest records a storefront API call. status is the HTTP
// status code, or 0 when the call never got an answer.
func RecordRemoteRequest(operation string, status int, started time.Time) {
	class := "network_error"
	if status > 0 {
		class = strconv.Itoa(status/100) + "xx"
	}
	remoteRequests.WithLabelValues(operation, class).Inc()
	remoteDuration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// SetBreakerOpen flags the named breaker as open or not.
func SetBreakerOpen(name string, open bool) {
	v := 0.0
	if open {
		v = 1
	}
	breakerState.WithLabelValues(name).Set(v)
}

// SetActiveSessions reports the number of live browser sessions.
func SetActiveSessions(n int) {
	activeSessions.Set(float64(n))
}

// GinMiddleware counts gateway requests by route template.
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		httpRequests.WithLabelValues(c.Request.Method, path, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
