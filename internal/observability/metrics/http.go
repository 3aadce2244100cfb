package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// HTTPMetrics records request counts and latencies per route template.
type HTTPMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

// NewHTTPMetrics registers HTTP collectors on the default registry.
func NewHTTPMetrics(cfg Config) *HTTPMetrics {
	return newHTTPMetrics(prometheus.DefaultRegisterer, cfg)
}

func newHTTPMetrics(registerer prometheus.Registerer, cfg Config) *HTTPMetrics {
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "pasarku"
	}
	constLabels := prometheus.Labels{"service": serviceName}

	requests := registerOrReuse(registerer, prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "pasarku_http_requests_total",
		Help:        "HTTP requests by method, route and status.",
		ConstLabels: constLabels,
	}, []string{"method", "route", "status_code"}))
	latency := registerOrReuse(registerer, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "pasarku_http_request_duration_seconds",
		Help:        "HTTP request latency by method and route.",
		Buckets:     prometheus.DefBuckets,
		ConstLabels: constLabels,
	}, []string{"method", "route"}))

	return &HTTPMetrics{requests: requests, latency: latency}
}

// GinMiddleware observes every request. Long-lived stream routes are counted
// but excluded from the latency histogram.
func GinMiddleware(m *HTTPMetrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unknown"
		}
		method := c.Request.Method
		m.requests.WithLabelValues(method, route, strconv.Itoa(c.Writer.Status())).Inc()
		if strings.HasPrefix(route, "/api/streams/") {
			return
		}
		m.latency.WithLabelValues(method, route).Observe(time.Since(start).Seconds())
	}
}
