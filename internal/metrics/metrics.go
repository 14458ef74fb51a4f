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

// namespace prefixes every exported series.
const namespace = "timecard"

// Metrics holds the service collectors on a private registry.
// Every recording method is safe on a nil receiver so callers can run without metrics.
type Metrics struct {
	registry *prometheus.Registry

	requestCount     *prometheus.CounterVec
	requestDuration  *prometheus.HistogramVec
	rateLimited      *prometheus.CounterVec
	adminLogins      *prometheus.CounterVec
	tokenClaims      *prometheus.CounterVec
	attendanceWrites *prometheus.CounterVec
}

// New registers all collectors on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		requestCount: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Duration of HTTP requests in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
		rateLimited: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ratelimit",
			Name:      "rejections_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"class"}),
		adminLogins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "admin",
			Name:      "logins_total",
			Help:      "Admin login attempts by outcome.",
		}, []string{"outcome"}),
		tokenClaims: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "instance",
			Name:      "token_claims_total",
			Help:      "Instance token claim attempts by outcome.",
		}, []string{"outcome"}),
		attendanceWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "attendance",
			Name:      "writes_total",
			Help:      "Attendance upserts by caller and outcome.",
		}, []string{"source", "outcome"}),
	}
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.requestCount,
		m.requestDuration,
		m.rateLimited,
		m.adminLogins,
		m.tokenClaims,
		m.attendanceWrites,
	)
	return m
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Middleware records request counts and latencies keyed by route template.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if m == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.requestCount.WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).Inc()
		m.requestDuration.WithLabelValues(c.Request.Method, route).Observe(time.Since(start).Seconds())
	}
}

// RateLimited counts a limiter rejection.
func (m *Metrics) RateLimited(class string) {
	if m == nil {
		return
	}
	m.rateLimited.WithLabelValues(class).Inc()
}

// AdminLogin counts a login attempt; outcome is success or failure.
func (m *Metrics) AdminLogin(outcome string) {
	if m == nil {
		return
	}
	m.adminLogins.WithLabelValues(outcome).Inc()
}

// TokenClaim counts a claim attempt; outcome is issued or rejected.
func (m *Metrics) TokenClaim(outcome string) {
	if m == nil {
		return
	}
	m.tokenClaims.WithLabelValues(outcome).Inc()
}

// AttendanceWrite counts an upsert attempt.
func (m *Metrics) AttendanceWrite(source, outcome string) {
	if m == nil {
		return
	}
	m.attendanceWrites.WithLabelValues(source, outcome).Inc()
}
