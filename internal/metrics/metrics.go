// Package metrics provides Prometheus instrumentation for the platform.
package metrics

import (
	"context"
	"database/sql"
	"runtime"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// HTTPRequestsTotal counts HTTP requests by method, path, and status.
	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edutrack",
			Name:      "http_requests_total",
			Help:      "Total HTTP requests by method, path pattern, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	// HTTPRequestDuration observes request latency by method and path.
	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "edutrack",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// PaymentsInitializedTotal counts payment initializations by outcome.
	PaymentsInitializedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edutrack",
			Name:      "payments_initialized_total",
			Help:      "Total payment initialization attempts by outcome.",
		},
		[]string{"outcome"},
	)

	// GatewayRequestsTotal counts outbound gateway calls by endpoint and result.
	GatewayRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edutrack",
			Name:      "gateway_requests_total",
			Help:      "Total outbound payment-gateway requests by endpoint and result.",
		},
		[]string{"endpoint", "result"},
	)

	// WebhookEventsTotal counts inbound gateway webhook events by result.
	WebhookEventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edutrack",
			Name:      "webhook_events_total",
			Help:      "Total inbound payment-gateway webhook events by result.",
		},
		[]string{"result"},
	)

	// ActivationsTotal counts subscription activations by kind.
	ActivationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edutrack",
			Name:      "subscription_activations_total",
			Help:      "Total subscription activations by kind (new, renewal).",
		},
		[]string{"kind"},
	)

	// SweepRunsTotal counts expiration sweep passes.
	SweepRunsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "edutrack",
		Name:      "sweep_runs_total",
		Help:      "Total expiration sweep passes.",
	})

	// SweepExpiredTotal counts subscriptions transitioned to expired by the sweep.
	SweepExpiredTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "edutrack",
		Name:      "sweep_expired_total",
		Help:      "Total subscriptions expired by the sweep.",
	})

	// SweepWarningsTotal counts expiry warnings dispatched by the sweep.
	SweepWarningsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "edutrack",
		Name:      "sweep_warnings_total",
		Help:      "Total expiry warnings dispatched by the sweep.",
	})

	// NotificationsTotal counts outbound notifications by type and result.
	NotificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "edutrack",
			Name:      "notifications_total",
			Help:      "Total outbound notification dispatches by type and result.",
		},
		[]string{"type", "result"},
	)

	// DBOpenConnections tracks open database connections.
	DBOpenConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "edutrack", Name: "db_open_connections",
		Help: "Number of open database connections.",
	})
	// DBInUseConnections tracks in-use database connections.
	DBInUseConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "edutrack", Name: "db_in_use_connections",
		Help: "Number of in-use database connections.",
	})
	// GoroutineCount tracks the current number of goroutines.
	GoroutineCount = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "edutrack", Name: "goroutines",
		Help: "Current number of goroutines.",
	})
)

func init() {
	prometheus.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		PaymentsInitializedTotal,
		GatewayRequestsTotal,
		WebhookEventsTotal,
		ActivationsTotal,
		SweepRunsTotal,
		SweepExpiredTotal,
		SweepWarningsTotal,
		NotificationsTotal,
		DBOpenConnections,
		DBInUseConnections,
		GoroutineCount,
	)
}

// StartDBStatsCollector periodically samples sql.DBStats and runtime goroutine
// count into Prometheus gauges. Call in a goroutine; exits when ctx is done.
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			DBOpenConnections.Set(float64(stats.OpenConnections))
			DBInUseConnections.Set(float64(stats.InUse))
			GoroutineCount.Set(float64(runtime.NumGoroutine()))
		}
	}
}

// Middleware returns a gin middleware that records request metrics.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		timer := prometheus.NewTimer(HTTPRequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(), // Uses route pattern, not actual path (avoids cardinality explosion)
		))

		c.Next()

		timer.ObserveDuration()
		HTTPRequestsTotal.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			statusBucket(c.Writer.Status()),
		).Inc()
	}
}

// Handler returns the /metrics endpoint handler.
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// statusBucket groups status codes into classes (2xx, 4xx, ...) to keep
// label cardinality low.
func statusBucket(status int) string {
	return strconv.Itoa(status/100) + "xx"
}
