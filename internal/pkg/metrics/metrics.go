package metrics

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

var (
	// HTTP metrics
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "Total HTTP requests processed",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geodetect",
		Subsystem: "http",
		Name:      "request_duration_seconds",
		Help:      "HTTP request latency in seconds",
		Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5},
	}, []string{"method", "path"})

	httpResponseSize = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geodetect",
		Subsystem: "http",
		Name:      "response_size_bytes",
		Help:      "HTTP response size in bytes",
		Buckets:   prometheus.ExponentialBuckets(100, 10, 6),
	}, []string{"method", "path"})

	// Detection metrics
	DetectionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "detection",
		Name:      "runs_total",
		Help:      "Total detection runs by kind and outcome",
	}, []string{"kind", "status"})

	DetectionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geodetect",
		Subsystem: "detection",
		Name:      "duration_seconds",
		Help:      "End-to-end detection latency including the prediction call",
		Buckets:   []float64{0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
	}, []string{"kind"})

	DetectionTiles = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geodetect",
		Subsystem: "detection",
		Name:      "tiles",
		Help:      "Imagery tiles covered by accepted detection requests",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"kind"})

	DetectionFeatures = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geodetect",
		Subsystem: "detection",
		Name:      "features",
		Help:      "Features returned per detection after reduction",
		Buckets:   prometheus.ExponentialBuckets(1, 2, 12),
	}, []string{"kind"})

	DuplicateRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "detection",
		Name:      "duplicates_rejected_total",
		Help:      "Detection requests rejected as duplicates",
	}, []string{"kind"})

	AreaRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "detection",
		Name:      "area_rejected_total",
		Help:      "Detection requests rejected for exceeding the tile limit",
	}, []string{"kind"})

	PredictionAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "predict",
		Name:      "attempts_total",
		Help:      "Calls made to the prediction service, including retries",
	}, []string{"endpoint", "outcome"})

	PredictionDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "geodetect",
		Subsystem: "predict",
		Name:      "duration_seconds",
		Help:      "Latency of a single prediction service call",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	}, []string{"endpoint"})

	ActiveWebSockets = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "geodetect",
		Subsystem: "ws",
		Name:      "active_connections",
		Help:      "Current number of active WebSocket connections",
	})

	CacheHits = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "cache",
		Name:      "hits_total",
		Help:      "Total cache hits",
	}, []string{"operation"})

	CacheMisses = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "geodetect",
		Subsystem: "cache",
		Name:      "misses_total",
		Help:      "Total cache misses",
	}, []string{"operation"})

	// Database pool metrics
	DBPoolConnsOpen = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "geodetect",
		Subsystem: "db",
		Name:      "pool_conns_open",
		Help:      "Total connections open in the database pool",
	})

	DBPoolConnsAcquired = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "geodetect",
		Subsystem: "db",
		Name:      "pool_conns_acquired",
		Help:      "Connections currently acquired from the database pool",
	})

	DBPoolConnsIdle = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: "geodetect",
		Subsystem: "db",
		Name:      "pool_conns_idle",
		Help:      "Idle connections in the database pool",
	})
)

// Middleware records request metrics.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(c.Response().StatusCode())
		path := c.Route().Path
		if path == "" {
			path = c.Path()
		}
		method := c.Method()

		httpRequestsTotal.WithLabelValues(method, path, status).Inc()
		httpRequestDuration.WithLabelValues(method, path).Observe(duration)
		httpResponseSize.WithLabelValues(method, path).Observe(float64(len(c.Response().Body())))

		return err
	}
}

// Handler returns a Fiber handler serving Prometheus /metrics endpoint.
func Handler() fiber.Handler {
	handler := promhttp.Handler()
	return func(c *fiber.Ctx) error {
		fasthttpadaptor.NewFastHTTPHandler(handler)(c.Context())
		return nil
	}
}

// UpdateDBPoolMetrics copies pool gauges from a pgxpool.Stat. The argument is
// an interface so this package does not depend on pgx.
func UpdateDBPoolMetrics(stat interface{}) {
	type poolStat interface {
		AcquiredConns() int32
		IdleConns() int32
		TotalConns() int32
	}

	if s, ok := stat.(poolStat); ok {
		DBPoolConnsAcquired.Set(float64(s.AcquiredConns()))
		DBPoolConnsIdle.Set(float64(s.IdleConns()))
		DBPoolConnsOpen.Set(float64(s.TotalConns()))
	}
}
