package server

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fyrsmithlabs/marketd/internal/marketplace"
	"github.com/fyrsmithlabs/marketd/internal/record"
)

// Metrics holds marketd's Prometheus instruments on a private registry so
// multiple servers can coexist in one process.
type Metrics struct {
	registry *prometheus.Registry

	eventsTotal    *prometheus.CounterVec
	recordsTotal   *prometheus.CounterVec
	sessionsTotal  prometheus.Counter
	escrowReleased prometheus.Counter
	sseSubscribers prometheus.Gauge
	sseDropped     prometheus.Counter
	httpRequests   *prometheus.CounterVec
	httpDuration   *prometheus.HistogramVec
}

// NewMetrics creates and registers all instruments.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		registry: reg,
		eventsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketd_events_total",
			Help: "Orchestrator events emitted, labeled by kind.",
		}, []string{"kind"}),
		recordsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketd_log_records_total",
			Help: "Marketplace records appended to or observed on the log, labeled by record type.",
		}, []string{"type"}),
		sessionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketd_sessions_started_total",
			Help: "Sessions admitted by the trigger endpoint.",
		}),
		escrowReleased: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketd_escrow_released_total",
			Help: "Total asset amount released out of escrow.",
		}),
		sseSubscribers: factory.NewGauge(prometheus.GaugeOpts{
			Name: "marketd_sse_subscribers",
			Help: "Currently connected event feed subscribers.",
		}),
		sseDropped: factory.NewCounter(prometheus.CounterOpts{
			Name: "marketd_sse_dropped_events_total",
			Help: "Events dropped because a subscriber could not keep up.",
		}),
		httpRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "marketd_http_requests_total",
			Help: "HTTP requests, labeled by method, path, and status.",
		}, []string{"method", "path", "status"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketd_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds.",
			Buckets: []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0},
		}, []string{"method", "path"}),
	}
}

// Handler serves the registry in Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Sink returns a marketplace.Sink that counts events as they are emitted.
func (m *Metrics) Sink() marketplace.Sink {
	return marketplace.SinkFunc(func(e marketplace.Event) {
		m.eventsTotal.WithLabelValues(string(e.Kind)).Inc()

		if rec, ok := e.Data.(marketplace.LogRecord); ok {
			m.recordsTotal.WithLabelValues(string(rec.Type)).Inc()
			if rec.Type == record.TypeEscrowRelease {
				var release record.EscrowRelease
				if json.Unmarshal(rec.Payload, &release) == nil {
					m.ObserveRelease(release.Amount)
				}
			}
		}
	})
}

// ObserveRelease records an executed escrow release.
func (m *Metrics) ObserveRelease(amount int64) {
	if amount > 0 {
		m.escrowReleased.Add(float64(amount))
	}
}

// Middleware returns an Echo middleware recording per-request metrics.
// c.Path() is the registered route pattern, which keeps label cardinality
// bounded.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path()
			if path == "" {
				path = "/"
			}
			m.httpRequests.WithLabelValues(
				c.Request().Method,
				path,
				strconv.Itoa(c.Response().Status),
			).Inc()
			m.httpDuration.WithLabelValues(c.Request().Method, path).
				Observe(time.Since(start).Seconds())

			return err
		}
	}
}
