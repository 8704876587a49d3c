package observability

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics stores Prometheus collectors used by API and dispatch flows.
type Metrics struct {
	registry *prometheus.Registry

	httpRequestsTotal       *prometheus.CounterVec
	httpRequestDuration     *prometheus.HistogramVec
	deliveredTotal          prometheus.Counter
	suppressedTotal         prometheus.Counter
	failedTotal             *prometheus.CounterVec
	attemptOutcomeTotal     *prometheus.CounterVec
	sendDuration            *prometheus.HistogramVec
	dispatchInflight        prometheus.Gauge
	retryScheduledTotal     prometheus.Counter
	realtimeFanoutTotal     prometheus.Counter
	realtimeBrokerFailures  prometheus.Counter
	batchFlushTotal         *prometheus.CounterVec
	channelDisabledTotal    *prometheus.CounterVec
	realtimeConnectionsOpen prometheus.Gauge
}

func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		httpRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests processed by method, path, and status.",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notify_engine",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds by method and path.",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "path"},
		),
		deliveredTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "notifications_delivered_total",
				Help:      "Total number of notifications that reached the delivered state.",
			},
		),
		suppressedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "notifications_suppressed_total",
				Help:      "Total number of notifications delivered as suppressed with no channel attempted.",
			},
		),
		failedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "notifications_failed_total",
				Help:      "Total number of notifications that ended in failed state.",
			},
			[]string{"reason"},
		),
		attemptOutcomeTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "delivery_attempts_total",
				Help:      "Total number of per-channel delivery attempts by outcome.",
			},
			[]string{"channel", "outcome"},
		),
		sendDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "notify_engine",
				Name:      "channel_send_duration_seconds",
				Help:      "Channel adapter send duration in seconds.",
				Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
			},
			[]string{"channel"},
		),
		dispatchInflight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "notify_engine",
				Name:      "dispatch_inflight",
				Help:      "Current number of notifications being dispatched.",
			},
		),
		retryScheduledTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "retry_scheduled_total",
				Help:      "Total number of notifications scheduled for retry.",
			},
		),
		realtimeFanoutTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "realtime_fanout_total",
				Help:      "Total number of envelopes written to local realtime connections.",
			},
		),
		realtimeBrokerFailures: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "realtime_broker_failures_total",
				Help:      "Total number of failed cross-node realtime publishes.",
			},
		),
		batchFlushTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "batch_flush_total",
				Help:      "Total number of micro-batch flushes by trigger.",
			},
			[]string{"trigger"},
		),
		channelDisabledTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "notify_engine",
				Name:      "channel_disabled_total",
				Help:      "Total number of times a channel was disabled after a configuration error.",
			},
			[]string{"channel"},
		),
		realtimeConnectionsOpen: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "notify_engine",
				Name:      "realtime_connections_open",
				Help:      "Current number of open realtime connections on this node.",
			},
		),
	}

	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.deliveredTotal,
		m.suppressedTotal,
		m.failedTotal,
		m.attemptOutcomeTotal,
		m.sendDuration,
		m.dispatchInflight,
		m.retryScheduledTotal,
		m.realtimeFanoutTotal,
		m.realtimeBrokerFailures,
		m.batchFlushTotal,
		m.channelDisabledTotal,
		m.realtimeConnectionsOpen,
	)

	return m
}

func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return promhttp.Handler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) HTTPMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		path := routePath(c)
		// Avoid self-scrape noise for request counters.
		if path == "/metrics" {
			return err
		}

		m.recordHTTPRequest(c.Method(), path, statusFromResult(c, err), time.Since(start))
		return err
	}
}

func (m *Metrics) IncDelivered() {
	if m == nil {
		return
	}
	m.deliveredTotal.Inc()
}

func (m *Metrics) IncSuppressed() {
	if m == nil {
		return
	}
	m.suppressedTotal.Inc()
}

func (m *Metrics) IncFailed(reason string) {
	if m == nil {
		return
	}
	reasonLabel := strings.TrimSpace(strings.ToLower(reason))
	if reasonLabel == "" {
		reasonLabel = "unknown"
	}
	m.failedTotal.WithLabelValues(reasonLabel).Inc()
}

func (m *Metrics) IncAttemptOutcome(channel string, outcome string) {
	if m == nil {
		return
	}
	m.attemptOutcomeTotal.WithLabelValues(normalizeLabel(channel), normalizeLabel(outcome)).Inc()
}

func (m *Metrics) ObserveSendDuration(channel string, duration time.Duration) {
	if m == nil {
		return
	}
	seconds := duration.Seconds()
	if seconds < 0 {
		seconds = 0
	}
	m.sendDuration.WithLabelValues(normalizeLabel(channel)).Observe(seconds)
}

func (m *Metrics) IncDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Inc()
}

func (m *Metrics) DecDispatchInFlight() {
	if m == nil {
		return
	}
	m.dispatchInflight.Dec()
}

func (m *Metrics) IncRetryScheduled() {
	if m == nil {
		return
	}
	m.retryScheduledTotal.Inc()
}

func (m *Metrics) IncRealtimeFanout() {
	if m == nil {
		return
	}
	m.realtimeFanoutTotal.Inc()
}

func (m *Metrics) IncRealtimeBrokerFailure() {
	if m == nil {
		return
	}
	m.realtimeBrokerFailures.Inc()
}

func (m *Metrics) IncBatchFlush(trigger string) {
	if m == nil {
		return
	}
	m.batchFlushTotal.WithLabelValues(normalizeLabel(trigger)).Inc()
}

func (m *Metrics) IncChannelDisabled(channel string) {
	if m == nil {
		return
	}
	m.channelDisabledTotal.WithLabelValues(normalizeLabel(channel)).Inc()
}

func (m *Metrics) IncRealtimeConnections() {
	if m == nil {
		return
	}
	m.realtimeConnectionsOpen.Inc()
}

func (m *Metrics) DecRealtimeConnections() {
	if m == nil {
		return
	}
	m.realtimeConnectionsOpen.Dec()
}

func (m *Metrics) recordHTTPRequest(method string, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}

	methodLabel := strings.ToUpper(strings.TrimSpace(method))
	if methodLabel == "" {
		methodLabel = "UNKNOWN"
	}
	pathLabel := strings.TrimSpace(path)
	if pathLabel == "" {
		pathLabel = "unmatched"
	}

	m.httpRequestsTotal.WithLabelValues(methodLabel, pathLabel, strconv.Itoa(status)).Inc()
	m.httpRequestDuration.WithLabelValues(methodLabel, pathLabel).Observe(duration.Seconds())
}

func routePath(c *fiber.Ctx) string {
	if c == nil {
		return "unmatched"
	}

	if route := c.Route(); route != nil {
		if path := strings.TrimSpace(route.Path); path != "" {
			return path
		}
	}
	return "unmatched"
}

func statusFromResult(c *fiber.Ctx, err error) int {
	if err != nil {
		if fiberErr, ok := err.(*fiber.Error); ok {
			return fiberErr.Code
		}
		return fiber.StatusInternalServerError
	}

	if c == nil {
		return fiber.StatusOK
	}

	status := c.Response().StatusCode()
	if status == 0 {
		return fiber.StatusOK
	}
	return status
}

func normalizeLabel(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return "unknown"
	}
	return normalized
}
