package redis

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Redis Prometheus metrics.
type Metrics struct {
	operationDuration *prometheus.HistogramVec
	operationErrors   *prometheus.CounterVec

	poolTotalConns prometheus.Gauge
	poolIdleConns  prometheus.Gauge
	poolTimeouts   prometheus.Gauge

	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	messages *prometheus.CounterVec
}

// DefaultMetrics is the process-wide metrics instance.
var DefaultMetrics = NewMetrics("auditflow")

// NewMetrics registers the Redis metrics under namespace.
func NewMetrics(namespace string) *Metrics {
	opts := func(name, help string) prometheus.Opts {
		return prometheus.Opts{Namespace: namespace, Subsystem: "redis", Name: name, Help: help}
	}
	gauge := func(name, help string) prometheus.Gauge {
		return promauto.NewGauge(prometheus.GaugeOpts(opts(name, help)))
	}

	return &Metrics{
		operationDuration: promauto.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "redis",
			Name:      "operation_duration_seconds",
			Help:      "Duration of Redis operations in seconds",
			Buckets:   []float64{.0001, .0005, .001, .005, .01, .025, .05, .1, .25, .5, 1},
		}, []string{"operation"}),
		operationErrors: promauto.NewCounterVec(prometheus.CounterOpts(
			opts("operation_errors_total", "Total number of Redis operation errors")), []string{"operation"}),

		poolTotalConns: gauge("pool_total_connections", "Number of total connections in the pool"),
		poolIdleConns:  gauge("pool_idle_connections", "Number of idle connections in the pool"),
		poolTimeouts:   gauge("pool_timeouts_total", "Number of times a wait for a connection timed out"),

		cacheHits: promauto.NewCounterVec(prometheus.CounterOpts(
			opts("cache_hits_total", "Total number of cache hits")), []string{"cache"}),
		cacheMisses: promauto.NewCounterVec(prometheus.CounterOpts(
			opts("cache_misses_total", "Total number of cache misses")), []string{"cache"}),

		messages: promauto.NewCounterVec(prometheus.CounterOpts(
			opts("pubsub_messages_total", "Pub/sub messages by channel and direction")), []string{"channel", "direction"}),
	}
}

// ObserveOperation records the duration and result of a Redis operation.
func (m *Metrics) ObserveOperation(operation string, duration time.Duration, err error) {
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
	if err != nil {
		m.operationErrors.WithLabelValues(operation).Inc()
	}
}

// RecordCacheHit records a cache hit for the given cache name.
func (m *Metrics) RecordCacheHit(cacheName string) {
	m.cacheHits.WithLabelValues(cacheName).Inc()
}

// RecordCacheMiss records a cache miss for the given cache name.
func (m *Metrics) RecordCacheMiss(cacheName string) {
	m.cacheMisses.WithLabelValues(cacheName).Inc()
}

// RecordMessage counts a pub/sub message; direction is "out" or "in".
func (m *Metrics) RecordMessage(channel, direction string) {
	m.messages.WithLabelValues(channel, direction).Inc()
}

// UpdatePoolStats copies the client's pool statistics into the gauges.
func (m *Metrics) UpdatePoolStats(client *Client) {
	if client == nil {
		return
	}
	stats := client.PoolStats()
	if stats == nil {
		return
	}
	m.poolTotalConns.Set(float64(stats.TotalConns))
	m.poolIdleConns.Set(float64(stats.IdleConns))
	m.poolTimeouts.Set(float64(stats.Timeouts))
}

// StartPoolStatsCollector periodically updates pool stats until ctx is done
// or the returned cancel function is called.
func StartPoolStatsCollector(ctx context.Context, client *Client, interval time.Duration) func() {
	if interval <= 0 {
		interval = 15 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				DefaultMetrics.UpdatePoolStats(client)
			}
		}
	}()

	return cancel
}
