// Package metrics exposes Prometheus metrics for the record store, the HTTP
// surface, the realtime feed and client-side reconciliation caches.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dukerupert/fampulse/internal/reconcile"
)

const namespace = "fampulse"

// Metrics owns a private registry so tests and multiple servers in one
// process never collide on the global one.
type Metrics struct {
	registry *prometheus.Registry

	storeOps      *prometheus.CounterVec
	storeDuration *prometheus.HistogramVec
	httpRequests  *prometheus.CounterVec
	httpDuration  *prometheus.HistogramVec
	realtimeConns prometheus.Gauge
	rateLimited   prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		storeOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_operations_total",
				Help:      "Record store operations by table, operation and result",
			},
			[]string{"table", "op", "result"},
		),
		storeDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "store_operation_duration_seconds",
				Help:      "Time spent in record store operations",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
			},
			[]string{"table", "op"},
		),
		httpRequests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route and status code",
			},
			[]string{"method", "route", "code"},
		),
		httpDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		realtimeConns: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "realtime_connections",
			Help:      "Open realtime WebSocket connections",
		}),
		rateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter",
		}),
	}
	m.registry.MustRegister(
		m.storeOps,
		m.storeDuration,
		m.httpRequests,
		m.httpDuration,
		m.realtimeConns,
		m.rateLimited,
		collectors.NewGoCollector(),
	)
	return m
}

// Registry returns the private registry.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveStore has the shape of recordstore.Observer.
func (m *Metrics) ObserveStore(table, op string, elapsed time.Duration, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	m.storeOps.WithLabelValues(table, op, result).Inc()
	m.storeDuration.WithLabelValues(table, op).Observe(elapsed.Seconds())
}

// ObserveRequest has the shape of middleware.Observer.
func (m *Metrics) ObserveRequest(method, route string, status int, d time.Duration) {
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(d.Seconds())
	if status == http.StatusTooManyRequests {
		m.rateLimited.Inc()
	}
}

// ConnOpened and ConnClosed track realtime connections.
func (m *Metrics) ConnOpened() { m.realtimeConns.Inc() }
func (m *Metrics) ConnClosed() { m.realtimeConns.Dec() }

// TrackSubscriptions exports the live subscription count reported by count.
func (m *Metrics) TrackSubscriptions(count func() int) {
	m.registry.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "realtime_subscriptions",
		Help:      "Active change feed subscriptions",
	}, func() float64 { return float64(count()) }))
}

// TrackCache exports a reconciliation cache's refresh counters under the
// given view name.
func (m *Metrics) TrackCache(view string, cache *reconcile.Cache) {
	labels := prometheus.Labels{"view": view}
	counter := func(name, help string, get func(reconcile.Stats) int64) prometheus.Collector {
		return prometheus.NewCounterFunc(prometheus.CounterOpts{
			Namespace:   namespace,
			Subsystem:   "cache",
			Name:        name,
			Help:        help,
			ConstLabels: labels,
		}, func() float64 { return float64(get(cache.Stats())) })
	}
	m.registry.MustRegister(
		counter("refreshes_total", "Scope refreshes applied", func(s reconcile.Stats) int64 { return s.Refreshes }),
		counter("refresh_failures_total", "Scope refreshes that failed", func(s reconcile.Stats) int64 { return s.Failures }),
		counter("stale_refreshes_total", "Scope refreshes discarded as stale", func(s reconcile.Stats) int64 { return s.Stale }),
	)
}
