package service

import (
	"fmt"
	"net/http"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Feed outcomes recorded by ObserveFeed.
const (
	FeedResultOK          = "ok"
	FeedResultFallback    = "fallback"
	FeedResultUnavailable = "unavailable"
	FeedResultNotFound    = "not_found"
)

// MetricsService owns the Prometheus registry and the collectors the API records into.
type MetricsService struct {
	registry        *prometheus.Registry
	handler         http.Handler
	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
	cacheLatency    prometheus.Observer
	cacheWrite      prometheus.Observer
	cacheHitRatio   prometheus.Gauge
	cacheHits       prometheus.Counter
	cacheMisses     prometheus.Counter
	dbQueryDuration *prometheus.HistogramVec
	feedsTotal      *prometheus.CounterVec
	feedEvents      prometheus.Histogram
	tokensIssued    prometheus.Counter
	exportsTotal    *prometheus.CounterVec
	exportEvents    prometheus.Counter

	cacheHitCount  uint64
	cacheMissCount uint64
}

// NewMetricsService registers the collectors on a private registry.
func NewMetricsService() *MetricsService {
	registry := prometheus.NewRegistry()

	requestDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "http_request_duration_seconds",
		Help:    "Duration of HTTP requests in seconds",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	requestTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	cacheLatency := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_latency_seconds",
		Help:    "Latency for cache lookups",
		Buckets: prometheus.DefBuckets,
	})

	cacheWrite := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "cache_write_seconds",
		Help:    "Latency for cache set operations",
		Buckets: prometheus.DefBuckets,
	})

	cacheHitRatio := prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "cache_hit_ratio",
		Help: "Ratio of cache hits to total cache lookups",
	})

	cacheHits := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_hits_total",
		Help: "Total cache hits",
	})

	cacheMisses := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "cache_misses_total",
		Help: "Total cache misses",
	})

	dbQueryDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "db_query_duration_seconds",
		Help:    "Duration of exam store queries",
		Buckets: prometheus.DefBuckets,
	}, []string{"query"})

	feedsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ical_feeds_total",
		Help: "Calendar feeds served by outcome",
	}, []string{"result"})

	feedEvents := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "ical_feed_events",
		Help:    "Number of events per generated calendar feed",
		Buckets: []float64{0, 1, 5, 10, 25, 50, 100, 250, 500, 1000},
	})

	tokensIssued := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "ical_tokens_stored_total",
		Help: "Subscription tokens stored",
	})

	exportsTotal := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "caldav_exports_total",
		Help: "CalDAV export jobs by final state",
	}, []string{"state"})

	exportEvents := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "caldav_events_written_total",
		Help: "Events written to CalDAV servers",
	})

	goroutines := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "goroutines_total",
		Help: "Total number of goroutines",
	}, func() float64 {
		return float64(runtime.NumGoroutine())
	})

	registry.MustRegister(requestDuration, requestTotal, cacheLatency, cacheWrite, cacheHitRatio, cacheHits, cacheMisses,
		dbQueryDuration, feedsTotal, feedEvents, tokensIssued, exportsTotal, exportEvents, goroutines)

	return &MetricsService{
		registry:        registry,
		handler:         promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		requestDuration: requestDuration,
		requestTotal:    requestTotal,
		cacheLatency:    cacheLatency,
		cacheWrite:      cacheWrite,
		cacheHitRatio:   cacheHitRatio,
		cacheHits:       cacheHits,
		cacheMisses:     cacheMisses,
		dbQueryDuration: dbQueryDuration,
		feedsTotal:      feedsTotal,
		feedEvents:      feedEvents,
		tokensIssued:    tokensIssued,
		exportsTotal:    exportsTotal,
		exportEvents:    exportEvents,
	}
}

// Registry exposes the underlying registry, mainly for tests.
func (m *MetricsService) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler exposes the Prometheus HTTP handler.
func (m *MetricsService) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
		})
	}
	return m.handler
}

// ObserveHTTPRequest records request metrics. path must be the route pattern.
func (m *MetricsService) ObserveHTTPRequest(method, path string, status int, duration time.Duration) {
	if m == nil {
		return
	}
	labelStatus := fmt.Sprintf("%d", status)
	m.requestDuration.WithLabelValues(method, path, labelStatus).Observe(duration.Seconds())
	m.requestTotal.WithLabelValues(method, path, labelStatus).Inc()
}

// RecordCacheOperation records cache hit/miss metrics and updates hit ratio.
func (m *MetricsService) RecordCacheOperation(hit bool, duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheLatency.Observe(duration.Seconds())
	if hit {
		m.cacheHits.Inc()
		atomic.AddUint64(&m.cacheHitCount, 1)
	} else {
		m.cacheMisses.Inc()
		atomic.AddUint64(&m.cacheMissCount, 1)
	}
	hits := atomic.LoadUint64(&m.cacheHitCount)
	total := hits + atomic.LoadUint64(&m.cacheMissCount)
	if total > 0 {
		m.cacheHitRatio.Set(float64(hits) / float64(total))
	}
}

// ObserveCacheWrite tracks the duration for cache write operations.
func (m *MetricsService) ObserveCacheWrite(duration time.Duration) {
	if m == nil {
		return
	}
	m.cacheWrite.Observe(duration.Seconds())
}

// ObserveDBQuery records exam store query timing.
func (m *MetricsService) ObserveDBQuery(label string, duration time.Duration) {
	if m == nil {
		return
	}
	m.dbQueryDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// ObserveFeed counts a served calendar feed.
func (m *MetricsService) ObserveFeed(result string, events int) {
	if m == nil {
		return
	}
	m.feedsTotal.WithLabelValues(result).Inc()
	if result == FeedResultOK {
		m.feedEvents.Observe(float64(events))
	}
}

// RecordTokenStored counts stored subscription tokens.
func (m *MetricsService) RecordTokenStored() {
	if m == nil {
		return
	}
	m.tokensIssued.Inc()
}

// RecordExport counts a finished export job and the events it wrote.
func (m *MetricsService) RecordExport(state string, written int) {
	if m == nil {
		return
	}
	m.exportsTotal.WithLabelValues(state).Inc()
	m.exportEvents.Add(float64(written))
}
