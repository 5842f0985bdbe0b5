// Package metrics 提供 Prometheus 指标收集
package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 指标收集器
type Metrics struct {
	httpRequestsTotal    *prometheus.CounterVec
	httpRequestDuration  *prometheus.HistogramVec
	httpRequestsInFlight prometheus.Gauge
	cacheHitsTotal       *prometheus.CounterVec
	cacheMissesTotal     *prometheus.CounterVec
	eventsReceivedTotal  *prometheus.CounterVec

	regenerationsTotal   *prometheus.CounterVec
	regenerationDuration *prometheus.HistogramVec
	jobsSupersededTotal  prometheus.Counter
	jobsPending          prometheus.Gauge
	retryExhaustedTotal  prometheus.Counter
	availabilityQueries  *prometheus.CounterVec
	fallbackGenerations  prometheus.Counter
}

var (
	defaultMetrics *Metrics
	defaultMu      sync.Mutex
)

// Init 初始化指标收集器
func Init(namespace string) *Metrics {
	if namespace == "" {
		namespace = "stay_calendar"
	}

	m := &Metrics{
		httpRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		httpRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		httpRequestsInFlight: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "http_requests_in_flight",
				Help:      "Current number of HTTP requests being processed",
			},
		),
		cacheHitsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_hits_total",
				Help:      "Total number of cache hits",
			},
			[]string{"cache"},
		),
		cacheMissesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cache_misses_total",
				Help:      "Total number of cache misses",
			},
			[]string{"cache"},
		),
		eventsReceivedTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calendar_events_received_total",
				Help:      "Total number of rule/booking events received",
			},
			[]string{"source", "type"},
		),
		regenerationsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calendar_regenerations_total",
				Help:      "Total number of calendar regeneration jobs executed",
			},
			[]string{"kind", "result"},
		),
		regenerationDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "calendar_regeneration_duration_seconds",
				Help:      "Calendar regeneration duration in seconds",
				Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"kind"},
		),
		jobsSupersededTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calendar_jobs_superseded_total",
				Help:      "Total number of pending jobs merged into a newer job for the same key",
			},
		),
		jobsPending: promauto.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "calendar_jobs_pending",
				Help:      "Number of calendar keys with a pending job",
			},
		),
		retryExhaustedTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calendar_retry_exhausted_total",
				Help:      "Total number of calendar jobs that exhausted their retries",
			},
		),
		availabilityQueries: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "availability_queries_total",
				Help:      "Total number of availability queries",
			},
			[]string{"result"},
		),
		fallbackGenerations: promauto.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "calendar_fallback_generations_total",
				Help:      "Total number of synchronous generations triggered by queries",
			},
		),
	}

	defaultMetrics = m
	return m
}

// GetMetrics 获取默认指标收集器
func GetMetrics() *Metrics {
	defaultMu.Lock()
	defer defaultMu.Unlock()
	if defaultMetrics == nil {
		return Init("")
	}
	return defaultMetrics
}

// Middleware 返回 Gin 中间件
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// 跳过 metrics 端点本身
		if c.Request.URL.Path == "/metrics" {
			c.Next()
			return
		}

		start := time.Now()
		m.httpRequestsInFlight.Inc()

		c.Next()

		m.httpRequestsInFlight.Dec()
		status := strconv.Itoa(c.Writer.Status())
		path := c.FullPath()
		if path == "" {
			path = "unknown"
		}

		m.httpRequestsTotal.WithLabelValues(c.Request.Method, path, status).Inc()
		m.httpRequestDuration.WithLabelValues(c.Request.Method, path).Observe(time.Since(start).Seconds())
	}
}

// Handler 返回 Prometheus HTTP 处理器
func Handler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}

// RecordCacheHit 记录缓存命中
func (m *Metrics) RecordCacheHit(cache string) {
	m.cacheHitsTotal.WithLabelValues(cache).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (m *Metrics) RecordCacheMiss(cache string) {
	m.cacheMissesTotal.WithLabelValues(cache).Inc()
}

// RecordEvent 记录收到的规则/预订事件
func (m *Metrics) RecordEvent(source, eventType string) {
	m.eventsReceivedTotal.WithLabelValues(source, eventType).Inc()
}

// RecordRegeneration 记录一次日历生成
func (m *Metrics) RecordRegeneration(kind, result string, duration time.Duration) {
	m.regenerationsTotal.WithLabelValues(kind, result).Inc()
	m.regenerationDuration.WithLabelValues(kind).Observe(duration.Seconds())
}

// RecordSuperseded 记录被合并替代的任务
func (m *Metrics) RecordSuperseded() {
	m.jobsSupersededTotal.Inc()
}

// SetJobsPending 设置待执行任务数
func (m *Metrics) SetJobsPending(count float64) {
	m.jobsPending.Set(count)
}

// RecordRetryExhausted 记录重试耗尽
func (m *Metrics) RecordRetryExhausted() {
	m.retryExhaustedTotal.Inc()
}

// RecordAvailabilityQuery 记录可订查询结果
func (m *Metrics) RecordAvailabilityQuery(result string) {
	m.availabilityQueries.WithLabelValues(result).Inc()
}

// RecordFallbackGeneration 记录查询触发的同步生成
func (m *Metrics) RecordFallbackGeneration() {
	m.fallbackGenerations.Inc()
}
