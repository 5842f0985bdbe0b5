// Package metrics 提供 Prometheus 指标收集单元测试
package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestInit(t *testing.T) {
	m := Init("test_init")
	require.NotNil(t, m)
	assert.NotNil(t, m.httpRequestsTotal)
	assert.NotNil(t, m.regenerationsTotal)
	assert.NotNil(t, m.jobsPending)
	assert.NotNil(t, m.availabilityQueries)
}

func TestGetMetrics(t *testing.T) {
	m := Init("test_get")
	assert.Same(t, m, GetMetrics())
}

func TestMetrics_CalendarCounters(t *testing.T) {
	m := Init("test_calendar")

	m.RecordRegeneration("full", "success", 20*time.Millisecond)
	m.RecordRegeneration("full", "success", 10*time.Millisecond)
	m.RecordRegeneration("range", "failure", time.Millisecond)
	assert.Equal(t, 2.0, testutil.ToFloat64(m.regenerationsTotal.WithLabelValues("full", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.regenerationsTotal.WithLabelValues("range", "failure")))

	m.RecordSuperseded()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.jobsSupersededTotal))

	m.SetJobsPending(3)
	assert.Equal(t, 3.0, testutil.ToFloat64(m.jobsPending))

	m.RecordRetryExhausted()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.retryExhaustedTotal))

	m.RecordAvailabilityQuery("available")
	m.RecordAvailabilityQuery("min_stay")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.availabilityQueries.WithLabelValues("min_stay")))

	m.RecordFallbackGeneration()
	assert.Equal(t, 1.0, testutil.ToFloat64(m.fallbackGenerations))

	m.RecordEvent("mqtt", "rule_mutation")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.eventsReceivedTotal.WithLabelValues("mqtt", "rule_mutation")))
}

func TestMetrics_RecordCache(t *testing.T) {
	m := Init("test_cache")
	m.RecordCacheHit("calendar")
	m.RecordCacheMiss("calendar")
	m.RecordCacheMiss("calendar")

	assert.Equal(t, 1.0, testutil.ToFloat64(m.cacheHitsTotal.WithLabelValues("calendar")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.cacheMissesTotal.WithLabelValues("calendar")))
}

func TestMetrics_Middleware(t *testing.T) {
	m := Init("test_middleware")

	router := gin.New()
	router.Use(m.Middleware())
	router.GET("/api/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", func(c *gin.Context) {
		c.String(http.StatusOK, "metrics")
	})

	t.Run("记录请求指标", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/api/test", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 1.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/api/test", "200")))
	})

	t.Run("跳过/metrics端点", func(t *testing.T) {
		w := httptest.NewRecorder()
		req, _ := http.NewRequest("GET", "/metrics", nil)
		router.ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, 0.0, testutil.ToFloat64(m.httpRequestsTotal.WithLabelValues("GET", "/metrics", "200")))
	})
}

func TestHandler(t *testing.T) {
	Init("test_handler")

	router := gin.New()
	router.GET("/metrics", Handler())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest("GET", "/metrics", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "test_handler_calendar_jobs_pending")
}
