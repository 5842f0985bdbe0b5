package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/dumeirei/stay-calendar-backend/internal/common/config"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func newTestApp(t *testing.T) (*app, *miniredis.Miniredis) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	mr := miniredis.RunT(t)

	cfg := config.Get()
	a := &app{
		cfg:    cfg,
		logger: zap.NewNop(),
		db:     db,
		redis:  redis.NewClient(&redis.Options{Addr: mr.Addr()}),
	}
	return a, mr
}

func TestReadyHandler(t *testing.T) {
	a, mr := newTestApp(t)
	r := gin.New()
	r.GET("/ready", readyHandler(a.healthChecks()))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusOK, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "ready", resp.Status)
	assert.Equal(t, "ok", resp.Checks["database"])
	assert.Equal(t, "ok", resp.Checks["redis"])

	mr.Close()
	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestReadyHandler_FailingCheck(t *testing.T) {
	r := gin.New()
	r.GET("/ready", readyHandler(map[string]func(ctx context.Context) error{
		"mqtt": func(ctx context.Context) error { return fmt.Errorf("not connected") },
	}))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var resp HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "error: not connected", resp.Checks["mqtt"])
}

func TestBuildCalendarStore(t *testing.T) {
	a, _ := newTestApp(t)
	a.cfg = &config.Config{Calendar: config.CalendarConfig{Store: "postgres", CacheTTL: 0}}

	store, err := a.buildCalendarStore()
	require.NoError(t, err)
	assert.NotNil(t, store)

	a.cfg.Calendar.Store = "cassandra"
	_, err = a.buildCalendarStore()
	assert.Error(t, err)
}

func TestWeekdays(t *testing.T) {
	assert.Equal(t, []time.Weekday{time.Friday, time.Saturday}, weekdays([]int{5, 6}))
}
