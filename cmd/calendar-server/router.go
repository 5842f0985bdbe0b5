package main

import (
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/dumeirei/stay-calendar-backend/docs"
	"github.com/dumeirei/stay-calendar-backend/internal/common/config"
	"github.com/dumeirei/stay-calendar-backend/internal/common/metrics"
	"github.com/dumeirei/stay-calendar-backend/internal/common/response"
	calendarHandler "github.com/dumeirei/stay-calendar-backend/internal/handler/calendar"
	"github.com/dumeirei/stay-calendar-backend/internal/middleware"
)

// setupRouter 设置路由
func setupRouter(r *gin.Engine, cfg *config.Config, logger *zap.Logger, a *app) {
	calendarH := calendarHandler.NewHandler(a.availability, a.coordinator, a.failures)

	// 全局中间件
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.CORS(middleware.CORSConfigFrom(&cfg.CORS)))
	r.Use(middleware.AccessLog(logger))
	if cfg.Tracing.Enabled {
		r.Use(middleware.Tracing(&middleware.TracingConfig{
			ServiceName: cfg.Tracing.ServiceName,
			SkipPaths:   []string{"/health", "/ping", "/ready", cfg.Metrics.Path},
		}))
		r.Use(middleware.InjectTraceContext())
	}
	if cfg.Metrics.Enabled {
		r.Use(metrics.GetMetrics().Middleware())
		r.GET(cfg.Metrics.Path, metrics.Handler())
	}

	// 健康检查
	r.GET("/health", healthHandler)
	r.GET("/ping", pingHandler)
	r.GET("/ready", readyHandler(a.healthChecks()))

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "")
	})

	// Swagger 文档
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// API v1 路由组
	v1 := r.Group("/api/v1")
	if cfg.Server.MaxBodyBytes > 0 {
		v1.Use(middleware.RequestSizeLimiter(cfg.Server.MaxBodyBytes))
	}
	queryMiddleware := []gin.HandlerFunc{middleware.NoCache()}
	if cfg.RateLimit.Enabled {
		v1.Use(middleware.RateLimit(middleware.RateLimitConfigFrom(a.redis, &cfg.RateLimit)))
		if cfg.RateLimit.PerPropertyPerSec > 0 {
			queryMiddleware = append(queryMiddleware,
				middleware.PropertyRateLimit(a.redis, cfg.RateLimit.PerPropertyPerSec, time.Second))
		}
	}
	calendarH.RegisterRoutes(v1, queryMiddleware...)
}
