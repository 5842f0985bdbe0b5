package middleware

import (
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/dumeirei/stay-calendar-backend/internal/common/logger"
)

// LoggingConfig 日志配置
type LoggingConfig struct {
	Logger          *zap.Logger
	SkipPaths       []string // 跳过日志的路径
	SkipHealthCheck bool     // 跳过健康检查接口
}

// DefaultLoggingConfig 默认日志配置
func DefaultLoggingConfig(log *zap.Logger) *LoggingConfig {
	return &LoggingConfig{
		Logger:          log,
		SkipPaths:       []string{"/metrics"},
		SkipHealthCheck: true,
	}
}

// Logging 请求日志中间件
func Logging(cfg *LoggingConfig) gin.HandlerFunc {
	skipPaths := make(map[string]struct{})
	for _, path := range cfg.SkipPaths {
		skipPaths[path] = struct{}{}
	}

	return func(c *gin.Context) {
		path := c.Request.URL.Path

		if _, ok := skipPaths[path]; ok {
			c.Next()
			return
		}
		if cfg.SkipHealthCheck && (path == "/health" || path == "/ping" || path == "/ready") {
			c.Next()
			return
		}

		start := time.Now()
		c.Next()

		statusCode := c.Writer.Status()
		fields := []zap.Field{
			logger.RequestID(GetRequestID(c)),
			logger.Method(c.Request.Method),
			logger.Path(path),
			zap.String("query", c.Request.URL.RawQuery),
			logger.StatusCode(statusCode),
			logger.Latency(time.Since(start)),
			logger.IP(c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
		}

		// 房源相关接口带上房源 ID，便于按房源检索日志
		if pid := c.Param("id"); pid != "" {
			fields = append(fields, zap.String("property_id", pid))
		}
		if traceID := GetTraceID(c); traceID != "" {
			fields = append(fields, zap.String("trace_id", traceID))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.String("errors", c.Errors.String()))
		}

		switch {
		case statusCode >= 500:
			cfg.Logger.Error("HTTP Request", fields...)
		case statusCode >= 400:
			cfg.Logger.Warn("HTTP Request", fields...)
		default:
			cfg.Logger.Info("HTTP Request", fields...)
		}
	}
}

// AccessLog 简化的访问日志中间件
func AccessLog(log *zap.Logger) gin.HandlerFunc {
	return Logging(DefaultLoggingConfig(log))
}
