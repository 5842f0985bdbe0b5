package middleware

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/dumeirei/stay-calendar-backend/internal/common/cache"
	"github.com/dumeirei/stay-calendar-backend/internal/common/config"
	"github.com/dumeirei/stay-calendar-backend/internal/common/response"
)

// RateLimitConfig 限流配置
type RateLimitConfig struct {
	RedisClient *redis.Client
	Limit       int                       // 窗口内允许的请求数
	Window      time.Duration             // 固定窗口长度
	KeyFunc     func(*gin.Context) string // 自定义键生成函数
}

// RateLimitConfigFrom 由全局配置构建限流配置：1 秒固定窗口，窗口上限取 requests_per_second 与 burst 的较大值
func RateLimitConfigFrom(client *redis.Client, cfg *config.RateLimitConfig) *RateLimitConfig {
	limit := cfg.RequestsPerSecond
	if cfg.Burst > limit {
		limit = cfg.Burst
	}
	return &RateLimitConfig{
		RedisClient: client,
		Limit:       limit,
		Window:      time.Second,
	}
}

// RateLimit 基于 Redis INCR 的固定窗口限流中间件
func RateLimit(cfg *RateLimitConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		var key string
		if cfg.KeyFunc != nil {
			key = cfg.KeyFunc(c)
		} else {
			key = cache.BuildKey(cache.KeyPrefixRateLimit, c.ClientIP(), c.FullPath())
		}

		ctx := c.Request.Context()

		count, err := cfg.RedisClient.Incr(ctx, key).Result()
		if err != nil {
			// Redis 错误时放行
			c.Next()
			return
		}
		if count == 1 {
			cfg.RedisClient.Expire(ctx, key, cfg.Window)
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(cfg.Limit))

		if int(count) > cfg.Limit {
			ttl, _ := cfg.RedisClient.TTL(ctx, key).Result()
			if ttl < 0 {
				ttl = cfg.Window
			}
			c.Header("X-RateLimit-Remaining", "0")
			c.Header("X-RateLimit-Reset", fmt.Sprintf("%d", time.Now().Add(ttl).Unix()))
			c.Header("Retry-After", strconv.Itoa(int(ttl.Round(time.Second).Seconds())))

			response.TooManyRequests(c, "请求过于频繁，请稍后再试")
			c.Abort()
			return
		}

		c.Header("X-RateLimit-Remaining", strconv.Itoa(cfg.Limit-int(count)))
		c.Next()
	}
}

// PropertyRateLimit 按 IP + 房源限流，防止单个客户端刷同一房源的报价
func PropertyRateLimit(client *redis.Client, limit int, window time.Duration) gin.HandlerFunc {
	return RateLimit(&RateLimitConfig{
		RedisClient: client,
		Limit:       limit,
		Window:      window,
		KeyFunc: func(c *gin.Context) string {
			return cache.BuildKey(cache.KeyPrefixRateLimit, "property", c.Param("id"), c.ClientIP())
		},
	})
}
