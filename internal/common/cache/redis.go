// Package cache 提供 Redis 缓存功能
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/dumeirei/stay-calendar-backend/internal/common/config"
	"github.com/redis/go-redis/v9"
)

var rdb *redis.Client

// Init 初始化 Redis 连接
func Init(cfg *config.RedisConfig) (*redis.Client, error) {
	rdb = redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  time.Duration(cfg.DialTimeout) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeout) * time.Second,
	})

	// 测试连接
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := rdb.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}

	return rdb, nil
}

// Close 关闭 Redis 连接
func Close() error {
	if rdb != nil {
		return rdb.Close()
	}
	return nil
}

// ErrCorrupt 缓存值无法反序列化
var ErrCorrupt = errors.New("cache entry corrupt")

// Set 序列化后写入缓存
func Set(ctx context.Context, client redis.Cmdable, key string, value interface{}, expiration time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return client.Set(ctx, key, data, expiration).Err()
}

// SetIfAbsent 仅在键不存在时写入，返回是否写入
func SetIfAbsent(ctx context.Context, client redis.Cmdable, key string, value interface{}, expiration time.Duration) (bool, error) {
	data, err := json.Marshal(value)
	if err != nil {
		return false, fmt.Errorf("failed to marshal value: %w", err)
	}
	return client.SetNX(ctx, key, data, expiration).Result()
}

// Get 读取缓存并反序列化，键不存在返回 redis.Nil
func Get(ctx context.Context, client redis.Cmdable, key string, dest interface{}) error {
	data, err := client.Get(ctx, key).Bytes()
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrCorrupt, key, err)
	}
	return nil
}

// Delete 删除缓存
func Delete(ctx context.Context, client redis.Cmdable, keys ...string) error {
	return client.Del(ctx, keys...).Err()
}

// CacheKey 常用缓存键前缀
const (
	KeyPrefixCalendar  = "calendar:"
	KeyPrefixRateLimit = "ratelimit:"
	KeyPrefixLock      = "lock:"
)

// BuildKey 构建缓存键
func BuildKey(prefix string, parts ...string) string {
	key := prefix
	for _, part := range parts {
		key += part + ":"
	}
	return key[:len(key)-1]
}
