package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrLockNotAcquired 等待超时仍未拿到锁
var ErrLockNotAcquired = errors.New("lock not acquired")

// releaseScript 仅在令牌匹配时删除锁，避免误删他人持有的锁
var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Locker 基于 SET NX PX 的分布式互斥锁
// 多实例部署时保证同一 (房源, 月份) 的日历生成不会并发执行
type Locker struct {
	client       *redis.Client
	ttl          time.Duration
	pollInterval time.Duration
}

// NewLocker 创建分布式锁
func NewLocker(client *redis.Client, ttl time.Duration) *Locker {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Locker{
		client:       client,
		ttl:          ttl,
		pollInterval: 50 * time.Millisecond,
	}
}

// Lock 阻塞获取锁直到成功或 ctx 结束，返回释放函数
func (l *Locker) Lock(ctx context.Context, name string) (func(), error) {
	key := BuildKey(KeyPrefixLock, name)
	token := uuid.NewString()

	ticker := time.NewTicker(l.pollInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return func() {
				// 释放使用独立 ctx，调用方 ctx 取消后仍需归还锁
				releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{key}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrLockNotAcquired, key, ctx.Err())
		case <-ticker.C:
		}
	}
}

// TryLock 只尝试一次获取锁，被占用时返回 ErrLockNotAcquired
// 锁不提供释放函数，持有 hold 后自动过期，用于同一调度周期内只允许一个实例执行
func (l *Locker) TryLock(ctx context.Context, name string, hold time.Duration) error {
	if hold <= 0 {
		hold = l.ttl
	}
	key := BuildKey(KeyPrefixLock, name)
	ok, err := l.client.SetNX(ctx, key, uuid.NewString(), hold).Result()
	if err != nil {
		return fmt.Errorf("acquire lock %s: %w", key, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrLockNotAcquired, key)
	}
	return nil
}
