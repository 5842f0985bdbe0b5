package repository

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/dumeirei/stay-calendar-backend/internal/common/cache"
	"github.com/dumeirei/stay-calendar-backend/internal/common/metrics"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

const calendarCacheName = "calendar"

// CachedCalendarStore 在日历存储前增加 redis 读穿透/写穿透缓存
// redis 故障只记日志，读写都退回底层存储
type CachedCalendarStore struct {
	next   CalendarStore
	client *redis.Client
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedCalendarStore 创建带缓存的日历存储
func NewCachedCalendarStore(next CalendarStore, client *redis.Client, ttl time.Duration, logger *zap.Logger) *CachedCalendarStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CachedCalendarStore{next: next, client: client, ttl: ttl, logger: logger}
}

// CalendarCacheKey 日历缓存键 calendar:{propertyId}:{YYYY-MM}
func CalendarCacheKey(propertyID int64, monthKey string) string {
	return cache.BuildKey(cache.KeyPrefixCalendar, strconv.FormatInt(propertyID, 10), monthKey)
}

// Source 返回底层存储，日历写入方据此绕过缓存读取
func (s *CachedCalendarStore) Source() CalendarStore {
	return s.next
}

// Get 先读缓存，未命中读底层存储并回填
// 缓存中的日历同样做一致性校验，不一致时丢弃并回源
func (s *CachedCalendarStore) Get(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error) {
	key := CalendarCacheKey(propertyID, utils.MonthKey(year, month))

	var cached models.Calendar
	err := cache.Get(ctx, s.client, key, &cached)
	switch {
	case err == nil:
		vErr := cached.Validate()
		if vErr == nil {
			metrics.GetMetrics().RecordCacheHit(calendarCacheName)
			return &cached, nil
		}
		s.logger.Warn("Drop inconsistent calendar cache entry", zap.String("key", key), zap.Error(vErr))
		s.drop(ctx, key)
	case errors.Is(err, redis.Nil):
	case errors.Is(err, cache.ErrCorrupt):
		s.logger.Warn("Drop undecodable calendar cache entry", zap.String("key", key))
		s.drop(ctx, key)
	default:
		s.logger.Warn("Calendar cache read failed", zap.String("key", key), zap.Error(err))
	}
	metrics.GetMetrics().RecordCacheMiss(calendarCacheName)

	cal, err := s.next.Get(ctx, propertyID, year, month)
	if err != nil {
		return nil, err
	}
	// 仅在键不存在时回填：读底层期间若有 Put 刷新了缓存，旧值不得覆盖新值
	if _, err := cache.SetIfAbsent(ctx, s.client, key, cal, s.ttl); err != nil {
		s.logger.Warn("Calendar cache fill failed", zap.String("key", key), zap.Error(err))
	}
	return cal, nil
}

// Put 写底层存储后刷新缓存；刷新失败时删除旧值，避免读到过期日历
func (s *CachedCalendarStore) Put(ctx context.Context, cal *models.Calendar) error {
	if err := s.next.Put(ctx, cal); err != nil {
		return err
	}
	key := CalendarCacheKey(cal.PropertyID, cal.Month)
	if err := cache.Set(ctx, s.client, key, cal, s.ttl); err != nil {
		s.logger.Warn("Calendar cache write failed", zap.String("key", key), zap.Error(err))
		s.drop(ctx, key)
	}
	return nil
}

func (s *CachedCalendarStore) drop(ctx context.Context, key string) {
	if err := cache.Delete(ctx, s.client, key); err != nil {
		s.logger.Warn("Calendar cache delete failed", zap.String("key", key), zap.Error(err))
	}
}

// Uncached 去掉读缓存层，返回实际持久化的存储
func Uncached(store CalendarStore) CalendarStore {
	if c, ok := store.(interface{ Source() CalendarStore }); ok {
		return c.Source()
	}
	return store
}
