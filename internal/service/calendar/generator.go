// Package calendar 提供价格日历生成服务
// 生成器是日历的唯一写入方：整月生成、区间重算、仅可订状态更新
package calendar

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/moby/locker"
	"go.uber.org/zap"

	"github.com/dumeirei/stay-calendar-backend/internal/common/cache"
	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/logger"
	"github.com/dumeirei/stay-calendar-backend/internal/common/metrics"
	"github.com/dumeirei/stay-calendar-backend/internal/common/tracing"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
	"github.com/dumeirei/stay-calendar-backend/internal/pricing"
	"github.com/dumeirei/stay-calendar-backend/internal/repository"
)

// 生成方式，用于指标与日志
const (
	KindFull         = "full"
	KindRange        = "range"
	KindAvailability = "availability"
)

// RuleLoader 定价规则来源
type RuleLoader interface {
	LoadRuleSet(ctx context.Context, propertyID int64, rng utils.DateRange) (*pricing.RuleSet, error)
	ListOverrides(ctx context.Context, propertyID int64, rng utils.DateRange) ([]models.DateOverride, error)
}

// BookingLoader 预订占用来源
type BookingLoader interface {
	ListBlocking(ctx context.Context, propertyID int64, rng utils.DateRange) ([]models.BookingWindow, error)
}

// DistributedLocker 跨实例互斥锁
type DistributedLocker interface {
	Lock(ctx context.Context, name string) (func(), error)
}

// Generator 价格日历生成器
type Generator struct {
	rules    RuleLoader
	bookings BookingLoader
	store    repository.CalendarStore
	source   repository.CalendarStore
	strategy pricing.Strategy
	locker   DistributedLocker
	keyLocks *locker.Locker
	logger   *zap.Logger
	now      func() time.Time
}

// Option 生成器选项
type Option func(*Generator)

// WithLocker 启用分布式锁，多实例部署时使用
func WithLocker(locker DistributedLocker) Option {
	return func(g *Generator) {
		g.locker = locker
	}
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(g *Generator) {
		g.now = now
	}
}

// NewGenerator 创建生成器，定价策略在此处一次性选定
func NewGenerator(rules RuleLoader, bookings BookingLoader, store repository.CalendarStore, strategy pricing.Strategy, log *zap.Logger, opts ...Option) *Generator {
	if log == nil {
		log = zap.NewNop()
	}
	g := &Generator{
		rules:    rules,
		bookings: bookings,
		store:    store,
		source:   repository.Uncached(store),
		strategy: strategy,
		keyLocks: locker.New(),
		logger:   log.Named("calendar-generator"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// StrategyVersion 当前定价策略版本
func (g *Generator) StrategyVersion() string {
	return g.strategy.Version()
}

// GenerateMonth 整月生成并持久化
// 任意一天计算失败则整月放弃，已持久化的旧日历保持不变
func (g *Generator) GenerateMonth(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "calendar.GenerateMonth",
		tracing.WithPropertyID(propertyID), tracing.WithMonth(utils.MonthKey(year, month)))
	defer span.End()

	var cal *models.Calendar
	err := g.observe(KindFull, propertyID, year, month, func() error {
		return g.withKeyLock(ctx, propertyID, year, month, func() error {
			var err error
			cal, err = g.generateLocked(ctx, propertyID, year, month, nil)
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return cal, nil
}

// UpdateRange 重算区间内的日期并合并进已有日历，区间必须落在同一自然月
// 日历不存在或策略版本不同则退化为整月生成
func (g *Generator) UpdateRange(ctx context.Context, propertyID int64, rng utils.DateRange) (*models.Calendar, error) {
	year, month, err := singleMonth(rng)
	if err != nil {
		return nil, err
	}
	ctx, span := tracing.GetTracer().StartSpan(ctx, "calendar.UpdateRange",
		tracing.WithPropertyID(propertyID), tracing.WithMonth(utils.MonthKey(year, month)))
	defer span.End()

	var cal *models.Calendar
	err = g.observe(KindRange, propertyID, year, month, func() error {
		return g.withKeyLock(ctx, propertyID, year, month, func() error {
			existing, err := g.loadExisting(ctx, propertyID, year, month)
			if err != nil {
				return err
			}
			if existing == nil {
				cal, err = g.generateLocked(ctx, propertyID, year, month, nil)
				return err
			}

			fresh, err := g.computeDays(ctx, propertyID, rng)
			if err != nil {
				return err
			}
			merged := copyDays(existing.Days)
			for k, v := range fresh {
				merged[k] = v
			}
			cal, err = g.persist(ctx, propertyID, year, month, merged)
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return cal, nil
}

// ApplyAvailability 仅更新区间内日期的可订状态，不重算价格
// unavailable 为 true 时直接置为不可订；否则按日期覆盖与其余有效预订重新判定，
// 因此先预订后取消会恢复到预订前的状态
func (g *Generator) ApplyAvailability(ctx context.Context, propertyID int64, rng utils.DateRange, unavailable bool) (*models.Calendar, error) {
	year, month, err := singleMonth(rng)
	if err != nil {
		return nil, err
	}
	ctx, span := tracing.GetTracer().StartSpan(ctx, "calendar.ApplyAvailability",
		tracing.WithPropertyID(propertyID), tracing.WithMonth(utils.MonthKey(year, month)))
	defer span.End()

	var cal *models.Calendar
	err = g.observe(KindAvailability, propertyID, year, month, func() error {
		return g.withKeyLock(ctx, propertyID, year, month, func() error {
			overlay := func(days map[string]models.CalendarDay) error {
				if unavailable {
					markUnavailable(days, rng)
					return nil
				}
				return g.rederiveAvailability(ctx, propertyID, rng, days)
			}

			existing, err := g.loadExisting(ctx, propertyID, year, month)
			if err != nil {
				return err
			}
			if existing == nil {
				cal, err = g.generateLocked(ctx, propertyID, year, month, overlay)
				return err
			}

			days := copyDays(existing.Days)
			if err := overlay(days); err != nil {
				return err
			}
			cal, err = g.persist(ctx, propertyID, year, month, days)
			return err
		})
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}
	return cal, nil
}

// generateLocked 整月计算并写入，调用方需持有键锁
// overlay 在写入前对日数据做额外调整
func (g *Generator) generateLocked(ctx context.Context, propertyID int64, year int, month time.Month, overlay func(map[string]models.CalendarDay) error) (*models.Calendar, error) {
	days, err := g.computeDays(ctx, propertyID, utils.MonthRange(year, month))
	if err != nil {
		return nil, err
	}
	if overlay != nil {
		if err := overlay(days); err != nil {
			return nil, err
		}
	}
	return g.persist(ctx, propertyID, year, month, days)
}

// computeDays 计算区间内每一天，任意一天失败即返回错误
func (g *Generator) computeDays(ctx context.Context, propertyID int64, rng utils.DateRange) (map[string]models.CalendarDay, error) {
	rules, err := g.rules.LoadRuleSet(ctx, propertyID, rng)
	if err != nil {
		return nil, regenerationError(propertyID, rng, err)
	}
	windows, err := g.bookings.ListBlocking(ctx, propertyID, rng)
	if err != nil {
		return nil, regenerationError(propertyID, rng, err)
	}

	days := make(map[string]models.CalendarDay, rng.Days())
	var calcErr error
	rng.Each(func(date time.Time) {
		if calcErr != nil {
			return
		}
		day, err := g.strategy.CalculateDay(rules, date)
		if err != nil {
			calcErr = fmt.Errorf("%s: %w", utils.FormatDate(date), err)
			return
		}
		if isBooked(windows, date) {
			day.Available = false
		}
		days[strconv.Itoa(date.Day())] = day
	})
	if calcErr != nil {
		return nil, regenerationError(propertyID, rng, calcErr)
	}
	return days, nil
}

// rederiveAvailability 按日期覆盖与有效预订重新判定可订状态
func (g *Generator) rederiveAvailability(ctx context.Context, propertyID int64, rng utils.DateRange, days map[string]models.CalendarDay) error {
	overrides, err := g.rules.ListOverrides(ctx, propertyID, rng)
	if err != nil {
		return regenerationError(propertyID, rng, err)
	}
	windows, err := g.bookings.ListBlocking(ctx, propertyID, rng)
	if err != nil {
		return regenerationError(propertyID, rng, err)
	}
	closed := make(map[string]bool, len(overrides))
	for _, o := range overrides {
		if !o.Available {
			closed[utils.FormatDate(o.Date)] = true
		}
	}

	rng.Each(func(date time.Time) {
		key := strconv.Itoa(date.Day())
		day, ok := days[key]
		if !ok {
			return
		}
		day.Available = !closed[utils.FormatDate(date)] && !isBooked(windows, date)
		days[key] = day
	})
	return nil
}

// persist 计算汇总、校验并整份写入
func (g *Generator) persist(ctx context.Context, propertyID int64, year int, month time.Month, days map[string]models.CalendarDay) (*models.Calendar, error) {
	cal := &models.Calendar{
		PropertyID:      propertyID,
		Month:           utils.MonthKey(year, month),
		Year:            year,
		Days:            days,
		Summary:         Summarize(days),
		GeneratedAt:     g.now().UTC().Truncate(time.Millisecond),
		StrategyVersion: g.strategy.Version(),
	}
	if err := cal.Validate(); err != nil {
		return nil, errors.ErrRegenerationFailure.WithError(err)
	}
	if err := g.store.Put(ctx, cal); err != nil {
		return nil, errors.ErrRegenerationFailure.WithError(fmt.Errorf("store %d/%s: %w", propertyID, cal.Month, err))
	}
	return cal, nil
}

// loadExisting 绕过缓存读取已有日历；不存在、数据不一致或策略版本不同时返回 nil 以触发整月生成
func (g *Generator) loadExisting(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error) {
	existing, err := g.source.Get(ctx, propertyID, year, month)
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrCalendarNotFound):
		return nil, nil
	case errors.Is(err, errors.ErrConsistencyViolation):
		g.logger.Warn("Persisted calendar inconsistent, regenerating",
			logger.PropertyID(propertyID), logger.Month(utils.MonthKey(year, month)), zap.Error(err))
		return nil, nil
	default:
		return nil, errors.ErrRegenerationFailure.WithError(
			fmt.Errorf("load %d/%s: %w", propertyID, utils.MonthKey(year, month), err))
	}
	if existing.StrategyVersion != g.strategy.Version() {
		return nil, nil
	}
	return existing, nil
}

// withKeyLock 在 (房源, 月份) 键上串行执行
func (g *Generator) withKeyLock(ctx context.Context, propertyID int64, year int, month time.Month, fn func() error) error {
	name := cache.BuildKey(cache.KeyPrefixCalendar, strconv.FormatInt(propertyID, 10), utils.MonthKey(year, month))

	g.keyLocks.Lock(name)
	defer func() { _ = g.keyLocks.Unlock(name) }()

	if g.locker != nil {
		unlock, err := g.locker.Lock(ctx, name)
		if err != nil {
			return errors.ErrRegenerationFailure.WithError(err)
		}
		defer unlock()
	}
	return fn()
}

// observe 记录耗时、结果指标与日志
func (g *Generator) observe(kind string, propertyID int64, year int, month time.Month, fn func() error) error {
	start := time.Now()
	err := fn()
	elapsed := time.Since(start)

	result := "success"
	if err != nil {
		result = "failure"
		g.logger.Warn("Calendar generation failed",
			logger.PropertyID(propertyID),
			logger.Month(utils.MonthKey(year, month)),
			logger.JobKind(kind),
			logger.Latency(elapsed),
			zap.Error(err),
		)
	} else {
		g.logger.Debug("Calendar generated",
			logger.PropertyID(propertyID),
			logger.Month(utils.MonthKey(year, month)),
			logger.JobKind(kind),
			logger.Latency(elapsed),
		)
	}
	metrics.GetMetrics().RecordRegeneration(kind, result, elapsed)
	return err
}

// singleMonth 校验区间落在同一自然月
func singleMonth(rng utils.DateRange) (int, time.Month, error) {
	if rng.End.Before(rng.Start) {
		return 0, 0, errors.ErrInvalidDateRange
	}
	if rng.Start.Year() != rng.End.Year() || rng.Start.Month() != rng.End.Month() {
		return 0, 0, errors.ErrInvalidDateRange.WithMessage("日期区间跨月: " + rng.String())
	}
	return rng.Start.Year(), rng.Start.Month(), nil
}

func regenerationError(propertyID int64, rng utils.DateRange, err error) error {
	if errors.Is(err, errors.ErrRegenerationFailure) {
		return err
	}
	return errors.ErrRegenerationFailure.WithError(fmt.Errorf("property %d %s: %w", propertyID, rng, err))
}

func isBooked(windows []models.BookingWindow, date time.Time) bool {
	for i := range windows {
		if windows[i].Blocks(date) {
			return true
		}
	}
	return false
}

func markUnavailable(days map[string]models.CalendarDay, rng utils.DateRange) {
	rng.Each(func(date time.Time) {
		key := strconv.Itoa(date.Day())
		if day, ok := days[key]; ok {
			day.Available = false
			days[key] = day
		}
	})
}

func copyDays(days map[string]models.CalendarDay) map[string]models.CalendarDay {
	out := make(map[string]models.CalendarDay, len(days))
	for k, v := range days {
		out[k] = v
	}
	return out
}
