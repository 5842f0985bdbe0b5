package invalidation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/logger"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
)

// HorizonReport 滚动窗口任务执行结果
type HorizonReport struct {
	Properties int `json:"properties"`
	Checked    int `json:"checked"`
	Enqueued   int `json:"enqueued"`
	Errors     int `json:"errors"`
}

// RunHorizon 确保每个活跃房源未来 HorizonMonths 个月（含当月）的日历存在且新鲜
// 缺失、数据不一致、策略版本不同或生成时间超过 StaleAfter 的月份提交整月生成任务
// 月份以房源所在时区的当前日期计算
func (c *Coordinator) RunHorizon(ctx context.Context) (HorizonReport, error) {
	var report HorizonReport

	properties, err := c.properties.ListActive(ctx)
	if err != nil {
		return report, err
	}
	report.Properties = len(properties)

	for _, property := range properties {
		now := c.now().In(property.Location())
		for i := 0; i < c.cfg.HorizonMonths; i++ {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			year, month := utils.AddMonths(now.Year(), now.Month(), i)
			report.Checked++

			reason, err := c.needsGeneration(ctx, property.ID, year, month)
			if err != nil {
				report.Errors++
				c.logger.Warn("Horizon check failed",
					logger.PropertyID(property.ID), logger.Month(utils.MonthKey(year, month)), zap.Error(err))
				continue
			}
			if reason == "" {
				continue
			}

			if _, err := c.Enqueue(&Job{PropertyID: property.ID, Year: year, Month: month, Kind: KindFull}); err != nil {
				return report, err
			}
			report.Enqueued++
			c.logger.Debug("Horizon month scheduled",
				logger.PropertyID(property.ID), logger.Month(utils.MonthKey(year, month)), logger.String("reason", reason))
		}
	}

	c.logger.Info("Horizon run completed",
		logger.Int("properties", report.Properties),
		logger.Int("checked", report.Checked),
		logger.Int("enqueued", report.Enqueued),
		logger.Int("errors", report.Errors),
	)
	return report, nil
}

// needsGeneration 返回需要重新生成的原因，空串表示日历可用
func (c *Coordinator) needsGeneration(ctx context.Context, propertyID int64, year int, month time.Month) (string, error) {
	cal, err := c.calendars.Get(ctx, propertyID, year, month)
	switch {
	case err == nil:
	case errors.Is(err, errors.ErrCalendarNotFound):
		return "missing", nil
	case errors.Is(err, errors.ErrConsistencyViolation):
		return "inconsistent", nil
	default:
		return "", err
	}
	if cal.StrategyVersion != c.generator.StrategyVersion() {
		return "strategy", nil
	}
	if c.cfg.StaleAfter > 0 && c.now().Sub(cal.GeneratedAt) > c.cfg.StaleAfter {
		return "stale", nil
	}
	return "", nil
}
