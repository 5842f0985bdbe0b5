package calendar

import (
	"math/big"

	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// Summarize 由日数据计算月度汇总
// 价格统计基于基础入住价，包含不可订日期；均价四舍五入（half-up）到分
func Summarize(days map[string]models.CalendarDay) models.CalendarSummary {
	var (
		summary models.CalendarSummary
		sum     int64
		first   = true
	)
	for _, day := range days {
		price := day.BaseOccupancyPrice
		if first || price < summary.MinPrice {
			summary.MinPrice = price
		}
		if first || price > summary.MaxPrice {
			summary.MaxPrice = price
		}
		first = false
		sum += price

		if day.Available {
			summary.AvailableDays++
		} else {
			summary.UnavailableDays++
		}
		if day.PriceSource != models.PriceSourceBase {
			summary.ModifiedDays++
		}
		switch day.PriceSource {
		case models.PriceSourceOverride:
			summary.Flags.HasOverrides = true
		case models.PriceSourceSeason:
			summary.Flags.HasSeasonalPricing = true
		case models.PriceSourceWeekend:
			summary.Flags.HasWeekendPricing = true
		}
	}
	if n := len(days); n > 0 {
		summary.AvgPrice = utils.RoundHalfUp(big.NewRat(sum, int64(n)))
		summary.Flags.HasUnavailable = summary.UnavailableDays > 0
		summary.Flags.FullyUnavailable = summary.UnavailableDays == n
	}
	return summary
}
