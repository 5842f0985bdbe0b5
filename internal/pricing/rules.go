// Package pricing 实现房源日价格计算引擎
// 引擎是纯函数：输入定价规则快照与日期，输出当日价格，不做任何 I/O
package pricing

import (
	"time"

	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// RuleSet 单个房源在某一时刻的定价规则快照
// 生成器每次生成前加载一次，计算过程中只读
type RuleSet struct {
	Config    *models.PricingConfig
	Seasons   []models.SeasonalPeriod
	Overrides []models.DateOverride
	MinStays  []models.MinimumStayRule

	overrideIndex map[string]*models.DateOverride
}

// NewRuleSet 创建规则快照并为日期覆盖建立索引
func NewRuleSet(cfg *models.PricingConfig, seasons []models.SeasonalPeriod, overrides []models.DateOverride, minStays []models.MinimumStayRule) *RuleSet {
	rs := &RuleSet{
		Config:    cfg,
		Seasons:   seasons,
		Overrides: overrides,
		MinStays:  minStays,
	}
	rs.overrideIndex = make(map[string]*models.DateOverride, len(overrides))
	for i := range overrides {
		rs.overrideIndex[utils.FormatDate(overrides[i].Date)] = &overrides[i]
	}
	return rs
}

// OverrideOn 返回指定日期的覆盖规则
func (r *RuleSet) OverrideOn(date time.Time) *models.DateOverride {
	key := utils.FormatDate(date)
	if r.overrideIndex != nil {
		return r.overrideIndex[key]
	}
	for i := range r.Overrides {
		if utils.FormatDate(r.Overrides[i].Date) == key {
			return &r.Overrides[i]
		}
	}
	return nil
}

// SeasonsOn 返回覆盖指定日期的全部启用季节
func (r *RuleSet) SeasonsOn(date time.Time) []*models.SeasonalPeriod {
	var matched []*models.SeasonalPeriod
	for i := range r.Seasons {
		if seasonCovers(&r.Seasons[i], date) {
			matched = append(matched, &r.Seasons[i])
		}
	}
	return matched
}

// MinStayRuleOn 返回覆盖指定日期的最少入住规则中最严格的晚数，无匹配时返回 0
func (r *RuleSet) MinStayRuleOn(date time.Time) int {
	nights := 0
	day := utils.TruncateDay(date)
	for _, rule := range r.MinStays {
		if day.Before(utils.TruncateDay(rule.StartDate)) || day.After(utils.TruncateDay(rule.EndDate)) {
			continue
		}
		if rule.MinimumNights > nights {
			nights = rule.MinimumNights
		}
	}
	return nights
}

// seasonCovers 判断季节是否覆盖日期
// 循环季节只比较月日，起始月日大于结束月日时视为跨年
func seasonCovers(s *models.SeasonalPeriod, date time.Time) bool {
	if !s.Enabled {
		return false
	}
	if !s.Recurring {
		day := utils.TruncateDay(date)
		return !day.Before(utils.TruncateDay(s.StartDate)) && !day.After(utils.TruncateDay(s.EndDate))
	}

	md := monthDay(date)
	start, end := monthDay(s.StartDate), monthDay(s.EndDate)
	if start <= end {
		return md >= start && md <= end
	}
	return md >= start || md <= end
}

// seasonLength 季节跨度天数，用于重叠时的决胜
func seasonLength(s *models.SeasonalPeriod, date time.Time) int {
	if !s.Recurring {
		return utils.DaysBetween(s.StartDate, s.EndDate) + 1
	}
	year := date.Year()
	start := utils.Date(year, s.StartDate.Month(), s.StartDate.Day())
	end := utils.Date(year, s.EndDate.Month(), s.EndDate.Day())
	if monthDay(s.StartDate) > monthDay(s.EndDate) {
		end = end.AddDate(1, 0, 0)
	}
	return utils.DaysBetween(start, end) + 1
}

func monthDay(t time.Time) int {
	return int(t.Month())*100 + t.Day()
}
