package models

import (
	"database/sql/driver"
	"encoding/json"
	"strconv"
	"time"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
)

// PriceSource 日价格来源
type PriceSource string

// 价格来源，优先级 override > season > weekend > base
const (
	PriceSourceBase     PriceSource = "base"
	PriceSourceWeekend  PriceSource = "weekend"
	PriceSourceSeason   PriceSource = "season"
	PriceSourceOverride PriceSource = "override"
)

// Calendar 房源月度价格日历（物化缓存，可随时重建）
type Calendar struct {
	PropertyID      int64                  `json:"propertyId" bson:"propertyId"`
	Month           string                 `json:"month" bson:"month"`
	Year            int                    `json:"year" bson:"year"`
	Days            map[string]CalendarDay `json:"days" bson:"days"`
	Summary         CalendarSummary        `json:"summary" bson:"summary"`
	GeneratedAt     time.Time              `json:"generatedAt" bson:"generatedAt"`
	StrategyVersion string                 `json:"strategyVersion" bson:"strategyVersion"`
}

// Day 按日号取日数据
func (c *Calendar) Day(day int) (CalendarDay, bool) {
	d, ok := c.Days[strconv.Itoa(day)]
	return d, ok
}

// CalendarDay 单日价格与可订状态
// Prices 以入住人数为键，单位为分
type CalendarDay struct {
	BaseOccupancyPrice int64          `json:"baseOccupancyPrice" bson:"baseOccupancyPrice"`
	Prices             map[int]int64  `json:"prices" bson:"prices"`
	Available          bool           `json:"available" bson:"available"`
	MinimumStay        int            `json:"minimumStay" bson:"minimumStay"`
	PriceSource        PriceSource    `json:"priceSource" bson:"priceSource"`
	SourceDetails      *SourceDetails `json:"sourceDetails" bson:"sourceDetails"`
}

// PriceFor 取指定人数的夜价，人数不超过基础入住人数时返回基础价
func (d *CalendarDay) PriceFor(guests int) (int64, bool) {
	if p, ok := d.Prices[guests]; ok {
		return p, true
	}
	minGuests := 0
	for g := range d.Prices {
		if minGuests == 0 || g < minGuests {
			minGuests = g
		}
	}
	if guests <= minGuests {
		return d.BaseOccupancyPrice, true
	}
	return 0, false
}

// SourceDetails 价格来源明细，base/weekend 来源时为空
type SourceDetails struct {
	SeasonID   int64   `json:"seasonId,omitempty" bson:"seasonId,omitempty"`
	SeasonName string  `json:"seasonName,omitempty" bson:"seasonName,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty" bson:"multiplier,omitempty"`
	OverrideID int64   `json:"overrideId,omitempty" bson:"overrideId,omitempty"`
	FlatRate   bool    `json:"flatRate,omitempty" bson:"flatRate,omitempty"`
}

// CalendarSummary 月度汇总，必须可由 Days 重新计算得到
type CalendarSummary struct {
	MinPrice        int64         `json:"minPrice" bson:"minPrice"`
	MaxPrice        int64         `json:"maxPrice" bson:"maxPrice"`
	AvgPrice        int64         `json:"avgPrice" bson:"avgPrice"`
	AvailableDays   int           `json:"availableDays" bson:"availableDays"`
	UnavailableDays int           `json:"unavailableDays" bson:"unavailableDays"`
	ModifiedDays    int           `json:"modifiedDays" bson:"modifiedDays"`
	Flags           CalendarFlags `json:"flags" bson:"flags"`
}

// CalendarFlags 月度标记
type CalendarFlags struct {
	HasOverrides       bool `json:"hasOverrides" bson:"hasOverrides"`
	HasSeasonalPricing bool `json:"hasSeasonalPricing" bson:"hasSeasonalPricing"`
	HasWeekendPricing  bool `json:"hasWeekendPricing" bson:"hasWeekendPricing"`
	HasUnavailable     bool `json:"hasUnavailable" bson:"hasUnavailable"`
	FullyUnavailable   bool `json:"fullyUnavailable" bson:"fullyUnavailable"`
}

// CalendarRecord 价格日历 postgres 存储行，整份日历以 jsonb 文档保存
type CalendarRecord struct {
	ID              int64            `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID      int64            `gorm:"uniqueIndex:uk_calendar_property_month;not null" json:"property_id"`
	Month           string           `gorm:"type:varchar(7);uniqueIndex:uk_calendar_property_month;not null" json:"month"`
	Document        CalendarDocument `gorm:"type:jsonb;not null" json:"document"`
	StrategyVersion string           `gorm:"type:varchar(20);not null" json:"strategy_version"`
	GeneratedAt     time.Time        `gorm:"not null" json:"generated_at"`
	UpdatedAt       time.Time        `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (CalendarRecord) TableName() string {
	return "calendars"
}

// CalendarDocument jsonb 列中的日历文档
type CalendarDocument struct {
	Calendar
}

// Scan 实现 sql.Scanner 接口
func (d *CalendarDocument) Scan(value interface{}) error {
	return scanJSON(value, &d.Calendar)
}

// Value 实现 driver.Valuer 接口
func (d CalendarDocument) Value() (driver.Value, error) {
	return json.Marshal(d.Calendar)
}

// CalendarRegenerationFailure 重试耗尽的日历生成任务记录
type CalendarRegenerationFailure struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	JobID      string    `gorm:"type:varchar(36);index;not null" json:"job_id"`
	PropertyID int64     `gorm:"index;not null" json:"property_id"`
	Month      string    `gorm:"type:varchar(7);not null" json:"month"`
	Kind       string    `gorm:"type:varchar(20);not null" json:"kind"`
	Attempts   int       `gorm:"not null" json:"attempts"`
	LastError  string    `gorm:"type:text;not null" json:"last_error"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 表名
func (CalendarRegenerationFailure) TableName() string {
	return "calendar_regeneration_failures"
}

// Validate 校验日历日数据与所在月份一致：键必须恰好为 1..当月天数
func (c *Calendar) Validate() error {
	t, err := time.ParseInLocation("2006-01", c.Month, time.UTC)
	if err != nil {
		return errors.ErrConsistencyViolation.WithMessage("日历月份格式错误: " + c.Month)
	}
	if t.Year() != c.Year {
		return errors.ErrConsistencyViolation.WithMessage("日历年份与月份不一致: " + c.Month)
	}
	daysInMonth := time.Date(t.Year(), t.Month()+1, 0, 0, 0, 0, 0, time.UTC).Day()
	if len(c.Days) != daysInMonth {
		return errors.ErrConsistencyViolation.WithMessage(
			c.Month + " 应有 " + strconv.Itoa(daysInMonth) + " 天，实际 " + strconv.Itoa(len(c.Days)) + " 天")
	}
	for day := 1; day <= daysInMonth; day++ {
		if _, ok := c.Days[strconv.Itoa(day)]; !ok {
			return errors.ErrConsistencyViolation.WithMessage(c.Month + " 缺少第 " + strconv.Itoa(day) + " 天")
		}
	}
	return nil
}
