package models

import (
	"database/sql/driver"
	"encoding/json"
	"time"
)

// PricingConfig 房源定价配置，每个房源一条，只更新不删除
// 金额字段单位均为分
type PricingConfig struct {
	ID                    int64         `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID            int64         `gorm:"uniqueIndex;not null" json:"property_id"`
	BasePrice             int64         `gorm:"not null" json:"base_price"`
	Currency              string        `gorm:"type:varchar(3);not null;default:'USD'" json:"currency"`
	BaseOccupancy         int           `gorm:"not null" json:"base_occupancy"`
	MaxGuests             int           `gorm:"not null" json:"max_guests"`
	ExtraGuestFee         int64         `gorm:"not null" json:"extra_guest_fee"`
	CleaningFee           int64         `gorm:"not null" json:"cleaning_fee"`
	WeekendMultiplier     float64       `gorm:"type:numeric(6,4);not null" json:"weekend_multiplier"`
	WeekendDays           IntList       `gorm:"type:jsonb" json:"weekend_days"`
	LengthOfStayDiscounts DiscountTiers `gorm:"type:jsonb" json:"length_of_stay_discounts"`
	CreatedAt             time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt             time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (PricingConfig) TableName() string {
	return "pricing_configs"
}

// IsWeekend 判断星期是否属于周末定价日
func (c *PricingConfig) IsWeekend(day time.Weekday) bool {
	for _, d := range c.WeekendDays {
		if time.Weekday(d) == day {
			return true
		}
	}
	return false
}

// DiscountTier 连住折扣档位：入住晚数达到 MinNights 时减免 Percent%
type DiscountTier struct {
	MinNights int     `json:"min_nights"`
	Percent   float64 `json:"percent"`
}

// DiscountTiers 连住折扣档位列表
type DiscountTiers []DiscountTier

// Scan 实现 sql.Scanner 接口
func (d *DiscountTiers) Scan(value interface{}) error {
	return scanJSON(value, d)
}

// Value 实现 driver.Valuer 接口
func (d DiscountTiers) Value() (driver.Value, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

// Best 返回晚数满足的最高折扣档位
func (d DiscountTiers) Best(nights int) (DiscountTier, bool) {
	var (
		best  DiscountTier
		found bool
	)
	for _, tier := range d {
		if nights < tier.MinNights {
			continue
		}
		if !found || tier.Percent > best.Percent {
			best = tier
			found = true
		}
	}
	return best, found
}

// SeasonalPeriod 季节性定价区间
// Recurring 为 true 时只比较月日，可跨年（如 12-20 至 01-05）
type SeasonalPeriod struct {
	ID              int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID      int64     `gorm:"index;not null" json:"property_id"`
	Name            string    `gorm:"type:varchar(100);not null" json:"name"`
	StartDate       time.Time `gorm:"type:date;not null" json:"start_date"`
	EndDate         time.Time `gorm:"type:date;not null" json:"end_date"`
	Recurring       bool      `gorm:"not null" json:"recurring"`
	PriceMultiplier float64   `gorm:"type:numeric(6,4);not null" json:"price_multiplier"`
	MinimumStay     *int      `json:"minimum_stay,omitempty"`
	Enabled         bool      `gorm:"not null" json:"enabled"`
	CreatedAt       time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (SeasonalPeriod) TableName() string {
	return "seasonal_periods"
}

// DateOverride 单日价格覆盖，优先级最高
type DateOverride struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID  int64     `gorm:"uniqueIndex:uk_override_property_date;not null" json:"property_id"`
	Date        time.Time `gorm:"type:date;uniqueIndex:uk_override_property_date;not null" json:"date"`
	CustomPrice int64     `gorm:"not null" json:"custom_price"`
	MinimumStay *int      `json:"minimum_stay,omitempty"`
	Available   bool      `gorm:"not null" json:"available"`
	FlatRate    bool      `gorm:"not null" json:"flat_rate"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (DateOverride) TableName() string {
	return "date_overrides"
}

// MinimumStayRule 日期区间最少入住晚数规则
type MinimumStayRule struct {
	ID            int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID    int64     `gorm:"index;not null" json:"property_id"`
	StartDate     time.Time `gorm:"type:date;not null" json:"start_date"`
	EndDate       time.Time `gorm:"type:date;not null" json:"end_date"`
	MinimumNights int       `gorm:"not null" json:"minimum_nights"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (MinimumStayRule) TableName() string {
	return "minimum_stay_rules"
}
