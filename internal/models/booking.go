package models

import (
	"time"
)

// BookingWindow 预订占用区间，由预订模块或预订状态事件写入
// CheckIn 含当天，CheckOut 不含当天
type BookingWindow struct {
	ID         int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	PropertyID int64     `gorm:"index:idx_booking_property_dates;not null" json:"property_id"`
	BookingNo  string    `gorm:"type:varchar(64);uniqueIndex;not null" json:"booking_no"`
	CheckIn    time.Time `gorm:"type:date;index:idx_booking_property_dates;not null" json:"check_in"`
	CheckOut   time.Time `gorm:"type:date;index:idx_booking_property_dates;not null" json:"check_out"`
	Status     string    `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt  time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (BookingWindow) TableName() string {
	return "booking_windows"
}

// BookingWindowStatus 预订状态
const (
	BookingStatusConfirmed = "confirmed" // 已确认
	BookingStatusOnHold    = "on-hold"   // 保留中
	BookingStatusCancelled = "cancelled" // 已取消
	BookingStatusExpired   = "expired"   // 已过期
)

// BlockingBookingStatuses 会占用日期的预订状态
var BlockingBookingStatuses = []string{BookingStatusConfirmed, BookingStatusOnHold}

// IsBlockingStatus 判断状态是否占用日期
func IsBlockingStatus(status string) bool {
	return status == BookingStatusConfirmed || status == BookingStatusOnHold
}

// IsValidBookingStatus 判断状态是否合法
func IsValidBookingStatus(status string) bool {
	switch status {
	case BookingStatusConfirmed, BookingStatusOnHold, BookingStatusCancelled, BookingStatusExpired:
		return true
	}
	return false
}

// Blocks 判断该预订是否占用指定日期
func (b *BookingWindow) Blocks(date time.Time) bool {
	if !IsBlockingStatus(b.Status) {
		return false
	}
	return !date.Before(b.CheckIn) && date.Before(b.CheckOut)
}
