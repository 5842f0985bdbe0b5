// Package events 定义日历失效事件的载荷、asynq 任务及其消费端
package events

import (
	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/service/invalidation"
)

// RuleMutationPayload 定价规则变更载荷，日期格式 YYYY-MM-DD，两端均包含
type RuleMutationPayload struct {
	PropertyID int64  `json:"property_id" binding:"required,min=1" example:"7"`
	StartDate  string `json:"start_date" binding:"required" example:"2025-07-01"`
	EndDate    string `json:"end_date" binding:"required" example:"2025-07-31"`
}

// Event 转换为协调器事件
func (p RuleMutationPayload) Event() (invalidation.RuleMutation, error) {
	start, err := utils.ParseDate(p.StartDate)
	if err != nil {
		return invalidation.RuleMutation{}, errors.ErrInvalidParams.WithMessage("无效的开始日期格式")
	}
	end, err := utils.ParseDate(p.EndDate)
	if err != nil {
		return invalidation.RuleMutation{}, errors.ErrInvalidParams.WithMessage("无效的结束日期格式")
	}
	rng, err := utils.NewDateRange(start, end)
	if err != nil {
		return invalidation.RuleMutation{}, errors.ErrInvalidDateRange.WithError(err)
	}
	return invalidation.RuleMutation{PropertyID: p.PropertyID, Range: rng}, nil
}

// BookingStatusPayload 预订状态变更载荷，离店日不含
type BookingStatusPayload struct {
	PropertyID int64  `json:"property_id" binding:"required,min=1" example:"7"`
	BookingNo  string `json:"booking_no" example:"BK20250701001"`
	CheckIn    string `json:"check_in" binding:"required" example:"2025-07-05"`
	CheckOut   string `json:"check_out" binding:"required" example:"2025-07-08"`
	Status     string `json:"status" binding:"required,oneof=confirmed on-hold cancelled expired" example:"confirmed"`
}

// Event 转换为协调器事件
func (p BookingStatusPayload) Event() (invalidation.BookingStatusChange, error) {
	checkIn, err := utils.ParseDate(p.CheckIn)
	if err != nil {
		return invalidation.BookingStatusChange{}, errors.ErrInvalidParams.WithMessage("无效的入住日期格式")
	}
	checkOut, err := utils.ParseDate(p.CheckOut)
	if err != nil {
		return invalidation.BookingStatusChange{}, errors.ErrInvalidParams.WithMessage("无效的离店日期格式")
	}
	return invalidation.NewBookingStatusChange(p.PropertyID, p.BookingNo, checkIn, checkOut, p.Status)
}
