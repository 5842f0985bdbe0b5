package invalidation

import (
	"context"
	"time"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/logger"
	"github.com/dumeirei/stay-calendar-backend/internal/common/metrics"
	"github.com/dumeirei/stay-calendar-backend/internal/common/tracing"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// 事件来源
const (
	SourceHTTP  = "http"
	SourceQueue = "queue"
	SourceMQTT  = "mqtt"
)

// RuleMutation 定价规则变更事件，Range 为受影响的日期（含两端）
type RuleMutation struct {
	PropertyID int64           `json:"property_id"`
	Range      utils.DateRange `json:"range"`
}

// BookingStatusChange 预订状态变更事件，CheckOut 当天不受影响
type BookingStatusChange struct {
	PropertyID         int64     `json:"property_id"`
	BookingNo          string    `json:"booking_no,omitempty"`
	CheckIn            time.Time `json:"check_in"`
	CheckOut           time.Time `json:"check_out"`
	BecomesUnavailable bool      `json:"becomes_unavailable"`
	Status             string    `json:"status,omitempty"`
}

// NewBookingStatusChange 由预订状态构造事件，confirmed/on-hold 占用日期，cancelled/expired 释放日期
func NewBookingStatusChange(propertyID int64, bookingNo string, checkIn, checkOut time.Time, status string) (BookingStatusChange, error) {
	if !models.IsValidBookingStatus(status) {
		return BookingStatusChange{}, errors.ErrInvalidParams.WithMessage("无效的预订状态: " + status)
	}
	return BookingStatusChange{
		PropertyID:         propertyID,
		BookingNo:          bookingNo,
		CheckIn:            checkIn,
		CheckOut:           checkOut,
		BecomesUnavailable: models.IsBlockingStatus(status),
		Status:             status,
	}, nil
}

// HandleRuleMutation 为受影响的每个月份提交区间重算任务
func (c *Coordinator) HandleRuleMutation(ctx context.Context, source string, ev RuleMutation) ([]string, error) {
	if ev.PropertyID <= 0 {
		return nil, errors.ErrInvalidParams.WithMessage("无效的房源ID")
	}
	if ev.Range.End.Before(ev.Range.Start) {
		return nil, errors.ErrInvalidDateRange
	}
	metrics.GetMetrics().RecordEvent(source, "rule_mutation")

	ids, err := c.enqueueSpans(ctx, ev.PropertyID, ev.Range, func(span utils.MonthSpan) *Job {
		kind := KindRange
		if span.FullMonth() {
			kind = KindFull
		}
		return &Job{
			PropertyID: ev.PropertyID,
			Year:       span.Year,
			Month:      span.Month,
			Kind:       kind,
			Range:      span.Range,
		}
	})
	if err != nil {
		tracing.SetError(ctx, err)
		return ids, err
	}
	c.logger.Info("Rule mutation accepted",
		logger.PropertyID(ev.PropertyID),
		logger.String("range", ev.Range.String()),
		logger.String("source", source),
		logger.Int("jobs", len(ids)),
	)
	return ids, nil
}

// HandleBookingStatusChange 为受影响的每个月份提交仅可订状态更新任务
func (c *Coordinator) HandleBookingStatusChange(ctx context.Context, source string, ev BookingStatusChange) ([]string, error) {
	if ev.PropertyID <= 0 {
		return nil, errors.ErrInvalidParams.WithMessage("无效的房源ID")
	}
	rng, err := utils.StayRange(ev.CheckIn, ev.CheckOut)
	if err != nil {
		return nil, errors.ErrInvalidDateRange.WithError(err)
	}
	metrics.GetMetrics().RecordEvent(source, "booking_status")

	// 先落库占用区间，释放时重新判定才能看到最新状态
	if c.bookings != nil && ev.BookingNo != "" && ev.Status != "" {
		window := &models.BookingWindow{
			PropertyID: ev.PropertyID,
			BookingNo:  ev.BookingNo,
			CheckIn:    rng.Start,
			CheckOut:   utils.TruncateDay(ev.CheckOut),
			Status:     ev.Status,
		}
		if err := c.bookings.Record(ctx, window); err != nil {
			tracing.SetError(ctx, err)
			return nil, errors.ErrDatabaseError.WithError(err)
		}
	}

	ids, err := c.enqueueSpans(ctx, ev.PropertyID, rng, func(span utils.MonthSpan) *Job {
		return &Job{
			PropertyID: ev.PropertyID,
			Year:       span.Year,
			Month:      span.Month,
			Kind:       KindAvailability,
			Range:      span.Range,
			Spans:      []AvailabilitySpan{{Range: span.Range, Unavailable: ev.BecomesUnavailable}},
		}
	})
	if err != nil {
		tracing.SetError(ctx, err)
		return ids, err
	}
	c.logger.Info("Booking status change accepted",
		logger.PropertyID(ev.PropertyID),
		logger.String("booking_no", ev.BookingNo),
		logger.String("range", rng.String()),
		logger.Bool("unavailable", ev.BecomesUnavailable),
		logger.String("source", source),
		logger.Int("jobs", len(ids)),
	)
	return ids, nil
}
