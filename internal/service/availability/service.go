// Package availability 提供入住可订查询与报价
// 只读取已持久化的价格日历，缺失月份同步回退生成
package availability

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/logger"
	"github.com/dumeirei/stay-calendar-backend/internal/common/metrics"
	"github.com/dumeirei/stay-calendar-backend/internal/common/tracing"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
	"github.com/dumeirei/stay-calendar-backend/internal/pricing"
	"github.com/dumeirei/stay-calendar-backend/internal/repository"
)

// MaxNights 单次查询允许的最大晚数
const MaxNights = 365

// 不可订原因
const (
	ReasonUnavailableDates = "unavailable_dates"
	ReasonMinimumStay      = "minimum_stay"
	ReasonTooManyGuests    = "too_many_guests"
)

// MonthGenerator 缺失月份的同步生成
type MonthGenerator interface {
	GenerateMonth(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error)
}

// PropertyReader 房源读取
type PropertyReader interface {
	GetByID(ctx context.Context, id int64) (*models.Property, error)
}

// ConfigReader 定价配置读取
type ConfigReader interface {
	GetConfig(ctx context.Context, propertyID int64) (*models.PricingConfig, error)
}

// Request 可订查询参数，CheckOut 当天不计入住
type Request struct {
	PropertyID int64
	CheckIn    time.Time
	CheckOut   time.Time
	Guests     int
}

// Result 可订查询结果，不可订时以 Reason 说明原因
type Result struct {
	PropertyID       int64          `json:"propertyId"`
	CheckIn          string         `json:"checkIn"`
	CheckOut         string         `json:"checkOut"`
	Guests           int            `json:"guests"`
	Nights           int            `json:"nights"`
	Available        bool           `json:"available"`
	Reason           string         `json:"reason,omitempty"`
	MinimumStay      int            `json:"minimumStay"`
	MaxGuests        int            `json:"maxGuests"`
	UnavailableDates []string       `json:"unavailableDates,omitempty"`
	Pricing          *pricing.Quote `json:"pricing,omitempty"`
}

// Service 可订查询服务
type Service struct {
	properties PropertyReader
	configs    ConfigReader
	calendars  repository.CalendarStore
	generator  MonthGenerator
	logger     *zap.Logger
}

// NewService 创建可订查询服务
func NewService(properties PropertyReader, configs ConfigReader, calendars repository.CalendarStore, generator MonthGenerator, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		properties: properties,
		configs:    configs,
		calendars:  calendars,
		generator:  generator,
		logger:     log.Named("availability"),
	}
}

// CheckAvailability 查询入住区间是否可订并给出报价
//
// 最少入住晚数取入住当天的设置；区间内任意一天不可订则整体不可订并返回冲突日期；
// 人数未超过上限时总是返回报价，便于前端展示
func (s *Service) CheckAvailability(ctx context.Context, req Request) (*Result, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "availability.Check",
		tracing.WithPropertyID(req.PropertyID),
		tracing.AttrGuests.Int(req.Guests),
	)
	defer span.End()

	result, err := s.check(ctx, req)
	switch {
	case err != nil:
		span.RecordError(err)
		metrics.GetMetrics().RecordAvailabilityQuery("error")
	case result.Available:
		metrics.GetMetrics().RecordAvailabilityQuery("available")
	default:
		metrics.GetMetrics().RecordAvailabilityQuery(result.Reason)
	}
	return result, err
}

func (s *Service) check(ctx context.Context, req Request) (*Result, error) {
	if req.PropertyID <= 0 {
		return nil, errors.ErrInvalidParams.WithMessage("无效的房源ID")
	}
	if req.Guests < 1 {
		return nil, errors.ErrInvalidParams.WithMessage("入住人数至少为 1")
	}
	stay, err := utils.StayRange(req.CheckIn, req.CheckOut)
	if err != nil {
		return nil, errors.ErrInvalidDateRange.WithError(err)
	}
	nights := stay.Days()
	if nights > MaxNights {
		return nil, errors.ErrInvalidDateRange.WithMessage("入住晚数不能超过 " + strconv.Itoa(MaxNights))
	}
	tracing.SetAttributes(ctx, tracing.AttrNights.Int(nights))

	if _, err := s.properties.GetByID(ctx, req.PropertyID); err != nil {
		return nil, err
	}
	cfg, err := s.configs.GetConfig(ctx, req.PropertyID)
	if err != nil {
		return nil, err
	}

	calendars, err := s.fetchMonths(ctx, req.PropertyID, stay)
	if err != nil {
		return nil, err
	}

	result := &Result{
		PropertyID: req.PropertyID,
		CheckIn:    utils.FormatDate(stay.Start),
		CheckOut:   utils.FormatDate(req.CheckOut),
		Guests:     req.Guests,
		Nights:     nights,
		MaxGuests:  cfg.MaxGuests,
	}

	rates := make([]pricing.NightlyRate, 0, nights)
	priced := req.Guests <= cfg.MaxGuests
	var lookupErr error
	stay.Each(func(date time.Time) {
		if lookupErr != nil {
			return
		}
		cal := calendars[utils.MonthKey(date.Year(), date.Month())]
		day, ok := cal.Day(date.Day())
		if !ok {
			lookupErr = errors.ErrConsistencyViolation.WithMessage("日历缺少日期 " + utils.FormatDate(date))
			return
		}
		if date.Equal(stay.Start) {
			result.MinimumStay = day.MinimumStay
		}
		if !day.Available {
			result.UnavailableDates = append(result.UnavailableDates, utils.FormatDate(date))
		}
		if !priced {
			return
		}
		price, ok := day.PriceFor(req.Guests)
		if !ok {
			priced = false
			return
		}
		rates = append(rates, pricing.NightlyRate{Date: utils.FormatDate(date), Price: price})
	})
	if lookupErr != nil {
		return nil, lookupErr
	}

	if priced {
		quote := pricing.BuildQuote(rates, cfg.CleaningFee, cfg.LengthOfStayDiscounts, cfg.Currency)
		result.Pricing = &quote
	}

	switch {
	case req.Guests > cfg.MaxGuests:
		result.Reason = ReasonTooManyGuests
	case len(result.UnavailableDates) > 0:
		result.Reason = ReasonUnavailableDates
	case nights < result.MinimumStay:
		result.Reason = ReasonMinimumStay
	default:
		result.Available = true
	}
	return result, nil
}

// GetCalendar 读取单月日历，缺失时同步生成
func (s *Service) GetCalendar(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error) {
	ctx, span := tracing.GetTracer().StartSpan(ctx, "availability.GetCalendar",
		tracing.WithPropertyID(propertyID), tracing.WithMonth(utils.MonthKey(year, month)))
	defer span.End()

	if _, err := s.properties.GetByID(ctx, propertyID); err != nil {
		return nil, err
	}
	return s.fetchMonth(ctx, propertyID, year, month)
}

// fetchMonths 并行读取区间覆盖的所有月份
func (s *Service) fetchMonths(ctx context.Context, propertyID int64, stay utils.DateRange) (map[string]*models.Calendar, error) {
	spans := stay.SplitByMonth()
	results := make([]*models.Calendar, len(spans))

	g, gctx := errgroup.WithContext(ctx)
	for i, span := range spans {
		g.Go(func() error {
			cal, err := s.fetchMonth(gctx, propertyID, span.Year, span.Month)
			if err != nil {
				return err
			}
			results[i] = cal
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	calendars := make(map[string]*models.Calendar, len(spans))
	for i, span := range spans {
		calendars[span.Key()] = results[i]
	}
	return calendars, nil
}

// fetchMonth 读取已持久化的日历；缺失或数据不一致时同步生成
func (s *Service) fetchMonth(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error) {
	cal, err := s.calendars.Get(ctx, propertyID, year, month)
	switch {
	case err == nil:
		return cal, nil
	case errors.Is(err, errors.ErrCalendarNotFound), errors.Is(err, errors.ErrConsistencyViolation):
	default:
		return nil, fmt.Errorf("load calendar %s: %w", utils.MonthKey(year, month), err)
	}

	metrics.GetMetrics().RecordFallbackGeneration()
	s.logger.Info("Calendar missing, generating on demand",
		logger.PropertyID(propertyID),
		logger.Month(utils.MonthKey(year, month)),
		zap.NamedError("cause", err),
	)
	return s.generator.GenerateMonth(ctx, propertyID, year, month)
}
