package availability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
	"github.com/dumeirei/stay-calendar-backend/internal/pricing"
	"github.com/dumeirei/stay-calendar-backend/internal/repository"
	"github.com/dumeirei/stay-calendar-backend/internal/service/calendar"
)

const propertyID int64 = 7

type serviceFixture struct {
	db       *gorm.DB
	service  *Service
	store    *repository.CalendarRepository
	bookings *repository.BookingWindowRepository
}

func setupService(t *testing.T) *serviceFixture {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, repository.AutoMigrate(db))

	properties := repository.NewPropertyRepository(db)
	require.NoError(t, db.Create(&models.Property{
		ID: propertyID, Name: "Seaside Loft", Timezone: "UTC", Status: models.PropertyStatusActive,
	}).Error)
	require.NoError(t, db.Create(&models.PricingConfig{
		PropertyID:        propertyID,
		BasePrice:         10000,
		Currency:          "USD",
		BaseOccupancy:     2,
		MaxGuests:         4,
		ExtraGuestFee:     2000,
		CleaningFee:       5000,
		WeekendMultiplier: 1,
		LengthOfStayDiscounts: models.DiscountTiers{
			{MinNights: 7, Percent: 5},
		},
	}).Error)

	rules := repository.NewPricingRuleRepository(db)
	bookings := repository.NewBookingWindowRepository(db)
	store := repository.NewCalendarRepository(db)
	strategy, err := pricing.NewStrategy(pricing.StrategyV1, pricing.Options{})
	require.NoError(t, err)
	generator := calendar.NewGenerator(rules, bookings, store, strategy, nil)

	return &serviceFixture{
		db:       db,
		service:  NewService(properties, rules, store, generator, nil),
		store:    store,
		bookings: bookings,
	}
}

func stay(checkIn, checkOut time.Time, guests int) Request {
	return Request{PropertyID: propertyID, CheckIn: checkIn, CheckOut: checkOut, Guests: guests}
}

// ==================== 报价测试 ====================

func TestCheckAvailability_SevenNightsDiscounted(t *testing.T) {
	f := setupService(t)

	result, err := f.service.CheckAvailability(context.Background(),
		stay(utils.Date(2025, time.July, 7), utils.Date(2025, time.July, 14), 2))
	require.NoError(t, err)

	assert.True(t, result.Available)
	assert.Empty(t, result.Reason)
	assert.Equal(t, 7, result.Nights)
	assert.Equal(t, 1, result.MinimumStay)
	require.NotNil(t, result.Pricing)
	assert.Equal(t, int64(70000), result.Pricing.NightsTotal)
	assert.Equal(t, int64(75000), result.Pricing.Subtotal)
	assert.Equal(t, int64(3750), result.Pricing.DiscountAmount)
	assert.Equal(t, int64(71250), result.Pricing.Total)
	assert.Equal(t, "2025-07-07", result.Pricing.NightlyRates[0].Date)
	assert.Equal(t, "2025-07-13", result.Pricing.NightlyRates[6].Date)
}

func TestCheckAvailability_SixNightsNoDiscount(t *testing.T) {
	f := setupService(t)

	result, err := f.service.CheckAvailability(context.Background(),
		stay(utils.Date(2025, time.July, 7), utils.Date(2025, time.July, 13), 2))
	require.NoError(t, err)

	require.NotNil(t, result.Pricing)
	assert.Equal(t, int64(0), result.Pricing.DiscountAmount)
	assert.Equal(t, int64(65000), result.Pricing.Total)
}

func TestCheckAvailability_ExtraGuests(t *testing.T) {
	f := setupService(t)

	result, err := f.service.CheckAvailability(context.Background(),
		stay(utils.Date(2025, time.July, 7), utils.Date(2025, time.July, 9), 3))
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Equal(t, int64(24000), result.Pricing.NightsTotal)

	// 人数低于基础入住人数按基础价
	result, err = f.service.CheckAvailability(context.Background(),
		stay(utils.Date(2025, time.July, 7), utils.Date(2025, time.July, 9), 1))
	require.NoError(t, err)
	assert.Equal(t, int64(20000), result.Pricing.NightsTotal)
}

func TestCheckAvailability_TooManyGuests(t *testing.T) {
	f := setupService(t)

	result, err := f.service.CheckAvailability(context.Background(),
		stay(utils.Date(2025, time.July, 7), utils.Date(2025, time.July, 9), 5))
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, ReasonTooManyGuests, result.Reason)
	assert.Equal(t, 4, result.MaxGuests)
	assert.Nil(t, result.Pricing)
}

// ==================== 可订性测试 ====================

func TestCheckAvailability_BookedDates(t *testing.T) {
	f := setupService(t)
	require.NoError(t, f.bookings.Record(context.Background(), &models.BookingWindow{
		PropertyID: propertyID,
		BookingNo:  "BK001",
		CheckIn:    utils.Date(2025, time.July, 9),
		CheckOut:   utils.Date(2025, time.July, 11),
		Status:     models.BookingStatusConfirmed,
	}))

	result, err := f.service.CheckAvailability(context.Background(),
		stay(utils.Date(2025, time.July, 7), utils.Date(2025, time.July, 12), 2))
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, ReasonUnavailableDates, result.Reason)
	assert.Equal(t, []string{"2025-07-09", "2025-07-10"}, result.UnavailableDates)
	assert.NotNil(t, result.Pricing)

	// 离店日当天可以入住
	result, err = f.service.CheckAvailability(context.Background(),
		stay(utils.Date(2025, time.July, 11), utils.Date(2025, time.July, 13), 2))
	require.NoError(t, err)
	assert.True(t, result.Available)
}

func TestCheckAvailability_MinimumStayFromCheckInDay(t *testing.T) {
	f := setupService(t)
	require.NoError(t, f.db.Create(&models.MinimumStayRule{
		PropertyID:    propertyID,
		StartDate:     utils.Date(2025, time.July, 18),
		EndDate:       utils.Date(2025, time.July, 20),
		MinimumNights: 3,
	}).Error)

	result, err := f.service.CheckAvailability(context.Background(),
		stay(utils.Date(2025, time.July, 18), utils.Date(2025, time.July, 20), 2))
	require.NoError(t, err)
	assert.False(t, result.Available)
	assert.Equal(t, ReasonMinimumStay, result.Reason)
	assert.Equal(t, 3, result.MinimumStay)

	result, err = f.service.CheckAvailability(context.Background(),
		stay(utils.Date(2025, time.July, 18), utils.Date(2025, time.July, 21), 2))
	require.NoError(t, err)
	assert.True(t, result.Available)

	// 入住当天无限制，区间内其他日期的规则不影响
	result, err = f.service.CheckAvailability(context.Background(),
		stay(utils.Date(2025, time.July, 17), utils.Date(2025, time.July, 19), 2))
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Equal(t, 1, result.MinimumStay)
}

func TestCheckAvailability_AcrossMonths(t *testing.T) {
	f := setupService(t)

	result, err := f.service.CheckAvailability(context.Background(),
		stay(utils.Date(2025, time.July, 30), utils.Date(2025, time.August, 2), 2))
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Equal(t, 3, result.Nights)
	assert.Equal(t, "2025-08-01", result.Pricing.NightlyRates[2].Date)

	for _, month := range []time.Month{time.July, time.August} {
		_, err := f.store.Get(context.Background(), propertyID, 2025, month)
		assert.NoError(t, err, "month %s should be generated on demand", month)
	}
}

func TestCheckAvailability_ReadsPersistedCalendar(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	cal, err := f.service.GetCalendar(ctx, propertyID, 2025, time.July)
	require.NoError(t, err)

	// 持久化的日历即查询依据，规则变更在重新生成前不影响结果
	day := cal.Days["8"]
	day.Available = false
	cal.Days["8"] = day
	require.NoError(t, f.store.Put(ctx, cal))

	result, err := f.service.CheckAvailability(ctx,
		stay(utils.Date(2025, time.July, 7), utils.Date(2025, time.July, 9), 2))
	require.NoError(t, err)
	assert.Equal(t, []string{"2025-07-08"}, result.UnavailableDates)
}

// ==================== 参数校验测试 ====================

func TestCheckAvailability_InvalidRequests(t *testing.T) {
	f := setupService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
		want *errors.AppError
	}{
		{"check-out equals check-in", stay(utils.Date(2025, time.July, 7), utils.Date(2025, time.July, 7), 2), errors.ErrInvalidDateRange},
		{"check-out before check-in", stay(utils.Date(2025, time.July, 7), utils.Date(2025, time.July, 1), 2), errors.ErrInvalidDateRange},
		{"too many nights", stay(utils.Date(2025, time.July, 7), utils.Date(2026, time.July, 8), 2), errors.ErrInvalidDateRange},
		{"zero guests", stay(utils.Date(2025, time.July, 7), utils.Date(2025, time.July, 8), 0), errors.ErrInvalidParams},
		{"unknown property", Request{PropertyID: 404, CheckIn: utils.Date(2025, time.July, 7), CheckOut: utils.Date(2025, time.July, 8), Guests: 2}, errors.ErrPropertyNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.service.CheckAvailability(ctx, tt.req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
		})
	}
}

func TestCheckAvailability_MissingConfig(t *testing.T) {
	f := setupService(t)
	require.NoError(t, f.db.Create(&models.Property{
		ID: 8, Name: "No pricing", Status: models.PropertyStatusActive,
	}).Error)

	_, err := f.service.CheckAvailability(context.Background(), Request{
		PropertyID: 8, CheckIn: utils.Date(2025, time.July, 7), CheckOut: utils.Date(2025, time.July, 8), Guests: 2,
	})
	assert.True(t, errors.Is(err, errors.ErrConfigNotFound))
}

func TestGetCalendar_UnknownProperty(t *testing.T) {
	f := setupService(t)

	_, err := f.service.GetCalendar(context.Background(), 404, 2025, time.July)
	assert.True(t, errors.Is(err, errors.ErrPropertyNotFound))
}
