package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

func seedPricingConfig(t *testing.T, repo *PricingRuleRepository, propertyID int64) *models.PricingConfig {
	cfg := &models.PricingConfig{
		PropertyID:        propertyID,
		BasePrice:         18000,
		Currency:          "USD",
		BaseOccupancy:     2,
		MaxGuests:         4,
		ExtraGuestFee:     2500,
		CleaningFee:       5000,
		WeekendMultiplier: 1.2,
		WeekendDays:       models.IntList{5, 6},
		LengthOfStayDiscounts: models.DiscountTiers{
			{MinNights: 7, Percent: 5},
		},
	}
	require.NoError(t, repo.db.Create(cfg).Error)
	return cfg
}

// ==================== PricingRuleRepository 测试 ====================

func TestPricingRuleRepository_GetConfig(t *testing.T) {
	db := setupCalendarTestDB(t)
	repo := NewPricingRuleRepository(db)
	seedPricingConfig(t, repo, 7)

	cfg, err := repo.GetConfig(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, int64(18000), cfg.BasePrice)
	assert.Equal(t, models.IntList{5, 6}, cfg.WeekendDays)
	assert.Equal(t, models.DiscountTiers{{MinNights: 7, Percent: 5}}, cfg.LengthOfStayDiscounts)
	assert.InDelta(t, 1.2, cfg.WeekendMultiplier, 1e-9)
}

func TestPricingRuleRepository_GetConfigNotFound(t *testing.T) {
	repo := NewPricingRuleRepository(setupCalendarTestDB(t))

	_, err := repo.GetConfig(context.Background(), 404)
	assert.True(t, errors.Is(err, errors.ErrConfigNotFound))
}

func TestPricingRuleRepository_LoadRuleSet(t *testing.T) {
	db := setupCalendarTestDB(t)
	repo := NewPricingRuleRepository(db)
	ctx := context.Background()
	seedPricingConfig(t, repo, 7)

	seasons := []models.SeasonalPeriod{
		{PropertyID: 7, Name: "july", StartDate: utils.Date(2025, 7, 1), EndDate: utils.Date(2025, 7, 31), PriceMultiplier: 1.5, Enabled: true},
		{PropertyID: 7, Name: "june", StartDate: utils.Date(2025, 6, 1), EndDate: utils.Date(2025, 6, 30), PriceMultiplier: 1.1, Enabled: true},
		{PropertyID: 7, Name: "xmas", StartDate: utils.Date(2000, 12, 20), EndDate: utils.Date(2001, 1, 5), Recurring: true, PriceMultiplier: 2, Enabled: true},
		{PropertyID: 7, Name: "off", StartDate: utils.Date(2025, 7, 1), EndDate: utils.Date(2025, 7, 31), PriceMultiplier: 3, Enabled: false},
		{PropertyID: 8, Name: "other", StartDate: utils.Date(2025, 7, 1), EndDate: utils.Date(2025, 7, 31), PriceMultiplier: 3, Enabled: true},
	}
	require.NoError(t, db.Create(&seasons).Error)

	overrides := []models.DateOverride{
		{PropertyID: 7, Date: utils.Date(2025, 7, 4), CustomPrice: 30000, Available: true},
		{PropertyID: 7, Date: utils.Date(2025, 8, 1), CustomPrice: 30000, Available: true},
	}
	require.NoError(t, db.Create(&overrides).Error)

	minStays := []models.MinimumStayRule{
		{PropertyID: 7, StartDate: utils.Date(2025, 6, 25), EndDate: utils.Date(2025, 7, 2), MinimumNights: 3},
		{PropertyID: 7, StartDate: utils.Date(2025, 9, 1), EndDate: utils.Date(2025, 9, 30), MinimumNights: 5},
	}
	require.NoError(t, db.Create(&minStays).Error)

	rules, err := repo.LoadRuleSet(ctx, 7, utils.MonthRange(2025, time.July))
	require.NoError(t, err)

	names := make([]string, 0, len(rules.Seasons))
	for _, s := range rules.Seasons {
		names = append(names, s.Name)
	}
	assert.ElementsMatch(t, []string{"july", "xmas"}, names)
	require.Len(t, rules.Overrides, 1)
	assert.NotNil(t, rules.OverrideOn(utils.Date(2025, 7, 4)))
	require.Len(t, rules.MinStays, 1)
	assert.Equal(t, 3, rules.MinStayRuleOn(utils.Date(2025, 7, 1)))
}

func TestPricingRuleRepository_LoadRuleSetMissingConfig(t *testing.T) {
	repo := NewPricingRuleRepository(setupCalendarTestDB(t))

	_, err := repo.LoadRuleSet(context.Background(), 7, utils.MonthRange(2025, time.July))
	assert.True(t, errors.Is(err, errors.ErrConfigNotFound))
}

// ==================== BookingWindowRepository 测试 ====================

func TestBookingWindowRepository_ListBlocking(t *testing.T) {
	db := setupCalendarTestDB(t)
	repo := NewBookingWindowRepository(db)
	ctx := context.Background()

	windows := []*models.BookingWindow{
		{PropertyID: 7, BookingNo: "B1", CheckIn: utils.Date(2025, 6, 28), CheckOut: utils.Date(2025, 7, 2), Status: models.BookingStatusConfirmed},
		{PropertyID: 7, BookingNo: "B2", CheckIn: utils.Date(2025, 7, 10), CheckOut: utils.Date(2025, 7, 12), Status: models.BookingStatusOnHold},
		{PropertyID: 7, BookingNo: "B3", CheckIn: utils.Date(2025, 7, 15), CheckOut: utils.Date(2025, 7, 18), Status: models.BookingStatusCancelled},
		{PropertyID: 7, BookingNo: "B4", CheckIn: utils.Date(2025, 6, 20), CheckOut: utils.Date(2025, 7, 1), Status: models.BookingStatusConfirmed},
		{PropertyID: 8, BookingNo: "B5", CheckIn: utils.Date(2025, 7, 10), CheckOut: utils.Date(2025, 7, 12), Status: models.BookingStatusConfirmed},
	}
	for _, w := range windows {
		require.NoError(t, repo.Record(ctx, w))
	}

	got, err := repo.ListBlocking(ctx, 7, utils.MonthRange(2025, time.July))
	require.NoError(t, err)

	nos := make([]string, 0, len(got))
	for _, w := range got {
		nos = append(nos, w.BookingNo)
	}
	// B4 在 7 月 1 日离店，不占用 7 月任何夜晚
	assert.Equal(t, []string{"B1", "B2"}, nos)
}

func TestBookingWindowRepository_Record(t *testing.T) {
	db := setupCalendarTestDB(t)
	repo := NewBookingWindowRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Record(ctx, &models.BookingWindow{
		PropertyID: 7, BookingNo: "B1", CheckIn: utils.Date(2025, 7, 1), CheckOut: utils.Date(2025, 7, 3), Status: models.BookingStatusConfirmed,
	}))
	got, err := repo.ListBlocking(ctx, 7, utils.MonthRange(2025, time.July))
	require.NoError(t, err)
	require.Len(t, got, 1)

	// 同一预订号再次写入覆盖状态
	require.NoError(t, repo.Record(ctx, &models.BookingWindow{
		PropertyID: 7, BookingNo: "B1", CheckIn: utils.Date(2025, 7, 1), CheckOut: utils.Date(2025, 7, 3), Status: models.BookingStatusCancelled,
	}))
	got, err = repo.ListBlocking(ctx, 7, utils.MonthRange(2025, time.July))
	require.NoError(t, err)
	assert.Empty(t, got)

	var count int64
	require.NoError(t, db.Model(&models.BookingWindow{}).Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

// ==================== PropertyRepository 测试 ====================

func TestPropertyRepository(t *testing.T) {
	db := setupCalendarTestDB(t)
	repo := NewPropertyRepository(db)
	ctx := context.Background()

	active := &models.Property{Name: "Seaside Loft", Timezone: "Europe/Lisbon"}
	disabled := &models.Property{Name: "Old Barn"}
	require.NoError(t, db.Create(active).Error)
	require.NoError(t, db.Create(disabled).Error)
	require.NoError(t, db.Model(disabled).Update("status", models.PropertyStatusDisabled).Error)

	found, err := repo.GetByID(ctx, active.ID)
	require.NoError(t, err)
	assert.True(t, found.IsActive())
	assert.Equal(t, "Europe/Lisbon", found.Location().String())

	list, err := repo.ListActive(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, active.ID, list[0].ID)

	_, err = repo.GetByID(ctx, 999)
	assert.True(t, errors.Is(err, errors.ErrPropertyNotFound))
}

// ==================== RegenerationFailureRepository 测试 ====================

func TestRegenerationFailureRepository(t *testing.T) {
	db := setupCalendarTestDB(t)
	repo := NewRegenerationFailureRepository(db)
	ctx := context.Background()

	for i, pid := range []int64{7, 8, 7} {
		require.NoError(t, repo.Create(ctx, &models.CalendarRegenerationFailure{
			JobID:      "job-" + string(rune('a'+i)),
			PropertyID: pid,
			Month:      "2025-07",
			Kind:       "full",
			Attempts:   5,
			LastError:  "connection reset",
		}))
	}

	all, err := repo.ListRecent(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "job-c", all[0].JobID)

	only7, err := repo.ListRecent(ctx, 7, 10)
	require.NoError(t, err)
	assert.Len(t, only7, 2)
}
