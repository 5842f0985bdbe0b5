package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// BookingWindowRepository 预订占用区间仓储
type BookingWindowRepository struct {
	db *gorm.DB
}

// NewBookingWindowRepository 创建预订占用区间仓储
func NewBookingWindowRepository(db *gorm.DB) *BookingWindowRepository {
	return &BookingWindowRepository{db: db}
}

// Record 按预订号写入占用区间，已存在则覆盖日期与状态
func (r *BookingWindowRepository) Record(ctx context.Context, window *models.BookingWindow) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "booking_no"}},
		DoUpdates: clause.AssignmentColumns([]string{"property_id", "check_in", "check_out", "status", "updated_at"}),
	}).Create(window).Error
}

// ListBlocking 获取占用区间内任意夜晚的有效预订（confirmed/on-hold）
// 区间为闭区间夜晚日期，预订 CheckOut 当天不占用
func (r *BookingWindowRepository) ListBlocking(ctx context.Context, propertyID int64, rng utils.DateRange) ([]models.BookingWindow, error) {
	var windows []models.BookingWindow
	err := r.db.WithContext(ctx).
		Where("property_id = ?", propertyID).
		Where("status IN ?", models.BlockingBookingStatuses).
		Where("check_in <= ? AND check_out > ?", rng.End, rng.Start).
		Order("check_in ASC").
		Find(&windows).Error
	return windows, err
}
