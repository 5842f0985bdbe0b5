package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// RegenerationFailureRepository 日历生成失败记录仓储
type RegenerationFailureRepository struct {
	db *gorm.DB
}

// NewRegenerationFailureRepository 创建失败记录仓储
func NewRegenerationFailureRepository(db *gorm.DB) *RegenerationFailureRepository {
	return &RegenerationFailureRepository{db: db}
}

// Create 记录一次重试耗尽的生成任务
func (r *RegenerationFailureRepository) Create(ctx context.Context, failure *models.CalendarRegenerationFailure) error {
	return r.db.WithContext(ctx).Create(failure).Error
}

// ListRecent 按时间倒序获取失败记录，propertyID 为 0 时不过滤
func (r *RegenerationFailureRepository) ListRecent(ctx context.Context, propertyID int64, limit int) ([]*models.CalendarRegenerationFailure, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := r.db.WithContext(ctx).Model(&models.CalendarRegenerationFailure{})
	if propertyID > 0 {
		query = query.Where("property_id = ?", propertyID)
	}
	var failures []*models.CalendarRegenerationFailure
	err := query.Order("id DESC").Limit(limit).Find(&failures).Error
	return failures, err
}
