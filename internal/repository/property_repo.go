// Package repository 提供数据访问层
package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// PropertyRepository 房源仓储
type PropertyRepository struct {
	db *gorm.DB
}

// NewPropertyRepository 创建房源仓储
func NewPropertyRepository(db *gorm.DB) *PropertyRepository {
	return &PropertyRepository{db: db}
}

// GetByID 根据 ID 获取房源，不存在时返回 ErrPropertyNotFound
func (r *PropertyRepository) GetByID(ctx context.Context, id int64) (*models.Property, error) {
	var property models.Property
	err := r.db.WithContext(ctx).First(&property, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrPropertyNotFound
		}
		return nil, err
	}
	return &property, nil
}

// ListActive 获取全部上架房源
func (r *PropertyRepository) ListActive(ctx context.Context) ([]*models.Property, error) {
	var properties []*models.Property
	err := r.db.WithContext(ctx).
		Where("status = ?", models.PropertyStatusActive).
		Order("id ASC").
		Find(&properties).Error
	return properties, err
}
