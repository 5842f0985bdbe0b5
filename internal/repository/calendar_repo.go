package repository

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// CalendarStore 价格日历存储，按 (房源, 月份) 整份读写，后写覆盖先写
type CalendarStore interface {
	// Get 读取日历，不存在时返回 ErrCalendarNotFound
	Get(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error)
	// Put 整份覆盖写入
	Put(ctx context.Context, cal *models.Calendar) error
}

// CalendarRepository 基于 postgres jsonb 的日历存储
type CalendarRepository struct {
	db *gorm.DB
}

// NewCalendarRepository 创建日历仓储
func NewCalendarRepository(db *gorm.DB) *CalendarRepository {
	return &CalendarRepository{db: db}
}

// Get 读取日历
func (r *CalendarRepository) Get(ctx context.Context, propertyID int64, year int, month time.Month) (*models.Calendar, error) {
	var record models.CalendarRecord
	err := r.db.WithContext(ctx).
		Where("property_id = ? AND month = ?", propertyID, utils.MonthKey(year, month)).
		First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrCalendarNotFound
		}
		return nil, err
	}
	cal := record.Document.Calendar
	if err := cal.Validate(); err != nil {
		return nil, err
	}
	return &cal, nil
}

// Put 按 (property_id, month) 唯一键 upsert
func (r *CalendarRepository) Put(ctx context.Context, cal *models.Calendar) error {
	if cal == nil {
		return fmt.Errorf("nil calendar")
	}
	record := models.CalendarRecord{
		PropertyID:      cal.PropertyID,
		Month:           cal.Month,
		Document:        models.CalendarDocument{Calendar: *cal},
		StrategyVersion: cal.StrategyVersion,
		GeneratedAt:     cal.GeneratedAt,
	}
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "property_id"}, {Name: "month"}},
		DoUpdates: clause.AssignmentColumns([]string{"document", "strategy_version", "generated_at", "updated_at"}),
	}).Create(&record).Error
}
