package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/stay-calendar-backend/internal/common/errors"
	"github.com/dumeirei/stay-calendar-backend/internal/common/utils"
	"github.com/dumeirei/stay-calendar-backend/internal/models"
	"github.com/dumeirei/stay-calendar-backend/internal/pricing"
)

// PricingRuleRepository 定价规则仓储（规则由管理后台维护，本服务只读）
type PricingRuleRepository struct {
	db *gorm.DB
}

// NewPricingRuleRepository 创建定价规则仓储
func NewPricingRuleRepository(db *gorm.DB) *PricingRuleRepository {
	return &PricingRuleRepository{db: db}
}

// GetConfig 获取房源定价配置，不存在时返回 ErrConfigNotFound
func (r *PricingRuleRepository) GetConfig(ctx context.Context, propertyID int64) (*models.PricingConfig, error) {
	var cfg models.PricingConfig
	err := r.db.WithContext(ctx).Where("property_id = ?", propertyID).First(&cfg).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrConfigNotFound
		}
		return nil, err
	}
	return &cfg, nil
}

// ListSeasons 获取与区间相交的启用季节，循环季节总是返回
func (r *PricingRuleRepository) ListSeasons(ctx context.Context, propertyID int64, rng utils.DateRange) ([]models.SeasonalPeriod, error) {
	var seasons []models.SeasonalPeriod
	err := r.db.WithContext(ctx).
		Where("property_id = ? AND enabled = ?", propertyID, true).
		Where("recurring = ? OR (start_date <= ? AND end_date >= ?)", true, rng.End, rng.Start).
		Order("id ASC").
		Find(&seasons).Error
	return seasons, err
}

// ListOverrides 获取区间内的日期覆盖
func (r *PricingRuleRepository) ListOverrides(ctx context.Context, propertyID int64, rng utils.DateRange) ([]models.DateOverride, error) {
	var overrides []models.DateOverride
	err := r.db.WithContext(ctx).
		Where("property_id = ? AND date >= ? AND date <= ?", propertyID, rng.Start, rng.End).
		Order("date ASC").
		Find(&overrides).Error
	return overrides, err
}

// ListMinimumStayRules 获取与区间相交的最少入住规则
func (r *PricingRuleRepository) ListMinimumStayRules(ctx context.Context, propertyID int64, rng utils.DateRange) ([]models.MinimumStayRule, error) {
	var rules []models.MinimumStayRule
	err := r.db.WithContext(ctx).
		Where("property_id = ? AND start_date <= ? AND end_date >= ?", propertyID, rng.End, rng.Start).
		Order("id ASC").
		Find(&rules).Error
	return rules, err
}

// LoadRuleSet 加载房源在区间内的定价规则快照
func (r *PricingRuleRepository) LoadRuleSet(ctx context.Context, propertyID int64, rng utils.DateRange) (*pricing.RuleSet, error) {
	cfg, err := r.GetConfig(ctx, propertyID)
	if err != nil {
		return nil, err
	}
	seasons, err := r.ListSeasons(ctx, propertyID, rng)
	if err != nil {
		return nil, err
	}
	overrides, err := r.ListOverrides(ctx, propertyID, rng)
	if err != nil {
		return nil, err
	}
	minStays, err := r.ListMinimumStayRules(ctx, propertyID, rng)
	if err != nil {
		return nil, err
	}
	return pricing.NewRuleSet(cfg, seasons, overrides, minStays), nil
}
