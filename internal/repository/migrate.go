package repository

import (
	"gorm.io/gorm"

	"github.com/dumeirei/stay-calendar-backend/internal/models"
)

// AllModels 本服务涉及的全部表
func AllModels() []interface{} {
	return []interface{}{
		&models.Property{},
		&models.PricingConfig{},
		&models.SeasonalPeriod{},
		&models.DateOverride{},
		&models.MinimumStayRule{},
		&models.BookingWindow{},
		&models.CalendarRecord{},
		&models.CalendarRegenerationFailure{},
	}
}

// AutoMigrate 自动迁移表结构
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
