// Package models 定义数据模型
package models

import (
	"time"
)

// Property 房源模型（由管理后台维护，本服务只读）
type Property struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Timezone  string    `gorm:"type:varchar(50);not null;default:'UTC'" json:"timezone"`
	Status    int8      `gorm:"type:smallint;not null;default:1" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (Property) TableName() string {
	return "properties"
}

// PropertyStatus 房源状态
const (
	PropertyStatusDisabled = 0 // 下架
	PropertyStatusActive   = 1 // 上架
)

// IsActive 是否参与日历滚动生成
func (p *Property) IsActive() bool {
	return p.Status == PropertyStatusActive
}

// Location 返回房源所在时区，无法解析时退回 UTC
func (p *Property) Location() *time.Location {
	if p.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(p.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
