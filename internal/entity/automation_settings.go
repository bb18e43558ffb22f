package entity

import (
	"time"
)

// AutomationSettings персистентный флаг включения автоматизации для
// арендатора. Читается при захвате задач, чтобы несколько процессов
// воркеров видели согласованное значение.
type AutomationSettings struct {
	ID        uint      `json:"id" gorm:"primaryKey"`
	TenantID  uint      `json:"tenant_id" gorm:"not null;uniqueIndex"`
	Enabled   bool      `json:"enabled" gorm:"not null;default:true"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName задает имя таблицы для GORM
func (AutomationSettings) TableName() string {
	return "automation_settings"
}
