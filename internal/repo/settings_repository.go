package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/director74/fulfillment_engine/internal/entity"
)

// SettingsRepository репозиторий настроек автоматизации арендаторов
type SettingsRepository struct {
	db *gorm.DB
}

// NewSettingsRepository создает новый репозиторий настроек
func NewSettingsRepository(db *gorm.DB) *SettingsRepository {
	return &SettingsRepository{
		db: db,
	}
}

// IsEnabled сообщает, включена ли автоматизация для арендатора.
// Если настройки не создавались, автоматизация считается включенной.
func (r *SettingsRepository) IsEnabled(ctx context.Context, tenantID uint) (bool, error) {
	var settings entity.AutomationSettings
	result := r.db.WithContext(ctx).Where("tenant_id = ?", tenantID).First(&settings)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return true, nil
		}
		return false, result.Error
	}
	return settings.Enabled, nil
}

// SetEnabled включает или выключает автоматизацию для арендатора
func (r *SettingsRepository) SetEnabled(ctx context.Context, tenantID uint, enabled bool) error {
	settings := entity.AutomationSettings{
		TenantID: tenantID,
		Enabled:  enabled,
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "tenant_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"enabled", "updated_at"}),
	}).Create(&settings).Error
}
