package repo

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/director74/fulfillment_engine/internal/entity"
)

// OrderRepository репозиторий для работы с заказами
type OrderRepository struct {
	db *gorm.DB
}

// NewOrderRepository создает новый репозиторий заказов
func NewOrderRepository(db *gorm.DB) *OrderRepository {
	return &OrderRepository{
		db: db,
	}
}

// Create создает заказ вместе с позициями
func (r *OrderRepository) Create(ctx context.Context, order *entity.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

// GetByID получает заказ по ID вместе с позициями
func (r *OrderRepository) GetByID(ctx context.Context, id uint) (*entity.Order, error) {
	var order entity.Order
	result := r.db.WithContext(ctx).Preload("Items").First(&order, id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &order, nil
}

// GetByExternalID получает заказ по идентификатору системы-источника
func (r *OrderRepository) GetByExternalID(ctx context.Context, externalID uint) (*entity.Order, error) {
	var order entity.Order
	result := r.db.WithContext(ctx).Where("external_id = ?", externalID).First(&order)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &order, nil
}

// Update сохраняет изменения заказа
func (r *OrderRepository) Update(ctx context.Context, order *entity.Order) error {
	return r.db.WithContext(ctx).Save(order).Error
}

// UpdateStatus обновляет бизнес-статус заказа
func (r *OrderRepository) UpdateStatus(ctx context.Context, orderID uint, status entity.OrderStatus) error {
	return r.db.WithContext(ctx).Model(&entity.Order{}).
		Where("id = ?", orderID).
		Update("status", status).Error
}

// UpdateFulfillmentStatus обновляет статус исполнения заказа
func (r *OrderRepository) UpdateFulfillmentStatus(ctx context.Context, orderID uint, status entity.FulfillmentStatus) error {
	return r.db.WithContext(ctx).Model(&entity.Order{}).
		Where("id = ?", orderID).
		Update("fulfillment_status", status).Error
}
