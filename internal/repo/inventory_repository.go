package repo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/director74/fulfillment_engine/internal/entity"
	apperrors "github.com/director74/fulfillment_engine/pkg/errors"
)

// InventoryRepository репозиторий остатков и журнала движений.
// Все мутации остатков идут через транзакцию с блокировкой строки
// (variant, location) и записью в журнал, поэтому два конкурентных
// резерва не могут превысить реально доступное количество.
type InventoryRepository struct {
	db *gorm.DB
}

// NewInventoryRepository создает новый репозиторий инвентаря
func NewInventoryRepository(db *gorm.DB) *InventoryRepository {
	return &InventoryRepository{
		db: db,
	}
}

// GetItem получает остаток по паре (variant, location)
func (r *InventoryRepository) GetItem(ctx context.Context, variantID, locationID uint) (*entity.InventoryItem, error) {
	var item entity.InventoryItem
	result := r.db.WithContext(ctx).
		Where("variant_id = ? AND location_id = ?", variantID, locationID).
		First(&item)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, result.Error
	}
	return &item, nil
}

// GetAllItems получает список всех остатков с пагинацией
func (r *InventoryRepository) GetAllItems(ctx context.Context, limit, offset int) ([]entity.InventoryItem, int64, error) {
	var items []entity.InventoryItem
	var total int64

	r.db.WithContext(ctx).Model(&entity.InventoryItem{}).Count(&total)
	result := r.db.WithContext(ctx).Limit(limit).Offset(offset).Find(&items)
	if result.Error != nil {
		return nil, 0, result.Error
	}

	return items, total, nil
}

// CreateItem создает запись остатка
func (r *InventoryRepository) CreateItem(ctx context.Context, item *entity.InventoryItem) error {
	return r.db.WithContext(ctx).Create(item).Error
}

// lockItem получает остаток с блокировкой строки для обновления.
// Вызывается только внутри транзакции.
func lockItem(tx *gorm.DB, variantID, locationID uint) (*entity.InventoryItem, error) {
	var item entity.InventoryItem
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("variant_id = ? AND location_id = ?", variantID, locationID).
		First(&item).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.NewNotFoundError("Остаток для варианта", variantID)
		}
		return nil, err
	}
	return &item, nil
}

// appendMovement добавляет запись в журнал движений внутри транзакции
func appendMovement(tx *gorm.DB, variantID, locationID uint, delta int64, reason entity.MovementReason, reference string) error {
	movement := &entity.StockMovement{
		VariantID:  variantID,
		LocationID: locationID,
		Delta:      delta,
		Reason:     reason,
		Reference:  reference,
		CreatedAt:  time.Now(),
	}
	return tx.Create(movement).Error
}

// Reserve резервирует количество для канала продаж. Проверка доступности
// и инкремент резерва выполняются под блокировкой строки, журнальная
// запись — в той же транзакции.
func (r *InventoryRepository) Reserve(ctx context.Context, line entity.ReserveLine, reference string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := lockItem(tx, line.VariantID, line.LocationID)
		if err != nil {
			return err
		}

		available := item.AvailableToSell(line.Channel)
		if line.Quantity > available {
			return apperrors.NewInsufficientInventoryError(
				line.VariantID, line.LocationID, line.Quantity, available)
		}

		item.Reserved += line.Quantity
		item.UpdatedAt = time.Now()
		if err := tx.Model(item).Updates(map[string]interface{}{
			"reserved":   item.Reserved,
			"updated_at": item.UpdatedAt,
		}).Error; err != nil {
			return err
		}

		return appendMovement(tx, line.VariantID, line.LocationID,
			line.Quantity, entity.MovementReasonReservation, reference)
	})
}

// Release снимает резервацию: обратная операция к Reserve, используется
// для компенсации и при отмене заказа
func (r *InventoryRepository) Release(ctx context.Context, line entity.ReserveLine, reference string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := lockItem(tx, line.VariantID, line.LocationID)
		if err != nil {
			return err
		}

		if item.Reserved < line.Quantity {
			return fmt.Errorf("резерв меньше снимаемого количества: reserved=%d, quantity=%d",
				item.Reserved, line.Quantity)
		}

		item.Reserved -= line.Quantity
		item.UpdatedAt = time.Now()
		if err := tx.Model(item).Updates(map[string]interface{}{
			"reserved":   item.Reserved,
			"updated_at": item.UpdatedAt,
		}).Error; err != nil {
			return err
		}

		return appendMovement(tx, line.VariantID, line.LocationID,
			-line.Quantity, entity.MovementReasonRelease, reference)
	})
}

// CommitSale списывает зарезервированное количество при завершении
// заказа: уменьшает и резерв, и остаток, фиксируя движение sale
func (r *InventoryRepository) CommitSale(ctx context.Context, line entity.ReserveLine, reference string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := lockItem(tx, line.VariantID, line.LocationID)
		if err != nil {
			return err
		}

		if item.Reserved < line.Quantity || item.OnHand < line.Quantity {
			return fmt.Errorf("нарушение инварианта при списании: on_hand=%d, reserved=%d, quantity=%d",
				item.OnHand, item.Reserved, line.Quantity)
		}

		item.Reserved -= line.Quantity
		item.OnHand -= line.Quantity
		item.UpdatedAt = time.Now()
		if err := tx.Model(item).Updates(map[string]interface{}{
			"reserved":   item.Reserved,
			"on_hand":    item.OnHand,
			"updated_at": item.UpdatedAt,
		}).Error; err != nil {
			return err
		}

		return appendMovement(tx, line.VariantID, line.LocationID,
			-line.Quantity, entity.MovementReasonSale, reference)
	})
}

// ApplyMovement применяет движение, меняющее остаток on_hand
// (пополнение, коррекция). Единственный путь изменения on_hand помимо
// списания продажи; запись в журнал идет первой.
func (r *InventoryRepository) ApplyMovement(ctx context.Context, req entity.ApplyMovementRequest) error {
	if req.Reason == entity.MovementReasonReservation || req.Reason == entity.MovementReasonRelease {
		return apperrors.NewBadRequestError("резервация изменяется только через Reserve/Release")
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		item, err := lockItem(tx, req.VariantID, req.LocationID)
		if err != nil {
			return err
		}

		newOnHand := item.OnHand + req.Delta
		if newOnHand < 0 {
			return apperrors.NewBadRequestError(
				fmt.Sprintf("остаток не может стать отрицательным: on_hand=%d, delta=%d", item.OnHand, req.Delta))
		}
		if item.Reserved > newOnHand {
			return apperrors.NewBadRequestError(
				fmt.Sprintf("остаток не может опуститься ниже резерва: reserved=%d, новый on_hand=%d", item.Reserved, newOnHand))
		}

		if err := appendMovement(tx, req.VariantID, req.LocationID,
			req.Delta, req.Reason, req.Reference); err != nil {
			return err
		}

		item.OnHand = newOnHand
		item.UpdatedAt = time.Now()
		return tx.Model(item).Updates(map[string]interface{}{
			"on_hand":    item.OnHand,
			"updated_at": item.UpdatedAt,
		}).Error
	})
}

// GetMovementsByReference получает движения журнала по ссылке
// (например, все движения одного заказа)
func (r *InventoryRepository) GetMovementsByReference(ctx context.Context, reference string) ([]entity.StockMovement, error) {
	var movements []entity.StockMovement
	result := r.db.WithContext(ctx).
		Where("reference = ?", reference).
		Order("id ASC").
		Find(&movements)
	if result.Error != nil {
		return nil, result.Error
	}
	return movements, nil
}
