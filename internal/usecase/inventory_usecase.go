package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/director74/fulfillment_engine/internal/entity"
	"github.com/director74/fulfillment_engine/pkg/eventbus"
	apperrors "github.com/director74/fulfillment_engine/pkg/errors"
)

// InventoryUseCase калькулятор доступности: вычисляет доступное к
// продаже количество по каналам и управляет резервациями через
// append-only журнал движений
type InventoryUseCase struct {
	repo   InventoryRepository
	events EventPublisher
	logger *log.Logger
}

// NewInventoryUseCase создает новый use case инвентаря
func NewInventoryUseCase(repo InventoryRepository, events EventPublisher, logger *log.Logger) *InventoryUseCase {
	if logger == nil {
		logger = log.New(log.Writer(), "[Inventory] ", log.LstdFlags)
	}

	return &InventoryUseCase{
		repo:   repo,
		events: events,
		logger: logger,
	}
}

// GetAvailableToSell возвращает доступное к продаже количество для
// канала продаж с учетом резерва, страхового запаса и буфера канала
func (u *InventoryUseCase) GetAvailableToSell(ctx context.Context, variantID, locationID uint, channel string) (int64, error) {
	item, err := u.repo.GetItem(ctx, variantID, locationID)
	if err != nil {
		return 0, err
	}
	if item == nil {
		return 0, apperrors.NewNotFoundError("Остаток для варианта", variantID)
	}

	return item.AvailableToSell(channel), nil
}

// GetItem возвращает остаток по паре (variant, location)
func (u *InventoryUseCase) GetItem(ctx context.Context, variantID, locationID uint) (*entity.GetInventoryResponse, error) {
	item, err := u.repo.GetItem(ctx, variantID, locationID)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, nil
	}

	return &entity.GetInventoryResponse{
		ID:          item.ID,
		VariantID:   item.VariantID,
		LocationID:  item.LocationID,
		OnHand:      item.OnHand,
		Reserved:    item.Reserved,
		SafetyStock: item.SafetyStock,
		UpdatedAt:   item.UpdatedAt,
	}, nil
}

// GetAllItems возвращает список остатков с пагинацией
func (u *InventoryUseCase) GetAllItems(ctx context.Context, limit, offset int) (*entity.ListInventoryResponse, error) {
	if limit <= 0 {
		limit = 10
	}

	items, total, err := u.repo.GetAllItems(ctx, limit, offset)
	if err != nil {
		return nil, err
	}

	var response entity.ListInventoryResponse
	response.Total = total

	for _, item := range items {
		response.Items = append(response.Items, entity.GetInventoryResponse{
			ID:          item.ID,
			VariantID:   item.VariantID,
			LocationID:  item.LocationID,
			OnHand:      item.OnHand,
			Reserved:    item.Reserved,
			SafetyStock: item.SafetyStock,
			UpdatedAt:   item.UpdatedAt,
		})
	}

	return &response, nil
}

// CreateItem создает запись остатка
func (u *InventoryUseCase) CreateItem(ctx context.Context, item *entity.InventoryItem) error {
	return u.repo.CreateItem(ctx, item)
}

// ReserveLines резервирует все позиции заказа. Повтор стадии после
// сбоя или истечения аренды не дублирует резервации: позиции, по
// которым журнал уже содержит непогашенный резерв с этой ссылкой,
// пропускаются. При ошибке на любой позиции уже выполненные резервации
// снимаются компенсирующими движениями release, частичных резерваций
// не остается.
func (u *InventoryUseCase) ReserveLines(ctx context.Context, tenantID uint, lines []entity.ReserveLine, reference string) error {
	held, err := u.heldQuantities(ctx, reference)
	if err != nil {
		return fmt.Errorf("ошибка чтения журнала движений (%s): %w", reference, err)
	}

	var reserved []entity.ReserveLine

	for _, line := range lines {
		if held[lineKey(line.VariantID, line.LocationID)] > 0 {
			// Резерв уже удержан предыдущей попыткой этой стадии
			reserved = append(reserved, line)
			continue
		}

		if err := u.repo.Reserve(ctx, line, reference); err != nil {
			// Компенсация: снимаем успешные резервации в обратном порядке
			for i := len(reserved) - 1; i >= 0; i-- {
				if relErr := u.repo.Release(ctx, reserved[i], reference); relErr != nil {
					u.logger.Printf("ошибка компенсации резервации (variant=%d): %v",
						reserved[i].VariantID, relErr)
				} else {
					u.publishReservationChanged(tenantID, reserved[i].VariantID, -reserved[i].Quantity)
				}
			}

			if errors.Is(err, apperrors.ErrInsufficientInventory) {
				return err
			}
			return fmt.Errorf("ошибка при резервации (variant=%d): %w", line.VariantID, err)
		}

		reserved = append(reserved, line)
		u.publishReservationChanged(tenantID, line.VariantID, line.Quantity)
	}

	return nil
}

// ReleaseLines снимает резервации всех позиций (отмена заказа,
// компенсация неудачной стадии)
func (u *InventoryUseCase) ReleaseLines(ctx context.Context, tenantID uint, lines []entity.ReserveLine, reference string) error {
	var lastErr error
	for _, line := range lines {
		if err := u.repo.Release(ctx, line, reference); err != nil {
			u.logger.Printf("ошибка снятия резервации (variant=%d): %v", line.VariantID, err)
			lastErr = err
			continue
		}
		u.publishReservationChanged(tenantID, line.VariantID, -line.Quantity)
	}
	return lastErr
}

// CommitSaleLines списывает зарезервированные позиции при завершении
// заказа, фиксируя движения sale. Повтор стадии после частичного сбоя
// не дублирует списания: позиции с уже записанным движением sale по
// этой ссылке пропускаются.
func (u *InventoryUseCase) CommitSaleLines(ctx context.Context, tenantID uint, lines []entity.ReserveLine, reference string) error {
	sold, err := u.committedSales(ctx, reference)
	if err != nil {
		return fmt.Errorf("ошибка чтения журнала движений (%s): %w", reference, err)
	}

	for _, line := range lines {
		if sold[lineKey(line.VariantID, line.LocationID)] {
			continue
		}

		if err := u.repo.CommitSale(ctx, line, reference); err != nil {
			return fmt.Errorf("ошибка списания продажи (variant=%d): %w", line.VariantID, err)
		}
		u.publishReservationChanged(tenantID, line.VariantID, -line.Quantity)
	}
	return nil
}

// heldQuantities возвращает непогашенный резерв по позициям ссылки:
// сумму движений reservation и release из журнала
func (u *InventoryUseCase) heldQuantities(ctx context.Context, reference string) (map[string]int64, error) {
	movements, err := u.repo.GetMovementsByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	held := make(map[string]int64)
	for _, mv := range movements {
		switch mv.Reason {
		case entity.MovementReasonReservation, entity.MovementReasonRelease:
			held[lineKey(mv.VariantID, mv.LocationID)] += mv.Delta
		}
	}
	return held, nil
}

// committedSales возвращает позиции ссылки, по которым уже записано
// движение sale
func (u *InventoryUseCase) committedSales(ctx context.Context, reference string) (map[string]bool, error) {
	movements, err := u.repo.GetMovementsByReference(ctx, reference)
	if err != nil {
		return nil, err
	}

	sold := make(map[string]bool)
	for _, mv := range movements {
		if mv.Reason == entity.MovementReasonSale {
			sold[lineKey(mv.VariantID, mv.LocationID)] = true
		}
	}
	return sold, nil
}

// lineKey ключ позиции (variant, location) в журнале движений
func lineKey(variantID, locationID uint) string {
	return fmt.Sprintf("%d:%d", variantID, locationID)
}

// ApplyMovement применяет движение остатка (пополнение, коррекция)
func (u *InventoryUseCase) ApplyMovement(ctx context.Context, req entity.ApplyMovementRequest) error {
	return u.repo.ApplyMovement(ctx, req)
}

// GetMovementsByReference возвращает движения журнала по ссылке
func (u *InventoryUseCase) GetMovementsByReference(ctx context.Context, reference string) ([]entity.StockMovement, error) {
	return u.repo.GetMovementsByReference(ctx, reference)
}

// publishReservationChanged публикует событие изменения резервации
func (u *InventoryUseCase) publishReservationChanged(tenantID, variantID uint, delta int64) {
	if u.events == nil {
		return
	}

	event := eventbus.NewEvent(eventbus.EventReservationChanged)
	event.TenantID = tenantID
	event.VariantID = variantID
	event.Delta = delta
	u.events.Publish(event)
}
