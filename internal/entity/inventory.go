package entity

import (
	"time"

	"gorm.io/datatypes"
)

// MovementReason причина движения товара в журнале
type MovementReason string

const (
	MovementReasonRestock     MovementReason = "restock"
	MovementReasonReservation MovementReason = "reservation"
	MovementReasonRelease     MovementReason = "release"
	MovementReasonSale        MovementReason = "sale"
	MovementReasonAdjustment  MovementReason = "adjustment"
)

// InventoryItem остаток товара на локации: одна запись на пару
// (variant, location). Поля on_hand и reserved меняются только через
// применение StockMovement в одной транзакции с записью в журнал.
// Инварианты: reserved <= on_hand, on_hand >= 0.
type InventoryItem struct {
	ID             uint              `json:"id" gorm:"primaryKey"`
	VariantID      uint              `json:"variant_id" gorm:"not null;uniqueIndex:idx_variant_location"`
	LocationID     uint              `json:"location_id" gorm:"not null;uniqueIndex:idx_variant_location"`
	OnHand         int64             `json:"on_hand" gorm:"type:bigint;not null;default:0"`
	Reserved       int64             `json:"reserved" gorm:"type:bigint;not null;default:0"`
	SafetyStock    int64             `json:"safety_stock" gorm:"type:bigint;not null;default:0"`
	ChannelBuffers datatypes.JSONMap `json:"channel_buffers" gorm:"not null;default:'{}'"`
	CreatedAt      time.Time         `json:"created_at"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

// TableName задает имя таблицы для GORM
func (InventoryItem) TableName() string {
	return "inventory_items"
}

// ChannelBuffer возвращает буфер канала продаж (0, если не задан).
// Значения JSONB приходят из GORM как float64.
func (i *InventoryItem) ChannelBuffer(channel string) int64 {
	raw, ok := i.ChannelBuffers[channel]
	if !ok {
		return 0
	}
	switch v := raw.(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	}
	return 0
}

// AvailableToSell вычисляет доступное к продаже количество для канала:
// on_hand минус резерв, минус недобор до страхового запаса, минус буфер
// канала; не бывает отрицательным.
func (i *InventoryItem) AvailableToSell(channel string) int64 {
	net := i.OnHand - i.Reserved

	safetyGap := i.SafetyStock - net
	if safetyGap < 0 {
		safetyGap = 0
	}

	available := net - safetyGap - i.ChannelBuffer(channel)
	if available < 0 {
		return 0
	}
	return available
}

// StockMovement неизменяемая запись журнала движений товара.
// Журнал append-only: записи никогда не обновляются и не удаляются.
type StockMovement struct {
	ID         uint           `json:"id" gorm:"primaryKey"`
	VariantID  uint           `json:"variant_id" gorm:"not null;index:idx_movement_variant_location"`
	LocationID uint           `json:"location_id" gorm:"not null;index:idx_movement_variant_location"`
	Delta      int64          `json:"delta" gorm:"type:bigint;not null"`
	Reason     MovementReason `json:"reason" gorm:"not null;type:varchar(20)"`
	Reference  string         `json:"reference" gorm:"type:varchar(255);index"`
	CreatedAt  time.Time      `json:"created_at"`
}

// TableName задает имя таблицы для GORM
func (StockMovement) TableName() string {
	return "stock_movements"
}

// ReserveLine позиция запроса на резервацию
type ReserveLine struct {
	VariantID  uint   `json:"variant_id" binding:"required"`
	LocationID uint   `json:"location_id" binding:"required"`
	Channel    string `json:"channel"`
	Quantity   int64  `json:"quantity" binding:"required,gt=0"`
}

// ApplyMovementRequest запрос на движение товара (пополнение, коррекция)
type ApplyMovementRequest struct {
	VariantID  uint           `json:"variant_id" binding:"required"`
	LocationID uint           `json:"location_id" binding:"required"`
	Delta      int64          `json:"delta" binding:"required"`
	Reason     MovementReason `json:"reason" binding:"required"`
	Reference  string         `json:"reference"`
}

// GetInventoryResponse ответ на запрос остатка
type GetInventoryResponse struct {
	ID          uint      `json:"id"`
	VariantID   uint      `json:"variant_id"`
	LocationID  uint      `json:"location_id"`
	OnHand      int64     `json:"on_hand"`
	Reserved    int64     `json:"reserved"`
	SafetyStock int64     `json:"safety_stock"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AvailableToSellResponse ответ на запрос доступного количества
type AvailableToSellResponse struct {
	VariantID  uint   `json:"variant_id"`
	LocationID uint   `json:"location_id"`
	Channel    string `json:"channel"`
	Available  int64  `json:"available"`
}

// ListInventoryResponse ответ на запрос списка остатков
type ListInventoryResponse struct {
	Items []GetInventoryResponse `json:"items"`
	Total int64                  `json:"total"`
}
