package entity

import (
	"time"
)

// OrderStatus бизнес-статус заказа
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusFulfilled  OrderStatus = "fulfilled"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

// FinancialStatus статус оплаты заказа
type FinancialStatus string

const (
	FinancialStatusPending  FinancialStatus = "pending"
	FinancialStatusPaid     FinancialStatus = "paid"
	FinancialStatusRefunded FinancialStatus = "refunded"
)

// FulfillmentStatus статус исполнения заказа
type FulfillmentStatus string

const (
	FulfillmentStatusUnfulfilled FulfillmentStatus = "unfulfilled"
	FulfillmentStatusPartial     FulfillmentStatus = "partial"
	FulfillmentStatusFulfilled   FulfillmentStatus = "fulfilled"
)

// OrderItem позиция заказа
type OrderItem struct {
	ID         uint      `json:"id" gorm:"primaryKey"`
	OrderID    uint      `json:"order_id" gorm:"index"`
	VariantID  uint      `json:"variant_id" gorm:"not null"`
	LocationID uint      `json:"location_id" gorm:"not null"`
	Channel    string    `json:"channel" gorm:"not null;default:''"`
	Quantity   int64     `json:"quantity" gorm:"not null"`
	Price      float64   `json:"price"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Order хранит информацию о заказе, его статусах и позициях.
// Заказы никогда не удаляются, только переводятся между статусами.
// ExternalID хранит идентификатор заказа в системе-источнике и
// используется для дедупликации повторно доставленных сообщений интейка.
type Order struct {
	ID                uint              `json:"id" gorm:"primaryKey"`
	ExternalID        uint              `json:"external_id,omitempty" gorm:"index"`
	TenantID          uint              `json:"tenant_id" gorm:"not null;index"`
	Items             []OrderItem       `json:"items" gorm:"foreignKey:OrderID"`
	Amount            float64           `json:"amount"`
	Status            OrderStatus       `json:"status" gorm:"not null;default:'pending'"`
	FinancialStatus   FinancialStatus   `json:"financial_status" gorm:"not null;default:'pending'"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status" gorm:"not null;default:'unfulfilled'"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// OrderCreatedMessage сообщение интейка о новом заказе
type OrderCreatedMessage struct {
	OrderID  uint        `json:"order_id,omitempty"`
	TenantID uint        `json:"tenant_id"`
	Amount   float64     `json:"amount"`
	Items    []OrderItem `json:"items"`
}

// GetOrderResponse ответ на запрос информации о заказе
type GetOrderResponse struct {
	ID                uint              `json:"id"`
	TenantID          uint              `json:"tenant_id"`
	Amount            float64           `json:"amount"`
	Status            OrderStatus       `json:"status"`
	FulfillmentStatus FulfillmentStatus `json:"fulfillment_status"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}
