package usecase

import (
	"context"
	"time"

	"github.com/director74/fulfillment_engine/internal/entity"
	"github.com/director74/fulfillment_engine/internal/usecase/webapi"
	"github.com/director74/fulfillment_engine/pkg/eventbus"
)

// OrderRepository интерфейс для работы с репозиторием заказов
type OrderRepository interface {
	Create(ctx context.Context, order *entity.Order) error
	GetByID(ctx context.Context, id uint) (*entity.Order, error)
	GetByExternalID(ctx context.Context, externalID uint) (*entity.Order, error)
	Update(ctx context.Context, order *entity.Order) error
	UpdateStatus(ctx context.Context, orderID uint, status entity.OrderStatus) error
	UpdateFulfillmentStatus(ctx context.Context, orderID uint, status entity.FulfillmentStatus) error
}

// JobRepository интерфейс для работы с репозиторием задач конвейера
type JobRepository interface {
	Create(ctx context.Context, job *entity.AutomationJob) error
	GetByID(ctx context.Context, id uint) (*entity.AutomationJob, error)
	GetByOrderID(ctx context.Context, orderID uint) (*entity.AutomationJob, error)
	Update(ctx context.Context, job *entity.AutomationJob) error
	FindRunnable(ctx context.Context, limit int) ([]entity.AutomationJob, error)
	Claim(ctx context.Context, jobID uint, workerID string, leaseTTL time.Duration) error
	ExtendLease(ctx context.Context, jobID uint, workerID string, leaseTTL time.Duration) error
	ReleaseLease(ctx context.Context, jobID uint, workerID string) error
	IsLeased(ctx context.Context, jobID uint) (bool, error)
	MarkRunnable(ctx context.Context, jobID uint) error
	RequestCancellation(ctx context.Context, orderID uint) error
	CountByStage(ctx context.Context, tenantID uint) (map[entity.JobStage]int, error)
}

// InventoryRepository интерфейс для работы с репозиторием остатков
type InventoryRepository interface {
	GetItem(ctx context.Context, variantID, locationID uint) (*entity.InventoryItem, error)
	GetAllItems(ctx context.Context, limit, offset int) ([]entity.InventoryItem, int64, error)
	CreateItem(ctx context.Context, item *entity.InventoryItem) error
	Reserve(ctx context.Context, line entity.ReserveLine, reference string) error
	Release(ctx context.Context, line entity.ReserveLine, reference string) error
	CommitSale(ctx context.Context, line entity.ReserveLine, reference string) error
	ApplyMovement(ctx context.Context, req entity.ApplyMovementRequest) error
	GetMovementsByReference(ctx context.Context, reference string) ([]entity.StockMovement, error)
}

// SettingsRepository интерфейс для работы с настройками автоматизации
type SettingsRepository interface {
	IsEnabled(ctx context.Context, tenantID uint) (bool, error)
	SetEnabled(ctx context.Context, tenantID uint, enabled bool) error
}

// RetryRepository интерфейс для работы с отложенными повторами
type RetryRepository interface {
	Schedule(ctx context.Context, task *entity.RetryTask) error
	FindDue(ctx context.Context, now time.Time, limit int) ([]entity.RetryTask, error)
	Delete(ctx context.Context, id uint) error
	DeleteForJob(ctx context.Context, jobID uint) error
}

// EventPublisher интерфейс публикации событий конвейера
type EventPublisher interface {
	Publish(event eventbus.Event)
}

// InventoryService интерфейс калькулятора доступности для конвейера
type InventoryService interface {
	ReserveLines(ctx context.Context, tenantID uint, lines []entity.ReserveLine, reference string) error
	ReleaseLines(ctx context.Context, tenantID uint, lines []entity.ReserveLine, reference string) error
	CommitSaleLines(ctx context.Context, tenantID uint, lines []entity.ReserveLine, reference string) error
}

// FulfillmentGateway интерфейс шлюза внешней системы исполнения.
// Вызовы идемпотентны по ключу: повтор с тем же ключом возвращает
// сохраненный результат без повторного побочного эффекта.
type FulfillmentGateway interface {
	SyncInventory(ctx context.Context, idempotencyKey string, updates []webapi.InventoryUpdate) (*webapi.SyncResult, error)
	PrintReceipt(ctx context.Context, idempotencyKey string, req webapi.PrintReceiptRequest) (*webapi.PrintResult, error)
	TestConnection(ctx context.Context) (bool, error)
}

// FulfillmentAPI интерфейс HTTP клиента внешней системы (реализуется
// webapi.FulfillmentClient)
type FulfillmentAPI interface {
	SyncInventory(ctx context.Context, updates []webapi.InventoryUpdate) (*webapi.SyncResult, error)
	PrintReceipt(ctx context.Context, req webapi.PrintReceiptRequest) (*webapi.PrintResult, error)
	TestConnection(ctx context.Context) (bool, error)
}
