package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/mock"

	"github.com/director74/fulfillment_engine/internal/entity"
	"github.com/director74/fulfillment_engine/internal/usecase/webapi"
	"github.com/director74/fulfillment_engine/pkg/eventbus"
)

// Мок для OrderRepository
type MockOrderRepository struct {
	mock.Mock
}

func (m *MockOrderRepository) Create(ctx context.Context, order *entity.Order) error {
	args := m.Called(ctx, order)
	// Имитируем установку ID заказа, как это делает реальная БД
	if order.ID == 0 {
		order.ID = 10
	}
	return args.Error(0)
}

func (m *MockOrderRepository) GetByID(ctx context.Context, id uint) (*entity.Order, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Order), args.Error(1)
}

func (m *MockOrderRepository) GetByExternalID(ctx context.Context, externalID uint) (*entity.Order, error) {
	args := m.Called(ctx, externalID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.Order), args.Error(1)
}

func (m *MockOrderRepository) Update(ctx context.Context, order *entity.Order) error {
	args := m.Called(ctx, order)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateStatus(ctx context.Context, orderID uint, status entity.OrderStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

func (m *MockOrderRepository) UpdateFulfillmentStatus(ctx context.Context, orderID uint, status entity.FulfillmentStatus) error {
	args := m.Called(ctx, orderID, status)
	return args.Error(0)
}

// Мок для JobRepository
type MockJobRepository struct {
	mock.Mock
}

func (m *MockJobRepository) Create(ctx context.Context, job *entity.AutomationJob) error {
	args := m.Called(ctx, job)
	if job.ID == 0 {
		job.ID = 100
	}
	return args.Error(0)
}

func (m *MockJobRepository) GetByID(ctx context.Context, id uint) (*entity.AutomationJob, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.AutomationJob), args.Error(1)
}

func (m *MockJobRepository) GetByOrderID(ctx context.Context, orderID uint) (*entity.AutomationJob, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.AutomationJob), args.Error(1)
}

func (m *MockJobRepository) Update(ctx context.Context, job *entity.AutomationJob) error {
	args := m.Called(ctx, job)
	return args.Error(0)
}

func (m *MockJobRepository) FindRunnable(ctx context.Context, limit int) ([]entity.AutomationJob, error) {
	args := m.Called(ctx, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.AutomationJob), args.Error(1)
}

func (m *MockJobRepository) Claim(ctx context.Context, jobID uint, workerID string, leaseTTL time.Duration) error {
	args := m.Called(ctx, jobID, workerID, leaseTTL)
	return args.Error(0)
}

func (m *MockJobRepository) ExtendLease(ctx context.Context, jobID uint, workerID string, leaseTTL time.Duration) error {
	args := m.Called(ctx, jobID, workerID, leaseTTL)
	return args.Error(0)
}

func (m *MockJobRepository) ReleaseLease(ctx context.Context, jobID uint, workerID string) error {
	args := m.Called(ctx, jobID, workerID)
	return args.Error(0)
}

func (m *MockJobRepository) IsLeased(ctx context.Context, jobID uint) (bool, error) {
	args := m.Called(ctx, jobID)
	return args.Bool(0), args.Error(1)
}

func (m *MockJobRepository) MarkRunnable(ctx context.Context, jobID uint) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

func (m *MockJobRepository) RequestCancellation(ctx context.Context, orderID uint) error {
	args := m.Called(ctx, orderID)
	return args.Error(0)
}

func (m *MockJobRepository) CountByStage(ctx context.Context, tenantID uint) (map[entity.JobStage]int, error) {
	args := m.Called(ctx, tenantID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[entity.JobStage]int), args.Error(1)
}

// Мок для InventoryRepository
type MockInventoryRepository struct {
	mock.Mock
}

func (m *MockInventoryRepository) GetItem(ctx context.Context, variantID, locationID uint) (*entity.InventoryItem, error) {
	args := m.Called(ctx, variantID, locationID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*entity.InventoryItem), args.Error(1)
}

func (m *MockInventoryRepository) GetAllItems(ctx context.Context, limit, offset int) ([]entity.InventoryItem, int64, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Get(1).(int64), args.Error(2)
	}
	return args.Get(0).([]entity.InventoryItem), args.Get(1).(int64), args.Error(2)
}

func (m *MockInventoryRepository) CreateItem(ctx context.Context, item *entity.InventoryItem) error {
	args := m.Called(ctx, item)
	return args.Error(0)
}

func (m *MockInventoryRepository) Reserve(ctx context.Context, line entity.ReserveLine, reference string) error {
	args := m.Called(ctx, line, reference)
	return args.Error(0)
}

func (m *MockInventoryRepository) Release(ctx context.Context, line entity.ReserveLine, reference string) error {
	args := m.Called(ctx, line, reference)
	return args.Error(0)
}

func (m *MockInventoryRepository) CommitSale(ctx context.Context, line entity.ReserveLine, reference string) error {
	args := m.Called(ctx, line, reference)
	return args.Error(0)
}

func (m *MockInventoryRepository) ApplyMovement(ctx context.Context, req entity.ApplyMovementRequest) error {
	args := m.Called(ctx, req)
	return args.Error(0)
}

func (m *MockInventoryRepository) GetMovementsByReference(ctx context.Context, reference string) ([]entity.StockMovement, error) {
	args := m.Called(ctx, reference)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.StockMovement), args.Error(1)
}

// Мок для SettingsRepository
type MockSettingsRepository struct {
	mock.Mock
}

func (m *MockSettingsRepository) IsEnabled(ctx context.Context, tenantID uint) (bool, error) {
	args := m.Called(ctx, tenantID)
	return args.Bool(0), args.Error(1)
}

func (m *MockSettingsRepository) SetEnabled(ctx context.Context, tenantID uint, enabled bool) error {
	args := m.Called(ctx, tenantID, enabled)
	return args.Error(0)
}

// Мок для RetryRepository
type MockRetryRepository struct {
	mock.Mock
}

func (m *MockRetryRepository) Schedule(ctx context.Context, task *entity.RetryTask) error {
	args := m.Called(ctx, task)
	return args.Error(0)
}

func (m *MockRetryRepository) FindDue(ctx context.Context, now time.Time, limit int) ([]entity.RetryTask, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]entity.RetryTask), args.Error(1)
}

func (m *MockRetryRepository) Delete(ctx context.Context, id uint) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockRetryRepository) DeleteForJob(ctx context.Context, jobID uint) error {
	args := m.Called(ctx, jobID)
	return args.Error(0)
}

// Мок для InventoryService
type MockInventoryService struct {
	mock.Mock
}

func (m *MockInventoryService) ReserveLines(ctx context.Context, tenantID uint, lines []entity.ReserveLine, reference string) error {
	args := m.Called(ctx, tenantID, lines, reference)
	return args.Error(0)
}

func (m *MockInventoryService) ReleaseLines(ctx context.Context, tenantID uint, lines []entity.ReserveLine, reference string) error {
	args := m.Called(ctx, tenantID, lines, reference)
	return args.Error(0)
}

func (m *MockInventoryService) CommitSaleLines(ctx context.Context, tenantID uint, lines []entity.ReserveLine, reference string) error {
	args := m.Called(ctx, tenantID, lines, reference)
	return args.Error(0)
}

// Мок для FulfillmentGateway
type MockFulfillmentGateway struct {
	mock.Mock
}

func (m *MockFulfillmentGateway) SyncInventory(ctx context.Context, idempotencyKey string, updates []webapi.InventoryUpdate) (*webapi.SyncResult, error) {
	args := m.Called(ctx, idempotencyKey, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webapi.SyncResult), args.Error(1)
}

func (m *MockFulfillmentGateway) PrintReceipt(ctx context.Context, idempotencyKey string, req webapi.PrintReceiptRequest) (*webapi.PrintResult, error) {
	args := m.Called(ctx, idempotencyKey, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webapi.PrintResult), args.Error(1)
}

func (m *MockFulfillmentGateway) TestConnection(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// Мок для FulfillmentAPI (низкоуровневый клиент шлюза)
type MockFulfillmentAPI struct {
	mock.Mock
}

func (m *MockFulfillmentAPI) SyncInventory(ctx context.Context, updates []webapi.InventoryUpdate) (*webapi.SyncResult, error) {
	args := m.Called(ctx, updates)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webapi.SyncResult), args.Error(1)
}

func (m *MockFulfillmentAPI) PrintReceipt(ctx context.Context, req webapi.PrintReceiptRequest) (*webapi.PrintResult, error) {
	args := m.Called(ctx, req)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*webapi.PrintResult), args.Error(1)
}

func (m *MockFulfillmentAPI) TestConnection(ctx context.Context) (bool, error) {
	args := m.Called(ctx)
	return args.Bool(0), args.Error(1)
}

// RecordingEventPublisher собирает опубликованные события для проверок
type RecordingEventPublisher struct {
	mu     sync.Mutex
	events []eventbus.Event
}

func (p *RecordingEventPublisher) Publish(event eventbus.Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *RecordingEventPublisher) Events() []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]eventbus.Event, len(p.events))
	copy(out, p.events)
	return out
}

func (p *RecordingEventPublisher) EventsOfType(eventType eventbus.EventType) []eventbus.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []eventbus.Event
	for _, e := range p.events {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
