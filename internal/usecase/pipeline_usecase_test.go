package usecase

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/director74/fulfillment_engine/internal/entity"
	"github.com/director74/fulfillment_engine/internal/usecase/webapi"
	"github.com/director74/fulfillment_engine/pkg/eventbus"
	apperrors "github.com/director74/fulfillment_engine/pkg/errors"
)

type pipelineMocks struct {
	orders    *MockOrderRepository
	jobs      *MockJobRepository
	inventory *MockInventoryService
	gateway   *MockFulfillmentGateway
	retries   *MockRetryRepository
	settings  *MockSettingsRepository
	events    *RecordingEventPublisher
}

func newTestPipeline(config PipelineConfig) (*PipelineUseCase, *pipelineMocks) {
	m := &pipelineMocks{
		orders:    new(MockOrderRepository),
		jobs:      new(MockJobRepository),
		inventory: new(MockInventoryService),
		gateway:   new(MockFulfillmentGateway),
		retries:   new(MockRetryRepository),
		settings:  new(MockSettingsRepository),
		events:    new(RecordingEventPublisher),
	}

	pipeline := NewPipelineUseCase(m.orders, m.jobs, m.inventory, m.gateway, m.retries, m.settings, m.events, config, nil)
	return pipeline, m
}

func testOrder() *entity.Order {
	return &entity.Order{
		ID:       10,
		TenantID: 1,
		Amount:   200,
		Status:   entity.OrderStatusProcessing,
		Items: []entity.OrderItem{
			{OrderID: 10, VariantID: 7, LocationID: 3, Channel: "web", Quantity: 2, Price: 100},
		},
	}
}

func testJob(stage entity.JobStage) *entity.AutomationJob {
	return &entity.AutomationJob{
		ID:       100,
		OrderID:  10,
		TenantID: 1,
		Stage:    stage,
		Runnable: true,
	}
}

func TestHandleOrderCreated(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())

	m.orders.On("Create", mock.Anything, mock.AnythingOfType("*entity.Order")).Return(nil)
	m.jobs.On("Create", mock.Anything, mock.AnythingOfType("*entity.AutomationJob")).Return(nil)

	msg := entity.OrderCreatedMessage{
		TenantID: 1,
		Amount:   200,
		Items: []entity.OrderItem{
			{VariantID: 7, LocationID: 3, Channel: "web", Quantity: 2, Price: 100},
		},
	}

	err := pipeline.HandleOrderCreated(context.Background(), msg)
	assert.NoError(t, err)

	m.orders.AssertExpectations(t)
	m.jobs.AssertExpectations(t)

	createdJob := m.jobs.Calls[0].Arguments.Get(1).(*entity.AutomationJob)
	assert.Equal(t, entity.JobStageReceived, createdJob.Stage)
	assert.True(t, createdJob.Runnable)
	assert.Equal(t, uint(10), createdJob.OrderID)
}

func TestHandleOrderCreatedRejectsEmptyOrder(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())

	err := pipeline.HandleOrderCreated(context.Background(), entity.OrderCreatedMessage{TenantID: 1})
	assert.Error(t, err)

	m.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestHandleOrderCreatedSkipsRedeliveredMessage(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())

	existing := testOrder()
	existing.ExternalID = 77
	m.orders.On("GetByExternalID", mock.Anything, uint(77)).Return(existing, nil)

	msg := entity.OrderCreatedMessage{
		OrderID:  77,
		TenantID: 1,
		Items: []entity.OrderItem{
			{VariantID: 7, LocationID: 3, Channel: "web", Quantity: 2},
		},
	}

	// Повторная доставка сообщения интейка не создает дубликат заказа
	err := pipeline.HandleOrderCreated(context.Background(), msg)
	assert.NoError(t, err)

	m.orders.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
	m.jobs.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestStageValidateAdvancesOnSuccessfulReservation(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())
	job := testJob(entity.JobStageReceived)

	m.jobs.On("GetByID", mock.Anything, uint(100)).Return(job, nil)
	m.orders.On("GetByID", mock.Anything, uint(10)).Return(testOrder(), nil)
	m.inventory.On("ReserveLines", mock.Anything, uint(1), mock.Anything, "order-10").Return(nil)
	m.orders.On("UpdateStatus", mock.Anything, uint(10), entity.OrderStatusProcessing).Return(nil)
	m.jobs.On("Update", mock.Anything, job).Return(nil)

	pipeline.processClaimed(context.Background(), 100, "worker-test")

	assert.Equal(t, entity.JobStageValidated, job.Stage)
	assert.Equal(t, 0, job.Attempts)
	m.inventory.AssertExpectations(t)

	events := m.events.EventsOfType(eventbus.EventJobStageChanged)
	assert.Len(t, events, 1)
	assert.Equal(t, string(entity.JobStageValidated), events[0].Stage)
}

func TestStageValidateInsufficientInventoryFailsWithoutRetry(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())
	job := testJob(entity.JobStageReceived)

	m.jobs.On("GetByID", mock.Anything, uint(100)).Return(job, nil)
	m.orders.On("GetByID", mock.Anything, uint(10)).Return(testOrder(), nil)
	m.inventory.On("ReserveLines", mock.Anything, uint(1), mock.Anything, "order-10").
		Return(apperrors.NewInsufficientInventoryError(7, 3, 2, 1))
	m.jobs.On("Update", mock.Anything, job).Return(nil)

	pipeline.processClaimed(context.Background(), 100, "worker-test")

	assert.Equal(t, entity.JobStageFailed, job.Stage)
	assert.Equal(t, entity.JobStageReceived, job.FailedStage)
	assert.Equal(t, entity.ErrCodeInsufficientInventory, job.ErrorCode)
	assert.False(t, job.Runnable)

	// Нехватка товара не планирует автоматических повторов
	m.retries.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything)

	events := m.events.EventsOfType(eventbus.EventJobFailed)
	assert.Len(t, events, 1)
}

func TestStageSyncTransientErrorSchedulesRetry(t *testing.T) {
	config := NewPipelineConfig()
	config.BaseRetryDelay = 5 * time.Second
	pipeline, m := newTestPipeline(config)
	job := testJob(entity.JobStageValidated)

	m.jobs.On("GetByID", mock.Anything, uint(100)).Return(job, nil)
	m.orders.On("GetByID", mock.Anything, uint(10)).Return(testOrder(), nil)
	m.jobs.On("ExtendLease", mock.Anything, uint(100), "worker-test", mock.Anything).Return(nil)
	m.gateway.On("SyncInventory", mock.Anything, "10:validated:0", mock.Anything).
		Return(nil, apperrors.ErrGatewayTimeout)
	m.jobs.On("Update", mock.Anything, job).Return(nil)
	m.retries.On("Schedule", mock.Anything, mock.AnythingOfType("*entity.RetryTask")).Return(nil)

	before := time.Now()
	pipeline.processClaimed(context.Background(), 100, "worker-test")

	// Стадия сохраняется, попытка учтена, задача снята с очереди до повтора
	assert.Equal(t, entity.JobStageValidated, job.Stage)
	assert.Equal(t, 1, job.Attempts)
	assert.False(t, job.Runnable)

	m.retries.AssertExpectations(t)
	task := m.retries.Calls[0].Arguments.Get(1).(*entity.RetryTask)
	assert.Equal(t, uint(100), task.JobID)
	assert.False(t, task.NotBefore.Before(before.Add(config.BaseRetryDelay)))
}

func TestStageSyncExhaustedAttemptsFail(t *testing.T) {
	config := NewPipelineConfig()
	config.MaxAttempts = 3
	pipeline, m := newTestPipeline(config)

	job := testJob(entity.JobStageValidated)
	job.Attempts = 2

	m.jobs.On("GetByID", mock.Anything, uint(100)).Return(job, nil)
	m.orders.On("GetByID", mock.Anything, uint(10)).Return(testOrder(), nil)
	m.jobs.On("ExtendLease", mock.Anything, uint(100), "worker-test", mock.Anything).Return(nil)
	m.gateway.On("SyncInventory", mock.Anything, "10:validated:2", mock.Anything).
		Return(nil, apperrors.ErrGatewayTimeout)
	m.jobs.On("Update", mock.Anything, job).Return(nil)

	pipeline.processClaimed(context.Background(), 100, "worker-test")

	assert.Equal(t, entity.JobStageFailed, job.Stage)
	assert.Equal(t, entity.JobStageValidated, job.FailedStage)
	assert.Equal(t, entity.ErrCodeMaxRetriesExceeded, job.ErrorCode)
	m.retries.AssertNotCalled(t, "Schedule", mock.Anything, mock.Anything)
}

func TestStageSyncAbortsWhenLeaseLost(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())
	job := testJob(entity.JobStageValidated)

	m.jobs.On("GetByID", mock.Anything, uint(100)).Return(job, nil)
	m.orders.On("GetByID", mock.Anything, uint(10)).Return(testOrder(), nil)
	m.jobs.On("ExtendLease", mock.Anything, uint(100), "worker-test", mock.Anything).
		Return(apperrors.NewLeaseConflictError(100))

	pipeline.processClaimed(context.Background(), 100, "worker-test")

	// Потеря аренды прерывает стадию до вызова внешней системы:
	// задачу уже мог перехватить другой воркер
	m.gateway.AssertNotCalled(t, "SyncInventory", mock.Anything, mock.Anything, mock.Anything)
	assert.Equal(t, entity.JobStageValidated, job.Stage)
	assert.Equal(t, 0, job.Attempts)
}

func TestStagePrintAdvances(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())
	job := testJob(entity.JobStageSynced)

	m.jobs.On("GetByID", mock.Anything, uint(100)).Return(job, nil)
	m.orders.On("GetByID", mock.Anything, uint(10)).Return(testOrder(), nil)
	m.jobs.On("ExtendLease", mock.Anything, uint(100), "worker-test", mock.Anything).Return(nil)
	m.gateway.On("PrintReceipt", mock.Anything, "10:synced:0", mock.Anything).
		Return(&webapi.PrintResult{ReceiptID: "r-1", Printed: true}, nil)
	m.jobs.On("Update", mock.Anything, job).Return(nil)

	pipeline.processClaimed(context.Background(), 100, "worker-test")

	assert.Equal(t, entity.JobStagePrinted, job.Stage)
	m.gateway.AssertExpectations(t)
}

func TestStageCompleteCommitsSaleAndFulfills(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())
	job := testJob(entity.JobStagePrinted)

	m.jobs.On("GetByID", mock.Anything, uint(100)).Return(job, nil)
	m.orders.On("GetByID", mock.Anything, uint(10)).Return(testOrder(), nil)
	m.inventory.On("CommitSaleLines", mock.Anything, uint(1), mock.Anything, "order-10").Return(nil)
	m.orders.On("UpdateFulfillmentStatus", mock.Anything, uint(10), entity.FulfillmentStatusFulfilled).Return(nil)
	m.orders.On("UpdateStatus", mock.Anything, uint(10), entity.OrderStatusFulfilled).Return(nil)
	m.jobs.On("Update", mock.Anything, job).Return(nil)

	pipeline.processClaimed(context.Background(), 100, "worker-test")

	assert.Equal(t, entity.JobStageComplete, job.Stage)
	assert.True(t, job.IsTerminal())
	m.orders.AssertExpectations(t)

	events := m.events.EventsOfType(eventbus.EventJobCompleted)
	assert.Len(t, events, 1)
}

func TestCancellationReleasesHeldReservations(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())

	job := testJob(entity.JobStageSynced)
	job.CancelRequested = true

	m.jobs.On("GetByID", mock.Anything, uint(100)).Return(job, nil)
	m.orders.On("GetByID", mock.Anything, uint(10)).Return(testOrder(), nil)
	m.inventory.On("ReleaseLines", mock.Anything, uint(1), mock.Anything, "order-10").Return(nil)
	m.jobs.On("Update", mock.Anything, job).Return(nil)
	m.orders.On("UpdateStatus", mock.Anything, uint(10), entity.OrderStatusCancelled).Return(nil)
	m.retries.On("DeleteForJob", mock.Anything, uint(100)).Return(nil)

	pipeline.processClaimed(context.Background(), 100, "worker-test")

	assert.Equal(t, entity.JobStageCancelled, job.Stage)
	assert.False(t, job.Runnable)
	m.inventory.AssertExpectations(t)
	m.retries.AssertExpectations(t)

	// Синхронизация и печать не выполнялись
	m.gateway.AssertNotCalled(t, "SyncInventory", mock.Anything, mock.Anything, mock.Anything)
	m.gateway.AssertNotCalled(t, "PrintReceipt", mock.Anything, mock.Anything, mock.Anything)
}

func TestCancellationBeforeReservationSkipsRelease(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())

	job := testJob(entity.JobStageReceived)
	job.CancelRequested = true

	m.jobs.On("GetByID", mock.Anything, uint(100)).Return(job, nil)
	m.jobs.On("Update", mock.Anything, job).Return(nil)
	m.orders.On("UpdateStatus", mock.Anything, uint(10), entity.OrderStatusCancelled).Return(nil)
	m.retries.On("DeleteForJob", mock.Anything, uint(100)).Return(nil)

	pipeline.processClaimed(context.Background(), 100, "worker-test")

	assert.Equal(t, entity.JobStageCancelled, job.Stage)
	m.inventory.AssertNotCalled(t, "ReleaseLines", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestRetryJobRestoresFailedStage(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())

	job := testJob(entity.JobStageFailed)
	job.Runnable = false
	job.FailedStage = entity.JobStageSynced
	job.Attempts = 3
	job.ErrorCode = entity.ErrCodeMaxRetriesExceeded
	job.LastError = "таймаут внешней системы"

	m.jobs.On("GetByOrderID", mock.Anything, uint(10)).Return(job, nil)
	m.jobs.On("Update", mock.Anything, job).Return(nil)
	m.retries.On("DeleteForJob", mock.Anything, uint(100)).Return(nil)

	err := pipeline.RetryJob(context.Background(), 10)
	assert.NoError(t, err)

	// Задача возвращается на стадию отказа, счетчики очищены
	assert.Equal(t, entity.JobStageSynced, job.Stage)
	assert.Equal(t, 0, job.Attempts)
	assert.Empty(t, job.LastError)
	assert.Empty(t, job.ErrorCode)
	assert.True(t, job.Runnable)
}

func TestRetryJobRejectsNonFailedJob(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())

	job := testJob(entity.JobStageSynced)
	m.jobs.On("GetByOrderID", mock.Anything, uint(10)).Return(job, nil)

	err := pipeline.RetryJob(context.Background(), 10)
	assert.Error(t, err)
	m.jobs.AssertNotCalled(t, "Update", mock.Anything, mock.Anything)
}

func TestProcessBatchSkipsWhenAutomationDisabled(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())

	m.settings.On("IsEnabled", mock.Anything, GlobalTenantID).Return(false, nil)

	err := pipeline.processBatch(context.Background(), "worker-test")
	assert.NoError(t, err)
	m.jobs.AssertNotCalled(t, "FindRunnable", mock.Anything, mock.Anything)
}

func TestProcessBatchSkipsDisabledTenant(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())

	candidate := *testJob(entity.JobStageReceived)

	m.settings.On("IsEnabled", mock.Anything, GlobalTenantID).Return(true, nil)
	m.settings.On("IsEnabled", mock.Anything, uint(1)).Return(false, nil)
	m.jobs.On("FindRunnable", mock.Anything, mock.Anything).Return([]entity.AutomationJob{candidate}, nil)

	err := pipeline.processBatch(context.Background(), "worker-test")
	assert.NoError(t, err)
	m.jobs.AssertNotCalled(t, "Claim", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestProcessBatchToleratesLeaseConflict(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())

	candidate := *testJob(entity.JobStageReceived)

	m.settings.On("IsEnabled", mock.Anything, GlobalTenantID).Return(true, nil)
	m.settings.On("IsEnabled", mock.Anything, uint(1)).Return(true, nil)
	m.jobs.On("FindRunnable", mock.Anything, mock.Anything).Return([]entity.AutomationJob{candidate}, nil)
	m.jobs.On("Claim", mock.Anything, uint(100), "worker-test", mock.Anything).
		Return(apperrors.NewLeaseConflictError(100))

	// Конкурентный захват не считается ошибкой воркера
	err := pipeline.processBatch(context.Background(), "worker-test")
	assert.NoError(t, err)
	m.jobs.AssertNotCalled(t, "GetByID", mock.Anything, mock.Anything)
}

func TestBackoffDelayGrowsExponentiallyWithCap(t *testing.T) {
	config := NewPipelineConfig()
	config.BaseRetryDelay = 5 * time.Second
	config.MaxRetryDelay = 30 * time.Second
	pipeline, _ := newTestPipeline(config)

	assert.Equal(t, 5*time.Second, pipeline.backoffDelay(1))
	assert.Equal(t, 10*time.Second, pipeline.backoffDelay(2))
	assert.Equal(t, 20*time.Second, pipeline.backoffDelay(3))
	assert.Equal(t, 30*time.Second, pipeline.backoffDelay(4))
	assert.Equal(t, 30*time.Second, pipeline.backoffDelay(10))
}

func TestIdempotencyKeyChangesPerStageAndAttempt(t *testing.T) {
	pipeline, _ := newTestPipeline(NewPipelineConfig())

	job := testJob(entity.JobStageValidated)
	first := pipeline.idempotencyKey(job)

	job.Attempts = 1
	second := pipeline.idempotencyKey(job)
	assert.NotEqual(t, first, second)

	job.Stage = entity.JobStageSynced
	third := pipeline.idempotencyKey(job)
	assert.NotEqual(t, second, third)
}

func TestGetPipelineStatusCombinesGlobalAndTenantFlags(t *testing.T) {
	pipeline, m := newTestPipeline(NewPipelineConfig())

	counts := map[entity.JobStage]int{
		entity.JobStageReceived: 2,
		entity.JobStageFailed:   1,
	}

	m.settings.On("IsEnabled", mock.Anything, GlobalTenantID).Return(true, nil)
	m.settings.On("IsEnabled", mock.Anything, uint(1)).Return(false, nil)
	m.jobs.On("CountByStage", mock.Anything, uint(1)).Return(counts, nil)

	status, err := pipeline.GetPipelineStatus(context.Background(), 1)
	assert.NoError(t, err)
	assert.False(t, status.Enabled)
	assert.Equal(t, counts, status.PerStageCounts)
}
