package usecase

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/director74/fulfillment_engine/internal/entity"
	"github.com/director74/fulfillment_engine/internal/usecase/webapi"
	"github.com/director74/fulfillment_engine/pkg/eventbus"
	apperrors "github.com/director74/fulfillment_engine/pkg/errors"
)

// GlobalTenantID идентификатор настроек, действующих на весь движок
// (аварийная остановка всей автоматизации)
const GlobalTenantID uint = 0

// PipelineConfig настройки конвейера автоматизации
type PipelineConfig struct {
	Workers        int           // Число параллельных воркеров
	ClaimBatch     int           // Сколько кандидатов забирать за опрос
	PollInterval   time.Duration // Интервал опроса выполнимых задач
	LeaseTTL       time.Duration // Срок аренды задачи воркером
	MaxAttempts    int           // Максимум попыток на стадию
	BaseRetryDelay time.Duration // Базовая задержка экспоненциального backoff
	MaxRetryDelay  time.Duration // Потолок задержки backoff
}

// NewPipelineConfig возвращает настройки конвейера по умолчанию
func NewPipelineConfig() PipelineConfig {
	return PipelineConfig{
		Workers:        4,
		ClaimBatch:     10,
		PollInterval:   2 * time.Second,
		LeaseTTL:       60 * time.Second,
		MaxAttempts:    3,
		BaseRetryDelay: 5 * time.Second,
		MaxRetryDelay:  5 * time.Minute,
	}
}

// PipelineUseCase движок конвейера заказов: проводит задачи по стадиям
// received -> validated -> synced -> printed -> complete, консультируясь
// с калькулятором доступности и шлюзом внешней системы. Задача
// продвигается ровно на одну стадию за один захват аренды.
type PipelineUseCase struct {
	orders    OrderRepository
	jobs      JobRepository
	inventory InventoryService
	gateway   FulfillmentGateway
	retries   RetryRepository
	settings  SettingsRepository
	events    EventPublisher
	config    PipelineConfig
	logger    *log.Logger
}

// NewPipelineUseCase создает новый движок конвейера
func NewPipelineUseCase(
	orders OrderRepository,
	jobs JobRepository,
	inventory InventoryService,
	gateway FulfillmentGateway,
	retries RetryRepository,
	settings SettingsRepository,
	events EventPublisher,
	config PipelineConfig,
	logger *log.Logger,
) *PipelineUseCase {
	if logger == nil {
		logger = log.New(log.Writer(), "[Pipeline] ", log.LstdFlags)
	}
	if config.Workers <= 0 {
		config.Workers = NewPipelineConfig().Workers
	}
	if config.MaxAttempts <= 0 {
		config.MaxAttempts = NewPipelineConfig().MaxAttempts
	}

	return &PipelineUseCase{
		orders:    orders,
		jobs:      jobs,
		inventory: inventory,
		gateway:   gateway,
		retries:   retries,
		settings:  settings,
		events:    events,
		config:    config,
		logger:    logger,
	}
}

// HandleOrderCreated обрабатывает событие интейка: создает заказ и
// задачу конвейера в стадии received. Повторная доставка сообщения с
// тем же идентификатором системы-источника не создает дубликат заказа.
func (p *PipelineUseCase) HandleOrderCreated(ctx context.Context, msg entity.OrderCreatedMessage) error {
	if len(msg.Items) == 0 {
		return apperrors.NewBadRequestError("заказ без позиций")
	}

	if msg.OrderID != 0 {
		existing, err := p.orders.GetByExternalID(ctx, msg.OrderID)
		if err != nil {
			return fmt.Errorf("ошибка поиска заказа по внешнему ID %d: %w", msg.OrderID, err)
		}
		if existing != nil {
			p.logger.Printf("повторная доставка заказа %d (внешний ID %d), пропущено", existing.ID, msg.OrderID)
			return nil
		}
	}

	order := &entity.Order{
		ExternalID:        msg.OrderID,
		TenantID:          msg.TenantID,
		Items:             msg.Items,
		Amount:            msg.Amount,
		Status:            entity.OrderStatusPending,
		FinancialStatus:   entity.FinancialStatusPending,
		FulfillmentStatus: entity.FulfillmentStatusUnfulfilled,
	}
	if err := p.orders.Create(ctx, order); err != nil {
		return fmt.Errorf("ошибка при создании заказа: %w", err)
	}

	job := &entity.AutomationJob{
		OrderID:  order.ID,
		TenantID: msg.TenantID,
		Stage:    entity.JobStageReceived,
		Runnable: true,
	}
	if err := p.jobs.Create(ctx, job); err != nil {
		return fmt.Errorf("ошибка при создании задачи конвейера: %w", err)
	}

	p.logger.Printf("заказ %d принят в конвейер, задача %d", order.ID, job.ID)
	return nil
}

// Run запускает воркеры конвейера и блокируется до отмены контекста
func (p *PipelineUseCase) Run(ctx context.Context) {
	for i := 0; i < p.config.Workers; i++ {
		workerID := fmt.Sprintf("worker-%d-%s", i, uuid.NewString()[:8])
		go p.workerLoop(ctx, workerID)
	}

	<-ctx.Done()
}

// workerLoop цикл воркера: захват выполнимой задачи, продвижение ровно
// на одну стадию, освобождение аренды. Ошибки стадий записываются в
// задачу и не роняют воркер; ошибки самого механизма аренды
// приостанавливают цикл до следующего тика.
func (p *PipelineUseCase) workerLoop(ctx context.Context, workerID string) {
	ticker := time.NewTicker(p.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.processBatch(ctx, workerID); err != nil {
				p.logger.Printf("[%s] ошибка механизма захвата, воркер приостановлен: %v", workerID, err)
			}
		}
	}
}

// processBatch обрабатывает пачку выполнимых задач
func (p *PipelineUseCase) processBatch(ctx context.Context, workerID string) error {
	// Глобальный выключатель: работающие задачи доделывают текущую
	// стадию, но новые не захватываются
	enabled, err := p.settings.IsEnabled(ctx, GlobalTenantID)
	if err != nil {
		return fmt.Errorf("ошибка чтения настроек автоматизации: %w", err)
	}
	if !enabled {
		return nil
	}

	candidates, err := p.jobs.FindRunnable(ctx, p.config.ClaimBatch)
	if err != nil {
		return fmt.Errorf("ошибка поиска выполнимых задач: %w", err)
	}

	for _, candidate := range candidates {
		tenantEnabled, err := p.settings.IsEnabled(ctx, candidate.TenantID)
		if err != nil {
			return fmt.Errorf("ошибка чтения настроек арендатора %d: %w", candidate.TenantID, err)
		}
		if !tenantEnabled {
			continue
		}

		if err := p.jobs.Claim(ctx, candidate.ID, workerID, p.config.LeaseTTL); err != nil {
			if errors.Is(err, apperrors.ErrLeaseConflict) {
				// Задачу успел захватить другой воркер
				continue
			}
			return fmt.Errorf("ошибка захвата задачи %d: %w", candidate.ID, err)
		}

		p.processClaimed(ctx, candidate.ID, workerID)

		if err := p.jobs.ReleaseLease(ctx, candidate.ID, workerID); err != nil {
			p.logger.Printf("[%s] ошибка освобождения аренды задачи %d: %v", workerID, candidate.ID, err)
		}
	}

	return nil
}

// processClaimed выполняет одну стадию захваченной задачи. Все ошибки
// стадии записываются в задачу и не покидают воркер.
func (p *PipelineUseCase) processClaimed(ctx context.Context, jobID uint, workerID string) {
	job, err := p.jobs.GetByID(ctx, jobID)
	if err != nil || job == nil {
		p.logger.Printf("[%s] не удалось загрузить задачу %d: %v", workerID, jobID, err)
		return
	}
	if job.IsTerminal() {
		return
	}

	// Флаг отмены читается в начале каждой стадии
	if job.CancelRequested {
		p.cancelJob(ctx, job)
		return
	}

	order, err := p.orders.GetByID(ctx, job.OrderID)
	if err != nil || order == nil {
		p.failJob(ctx, job, entity.ErrCodeInvalidOrderState,
			fmt.Errorf("заказ %d не найден: %w", job.OrderID, apperrors.ErrInvalidOrderState))
		return
	}

	switch job.Stage {
	case entity.JobStageReceived:
		p.stageValidate(ctx, job, order)
	case entity.JobStageValidated:
		p.stageSync(ctx, job, order, workerID)
	case entity.JobStageSynced:
		p.stagePrint(ctx, job, order, workerID)
	case entity.JobStagePrinted:
		p.stageComplete(ctx, job, order)
	default:
		p.failJob(ctx, job, entity.ErrCodeInvalidOrderState,
			fmt.Errorf("стадия %s: %w", job.Stage, apperrors.ErrInvalidOrderState))
	}
}

// stageValidate проводит received -> validated: резервирует все позиции
// заказа. Частичных резерваций не остается: компенсация выполняется
// внутри калькулятора доступности.
func (p *PipelineUseCase) stageValidate(ctx context.Context, job *entity.AutomationJob, order *entity.Order) {
	lines := orderLines(order)

	if err := p.inventory.ReserveLines(ctx, job.TenantID, lines, orderReference(order.ID)); err != nil {
		if errors.Is(err, apperrors.ErrInsufficientInventory) {
			// Нехватка товара не лечится повтором, только оператором
			p.failJob(ctx, job, entity.ErrCodeInsufficientInventory, err)
			return
		}
		p.retryOrFail(ctx, job, err)
		return
	}

	if err := p.orders.UpdateStatus(ctx, order.ID, entity.OrderStatusProcessing); err != nil {
		p.logger.Printf("ошибка обновления статуса заказа %d: %v", order.ID, err)
	}

	p.advance(ctx, job)
}

// stageSync проводит validated -> synced: синхронизирует остатки с
// внешней системой. Резервации при повторе сохраняются.
func (p *PipelineUseCase) stageSync(ctx context.Context, job *entity.AutomationJob, order *entity.Order, workerID string) {
	updates := make([]webapi.InventoryUpdate, 0, len(order.Items))
	for _, item := range order.Items {
		updates = append(updates, webapi.InventoryUpdate{
			VariantID:  item.VariantID,
			LocationID: item.LocationID,
			Quantity:   item.Quantity,
		})
	}

	if !p.extendLease(ctx, job, workerID) {
		return
	}

	if _, err := p.gateway.SyncInventory(ctx, p.idempotencyKey(job), updates); err != nil {
		p.retryOrFail(ctx, job, err)
		return
	}

	p.advance(ctx, job)
}

// stagePrint проводит synced -> printed: печатает чек заказа
func (p *PipelineUseCase) stagePrint(ctx context.Context, job *entity.AutomationJob, order *entity.Order, workerID string) {
	req := webapi.PrintReceiptRequest{
		OrderID:  order.ID,
		TenantID: order.TenantID,
	}
	for _, item := range order.Items {
		req.Lines = append(req.Lines, webapi.ReceiptLine{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			Price:     item.Price,
		})
	}

	if !p.extendLease(ctx, job, workerID) {
		return
	}

	if _, err := p.gateway.PrintReceipt(ctx, p.idempotencyKey(job), req); err != nil {
		p.retryOrFail(ctx, job, err)
		return
	}

	p.advance(ctx, job)
}

// extendLease продлевает аренду перед медленным вызовом внешней
// системы. Потерянная аренда означает, что задачу мог перехватить
// другой воркер: стадия прерывается до побочного эффекта.
func (p *PipelineUseCase) extendLease(ctx context.Context, job *entity.AutomationJob, workerID string) bool {
	if err := p.jobs.ExtendLease(ctx, job.ID, workerID, p.config.LeaseTTL); err != nil {
		p.logger.Printf("[%s] аренда задачи %d потеряна, стадия прервана: %v", workerID, job.ID, err)
		return false
	}
	return true
}

// stageComplete проводит printed -> complete: списывает резервации
// движениями sale и помечает заказ исполненным
func (p *PipelineUseCase) stageComplete(ctx context.Context, job *entity.AutomationJob, order *entity.Order) {
	if err := p.inventory.CommitSaleLines(ctx, job.TenantID, orderLines(order), orderReference(order.ID)); err != nil {
		p.retryOrFail(ctx, job, err)
		return
	}

	if err := p.orders.UpdateFulfillmentStatus(ctx, order.ID, entity.FulfillmentStatusFulfilled); err != nil {
		p.logger.Printf("ошибка обновления статуса исполнения заказа %d: %v", order.ID, err)
	}
	if err := p.orders.UpdateStatus(ctx, order.ID, entity.OrderStatusFulfilled); err != nil {
		p.logger.Printf("ошибка обновления статуса заказа %d: %v", order.ID, err)
	}

	job.Stage = entity.JobStageComplete
	job.Runnable = false
	job.LastError = ""
	job.ErrorCode = ""
	if err := p.jobs.Update(ctx, job); err != nil {
		p.logger.Printf("ошибка сохранения задачи %d: %v", job.ID, err)
		return
	}

	p.publishJobEvent(eventbus.EventJobCompleted, job, "")
	p.logger.Printf("заказ %d исполнен, задача %d завершена", order.ID, job.ID)
}

// advance переводит задачу на следующую стадию и сбрасывает счетчик
// попыток
func (p *PipelineUseCase) advance(ctx context.Context, job *entity.AutomationJob) {
	job.Stage = job.NextStage()
	job.Attempts = 0
	job.LastError = ""
	job.ErrorCode = ""
	if err := p.jobs.Update(ctx, job); err != nil {
		p.logger.Printf("ошибка сохранения задачи %d: %v", job.ID, err)
		return
	}

	p.publishJobEvent(eventbus.EventJobStageChanged, job, "")
}

// retryOrFail учитывает неудачную попытку стадии: планирует отложенный
// повтор с экспоненциальным backoff либо, если попытки исчерпаны или
// ошибка неповторяемая, переводит задачу в failed
func (p *PipelineUseCase) retryOrFail(ctx context.Context, job *entity.AutomationJob, cause error) {
	job.Attempts++
	job.LastError = cause.Error()

	if !apperrors.Retryable(cause) {
		p.failJob(ctx, job, entity.ErrCodeInvalidOrderState, cause)
		return
	}

	if job.Attempts >= p.config.MaxAttempts {
		p.failJob(ctx, job, entity.ErrCodeMaxRetriesExceeded,
			fmt.Errorf("%w: %v", apperrors.ErrMaxRetriesExceeded, cause))
		return
	}

	delay := p.backoffDelay(job.Attempts)
	job.Runnable = false
	if err := p.jobs.Update(ctx, job); err != nil {
		p.logger.Printf("ошибка сохранения задачи %d: %v", job.ID, err)
		return
	}

	task := &entity.RetryTask{
		JobID:     job.ID,
		Stage:     job.Stage,
		NotBefore: time.Now().Add(delay),
	}
	if err := p.retries.Schedule(ctx, task); err != nil {
		p.logger.Printf("ошибка планирования повтора задачи %d: %v", job.ID, err)
		// Задача остается невыполнимой до ручного вмешательства, лучше
		// вернуть ее в очередь немедленно
		if markErr := p.jobs.MarkRunnable(ctx, job.ID); markErr != nil {
			p.logger.Printf("ошибка возврата задачи %d в очередь: %v", job.ID, markErr)
		}
		return
	}

	p.logger.Printf("задача %d: попытка %d стадии %s не удалась (%v), повтор через %s",
		job.ID, job.Attempts, job.Stage, cause, delay)
}

// backoffDelay вычисляет задержку экспоненциального backoff с потолком
func (p *PipelineUseCase) backoffDelay(attempt int) time.Duration {
	delay := p.config.BaseRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= p.config.MaxRetryDelay {
			return p.config.MaxRetryDelay
		}
	}
	if delay > p.config.MaxRetryDelay {
		return p.config.MaxRetryDelay
	}
	return delay
}

// failJob переводит задачу в терминальную стадию failed с сохранением
// стадии отказа для ручного повтора
func (p *PipelineUseCase) failJob(ctx context.Context, job *entity.AutomationJob, code string, cause error) {
	job.FailedStage = job.Stage
	job.Stage = entity.JobStageFailed
	job.Runnable = false
	job.ErrorCode = code
	job.LastError = cause.Error()
	if err := p.jobs.Update(ctx, job); err != nil {
		p.logger.Printf("ошибка сохранения задачи %d: %v", job.ID, err)
		return
	}

	p.publishJobEvent(eventbus.EventJobFailed, job, cause.Error())
	p.logger.Printf("задача %d переведена в failed (%s): %v", job.ID, code, cause)
}

// cancelJob применяет запрошенную отмену: снимает удерживаемые
// резервации и завершает задачу
func (p *PipelineUseCase) cancelJob(ctx context.Context, job *entity.AutomationJob) {
	// Резервации удерживаются начиная со стадии validated
	holdsReservations := job.Stage == entity.JobStageValidated ||
		job.Stage == entity.JobStageSynced ||
		job.Stage == entity.JobStagePrinted

	if holdsReservations {
		order, err := p.orders.GetByID(ctx, job.OrderID)
		if err != nil || order == nil {
			p.logger.Printf("отмена задачи %d: не удалось загрузить заказ %d: %v", job.ID, job.OrderID, err)
		} else if err := p.inventory.ReleaseLines(ctx, job.TenantID, orderLines(order), orderReference(order.ID)); err != nil {
			p.logger.Printf("отмена задачи %d: ошибка снятия резерваций: %v", job.ID, err)
		}
	}

	job.FailedStage = job.Stage
	job.Stage = entity.JobStageCancelled
	job.Runnable = false
	job.ErrorCode = entity.ErrCodeCancelled
	if err := p.jobs.Update(ctx, job); err != nil {
		p.logger.Printf("ошибка сохранения задачи %d: %v", job.ID, err)
		return
	}

	if err := p.orders.UpdateStatus(ctx, job.OrderID, entity.OrderStatusCancelled); err != nil {
		p.logger.Printf("ошибка обновления статуса заказа %d: %v", job.OrderID, err)
	}
	if err := p.retries.DeleteForJob(ctx, job.ID); err != nil {
		p.logger.Printf("ошибка удаления повторов задачи %d: %v", job.ID, err)
	}

	p.publishJobEvent(eventbus.EventJobFailed, job, "заказ отменен")
	p.logger.Printf("задача %d отменена по запросу", job.ID)
}

// RetryJob повторно запускает задачу в стадии failed: счетчик попыток
// сбрасывается, задача возвращается на стадию отказа. Уже пройденные
// стадии не выполняются заново.
func (p *PipelineUseCase) RetryJob(ctx context.Context, orderID uint) error {
	job, err := p.jobs.GetByOrderID(ctx, orderID)
	if err != nil {
		return err
	}
	if job == nil {
		return apperrors.NewNotFoundError("Задача конвейера для заказа", orderID)
	}
	if job.Stage != entity.JobStageFailed {
		return apperrors.NewBadRequestError(
			fmt.Sprintf("повтор возможен только для failed, текущая стадия %s", job.Stage))
	}

	resumeStage := job.FailedStage
	if resumeStage == "" || resumeStage == entity.JobStageFailed {
		resumeStage = entity.JobStageReceived
	}

	job.Stage = resumeStage
	job.FailedStage = ""
	job.Attempts = 0
	job.LastError = ""
	job.ErrorCode = ""
	job.CancelRequested = false
	job.Runnable = true
	if err := p.jobs.Update(ctx, job); err != nil {
		return err
	}

	if err := p.retries.DeleteForJob(ctx, job.ID); err != nil {
		p.logger.Printf("ошибка удаления повторов задачи %d: %v", job.ID, err)
	}

	p.publishJobEvent(eventbus.EventJobStageChanged, job, "")
	p.logger.Printf("задача %d повторно запущена оператором со стадии %s", job.ID, resumeStage)
	return nil
}

// CancelOrder запрашивает отмену обработки заказа. Выполняющийся вызов
// внешней системы не прерывается: отмена применится после его таймаута,
// перед началом следующей стадии.
func (p *PipelineUseCase) CancelOrder(ctx context.Context, orderID uint) error {
	return p.jobs.RequestCancellation(ctx, orderID)
}

// StartAutomation включает автоматизацию для арендатора
// (GlobalTenantID — для всего движка)
func (p *PipelineUseCase) StartAutomation(ctx context.Context, tenantID uint) error {
	return p.settings.SetEnabled(ctx, tenantID, true)
}

// StopAutomation выключает автоматизацию: работающие задачи доделывают
// текущую стадию, новые не захватываются
func (p *PipelineUseCase) StopAutomation(ctx context.Context, tenantID uint) error {
	return p.settings.SetEnabled(ctx, tenantID, false)
}

// GetPipelineStatus возвращает состояние конвейера для арендатора
func (p *PipelineUseCase) GetPipelineStatus(ctx context.Context, tenantID uint) (*entity.PipelineStatusResponse, error) {
	globalEnabled, err := p.settings.IsEnabled(ctx, GlobalTenantID)
	if err != nil {
		return nil, err
	}
	tenantEnabled, err := p.settings.IsEnabled(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	counts, err := p.jobs.CountByStage(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	return &entity.PipelineStatusResponse{
		Enabled:        globalEnabled && tenantEnabled,
		PerStageCounts: counts,
	}, nil
}

// GetJob возвращает задачу конвейера для заказа
func (p *PipelineUseCase) GetJob(ctx context.Context, orderID uint) (*entity.GetJobResponse, error) {
	job, err := p.jobs.GetByOrderID(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if job == nil {
		return nil, nil
	}

	return &entity.GetJobResponse{
		ID:        job.ID,
		OrderID:   job.OrderID,
		TenantID:  job.TenantID,
		Stage:     job.Stage,
		Attempts:  job.Attempts,
		LastError: job.LastError,
		ErrorCode: job.ErrorCode,
		CreatedAt: job.CreatedAt,
		UpdatedAt: job.UpdatedAt,
	}, nil
}

// idempotencyKey строит ключ идемпотентности внешнего вызова из
// заказа, стадии и номера попытки
func (p *PipelineUseCase) idempotencyKey(job *entity.AutomationJob) string {
	return fmt.Sprintf("%d:%s:%d", job.OrderID, job.Stage, job.Attempts)
}

// orderLines строит позиции резервации из позиций заказа
func orderLines(order *entity.Order) []entity.ReserveLine {
	lines := make([]entity.ReserveLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, entity.ReserveLine{
			VariantID:  item.VariantID,
			LocationID: item.LocationID,
			Channel:    item.Channel,
			Quantity:   item.Quantity,
		})
	}
	return lines
}

// orderReference ссылка журнала движений для заказа
func orderReference(orderID uint) string {
	return fmt.Sprintf("order-%d", orderID)
}

// publishJobEvent публикует событие изменения задачи
func (p *PipelineUseCase) publishJobEvent(eventType eventbus.EventType, job *entity.AutomationJob, errMsg string) {
	if p.events == nil {
		return
	}

	event := eventbus.NewEvent(eventType)
	event.TenantID = job.TenantID
	event.OrderID = job.OrderID
	event.JobID = job.ID
	event.Stage = string(job.Stage)
	event.Error = errMsg
	p.events.Publish(event)
}
