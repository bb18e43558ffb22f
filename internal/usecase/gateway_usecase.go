package usecase

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/director74/fulfillment_engine/internal/usecase/webapi"
	"github.com/director74/fulfillment_engine/pkg/circuitbreaker"
	apperrors "github.com/director74/fulfillment_engine/pkg/errors"
	"github.com/director74/fulfillment_engine/pkg/idempotency"
)

// GatewayConfig настройки шлюза внешней системы
type GatewayConfig struct {
	SyncTimeout  time.Duration // Таймаут syncInventory
	PrintTimeout time.Duration // Таймаут printReceipt
}

// NewGatewayConfig возвращает настройки шлюза по умолчанию
func NewGatewayConfig() GatewayConfig {
	return GatewayConfig{
		SyncTimeout:  10 * time.Second,
		PrintTimeout: 15 * time.Second,
	}
}

// GatewayUseCase шлюз внешней системы исполнения: оборачивает HTTP
// клиент в circuit breaker, таймауты и дедупликацию по идемпотентному
// ключу. Таймаут считается отказом для breaker'а и возвращается
// вызывающему как ErrGatewayTimeout, отличимый от ErrCircuitOpen и от
// ошибки удаленной системы.
type GatewayUseCase struct {
	client  FulfillmentAPI
	breaker *circuitbreaker.CircuitBreaker
	cache   idempotency.Cache
	config  GatewayConfig
	logger  *log.Logger
}

// NewGatewayUseCase создает новый шлюз внешней системы
func NewGatewayUseCase(client FulfillmentAPI, breaker *circuitbreaker.CircuitBreaker, cache idempotency.Cache, config GatewayConfig, logger *log.Logger) *GatewayUseCase {
	if logger == nil {
		logger = log.New(log.Writer(), "[Gateway] ", log.LstdFlags)
	}

	return &GatewayUseCase{
		client:  client,
		breaker: breaker,
		cache:   cache,
		config:  config,
		logger:  logger,
	}
}

// call выполняет вызов под защитой breaker'а с таймаутом и кэшем
// идемпотентности. Результат дедуплицируется: повтор с тем же ключом в
// пределах окна удержания возвращает сохраненный результат.
func (g *GatewayUseCase) call(ctx context.Context, idempotencyKey string, timeout time.Duration, cached interface{}, fn func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	// Сначала проверяем кэш: повторный вызов не должен дублировать
	// побочный эффект
	if err := g.cache.Get(ctx, idempotencyKey, cached); err == nil {
		g.logger.Printf("повторный вызов с ключом %s, возвращаем сохраненный результат", idempotencyKey)
		return cached, nil
	} else if !errors.Is(err, idempotency.ErrNotFound) {
		g.logger.Printf("ошибка чтения кэша идемпотентности: %v", err)
	}

	if err := g.breaker.Allow(); err != nil {
		return nil, err
	}

	callCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := fn(callCtx)
	if err != nil {
		g.breaker.RecordFailure()
		if errors.Is(err, context.DeadlineExceeded) || callCtx.Err() == context.DeadlineExceeded {
			return nil, apperrors.AppendPrefix(apperrors.ErrGatewayTimeout, "внешний вызов")
		}
		return nil, err
	}

	g.breaker.RecordSuccess()

	if cacheErr := g.cache.Set(ctx, idempotencyKey, result); cacheErr != nil {
		g.logger.Printf("ошибка записи кэша идемпотентности: %v", cacheErr)
	}

	return result, nil
}

// SyncInventory синхронизирует остатки с внешней системой
func (g *GatewayUseCase) SyncInventory(ctx context.Context, idempotencyKey string, updates []webapi.InventoryUpdate) (*webapi.SyncResult, error) {
	cached := &webapi.SyncResult{}
	result, err := g.call(ctx, idempotencyKey, g.config.SyncTimeout, cached, func(callCtx context.Context) (interface{}, error) {
		return g.client.SyncInventory(callCtx, updates)
	})
	if err != nil {
		return nil, err
	}
	return result.(*webapi.SyncResult), nil
}

// PrintReceipt печатает чек заказа во внешней системе
func (g *GatewayUseCase) PrintReceipt(ctx context.Context, idempotencyKey string, req webapi.PrintReceiptRequest) (*webapi.PrintResult, error) {
	cached := &webapi.PrintResult{}
	result, err := g.call(ctx, idempotencyKey, g.config.PrintTimeout, cached, func(callCtx context.Context) (interface{}, error) {
		return g.client.PrintReceipt(callCtx, req)
	})
	if err != nil {
		return nil, err
	}
	return result.(*webapi.PrintResult), nil
}

// TestConnection проверяет доступность внешней системы. Не проходит
// через кэш идемпотентности: у проверки нет побочного эффекта.
func (g *GatewayUseCase) TestConnection(ctx context.Context) (bool, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.config.SyncTimeout)
	defer cancel()

	return g.client.TestConnection(callCtx)
}

// BreakerState возвращает текущее состояние circuit breaker'а
func (g *GatewayUseCase) BreakerState() circuitbreaker.State {
	return g.breaker.State()
}
