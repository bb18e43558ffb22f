package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/director74/fulfillment_engine/internal/entity"
	"github.com/director74/fulfillment_engine/internal/usecase"
	"github.com/director74/fulfillment_engine/pkg/rabbitmq"
)

const (
	OrdersExchange   = "orders_exchange"
	OrderCreatedKey  = "order.created"
	OrderIntakeQueue = "fulfillment_intake_queue"
)

// OrderConsumer принимает сообщения о новых заказах и ставит их в
// конвейер автоматизации
type OrderConsumer struct {
	pipeline *usecase.PipelineUseCase
	rabbitMQ *rabbitmq.RabbitMQ
	logger   *log.Logger
}

func NewOrderConsumer(pipeline *usecase.PipelineUseCase, rabbitMQ *rabbitmq.RabbitMQ) *OrderConsumer {
	logger := log.New(log.Writer(), "[Fulfillment] [Intake] ", log.LstdFlags)
	return &OrderConsumer{
		pipeline: pipeline,
		rabbitMQ: rabbitMQ,
		logger:   logger,
	}
}

// Setup настраивает обмен, очередь и привязку интейка
func (c *OrderConsumer) Setup() error {
	if err := c.rabbitMQ.DeclareExchange(OrdersExchange, "topic"); err != nil {
		return fmt.Errorf("ошибка при создании обмена %s: %w", OrdersExchange, err)
	}
	if err := c.rabbitMQ.DeclareQueue(OrderIntakeQueue); err != nil {
		return fmt.Errorf("ошибка при создании очереди %s: %w", OrderIntakeQueue, err)
	}
	if err := c.rabbitMQ.BindQueue(OrderIntakeQueue, OrdersExchange, OrderCreatedKey); err != nil {
		return fmt.Errorf("ошибка при привязке очереди %s к обмену %s с ключом %s: %w",
			OrderIntakeQueue, OrdersExchange, OrderCreatedKey, err)
	}

	c.logger.Printf("Настроен интейк заказов (очередь %s)", OrderIntakeQueue)
	return nil
}

// StartConsuming запускает потребление сообщений интейка
func (c *OrderConsumer) StartConsuming() error {
	return c.rabbitMQ.ConsumeMessages(OrderIntakeQueue, "fulfillment_intake", c.handleOrderCreated)
}

// handleOrderCreated обрабатывает одно сообщение о создании заказа.
// Ошибки бизнес-логики не возвращаются брокеру: повтор доставки того
// же сообщения создал бы дубликат заказа, проблемные сообщения
// логируются и подтверждаются.
func (c *OrderConsumer) handleOrderCreated(data []byte) error {
	var message entity.OrderCreatedMessage
	if err := json.Unmarshal(data, &message); err != nil {
		c.logger.Printf("[ERROR] Не удалось разобрать сообщение интейка: %v", err)
		return nil
	}

	if err := c.pipeline.HandleOrderCreated(context.Background(), message); err != nil {
		c.logger.Printf("[ERROR] Не удалось принять заказ арендатора %d: %v", message.TenantID, err)
		return nil
	}

	return nil
}
