package app

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/director74/fulfillment_engine/config"
	httpController "github.com/director74/fulfillment_engine/internal/controller/http"
	rmqController "github.com/director74/fulfillment_engine/internal/controller/rabbitmq"
	"github.com/director74/fulfillment_engine/internal/entity"
	"github.com/director74/fulfillment_engine/internal/repo"
	"github.com/director74/fulfillment_engine/internal/usecase"
	"github.com/director74/fulfillment_engine/internal/usecase/webapi"
	"github.com/director74/fulfillment_engine/pkg/auth"
	"github.com/director74/fulfillment_engine/pkg/circuitbreaker"
	"github.com/director74/fulfillment_engine/pkg/database"
	"github.com/director74/fulfillment_engine/pkg/errors"
	"github.com/director74/fulfillment_engine/pkg/eventbus"
	"github.com/director74/fulfillment_engine/pkg/idempotency"
	"github.com/director74/fulfillment_engine/pkg/messaging"
)

// EventsExchange exchange, в который транслируются события конвейера
const EventsExchange = "fulfillment_events"

// App представляет движок автоматизации исполнения заказов.
// Внутренние API эндпоинты (/internal/*) предназначены только для взаимодействия между сервисами
type App struct {
	config    *config.Config
	db        *gorm.DB
	rabbitMQ  messaging.MessageBroker
	router    *gin.Engine
	server    *http.Server
	events    *eventbus.EventBus
	pipeline  *usecase.PipelineUseCase
	scheduler *usecase.RetryScheduler
	consumer  *rmqController.OrderConsumer
}

// NewApp создает новое приложение с указанной конфигурацией
func NewApp(cfg *config.Config) (*App, error) {
	// Инициализируем подключение к PostgreSQL
	db, err := database.NewPostgresDB(cfg.Postgres)
	if err != nil {
		return nil, errors.AppendPrefix(err, "не удалось подключиться к базе данных")
	}

	// Автомиграция моделей
	if err := database.AutoMigrateWithCleanup(db,
		&entity.Order{},
		&entity.OrderItem{},
		&entity.AutomationJob{},
		&entity.InventoryItem{},
		&entity.StockMovement{},
		&entity.AutomationSettings{},
		&entity.RetryTask{},
	); err != nil {
		return nil, errors.AppendPrefix(err, "не удалось выполнить миграцию")
	}

	// Инициализируем подключение к RabbitMQ
	rmq, err := messaging.InitRabbitMQ(cfg.RabbitMQ)
	if err != nil {
		database.CloseDB(db)
		return nil, errors.AppendPrefix(err, "не удалось подключиться к RabbitMQ")
	}

	// Настраиваем exchanges в RabbitMQ
	exchanges := map[string]string{
		rmqController.OrdersExchange: "topic",
		EventsExchange:               "topic",
	}
	if err := messaging.SetupExchangesAndQueues(rmq, exchanges, nil); err != nil {
		database.CloseDB(db)
		rmq.Close()
		return nil, errors.AppendPrefix(err, "ошибка при настройке RabbitMQ")
	}

	// Кэш идемпотентности вызовов внешней системы
	idempotencyCache, err := idempotency.NewRedisCache(cfg.Redis, "fulfillment", cfg.Gateway.IdempotencyTTL)
	if err != nil {
		database.CloseDB(db)
		rmq.Close()
		return nil, errors.AppendPrefix(err, "не удалось подключиться к Redis")
	}

	// Инициализируем JWT менеджер
	jwtConfig := &auth.Config{
		SigningKey:     cfg.JWT.SigningKey,
		TokenTTL:       cfg.JWT.TokenTTL,
		TokenIssuer:    cfg.JWT.TokenIssuer,
		TokenAudiences: cfg.JWT.TokenAudiences,
	}
	jwtManager := auth.NewJWTManager(jwtConfig)
	authMiddleware := auth.NewAuthMiddleware(jwtManager)

	// Создание репозиториев
	orderRepo := repo.NewOrderRepository(db)
	jobRepo := repo.NewJobRepository(db)
	inventoryRepo := repo.NewInventoryRepository(db)
	settingsRepo := repo.NewSettingsRepository(db)
	retryRepo := repo.NewRetryRepository(db)

	// Шина событий конвейера с трансляцией в RabbitMQ
	events := eventbus.NewEventBus(cfg.Pipeline.EventBuffer, nil)
	events.BridgeToBroker(rmq, EventsExchange)

	// Калькулятор доступности
	inventoryUseCase := usecase.NewInventoryUseCase(inventoryRepo, events, nil)

	// Шлюз внешней системы исполнения за предохранителем
	breaker := circuitbreaker.NewCircuitBreaker("fulfillment-gateway", circuitbreaker.Config{
		FailureThreshold: cfg.Gateway.FailureThreshold,
		RecoveryTimeout:  cfg.Gateway.RecoveryTimeout,
	}, nil)
	gatewayClient := webapi.NewFulfillmentClient(cfg.Gateway.BaseURL, cfg.Gateway.APIKey)
	gatewayUseCase := usecase.NewGatewayUseCase(gatewayClient, breaker, idempotencyCache, usecase.GatewayConfig{
		SyncTimeout:  cfg.Gateway.SyncTimeout,
		PrintTimeout: cfg.Gateway.PrintTimeout,
	}, nil)

	// Конвейер автоматизации
	pipeline := usecase.NewPipelineUseCase(
		orderRepo, jobRepo, inventoryUseCase, gatewayUseCase, retryRepo, settingsRepo, events,
		usecase.PipelineConfig{
			Workers:        cfg.Pipeline.Workers,
			ClaimBatch:     cfg.Pipeline.ClaimBatch,
			PollInterval:   cfg.Pipeline.PollInterval,
			LeaseTTL:       cfg.Pipeline.LeaseTTL,
			MaxAttempts:    cfg.Pipeline.MaxAttempts,
			BaseRetryDelay: cfg.Pipeline.BaseRetryDelay,
			MaxRetryDelay:  cfg.Pipeline.MaxRetryDelay,
		}, nil)

	// Планировщик отложенных повторов
	scheduler := usecase.NewRetryScheduler(retryRepo, jobRepo, usecase.RetrySchedulerConfig{
		PollInterval: cfg.Pipeline.RetryPoll,
		Batch:        cfg.Pipeline.RetryBatch,
	}, nil)

	// Создание роутера
	router := gin.Default()
	router.Use(errors.ErrorMiddleware())
	router.NoRoute(errors.NotFoundHandler())

	automationHandler := httpController.NewAutomationHandler(pipeline, gatewayUseCase, cfg)
	inventoryHandler := httpController.NewInventoryHandler(inventoryUseCase, cfg)
	automationHandler.RegisterRoutes(router, authMiddleware.AuthRequired())
	inventoryHandler.RegisterRoutes(router, authMiddleware.AuthRequired())

	// Создание обработчика сообщений RabbitMQ
	consumer := rmqController.NewOrderConsumer(pipeline, rmq)
	if err := consumer.Setup(); err != nil {
		database.CloseDB(db)
		rmq.Close()
		return nil, errors.AppendPrefix(err, "ошибка настройки интейка заказов")
	}

	// Настройка HTTP сервера
	server := &http.Server{
		Addr:         fmt.Sprintf(":%s", cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}

	return &App{
		config:    cfg,
		db:        db,
		rabbitMQ:  rmq,
		router:    router,
		server:    server,
		events:    events,
		pipeline:  pipeline,
		scheduler: scheduler,
		consumer:  consumer,
	}, nil
}

// Run запускает приложение
func (a *App) Run() error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Запуск воркеров конвейера и планировщика повторов
	go a.pipeline.Run(ctx)
	go a.scheduler.Run(ctx)

	// Запуск потребления сообщений интейка
	if err := a.consumer.StartConsuming(); err != nil {
		return errors.AppendPrefix(err, "ошибка запуска интейка заказов")
	}

	// Запуск HTTP сервера
	go func() {
		if err := a.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("Ошибка запуска HTTP сервера: %v", err)
		}
	}()

	log.Printf("Движок автоматизации исполнения запущен на порту %s", a.config.HTTP.Port)

	// Ожидание сигнала для грациозного завершения
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Завершение работы движка автоматизации...")

	// Остановка воркеров: текущая стадия доделывается, новые задачи не захватываются
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := a.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Ошибка остановки HTTP сервера: %v", err)
	}

	a.events.Close()

	if err := a.rabbitMQ.Close(); err != nil {
		log.Printf("Ошибка закрытия соединения с RabbitMQ: %v", err)
	}

	database.CloseDB(a.db)

	log.Println("Движок автоматизации остановлен")
	return nil
}

// Healthcheck проверяет работоспособность сервиса
func (a *App) Healthcheck() error {
	sql, err := a.db.DB()
	if err != nil {
		return err
	}

	return sql.Ping()
}
