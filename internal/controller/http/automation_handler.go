package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/director74/fulfillment_engine/config"
	"github.com/director74/fulfillment_engine/internal/usecase"
	"github.com/director74/fulfillment_engine/pkg/auth"
	apperrors "github.com/director74/fulfillment_engine/pkg/errors"
	pkgMiddleware "github.com/director74/fulfillment_engine/pkg/middleware"
)

// AutomationHandler обработчик HTTP запросов управления конвейером
type AutomationHandler struct {
	pipeline *usecase.PipelineUseCase
	gateway  *usecase.GatewayUseCase
	config   *config.Config
}

// NewAutomationHandler создает новый обработчик управления конвейером
func NewAutomationHandler(pipeline *usecase.PipelineUseCase, gateway *usecase.GatewayUseCase, cfg *config.Config) *AutomationHandler {
	return &AutomationHandler{
		pipeline: pipeline,
		gateway:  gateway,
		config:   cfg,
	}
}

// HealthCheck обрабатывает запрос на проверку работоспособности сервиса
func (h *AutomationHandler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// GetPipelineStatus возвращает состояние конвейера для арендатора
// оператора: флаг автоматизации и распределение задач по стадиям
func (h *AutomationHandler) GetPipelineStatus(c *gin.Context) {
	status, err := h.pipeline.GetPipelineStatus(c.Request.Context(), auth.GetTenantID(c))
	if err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusOK, status)
}

// GetJob возвращает задачу конвейера по заказу
func (h *AutomationHandler) GetJob(c *gin.Context) {
	orderID, ok := parseIDParam(c, "order_id")
	if !ok {
		return
	}

	job, err := h.pipeline.GetJob(c.Request.Context(), orderID)
	if err != nil {
		apperrors.HandleGinError(c, err)
		return
	}
	if job == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "задача конвейера не найдена"})
		return
	}

	c.JSON(http.StatusOK, job)
}

// RetryJob повторно запускает отказавшую задачу конвейера
func (h *AutomationHandler) RetryJob(c *gin.Context) {
	orderID, ok := parseIDParam(c, "order_id")
	if !ok {
		return
	}

	if err := h.pipeline.RetryJob(c.Request.Context(), orderID); err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "retry_scheduled"})
}

// CancelOrder запрашивает отмену обработки заказа
func (h *AutomationHandler) CancelOrder(c *gin.Context) {
	orderID, ok := parseIDParam(c, "order_id")
	if !ok {
		return
	}

	if err := h.pipeline.CancelOrder(c.Request.Context(), orderID); err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"status": "cancellation_requested"})
}

// StartAutomation включает автоматизацию для арендатора оператора
func (h *AutomationHandler) StartAutomation(c *gin.Context) {
	if err := h.pipeline.StartAutomation(c.Request.Context(), auth.GetTenantID(c)); err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// StopAutomation выключает автоматизацию для арендатора оператора
func (h *AutomationHandler) StopAutomation(c *gin.Context) {
	if err := h.pipeline.StopAutomation(c.Request.Context(), auth.GetTenantID(c)); err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// GetGatewayStatus проверяет связь с внешней системой исполнения и
// возвращает состояние предохранителя
func (h *AutomationHandler) GetGatewayStatus(c *gin.Context) {
	connected, err := h.gateway.TestConnection(c.Request.Context())
	if err != nil {
		connected = false
	}

	c.JSON(http.StatusOK, gin.H{
		"connected":     connected,
		"breaker_state": h.gateway.BreakerState(),
	})
}

// GlobalStartAutomation включает автоматизацию для всего движка
func (h *AutomationHandler) GlobalStartAutomation(c *gin.Context) {
	if err := h.pipeline.StartAutomation(c.Request.Context(), usecase.GlobalTenantID); err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "started"})
}

// GlobalStopAutomation аварийная остановка всего движка: работающие
// задачи доделывают текущую стадию и сохраняют состояние
func (h *AutomationHandler) GlobalStopAutomation(c *gin.Context) {
	if err := h.pipeline.StopAutomation(c.Request.Context(), usecase.GlobalTenantID); err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "stopped"})
}

// RegisterRoutes регистрирует маршруты управления конвейером
func (h *AutomationHandler) RegisterRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Эндпоинт для проверки работоспособности сервиса
	router.GET("/health", h.HealthCheck)

	automation := router.Group("/api/v1/automation", authMiddleware)
	{
		automation.GET("/status", h.GetPipelineStatus)
		automation.POST("/start", h.StartAutomation)
		automation.POST("/stop", h.StopAutomation)
		automation.GET("/gateway", h.GetGatewayStatus)
		automation.GET("/jobs/:order_id", h.GetJob)
		automation.POST("/jobs/:order_id/retry", h.RetryJob)
		automation.POST("/jobs/:order_id/cancel", h.CancelOrder)
	}

	// Внутренние API маршруты (с проверкой доступа для внутренних сервисов)
	internalAPIConfig := &pkgMiddleware.InternalAPIConfig{
		TrustedNetworks: h.config.Internal.TrustedNetworks,
		APIKeyEnvName:   h.config.Internal.APIKeyEnvName,
		DefaultAPIKey:   h.config.Internal.DefaultAPIKey,
		HeaderName:      h.config.Internal.HeaderName,
	}

	internalAuthMiddleware := pkgMiddleware.NewInternalAuthMiddleware(internalAPIConfig)
	internal := router.Group("/internal", internalAuthMiddleware.Required())
	{
		internalAutomation := internal.Group("/automation")
		{
			internalAutomation.POST("/start", h.GlobalStartAutomation)
			internalAutomation.POST("/stop", h.GlobalStopAutomation)
		}
	}
}
