package http

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/director74/fulfillment_engine/config"
	"github.com/director74/fulfillment_engine/internal/entity"
	"github.com/director74/fulfillment_engine/internal/usecase"
	apperrors "github.com/director74/fulfillment_engine/pkg/errors"
	pkgMiddleware "github.com/director74/fulfillment_engine/pkg/middleware"
)

// InventoryHandler обработчик HTTP запросов калькулятора доступности
type InventoryHandler struct {
	inventoryUseCase *usecase.InventoryUseCase
	config           *config.Config
}

// NewInventoryHandler создает новый обработчик остатков
func NewInventoryHandler(inventoryUseCase *usecase.InventoryUseCase, cfg *config.Config) *InventoryHandler {
	return &InventoryHandler{
		inventoryUseCase: inventoryUseCase,
		config:           cfg,
	}
}

// parseIDParam получает числовой параметр пути
func parseIDParam(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "неверный " + name})
		return 0, false
	}
	return uint(id), true
}

// GetAvailableToSell возвращает доступное к продаже количество для
// варианта, локации и канала
func (h *InventoryHandler) GetAvailableToSell(c *gin.Context) {
	variantID, ok := parseIDParam(c, "variant_id")
	if !ok {
		return
	}
	locationID, ok := parseIDParam(c, "location_id")
	if !ok {
		return
	}
	channel := c.Query("channel")

	available, err := h.inventoryUseCase.GetAvailableToSell(c.Request.Context(), variantID, locationID, channel)
	if err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusOK, entity.AvailableToSellResponse{
		VariantID:  variantID,
		LocationID: locationID,
		Channel:    channel,
		Available:  available,
	})
}

// GetInventoryItem возвращает запись остатков по варианту и локации
func (h *InventoryHandler) GetInventoryItem(c *gin.Context) {
	variantID, ok := parseIDParam(c, "variant_id")
	if !ok {
		return
	}
	locationID, ok := parseIDParam(c, "location_id")
	if !ok {
		return
	}

	item, err := h.inventoryUseCase.GetItem(c.Request.Context(), variantID, locationID)
	if err != nil {
		apperrors.HandleGinError(c, err)
		return
	}
	if item == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "запись остатков не найдена"})
		return
	}

	c.JSON(http.StatusOK, item)
}

// GetAllInventoryItems возвращает список записей остатков с пагинацией
func (h *InventoryHandler) GetAllInventoryItems(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "10"))
	if err != nil || limit <= 0 {
		limit = 10
	}
	offset, err := strconv.Atoi(c.DefaultQuery("offset", "0"))
	if err != nil || offset < 0 {
		offset = 0
	}

	items, err := h.inventoryUseCase.GetAllItems(c.Request.Context(), limit, offset)
	if err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusOK, items)
}

// CreateInventoryItem создает запись остатков
func (h *InventoryHandler) CreateInventoryItem(c *gin.Context) {
	var item entity.InventoryItem
	if !apperrors.BindJSON(c, &item) {
		return
	}

	if err := h.inventoryUseCase.CreateItem(c.Request.Context(), &item); err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusCreated, item)
}

// ApplyMovement применяет ручную корректировку остатков через журнал
// движений
func (h *InventoryHandler) ApplyMovement(c *gin.Context) {
	var req entity.ApplyMovementRequest
	if !apperrors.BindJSON(c, &req) {
		return
	}

	if err := h.inventoryUseCase.ApplyMovement(c.Request.Context(), req); err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "applied"})
}

// GetMovements возвращает движения журнала по ссылке
func (h *InventoryHandler) GetMovements(c *gin.Context) {
	reference := c.Param("reference")
	if reference == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "не указана ссылка"})
		return
	}

	movements, err := h.inventoryUseCase.GetMovementsByReference(c.Request.Context(), reference)
	if err != nil {
		apperrors.HandleGinError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"movements": movements})
}

// RegisterRoutes регистрирует маршруты калькулятора доступности
func (h *InventoryHandler) RegisterRoutes(router *gin.Engine, authMiddleware gin.HandlerFunc) {
	// Публичные API маршруты (с авторизацией)
	inventory := router.Group("/api/v1/inventory")
	{
		inventory.GET("/available/:variant_id/:location_id", h.GetAvailableToSell)
		inventory.GET("/item/:variant_id/:location_id", h.GetInventoryItem)
		inventory.GET("", h.GetAllInventoryItems)
		inventory.POST("", authMiddleware, h.CreateInventoryItem)
		inventory.GET("/movements/:reference", authMiddleware, h.GetMovements)
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
		internalInventory := internal.Group("/inventory")
		{
			internalInventory.GET("/available/:variant_id/:location_id", h.GetAvailableToSell)
			internalInventory.POST("/movements", h.ApplyMovement)
			internalInventory.GET("/movements/:reference", h.GetMovements)
		}
	}
}
