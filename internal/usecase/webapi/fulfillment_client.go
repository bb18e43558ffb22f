package webapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// InventoryUpdate позиция синхронизации остатков с внешней POS-системой
type InventoryUpdate struct {
	VariantID  uint  `json:"variant_id"`
	LocationID uint  `json:"location_id"`
	Quantity   int64 `json:"quantity"`
}

// SyncResult результат синхронизации остатков
type SyncResult struct {
	Accepted int    `json:"accepted"`
	SyncID   string `json:"sync_id,omitempty"`
}

// PrintReceiptRequest запрос на печать чека
type PrintReceiptRequest struct {
	OrderID  uint              `json:"order_id"`
	TenantID uint              `json:"tenant_id"`
	Lines    []ReceiptLine     `json:"lines"`
	Totals   map[string]string `json:"totals,omitempty"`
}

// ReceiptLine строка чека
type ReceiptLine struct {
	VariantID uint    `json:"variant_id"`
	Quantity  int64   `json:"quantity"`
	Price     float64 `json:"price"`
}

// PrintResult результат печати чека
type PrintResult struct {
	ReceiptID string `json:"receipt_id,omitempty"`
	Printed   bool   `json:"printed"`
}

// FulfillmentClient представляет HTTP клиент внешней системы исполнения
// (POS-интеграция и принтер чеков)
type FulfillmentClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

func NewFulfillmentClient(baseURL, apiKey string) *FulfillmentClient {
	return &FulfillmentClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// doJSON выполняет POST запрос с JSON телом и разбирает JSON ответ
func (c *FulfillmentClient) doJSON(ctx context.Context, path string, reqBody, respBody interface{}) error {
	url := fmt.Sprintf("%s%s", c.baseURL, path)

	reqBodyJSON, err := json.Marshal(reqBody)
	if err != nil {
		return fmt.Errorf("ошибка при маршалинге запроса: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewBuffer(reqBodyJSON))
	if err != nil {
		return fmt.Errorf("ошибка при создании запроса: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ошибка при выполнении запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return fmt.Errorf("неуспешный ответ внешней системы: %s", resp.Status)
	}

	if respBody != nil {
		if err := json.NewDecoder(resp.Body).Decode(respBody); err != nil {
			return fmt.Errorf("ошибка при разборе ответа: %w", err)
		}
	}

	return nil
}

// SyncInventory отправляет обновления остатков во внешнюю систему
func (c *FulfillmentClient) SyncInventory(ctx context.Context, updates []InventoryUpdate) (*SyncResult, error) {
	reqBody := map[string]interface{}{
		"updates": updates,
	}

	var result SyncResult
	if err := c.doJSON(ctx, "/api/v1/inventory/sync", reqBody, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// PrintReceipt отправляет чек на печать
func (c *FulfillmentClient) PrintReceipt(ctx context.Context, req PrintReceiptRequest) (*PrintResult, error) {
	var result PrintResult
	if err := c.doJSON(ctx, "/api/v1/receipts/print", req, &result); err != nil {
		return nil, err
	}

	return &result, nil
}

// TestConnection проверяет доступность внешней системы
func (c *FulfillmentClient) TestConnection(ctx context.Context) (bool, error) {
	url := fmt.Sprintf("%s/api/v1/status", c.baseURL)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return false, fmt.Errorf("ошибка при создании запроса: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return false, fmt.Errorf("ошибка при выполнении запроса: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, nil
	}

	var status struct {
		Connected bool `json:"connected"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return false, fmt.Errorf("ошибка при разборе ответа: %w", err)
	}

	return status.Connected, nil
}
