// internal/infrastructure/api/orders/client.go
package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"trading-session-guard/internal/core/domain/sessions"
	"trading-session-guard/internal/infrastructure/config"
	"trading-session-guard/pkg/logger"
)

// Canceller отмена ожидающих ордеров сессии
type Canceller interface {
	CancelPendingOrders(ctx context.Context, sessionID string) error
}

// HTTPClient клиент REST API подсистемы ордеров
type HTTPClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// CancelResponse ответ на отмену ордеров
type CancelResponse struct {
	SessionID string `json:"session_id"`
	Cancelled int    `json:"cancelled"`
}

// NewHTTPClient создает клиента
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPClient{
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				MaxIdleConns:        10,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

// NewFromConfig HTTP клиент, если задан ORDERS_BASE_URL, иначе логирующая заглушка
func NewFromConfig(cfg config.OrdersConfig) Canceller {
	if cfg.BaseURL == "" {
		return NoopCanceller{}
	}
	return NewHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
}

// CancelPendingOrders POST /sessions/{id}/orders/cancel
func (c *HTTPClient) CancelPendingOrders(ctx context.Context, sessionID string) error {
	endpoint := fmt.Sprintf("/sessions/%s/orders/cancel", url.PathEscape(sessionID))
	body, err := c.sendRequest(ctx, http.MethodPost, endpoint, map[string]string{"session_id": sessionID})
	if err != nil {
		return fmt.Errorf("HTTPClient.CancelPendingOrders %s: %w", sessionID, err)
	}

	var resp CancelResponse
	if len(body) > 0 {
		if err := json.Unmarshal(body, &resp); err != nil {
			logger.Debug("⚠️ [Orders] Неразборчивый ответ на отмену ордеров %s: %v", sessionID, err)
		}
	}
	logger.Info("🧾 [Orders] Отменены ожидающие ордера сессии %s (%d шт.)", sessionID, resp.Cancelled)
	return nil
}

func (c *HTTPClient) sendRequest(ctx context.Context, method, endpoint string, payload interface{}) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to encode request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+endpoint, reader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "TradingSessionGuard/1.0")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, sessions.Transient("orders", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, sessions.Transient("orders", fmt.Errorf("failed to read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, sessions.Transient("orders", fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body)))
	case resp.StatusCode == http.StatusNotFound:
		// у сессии нет ордеров
		return nil, nil
	case resp.StatusCode >= 300:
		return nil, fmt.Errorf("API returned status %d: %s", resp.StatusCode, string(body))
	}
	return body, nil
}

// NoopCanceller только логирует отмену
type NoopCanceller struct{}

// CancelPendingOrders логирует вызов
func (NoopCanceller) CancelPendingOrders(ctx context.Context, sessionID string) error {
	logger.Info("🧾 [Orders] Подсистема ордеров не настроена, отмена ордеров сессии %s пропущена", sessionID)
	return nil
}
