package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/ignatzorin/courier-backend/internal/logger"
)

// HTTPClient ходит к провайдеру по REST API.
type HTTPClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	log        *logrus.Entry
}

// NewHTTPClient создаёт клиента провайдера.
func NewHTTPClient(baseURL, apiKey string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		log:        logger.Component("provider"),
	}
}

type initiateBody struct {
	Reference   string `json:"reference"`
	Amount      string `json:"amount"`
	Phone       string `json:"phone"`
	Description string `json:"description,omitempty"`
}

type initiateResponse struct {
	CorrelationID string `json:"correlationId"`
	Status        string `json:"status"`
	Message       string `json:"message"`
}

// InitiatePushPayment запускает push-запрос на оплату на телефон плательщика.
func (c *HTTPClient) InitiatePushPayment(ctx context.Context, req PushPaymentRequest) (*Initiation, error) {
	return c.initiate(ctx, "/v1/push-payments", initiateBody{
		Reference:   req.Reference,
		Amount:      req.Amount.StringFixed(2),
		Phone:       req.PayerPhone,
		Description: req.Description,
	})
}

// InitiatePayout запускает выплату на мобильный кошелёк.
func (c *HTTPClient) InitiatePayout(ctx context.Context, req PayoutRequest) (*Initiation, error) {
	return c.initiate(ctx, "/v1/payouts", initiateBody{
		Reference: req.Reference,
		Amount:    req.Amount.StringFixed(2),
		Phone:     req.DestinationPhone,
	})
}

func (c *HTTPClient) initiate(ctx context.Context, path string, payload initiateBody) (*Initiation, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("%w: baseURL не задан", ErrUnavailable)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Idempotency-Key", payload.Reference)
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log.WithError(err).WithField("path", path).Warn("запрос к провайдеру не выполнен")
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("%w: код ответа %d", ErrUnavailable, resp.StatusCode)
	}

	var decoded initiateResponse
	if err := json.Unmarshal(raw, &decoded); err != nil && resp.StatusCode < 400 {
		return nil, fmt.Errorf("%w: некорректный ответ: %v", ErrUnavailable, err)
	}

	if resp.StatusCode >= 400 || decoded.Status == "declined" {
		c.log.WithFields(logrus.Fields{
			"path":      path,
			"status":    resp.StatusCode,
			"reference": payload.Reference,
		}).Info("провайдер отклонил операцию")
		return nil, fmt.Errorf("%w: %s", ErrDeclined, decoded.Message)
	}

	if decoded.CorrelationID == "" {
		return nil, fmt.Errorf("%w: пустой correlationId", ErrUnavailable)
	}

	return &Initiation{CorrelationID: decoded.CorrelationID}, nil
}
