package courier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/courier-backend/internal/dto"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

// APIClient ходит в HTTP API сервера от имени курьера.
type APIClient struct {
	baseURL    string
	token      string
	courierID  uuid.UUID
	httpClient *http.Client
}

func NewAPIClient(baseURL, token string, courierID uuid.UUID, timeout time.Duration) *APIClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &APIClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		courierID:  courierID,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// CourierID идентификатор курьера, от имени которого работает клиент.
func (c *APIClient) CourierID() uuid.UUID { return c.courierID }

// RespondToOrder отправляет ответ на назначение.
func (c *APIClient) RespondToOrder(ctx context.Context, orderID, courierID uuid.UUID, accepted bool) (*models.Order, error) {
	var resp dto.RespondOrderResponse
	err := c.do(ctx, http.MethodPost, "/api/orders/respond", dto.RespondOrderRequest{
		OrderID:   orderID,
		CourierID: courierID,
		Accepted:  &accepted,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

// ListActiveOrders возвращает активные заказы курьера для заполнения кэша.
func (c *APIClient) ListActiveOrders(ctx context.Context) ([]models.Order, error) {
	var resp dto.OrdersResponse
	if err := c.do(ctx, http.MethodGet, "/api/couriers/"+c.courierID.String()+"/orders/active", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Orders, nil
}

// GetWallet возвращает сводку по кошельку курьера.
func (c *APIClient) GetWallet(ctx context.Context) (*models.WalletSummary, error) {
	var summary models.WalletSummary
	if err := c.do(ctx, http.MethodGet, "/api/couriers/"+c.courierID.String()+"/wallet", nil, &summary); err != nil {
		return nil, err
	}
	return &summary, nil
}

// RequestPayout запрашивает вывод средств на мобильный кошелёк.
func (c *APIClient) RequestPayout(ctx context.Context, walletID uuid.UUID, amount decimal.Decimal, phone string) (*models.WalletTransaction, error) {
	var resp dto.PayoutResponse
	err := c.do(ctx, http.MethodPost, "/api/wallets/payouts", dto.PayoutRequest{
		WalletID:         walletID,
		Amount:           amount,
		DestinationPhone: phone,
	}, &resp)
	if err != nil {
		return nil, err
	}
	return resp.Transaction, nil
}

// ListEvents читает журнал событий топика после момента since.
func (c *APIClient) ListEvents(ctx context.Context, topic string, since time.Time, limit int) ([]models.RealtimeEvent, error) {
	q := url.Values{}
	if topic != "" {
		q.Set("topic", topic)
	}
	if !since.IsZero() {
		q.Set("since", since.UTC().Format(time.RFC3339Nano))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	path := "/api/realtime/events"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}

	var resp dto.EventsResponse
	if err := c.do(ctx, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Events, nil
}

func (c *APIClient) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json; charset=utf-8")
	}
	req.Header.Set("Authorization", "Bearer "+c.token)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNetwork, err)
	}

	if resp.StatusCode >= 400 {
		return decodeError(resp.StatusCode, raw)
	}
	if out == nil || len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("courier: некорректный ответ сервера: %w", err)
	}
	return nil
}

// decodeError превращает ответ сервера с ошибкой в AppError с тем же кодом.
func decodeError(status int, raw []byte) error {
	var body dto.ErrorResponse
	_ = json.Unmarshal(raw, &body)

	code := apperror.ErrorCode(body.Code)
	if code == "" {
		code = codeForStatus(status)
	}
	message := body.Error
	if message == "" {
		message = http.StatusText(status)
	}
	return apperror.New(code, message)
}

func codeForStatus(status int) apperror.ErrorCode {
	switch status {
	case http.StatusNotFound:
		return apperror.ErrCodeNotFound
	case http.StatusUnauthorized:
		return apperror.ErrCodeUnauthorized
	case http.StatusForbidden:
		return apperror.ErrCodeForbidden
	case http.StatusConflict:
		return apperror.ErrCodeConflict
	case http.StatusTooManyRequests:
		return apperror.ErrCodeTooManyRequests
	case http.StatusServiceUnavailable:
		return apperror.ErrCodeProviderUnavailable
	case http.StatusBadRequest:
		return apperror.ErrCodeBadRequest
	}
	return apperror.ErrCodeInternal
}
