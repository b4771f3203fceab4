package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/mock"

	"github.com/ignatzorin/courier-backend/internal/http/handlers/common"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/service"
)

type mockOrders struct{ mock.Mock }

func (m *mockOrders) Respond(ctx context.Context, orderID, courierID uuid.UUID, accepted bool) (*models.Order, error) {
	args := m.Called(ctx, orderID, courierID, accepted)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockOrders) ListActive(ctx context.Context, courierID uuid.UUID) ([]models.Order, error) {
	args := m.Called(ctx, courierID)
	return args.Get(0).([]models.Order), args.Error(1)
}

type mockWallets struct{ mock.Mock }

func (m *mockWallets) GetSummaryByCourier(ctx context.Context, courierID uuid.UUID) (*models.WalletSummary, error) {
	args := m.Called(ctx, courierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletSummary), args.Error(1)
}

func (m *mockWallets) Authorize(ctx context.Context, walletID, courierID uuid.UUID) (*models.Wallet, error) {
	args := m.Called(ctx, walletID, courierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Wallet), args.Error(1)
}

func (m *mockWallets) Audit(ctx context.Context, walletID uuid.UUID) (*models.WalletAudit, error) {
	args := m.Called(ctx, walletID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletAudit), args.Error(1)
}

func (m *mockWallets) ListTransactions(ctx context.Context, walletID uuid.UUID, limit, offset int) ([]models.WalletTransaction, error) {
	args := m.Called(ctx, walletID, limit, offset)
	return args.Get(0).([]models.WalletTransaction), args.Error(1)
}

func (m *mockWallets) RecordCashSettlement(ctx context.Context, walletID uuid.UUID, orderID *uuid.UUID, amount decimal.Decimal, note string) (*models.WalletTransaction, error) {
	args := m.Called(ctx, walletID, orderID, amount, note)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

type mockPayouts struct{ mock.Mock }

func (m *mockPayouts) RequestPayout(ctx context.Context, in service.PayoutInput) (*models.WalletTransaction, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.WalletTransaction), args.Error(1)
}

type mockPayments struct{ mock.Mock }

func (m *mockPayments) InitiatePushPayment(ctx context.Context, in service.PushPaymentInput) (*models.PaymentRequest, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.PaymentRequest), args.Error(1)
}

func (m *mockPayments) Handle(ctx context.Context, cb models.ProviderCallback) (*models.CallbackResult, error) {
	args := m.Called(ctx, cb)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.CallbackResult), args.Error(1)
}

type mockDispatch struct{ mock.Mock }

func (m *mockDispatch) Assign(ctx context.Context, orderID, courierID uuid.UUID, total decimal.Decimal) (*models.Order, error) {
	args := m.Called(ctx, orderID, courierID, total)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockDispatch) UpdateStatus(ctx context.Context, orderID uuid.UUID, status string) (*models.Order, error) {
	args := m.Called(ctx, orderID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Order), args.Error(1)
}

func (m *mockDispatch) IssueCourierToken(courierID uuid.UUID) (*service.AccessToken, error) {
	args := m.Called(courierID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*service.AccessToken), args.Error(1)
}

type mockEvents struct{ mock.Mock }

func (m *mockEvents) ListSince(ctx context.Context, courierID uuid.UUID, topic string, since time.Time, limit int) ([]models.RealtimeEvent, error) {
	args := m.Called(ctx, courierID, topic, since, limit)
	return args.Get(0).([]models.RealtimeEvent), args.Error(1)
}

// newTestRouter создаёт gin в тестовом режиме. Если courierID не Nil, он
// кладётся в контекст так же, как это делает AuthMiddleware.
func newTestRouter(courierID uuid.UUID) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	if courierID != uuid.Nil {
		r.Use(func(c *gin.Context) {
			c.Set(common.ContextCourierIDKey, courierID)
			c.Next()
		})
	}
	return r
}

func doJSON(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(w *httptest.ResponseRecorder, v interface{}) error {
	return json.Unmarshal(w.Body.Bytes(), v)
}
