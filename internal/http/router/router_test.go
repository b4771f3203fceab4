package router

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ignatzorin/courier-backend/internal/config"
	"github.com/ignatzorin/courier-backend/internal/http/handlers"
	"github.com/ignatzorin/courier-backend/internal/service"
)

func newTestEngine(t *testing.T) (*gin.Engine, *service.TokenManager) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	tokens := service.NewTokenManager("test-secret-test-secret-test-secret", time.Hour)
	cfg := &config.Config{
		Env:             "test",
		AllowedOrigins:  []string{"http://localhost:3000"},
		RateLimitLimit:  10,
		RateLimitPeriod: time.Minute,
	}
	r := SetupRouter(cfg, Handlers{
		Health:   handlers.NewHealthHandler(nil, nil),
		Orders:   handlers.NewOrderHandler(nil),
		Wallets:  handlers.NewWalletHandler(nil),
		Payouts:  handlers.NewPayoutHandler(nil, nil),
		Payments: handlers.NewPaymentHandler(nil, nil),
		Dispatch: handlers.NewDispatchHandler(nil, nil),
		Realtime: handlers.NewRealtimeHandler(nil),
		WS:       handlers.NewWSHandler(nil, tokens),
	}, tokens)
	return r, tokens
}

func TestRouter_CourierRoutesRequireToken(t *testing.T) {
	r, _ := newTestEngine(t)
	paths := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/orders/respond"},
		{http.MethodGet, "/api/couriers/" + uuid.NewString() + "/wallet"},
		{http.MethodPost, "/api/wallets/payouts"},
		{http.MethodGet, "/api/realtime/events"},
	}
	for _, p := range paths {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(p.method, p.path, nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code, p.path)
	}
}

func TestRouter_ForeignCourierForbidden(t *testing.T) {
	r, tokens := newTestEngine(t)
	token, err := tokens.GenerateAccess(uuid.New(), service.RoleCourier)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/couriers/"+uuid.NewString()+"/orders/active", nil)
	req.Header.Set("Authorization", "Bearer "+token.AccessToken)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestRouter_ServiceRoutesRequireKey(t *testing.T) {
	r, tokens := newTestEngine(t)
	token, err := tokens.GenerateAccess(uuid.New(), service.RoleCourier)
	require.NoError(t, err)

	for _, path := range []string{"/api/dispatch/assignments", "/api/payments/push", "/api/webhooks/provider"} {
		req := httptest.NewRequest(http.MethodPost, path, nil)
		// courier token не даёт доступа к служебным маршрутам
		req.Header.Set("Authorization", "Bearer "+token.AccessToken)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
	}
}

func TestRouter_WSRequiresToken(t *testing.T) {
	r, _ := newTestEngine(t)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}
