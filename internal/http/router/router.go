package router

import (
	"github.com/gin-gonic/gin"

	"github.com/ignatzorin/courier-backend/internal/config"
	"github.com/ignatzorin/courier-backend/internal/http/handlers"
	"github.com/ignatzorin/courier-backend/internal/http/middleware"
	"github.com/ignatzorin/courier-backend/internal/service"
)

// Handlers все хэндлеры API.
type Handlers struct {
	Health   *handlers.HealthHandler
	Orders   *handlers.OrderHandler
	Wallets  *handlers.WalletHandler
	Payouts  *handlers.PayoutHandler
	Payments *handlers.PaymentHandler
	Dispatch *handlers.DispatchHandler
	Realtime *handlers.RealtimeHandler
	WS       *handlers.WSHandler
}

func SetupRouter(cfg *config.Config, h Handlers, tokenManager *service.TokenManager) *gin.Engine {
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger())
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.CORSMiddleware(cfg.AllowedOrigins))

	r.GET("/health", h.Health.Health)

	api := r.Group("/api")

	// WebSocket авторизуется токеном из query, заголовок браузер передать не может
	api.GET("/ws", h.WS.Handle)

	// Маршруты курьера
	courier := api.Group("/")
	courier.Use(middleware.AuthMiddleware(tokenManager), middleware.RequireRole(service.RoleCourier))
	{
		courier.POST("/orders/respond", middleware.RateLimitMiddleware(cfg.RateLimitLimit*3, cfg.RateLimitPeriod), h.Orders.Respond)

		own := courier.Group("/couriers/:courierId", middleware.UUIDValidator("courierId"), middleware.RequireCourierParam("courierId"))
		own.GET("/orders/active", h.Orders.ListActive)
		own.GET("/wallet", h.Wallets.GetByCourier)

		courier.POST("/wallets/payouts", middleware.RateLimitMiddleware(cfg.RateLimitLimit, cfg.RateLimitPeriod), h.Payouts.Request)
		courier.GET("/wallets/:walletId/audit", middleware.UUIDValidator("walletId"), h.Wallets.Audit)
		courier.GET("/wallets/:walletId/transactions", middleware.UUIDValidator("walletId"), h.Wallets.Transactions)

		courier.GET("/realtime/events", h.Realtime.ListEvents)
	}

	// Служебные маршруты диспетчерской системы
	dispatch := api.Group("/")
	dispatch.Use(middleware.ServiceKeyMiddleware("dispatcher", cfg.DispatcherKeyHash))
	{
		dispatch.POST("/payments/push", h.Payments.Push)
		dispatch.POST("/dispatch/assignments", h.Dispatch.Assign)
		dispatch.PUT("/dispatch/orders/:id/status", middleware.UUIDValidator("id"), h.Dispatch.UpdateStatus)
		dispatch.POST("/dispatch/couriers/:courierId/token", middleware.UUIDValidator("courierId"), h.Dispatch.IssueToken)
		dispatch.POST("/dispatch/wallets/:walletId/cash-settlements", middleware.UUIDValidator("walletId"), h.Dispatch.CashSettlement)
	}

	// Колбэки платёжного провайдера
	webhooks := api.Group("/webhooks")
	webhooks.Use(middleware.ServiceKeyMiddleware("provider", cfg.ProviderCallbackKeyHash))
	{
		webhooks.POST("/provider", h.Payments.ProviderWebhook)
	}

	return r
}
