package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"golang.org/x/crypto/bcrypt"

	"github.com/ignatzorin/courier-backend/internal/config"
	"github.com/ignatzorin/courier-backend/internal/db"
	"github.com/ignatzorin/courier-backend/internal/goroutine"
	httpHandlers "github.com/ignatzorin/courier-backend/internal/http/handlers"
	httpRouter "github.com/ignatzorin/courier-backend/internal/http/router"
	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/provider"
	"github.com/ignatzorin/courier-backend/internal/repository"
	"github.com/ignatzorin/courier-backend/internal/service"
	"github.com/ignatzorin/courier-backend/internal/ws"
)

const (
	// Песочница отвечает после того, как сервис сохранил correlationId
	sandboxCallbackDelay = 2 * time.Second
	eventCleanupInterval = time.Hour

	devDispatcherKey = "dev-dispatcher-key"
	devCallbackKey   = "dev-provider-callback-key"
)

func main() {
	// Готовим контекст для graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	// Инициализация логгера
	logLevel := "info"
	if cfg.Env == "development" {
		logLevel = "debug"
		logger.Init(logLevel)
		logger.SetTextFormatter()
	} else {
		logger.Init(logLevel)
	}
	mainLog := logger.Component("main")

	if cfg.Env != "production" {
		cfg.DispatcherKeyHash = devKeyHash(cfg.DispatcherKeyHash, devDispatcherKey, "DISPATCHER_KEY_HASH")
		cfg.ProviderCallbackKeyHash = devKeyHash(cfg.ProviderCallbackKeyHash, devCallbackKey, "PROVIDER_CALLBACK_KEY_HASH")
	}

	// Подключение к базе и миграции.
	dbConn, err := db.NewPostgres(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("main: ошибка подключения к базе: %v", err)
	}
	defer safeClose(dbConn)

	if err := db.RunMigrations(ctx, dbConn, cfg.MigrationsPath); err != nil {
		log.Fatalf("main: ошибка миграций: %v", err)
	}

	tokenManager := service.NewTokenManager(cfg.JWTSecret, cfg.AccessTokenTTL)

	// Репозитории.
	orderRepo := repository.NewOrderRepository(dbConn)
	walletRepo := repository.NewWalletRepository(dbConn)
	paymentRepo := repository.NewPaymentRepository(dbConn)
	eventRepo := repository.NewEventRepository(dbConn)
	callbackLookup := repository.NewCallbackLookup(walletRepo, paymentRepo)

	// Realtime: журнал событий проверяет и права на подписку.
	eventService := service.NewEventService(eventRepo, orderRepo)
	hub := ws.NewHub(ctx, eventService)
	hub.SetJournal(eventService)

	var redisClient *redis.Client
	if cfg.RedisAddr != "" {
		redisClient, err = ws.NewRedisClient(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
		if err != nil {
			log.Fatalf("main: ошибка подключения к redis: %v", err)
		}
		defer redisClient.Close()

		bridge := ws.NewRedisBridge(redisClient, cfg.RedisChannel)
		hub.SetFanout(bridge)
		goroutine.SafeGo(func() {
			if err := bridge.Run(ctx, hub); err != nil {
				mainLog.WithError(err).Error("redis мост остановлен")
			}
		})
	}
	go hub.Run()
	goroutine.SafeGo(func() { eventService.RunCleanup(ctx, eventCleanupInterval) })

	// Платёжный провайдер. Колбэки песочницы идут тем же путём, что и вебхук.
	var callbackService *service.CallbackService
	var paymentProvider provider.Provider
	if cfg.ProviderSandbox {
		mainLog.Warn("используется песочница платёжного провайдера")
		paymentProvider = provider.NewSandbox(func(cb models.ProviderCallback) {
			goroutine.SafeGo(func() {
				select {
				case <-ctx.Done():
					return
				case <-time.After(sandboxCallbackDelay):
				}
				if _, err := callbackService.Handle(ctx, cb); err != nil {
					mainLog.WithError(err).WithField("correlation_id", cb.CorrelationID).Warn("колбэк песочницы не обработан")
				}
			})
		})
	} else {
		paymentProvider = provider.NewHTTPClient(cfg.ProviderBaseURL, cfg.ProviderAPIKey, cfg.ProviderTimeout)
	}

	// Сервисы.
	locks := service.NewWalletLocks()
	walletService := service.NewWalletService(walletRepo, locks, hub)
	orderService := service.NewOrderService(orderRepo, hub)
	payoutService := service.NewPayoutService(walletRepo, paymentProvider, locks, walletService, cfg.PayoutMinAmount)
	paymentService := service.NewPaymentService(paymentRepo, orderRepo, walletRepo, paymentProvider, locks, hub, walletService)
	dispatchService := service.NewDispatchService(orderRepo, hub, walletService, tokenManager)
	callbackService = service.NewCallbackService(callbackLookup, payoutService, paymentService)

	// Роутер.
	engine := httpRouter.SetupRouter(cfg, httpRouter.Handlers{
		Health:   httpHandlers.NewHealthHandler(dbConn, redisClient),
		Orders:   httpHandlers.NewOrderHandler(orderService),
		Wallets:  httpHandlers.NewWalletHandler(walletService),
		Payouts:  httpHandlers.NewPayoutHandler(payoutService, walletService),
		Payments: httpHandlers.NewPaymentHandler(paymentService, callbackService),
		Dispatch: httpHandlers.NewDispatchHandler(dispatchService, walletService),
		Realtime: httpHandlers.NewRealtimeHandler(eventService),
		WS:       httpHandlers.NewWSHandler(hub, tokenManager),
	}, tokenManager)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Завершаем сервер при получении сигнала.
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("main: ошибка остановки http сервера: %v", err)
		}
	}()

	mainLog.WithField("port", cfg.HTTPPort).Info("HTTP сервер запущен")

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatalf("main: сервер завершился с ошибкой: %v", err)
	}
}

// devKeyHash подставляет хэш известного ключа, если переменная окружения не задана.
func devKeyHash(current, devKey, envName string) string {
	if current != "" {
		return current
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(devKey), bcrypt.DefaultCost)
	if err != nil {
		log.Fatalf("main: не удалось подготовить dev ключ %s: %v", envName, err)
	}
	logger.Component("main").Warnf("%s не задан, используется dev ключ %q", envName, devKey)
	return string(hash)
}

// safeClose закрывает соединение с базой.
func safeClose(db *sqlx.DB) {
	if err := db.Close(); err != nil {
		log.Printf("main: ошибка закрытия базы: %v", err)
	}
}
