package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ignatzorin/courier-backend/internal/config"
	"github.com/ignatzorin/courier-backend/internal/courier"
	"github.com/ignatzorin/courier-backend/internal/goroutine"
	"github.com/ignatzorin/courier-backend/internal/logger"
	"github.com/ignatzorin/courier-backend/internal/models"
	"github.com/ignatzorin/courier-backend/internal/pkg/apperror"
)

const helpText = `команды:
  orders                  активные заказы
  accept <orderId>        принять заказ
  reject <orderId>        отклонить заказ
  tap <orderId>           нажать на уведомление о заказе
  bg | fg                 свернуть / развернуть приложение
  wallet                  сводка по кошельку
  payout <сумма> <телефон> вывести средства
  quit                    выход`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAgent()
	if err != nil {
		log.Fatalf("main: ошибка загрузки конфигурации: %v", err)
	}

	courierID, err := uuid.Parse(cfg.CourierID)
	if err != nil {
		log.Fatalf("main: COURIER_ID должен быть UUID: %v", err)
	}

	// Терминал занят экраном курьера, логи пишем в файл
	logger.Init("debug")
	logger.SetTextFormatter()
	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			log.Fatalf("main: не удалось открыть лог файл: %v", err)
		}
		defer f.Close()
		logger.SetOutput(f)
	}

	out := os.Stdout
	var outMu sync.Mutex
	printf := func(format string, args ...any) {
		outMu.Lock()
		defer outMu.Unlock()
		fmt.Fprintf(out, format, args...)
	}

	session := courier.NewSession(courier.SessionConfig{
		ServerURL:       cfg.ServerURL,
		AccessToken:     cfg.AccessToken,
		CourierID:       courierID,
		MarkerTTL:       cfg.MarkerTTL,
		RequestTimeout:  cfg.RequestTimeout,
		ReconnectPeriod: cfg.ReconnectPeriod,
		Alerter:         courier.NewTerminalAlerter(out, cfg.AlertInterval, &outMu),
		Notifier:        courier.NewTerminalNotifier(out, &outMu),
		OnPrompt: func(p *courier.Prompt) {
			printf("=== новый заказ %s ===\n", p.OrderID())
			if o := p.Order(); o != nil {
				printf("    сумма %s, оплата %s\n", o.TotalAmount.StringFixed(2), o.PaymentStatus)
			}
		},
		OnResolved: func(r courier.PromptResult) {
			printf("заказ %s: %s\n", r.OrderID, outcomeText(r.Outcome))
		},
		OnWallet: func(s models.WalletSummary) {
			printf("кошелёк: баланс %s, доступно %s, на удержании %s\n",
				s.Balance.StringFixed(2), s.AvailableBalance.StringFixed(2), s.AmountOnHold.StringFixed(2))
		},
	})

	runErr := make(chan error, 1)
	goroutine.SafeGo(func() { runErr <- session.Run(ctx) })

	printf("курьер %s подключается к %s\n%s\n", courierID, cfg.ServerURL, helpText)

	lines := make(chan string)
	goroutine.SafeGo(func() { readLines(os.Stdin, lines) })

	for {
		select {
		case <-ctx.Done():
			return
		case err := <-runErr:
			if err != nil {
				log.Fatalf("main: сессия завершилась с ошибкой: %v", err)
			}
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			if quit := handleCommand(ctx, session, line, printf); quit {
				return
			}
		}
	}
}

func readLines(r io.Reader, lines chan<- string) {
	defer close(lines)
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lines <- strings.TrimSpace(scanner.Text())
	}
}

func handleCommand(ctx context.Context, session *courier.Session, line string, printf func(string, ...any)) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true

	case "help":
		printf("%s\n", helpText)

	case "orders":
		orders := session.Orders()
		if len(orders) == 0 {
			printf("активных заказов нет\n")
		}
		for _, o := range orders {
			printf("%s  %-16s оплата=%-7s принят=%s\n", o.ID, o.Status, o.PaymentStatus, acceptedText(o.DriverAccepted))
		}

	case "accept", "reject":
		orderID, ok := parseOrderID(fields, printf)
		if !ok {
			return false
		}
		var err error
		if fields[0] == "accept" {
			_, err = session.Accept(ctx, orderID)
		} else {
			_, err = session.Reject(ctx, orderID)
		}
		if err != nil {
			printf("ошибка: %s\n", errorText(err))
		}

	case "tap":
		orderID, ok := parseOrderID(fields, printf)
		if !ok {
			return false
		}
		if _, err := session.Tap(ctx, map[string]string{
			courier.NotificationKeyOrderID: orderID.String(),
			courier.NotificationKeyType:    models.EventOrderAssigned,
		}); err != nil {
			printf("ошибка: %s\n", errorText(err))
		}

	case "bg":
		session.SetForeground(false)
		printf("приложение в фоне\n")

	case "fg":
		session.SetForeground(true)
		printf("приложение на экране\n")

	case "wallet":
		summary, err := session.Wallet(ctx)
		if err != nil {
			printf("ошибка: %s\n", errorText(err))
			return false
		}
		printf("кошелёк %s: баланс %s, доступно %s, на удержании %s, выплат в обработке %d\n",
			summary.WalletID, summary.Balance.StringFixed(2), summary.AvailableBalance.StringFixed(2),
			summary.AmountOnHold.StringFixed(2), len(summary.PendingPayouts))

	case "payout":
		if len(fields) != 3 {
			printf("использование: payout <сумма> <телефон>\n")
			return false
		}
		amount, err := decimal.NewFromString(fields[1])
		if err != nil {
			printf("некорректная сумма\n")
			return false
		}
		txn, err := session.Payout(ctx, amount, fields[2])
		if err != nil {
			printf("ошибка: %s\n", errorText(err))
			return false
		}
		printf("выплата %s на %s принята, статус %s\n", txn.ID, txn.Amount.StringFixed(2), txn.Status)

	default:
		printf("неизвестная команда, help для списка\n")
	}
	return false
}

func parseOrderID(fields []string, printf func(string, ...any)) (uuid.UUID, bool) {
	if len(fields) != 2 {
		printf("использование: %s <orderId>\n", fields[0])
		return uuid.Nil, false
	}
	id, err := uuid.Parse(fields[1])
	if err != nil {
		printf("некорректный orderId\n")
		return uuid.Nil, false
	}
	return id, true
}

func errorText(err error) string {
	if errors.Is(err, courier.ErrNetwork) {
		return "нет связи с сервером, повторите"
	}
	var appErr *apperror.AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return err.Error()
}

func outcomeText(o courier.Outcome) string {
	switch o {
	case courier.OutcomeAccepted:
		return "принят"
	case courier.OutcomeRejected:
		return "отклонён"
	case courier.OutcomeAlreadyHandled:
		return "уже обработан"
	case courier.OutcomeUnavailable:
		return "больше недоступен"
	}
	return string(o)
}

func acceptedText(v *bool) string {
	switch {
	case v == nil:
		return "ожидает"
	case *v:
		return "да"
	}
	return "нет"
}
